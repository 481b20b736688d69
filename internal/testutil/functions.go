package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ElectronicaGitHub/agented-io/tools"
)

// RecordingFunction is a tools.Function that records every call.
type RecordingFunction struct {
	meta   tools.Metadata
	result tools.Result
	err    error
	delay  time.Duration

	mu    sync.Mutex
	calls []tools.Call
}

// NewRecordingFunction creates a function returning result after delay.
func NewRecordingFunction(name string, result tools.Result, delay time.Duration) *RecordingFunction {
	return &RecordingFunction{
		meta:   tools.Metadata{Name: name, Description: "test function " + name},
		result: result,
		delay:  delay,
	}
}

// Failing makes the function return err.
func (f *RecordingFunction) Failing(err error) *RecordingFunction {
	f.err = err
	return f
}

func (f *RecordingFunction) Metadata() tools.Metadata { return f.meta }

// Call records the call and answers after the configured delay.
func (f *RecordingFunction) Call(ctx context.Context, call tools.Call) (tools.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return tools.Result{}, ctx.Err()
		}
	}
	return f.result, f.err
}

// Calls returns a copy of the recorded calls.
func (f *RecordingFunction) Calls() []tools.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tools.Call(nil), f.calls...)
}

// Function cohort executor.
//
// Information Hiding:
// - Concurrency limit and shared deadline hidden
// - Panic recovery hidden
// - Result wrapping format hidden behind Format

package tools

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ElectronicaGitHub/agented-io/logging"
	"github.com/ElectronicaGitHub/agented-io/model"
)

// DefaultCohortTimeout bounds a whole cohort when no timeout is configured.
const DefaultCohortTimeout = 10 * time.Second

// Lookup resolves function names. *Registry implements it.
type Lookup interface {
	Get(name string) (Function, bool)
}

// Invocation is one function call requested by the backend.
type Invocation struct {
	Name   string
	Params map[string]any
}

// Outcome is the result of one invocation.
type Outcome struct {
	Invocation
	Result Result
	// Err is a *FunctionExecutionError when the call did not succeed.
	Err      error
	Duration time.Duration
}

// Text returns the result text, or the error description on failure.
func (o Outcome) Text() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return o.Result.Text
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Timeout is shared by every call of a cohort.
	Timeout time.Duration
	// MaxParallel limits concurrent calls. 0 means no limit.
	MaxParallel int
}

// Executor runs the function calls of one backend reply as a cohort.
type Executor struct {
	cfg    ExecutorConfig
	logger logging.Logger
}

// NewExecutor creates an executor. A nil logger discards output.
func NewExecutor(cfg ExecutorConfig, logger logging.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCohortTimeout
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Executor{cfg: cfg, logger: logger}
}

// Run executes calls concurrently under a single deadline and returns one
// outcome per call, in call order. Calls still running at the deadline are
// reported as timed out and not awaited.
func (e *Executor) Run(ctx context.Context, fns Lookup, calls []Invocation, fnCtx model.Context) []Outcome {
	outcomes := make([]Outcome, len(calls))
	if len(calls) == 0 {
		return outcomes
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var g errgroup.Group
	if e.cfg.MaxParallel > 0 {
		g.SetLimit(e.cfg.MaxParallel)
	}

	batchStart := time.Now()
	for i, call := range calls {
		outcomes[i].Invocation = call
		fn, ok := fns.Get(call.Name)
		if !ok {
			outcomes[i].Err = &FunctionExecutionError{Function: call.Name, Err: ErrFunctionNotFound}
			continue
		}
		g.Go(func() error {
			outcomes[i] = e.runOne(ctx, fn, call, fnCtx)
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Debug("function cohort complete",
		"count", len(calls),
		"parallelism", e.cfg.MaxParallel,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
	return outcomes
}

func (e *Executor) runOne(ctx context.Context, fn Function, call Invocation, fnCtx model.Context) Outcome {
	out := Outcome{Invocation: call}
	start := time.Now()

	if ctx.Err() != nil {
		out.Err = &FunctionExecutionError{Function: call.Name, Timeout: e.cfg.Timeout, Err: ErrFunctionTimeout}
		return out
	}

	type reply struct {
		res Result
		err error
	}
	done := make(chan reply, 1)
	go func() {
		var r reply
		defer func() {
			if p := recover(); p != nil {
				r.err = &PanicError{Value: p, Stack: debug.Stack()}
				e.logger.Error("function panicked", "function", call.Name, "recover", p)
			}
			done <- r
		}()
		r.res, r.err = fn.Call(ctx, Call{Params: call.Params, Context: fnCtx.Clone()})
	}()

	select {
	case r := <-done:
		out.Result = r.res
		if r.err != nil {
			out.Err = &FunctionExecutionError{Function: call.Name, Err: r.err}
		}
	case <-ctx.Done():
		out.Err = &FunctionExecutionError{Function: call.Name, Timeout: e.cfg.Timeout, Err: ErrFunctionTimeout}
	}
	out.Duration = time.Since(start)

	e.logger.Info("function executed",
		"function", call.Name,
		"duration_ms", out.Duration.Milliseconds(),
		"error", out.Err != nil,
	)
	return out
}

// Signature returns the call header shown to the backend, e.g.
// "Fn Call getWeather() with params: {...}".
func (i Invocation) Signature() string {
	sig := "Fn Call " + i.Name + "()"
	if len(i.Params) == 0 {
		return sig
	}
	data, err := json.MarshalIndent(i.Params, "", "  ")
	if err != nil {
		return sig
	}
	return sig + " with params: " + string(data)
}

// Format wraps every outcome with its call signature and joins them into
// the text fed back to the calling agent.
func Format(outcomes []Outcome) string {
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		parts = append(parts, o.Signature()+"\nFn Call Result: "+o.Text())
	}
	return strings.Join(parts, "\n\n")
}

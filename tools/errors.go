package tools

import (
	"errors"
	"fmt"
	"time"
)

// ErrFunctionTimeout is reported for a function still running when the
// cohort timeout fires.
var ErrFunctionTimeout = errors.New("function timed out")

// ErrFunctionNotFound is reported for a call to an unregistered function.
var ErrFunctionNotFound = errors.New("function not found")

// FunctionExecutionError wraps a failure of a single function call.
type FunctionExecutionError struct {
	Function string
	Timeout  time.Duration
	Err      error
}

func (e *FunctionExecutionError) Error() string {
	switch {
	case errors.Is(e.Err, ErrFunctionNotFound):
		return fmt.Sprintf("Function %s not found", e.Function)
	case errors.Is(e.Err, ErrFunctionTimeout):
		return fmt.Sprintf("Function %s timed out after %s", e.Function, e.Timeout)
	default:
		return fmt.Sprintf("Error executing function %s: %v", e.Function, e.Err)
	}
}

func (e *FunctionExecutionError) Unwrap() error { return e.Err }

// PanicError is the error recorded when a function panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

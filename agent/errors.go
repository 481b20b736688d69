package agent

import (
	"errors"
	"fmt"
	"time"
)

// ErrNothingToRetry is returned by RetryLastItem before any item was processed.
var ErrNothingToRetry = errors.New("no work item to retry")

// ErrTreeClosed is returned for work submitted after Tree.Close.
var ErrTreeClosed = errors.New("agent tree is closed")

// LoopGuardError is returned when an agent exceeds its flow length, which
// usually means it keeps calling functions or children without finishing.
type LoopGuardError struct {
	Agent string
	Limit int
}

func (e *LoopGuardError) Error() string {
	return fmt.Sprintf("agent %s exceeded the maximum flow length of %d", e.Agent, e.Limit)
}

// ShapeError is returned when a backend reply is valid JSON but not a
// recognized response shape.
type ShapeError struct {
	Agent string
	Raw   string
	Err   error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("agent %s: unrecognized response shape: %v", e.Agent, e.Err)
}

func (e *ShapeError) Unwrap() error { return e.Err }

// TimeoutError is reported when an agent stays WORKING longer than its
// work timeout.
type TimeoutError struct {
	Agent string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Agent %s timed out after %s", e.Agent, e.After)
}

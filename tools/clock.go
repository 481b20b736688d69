package tools

import (
	"context"
	"fmt"
	"time"
)

// CurrentTimeTool reports the current time, optionally in a named zone.
type CurrentTimeTool struct {
	now func() time.Time
}

// NewCurrentTimeTool creates the current_time function.
func NewCurrentTimeTool() *CurrentTimeTool {
	return &CurrentTimeTool{now: time.Now}
}

// Metadata returns the function metadata.
func (t *CurrentTimeTool) Metadata() Metadata {
	return Metadata{
		Name:        "current_time",
		Description: "Return the current date and time in RFC 3339 format",
		Parameters: []Parameter{
			{Name: "timezone", ParamType: "string", Description: "IANA zone such as Europe/Berlin; defaults to UTC", Required: false},
		},
	}
}

// Call returns the formatted time.
func (t *CurrentTimeTool) Call(ctx context.Context, call Call) (Result, error) {
	loc := time.UTC
	if name := stringParam(call.Params, "timezone"); name != "" {
		l, err := time.LoadLocation(name)
		if err != nil {
			return Result{}, fmt.Errorf("unknown timezone %q", name)
		}
		loc = l
	}
	return TextResult(t.now().In(loc).Format(time.RFC3339)), nil
}

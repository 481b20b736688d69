// Package tools provides the function system for agents.
//
// Information Hiding:
// - Function execution details hidden behind interface
// - Parameter schemas hidden in implementations
// - Registry implementation details hidden from consumers
// - Panics and timeouts converted to results per function
package tools

import (
	"context"
	"fmt"

	"github.com/ElectronicaGitHub/agented-io/model"
)

// Parameter documents one parameter of a function.
type Parameter struct {
	Name        string `json:"name"`
	ParamType   string `json:"param_type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Metadata describes what a function does and how to call it.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// String returns a string representation of the metadata.
func (m Metadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// ParamDocs returns the parameters keyed by name, in the form shown to
// backends as "paramsToPass".
func (m Metadata) ParamDocs() map[string]any {
	if len(m.Parameters) == 0 {
		return nil
	}
	docs := make(map[string]any, len(m.Parameters))
	for _, p := range m.Parameters {
		req := "optional"
		if p.Required {
			req = "required"
		}
		docs[p.Name] = fmt.Sprintf("%s, %s: %s", p.ParamType, req, p.Description)
	}
	return docs
}

// Call is the input of one function invocation.
type Call struct {
	// Params are the parameters chosen by the backend. Empty when the
	// function is called with the agent context only.
	Params map[string]any
	// Context is a copy of the calling agent's context.
	Context model.Context
}

// HasParams reports whether the backend passed any parameters.
func (c Call) HasParams() bool {
	return len(c.Params) > 0
}

// Result is the output of a function.
type Result struct {
	Text string
	// Commands are side-effect descriptors for the host application. They
	// are recorded separately and never shown to the backend.
	Commands []model.Command
	// ContextUpdates are merged into the calling agent's context.
	ContextUpdates map[string]any
}

// TextResult creates a plain text result.
func TextResult(text string) Result {
	return Result{Text: text}
}

// Function is the interface every callable function implements.
type Function interface {
	// Metadata returns the function metadata (name, description, parameters).
	Metadata() Metadata

	// Call runs the function. Implementations should return when ctx is done.
	Call(ctx context.Context, call Call) (Result, error)
}

// FuncTool adapts a plain Go function to the Function interface.
type FuncTool struct {
	Meta Metadata
	Fn   func(ctx context.Context, call Call) (Result, error)
}

// NewFunc wraps fn as a Function.
func NewFunc(meta Metadata, fn func(ctx context.Context, call Call) (Result, error)) *FuncTool {
	return &FuncTool{Meta: meta, Fn: fn}
}

// Metadata returns the function metadata.
func (f *FuncTool) Metadata() Metadata { return f.Meta }

// Call invokes the wrapped function.
func (f *FuncTool) Call(ctx context.Context, call Call) (Result, error) {
	return f.Fn(ctx, call)
}

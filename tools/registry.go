// Package tools provides function management and registration.
//
// Information Hiding:
// - Function storage and lookup implementation hidden
// - Registration and discovery mechanisms abstracted

package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry manages available functions with dynamic registration.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Function
}

// NewRegistry creates a new empty function registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]Function),
	}
}

// Register adds functions to the registry.
// Returns error if a function with the same name already exists.
func (r *Registry) Register(fns ...Function) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fn := range fns {
		name := fn.Metadata().Name
		if name == "" {
			return fmt.Errorf("function without name")
		}
		if _, exists := r.funcs[name]; exists {
			return fmt.Errorf("function '%s' already registered", name)
		}
		r.funcs[name] = fn
	}
	return nil
}

// Get returns a function by name.
func (r *Registry) Get(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, exists := r.funcs[name]
	return fn, exists
}

// Has checks if a function exists in the registry.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.funcs[name]
	return exists
}

// Names returns all registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns metadata for all registered functions, sorted by name.
func (r *Registry) List() []Metadata {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata := make([]Metadata, 0, len(names))
	for _, name := range names {
		metadata = append(metadata, r.funcs[name].Metadata())
	}
	return metadata
}

// Subset returns a registry holding only the named functions.
// Returns error if any name is not registered.
func (r *Registry) Subset(names []string) (*Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub := NewRegistry()
	var missing []string
	for _, name := range names {
		fn, ok := r.funcs[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		sub.funcs[name] = fn
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown functions: %s", strings.Join(missing, ", "))
	}
	return sub, nil
}

// Description returns a formatted description of all functions.
func (r *Registry) Description() string {
	var descriptions []string
	for _, meta := range r.List() {
		var params []string
		for _, p := range meta.Parameters {
			required := "optional"
			if p.Required {
				required = "required"
			}
			params = append(params, fmt.Sprintf("  - %s (%s): %s [%s]",
				p.Name, p.ParamType, p.Description, required))
		}

		paramStr := strings.Join(params, "\n")
		descriptions = append(descriptions, fmt.Sprintf(
			"Function: %s\nDescription: %s\nParameters:\n%s",
			meta.Name, meta.Description, paramStr))
	}

	return strings.Join(descriptions, "\n\n")
}

// Default timeout for builtin functions.
const DefaultFunctionTimeout = 30 // seconds

// WithDefaults creates a registry with the builtin functions.
// Returns error if any registration fails.
func WithDefaults() (*Registry, error) {
	registry := NewRegistry()

	if err := registry.Register(
		NewHTTPTool(DefaultFunctionTimeout),
		NewCurrentTimeTool(),
	); err != nil {
		return nil, fmt.Errorf("failed to register default functions: %w", err)
	}

	return registry, nil
}

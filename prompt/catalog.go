package prompt

import (
	"encoding/json"
)

// FunctionSpec describes a callable function in a prompt catalog.
type FunctionSpec struct {
	Name        string
	Description string
	// Params documents the parameters the backend should pass, keyed by name.
	Params map[string]any
}

// ChildSpec describes a child agent in a prompt catalog.
type ChildSpec struct {
	Name      string
	Prompt    string
	Functions []FunctionSpec
}

type functionEntry struct {
	Type         string         `json:"type"`
	FunctionName string         `json:"functionName"`
	Description  string         `json:"description"`
	ParamsToPass map[string]any `json:"paramsToPass"`
}

type childFunctionEntry struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type childEntry struct {
	Type           string               `json:"type"`
	Name           string               `json:"name"`
	Prompt         string               `json:"prompt"`
	ChildFunctions []childFunctionEntry `json:"childFunctions"`
}

// FunctionCatalog renders fns as the JSON array shown to the backend.
func FunctionCatalog(fns []FunctionSpec) string {
	entries := make([]functionEntry, 0, len(fns))
	for _, fn := range fns {
		params := fn.Params
		if params == nil {
			params = map[string]any{}
		}
		entries = append(entries, functionEntry{
			Type:         "function",
			FunctionName: fn.Name,
			Description:  fn.Description,
			ParamsToPass: params,
		})
	}
	return marshalCatalog(entries)
}

// ChildCatalog renders children as the JSON array shown to the backend.
func ChildCatalog(children []ChildSpec) string {
	entries := make([]childEntry, 0, len(children))
	for _, c := range children {
		fns := make([]childFunctionEntry, 0, len(c.Functions))
		for _, fn := range c.Functions {
			fns = append(fns, childFunctionEntry{Type: "function", Name: fn.Name, Description: fn.Description})
		}
		entries = append(entries, childEntry{
			Type:           "agent",
			Name:           c.Name,
			Prompt:         c.Prompt,
			ChildFunctions: fns,
		})
	}
	return marshalCatalog(entries)
}

func marshalCatalog(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		// Unencodable params render as an empty catalog.
		return "[]"
	}
	return string(data)
}

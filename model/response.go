package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action is one step requested by the model. Exactly the fields for its
// Type are meaningful.
type Action struct {
	Type ResponseType `json:"type"`

	// ResponseText
	Text string `json:"text,omitempty"`

	// ResponseFunction
	FunctionName string         `json:"functionName,omitempty"`
	ParamsToPass map[string]any `json:"paramsToPass,omitempty"`

	// ResponseAgent
	Name                string `json:"name,omitempty"`
	SpecialInstructions string `json:"specialInstructions,omitempty"`
}

// UnifiedResponse is the structured reply every backend call must produce.
type UnifiedResponse struct {
	Actions     []Action `json:"actions"`
	Finished    bool     `json:"finished"`
	Explanation string   `json:"explanation,omitempty"`
}

// TextActions returns the text actions in order.
func (r UnifiedResponse) TextActions() []Action { return r.filter(ResponseText) }

// FunctionActions returns the function actions in order.
func (r UnifiedResponse) FunctionActions() []Action { return r.filter(ResponseFunction) }

// AgentActions returns the agent actions in order.
func (r UnifiedResponse) AgentActions() []Action { return r.filter(ResponseAgent) }

func (r UnifiedResponse) filter(t ResponseType) []Action {
	var out []Action
	for _, a := range r.Actions {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// ErrMalformedResponse is wrapped by every DecodeResponse failure.
var ErrMalformedResponse = errors.New("malformed response")

// DecodeResponse converts a parsed JSON value into a UnifiedResponse.
//
// Accepted shapes:
//   - {"actions": [...], "finished": bool, "explanation": "..."}
//   - a bare array of function calls (legacy), treated as finished=false
//   - a single legacy action object carrying "type", with "finished"
//     read from the same object
func DecodeResponse(v any) (UnifiedResponse, error) {
	switch t := v.(type) {
	case map[string]any:
		if _, ok := t["actions"]; ok {
			return decodeUnified(t)
		}
		if _, ok := t["type"]; ok {
			return decodeLegacyObject(t)
		}
		return UnifiedResponse{}, fmt.Errorf("%w: object has neither actions nor type", ErrMalformedResponse)
	case []any:
		return decodeLegacyArray(t)
	default:
		return UnifiedResponse{}, fmt.Errorf("%w: unexpected %T", ErrMalformedResponse, v)
	}
}

func decodeUnified(obj map[string]any) (UnifiedResponse, error) {
	var resp UnifiedResponse
	if err := remarshal(obj, &resp); err != nil {
		return UnifiedResponse{}, err
	}
	if _, ok := obj["actions"].([]any); !ok {
		return UnifiedResponse{}, fmt.Errorf("%w: actions is not a list", ErrMalformedResponse)
	}
	if f, ok := obj["finished"]; ok {
		if _, isBool := f.(bool); !isBool {
			return UnifiedResponse{}, fmt.Errorf("%w: finished is not a boolean", ErrMalformedResponse)
		}
	}
	for i, a := range resp.Actions {
		if err := validateAction(a); err != nil {
			return UnifiedResponse{}, fmt.Errorf("action %d: %w", i, err)
		}
	}
	return resp, nil
}

func decodeLegacyArray(items []any) (UnifiedResponse, error) {
	resp := UnifiedResponse{Actions: make([]Action, 0, len(items))}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return UnifiedResponse{}, fmt.Errorf("%w: element %d is %T", ErrMalformedResponse, i, item)
		}
		var a Action
		if err := remarshal(obj, &a); err != nil {
			return UnifiedResponse{}, err
		}
		if a.Type == "" || a.Type == ResponseMultipleFunctions {
			a.Type = ResponseFunction
		}
		if err := validateAction(a); err != nil {
			return UnifiedResponse{}, fmt.Errorf("element %d: %w", i, err)
		}
		resp.Actions = append(resp.Actions, a)
	}
	return resp, nil
}

func decodeLegacyObject(obj map[string]any) (UnifiedResponse, error) {
	var legacy struct {
		Action
		Finished    bool     `json:"finished"`
		Explanation string   `json:"explanation"`
		Functions   []Action `json:"functions"`
	}
	if err := remarshal(obj, &legacy); err != nil {
		return UnifiedResponse{}, err
	}

	resp := UnifiedResponse{Finished: legacy.Finished, Explanation: legacy.Explanation}
	if legacy.Type == ResponseMultipleFunctions {
		for _, fn := range legacy.Functions {
			fn.Type = ResponseFunction
			resp.Actions = append(resp.Actions, fn)
		}
	} else {
		resp.Actions = []Action{legacy.Action}
	}
	for i, a := range resp.Actions {
		if err := validateAction(a); err != nil {
			return UnifiedResponse{}, fmt.Errorf("action %d: %w", i, err)
		}
	}
	return resp, nil
}

func validateAction(a Action) error {
	switch a.Type {
	case ResponseText:
		return nil
	case ResponseFunction:
		if a.FunctionName == "" {
			return fmt.Errorf("%w: function action without functionName", ErrMalformedResponse)
		}
	case ResponseAgent:
		if a.Name == "" {
			return fmt.Errorf("%w: agent action without name", ErrMalformedResponse)
		}
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrMalformedResponse, a.Type)
	}
	return nil
}

func remarshal(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

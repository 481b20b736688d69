// Package json provides JSON extraction utilities for parsing LLM responses.
//
// LLMs often return JSON embedded in text, wrapped in markdown fences or
// slightly malformed. Parse tries progressively more forgiving strategies:
// 1. Strict parse of the whole reply
// 2. First fenced code block, repaired
// 3. First object/array span, repaired
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
)

var (
	fencedBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")
	jsonSpanRe    = regexp.MustCompile(`(\[[\s\S]*\]|\{[\s\S]*\})`)
)

// ErrNoJSON is returned when no strategy yields a JSON value.
var ErrNoJSON = errors.New("no JSON value found in response")

// Parse extracts a JSON value from an LLM reply.
//
// A reply that is itself a JSON string is unwrapped and searched for a
// fenced block. The returned value is whatever encoding/json produces for
// an untyped target (map[string]any, []any, ...).
func Parse(response string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(response), &v); err == nil {
		if s, ok := v.(string); ok {
			if fenced, ok := parseFenced(s); ok {
				return fenced, nil
			}
			return nil, fmt.Errorf("%w: %q", ErrNoJSON, preview(response))
		}
		if v != nil {
			return v, nil
		}
	}

	if fenced, ok := parseFenced(response); ok {
		return fenced, nil
	}

	if span := jsonSpanRe.FindString(response); span != "" {
		if v, err := repairAndParse(span); err == nil {
			return v, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrNoJSON, preview(response))
}

// Decode parses response and converts the result into T.
func Decode[T any](response string) (T, error) {
	var result T
	v, err := Parse(response)
	if err != nil {
		return result, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return result, fmt.Errorf("failed to re-encode JSON: %w", err)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// Repair fixes common LLM JSON defects (trailing commas, single quotes,
// unquoted keys, truncated brackets).
func Repair(s string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(s)
	if err != nil {
		return "", fmt.Errorf("failed to repair JSON: %w", err)
	}
	return repaired, nil
}

func parseFenced(s string) (any, bool) {
	match := fencedBlockRe.FindStringSubmatch(s)
	if match == nil {
		return nil, false
	}
	v, err := repairAndParse(strings.TrimSpace(match[1]))
	if err != nil {
		return nil, false
	}
	return v, true
}

func repairAndParse(s string) (any, error) {
	repaired, err := Repair(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, fmt.Errorf("failed to parse repaired JSON: %w", err)
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, nil
	default:
		return nil, ErrNoJSON
	}
}

func preview(s string) string {
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}

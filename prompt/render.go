// Package prompt assembles and renders the prompts agents send to backends.
//
// Rendering happens in two passes. Static placeholders (name, catalogs and
// instructions) are filled once when an agent is built; dynamic ones
// (history, last input, mixins, children status) before every request.
package prompt

import (
	"sort"
	"strings"
)

// Placeholders understood by Render.
const (
	AgentName                 = "{{agent_name}}"
	Functions                 = "{{functions}}"
	Children                  = "{{children}}"
	SpecialInstructions       = "{{special_instructions}}"
	ParentSpecialInstructions = "{{parent_agent_special_instructions}}"
	ChatHistory               = "{{chat_history}}"
	LastInput                 = "{{last_input}}"
	MixinsResult              = "{{mixins_result}}"
	ChildrenStatus            = "{{children_status}}"
)

// Vars maps placeholders to their replacement. Placeholders absent from the
// map are left untouched so a later pass can fill them.
type Vars map[string]string

// StaticVars holds the values known when an agent is built.
type StaticVars struct {
	AgentName                 string
	Functions                 []FunctionSpec
	Children                  []ChildSpec
	SpecialInstructions       string
	ParentSpecialInstructions string
}

// Vars converts s into replacements for Render.
func (s StaticVars) Vars() Vars {
	return Vars{
		AgentName:                 s.AgentName,
		Functions:                 FunctionCatalog(s.Functions),
		Children:                  ChildCatalog(s.Children),
		SpecialInstructions:       s.SpecialInstructions,
		ParentSpecialInstructions: s.ParentSpecialInstructions,
	}
}

// DynamicVars holds the values that change between requests.
type DynamicVars struct {
	ChatHistory    string
	LastInput      string
	MixinsResult   string
	ChildrenStatus string
}

// Vars converts d into replacements for Render.
func (d DynamicVars) Vars() Vars {
	return Vars{
		ChatHistory:    d.ChatHistory,
		LastInput:      d.LastInput,
		MixinsResult:   d.MixinsResult,
		ChildrenStatus: d.ChildrenStatus,
	}
}

// Render replaces every occurrence of each placeholder in vars. Replacement
// values are never rescanned, so user text containing placeholders is safe.
func Render(base string, vars Vars) string {
	if !strings.Contains(base, "{{") || len(vars) == 0 {
		return base
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(base)
}

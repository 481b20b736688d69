// Package llm provides shared data models for LLM providers.
package llm

import "strings"

// PromptSeparator splits a rendered prompt into its cacheable prefix and
// per-request suffix.
const PromptSeparator = "++++dynamic_prompt_separator++++"

// SplitPrompt is a prompt divided into a stable prefix that providers may
// cache and a dynamic suffix that changes on every request.
type SplitPrompt struct {
	Cacheable    string
	NonCacheable string
}

// Split divides a rendered prompt at the first PromptSeparator. A prompt
// without the separator is entirely cacheable.
func Split(rendered string) SplitPrompt {
	cacheable, nonCacheable, _ := strings.Cut(rendered, PromptSeparator)
	return SplitPrompt{Cacheable: cacheable, NonCacheable: nonCacheable}
}

// Full returns both parts joined for providers without prompt caching.
func (p SplitPrompt) Full() string {
	if p.NonCacheable == "" {
		return p.Cacheable
	}
	return p.Cacheable + "\n" + p.NonCacheable
}

// userText is the user turn sent alongside the cacheable system block.
func (p SplitPrompt) userText() string {
	if strings.TrimSpace(p.NonCacheable) == "" {
		return p.Cacheable
	}
	return p.NonCacheable
}

// Result is the raw outcome of a single provider call.
type Result struct {
	Text string
	// HTTPStatus is set by providers that report a status without failing.
	HTTPStatus int
	Usage      *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
	CachedTokens     uint32
}

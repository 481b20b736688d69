// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Prompt caching support (or its absence)
//
// Fallback, timeouts and response parsing live in Processor, not in
// individual providers.

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the default model being used.
	Model() string

	// SendChatMessage sends a single-turn request. An empty model means the
	// provider default. Transport failures are returned as errors; the
	// provider's HTTP status, when known, is recoverable from the error.
	SendChatMessage(ctx context.Context, prompt SplitPrompt, model string) (Result, error)
}

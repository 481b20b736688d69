// Google Gemini Provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for Gemini API
// - Cacheable prompt sent as system instruction (implicit caching)
// - JSON output requested through the response MIME type

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	initErr     error // Stores client initialization error for deferred reporting
}

// NewGeminiProvider creates a new Gemini provider.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return &GeminiProvider{
			model:       model,
			maxTokens:   int32(maxTokens),
			temperature: temperature,
			initErr:     fmt.Errorf("failed to initialize Gemini client: %w", err),
		}
	}

	return &GeminiProvider{
		client:      client,
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the current model.
func (p *GeminiProvider) Model() string {
	return p.model
}

// SendChatMessage sends a generate-content request.
func (p *GeminiProvider) SendChatMessage(ctx context.Context, prompt SplitPrompt, model string) (Result, error) {
	if p.initErr != nil {
		return Result{}, p.initErr
	}
	if p.client == nil {
		return Result{}, fmt.Errorf("gemini client not initialized")
	}
	if model == "" {
		model = p.model
	}

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(p.temperature),
		MaxOutputTokens:   p.maxTokens,
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(prompt.Cacheable, genai.RoleUser),
	}
	contents := []*genai.Content{
		genai.NewContentFromText(prompt.userText(), genai.RoleUser),
	}

	response, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return Result{}, fmt.Errorf("chat completion failed: %w", err)
	}

	var usage *TokenUsage
	if response.UsageMetadata != nil {
		usage = &TokenUsage{
			PromptTokens:     uint32(response.UsageMetadata.PromptTokenCount),
			CompletionTokens: uint32(response.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      uint32(response.UsageMetadata.TotalTokenCount),
			CachedTokens:     uint32(response.UsageMetadata.CachedContentTokenCount),
		}
	}

	return Result{Text: response.Text(), Usage: usage}, nil
}

// Verify GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)

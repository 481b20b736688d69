// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions API
// - OpenAI caches long identical prefixes automatically, so the cacheable
//   part is simply sent first as the system message

package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// SendChatMessage sends a chat completion request in JSON object mode.
func (p *OpenAIProvider) SendChatMessage(ctx context.Context, prompt SplitPrompt, model string) (Result, error) {
	if model == "" {
		model = p.model
	}

	req := openai.ChatCompletionRequest{
		Model:               model,
		Messages:            splitPromptMessages(prompt),
		MaxCompletionTokens: p.maxTokens,
		Temperature:         p.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("chat completion failed: %w", err)
	}
	return chatCompletionResult(resp), nil
}

// splitPromptMessages maps a split prompt onto a system + user exchange.
// Shared by every OpenAI-compatible provider.
func splitPromptMessages(prompt SplitPrompt) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt.Cacheable},
		{Role: openai.ChatMessageRoleUser, Content: prompt.userText()},
	}
}

func chatCompletionResult(resp openai.ChatCompletionResponse) Result {
	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}
	if resp.Usage.PromptTokensDetails != nil {
		usage.CachedTokens = uint32(resp.Usage.PromptTokensDetails.CachedTokens)
	}

	return Result{Text: content, Usage: usage}
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)

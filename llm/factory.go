package llm

import (
	"fmt"
	"os"
	"strings"
)

// ProviderType identifies a supported backend.
type ProviderType int

const (
	ProviderOpenAI ProviderType = iota
	ProviderAnthropic
	ProviderDeepSeek
	ProviderGemini
)

// providerTypes is the order AvailableFromEnv checks keys in.
var providerTypes = []ProviderType{ProviderAnthropic, ProviderOpenAI, ProviderDeepSeek, ProviderGemini}

type providerInfo struct {
	name    string
	aliases []string
	envVar  string
	model   string
	build   func(apiKey, model string, maxTokens uint32, temperature float32) Provider
}

var providerTable = map[ProviderType]providerInfo{
	ProviderOpenAI: {
		name: "openai", aliases: []string{"gpt"}, envVar: "OPENAI_API_KEY", model: "gpt-4o",
		build: func(k, m string, n uint32, t float32) Provider { return NewOpenAIProvider(k, m, n, t) },
	},
	ProviderAnthropic: {
		name: "anthropic", aliases: []string{"claude"}, envVar: "ANTHROPIC_API_KEY", model: "claude-sonnet-4-20250514",
		build: func(k, m string, n uint32, t float32) Provider { return NewAnthropicProvider(k, m, n, t) },
	},
	ProviderDeepSeek: {
		name: "deepseek", envVar: "DEEPSEEK_API_KEY", model: "deepseek-chat",
		build: func(k, m string, n uint32, t float32) Provider { return NewDeepSeekProvider(k, m, n, t) },
	},
	ProviderGemini: {
		name: "gemini", aliases: []string{"google"}, envVar: "GEMINI_API_KEY", model: "gemini-2.5-flash",
		build: func(k, m string, n uint32, t float32) Provider { return NewGeminiProvider(k, m, n, t) },
	},
}

func (p ProviderType) String() string {
	if info, ok := providerTable[p]; ok {
		return info.name
	}
	return "unknown"
}

// EnvVar returns the environment variable holding the provider's API key.
func (p ProviderType) EnvVar() string { return providerTable[p].envVar }

// ParseProviderType accepts a provider name or alias, case-insensitively.
func ParseProviderType(s string) (ProviderType, error) {
	s = strings.ToLower(s)
	for _, pt := range providerTypes {
		info := providerTable[pt]
		if s == info.name {
			return pt, nil
		}
		for _, alias := range info.aliases {
			if s == alias {
				return pt, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown provider: %s", s)
}

// ProviderOptions configures one provider. Zero values select defaults.
type ProviderOptions struct {
	Model       string
	MaxTokens   uint32
	Temperature *float32
}

// New builds a provider of type p.
func (p ProviderType) New(apiKey string, opts ProviderOptions) (Provider, error) {
	info, ok := providerTable[p]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %v", p)
	}
	model := opts.Model
	if model == "" {
		model = info.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4000
	}
	temperature := float32(0.7)
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	return info.build(apiKey, model, maxTokens, temperature), nil
}

// BuildOptions are shared by every provider built through AvailableFromEnv.
type BuildOptions struct {
	// Models overrides the default model per provider name.
	Models      map[string]string
	MaxTokens   uint32
	Temperature *float32
}

// AvailableFromEnv builds every provider whose API key is set, keyed by
// provider name.
func AvailableFromEnv(opts BuildOptions) map[string]Provider {
	out := make(map[string]Provider)
	for _, pt := range providerTypes {
		key := os.Getenv(pt.EnvVar())
		if key == "" {
			continue
		}
		p, err := pt.New(key, ProviderOptions{
			Model:       opts.Models[pt.String()],
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		})
		if err != nil {
			continue
		}
		out[pt.String()] = p
	}
	return out
}

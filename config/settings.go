// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup
//
// Settings are plain values. They are built once per session and passed
// down explicitly; nothing in the module reads the environment after that.

package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	LLM   LLMConfig
	Agent AgentConfig
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	// Provider is the initial sticky provider.
	Provider    string
	Model       string
	MaxTokens   uint32
	Temperature float64
	// Models holds the resolved model for every supported provider.
	Models map[string]string
	// Substitutes is the fallback chain per provider.
	Substitutes   map[string][]string
	ResultTimeout time.Duration
	StopStatuses  []int
	LogPrompt     bool
	LogResponse   bool
}

// AgentConfig holds agent execution configuration.
type AgentConfig struct {
	// WorkTimeout bounds time spent in WORKING.
	WorkTimeout time.Duration
	// PingInterval is the period of child ping loops.
	PingInterval time.Duration
	// FunctionsTimeout bounds one concurrent function cohort.
	FunctionsTimeout time.Duration
	// MaxParallelFunctions limits cohort concurrency; 0 means unlimited.
	MaxParallelFunctions int
	// MaxFlowLength is the loop guard: items allowed before a finished reply.
	MaxFlowLength int
	// MaxRetries is the number of backend attempts per item.
	MaxRetries      int
	RetryDelay      time.Duration
	RetryMultiplier float64
	// HistoryWindow is the number of messages kept per (parent, child) pair.
	HistoryWindow int
	// RecordErrors appends failure messages to history.
	RecordErrors bool
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
	substitute   string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY", "anthropic"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY", "deepseek"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY", "openai"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY", "anthropic"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// DefaultProvider is used when LLM_PROVIDER is unset.
const DefaultProvider = "anthropic"

// DefaultAgentConfig returns the agent defaults without reading the environment.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		WorkTimeout:          60 * time.Second,
		PingInterval:         10 * time.Second,
		FunctionsTimeout:     10 * time.Second,
		MaxParallelFunctions: 0,
		MaxFlowLength:        5,
		MaxRetries:           3,
		RetryDelay:           time.Second,
		RetryMultiplier:      1.5,
		HistoryWindow:        15,
		RecordErrors:         true,
	}
}

// FromEnv creates settings for the provider named by LLM_PROVIDER.
func FromEnv() (Settings, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = DefaultProvider
	}
	return New(provider)
}

// New creates settings for the specified provider, loading values from environment variables.
// Returns an error if the provider is unknown or environment variables contain invalid values.
func New(provider string) (Settings, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	llm, err := loadLLMConfig(provider, info)
	if err != nil {
		return Settings{}, err
	}

	agent, err := loadAgentConfig()
	if err != nil {
		return Settings{}, err
	}

	return Settings{LLM: llm, Agent: agent}, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

func loadLLMConfig(provider string, info providerInfo) (LLMConfig, error) {
	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4000)
	if err != nil {
		return LLMConfig{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return LLMConfig{}, err
	}

	timeout, err := getEnvMillis("LLM_RESULT_TIMEOUT_MS", 30*time.Second)
	if err != nil {
		return LLMConfig{}, err
	}

	stopStatuses, err := getEnvIntList("LLM_STOP_STATUSES", []int{402, 429})
	if err != nil {
		return LLMConfig{}, err
	}

	logPrompt, err := getEnvBool("LOG_PROMPT", false)
	if err != nil {
		return LLMConfig{}, err
	}

	logResponse, err := getEnvBool("LOG_RESPONSE", false)
	if err != nil {
		return LLMConfig{}, err
	}

	models := make(map[string]string, len(providers))
	substitutes := make(map[string][]string, len(providers))
	for name, pi := range providers {
		models[name] = envOr(pi.modelEnv, pi.defaultModel)

		key := "LLM_CONNECTORS_SUBSTITUTE_" + strings.ToUpper(name)
		chain := getEnvList(key, []string{pi.substitute})
		for i, s := range chain {
			chain[i] = normalizeProvider(s)
			if _, ok := providers[chain[i]]; !ok {
				return LLMConfig{}, fmt.Errorf("invalid value for %s: unknown provider %q", key, s)
			}
		}
		substitutes[name] = chain
	}

	return LLMConfig{
		Provider:      provider,
		Model:         models[provider],
		MaxTokens:     maxTokens,
		Temperature:   temperature,
		Models:        models,
		Substitutes:   substitutes,
		ResultTimeout: timeout,
		StopStatuses:  stopStatuses,
		LogPrompt:     logPrompt,
		LogResponse:   logResponse,
	}, nil
}

func loadAgentConfig() (AgentConfig, error) {
	cfg := DefaultAgentConfig()
	var err error

	if cfg.WorkTimeout, err = getEnvMillis("DEFAULT_WORK_TIMEOUT", cfg.WorkTimeout); err != nil {
		return AgentConfig{}, err
	}
	if cfg.PingInterval, err = getEnvMillis("DEFAULT_PING_INTERVAL", cfg.PingInterval); err != nil {
		return AgentConfig{}, err
	}
	if cfg.FunctionsTimeout, err = getEnvMillis("MULTIPLE_FUNCTIONS_TIMEOUT", cfg.FunctionsTimeout); err != nil {
		return AgentConfig{}, err
	}
	if cfg.MaxParallelFunctions, err = getEnvInt("MAX_PARALLEL_FUNCTIONS", cfg.MaxParallelFunctions); err != nil {
		return AgentConfig{}, err
	}
	if cfg.MaxFlowLength, err = getEnvInt("MAX_NUMBER_OF_TRIES_IN_FLOW", cfg.MaxFlowLength); err != nil {
		return AgentConfig{}, err
	}
	if cfg.MaxRetries, err = getEnvInt("MAX_RETRY_COUNT", cfg.MaxRetries); err != nil {
		return AgentConfig{}, err
	}
	if cfg.RetryDelay, err = getEnvMillis("LLM_RETRY_DELAY_MS", cfg.RetryDelay); err != nil {
		return AgentConfig{}, err
	}
	if cfg.RetryMultiplier, err = getEnvFloat64("RETRY_BACKOFF_MULTIPLIER", cfg.RetryMultiplier); err != nil {
		return AgentConfig{}, err
	}
	if cfg.HistoryWindow, err = getEnvInt("PROMPT_LAST_MESSAGES_N", cfg.HistoryWindow); err != nil {
		return AgentConfig{}, err
	}
	if cfg.RecordErrors, err = getEnvBool("RECORD_ERRORS_IN_HISTORY", cfg.RecordErrors); err != nil {
		return AgentConfig{}, err
	}

	if cfg.MaxFlowLength < 1 {
		return AgentConfig{}, fmt.Errorf("MAX_NUMBER_OF_TRIES_IN_FLOW must be positive, got %d", cfg.MaxFlowLength)
	}
	if cfg.MaxRetries < 1 {
		return AgentConfig{}, fmt.Errorf("MAX_RETRY_COUNT must be positive, got %d", cfg.MaxRetries)
	}
	if cfg.HistoryWindow < 1 {
		return AgentConfig{}, fmt.Errorf("PROMPT_LAST_MESSAGES_N must be positive, got %d", cfg.HistoryWindow)
	}
	return cfg, nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// NormalizeProvider converts provider aliases to canonical names.
func NormalizeProvider(provider string) string {
	return normalizeProvider(provider)
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}
	return envOr(info.modelEnv, info.defaultModel), nil
}

// SupportedProviders returns the sorted list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	slices.Sort(result)
	return result
}

// Environment variable helpers with proper error handling

func envOr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return b, nil
}

// getEnvMillis reads an integer number of milliseconds.
func getEnvMillis(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	if ms < 0 {
		return 0, fmt.Errorf("invalid value for %s: %q: must not be negative", key, val)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return slices.Clone(defaultVal)
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvIntList(key string, defaultVal []int) ([]int, error) {
	val := os.Getenv(key)
	if val == "" {
		return slices.Clone(defaultVal), nil
	}
	var out []int
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
		}
		out = append(out, i)
	}
	return out, nil
}

package config

import (
	"os"
	"slices"
	"testing"
	"time"
)

func TestNewValidProvider(t *testing.T) {
	settings, err := New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", settings.LLM.Provider)
	}
}

func TestNewWithAlias(t *testing.T) {
	settings, err := New("claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLM.Provider)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("unknown_provider")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFromEnvDefaultsToAnthropic(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	settings, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != DefaultProvider {
		t.Errorf("expected provider %q, got %q", DefaultProvider, settings.LLM.Provider)
	}
}

func TestDefaults(t *testing.T) {
	for _, key := range []string{
		"LLM_RESULT_TIMEOUT_MS", "LLM_STOP_STATUSES", "DEFAULT_WORK_TIMEOUT", "DEFAULT_PING_INTERVAL",
		"MULTIPLE_FUNCTIONS_TIMEOUT", "MAX_NUMBER_OF_TRIES_IN_FLOW", "MAX_RETRY_COUNT",
		"LLM_RETRY_DELAY_MS", "PROMPT_LAST_MESSAGES_N", "RECORD_ERRORS_IN_HISTORY",
		"MAX_PARALLEL_FUNCTIONS", "RETRY_BACKOFF_MULTIPLIER",
		"LLM_CONNECTORS_SUBSTITUTE_ANTHROPIC", "LLM_CONNECTORS_SUBSTITUTE_OPENAI",
	} {
		t.Setenv(key, "")
	}

	settings, err := New("anthropic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.LLM.ResultTimeout != 30*time.Second {
		t.Errorf("expected 30s result timeout, got %v", settings.LLM.ResultTimeout)
	}
	if !slices.Equal(settings.LLM.StopStatuses, []int{402, 429}) {
		t.Errorf("unexpected stop statuses: %v", settings.LLM.StopStatuses)
	}
	if !slices.Equal(settings.LLM.Substitutes["anthropic"], []string{"deepseek"}) {
		t.Errorf("unexpected anthropic substitutes: %v", settings.LLM.Substitutes["anthropic"])
	}
	if !slices.Equal(settings.LLM.Substitutes["openai"], []string{"anthropic"}) {
		t.Errorf("unexpected openai substitutes: %v", settings.LLM.Substitutes["openai"])
	}
	if settings.Agent != DefaultAgentConfig() {
		t.Errorf("agent config differs from defaults: %+v", settings.Agent)
	}
}

func TestAgentOverrides(t *testing.T) {
	t.Setenv("DEFAULT_WORK_TIMEOUT", "1500")
	t.Setenv("MAX_NUMBER_OF_TRIES_IN_FLOW", "9")
	t.Setenv("RECORD_ERRORS_IN_HISTORY", "false")
	t.Setenv("LLM_CONNECTORS_SUBSTITUTE_ANTHROPIC", "openai, gemini")
	t.Setenv("LLM_STOP_STATUSES", "429")

	settings, err := New("anthropic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Agent.WorkTimeout != 1500*time.Millisecond {
		t.Errorf("expected 1.5s work timeout, got %v", settings.Agent.WorkTimeout)
	}
	if settings.Agent.MaxFlowLength != 9 {
		t.Errorf("expected flow length 9, got %d", settings.Agent.MaxFlowLength)
	}
	if settings.Agent.RecordErrors {
		t.Error("expected RecordErrors to be false")
	}
	if !slices.Equal(settings.LLM.Substitutes["anthropic"], []string{"openai", "gemini"}) {
		t.Errorf("unexpected substitutes: %v", settings.LLM.Substitutes["anthropic"])
	}
	if !slices.Equal(settings.LLM.StopStatuses, []int{429}) {
		t.Errorf("unexpected stop statuses: %v", settings.LLM.StopStatuses)
	}
}

func TestInvalidEnvVars(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"LLM_MAX_TOKENS", "not-a-number"},
		{"LLM_RESULT_TIMEOUT_MS", "soon"},
		{"DEFAULT_PING_INTERVAL", "-5"},
		{"LLM_STOP_STATUSES", "429,abc"},
		{"RECORD_ERRORS_IN_HISTORY", "maybe"},
		{"MAX_NUMBER_OF_TRIES_IN_FLOW", "0"},
		{"LLM_CONNECTORS_SUBSTITUTE_OPENAI", "grok"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := New("openai"); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestAPIKeyForValidProvider(t *testing.T) {
	original := os.Getenv("OPENAI_API_KEY")
	os.Setenv("OPENAI_API_KEY", "test-key")
	defer os.Setenv("OPENAI_API_KEY", original)

	key, err := APIKeyFor("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	original := os.Getenv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")
	defer os.Setenv("OPENAI_API_KEY", original)

	_, err := APIKeyFor("openai")
	if err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestAPIKeyForUnknownProvider(t *testing.T) {
	_, err := APIKeyFor("unknown")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestModelFor(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "")
	model, err := ModelFor("gpt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "gpt-4o" {
		t.Errorf("expected default model gpt-4o, got %q", model)
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for unknown provider")
		}
	}()
	MustNew("unknown_provider")
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	if !slices.Equal(providers, []string{"anthropic", "deepseek", "gemini", "openai"}) {
		t.Errorf("unexpected providers: %v", providers)
	}
}

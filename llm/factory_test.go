package llm

import "testing"

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		in   string
		want ProviderType
	}{
		{"openai", ProviderOpenAI},
		{"GPT", ProviderOpenAI},
		{"claude", ProviderAnthropic},
		{"DeepSeek", ProviderDeepSeek},
		{"google", ProviderGemini},
	}
	for _, tt := range tests {
		got, err := ParseProviderType(tt.in)
		if err != nil {
			t.Fatalf("ParseProviderType(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseProviderType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseProviderType("mistral"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestProviderTypeNewDefaultsModel(t *testing.T) {
	p, err := ProviderDeepSeek.New("key", ProviderOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Model() != "deepseek-chat" {
		t.Errorf("expected default model deepseek-chat, got %s", p.Model())
	}

	p, err = ProviderOpenAI.New("key", ProviderOptions{Model: "gpt-4.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Model() != "gpt-4.1" {
		t.Errorf("expected gpt-4.1, got %s", p.Model())
	}

	if _, err := ProviderType(99).New("key", ProviderOptions{}); err == nil {
		t.Error("expected error for unknown provider type")
	}
}

func TestAvailableFromEnvSkipsMissingKeys(t *testing.T) {
	for _, pt := range providerTypes {
		t.Setenv(pt.EnvVar(), "")
	}
	t.Setenv("GEMINI_API_KEY", "key")

	got := AvailableFromEnv(BuildOptions{Models: map[string]string{"gemini": "gemini-2.5-pro"}})
	if len(got) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(got))
	}
	if got["gemini"].Model() != "gemini-2.5-pro" {
		t.Errorf("expected model override, got %s", got["gemini"].Model())
	}
}

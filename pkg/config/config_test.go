package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SHRIMP_LLM_PROVIDER", "ollama")
	t.Setenv("OPENAI_MODEL", "llama3.2")
	t.Setenv("SHRIMP_MAX_SESSIONS", "3")
	t.Setenv("SHRIMP_COMMAND_TIMEOUT_MS", "5000")
	t.Setenv("OPENAI_ALLOWED_MODELS", "llama3.2, qwen3 ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "llama3.2", cfg.DefaultModel)
	assert.Equal(t, 3, cfg.MaxSessions)
	assert.Equal(t, int64(5000), cfg.CommandTimeout.Milliseconds())
	assert.Equal(t, []string{"llama3.2", "qwen3"}, cfg.AllowedModels)
}

func TestValidateRequiresProviderCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "openai"
	cfg.OpenAIAPIKey = ""
	require.ErrorContains(t, cfg.Validate(), "OPENAI_API_KEY")

	cfg.Provider = "gemini"
	require.ErrorContains(t, cfg.Validate(), "GEMINI_API_KEY")

	cfg.Provider = "ollama"
	require.NoError(t, cfg.Validate())

	cfg.Provider = "carrier-pigeon"
	require.ErrorContains(t, cfg.Validate(), "unknown LLM provider")
}

func TestResolveModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultModel = "gpt-4.1-mini"
	cfg.AllowedModels = []string{"gpt-4.1", "o4-mini"}

	assert.Equal(t, "gpt-4.1-mini", cfg.ResolveModel(""))
	assert.Equal(t, "gpt-4.1-mini", cfg.ResolveModel("gpt-4.1-mini"))
	assert.Equal(t, "gpt-4.1", cfg.ResolveModel("gpt-4.1"))
	// A model outside the allow-list silently falls back.
	assert.Equal(t, "gpt-4.1-mini", cfg.ResolveModel("gpt-5"))
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProvider_Precedence(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OPENAI_BASE_URL", "https://env.example.com/v1")

	file := LLMConfig{Model: "file-model", BaseURL: "https://file.example.com", APIKey: "file-key"}

	provider, err := BuildProvider(file, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "file-model", provider.GetModel())
	assert.Equal(t, "https://env.example.com/v1", provider.GetBaseURL())

	provider, err = BuildProvider(file, "cli-model", "https://cli.example.com/", "cli-key")
	require.NoError(t, err)
	assert.Equal(t, "cli-model", provider.GetModel())
	assert.Equal(t, "https://cli.example.com", provider.GetBaseURL())
}

func TestBuildProvider_FileFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	provider, err := BuildProvider(LLMConfig{APIKey: "file-key"}, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultLLMModel, provider.GetModel())
	assert.Equal(t, DefaultLLMBaseURL, provider.GetBaseURL())
}

func TestBuildProvider_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	_, err := BuildProvider(DefaultConfig().LLM, "", "", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

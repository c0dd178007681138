package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/entrhq/notepost/pkg/llm/openai"
)

// ErrNoAPIKey means no API key was found in flags, environment or file.
var ErrNoAPIKey = errors.New("API key is required. Set OPENAI_API_KEY environment variable, use -api-key flag, or configure llm.api_key in the config file")

// BuildProvider creates an LLM provider based on configuration precedence:
// CLI flags > Environment variables > Config file > Defaults
func BuildProvider(file LLMConfig, cliModel, cliBaseURL, cliAPIKey string) (*openai.Provider, error) {
	// Start with CLI values (empty strings if not provided)
	finalModel := cliModel
	finalBaseURL := cliBaseURL
	finalAPIKey := cliAPIKey

	// Fall back to environment variables if CLI values are empty
	if finalAPIKey == "" {
		finalAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if finalBaseURL == "" {
		finalBaseURL = os.Getenv("OPENAI_BASE_URL")
	}

	// Fall back to config file if still empty
	if finalModel == "" {
		finalModel = file.Model
	}
	if finalBaseURL == "" {
		finalBaseURL = file.BaseURL
	}
	if finalAPIKey == "" {
		finalAPIKey = file.APIKey
	}

	if finalModel == "" {
		finalModel = DefaultLLMModel
	}
	if finalBaseURL == "" {
		finalBaseURL = DefaultLLMBaseURL
	}

	if finalAPIKey == "" {
		return nil, ErrNoAPIKey
	}

	providerOpts := []openai.ProviderOption{
		openai.WithModel(finalModel),
		openai.WithBaseURL(finalBaseURL),
		openai.WithMaxTokens(file.MaxTokens),
	}
	if file.Temperature > 0 {
		providerOpts = append(providerOpts, openai.WithTemperature(file.Temperature))
	}

	provider, err := openai.NewProvider(finalAPIKey, providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	return provider, nil
}

package provider

import (
	"context"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/kbrag-go/internal/config"
)

// ConfigFromEnv resolves provider configuration from environment variables.
//
//	MODEL_PROVIDER = gemini | ollama | openai | azure | ark (default: gemini)
//
//	Gemini: GEMINI_API_KEY (fallback GOOGLE_API_KEY), GEMINI_MODEL (default: gemini-1.5-flash)
//	Ollama: OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	OpenAI: OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini)
//	Azure:  AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	        AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Ark:    ARK_API_KEY, ARK_MODEL, ARK_BASE_URL
//
//	Shared: MODEL_MAX_TOKENS (default: 2048), MODEL_TEMPERATURE (default: 0.2)
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(config.Env("MODEL_PROVIDER", string(BackendGemini))),
		Gemini: ProviderGemini{
			APIKey: config.Env("GEMINI_API_KEY", config.Env("GOOGLE_API_KEY", "")),
			Model:  config.Env("GEMINI_MODEL", DefaultGeminiModel),
		},
		Ollama: ProviderOllama{
			Host:  config.Env("OLLAMA_HOST", "http://localhost:11434"),
			Model: config.Env("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey: config.Env("OPENAI_API_KEY", ""),
			Model:  config.Env("OPENAI_MODEL", "gpt-4o-mini"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     config.Env("AZURE_OPENAI_API_KEY", ""),
			Endpoint:   config.Env("AZURE_OPENAI_ENDPOINT", ""),
			Deployment: config.Env("AZURE_OPENAI_DEPLOYMENT", ""),
			APIVersion: config.Env("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Ark: ProviderArk{
			APIKey:  config.Env("ARK_API_KEY", ""),
			Model:   config.Env("ARK_MODEL", ""),
			BaseURL: config.Env("ARK_BASE_URL", ""),
		},
		Tuning: SharedTuning{
			MaxTokens:   config.EnvInt("MODEL_MAX_TOKENS", 2048),
			Temperature: config.EnvFloat32("MODEL_TEMPERATURE", 0.2),
		},
	}
}

// New validates cfg and constructs the chat model for its backend.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendGemini:
		return newGemini(ctx, cfg)
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	default:
		return newArk(ctx, cfg)
	}
}

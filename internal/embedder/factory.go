package embedder

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/kbrag-go/internal/config"
	"github.com/54b3r/kbrag-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "all-minilm"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	defaultOllamaDimensions = 384
	defaultOpenAIDimensions = 1536
	defaultGeminiDimensions = 768
)

// Backend returns the configured embedding backend (EMBEDDING_PROVIDER,
// default ollama).
func Backend() string {
	return strings.ToLower(config.Env("EMBEDDING_PROVIDER", "ollama"))
}

// DefaultDimensions returns the vector size for backend. Stores that must
// declare a size up front (Qdrant) use it. EMBEDDING_DIMENSIONS wins when set.
func DefaultDimensions(backend string) int {
	if v := config.EnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "gemini":
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// NewFromEnv constructs the embedder selected by EMBEDDING_PROVIDER.
//
// Credentials fall back to the chat provider's variables when the
// EMBEDDING_* overrides are unset:
//
//	ollama: EMBEDDING_ENDPOINT → OLLAMA_HOST → http://localhost:11434
//	openai: EMBEDDING_API_KEY → OPENAI_API_KEY
//	azure:  EMBEDDING_API_KEY → AZURE_OPENAI_API_KEY, EMBEDDING_ENDPOINT → AZURE_OPENAI_ENDPOINT
//	gemini: EMBEDDING_API_KEY → GEMINI_API_KEY → GOOGLE_API_KEY
func NewFromEnv(ctx context.Context) (rag.Embedder, error) {
	backend := Backend()

	switch backend {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  firstEnv("http://localhost:11434", "EMBEDDING_ENDPOINT", "OLLAMA_HOST"),
			Model: config.Env("EMBEDDING_MODEL", defaultOllamaModel),
		}), nil

	case "openai":
		apiKey := firstEnv("", "EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    config.Env("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      config.Env("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: config.EnvInt("EMBEDDING_DIMENSIONS", 0),
		}), nil

	case "azure":
		apiKey := firstEnv("", "EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstEnv("", "EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(endpoint, "/") + "/openai",
			APIKey:     apiKey,
			Model:      config.Env("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: config.EnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: config.Env("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	case "gemini":
		apiKey := firstEnv("", "EMBEDDING_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires GEMINI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     apiKey,
			Model:      config.Env("EMBEDDING_MODEL", defaultGeminiModel),
			Dimensions: config.EnvInt("EMBEDDING_DIMENSIONS", 0),
			BaseURL:    config.Env("EMBEDDING_ENDPOINT", ""),
		})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, gemini)", backend)
	}
}

// firstEnv returns the first non-empty variable among keys, or def.
func firstEnv(def string, keys ...string) string {
	for _, k := range keys {
		if v := config.Env(k, ""); v != "" {
			return v
		}
	}
	return def
}

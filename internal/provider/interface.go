// Package provider builds eino chat models for the LLM backends kbrag can
// answer with. Gemini is the default; Ollama, OpenAI, Azure OpenAI and
// Volcengine Ark are selectable with MODEL_PROVIDER.
package provider

import (
	"fmt"
)

// Backend enumerates the supported inference providers.
type Backend string

const (
	// BackendGemini selects Google Gemini via the Gemini API.
	BackendGemini Backend = "gemini"
	// BackendOllama selects a local Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// DefaultGeminiModel is used when GEMINI_MODEL is unset.
const DefaultGeminiModel = "gemini-1.5-flash"

// ProviderGemini holds Gemini settings.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	APIKey string
	Model  string
}

// ProviderAzureOpenAI holds Azure OpenAI settings. The deployment name is
// the model.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// SharedTuning holds generation parameters common to all backends.
type SharedTuning struct {
	MaxTokens   int
	Temperature float32
}

// Config is the full provider configuration. Only the section matching
// Backend is used.
type Config struct {
	Backend     Backend
	Gemini      ProviderGemini
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Tuning      SharedTuning
}

// Validate reports the first missing setting for the selected backend,
// naming the env var that supplies it.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GEMINI_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: gemini, ollama, openai, azure, ark)", c.Backend)
	}
	return nil
}

// ModelName returns the model the selected backend will call.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendGemini:
		return c.Gemini.Model
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	default:
		return ""
	}
}

// WithOverrides returns a copy of c with the selected backend's model and
// API key replaced by the non-empty arguments. c is never modified.
func (c *Config) WithOverrides(model, apiKey string) Config {
	out := *c
	switch out.Backend {
	case BackendGemini:
		out.Gemini.APIKey = pick(apiKey, out.Gemini.APIKey)
		out.Gemini.Model = pick(model, out.Gemini.Model)
	case BackendOllama:
		out.Ollama.Model = pick(model, out.Ollama.Model)
	case BackendOpenAI:
		out.OpenAI.APIKey = pick(apiKey, out.OpenAI.APIKey)
		out.OpenAI.Model = pick(model, out.OpenAI.Model)
	case BackendAzure:
		out.AzureOpenAI.APIKey = pick(apiKey, out.AzureOpenAI.APIKey)
		out.AzureOpenAI.Deployment = pick(model, out.AzureOpenAI.Deployment)
	case BackendArk:
		out.Ark.APIKey = pick(apiKey, out.Ark.APIKey)
		out.Ark.Model = pick(model, out.Ark.Model)
	}
	return out
}

func pick(override, base string) string {
	if override != "" {
		return override
	}
	return base
}

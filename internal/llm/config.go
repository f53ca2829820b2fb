// Package llm provides the generative text capability used by the protest pipeline.
// Providers are selected by configuration; callers depend only on the Client interface.
package llm

import (
	"maps"
	"time"
)

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for simple tasks: prompt refinement
	TierLite ModelTier = "lite"
	// TierStandard is for moderate work: transcript sanitization
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long-form composition: protest letters
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is the OpenAI provider
	ProviderOpenAI Provider = "openai"
)

// DefaultTimeout bounds a single generation call when the caller sets no deadline.
const DefaultTimeout = 120 * time.Second

// Config holds the model configuration for the application
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
	// BaseURL overrides the provider endpoint (OpenAI only).
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the default configuration (Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Timeout: DefaultTimeout,
	}
}

// DefaultOpenAIConfig returns the default OpenAI configuration
func DefaultOpenAIConfig() *Config {
	return &Config{
		Provider: ProviderOpenAI,
		Models: map[ModelTier]string{
			TierLite:     "gpt-4o-mini",
			TierStandard: "gpt-4o",
			TierAdvanced: "o3-mini",
		},
		Timeout: DefaultTimeout,
	}
}

// ConfigFor returns the default configuration for a provider with per-tier overrides applied.
// Override keys are tier names ("lite", "standard", "advanced").
func ConfigFor(provider Provider, overrides map[string]string, timeout time.Duration) *Config {
	var cfg *Config
	switch provider {
	case ProviderOpenAI:
		cfg = DefaultOpenAIConfig()
	default:
		cfg = DefaultGeminiConfig()
	}
	for tier, model := range overrides {
		if model != "" {
			cfg = cfg.WithModel(ModelTier(tier), model)
		}
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	return cfg
}

// GetModel resolves the model for a tier. A tier without its own entry falls
// back to the standard model, then the lite one.
func (c *Config) GetModel(tier ModelTier) string {
	for _, t := range []ModelTier{tier, TierStandard, TierLite} {
		if model := c.Models[t]; model != "" {
			return model
		}
	}
	return ""
}

// WithModel returns a copy of c that uses model for tier.
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	out := *c
	out.Models = maps.Clone(c.Models)
	if out.Models == nil {
		out.Models = make(map[ModelTier]string, 1)
	}
	out.Models[tier] = model
	return &out
}

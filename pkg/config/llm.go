package config

import "time"

// LLMConfig configures the single outbound LLM adapter used by the
// variator and enricher phases.
type LLMConfig struct {
	// BaseURL is the chat-completions-style endpoint of the LLM provider.
	BaseURL string `yaml:"base_url" validate:"required"`

	// APIKeyEnv names the environment variable holding the provider API key.
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`

	// NativeStructuredOutput enables schema-bound response_format requests
	// for models that support it, skipping the tolerant parser's markdown
	// stripping/extraction/repair steps (direct parse only).
	NativeStructuredOutput bool `yaml:"native_structured_output"`

	// CallTimeout is the hard per-call deadline enforced by the adapter.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// DefaultLLMConfig returns the built-in LLM adapter defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		BaseURL:                "https://api.openai.com/v1/chat/completions",
		APIKeyEnv:              "LLM_API_KEY",
		NativeStructuredOutput: true,
		CallTimeout:            5 * time.Minute,
	}
}

package providers

import (
	"fmt"

	"github.com/lukelzlz/nanobot/internal/config"
)

// FromConfig constructs the provider selected by the LLM configuration.
// OpenAI-compatible endpoints (OpenRouter, vLLM, Zhipu) all route through the
// openai adapter with a custom base URL.
func FromConfig(cfg *config.Config) (Provider, string, error) {
	name, pc := cfg.Provider("")
	switch name {
	case "anthropic":
		return NewAnthropicProvider(pc.APIKey, pc.BaseURL, pc.DefaultModel), defaultModel(cfg, pc), nil
	case "openai", "openrouter", "vllm", "zhipu":
		return NewOpenAIProvider(pc.APIKey, pc.BaseURL, pc.DefaultModel), defaultModel(cfg, pc), nil
	default:
		return nil, "", fmt.Errorf("unknown llm provider %q", name)
	}
}

func defaultModel(cfg *config.Config, pc config.LLMProviderConfig) string {
	if cfg.Agent.Model != "" {
		return cfg.Agent.Model
	}
	return pc.DefaultModel
}

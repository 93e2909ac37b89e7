package llm

import (
	"fmt"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/config"
)

// NewFromConfig builds the provider the config names.
func NewFromConfig(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "", "openai-compatible", "openai":
		c := DefaultChatConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		return NewChatClient(c), nil
	case "anthropic":
		c := DefaultAnthropicConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		return NewAnthropicClient(c), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

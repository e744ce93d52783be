package provider

import (
	"fmt"

	"github.com/answerforge/answerforge/config"
	"github.com/answerforge/answerforge/internal/agent/core"
	openai_provider "github.com/answerforge/answerforge/provider/openai"
)

// New builds the configured language-model provider
func New(cfg config.LLMConfig) (core.LLMProvider, error) {
	switch cfg.Provider {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm.api_key not configured")
		}
		return openai_provider.New(cfg.APIKey, cfg.BaseURL, cfg.CompletionModel, cfg.Temperature, cfg.MaxTokens, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/cardgraph/internal/config"
)

func NewClient(ctx context.Context, cfg config.LLMConfig) (LLMClient, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens), nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		return c, nil

	case "claude", "anthropic":
		return NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens), nil

	case "ollama", "":
		return NewOllamaClient(cfg.Model, cfg.BaseURL, cfg.MaxTokens), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}

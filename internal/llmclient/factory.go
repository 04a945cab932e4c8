package llmclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
	"github.com/xkilldash9x/scalpel-dispatch/internal/config"
)

// ErrMissingAPIKey is returned when the provider for a model has no credentials.
var ErrMissingAPIKey = errors.New("API key is not configured")

// NewClient builds a client for the provider that serves model.
func NewClient(ctx context.Context, cfg config.LLMConfig, model string, logger *zap.Logger) (schemas.LLMClient, error) {
	provider, err := ProviderFor(model)
	if err != nil {
		return nil, err
	}
	pcfg, _ := cfg.Provider(provider)
	if pcfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", provider, ErrMissingAPIKey)
	}

	switch provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(pcfg, logger)
	case config.ProviderAnthropic:
		return NewAnthropicClient(pcfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, pcfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider: '%s'", provider)
	}
}

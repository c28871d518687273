package llm

import (
	"context"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// NewProvider creates the appropriate AIProvider based on configuration.
func NewProvider(ctx context.Context, cfg *config.ProviderConfig) (core.AIProvider, error) {
	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("starting llm provider")

	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.Model), nil
	case "anthropic":
		return NewAnthropic(cfg.APIKey, cfg.Model), nil
	case "openrouter":
		return NewOpenRouter(cfg.APIKey, cfg.Model), nil
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "custom":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: custom provider requires TUSK_LLM_BASE_URL", core.ErrInvalidInput)
		}
		return NewCustomOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("%w: unknown llm provider: %s", core.ErrInvalidInput, cfg.Provider)
	}
}

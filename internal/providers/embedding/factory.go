package embedding

import (
	"context"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

func NewEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (core.Embedder, error) {
	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Int("dimensions", cfg.Dimensions).
		Msg("starting embedder")

	switch cfg.Provider {
	case "", "hash":
		return NewHashEmbedder(cfg.Dimensions)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider: %s", core.ErrInvalidInput, cfg.Provider)
	}
}

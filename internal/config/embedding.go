package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/tuskmem/pkg/log"
)

type EmbeddingConfig struct {
	Provider   string        `env:"TUSK_EMBEDDING_PROVIDER" envDefault:"hash"`
	Dimensions int           `env:"TUSK_EMBEDDING_DIM" envDefault:"384"`
	BaseURL    string        `env:"TUSK_EMBEDDING_BASE_URL" envDefault:"https://api.openai.com"`
	APIKey     string        `env:"TUSK_EMBEDDING_API_KEY" secret:"true"`
	Model      string        `env:"TUSK_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	Timeout    time.Duration `env:"TUSK_EMBEDDING_TIMEOUT" envDefault:"30s"`
}

func NewEmbeddingConfig(ctx context.Context) *EmbeddingConfig {
	cfg := &EmbeddingConfig{}
	if err := env.Parse(cfg); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Embedding config")
	}
	return cfg
}

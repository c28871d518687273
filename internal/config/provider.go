package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// ProviderConfig selects the chat model used for extraction and summaries.
type ProviderConfig struct {
	Provider string `env:"TUSK_LLM_PROVIDER" envDefault:"openrouter"`
	Model    string `env:"TUSK_LLM_MODEL" envDefault:"google/gemma-3-27b-it:free"`
	APIKey   string `env:"TUSK_LLM_API_KEY" secret:"true"`
	BaseURL  string `env:"TUSK_LLM_BASE_URL"`
}

func NewProviderConfig(ctx context.Context) *ProviderConfig {
	c := &ProviderConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Provider config")
	}
	return c
}

func (c ProviderConfig) Enabled() bool {
	return c.APIKey != "" || c.Provider == "ollama"
}

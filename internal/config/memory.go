package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

type MemoryConfig struct {
	// Working context buffer
	MaxTokens             int    `env:"TUSK_CONTEXT_MAX_TOKENS" envDefault:"8000"`
	TailTurns             int    `env:"TUSK_CONTEXT_TAIL_TURNS" envDefault:"8"`
	ToolTruncateThreshold int    `env:"TUSK_TOOL_TRUNCATE_THRESHOLD" envDefault:"300"`
	ToolPreviewChars      int    `env:"TUSK_TOOL_PREVIEW_CHARS" envDefault:"200"`
	TokenEstimator        string `env:"TUSK_TOKEN_ESTIMATOR" envDefault:"chars"`

	// Semantic store ranking
	SimilarityWeight float64 `env:"TUSK_SIMILARITY_WEIGHT" envDefault:"0.8"`
	ImportanceWeight float64 `env:"TUSK_IMPORTANCE_WEIGHT" envDefault:"0.2"`

	// Orchestrator
	ContextTopK        int     `env:"TUSK_CONTEXT_TOP_K" envDefault:"5"`
	ContextTopEpisodes int     `env:"TUSK_CONTEXT_TOP_EPISODES" envDefault:"3"`
	ContextMinScore    float64 `env:"TUSK_CONTEXT_MIN_SCORE" envDefault:"0.25"`
	DedupThreshold     float64 `env:"TUSK_DEDUP_THRESHOLD" envDefault:"0.85"`

	// Maintenance
	DecayMaxAge          time.Duration `env:"TUSK_DECAY_MAX_AGE" envDefault:"720h"`
	DecayImportanceFloor float64       `env:"TUSK_DECAY_IMPORTANCE_FLOOR" envDefault:"0.3"`
	DecayAccessFloor     int           `env:"TUSK_DECAY_ACCESS_FLOOR" envDefault:"2"`
	EpisodeRetention     time.Duration `env:"TUSK_EPISODE_RETENTION" envDefault:"0s"`
	MaintenanceInterval  time.Duration `env:"TUSK_MAINTENANCE_INTERVAL" envDefault:"1h"`
}

// DefaultMemoryConfig returns the envDefault values without reading the environment.
func DefaultMemoryConfig() *MemoryConfig {
	c := &MemoryConfig{}
	if err := env.ParseWithOptions(c, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("memory config defaults: %v", err))
	}
	return c
}

func ParseMemoryConfig() (*MemoryConfig, error) {
	c := &MemoryConfig{}
	if err := env.Parse(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func NewMemoryConfig(ctx context.Context) *MemoryConfig {
	c, err := ParseMemoryConfig()
	if err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Memory config")
	}
	return c
}

func (c *MemoryConfig) Validate() error {
	switch {
	case c.MaxTokens <= 0:
		return fmt.Errorf("TUSK_CONTEXT_MAX_TOKENS must be positive, got %d", c.MaxTokens)
	case c.TailTurns < 1:
		return fmt.Errorf("TUSK_CONTEXT_TAIL_TURNS must be at least 1, got %d", c.TailTurns)
	case c.ToolPreviewChars < 1:
		return fmt.Errorf("TUSK_TOOL_PREVIEW_CHARS must be at least 1, got %d", c.ToolPreviewChars)
	case c.ToolTruncateThreshold < 0:
		return fmt.Errorf("TUSK_TOOL_TRUNCATE_THRESHOLD must not be negative, got %d", c.ToolTruncateThreshold)
	case c.ContextTopK < 0 || c.ContextTopEpisodes < 0:
		return fmt.Errorf("context top-k values must not be negative")
	case !(c.ContextMinScore >= 0):
		return fmt.Errorf("TUSK_CONTEXT_MIN_SCORE must not be negative, got %v", c.ContextMinScore)
	case !(c.DedupThreshold > 0 && c.DedupThreshold <= 1):
		return fmt.Errorf("TUSK_DEDUP_THRESHOLD must be within (0,1], got %v", c.DedupThreshold)
	case !(c.DecayImportanceFloor >= 0 && c.DecayImportanceFloor <= 1):
		return fmt.Errorf("TUSK_DECAY_IMPORTANCE_FLOOR must be within [0,1], got %v", c.DecayImportanceFloor)
	case c.DecayAccessFloor < 0:
		return fmt.Errorf("TUSK_DECAY_ACCESS_FLOOR must not be negative, got %d", c.DecayAccessFloor)
	case c.SimilarityWeight < 0 || c.ImportanceWeight < 0:
		return fmt.Errorf("score weights must not be negative")
	case c.TokenEstimator != "chars" && c.TokenEstimator != "tiktoken":
		return fmt.Errorf("TUSK_TOKEN_ESTIMATOR must be chars or tiktoken, got %q", c.TokenEstimator)
	}
	return nil
}

func (c *MemoryConfig) DecayPolicy() core.DecayPolicy {
	return core.DecayPolicy{
		MaxAge:          c.DecayMaxAge,
		ImportanceFloor: c.DecayImportanceFloor,
		AccessFloor:     c.DecayAccessFloor,
	}
}

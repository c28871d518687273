package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v9"
	"github.com/sandevgo/tuskmem/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"TUSK_RUNTIME_PATH" envDefault:".tuskmem"`
	// DatabasePath overrides the default <runtime>/memory.db location.
	DatabasePath string `env:"TUSK_DATABASE_PATH"`
	SessionID    string `env:"TUSK_SESSION_ID" envDefault:"default"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	c.RuntimePath = GetRuntimePath()
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetSystemPath() string {
	return filepath.Join(c.RuntimePath, "SYSTEM.md")
}

func (c AppConfig) GetIdentityPath() string {
	return filepath.Join(c.RuntimePath, "IDENTITY.md")
}

func (c AppConfig) GetUserProfilePath() string {
	return filepath.Join(c.RuntimePath, "USER.md")
}

func (c AppConfig) GetDatabasePath() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.RuntimePath, "memory.db")
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/providers/embedding"
	"github.com/sandevgo/tuskmem/internal/providers/llm"
	"github.com/sandevgo/tuskmem/internal/providers/tokens"
	"github.com/sandevgo/tuskmem/internal/service/memory"
	"github.com/sandevgo/tuskmem/internal/storage/sqlite"
	"github.com/sandevgo/tuskmem/pkg/log"
)

type app struct {
	cfg      *config.AppConfig
	memCfg   *config.MemoryConfig
	embedCfg *config.EmbeddingConfig
	db       *sql.DB
	memory   *memory.Orchestrator
}

func newApp(ctx context.Context) (*app, error) {
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		return nil, fmt.Errorf("init env: %w", err)
	}

	a := &app{
		cfg:      config.NewAppConfig(ctx),
		embedCfg: config.NewEmbeddingConfig(ctx),
	}

	memCfg, err := config.ParseMemoryConfig()
	if err != nil {
		return nil, fmt.Errorf("memory config: %w", err)
	}
	a.memCfg = memCfg

	a.db, err = sqlite.NewDB(ctx, a.cfg.GetDatabasePath())
	if err != nil {
		return nil, err
	}

	a.memory, err = initMemory(ctx, a)
	if err != nil {
		a.db.Close()
		return nil, err
	}
	return a, nil
}

func initMemory(ctx context.Context, a *app) (*memory.Orchestrator, error) {
	embedder, err := embedding.NewEmbedder(ctx, a.embedCfg)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	estimator, err := tokens.NewEstimator(a.memCfg.TokenEstimator)
	if err != nil {
		return nil, fmt.Errorf("token estimator: %w", err)
	}

	opts := []memory.Option{
		memory.WithWeights(a.memCfg.SimilarityWeight, a.memCfg.ImportanceWeight),
	}
	semantic := memory.NewSemanticStore(sqlite.NewMemoriesRepo(a.db), embedder, opts...)
	episodes := memory.NewEpisodicLog(sqlite.NewEpisodesRepo(a.db), opts...)
	buffer := memory.NewBuffer(
		memory.NewSysPrompt(a.cfg).Build(),
		memory.NewBufferConfig(a.memCfg),
		estimator,
	)

	return memory.NewOrchestrator(buffer, semantic, episodes, a.memCfg), nil
}

// newAIProvider is only built by commands that extract or summarize.
func newAIProvider(ctx context.Context) (core.AIProvider, error) {
	cfg := config.NewProviderConfig(ctx)
	if !cfg.Enabled() {
		return nil, errors.New("no llm configured: set TUSK_LLM_API_KEY or use TUSK_LLM_PROVIDER=ollama")
	}
	return llm.NewProvider(ctx, cfg)
}

func (a *app) Close() error {
	return a.db.Close()
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}

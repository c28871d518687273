package memory

import (
	"context"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// MaintenanceWorker runs Maintenance on a fixed interval until its context ends.
type MaintenanceWorker struct {
	memory   core.Memory
	Interval time.Duration
}

func NewMaintenanceWorker(memory core.Memory, interval time.Duration) *MaintenanceWorker {
	return &MaintenanceWorker{
		memory:   memory,
		Interval: interval,
	}
}

func (w *MaintenanceWorker) Start(ctx context.Context) error {
	ctx = log.WithComponent(ctx, "maintenance")
	logger := log.FromCtx(ctx)
	if w.Interval <= 0 {
		logger.Info().Msg("memory maintenance disabled")
		return nil
	}
	logger.Info().Dur("interval", w.Interval).Msg("starting memory maintenance")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.memory.Maintenance(ctx)
		}
	}
}

func (w *MaintenanceWorker) Shutdown(ctx context.Context) error {
	return nil
}

package main

import (
	"context"

	"github.com/sandevgo/tuskmem/internal/service/memory"
	"github.com/sandevgo/tuskmem/internal/transport/mcp"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/sandevgo/tuskmem/pkg/srv"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve memory tools over MCP stdio",
	Long:  `Starts the MCP stdio server and the periodic maintenance worker. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			logger := log.FromCtx(ctx)
			logger.Info().Str("db", a.cfg.GetDatabasePath()).Msg("starting tuskmem")

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			server := mcp.NewServer(a.memory.Semantic(), a.memory.Episodes(), a.memory)
			services := []srv.Service{
				memory.NewMaintenanceWorker(a.memory, a.memCfg.MaintenanceInterval),
				server,
			}

			srv.StartServices(ctx, services)

			// The client closing stdin ends the session.
			go func() {
				select {
				case <-server.Done():
					cancel()
				case <-ctx.Done():
				}
			}()

			srv.ShutdownServices(ctx, services)
			logger.Info().Msg("tuskmem has been shut down gracefully")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

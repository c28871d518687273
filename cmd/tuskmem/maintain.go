package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/service/ui"
	"github.com/sandevgo/tuskmem/pkg/env"
	"github.com/spf13/cobra"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Decay stale memories and prune old episodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			report := a.memory.Maintenance(ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "memories removed: %d\nepisodes pruned: %d\n", report.MemoriesRemoved, report.EpisodesPruned)
			for _, err := range report.Errors {
				fmt.Fprintln(out, ui.ErrorStyle.Render("error:"), err)
			}
			return errors.Join(report.Errors...)
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration in .env form",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			for _, c := range []any{a.cfg, a.memCfg, a.embedCfg} {
				content, err := env.MarshalEnv(c, true)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), content)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(maintainCmd, configCmd)
}

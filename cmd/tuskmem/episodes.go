package main

import (
	"context"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/ui"
	"github.com/spf13/cobra"
)

var episodesLimit int

var episodesCmd = &cobra.Command{
	Use:   "episodes [query]",
	Short: "List recent sessions, or search them by keyword",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			var (
				episodes []core.Episode
				err      error
			)
			if len(args) == 1 {
				episodes, err = a.memory.Episodes().SearchEpisodes(ctx, args[0], episodesLimit)
			} else {
				episodes, err = a.memory.Episodes().GetRecent(ctx, episodesLimit)
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderEpisodes(episodes))
			return nil
		})
	},
}

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "List lessons learned across sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			lessons, err := a.memory.Episodes().GetLessons(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderLessons(lessons))
			return nil
		})
	},
}

func init() {
	episodesCmd.Flags().IntVarP(&episodesLimit, "limit", "n", 10, "maximum number of episodes")

	rootCmd.AddCommand(episodesCmd, lessonsCmd)
}

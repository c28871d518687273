package main

import (
	"context"
	"fmt"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/ui"
	"github.com/spf13/cobra"
)

var (
	rememberType       string
	rememberImportance float64
	rememberSource     string

	searchLimit    int
	searchMinScore float64
)

var rememberCmd = &cobra.Command{
	Use:   "remember <content>",
	Short: "Store a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			memType, err := core.ParseMemoryType(rememberType)
			if err != nil {
				return err
			}
			id, err := a.memory.Semantic().Store(ctx, args[0], memType, rememberSource, rememberImportance)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories by meaning",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			hits, err := a.memory.Semantic().Search(ctx, args[0], searchLimit, searchMinScore)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderMemories(hits))
			return nil
		})
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Delete a memory by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			deleted, err := a.memory.Semantic().Delete(ctx, args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("%w: memory %s", core.ErrNotFound, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return nil
		})
	},
}

func init() {
	rememberCmd.Flags().StringVarP(&rememberType, "type", "t", string(core.MemoryNote), "memory type: fact, preference, procedure or note")
	rememberCmd.Flags().Float64VarP(&rememberImportance, "importance", "i", 0.5, "importance within [0,1]")
	rememberCmd.Flags().StringVar(&rememberSource, "source", core.SourceManual, "where the memory came from")

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of hits")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum blended score")

	rootCmd.AddCommand(rememberCmd, searchCmd, forgetCmd)
}

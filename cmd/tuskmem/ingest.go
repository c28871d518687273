package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/service/memory"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/spf13/cobra"
)

var ingestSession string

var ingestCmd = &cobra.Command{
	Use:   "ingest <transcript.json|->",
	Short: "Learn from a finished conversation",
	Long: `Replays a JSON array of {"role","content"} turns through the working buffer,
extracts memories from every user/assistant exchange and records the session as an episode.
Requires a configured LLM provider.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			turns, err := readTranscript(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			ai, err := newAIProvider(ctx)
			if err != nil {
				return err
			}

			session := ingestSession
			if session == "" {
				session = a.cfg.SessionID
			}

			stored, episodeID, err := ingest(ctx, a.memory, turns,
				memory.NewLLMExtractor(ai), memory.NewLLMSummarizer(ai), session)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "memories stored: %d\n", stored)
			if episodeID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "episode: %s\n", episodeID)
			}
			return nil
		})
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestSession, "session", "s", "", "session id, defaults to TUSK_SESSION_ID")
	rootCmd.AddCommand(ingestCmd)
}

func readTranscript(stdin io.Reader, path string) ([]core.Turn, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var turns []core.Turn
	if err := json.NewDecoder(r).Decode(&turns); err != nil {
		return nil, fmt.Errorf("%w: transcript: %w", core.ErrInvalidInput, err)
	}
	return turns, nil
}

// ingest feeds turns into the buffer in order. System turns are dropped since
// the buffer already opens with its own prompt.
func ingest(ctx context.Context, mem *memory.Orchestrator, turns []core.Turn, extractor core.Extractor, summarizer core.Summarizer, session string) (int, string, error) {
	logger := log.FromCtx(ctx)

	stored := 0
	lastUser := ""
	for _, t := range turns {
		if t.Role == core.RoleSystem {
			continue
		}
		if err := mem.Buffer().Add(t); err != nil {
			return stored, "", err
		}

		switch t.Role {
		case core.RoleUser:
			lastUser = t.Content
		case core.RoleAssistant:
			if lastUser == "" {
				continue
			}
			n, err := mem.ProcessExchange(ctx, lastUser, t.Content, extractor)
			if err != nil {
				return stored, "", err
			}
			stored += n
			lastUser = ""
		}
	}

	if mem.Buffer().OverBudget() {
		logger.Warn().Int("tokens", mem.Buffer().TokenCount()).Msg("buffer still over budget after compaction")
	}

	episodeID, err := mem.EndSession(ctx, session, summarizer)
	if err != nil {
		return stored, "", err
	}
	return stored, episodeID, nil
}

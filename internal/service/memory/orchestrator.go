package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/sandevgo/tuskmem/pkg/retry"
)

var _ core.Memory = (*Orchestrator)(nil)

// Orchestrator ties the buffer and both persistent stores together for the
// agent loop.
type Orchestrator struct {
	buffer   *Buffer
	semantic *SemanticStore
	episodes *EpisodicLog
	cfg      *config.MemoryConfig
	retrier  *retry.Retrier
}

func NewOrchestrator(buffer *Buffer, semantic *SemanticStore, episodes *EpisodicLog, cfg *config.MemoryConfig) *Orchestrator {
	return &Orchestrator{
		buffer:   buffer,
		semantic: semantic,
		episodes: episodes,
		cfg:      cfg,
		retrier:  retry.NewRetrier(retry.NewCapabilityConfig(isRetryableCapability)),
	}
}

func (o *Orchestrator) Buffer() *Buffer {
	return o.buffer
}

func (o *Orchestrator) Semantic() *SemanticStore {
	return o.semantic
}

func (o *Orchestrator) Episodes() *EpisodicLog {
	return o.episodes
}

// BuildContext returns the buffer turns with a system turn of relevant memories
// and past sessions inserted after the system prompt. The buffer is not modified.
func (o *Orchestrator) BuildContext(ctx context.Context, userMessage string) ([]core.Turn, error) {
	logger := log.FromCtx(ctx)
	turns := o.buffer.Messages()

	if strings.TrimSpace(userMessage) == "" {
		return turns, nil
	}

	memories, err := o.semantic.Search(ctx, userMessage, o.cfg.ContextTopK, o.cfg.ContextMinScore)
	if err != nil {
		if errors.Is(err, core.ErrCapability) {
			logger.Warn().Err(err).Msg("memory search unavailable, continuing without memories")
			return turns, nil
		}
		return turns, fmt.Errorf("search memories: %w", err)
	}

	episodes, err := o.episodes.SearchEpisodes(ctx, userMessage, o.cfg.ContextTopEpisodes)
	if err != nil {
		return turns, fmt.Errorf("search episodes: %w", err)
	}

	injection := formatInjection(memories, episodes)
	if injection == "" {
		return turns, nil
	}

	logger.Debug().
		Int("memories", len(memories)).
		Int("episodes", len(episodes)).
		Msg("injecting memory context")

	out := make([]core.Turn, 0, len(turns)+1)
	out = append(out, turns[0], core.Turn{
		Role:          core.RoleSystem,
		Content:       injection,
		Timestamp:     time.Now(),
		TokenEstimate: o.buffer.estimate(injection),
	})
	out = append(out, turns[1:]...)
	return out, nil
}

func formatInjection(memories []core.ScoredMemory, episodes []core.Episode) string {
	var sections []string

	if len(memories) > 0 {
		var b strings.Builder
		b.WriteString("## Relevant memories")
		for _, m := range memories {
			fmt.Fprintf(&b, "\n- [%s] (%s) %s", m.Record.Type, m.Record.CreatedAt.Format(time.DateOnly), m.Record.Content)
		}
		sections = append(sections, b.String())
	}

	if len(episodes) > 0 {
		var b strings.Builder
		b.WriteString("## Related past sessions")
		for _, ep := range episodes {
			fmt.Fprintf(&b, "\n- (%s, %s) %s", ep.EndedAt.Format(time.DateOnly), ep.Outcome, ep.Summary)
		}
		sections = append(sections, b.String())
	}

	return strings.Join(sections, "\n\n")
}

// ProcessExchange stores new memories proposed by extractor. Candidates close to
// an existing memory are skipped. Extractor failures store nothing and are not
// returned.
func (o *Orchestrator) ProcessExchange(ctx context.Context, userMessage, assistantMessage string, extractor core.Extractor) (int, error) {
	logger := log.FromCtx(ctx)
	if extractor == nil {
		return 0, fmt.Errorf("%w: extractor is required", core.ErrInvalidInput)
	}

	candidates, err := extractor.Extract(ctx, userMessage, assistantMessage)
	if err != nil {
		logger.Warn().Err(err).Msg("memory extraction failed")
		return 0, nil
	}

	stored := 0
	for _, c := range candidates {
		nearest, found, err := o.semantic.Nearest(ctx, c.Content)
		switch {
		case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrCapability):
			logger.Warn().Err(err).Str("content", c.Content).Msg("skipping memory candidate")
			continue
		case err != nil:
			return stored, err
		case found && nearest.Similarity >= o.cfg.DedupThreshold:
			logger.Debug().
				Str("existing", nearest.Record.ID).
				Float64("similarity", nearest.Similarity).
				Msg("duplicate memory candidate")
			continue
		}

		_, err = o.semantic.Store(ctx, c.Content, c.Type, core.SourceExtracted, c.Importance)
		switch {
		case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrCapability):
			logger.Warn().Err(err).Str("content", c.Content).Msg("skipping memory candidate")
			continue
		case err != nil:
			return stored, err
		}
		stored++
	}

	if stored > 0 {
		logger.Info().Int("stored", stored).Int("candidates", len(candidates)).Msg("memories extracted")
	}
	return stored, nil
}

// EndSession records the buffer as an episode. Sessions that never got past the
// opening exchange are not recorded.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string, summarizer core.Summarizer) (string, error) {
	turns := o.buffer.Messages()
	if len(turns) <= headTurns {
		log.FromCtx(ctx).Debug().Str("session_id", sessionID).Msg("session too short for an episode")
		return "", nil
	}
	if summarizer == nil {
		return "", fmt.Errorf("%w: summarizer is required", core.ErrInvalidInput)
	}

	return o.episodes.SaveEpisode(ctx, sessionID, turns, retryingSummarizer{
		inner:   summarizer,
		retrier: o.retrier,
	})
}

// Maintenance decays stale memories and prunes old episodes. Failures are
// reported, never returned.
func (o *Orchestrator) Maintenance(ctx context.Context) core.MaintenanceReport {
	logger := log.FromCtx(ctx)
	var report core.MaintenanceReport

	policy := o.cfg.DecayPolicy()
	removed, err := o.semantic.Decay(ctx, policy.MaxAge, policy.ImportanceFloor, policy.AccessFloor)
	if err != nil {
		logger.Error().Err(err).Msg("memory decay failed")
		report.Errors = append(report.Errors, fmt.Errorf("decay: %w", err))
	}
	report.MemoriesRemoved = removed

	pruned, err := o.episodes.Prune(ctx, o.cfg.EpisodeRetention)
	if err != nil {
		logger.Error().Err(err).Msg("episode pruning failed")
		report.Errors = append(report.Errors, fmt.Errorf("prune episodes: %w", err))
	}
	report.EpisodesPruned = pruned

	logger.Info().
		Int("memories_removed", report.MemoriesRemoved).
		Int("episodes_pruned", report.EpisodesPruned).
		Int("errors", len(report.Errors)).
		Msg("memory maintenance finished")
	return report
}

type retryingSummarizer struct {
	inner   core.Summarizer
	retrier *retry.Retrier
}

func (r retryingSummarizer) Summarize(ctx context.Context, turns []core.Turn) (core.EpisodeSummary, error) {
	var summary core.EpisodeSummary
	err := r.retrier.Do(ctx, func() error {
		var err error
		summary, err = r.inner.Summarize(ctx, turns)
		return err
	})
	return summary, err
}

func isRetryableCapability(err error) bool {
	return !errors.Is(err, core.ErrInvalidInput) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

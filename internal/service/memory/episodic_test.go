package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionTurns(start time.Time, contents ...string) []core.Turn {
	turns := make([]core.Turn, 0, len(contents))
	for i, c := range contents {
		turns = append(turns, core.Turn{
			Role:          alternatingRole(i),
			Content:       c,
			Timestamp:     start.Add(time.Duration(i) * time.Minute),
			TokenEstimate: len(c) / 4,
		})
	}
	return turns
}

func saveEpisode(t *testing.T, f *fixture, ended time.Time, summary core.EpisodeSummary) string {
	t.Helper()
	turns := sessionTurns(ended.Add(-time.Minute), "question", "answer")
	id, err := f.episodes.SaveEpisode(context.Background(), "s-"+summary.Summary, turns, &fakeSummarizer{summary: summary})
	require.NoError(t, err)
	return id
}

func TestEpisodicLog_SaveEpisode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	turns := sessionTurns(start, "please fix the CI", "looking", "done")

	summarizer := &fakeSummarizer{
		mutateIn: true,
		summary: core.EpisodeSummary{
			Summary:   " Fixed the CI pipeline ",
			UserGoal:  "green build",
			Outcome:   core.OutcomeSuccess,
			ToolsUsed: []string{"shell", "Shell", " ", "git"},
			Topics:    []string{"ci", "CI", "go"},
			Lessons:   []string{"", "run tests locally first", "  "},
		},
	}

	id, err := f.episodes.SaveEpisode(ctx, "session-1", turns, summarizer)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	ep, err := f.episodes.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "session-1", ep.SessionID)
	assert.Equal(t, "Fixed the CI pipeline", ep.Summary)
	assert.Equal(t, "green build", ep.UserGoal)
	assert.Equal(t, core.OutcomeSuccess, ep.Outcome)
	assert.Equal(t, []string{"shell", "git"}, ep.ToolsUsed)
	assert.Equal(t, []string{"ci", "go"}, ep.Topics)
	assert.Equal(t, []string{"run tests locally first"}, ep.Lessons)
	assert.True(t, start.Equal(ep.StartedAt))
	assert.True(t, start.Add(2*time.Minute).Equal(ep.EndedAt))

	// neither the caller's slice nor the stored snapshot sees the summarizer's edit
	assert.Equal(t, "please fix the CI", turns[0].Content)
	require.Len(t, ep.Turns, 3)
	assert.Equal(t, "please fix the CI", ep.Turns[0].Content)
}

func TestEpisodicLog_SaveEpisodeZeroTimestampsUseClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	turns := []core.Turn{{Role: core.RoleUser, Content: "hi"}}
	id, err := f.episodes.SaveEpisode(ctx, "s", turns, &fakeSummarizer{summary: core.EpisodeSummary{
		Summary: "greeting", Outcome: core.OutcomeAbandoned,
	}})
	require.NoError(t, err)

	ep, err := f.episodes.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, f.clock.Now().Equal(ep.StartedAt))
	assert.True(t, f.clock.Now().Equal(ep.EndedAt))
}

func TestEpisodicLog_SaveEpisodeErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	turns := sessionTurns(time.Now(), "a", "b")
	ok := &fakeSummarizer{summary: core.EpisodeSummary{Summary: "x", Outcome: core.OutcomeFailed}}

	_, err := f.episodes.SaveEpisode(ctx, "", turns, ok)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = f.episodes.SaveEpisode(ctx, "s", nil, ok)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = f.episodes.SaveEpisode(ctx, "s", turns, &fakeSummarizer{summary: core.EpisodeSummary{Summary: "x", Outcome: "meh"}})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = f.episodes.SaveEpisode(ctx, "s", turns, &fakeSummarizer{errs: []error{errBoom}})
	assert.ErrorIs(t, err, core.ErrCapability)
	assert.ErrorIs(t, err, errBoom)

	recent, err := f.episodes.GetRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestEpisodicLog_SearchEpisodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	older := saveEpisode(t, f, base, core.EpisodeSummary{
		Summary: "Fixed docker build", Outcome: core.OutcomeSuccess, Topics: []string{"containers"},
	})
	best := saveEpisode(t, f, base.Add(time.Hour), core.EpisodeSummary{
		Summary: "Tuned build cache", Outcome: core.OutcomePartial, Topics: []string{"docker"},
	})
	newer := saveEpisode(t, f, base.Add(2*time.Hour), core.EpisodeSummary{
		Summary: "Wrote docs", UserGoal: "document the docker setup", Outcome: core.OutcomeSuccess,
	})
	saveEpisode(t, f, base.Add(3*time.Hour), core.EpisodeSummary{
		Summary: "Planned holidays", Outcome: core.OutcomeAbandoned,
	})

	got, err := f.episodes.SearchEpisodes(ctx, "Docker build CACHE", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, best, got[0].ID)
	assert.Equal(t, older, got[1].ID)
	assert.Equal(t, newer, got[2].ID)

	got, err = f.episodes.SearchEpisodes(ctx, "docker", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer, got[0].ID, "equal matches rank by recency")

	got, err = f.episodes.SearchEpisodes(ctx, "a b", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.episodes.SearchEpisodes(ctx, " ", 10)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestEpisodicLog_GetByToolAndLessons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first := saveEpisode(t, f, base, core.EpisodeSummary{
		Summary: "one", Outcome: core.OutcomeSuccess,
		ToolsUsed: []string{"Shell"}, Lessons: []string{"check logs", "pin versions"},
	})
	second := saveEpisode(t, f, base.Add(time.Hour), core.EpisodeSummary{
		Summary: "two", Outcome: core.OutcomeSuccess,
		ToolsUsed: []string{"fetch", "shell"}, Lessons: []string{"pin versions", "read the error"},
	})
	saveEpisode(t, f, base.Add(2*time.Hour), core.EpisodeSummary{
		Summary: "three", Outcome: core.OutcomeFailed, ToolsUsed: []string{"shellcheck"},
	})

	got, err := f.episodes.GetByTool(ctx, "SHELL")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second, got[0].ID)
	assert.Equal(t, first, got[1].ID)

	lessons, err := f.episodes.GetLessons(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pin versions", "read the error", "check logs"}, lessons)
}

func TestEpisodicLog_RecentPruneDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	old := saveEpisode(t, f, now.Add(-72*time.Hour), core.EpisodeSummary{Summary: "old", Outcome: core.OutcomeSuccess})
	mid := saveEpisode(t, f, now.Add(-2*time.Hour), core.EpisodeSummary{Summary: "mid", Outcome: core.OutcomeSuccess})
	recent := saveEpisode(t, f, now.Add(-time.Minute), core.EpisodeSummary{Summary: "recent", Outcome: core.OutcomeSuccess})

	got, err := f.episodes.GetRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, recent, got[0].ID)
	assert.Equal(t, mid, got[1].ID)

	n, err := f.episodes.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n, "zero retention disables pruning")

	n, err = f.episodes.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = f.episodes.Get(ctx, old)
	assert.ErrorIs(t, err, core.ErrNotFound)

	ok, err := f.episodes.Delete(ctx, mid)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = f.episodes.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recent, got[0].ID)
}

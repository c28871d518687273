package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addExchange(t *testing.T, b *Buffer, user, assistant string) {
	t.Helper()
	require.NoError(t, b.Add(core.Turn{Role: core.RoleUser, Content: user}))
	require.NoError(t, b.Add(core.Turn{Role: core.RoleAssistant, Content: assistant}))
}

func TestOrchestrator_BuildContextWithoutHits(t *testing.T) {
	f := newFixture(t)
	addExchange(t, f.buffer, "hello", "hi there")

	turns, err := f.orch.BuildContext(context.Background(), "how do I deploy?")
	require.NoError(t, err)
	assert.Equal(t, f.buffer.Messages(), turns)
}

func TestOrchestrator_BuildContextInjectsMemories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addExchange(t, f.buffer, "hello", "hi there")

	_, err := f.semantic.Store(ctx, deployProcedure, core.MemoryProcedure, core.SourceManual, 0.8)
	require.NoError(t, err)
	saveEpisode(t, f, f.clock.Now(), core.EpisodeSummary{
		Summary: "Set up deploy pipeline", Outcome: core.OutcomeSuccess, Topics: []string{"deploy"},
	})

	before := f.buffer.Messages()
	turns, err := f.orch.BuildContext(ctx, "deploy project")
	require.NoError(t, err)
	require.Len(t, turns, len(before)+1)

	assert.Equal(t, before[0], turns[0])
	assert.Equal(t, before[1:], turns[2:])

	injected := turns[1]
	assert.Equal(t, core.RoleSystem, injected.Role)
	assert.Contains(t, injected.Content, "## Relevant memories\n- [procedure] (2024-03-15) "+deployProcedure)
	assert.Contains(t, injected.Content, "## Related past sessions\n- (2024-03-15, success) Set up deploy pipeline")
	assert.Positive(t, injected.TokenEstimate)

	assert.Equal(t, before, f.buffer.Messages(), "buffer is not modified")
}

func TestOrchestrator_BuildContextDegradesOnEmbedderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addExchange(t, f.buffer, "hello", "hi there")

	_, err := f.semantic.Store(ctx, deployProcedure, core.MemoryProcedure, core.SourceManual, 0.8)
	require.NoError(t, err)

	f.embedder.fail = true
	turns, err := f.orch.BuildContext(ctx, "deploy project")
	require.NoError(t, err)
	assert.Equal(t, f.buffer.Messages(), turns)
}

func TestOrchestrator_BuildContextReportsStorageFailure(t *testing.T) {
	f := newFixture(t)
	broken := NewOrchestrator(f.buffer, NewSemanticStore(brokenMemoryRepo{}, f.embedder), f.episodes, f.cfg)

	turns, err := broken.BuildContext(context.Background(), "deploy project")
	assert.ErrorIs(t, err, core.ErrStorage)
	assert.Equal(t, f.buffer.Messages(), turns)
}

func TestOrchestrator_ProcessExchange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.semantic.Store(ctx, deployProcedure, core.MemoryProcedure, core.SourceManual, 0.5)
	require.NoError(t, err)

	extractor := &fakeExtractor{candidates: []core.Candidate{
		{Content: deployProcedure, Type: core.MemoryProcedure, Importance: 0.5},
		{Content: colorFact, Type: core.MemoryPreference, Importance: 0.7},
		{Content: "   ", Type: core.MemoryNote, Importance: 0.5},
		{Content: "impossible importance", Type: core.MemoryNote, Importance: 7},
	}}

	stored, err := f.orch.ProcessExchange(ctx, "my favorite color is blue", "noted", extractor)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	rec, err := f.semantic.Get(ctx, MemoryID(colorFact))
	require.NoError(t, err)
	assert.Equal(t, core.SourceExtracted, rec.Source)
	assert.Equal(t, core.MemoryPreference, rec.Type)

	n, err := f.semantic.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOrchestrator_ProcessExchangeDedupIgnoresImportance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const fact = "User lives in Berlin"
	_, err := f.semantic.Store(ctx, fact, core.MemoryFact, core.SourceManual, 0.1)
	require.NoError(t, err)
	_, err = f.semantic.Search(ctx, fact, 1, 0)
	require.NoError(t, err)

	extractor := &fakeExtractor{candidates: []core.Candidate{
		{Content: fact, Type: core.MemoryFact, Importance: 0.1},
		{Content: "user lives in berlin", Type: core.MemoryFact, Importance: 0.1},
	}}
	stored, err := f.orch.ProcessExchange(ctx, "where do I live?", "Berlin", extractor)
	require.NoError(t, err)
	assert.Zero(t, stored)

	rec, err := f.semantic.Get(ctx, MemoryID(fact))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.AccessCount)

	n, err := f.semantic.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = f.orch.ProcessExchange(ctx, "u", "a", &fakeExtractor{candidates: []core.Candidate{
		{Content: colorFact, Type: core.MemoryPreference, Importance: 0.1},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
}

func TestOrchestrator_ProcessExchangeExtractorFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stored, err := f.orch.ProcessExchange(ctx, "u", "a", &fakeExtractor{err: errBoom})
	require.NoError(t, err)
	assert.Zero(t, stored)

	n, err := f.semantic.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOrchestrator_ProcessExchangeStorageFailure(t *testing.T) {
	f := newFixture(t)
	broken := NewOrchestrator(f.buffer, NewSemanticStore(brokenMemoryRepo{}, f.embedder), f.episodes, f.cfg)

	_, err := broken.ProcessExchange(context.Background(), "u", "a", &fakeExtractor{candidates: []core.Candidate{
		{Content: colorFact, Type: core.MemoryFact, Importance: 0.5},
	}})
	assert.ErrorIs(t, err, core.ErrStorage)
}

func TestOrchestrator_EndSessionSkipsShortSessions(t *testing.T) {
	f := newFixture(t)
	addExchange(t, f.buffer, "hello", "hi")

	summarizer := &fakeSummarizer{summary: core.EpisodeSummary{Summary: "x", Outcome: core.OutcomeSuccess}}
	id, err := f.orch.EndSession(context.Background(), "s1", summarizer)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Zero(t, summarizer.calls)
}

func TestOrchestrator_EndSessionRetriesSummarizer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addExchange(t, f.buffer, "deploy the api", "running make deploy")
	addExchange(t, f.buffer, "thanks", "done")

	summarizer := &fakeSummarizer{
		errs:    []error{errBoom, nil},
		summary: core.EpisodeSummary{Summary: "Deployed the api", Outcome: core.OutcomeSuccess},
	}
	id, err := f.orch.EndSession(ctx, "s1", summarizer)
	require.NoError(t, err)
	assert.Equal(t, 2, summarizer.calls)

	ep, err := f.episodes.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "s1", ep.SessionID)
	assert.Len(t, ep.Turns, 5)
	assert.Equal(t, core.RoleSystem, ep.Turns[0].Role)
}

func TestOrchestrator_EndSessionDoesNotRetryInvalidInput(t *testing.T) {
	f := newFixture(t)
	addExchange(t, f.buffer, "a", "b")
	addExchange(t, f.buffer, "c", "d")

	summarizer := &fakeSummarizer{errs: []error{fmt.Errorf("%w: bad turns", core.ErrInvalidInput)}}
	_, err := f.orch.EndSession(context.Background(), "s1", summarizer)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Equal(t, 1, summarizer.calls)
}

func TestOrchestrator_Maintenance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.EpisodeRetention = 24 * time.Hour

	_, err := f.semantic.Store(ctx, "forgettable", core.MemoryNote, core.SourceManual, 0.1)
	require.NoError(t, err)
	_, err = f.semantic.Store(ctx, colorFact, core.MemoryPreference, core.SourceManual, 0.9)
	require.NoError(t, err)
	saveEpisode(t, f, f.clock.Now().Add(-48*time.Hour), core.EpisodeSummary{Summary: "ancient", Outcome: core.OutcomeSuccess})

	f.clock.Advance(f.cfg.DecayMaxAge + time.Hour)
	report := f.orch.Maintenance(ctx)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, report.MemoriesRemoved)
	assert.Equal(t, 1, report.EpisodesPruned)
}

func TestOrchestrator_MaintenanceCollectsErrors(t *testing.T) {
	f := newFixture(t)
	broken := NewOrchestrator(f.buffer, NewSemanticStore(brokenMemoryRepo{}, f.embedder), f.episodes, f.cfg)

	report := broken.Maintenance(context.Background())
	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0], core.ErrStorage)
	assert.True(t, strings.HasPrefix(report.Errors[0].Error(), "decay"))
}

func TestOrchestrator_EndToEndWithLLM(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ai := &fakeAI{reply: `{"memories":[{"content":"User deploys with make deploy","type":"procedure","importance":0.8}]}`}
	stored, err := f.orch.ProcessExchange(ctx, "I always deploy with make deploy", "Got it", NewLLMExtractor(ai))
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	addExchange(t, f.buffer, "I always deploy with make deploy", "Got it")
	addExchange(t, f.buffer, "ship it", "shipped")

	ai.reply = `{"summary":"Shipped a release","user_goal":"deploy","outcome":"success","tools_used":["shell"],"topics":["deploy"],"lessons":["use make deploy"]}`
	id, err := f.orch.EndSession(ctx, "s1", NewLLMSummarizer(ai))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	fresh := NewOrchestrator(NewBuffer(testSystemPrompt, NewBufferConfig(f.cfg), f.buffer.estimator), f.semantic, f.episodes, f.cfg)
	turns, err := fresh.BuildContext(ctx, "how do I deploy")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Contains(t, turns[1].Content, "User deploys with make deploy")
	assert.Contains(t, turns[1].Content, "Shipped a release")
}

var _ core.MemoryRepository = (*sqlite.MemoriesRepo)(nil)
var _ core.EpisodeRepository = (*sqlite.EpisodesRepo)(nil)

package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/providers/embedding"
	"github.com/sandevgo/tuskmem/internal/providers/tokens"
	"github.com/sandevgo/tuskmem/internal/storage/sqlite"
	"github.com/sandevgo/tuskmem/pkg/retry"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// switchEmbedder is a HashEmbedder that can be told to fail.
type switchEmbedder struct {
	*embedding.HashEmbedder
	fail bool
}

func (s *switchEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, errBoom
	}
	return s.HashEmbedder.Embed(ctx, text)
}

func newSwitchEmbedder(t *testing.T, dim int) *switchEmbedder {
	t.Helper()
	h, err := embedding.NewHashEmbedder(dim)
	require.NoError(t, err)
	return &switchEmbedder{HashEmbedder: h}
}

type fakeSummarizer struct {
	summary  core.EpisodeSummary
	errs     []error
	calls    int
	mutateIn bool
}

func (f *fakeSummarizer) Summarize(_ context.Context, turns []core.Turn) (core.EpisodeSummary, error) {
	f.calls++
	if f.mutateIn && len(turns) > 0 {
		turns[0].Content = "mutated by summarizer"
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return core.EpisodeSummary{}, err
		}
	}
	return f.summary, nil
}

type fakeExtractor struct {
	candidates []core.Candidate
	err        error
}

func (f *fakeExtractor) Extract(context.Context, string, string) ([]core.Candidate, error) {
	return f.candidates, f.err
}

type fakeAI struct {
	reply    string
	err      error
	lastSent []core.Message
}

func (f *fakeAI) Chat(_ context.Context, history []core.Message) (core.Message, error) {
	f.lastSent = history
	if f.err != nil {
		return core.Message{}, f.err
	}
	return core.Message{Role: core.RoleAssistant, Content: f.reply}, nil
}

// brokenMemoryRepo fails every call.
type brokenMemoryRepo struct{}

func (brokenMemoryRepo) Upsert(context.Context, core.MemoryRecord) error { return errBoom }
func (brokenMemoryRepo) Get(context.Context, string) (core.MemoryRecord, error) {
	return core.MemoryRecord{}, errBoom
}
func (brokenMemoryRepo) List(context.Context) ([]core.MemoryRecord, error) { return nil, errBoom }
func (brokenMemoryRepo) Touch(context.Context, []string, time.Time) error  { return errBoom }
func (brokenMemoryRepo) Delete(context.Context, string) (bool, error)      { return false, errBoom }
func (brokenMemoryRepo) DeleteMany(context.Context, []string) (int, error) { return 0, errBoom }
func (brokenMemoryRepo) Count(context.Context) (int, error)                { return 0, errBoom }

type fixture struct {
	clock    *testClock
	embedder *switchEmbedder
	memRepo  *sqlite.MemoriesRepo
	epRepo   *sqlite.EpisodesRepo
	semantic *SemanticStore
	episodes *EpisodicLog
	buffer   *Buffer
	cfg      *config.MemoryConfig
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sqlite.NewDB(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		clock:    newTestClock(),
		embedder: newSwitchEmbedder(t, embedding.DefaultDimensions),
		memRepo:  sqlite.NewMemoriesRepo(db),
		epRepo:   sqlite.NewEpisodesRepo(db),
		cfg:      config.DefaultMemoryConfig(),
	}
	f.semantic = NewSemanticStore(f.memRepo, f.embedder, WithClock(f.clock.Now))
	f.episodes = NewEpisodicLog(f.epRepo, WithClock(f.clock.Now))
	f.buffer = NewBuffer(testSystemPrompt, NewBufferConfig(f.cfg), tokens.CharEstimator{})
	f.orch = NewOrchestrator(f.buffer, f.semantic, f.episodes, f.cfg)
	f.orch.retrier = retry.NewRetrier(&retry.Config{
		MaxRetries:    2,
		BackoffFactor: 1,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		Retryable:     isRetryableCapability,
	})
	return f
}

package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/providers/embedding"
	"github.com/sandevgo/tuskmem/pkg/log"
)

// SemanticStore is the long-term memory: content-addressed records ranked by
// embedding similarity blended with importance.
type SemanticStore struct {
	mu       sync.Mutex
	repo     core.MemoryRepository
	embedder core.Embedder
	opts     options
}

func NewSemanticStore(repo core.MemoryRepository, embedder core.Embedder, opts ...Option) *SemanticStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SemanticStore{
		repo:     repo,
		embedder: embedder,
		opts:     o,
	}
}

// MemoryID is derived from content alone, so storing the same text twice
// addresses the same record.
func MemoryID(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Store embeds content and upserts it. An existing record with the same content
// is replaced and its access statistics reset.
func (s *SemanticStore) Store(ctx context.Context, content string, memType core.MemoryType, source string, importance float64) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: memory content is empty", core.ErrInvalidInput)
	}
	if math.IsNaN(importance) || importance < 0 || importance > 1 {
		return "", fmt.Errorf("%w: importance must be within [0,1], got %v", core.ErrInvalidInput, importance)
	}
	memType, err := core.ParseMemoryType(string(memType))
	if err != nil {
		return "", err
	}

	vec, err := s.embed(ctx, content)
	if err != nil {
		return "", err
	}

	now := s.opts.now()
	rec := core.MemoryRecord{
		ID:           MemoryID(content),
		Content:      content,
		Embedding:    vec,
		Type:         memType,
		Source:       source,
		Importance:   importance,
		CreatedAt:    now,
		AccessCount:  0,
		LastAccessed: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Upsert(ctx, rec); err != nil {
		return "", storageErr(err)
	}

	log.FromCtx(ctx).Debug().
		Str("id", rec.ID).
		Str("type", string(rec.Type)).
		Float64("importance", importance).
		Msg("memory stored")
	return rec.ID, nil
}

// Search ranks every record against query and returns at most limit hits scoring
// at least minScore. Returned records count as accessed.
func (s *SemanticStore) Search(ctx context.Context, query string, limit int, minScore float64) ([]core.ScoredMemory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is empty", core.ErrInvalidInput)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative search limit %d", core.ErrInvalidInput, limit)
	}
	if limit == 0 {
		return []core.ScoredMemory{}, nil
	}

	queryVec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, storageErr(err)
	}

	scored, err := s.scoreAll(records, queryVec)
	if err != nil {
		return nil, err
	}
	hits := scored[:0]
	for _, h := range scored {
		if h.Score >= minScore {
			hits = append(hits, h)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Record.LastAccessed.Equal(b.Record.LastAccessed) {
			return a.Record.LastAccessed.After(b.Record.LastAccessed)
		}
		return a.Record.ID < b.Record.ID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	if len(hits) == 0 {
		return hits, nil
	}

	now := s.opts.now()
	ids := make([]string, len(hits))
	for i := range hits {
		ids[i] = hits[i].Record.ID
	}
	if err := s.repo.Touch(ctx, ids, now); err != nil {
		return nil, storageErr(err)
	}
	for i := range hits {
		hits[i].Record.AccessCount++
		hits[i].Record.LastAccessed = now
	}

	return hits, nil
}

// Nearest returns the record most similar to text by similarity alone, ignoring
// importance. The lookup does not count as an access.
func (s *SemanticStore) Nearest(ctx context.Context, text string) (core.ScoredMemory, bool, error) {
	if strings.TrimSpace(text) == "" {
		return core.ScoredMemory{}, false, fmt.Errorf("%w: text is empty", core.ErrInvalidInput)
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return core.ScoredMemory{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.repo.List(ctx)
	if err != nil {
		return core.ScoredMemory{}, false, storageErr(err)
	}
	scored, err := s.scoreAll(records, vec)
	if err != nil || len(scored) == 0 {
		return core.ScoredMemory{}, false, err
	}

	best := scored[0]
	for _, h := range scored[1:] {
		if h.Similarity > best.Similarity || (h.Similarity == best.Similarity && h.Record.ID < best.Record.ID) {
			best = h
		}
	}
	return best, true, nil
}

func (s *SemanticStore) scoreAll(records []core.MemoryRecord, queryVec []float32) ([]core.ScoredMemory, error) {
	hits := make([]core.ScoredMemory, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) != len(queryVec) {
			return nil, fmt.Errorf("%w: memory %s has embedding dimension %d, query has %d",
				core.ErrInvalidInput, rec.ID, len(rec.Embedding), len(queryVec))
		}

		sim := embedding.CosineSimilarity(queryVec, rec.Embedding)
		hits = append(hits, core.ScoredMemory{
			Record:     rec,
			Similarity: sim,
			Score:      sim*s.opts.similarityWeight + rec.Importance*s.opts.importanceWeight,
		})
	}
	return hits, nil
}

// Decay removes records that are stale, unimportant and rarely used, all three.
// maxAge <= 0 matches any age.
func (s *SemanticStore) Decay(ctx context.Context, maxAge time.Duration, importanceFloor float64, accessFloor int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.repo.List(ctx)
	if err != nil {
		return 0, storageErr(err)
	}

	now := s.opts.now()
	var ids []string
	for _, rec := range records {
		stale := maxAge <= 0 || now.Sub(rec.LastAccessed) > maxAge
		if stale && rec.Importance < importanceFloor && rec.AccessCount < accessFloor {
			ids = append(ids, rec.ID)
		}
	}

	removed, err := s.repo.DeleteMany(ctx, ids)
	if err != nil {
		return 0, storageErr(err)
	}
	return removed, nil
}

func (s *SemanticStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, storageErr(err)
	}
	return ok, nil
}

func (s *SemanticStore) Get(ctx context.Context, id string) (core.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return core.MemoryRecord{}, storageErr(err)
	}
	return rec, nil
}

// GetAll returns every record, newest first.
func (s *SemanticStore) GetAll(ctx context.Context) ([]core.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	return records, nil
}

func (s *SemanticStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

// embed runs without the store lock held.
func (s *SemanticStore) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) || errors.Is(err, core.ErrCapability) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: embed: %w", core.ErrCapability, err)
	}
	return vec, nil
}

func storageErr(err error) error {
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrStorage, err)
}

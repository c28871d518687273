package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

const minKeywordLen = 2

// EpisodicLog keeps one structured summary per finished session. Episodes are
// written once and never updated.
type EpisodicLog struct {
	mu   sync.Mutex
	repo core.EpisodeRepository
	opts options
}

func NewEpisodicLog(repo core.EpisodeRepository, opts ...Option) *EpisodicLog {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &EpisodicLog{repo: repo, opts: o}
}

// SaveEpisode summarizes turns with summarizer and persists the result.
func (l *EpisodicLog) SaveEpisode(ctx context.Context, sessionID string, turns []core.Turn, summarizer core.Summarizer) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", fmt.Errorf("%w: session id is empty", core.ErrInvalidInput)
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("%w: episode has no turns", core.ErrInvalidInput)
	}
	if summarizer == nil {
		return "", fmt.Errorf("%w: summarizer is required", core.ErrInvalidInput)
	}

	snapshot := slices.Clone(turns)

	summary, err := summarizer.Summarize(ctx, slices.Clone(snapshot))
	if err != nil {
		if errors.Is(err, core.ErrCapability) {
			return "", err
		}
		return "", fmt.Errorf("%w: summarize: %w", core.ErrCapability, err)
	}

	outcome, err := core.ParseOutcome(string(summary.Outcome))
	if err != nil {
		return "", err
	}

	now := l.opts.now()
	ep := core.Episode{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Summary:   strings.TrimSpace(summary.Summary),
		UserGoal:  strings.TrimSpace(summary.UserGoal),
		Turns:     snapshot,
		StartedAt: orNow(snapshot[0].Timestamp, now),
		EndedAt:   orNow(snapshot[len(snapshot)-1].Timestamp, now),
		Outcome:   outcome,
		ToolsUsed: uniqueFold(summary.ToolsUsed),
		Topics:    uniqueFold(summary.Topics),
		Lessons:   nonEmpty(summary.Lessons),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.repo.Insert(ctx, ep); err != nil {
		return "", storageErr(err)
	}

	log.FromCtx(ctx).Info().
		Str("session_id", sessionID).
		Str("episode_id", ep.ID).
		Str("outcome", string(ep.Outcome)).
		Int("turns", len(ep.Turns)).
		Msg("episode saved")
	return ep.ID, nil
}

// GetRecent returns up to limit episodes, most recently ended first.
func (l *EpisodicLog) GetRecent(ctx context.Context, limit int) ([]core.Episode, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", core.ErrInvalidInput, limit)
	}

	episodes, err := l.list(ctx)
	if err != nil {
		return nil, err
	}
	if len(episodes) > limit {
		episodes = episodes[:limit]
	}
	return episodes, nil
}

// SearchEpisodes matches query keywords as substrings of summary, goal and
// topics. Episodes matching more distinct keywords rank first, then newer ones.
func (l *EpisodicLog) SearchEpisodes(ctx context.Context, query string, limit int) ([]core.Episode, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is empty", core.ErrInvalidInput)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", core.ErrInvalidInput, limit)
	}

	keywords := extractKeywords(query)
	if len(keywords) == 0 || limit == 0 {
		return []core.Episode{}, nil
	}

	episodes, err := l.list(ctx)
	if err != nil {
		return nil, err
	}

	type match struct {
		ep    core.Episode
		score int
	}
	var matches []match
	for _, ep := range episodes {
		haystack := strings.ToLower(ep.Summary + "\n" + ep.UserGoal + "\n" + strings.Join(ep.Topics, "\n"))
		score := 0
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, match{ep: ep, score: score})
		}
	}

	// list is already newest first, so a stable sort keeps recency as the tie-break.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	out := make([]core.Episode, 0, min(limit, len(matches)))
	for _, m := range matches {
		if len(out) == limit {
			break
		}
		out = append(out, m.ep)
	}
	return out, nil
}

// GetByTool returns episodes that used tool, compared case-insensitively.
func (l *EpisodicLog) GetByTool(ctx context.Context, tool string) ([]core.Episode, error) {
	if strings.TrimSpace(tool) == "" {
		return nil, fmt.Errorf("%w: tool name is empty", core.ErrInvalidInput)
	}

	episodes, err := l.list(ctx)
	if err != nil {
		return nil, err
	}

	out := []core.Episode{}
	for _, ep := range episodes {
		if slices.ContainsFunc(ep.ToolsUsed, func(t string) bool { return strings.EqualFold(t, tool) }) {
			out = append(out, ep)
		}
	}
	return out, nil
}

// GetLessons is the deduplicated union of lessons, newest episodes first.
func (l *EpisodicLog) GetLessons(ctx context.Context) ([]string, error) {
	episodes, err := l.list(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	lessons := []string{}
	for _, ep := range episodes {
		for _, lesson := range ep.Lessons {
			if _, ok := seen[lesson]; ok {
				continue
			}
			seen[lesson] = struct{}{}
			lessons = append(lessons, lesson)
		}
	}
	return lessons, nil
}

func (l *EpisodicLog) Get(ctx context.Context, id string) (core.Episode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ep, err := l.repo.Get(ctx, id)
	if err != nil {
		return core.Episode{}, storageErr(err)
	}
	return ep, nil
}

// Prune deletes episodes that ended more than olderThan ago. Zero disables it.
func (l *EpisodicLog) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.repo.DeleteEndedBefore(ctx, l.opts.now().Add(-olderThan))
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

func (l *EpisodicLog) Delete(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.repo.Delete(ctx, id)
	if err != nil {
		return false, storageErr(err)
	}
	return ok, nil
}

func (l *EpisodicLog) list(ctx context.Context) ([]core.Episode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	episodes, err := l.repo.List(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	return episodes, nil
}

func extractKeywords(query string) []string {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(word) < minKeywordLen || slices.Contains(keywords, word) {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}

// uniqueFold trims items and drops empties and case-insensitive duplicates.
func uniqueFold(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

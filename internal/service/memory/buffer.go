package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
)

const (
	// headTurns is the system prompt plus the opening exchange.
	headTurns        = 3
	userPreviewChars = 50
)

type BufferConfig struct {
	MaxTokens             int
	TailTurns             int
	ToolTruncateThreshold int
	ToolPreviewChars      int
}

func NewBufferConfig(cfg *config.MemoryConfig) BufferConfig {
	return BufferConfig{
		MaxTokens:             cfg.MaxTokens,
		TailTurns:             cfg.TailTurns,
		ToolTruncateThreshold: cfg.ToolTruncateThreshold,
		ToolPreviewChars:      cfg.ToolPreviewChars,
	}
}

// compactionStats describes what the synthetic summary at turns[headTurns] stands for.
type compactionStats struct {
	dropped  int
	roles    map[string]int
	previews []string // chronological
}

// Buffer is the working context: the ordered turns sent to the model. It compacts
// itself whenever the token estimate exceeds MaxTokens.
type Buffer struct {
	mu         sync.Mutex
	cfg        BufferConfig
	estimator  core.TokenEstimator
	turns      []core.Turn
	summary    *compactionStats
	overBudget bool
}

func NewBuffer(systemPrompt string, cfg BufferConfig, estimator core.TokenEstimator) *Buffer {
	b := &Buffer{
		cfg:       cfg,
		estimator: estimator,
	}
	b.turns = []core.Turn{{
		Role:          core.RoleSystem,
		Content:       systemPrompt,
		Timestamp:     time.Now(),
		TokenEstimate: estimator.Estimate(systemPrompt),
	}}
	return b
}

func (b *Buffer) Add(turn core.Turn) error {
	switch turn.Role {
	case core.RoleSystem, core.RoleUser, core.RoleAssistant, core.RoleTool:
	default:
		return fmt.Errorf("%w: unknown role %q", core.ErrInvalidInput, turn.Role)
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	turn.TokenEstimate = b.estimator.Estimate(turn.Content)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.turns = append(b.turns, turn)
	b.compact()
	return nil
}

// Messages returns a copy of the current turns.
func (b *Buffer) Messages() []core.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]core.Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

func (b *Buffer) TokenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total()
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns)
}

// OverBudget reports whether the last compaction left the buffer above MaxTokens.
// The count covers head, tail and the summary turn, so a summary can keep it
// set even when head and tail alone fit.
func (b *Buffer) OverBudget() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overBudget
}

// Compact runs the compaction passes if the buffer is over budget.
func (b *Buffer) Compact() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compact()
}

func (b *Buffer) estimate(text string) int {
	return b.estimator.Estimate(text)
}

func (b *Buffer) total() int {
	sum := 0
	for _, t := range b.turns {
		sum += t.TokenEstimate
	}
	return sum
}

// middle returns the bounds of the compactable region. start == end when there is none.
func (b *Buffer) middle() (int, int) {
	end := len(b.turns) - b.cfg.TailTurns
	if end < headTurns {
		return headTurns, headTurns
	}
	return headTurns, end
}

func (b *Buffer) compact() {
	if b.total() <= b.cfg.MaxTokens {
		b.overBudget = false
		return
	}

	b.truncateToolOutput()
	if b.total() > b.cfg.MaxTokens {
		b.collapseMiddle()
	}

	b.overBudget = b.total() > b.cfg.MaxTokens
}

// truncateToolOutput shortens oversized tool results between head and tail.
func (b *Buffer) truncateToolOutput() {
	start, end := b.middle()
	for i := start; i < end; i++ {
		t := &b.turns[i]
		if t.Role != core.RoleTool || t.TokenEstimate <= b.cfg.ToolTruncateThreshold {
			continue
		}

		runes := []rune(t.Content)
		if len(runes) <= b.cfg.ToolPreviewChars {
			continue
		}

		content := fmt.Sprintf("%s… [truncated %d chars]",
			string(runes[:b.cfg.ToolPreviewChars]), len(runes)-b.cfg.ToolPreviewChars)
		if est := b.estimate(content); est < t.TokenEstimate {
			t.Content = content
			t.TokenEstimate = est
		}
	}
}

// collapseMiddle replaces everything between head and tail with one synthetic
// system turn. The summary never costs more tokens than the turns it replaces.
func (b *Buffer) collapseMiddle() {
	start, end := b.middle()
	if end <= start {
		return
	}
	if b.summary != nil && end-start == 1 {
		return
	}

	stats := &compactionStats{roles: make(map[string]int)}
	replaced := 0
	for i := start; i < end; i++ {
		t := b.turns[i]
		replaced += t.TokenEstimate

		if i == start && b.summary != nil {
			stats.dropped += b.summary.dropped
			for role, n := range b.summary.roles {
				stats.roles[role] += n
			}
			stats.previews = append(stats.previews, b.summary.previews...)
			continue
		}

		stats.dropped++
		stats.roles[t.Role]++
		if t.Role == core.RoleUser {
			stats.previews = append(stats.previews, userPreview(t.Content))
		}
	}

	header := stats.header()
	if b.estimate(header) > replaced {
		return
	}

	// Newest previews win; render them oldest first.
	kept := 0
	content := header
	for kept < len(stats.previews) {
		candidate := renderSummary(header, stats.previews[len(stats.previews)-kept-1:])
		if b.estimate(candidate) > replaced {
			break
		}
		content = candidate
		kept++
	}
	stats.previews = stats.previews[len(stats.previews)-kept:]

	summary := core.Turn{
		Role:          core.RoleSystem,
		Content:       content,
		Timestamp:     b.turns[end-1].Timestamp,
		TokenEstimate: b.estimate(content),
	}

	turns := make([]core.Turn, 0, headTurns+1+len(b.turns)-end)
	turns = append(turns, b.turns[:start]...)
	turns = append(turns, summary)
	turns = append(turns, b.turns[end:]...)

	b.turns = turns
	b.summary = stats
}

func (s *compactionStats) header() string {
	roles := make([]string, 0, len(s.roles))
	for role := range s.roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	counts := make([]string, 0, len(roles))
	for _, role := range roles {
		counts = append(counts, fmt.Sprintf("%s=%d", role, s.roles[role]))
	}
	return fmt.Sprintf("[Compacted: %d turns dropped (%s)]", s.dropped, strings.Join(counts, ", "))
}

func renderSummary(header string, previews []string) string {
	if len(previews) == 0 {
		return header
	}

	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\nUser asked:")
	for _, p := range previews {
		sb.WriteString("\n- ")
		sb.WriteString(p)
	}
	return sb.String()
}

func userPreview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) > userPreviewChars {
		return string(runes[:userPreviewChars])
	}
	return content
}

package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	TuskName      = "TuskMem"
	TuskUserAgent = "TuskMem/0.1"
	TuskVersion   = "0.1.0"

	TuskRepositoryURL = "https://github.com/sandevgo/tuskmem"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is the wire shape exchanged with chat completion providers.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Turn is one entry of the working context buffer.
type Turn struct {
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	TokenEstimate int       `json:"token_estimate"`
}

type MemoryType string

const (
	MemoryFact       MemoryType = "fact"
	MemoryPreference MemoryType = "preference"
	MemoryProcedure  MemoryType = "procedure"
	MemoryNote       MemoryType = "note"
)

func ParseMemoryType(s string) (MemoryType, error) {
	switch t := MemoryType(strings.ToLower(strings.TrimSpace(s))); t {
	case MemoryFact, MemoryPreference, MemoryProcedure, MemoryNote:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown memory type %q", ErrInvalidInput, s)
	}
}

const (
	SourceExtracted = "extracted"
	SourceManual    = "manual"
)

type MemoryRecord struct {
	ID           string     `json:"id"`
	Content      string     `json:"content"`
	Embedding    []float32  `json:"-"`
	Type         MemoryType `json:"type"`
	Source       string     `json:"source"`
	Importance   float64    `json:"importance"`
	CreatedAt    time.Time  `json:"created_at"`
	AccessCount  int        `json:"access_count"`
	LastAccessed time.Time  `json:"last_accessed"`
}

// ScoredMemory is a search hit. Score blends similarity and importance.
type ScoredMemory struct {
	Record     MemoryRecord `json:"record"`
	Similarity float64      `json:"similarity"`
	Score      float64      `json:"score"`
}

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomePartial   Outcome = "partial"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomeSuccess, OutcomePartial, OutcomeFailed, OutcomeAbandoned:
		return o, nil
	default:
		return "", fmt.Errorf("%w: unknown outcome %q", ErrInvalidInput, s)
	}
}

type Episode struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Summary   string    `json:"summary"`
	UserGoal  string    `json:"user_goal"`
	Turns     []Turn    `json:"turns"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Outcome   Outcome   `json:"outcome"`
	ToolsUsed []string  `json:"tools_used"`
	Topics    []string  `json:"topics"`
	Lessons   []string  `json:"lessons"`
}

// EpisodeSummary is what a summarizer reduces a session to.
type EpisodeSummary struct {
	Summary   string   `json:"summary"`
	UserGoal  string   `json:"user_goal"`
	Outcome   Outcome  `json:"outcome"`
	ToolsUsed []string `json:"tools_used"`
	Topics    []string `json:"topics"`
	Lessons   []string `json:"lessons"`
}

// Candidate is a memory proposed by an extractor.
type Candidate struct {
	Content    string     `json:"content"`
	Type       MemoryType `json:"type"`
	Importance float64    `json:"importance"`
}

type MaintenanceReport struct {
	MemoriesRemoved int
	EpisodesPruned  int
	Errors          []error
}

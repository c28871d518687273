package memory

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
)

const defaultImportance = 0.5

// Extraction is the decoded extractor reply: ExtractedMemories or NoMemories.
type Extraction interface {
	isExtraction()
}

type ExtractedMemories struct {
	Candidates []core.Candidate
}

type NoMemories struct {
	Reason string
}

func (ExtractedMemories) isExtraction() {}
func (NoMemories) isExtraction()        {}

type rawCandidate struct {
	Content    string   `json:"content"`
	Fact       string   `json:"fact"`
	Type       string   `json:"type"`
	Category   string   `json:"category"`
	Importance *float64 `json:"importance"`
}

// DecodeExtraction accepts {"memories":[...]} or a bare array, optionally wrapped
// in prose or code fences. Anything else decodes to NoMemories.
func DecodeExtraction(raw string) Extraction {
	arrayAt := strings.Index(raw, "[")
	objectAt := strings.Index(raw, "{")

	var (
		items  []rawCandidate
		reason string
		ok     bool
	)
	if arrayAt != -1 && (objectAt == -1 || arrayAt < objectAt) {
		items, ok = decodeCandidateArray(raw)
	} else {
		items, reason, ok = decodeCandidateObject(raw)
		if !ok {
			items, ok = decodeCandidateArray(raw)
		}
	}
	if !ok {
		return NoMemories{Reason: "unparseable extractor output"}
	}

	candidates := make([]core.Candidate, 0, len(items))
	for _, item := range items {
		if c, valid := item.candidate(); valid {
			candidates = append(candidates, c)
		}
	}

	if len(candidates) == 0 {
		if reason == "" {
			reason = "no memories extracted"
		}
		return NoMemories{Reason: reason}
	}
	return ExtractedMemories{Candidates: candidates}
}

func decodeCandidateObject(raw string) ([]rawCandidate, string, bool) {
	body := extractJSON(raw, "{", "}")
	if body == "" {
		return nil, "", false
	}

	var obj struct {
		Memories []rawCandidate `json:"memories"`
		Reason   string         `json:"reason"`
	}
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return nil, "", false
	}
	if obj.Memories == nil && obj.Reason == "" {
		return nil, "", false
	}
	return obj.Memories, obj.Reason, true
}

func decodeCandidateArray(raw string) ([]rawCandidate, bool) {
	body := extractJSON(raw, "[", "]")
	if body == "" {
		return nil, false
	}

	var items []rawCandidate
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, false
	}
	return items, true
}

func (r rawCandidate) candidate() (core.Candidate, bool) {
	content := strings.TrimSpace(r.Content)
	if content == "" {
		content = strings.TrimSpace(r.Fact)
	}
	if content == "" {
		return core.Candidate{}, false
	}

	typeName := r.Type
	if typeName == "" {
		typeName = r.Category
	}
	memType, err := core.ParseMemoryType(typeName)
	if err != nil {
		memType = core.MemoryNote
	}

	importance := defaultImportance
	if r.Importance != nil {
		importance = clampImportance(*r.Importance)
	}

	return core.Candidate{Content: content, Type: memType, Importance: importance}, true
}

func clampImportance(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return defaultImportance
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// SummaryDecode is the decoded summarizer reply: StructuredSummary or FreeformSummary.
type SummaryDecode interface {
	EpisodeSummary() core.EpisodeSummary
}

type StructuredSummary struct {
	Summary core.EpisodeSummary
}

// FreeformSummary is prose that did not parse; it is kept as the summary text.
type FreeformSummary struct {
	Text string
}

func (s StructuredSummary) EpisodeSummary() core.EpisodeSummary {
	return s.Summary
}

func (f FreeformSummary) EpisodeSummary() core.EpisodeSummary {
	return core.EpisodeSummary{
		Summary: f.Text,
		Outcome: core.OutcomePartial,
	}
}

func DecodeSummary(raw string) SummaryDecode {
	freeform := FreeformSummary{Text: strings.TrimSpace(raw)}

	body := extractJSON(raw, "{", "}")
	if body == "" {
		return freeform
	}

	var parsed struct {
		Summary   string   `json:"summary"`
		UserGoal  string   `json:"user_goal"`
		Outcome   string   `json:"outcome"`
		ToolsUsed []string `json:"tools_used"`
		Topics    []string `json:"topics"`
		Lessons   []string `json:"lessons"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return freeform
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return freeform
	}

	outcome, err := core.ParseOutcome(parsed.Outcome)
	if err != nil {
		outcome = core.OutcomePartial
	}

	return StructuredSummary{Summary: core.EpisodeSummary{
		Summary:   strings.TrimSpace(parsed.Summary),
		UserGoal:  strings.TrimSpace(parsed.UserGoal),
		Outcome:   outcome,
		ToolsUsed: parsed.ToolsUsed,
		Topics:    parsed.Topics,
		Lessons:   parsed.Lessons,
	}}
}

// extractJSON returns the span from the first open to the last close delimiter.
func extractJSON(content, openDelim, closeDelim string) string {
	start := strings.Index(content, openDelim)
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(content[start:], closeDelim)
	if end == -1 {
		return ""
	}

	return content[start : start+end+1]
}

package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

const toolPreviewForSummary = 300

// LLMExtractor asks a chat model which facts of one exchange are worth keeping.
type LLMExtractor struct {
	ai core.AIProvider
}

func NewLLMExtractor(ai core.AIProvider) *LLMExtractor {
	return &LLMExtractor{ai: ai}
}

func (e *LLMExtractor) Extract(ctx context.Context, userMessage, assistantMessage string) ([]core.Candidate, error) {
	const systemPrompt = "You are a memory extraction system. Output only valid JSON."

	resp, err := e.ai.Chat(ctx, []core.Message{
		{Role: core.RoleSystem, Content: systemPrompt},
		{Role: core.RoleUser, Content: buildExtractionPrompt(userMessage, assistantMessage)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: llm chat: %w", core.ErrCapability, err)
	}

	switch res := DecodeExtraction(resp.Content).(type) {
	case ExtractedMemories:
		return res.Candidates, nil
	case NoMemories:
		log.FromCtx(ctx).Debug().Str("reason", res.Reason).Msg("nothing to remember")
	}
	return nil, nil
}

func buildExtractionPrompt(userMessage, assistantMessage string) string {
	return fmt.Sprintf(
		`Extract distinct, durable memories from the exchange below. Output format: {"memories": [{"content", "type", "importance"}]}. Types: [fact, preference, procedure, note]. Importance: 0.0 to 1.0. Rules: 1. Ignore greetings and small talk. 2. Memories must be self-contained (replace "he" with "User"). 3. Return {"memories": [], "reason": "..."} when nothing is worth keeping.
USER: %s
ASSISTANT: %s`,
		userMessage, assistantMessage,
	)
}

// LLMSummarizer reduces a finished session to an episode summary with a chat model.
type LLMSummarizer struct {
	ai core.AIProvider
}

func NewLLMSummarizer(ai core.AIProvider) *LLMSummarizer {
	return &LLMSummarizer{ai: ai}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, turns []core.Turn) (core.EpisodeSummary, error) {
	const systemPrompt = "You are a session summarizer. Output only valid JSON."

	resp, err := s.ai.Chat(ctx, []core.Message{
		{Role: core.RoleSystem, Content: systemPrompt},
		{Role: core.RoleUser, Content: buildSummaryPrompt(formatConversation(turns))},
	})
	if err != nil {
		return core.EpisodeSummary{}, fmt.Errorf("%w: llm chat: %w", core.ErrCapability, err)
	}

	decoded := DecodeSummary(resp.Content)
	if f, ok := decoded.(FreeformSummary); ok {
		if f.Text == "" {
			return core.EpisodeSummary{}, fmt.Errorf("%w: empty summary", core.ErrCapability)
		}
		log.FromCtx(ctx).Warn().Msg("summarizer returned prose, storing it as a partial episode")
	}
	return decoded.EpisodeSummary(), nil
}

func buildSummaryPrompt(conversation string) string {
	return fmt.Sprintf(
		`Summarize the session below. Output format: JSON object {"summary", "user_goal", "outcome", "tools_used", "topics", "lessons"}. Outcome is one of [success, partial, failed, abandoned]. tools_used, topics and lessons are lists of short strings. Lessons are reusable takeaways for future sessions.
Session:
%s`,
		conversation,
	)
}

// formatConversation renders turns for a prompt. System turns are skipped and
// tool output is shortened.
func formatConversation(turns []core.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Role == core.RoleSystem {
			continue
		}

		content := t.Content
		if t.Role == core.RoleTool {
			if runes := []rune(content); len(runes) > toolPreviewForSummary {
				content = string(runes[:toolPreviewForSummary]) + "…"
			}
		}

		b.WriteString(strings.ToUpper(t.Role))
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteByte('\n')
	}
	return b.String()
}

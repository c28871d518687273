package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMExtractor(t *testing.T) {
	ai := &fakeAI{reply: `{"memories":[{"content":"User prefers dark mode","type":"preference","importance":0.6}]}`}
	e := NewLLMExtractor(ai)

	got, err := e.Extract(context.Background(), "I like dark mode", "Noted")
	require.NoError(t, err)
	assert.Equal(t, []core.Candidate{
		{Content: "User prefers dark mode", Type: core.MemoryPreference, Importance: 0.6},
	}, got)

	require.Len(t, ai.lastSent, 2)
	assert.Equal(t, core.RoleSystem, ai.lastSent[0].Role)
	assert.Contains(t, ai.lastSent[1].Content, "USER: I like dark mode")
	assert.Contains(t, ai.lastSent[1].Content, "ASSISTANT: Noted")
}

func TestLLMExtractor_NoMemories(t *testing.T) {
	e := NewLLMExtractor(&fakeAI{reply: "nothing here"})

	got, err := e.Extract(context.Background(), "hi", "hello")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLLMExtractor_ChatFailure(t *testing.T) {
	e := NewLLMExtractor(&fakeAI{err: errBoom})

	_, err := e.Extract(context.Background(), "hi", "hello")
	assert.ErrorIs(t, err, core.ErrCapability)
	assert.ErrorIs(t, err, errBoom)
}

func TestLLMSummarizer(t *testing.T) {
	ai := &fakeAI{reply: `{"summary":"Debugged a flaky test","outcome":"failed","lessons":["add retries"]}`}
	s := NewLLMSummarizer(ai)

	turns := []core.Turn{
		{Role: core.RoleSystem, Content: "system prompt"},
		{Role: core.RoleUser, Content: "the test is flaky"},
		{Role: core.RoleTool, Content: strings.Repeat("log line ", 100)},
	}
	got, err := s.Summarize(context.Background(), turns)
	require.NoError(t, err)
	assert.Equal(t, "Debugged a flaky test", got.Summary)
	assert.Equal(t, core.OutcomeFailed, got.Outcome)
	assert.Equal(t, []string{"add retries"}, got.Lessons)

	prompt := ai.lastSent[1].Content
	assert.NotContains(t, prompt, "system prompt")
	assert.Contains(t, prompt, "USER: the test is flaky")
	assert.Contains(t, prompt, "TOOL: "+strings.Repeat("log line ", 34)[:toolPreviewForSummary]+"…")
}

func TestLLMSummarizer_Freeform(t *testing.T) {
	s := NewLLMSummarizer(&fakeAI{reply: "We talked about lunch."})

	got, err := s.Summarize(context.Background(), []core.Turn{{Role: core.RoleUser, Content: "lunch?"}})
	require.NoError(t, err)
	assert.Equal(t, "We talked about lunch.", got.Summary)
	assert.Equal(t, core.OutcomePartial, got.Outcome)
}

func TestLLMSummarizer_EmptyReply(t *testing.T) {
	s := NewLLMSummarizer(&fakeAI{reply: "   "})

	_, err := s.Summarize(context.Background(), []core.Turn{{Role: core.RoleUser, Content: "x"}})
	assert.ErrorIs(t, err, core.ErrCapability)
}

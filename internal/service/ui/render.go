package ui

import (
	"fmt"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
)

const episodeTimeLayout = "2006-01-02 15:04"

func RenderMemories(hits []core.ScoredMemory) string {
	if len(hits) == 0 {
		return DescStyle.Render("no memories found") + "\n"
	}

	var sb strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&sb, "%s %s %s\n  %s\n",
			ScoreStyle.Render(fmt.Sprintf("%.2f", h.Score)),
			IDStyle.Render(shortID(h.Record.ID)),
			DescStyle.Render(fmt.Sprintf("[%s, importance %.2f, seen %d]", h.Record.Type, h.Record.Importance, h.Record.AccessCount)),
			h.Record.Content,
		)
	}
	return sb.String()
}

func RenderEpisodes(episodes []core.Episode) string {
	if len(episodes) == 0 {
		return DescStyle.Render("no episodes found") + "\n"
	}

	var sb strings.Builder
	for _, ep := range episodes {
		fmt.Fprintf(&sb, "%s %s %s\n  %s\n",
			IDStyle.Render(shortID(ep.ID)),
			DescStyle.Render(ep.EndedAt.Format(episodeTimeLayout)),
			UsageStyle.Render(string(ep.Outcome)),
			ep.Summary,
		)
		if ep.UserGoal != "" {
			fmt.Fprintf(&sb, "  %s %s\n", FlagStyle.Render("goal:"), ep.UserGoal)
		}
		for _, lesson := range ep.Lessons {
			fmt.Fprintf(&sb, "  %s %s\n", FlagStyle.Render("lesson:"), lesson)
		}
	}
	return sb.String()
}

func RenderLessons(lessons []string) string {
	if len(lessons) == 0 {
		return DescStyle.Render("no lessons yet") + "\n"
	}

	var sb strings.Builder
	for _, l := range lessons {
		sb.WriteString("- " + l + "\n")
	}
	return sb.String()
}

// shortID keeps output narrow. Content hashes are 64 hex chars.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

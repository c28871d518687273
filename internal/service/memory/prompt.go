package memory

import (
	"os"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
)

const defaultSystemPrompt = "You are " + core.TuskName + ", an assistant with long-term memory."

// SysPrompt assembles the head system turn of the buffer from the markdown
// files in the runtime directory.
type SysPrompt struct {
	cfg core.PromptConfig
}

func NewSysPrompt(cfg core.PromptConfig) *SysPrompt {
	return &SysPrompt{
		cfg: cfg,
	}
}

// Build joins SYSTEM.md, IDENTITY.md and USER.md. Missing files are skipped;
// if none exist the built-in prompt is used.
func (p *SysPrompt) Build() string {
	readFile := func(path string) string {
		content, err := os.ReadFile(path)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(content))
	}

	var parts []string
	for _, path := range []string{p.cfg.GetSystemPath(), p.cfg.GetIdentityPath(), p.cfg.GetUserProfilePath()} {
		if content := readFile(path); content != "" {
			parts = append(parts, content)
		}
	}

	if len(parts) == 0 {
		return defaultSystemPrompt
	}
	return strings.Join(parts, "\n\n")
}

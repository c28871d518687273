package core

import (
	"context"
	"time"
)

// Memory is what the agent loop talks to.
type Memory interface {
	BuildContext(ctx context.Context, userMessage string) ([]Turn, error)
	ProcessExchange(ctx context.Context, userMessage, assistantMessage string, extractor Extractor) (int, error)
	EndSession(ctx context.Context, sessionID string, summarizer Summarizer) (string, error)
	Maintenance(ctx context.Context) MaintenanceReport
}

type DecayPolicy struct {
	MaxAge          time.Duration
	ImportanceFloor float64
	AccessFloor     int
}

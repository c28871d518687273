package core

import "context"

// AIProvider is the model call the surrounding agent uses.
type AIProvider interface {
	Chat(ctx context.Context, history []Message) (Message, error)
}

// Embedder maps text to a unit vector of fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

type TokenEstimator interface {
	Estimate(text string) int
}

// Extractor proposes memories worth keeping from one exchange.
type Extractor interface {
	Extract(ctx context.Context, userMessage, assistantMessage string) ([]Candidate, error)
}

// Summarizer reduces a finished session to a structured summary.
type Summarizer interface {
	Summarize(ctx context.Context, turns []Turn) (EpisodeSummary, error)
}

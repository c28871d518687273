package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sandevgo/tuskmem/internal/config"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/internal/providers/llm"
	"github.com/sandevgo/tuskmem/internal/providers/tokens"
	"github.com/sandevgo/tuskmem/pkg/log"
	"github.com/sandevgo/tuskmem/pkg/retry"
)

type embeddingsClient interface {
	Embeddings(ctx context.Context, inputs []string) ([][]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible /v1/embeddings endpoint. Long text is
// chunked and the chunk vectors are mean-pooled into one.
type OpenAIEmbedder struct {
	client  embeddingsClient
	dim     int
	enc     *tiktoken.Tiktoken
	chunks  ChunkerConfig
	retrier *retry.Retrier
}

func NewOpenAIEmbedder(cfg *config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: TUSK_EMBEDDING_API_KEY is required for the openai embedder", core.ErrInvalidInput)
	}

	enc, err := tokens.Encoding()
	if err != nil {
		return nil, err
	}

	client := llm.NewOpenAICompatible(llm.OpenAICompatibleConfig{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		AuthHeader: "Authorization",
		AuthPrefix: "Bearer ",
		Timeout:    cfg.Timeout,
	})

	return newOpenAIEmbedder(client, cfg.Dimensions, enc), nil
}

// newOpenAIEmbedder accepts a nil enc, in which case text is sent unchunked.
func newOpenAIEmbedder(client embeddingsClient, dim int, enc *tiktoken.Tiktoken) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:  client,
		dim:     dim,
		enc:     enc,
		chunks:  DefaultChunkerConfig(),
		retrier: retry.NewRetrier(retry.NewCapabilityConfig(isTransient)),
	}
}

func (o *OpenAIEmbedder) Dimensions() int {
	return o.dim
}

func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", core.ErrInvalidInput)
	}

	inputs := []string{text}
	if o.enc != nil {
		if chunks := ChunkText(text, o.chunks, o.enc); len(chunks) > 0 {
			inputs = inputs[:0]
			for _, c := range chunks {
				inputs = append(inputs, c.Text)
			}
		}
	}

	log.FromCtx(ctx).Debug().Int("chunks", len(inputs)).Msg("requesting embeddings")

	var vectors [][]float32
	err := o.retrier.Do(ctx, func() error {
		var err error
		vectors, err = o.client.Embeddings(ctx, inputs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings request: %w", core.ErrCapability, err)
	}

	pooled := make([]float32, o.dim)
	for _, vec := range vectors {
		if len(vec) != o.dim {
			return nil, fmt.Errorf("%w: embedding dimension %d, configured %d", core.ErrInvalidInput, len(vec), o.dim)
		}
		for i, x := range vec {
			pooled[i] += x / float32(len(vectors))
		}
	}

	return Normalize(pooled), nil
}

// isTransient retries rate limits, server errors and transport failures.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	return true
}

package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/sandevgo/tuskmem/internal/core"
)

const DefaultDimensions = 384

const (
	trigramWeight = 1
	wordWeight    = 2
)

// HashEmbedder is the offline embedding: character trigrams and words of the
// lower-cased text are feature-hashed into a fixed-size accumulator.
// Semantically weak, but pure and deterministic.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) (*HashEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", core.ErrInvalidInput, dim)
	}
	return &HashEmbedder{dim: dim}, nil
}

func (h *HashEmbedder) Dimensions() int {
	return h.dim
}

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", core.ErrInvalidInput)
	}

	lower := strings.ToLower(text)
	acc := make([]float32, h.dim)

	runes := []rune(lower)
	if len(runes) < 3 {
		h.add(acc, lower, trigramWeight)
	} else {
		for i := 0; i+3 <= len(runes); i++ {
			h.add(acc, string(runes[i:i+3]), trigramWeight)
		}
	}

	for _, word := range strings.Fields(lower) {
		h.add(acc, word, wordWeight)
	}

	// Features cancelled out; fall back to a single bucket so the vector stays unit length.
	if isZero(acc) {
		h.add(acc, lower, trigramWeight)
	}

	return Normalize(acc), nil
}

func (h *HashEmbedder) add(acc []float32, feature string, weight float32) {
	sum := xxhash.Sum64String(feature)
	idx := (sum >> 1) % uint64(h.dim)
	if sum&1 == 0 {
		acc[idx] += weight
	} else {
		acc[idx] -= weight
	}
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned as a copy.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}

	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// CosineSimilarity of two unit vectors, i.e. their dot product.
// Mismatched dimensions are a programming error and panic.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("embedding: dimension mismatch %d != %d", len(a), len(b)))
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

package tokens

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sandevgo/tuskmem/internal/core"
)

const encodingName = "cl100k_base"

var (
	tk     *tiktoken.Tiktoken
	tkErr  error
	tkOnce sync.Once
)

// Encoding returns the shared cl100k_base tokenizer. The BPE ranks are fetched
// once per process (tiktoken caches them on disk afterwards).
func Encoding() (*tiktoken.Tiktoken, error) {
	tkOnce.Do(func() {
		tk, tkErr = tiktoken.GetEncoding(encodingName)
		if tkErr != nil {
			tkErr = fmt.Errorf("failed to load tiktoken %s: %w", encodingName, tkErr)
		}
	})
	return tk, tkErr
}

// CharEstimator approximates one token per four characters.
type CharEstimator struct{}

func (CharEstimator) Estimate(text string) int {
	return utf8.RuneCountInString(text) / 4
}

type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenEstimator() (*TiktokenEstimator, error) {
	enc, err := Encoding()
	if err != nil {
		return nil, err
	}
	return &TiktokenEstimator{enc: enc}, nil
}

func (t *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// NewEstimator maps a config name ("chars" or "tiktoken") to an estimator.
func NewEstimator(name string) (core.TokenEstimator, error) {
	switch name {
	case "", "chars":
		return CharEstimator{}, nil
	case "tiktoken":
		return NewTiktokenEstimator()
	default:
		return nil, fmt.Errorf("%w: unknown token estimator %q", core.ErrInvalidInput, name)
	}
}

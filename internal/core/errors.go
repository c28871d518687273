package core

import "errors"

var (
	// ErrInvalidInput marks caller mistakes. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorage marks backing store failures.
	ErrStorage = errors.New("storage failure")
	// ErrCapability marks failures of external calls: embedder, extractor, summarizer.
	ErrCapability = errors.New("external capability failure")
	ErrNotFound   = errors.New("not found")
)

package models

import "errors"

var (
	// ErrExtraction means a document could not be opened or parsed.
	ErrExtraction = errors.New("document extraction failed")
	// ErrNotFound means no vector index exists at the configured location.
	ErrNotFound = errors.New("vector index not found")
	// ErrInvocation means the language model call failed (network, auth, quota).
	ErrInvocation = errors.New("language model invocation failed")
)

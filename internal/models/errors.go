package models

import "errors"

// Synchronous errors returned directly to callers. Everything else that goes
// wrong during ingestion is recorded on the document row, and generation
// failures during chat are absorbed into a fallback message.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyProcessing    = errors.New("document is already processing")
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
)

package rag

import "errors"

// Error taxonomy for the retrieval core.
//
// Propagation policy: the core never silently drops a caller-significant
// error. The only place an error is absorbed is the hybrid retriever's
// degradation to vector-only results when the text-search path fails, and
// that degradation is flagged in the response. Retry policy belongs to the
// caller; none of these are retried internally.
var (
	// ErrValidation indicates bad caller input (empty query, non-positive
	// limit). Not retryable; the request itself is wrong.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedFormat indicates an asset's file type cannot be
	// processed. Terminal; surfaced to the user.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmbedding indicates the embedding provider failed.
	ErrEmbedding = errors.New("embedding provider failed")

	// ErrGeneration indicates the text-generation provider failed.
	ErrGeneration = errors.New("generation provider failed")

	// ErrStoreUnavailable indicates the document database or the vector
	// index could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

package types

import "errors"

// Domain errors returned by retrieval components.
var (
	// ErrInvalidQuery indicates an empty or unparseable query.
	ErrInvalidQuery = errors.New("query is empty or invalid")

	// ErrBackendUnavailable indicates a retrieval backend (dense or sparse)
	// could not serve the request. The orchestrator treats it as fatal only
	// when every mode fails.
	ErrBackendUnavailable = errors.New("retrieval backend unavailable")

	// ErrRerankUnavailable indicates the cross-encoder could not score the
	// shortlist. Callers fall back to fusion order; this is never fatal.
	ErrRerankUnavailable = errors.New("reranker unavailable")

	// ErrMissingDocID indicates a chunk without a document identifier.
	ErrMissingDocID = errors.New("chunk doc_id is required")

	// ErrInvalidChunkOrdinal indicates a negative chunk ordinal.
	ErrInvalidChunkOrdinal = errors.New("chunk ordinal must be >= 0")

	// ErrEmptyText indicates a chunk with no searchable text.
	ErrEmptyText = errors.New("chunk text cannot be empty")

	// ErrInvalidRank indicates an invalid rank value (must be >= 1).
	ErrInvalidRank = errors.New("rank must be >= 1")
)

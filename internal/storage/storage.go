package storage

import (
	"context"
	"errors"

	"github.com/dmribeiro/contexto-mcp/internal/dense"
	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Store defines the persistence contract for chunks and embeddings.
// The embedding methods satisfy dense.EmbeddingBackend, so a Store can
// be wrapped by dense.NewSQLiteStore to serve vector search.
type Store interface {
	// UpsertChunks inserts or updates chunks by identity. Re-indexing
	// a (tenant, doc, ordinal) triple updates the stored text in
	// place; the derived chunk ID never changes.
	UpsertChunks(ctx context.Context, chunks []*types.Chunk) error

	// GetChunk returns the chunk with the given derived ID, or
	// ErrNotFound.
	GetChunk(ctx context.Context, chunkID string) (*types.Chunk, error)

	// ListChunks pages through all chunks in insertion order. Pass
	// cursor 0 to start; the returned cursor continues the scan and is
	// 0 when the scan is complete.
	ListChunks(ctx context.Context, cursor int64, limit int) ([]*types.Chunk, int64, error)

	// DeleteChunks removes the given chunks and, via cascade, their
	// embeddings. Returns the number of chunks actually deleted.
	DeleteChunks(ctx context.Context, chunkIDs []string) (int, error)

	// DeleteChunksByDoc removes every chunk of a document and returns
	// the deleted chunks, so callers can evict them from the sparse
	// index and vector store as well.
	DeleteChunksByDoc(ctx context.Context, tenantID, docID string) ([]*types.Chunk, error)

	// ChunkCount returns the number of stored chunks
	ChunkCount(ctx context.Context) (int, error)

	// UpsertEmbeddings stores one vector per chunk. Points whose chunk
	// is not stored are rejected.
	UpsertEmbeddings(ctx context.Context, points []dense.Point) error

	// SearchByVector returns the topK chunks most similar to the query
	// vector, pre-filtered by filters, with hits below threshold
	// dropped.
	SearchByVector(ctx context.Context, vector []float32, filters *types.Filters, topK int, threshold float64) ([]types.SearchHit, error)

	// DeleteEmbeddings removes the vectors of the given chunk IDs
	DeleteEmbeddings(ctx context.Context, chunkIDs []string) error

	// EmbeddingCount returns the number of stored vectors
	EmbeddingCount(ctx context.Context) (int, error)

	// EmbeddingMeta returns, for each chunk with a stored vector, the
	// hash of the embedded text and the provider/model that produced
	// it. Chunks without a vector are absent from the map.
	EmbeddingMeta(ctx context.Context, chunkIDs []string) (map[string]EmbeddingMeta, error)

	// Stats reports table counts and database size
	Stats(ctx context.Context) (*Stats, error)

	// Ping verifies the database is reachable
	Ping(ctx context.Context) error

	// Close closes the database
	Close() error
}

// EmbeddingMeta identifies which embedder produced a stored vector and
// for which text. The indexer compares it against the current chunk to
// decide whether re-embedding is needed.
type EmbeddingMeta struct {
	TextHash string
	Provider string
	Model    string
}

// Stats reports the state of the store for status endpoints.
type Stats struct {
	Chunks        int     `json:"chunks"`
	Documents     int     `json:"documents"`
	Embeddings    int     `json:"embeddings"`
	SizeMB        float64 `json:"size_mb"`
	SchemaVersion string  `json:"schema_version"`
}

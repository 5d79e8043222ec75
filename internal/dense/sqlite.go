package dense

import (
	"context"
	"fmt"

	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// EmbeddingBackend is the slice of the storage layer the SQLite
// adapter relies on. The storage package satisfies it.
type EmbeddingBackend interface {
	UpsertEmbeddings(ctx context.Context, points []Point) error
	SearchByVector(ctx context.Context, vector []float32, filters *types.Filters, topK int, threshold float64) ([]types.SearchHit, error)
	DeleteEmbeddings(ctx context.Context, chunkIDs []string) error
	EmbeddingCount(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// SQLiteStore adapts the embedded storage layer to the VectorStore
// interface. It shares the database handle with the rest of the
// application, so Close is a no-op; the owner closes the store.
type SQLiteStore struct {
	backend   EmbeddingBackend
	threshold float64
}

// NewSQLiteStore wraps a storage backend as a vector store. The
// threshold drops hits below that similarity; 0 keeps all.
func NewSQLiteStore(backend EmbeddingBackend, threshold float64) *SQLiteStore {
	return &SQLiteStore{
		backend:   backend,
		threshold: threshold,
	}
}

// Upsert writes chunk vectors into the embeddings table
func (s *SQLiteStore) Upsert(ctx context.Context, points []Point) error {
	return s.backend.UpsertEmbeddings(ctx, points)
}

// Search runs a cosine similarity scan over stored vectors
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, filters *types.Filters, topK int) ([]types.SearchHit, error) {
	hits, err := s.backend.SearchByVector(ctx, vector, filters, topK, s.threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite vector search: %v", types.ErrBackendUnavailable, err)
	}
	return hits, nil
}

// Delete removes the vectors of the given chunk IDs
func (s *SQLiteStore) Delete(ctx context.Context, chunkIDs []string) error {
	return s.backend.DeleteEmbeddings(ctx, chunkIDs)
}

// Count returns the number of stored vectors
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	return s.backend.EmbeddingCount(ctx)
}

// Ping verifies the underlying database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrBackendUnavailable, err)
	}
	return nil
}

// Close is a no-op; the storage layer owns the database handle
func (s *SQLiteStore) Close() error {
	return nil
}

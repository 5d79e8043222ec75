// Package dense provides the vector-search side of hybrid retrieval:
// a VectorStore interface with a Qdrant HTTP backend and an adapter
// over the embedded SQLite store.
package dense

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// Point is a chunk vector ready for storage. ID is the backend point
// key derived from the chunk identity, so re-indexing the same chunk
// overwrites its previous vector instead of duplicating it. Provider,
// Model and TextHash record which embedder produced the vector and for
// which text; the SQLite backend persists them so re-indexing can skip
// unchanged chunks, while Qdrant ignores them.
type Point struct {
	ID       string
	Vector   []float32
	Chunk    *types.Chunk
	Provider string
	Model    string
	TextHash string
}

// VectorStore is the dense retrieval backend. Implementations exist
// for Qdrant over HTTP and for the embedded SQLite store.
type VectorStore interface {
	// Upsert writes chunk vectors, replacing points with the same ID
	Upsert(ctx context.Context, points []Point) error

	// Search returns the topK most similar chunks, pre-filtered by
	// the given filters, ordered by score descending with 1-based
	// ranks assigned
	Search(ctx context.Context, vector []float32, filters *types.Filters, topK int) ([]types.SearchHit, error)

	// Delete removes the vectors of the given chunk IDs
	Delete(ctx context.Context, chunkIDs []string) error

	// Count returns the number of stored vectors
	Count(ctx context.Context) (int, error)

	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// PointID derives the stable backend point ID for a chunk. Qdrant only
// accepts UUIDs or integers as point IDs, so the chunk key is hashed
// into a name-based UUID.
func PointID(c *types.Chunk) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.Key())).String()
}

// NewPoint builds a Point for a chunk and its embedding vector.
func NewPoint(c *types.Chunk, vector []float32) Point {
	return Point{
		ID:     PointID(c),
		Vector: vector,
		Chunk:  c,
	}
}

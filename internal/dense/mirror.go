package dense

import (
	"context"
	"fmt"

	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// MirroredStore fans writes out to a primary vector store plus any
// number of replicas while serving reads from the primary alone. It
// keeps the embedded SQLite store as the durable system of record when
// a remote backend such as Qdrant handles the actual searching: a
// rebuild can then repopulate the remote collection without
// re-embedding anything.
//
// Writes hit the primary first. A replica failure after a successful
// primary write surfaces as an error; upserts and deletes are
// idempotent, so callers retry the whole batch.
type MirroredStore struct {
	primary  VectorStore
	replicas []VectorStore
}

// NewMirroredStore builds a store that searches the primary and
// mirrors every mutation to the replicas.
func NewMirroredStore(primary VectorStore, replicas ...VectorStore) *MirroredStore {
	return &MirroredStore{
		primary:  primary,
		replicas: replicas,
	}
}

// Upsert writes the points to the primary and then to every replica
func (m *MirroredStore) Upsert(ctx context.Context, points []Point) error {
	if err := m.primary.Upsert(ctx, points); err != nil {
		return err
	}
	for i, replica := range m.replicas {
		if err := replica.Upsert(ctx, points); err != nil {
			return fmt.Errorf("replica %d upsert: %w", i, err)
		}
	}
	return nil
}

// Search queries the primary store
func (m *MirroredStore) Search(ctx context.Context, vector []float32, filters *types.Filters, topK int) ([]types.SearchHit, error) {
	return m.primary.Search(ctx, vector, filters, topK)
}

// Delete removes the chunk vectors from the primary and every replica
func (m *MirroredStore) Delete(ctx context.Context, chunkIDs []string) error {
	if err := m.primary.Delete(ctx, chunkIDs); err != nil {
		return err
	}
	for i, replica := range m.replicas {
		if err := replica.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("replica %d delete: %w", i, err)
		}
	}
	return nil
}

// Count reports the primary store's vector count
func (m *MirroredStore) Count(ctx context.Context) (int, error) {
	return m.primary.Count(ctx)
}

// Ping verifies the primary store is reachable
func (m *MirroredStore) Ping(ctx context.Context) error {
	return m.primary.Ping(ctx)
}

// Close closes the primary and all replicas, returning the first error
func (m *MirroredStore) Close() error {
	err := m.primary.Close()
	for _, replica := range m.replicas {
		if cerr := replica.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

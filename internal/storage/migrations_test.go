package storage

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

func TestApplyMigrations_Idempotent(t *testing.T) {
	db, err := openDatabase(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db))
	require.NoError(t, ApplyMigrations(ctx, db)) // Second run is a no-op

	var version string
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Only one record per migration
	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRollbackMigration(t *testing.T) {
	db, err := openDatabase(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db))
	require.NoError(t, RollbackMigration(ctx, db))

	// The chunks table is gone
	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='chunks'").Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// Rolling back again fails, nothing is applied
	assert.Error(t, RollbackMigration(ctx, db))
}

func TestConcurrentUpserts(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	// The single-connection pool serializes writers; concurrent batches
	// must not corrupt or deadlock
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			chunks := make([]*types.Chunk, 0, 5)
			for j := 0; j < 5; j++ {
				chunks = append(chunks, testChunk("doc_concurrent", n*5+j, "trecho concorrente"))
			}
			errs[n] = storage.UpsertChunks(context.Background(), chunks)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	count, err := storage.ChunkCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, count)
}

// Package storage provides SQLite-based persistence for chunks and
// their embeddings.
//
// The store is the system of record for indexed content: the in-memory
// sparse index and the vector backends can always be rebuilt from it.
// When no external vector database is configured it also serves dense
// retrieval directly, through dense.NewSQLiteStore.
//
// # Database Schema
//
// Tables:
//   - chunks: indexed text with source metadata, keyed by the chunk ID
//     derived from (tenant_id, doc_id, ordinal)
//   - embeddings: one vector per chunk, tagged with the producing
//     provider and model plus the hash of the embedded text
//   - schema_version: applied migration versions
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("contexto.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.UpsertChunks(ctx, chunks)
//
// Re-indexing a chunk with the same identity updates the stored text in
// place; deleting a chunk cascades to its embedding.
//
// # Vector Operations
//
//	hits, err := store.SearchByVector(ctx, queryVector, filters, 60, 0)
//
// Filters translate to SQL with the same semantics as
// types.Filters.Matches: exact tenant/source/doc match, any shared tag,
// inclusive publish-date bounds that never match chunks without a date.
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Computes cosine similarity inside SQLite via sqlite-vec
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - Scans candidate vectors and scores them in Go
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build ./...
package storage

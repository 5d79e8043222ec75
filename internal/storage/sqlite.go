package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmribeiro/contexto-mcp/internal/dense"
	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// SQLiteStorage implements the Store interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// chunkColumns lists the selected columns in the order scanChunk expects.
// The leading id is the SQLite rowid used as the ListChunks cursor.
const chunkColumns = `id, chunk_id, tenant_id, doc_id, ordinal, text, title, url, source_id, tags, published_at`

// Chunk operations

// UpsertChunks inserts or updates chunks by identity in one transaction
func (s *SQLiteStorage) UpsertChunks(ctx context.Context, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// Validate everything before touching the database
	for i, chunk := range chunks {
		if chunk == nil {
			return fmt.Errorf("chunk %d is nil", i)
		}
		if err := chunk.Validate(); err != nil {
			return fmt.Errorf("chunk %d (%s): %w", i, chunk.Key(), err)
		}
		chunk.EnsureID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, chunk := range chunks {
		if err := s.upsertChunkWithQuerier(ctx, tx, chunk); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// upsertChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertChunkWithQuerier(ctx context.Context, q querier, chunk *types.Chunk) error {
	query := `
		INSERT INTO chunks (chunk_id, tenant_id, doc_id, ordinal, text, title, url, source_id, tags, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			text = excluded.text,
			title = excluded.title,
			url = excluded.url,
			source_id = excluded.source_id,
			tags = excluded.tags,
			published_at = excluded.published_at,
			updated_at = CURRENT_TIMESTAMP
	`
	var publishedAt interface{}
	if chunk.PublishedAt != nil {
		publishedAt = chunk.PublishedAt.UTC().Unix()
	}

	_, err := q.ExecContext(ctx, query,
		chunk.ID, chunk.TenantID, chunk.DocID, chunk.ChunkID,
		chunk.Text, chunk.Title, chunk.URL, chunk.SourceID,
		marshalTags(chunk.Tags), publishedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", chunk.Key(), err)
	}
	return nil
}

// GetChunk returns the chunk with the given derived ID
func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID string) (*types.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE chunk_id = ?`

	rows, err := s.db.QueryContext(ctx, query, chunkID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	chunk, _, err := scanChunk(rows)
	if err != nil {
		return nil, err
	}
	return chunk, rows.Err()
}

// ListChunks pages through all chunks ordered by rowid
func (s *SQLiteStorage) ListChunks(ctx context.Context, cursor int64, limit int) ([]*types.Chunk, int64, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id > ? ORDER BY id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, cursor, limit)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*types.Chunk, 0, limit)
	var next int64
	for rows.Next() {
		chunk, rowid, err := scanChunk(rows)
		if err != nil {
			return nil, 0, err
		}
		chunks = append(chunks, chunk)
		next = rowid
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// A short page means the scan is complete
	if len(chunks) < limit {
		next = 0
	}
	return chunks, next, nil
}

// DeleteChunks removes chunks by derived ID; embeddings cascade
func (s *SQLiteStorage) DeleteChunks(ctx context.Context, chunkIDs []string) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}

	query := `DELETE FROM chunks WHERE chunk_id IN (` + placeholders(len(chunkIDs)) + `)`
	result, err := s.db.ExecContext(ctx, query, stringArgs(chunkIDs)...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}

// DeleteChunksByDoc removes every chunk of a document and returns the
// deleted chunks so callers can evict them from the other indexes
func (s *SQLiteStorage) DeleteChunksByDoc(ctx context.Context, tenantID, docID string) ([]*types.Chunk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	chunks, err := s.listChunksByDocWithQuerier(ctx, tx, tenantID, docID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE tenant_id = ? AND doc_id = ?`, tenantID, docID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to delete chunks of doc %s: %w", docID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// listChunksByDocWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listChunksByDocWithQuerier(ctx context.Context, q querier, tenantID, docID string) ([]*types.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE tenant_id = ? AND doc_id = ? ORDER BY ordinal`
	rows, err := q.QueryContext(ctx, query, tenantID, docID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*types.Chunk, 0)
	for rows.Next() {
		chunk, _, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// ChunkCount returns the number of stored chunks
func (s *SQLiteStorage) ChunkCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
	return count, err
}

// Embedding operations

// UpsertEmbeddings stores one vector per chunk in one transaction
func (s *SQLiteStorage) UpsertEmbeddings(ctx context.Context, points []dense.Point) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, point := range points {
		if err := s.upsertEmbeddingWithQuerier(ctx, tx, point); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// upsertEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, point dense.Point) error {
	if point.Chunk == nil {
		return fmt.Errorf("point %s has no chunk", point.ID)
	}
	point.Chunk.EnsureID()

	// The SELECT resolves the chunk rowid; zero rows affected means the
	// chunk is not stored.
	query := `
		INSERT INTO embeddings (chunk_rowid, vector, dimension, provider, model, text_hash)
		SELECT id, ?, ?, ?, ?, ? FROM chunks WHERE chunk_id = ?
		ON CONFLICT(chunk_rowid) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			text_hash = excluded.text_hash
	`
	result, err := q.ExecContext(ctx, query,
		serializeVector(point.Vector), len(point.Vector),
		point.Provider, point.Model, point.TextHash, point.Chunk.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for chunk %s: %w", point.Chunk.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("chunk %s: %w", point.Chunk.ID, ErrNotFound)
	}
	return nil
}

// DeleteEmbeddings removes the vectors of the given chunk IDs
func (s *SQLiteStorage) DeleteEmbeddings(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	query := `
		DELETE FROM embeddings
		WHERE chunk_rowid IN (SELECT id FROM chunks WHERE chunk_id IN (` + placeholders(len(chunkIDs)) + `))
	`
	if _, err := s.db.ExecContext(ctx, query, stringArgs(chunkIDs)...); err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return nil
}

// EmbeddingCount returns the number of stored vectors
func (s *SQLiteStorage) EmbeddingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&count)
	return count, err
}

// EmbeddingMeta returns provenance for the stored vectors of the given
// chunks: the hash of the text that was embedded plus the provider and
// model that produced the vector
func (s *SQLiteStorage) EmbeddingMeta(ctx context.Context, chunkIDs []string) (map[string]EmbeddingMeta, error) {
	meta := make(map[string]EmbeddingMeta, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return meta, nil
	}

	query := `
		SELECT c.chunk_id, e.text_hash, e.provider, e.model
		FROM embeddings e
		JOIN chunks c ON e.chunk_rowid = c.id
		WHERE c.chunk_id IN (` + placeholders(len(chunkIDs)) + `)
	`
	rows, err := s.db.QueryContext(ctx, query, stringArgs(chunkIDs)...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var m EmbeddingMeta
		if err := rows.Scan(&id, &m.TextHash, &m.Provider, &m.Model); err != nil {
			return nil, err
		}
		meta[id] = m
	}
	return meta, rows.Err()
}

// Status operations

// Stats reports table counts and database size
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.Chunks); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM (SELECT DISTINCT tenant_id, doc_id FROM chunks)").Scan(&stats.Documents); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&stats.Embeddings); err != nil {
		return nil, err
	}

	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&stats.SchemaVersion)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return stats, nil
}

// Row helpers

// scanChunk reads one chunk row selected with chunkColumns. The second
// return value is the SQLite rowid.
func scanChunk(rows *sql.Rows) (*types.Chunk, int64, error) {
	var (
		rowid       int64
		chunk       types.Chunk
		tags        string
		publishedAt sql.NullInt64
	)
	err := rows.Scan(
		&rowid, &chunk.ID, &chunk.TenantID, &chunk.DocID, &chunk.ChunkID,
		&chunk.Text, &chunk.Title, &chunk.URL, &chunk.SourceID,
		&tags, &publishedAt,
	)
	if err != nil {
		return nil, 0, err
	}

	chunk.Tags = unmarshalTags(tags)
	if publishedAt.Valid {
		t := time.Unix(publishedAt.Int64, 0).UTC()
		chunk.PublishedAt = &t
	}
	return &chunk, rowid, nil
}

// marshalTags encodes tags as a JSON array. Empty tags become "[]" so
// the column is always valid JSON for json_each.
func marshalTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

// unmarshalTags decodes a tags column, returning nil for empty
func unmarshalTags(raw string) []string {
	if raw == "" || raw == "[]" || raw == "null" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

// placeholders builds a "?, ?, ?" list for IN clauses
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// stringArgs converts string IDs to driver arguments
func stringArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

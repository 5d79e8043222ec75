package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// vectorCandidate pairs a chunk with its similarity score during
// fallback ranking
type vectorCandidate struct {
	chunk *types.Chunk
	score float64
}

// SearchByVector returns the topK chunks most similar to the query
// vector. With the sqlite-vec extension the whole search runs in SQL;
// purego builds scan candidate vectors and score them in Go.
func (s *SQLiteStorage) SearchByVector(ctx context.Context, vector []float32, filters *types.Filters, topK int, threshold float64) ([]types.SearchHit, error) {
	if topK <= 0 || len(vector) == 0 {
		return []types.SearchHit{}, nil
	}
	if VectorExtensionAvailable {
		return s.searchVectorOptimized(ctx, vector, filters, topK, threshold)
	}
	return s.searchVectorFallback(ctx, vector, filters, topK, threshold)
}

// searchVectorOptimized uses sqlite-vec for SQL-based vector similarity search
func (s *SQLiteStorage) searchVectorOptimized(ctx context.Context, vector []float32, filters *types.Filters, topK int, threshold float64) ([]types.SearchHit, error) {
	queryVectorBlob := serializeVector(vector)

	// vec_distance_cosine returns distance (lower is better); convert to
	// similarity so all backends speak the same scale. The dimension
	// guard keeps the extension from erroring on mismatched vectors.
	query := `
		SELECT
			c.id, c.chunk_id, c.tenant_id, c.doc_id, c.ordinal, c.text, c.title, c.url, c.source_id, c.tags, c.published_at,
			1.0 - vec_distance_cosine(e.vector, ?) AS similarity
		FROM chunks c
		INNER JOIN embeddings e ON e.chunk_rowid = c.id
		WHERE e.dimension = ?
	`
	args := []interface{}{queryVectorBlob, len(vector)}

	query, args = applySearchFilters(query, args, filters)

	// The alias cannot be referenced in WHERE, so the expression repeats
	if threshold > 0 {
		query += " AND (1.0 - vec_distance_cosine(e.vector, ?)) >= ?"
		args = append(args, queryVectorBlob, threshold)
	}

	query += " ORDER BY similarity DESC, c.chunk_id ASC LIMIT ?"
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]types.SearchHit, 0, topK)
	for rows.Next() {
		var (
			rowid       int64
			chunk       types.Chunk
			tags        string
			publishedAt sql.NullInt64
			similarity  float64
		)
		err := rows.Scan(
			&rowid, &chunk.ID, &chunk.TenantID, &chunk.DocID, &chunk.ChunkID,
			&chunk.Text, &chunk.Title, &chunk.URL, &chunk.SourceID,
			&tags, &publishedAt, &similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		chunk.Tags = unmarshalTags(tags)
		if publishedAt.Valid {
			t := time.Unix(publishedAt.Int64, 0).UTC()
			chunk.PublishedAt = &t
		}

		hits = append(hits, types.SearchHit{
			Chunk: &chunk,
			Rank:  len(hits) + 1,
			Score: similarity,
			Mode:  types.ModeDense,
		})
	}
	return hits, rows.Err()
}

// searchVectorFallback scans candidate vectors and computes cosine
// similarity in Go. Used when sqlite-vec is not available.
func (s *SQLiteStorage) searchVectorFallback(ctx context.Context, vector []float32, filters *types.Filters, topK int, threshold float64) ([]types.SearchHit, error) {
	query := `
		SELECT
			c.id, c.chunk_id, c.tenant_id, c.doc_id, c.ordinal, c.text, c.title, c.url, c.source_id, c.tags, c.published_at,
			e.vector
		FROM chunks c
		INNER JOIN embeddings e ON e.chunk_rowid = c.id
		WHERE e.dimension = ?
	`
	args := []interface{}{len(vector)}

	query, args = applySearchFilters(query, args, filters)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]vectorCandidate, 0, 256)
	for rows.Next() {
		var (
			rowid       int64
			chunk       types.Chunk
			tags        string
			publishedAt sql.NullInt64
			vectorBlob  []byte
		)
		err := rows.Scan(
			&rowid, &chunk.ID, &chunk.TenantID, &chunk.DocID, &chunk.ChunkID,
			&chunk.Text, &chunk.Title, &chunk.URL, &chunk.SourceID,
			&tags, &publishedAt, &vectorBlob,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		stored := deserializeVector(vectorBlob)
		if len(stored) != len(vector) {
			continue // Dimension mismatch, skip
		}

		similarity := cosineSimilarity(vector, stored)
		if threshold > 0 && similarity < threshold {
			continue
		}

		chunk.Tags = unmarshalTags(tags)
		if publishedAt.Valid {
			t := time.Unix(publishedAt.Int64, 0).UTC()
			chunk.PublishedAt = &t
		}

		candidates = append(candidates, vectorCandidate{chunk: &chunk, score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sort by similarity descending, chunk ID as a deterministic tie-break
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunk.ID < candidates[j].chunk.ID
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}

	hits := make([]types.SearchHit, 0, topK)
	for i := 0; i < topK; i++ {
		hits = append(hits, types.SearchHit{
			Chunk: candidates[i].chunk,
			Rank:  i + 1,
			Score: candidates[i].score,
			Mode:  types.ModeDense,
		})
	}
	return hits, nil
}

// applySearchFilters translates Filters into WHERE clauses matching the
// in-process Filters.Matches semantics
func applySearchFilters(query string, args []interface{}, filters *types.Filters) (string, []interface{}) {
	if filters.IsZero() {
		return query, args
	}

	if filters.TenantID != "" {
		query += " AND c.tenant_id = ?"
		args = append(args, filters.TenantID)
	}

	if filters.SourceID != "" {
		query += " AND c.source_id = ?"
		args = append(args, filters.SourceID)
	}

	if filters.DocID != "" {
		query += " AND c.doc_id = ?"
		args = append(args, filters.DocID)
	}

	// Any shared tag matches
	if len(filters.Tags) > 0 {
		query += " AND EXISTS (SELECT 1 FROM json_each(c.tags) WHERE json_each.value IN (" + placeholders(len(filters.Tags)) + "))"
		for _, tag := range filters.Tags {
			args = append(args, tag)
		}
	}

	// NULL published_at never satisfies a date bound
	if filters.DateFrom != nil {
		query += " AND c.published_at >= ?"
		args = append(args, filters.DateFrom.UTC().Unix())
	}

	if filters.DateTo != nil {
		query += " AND c.published_at <= ?"
		args = append(args, filters.DateTo.UTC().Unix())
	}

	return query, args
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}

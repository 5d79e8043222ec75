package dense

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

const defaultQdrantTimeout = 30 * time.Second

// QdrantConfig configures the Qdrant-backed vector store.
type QdrantConfig struct {
	URL            string
	APIKey         string
	Collection     string
	VectorSize     int
	ScoreThreshold float64 // drop hits below this similarity; 0 keeps all
	Timeout        time.Duration
	Logger         *logrus.Logger
}

// QdrantStore talks to Qdrant over its HTTP API. The client is
// stateless; every call carries its own context and failures surface
// as ErrBackendUnavailable so the retriever can degrade gracefully.
type QdrantStore struct {
	config     QdrantConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewQdrantStore creates a Qdrant vector store client.
func NewQdrantStore(config QdrantConfig) (*QdrantStore, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("qdrant URL is required")
	}
	if config.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if config.VectorSize <= 0 {
		return nil, fmt.Errorf("vector size must be positive, got %d", config.VectorSize)
	}
	config.URL = strings.TrimRight(config.URL, "/")
	if config.Timeout <= 0 {
		config.Timeout = defaultQdrantTimeout
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	return &QdrantStore{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}, nil
}

func (q *QdrantStore) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.config.URL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if q.config.APIKey != "" {
		req.Header.Set("api-key", q.config.APIKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// EnsureCollection creates the collection with cosine distance when it
// does not exist yet. Safe to call on every startup.
func (q *QdrantStore) EnsureCollection(ctx context.Context) error {
	path := "/collections/" + q.config.Collection
	if _, err := q.doRequest(ctx, http.MethodGet, path, nil); err == nil {
		return nil
	}

	reqBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.config.VectorSize,
			"distance": "Cosine",
		},
	}
	if _, err := q.doRequest(ctx, http.MethodPut, path, reqBody); err != nil {
		return fmt.Errorf("create collection %s: %w", q.config.Collection, err)
	}

	q.logger.WithFields(logrus.Fields{
		"collection": q.config.Collection,
		"dimension":  q.config.VectorSize,
	}).Info("Qdrant collection created")

	return nil
}

type qdrantPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

type scoredPoint struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Upsert writes points with their chunk payloads
func (q *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]qdrantPoint, len(points))
	for i, p := range points {
		id := p.ID
		if id == "" {
			id = PointID(p.Chunk)
		}
		qdrantPoints[i] = qdrantPoint{
			ID:      id,
			Vector:  p.Vector,
			Payload: payloadFromChunk(p.Chunk),
		}
	}

	reqBody := map[string]interface{}{
		"points": qdrantPoints,
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", q.config.Collection)
	if _, err := q.doRequest(ctx, http.MethodPut, path, reqBody); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"collection": q.config.Collection,
		"count":      len(points),
	}).Debug("Points upserted")

	return nil
}

// Search runs a cosine similarity search with payload filters applied
// before scoring on the Qdrant side.
func (q *QdrantStore) Search(ctx context.Context, vector []float32, filters *types.Filters, topK int) ([]types.SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	reqBody := map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if q.config.ScoreThreshold > 0 {
		reqBody["score_threshold"] = q.config.ScoreThreshold
	}
	if filter := buildFilter(filters); filter != nil {
		reqBody["filter"] = filter
	}

	path := fmt.Sprintf("/collections/%s/points/search", q.config.Collection)
	respBody, err := q.doRequest(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant search: %v", types.ErrBackendUnavailable, err)
	}

	var response struct {
		Result []scoredPoint `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("%w: parse search response: %v", types.ErrBackendUnavailable, err)
	}

	hits := make([]types.SearchHit, 0, len(response.Result))
	for _, sp := range response.Result {
		chunk := chunkFromPayload(sp.Payload)
		if chunk == nil {
			continue
		}
		hits = append(hits, types.SearchHit{
			Chunk: chunk,
			Rank:  len(hits) + 1,
			Score: sp.Score,
			Mode:  types.ModeDense,
		})
	}

	return hits, nil
}

// Delete removes points by the chunk IDs stored in their payloads
func (q *QdrantStore) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	reqBody := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{
					"key":   "id",
					"match": map[string]interface{}{"any": chunkIDs},
				},
			},
		},
	}

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", q.config.Collection)
	if _, err := q.doRequest(ctx, http.MethodPost, path, reqBody); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"collection": q.config.Collection,
		"count":      len(chunkIDs),
	}).Debug("Points deleted")

	return nil
}

// Count returns the exact number of points in the collection
func (q *QdrantStore) Count(ctx context.Context) (int, error) {
	reqBody := map[string]interface{}{
		"exact": true,
	}

	path := fmt.Sprintf("/collections/%s/points/count", q.config.Collection)
	respBody, err := q.doRequest(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}

	var response struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return 0, fmt.Errorf("parse count response: %w", err)
	}

	return response.Result.Count, nil
}

// Scroll pages through stored chunks. A nil offset starts from the
// beginning; the returned offset is nil when the collection is
// exhausted.
func (q *QdrantStore) Scroll(ctx context.Context, limit int, offset *string) ([]*types.Chunk, *string, error) {
	reqBody := map[string]interface{}{
		"limit":        limit,
		"with_payload": true,
	}
	if offset != nil {
		reqBody["offset"] = *offset
	}

	path := fmt.Sprintf("/collections/%s/points/scroll", q.config.Collection)
	respBody, err := q.doRequest(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("scroll points: %w", err)
	}

	var response struct {
		Result struct {
			NextPageOffset *string `json:"next_page_offset"`
			Points         []struct {
				ID      string                 `json:"id"`
				Payload map[string]interface{} `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, nil, fmt.Errorf("parse scroll response: %w", err)
	}

	chunks := make([]*types.Chunk, 0, len(response.Result.Points))
	for _, p := range response.Result.Points {
		if chunk := chunkFromPayload(p.Payload); chunk != nil {
			chunks = append(chunks, chunk)
		}
	}

	return chunks, response.Result.NextPageOffset, nil
}

// Ping checks that Qdrant answers on its root endpoint
func (q *QdrantStore) Ping(ctx context.Context) error {
	if _, err := q.doRequest(ctx, http.MethodGet, "/", nil); err != nil {
		return fmt.Errorf("%w: %v", types.ErrBackendUnavailable, err)
	}
	return nil
}

// Close releases idle HTTP connections
func (q *QdrantStore) Close() error {
	q.httpClient.CloseIdleConnections()
	return nil
}

// payloadFromChunk flattens a chunk into a Qdrant payload. The publish
// date is stored twice: RFC 3339 for reconstruction and unix seconds
// for range filtering.
func payloadFromChunk(c *types.Chunk) map[string]interface{} {
	if c == nil {
		return nil
	}

	payload := map[string]interface{}{
		"id":       c.ID,
		"doc_id":   c.DocID,
		"chunk_id": c.ChunkID,
		"text":     c.Text,
	}
	if c.Title != "" {
		payload["title"] = c.Title
	}
	if c.URL != "" {
		payload["url"] = c.URL
	}
	if c.SourceID != "" {
		payload["source_id"] = c.SourceID
	}
	if len(c.Tags) > 0 {
		payload["tags"] = c.Tags
	}
	if c.TenantID != "" {
		payload["tenant_id"] = c.TenantID
	}
	if c.PublishedAt != nil {
		payload["published_at"] = c.PublishedAt.UTC().Format(time.RFC3339)
		payload["published_ts"] = c.PublishedAt.Unix()
	}

	return payload
}

// chunkFromPayload rebuilds a chunk from a Qdrant payload. Returns nil
// when the payload is missing the identity fields.
func chunkFromPayload(payload map[string]interface{}) *types.Chunk {
	if payload == nil {
		return nil
	}

	chunk := &types.Chunk{
		ID:       payloadString(payload, "id"),
		DocID:    payloadString(payload, "doc_id"),
		ChunkID:  payloadInt(payload, "chunk_id"),
		Text:     payloadString(payload, "text"),
		Title:    payloadString(payload, "title"),
		URL:      payloadString(payload, "url"),
		SourceID: payloadString(payload, "source_id"),
		TenantID: payloadString(payload, "tenant_id"),
	}
	if chunk.DocID == "" {
		return nil
	}

	if raw, ok := payload["tags"].([]interface{}); ok {
		tags := make([]string, 0, len(raw))
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		chunk.Tags = tags
	} else if tags, ok := payload["tags"].([]string); ok {
		chunk.Tags = tags
	}

	if raw := payloadString(payload, "published_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			chunk.PublishedAt = &ts
		}
	}

	chunk.EnsureID()
	return chunk
}

func payloadString(payload map[string]interface{}, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

func payloadInt(payload map[string]interface{}, key string) int {
	switch v := payload[key].(type) {
	case float64: // JSON numbers decode as float64
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

// buildFilter translates retrieval filters into a Qdrant must-clause
// filter. Returns nil when no filter is set.
func buildFilter(f *types.Filters) map[string]interface{} {
	if f.IsZero() {
		return nil
	}

	var must []map[string]interface{}

	if f.TenantID != "" {
		must = append(must, map[string]interface{}{
			"key":   "tenant_id",
			"match": map[string]interface{}{"value": f.TenantID},
		})
	}
	if f.SourceID != "" {
		must = append(must, map[string]interface{}{
			"key":   "source_id",
			"match": map[string]interface{}{"value": f.SourceID},
		})
	}
	if f.DocID != "" {
		must = append(must, map[string]interface{}{
			"key":   "doc_id",
			"match": map[string]interface{}{"value": f.DocID},
		})
	}
	if len(f.Tags) > 0 {
		must = append(must, map[string]interface{}{
			"key":   "tags",
			"match": map[string]interface{}{"any": f.Tags},
		})
	}
	if f.DateFrom != nil || f.DateTo != nil {
		dateRange := map[string]interface{}{}
		if f.DateFrom != nil {
			dateRange["gte"] = f.DateFrom.Unix()
		}
		if f.DateTo != nil {
			dateRange["lte"] = f.DateTo.Unix()
		}
		must = append(must, map[string]interface{}{
			"key":   "published_ts",
			"range": dateRange,
		})
	}

	if len(must) == 0 {
		return nil
	}

	return map[string]interface{}{"must": must}
}

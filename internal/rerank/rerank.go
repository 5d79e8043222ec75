// Package rerank rescores fused candidates with a cross-encoder
// scoring service and orders them by relevance to the query.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// Defaults
const (
	DefaultModel     = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	DefaultBatchSize = 32
	defaultTimeout   = 10 * time.Second
)

// Reranker reorders fused hits by cross-encoder relevance. Enabled
// reports whether reranking is active; callers skip the Rerank call
// and keep fusion order when it is not.
type Reranker interface {
	Rerank(ctx context.Context, query string, hits []types.FusedHit, topK int) ([]types.FusedHit, error)
	Enabled() bool
}

// Config configures the cross-encoder client.
type Config struct {
	URL       string // scoring endpoint, e.g. http://localhost:8081/rerank
	Model     string
	APIKey    string
	BatchSize int
	Timeout   time.Duration
	Logger    *logrus.Logger
}

// CrossEncoder scores (query, passage) pairs through an HTTP scoring
// service and re-sorts hits by the returned relevance. Scores are
// min-max normalized to [0, 1] so downstream consumers see a stable
// scale regardless of the model's logit range.
type CrossEncoder struct {
	config     Config
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewCrossEncoder creates a reranker client for a scoring endpoint.
func NewCrossEncoder(config Config) (*CrossEncoder, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("reranker URL is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	return &CrossEncoder{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}, nil
}

// Enabled always reports true for a live cross-encoder
func (r *CrossEncoder) Enabled() bool {
	return true
}

// Rerank scores every hit against the query and returns the topK best.
// A scoring-service failure aborts the whole pass with
// ErrRerankUnavailable; callers fall back to the fused order.
func (r *CrossEncoder) Rerank(ctx context.Context, query string, hits []types.FusedHit, topK int) ([]types.FusedHit, error) {
	if len(hits) == 0 {
		return hits, nil
	}

	pairs := make([][2]string, len(hits))
	for i, hit := range hits {
		pairs[i] = [2]string{query, hit.Chunk.Text}
	}

	scores := make([]float64, len(hits))
	for start := 0; start < len(pairs); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(pairs) {
			end = len(pairs)
		}

		batchScores, err := r.scoreBatch(ctx, pairs[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrRerankUnavailable, err)
		}
		copy(scores[start:end], batchScores)
	}

	return r.rank(hits, scores, topK), nil
}

// rank drops non-finite scores, normalizes the rest, and returns the
// topK hits in descending score order.
func (r *CrossEncoder) rank(hits []types.FusedHit, scores []float64, topK int) []types.FusedHit {
	reranked := make([]types.FusedHit, 0, len(hits))
	kept := make([]float64, 0, len(hits))
	for i, score := range scores {
		if math.IsNaN(score) || math.IsInf(score, 0) {
			// The model choked on that pair; the score carries no
			// ordering information
			r.logger.WithFields(logrus.Fields{
				"chunk": hits[i].Chunk.Key(),
				"score": score,
			}).Warn("Dropping hit with non-finite rerank score")
			continue
		}
		reranked = append(reranked, hits[i])
		kept = append(kept, score)
	}

	normalizeScores(kept)

	for i := range reranked {
		reranked[i].Score = kept[i]
		reranked[i].Reranked = true
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	if topK > 0 && len(reranked) > topK {
		reranked = reranked[:topK]
	}

	return reranked
}

type scoreRequest struct {
	Model string      `json:"model"`
	Pairs [][2]string `json:"pairs"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// scoreBatch scores a batch of (query, passage) pairs
func (r *CrossEncoder) scoreBatch(ctx context.Context, pairs [][2]string) ([]float64, error) {
	jsonBody, err := json.Marshal(scoreRequest{
		Model: r.config.Model,
		Pairs: pairs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.URL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, string(body))
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(result.Scores) != len(pairs) {
		return nil, fmt.Errorf("got %d scores for %d pairs", len(result.Scores), len(pairs))
	}

	return result.Scores, nil
}

// Close releases HTTP resources
func (r *CrossEncoder) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

// normalizeScores rescales scores to [0, 1] in place. A single score or
// an all-equal batch is left untouched; there is no spread to map.
func normalizeScores(scores []float64) {
	if len(scores) <= 1 {
		return
	}

	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	if max <= min {
		return
	}
	for i, s := range scores {
		scores[i] = (s - min) / (max - min)
	}
}

// Disabled is the no-op reranker used when no scoring service is
// configured. It preserves fusion order and truncates to topK.
type Disabled struct{}

// NewDisabled returns the no-op reranker.
func NewDisabled() *Disabled {
	return &Disabled{}
}

// Enabled always reports false
func (d *Disabled) Enabled() bool {
	return false
}

// Rerank returns the first topK hits unchanged
func (d *Disabled) Rerank(ctx context.Context, query string, hits []types.FusedHit, topK int) ([]types.FusedHit, error) {
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

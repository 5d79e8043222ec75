package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func makeHits(texts ...string) []types.FusedHit {
	hits := make([]types.FusedHit, len(texts))
	for i, text := range texts {
		hits[i] = types.FusedHit{
			Chunk: &types.Chunk{
				DocID:   fmt.Sprintf("doc_%d", i),
				ChunkID: 0,
				Text:    text,
			},
			RRFScore: 1.0 / float64(i+1),
			Score:    1.0 / float64(i+1),
			Modes:    []types.RetrievalMode{types.ModeDense},
			ModeRanks: map[types.RetrievalMode]int{
				types.ModeDense: i + 1,
			},
		}
	}
	return hits
}

// scoreServer returns a test server that scores each pair with scoreFn
// and counts requests.
func scoreServer(t *testing.T, calls *atomic.Int32, scoreFn func(pair [2]string) float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		scores := make([]float64, len(req.Pairs))
		for i, pair := range req.Pairs {
			scores[i] = scoreFn(pair)
		}
		json.NewEncoder(w).Encode(scoreResponse{Scores: scores})
	}))
}

func TestCrossEncoderRerank(t *testing.T) {
	var calls atomic.Int32
	// Score pairs by passage length so the fused order gets reversed.
	server := scoreServer(t, &calls, func(pair [2]string) float64 {
		return float64(len(pair[1]))
	})
	defer server.Close()

	r, err := NewCrossEncoder(Config{URL: server.URL, Logger: testLogger()})
	require.NoError(t, err)
	defer r.Close()

	hits := makeHits("curto", "texto um pouco maior", "o maior texto de todos os candidatos")
	reranked, err := r.Rerank(context.Background(), "consulta", hits, 0)
	require.NoError(t, err)
	require.Len(t, reranked, 3)
	assert.Equal(t, int32(1), calls.Load())

	// Longest passage first now.
	assert.Equal(t, "doc_2", reranked[0].Chunk.DocID)
	assert.Equal(t, "doc_1", reranked[1].Chunk.DocID)
	assert.Equal(t, "doc_0", reranked[2].Chunk.DocID)

	// Scores are min-max normalized; fusion provenance survives.
	assert.Equal(t, 1.0, reranked[0].Score)
	assert.Equal(t, 0.0, reranked[2].Score)
	for _, hit := range reranked {
		assert.True(t, hit.Reranked)
		assert.GreaterOrEqual(t, hit.Score, 0.0)
		assert.LessOrEqual(t, hit.Score, 1.0)
		assert.NotZero(t, hit.RRFScore)
		assert.Equal(t, []types.RetrievalMode{types.ModeDense}, hit.Modes)
	}
}

func TestCrossEncoderBatching(t *testing.T) {
	var calls atomic.Int32
	var maxBatch atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if n := int32(len(req.Pairs)); n > maxBatch.Load() {
			maxBatch.Store(n)
		}

		// Score by the numeric suffix embedded in the passage so
		// ordering is verifiable across batch boundaries.
		scores := make([]float64, len(req.Pairs))
		for i, pair := range req.Pairs {
			var n float64
			fmt.Sscanf(pair[1], "passagem %f", &n)
			scores[i] = n
		}
		json.NewEncoder(w).Encode(scoreResponse{Scores: scores})
	}))
	defer server.Close()

	r, err := NewCrossEncoder(Config{URL: server.URL, BatchSize: 32, Logger: testLogger()})
	require.NoError(t, err)

	texts := make([]string, 70)
	for i := range texts {
		texts[i] = fmt.Sprintf("passagem %d", i)
	}
	reranked, err := r.Rerank(context.Background(), "consulta", makeHits(texts...), 0)
	require.NoError(t, err)
	require.Len(t, reranked, 70)

	// 70 pairs with batch size 32 -> 3 requests.
	assert.Equal(t, int32(3), calls.Load())
	assert.LessOrEqual(t, maxBatch.Load(), int32(32))

	// Highest suffix wins regardless of which batch scored it.
	assert.Equal(t, "doc_69", reranked[0].Chunk.DocID)
	assert.Equal(t, "doc_0", reranked[69].Chunk.DocID)
}

func TestCrossEncoderRequestFormat(t *testing.T) {
	var gotAuth string
	var gotReq scoreRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(scoreResponse{Scores: make([]float64, len(gotReq.Pairs))})
	}))
	defer server.Close()

	r, err := NewCrossEncoder(Config{
		URL:    server.URL,
		Model:  "custom-model",
		APIKey: "sk-rerank",
		Logger: testLogger(),
	})
	require.NoError(t, err)

	_, err = r.Rerank(context.Background(), "como usar goroutines", makeHits("texto a", "texto b"), 0)
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-rerank", gotAuth)
	assert.Equal(t, "custom-model", gotReq.Model)
	require.Len(t, gotReq.Pairs, 2)
	assert.Equal(t, [2]string{"como usar goroutines", "texto a"}, gotReq.Pairs[0])
	assert.Equal(t, [2]string{"como usar goroutines", "texto b"}, gotReq.Pairs[1])
}

func TestCrossEncoderUnavailable(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}))
		defer server.Close()

		r, err := NewCrossEncoder(Config{URL: server.URL, Logger: testLogger()})
		require.NoError(t, err)

		_, err = r.Rerank(context.Background(), "consulta", makeHits("texto"), 0)
		assert.ErrorIs(t, err, types.ErrRerankUnavailable)
	})

	t.Run("connection refused", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		r, err := NewCrossEncoder(Config{URL: server.URL, Logger: testLogger()})
		require.NoError(t, err)

		_, err = r.Rerank(context.Background(), "consulta", makeHits("texto"), 0)
		assert.ErrorIs(t, err, types.ErrRerankUnavailable)
	})

	t.Run("score count mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(scoreResponse{Scores: []float64{0.5}})
		}))
		defer server.Close()

		r, err := NewCrossEncoder(Config{URL: server.URL, Logger: testLogger()})
		require.NoError(t, err)

		_, err = r.Rerank(context.Background(), "consulta", makeHits("texto a", "texto b"), 0)
		assert.ErrorIs(t, err, types.ErrRerankUnavailable)
		assert.Contains(t, err.Error(), "2 pairs")
	})
}

func TestCrossEncoderEmptyInput(t *testing.T) {
	var calls atomic.Int32
	server := scoreServer(t, &calls, func(pair [2]string) float64 { return 0 })
	defer server.Close()

	r, err := NewCrossEncoder(Config{URL: server.URL, Logger: testLogger()})
	require.NoError(t, err)

	reranked, err := r.Rerank(context.Background(), "consulta", nil, 12)
	require.NoError(t, err)
	assert.Empty(t, reranked)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCrossEncoderTopK(t *testing.T) {
	var calls atomic.Int32
	server := scoreServer(t, &calls, func(pair [2]string) float64 {
		return float64(len(pair[1]))
	})
	defer server.Close()

	r, err := NewCrossEncoder(Config{URL: server.URL, Logger: testLogger()})
	require.NoError(t, err)

	hits := makeHits("a", "abc", "ab", "abcd")
	reranked, err := r.Rerank(context.Background(), "consulta", hits, 2)
	require.NoError(t, err)
	require.Len(t, reranked, 2)
	assert.Equal(t, "doc_3", reranked[0].Chunk.DocID)
	assert.Equal(t, "doc_1", reranked[1].Chunk.DocID)
}

func TestRankDropsNonFiniteScores(t *testing.T) {
	r := &CrossEncoder{config: Config{}, logger: testLogger()}

	hits := makeHits("a", "b", "c", "d")
	scores := []float64{2.0, math.NaN(), math.Inf(1), -1.0}

	ranked := r.rank(hits, scores, 0)
	require.Len(t, ranked, 2)
	assert.Equal(t, "doc_0", ranked[0].Chunk.DocID)
	assert.Equal(t, 1.0, ranked[0].Score)
	assert.Equal(t, "doc_3", ranked[1].Chunk.DocID)
	assert.Equal(t, 0.0, ranked[1].Score)

	// Every score non-finite -> nothing survives.
	ranked = r.rank(makeHits("a", "b"), []float64{math.NaN(), math.Inf(-1)}, 0)
	assert.Empty(t, ranked)
}

func TestRankStableOnTies(t *testing.T) {
	r := &CrossEncoder{config: Config{}, logger: testLogger()}

	hits := makeHits("a", "b", "c")
	ranked := r.rank(hits, []float64{3.5, 3.5, 3.5}, 0)
	require.Len(t, ranked, 3)

	// Equal scores keep the incoming (fusion) order.
	assert.Equal(t, "doc_0", ranked[0].Chunk.DocID)
	assert.Equal(t, "doc_1", ranked[1].Chunk.DocID)
	assert.Equal(t, "doc_2", ranked[2].Chunk.DocID)
}

func TestNormalizeScores(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   []float64
	}{
		{"empty", nil, nil},
		{"single score untouched", []float64{4.2}, []float64{4.2}},
		{"range mapped to unit interval", []float64{-2, 0, 2}, []float64{0, 0.5, 1}},
		{"all equal left untouched", []float64{7, 7}, []float64{7, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := append([]float64(nil), tt.scores...)
			normalizeScores(scores)
			if tt.want == nil {
				assert.Empty(t, scores)
				return
			}
			require.Len(t, scores, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], scores[i], 1e-9)
			}
		})
	}
}

func TestDisabled(t *testing.T) {
	d := NewDisabled()
	assert.False(t, d.Enabled())

	hits := makeHits("a", "b", "c")
	out, err := d.Rerank(context.Background(), "consulta", hits, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Fusion order preserved, nothing marked as reranked.
	assert.Equal(t, "doc_0", out[0].Chunk.DocID)
	assert.Equal(t, "doc_1", out[1].Chunk.DocID)
	assert.False(t, out[0].Reranked)
	assert.Equal(t, hits[0].Score, out[0].Score)
}

func TestNewCrossEncoderDefaults(t *testing.T) {
	_, err := NewCrossEncoder(Config{})
	assert.Error(t, err)

	r, err := NewCrossEncoder(Config{URL: "http://localhost:8081/rerank"})
	require.NoError(t, err)
	assert.True(t, r.Enabled())
	assert.Equal(t, DefaultModel, r.config.Model)
	assert.Equal(t, DefaultBatchSize, r.config.BatchSize)
	assert.Equal(t, 10*time.Second, r.config.Timeout)
	assert.NotNil(t, r.logger)
}

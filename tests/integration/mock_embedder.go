package integration

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/dmribeiro/contexto-mcp/internal/embedder"
)

// topicEmbedder produces deterministic bag-of-words vectors: every word
// hashes onto one axis, so texts sharing vocabulary come out
// cosine-similar. Crude next to a real model, but it gives dense
// retrieval a genuine topical signal without network access, which is
// exactly what ranking assertions need.
type topicEmbedder struct {
	dimension int
}

func newTopicEmbedder(dimension int) *topicEmbedder {
	return &topicEmbedder{dimension: dimension}
}

// GenerateEmbedding produces the bag-of-words vector for one text.
func (m *topicEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if req.Text == "" {
		return nil, embedder.ErrEmptyText
	}

	return &embedder.Embedding{
		Vector:    m.vector(req.Text),
		Dimension: m.dimension,
		Provider:  "topic",
		Model:     "bow-v1",
		Hash:      embedder.ComputeHash(req.Text),
	}, nil
}

// GenerateBatch embeds each text independently.
func (m *topicEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}

	return &embedder.BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   "topic",
		Model:      "bow-v1",
	}, nil
}

func (m *topicEmbedder) vector(text string) []float32 {
	vec := make([]float32, m.dimension)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[int(h.Sum32()%uint32(m.dimension))]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		norm := float32(math.Sqrt(sum))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// Dimension returns the embedding dimension
func (m *topicEmbedder) Dimension() int {
	return m.dimension
}

// Provider returns the provider name
func (m *topicEmbedder) Provider() string {
	return "topic"
}

// Model returns the model name
func (m *topicEmbedder) Model() string {
	return "bow-v1"
}

// Close releases resources (no-op for the mock)
func (m *topicEmbedder) Close() error {
	return nil
}

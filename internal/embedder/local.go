package embedder

import (
	"context"
	"crypto/sha256"
	"math"
)

// Local provider constants
const (
	DefaultLocalModel = "hash-embed-v1"
	LocalDimension    = 384
)

// LocalProvider generates deterministic embeddings without any model or
// network. Vectors are derived from a SHA-256 chain over the text, so
// the same text always maps to the same unit vector and different texts
// map to uncorrelated ones. There is no semantic signal; this provider
// exists for tests, offline development, and air-gapped deployments
// where the sparse index carries relevance on its own.
type LocalProvider struct {
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a deterministic offline provider. A
// dimension <= 0 falls back to LocalDimension.
func NewLocalProvider(dimension int, cache *Cache) (*LocalProvider, error) {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	if cache == nil {
		cache = NewCache(0)
	}
	return &LocalProvider{
		dimension: dimension,
		cache:     cache,
	}, nil
}

// GenerateEmbedding generates a single deterministic embedding
func (p *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if cached, ok := p.cache.Get(hash); ok {
		return cached, nil
	}

	emb := &Embedding{
		Vector:    p.deterministicVector(req.Text),
		Dimension: p.dimension,
		Provider:  ProviderLocal,
		Model:     DefaultLocalModel,
		Hash:      hash,
	}
	p.cache.Set(hash, emb)

	return emb, nil
}

// GenerateBatch generates deterministic embeddings for multiple texts
func (p *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      DefaultLocalModel,
	}, nil
}

// deterministicVector derives a unit vector from a SHA-256 chain over
// the text. Each 32-byte block is the hash of the previous one, and
// byte values are centered to [-1, 1] before normalization.
func (p *LocalProvider) deterministicVector(text string) []float32 {
	vector := make([]float32, p.dimension)

	block := sha256.Sum256([]byte(text))
	for i := 0; i < p.dimension; i++ {
		if i > 0 && i%sha256.Size == 0 {
			block = sha256.Sum256(block[:])
		}
		b := block[i%sha256.Size]
		vector[i] = (float32(b) - 127.5) / 127.5
	}

	return NormalizeVector(vector)
}

// Dimension returns the configured embedding dimension
func (p *LocalProvider) Dimension() int {
	return p.dimension
}

// Provider returns the provider name
func (p *LocalProvider) Provider() string {
	return ProviderLocal
}

// Model returns the model name
func (p *LocalProvider) Model() string {
	return DefaultLocalModel
}

// Close is a no-op for the local provider
func (p *LocalProvider) Close() error {
	return nil
}

// NormalizeVector scales a vector to unit length. The zero vector is
// returned unchanged.
func NormalizeVector(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vector
	}

	norm := float32(math.Sqrt(sum))
	normalized := make([]float32, len(vector))
	for i, v := range vector {
		normalized[i] = v / norm
	}
	return normalized
}

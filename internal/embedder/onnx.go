package embedder

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// ONNX provider constants
const (
	DefaultONNXModel = "intfloat/multilingual-e5-base"
	ONNXDimension    = 768
)

// ONNXProvider runs a sentence-transformer model in-process through
// hugot's pure-Go ONNX backend. No network calls after the model is on
// disk, which makes it the provider of choice for self-hosted
// deployments that still want real semantic embeddings.
type ONNXProvider struct {
	modelName string
	dimension int
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	cache     *Cache

	// RunPipeline is not safe for concurrent use; serialize calls.
	mu sync.Mutex
}

// ONNXOptions configures an ONNXProvider.
type ONNXOptions struct {
	ModelPath string // Local directory holding the exported ONNX model
	Model     string // Hugging Face model name, used to download into ModelPath when it is missing
	Dimension int    // Vector dimension the model produces
}

// NewONNXProvider loads an ONNX embedding model from disk, downloading
// it first when the model directory does not exist yet.
func NewONNXProvider(opts ONNXOptions, cache *Cache) (*ONNXProvider, error) {
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("%w: ONNX model path not set", ErrNoProviderEnabled)
	}

	modelName := opts.Model
	if modelName == "" {
		modelName = DefaultONNXModel
	}
	dimension := opts.Dimension
	if dimension <= 0 {
		dimension = ONNXDimension
	}
	if cache == nil {
		cache = NewCache(0)
	}

	modelPath, err := prepareModel(opts.ModelPath, modelName)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("%w: create hugot session: %v", ErrProviderFailed, err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedding-pipeline",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("%w: create pipeline: %v (cleanup error: %v)", ErrProviderFailed, err, destroyErr)
		}
		return nil, fmt.Errorf("%w: create pipeline: %v", ErrProviderFailed, err)
	}

	return &ONNXProvider{
		modelName: modelName,
		dimension: dimension,
		session:   session,
		pipeline:  pipeline,
		cache:     cache,
	}, nil
}

// prepareModel returns the on-disk model directory, downloading the
// model from the Hugging Face hub when the directory is missing.
func prepareModel(modelPath, modelName string) (string, error) {
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	}

	if err := os.MkdirAll(modelPath, 0o755); err != nil {
		return "", fmt.Errorf("%w: create model directory: %v", ErrProviderFailed, err)
	}

	downloadOptions := hugot.NewDownloadOptions()
	downloadOptions.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := hugot.DownloadModel(modelName, modelPath, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("%w: download model %s: %v", ErrProviderFailed, modelName, err)
	}

	return downloaded, nil
}

// GenerateEmbedding generates a single embedding, checking cache first
func (p *ONNXProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if cached, ok := p.cache.Get(hash); ok {
		return cached, nil
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
	})
	if err != nil {
		return nil, err
	}

	return resp.Embeddings[0], nil
}

// GenerateBatch runs the model over all texts in a single forward pass
func (p *ONNXProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d texts (max %d)", ErrBatchTooLarge, len(req.Texts), MaxBatchSize)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	result, err := p.pipeline.RunPipeline(req.Texts)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	if len(result.Embeddings) != len(req.Texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(result.Embeddings), len(req.Texts))
	}

	embeddings := make([]*Embedding, len(result.Embeddings))
	for i, vector := range result.Embeddings {
		hash := ComputeHash(req.Texts[i])
		emb := &Embedding{
			Vector:    NormalizeVector(vector),
			Dimension: len(vector),
			Provider:  ProviderONNX,
			Model:     p.modelName,
			Hash:      hash,
		}
		p.cache.Set(hash, emb)
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderONNX,
		Model:      p.modelName,
	}, nil
}

// Dimension returns the configured embedding dimension
func (p *ONNXProvider) Dimension() int {
	return p.dimension
}

// Provider returns the provider name
func (p *ONNXProvider) Provider() string {
	return ProviderONNX
}

// Model returns the model name
func (p *ONNXProvider) Model() string {
	return p.modelName
}

// Close destroys the hugot session and its pipelines
func (p *ONNXProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	err := p.session.Destroy()
	p.session = nil
	p.pipeline = nil
	return err
}

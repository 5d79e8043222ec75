package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Provider names
const (
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderLocal  = "local"
)

// OpenAI-compatible API constants
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"
	OpenAIDimension      = 1536

	DefaultBatchSize = 50
	MaxBatchSize     = 100

	defaultHTTPTimeout = 60 * time.Second
)

// OpenAIProvider generates embeddings through any OpenAI-compatible
// /v1/embeddings endpoint. Besides the hosted OpenAI API this covers
// LM Studio, Ollama and other local servers that speak the same wire
// format; point BaseURL at them and leave the API key empty.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
}

// OpenAIOptions configures an OpenAIProvider. Zero values fall back to
// the hosted OpenAI defaults.
type OpenAIOptions struct {
	APIKey    string
	BaseURL   string        // Endpoint root, e.g. http://localhost:1234/v1
	Model     string        // Embedding model name
	Dimension int           // Vector dimension the model produces
	Timeout   time.Duration // Per-request HTTP timeout
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible API.
// An API key is mandatory for the hosted endpoint; local servers
// typically accept anonymous requests.
func NewOpenAIProvider(opts OpenAIOptions, cache *Cache) (*OpenAIProvider, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if opts.APIKey == "" && baseURL == DefaultOpenAIBaseURL {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrNoProviderEnabled)
	}

	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	dimension := opts.Dimension
	if dimension <= 0 {
		dimension = OpenAIDimension
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	if cache == nil {
		cache = NewCache(0)
	}

	return &OpenAIProvider{
		apiKey:    opts.APIKey,
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache: cache,
	}, nil
}

// GenerateEmbedding generates a single embedding, checking cache first
func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if cached, ok := p.cache.Get(hash); ok {
		return cached, nil
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	return resp.Embeddings[0], nil
}

// GenerateBatch generates embeddings for multiple texts in one API call
func (p *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d texts (max %d)", ErrBatchTooLarge, len(req.Texts), MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	vectors, err := retryWithBackoff(ctx, DefaultRetryConfig(), func() ([][]float32, error) {
		return p.callAPI(ctx, req.Texts, model)
	})
	if err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(vectors))
	for i, vector := range vectors {
		hash := ComputeHash(req.Texts[i])
		emb := &Embedding{
			Vector:    vector,
			Dimension: len(vector),
			Provider:  ProviderOpenAI,
			Model:     model,
			Hash:      hash,
		}
		p.cache.Set(hash, emb)
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOpenAI,
		Model:      model,
	}, nil
}

type openAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// callAPI performs a single /v1/embeddings request. The response data
// is reordered by index because the API does not guarantee input order.
func (p *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	body, err := json.Marshal(openAIRequest{
		Input: texts,
		Model: model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrProviderFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrProviderFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderFailed, httpResp.StatusCode, string(respBody))
	}

	var apiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProviderFailed, err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(apiResp.Data), len(texts))
	}

	sort.Slice(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})

	vectors := make([][]float32, len(apiResp.Data))
	for i, d := range apiResp.Data {
		vectors[i] = d.Embedding
	}

	return vectors, nil
}

// Dimension returns the configured embedding dimension
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Provider returns the provider name
func (p *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

// Model returns the model name
func (p *OpenAIProvider) Model() string {
	return p.model
}

// BaseURL returns the endpoint root this provider talks to
func (p *OpenAIProvider) BaseURL() string {
	return p.baseURL
}

// Close releases HTTP resources
func (p *OpenAIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

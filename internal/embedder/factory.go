package embedder

import (
	"fmt"
	"strings"
	"time"
)

// Config holds embedder construction parameters. The caller (normally
// the config package) resolves environment variables; this package
// never reads the environment itself.
type Config struct {
	Provider      string // "openai", "onnx", "local", or "" for auto-detection
	APIKey        string
	BaseURL       string // OpenAI-compatible endpoint root, e.g. LM Studio
	Model         string
	Dimension     int
	ONNXModelPath string
	CacheSize     int
	Timeout       time.Duration
}

// New creates an embedder from explicit configuration.
// When Provider is empty the provider is auto-detected, see DetectProvider.
func New(cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)

	provider := cfg.Provider
	if provider == "" {
		provider = DetectProvider(cfg)
	}

	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		}, cache)
	case ProviderONNX:
		return NewONNXProvider(ONNXOptions{
			ModelPath: cfg.ONNXModelPath,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		}, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension, cache)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// DetectProvider returns the provider New would pick for a config with
// no explicit Provider set. An API key or a custom endpoint selects the
// OpenAI-compatible provider, a model path selects ONNX, and everything
// else falls back to the offline local provider.
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	if cfg.APIKey != "" || cfg.BaseURL != "" {
		return ProviderOpenAI
	}
	if cfg.ONNXModelPath != "" {
		return ProviderONNX
	}
	return ProviderLocal
}

// Package config loads and validates the engine configuration from
// environment variables. A .env file is honored when present. The resulting
// Config is passed by injection into every component constructor; nothing in
// this module reads the environment after startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the complete engine configuration.
type Config struct {
	Retrieval RetrievalConfig
	Sparse    SparseConfig
	Dense     DenseConfig
	Embedding EmbeddingConfig
	Rerank    RerankConfig
	Storage   StorageConfig
	Indexer   IndexerConfig
	LogLevel  string
}

// RetrievalConfig holds pipeline knobs.
type RetrievalConfig struct {
	TopKDense  int
	TopKSparse int
	TopKFused  int
	TopKRerank int

	// RRFK is the reciprocal-rank fusion constant.
	RRFK float64

	MaxPerDoc int
	MinDocs   int

	// MaxCharsPerChunk bounds each returned chunk's text.
	MaxCharsPerChunk int

	// MaxIterations caps the coverage-driven retry loop (1 = no retry).
	MaxIterations int

	// CoverageThreshold is the must-have term coverage below which the
	// pipeline retries with widened top-k.
	CoverageThreshold float64

	// WidenFactor scales the stage top-k values on retry.
	WidenFactor float64

	// CacheSize is the query-result LRU capacity; 0 disables caching.
	CacheSize int
	CacheTTL  time.Duration
}

// SparseConfig holds lexical index tuning.
type SparseConfig struct {
	// K1 and B are the BM25 Okapi parameters.
	K1 float64
	B  float64

	// MustHaveBoost multiplies a document's score once per matched
	// must-have term. 1.0 disables boosting.
	MustHaveBoost float64

	// IndexPath is where the JSON snapshot is saved; empty disables
	// persistence.
	IndexPath string
}

// DenseConfig selects and configures the vector backend.
type DenseConfig struct {
	// Backend is "sqlite" (embedded) or "qdrant" (remote).
	Backend string

	QdrantURL    string
	QdrantAPIKey string
	Collection   string

	// ScoreThreshold drops dense hits below this similarity; 0 keeps all.
	ScoreThreshold float64

	Timeout time.Duration
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai", "onnx" or "local". Empty auto-detects: openai
	// when an API key or base URL override is present, local otherwise.
	Provider string

	APIKey  string
	BaseURL string
	Model   string

	// Dimension must match the provider's output and the vector store
	// collection.
	Dimension int

	// ONNXModelPath points at a local feature-extraction model directory
	// for the in-process provider.
	ONNXModelPath string

	CacheSize int
	Timeout   time.Duration
}

// RerankConfig configures the cross-encoder stage.
type RerankConfig struct {
	Enabled   bool
	URL       string
	Model     string
	BatchSize int
	Timeout   time.Duration
}

// StorageConfig configures the durable chunk store.
type StorageConfig struct {
	DBPath string
}

// IndexerConfig tunes the ingestion pipeline.
type IndexerConfig struct {
	// Workers bounds concurrent embedding batches.
	Workers int

	// EmbedBatchSize is how many chunk texts go to the provider per call.
	EmbedBatchSize int

	// ReembedUnchanged forces re-embedding even when the stored vector
	// already matches the chunk text and embedder.
	ReembedUnchanged bool
}

// Load builds the configuration from the environment, reading .env first
// when present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Retrieval: RetrievalConfig{
			TopKDense:         getEnvAsInt("CONTEXTO_TOPK_DENSE", 60),
			TopKSparse:        getEnvAsInt("CONTEXTO_TOPK_SPARSE", 60),
			TopKFused:         getEnvAsInt("CONTEXTO_TOPK_FUSED", 80),
			TopKRerank:        getEnvAsInt("CONTEXTO_TOPK_RERANK", 12),
			RRFK:              getEnvAsFloat("CONTEXTO_RRF_K", 60),
			MaxPerDoc:         getEnvAsInt("CONTEXTO_MAX_PER_DOC", 3),
			MinDocs:           getEnvAsInt("CONTEXTO_MIN_DOCS", 3),
			MaxCharsPerChunk:  getEnvAsInt("CONTEXTO_MAX_CHARS_PER_CHUNK", 1600),
			MaxIterations:     getEnvAsInt("CONTEXTO_MAX_QUERY_ITERATIONS", 2),
			CoverageThreshold: getEnvAsFloat("CONTEXTO_COVERAGE_THRESHOLD", 0.4),
			WidenFactor:       getEnvAsFloat("CONTEXTO_WIDEN_FACTOR", 1.2),
			CacheSize:         getEnvAsInt("CONTEXTO_QUERY_CACHE_SIZE", 100),
			CacheTTL:          getEnvAsDuration("CONTEXTO_QUERY_CACHE_TTL", time.Hour),
		},
		Sparse: SparseConfig{
			K1:            getEnvAsFloat("CONTEXTO_BM25_K1", 1.5),
			B:             getEnvAsFloat("CONTEXTO_BM25_B", 0.75),
			MustHaveBoost: getEnvAsFloat("CONTEXTO_MUST_HAVE_BOOST", 1.25),
			IndexPath:     getEnv("CONTEXTO_SPARSE_INDEX_PATH", ""),
		},
		Dense: DenseConfig{
			Backend:        getEnv("CONTEXTO_VECTOR_BACKEND", "sqlite"),
			QdrantURL:      getEnv("QDRANT_URL", "http://localhost:6333"),
			QdrantAPIKey:   getEnv("QDRANT_API_KEY", ""),
			Collection:     getEnv("CONTEXTO_COLLECTION", "rag_chunks"),
			ScoreThreshold: getEnvAsFloat("CONTEXTO_SCORE_THRESHOLD", 0),
			Timeout:        getEnvAsDuration("CONTEXTO_VECTOR_TIMEOUT", 30*time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider:      getEnv("CONTEXTO_EMBEDDING_PROVIDER", ""),
			APIKey:        getEnv("OPENAI_API_KEY", ""),
			BaseURL:       getEnv("CONTEXTO_EMBEDDING_BASE_URL", ""),
			Model:         getEnv("CONTEXTO_EMBEDDING_MODEL", "intfloat/multilingual-e5-base"),
			Dimension:     getEnvAsInt("CONTEXTO_EMBEDDING_DIMENSION", 768),
			ONNXModelPath: getEnv("CONTEXTO_ONNX_MODEL_PATH", ""),
			CacheSize:     getEnvAsInt("CONTEXTO_EMBEDDING_CACHE_SIZE", 1000),
			Timeout:       getEnvAsDuration("CONTEXTO_EMBEDDING_TIMEOUT", 60*time.Second),
		},
		Rerank: RerankConfig{
			Enabled:   getEnvAsBool("CONTEXTO_RERANK_ENABLED", true),
			URL:       getEnv("CONTEXTO_RERANK_URL", ""),
			Model:     getEnv("CONTEXTO_RERANK_MODEL", "cross-encoder/ms-marco-MiniLM-L-6-v2"),
			BatchSize: getEnvAsInt("CONTEXTO_RERANK_BATCH_SIZE", 32),
			Timeout:   getEnvAsDuration("CONTEXTO_RERANK_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			DBPath: getEnv("CONTEXTO_DB_PATH", defaultDBPath()),
		},
		Indexer: IndexerConfig{
			Workers:          getEnvAsInt("CONTEXTO_INDEX_WORKERS", 4),
			EmbedBatchSize:   getEnvAsInt("CONTEXTO_INDEX_EMBED_BATCH", 32),
			ReembedUnchanged: getEnvAsBool("CONTEXTO_INDEX_REEMBED_UNCHANGED", false),
		},
		LogLevel: getEnv("CONTEXTO_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.TopKDense <= 0 || r.TopKSparse <= 0 || r.TopKFused <= 0 || r.TopKRerank <= 0 {
		return fmt.Errorf("top-k values must be positive")
	}
	if r.RRFK <= 0 {
		return fmt.Errorf("rrf k must be positive")
	}
	if r.MaxPerDoc <= 0 || r.MinDocs <= 0 {
		return fmt.Errorf("diversity knobs must be positive")
	}
	if r.MaxIterations < 1 {
		return fmt.Errorf("max query iterations must be >= 1")
	}
	if r.CoverageThreshold < 0 || r.CoverageThreshold > 1 {
		return fmt.Errorf("coverage threshold must be in [0, 1]")
	}
	if r.WidenFactor <= 1 {
		return fmt.Errorf("widen factor must be > 1")
	}

	if c.Sparse.K1 <= 0 {
		return fmt.Errorf("bm25 k1 must be positive")
	}
	if c.Sparse.B < 0 || c.Sparse.B > 1 {
		return fmt.Errorf("bm25 b must be in [0, 1]")
	}
	if c.Sparse.MustHaveBoost < 1 {
		return fmt.Errorf("must-have boost must be >= 1")
	}

	switch c.Dense.Backend {
	case "sqlite", "qdrant":
	default:
		return fmt.Errorf("unknown vector backend %q", c.Dense.Backend)
	}
	if c.Dense.Backend == "qdrant" {
		if c.Dense.QdrantURL == "" {
			return fmt.Errorf("qdrant url is required for the qdrant backend")
		}
		if c.Dense.Collection == "" {
			return fmt.Errorf("qdrant collection name is required")
		}
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if c.Rerank.Enabled && c.Rerank.BatchSize <= 0 {
		return fmt.Errorf("rerank batch size must be positive")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Indexer.Workers <= 0 {
		return fmt.Errorf("indexer workers must be positive")
	}
	if c.Indexer.EmbedBatchSize <= 0 {
		return fmt.Errorf("embed batch size must be positive")
	}
	return nil
}

// LogString returns a loggable summary without credentials.
func (c *Config) LogString() string {
	return fmt.Sprintf(
		"backend=%s collection=%s embedder=%s/%s dim=%d rerank=%v db=%s",
		c.Dense.Backend, c.Dense.Collection,
		c.Embedding.Provider, c.Embedding.Model, c.Embedding.Dimension,
		c.Rerank.Enabled, c.Storage.DBPath,
	)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "contexto.db"
	}
	return home + "/.contexto/contexto.db"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/dmribeiro/contexto-mcp/internal/config"
	"github.com/dmribeiro/contexto-mcp/internal/dense"
	"github.com/dmribeiro/contexto-mcp/internal/embedder"
	"github.com/dmribeiro/contexto-mcp/internal/indexer"
	"github.com/dmribeiro/contexto-mcp/internal/rerank"
	"github.com/dmribeiro/contexto-mcp/internal/retriever"
	"github.com/dmribeiro/contexto-mcp/internal/sparse"
	"github.com/dmribeiro/contexto-mcp/internal/storage"
	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "contexto-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with the retrieval engine's components.
type Server struct {
	mcp       *server.MCPServer
	config    *config.Config
	logger    *logrus.Logger
	storage   *storage.SQLiteStorage
	sparse    *sparse.Index
	vectors   dense.VectorStore
	qdrant    *dense.QdrantStore // nil for the embedded backend
	embedder  embedder.Embedder
	indexer   *indexer.Indexer
	retriever *retriever.Retriever
}

// NewServer wires the full engine from configuration: durable storage,
// embedder, vector store, sparse index, indexer and retriever.
func NewServer(cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	if logger == nil {
		logger = logrus.New()
	}

	if dir := filepath.Dir(cfg.Storage.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:      cfg.Embedding.Provider,
		APIKey:        cfg.Embedding.APIKey,
		BaseURL:       cfg.Embedding.BaseURL,
		Model:         cfg.Embedding.Model,
		Dimension:     cfg.Embedding.Dimension,
		ONNXModelPath: cfg.Embedding.ONNXModelPath,
		CacheSize:     cfg.Embedding.CacheSize,
		Timeout:       cfg.Embedding.Timeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	sparseIdx := sparse.New(sparse.Config{
		K1:            cfg.Sparse.K1,
		B:             cfg.Sparse.B,
		MustHaveBoost: cfg.Sparse.MustHaveBoost,
		Logger:        logger,
	})
	if cfg.Sparse.IndexPath != "" {
		if err := sparseIdx.Load(cfg.Sparse.IndexPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Info("no sparse snapshot found, starting with an empty index")
			} else {
				logger.WithError(err).Warn("failed to load sparse snapshot, starting empty")
			}
		}
	}

	vectors, qdrant, err := buildVectorStore(cfg, store, logger)
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, err
	}

	retr := retriever.New(vectors, sparseIdx, emb, buildReranker(cfg, logger), retriever.Config{
		TopK: types.TopKConfig{
			Dense:  cfg.Retrieval.TopKDense,
			Sparse: cfg.Retrieval.TopKSparse,
			Fused:  cfg.Retrieval.TopKFused,
			Rerank: cfg.Retrieval.TopKRerank,
		},
		Diversity: types.DiversityConfig{
			MaxPerDoc: cfg.Retrieval.MaxPerDoc,
			MinDocs:   cfg.Retrieval.MinDocs,
		},
		RRFK:              cfg.Retrieval.RRFK,
		MaxCharsPerChunk:  cfg.Retrieval.MaxCharsPerChunk,
		MaxIterations:     cfg.Retrieval.MaxIterations,
		CoverageThreshold: cfg.Retrieval.CoverageThreshold,
		WidenFactor:       cfg.Retrieval.WidenFactor,
		CacheSize:         cfg.Retrieval.CacheSize,
		CacheTTL:          cfg.Retrieval.CacheTTL,
		Logger:            logger,
	})

	idx := indexer.New(store, sparseIdx, vectors, emb, indexer.Config{
		Workers:          cfg.Indexer.Workers,
		EmbedBatchSize:   cfg.Indexer.EmbedBatchSize,
		ReembedUnchanged: cfg.Indexer.ReembedUnchanged,
		SparseIndexPath:  cfg.Sparse.IndexPath,
		OnMutate:         retr.InvalidateCache,
		Logger:           logger,
	})

	mcpServer := server.NewMCPServer(ServerName, ServerVersion)

	s := &Server{
		mcp:       mcpServer,
		config:    cfg,
		logger:    logger,
		storage:   store,
		sparse:    sparseIdx,
		vectors:   vectors,
		qdrant:    qdrant,
		embedder:  emb,
		indexer:   idx,
		retriever: retr,
	}
	s.registerTools()

	return s, nil
}

// buildVectorStore picks the dense backend. The embedded store is
// always constructed: with Qdrant configured it becomes a write
// replica, keeping SQLite the system of record so rebuilds never
// re-embed anything.
func buildVectorStore(cfg *config.Config, store *storage.SQLiteStorage, logger *logrus.Logger) (dense.VectorStore, *dense.QdrantStore, error) {
	embedded := dense.NewSQLiteStore(store, cfg.Dense.ScoreThreshold)
	if cfg.Dense.Backend != "qdrant" {
		return embedded, nil, nil
	}

	qdrant, err := dense.NewQdrantStore(dense.QdrantConfig{
		URL:            cfg.Dense.QdrantURL,
		APIKey:         cfg.Dense.QdrantAPIKey,
		Collection:     cfg.Dense.Collection,
		VectorSize:     cfg.Embedding.Dimension,
		ScoreThreshold: cfg.Dense.ScoreThreshold,
		Timeout:        cfg.Dense.Timeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize qdrant: %w", err)
	}
	return dense.NewMirroredStore(qdrant, embedded), qdrant, nil
}

// buildReranker returns a live cross-encoder when one is configured and
// the disabled no-op otherwise.
func buildReranker(cfg *config.Config, logger *logrus.Logger) rerank.Reranker {
	if !cfg.Rerank.Enabled || cfg.Rerank.URL == "" {
		return rerank.NewDisabled()
	}
	encoder, err := rerank.NewCrossEncoder(rerank.Config{
		URL:       cfg.Rerank.URL,
		Model:     cfg.Rerank.Model,
		BatchSize: cfg.Rerank.BatchSize,
		Timeout:   cfg.Rerank.Timeout,
		Logger:    logger,
	})
	if err != nil {
		logger.WithError(err).Warn("failed to initialize reranker, continuing without")
		return rerank.NewDisabled()
	}
	return encoder
}

// Serve prepares the backends and serves MCP over stdio until the
// client disconnects. Backend resources are released on return.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	s.warmup(ctx)
	s.logger.WithField("config", s.config.LogString()).Info("contexto mcp server ready")
	return server.ServeStdio(s.mcp)
}

// warmup ensures the remote collection exists and heals the sparse
// index from the durable store when the snapshot did not cover it.
// Failures are logged, not fatal: the engine can still answer with the
// surfaces that are up.
func (s *Server) warmup(ctx context.Context) {
	if s.qdrant != nil {
		if err := s.qdrant.EnsureCollection(ctx); err != nil {
			s.logger.WithError(err).Warn("failed to ensure qdrant collection")
		}
	}

	if s.sparse.Count() > 0 {
		return
	}
	stored, err := s.storage.ChunkCount(ctx)
	if err != nil || stored == 0 {
		return
	}
	if _, err := s.indexer.RebuildSparse(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to rebuild sparse index at startup")
	}
}

// HandleMessage processes one raw JSON-RPC message and returns the
// response. Non-stdio transports and integration tests embed the
// server through it.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcp.HandleMessage(ctx, message)
}

// Close releases every backend resource.
func (s *Server) Close() error {
	var firstErr error
	if err := s.vectors.Close(); err != nil {
		firstErr = err
	}
	if err := s.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.storage.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(retrieveTool(), s.handleRetrieve)
	s.mcp.AddTool(indexChunksTool(), s.handleIndexChunks)
	s.mcp.AddTool(deleteDocumentTool(), s.handleDeleteDocument)
	s.mcp.AddTool(rebuildIndexTool(), s.handleRebuildIndex)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}

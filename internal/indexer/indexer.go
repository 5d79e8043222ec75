package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dmribeiro/contexto-mcp/internal/dense"
	"github.com/dmribeiro/contexto-mcp/internal/embedder"
	"github.com/dmribeiro/contexto-mcp/internal/sparse"
	"github.com/dmribeiro/contexto-mcp/internal/storage"
	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// ErrIndexBusy is returned when a mutating operation is rejected because
// another one is already running.
var ErrIndexBusy = errors.New("another indexing operation is already running")

// DefaultEmbedBatchSize is how many chunk texts go to the embedding
// provider per call when the config leaves it unset.
const DefaultEmbedBatchSize = 32

// rebuildPageSize is how many chunks RebuildSparse loads per storage page.
const rebuildPageSize = 500

// Config tunes the ingestion pipeline. Zero values get defaults.
type Config struct {
	// Workers bounds concurrent embedding batches (default: runtime.NumCPU()).
	Workers int

	// EmbedBatchSize is how many chunk texts go to the provider per call.
	EmbedBatchSize int

	// ReembedUnchanged forces re-embedding even when the stored vector
	// already matches the chunk text and the current embedder.
	ReembedUnchanged bool

	// SparseIndexPath, when set, receives a snapshot of the lexical index
	// after each successful mutation. Snapshot failures are logged, never
	// fatal; the index stays correct in memory.
	SparseIndexPath string

	// OnMutate runs after every successful mutation. The server hooks the
	// retriever's cache invalidation here.
	OnMutate func()

	Logger *logrus.Logger
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	return c
}

// Statistics describes one IndexChunks run.
type Statistics struct {
	ChunksReceived    int           `json:"chunks_received"`
	ChunksIndexed     int           `json:"chunks_indexed"`
	ChunksFailed      int           `json:"chunks_failed"`
	EmbeddingsCreated int           `json:"embeddings_created"`
	EmbeddingsSkipped int           `json:"embeddings_skipped"`
	Duration          time.Duration `json:"duration"`
	ErrorMessages     []string      `json:"error_messages,omitempty"`
}

// Indexer ingests chunks into the durable store, the sparse index and
// the vector store, keeping the three consistent.
type Indexer struct {
	store    storage.Store
	sparse   *sparse.Index
	vectors  dense.VectorStore
	embedder embedder.Embedder
	config   Config
	logger   *logrus.Logger
	lock     IndexLock
}

// New creates an indexer over the given backends.
func New(store storage.Store, sparseIdx *sparse.Index, vectors dense.VectorStore, emb embedder.Embedder, cfg Config) *Indexer {
	cfg = cfg.withDefaults()
	return &Indexer{
		store:    store,
		sparse:   sparseIdx,
		vectors:  vectors,
		embedder: emb,
		config:   cfg,
		logger:   cfg.Logger,
	}
}

// IndexChunks validates, stores, lexically indexes and embeds a batch
// of chunks. Chunk identity is the (tenant, document, ordinal) triple,
// so re-sending a chunk replaces its previous version everywhere.
//
// Invalid chunks are reported in the returned Statistics and skipped;
// the rest of the batch proceeds. Infrastructure failures (storage,
// embedder, vector store) abort the run with an error. Chunks already
// stored when the failure hit stay stored; re-running the same batch is
// safe and finishes the job.
func (idx *Indexer) IndexChunks(ctx context.Context, chunks []*types.Chunk) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexBusy
	}
	defer idx.lock.Release()

	start := time.Now()
	stats := &Statistics{
		ChunksReceived: len(chunks),
		ErrorMessages:  make([]string, 0),
	}

	valid := make([]*types.Chunk, 0, len(chunks))
	for i, chunk := range chunks {
		if chunk == nil {
			stats.ChunksFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("chunk %d: missing", i))
			continue
		}
		if err := chunk.Validate(); err != nil {
			stats.ChunksFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("chunk %d (%s): %v", i, chunk.Key(), err))
			continue
		}
		chunk.EnsureID()
		valid = append(valid, chunk)
	}

	if len(valid) == 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	if err := idx.store.UpsertChunks(ctx, valid); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := idx.sparse.Upsert(valid...); err != nil {
		return nil, fmt.Errorf("failed to update sparse index: %w", err)
	}
	stats.ChunksIndexed = len(valid)

	toEmbed, hashes, skipped, err := idx.planEmbedding(ctx, valid)
	if err != nil {
		return nil, err
	}
	stats.EmbeddingsSkipped = skipped

	points, err := idx.embedChunks(ctx, toEmbed, hashes)
	if err != nil {
		return nil, err
	}
	if len(points) > 0 {
		if err := idx.vectors.Upsert(ctx, points); err != nil {
			return nil, fmt.Errorf("failed to upsert vectors: %w", err)
		}
	}
	stats.EmbeddingsCreated = len(points)

	idx.saveSparse()
	idx.notifyMutation()

	stats.Duration = time.Since(start)
	idx.logger.WithFields(logrus.Fields{
		"received": stats.ChunksReceived,
		"indexed":  stats.ChunksIndexed,
		"failed":   stats.ChunksFailed,
		"embedded": stats.EmbeddingsCreated,
		"skipped":  stats.EmbeddingsSkipped,
		"duration": stats.Duration,
	}).Info("chunks indexed")

	return stats, nil
}

// planEmbedding decides which chunks need fresh vectors. A chunk is
// skipped when a stored vector exists for the same text hash, produced
// by the same provider and model. Returns the chunks to embed, their
// text hashes and the skip count.
func (idx *Indexer) planEmbedding(ctx context.Context, chunks []*types.Chunk) ([]*types.Chunk, []string, int, error) {
	var existing map[string]storage.EmbeddingMeta
	if !idx.config.ReembedUnchanged {
		ids := make([]string, len(chunks))
		for i, chunk := range chunks {
			ids[i] = chunk.ID
		}
		var err error
		existing, err = idx.store.EmbeddingMeta(ctx, ids)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to check stored embeddings: %w", err)
		}
	}

	provider := idx.embedder.Provider()
	model := idx.embedder.Model()

	toEmbed := make([]*types.Chunk, 0, len(chunks))
	hashes := make([]string, 0, len(chunks))
	skipped := 0
	for _, chunk := range chunks {
		hash := embedder.ComputeHash(chunk.Text)
		if meta, ok := existing[chunk.ID]; ok &&
			meta.TextHash == hash && meta.Provider == provider && meta.Model == model {
			skipped++
			continue
		}
		toEmbed = append(toEmbed, chunk)
		hashes = append(hashes, hash)
	}
	return toEmbed, hashes, skipped, nil
}

// embedChunks generates vectors for the chunks through a bounded worker
// pool, one provider call per batch. Each goroutine writes a disjoint
// range of the points slice, so no locking is needed.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []*types.Chunk, hashes []string) ([]dense.Point, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	points := make([]dense.Point, len(chunks))
	semaphore := make(chan struct{}, idx.config.Workers)
	g, gctx := errgroup.WithContext(ctx)

	batchSize := idx.config.EmbedBatchSize
	for begin := 0; begin < len(chunks); begin += batchSize {
		end := begin + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[begin:end]
		batchHashes := hashes[begin:end]
		out := points[begin:end]

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			texts := make([]string, len(batch))
			for i, chunk := range batch {
				texts[i] = chunk.Text
			}

			resp, err := idx.embedder.GenerateBatch(gctx, embedder.BatchEmbeddingRequest{Texts: texts})
			if err != nil {
				return fmt.Errorf("failed to embed batch starting at chunk %s: %w", batch[0].ID, err)
			}
			if len(resp.Embeddings) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(resp.Embeddings), len(batch))
			}

			for i, emb := range resp.Embeddings {
				point := dense.NewPoint(batch[i], emb.Vector)
				point.Provider = resp.Provider
				point.Model = resp.Model
				point.TextHash = batchHashes[i]
				out[i] = point
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// DeleteChunks removes every chunk of a document from the durable
// store, the sparse index and the vector store. Returns how many
// chunks were removed; an unknown document removes zero without error.
func (idx *Indexer) DeleteChunks(ctx context.Context, tenantID, docID string) (int, error) {
	if !idx.lock.TryAcquire() {
		return 0, ErrIndexBusy
	}
	defer idx.lock.Release()

	removed, err := idx.store.DeleteChunksByDoc(ctx, tenantID, docID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	if len(removed) == 0 {
		return 0, nil
	}

	ids := make([]string, len(removed))
	for i, chunk := range removed {
		ids[i] = chunk.ID
	}

	idx.sparse.Delete(ids...)

	// The embedded store already dropped these vectors with the chunk
	// rows; this clears remote backends.
	if err := idx.vectors.Delete(ctx, ids); err != nil {
		return 0, fmt.Errorf("chunks removed but vector cleanup failed: %w", err)
	}

	idx.saveSparse()
	idx.notifyMutation()

	idx.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"doc_id":    docID,
		"chunks":    len(removed),
	}).Info("document removed from index")

	return len(removed), nil
}

// RebuildSparse reconstructs the lexical index from the durable chunk
// store, page by page. Use it after restoring a database or when the
// on-disk snapshot is stale or missing. Searches running during a
// rebuild see the partially rebuilt corpus.
func (idx *Indexer) RebuildSparse(ctx context.Context) (int, error) {
	if !idx.lock.TryAcquire() {
		return 0, ErrIndexBusy
	}
	defer idx.lock.Release()

	start := time.Now()
	idx.sparse.Reset()

	total := 0
	var cursor int64
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		chunks, next, err := idx.store.ListChunks(ctx, cursor, rebuildPageSize)
		if err != nil {
			return 0, fmt.Errorf("failed to list chunks: %w", err)
		}
		if len(chunks) == 0 {
			break
		}
		if err := idx.sparse.Upsert(chunks...); err != nil {
			return 0, fmt.Errorf("failed to index chunks: %w", err)
		}
		total += len(chunks)

		if next == 0 {
			break
		}
		cursor = next
	}

	idx.saveSparse()
	idx.notifyMutation()

	idx.logger.WithFields(logrus.Fields{
		"chunks":   total,
		"terms":    idx.sparse.TermCount(),
		"duration": time.Since(start),
	}).Info("sparse index rebuilt")

	return total, nil
}

func (idx *Indexer) saveSparse() {
	if idx.config.SparseIndexPath == "" {
		return
	}
	if err := idx.sparse.Save(idx.config.SparseIndexPath); err != nil {
		idx.logger.WithError(err).Warn("failed to save sparse index snapshot")
	}
}

func (idx *Indexer) notifyMutation() {
	if idx.config.OnMutate != nil {
		idx.config.OnMutate()
	}
}

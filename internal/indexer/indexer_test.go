package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmribeiro/contexto-mcp/internal/dense"
	"github.com/dmribeiro/contexto-mcp/internal/embedder"
	"github.com/dmribeiro/contexto-mcp/internal/sparse"
	"github.com/dmribeiro/contexto-mcp/internal/storage"
	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// mockEmbedder implements embedder.Embedder for testing. Vectors are
// derived from the text so identical texts embed identically.
type mockEmbedder struct {
	mu        sync.Mutex
	provider  string
	model     string
	batchErr  error
	batches   [][]string
	callCount int

	// blockUntil, when set, stalls GenerateBatch until closed.
	// onBatchStart, when set, runs at entry before any blocking.
	blockUntil   chan struct{}
	onBatchStart func()
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{
		provider: "mock",
		model:    "test-v1",
	}
}

func mockVector(text string) []float32 {
	h := sha256.Sum256([]byte(text))
	return []float32{
		float32(h[0]) / 255,
		float32(h[1]) / 255,
		float32(h[2]) / 255,
	}
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	resp, err := m.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	m.mu.Lock()
	start := m.onBatchStart
	block := m.blockUntil
	m.mu.Unlock()
	if start != nil {
		start()
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batchErr != nil {
		return nil, m.batchErr
	}

	m.callCount++
	m.batches = append(m.batches, append([]string(nil), req.Texts...))

	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		embeddings[i] = &embedder.Embedding{
			Vector:    mockVector(text),
			Dimension: 3,
			Provider:  m.provider,
			Model:     m.model,
			Hash:      embedder.ComputeHash(text),
		}
	}

	return &embedder.BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   m.provider,
		Model:      m.model,
	}, nil
}

func (m *mockEmbedder) Dimension() int { return 3 }

func (m *mockEmbedder) Provider() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider
}

func (m *mockEmbedder) Model() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

func (m *mockEmbedder) Close() error { return nil }

func (m *mockEmbedder) getCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// embeddedTexts flattens all batches in call order.
func (m *mockEmbedder) embeddedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var texts []string
	for _, batch := range m.batches {
		texts = append(texts, batch...)
	}
	return texts
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// testRig wires an indexer over a real in-memory store and sparse index
// with a mock embedder.
type testRig struct {
	store    *storage.SQLiteStorage
	sparse   *sparse.Index
	vectors  dense.VectorStore
	embedder *mockEmbedder
	indexer  *Indexer
}

func newTestRig(t testing.TB, cfg Config) *testRig {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err, "failed to create test storage")
	t.Cleanup(func() { _ = store.Close() })

	sparseIdx := sparse.New(sparse.Config{Logger: quietLogger()})
	vectors := dense.NewSQLiteStore(store, 0)
	emb := newMockEmbedder()

	cfg.Logger = quietLogger()
	idx := New(store, sparseIdx, vectors, emb, cfg)

	return &testRig{
		store:    store,
		sparse:   sparseIdx,
		vectors:  vectors,
		embedder: emb,
		indexer:  idx,
	}
}

func chunkOf(docID string, ordinal int, text string) *types.Chunk {
	return &types.Chunk{
		DocID:   docID,
		ChunkID: ordinal,
		Text:    text,
		Title:   "Manual de " + docID,
	}
}

func docChunks(docID string, texts ...string) []*types.Chunk {
	chunks := make([]*types.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = chunkOf(docID, i, text)
	}
	return chunks
}

func TestIndexChunks(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	chunks := docChunks("manual-python",
		"Python é uma linguagem de programação versátil",
		"Instale o interpretador antes de começar",
		"Bibliotecas são distribuídas pelo pip",
	)

	stats, err := rig.indexer.IndexChunks(ctx, chunks)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.ChunksReceived)
	assert.Equal(t, 3, stats.ChunksIndexed)
	assert.Equal(t, 0, stats.ChunksFailed)
	assert.Equal(t, 3, stats.EmbeddingsCreated)
	assert.Equal(t, 0, stats.EmbeddingsSkipped)
	assert.Empty(t, stats.ErrorMessages)
	assert.Greater(t, stats.Duration, time.Duration(0))

	// All three backends agree on the corpus.
	stored, err := rig.store.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stored)
	assert.Equal(t, 3, rig.sparse.Count())
	vectors, err := rig.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, vectors)

	// The corpus is searchable on both paths.
	sparseHits, err := rig.sparse.Search(ctx, "linguagem python", nil, nil, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, sparseHits)

	denseHits, err := rig.vectors.Search(ctx, mockVector(chunks[0].Text), nil, 1)
	require.NoError(t, err)
	require.Len(t, denseHits, 1)
	assert.Equal(t, chunks[0].ID, denseHits[0].Chunk.ID)
}

func TestIndexChunks_EmptyInput(t *testing.T) {
	rig := newTestRig(t, Config{})

	stats, err := rig.indexer.IndexChunks(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ChunksReceived)
	assert.Equal(t, 0, stats.ChunksIndexed)
	assert.Equal(t, 0, rig.embedder.getCallCount())
}

func TestIndexChunks_InvalidChunksReported(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	chunks := []*types.Chunk{
		chunkOf("manual-python", 0, "conteúdo válido"),
		nil,
		{DocID: "", ChunkID: 1, Text: "sem documento"},
		{DocID: "manual-python", ChunkID: 2, Text: ""},
		chunkOf("manual-python", 3, "outro conteúdo válido"),
	}

	stats, err := rig.indexer.IndexChunks(ctx, chunks)
	require.NoError(t, err, "invalid chunks must not abort the batch")

	assert.Equal(t, 5, stats.ChunksReceived)
	assert.Equal(t, 2, stats.ChunksIndexed)
	assert.Equal(t, 3, stats.ChunksFailed)
	assert.Len(t, stats.ErrorMessages, 3)

	count, err := rig.store.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIndexChunks_Idempotent(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	chunks := docChunks("manual-python", "primeiro trecho", "segundo trecho")

	_, err := rig.indexer.IndexChunks(ctx, chunks)
	require.NoError(t, err)
	_, err = rig.indexer.IndexChunks(ctx, docChunks("manual-python", "primeiro trecho", "segundo trecho"))
	require.NoError(t, err)

	count, err := rig.store.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "re-sending a document must not duplicate chunks")
	assert.Equal(t, 2, rig.sparse.Count())
	vectors, err := rig.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, vectors)
}

func TestIndexChunks_SkipsUnchangedEmbeddings(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	_, err := rig.indexer.IndexChunks(ctx, docChunks("manual-python", "trecho estável", "trecho que muda"))
	require.NoError(t, err)
	callsAfterFirst := rig.embedder.getCallCount()

	// Re-index with one changed text: only the changed chunk embeds.
	second := docChunks("manual-python", "trecho estável", "trecho reescrito")
	stats, err := rig.indexer.IndexChunks(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ChunksIndexed)
	assert.Equal(t, 1, stats.EmbeddingsCreated)
	assert.Equal(t, 1, stats.EmbeddingsSkipped)
	assert.Greater(t, rig.embedder.getCallCount(), callsAfterFirst)
	assert.Equal(t, []string{"trecho estável", "trecho que muda", "trecho reescrito"},
		rig.embedder.embeddedTexts(), "the unchanged text never goes back to the provider")
}

func TestIndexChunks_ReembedUnchanged(t *testing.T) {
	rig := newTestRig(t, Config{ReembedUnchanged: true})
	ctx := context.Background()

	chunks := docChunks("manual-python", "trecho estável")
	_, err := rig.indexer.IndexChunks(ctx, chunks)
	require.NoError(t, err)

	stats, err := rig.indexer.IndexChunks(ctx, docChunks("manual-python", "trecho estável"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EmbeddingsCreated)
	assert.Equal(t, 0, stats.EmbeddingsSkipped)
}

func TestIndexChunks_ModelChangeTriggersReembedding(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	_, err := rig.indexer.IndexChunks(ctx, docChunks("manual-python", "trecho estável"))
	require.NoError(t, err)

	// Same text, new model: the stored vector is stale.
	rig.embedder.mu.Lock()
	rig.embedder.model = "test-v2"
	rig.embedder.mu.Unlock()

	stats, err := rig.indexer.IndexChunks(ctx, docChunks("manual-python", "trecho estável"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EmbeddingsCreated)
	assert.Equal(t, 0, stats.EmbeddingsSkipped)
}

func TestIndexChunks_BatchSizeControlsProviderCalls(t *testing.T) {
	rig := newTestRig(t, Config{EmbedBatchSize: 2, Workers: 1})
	ctx := context.Background()

	chunks := docChunks("manual-python",
		"trecho um", "trecho dois", "trecho três", "trecho quatro", "trecho cinco")
	stats, err := rig.indexer.IndexChunks(ctx, chunks)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.EmbeddingsCreated)
	assert.Equal(t, 3, rig.embedder.getCallCount(), "5 texts at batch size 2 means 3 calls")
}

func TestIndexChunks_EmbedderFailureAborts(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	rig.embedder.batchErr = errors.New("provider unavailable")
	_, err := rig.indexer.IndexChunks(ctx, docChunks("manual-python", "trecho um"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unavailable")

	// Chunks and sparse entries were written before the failure; a retry
	// finishes the job instead of starting over.
	count, err := rig.store.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	vectors, err := rig.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, vectors)

	rig.embedder.batchErr = nil
	stats, err := rig.indexer.IndexChunks(ctx, docChunks("manual-python", "trecho um"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EmbeddingsCreated)
	vectors, err = rig.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, vectors)
}

func TestIndexChunks_RejectsConcurrentRuns(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	rig.embedder.blockUntil = block
	rig.embedder.onBatchStart = func() { once.Do(func() { close(started) }) }

	done := make(chan error, 1)
	go func() {
		_, err := rig.indexer.IndexChunks(ctx, docChunks("manual-python", "trecho lento"))
		done <- err
	}()

	// Wait until the first run is inside the embedding phase, which
	// runs with the lock held.
	<-started

	_, err := rig.indexer.IndexChunks(ctx, docChunks("outro-doc", "trecho"))
	assert.ErrorIs(t, err, ErrIndexBusy)

	_, err = rig.indexer.DeleteChunks(ctx, "", "manual-python")
	assert.ErrorIs(t, err, ErrIndexBusy)

	_, err = rig.indexer.RebuildSparse(ctx)
	assert.ErrorIs(t, err, ErrIndexBusy)

	close(block)
	require.NoError(t, <-done)

	// The lock is released afterwards.
	_, err = rig.indexer.IndexChunks(ctx, docChunks("outro-doc", "trecho"))
	require.NoError(t, err)
}

func TestDeleteChunks(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	_, err := rig.indexer.IndexChunks(ctx, docChunks("manual-python", "trecho um", "trecho dois"))
	require.NoError(t, err)
	_, err = rig.indexer.IndexChunks(ctx, docChunks("guia-go", "goroutines e canais"))
	require.NoError(t, err)

	removed, err := rig.indexer.DeleteChunks(ctx, "", "manual-python")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	count, err := rig.store.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, rig.sparse.Count())
	vectors, err := rig.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, vectors)

	// Unknown document removes nothing and is not an error.
	removed, err = rig.indexer.DeleteChunks(ctx, "", "inexistente")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestDeleteChunks_RespectsTenant(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	shared := docChunks("manual-python", "trecho público")
	tenant := []*types.Chunk{{TenantID: "acme", DocID: "manual-python", ChunkID: 0, Text: "trecho privado"}}
	_, err := rig.indexer.IndexChunks(ctx, shared)
	require.NoError(t, err)
	_, err = rig.indexer.IndexChunks(ctx, tenant)
	require.NoError(t, err)

	removed, err := rig.indexer.DeleteChunks(ctx, "acme", "manual-python")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, err := rig.store.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "same doc ID under another tenant stays")
}

func TestRebuildSparse(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	_, err := rig.indexer.IndexChunks(ctx, docChunks("manual-python",
		"Python é versátil", "pip instala bibliotecas", "ambientes virtuais isolam projetos"))
	require.NoError(t, err)

	// Simulate a fresh process with an empty in-memory index.
	rig.sparse.Reset()
	require.Equal(t, 0, rig.sparse.Count())

	total, err := rig.indexer.RebuildSparse(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 3, rig.sparse.Count())

	hits, err := rig.sparse.Search(ctx, "bibliotecas pip", nil, nil, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestRebuildSparse_EmptyStore(t *testing.T) {
	rig := newTestRig(t, Config{})

	total, err := rig.indexer.RebuildSparse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestSparseSnapshotSaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparse.json")
	rig := newTestRig(t, Config{SparseIndexPath: path})
	ctx := context.Background()

	_, err := rig.indexer.IndexChunks(ctx, docChunks("manual-python", "trecho um", "trecho dois"))
	require.NoError(t, err)

	// A fresh index loads the snapshot the mutation left behind.
	restored := sparse.New(sparse.Config{Logger: quietLogger()})
	require.NoError(t, restored.Load(path))
	assert.Equal(t, 2, restored.Count())

	// Deletions refresh the snapshot too.
	_, err = rig.indexer.DeleteChunks(ctx, "", "manual-python")
	require.NoError(t, err)
	restored = sparse.New(sparse.Config{Logger: quietLogger()})
	require.NoError(t, restored.Load(path))
	assert.Equal(t, 0, restored.Count())
}

func TestOnMutateNotifications(t *testing.T) {
	var mu sync.Mutex
	notified := 0
	rig := newTestRig(t, Config{OnMutate: func() {
		mu.Lock()
		notified++
		mu.Unlock()
	}})
	ctx := context.Background()

	_, err := rig.indexer.IndexChunks(ctx, docChunks("manual-python", "trecho um"))
	require.NoError(t, err)
	assert.Equal(t, 1, notified)

	_, err = rig.indexer.DeleteChunks(ctx, "", "manual-python")
	require.NoError(t, err)
	assert.Equal(t, 2, notified)

	_, err = rig.indexer.RebuildSparse(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, notified)

	// Failed runs must not invalidate caches.
	rig.embedder.batchErr = errors.New("provider unavailable")
	_, err = rig.indexer.IndexChunks(ctx, docChunks("guia-go", "trecho"))
	require.Error(t, err)
	assert.Equal(t, 3, notified)
}

func TestIndexChunks_ManyBatchesConcurrently(t *testing.T) {
	rig := newTestRig(t, Config{Workers: 4, EmbedBatchSize: 8})
	ctx := context.Background()

	chunks := make([]*types.Chunk, 100)
	for i := range chunks {
		chunks[i] = chunkOf("manual-grande", i, fmt.Sprintf("conteúdo do trecho %d", i))
	}

	stats, err := rig.indexer.IndexChunks(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 100, stats.ChunksIndexed)
	assert.Equal(t, 100, stats.EmbeddingsCreated)
	assert.Equal(t, 13, rig.embedder.getCallCount(), "100 texts at batch size 8 means 13 calls")

	vectors, err := rig.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, vectors)

	// Every chunk kept its own vector despite concurrent batch writes.
	hits, err := rig.vectors.Search(ctx, mockVector("conteúdo do trecho 42"), nil, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 42, hits[0].Chunk.ChunkID)
}

func TestIndexLock(t *testing.T) {
	var lock IndexLock

	assert.True(t, lock.TryAcquire())
	assert.False(t, lock.TryAcquire(), "second acquire must fail while held")

	lock.Release()
	assert.True(t, lock.TryAcquire())
	lock.Release()
}

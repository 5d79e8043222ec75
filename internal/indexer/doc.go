// Package indexer ingests chunks into every retrieval surface: the
// durable SQLite store, the in-memory BM25 index and the vector store.
//
// # Basic Usage
//
//	idx := indexer.New(store, sparseIdx, vectors, emb, indexer.Config{
//	    Workers:        4,
//	    EmbedBatchSize: 32,
//	})
//
//	stats, err := idx.IndexChunks(ctx, chunks)
//	fmt.Printf("indexed %d chunks (%d embedded, %d unchanged) in %v\n",
//	    stats.ChunksIndexed, stats.EmbeddingsCreated,
//	    stats.EmbeddingsSkipped, stats.Duration)
//
// # Idempotent Ingestion
//
// Chunk identity is the (tenant, document, ordinal) triple. Re-sending
// a chunk overwrites its previous version in all three backends instead
// of duplicating it, so callers re-ingest whole documents freely.
//
// Vectors are only regenerated when the chunk text or the embedding
// model changed. The decision compares a SHA-256 hash of the text plus
// the provider and model recorded next to the stored vector, which
// makes re-indexing a mostly unchanged corpus cheap: unchanged chunks
// cost one database lookup, not one provider call.
//
// # Concurrency
//
// Embedding runs through a bounded worker pool, one provider call per
// batch of texts. Mutating operations (IndexChunks, DeleteChunks,
// RebuildSparse) are serialized by a non-blocking lock; a concurrent
// second call fails fast with ErrIndexBusy rather than queueing.
//
// # Failure Handling
//
// Invalid chunks are reported in Statistics.ErrorMessages and skipped;
// the rest of the batch proceeds. Infrastructure failures abort the
// run. Because every write is an upsert keyed on chunk identity,
// re-running a failed batch is safe and completes the missing work.
package indexer

// Command ragprobe exercises the configured embedder and vector store
// end to end: it embeds sample texts, writes them to the vector
// backend, searches them back and prints dimensions and latencies.
// Useful for validating provider credentials and backend connectivity
// before pointing an MCP client at the server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dmribeiro/contexto-mcp/internal/config"
	"github.com/dmribeiro/contexto-mcp/internal/dense"
	"github.com/dmribeiro/contexto-mcp/internal/embedder"
	"github.com/dmribeiro/contexto-mcp/internal/storage"
	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

var sampleTexts = []string{
	"A busca híbrida combina resultados densos e esparsos antes da reordenação.",
	"O índice BM25 é reconstruído a partir do armazenamento durável.",
	"Vetores de embeddings são normalizados antes da comparação por cosseno.",
}

func main() {
	fmt.Println("Contexto embedding and vector store probe")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

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
		log.Fatalf("Failed to create embedder: %v", err)
	}
	defer emb.Close()

	fmt.Printf("\nEmbedder:\n")
	fmt.Printf("  Provider: %s\n", emb.Provider())
	fmt.Printf("  Model: %s\n", emb.Model())
	fmt.Printf("  Dimension: %d\n", emb.Dimension())

	start := time.Now()
	single, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: sampleTexts[0]})
	if err != nil {
		log.Fatalf("Failed to embed sample text: %v", err)
	}
	fmt.Printf("  Single embedding: %d dims in %v\n", len(single.Vector), time.Since(start))

	start = time.Now()
	batch, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: sampleTexts})
	if err != nil {
		log.Fatalf("Failed to embed batch: %v", err)
	}
	elapsed := time.Since(start)
	fmt.Printf("  Batch of %d: %v (%v per text)\n",
		len(sampleTexts), elapsed, elapsed/time.Duration(len(sampleTexts)))

	chunks := make([]*types.Chunk, len(sampleTexts))
	for i, text := range sampleTexts {
		chunks[i] = &types.Chunk{DocID: "probe", ChunkID: i, Text: text}
		chunks[i].EnsureID()
	}

	points := make([]dense.Point, len(chunks))
	for i, c := range chunks {
		p := dense.NewPoint(c, batch.Embeddings[i].Vector)
		p.Provider = batch.Provider
		p.Model = batch.Model
		p.TextHash = embedder.ComputeHash(c.Text)
		points[i] = p
	}

	fmt.Printf("\nVector store (%s):\n", cfg.Dense.Backend)

	var vectors dense.VectorStore
	var qdrant *dense.QdrantStore
	if cfg.Dense.Backend == "qdrant" {
		qdrant, err = dense.NewQdrantStore(dense.QdrantConfig{
			URL:            cfg.Dense.QdrantURL,
			APIKey:         cfg.Dense.QdrantAPIKey,
			Collection:     cfg.Dense.Collection,
			VectorSize:     emb.Dimension(),
			ScoreThreshold: cfg.Dense.ScoreThreshold,
			Timeout:        cfg.Dense.Timeout,
		})
		if err != nil {
			log.Fatalf("Failed to create qdrant client: %v", err)
		}
		if err := qdrant.EnsureCollection(ctx); err != nil {
			log.Fatalf("Failed to ensure collection: %v", err)
		}
		fmt.Printf("  Collection %q ready at %s\n", cfg.Dense.Collection, cfg.Dense.QdrantURL)
		vectors = qdrant
	} else {
		// The embedded backend rides on a throwaway in-memory database
		// so the probe never touches the real corpus.
		store, err := storage.NewSQLiteStorage(":memory:")
		if err != nil {
			log.Fatalf("Failed to create storage: %v", err)
		}
		defer store.Close()
		if err := store.UpsertChunks(ctx, chunks); err != nil {
			log.Fatalf("Failed to store chunks: %v", err)
		}
		vectors = dense.NewSQLiteStore(store, 0)
	}
	defer vectors.Close()

	start = time.Now()
	if err := vectors.Upsert(ctx, points); err != nil {
		log.Fatalf("Failed to upsert points: %v", err)
	}
	fmt.Printf("  Upserted %d points in %v\n", len(points), time.Since(start))

	count, err := vectors.Count(ctx)
	if err != nil {
		log.Fatalf("Failed to count points: %v", err)
	}
	fmt.Printf("  Stored points: %d\n", count)

	start = time.Now()
	hits, err := vectors.Search(ctx, batch.Embeddings[0].Vector, nil, 3)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}
	fmt.Printf("  Search returned %d hits in %v\n", len(hits), time.Since(start))
	for _, hit := range hits {
		fmt.Printf("    #%d %s/%d score=%.4f\n", hit.Rank, hit.Chunk.DocID, hit.Chunk.ChunkID, hit.Score)
	}

	if qdrant != nil {
		page, next, err := qdrant.Scroll(ctx, 10, nil)
		if err != nil {
			log.Fatalf("Failed to scroll: %v", err)
		}
		fmt.Printf("  Scroll page: %d points (more: %v)\n", len(page), next != nil)
	}

	roundTripped := len(hits) > 0 && hits[0].Chunk.ID == chunks[0].ID

	// Remove probe points so repeated runs leave no residue.
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := vectors.Delete(ctx, ids); err != nil {
		log.Fatalf("Failed to delete probe points: %v", err)
	}
	fmt.Printf("  Cleaned up %d probe points\n", len(ids))

	if roundTripped {
		fmt.Println("\n✓ SUCCESS: embeddings round-tripped through the vector store!")
	} else {
		fmt.Println("\n✗ FAILURE: search did not return the probe chunk!")
		os.Exit(1)
	}
}

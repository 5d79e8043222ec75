// Package embedder generates dense vector embeddings for queries and
// document chunks.
//
// Three providers share the Embedder interface:
//
//   - openai: any OpenAI-compatible /v1/embeddings endpoint. With the
//     default base URL this is the hosted OpenAI API; pointing BaseURL
//     at LM Studio or Ollama runs the same code against a local server.
//   - onnx: in-process inference through hugot's Go ONNX backend,
//     defaulting to intfloat/multilingual-e5-base (768 dimensions),
//     which handles Portuguese well.
//   - local: deterministic hash-derived vectors with no semantic
//     signal, for tests and offline development.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider: "openai",
//	    BaseURL:  "http://localhost:1234/v1", // LM Studio
//	    Model:    "intfloat/multilingual-e5-base",
//	    Dimension: 768,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "Como solicitar aposentadoria pelo INSS?",
//	})
//
// # Batch Processing
//
// Indexing embeds chunk texts in batches to cut request overhead:
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: texts, // up to MaxBatchSize per call
//	})
//
// # Caching
//
// Every provider shares an LRU cache keyed by the SHA-256 of the text,
// so repeated queries and re-indexed chunks never hit the provider
// twice. Cache reads return deep copies; callers may mutate results
// freely.
//
// # Error Handling
//
// Transient API failures are retried with exponential backoff. Errors
// that survive the retries wrap ErrProviderFailed:
//
//	_, err := emb.GenerateBatch(ctx, req)
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // endpoint down or misbehaving
//	}
package embedder

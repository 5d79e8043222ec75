// Package types provides shared type definitions for the Contexto retrieval
// engine.
//
// This package defines the domain model used across components: chunks,
// per-mode search hits, fused candidates, final context chunks, retrieval
// filters, and the per-request debug report.
//
// # Core Types
//
// Chunk is a unit of retrievable text with source metadata. Its identity is
// the (tenant_id, doc_id, chunk_id) triple, from which a stable ID is
// derived so re-indexing is idempotent:
//
//	chunk := &types.Chunk{
//	    DocID:   "manual-python",
//	    ChunkID: 0,
//	    Text:    "Python é uma linguagem de programação...",
//	    Tags:    []string{"python", "tutorial"},
//	}
//	chunk.EnsureID()
//
// SearchHit carries a single mode's result with its native score; FusedHit
// is the deduplicated candidate after reciprocal-rank fusion, keeping
// per-mode ranks for explainability; ContextChunk is the final
// consumer-facing result with a why_picked provenance string.
//
// # Filters
//
// Filters is a closed struct: tenant, tags (intersection), source, document
// and publish-date range. Each backend translates it to its native form, or
// uses Matches to pre-filter in-process:
//
//	f := &types.Filters{TenantID: "acme", Tags: []string{"faq"}}
//	if f.Matches(chunk) { ... }
//
// # Debug Report
//
// DebugInfo records stage timings (milliseconds), candidate counts, the
// effective parameters and degraded-mode notes for every request, including
// failed and empty ones.
package types

// Package mcp implements the Model Context Protocol (MCP) server for Contexto.
//
// The MCP server exposes five tools to AI assistants (Claude Code, Codex CLI):
//   - retrieve: Hybrid retrieval over the indexed corpus
//   - index_chunks: Ingest document chunks into every retrieval surface
//   - delete_document: Remove all chunks of a document
//   - rebuild_index: Rebuild the sparse index from durable storage
//   - get_status: Check corpus statistics and backend health
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output,
// making it simple to integrate with any MCP-compatible client.
//
// # Basic Usage
//
// The server is the default mode of the contexto binary:
//
//	contexto
//
// It then listens on stdin for MCP protocol messages and writes responses to stdout.
//
// # Tool: retrieve
//
// Run a query through the full pipeline (analysis, dense and sparse
// search, fusion, reranking, diversity selection):
//
//	Request:
//	{
//	  "name": "retrieve",
//	  "arguments": {
//	    "query": "como configurar autenticação OAuth",
//	    "top_k": 8,
//	    "filters": {
//	      "tags": ["seguranca"],
//	      "date_from": "2025-01-01T00:00:00Z"
//	    },
//	    "include_debug": true
//	  }
//	}
//
//	Response:
//	{
//	  "context": "[1] Guia de Autenticação\nPara configurar OAuth ...",
//	  "chunks": [
//	    {
//	      "id": "a3f2...",
//	      "doc_id": "guia-auth",
//	      "chunk_id": 4,
//	      "text": "Para configurar OAuth ...",
//	      "title": "Guia de Autenticação",
//	      "rank": 1,
//	      "score": 0.93,
//	      "why_picked": "dense#2, sparse#1; rerank=0.93"
//	    }
//	  ],
//	  "cache_hit": false,
//	  "debug": {
//	    "timings": {"dense_ms": 41, "sparse_ms": 2, "rerank_ms": 118},
//	    "counts": {"dense": 60, "sparse": 57, "fused": 80, "final": 8}
//	  }
//	}
//
// # Tool: index_chunks
//
// Ingest pre-chunked documents. Re-sending a chunk overwrites the
// previous version; unchanged text is not re-embedded:
//
//	Request:
//	{
//	  "name": "index_chunks",
//	  "arguments": {
//	    "chunks": [
//	      {
//	        "doc_id": "guia-auth",
//	        "chunk_id": 0,
//	        "text": "Este guia descreve a configuração de OAuth ...",
//	        "title": "Guia de Autenticação",
//	        "tags": ["seguranca"]
//	      }
//	    ]
//	  }
//	}
//
//	Response:
//	{
//	  "received": 25,
//	  "indexed": 25,
//	  "failed": 0,
//	  "embeddings_created": 3,
//	  "embeddings_skipped": 22,
//	  "duration_ms": 412
//	}
//
// # Tool: delete_document
//
// Remove every chunk of a document from storage and both indexes:
//
//	Request:
//	{
//	  "name": "delete_document",
//	  "arguments": {"doc_id": "guia-auth", "tenant_id": "acme"}
//	}
//
//	Response:
//	{"doc_id": "guia-auth", "tenant_id": "acme", "chunks_removed": 25}
//
// # Tool: rebuild_index
//
// Rebuild the in-memory sparse index from the chunks in durable
// storage. Useful after a corrupt or missing snapshot:
//
//	Response:
//	{"rebuilt": true, "chunks_indexed": 1843, "terms": 21055}
//
// # Tool: get_status
//
// Check corpus statistics and backend health:
//
//	Response:
//	{
//	  "statistics": {
//	    "chunks": 1843,
//	    "documents": 92,
//	    "embeddings": 1843,
//	    "sparse_terms": 21055,
//	    "vector_points": 1843,
//	    "database_size_mb": "12.40"
//	  },
//	  "embedder": {"provider": "openai", "model": "text-embedding-3-small", "dimension": 1536},
//	  "vector_backend": "sqlite",
//	  "health": {
//	    "storage_accessible": true,
//	    "vector_backend_accessible": true,
//	    "sparse_ready": true
//	  }
//	}
//
// # MCP Client Configuration
//
// Configure in Claude Code's MCP settings:
//
//	{
//	  "mcpServers": {
//	    "contexto": {
//	      "command": "/usr/local/bin/contexto",
//	      "env": {
//	        "CONTEXTO_DB_PATH": "/var/lib/contexto/contexto.db",
//	        "CONTEXTO_EMBEDDING_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// The MCP server returns standard JSON-RPC error responses:
//
//	{
//	  "error": {
//	    "code": -32602,
//	    "message": "top_k must be between 1 and 50",
//	    "data": {"param": "top_k", "value": 500}
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (storage, embedding provider, etc.)
//   - -32001: Retrieval backends unavailable
//   - -32002: Another indexing operation is already running
//   - -32004: Empty query
//
// # Logging
//
// The server logs to stderr (stdout is reserved for MCP protocol).
// Set the log level via environment:
//
//	CONTEXTO_LOG_LEVEL=debug contexto
package mcp

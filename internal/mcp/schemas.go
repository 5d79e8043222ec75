package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// retrieveTool returns the tool definition for retrieve
func retrieveTool() mcp.Tool {
	return mcp.Tool{
		Name:        "retrieve",
		Description: "Retrieve the most relevant context chunks for a query using hybrid (dense + BM25) search",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language query",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of chunks to return (1-50)",
					"default":     12,
					"minimum":     1,
					"maximum":     50,
				},
				"max_per_doc": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum chunks accepted per document",
					"minimum":     1,
				},
				"min_docs": map[string]interface{}{
					"type":        "integer",
					"description": "Minimum distinct documents to aim for",
					"minimum":     1,
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional metadata filters applied before scoring",
					"properties": map[string]interface{}{
						"tenant_id": map[string]interface{}{
							"type":        "string",
							"description": "Restrict to one tenant",
						},
						"tags": map[string]interface{}{
							"type":        "array",
							"description": "Match chunks sharing at least one tag",
							"items":       map[string]interface{}{"type": "string"},
						},
						"source_id": map[string]interface{}{
							"type":        "string",
							"description": "Restrict to one source",
						},
						"doc_id": map[string]interface{}{
							"type":        "string",
							"description": "Restrict to one document",
						},
						"date_from": map[string]interface{}{
							"type":        "string",
							"description": "Inclusive lower publish-date bound (RFC 3339)",
						},
						"date_to": map[string]interface{}{
							"type":        "string",
							"description": "Inclusive upper publish-date bound (RFC 3339)",
						},
					},
				},
				"include_debug": map[string]interface{}{
					"type":        "boolean",
					"description": "Include per-stage timings, counts and notes in the response",
					"default":     false,
				},
				"skip_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "Bypass the query result cache for this request",
					"default":     false,
				},
			},
			Required: []string{"query"},
		},
	}
}

// indexChunksTool returns the tool definition for index_chunks
func indexChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_chunks",
		Description: "Ingest pre-chunked documents into the retrieval engine (storage, BM25 and vectors)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"chunks": map[string]interface{}{
					"type":        "array",
					"description": "Chunks to ingest; identity is (tenant_id, doc_id, chunk_id), so re-sending replaces",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"doc_id": map[string]interface{}{
								"type":        "string",
								"description": "Document the chunk belongs to",
							},
							"chunk_id": map[string]interface{}{
								"type":        "integer",
								"description": "Ordinal of the chunk within its document (0-based)",
							},
							"text": map[string]interface{}{
								"type":        "string",
								"description": "Chunk text",
							},
							"title": map[string]interface{}{
								"type": "string",
							},
							"url": map[string]interface{}{
								"type": "string",
							},
							"source_id": map[string]interface{}{
								"type": "string",
							},
							"tags": map[string]interface{}{
								"type":  "array",
								"items": map[string]interface{}{"type": "string"},
							},
							"tenant_id": map[string]interface{}{
								"type": "string",
							},
							"published_at": map[string]interface{}{
								"type":        "string",
								"description": "Publish timestamp (RFC 3339)",
							},
						},
						"required": []string{"doc_id", "chunk_id", "text"},
					},
				},
			},
			Required: []string{"chunks"},
		},
	}
}

// deleteDocumentTool returns the tool definition for delete_document
func deleteDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_document",
		Description: "Remove every chunk of a document from storage, BM25 and the vector store",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"doc_id": map[string]interface{}{
					"type":        "string",
					"description": "Document to remove",
				},
				"tenant_id": map[string]interface{}{
					"type":        "string",
					"description": "Tenant owning the document (empty for the default tenant)",
				},
			},
			Required: []string{"doc_id"},
		},
	}
}

// rebuildIndexTool returns the tool definition for rebuild_index
func rebuildIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "rebuild_index",
		Description: "Rebuild the in-memory BM25 index from the durable chunk store",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report corpus counts and backend health for the retrieval engine",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

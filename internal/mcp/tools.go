package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dmribeiro/contexto-mcp/internal/indexer"
	"github.com/dmribeiro/contexto-mcp/internal/retriever"
	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeBackendUnavailable = -32001 // A retrieval backend is unreachable
	ErrorCodeIndexBusy          = -32002 // Another indexing operation is already running
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// handleRetrieve handles the retrieve tool invocation
func (s *Server) handleRetrieve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	var topk types.TopKConfig
	if v := getIntDefault(args, "top_k", 0); v != 0 {
		if v < 1 || v > 50 {
			return nil, newMCPError(ErrorCodeInvalidParams, "top_k must be between 1 and 50", map[string]interface{}{
				"param": "top_k",
				"value": v,
			})
		}
		// Per-request final size rides on the configured stage sizes.
		topk = types.TopKConfig{
			Dense:  s.config.Retrieval.TopKDense,
			Sparse: s.config.Retrieval.TopKSparse,
			Fused:  s.config.Retrieval.TopKFused,
			Rerank: v,
		}
	}

	var div types.DiversityConfig
	maxPerDoc := getIntDefault(args, "max_per_doc", 0)
	minDocs := getIntDefault(args, "min_docs", 0)
	if maxPerDoc < 0 || minDocs < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "diversity knobs must be positive", nil)
	}
	if maxPerDoc > 0 || minDocs > 0 {
		div = types.DiversityConfig{MaxPerDoc: maxPerDoc, MinDocs: minDocs}
	}

	filters, err := parseFilters(args)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid filters", map[string]interface{}{
			"param":  "filters",
			"reason": err.Error(),
		})
	}

	includeDebug := getBoolDefault(args, "include_debug", false)
	skipCache := getBoolDefault(args, "skip_cache", false)

	resp, err := s.retriever.Retrieve(ctx, retriever.Request{
		Query:     query,
		TopK:      topk,
		Diversity: div,
		Filters:   filters,
		SkipCache: skipCache,
	})
	if err != nil {
		return nil, retrieveError(err)
	}

	payload := map[string]interface{}{
		"context":   retriever.FormatContext(resp.Chunks),
		"chunks":    resp.Chunks,
		"cache_hit": resp.CacheHit,
	}
	if includeDebug {
		payload["debug"] = resp.Debug
	}

	return mcp.NewToolResultText(formatJSON(payload)), nil
}

// handleIndexChunks handles the index_chunks tool invocation
func (s *Server) handleIndexChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	raw, ok := args["chunks"]
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "chunks parameter is required", map[string]interface{}{
			"param":  "chunks",
			"reason": "missing",
		})
	}

	chunks, err := parseChunks(raw)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid chunks", map[string]interface{}{
			"param":  "chunks",
			"reason": err.Error(),
		})
	}
	if len(chunks) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "chunks must not be empty", map[string]interface{}{
			"param":  "chunks",
			"reason": "empty array",
		})
	}

	stats, err := s.indexer.IndexChunks(ctx, chunks)
	if err != nil {
		if errors.Is(err, indexer.ErrIndexBusy) {
			return nil, newMCPError(ErrorCodeIndexBusy, "another indexing operation is already running", nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"received":           stats.ChunksReceived,
		"indexed":            stats.ChunksIndexed,
		"failed":             stats.ChunksFailed,
		"embeddings_created": stats.EmbeddingsCreated,
		"embeddings_skipped": stats.EmbeddingsSkipped,
		"duration_ms":        stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeleteDocument handles the delete_document tool invocation
func (s *Server) handleDeleteDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	docID, ok := args["doc_id"].(string)
	if !ok || docID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "doc_id parameter is required", map[string]interface{}{
			"param":  "doc_id",
			"reason": "missing or empty",
		})
	}
	tenantID := getStringDefault(args, "tenant_id", "")

	removed, err := s.indexer.DeleteChunks(ctx, tenantID, docID)
	if err != nil {
		if errors.Is(err, indexer.ErrIndexBusy) {
			return nil, newMCPError(ErrorCodeIndexBusy, "another indexing operation is already running", nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "delete failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"doc_id":         docID,
		"chunks_removed": removed,
	}
	if tenantID != "" {
		response["tenant_id"] = tenantID
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRebuildIndex handles the rebuild_index tool invocation
func (s *Server) handleRebuildIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	total, err := s.indexer.RebuildSparse(ctx)
	if err != nil {
		if errors.Is(err, indexer.ErrIndexBusy) {
			return nil, newMCPError(ErrorCodeIndexBusy, "another indexing operation is already running", nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "rebuild failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"rebuilt":        true,
		"chunks_indexed": total,
		"terms":          s.sparse.TermCount(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.storage.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read storage statistics", map[string]interface{}{
			"error": err.Error(),
		})
	}

	vectorCount, err := s.vectors.Count(ctx)
	if err != nil {
		vectorCount = 0
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"chunks":           stats.Chunks,
			"documents":        stats.Documents,
			"embeddings":       stats.Embeddings,
			"sparse_chunks":    s.sparse.Count(),
			"sparse_terms":     s.sparse.TermCount(),
			"vector_points":    vectorCount,
			"database_size_mb": fmt.Sprintf("%.2f", stats.SizeMB),
			"schema_version":   stats.SchemaVersion,
		},
		"embedder": map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
		},
		"vector_backend": s.config.Dense.Backend,
		"health": map[string]interface{}{
			"storage_accessible":        s.storage.Ping(ctx) == nil,
			"vector_backend_accessible": s.vectors.Ping(ctx) == nil,
			"sparse_ready":              s.sparse.IsReady(),
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// retrieveError maps retrieval failures onto MCP error codes.
func retrieveError(err error) error {
	switch {
	case errors.Is(err, types.ErrInvalidQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", nil)
	case errors.Is(err, types.ErrBackendUnavailable):
		return newMCPError(ErrorCodeBackendUnavailable, "retrieval backends unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	default:
		return newMCPError(ErrorCodeInternalError, "retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// parseChunks decodes the raw chunks argument through JSON so the wire
// field names match the chunk schema exactly.
func parseChunks(raw interface{}) ([]*types.Chunk, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var chunks []*types.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// parseFilters decodes the optional filters argument. A missing or
// empty object means no filtering.
func parseFilters(args map[string]interface{}) (*types.Filters, error) {
	raw, ok := args["filters"]
	if !ok || raw == nil {
		return nil, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var filters types.Filters
	if err := json.Unmarshal(data, &filters); err != nil {
		return nil, err
	}
	if filters.IsZero() {
		return nil, nil
	}
	return &filters, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

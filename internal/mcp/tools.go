package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/docrag-mcp/internal/indexer"
	"github.com/dshills/docrag-mcp/internal/searcher"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeDirectoryNotFound  = -32001 // Source directory missing or not a directory
	ErrorCodeIndexingInProgress = -32002 // Another index or clear is running
	ErrorCodeEmptyIndex         = -32003 // Nothing has been indexed yet
)

// handleIndexDocuments handles the index_documents tool invocation
func (s *Server) handleIndexDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	directory := request.GetString("directory", s.defaults.SourceDir)
	if directory == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "directory parameter is required", map[string]interface{}{
			"param":  "directory",
			"reason": "missing or empty",
		})
	}

	chunkSize := request.GetInt("chunk_size", s.defaults.ChunkSize)
	if chunkSize <= 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "chunk_size must be positive", map[string]interface{}{
			"param": "chunk_size",
			"value": chunkSize,
		})
	}
	chunkOverlap := request.GetInt("chunk_overlap", s.defaults.ChunkOverlap)
	if chunkOverlap < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "chunk_overlap must not be negative", map[string]interface{}{
			"param": "chunk_overlap",
			"value": chunkOverlap,
		})
	}
	incremental := request.GetBool("incremental", false)

	result, err := s.indexer.Index(ctx, indexer.IndexOptions{
		SourceDir:    directory,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Incremental:  incremental,
	})
	switch {
	case errors.Is(err, indexer.ErrSourceNotFound):
		return nil, newMCPError(ErrorCodeDirectoryNotFound, "directory not found", map[string]interface{}{
			"directory": directory,
		})
	case errors.Is(err, indexer.ErrIndexInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}

	// Store and embedder failures are reported in the result body.
	text := formatJSON(result)
	if !result.Success {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	limit := request.GetInt("limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:        query,
		Limit:        limit,
		WithContext:  request.GetBool("with_context", false),
		ContextSize:  request.GetInt("context_size", searcher.DefaultContextSize),
		FullDocument: request.GetBool("full_document", false),
		UseCache:     true,
	})
	if errors.Is(err, searcher.ErrEmptyQuery) || errors.Is(err, searcher.ErrInvalidRequest) {
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if resp.Count == 0 {
		count, err := s.indexer.Count(ctx)
		if err == nil && count == 0 {
			return nil, newMCPError(ErrorCodeEmptyIndex, "index is empty, run index_documents first", nil)
		}
	}

	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// handleClearIndex handles the clear_index tool invocation
func (s *Server) handleClearIndex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deleted, err := s.indexer.Clear(ctx)
	if errors.Is(err, indexer.ErrIndexInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to clear index", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"deleted_count": deleted,
		"success":       true,
	})), nil
}

// handleGetDocumentCount handles the get_document_count tool invocation
func (s *Server) handleGetDocumentCount(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count, err := s.indexer.Count(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to count documents", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"count": count})), nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
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

// formatJSON formats v as indented JSON
func formatJSON(v interface{}) string {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(bytes)
}

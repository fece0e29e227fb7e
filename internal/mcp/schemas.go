package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolIndexDocuments   = "index_documents"
	ToolSearch           = "search"
	ToolClearIndex       = "clear_index"
	ToolGetDocumentCount = "get_document_count"
)

// indexDocumentsTool returns the tool definition for index_documents
func indexDocumentsTool(d Defaults) mcp.Tool {
	return mcp.Tool{
		Name:        ToolIndexDocuments,
		Description: "Convert, chunk and embed the documents in a directory so they can be searched",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"directory": map[string]interface{}{
					"type":        "string",
					"description": "Directory containing the source documents",
					"default":     d.SourceDir,
				},
				"chunk_size": map[string]interface{}{
					"type":        "integer",
					"description": "Chunk length in characters",
					"default":     d.ChunkSize,
					"minimum":     1,
				},
				"chunk_overlap": map[string]interface{}{
					"type":        "integer",
					"description": "Characters shared by consecutive chunks",
					"default":     d.ChunkOverlap,
					"minimum":     0,
				},
				"incremental": map[string]interface{}{
					"type":        "boolean",
					"description": "Only process files that are new or changed since the last run",
					"default":     false,
				},
			},
		},
	}
}

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolSearch,
		Description: "Semantic search over indexed documents, optionally expanded with surrounding chunks or whole documents",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of direct hits (1-100)",
					"default":     5,
					"minimum":     1,
					"maximum":     100,
				},
				"with_context": map[string]interface{}{
					"type":        "boolean",
					"description": "Include the chunks before and after each hit",
					"default":     false,
				},
				"context_size": map[string]interface{}{
					"type":        "integer",
					"description": "Number of chunks to include on each side when with_context is set",
					"default":     1,
					"minimum":     0,
				},
				"full_document": map[string]interface{}{
					"type":        "boolean",
					"description": "Include every chunk of each document that had a hit",
					"default":     false,
				},
			},
			Required: []string{"query"},
		},
	}
}

// clearIndexTool returns the tool definition for clear_index
func clearIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolClearIndex,
		Description: "Delete every indexed chunk and the file registry",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getDocumentCountTool returns the tool definition for get_document_count
func getDocumentCountTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolGetDocumentCount,
		Description: "Return the number of chunks in the index",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

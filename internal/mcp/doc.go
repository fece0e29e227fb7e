// Package mcp exposes the document index over the Model Context Protocol.
//
// The server speaks JSON-RPC 2.0 on stdio and registers four tools:
//   - index_documents: convert, chunk, embed and store a directory
//   - search: semantic search with optional context and full-document expansion
//   - clear_index: delete every chunk and the file registry
//   - get_document_count: number of stored chunks
//
// # Tool: index_documents
//
//	{
//	  "name": "index_documents",
//	  "arguments": {
//	    "directory": "data/source",
//	    "chunk_size": 500,
//	    "chunk_overlap": 100,
//	    "incremental": true
//	  }
//	}
//
// The response body is the index result:
//
//	{"document_count": 42, "processing_time": 1.8, "success": true, ...}
//
// Embedding or store failures come back as a tool error result carrying the
// same body with success=false.
//
// # Tool: search
//
//	{
//	  "name": "search",
//	  "arguments": {"query": "vacation policy", "limit": 5, "with_context": true, "context_size": 1}
//	}
//
// Results hold document_id, content, source_path, chunk_index, similarity,
// metadata and the is_context / is_full_document flags.
//
// # Errors
//
// Protocol errors use JSON-RPC codes:
//
//	-32602  invalid params
//	-32603  internal error
//	-32001  directory not found
//	-32002  indexing already in progress
//	-32003  index is empty
package mcp

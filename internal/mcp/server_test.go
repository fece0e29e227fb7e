package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docrag-mcp/internal/embedder"
	"github.com/dshills/docrag-mcp/internal/indexer"
	"github.com/dshills/docrag-mcp/internal/searcher"
	"github.com/dshills/docrag-mcp/internal/storage"
	"github.com/dshills/docrag-mcp/pkg/types"
)

type testEnv struct {
	server *Server
	source string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	source := filepath.Join(base, "source")
	require.NoError(t, os.MkdirAll(filepath.Join(source, "hr"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "hr", "vacation.md"),
		[]byte("Employees receive 25 vacation days per year.\nRequests go through your manager.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(source, "build.txt"),
		[]byte("The build server runs nightly. Artifacts are kept for a week."), 0o644))

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb, err := embedder.NewLocalProviderWithDimension(128, embedder.NewCache(100))
	require.NoError(t, err)

	srch := searcher.NewSearcher(store, emb, searcher.Config{})
	idx := indexer.New(store, emb, indexer.Config{
		ProcessedDir: filepath.Join(base, "processed"),
		OnChange:     srch.InvalidateCache,
	})

	return &testEnv{
		server: NewServer(idx, srch, Defaults{SourceDir: source, ChunkSize: 60, ChunkOverlap: 10}, nil),
		source: source,
	}
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func decode(t *testing.T, result *mcp.CallToolResult, v interface{}) {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	require.NoError(t, json.Unmarshal([]byte(text.Text), v))
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok, "expected *MCPError, got %T", err)
	assert.Equal(t, code, mcpErr.Code)
}

func TestIndexDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.server.handleIndexDocuments(ctx, call(ToolIndexDocuments, map[string]interface{}{}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var body types.IndexResult
	decode(t, result, &body)
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.FilesProcessed)
	assert.Positive(t, body.DocumentCount)

	result, err = env.server.handleIndexDocuments(ctx, call(ToolIndexDocuments, map[string]interface{}{
		"directory":   env.source,
		"incremental": true,
	}))
	require.NoError(t, err)
	decode(t, result, &body)
	assert.Zero(t, body.DocumentCount)
	assert.Equal(t, 2, body.FilesSkipped)
}

func TestIndexDocuments_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.server.handleIndexDocuments(ctx, call(ToolIndexDocuments, map[string]interface{}{
		"directory": filepath.Join(env.source, "missing"),
	}))
	requireMCPError(t, err, ErrorCodeDirectoryNotFound)

	_, err = env.server.handleIndexDocuments(ctx, call(ToolIndexDocuments, map[string]interface{}{
		"chunk_size": float64(0),
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = env.server.handleIndexDocuments(ctx, call(ToolIndexDocuments, map[string]interface{}{
		"chunk_overlap": float64(-1),
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.server.handleSearch(ctx, call(ToolSearch, map[string]interface{}{"query": "vacation"}))
	requireMCPError(t, err, ErrorCodeEmptyIndex)

	_, err = env.server.handleIndexDocuments(ctx, call(ToolIndexDocuments, nil))
	require.NoError(t, err)

	result, err := env.server.handleSearch(ctx, call(ToolSearch, map[string]interface{}{
		"query":         "how many vacation days",
		"limit":         float64(1),
		"full_document": true,
	}))
	require.NoError(t, err)

	var body struct {
		Query   string            `json:"query"`
		Results []types.SearchHit `json:"results"`
		Count   int               `json:"count"`
	}
	decode(t, result, &body)
	assert.Equal(t, "how many vacation days", body.Query)
	require.NotEmpty(t, body.Results)
	assert.Equal(t, body.Count, len(body.Results))
	for i, h := range body.Results {
		assert.Equal(t, "vacation_hr.md", filepath.Base(h.SourcePath))
		assert.Equal(t, i, h.ChunkIndex)
	}
}

func TestSearch_InvalidParams(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing query", map[string]interface{}{}},
		{"blank query", map[string]interface{}{"query": "  "}},
		{"limit too large", map[string]interface{}{"query": "x", "limit": float64(101)}},
		{"limit zero", map[string]interface{}{"query": "x", "limit": float64(0)}},
		{"negative context", map[string]interface{}{"query": "x", "with_context": true, "context_size": float64(-2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.server.handleSearch(ctx, call(ToolSearch, tt.args))
			requireMCPError(t, err, ErrorCodeInvalidParams)
		})
	}
}

func TestClearIndexAndCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.server.handleIndexDocuments(ctx, call(ToolIndexDocuments, nil))
	require.NoError(t, err)

	var count struct {
		Count int `json:"count"`
	}
	result, err := env.server.handleGetDocumentCount(ctx, call(ToolGetDocumentCount, nil))
	require.NoError(t, err)
	decode(t, result, &count)
	require.Positive(t, count.Count)

	var cleared struct {
		DeletedCount int  `json:"deleted_count"`
		Success      bool `json:"success"`
	}
	result, err = env.server.handleClearIndex(ctx, call(ToolClearIndex, nil))
	require.NoError(t, err)
	decode(t, result, &cleared)
	assert.True(t, cleared.Success)
	assert.Equal(t, count.Count, cleared.DeletedCount)

	result, err = env.server.handleGetDocumentCount(ctx, call(ToolGetDocumentCount, nil))
	require.NoError(t, err)
	decode(t, result, &count)
	assert.Zero(t, count.Count)
}

func TestToolSchemas(t *testing.T) {
	d := Defaults{SourceDir: "data/source", ChunkSize: 500, ChunkOverlap: 100}

	index := indexDocumentsTool(d)
	assert.Equal(t, ToolIndexDocuments, index.Name)
	assert.Empty(t, index.InputSchema.Required)
	assert.Equal(t, "data/source", index.InputSchema.Properties["directory"].(map[string]interface{})["default"])

	search := searchTool()
	assert.Equal(t, []string{"query"}, search.InputSchema.Required)
	for _, key := range []string{"query", "limit", "with_context", "context_size", "full_document"} {
		assert.Contains(t, search.InputSchema.Properties, key)
	}

	assert.Equal(t, ToolClearIndex, clearIndexTool().Name)
	assert.Equal(t, ToolGetDocumentCount, getDocumentCountTool().Name)
}

func TestMCPError(t *testing.T) {
	err := newMCPError(ErrorCodeEmptyIndex, "index is empty", nil)
	assert.Equal(t, "MCP error -32003: index is empty", err.Error())
}

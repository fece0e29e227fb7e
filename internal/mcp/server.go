package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/docrag-mcp/internal/indexer"
	"github.com/dshills/docrag-mcp/internal/searcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "docrag-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Defaults fill in index_documents arguments the client leaves out
type Defaults struct {
	SourceDir    string
	ChunkSize    int
	ChunkOverlap int
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	defaults Defaults
	logger   *slog.Logger
}

// NewServer creates a new MCP server instance and registers its tools
func NewServer(idx *indexer.Indexer, srch *searcher.Searcher, defaults Defaults, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
		),
		indexer:  idx,
		searcher: srch,
		defaults: defaults,
		logger:   logger,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol over in/out until ctx is cancelled or in closes
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp server listening on stdio", "name", ServerName, "version", ServerVersion)
	return stdio.Listen(ctx, in, out)
}

// registerTools maps each tool name to its handler once at startup. Unknown
// names are rejected by the protocol layer.
func (s *Server) registerTools() {
	s.mcp.AddTool(indexDocumentsTool(s.defaults), s.handleIndexDocuments)
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(clearIndexTool(), s.handleClearIndex)
	s.mcp.AddTool(getDocumentCountTool(), s.handleGetDocumentCount)
}

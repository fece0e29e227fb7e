package storage

import (
	"context"

	"github.com/dshills/docrag-mcp/pkg/types"
)

// Storage defines the vector store boundary used by the indexer and searcher
type Storage interface {
	// Init prepares the store (schema, collection). It is safe to call repeatedly.
	Init(ctx context.Context) error

	// InsertBatch upserts chunks with their embeddings, keyed by document ID
	InsertBatch(ctx context.Context, chunks []types.EmbeddedChunk) error

	// DeleteAll removes every chunk and returns how many were removed
	DeleteAll(ctx context.Context) (int, error)

	// DeleteBySource removes every chunk of one processed document
	DeleteBySource(ctx context.Context, sourcePath string) (int, error)

	// Count returns the number of stored chunks
	Count(ctx context.Context) (int, error)

	// TopK returns up to k chunks ordered by descending cosine similarity
	TopK(ctx context.Context, vector []float32, k int) ([]types.SearchHit, error)

	// ChunksAdjacent returns chunks of sourcePath whose index is within window
	// of chunkIndex, excluding chunkIndex itself, ordered by index
	ChunksAdjacent(ctx context.Context, sourcePath string, chunkIndex, window int) ([]types.Chunk, error)

	// ChunksOfDocument returns every chunk of sourcePath ordered by index
	ChunksOfDocument(ctx context.Context, sourcePath string) ([]types.Chunk, error)

	// Close releases the underlying connection
	Close() error
}

// Backend names accepted by configuration
const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// ClampSimilarity maps a cosine similarity onto [0, 1]
func ClampSimilarity(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

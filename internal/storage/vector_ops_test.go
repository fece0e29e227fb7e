package storage

import (
	"context"
	"math"
	"testing"

	"github.com/dshills/docrag-mcp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorSerialization(t *testing.T) {
	vector := []float32{0, 1.5, -2.25, float32(math.Pi)}
	blob := SerializeVector(vector)
	assert.Len(t, blob, 16)
	assert.Equal(t, vector, DeserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestClampSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, ClampSimilarity(-0.4))
	assert.Equal(t, 1.0, ClampSimilarity(1.0000001))
	assert.Equal(t, 0.5, ClampSimilarity(0.5))
}

func TestTopK(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.InsertBatch(ctx, []types.EmbeddedChunk{
		makeChunk("a.md", 0, []float32{1, 0, 0}),
		makeChunk("a.md", 1, []float32{0.9, 0.1, 0}),
		makeChunk("b.md", 0, []float32{0, 1, 0}),
		makeChunk("b.md", 1, []float32{-1, 0, 0}),
	}))

	hits, err := storage.TopK(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "a.md_0", hits[0].DocumentID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "a.md_1", hits[1].DocumentID)
	assert.Equal(t, "b.md_0", hits[2].DocumentID)

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Similarity, hits[i].Similarity)
	}
	for _, h := range hits {
		assert.False(t, h.IsContext)
		assert.False(t, h.IsFullDocument)
		assert.NoError(t, h.Validate())
	}
}

func TestTopK_EdgeCases(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	hits, err := storage.TopK(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "empty store")

	seedDocument(t, storage, "a.md", 2)

	hits, err = storage.TopK(ctx, []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits, "zero limit")

	hits, err = storage.TopK(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "dimension mismatch is skipped")

	hits, err = storage.TopK(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "limit larger than store")
}

func TestSortCandidates_StableOnTies(t *testing.T) {
	candidates := []types.SearchHit{
		{Chunk: types.Chunk{DocumentID: "x"}, Similarity: 0.5},
		{Chunk: types.Chunk{DocumentID: "y"}, Similarity: 0.9},
		{Chunk: types.Chunk{DocumentID: "z"}, Similarity: 0.5},
	}
	sortCandidates(candidates)
	assert.Equal(t, "y", candidates[0].DocumentID)
	assert.Equal(t, "x", candidates[1].DocumentID)
	assert.Equal(t, "z", candidates[2].DocumentID)
}

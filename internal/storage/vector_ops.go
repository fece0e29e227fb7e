package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/docrag-mcp/pkg/types"
)

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, q querier, queryVector []float32, limit int) ([]types.SearchHit, error) {
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, queryVector, limit)
	}
	return searchVectorFallback(ctx, q, queryVector, limit)
}

// searchVectorOptimized ranks in SQL with sqlite-vec.
// vec_distance_cosine returns a distance, converted here to 1 - distance.
func searchVectorOptimized(ctx context.Context, q querier, queryVector []float32, limit int) ([]types.SearchHit, error) {
	query := `
		SELECT document_id, content, source_path, chunk_index, metadata,
			1.0 - vec_distance_cosine(vector, ?) AS similarity
		FROM chunks
		WHERE dimension = ?
		ORDER BY similarity DESC, rowid ASC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, serializeVector(queryVector), len(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]types.SearchHit, 0, limit)
	for rows.Next() {
		var hit types.SearchHit
		var meta string
		if err := rows.Scan(&hit.DocumentID, &hit.Content, &hit.SourcePath, &hit.ChunkIndex, &meta, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if hit.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		hit.Similarity = ClampSimilarity(hit.Similarity)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// searchVectorFallback scans stored vectors and ranks them in Go
func searchVectorFallback(ctx context.Context, q querier, queryVector []float32, limit int) ([]types.SearchHit, error) {
	query := `
		SELECT document_id, content, source_path, chunk_index, metadata, vector
		FROM chunks
		WHERE dimension = ?
		ORDER BY rowid
	`
	rows, err := q.QueryContext(ctx, query, len(queryVector))
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]types.SearchHit, 0, 256)
	for rows.Next() {
		var hit types.SearchHit
		var meta string
		var blob []byte
		if err := rows.Scan(&hit.DocumentID, &hit.Content, &hit.SourcePath, &hit.ChunkIndex, &meta, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue
		}
		if hit.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		hit.Similarity = ClampSimilarity(cosineSimilarity(queryVector, vector))
		candidates = append(candidates, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)

	if limit > len(candidates) {
		limit = len(candidates)
	}
	return candidates[:limit], nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortCandidates orders by descending similarity; equal scores keep insertion order
func sortCandidates(candidates []types.SearchHit) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for other backends and tests
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}

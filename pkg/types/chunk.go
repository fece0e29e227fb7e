package types

import (
	"fmt"
	"maps"
)

// Metadata keys attached to every chunk produced by ingestion
const (
	MetaFileName         = "file_name"
	MetaDirectory        = "directory"
	MetaDirectorySuffix  = "directory_suffix"
	MetaOriginalFilePath = "original_file_path"
)

// Chunk is a contiguous piece of a processed document
type Chunk struct {
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	SourcePath string            `json:"source_path"`
	ChunkIndex int               `json:"chunk_index"` // 0-based, contiguous within a source file
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DocumentIDFor builds the stable identifier for chunk i of a processed file
func DocumentIDFor(processedName string, i int) string {
	return fmt.Sprintf("%s_%d", processedName, i)
}

// Validate checks that the chunk can be stored
func (c *Chunk) Validate() error {
	if c.DocumentID == "" {
		return ErrMissingDocumentID
	}
	if c.SourcePath == "" {
		return ErrMissingSourcePath
	}
	if c.ChunkIndex < 0 {
		return ErrInvalidChunkIndex
	}
	if c.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// Clone returns a copy whose metadata map is not shared with c
func (c Chunk) Clone() Chunk {
	c.Metadata = maps.Clone(c.Metadata)
	return c
}

// EmbeddedChunk pairs a chunk with its embedding vector for storage
type EmbeddedChunk struct {
	Chunk
	Vector []float32
}

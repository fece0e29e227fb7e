package types

import "errors"

// Domain errors for type validation
var (
	ErrMissingDocumentID = errors.New("document ID is required")
	ErrMissingSourcePath = errors.New("source path is required")
	ErrInvalidChunkIndex = errors.New("chunk index must be >= 0")
	ErrInvalidSimilarity = errors.New("similarity must be between 0 and 1")
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrMissingFileHash   = errors.New("file hash is required")
)

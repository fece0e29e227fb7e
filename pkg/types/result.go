package types

// SearchHit is a single entry of a retrieval result
type SearchHit struct {
	Chunk

	// Similarity is 1 - cosine distance for directly retrieved hits, 0 for expansions.
	Similarity     float64 `json:"similarity"`
	IsContext      bool    `json:"is_context"`
	IsFullDocument bool    `json:"is_full_document"`
}

// Validate checks if the search hit is valid
func (h *SearchHit) Validate() error {
	if h.DocumentID == "" {
		return ErrMissingDocumentID
	}
	if h.Similarity < 0 || h.Similarity > 1 {
		return ErrInvalidSimilarity
	}
	return nil
}

// IsExpansion reports whether the hit was added by context or full-document expansion
func (h *SearchHit) IsExpansion() bool {
	return h.IsContext || h.IsFullDocument
}

// IndexResult summarizes one index run
type IndexResult struct {
	DocumentCount  int     `json:"document_count"`
	ProcessingTime float64 `json:"processing_time"` // seconds
	Success        bool    `json:"success"`
	Error          string  `json:"error,omitempty"`
	Message        string  `json:"message,omitempty"`

	FilesDiscovered int `json:"files_discovered"`
	FilesProcessed  int `json:"files_processed"`
	FilesSkipped    int `json:"files_skipped"`
	FilesFailed     int `json:"files_failed"`
	FilesPruned     int `json:"files_pruned,omitempty"`
}

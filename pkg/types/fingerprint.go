package types

import "time"

// FileFingerprint identifies the state of a source file at the time it was processed
type FileFingerprint struct {
	Path    string    `json:"path"`
	Hash    string    `json:"hash"`
	ModTime time.Time `json:"mtime"`
	Size    int64     `json:"size"`

	// Fallback is set when Hash is a clock-derived surrogate rather than a content hash.
	Fallback bool `json:"fallback,omitempty"`
}

// Validate checks that the fingerprint is complete
func (f *FileFingerprint) Validate() error {
	if f.Path == "" {
		return ErrMissingSourcePath
	}
	if f.Hash == "" {
		return ErrMissingFileHash
	}
	return nil
}

// Matches reports whether hash, modification time and size are all equal
func (f FileFingerprint) Matches(other FileFingerprint) bool {
	return f.Hash == other.Hash && f.ModTime.Equal(other.ModTime) && f.Size == other.Size
}

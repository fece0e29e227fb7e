package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChunkValidate(t *testing.T) {
	valid := Chunk{DocumentID: "a.md_0", SourcePath: "data/processed/a.md", Content: "text"}

	tests := []struct {
		name   string
		mutate func(*Chunk)
		want   error
	}{
		{"valid", func(*Chunk) {}, nil},
		{"missing id", func(c *Chunk) { c.DocumentID = "" }, ErrMissingDocumentID},
		{"missing source", func(c *Chunk) { c.SourcePath = "" }, ErrMissingSourcePath},
		{"negative index", func(c *Chunk) { c.ChunkIndex = -1 }, ErrInvalidChunkIndex},
		{"empty content", func(c *Chunk) { c.Content = "" }, ErrEmptyContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), tt.want)
		})
	}
}

func TestDocumentIDFor(t *testing.T) {
	assert.Equal(t, "handbook_hr.md_3", DocumentIDFor("handbook_hr.md", 3))
}

func TestChunkClone(t *testing.T) {
	c := Chunk{DocumentID: "a", Metadata: map[string]string{MetaFileName: "a.md"}}
	clone := c.Clone()
	clone.Metadata[MetaFileName] = "b.md"
	assert.Equal(t, "a.md", c.Metadata[MetaFileName])
}

func TestSearchHit(t *testing.T) {
	hit := SearchHit{Chunk: Chunk{DocumentID: "a"}, Similarity: 0.5}
	assert.NoError(t, hit.Validate())
	assert.False(t, hit.IsExpansion())

	hit.Similarity = 1.5
	assert.ErrorIs(t, hit.Validate(), ErrInvalidSimilarity)

	assert.True(t, (&SearchHit{IsContext: true}).IsExpansion())
	assert.True(t, (&SearchHit{IsFullDocument: true}).IsExpansion())
	assert.ErrorIs(t, (&SearchHit{}).Validate(), ErrMissingDocumentID)
}

func TestFingerprint(t *testing.T) {
	now := time.Unix(1700000000, 0)
	fp := FileFingerprint{Path: "a.txt", Hash: "abc", ModTime: now, Size: 3}
	assert.NoError(t, fp.Validate())
	assert.True(t, fp.Matches(FileFingerprint{Hash: "abc", ModTime: now.UTC(), Size: 3}))
	assert.False(t, fp.Matches(FileFingerprint{Hash: "abc", ModTime: now.Add(time.Second), Size: 3}))
	assert.False(t, fp.Matches(FileFingerprint{Hash: "abd", ModTime: now, Size: 3}))
	assert.False(t, fp.Matches(FileFingerprint{Hash: "abc", ModTime: now, Size: 4}))

	assert.ErrorIs(t, (&FileFingerprint{Hash: "x"}).Validate(), ErrMissingSourcePath)
	assert.ErrorIs(t, (&FileFingerprint{Path: "x"}).Validate(), ErrMissingFileHash)
}

package chunker

import "fmt"

const (
	// DefaultSize is the default window length in characters
	DefaultSize = 500

	// DefaultOverlap is the default number of characters shared by consecutive chunks
	DefaultOverlap = 100
)

// Chunker splits text into overlapping chunks
type Chunker struct {
	Size    int
	Overlap int
}

// New creates a Chunker. Non-positive size falls back to DefaultSize and
// negative overlap to zero.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Validate checks the chunking parameters
func (c *Chunker) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", c.Overlap)
	}
	return nil
}

// Split divides text into chunks
func (c *Chunker) Split(text string) []string {
	return Split(text, c.Size, c.Overlap)
}

// Split divides text into chunks of about size characters sharing overlap
// characters with their predecessor.
func Split(text string, size, overlap int) []string {
	if text == "" {
		return []string{}
	}

	runes := []rune(text)
	bounds := spans(runes, size, overlap)

	chunks := make([]string, 0, len(bounds))
	for _, s := range bounds {
		chunks = append(chunks, string(runes[s.start:s.end]))
	}
	return chunks
}

// span is a half-open rune range [start, end)
type span struct {
	start, end int
}

func spans(runes []rune, size, overlap int) []span {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}

	n := len(runes)
	var out []span

	start := 0
	for start < n {
		end := min(start+size, n)
		if end < n {
			if b := nextBoundary(runes, end); b >= 0 {
				end = b + 1
			}
		}

		out = append(out, span{start: start, end: end})

		if end-overlap > start {
			start = end - overlap
		} else {
			start = end
		}
	}
	return out
}

// nextBoundary returns the index of the first line break or sentence
// terminator at or after from, or -1 if there is none.
func nextBoundary(runes []rune, from int) int {
	for i := from; i < len(runes); i++ {
		if isBoundary(runes[i]) {
			return i
		}
	}
	return -1
}

func isBoundary(r rune) bool {
	switch r {
	case '\n', '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// Package chunker splits document text into overlapping, boundary-aware chunks.
//
// # Basic Usage
//
//	c := chunker.New(500, 100)
//	for i, piece := range c.Split(text) {
//	    fmt.Printf("chunk %d: %d chars\n", i, utf8.RuneCountInString(piece))
//	}
//
// # Chunking Strategy
//
// A window of Size characters is advanced over the text. When the window does not
// reach the end of the text, the cut is moved forward to include the nearer of the
// next line break or the next sentence terminator, so chunks end on a line or
// sentence boundary whenever one exists. Recognized terminators are '.', '!', '?'
// and their full-width forms '。', '！', '？'.
//
// The next window starts Overlap characters before the previous cut. When that
// would not move past the previous start (Overlap >= Size, or a long boundary
// extension), the next window starts at the cut instead, so the loop always
// makes progress.
//
// Sizes are measured in runes, not bytes, so multi-byte text is never cut inside
// a character.
//
// # Guarantees
//
//   - Split("") returns no chunks, never a single empty chunk.
//   - Removing the overlap between consecutive chunks reconstructs the input.
//   - The same text and parameters always produce the same chunks.
package chunker

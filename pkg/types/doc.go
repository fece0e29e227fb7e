// Package types provides shared value types for the docrag indexing and retrieval pipeline.
//
// # Core Types
//
// Chunk is a bounded substring of a processed document with positional metadata:
//
//	chunk := types.Chunk{
//	    DocumentID: "handbook_hr.md_3",
//	    Content:    "Vacation requests are filed ...",
//	    SourcePath: "data/processed/handbook_hr.md",
//	    ChunkIndex: 3,
//	}
//
// DocumentID is derived from the processed file name and the chunk index, so
// re-indexing an unchanged file produces the same identifiers and the store can
// upsert instead of duplicating.
//
// FileFingerprint records content hash, modification time and size of a source
// file. The registry compares fingerprints to decide which files an incremental
// run must reprocess.
//
// # Search Results
//
// SearchHit is a chunk returned by retrieval. Directly retrieved hits carry a
// similarity in [0, 1]; chunks added by context or full-document expansion carry
// no similarity and are marked with IsContext or IsFullDocument instead.
//
// # Validation
//
//	if err := chunk.Validate(); err != nil {
//	    return err
//	}
package types

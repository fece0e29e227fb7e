// Package indexer turns a directory of documents into stored, embedded chunks.
//
// The Controller walks the source directory, compares each file with the
// fingerprint registry and converts and chunks only what changed:
//
//	ctl := indexer.NewController(converter.New(nil), logger)
//	res, err := ctl.Ingest(ctx, indexer.IngestOptions{
//	    SourceDir:    "data/source",
//	    ProcessedDir: "data/processed",
//	    ChunkSize:    500,
//	    ChunkOverlap: 100,
//	    Incremental:  true,
//	})
//
// Converted text is written to ProcessedDir as <stem>[_<dirs>].md and every
// chunk is named <processed name>_<index>, so re-indexing an unchanged file
// yields the same document IDs and the store upsert is idempotent.
//
// Conversion runs on a bounded errgroup. Results are reassembled in
// discovery order and only the calling goroutine touches the registry.
//
// # Index service
//
// Indexer wraps the Controller with embedding and storage:
//
//	idx := indexer.New(store, emb, indexer.Config{ProcessedDir: "data/processed"})
//	result, err := idx.Index(ctx, indexer.IndexOptions{SourceDir: "data/source", Incremental: true})
//
// The registry is saved after the chunks reach the store. A crash in between
// reprocesses those files on the next run rather than losing them.
//
// Incremental runs also prune: files that were registered but no longer exist
// are dropped from the registry and their chunks deleted from the store.
// Set KeepDeleted to disable this.
package indexer

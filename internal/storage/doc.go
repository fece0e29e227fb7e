// Package storage provides the vector store used by indexing and retrieval.
//
// The Storage interface is the narrow boundary the pipeline depends on: batch
// upsert keyed by document ID, delete-all, count, top-K cosine similarity, and
// the two positional lookups used by the retrieval merge (adjacent chunks and
// every chunk of a document). SQLiteStorage is the default implementation; the
// qdrant subpackage provides a remote backend with the same contract.
//
// # Database Schema
//
// Tables:
//   - schema_version: applied migrations (semantic versions)
//   - chunks: one row per chunk with content, source path, chunk index,
//     JSON metadata and the serialized embedding
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("data/docrag.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.InsertBatch(ctx, embedded); err != nil {
//	    return err
//	}
//	hits, err := db.TopK(ctx, queryVector, 5)
//
// # Build Modes
//
// Building with the sqlite_vec tag selects github.com/mattn/go-sqlite3 and
// computes similarity in SQL with vec_distance_cosine. The default build uses
// modernc.org/sqlite and ranks candidates in Go. Both return 1 - cosine distance,
// clamped to [0, 1].
//
// # Upserts
//
// InsertBatch runs in a single transaction. A chunk whose document ID already
// exists replaces the stored row, so re-indexing an unchanged file is idempotent
// and re-indexing a changed file overwrites its chunks in place.
package storage

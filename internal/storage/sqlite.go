package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/docrag-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch is returned when a batch mixes vector dimensions
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer; also keeps ":memory:" databases on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance with the schema applied
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.Init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Init applies pending migrations
func (s *SQLiteStorage) Init(ctx context.Context) error {
	if err := ApplyMigrations(ctx, s.db); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// InsertBatch upserts chunks in a single transaction
func (s *SQLiteStorage) InsertBatch(ctx context.Context, chunks []types.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim := len(chunks[0].Vector)
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return fmt.Errorf("chunk %q: %w", chunks[i].DocumentID, err)
		}
		if len(chunks[i].Vector) == 0 || len(chunks[i].Vector) != dim {
			return fmt.Errorf("%w: chunk %q has %d, expected %d", ErrDimensionMismatch, chunks[i].DocumentID, len(chunks[i].Vector), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range chunks {
		if err := upsertChunkWithQuerier(ctx, tx, &chunks[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func upsertChunkWithQuerier(ctx context.Context, q querier, chunk *types.EmbeddedChunk) error {
	meta, err := encodeMetadata(chunk.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO chunks (document_id, content, source_path, chunk_index, metadata, vector, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			content = excluded.content,
			source_path = excluded.source_path,
			chunk_index = excluded.chunk_index,
			metadata = excluded.metadata,
			vector = excluded.vector,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err = q.ExecContext(ctx, query,
		chunk.DocumentID, chunk.Content, chunk.SourcePath, chunk.ChunkIndex,
		meta, serializeVector(chunk.Vector), len(chunk.Vector), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %q: %w", chunk.DocumentID, err)
	}
	return nil
}

// DeleteAll removes every chunk
func (s *SQLiteStorage) DeleteAll(ctx context.Context) (int, error) {
	return execCount(ctx, s.querier(), "DELETE FROM chunks")
}

// DeleteBySource removes the chunks of one processed document
func (s *SQLiteStorage) DeleteBySource(ctx context.Context, sourcePath string) (int, error) {
	return execCount(ctx, s.querier(), "DELETE FROM chunks WHERE source_path = ?", sourcePath)
}

func execCount(ctx context.Context, q querier, query string, args ...interface{}) (int, error) {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Count returns the number of stored chunks
func (s *SQLiteStorage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.querier().QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// TopK returns the k most similar chunks
func (s *SQLiteStorage) TopK(ctx context.Context, vector []float32, k int) ([]types.SearchHit, error) {
	if k <= 0 || len(vector) == 0 {
		return []types.SearchHit{}, nil
	}
	return searchVector(ctx, s.querier(), vector, k)
}

// ChunksAdjacent returns neighbors of chunkIndex within window
func (s *SQLiteStorage) ChunksAdjacent(ctx context.Context, sourcePath string, chunkIndex, window int) ([]types.Chunk, error) {
	if window <= 0 {
		return []types.Chunk{}, nil
	}
	query := `
		SELECT document_id, content, source_path, chunk_index, metadata
		FROM chunks
		WHERE source_path = ? AND chunk_index BETWEEN ? AND ? AND chunk_index != ?
		ORDER BY chunk_index
	`
	return listChunksWithQuerier(ctx, s.querier(), query, sourcePath, chunkIndex-window, chunkIndex+window, chunkIndex)
}

// ChunksOfDocument returns every chunk of sourcePath
func (s *SQLiteStorage) ChunksOfDocument(ctx context.Context, sourcePath string) ([]types.Chunk, error) {
	query := `
		SELECT document_id, content, source_path, chunk_index, metadata
		FROM chunks
		WHERE source_path = ?
		ORDER BY chunk_index
	`
	return listChunksWithQuerier(ctx, s.querier(), query, sourcePath)
}

// GetChunk loads a single chunk by document ID
func (s *SQLiteStorage) GetChunk(ctx context.Context, documentID string) (*types.Chunk, error) {
	query := `
		SELECT document_id, content, source_path, chunk_index, metadata
		FROM chunks
		WHERE document_id = ?
	`
	chunks, err := listChunksWithQuerier(ctx, s.querier(), query, documentID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNotFound
	}
	return &chunks[0], nil
}

func listChunksWithQuerier(ctx context.Context, q querier, query string, args ...interface{}) ([]types.Chunk, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]types.Chunk, 0)
	for rows.Next() {
		var c types.Chunk
		var meta string
		if err := rows.Scan(&c.DocumentID, &c.Content, &c.SourcePath, &c.ChunkIndex, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if c.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (map[string]string, error) {
	m := map[string]string{}
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return m, nil
}

package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/docrag-mcp/internal/converter"
	"github.com/dshills/docrag-mcp/internal/embedder"
	"github.com/dshills/docrag-mcp/internal/observability"
	"github.com/dshills/docrag-mcp/internal/registry"
	"github.com/dshills/docrag-mcp/internal/storage"
	"github.com/dshills/docrag-mcp/pkg/types"
)

// ErrIndexInProgress is returned when another index or clear is running
var ErrIndexInProgress = errors.New("indexing already in progress")

// storeBatchSize is the number of chunks embedded and inserted per round trip
const storeBatchSize = 500

// Indexer runs ingestion and writes the resulting chunks to the store
type Indexer struct {
	controller   *Controller
	storage      storage.Storage
	embedder     embedder.Embedder
	processedDir string
	workers      int
	onChange     func()
	logger       *slog.Logger

	lock IndexLock
}

// Config contains configuration for the indexer
type Config struct {
	ProcessedDir string
	Workers      int                 // parallel conversions (default: runtime.NumCPU())
	Converter    converter.Converter // nil uses converter.New(nil)
	Logger       *slog.Logger

	// OnChange is called after the store content changed, e.g. to drop
	// cached search results.
	OnChange func()
}

// IndexOptions are the per-run parameters
type IndexOptions struct {
	SourceDir    string
	ChunkSize    int
	ChunkOverlap int
	Incremental  bool
	KeepDeleted  bool
	OnProgress   ProgressFunc
}

// New creates a new Indexer instance
func New(store storage.Storage, emb embedder.Embedder, cfg Config) *Indexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		controller:   NewController(cfg.Converter, logger),
		storage:      store,
		embedder:     emb,
		processedDir: cfg.ProcessedDir,
		workers:      cfg.Workers,
		onChange:     cfg.OnChange,
		logger:       logger,
	}
}

// ProcessedDir returns where converted files and the registry live
func (idx *Indexer) ProcessedDir() string {
	return idx.processedDir
}

// Index ingests opts.SourceDir, embeds the new chunks and upserts them. The
// returned result is always non-nil; on failure Success is false and Error
// carries the message along with the counters gathered so far.
func (idx *Indexer) Index(ctx context.Context, opts IndexOptions) (*types.IndexResult, error) {
	start := time.Now()
	result := &types.IndexResult{}
	fail := func(err error) (*types.IndexResult, error) {
		result.Success = false
		result.Error = err.Error()
		result.ProcessingTime = time.Since(start).Seconds()
		idx.logger.Error("indexing failed", "source_dir", opts.SourceDir, "error", err)
		return result, err
	}

	if !idx.lock.TryAcquire() {
		return fail(ErrIndexInProgress)
	}
	defer idx.lock.Release()

	ctx, span := observability.StartIndexSpan(ctx, idx.embedder.Provider(), idx.embedder.Model())
	defer span.End()

	ing, err := idx.controller.Run(ctx, IngestOptions{
		SourceDir:    opts.SourceDir,
		ProcessedDir: idx.processedDir,
		ChunkSize:    opts.ChunkSize,
		ChunkOverlap: opts.ChunkOverlap,
		Incremental:  opts.Incremental,
		KeepDeleted:  opts.KeepDeleted,
		Workers:      idx.workers,
		OnProgress:   opts.OnProgress,
	})
	if err != nil {
		observability.RecordError(span, err)
		return fail(err)
	}

	result.FilesDiscovered = ing.Stats.Discovered
	result.FilesProcessed = ing.Stats.Processed
	result.FilesSkipped = ing.Stats.Skipped
	result.FilesFailed = ing.Stats.Failed

	changed := false
	for _, source := range ing.StaleSources {
		n, err := idx.storage.DeleteBySource(ctx, source)
		if err != nil {
			observability.RecordError(span, err)
			return fail(fmt.Errorf("prune %s: %w", source, err))
		}
		result.FilesPruned++
		changed = changed || n > 0
	}

	// A rewritten document may have fewer chunks than before; drop the old
	// set so no tail of the previous content survives the upsert.
	for _, source := range ing.Replaced {
		n, err := idx.storage.DeleteBySource(ctx, source)
		if err != nil {
			observability.RecordError(span, err)
			if changed {
				idx.notify()
			}
			return fail(fmt.Errorf("replace %s: %w", source, err))
		}
		changed = changed || n > 0
	}

	for i := 0; i < len(ing.Chunks); i += storeBatchSize {
		batch := ing.Chunks[i:min(i+storeBatchSize, len(ing.Chunks))]
		if err := idx.store(ctx, batch); err != nil {
			observability.RecordError(span, err)
			if changed || i > 0 {
				idx.notify()
			}
			return fail(err)
		}
		result.DocumentCount += len(batch)
		changed = true
	}

	// Fingerprints are persisted only once their chunks are stored.
	if err := registry.Save(idx.processedDir, ing.Registry); err != nil {
		observability.RecordError(span, err)
		return fail(err)
	}
	if changed {
		idx.notify()
	}

	result.Success = true
	result.ProcessingTime = time.Since(start).Seconds()
	switch {
	case result.FilesDiscovered == 0:
		result.Message = fmt.Sprintf("no processable files found in %s", opts.SourceDir)
	case opts.Incremental && result.FilesProcessed == 0 && result.FilesPruned == 0:
		result.Message = "no changed files"
	default:
		result.Message = fmt.Sprintf("indexed %d documents", result.DocumentCount)
	}

	observability.RecordResultCount(span, result.DocumentCount)
	idx.logger.Info("indexing complete",
		"documents", result.DocumentCount,
		"processing_time", result.ProcessingTime,
		"files_processed", result.FilesProcessed,
		"files_skipped", result.FilesSkipped,
		"files_failed", result.FilesFailed,
		"files_pruned", result.FilesPruned)
	return result, nil
}

// store embeds chunk contents and upserts them
func (idx *Indexer) store(ctx context.Context, chunks []types.Chunk) error {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	vectors, err := embedder.EmbedMany(ctx, idx.embedder, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	embedded := make([]types.EmbeddedChunk, len(chunks))
	for i := range chunks {
		embedded[i] = types.EmbeddedChunk{Chunk: chunks[i], Vector: vectors[i]}
	}
	if err := idx.storage.InsertBatch(ctx, embedded); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	return nil
}

// Clear deletes every stored chunk and the fingerprint registry so the next
// incremental run starts from scratch
func (idx *Indexer) Clear(ctx context.Context) (int, error) {
	if !idx.lock.TryAcquire() {
		return 0, ErrIndexInProgress
	}
	defer idx.lock.Release()

	deleted, err := idx.storage.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear store: %w", err)
	}
	if err := registry.Delete(idx.processedDir); err != nil {
		return deleted, err
	}
	idx.notify()
	idx.logger.Info("index cleared", "deleted", deleted)
	return deleted, nil
}

// Count returns the number of stored chunks
func (idx *Indexer) Count(ctx context.Context) (int, error) {
	return idx.storage.Count(ctx)
}

func (idx *Indexer) notify() {
	if idx.onChange != nil {
		idx.onChange()
	}
}

package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/docrag-mcp/internal/chunker"
	"github.com/dshills/docrag-mcp/internal/converter"
	"github.com/dshills/docrag-mcp/internal/observability"
	"github.com/dshills/docrag-mcp/internal/registry"
	"github.com/dshills/docrag-mcp/pkg/types"
)

// ErrSourceNotFound is returned when the source directory is missing or not a directory
var ErrSourceNotFound = errors.New("source directory not found")

// Progress is reported once per discovered file
type Progress struct {
	Done    int
	Total   int
	Path    string
	Skipped bool  // unchanged since the last run
	Err     error // set when the file failed and was left for the next run
}

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(Progress)

// IngestOptions configures one ingestion run
type IngestOptions struct {
	SourceDir    string
	ProcessedDir string
	ChunkSize    int
	ChunkOverlap int
	Incremental  bool

	// KeepDeleted disables pruning of files that disappeared since the last
	// incremental run.
	KeepDeleted bool

	Workers    int // parallel conversions, default runtime.NumCPU()
	OnProgress ProgressFunc
}

// FileError records a file that was skipped because it failed
type FileError struct {
	Path string
	Err  error
}

// IngestStats counts what happened to each discovered file
type IngestStats struct {
	Discovered int
	Processed  int
	Skipped    int
	Failed     int
	Pruned     int
	Chunks     int
	Duration   time.Duration
	Failures   []FileError
}

// IngestResult is the outcome of Controller.Run. Registry holds the updated
// fingerprints and has not been saved yet.
type IngestResult struct {
	Chunks   []types.Chunk
	Registry registry.Registry
	Stats    IngestStats

	// StaleSources lists processed paths whose chunks belong to deleted files
	StaleSources []string

	// Replaced lists the processed paths rewritten by this run. Chunks the
	// store holds for them predate the new content.
	Replaced []string
}

// Controller discovers, converts and chunks source files
type Controller struct {
	converter converter.Converter
	logger    *slog.Logger
}

// NewController creates a Controller. A nil converter uses converter.New(nil).
func NewController(conv converter.Converter, logger *slog.Logger) *Controller {
	if conv == nil {
		conv = converter.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{converter: conv, logger: logger}
}

// fileJob is a discovered file selected for processing
type fileJob struct {
	path        string
	fingerprint types.FileFingerprint
	doc         *document
	err         error
}

// document is the converted form of one source file
type document struct {
	processedPath string
	text          string
	chunks        []types.Chunk
}

// Ingest runs the controller and saves the registry into opts.ProcessedDir
func (c *Controller) Ingest(ctx context.Context, opts IngestOptions) (*IngestResult, error) {
	res, err := c.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := registry.Save(opts.ProcessedDir, res.Registry); err != nil {
		return res, err
	}
	return res, nil
}

// Run discovers supported files under opts.SourceDir, decides which need
// reprocessing, converts and chunks them and writes the converted text into
// opts.ProcessedDir. Chunks are returned in discovery order and then chunk
// order. A file that fails is logged and skipped; its fingerprint is not
// recorded so the next incremental run retries it.
func (c *Controller) Run(ctx context.Context, opts IngestOptions) (*IngestResult, error) {
	start := time.Now()
	ctx, span := observability.StartIngestSpan(ctx, opts.SourceDir, opts.Incremental)
	defer span.End()

	sourceDir, err := resolveSourceDir(opts.SourceDir)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if opts.ProcessedDir == "" {
		return nil, fmt.Errorf("processed directory is required")
	}

	chunks := chunker.New(opts.ChunkSize, opts.ChunkOverlap)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	files, err := discoverFiles(sourceDir)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	reg := registry.New()
	if opts.Incremental {
		reg = registry.Load(opts.ProcessedDir, c.logger)
		c.logger.Info("registry loaded", "entries", len(reg))
	}

	res := &IngestResult{Registry: reg}
	res.Stats.Discovered = len(files)
	c.logger.Info("files discovered", "source_dir", sourceDir, "count", len(files), "incremental", opts.Incremental)

	report := c.progressReporter(opts.OnProgress, len(files))

	// Classification runs on this goroutine; it is the only registry writer.
	var jobs []*fileJob
	for _, path := range files {
		fp, err := registry.Fingerprint(path, c.logger)
		if err != nil {
			c.fail(res, path, err)
			report(path, false, err)
			continue
		}
		if opts.Incremental && !reg.NeedsReprocessing(fp) {
			reg.Record(fp)
			res.Stats.Skipped++
			report(path, true, nil)
			continue
		}
		if opts.Incremental {
			c.logger.Info("file changed", "path", path)
		}
		jobs = append(jobs, &fileJob{path: path, fingerprint: fp})
	}

	if err := os.MkdirAll(opts.ProcessedDir, 0o755); err != nil {
		return nil, fmt.Errorf("create processed directory: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			job.doc, job.err = c.processFile(gctx, sourceDir, opts.ProcessedDir, job.path, chunks)
			report(job.path, false, job.err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	// Processed copies are written in discovery order so that, when two
	// sources share a processed name, the later file owns both the copy and
	// the chunks.
	var docs []*document
	slot := make(map[string]int)
	for _, job := range jobs {
		if job.err == nil {
			job.err = writeProcessed(job.doc)
		}
		if job.err != nil {
			c.fail(res, job.path, job.err)
			continue
		}
		reg.Record(job.fingerprint)
		res.Stats.Processed++
		if i, ok := slot[job.doc.processedPath]; ok {
			c.logger.Warn("processed name collision", "path", job.path, "processed_path", job.doc.processedPath)
			docs[i] = job.doc
			continue
		}
		slot[job.doc.processedPath] = len(docs)
		docs = append(docs, job.doc)
	}
	for _, doc := range docs {
		res.Replaced = append(res.Replaced, doc.processedPath)
		res.Chunks = append(res.Chunks, doc.chunks...)
	}
	res.Stats.Chunks = len(res.Chunks)

	if opts.Incremental && !opts.KeepDeleted {
		res.StaleSources = c.prune(reg, sourceDir, opts.ProcessedDir, files)
		res.Stats.Pruned = len(res.StaleSources)
	}

	res.Stats.Duration = time.Since(start)
	observability.RecordIngestResult(span, res.Stats.Discovered, res.Stats.Processed,
		res.Stats.Skipped, res.Stats.Failed, res.Stats.Chunks)
	c.logger.Info("ingestion finished",
		"processed", res.Stats.Processed,
		"skipped", res.Stats.Skipped,
		"failed", res.Stats.Failed,
		"pruned", res.Stats.Pruned,
		"chunks", res.Stats.Chunks,
		"duration", res.Stats.Duration)
	return res, nil
}

func (c *Controller) fail(res *IngestResult, path string, err error) {
	c.logger.Error("file skipped", "path", path, "error", err)
	res.Stats.Failed++
	res.Stats.Failures = append(res.Stats.Failures, FileError{Path: path, Err: err})
}

func (c *Controller) progressReporter(fn ProgressFunc, total int) func(path string, skipped bool, err error) {
	var mu sync.Mutex
	done := 0
	return func(path string, skipped bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if fn != nil {
			fn(Progress{Done: done, Total: total, Path: path, Skipped: skipped, Err: err})
		}
	}
}

// processFile converts and chunks path. The converted copy is written later
// by writeProcessed.
func (c *Controller) processFile(ctx context.Context, sourceDir, processedDir, path string, ch *chunker.Chunker) (*document, error) {
	text, err := c.converter.Convert(ctx, path)
	if err != nil {
		return nil, err
	}

	name, dirSuffix := ProcessedName(sourceDir, path)
	doc := &document{processedPath: filepath.Join(processedDir, name), text: text}
	if text == "" {
		c.logger.Debug("file has no text", "path", path)
		return doc, nil
	}

	parts := ch.Split(text)
	out := make([]types.Chunk, 0, len(parts))
	for i, part := range parts {
		out = append(out, types.Chunk{
			DocumentID: types.DocumentIDFor(name, i),
			Content:    part,
			SourcePath: doc.processedPath,
			ChunkIndex: i,
			Metadata: map[string]string{
				types.MetaFileName:         filepath.Base(path),
				types.MetaDirectory:        filepath.Dir(path),
				types.MetaDirectorySuffix:  dirSuffix,
				types.MetaOriginalFilePath: path,
			},
		})
	}
	doc.chunks = out
	c.logger.Debug("file processed", "path", path, "chunks", len(out))
	return doc, nil
}

// writeProcessed stores the converted text next to the registry. Files
// without text get no copy, and an earlier copy under the same name is removed.
func writeProcessed(doc *document) error {
	if doc.text == "" {
		if err := os.Remove(doc.processedPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove processed file: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(doc.processedPath, []byte(doc.text), 0o644); err != nil {
		return fmt.Errorf("write processed file: %w", err)
	}
	return nil
}

// prune drops registry entries for files under sourceDir that no longer
// exist and returns the processed paths whose chunks should be deleted. A
// processed path still produced by a present file is kept.
func (c *Controller) prune(reg registry.Registry, sourceDir, processedDir string, files []string) []string {
	present := make(map[string]struct{}, len(files))
	live := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f] = struct{}{}
		name, _ := ProcessedName(sourceDir, f)
		live[filepath.Join(processedDir, name)] = struct{}{}
	}

	var stale []string
	for _, path := range reg.Missing(present) {
		if !within(sourceDir, path) {
			continue
		}
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		reg.Remove(path)
		name, _ := ProcessedName(sourceDir, path)
		processedPath := filepath.Join(processedDir, name)
		if _, ok := live[processedPath]; ok {
			continue
		}
		c.logger.Info("file deleted, pruning", "path", path, "source_path", processedPath)
		stale = append(stale, processedPath)
	}
	return stale
}

// ProcessedName returns the converted file name for path and the directory
// suffix derived from its parent directories relative to sourceDir.
// "docs/hr/policy.pdf" under "docs" becomes "policy_hr.md".
func ProcessedName(sourceDir, path string) (name, dirSuffix string) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	rel, err := filepath.Rel(sourceDir, path)
	if err == nil {
		if parent := filepath.Dir(rel); parent != "." && !strings.HasPrefix(parent, "..") {
			dirSuffix = strings.ReplaceAll(filepath.ToSlash(parent), "/", "_")
		}
	}

	if dirSuffix == "" {
		return stem + ".md", ""
	}
	return stem + "_" + dirSuffix + ".md", dirSuffix
}

func resolveSourceDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: empty path", ErrSourceNotFound)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceNotFound, dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, dir)
	}
	return abs, nil
}

// discoverFiles returns supported files under root in lexical order,
// skipping hidden files and directories
func discoverFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if converter.IsSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/docrag-mcp/internal/config"
	"github.com/dshills/docrag-mcp/internal/embedder"
	"github.com/dshills/docrag-mcp/internal/indexer"
	"github.com/dshills/docrag-mcp/internal/observability"
	"github.com/dshills/docrag-mcp/internal/searcher"
	"github.com/dshills/docrag-mcp/internal/storage"
	"github.com/dshills/docrag-mcp/internal/storage/qdrant"
)

// app holds the wired services shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tracing  *observability.TracerProvider
	store    storage.Storage
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
}

// newApp loads configuration and wires storage, embedder, indexer and
// searcher. Logs go to logOut, never stdout.
func newApp(ctx context.Context, configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Log.Level, logOut)
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		logger.Warn("configuration warning", "warning", w)
	}
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	tc := observability.DefaultTracingConfig()
	tc.ServiceVersion = version
	tc.OTLPEndpoint = cfg.Tracing.Endpoint
	tc.SampleRate = cfg.Tracing.SampleRate
	if a.tracing, err = observability.InitTracing(ctx, tc); err != nil {
		return nil, err
	}

	a.embedder, err = embedder.New(embedder.Config{
		Provider:  cfg.Embedder.Provider,
		APIKey:    cfg.Embedder.APIKey,
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		CacheSize: cfg.Embedder.CacheSize,
		RateLimit: cfg.Embedder.RateLimit,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("embedder: %w", err)
	}

	if a.store, err = openStore(ctx, cfg.Store, a.embedder.Dimension()); err != nil {
		a.close()
		return nil, err
	}

	a.searcher = searcher.NewSearcher(a.store, a.embedder, searcher.Config{
		QueryPrefix: cfg.Embedder.QueryPrefix,
		Workers:     cfg.Workers,
		Logger:      logger,
	})
	a.indexer = indexer.New(a.store, a.embedder, indexer.Config{
		ProcessedDir: cfg.ProcessedDir,
		Workers:      cfg.Workers,
		Logger:       logger,
		OnChange:     a.searcher.InvalidateCache,
	})

	logger.Debug("services ready",
		"store", cfg.Store.Backend,
		"provider", a.embedder.Provider(),
		"model", a.embedder.Model(),
		"dimension", a.embedder.Dimension())
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, dimension int) (storage.Storage, error) {
	switch cfg.Backend {
	case storage.BackendQdrant:
		store, err := qdrant.New(qdrant.Config{
			Addr:       cfg.QdrantAddr,
			Collection: cfg.Collection,
			Dimension:  dimension,
		})
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("qdrant init: %w", err)
		}
		return store, nil
	default:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		return storage.NewSQLiteStorage(cfg.SQLitePath)
	}
}

func (a *app) close() {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.tracing != nil {
		errs = append(errs, a.tracing.Shutdown(context.Background()))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown", "error", err)
	}
}

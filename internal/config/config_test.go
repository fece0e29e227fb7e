package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docrag-mcp/internal/storage"
)

// isolate runs the test in an empty working directory and home so no stray
// docrag.yaml or .env is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data/source", cfg.SourceDir)
	assert.Equal(t, "data/processed", cfg.ProcessedDir)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, storage.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "data/docrag.db", cfg.Store.SQLitePath)
	assert.Equal(t, "localhost:6334", cfg.Store.QdrantAddr)
	assert.Equal(t, "documents", cfg.Store.Collection)
	assert.Empty(t, cfg.Embedder.Provider)
	assert.Equal(t, 10000, cfg.Embedder.CacheSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Tracing.Endpoint)
	assert.InDelta(t, 1.0, cfg.Tracing.SampleRate, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
}

func TestLoadFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source_dir: /srv/docs
chunk_size: 800
store:
  backend: qdrant
  collection: handbook
embedder:
  provider: ollama
  model: nomic-embed-text
  query_prefix: "query: "
watch:
  debounce: 500ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/docs", cfg.SourceDir)
	assert.Equal(t, 800, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.Equal(t, storage.BackendQdrant, cfg.Store.Backend)
	assert.Equal(t, "handbook", cfg.Store.Collection)
	assert.Equal(t, "ollama", cfg.Embedder.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
	assert.Equal(t, "query: ", cfg.Embedder.QueryPrefix)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoadSearchPath(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docrag.yaml"), []byte("chunk_overlap: 20\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.ChunkOverlap)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvironment(t *testing.T) {
	t.Run("prefixed", func(t *testing.T) {
		isolate(t)
		t.Setenv("DOCRAG_CHUNK_SIZE", "300")
		t.Setenv("DOCRAG_STORE_BACKEND", "qdrant")
		t.Setenv("DOCRAG_EMBEDDER_API_KEY", "secret")
		t.Setenv("DOCRAG_LOG_LEVEL", "debug")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 300, cfg.ChunkSize)
		assert.Equal(t, storage.BackendQdrant, cfg.Store.Backend)
		assert.Equal(t, "secret", cfg.Embedder.APIKey)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("legacy variables", func(t *testing.T) {
		isolate(t)
		t.Setenv("SOURCE_DIR", "/legacy/source")
		t.Setenv("PROCESSED_DIR", "/legacy/processed")
		t.Setenv("EMBEDDING_MODEL", "jina-embeddings-v3")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "/legacy/source", cfg.SourceDir)
		assert.Equal(t, "/legacy/processed", cfg.ProcessedDir)
		assert.Equal(t, "jina-embeddings-v3", cfg.Embedder.Model)
	})

	t.Run("prefixed wins over legacy", func(t *testing.T) {
		isolate(t)
		t.Setenv("SOURCE_DIR", "/legacy")
		t.Setenv("DOCRAG_SOURCE_DIR", "/prefixed")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "/prefixed", cfg.SourceDir)
	})

	t.Run("dotenv", func(t *testing.T) {
		dir := isolate(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DOCRAG_CHUNK_OVERLAP=7\n"), 0o644))
		t.Cleanup(func() { _ = os.Unsetenv("DOCRAG_CHUNK_OVERLAP") })

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.ChunkOverlap)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ChunkSize:    500,
			ChunkOverlap: 100,
			Workers:      4,
			Store:        StoreConfig{Backend: storage.BackendSQLite},
			Tracing:      TracingConfig{SampleRate: 1},
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		wantWarning string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero chunk size", mutate: func(c *Config) { c.ChunkSize = 0 }, wantErr: true},
		{name: "negative overlap", mutate: func(c *Config) { c.ChunkOverlap = -1 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "postgres" }, wantErr: true},
		{name: "no workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: true},
		{name: "overlap not smaller", mutate: func(c *Config) { c.ChunkOverlap = 500 }, wantWarning: "chunk_overlap"},
		{name: "sample rate out of range", mutate: func(c *Config) { c.Tracing.SampleRate = 2 }, wantWarning: "sample_rate"},
		{name: "negative rate limit", mutate: func(c *Config) { c.Embedder.RateLimit = -1 }, wantWarning: "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			warnings, err := cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
			if tt.wantWarning != "" {
				require.Len(t, warnings, 1)
				assert.Contains(t, warnings[0], tt.wantWarning)
			} else {
				assert.Empty(t, warnings)
			}
		})
	}
}

// Package config loads docrag settings from an optional config file, a .env
// file and the environment.
//
// Precedence, highest first: DOCRAG_* environment variables (and the bare
// SOURCE_DIR, PROCESSED_DIR and EMBEDDING_MODEL variables), the config file,
// then built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dshills/docrag-mcp/internal/storage"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "DOCRAG"

// ErrInvalidConfig is returned by Validate for settings that cannot work.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	SourceDir    string `mapstructure:"source_dir"`
	ProcessedDir string `mapstructure:"processed_dir"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	Workers      int    `mapstructure:"workers"`

	Store    StoreConfig    `mapstructure:"store"`
	Embedder EmbedderConfig `mapstructure:"embedder"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

// StoreConfig selects and addresses the vector store backend.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	QdrantAddr string `mapstructure:"qdrant_addr"`
	Collection string `mapstructure:"collection"`
}

// EmbedderConfig configures the embedding provider. An empty Provider autodetects from API keys.
type EmbedderConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	CacheSize   int     `mapstructure:"cache_size"`
	RateLimit   float64 `mapstructure:"rate_limit"`
	QueryPrefix string  `mapstructure:"query_prefix"`
}

// LogConfig sets the slog level: debug, info, warn or error.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// TracingConfig enables OTLP trace export. An empty Endpoint disables it.
type TracingConfig struct {
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// legacyEnv maps config keys to the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	"source_dir":     "SOURCE_DIR",
	"processed_dir":  "PROCESSED_DIR",
	"embedder.model": "EMBEDDING_MODEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source_dir", "./data/source")
	v.SetDefault("processed_dir", "data/processed")
	v.SetDefault("chunk_size", 500)
	v.SetDefault("chunk_overlap", 100)
	v.SetDefault("workers", runtime.NumCPU())

	v.SetDefault("store.backend", storage.BackendSQLite)
	v.SetDefault("store.sqlite_path", "data/docrag.db")
	v.SetDefault("store.qdrant_addr", "localhost:6334")
	v.SetDefault("store.collection", "documents")

	v.SetDefault("embedder.provider", "")
	v.SetDefault("embedder.model", "")
	v.SetDefault("embedder.api_key", "")
	v.SetDefault("embedder.base_url", "")
	v.SetDefault("embedder.cache_size", 10000)
	v.SetDefault("embedder.rate_limit", 0.0)
	v.SetDefault("embedder.query_prefix", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("watch.debounce", 2*time.Second)
}

// Load reads configuration. An empty path searches for docrag.yaml in the
// working directory and $HOME/.config/docrag; a missing file is not an error
// unless path was given explicitly.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("docrag")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "docrag"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration. Settings that cannot work are returned
// as an error wrapping ErrInvalidConfig; questionable ones come back as warnings.
func (c *Config) Validate() (warnings []string, err error) {
	var problems []string

	if c.ChunkSize <= 0 {
		problems = append(problems, fmt.Sprintf("chunk_size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 {
		problems = append(problems, fmt.Sprintf("chunk_overlap must not be negative, got %d", c.ChunkOverlap))
	}
	switch c.Store.Backend {
	case storage.BackendSQLite, storage.BackendQdrant:
	default:
		problems = append(problems, fmt.Sprintf("unknown store backend %q", c.Store.Backend))
	}
	if c.Workers <= 0 {
		problems = append(problems, fmt.Sprintf("workers must be positive, got %d", c.Workers))
	}

	if c.ChunkSize > 0 && c.ChunkOverlap >= c.ChunkSize {
		warnings = append(warnings, fmt.Sprintf("chunk_overlap %d is not smaller than chunk_size %d; chunks will not overlap", c.ChunkOverlap, c.ChunkSize))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0, 1]", c.Tracing.SampleRate))
	}
	if c.Embedder.RateLimit < 0 {
		warnings = append(warnings, "embedder rate_limit is negative; rate limiting disabled")
	}

	if len(problems) > 0 {
		return warnings, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return warnings, nil
}

package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables read by NewFromEnv and DetectProvider
const (
	EnvProvider = "DOCRAG_EMBEDDING_PROVIDER"
	EnvModel    = "EMBEDDING_MODEL"
)

// DefaultCacheSize is the number of embeddings kept in memory
const DefaultCacheSize = 10000

// Config holds embedder configuration
type Config struct {
	Provider  string  // jina, openai, ollama, local; empty autodetects
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int     // required for ollama models other than the default
	CacheSize int     // 0 uses DefaultCacheSize, negative disables the cache
	RateLimit float64 // requests per second for HTTP providers, 0 = unlimited
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. DOCRAG_EMBEDDING_PROVIDER (jina, openai, ollama, local)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	return New(Config{
		Provider: os.Getenv(EnvProvider),
		Model:    os.Getenv(EnvModel),
	})
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	switch {
	case cfg.CacheSize == 0:
		cache = NewCache(DefaultCacheSize)
	case cfg.CacheSize > 0:
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = detect(cfg.APIKey, "")
	}

	opts := []Option{
		WithModel(cfg.Model),
		WithEndpoint(cfg.BaseURL),
		WithDimension(cfg.Dimension),
		WithRateLimit(cfg.RateLimit),
	}

	switch provider {
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, cache, opts...)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cache, opts...)
	case ProviderOllama:
		return NewOllamaProvider(cache, opts...)
	case ProviderLocal:
		dim := cfg.Dimension
		if dim <= 0 {
			dim = LocalDimension
		}
		return NewLocalProviderWithDimension(dim, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	return detect("", os.Getenv(EnvProvider))
}

func detect(apiKey, explicit string) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if apiKey != "" {
		// A bare key without a provider name is assumed to be OpenAI-compatible.
		return ProviderOpenAI
	}
	return ProviderLocal
}

package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/docrag-mcp/internal/embedder"
	"github.com/dshills/docrag-mcp/internal/observability"
	"github.com/dshills/docrag-mcp/internal/storage"
	"github.com/dshills/docrag-mcp/pkg/types"
)

// Request limits and defaults
const (
	DefaultLimit       = 5
	MaxLimit           = 100
	DefaultContextSize = 1
	DefaultCacheSize   = 1000
	DefaultCacheTTL    = 5 * time.Minute
)

var (
	// ErrEmptyQuery is returned for a blank query string
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidRequest wraps out-of-range request parameters
	ErrInvalidRequest = errors.New("invalid search request")
)

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query        string
	Limit        int // 0 means DefaultLimit
	WithContext  bool
	ContextSize  int
	FullDocument bool
	UseCache     bool
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Query    string            `json:"query"`
	Results  []types.SearchHit `json:"results"`
	Count    int               `json:"count"`
	Duration time.Duration     `json:"-"`
	CacheHit bool              `json:"-"`
}

// Config configures a Searcher
type Config struct {
	// QueryPrefix is prepended to query text before embedding,
	// e.g. "query: " for e5 models
	QueryPrefix string
	CacheSize   int           // default DefaultCacheSize
	CacheTTL    time.Duration // default DefaultCacheTTL
	Workers     int           // concurrent expansion fetches
	Logger      *slog.Logger
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher embeds queries and runs them through Retrieve
type Searcher struct {
	storage     storage.Storage
	embedder    embedder.Embedder
	queryPrefix string
	ttl         time.Duration
	workers     int
	logger      *slog.Logger

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.Mutex
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage, emb embedder.Embedder, cfg Config) *Searcher {
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[[32]byte, *cacheEntry](size)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Searcher{
		storage:     store,
		embedder:    emb,
		queryPrefix: cfg.QueryPrefix,
		ttl:         ttl,
		workers:     cfg.Workers,
		logger:      logger,
		cache:       cache,
	}
}

// Search embeds req.Query and returns the merged hits
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	if err := normalize(&req); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSearchSpan(ctx, req.Limit)
	defer span.End()

	key := requestKey(req)
	if req.UseCache {
		if cached := s.lookup(key); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	vector, err := embedder.EmbedOne(ctx, s.embedder, embedder.QueryText(s.queryPrefix, req.Query))
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	hits, err := Retrieve(ctx, s.storage, RetrieveRequest{
		Vector:       vector,
		TopK:         req.Limit,
		WithContext:  req.WithContext,
		ContextSize:  req.ContextSize,
		FullDocument: req.FullDocument,
		Workers:      s.workers,
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	resp := &SearchResponse{
		Query:    req.Query,
		Results:  hits,
		Count:    len(hits),
		Duration: time.Since(start),
	}
	if req.UseCache && len(hits) > 0 {
		s.store(key, resp)
	}

	observability.RecordResultCount(span, len(hits))
	s.logger.Debug("search complete", "query", req.Query, "results", len(hits), "duration", resp.Duration)
	return resp, nil
}

// normalize fills defaults and rejects out-of-range values
func normalize(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit < 0 || req.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d, got %d", ErrInvalidRequest, MaxLimit, req.Limit)
	}
	if req.ContextSize < 0 {
		return fmt.Errorf("%w: context size must not be negative, got %d", ErrInvalidRequest, req.ContextSize)
	}
	return nil
}

func (s *Searcher) lookup(key [32]byte) *SearchResponse {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache.Get(key)
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(key)
		return nil
	}
	return copyResponse(entry.response)
}

func (s *Searcher) store(key [32]byte, resp *SearchResponse) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Add(key, &cacheEntry{
		response:  copyResponse(resp),
		expiresAt: time.Now().Add(s.ttl),
	})
}

// InvalidateCache drops every cached response. Called after the store changes.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Purge()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cache.Len()
}

func copyResponse(src *SearchResponse) *SearchResponse {
	dst := *src
	dst.Results = make([]types.SearchHit, len(src.Results))
	for i, h := range src.Results {
		h.Chunk = h.Chunk.Clone()
		dst.Results[i] = h
	}
	return &dst
}

// requestKey hashes the fields that change the result
func requestKey(req SearchRequest) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%t|%d|%t",
		req.Query, req.Limit, req.WithContext, req.ContextSize, req.FullDocument)))
}

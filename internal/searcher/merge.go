package searcher

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/docrag-mcp/internal/observability"
	"github.com/dshills/docrag-mcp/internal/storage"
	"github.com/dshills/docrag-mcp/pkg/types"
)

// defaultFetchWorkers bounds concurrent store calls during expansion
const defaultFetchWorkers = 8

// RetrieveRequest describes one retrieval over a query vector
type RetrieveRequest struct {
	Vector       []float32
	TopK         int
	WithContext  bool
	ContextSize  int
	FullDocument bool
	Workers      int // concurrent expansion fetches, default 8
}

// expandsContext reports whether the context stage runs
func (r RetrieveRequest) expandsContext() bool {
	return r.WithContext && r.ContextSize > 0
}

// Retrieve returns the top hits for req.Vector, optionally expanded with
// neighboring chunks and whole documents. Without expansion the store order
// is kept. With expansion every document_id appears once, the first-seen
// entry wins, and the result is sorted by (source_path, chunk_index).
func Retrieve(ctx context.Context, store storage.Storage, req RetrieveRequest) ([]types.SearchHit, error) {
	ctx, span := observability.StartRetrieveSpan(ctx, req.TopK, req.WithContext, req.ContextSize, req.FullDocument)
	defer span.End()

	base, err := store.TopK(ctx, req.Vector, req.TopK)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("top-k search: %w", err)
	}
	if len(base) == 0 {
		return []types.SearchHit{}, nil
	}
	if !req.expandsContext() && !req.FullDocument {
		observability.RecordResultCount(span, len(base))
		return base, nil
	}

	workers := req.Workers
	if workers <= 0 {
		workers = defaultFetchWorkers
	}

	m := newMergeSet(len(base))
	for _, hit := range base {
		m.add(hit)
	}

	if req.expandsContext() {
		if err := m.expandContext(ctx, store, req.ContextSize, workers); err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		m.sort()
	}

	if req.FullDocument {
		if err := m.expandDocuments(ctx, store, workers); err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		m.sort()
	}

	observability.RecordResultCount(span, len(m.hits))
	return m.hits, nil
}

// mergeSet accumulates hits keyed by document_id
type mergeSet struct {
	hits []types.SearchHit
	seen map[string]struct{}
}

func newMergeSet(capacity int) *mergeSet {
	return &mergeSet{
		hits: make([]types.SearchHit, 0, capacity),
		seen: make(map[string]struct{}, capacity),
	}
}

// add appends hit unless its document_id is already present
func (m *mergeSet) add(hit types.SearchHit) bool {
	if _, ok := m.seen[hit.DocumentID]; ok {
		return false
	}
	m.seen[hit.DocumentID] = struct{}{}
	m.hits = append(m.hits, hit)
	return true
}

func (m *mergeSet) sort() {
	sort.SliceStable(m.hits, func(i, j int) bool {
		a, b := m.hits[i], m.hits[j]
		if a.SourcePath != b.SourcePath {
			return a.SourcePath < b.SourcePath
		}
		return a.ChunkIndex < b.ChunkIndex
	})
}

type position struct {
	source string
	index  int
}

func (m *mergeSet) expandContext(ctx context.Context, store storage.Storage, window, workers int) error {
	var anchors []position
	distinct := make(map[position]struct{}, len(m.hits))
	for _, h := range m.hits {
		p := position{source: h.SourcePath, index: h.ChunkIndex}
		if _, ok := distinct[p]; ok {
			continue
		}
		distinct[p] = struct{}{}
		anchors = append(anchors, p)
	}

	fetched, err := fetchAll(ctx, workers, anchors, func(ctx context.Context, p position) ([]types.Chunk, error) {
		chunks, err := store.ChunksAdjacent(ctx, p.source, p.index, window)
		if err != nil {
			return nil, fmt.Errorf("context for %s#%d: %w", p.source, p.index, err)
		}
		return chunks, nil
	})
	if err != nil {
		return err
	}

	for _, chunks := range fetched {
		for _, c := range chunks {
			m.add(types.SearchHit{Chunk: c, IsContext: true})
		}
	}
	return nil
}

func (m *mergeSet) expandDocuments(ctx context.Context, store storage.Storage, workers int) error {
	var sources []string
	distinct := make(map[string]struct{})
	for _, h := range m.hits {
		if _, ok := distinct[h.SourcePath]; ok {
			continue
		}
		distinct[h.SourcePath] = struct{}{}
		sources = append(sources, h.SourcePath)
	}

	fetched, err := fetchAll(ctx, workers, sources, func(ctx context.Context, source string) ([]types.Chunk, error) {
		chunks, err := store.ChunksOfDocument(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", source, err)
		}
		return chunks, nil
	})
	if err != nil {
		return err
	}

	for _, chunks := range fetched {
		for _, c := range chunks {
			m.add(types.SearchHit{Chunk: c, IsFullDocument: true})
		}
	}
	return nil
}

// fetchAll runs fetch for every key concurrently and returns the results in
// key order
func fetchAll[K any](ctx context.Context, workers int, keys []K, fetch func(context.Context, K) ([]types.Chunk, error)) ([][]types.Chunk, error) {
	out := make([][]types.Chunk, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, key := range keys {
		g.Go(func() error {
			chunks, err := fetch(gctx, key)
			if err != nil {
				return err
			}
			out[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

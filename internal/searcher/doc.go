// Package searcher answers similarity queries over the chunk store.
//
// Retrieve is the merge engine. It takes the store's top-k hits for a query
// vector and optionally widens them in two stages:
//
//   - context: for each distinct (source_path, chunk_index) hit, the
//     ContextSize chunks before and after it in the same document
//   - full document: every chunk of each document already in the result
//
// Expansions never duplicate a document_id; the first occurrence keeps its
// similarity and flags. After each stage the result is sorted by
// (source_path, chunk_index) so a document reads in order. Without any
// expansion the store's similarity order is returned untouched.
//
//	hits, err := searcher.Retrieve(ctx, store, searcher.RetrieveRequest{
//	    Vector:      vec,
//	    TopK:        5,
//	    WithContext: true,
//	    ContextSize: 1,
//	})
//
// Searcher adds query embedding, request validation and an LRU response
// cache that the indexer purges through InvalidateCache whenever the store
// changes.
package searcher

// Package embedder generates vector embeddings for document chunks and queries.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "ollama", Model: "nomic-embed-text"})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vectors, err := embedder.EmbedMany(ctx, emb, texts)
//	query, err := embedder.EmbedOne(ctx, emb, embedder.QueryText("query: ", q))
//
// EmbedMany splits its input into batches of DefaultBatchSize; GenerateBatch
// itself rejects more than MaxBatchSize texts.
//
// # Provider Selection
//
//  1. Config.Provider or DOCRAG_EMBEDDING_PROVIDER when set
//  2. Else JINA_API_KEY → Jina AI
//  3. Else OPENAI_API_KEY → OpenAI
//  4. Else the local provider (offline)
//
// Providers:
//   - jina: 1024 dimensions, https://api.jina.ai/v1/embeddings
//   - openai: 1536 dimensions, https://api.openai.com/v1/embeddings
//   - ollama: 768 dimensions by default, http://localhost:11434/api/embed
//   - local: 384 dimensions, signed feature hashing of word tokens
//
// # Caching
//
// Each provider holds an LRU cache keyed by a hash of model and text. Cached
// vectors are copied on read so callers cannot corrupt them.
//
// # Errors and Retries
//
// HTTP providers retry transient failures (network errors, 5xx, 429) with
// exponential backoff. Other 4xx responses fail immediately. Failures surface
// as ErrProviderFailed:
//
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // report the failed run
//	}
//
// A rate limit (requests per second) can be set per provider with
// WithRateLimit or Config.RateLimit.
package embedder

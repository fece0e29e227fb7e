package embedder

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache keeps recently computed embeddings keyed by cacheKey. Vectors are
// copied on the way in and out, so callers may modify what they hold.
type Cache struct {
	lru *lru.Cache[string, *Embedding]
}

// NewCache returns a cache holding up to size entries. Non-positive size
// uses DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *Embedding](size)
	if err != nil {
		panic(err) // only fails for non-positive size
	}
	return &Cache{lru: c}
}

func (c *Cache) Get(key string) (*Embedding, bool) {
	emb, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return emb.clone(), true
}

func (c *Cache) Set(key string, emb *Embedding) {
	c.lru.Add(key, emb.clone())
}

// Size reports the number of cached embeddings
func (c *Cache) Size() int {
	return c.lru.Len()
}

func (c *Cache) Clear() {
	c.lru.Purge()
}

// ComputeHash returns the hex SHA-256 of text
func ComputeHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// cacheKey scopes the text hash to a model; vectors from different models
// live in different spaces.
func cacheKey(model, text string) string {
	return ComputeHash(model + "\x00" + text)
}

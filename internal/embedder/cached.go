package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of embeddings kept by Cached.
// At 768 dimensions × 4 bytes × 2048 entries this is roughly 6MB.
const DefaultCacheSize = 2048

// Cached wraps an Embedder with an LRU cache keyed by input text. Repeated
// queries, probe sentences, and re-ingested chunks hit the cache instead of
// the backend. Safe because embeddings are deterministic for fixed input.
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU cache of the given size.
// A non-positive size falls back to DefaultCacheSize.
func NewCached(inner Embedder, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only errors on non-positive size, which is excluded above.
	cache, _ := lru.New[string, []float32](size)
	return &Cached{inner: inner, cache: cache}
}

// cacheKey hashes the text so keys have constant length regardless of input size.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns cached vectors where available and delegates the remaining
// texts to the inner embedder in a single batch. The returned slice is
// parallel to the input slice.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(cacheKey(text)); ok {
			results[i] = vec
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, i := range missIdx {
		results[i] = fresh[j]
		c.cache.Add(cacheKey(texts[i]), fresh[j])
	}

	return results, nil
}

// Len returns the number of cached embeddings (diagnostics only).
func (c *Cached) Len() int { return c.cache.Len() }

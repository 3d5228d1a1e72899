// Package embed decorates an embedding provider with a read-through vector
// cache keyed by content hash.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/recallstack/recall/internal/memory"
)

// Cached wraps an Embedder with a ristretto cache. Identical texts reuse
// their vector instead of re-calling the provider.
type Cached struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// Compile-time interface guard.
var _ memory.Embedder = (*Cached)(nil)

// NewCached wraps inner with a cache holding up to maxEntries vectors.
func NewCached(inner memory.Embedder, maxEntries int64) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: create cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text or fetches and caches it.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec, 1)
	return vec, nil
}

// EmbedBatch fetches all texts in one provider call, serving and priming
// the cache around it. Results are in input order.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if v, ok := c.cache.Get(cacheKey(text)); ok {
			if vec, ok := v.([]float32); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		vecs, err := c.inner.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			out[missingIdx[j]] = vec
			c.cache.Set(cacheKey(missing[j]), vec, 1)
		}
	}
	return out, nil
}

// Evict drops the cached vector for text. Used as the detached cleanup hook
// after a memory deletion.
func (c *Cached) Evict(text string) error {
	c.cache.Del(cacheKey(text))
	return nil
}

// Close releases the cache's internal goroutines.
func (c *Cached) Close() {
	c.cache.Close()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

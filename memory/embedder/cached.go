// Package embedder provides shared embedding middleware. Concrete
// providers live in the subpackages (mock, openai, onnx).
package embedder

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/recall-go/memory"
)

// Cached wraps an Embedder with a ristretto cache keyed by text, so
// identical text is embedded at most once per process. Record content
// is immutable, which is what makes this safe: a cached vector never
// goes stale.
type Cached struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// NewCached wraps inner with a cache sized for roughly maxEntries
// vectors. A non-positive maxEntries defaults to 10000.
func NewCached(inner memory.Embedder, maxEntries int64) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, computing and caching it
// on a miss.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := textKey(text)
	if v, ok := c.cache.Get(key); ok {
		return v.([]float32), nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec, 1)
	c.cache.Wait()
	return vec, nil
}

// EmbedBatch serves what it can from the cache and forwards only the
// misses to the inner provider in a single batched call.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if v, ok := c.cache.Get(textKey(text)); ok {
			out[i] = v.([]float32)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for i, vec := range vecs {
		out[missIdx[i]] = vec
		c.cache.Set(textKey(missTexts[i]), vec, 1)
	}
	c.cache.Wait()
	return out, nil
}

// Dimensions returns the inner provider's embedding size.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

func textKey(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	return h.Sum64()
}

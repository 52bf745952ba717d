// Package mock provides a deterministic embedder for tests and
// offline development. Vectors are derived from a hash of the text, so
// identical text always maps to the identical unit vector, but there
// is no real semantic similarity between different texts.
package mock

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/becomeliminal/recall-go/memory"
)

// Embedder generates hash-based embeddings.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with the given dimensionality. A
// non-positive value defaults to 384, matching all-MiniLM-L6-v2.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Embedder{dimensions: dimensions}
}

// Embed creates a deterministic embedding from text.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))

	// LCG seeded by the text hash, mapped to [-1, 1].
	seed := h.Sum64()
	vec := make([]float32, m.dimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return memory.Normalize(vec), nil
}

// EmbedBatch embeds each text independently.
func (m *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

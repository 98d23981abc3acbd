package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder is a test double for the embedding client. Behavior can be
// injected per test; the default produces a deterministic vector from
// the text hash.
type Embedder struct {
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	callCount int
}

// NewEmbedder creates a mock with deterministic default behavior.
func NewEmbedder() *Embedder {
	return &Embedder{}
}

// EmbedText returns the injected result or a deterministic vector.
func (m *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.callCount++

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}

	return DeterministicVector(text, 1536), nil
}

// CallCount reports how many times EmbedText ran.
func (m *Embedder) CallCount() int {
	return m.callCount
}

// DeterministicVector derives a unit-normalized vector from a text
// hash, stable across runs.
func DeterministicVector(text string, dims int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vector := make([]float32, dims)
	var norm float64
	for i := range vector {
		seed = seed*6364136223846793005 + 1442695040888963407
		value := float64(int64(seed>>11)) / float64(1<<52)
		vector[i] = float32(value)
		norm += value * value
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}

	return vector
}

// Package hashembed provides a deterministic embedder derived from a rolling
// hash of the text. It carries no semantics; identical text always yields a
// bit-identical vector, which keeps retrieval reproducible in tests and in
// deployments without an embedding model.
package hashembed

import (
	"context"
	"math"

	"github.com/poiesic/policyrag/ai"
	"github.com/poiesic/policyrag/core"
)

// Embedder implements ai.Embedder with the hash formula.
type Embedder struct {
	dim int
}

var _ ai.Embedder = (*Embedder)(nil)

// New returns a hash embedder producing core.EmbeddingDimension floats.
func New() ai.Embedder {
	return &Embedder{dim: core.EmbeddingDimension}
}

// EmbedText implements ai.Embedder.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Vector(text, e.dim), nil
}

// EmbedTexts implements ai.Embedder.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = Vector(text, e.dim)
	}
	return vectors, nil
}

// Hash is the 32-bit rolling polynomial hash h = h*31 + codepoint.
// Overflow wraps as signed 32-bit arithmetic.
func Hash(text string) int32 {
	var h int32
	for _, r := range text {
		h = h*31 + int32(r)
	}
	return h
}

// Vector computes v[i] = sin(h+i) * cos(h*i) for i in [0, dim).
func Vector(text string, dim int) []float32 {
	h := float64(Hash(text))
	v := make([]float32, dim)
	for i := range v {
		fi := float64(i)
		v[i] = float32(math.Sin(h+fi) * math.Cos(h*fi))
	}
	return v
}

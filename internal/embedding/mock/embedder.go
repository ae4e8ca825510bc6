// Package mock provides deterministic embedders for tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"

	"github.com/tatankam/eventmap/internal/embedding"
	"github.com/tatankam/eventmap/internal/models"
)

// Dimension of the vectors produced by DenseEmbedder by default
const Dimension = 32

// DenseEmbedder is a test double for embedding.DenseEmbedder
type DenseEmbedder struct {
	// EmbedTextFunc overrides EmbedText when set
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc overrides EmbedTexts when set
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	calls atomic.Int64
}

var _ embedding.DenseEmbedder = (*DenseEmbedder)(nil)

// NewDenseEmbedder returns a mock with the default hash-based behaviour
func NewDenseEmbedder() *DenseEmbedder {
	return &DenseEmbedder{}
}

func (m *DenseEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	return DeterministicVector(text, Dimension), nil
}

func (m *DenseEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = DeterministicVector(t, Dimension)
	}
	return out, nil
}

// CallCount returns the number of calls to either method
func (m *DenseEmbedder) CallCount() int {
	return int(m.calls.Load())
}

// SparseEmbedder is a test double for embedding.SparseEmbedder
type SparseEmbedder struct {
	EmbedSparseFunc func(ctx context.Context, text string) (models.SparseVector, error)

	calls atomic.Int64
	inner embedding.HashingSparseEmbedder
}

var _ embedding.SparseEmbedder = (*SparseEmbedder)(nil)

// NewSparseEmbedder returns a mock falling back to the hashing embedder
func NewSparseEmbedder() *SparseEmbedder {
	return &SparseEmbedder{}
}

func (m *SparseEmbedder) EmbedSparse(ctx context.Context, text string) (models.SparseVector, error) {
	m.calls.Add(1)
	if m.EmbedSparseFunc != nil {
		return m.EmbedSparseFunc(ctx, text)
	}
	return m.inner.EmbedSparse(ctx, text)
}

func (m *SparseEmbedder) EmbedSparseTexts(ctx context.Context, texts []string) ([]models.SparseVector, error) {
	m.calls.Add(1)
	out := make([]models.SparseVector, len(texts))
	for i, t := range texts {
		if m.EmbedSparseFunc != nil {
			v, err := m.EmbedSparseFunc(ctx, t)
			if err != nil {
				return nil, err
			}
			out[i] = v
			continue
		}
		v, _ := m.inner.EmbedSparse(ctx, t)
		out[i] = v
	}
	return out, nil
}

// CallCount returns the number of calls to either method
func (m *SparseEmbedder) CallCount() int {
	return int(m.calls.Load())
}

// DeterministicVector derives a unit vector from the FNV hash of text
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, dim)
	var sum float64
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/1000 - 0.5
		sum += float64(vec[i]) * float64(vec[i])
	}
	if sum > 0 {
		norm := float32(1 / math.Sqrt(sum))
		for i := range vec {
			vec[i] *= norm
		}
	}
	return vec
}

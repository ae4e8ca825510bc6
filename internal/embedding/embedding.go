// Package embedding turns event and query text into dense and sparse vectors.
package embedding

import (
	"context"

	"github.com/tatankam/eventmap/internal/models"
)

// DenseEmbedder generates fixed-length vectors for semantic similarity.
// Implementations must be safe for concurrent use.
type DenseEmbedder interface {
	// EmbedText embeds a single text
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds a batch, results in input order
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// SparseEmbedder generates term-weighted sparse vectors.
// Implementations must be safe for concurrent use.
type SparseEmbedder interface {
	EmbedSparse(ctx context.Context, text string) (models.SparseVector, error)
	EmbedSparseTexts(ctx context.Context, texts []string) ([]models.SparseVector, error)
}

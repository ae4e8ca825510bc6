package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/upstream"
)

// TEISparseEmbedder calls the /embed_sparse endpoint of a
// text-embeddings-inference server running a SPLADE-style model
type TEISparseEmbedder struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

type teiSparseValue struct {
	Index uint32  `json:"index"`
	Value float32 `json:"value"`
}

// NewTEISparseEmbedder returns an embedder for the server at baseURL
func NewTEISparseEmbedder(baseURL string, timeout time.Duration) *TEISparseEmbedder {
	return &TEISparseEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  upstream.NewHTTPClient(timeout),
		logger:  slog.Default().With("component", "tei-sparse-embedder"),
	}
}

// EmbedSparse embeds one text
func (t *TEISparseEmbedder) EmbedSparse(ctx context.Context, text string) (models.SparseVector, error) {
	vecs, err := t.EmbedSparseTexts(ctx, []string{text})
	if err != nil {
		return models.SparseVector{}, err
	}
	return vecs[0], nil
}

// EmbedSparseTexts embeds a batch in one request
func (t *TEISparseEmbedder) EmbedSparseTexts(ctx context.Context, texts []string) ([]models.SparseVector, error) {
	t.logger.Debug("generating sparse embeddings", "count", len(texts))

	var raw [][]teiSparseValue
	err := upstream.DoJSON(ctx, t.client, upstream.Request{
		Service: "tei",
		Method:  http.MethodPost,
		URL:     t.baseURL + "/embed_sparse",
		Body:    map[string]any{"inputs": texts},
	}, &raw)
	if err != nil {
		t.logger.Error("failed to generate sparse embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("tei: got %d sparse vectors for %d texts", len(raw), len(texts))
	}

	out := make([]models.SparseVector, len(raw))
	for i, entries := range raw {
		sort.Slice(entries, func(a, b int) bool { return entries[a].Index < entries[b].Index })
		vec := models.SparseVector{
			Indices: make([]uint32, 0, len(entries)),
			Values:  make([]float32, 0, len(entries)),
		}
		for _, e := range entries {
			if n := len(vec.Indices); n > 0 && vec.Indices[n-1] == e.Index {
				vec.Values[n-1] += e.Value
				continue
			}
			vec.Indices = append(vec.Indices, e.Index)
			vec.Values = append(vec.Values, e.Value)
		}
		out[i] = vec
	}
	return out, nil
}

package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	texts []string
	err   error
}

func (c *countingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *countingEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts = append(c.texts, texts...)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0.5, -1}
	}
	return out, nil
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"jazz", "festival", "2025", "città"}, Tokenize("The Jazz-Festival of 2025, in città!"))
	assert.Empty(t, Tokenize("  ,.; "))
}

func TestHashingSparseEmbedder(t *testing.T) {
	h := NewHashingSparseEmbedder()
	ctx := context.Background()

	a, err := h.EmbedSparse(ctx, "jazz concert jazz")
	require.NoError(t, err)
	b, err := h.EmbedSparse(ctx, "Jazz concert, jazz!")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.Equal(t, 2, a.Len())
	assert.Less(t, a.Indices[0], a.Indices[1])

	// repeated terms weigh more, saturating below k1+1
	weights := map[float32]bool{}
	for _, v := range a.Values {
		weights[v] = true
	}
	assert.True(t, weights[float32(1*(bm25K1+1)/(1+bm25K1))])
	assert.True(t, weights[float32(2*(bm25K1+1)/(2+bm25K1))])

	q, err := h.EmbedSparse(ctx, "jazz")
	require.NoError(t, err)
	other, err := h.EmbedSparse(ctx, "food market")
	require.NoError(t, err)
	assert.Greater(t, q.Dot(a), 0.0)
	assert.Equal(t, 0.0, q.Dot(other))

	batch, err := h.EmbedSparseTexts(ctx, []string{"jazz concert jazz", "food market"})
	require.NoError(t, err)
	assert.Equal(t, []any{a, other}, []any{batch[0], batch[1]})
}

func TestCachedEmbedder(t *testing.T) {
	cache, err := OpenCache("", 0)
	require.NoError(t, err)
	defer cache.Close()

	next := &countingEmbedder{}
	cached := NewCachedEmbedder(next, cache, "test-model")
	ctx := context.Background()

	first, err := cached.EmbedTexts(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)

	second, err := cached.EmbedTexts(ctx, []string{"beta", "gamma", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, next.texts)

	assert.Equal(t, first[0], second[2])
	assert.Equal(t, first[1], second[0])

	vec, err := cached.EmbedText(ctx, "gamma")
	require.NoError(t, err)
	assert.Equal(t, second[1], vec)
	assert.Equal(t, 2, next.calls)
}

func TestCachedEmbedder_PropagatesErrors(t *testing.T) {
	cache, err := OpenCache("", time.Hour)
	require.NoError(t, err)
	defer cache.Close()

	next := &countingEmbedder{err: errors.New("boom")}
	_, err = NewCachedEmbedder(next, cache, "m").EmbedText(context.Background(), "x")
	assert.EqualError(t, err, "boom")

	_, ok, err := cache.Get(CacheKey("m", "x"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheKeyNamespacesModel(t *testing.T) {
	assert.NotEqual(t, CacheKey("a", "text"), CacheKey("b", "text"))
	assert.Equal(t, CacheKey("a", "text"), CacheKey("a", "text"))
}

func TestTEISparseEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed_sparse", r.URL.Path)
		var body struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		resp := make([][]map[string]any, len(body.Inputs))
		for i := range body.Inputs {
			resp[i] = []map[string]any{
				{"index": 42, "value": 0.5},
				{"index": 7, "value": 1.25},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	tei := NewTEISparseEmbedder(srv.URL+"/", 5*time.Second)
	vec, err := tei.EmbedSparse(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []uint32{7, 42}, vec.Indices)
	assert.Equal(t, []float32{1.25, 0.5}, vec.Values)
}

func TestTEISparseEmbedder_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewTEISparseEmbedder(srv.URL, time.Second).EmbedSparse(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenAIConfigValidate(t *testing.T) {
	cfg := OpenAIConfig{Host: "http://localhost:11434/", Model: "nomic-embed-text"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:11434/v1", cfg.Host)
	assert.Equal(t, "none", cfg.APIKey)

	assert.Error(t, (&OpenAIConfig{Host: "http://x"}).Validate())
	assert.Error(t, (&OpenAIConfig{Model: "m"}).Validate())
}

package embedding

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"unicode"

	"github.com/tatankam/eventmap/internal/models"
)

// BM25 term-frequency saturation
const bm25K1 = 1.2

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "of": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"for": {}, "with": {}, "by": {}, "is": {}, "are": {}, "or": {}, "from": {},
	"il": {}, "lo": {}, "la": {}, "i": {}, "gli": {}, "le": {}, "di": {}, "e": {}, "del": {},
	"della": {}, "un": {}, "una": {}, "per": {}, "con": {}, "da": {}, "al": {},
}

// HashingSparseEmbedder maps tokens to FNV-1a buckets weighted by a saturated
// term frequency. It needs no model and gives the same vector for the same
// text in every process, so documents and queries agree.
type HashingSparseEmbedder struct{}

// NewHashingSparseEmbedder returns the hashing embedder
func NewHashingSparseEmbedder() *HashingSparseEmbedder {
	return &HashingSparseEmbedder{}
}

// EmbedSparse embeds one text
func (h *HashingSparseEmbedder) EmbedSparse(_ context.Context, text string) (models.SparseVector, error) {
	return hashTokens(Tokenize(text)), nil
}

// EmbedSparseTexts embeds a batch
func (h *HashingSparseEmbedder) EmbedSparseTexts(ctx context.Context, texts []string) ([]models.SparseVector, error) {
	out := make([]models.SparseVector, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = hashTokens(Tokenize(t))
	}
	return out, nil
}

// Tokenize lowercases text and splits it into letter/digit runs, dropping stop words
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func hashTokens(tokens []string) models.SparseVector {
	counts := make(map[uint32]float64, len(tokens))
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		counts[h.Sum32()]++
	}

	vec := models.SparseVector{
		Indices: make([]uint32, 0, len(counts)),
		Values:  make([]float32, 0, len(counts)),
	}
	for idx := range counts {
		vec.Indices = append(vec.Indices, idx)
	}
	sort.Slice(vec.Indices, func(i, j int) bool { return vec.Indices[i] < vec.Indices[j] })
	for _, idx := range vec.Indices {
		tf := counts[idx]
		vec.Values = append(vec.Values, float32(tf*(bm25K1+1)/(tf+bm25K1)))
	}
	return vec
}

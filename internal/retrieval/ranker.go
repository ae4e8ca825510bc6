package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tatankam/eventmap/internal/embedding"
	"github.com/tatankam/eventmap/internal/models"
)

// Ranker defaults
const (
	DefaultScoreThreshold = 0.34
	DefaultPrefetchLimit  = 50
)

// Errors returned by NewRanker
var (
	ErrIndexRequired          = errors.New("retrieval: index is required")
	ErrDenseEmbedderRequired  = errors.New("retrieval: dense embedder is required")
	ErrSparseEmbedderRequired = errors.New("retrieval: sparse embedder is required")
)

// HybridIndex is the event store queried by the ranker. Every method applies
// the filter before limiting.
type HybridIndex interface {
	// SearchDense returns events by descending vector similarity, dropping
	// those scoring below threshold
	SearchDense(ctx context.Context, vector []float32, filter Filter, limit int, threshold float64) ([]models.ScoredEvent, error)

	// SearchSparse returns events by descending sparse dot product; zero scores are dropped
	SearchSparse(ctx context.Context, vector models.SparseVector, filter Filter, limit int) ([]models.ScoredEvent, error)

	// Browse returns events matching the filter without relevance scoring
	Browse(ctx context.Context, filter Filter, limit int) ([]models.EventRecord, error)
}

// Config tunes the hybrid ranking
type Config struct {
	// ScoreThreshold is the minimum dense similarity; applied to the dense branch only
	ScoreThreshold float64 `yaml:"score_threshold"`

	// PrefetchLimit caps each branch before fusion
	PrefetchLimit int `yaml:"prefetch_limit"`

	// RRFK is the rank offset in 1/(k+rank)
	RRFK float64 `yaml:"rrf_k"`
}

// DefaultConfig returns the production tuning
func DefaultConfig() Config {
	return Config{
		ScoreThreshold: DefaultScoreThreshold,
		PrefetchLimit:  DefaultPrefetchLimit,
		RRFK:           DefaultRRFK,
	}
}

// Ranker runs the sparse and dense candidate branches and fuses them
type Ranker struct {
	index  HybridIndex
	dense  embedding.DenseEmbedder
	sparse embedding.SparseEmbedder
	cfg    Config
	logger *slog.Logger
}

// Option configures a Ranker
type Option func(*Ranker)

// WithConfig overrides the default tuning. A negative threshold and a
// non-positive prefetch limit or k keep their defaults.
func WithConfig(cfg Config) Option {
	return func(r *Ranker) {
		if cfg.ScoreThreshold >= 0 {
			r.cfg.ScoreThreshold = cfg.ScoreThreshold
		}
		if cfg.PrefetchLimit > 0 {
			r.cfg.PrefetchLimit = cfg.PrefetchLimit
		}
		if cfg.RRFK > 0 {
			r.cfg.RRFK = cfg.RRFK
		}
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Ranker) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRanker wires the ranker to its collaborators
func NewRanker(index HybridIndex, dense embedding.DenseEmbedder, sparse embedding.SparseEmbedder, opts ...Option) (*Ranker, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if dense == nil {
		return nil, ErrDenseEmbedderRequired
	}
	if sparse == nil {
		return nil, ErrSparseEmbedderRequired
	}

	r := &Ranker{
		index:  index,
		dense:  dense,
		sparse: sparse,
		cfg:    DefaultConfig(),
		logger: slog.Default().With("component", "hybrid-ranker"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the effective tuning
func (r *Ranker) Config() Config {
	return r.cfg
}

// RankRequest is the input of Rank
type RankRequest struct {
	QueryText string
	Window    models.TemporalWindow
	Corridor  models.Corridor
	Limit     int
}

// Rank returns up to req.Limit events inside the corridor and window, by
// descending fused relevance. With an empty query no embedding is computed,
// the threshold is 0 and events come back in index order with score 0.
// An empty slice is a normal result.
func (r *Ranker) Rank(ctx context.Context, req RankRequest) ([]models.ScoredEvent, error) {
	if req.Limit < 1 {
		return nil, fmt.Errorf("%w: result limit must be positive", models.ErrValidation)
	}
	filter := BuildFilter(req.Corridor, req.Window)

	if req.QueryText == "" {
		records, err := r.index.Browse(ctx, filter, req.Limit)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to browse index: %w", models.ErrUpstream, err)
		}
		out := make([]models.ScoredEvent, len(records))
		for i, rec := range records {
			out[i] = models.ScoredEvent{Event: rec}
		}
		r.logger.Debug("filter-only browse", "results", len(out))
		return out, nil
	}

	denseVec, err := r.dense.EmbedText(ctx, req.QueryText)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %w", models.ErrUpstream, err)
	}
	sparseVec, err := r.sparse.EmbedSparse(ctx, req.QueryText)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query terms: %w", models.ErrUpstream, err)
	}

	sparseHits, err := r.index.SearchSparse(ctx, sparseVec, filter, r.cfg.PrefetchLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: sparse search failed: %w", models.ErrUpstream, err)
	}
	denseHits, err := r.index.SearchDense(ctx, denseVec, filter, r.cfg.PrefetchLimit, r.cfg.ScoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("%w: dense search failed: %w", models.ErrUpstream, err)
	}

	fused := FuseRRF(r.cfg.RRFK, sparseHits, denseHits)
	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}

	r.logger.Debug("hybrid ranking",
		"sparse", len(sparseHits),
		"dense", len(denseHits),
		"fused", len(fused),
		"threshold", r.cfg.ScoreThreshold)
	return fused, nil
}

package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/retrieval"
	"github.com/tatankam/eventmap/internal/upstream"
)

// Qdrant defaults
const (
	DefaultDenseVectorName  = "dense_vector"
	DefaultSparseVectorName = "sparse_vector"
	DefaultQdrantTimeout    = 15 * time.Second
)

// QdrantConfig holds the collection coordinates
type QdrantConfig struct {
	URL          string        `yaml:"url"`
	APIKey       string        `yaml:"api_key"`
	Collection   string        `yaml:"collection"`
	DenseVector  string        `yaml:"dense_vector"`
	SparseVector string        `yaml:"sparse_vector"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Normalize fills defaults
func (c *QdrantConfig) Normalize() {
	c.URL = strings.TrimRight(c.URL, "/")
	if c.DenseVector == "" {
		c.DenseVector = DefaultDenseVectorName
	}
	if c.SparseVector == "" {
		c.SparseVector = DefaultSparseVectorName
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultQdrantTimeout
	}
}

// Validate checks the required fields
func (c *QdrantConfig) Validate() error {
	if c.URL == "" {
		return errors.New("qdrant: url is required")
	}
	if c.Collection == "" {
		return errors.New("qdrant: collection is required")
	}
	return nil
}

// QdrantIndex talks to a Qdrant collection over its REST API
type QdrantIndex struct {
	cfg    QdrantConfig
	client *http.Client
	logger *slog.Logger
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrantIndex validates cfg and returns the adapter
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &QdrantIndex{
		cfg:    cfg,
		client: upstream.NewHTTPClient(cfg.Timeout),
		logger: slog.Default().With("component", "qdrant-index", "collection", cfg.Collection),
	}, nil
}

type qdrantPayload struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Location    qdrantGeo        `json:"location"`
	Address     string           `json:"address,omitempty"` // flat layout, read only
	StartDate   models.Timestamp `json:"start_date"`
	EndDate     models.Timestamp `json:"end_date"`
}

type qdrantGeo struct {
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	Address string  `json:"address,omitempty"`
}

type scoredPoint struct {
	ID      any           `json:"id"`
	Score   float64       `json:"score"`
	Payload qdrantPayload `json:"payload"`
}

func (p qdrantPayload) record() models.EventRecord {
	address := p.Location.Address
	if address == "" {
		address = p.Address
	}
	return models.EventRecord{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Location: models.EventLocation{
			Lon:     p.Location.Lon,
			Lat:     p.Location.Lat,
			Address: address,
		},
		StartDate: p.StartDate.Time,
		EndDate:   p.EndDate.Time,
	}
}

// PointID maps an event id to the stable UUID Qdrant stores it under
func PointID(eventID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(eventID)).String()
}

type queryRequest struct {
	Query          any              `json:"query"`
	Using          string           `json:"using"`
	Filter         retrieval.Filter `json:"filter"`
	Limit          int              `json:"limit"`
	ScoreThreshold *float64         `json:"score_threshold,omitempty"`
	WithPayload    bool             `json:"with_payload"`
}

type queryResponse struct {
	Result struct {
		Points []scoredPoint `json:"points"`
	} `json:"result"`
}

// SearchDense queries the dense vector with the score threshold applied server side
func (q *QdrantIndex) SearchDense(ctx context.Context, vector []float32, filter retrieval.Filter, limit int, threshold float64) ([]models.ScoredEvent, error) {
	return q.query(ctx, queryRequest{
		Query:          vector,
		Using:          q.cfg.DenseVector,
		Filter:         filter,
		Limit:          limit,
		ScoreThreshold: &threshold,
		WithPayload:    true,
	})
}

// SearchSparse queries the sparse vector
func (q *QdrantIndex) SearchSparse(ctx context.Context, vector models.SparseVector, filter retrieval.Filter, limit int) ([]models.ScoredEvent, error) {
	if vector.Len() == 0 {
		return nil, nil
	}
	return q.query(ctx, queryRequest{
		Query:       vector,
		Using:       q.cfg.SparseVector,
		Filter:      filter,
		Limit:       limit,
		WithPayload: true,
	})
}

func (q *QdrantIndex) query(ctx context.Context, body queryRequest) ([]models.ScoredEvent, error) {
	var resp queryResponse
	err := q.do(ctx, http.MethodPost, "/points/query", body, &resp)
	if err != nil {
		return nil, err
	}
	out := make([]models.ScoredEvent, len(resp.Result.Points))
	for i, p := range resp.Result.Points {
		out[i] = models.ScoredEvent{Event: p.Payload.record(), Score: p.Score}
	}
	q.logger.Debug("query", "using", body.Using, "results", len(out))
	return out, nil
}

type scrollRequest struct {
	Filter      retrieval.Filter `json:"filter"`
	Limit       int              `json:"limit"`
	WithPayload bool             `json:"with_payload"`
	WithVector  bool             `json:"with_vector"`
}

type scrollResponse struct {
	Result struct {
		Points []scoredPoint `json:"points"`
	} `json:"result"`
}

// Browse scrolls matching points without scoring
func (q *QdrantIndex) Browse(ctx context.Context, filter retrieval.Filter, limit int) ([]models.EventRecord, error) {
	var resp scrollResponse
	err := q.do(ctx, http.MethodPost, "/points/scroll", scrollRequest{
		Filter:      filter,
		Limit:       limit,
		WithPayload: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	out := make([]models.EventRecord, len(resp.Result.Points))
	for i, p := range resp.Result.Points {
		out[i] = p.Payload.record()
	}
	return out, nil
}

type upsertPoint struct {
	ID      string         `json:"id"`
	Vector  map[string]any `json:"vector"`
	Payload qdrantPayload  `json:"payload"`
}

// Upsert writes the events with both vectors, waiting for the write to apply
func (q *QdrantIndex) Upsert(ctx context.Context, events []models.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	points := make([]upsertPoint, len(events))
	for i, e := range events {
		vectors := map[string]any{q.cfg.DenseVector: e.Dense}
		if e.Sparse.Len() > 0 {
			vectors[q.cfg.SparseVector] = e.Sparse
		}
		points[i] = upsertPoint{
			ID:     PointID(e.ID),
			Vector: vectors,
			Payload: qdrantPayload{
				ID:          e.ID,
				Title:       e.Title,
				Description: e.Description,
				Location:    qdrantGeo{Lon: e.Location.Lon, Lat: e.Location.Lat, Address: e.Location.Address},
				StartDate:   models.Timestamp{Time: e.StartDate},
				EndDate:     models.Timestamp{Time: e.EndDate},
			},
		}
	}
	err := q.do(ctx, http.MethodPut, "/points?wait=true", map[string]any{"points": points}, nil)
	if err != nil {
		return err
	}
	q.logger.Info("upserted points", "count", len(points))
	return nil
}

// EnsureCollection creates the collection and its payload indexes when missing
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dimension int) error {
	err := q.do(ctx, http.MethodGet, "", nil, nil)
	if err == nil {
		return nil
	}
	var status *upstream.StatusError
	if !errors.As(err, &status) || status.Code != http.StatusNotFound {
		return err
	}

	create := map[string]any{
		"vectors": map[string]any{
			q.cfg.DenseVector: map[string]any{"size": dimension, "distance": "Cosine"},
		},
		"sparse_vectors": map[string]any{
			q.cfg.SparseVector: map[string]any{},
		},
	}
	if err := q.do(ctx, http.MethodPut, "", create, nil); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	indexes := []struct{ field, schema string }{
		{retrieval.KeyLocation, "geo"},
		{retrieval.KeyStartDate, "datetime"},
		{retrieval.KeyEndDate, "datetime"},
	}
	for _, idx := range indexes {
		body := map[string]string{"field_name": idx.field, "field_schema": idx.schema}
		if err := q.do(ctx, http.MethodPut, "/index?wait=true", body, nil); err != nil {
			return fmt.Errorf("failed to index payload field %s: %w", idx.field, err)
		}
	}
	q.logger.Info("created collection", "dimension", dimension)
	return nil
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body, out any) error {
	header := http.Header{}
	if q.cfg.APIKey != "" {
		header.Set("api-key", q.cfg.APIKey)
	}
	return upstream.DoJSON(ctx, q.client, upstream.Request{
		Service: "qdrant",
		Method:  method,
		URL:     q.cfg.URL + "/collections/" + url.PathEscape(q.cfg.Collection) + path,
		Header:  header,
		Body:    body,
	}, out)
}

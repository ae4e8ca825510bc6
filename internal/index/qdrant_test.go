package index

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/retrieval"
	"github.com/tatankam/eventmap/internal/upstream"
)

type recordedCall struct {
	Method string
	Path   string
	Query  string
	APIKey string
	Body   map[string]any
}

type fakeQdrant struct {
	mu        sync.Mutex
	calls     []recordedCall
	exists    bool
	responses map[string]string // path -> JSON body
}

func (f *fakeQdrant) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		call := recordedCall{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			APIKey: r.Header.Get("api-key"),
		}
		if len(raw) > 0 {
			assert.NoError(t, json.Unmarshal(raw, &call.Body))
		}
		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()

		if r.Method == http.MethodGet && !f.exists {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":{"error":"Not found"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if body, ok := f.responses[r.URL.Path]; ok {
			w.Write([]byte(body))
			return
		}
		w.Write([]byte(`{"result":true,"status":"ok"}`))
	}
}

func newTestQdrant(t *testing.T, fake *fakeQdrant) *QdrantIndex {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	q, err := NewQdrantIndex(QdrantConfig{URL: srv.URL + "/", APIKey: "secret", Collection: "events"})
	require.NoError(t, err)
	return q
}

const pointsJSON = `{"result":{"points":[
	{"id":"6f1c","score":0.91,"payload":{"id":"e1","title":"Jazz","description":"night",
	 "location":{"lon":11.2,"lat":43.7},"address":"Piazza","start_date":"2025-06-01T20:00:00Z",
	 "end_date":"2025-06-01T23:00:00Z"}}]},"status":"ok"}`

func TestQdrantConfig_Validate(t *testing.T) {
	_, err := NewQdrantIndex(QdrantConfig{Collection: "events"})
	assert.Error(t, err)
	_, err = NewQdrantIndex(QdrantConfig{URL: "http://localhost:6333"})
	assert.Error(t, err)

	cfg := QdrantConfig{URL: "http://q/", Collection: "c"}
	cfg.Normalize()
	assert.Equal(t, "http://q", cfg.URL)
	assert.Equal(t, DefaultDenseVectorName, cfg.DenseVector)
	assert.Equal(t, DefaultSparseVectorName, cfg.SparseVector)
	assert.Equal(t, DefaultQdrantTimeout, cfg.Timeout)
}

func TestQdrantIndex_SearchDense(t *testing.T) {
	fake := &fakeQdrant{responses: map[string]string{"/collections/events/points/query": pointsJSON}}
	q := newTestQdrant(t, fake)

	window := models.TemporalWindow{
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}
	filter := retrieval.BuildFilter(testCorridor(), window)

	hits, err := q.SearchDense(context.Background(), []float32{0.1, 0.2}, filter, 50, 0.34)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "e1", hits[0].Event.ID)
	assert.Equal(t, "Piazza", hits[0].Event.Location.Address)
	assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
	assert.True(t, hits[0].Event.StartDate.Equal(time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)))

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Equal(t, http.MethodPost, call.Method)
	assert.Equal(t, "secret", call.APIKey)
	assert.Equal(t, "dense_vector", call.Body["using"])
	assert.Equal(t, 50.0, call.Body["limit"])
	assert.Equal(t, 0.34, call.Body["score_threshold"])
	assert.Equal(t, true, call.Body["with_payload"])

	must := call.Body["filter"].(map[string]any)["must"].([]any)
	require.Len(t, must, 3)
	geo := must[0].(map[string]any)
	assert.Equal(t, "location", geo["key"])
	points := geo["geo_polygon"].(map[string]any)["exterior"].(map[string]any)["points"].([]any)
	assert.Len(t, points, 5)
	assert.Equal(t, map[string]any{"lon": -1.0, "lat": -1.0}, points[0])

	startCond := must[1].(map[string]any)
	assert.Equal(t, "start_date", startCond["key"])
	assert.Equal(t, map[string]any{"lte": "2025-06-02T00:00:00Z"}, startCond["range"])
	endCond := must[2].(map[string]any)
	assert.Equal(t, "end_date", endCond["key"])
	assert.Equal(t, map[string]any{"gte": "2025-06-01T00:00:00Z"}, endCond["range"])
}

func TestQdrantIndex_SearchSparse(t *testing.T) {
	fake := &fakeQdrant{responses: map[string]string{"/collections/events/points/query": pointsJSON}}
	q := newTestQdrant(t, fake)
	filter := retrieval.Filter{Must: []retrieval.Condition{}}

	empty, err := q.SearchSparse(context.Background(), models.SparseVector{}, filter, 50)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Empty(t, fake.calls)

	vec := models.SparseVector{Indices: []uint32{4, 7}, Values: []float32{1, 0.5}}
	hits, err := q.SearchSparse(context.Background(), vec, filter, 50)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	call := fake.calls[0]
	assert.Equal(t, "sparse_vector", call.Body["using"])
	assert.NotContains(t, call.Body, "score_threshold")
	query := call.Body["query"].(map[string]any)
	assert.Equal(t, []any{4.0, 7.0}, query["indices"])
}

func TestQdrantIndex_Browse(t *testing.T) {
	fake := &fakeQdrant{responses: map[string]string{"/collections/events/points/scroll": pointsJSON}}
	q := newTestQdrant(t, fake)

	got, err := q.Browse(context.Background(), retrieval.Filter{Must: []retrieval.Condition{}}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Jazz", got[0].Title)
	assert.Equal(t, 10.0, fake.calls[0].Body["limit"])
}

func TestQdrantIndex_ReadsNestedAddress(t *testing.T) {
	nested := `{"result":{"points":[
		{"id":"6f1c","payload":{"id":"e2","title":"Fair",
		 "location":{"lon":11.2,"lat":43.7,"address":"Via Roma 1"},"address":"old flat value",
		 "start_date":"2025-06-01T10:00:00Z","end_date":"2025-06-02T18:00:00Z"}}]},"status":"ok"}`
	fake := &fakeQdrant{responses: map[string]string{"/collections/events/points/scroll": nested}}
	q := newTestQdrant(t, fake)

	got, err := q.Browse(context.Background(), retrieval.Filter{Must: []retrieval.Condition{}}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Via Roma 1", got[0].Location.Address)
	assert.Equal(t, 11.2, got[0].Location.Lon)
}

func TestQdrantIndex_Upsert(t *testing.T) {
	fake := &fakeQdrant{}
	q := newTestQdrant(t, fake)

	e := testEvent("e1", "jazz concert", 11.2, 43.7)
	require.NoError(t, q.Upsert(context.Background(), []models.EventRecord{e}))

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Equal(t, http.MethodPut, call.Method)
	assert.Equal(t, "/collections/events/points", call.Path)
	assert.Equal(t, "wait=true", call.Query)

	points := call.Body["points"].([]any)
	require.Len(t, points, 1)
	p := points[0].(map[string]any)
	assert.Equal(t, PointID("e1"), p["id"])
	vectors := p["vector"].(map[string]any)
	assert.Contains(t, vectors, "dense_vector")
	assert.Contains(t, vectors, "sparse_vector")
	payload := p["payload"].(map[string]any)
	assert.Equal(t, "e1", payload["id"])
	assert.Equal(t, map[string]any{"lon": 11.2, "lat": 43.7, "address": "addr e1"}, payload["location"])
	assert.NotContains(t, payload, "address")
	assert.Equal(t, "2025-06-01T00:00:00Z", payload["start_date"])

	require.NoError(t, q.Upsert(context.Background(), nil))
	assert.Len(t, fake.calls, 1)
}

func TestQdrantIndex_EnsureCollection(t *testing.T) {
	t.Run("creates missing collection", func(t *testing.T) {
		fake := &fakeQdrant{}
		q := newTestQdrant(t, fake)
		require.NoError(t, q.EnsureCollection(context.Background(), 384))

		require.Len(t, fake.calls, 5)
		create := fake.calls[1]
		assert.Equal(t, http.MethodPut, create.Method)
		assert.Equal(t, "/collections/events", create.Path)
		dense := create.Body["vectors"].(map[string]any)["dense_vector"].(map[string]any)
		assert.Equal(t, 384.0, dense["size"])
		assert.Equal(t, "Cosine", dense["distance"])

		var fields []any
		for _, c := range fake.calls[2:] {
			assert.Equal(t, "/collections/events/index", c.Path)
			fields = append(fields, c.Body["field_name"])
		}
		assert.Equal(t, []any{"location", "start_date", "end_date"}, fields)
	})

	t.Run("existing collection is left alone", func(t *testing.T) {
		fake := &fakeQdrant{exists: true}
		q := newTestQdrant(t, fake)
		require.NoError(t, q.EnsureCollection(context.Background(), 384))
		assert.Len(t, fake.calls, 1)
	})
}

func TestQdrantIndex_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	q, err := NewQdrantIndex(QdrantConfig{URL: srv.URL, Collection: "events"})
	require.NoError(t, err)

	_, err = q.Browse(context.Background(), retrieval.Filter{}, 1)
	var status *upstream.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusInternalServerError, status.Code)
	assert.Equal(t, "qdrant", status.Service)
}

func TestPointID_Stable(t *testing.T) {
	assert.Equal(t, PointID("abc"), PointID("abc"))
	assert.NotEqual(t, PointID("abc"), PointID("abd"))
	assert.Len(t, PointID("abc"), 36)
}

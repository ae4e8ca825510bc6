package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tatankam/eventmap/internal/extraction"
	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

type finderFunc func(ctx context.Context, req *models.RouteEventsRequest) (*models.RouteEventsResponse, error)

func (f finderFunc) FindEvents(ctx context.Context, req *models.RouteEventsRequest) (*models.RouteEventsResponse, error) {
	return f(ctx, req)
}

func postJSON(handler gin.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST(path, handler)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestCreateMap(t *testing.T) {
	var got *models.RouteEventsRequest
	finder := finderFunc(func(_ context.Context, req *models.RouteEventsRequest) (*models.RouteEventsResponse, error) {
		got = req
		return &models.RouteEventsResponse{NoEvents: true, Message: models.NoEventsMessage}, nil
	})
	h := NewRouteEventsHandler(finder)

	w := postJSON(h.CreateMap, "/create_map", `{
		"origin_address": "Padova", "destination_address": "Venezia",
		"buffer_distance": 3, "start_window": "2025-06-01T00:00:00", "end_window": "2025-06-05T00:00:00",
		"query_text": "jazz", "travel_profile": "cycling-regular"}`)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, 0, env.Code)
	assert.Contains(t, string(env.Data), models.NoEventsMessage)

	require.NotNil(t, got)
	assert.Equal(t, "Padova", got.OriginAddress)
	assert.Equal(t, 3.0, *got.BufferDistance)
	assert.Equal(t, 2025, got.StartWindow.Year())
	assert.Equal(t, "jazz", got.QueryText)
}

func TestCreateMap_Errors(t *testing.T) {
	finder := finderFunc(func(context.Context, *models.RouteEventsRequest) (*models.RouteEventsResponse, error) {
		return nil, models.NewStageError("geocode origin", models.ErrUpstream, errors.New("address not found"))
	})
	h := NewRouteEventsHandler(finder)

	w := postJSON(h.CreateMap, "/create_map", `{"origin_address":"Nowhere","destination_address":"Venezia"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Message, "address not found")

	w = postJSON(h.CreateMap, "/create_map", `{"destination_address":"Venezia"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(h.CreateMap, "/create_map", `{"origin_address":"A","destination_address":"B","start_window":"someday"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type ingesterFunc func(ctx context.Context, filename string, r io.Reader) (*service.IngestResult, error)

func (f ingesterFunc) Ingest(ctx context.Context, filename string, r io.Reader) (*service.IngestResult, error) {
	return f(ctx, filename, r)
}

func upload(t *testing.T, handler gin.HandlerFunc, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := gin.New()
	r.POST("/ingestevents", handler)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingestevents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	r.ServeHTTP(w, req)
	return w
}

func TestIngestEvents(t *testing.T) {
	var gotName, gotBody string
	ingester := ingesterFunc(func(_ context.Context, filename string, r io.Reader) (*service.IngestResult, error) {
		b, _ := io.ReadAll(r)
		gotName, gotBody = filename, string(b)
		return &service.IngestResult{Filename: filename, Inserted: 2, Updated: 1, SkippedUnchanged: 3, Total: 6}, nil
	})
	h := NewIngestHandler(ingester, 1<<20)

	w := upload(t, h.IngestEvents, "veneto.json", `[]`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "veneto.json", gotName)
	assert.Equal(t, `[]`, gotBody)

	var res service.IngestResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 3, res.SkippedUnchanged)
}

func TestIngestEvents_Rejects(t *testing.T) {
	ingester := ingesterFunc(func(context.Context, string, io.Reader) (*service.IngestResult, error) {
		return nil, fmt.Errorf("events.json: %w: invalid events document", models.ErrValidation)
	})
	h := NewIngestHandler(ingester, 16)

	assert.Equal(t, http.StatusBadRequest, upload(t, h.IngestEvents, "events.csv", "a,b").Code)
	assert.Equal(t, http.StatusBadRequest, upload(t, h.IngestEvents, "", "").Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, upload(t, h.IngestEvents, "big.json", strings.Repeat(" ", 64)).Code)
	assert.Equal(t, http.StatusBadRequest, upload(t, h.IngestEvents, "events.json", "{").Code)

	failing := NewIngestHandler(ingesterFunc(func(context.Context, string, io.Reader) (*service.IngestResult, error) {
		return nil, errors.New("disk full")
	}), 0)
	assert.Equal(t, http.StatusInternalServerError, upload(t, failing.IngestEvents, "events.json", "[]").Code)
}

type extractorFunc func(ctx context.Context, sentence string) (*models.RouteEventsRequest, error)

func (f extractorFunc) Extract(ctx context.Context, sentence string) (*models.RouteEventsRequest, error) {
	return f(ctx, sentence)
}

func TestSentenceToPayload(t *testing.T) {
	limit := 10
	h := NewExtractionHandler(extractorFunc(func(_ context.Context, sentence string) (*models.RouteEventsRequest, error) {
		return &models.RouteEventsRequest{OriginAddress: "Padova", DestinationAddress: "Venezia", ResultLimit: &limit, TravelProfile: "driving"}, nil
	}))

	w := postJSON(h.SentenceToPayload, "/sentencetopayload", `{"sentence":"Padova to Venezia"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var payload models.RouteEventsRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "Venezia", payload.DestinationAddress)
	assert.Equal(t, 10, *payload.ResultLimit)
}

func TestSentenceToPayload_Errors(t *testing.T) {
	invalid := NewExtractionHandler(extractorFunc(func(context.Context, string) (*models.RouteEventsRequest, error) {
		return nil, &extraction.ValidationError{Fields: []extraction.FieldError{{Field: "end_window", Message: "start date can't be later than end date"}}}
	}))
	w := postJSON(invalid.SentenceToPayload, "/s", `{"sentence":"x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, string(decode(t, w).Data), "end_window")

	broken := NewExtractionHandler(extractorFunc(func(context.Context, string) (*models.RouteEventsRequest, error) {
		return nil, errors.New("model timeout")
	}))
	w = postJSON(broken.SentenceToPayload, "/s", `{"sentence":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode(t, w).Message, "model timeout")

	w = postJSON(broken.SentenceToPayload, "/s", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(NewExtractionHandler(nil).SentenceToPayload, "/s", `{"sentence":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tatankam/eventmap/internal/metrics"
	"github.com/tatankam/eventmap/internal/middleware"
	"github.com/tatankam/eventmap/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type finderFunc func(ctx context.Context, req *models.RouteEventsRequest) (*models.RouteEventsResponse, error)

func (f finderFunc) FindEvents(ctx context.Context, req *models.RouteEventsRequest) (*models.RouteEventsResponse, error) {
	return f(ctx, req)
}

func newTestRouter(t *testing.T, limit int) *gin.Engine {
	t.Helper()
	limiter := middleware.NewRateLimiter(limit, time.Minute)
	t.Cleanup(limiter.Stop)

	finder := finderFunc(func(context.Context, *models.RouteEventsRequest) (*models.RouteEventsResponse, error) {
		return &models.RouteEventsResponse{NoEvents: true, Message: models.NoEventsMessage}, nil
	})
	return SetupRouter(Dependencies{
		RouteEvents: finder,
		Metrics:     metrics.New(),
		Limiter:     limiter,
		EventCount:  func(context.Context) (int, error) { return 42, nil },
	})
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost:8501")
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	w := serve(newTestRouter(t, 10), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"events":42`)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_CreateMapAndMetrics(t *testing.T) {
	r := newTestRouter(t, 10)

	w := serve(r, http.MethodPost, "/api/v1/create_map", `{"origin_address":"Padova","destination_address":"Venezia"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.NoEventsMessage)

	w = serve(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/create_map")
}

func TestRouter_ExtractionDisabled(t *testing.T) {
	w := serve(newTestRouter(t, 10), http.MethodPost, "/api/v1/sentencetopayload", `{"sentence":"Padova to Venezia"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_IngestNotMountedWithoutIngester(t *testing.T) {
	w := serve(newTestRouter(t, 10), http.MethodPost, "/api/v1/ingestevents", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RateLimitsAPIOnly(t *testing.T) {
	r := newTestRouter(t, 1)
	body := `{"origin_address":"Padova","destination_address":"Venezia"}`

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/create_map", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodPost, "/api/v1/create_map", body).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", "").Code)
}

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tatankam/eventmap/internal/extraction"
	"github.com/tatankam/eventmap/internal/handler"
	"github.com/tatankam/eventmap/internal/metrics"
	"github.com/tatankam/eventmap/internal/middleware"
)

// Dependencies are the process-scoped collaborators the routes need
type Dependencies struct {
	RouteEvents    handler.RouteEventsFinder
	Ingester       handler.EventIngester
	Extractor      extraction.Extractor // nil disables sentence extraction
	Metrics        *metrics.Metrics
	Limiter        *middleware.RateLimiter // nil disables rate limiting
	Logger         *slog.Logger
	MaxUploadBytes int64

	// EventCount reports the stored events on /health when set
	EventCount func(ctx context.Context) (int, error)
}

// SetupRouter 设置路由
func SetupRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(middleware.Logger(logger, deps.Metrics), gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(corsCfg))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok", "message": "eventmap API is running"}
		if deps.EventCount != nil {
			n, err := deps.EventCount(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "message": err.Error()})
				return
			}
			body["events"] = n
		}
		c.JSON(http.StatusOK, body)
	})

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// API 路由组
	api := r.Group("/api/v1")
	if deps.Limiter != nil {
		api.Use(middleware.RateLimit(deps.Limiter, deps.Metrics))
	}
	{
		routeEvents := handler.NewRouteEventsHandler(deps.RouteEvents)
		api.POST("/create_map", routeEvents.CreateMap)

		if deps.Ingester != nil {
			ingest := handler.NewIngestHandler(deps.Ingester, deps.MaxUploadBytes)
			api.POST("/ingestevents", ingest.IngestEvents)
		}

		extract := handler.NewExtractionHandler(deps.Extractor)
		api.POST("/sentencetopayload", extract.SentenceToPayload)
	}

	return r
}

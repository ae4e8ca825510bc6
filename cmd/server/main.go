package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/tatankam/eventmap/internal/api"
	"github.com/tatankam/eventmap/internal/app"
	"github.com/tatankam/eventmap/internal/config"
	"github.com/tatankam/eventmap/internal/metrics"
	"github.com/tatankam/eventmap/internal/middleware"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config:\n", err)
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	application, err := app.Build(ctx, cfg, m)
	if err != nil {
		log.Fatal("Failed to initialize:", err)
	}
	defer application.Close()

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)
	defer limiter.Stop()

	deps := api.Dependencies{
		RouteEvents:    application.RouteEvents,
		Ingester:       application.Ingest,
		Metrics:        m,
		Limiter:        limiter,
		Logger:         logger,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		EventCount:     application.Repo.Count,
	}
	if application.Extractor != nil {
		deps.Extractor = application.Extractor
	}

	// 初始化路由
	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: api.SetupRouter(deps),
	}

	// 启动服务器
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}

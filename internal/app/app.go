// Package app wires the configured collaborators into the services used by
// the server and the CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tatankam/eventmap/internal/config"
	"github.com/tatankam/eventmap/internal/database"
	"github.com/tatankam/eventmap/internal/embedding"
	"github.com/tatankam/eventmap/internal/extraction"
	"github.com/tatankam/eventmap/internal/index"
	"github.com/tatankam/eventmap/internal/metrics"
	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/repository"
	"github.com/tatankam/eventmap/internal/retrieval"
	"github.com/tatankam/eventmap/internal/routing"
	"github.com/tatankam/eventmap/internal/service"
)

// App holds the process-scoped singletons
type App struct {
	Config      *config.Config
	DB          *sql.DB
	Repo        *repository.EventRepository
	Cache       *embedding.Cache
	Index       index.Index
	Resolver    *routing.Resolver
	Ranker      *retrieval.Ranker
	RouteEvents *service.RouteEventsService
	Ingest      *service.IngestService
	Extractor   extraction.Extractor // nil when no chat model is configured
	Metrics     *metrics.Metrics

	closers []func() error
}

// Build opens the stores and connects every backend named in cfg. On error
// everything opened so far is closed again.
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (a *App, err error) {
	logger := slog.Default().With("component", "app")
	a = &App{Config: cfg, Metrics: m}
	built := a
	defer func() {
		if err != nil {
			built.Close()
			a = nil
		}
	}()

	a.DB, err = database.Open(database.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.DB.Close)
	a.Repo = repository.NewEventRepository(a.DB)

	dense, sparse, err := a.buildEmbedders()
	if err != nil {
		return nil, err
	}

	switch cfg.Index.Provider {
	case config.IndexLocal:
		a.Index, err = index.NewLocalIndex(ctx, a.Repo)
		if err != nil {
			return nil, err
		}
	default:
		q, err := index.NewQdrantIndex(cfg.Index.Qdrant)
		if err != nil {
			return nil, err
		}
		if err := q.EnsureCollection(ctx, cfg.Embedding.Dimension); err != nil {
			return nil, fmt.Errorf("failed to prepare qdrant collection: %w", err)
		}
		a.Index = q
	}

	a.Resolver, err = buildResolver(cfg.Routing)
	if err != nil {
		return nil, err
	}

	a.Ranker, err = retrieval.NewRanker(a.Index, dense, sparse, retrieval.WithConfig(cfg.Ranker))
	if err != nil {
		return nil, err
	}
	a.RouteEvents = service.NewRouteEventsService(a.Resolver, a.Ranker, m)

	a.Ingest, err = service.NewIngestService(a.Repo, a.Index, dense, sparse,
		service.WithPoolSize(cfg.Embedding.Workers),
		service.WithBatchSize(cfg.Embedding.BatchSize),
		service.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.Ingest.Close(); return nil })

	extractor, err := extraction.NewLLMExtractor(extraction.Config{
		Host:   cfg.Extraction.Host,
		Model:  cfg.Extraction.Model,
		APIKey: cfg.Extraction.APIKey,
	})
	switch {
	case errors.Is(err, extraction.ErrNotConfigured):
		logger.Info("sentence extraction disabled, OPENAI_MODEL is not set")
	case err != nil:
		return nil, err
	default:
		a.Extractor = extractor
	}

	logger.Info("application ready",
		"index", cfg.Index.Provider,
		"routing", cfg.Routing.Provider,
		"sparse", cfg.Embedding.SparseProvider,
		"dense_model", cfg.Embedding.Model)
	return a, nil
}

func (a *App) buildEmbedders() (embedding.DenseEmbedder, embedding.SparseEmbedder, error) {
	cfg := a.Config
	openai, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
		Host:   cfg.Embedding.Host,
		Model:  cfg.Embedding.Model,
		APIKey: cfg.Embedding.APIKey,
	})
	if err != nil {
		return nil, nil, err
	}

	a.Cache, err = embedding.OpenCache(cfg.Cache.Dir, cfg.Cache.TTL)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, a.Cache.Close)
	dense := embedding.NewCachedEmbedder(openai, a.Cache, cfg.Embedding.Model)

	var sparse embedding.SparseEmbedder
	switch cfg.Embedding.SparseProvider {
	case config.SparseTEI:
		sparse = embedding.NewTEISparseEmbedder(cfg.Embedding.TEIURL, cfg.Embedding.Timeout)
	default:
		sparse = embedding.NewHashingSparseEmbedder()
	}
	return dense, sparse, nil
}

func buildResolver(cfg config.RoutingConfig) (*routing.Resolver, error) {
	ors, err := routing.NewOpenRouteService(cfg.ORSBaseURL, cfg.ORSAPIKey, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if cfg.Provider == config.RoutingOSRM {
		osrm := routing.NewOSRM(map[models.TravelProfile]string{
			models.ProfileDriving: cfg.OSRMDrivingURL,
			models.ProfileCycling: cfg.OSRMCyclingURL,
			models.ProfileWalking: cfg.OSRMWalkingURL,
		}, cfg.Timeout)
		return routing.NewResolver(ors, osrm), nil
	}
	return routing.NewResolver(ors, ors), nil
}

// Close releases everything Build opened, last opened first
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

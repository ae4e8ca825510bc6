package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tatankam/eventmap/internal/metrics"
	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/retrieval"
	"github.com/tatankam/eventmap/internal/spatial"
)

// Stage names of the route events pipeline, besides the resolver's own
const (
	StageValidate = "validate request"
	StageResolve  = "resolve route"
	StageCorridor = "build corridor"
	StageRank     = "rank events"
	StageOrder    = "order along route"
)

// RouteResolver resolves two addresses into a route
type RouteResolver interface {
	Resolve(ctx context.Context, origin, destination string, profile models.TravelProfile) (*models.ResolvedRoute, error)
}

// EventRanker retrieves relevant events inside a corridor
type EventRanker interface {
	Rank(ctx context.Context, req retrieval.RankRequest) ([]models.ScoredEvent, error)
}

// RouteEventsService runs the route events pipeline
type RouteEventsService struct {
	resolver RouteResolver
	ranker   EventRanker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewRouteEventsService creates the service; m may be nil
func NewRouteEventsService(resolver RouteResolver, ranker EventRanker, m *metrics.Metrics) *RouteEventsService {
	return &RouteEventsService{
		resolver: resolver,
		ranker:   ranker,
		metrics:  m,
		logger:   slog.Default().With("component", "route-events"),
	}
}

// FindEvents validates req, resolves the route, builds the corridor, ranks the
// events inside it and orders them along the route. The first failing stage
// aborts with a *models.StageError. An empty result is not an error.
func (s *RouteEventsService) FindEvents(ctx context.Context, req *models.RouteEventsRequest) (*models.RouteEventsResponse, error) {
	var query *models.RouteQuery
	err := s.stage(StageValidate, models.ErrValidation, func() (err error) {
		query, err = req.Normalize()
		return err
	})
	if err != nil {
		return nil, err
	}

	var resolved *models.ResolvedRoute
	err = s.stage(StageResolve, models.ErrUpstream, func() (err error) {
		resolved, err = s.resolver.Resolve(ctx, query.OriginAddress, query.DestinationAddress, query.Profile)
		return err
	})
	if err != nil {
		return nil, err
	}

	var corridor models.Corridor
	err = s.stage(StageCorridor, models.ErrGeometry, func() (err error) {
		corridor, err = spatial.BuildCorridor(ctx, resolved.Route, query.BufferKm)
		return err
	})
	if err != nil {
		return nil, err
	}

	var scored []models.ScoredEvent
	err = s.stage(StageRank, models.ErrUpstream, func() (err error) {
		scored, err = s.ranker.Rank(ctx, retrieval.RankRequest{
			QueryText: query.QueryText,
			Window:    query.Window,
			Corridor:  corridor,
			Limit:     query.Limit,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	var ordered []models.MatchedEvent
	s.stage(StageOrder, nil, func() error {
		ordered = retrieval.OrderAlongRoute(scored, resolved.Route)
		return nil
	})

	s.metrics.ObserveEvents(len(ordered))
	s.logger.Info("route events",
		"origin", query.OriginAddress,
		"destination", query.DestinationAddress,
		"profile", query.Profile,
		"buffer_km", query.BufferKm,
		"route_points", len(resolved.Route.Points),
		"ring_points", len(corridor.Ring),
		"events", len(ordered))

	return AssembleResponse(resolved, corridor, ordered), nil
}

// stage times fn and wraps its error. Errors that already carry a stage or an
// error kind keep them; otherwise kind is attached.
func (s *RouteEventsService) stage(name string, kind error, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.ObserveStage(name, time.Since(start), err)
	if err == nil {
		return nil
	}

	s.logger.Warn("pipeline stage failed", "stage", name, "err", err)

	var staged *models.StageError
	if errors.As(err, &staged) {
		return err
	}
	for _, known := range []error{models.ErrValidation, models.ErrGeometry, models.ErrUpstream} {
		if errors.Is(err, known) {
			kind = known
			break
		}
	}
	return models.NewStageError(name, kind, err)
}

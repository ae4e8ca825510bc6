// Package routing turns a pair of addresses into a route polyline.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tatankam/eventmap/internal/models"
)

// Pipeline stage names reported in errors
const (
	StageGeocodeOrigin      = "geocode origin"
	StageGeocodeDestination = "geocode destination"
	StageRoute              = "route"
)

// ErrNotFound is returned when a provider has no result for the input
var ErrNotFound = errors.New("no result")

// Geocoder resolves a free-text address to a coordinate
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.GeoPoint, error)
}

// Router computes the route polyline between two coordinates
type Router interface {
	Route(ctx context.Context, origin, destination models.GeoPoint, profile models.TravelProfile) ([]models.GeoPoint, error)
}

// Resolver geocodes both addresses and routes between them
type Resolver struct {
	geocoder Geocoder
	router   Router
	logger   *slog.Logger
}

// NewResolver creates a resolver
func NewResolver(geocoder Geocoder, router Router) *Resolver {
	return &Resolver{
		geocoder: geocoder,
		router:   router,
		logger:   slog.Default().With("component", "route-resolver"),
	}
}

// Resolve runs geocode origin, geocode destination and route, in that order.
// The first failing stage aborts with a *models.StageError.
func (r *Resolver) Resolve(ctx context.Context, origin, destination string, profile models.TravelProfile) (*models.ResolvedRoute, error) {
	from, err := r.geocoder.Geocode(ctx, origin)
	if err != nil {
		return nil, models.NewStageError(StageGeocodeOrigin, models.ErrUpstream,
			fmt.Errorf("failed to geocode %q: %w", origin, err))
	}
	to, err := r.geocoder.Geocode(ctx, destination)
	if err != nil {
		return nil, models.NewStageError(StageGeocodeDestination, models.ErrUpstream,
			fmt.Errorf("failed to geocode %q: %w", destination, err))
	}

	points, err := r.router.Route(ctx, from, to, profile)
	if err != nil {
		return nil, models.NewStageError(StageRoute, models.ErrUpstream, err)
	}
	route, err := models.NewRoute(points)
	if err != nil {
		return nil, models.NewStageError(StageRoute, models.ErrGeometry, err)
	}

	r.logger.Debug("route resolved",
		"origin", origin,
		"destination", destination,
		"profile", profile,
		"points", len(route.Points))

	return &models.ResolvedRoute{
		Origin:      models.LabeledPoint{Lat: from.Lat, Lon: from.Lon, Address: origin},
		Destination: models.LabeledPoint{Lat: to.Lat, Lon: to.Lon, Address: destination},
		Profile:     profile,
		Route:       route,
	}, nil
}

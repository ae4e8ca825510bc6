package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tatankam/eventmap/internal/models"
)

func TestProjectOntoRoute_Perpendicular(t *testing.T) {
	route := []models.GeoPoint{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 10}}

	p := ProjectOntoRoute(route, models.GeoPoint{Lon: 1, Lat: 5})
	assert.InDelta(t, 5.0, p.Offset, 1e-12)
	assert.Equal(t, models.GeoPoint{Lon: 0, Lat: 5}, p.Foot)
	assert.Equal(t, 0, p.Segment)
	assert.InDelta(t, 1.0, p.Distance, 1e-12)
	assert.InDelta(t, HaversineDistance(0, 0, 5, 0), p.OffsetMeters, 1e-6)
}

func TestProjectOntoRoute_ClampsToEndpoints(t *testing.T) {
	route := []models.GeoPoint{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 10}}

	assert.Equal(t, 0.0, ProjectOntoRoute(route, models.GeoPoint{Lon: 0.5, Lat: -5}).Offset)
	assert.InDelta(t, 10.0, ProjectOntoRoute(route, models.GeoPoint{Lon: -0.5, Lat: 20}).Offset, 1e-12)
}

func TestProjectOntoRoute_MultiSegment(t *testing.T) {
	route := []models.GeoPoint{{Lon: 0, Lat: 0}, {Lon: 4, Lat: 0}, {Lon: 4, Lat: 3}}

	p := ProjectOntoRoute(route, models.GeoPoint{Lon: 5, Lat: 2})
	assert.Equal(t, 1, p.Segment)
	assert.InDelta(t, 6.0, p.Offset, 1e-12)
}

func TestProjectOntoRoute_TieKeepsFirstSegment(t *testing.T) {
	// out and back over the same road: both passes are equally close
	route := []models.GeoPoint{{Lon: 0, Lat: 0}, {Lon: 10, Lat: 0}, {Lon: 0, Lat: 0}}

	p := ProjectOntoRoute(route, models.GeoPoint{Lon: 5, Lat: 1})
	assert.Equal(t, 0, p.Segment)
	assert.InDelta(t, 5.0, p.Offset, 1e-12)
}

func TestProjectOntoRoute_Reversal(t *testing.T) {
	route := models.Route{Points: []models.GeoPoint{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 10}}}
	p := models.GeoPoint{Lon: 1, Lat: 3}

	forward := ProjectOntoRoute(route.Points, p).Offset
	backward := ProjectOntoRoute(route.Reversed().Points, p).Offset
	assert.InDelta(t, 3.0, forward, 1e-12)
	assert.InDelta(t, 7.0, backward, 1e-12)
	assert.InDelta(t, 10.0, forward+backward, 1e-12)
}

func TestProjectOntoRoute_Degenerate(t *testing.T) {
	assert.Equal(t, Projection{}, ProjectOntoRoute(nil, models.GeoPoint{Lon: 1, Lat: 1}))

	p := ProjectOntoRoute([]models.GeoPoint{{Lon: 0, Lat: 0}}, models.GeoPoint{Lon: 3, Lat: 4})
	assert.Equal(t, 0.0, p.Offset)
	assert.InDelta(t, 5.0, p.Distance, 1e-12)
}

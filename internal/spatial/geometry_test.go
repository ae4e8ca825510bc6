package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tatankam/eventmap/internal/models"
)

func TestPointInPolygon(t *testing.T) {
	square := []models.GeoPoint{
		{Lon: 0, Lat: 0}, {Lon: 2, Lat: 0}, {Lon: 2, Lat: 2}, {Lon: 0, Lat: 2}, {Lon: 0, Lat: 0},
	}

	tests := []struct {
		name  string
		point models.GeoPoint
		want  bool
	}{
		{"inside", models.GeoPoint{Lon: 1, Lat: 1}, true},
		{"outside", models.GeoPoint{Lon: 3, Lat: 1}, false},
		{"on edge", models.GeoPoint{Lon: 2, Lat: 1}, true},
		{"on vertex", models.GeoPoint{Lon: 0, Lat: 0}, true},
		{"below", models.GeoPoint{Lon: 1, Lat: -0.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PointInPolygon(tt.point, square))
		})
	}

	assert.False(t, PointInPolygon(models.GeoPoint{}, square[:2]))
}

func TestBoundingBoxAndCenter(t *testing.T) {
	pts := []models.GeoPoint{{Lon: 10, Lat: 40}, {Lon: 12, Lat: 44}, {Lon: 11, Lat: 41}}

	minLat, minLon, maxLat, maxLon := BoundingBox(pts)
	assert.Equal(t, []float64{40, 10, 44, 12}, []float64{minLat, minLon, maxLat, maxLon})
	assert.Equal(t, models.GeoPoint{Lon: 11, Lat: 42}, BoundsCenter(pts))
}

func TestLocalProjection_RoundTrip(t *testing.T) {
	proj := NewLocalProjection(models.GeoPoint{Lon: 12.5, Lat: 41.9})

	for _, p := range []models.GeoPoint{
		{Lon: 12.5, Lat: 41.9},
		{Lon: 12.9, Lat: 42.3},
		{Lon: 11.8, Lat: 41.2},
		{Lon: 12.5, Lat: 43.0},
	} {
		v := proj.Forward(p)
		assert.InDelta(t, Distance(proj.Center(), p), v.Len(), 1e-6)

		back := proj.Inverse(v)
		assert.InDelta(t, p.Lon, back.Lon, 1e-9)
		assert.InDelta(t, p.Lat, back.Lat, 1e-9)
	}
}

func TestLocalProjection_Axes(t *testing.T) {
	proj := NewLocalProjection(models.GeoPoint{Lon: 0, Lat: 0})

	north := proj.Forward(models.GeoPoint{Lon: 0, Lat: 1})
	assert.InDelta(t, 0.0, north.X, 1e-6)
	assert.Greater(t, north.Y, 0.0)

	east := proj.Forward(models.GeoPoint{Lon: 1, Lat: 0})
	assert.InDelta(t, 0.0, east.Y, 1e-6)
	assert.Greater(t, east.X, 0.0)
}

func TestDestinationPoint_WrapsLongitude(t *testing.T) {
	lat, lon := DestinationPoint(0, 179.9, 90, 50000)
	assert.InDelta(t, 0.0, lat, 1e-9)
	assert.Less(t, lon, -179.0)
}

package spatial

import (
	"math"

	"github.com/tatankam/eventmap/internal/models"
)

// Vec is a point or displacement in a planar projection, in meters
type Vec struct {
	X, Y float64
}

func (v Vec) Add(o Vec) Vec { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) Scale(f float64) Vec { return Vec{v.X * f, v.Y * f} }
func (v Vec) Dot(o Vec) float64 { return v.X*o.X + v.Y*o.Y }
func (v Vec) Cross(o Vec) float64 { return v.X*o.Y - v.Y*o.X }
func (v Vec) Len() float64 { return math.Hypot(v.X, v.Y) }
func (v Vec) Lerp(o Vec, t float64) Vec {
	return Vec{v.X + (o.X-v.X)*t, v.Y + (o.Y-v.Y)*t}
}

// LocalProjection is a spherical azimuthal equidistant projection.
// Distances and bearings from the centre are exact, so a buffer drawn
// around a route near the centre keeps its size in meters.
type LocalProjection struct {
	center models.GeoPoint
}

// NewLocalProjection centres the projection on c
func NewLocalProjection(c models.GeoPoint) LocalProjection {
	return LocalProjection{center: c}
}

// Center returns the projection origin
func (p LocalProjection) Center() models.GeoPoint {
	return p.center
}

// Forward maps a geographic point to planar meters (x east, y north)
func (p LocalProjection) Forward(g models.GeoPoint) Vec {
	d := Distance(p.center, g)
	if d == 0 {
		return Vec{}
	}
	b := Bearing(p.center.Lat, p.center.Lon, g.Lat, g.Lon) * math.Pi / 180
	return Vec{X: d * math.Sin(b), Y: d * math.Cos(b)}
}

// Inverse maps planar meters back to a geographic point
func (p LocalProjection) Inverse(v Vec) models.GeoPoint {
	d := v.Len()
	if d == 0 {
		return p.center
	}
	b := math.Atan2(v.X, v.Y) * 180 / math.Pi
	lat, lon := DestinationPoint(p.center.Lat, p.center.Lon, b, d)
	return models.GeoPoint{Lon: lon, Lat: lat}
}

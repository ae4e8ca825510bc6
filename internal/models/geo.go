package models

import (
	"encoding/json"
	"fmt"
)

// GeoPoint is a WGS84 coordinate in degrees
type GeoPoint struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Equal reports whether two points are identical
func (p GeoPoint) Equal(o GeoPoint) bool {
	return p.Lon == o.Lon && p.Lat == o.Lat
}

// Valid checks that the coordinate is inside the WGS84 range
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Coordinates serializes a point sequence as [lon, lat] pairs (GeoJSON order)
type Coordinates []GeoPoint

// MarshalJSON encodes the sequence as [[lon, lat], ...]
func (c Coordinates) MarshalJSON() ([]byte, error) {
	pairs := make([][2]float64, len(c))
	for i, p := range c {
		pairs[i] = [2]float64{p.Lon, p.Lat}
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON decodes [[lon, lat], ...]
func (c *Coordinates) UnmarshalJSON(data []byte) error {
	var pairs [][]float64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	out := make(Coordinates, len(pairs))
	for i, pair := range pairs {
		if len(pair) < 2 {
			return fmt.Errorf("coordinate %d has %d values, want 2", i, len(pair))
		}
		out[i] = GeoPoint{Lon: pair[0], Lat: pair[1]}
	}
	*c = out
	return nil
}

// Route is an ordered polyline from origin to destination
type Route struct {
	Points []GeoPoint
}

// NewRoute builds a route and checks it has at least two distinct points
func NewRoute(points []GeoPoint) (Route, error) {
	r := Route{Points: points}
	if err := r.Validate(); err != nil {
		return Route{}, err
	}
	return r, nil
}

// Validate checks the route invariant
func (r Route) Validate() error {
	if len(r.Distinct()) < 2 {
		return fmt.Errorf("%w: route must contain at least two distinct points", ErrGeometry)
	}
	return nil
}

// Distinct returns the points with consecutive duplicates removed
func (r Route) Distinct() []GeoPoint {
	out := make([]GeoPoint, 0, len(r.Points))
	for i, p := range r.Points {
		if i > 0 && p.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Reversed returns the same route travelled destination -> origin
func (r Route) Reversed() Route {
	out := make([]GeoPoint, len(r.Points))
	for i, p := range r.Points {
		out[len(r.Points)-1-i] = p
	}
	return Route{Points: out}
}

// Origin returns the first point
func (r Route) Origin() GeoPoint {
	return r.Points[0]
}

// Destination returns the last point
func (r Route) Destination() GeoPoint {
	return r.Points[len(r.Points)-1]
}

// Corridor is the closed ring enclosing all locations within BufferKm of a route
type Corridor struct {
	Ring     []GeoPoint
	BufferKm float64
}

// Closed reports whether the first and last vertices coincide
func (c Corridor) Closed() bool {
	return len(c.Ring) >= 4 && c.Ring[0].Equal(c.Ring[len(c.Ring)-1])
}

// Bounds returns (minLon, minLat, maxLon, maxLat) of the ring
func (c Corridor) Bounds() (float64, float64, float64, float64) {
	if len(c.Ring) == 0 {
		return 0, 0, 0, 0
	}
	minLon, maxLon := c.Ring[0].Lon, c.Ring[0].Lon
	minLat, maxLat := c.Ring[0].Lat, c.Ring[0].Lat
	for _, p := range c.Ring[1:] {
		minLon = min(minLon, p.Lon)
		maxLon = max(maxLon, p.Lon)
		minLat = min(minLat, p.Lat)
		maxLat = max(maxLat, p.Lat)
	}
	return minLon, minLat, maxLon, maxLat
}

// LabeledPoint is a resolved address
type LabeledPoint struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address"`
}

// Point returns the coordinate part
func (l LabeledPoint) Point() GeoPoint {
	return GeoPoint{Lon: l.Lon, Lat: l.Lat}
}

// ResolvedRoute is the output of route resolution
type ResolvedRoute struct {
	Origin      LabeledPoint
	Destination LabeledPoint
	Profile     TravelProfile
	Route       Route
}

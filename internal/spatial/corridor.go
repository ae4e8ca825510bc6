package spatial

import (
	"context"
	"fmt"
	"math"

	"github.com/tatankam/eventmap/internal/models"
)

// quadrantSegments is the number of segments approximating a quarter circle
// in round joins and caps
const quadrantSegments = 16

// simplifyTolerance is the Douglas-Peucker tolerance as a fraction of the
// buffer radius. It stays within the chord error of the round joins plus the
// 1% the ring is allowed to deviate from the true offset.
const simplifyTolerance = 1e-2

// BuildCorridor buffers the route by bufferKm with round joins and caps.
// The buffer is computed in an azimuthal equidistant projection centred on
// the route, so the radius is in true meters, then reprojected to WGS84.
// The returned ring is closed and counter-clockwise. Its longitudes are
// continuous, so a corridor crossing the antimeridian extends past ±180.
func BuildCorridor(ctx context.Context, route models.Route, bufferKm float64) (models.Corridor, error) {
	if math.IsNaN(bufferKm) || math.IsInf(bufferKm, 0) || bufferKm <= 0 {
		return models.Corridor{}, fmt.Errorf("%w: buffer distance must be a positive number of km, got %v", models.ErrGeometry, bufferKm)
	}
	if err := route.Validate(); err != nil {
		return models.Corridor{}, err
	}

	points := route.Distinct()
	for _, p := range points {
		if !p.Valid() {
			return models.Corridor{}, fmt.Errorf("%w: route point (%v, %v) out of range", models.ErrGeometry, p.Lon, p.Lat)
		}
	}

	radius := bufferKm * 1000
	center := BoundsCenter(unwrapLons(points))
	center.Lon = normalizeLon(center.Lon)
	proj := NewLocalProjection(center)

	planar := make([]Vec, 0, len(points))
	for _, p := range points {
		v := proj.Forward(p)
		if len(planar) > 0 && v.Sub(planar[len(planar)-1]).Len() <= radius*1e-9 {
			continue
		}
		planar = append(planar, v)
	}
	if len(planar) < 2 {
		return models.Corridor{}, fmt.Errorf("%w: route collapses to a single point", models.ErrGeometry)
	}

	planar = simplify(planar, radius*simplifyTolerance)
	outline, err := bufferPolyline(ctx, planar, radius, quadrantSegments)
	if err != nil {
		return models.Corridor{}, err
	}
	if len(outline) < 3 {
		return models.Corridor{}, fmt.Errorf("%w: buffer produced an empty polygon", models.ErrGeometry)
	}

	ring := make([]models.GeoPoint, 0, len(outline)+1)
	for _, v := range outline {
		p := proj.Inverse(v)
		p.Lon = center.Lon + normalizeLon(p.Lon-center.Lon)
		ring = append(ring, p)
	}
	ring = append(ring, ring[0])

	return models.Corridor{Ring: ring, BufferKm: bufferKm}, nil
}

// unwrapLons shifts longitudes by multiples of 360 so consecutive points
// never jump across the antimeridian
func unwrapLons(points []models.GeoPoint) []models.GeoPoint {
	out := make([]models.GeoPoint, len(points))
	for i, p := range points {
		if i > 0 {
			p.Lon = out[i-1].Lon + normalizeLon(p.Lon-points[i-1].Lon)
		}
		out[i] = p
	}
	return out
}

// simplify is Douglas-Peucker on a planar polyline, keeping both endpoints
func simplify(pts []Vec, tolerance float64) []Vec {
	if len(pts) <= 2 || tolerance <= 0 {
		return pts
	}
	keep := make([]bool, len(pts))
	keep[0], keep[len(pts)-1] = true, true

	type span struct{ lo, hi int }
	stack := []span{{0, len(pts) - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		far, farDist := -1, tolerance
		for i := s.lo + 1; i < s.hi; i++ {
			if d := distToSegment(pts[i], pts[s.lo], pts[s.hi]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			continue
		}
		keep[far] = true
		stack = append(stack, span{s.lo, far}, span{far, s.hi})
	}

	out := make([]Vec, 0, len(pts))
	for i, p := range pts {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

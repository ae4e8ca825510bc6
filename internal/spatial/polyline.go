package spatial

import (
	"github.com/tatankam/eventmap/internal/models"
)

// Projection is the closest point of a route to some location
type Projection struct {
	Offset       float64         // arc length from the route start to Foot, route coordinate units
	OffsetMeters float64         // geodesic arc length from the route start to Foot
	Foot         models.GeoPoint // closest point on the route
	Segment      int             // index of the segment holding Foot
	Distance     float64         // planar distance from the location to Foot
}

// ProjectOntoRoute finds the closest point of the polyline to p, treating
// (lon, lat) as planar coordinates, and returns its arc-length offset.
// Ties between segments resolve to the earliest segment.
func ProjectOntoRoute(route []models.GeoPoint, p models.GeoPoint) Projection {
	if len(route) == 0 {
		return Projection{}
	}
	if len(route) == 1 {
		return Projection{Foot: route[0], Distance: toVec(p).Sub(toVec(route[0])).Len()}
	}

	target := toVec(p)
	best := Projection{Segment: -1}
	bestDist2 := 0.0
	var walked, walkedMeters float64

	for i := 0; i+1 < len(route); i++ {
		a, b := toVec(route[i]), toVec(route[i+1])
		d := b.Sub(a)
		segLen := d.Len()

		t := 0.0
		if len2 := d.Dot(d); len2 > 0 {
			t = clamp01(target.Sub(a).Dot(d) / len2)
		}
		foot := a.Lerp(b, t)
		dist2 := target.Sub(foot).Dot(target.Sub(foot))

		segMeters := Distance(route[i], route[i+1])
		if best.Segment < 0 || dist2 < bestDist2 {
			bestDist2 = dist2
			best = Projection{
				Offset:       walked + t*segLen,
				OffsetMeters: walkedMeters + t*segMeters,
				Foot:         models.GeoPoint{Lon: foot.X, Lat: foot.Y},
				Segment:      i,
			}
		}
		walked += segLen
		walkedMeters += segMeters
	}

	best.Distance = target.Sub(toVec(best.Foot)).Len()
	return best
}

func toVec(p models.GeoPoint) Vec {
	return Vec{X: p.Lon, Y: p.Lat}
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

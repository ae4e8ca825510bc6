package spatial

import (
	"github.com/tatankam/eventmap/internal/models"
)

// BoundingBox calculates the bounding box of a set of points
// Returns (minLat, minLon, maxLat, maxLon)
func BoundingBox(points []models.GeoPoint) (float64, float64, float64, float64) {
	if len(points) == 0 {
		return 0, 0, 0, 0
	}

	minLat, maxLat := points[0].Lat, points[0].Lat
	minLon, maxLon := points[0].Lon, points[0].Lon

	for _, p := range points[1:] {
		if p.Lat < minLat {
			minLat = p.Lat
		}
		if p.Lat > maxLat {
			maxLat = p.Lat
		}
		if p.Lon < minLon {
			minLon = p.Lon
		}
		if p.Lon > maxLon {
			maxLon = p.Lon
		}
	}

	return minLat, minLon, maxLat, maxLon
}

// BoundsCenter returns the centre of the bounding box of points
func BoundsCenter(points []models.GeoPoint) models.GeoPoint {
	minLat, minLon, maxLat, maxLon := BoundingBox(points)
	return models.GeoPoint{Lon: (minLon + maxLon) / 2, Lat: (minLat + maxLat) / 2}
}

// PathLength calculates the total length of a path (sequence of points) in meters
func PathLength(points []models.GeoPoint) float64 {
	if len(points) < 2 {
		return 0
	}

	var totalDist float64
	for i := 1; i < len(points); i++ {
		totalDist += Distance(points[i-1], points[i])
	}

	return totalDist
}

// PointInPolygon checks if a point is inside a polygon ring using ray casting.
// Points on the boundary count as inside. The ring may be open or closed.
func PointInPolygon(point models.GeoPoint, polygon []models.GeoPoint) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	j := len(polygon) - 1

	for i := 0; i < len(polygon); i++ {
		a, b := polygon[i], polygon[j]
		if onSegment(point, a, b) {
			return true
		}
		if ((a.Lat > point.Lat) != (b.Lat > point.Lat)) &&
			(point.Lon < (b.Lon-a.Lon)*(point.Lat-a.Lat)/(b.Lat-a.Lat)+a.Lon) {
			inside = !inside
		}
		j = i
	}

	return inside
}

// onSegment reports whether p lies on the segment ab (degree space)
func onSegment(p, a, b models.GeoPoint) bool {
	const eps = 1e-12
	cross := (b.Lon-a.Lon)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lon-a.Lon)
	if cross > eps || cross < -eps {
		return false
	}
	return p.Lon >= min(a.Lon, b.Lon)-eps && p.Lon <= max(a.Lon, b.Lon)+eps &&
		p.Lat >= min(a.Lat, b.Lat)-eps && p.Lat <= max(a.Lat, b.Lat)+eps
}

package spatial

import (
	"github.com/peterstace/simplefeatures/geom"
	"github.com/tatankam/eventmap/internal/models"
)

// world is the valid lon/lat range as a polygon
var world = geom.NewPolygon([]geom.LineString{geom.NewLineString(geom.NewSequence([]float64{
	-180, -90, 180, -90, 180, 90, -180, 90, -180, -90,
}, geom.DimXY))})

// SplitAntimeridian cuts a ring whose longitudes run past ±180 into closed
// rings inside [-180, 180]. A ring already in range is returned unchanged.
func SplitAntimeridian(ring []models.GeoPoint) [][]models.GeoPoint {
	if len(ring) < 3 {
		return [][]models.GeoPoint{ring}
	}
	minLat, minLon, maxLat, maxLon := BoundingBox(ring)
	if minLon >= -180 && maxLon <= 180 {
		return [][]models.GeoPoint{ring}
	}

	coords := make([]float64, 0, 2*len(ring)+2)
	for _, p := range ring {
		coords = append(coords, p.Lon, p.Lat)
	}
	if first, last := ring[0], ring[len(ring)-1]; first != last {
		coords = append(coords, first.Lon, first.Lat)
	}
	poly := geom.NewPolygon([]geom.LineString{geom.NewLineString(geom.NewSequence(coords, geom.DimXY))})

	var out [][]models.GeoPoint
	for _, shift := range []float64{-360, 0, 360} {
		if maxLon+shift <= -180 || minLon+shift >= 180 {
			continue
		}
		shifted := poly.TransformXY(func(xy geom.XY) geom.XY {
			return geom.XY{X: xy.X + shift, Y: xy.Y}
		})
		piece, err := geom.Intersection(shifted.AsGeometry(), world.AsGeometry())
		if err != nil {
			// the clipped bounding box still covers the piece
			out = append(out, boxRing(max(minLon+shift, -180), minLat, min(maxLon+shift, 180), maxLat))
			continue
		}
		for _, p := range polygonsOf(piece) {
			out = append(out, geoRing(p.ForceCCW().ExteriorRing().Coordinates()))
		}
	}
	return out
}

func geoRing(seq geom.Sequence) []models.GeoPoint {
	out := make([]models.GeoPoint, seq.Length())
	for i := range out {
		xy := seq.GetXY(i)
		out[i] = models.GeoPoint{Lon: xy.X, Lat: xy.Y}
	}
	return out
}

func boxRing(minLon, minLat, maxLon, maxLat float64) []models.GeoPoint {
	return []models.GeoPoint{
		{Lon: minLon, Lat: minLat}, {Lon: maxLon, Lat: minLat},
		{Lon: maxLon, Lat: maxLat}, {Lon: minLon, Lat: maxLat},
		{Lon: minLon, Lat: minLat},
	}
}

package spatial

import (
	"context"
	"math"
	"sort"

	"github.com/peterstace/simplefeatures/geom"
)

// bufferPolyline returns the outer ring (counter-clockwise, open) of the union
// of round-capped capsules around every segment of pts. ctx is checked
// between merges.
func bufferPolyline(ctx context.Context, pts []Vec, r float64, segments int) ([]Vec, error) {
	n := 4 * segments
	circles := make([][]Vec, len(pts))
	for i, c := range pts {
		circles[i] = circleAround(c, r, n)
	}

	parts := make([]geom.Geometry, 0, len(pts)-1)
	for i := 0; i+1 < len(pts); i++ {
		hull := convexHull(append(append([]Vec{}, circles[i]...), circles[i+1]...))
		parts = append(parts, polygonOf(hull).AsGeometry())
	}

	merged, err := cascadeUnion(ctx, parts)
	if err != nil {
		return nil, err
	}
	return outerRing(merged), nil
}

// cascadeUnion merges neighbouring parts pairwise until one is left. Capsules
// of consecutive segments overlap, so every merge works on two connected
// outlines rather than on the whole arrangement at once.
func cascadeUnion(ctx context.Context, parts []geom.Geometry) (geom.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return geom.Geometry{}, err
	}
	if len(parts) == 0 {
		return geom.Geometry{}, nil
	}
	for len(parts) > 1 {
		next := make([]geom.Geometry, 0, (len(parts)+1)/2)
		for i := 0; i+1 < len(parts); i += 2 {
			if err := ctx.Err(); err != nil {
				return geom.Geometry{}, err
			}
			u, err := geom.Union(parts[i], parts[i+1])
			if err != nil {
				// numerically degenerate overlay: the hull of both still covers them
				pair := geom.NewGeometryCollection([]geom.Geometry{parts[i], parts[i+1]})
				u = pair.AsGeometry().ConvexHull()
			}
			next = append(next, u)
		}
		if len(parts)%2 == 1 {
			next = append(next, parts[len(parts)-1])
		}
		parts = next
	}
	return parts[0], nil
}

func polygonOf(ring []Vec) geom.Polygon {
	coords := make([]float64, 0, 2*len(ring)+2)
	for _, v := range ring {
		coords = append(coords, v.X, v.Y)
	}
	coords = append(coords, ring[0].X, ring[0].Y)
	seq := geom.NewSequence(coords, geom.DimXY)
	return geom.NewPolygon([]geom.LineString{geom.NewLineString(seq)})
}

// outerRing is the counter-clockwise exterior of g, or of its largest
// polygon, without the closing vertex
func outerRing(g geom.Geometry) []Vec {
	polys := polygonsOf(g)
	if len(polys) == 0 {
		return nil
	}
	sort.SliceStable(polys, func(i, j int) bool { return polys[i].Area() > polys[j].Area() })

	seq := polys[0].ForceCCW().ExteriorRing().Coordinates()
	out := make([]Vec, 0, seq.Length())
	for i := 0; i+1 < seq.Length(); i++ {
		xy := seq.GetXY(i)
		out = append(out, Vec{X: xy.X, Y: xy.Y})
	}
	return out
}

func polygonsOf(g geom.Geometry) []geom.Polygon {
	switch {
	case g.IsPolygon():
		if p := g.MustAsPolygon(); !p.IsEmpty() {
			return []geom.Polygon{p}
		}
	case g.IsMultiPolygon():
		mp := g.MustAsMultiPolygon()
		out := make([]geom.Polygon, 0, mp.NumPolygons())
		for i := 0; i < mp.NumPolygons(); i++ {
			if p := mp.PolygonN(i); !p.IsEmpty() {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// circleAround samples n points of the circle at fixed global angles so
// neighbouring capsules share identical vertices
func circleAround(c Vec, r float64, n int) []Vec {
	out := make([]Vec, n)
	for k := 0; k < n; k++ {
		a := 2 * math.Pi * float64(k) / float64(n)
		out[k] = Vec{c.X + r*math.Cos(a), c.Y + r*math.Sin(a)}
	}
	return out
}

// convexHull is Andrew's monotone chain; the result is counter-clockwise
// without collinear vertices
func convexHull(pts []Vec) []Vec {
	if len(pts) < 3 {
		return pts
	}
	sorted := append([]Vec{}, pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	hull := make([]Vec, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && hull[len(hull)-1].Sub(hull[len(hull)-2]).Cross(p.Sub(hull[len(hull)-2])) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && hull[len(hull)-1].Sub(hull[len(hull)-2]).Cross(p.Sub(hull[len(hull)-2])) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func distToSegment(p, a, b Vec) float64 {
	d := b.Sub(a)
	t := 0.0
	if l2 := d.Dot(d); l2 > 0 {
		t = clamp01(p.Sub(a).Dot(d) / l2)
	}
	return p.Sub(a.Lerp(b, t)).Len()
}

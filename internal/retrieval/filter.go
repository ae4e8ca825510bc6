package retrieval

import (
	"encoding/json"

	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/spatial"
)

// Payload keys the filter conditions apply to
const (
	KeyLocation  = "location"
	KeyStartDate = "start_date"
	KeyEndDate   = "end_date"
)

// GeoPolygon restricts a geo field to the inside of a ring
type GeoPolygon struct {
	Exterior []models.GeoPoint
}

// DatetimeRange bounds a datetime field; nil bounds are open
type DatetimeRange struct {
	Gte *models.Timestamp `json:"gte,omitempty"`
	Lte *models.Timestamp `json:"lte,omitempty"`
}

// Condition is one clause of a filter: exactly one of GeoPolygon, Range or
// Any is set. Any holds alternatives, one of which must match.
type Condition struct {
	Key        string
	GeoPolygon *GeoPolygon
	Range      *DatetimeRange
	Any        []Condition
}

// Filter is a flat conjunction of conditions
type Filter struct {
	Must []Condition `json:"must"`
}

// BuildFilter returns the predicate
// contains(corridor, location) AND start_date <= window.End AND end_date >= window.Start.
// Both date comparisons are inclusive, so intervals touching the window qualify.
// A corridor crossing the antimeridian becomes alternatives over its pieces.
func BuildFilter(corridor models.Corridor, window models.TemporalWindow) Filter {
	end := models.Timestamp{Time: window.End}
	start := models.Timestamp{Time: window.Start}

	geo := Condition{Key: KeyLocation, GeoPolygon: &GeoPolygon{Exterior: corridor.Ring}}
	if pieces := spatial.SplitAntimeridian(corridor.Ring); len(pieces) > 1 {
		geo = Condition{Any: make([]Condition, len(pieces))}
		for i, ring := range pieces {
			geo.Any[i] = Condition{Key: KeyLocation, GeoPolygon: &GeoPolygon{Exterior: ring}}
		}
	}
	return Filter{Must: []Condition{
		geo,
		{Key: KeyStartDate, Range: &DatetimeRange{Lte: &end}},
		{Key: KeyEndDate, Range: &DatetimeRange{Gte: &start}},
	}}
}

// Matches evaluates the filter against an event in process
func (f Filter) Matches(e *models.EventRecord) bool {
	for _, c := range f.Must {
		if !c.matches(e) {
			return false
		}
	}
	return true
}

// Corridors returns the rings of the first geo condition, more than one when
// it was split at the antimeridian
func (f Filter) Corridors() [][]models.GeoPoint {
	for _, c := range f.Must {
		if c.GeoPolygon != nil {
			return [][]models.GeoPoint{c.GeoPolygon.Exterior}
		}
		var rings [][]models.GeoPoint
		for _, alt := range c.Any {
			if alt.GeoPolygon != nil {
				rings = append(rings, alt.GeoPolygon.Exterior)
			}
		}
		if len(rings) > 0 {
			return rings
		}
	}
	return nil
}

func (c Condition) matches(e *models.EventRecord) bool {
	switch {
	case len(c.Any) > 0:
		for _, alt := range c.Any {
			if alt.matches(e) {
				return true
			}
		}
		return false
	case c.GeoPolygon != nil:
		if c.Key != KeyLocation {
			return false
		}
		return spatial.PointInPolygon(e.Location.Point(), c.GeoPolygon.Exterior)
	case c.Range != nil:
		var v models.Timestamp
		switch c.Key {
		case KeyStartDate:
			v.Time = e.StartDate
		case KeyEndDate:
			v.Time = e.EndDate
		default:
			return false
		}
		if c.Range.Gte != nil && v.Before(c.Range.Gte.Time) {
			return false
		}
		if c.Range.Lte != nil && v.After(c.Range.Lte.Time) {
			return false
		}
		return true
	}
	return true
}

type geoPointJSON struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// MarshalJSON encodes the ring as {"exterior": {"points": [{lon, lat}, ...]}}
func (g GeoPolygon) MarshalJSON() ([]byte, error) {
	points := make([]geoPointJSON, len(g.Exterior))
	for i, p := range g.Exterior {
		points[i] = geoPointJSON{Lon: p.Lon, Lat: p.Lat}
	}
	var body struct {
		Exterior struct {
			Points []geoPointJSON `json:"points"`
		} `json:"exterior"`
	}
	body.Exterior.Points = points
	return json.Marshal(body)
}

// MarshalJSON encodes a field condition as Qdrant expects it. Alternatives
// become a nested filter with a should clause.
func (c Condition) MarshalJSON() ([]byte, error) {
	if len(c.Any) > 0 {
		return json.Marshal(struct {
			Should []Condition `json:"should"`
		}{c.Any})
	}
	return json.Marshal(struct {
		Key        string         `json:"key"`
		GeoPolygon *GeoPolygon    `json:"geo_polygon,omitempty"`
		Range      *DatetimeRange `json:"range,omitempty"`
	}{c.Key, c.GeoPolygon, c.Range})
}

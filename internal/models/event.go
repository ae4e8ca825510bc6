package models

import (
	"fmt"
	"time"
)

// EventLocation is the nested location of an event
type EventLocation struct {
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	Address string  `json:"address"`
}

// Point returns the coordinate part
func (l EventLocation) Point() GeoPoint {
	return GeoPoint{Lon: l.Lon, Lat: l.Lat}
}

// SparseVector holds index/weight pairs, indices ascending and unique
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// Len returns the number of non-zero entries
func (s SparseVector) Len() int {
	return len(s.Indices)
}

// Dot computes the inner product of two sparse vectors with sorted indices
func (s SparseVector) Dot(o SparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(s.Indices) && j < len(o.Indices) {
		switch {
		case s.Indices[i] == o.Indices[j]:
			sum += float64(s.Values[i]) * float64(o.Values[j])
			i++
			j++
		case s.Indices[i] < o.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// EventRecord is an event as stored in the index
type EventRecord struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Location    EventLocation `json:"location"`
	StartDate   time.Time     `json:"start_date"`
	EndDate     time.Time     `json:"end_date"`

	Dense  []float32    `json:"-"`
	Sparse SparseVector `json:"-"`
}

// Validate checks the fields required to index an event
func (e *EventRecord) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: event id is required", ErrValidation)
	}
	if e.Title == "" {
		return fmt.Errorf("%w: event %s: title is required", ErrValidation, e.ID)
	}
	if !e.Location.Point().Valid() {
		return fmt.Errorf("%w: event %s: location out of range", ErrValidation, e.ID)
	}
	if e.StartDate.IsZero() || e.EndDate.IsZero() {
		return fmt.Errorf("%w: event %s: start_date and end_date are required", ErrValidation, e.ID)
	}
	if e.EndDate.Before(e.StartDate) {
		return fmt.Errorf("%w: event %s: end_date before start_date", ErrValidation, e.ID)
	}
	return nil
}

// EmbeddingText is the text embedded for relevance search
func (e *EventRecord) EmbeddingText() string {
	if e.Description == "" {
		return e.Title
	}
	return e.Title + ". " + e.Description
}

// ScoredEvent is an index hit carrying its fused relevance score
type ScoredEvent struct {
	Event EventRecord
	Score float64
}

// MatchedEvent is a ranked event positioned along the route
type MatchedEvent struct {
	EventRecord
	Score         float64
	RouteOffset   float64 // planar arc length in route coordinate units
	RouteOffsetKm float64 // geodesic arc length to the same foot point
}

// TemporalWindow is the closed interval [Start, End]
type TemporalWindow struct {
	Start time.Time
	End   time.Time
}

// NewTemporalWindow builds a window and rejects End before Start
func NewTemporalWindow(start, end time.Time) (TemporalWindow, error) {
	w := TemporalWindow{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return TemporalWindow{}, err
	}
	return w, nil
}

// Validate checks Start <= End
func (w TemporalWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end of the time window are required", ErrValidation)
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("%w: end window %s is before start window %s", ErrValidation,
			w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// Overlaps reports whether [start, end] shares at least one instant with the window
func (w TemporalWindow) Overlaps(start, end time.Time) bool {
	return !start.After(w.End) && !end.Before(w.Start)
}

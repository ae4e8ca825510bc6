package models

import (
	"fmt"
	"strings"
)

// TravelProfile selects the routing mode
type TravelProfile string

const (
	ProfileDriving TravelProfile = "driving"
	ProfileCycling TravelProfile = "cycling"
	ProfileWalking TravelProfile = "walking"
)

var profileAliases = map[string]TravelProfile{
	"driving":         ProfileDriving,
	"driving-car":     ProfileDriving,
	"car":             ProfileDriving,
	"cycling":         ProfileCycling,
	"cycling-regular": ProfileCycling,
	"cycling-road":    ProfileCycling,
	"bike":            ProfileCycling,
	"walking":         ProfileWalking,
	"foot-walking":    ProfileWalking,
	"walk":            ProfileWalking,
}

// ParseTravelProfile maps a profile name or provider alias to a TravelProfile.
// An empty string yields the driving default.
func ParseTravelProfile(s string) (TravelProfile, error) {
	if s == "" {
		return ProfileDriving, nil
	}
	if p, ok := profileAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown travel_profile %q (driving, cycling, walking)", ErrValidation, s)
}

// Request defaults
const (
	DefaultBufferKm    = 5.0
	DefaultResultLimit = 100
	MaxResultLimit     = 1000
)

// RouteEventsRequest is the body of POST /api/v1/create_map
type RouteEventsRequest struct {
	OriginAddress      string    `json:"origin_address" binding:"required"`
	DestinationAddress string    `json:"destination_address" binding:"required"`
	BufferDistance     *float64  `json:"buffer_distance,omitempty"`
	StartWindow        Timestamp `json:"start_window"`
	EndWindow          Timestamp `json:"end_window"`
	QueryText          string    `json:"query_text"`
	ResultLimit        *int      `json:"result_limit,omitempty"`
	TravelProfile      string    `json:"travel_profile"`
}

// RouteQuery is a validated request with defaults applied
type RouteQuery struct {
	OriginAddress      string
	DestinationAddress string
	BufferKm           float64
	Window             TemporalWindow
	QueryText          string
	Limit              int
	Profile            TravelProfile
}

// Normalize applies defaults and validates the request.
// A non-positive buffer is a geometry error, everything else a validation error.
func (r *RouteEventsRequest) Normalize() (*RouteQuery, error) {
	q := &RouteQuery{
		OriginAddress:      strings.TrimSpace(r.OriginAddress),
		DestinationAddress: strings.TrimSpace(r.DestinationAddress),
		BufferKm:           DefaultBufferKm,
		QueryText:          strings.TrimSpace(r.QueryText),
		Limit:              DefaultResultLimit,
	}
	if q.OriginAddress == "" || q.DestinationAddress == "" {
		return nil, fmt.Errorf("%w: origin_address and destination_address are required", ErrValidation)
	}

	window, err := NewTemporalWindow(r.StartWindow.Time, r.EndWindow.Time)
	if err != nil {
		return nil, err
	}
	q.Window = window

	if r.ResultLimit != nil {
		if *r.ResultLimit < 1 || *r.ResultLimit > MaxResultLimit {
			return nil, fmt.Errorf("%w: result_limit must be between 1 and %d", ErrValidation, MaxResultLimit)
		}
		q.Limit = *r.ResultLimit
	}

	profile, err := ParseTravelProfile(r.TravelProfile)
	if err != nil {
		return nil, err
	}
	q.Profile = profile

	if r.BufferDistance != nil {
		if !(*r.BufferDistance > 0) {
			return nil, fmt.Errorf("%w: buffer_distance must be greater than 0 km", ErrGeometry)
		}
		q.BufferKm = *r.BufferDistance
	}

	return q, nil
}

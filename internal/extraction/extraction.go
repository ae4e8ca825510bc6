// Package extraction turns a free-text trip description into a route events request.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tatankam/eventmap/internal/models"
)

// Defaults applied to fields the sentence does not mention
const (
	DefaultWindowDays  = 4
	DefaultResultLimit = 10
)

// ErrNotConfigured is returned when no language model is available
var ErrNotConfigured = errors.New("extraction: no language model configured")

// Extractor produces a request payload from a sentence
type Extractor interface {
	Extract(ctx context.Context, sentence string) (*models.RouteEventsRequest, error)
}

// FieldError describes one invalid field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports an extracted payload that does not hold together
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid payload: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// rawPayload is what the model is asked to produce; everything is optional
// so that missing values can be defaulted rather than rejected
type rawPayload struct {
	OriginAddress      string   `json:"origin_address"`
	DestinationAddress string   `json:"destination_address"`
	BufferDistance     *float64 `json:"buffer_distance"`
	StartWindow        string   `json:"start_window"`
	EndWindow          string   `json:"end_window"`
	QueryText          string   `json:"query_text"`
	ResultLimit        *int     `json:"result_limit"`
	TravelProfile      string   `json:"travel_profile"`
}

// finalize applies defaults and validates; now anchors the default window
func (r rawPayload) finalize(now time.Time) (*models.RouteEventsRequest, error) {
	verr := &ValidationError{}
	out := &models.RouteEventsRequest{
		OriginAddress:      strings.TrimSpace(r.OriginAddress),
		DestinationAddress: strings.TrimSpace(r.DestinationAddress),
		QueryText:          strings.TrimSpace(r.QueryText),
	}

	if out.OriginAddress == "" {
		verr.add("origin_address", "is required")
	}
	if out.DestinationAddress == "" {
		verr.add("destination_address", "is required")
	}

	buffer := models.DefaultBufferKm
	if r.BufferDistance != nil {
		buffer = *r.BufferDistance
	}
	if !(buffer > 0) {
		verr.add("buffer_distance", "must be greater than 0")
	}
	out.BufferDistance = &buffer

	start := now.UTC()
	if r.StartWindow != "" {
		t, err := models.ParseTimestamp(r.StartWindow)
		if err != nil {
			verr.add("start_window", fmt.Sprintf("unrecognized datetime %q", r.StartWindow))
		} else {
			start = t
		}
	}
	// the default end is anchored on now, not on an extracted start
	end := now.UTC().AddDate(0, 0, DefaultWindowDays)
	if r.EndWindow != "" {
		t, err := models.ParseTimestamp(r.EndWindow)
		if err != nil {
			verr.add("end_window", fmt.Sprintf("unrecognized datetime %q", r.EndWindow))
		} else {
			end = t
		}
	}
	if end.Before(start) {
		verr.add("end_window", "start date can't be later than end date")
	}
	out.StartWindow = models.Timestamp{Time: start}
	out.EndWindow = models.Timestamp{Time: end}

	limit := DefaultResultLimit
	if r.ResultLimit != nil {
		limit = *r.ResultLimit
	}
	if limit < 1 || limit > models.MaxResultLimit {
		verr.add("result_limit", fmt.Sprintf("must be between 1 and %d", models.MaxResultLimit))
	}
	out.ResultLimit = &limit

	profile, err := models.ParseTravelProfile(r.TravelProfile)
	if err != nil {
		verr.add("travel_profile", "must be one of driving, cycling, walking")
	}
	out.TravelProfile = string(profile)

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return out, nil
}

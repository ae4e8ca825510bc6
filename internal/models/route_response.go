package models

// NoEventsMessage is returned in place of the event list when nothing matched
const NoEventsMessage = "No events found for this route/buffer and date range."

// EventView is an event as returned to clients, with the location flattened
type EventView struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Location      EventLocation `json:"location"`
	Address       string        `json:"address"`
	Lat           float64       `json:"lat"`
	Lon           float64       `json:"lon"`
	StartDate     Timestamp     `json:"start_date"`
	EndDate       Timestamp     `json:"end_date"`
	Score         float64       `json:"score"`
	RouteOffsetKm float64       `json:"route_offset_km"`
}

// RouteEventsResponse is the result of the route events pipeline
type RouteEventsResponse struct {
	RouteCoords   Coordinates   `json:"route_coords"`
	BufferPolygon Coordinates   `json:"buffer_polygon"`
	Origin        LabeledPoint  `json:"origin"`
	Destination   LabeledPoint  `json:"destination"`
	Profile       TravelProfile `json:"travel_profile"`
	BufferKm      float64       `json:"buffer_distance"`
	RouteLengthKm float64       `json:"route_length_km"`
	Events        []EventView   `json:"events,omitempty"`
	Count         int           `json:"count"`
	NoEvents      bool          `json:"no_events,omitempty"`
	Message       string        `json:"message,omitempty"`
}

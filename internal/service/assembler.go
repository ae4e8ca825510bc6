package service

import (
	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/spatial"
)

// AssembleResponse builds the client payload. Each event's nested location is
// repeated as top-level address/lat/lon. With no events the list is omitted
// and the no-events message is set.
func AssembleResponse(resolved *models.ResolvedRoute, corridor models.Corridor, events []models.MatchedEvent) *models.RouteEventsResponse {
	resp := &models.RouteEventsResponse{
		RouteCoords:   models.Coordinates(resolved.Route.Points),
		BufferPolygon: models.Coordinates(corridor.Ring),
		Origin:        resolved.Origin,
		Destination:   resolved.Destination,
		Profile:       resolved.Profile,
		BufferKm:      corridor.BufferKm,
		RouteLengthKm: spatial.PathLength(resolved.Route.Points) / 1000,
		Count:         len(events),
	}

	if len(events) == 0 {
		resp.NoEvents = true
		resp.Message = models.NoEventsMessage
		return resp
	}

	resp.Events = make([]models.EventView, len(events))
	for i, e := range events {
		resp.Events[i] = models.EventView{
			ID:            e.ID,
			Title:         e.Title,
			Description:   e.Description,
			Location:      e.Location,
			Address:       e.Location.Address,
			Lat:           e.Location.Lat,
			Lon:           e.Location.Lon,
			StartDate:     models.Timestamp{Time: e.StartDate},
			EndDate:       models.Timestamp{Time: e.EndDate},
			Score:         e.Score,
			RouteOffsetKm: e.RouteOffsetKm,
		}
	}
	return resp
}

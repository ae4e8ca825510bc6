package retrieval

import (
	"sort"

	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/spatial"
)

// OrderAlongRoute positions each scored event on the route and sorts by
// arc-length offset. The sort is stable, so events at the same offset keep
// their relevance order.
func OrderAlongRoute(events []models.ScoredEvent, route models.Route) []models.MatchedEvent {
	matched := make([]models.MatchedEvent, len(events))
	for i, se := range events {
		proj := spatial.ProjectOntoRoute(route.Points, se.Event.Location.Point())
		matched[i] = models.MatchedEvent{
			EventRecord:   se.Event,
			Score:         se.Score,
			RouteOffset:   proj.Offset,
			RouteOffsetKm: proj.OffsetMeters / 1000,
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].RouteOffset < matched[j].RouteOffset
	})
	return matched
}

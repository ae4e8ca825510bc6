package retrieval

import (
	"sort"

	"github.com/tatankam/eventmap/internal/models"
)

// DefaultRRFK matches the constant Qdrant uses for server-side RRF fusion
const DefaultRRFK = 2.0

// FuseRRF merges ranked lists with Reciprocal Rank Fusion. An event's score
// is the sum over the lists containing it of 1/(k+rank), rank starting at 1.
// Events with equal scores keep the order in which they were first seen.
func FuseRRF(k float64, lists ...[]models.ScoredEvent) []models.ScoredEvent {
	if k <= 0 {
		k = DefaultRRFK
	}

	pos := make(map[string]int)
	var fused []models.ScoredEvent
	for _, list := range lists {
		seen := make(map[string]bool, len(list))
		rank := 0
		for _, hit := range list {
			// a branch counts each event once, at its best rank
			if seen[hit.Event.ID] {
				continue
			}
			seen[hit.Event.ID] = true
			rank++

			contribution := 1 / (k + float64(rank))
			if i, ok := pos[hit.Event.ID]; ok {
				fused[i].Score += contribution
				continue
			}
			pos[hit.Event.ID] = len(fused)
			fused = append(fused, models.ScoredEvent{Event: hit.Event, Score: contribution})
		}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused
}

// Package index provides the event stores queried by the hybrid ranker.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/repository"
	"github.com/tatankam/eventmap/internal/retrieval"
)

const (
	tolerance   = 1e-9
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// Writer stores embedded events so that later searches see them
type Writer interface {
	Upsert(ctx context.Context, events []models.EventRecord) error
}

// Index is a searchable, writable event store
type Index interface {
	retrieval.HybridIndex
	Writer
}

// eventItem wraps an event for R-Tree indexing
type eventItem struct {
	event *models.EventRecord
	rect  *rtreego.Rect
}

func (it *eventItem) Bounds() *rtreego.Rect {
	return it.rect
}

// LocalIndex serves the events persisted in sqlite from an in-memory R-Tree.
// Vectors are scored exhaustively over the candidates inside the corridor's
// bounding box.
type LocalIndex struct {
	repo   *repository.EventRepository
	mu     sync.RWMutex
	tree   *rtreego.Rtree
	items  map[string]*eventItem
	logger *slog.Logger
}

var _ Index = (*LocalIndex)(nil)

// NewLocalIndex loads every stored event into memory
func NewLocalIndex(ctx context.Context, repo *repository.EventRepository) (*LocalIndex, error) {
	idx := &LocalIndex{
		repo:   repo,
		logger: slog.Default().With("component", "local-index"),
	}
	if err := idx.Reload(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Reload rebuilds the tree from the repository
func (l *LocalIndex) Reload(ctx context.Context) error {
	events, err := l.repo.Find(ctx, repository.EventQuery{})
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}

	tree := rtreego.NewTree(dimensions, minChildren, maxChildren)
	items := make(map[string]*eventItem, len(events))
	for i := range events {
		it := newEventItem(&events[i])
		tree.Insert(it)
		items[it.event.ID] = it
	}

	l.mu.Lock()
	l.tree = tree
	l.items = items
	l.mu.Unlock()

	l.logger.Info("local index loaded", "events", len(items))
	return nil
}

// Upsert replaces the in-memory copy of each event. Persisting them is the
// repository's job.
func (l *LocalIndex) Upsert(_ context.Context, events []models.EventRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range events {
		e := events[i]
		if old, ok := l.items[e.ID]; ok {
			l.tree.Delete(old)
		}
		it := newEventItem(&e)
		l.tree.Insert(it)
		l.items[e.ID] = it
	}
	return nil
}

// Len returns the number of indexed events
func (l *LocalIndex) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// SearchDense ranks the matching events by cosine similarity
func (l *LocalIndex) SearchDense(_ context.Context, vector []float32, filter retrieval.Filter, limit int, threshold float64) ([]models.ScoredEvent, error) {
	var hits []models.ScoredEvent
	for _, e := range l.candidates(filter) {
		score := cosine(vector, e.Dense)
		if score < threshold {
			continue
		}
		hits = append(hits, models.ScoredEvent{Event: *e, Score: score})
	}
	return topN(hits, limit), nil
}

// SearchSparse ranks the matching events by sparse dot product
func (l *LocalIndex) SearchSparse(_ context.Context, vector models.SparseVector, filter retrieval.Filter, limit int) ([]models.ScoredEvent, error) {
	var hits []models.ScoredEvent
	for _, e := range l.candidates(filter) {
		score := vector.Dot(e.Sparse)
		if score <= 0 {
			continue
		}
		hits = append(hits, models.ScoredEvent{Event: *e, Score: score})
	}
	return topN(hits, limit), nil
}

// Browse returns matching events in id order
func (l *LocalIndex) Browse(_ context.Context, filter retrieval.Filter, limit int) ([]models.EventRecord, error) {
	matched := l.candidates(filter)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]models.EventRecord, len(matched))
	for i, e := range matched {
		out[i] = *e
	}
	return out, nil
}

// candidates returns events passing the filter, sorted by id. The tree
// narrows the scan to the corridor's bounding box.
func (l *LocalIndex) candidates(filter retrieval.Filter) []*models.EventRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var pool []*models.EventRecord
	if rings := filter.Corridors(); len(rings) > 0 {
		seen := make(map[*models.EventRecord]bool)
		for _, ring := range rings {
			bbox := ringBounds(ring)
			if bbox == nil {
				continue
			}
			for _, hit := range l.tree.SearchIntersect(bbox) {
				if e := hit.(*eventItem).event; !seen[e] {
					seen[e] = true
					pool = append(pool, e)
				}
			}
		}
	} else {
		pool = make([]*models.EventRecord, 0, len(l.items))
		for _, it := range l.items {
			pool = append(pool, it.event)
		}
	}

	matched := pool[:0]
	for _, e := range pool {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched
}

func newEventItem(e *models.EventRecord) *eventItem {
	p := rtreego.Point{e.Location.Lon, e.Location.Lat}
	return &eventItem{event: e, rect: p.ToRect(tolerance)}
}

func ringBounds(ring []models.GeoPoint) *rtreego.Rect {
	c := models.Corridor{Ring: ring}
	minLon, minLat, maxLon, maxLat := c.Bounds()
	rect, err := rtreego.NewRect(
		rtreego.Point{minLon - tolerance, minLat - tolerance},
		[]float64{maxLon - minLon + 2*tolerance, maxLat - minLat + 2*tolerance},
	)
	if err != nil {
		return nil
	}
	return rect
}

// topN sorts by descending score, ids breaking ties, and keeps n
func topN(hits []models.ScoredEvent, n int) []models.ScoredEvent {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Event.ID < hits[j].Event.ID
	})
	if n > 0 && len(hits) > n {
		hits = hits[:n]
	}
	return hits
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

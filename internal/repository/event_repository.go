package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tatankam/eventmap/internal/models"
)

// dates are stored as RFC 3339 UTC text so that string order is time order
const dateLayout = time.RFC3339

// EventRepository handles database operations for indexed events
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// EventQuery is a coarse prefilter: a lon/lat box and an interval overlap
type EventQuery struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	HasBox                         bool

	StartBefore *time.Time // start_date <= StartBefore
	EndAfter    *time.Time // end_date >= EndAfter
	Limit       int
}

// Upsert inserts or replaces an event together with its content hash
func (r *EventRepository) Upsert(ctx context.Context, e *models.EventRecord, hash string) error {
	sparse, err := json.Marshal(e.Sparse)
	if err != nil {
		return fmt.Errorf("failed to encode sparse vector: %w", err)
	}

	query := `
		INSERT INTO events (
			id, title, description, address, lon, lat, start_date, end_date,
			content_hash, dense, sparse
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			address = excluded.address,
			lon = excluded.lon,
			lat = excluded.lat,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			content_hash = excluded.content_hash,
			dense = excluded.dense,
			sparse = excluded.sparse,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = r.db.ExecContext(ctx, query,
		e.ID,
		e.Title,
		e.Description,
		e.Location.Address,
		e.Location.Lon,
		e.Location.Lat,
		e.StartDate.UTC().Format(dateLayout),
		e.EndDate.UTC().Format(dateLayout),
		hash,
		models.EncodeVector(e.Dense),
		string(sparse),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert event %s: %w", e.ID, err)
	}
	return nil
}

// ContentHashes returns the stored hash of each known id
func (r *EventRepository) ContentHashes(ctx context.Context, ids []string) (map[string]string, error) {
	hashes := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return hashes, nil
	}

	// stay well under SQLite's bound-parameter limit
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		part := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(part)), ",")
		args := make([]any, len(part))
		for i, id := range part {
			args[i] = id
		}

		rows, err := r.db.QueryContext(ctx,
			"SELECT id, content_hash FROM events WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query content hashes: %w", err)
		}
		for rows.Next() {
			var id, hash string
			if err := rows.Scan(&id, &hash); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan content hash: %w", err)
			}
			hashes[id] = hash
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return hashes, nil
}

// GetByID retrieves an event by id; nil when absent
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.EventRecord, error) {
	row := r.db.QueryRowContext(ctx, selectEvents+" WHERE id = ?", id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return e, nil
}

// Find returns events passing the prefilter, in id order
func (r *EventRepository) Find(ctx context.Context, q EventQuery) ([]models.EventRecord, error) {
	var where []string
	var args []any

	if q.HasBox {
		where = append(where, "lon BETWEEN ? AND ?", "lat BETWEEN ? AND ?")
		args = append(args, q.MinLon, q.MaxLon, q.MinLat, q.MaxLat)
	}
	if q.StartBefore != nil {
		where = append(where, "start_date <= ?")
		args = append(args, q.StartBefore.UTC().Format(dateLayout))
	}
	if q.EndAfter != nil {
		where = append(where, "end_date >= ?")
		args = append(args, q.EndAfter.UTC().Format(dateLayout))
	}

	query := selectEvents
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.EventRecord
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// Count returns the number of stored events
func (r *EventRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// IngestRun summarizes one ingestion
type IngestRun struct {
	Source     string
	Total      int
	Inserted   int
	Updated    int
	Skipped    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecordIngestRun appends an ingestion summary
func (r *EventRepository) RecordIngestRun(ctx context.Context, run IngestRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (source, total, inserted, updated, skipped, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.Source, run.Total, run.Inserted, run.Updated, run.Skipped,
		run.StartedAt.UTC().Format(dateLayout), run.FinishedAt.UTC().Format(dateLayout))
	if err != nil {
		return fmt.Errorf("failed to record ingest run: %w", err)
	}
	return nil
}

const selectEvents = `
	SELECT id, title, description, address, lon, lat, start_date, end_date, dense, sparse
	FROM events`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.EventRecord, error) {
	var (
		e          models.EventRecord
		start, end string
		dense      []byte
		sparse     sql.NullString
	)
	err := row.Scan(
		&e.ID,
		&e.Title,
		&e.Description,
		&e.Location.Address,
		&e.Location.Lon,
		&e.Location.Lat,
		&start,
		&end,
		&dense,
		&sparse,
	)
	if err != nil {
		return nil, err
	}

	if e.StartDate, err = time.Parse(dateLayout, start); err != nil {
		return nil, fmt.Errorf("invalid start_date %q: %w", start, err)
	}
	if e.EndDate, err = time.Parse(dateLayout, end); err != nil {
		return nil, fmt.Errorf("invalid end_date %q: %w", end, err)
	}
	e.Dense = models.DecodeVector(dense)
	if sparse.Valid && sparse.String != "" {
		if err := json.Unmarshal([]byte(sparse.String), &e.Sparse); err != nil {
			return nil, fmt.Errorf("invalid sparse vector: %w", err)
		}
	}
	return &e, nil
}

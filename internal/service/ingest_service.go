package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/tatankam/eventmap/internal/embedding"
	"github.com/tatankam/eventmap/internal/index"
	"github.com/tatankam/eventmap/internal/metrics"
	"github.com/tatankam/eventmap/internal/models"
	"github.com/tatankam/eventmap/internal/repository"
)

// DefaultBatchSize is the number of events embedded per request
const DefaultBatchSize = 32

// Errors returned by NewIngestService
var (
	ErrRepositoryRequired = errors.New("ingest: repository is required")
	ErrWriterRequired     = errors.New("ingest: index writer is required")
	ErrEmbedderRequired   = errors.New("ingest: dense and sparse embedders are required")
)

// IngestResult reports what an ingestion changed
type IngestResult struct {
	Filename         string `json:"filename"`
	Inserted         int    `json:"inserted"`
	Updated          int    `json:"updated"`
	SkippedUnchanged int    `json:"skipped_unchanged"`
	Total            int    `json:"total"`
}

// IngestService loads events into the store and the search index. Only
// events whose content changed since the last ingestion are re-embedded.
type IngestService struct {
	repo      *repository.EventRepository
	writer    index.Writer
	dense     embedding.DenseEmbedder
	sparse    embedding.SparseEmbedder
	pool      *ants.Pool
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// IngestOption configures an IngestService
type IngestOption func(*IngestService) error

// WithPoolSize sets the number of concurrent embedding batches.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) IngestOption {
	return func(s *IngestService) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if s.pool != nil {
			s.pool.Release()
		}
		s.pool = pool
		return nil
	}
}

// WithBatchSize sets how many events go into one embedding call
func WithBatchSize(size int) IngestOption {
	return func(s *IngestService) error {
		if size > 0 {
			s.batchSize = size
		}
		return nil
	}
}

// WithMetrics records ingestion outcomes
func WithMetrics(m *metrics.Metrics) IngestOption {
	return func(s *IngestService) error {
		s.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) IngestOption {
	return func(s *IngestService) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "ingest")
		return nil
	}
}

// NewIngestService creates the service. Call Close to release the worker pool.
func NewIngestService(
	repo *repository.EventRepository,
	writer index.Writer,
	dense embedding.DenseEmbedder,
	sparse embedding.SparseEmbedder,
	opts ...IngestOption,
) (*IngestService, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if writer == nil {
		return nil, ErrWriterRequired
	}
	if dense == nil || sparse == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	s := &IngestService{
		repo:      repo,
		writer:    writer,
		dense:     dense,
		sparse:    sparse,
		pool:      pool,
		batchSize: DefaultBatchSize,
		logger:    slog.Default().With("component", "ingest"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close releases the worker pool
func (s *IngestService) Close() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Ingest reads a JSON document of events from r. The document is either an
// array of events or an object with an "events" array. A malformed document
// or an invalid event rejects the whole file.
func (s *IngestService) Ingest(ctx context.Context, filename string, r io.Reader) (*IngestResult, error) {
	started := time.Now()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	events, err := ParseEvents(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	result := &IngestResult{Filename: filename, Total: len(events)}
	if len(events) == 0 {
		return result, nil
	}

	ids := make([]string, len(events))
	hashes := make([]string, len(events))
	for i := range events {
		ids[i] = events[i].ID
		hashes[i] = ContentHash(&events[i])
	}
	existing, err := s.repo.ContentHashes(ctx, ids)
	if err != nil {
		return nil, err
	}

	var changed []models.EventRecord
	var changedHashes []string
	for i := range events {
		prev, ok := existing[ids[i]]
		switch {
		case !ok:
			result.Inserted++
		case prev != hashes[i]:
			result.Updated++
		default:
			result.SkippedUnchanged++
			continue
		}
		changed = append(changed, events[i])
		changedHashes = append(changedHashes, hashes[i])
	}

	if len(changed) > 0 {
		if err := s.embed(ctx, changed); err != nil {
			return nil, err
		}
		if err := s.writer.Upsert(ctx, changed); err != nil {
			return nil, fmt.Errorf("%w: failed to write events to index: %v", models.ErrUpstream, err)
		}
		for i := range changed {
			if err := s.repo.Upsert(ctx, &changed[i], changedHashes[i]); err != nil {
				return nil, err
			}
		}
	}

	run := repository.IngestRun{
		Source:     filename,
		Total:      result.Total,
		Inserted:   result.Inserted,
		Updated:    result.Updated,
		Skipped:    result.SkippedUnchanged,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err := s.repo.RecordIngestRun(ctx, run); err != nil {
		s.logger.Warn("failed to record ingest run", "source", filename, "err", err)
	}

	s.metrics.AddIngested("inserted", result.Inserted)
	s.metrics.AddIngested("updated", result.Updated)
	s.metrics.AddIngested("skipped", result.SkippedUnchanged)

	s.logger.Info("events ingested",
		"source", filename,
		"total", result.Total,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"skipped", result.SkippedUnchanged,
		"elapsed", time.Since(started))
	return result, nil
}

// embed fills Dense and Sparse of events in place, one pool task per batch
func (s *IngestService) embed(ctx context.Context, events []models.EventRecord) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for start := 0; start < len(events); start += s.batchSize {
		batch := events[start:min(start+s.batchSize, len(events))]
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if err := s.embedBatch(ctx, batch); err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("failed to submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()
	return firstErr
}

func (s *IngestService) embedBatch(ctx context.Context, batch []models.EventRecord) error {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].EmbeddingText()
	}

	dense, err := s.dense.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: failed to embed events: %v", models.ErrUpstream, err)
	}
	sparse, err := s.sparse.EmbedSparseTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: failed to embed events: %v", models.ErrUpstream, err)
	}
	if len(dense) != len(batch) || len(sparse) != len(batch) {
		return fmt.Errorf("%w: embedder returned %d dense and %d sparse vectors for %d events",
			models.ErrUpstream, len(dense), len(sparse), len(batch))
	}

	for i := range batch {
		batch[i].Dense = dense[i]
		batch[i].Sparse = sparse[i]
	}
	return nil
}

// eventDocument is an event as found in ingestion files. Coordinates may be
// nested under location or given at the top level.
type eventDocument struct {
	ID          json.RawMessage  `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Location    *locationDoc     `json:"location"`
	Address     string           `json:"address"`
	Lat         *float64         `json:"lat"`
	Lon         *float64         `json:"lon"`
	StartDate   models.Timestamp `json:"start_date"`
	EndDate     models.Timestamp `json:"end_date"`
}

type locationDoc struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address"`
}

func (d *eventDocument) record() (models.EventRecord, error) {
	id, err := parseID(d.ID)
	if err != nil {
		return models.EventRecord{}, err
	}
	e := models.EventRecord{
		ID:          id,
		Title:       strings.TrimSpace(d.Title),
		Description: strings.TrimSpace(d.Description),
		StartDate:   d.StartDate.Time,
		EndDate:     d.EndDate.Time,
	}
	switch {
	case d.Location != nil:
		e.Location = models.EventLocation{Lon: d.Location.Lon, Lat: d.Location.Lat, Address: d.Location.Address}
	case d.Lat != nil && d.Lon != nil:
		e.Location = models.EventLocation{Lon: *d.Lon, Lat: *d.Lat}
	default:
		return models.EventRecord{}, fmt.Errorf("%w: event %s: location is required", models.ErrValidation, id)
	}
	if e.Location.Address == "" {
		e.Location.Address = strings.TrimSpace(d.Address)
	}
	return e, e.Validate()
}

// parseID accepts string and numeric ids
func parseID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("%w: event id is required", models.ErrValidation)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String(), nil
		}
	}
	return "", fmt.Errorf("%w: event id must be a string or a number", models.ErrValidation)
}

// ParseEvents decodes and validates an ingestion document. Later duplicates
// of an id replace earlier ones.
func ParseEvents(data []byte) ([]models.EventRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", models.ErrValidation)
	}

	var docs []eventDocument
	if data[0] == '[' {
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("%w: invalid events document: %v", models.ErrValidation, err)
		}
	} else {
		var wrapped struct {
			Events []eventDocument `json:"events"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: invalid events document: %v", models.ErrValidation, err)
		}
		docs = wrapped.Events
	}

	events := make([]models.EventRecord, 0, len(docs))
	position := make(map[string]int, len(docs))
	for i := range docs {
		e, err := docs[i].record()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if at, ok := position[e.ID]; ok {
			events[at] = e
			continue
		}
		position[e.ID] = len(events)
		events = append(events, e)
	}
	return events, nil
}

// ContentHash fingerprints the fields that feed the index
func ContentHash(e *models.EventRecord) string {
	h := sha256.New()
	for _, field := range []string{
		e.ID,
		e.Title,
		e.Description,
		e.Location.Address,
		strconv.FormatFloat(e.Location.Lon, 'f', -1, 64),
		strconv.FormatFloat(e.Location.Lat, 'f', -1, 64),
		e.StartDate.UTC().Format(time.RFC3339),
		e.EndDate.UTC().Format(time.RFC3339),
	} {
		h.Write([]byte(field))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

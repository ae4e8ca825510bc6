package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/tatankam/eventmap/internal/models"
)

// Cache persists dense vectors keyed by model and text so repeated queries
// and re-ingested events skip the embedding service
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// badgerLogger adapts slog.Logger to badger.Logger
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenCache opens the cache at dir, or in memory when dir is empty.
// A zero ttl keeps entries forever.
func OpenCache(dir string, ttl time.Duration) (*Cache, error) {
	logger := slog.Default().With("component", "embedding-cache")

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	return &Cache{db: db, ttl: ttl, logger: logger}, nil
}

// Close closes the underlying store
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached vector for key
func (c *Cache) Get(key string) ([]float32, bool, error) {
	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			vec = models.DecodeVector(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Put stores vec under key
func (c *Cache) Put(key string, vec []float32) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), models.EncodeVector(vec))
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// CacheKey derives the key for text embedded with model
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "dense:" + model + ":" + hex.EncodeToString(sum[:])
}

// CachedEmbedder serves dense vectors from a Cache and fills it on miss
type CachedEmbedder struct {
	next   DenseEmbedder
	cache  *Cache
	model  string
	logger *slog.Logger
}

// NewCachedEmbedder wraps next; model namespaces the keys
func NewCachedEmbedder(next DenseEmbedder, cache *Cache, model string) *CachedEmbedder {
	return &CachedEmbedder{
		next:   next,
		cache:  cache,
		model:  model,
		logger: slog.Default().With("component", "cached-embedder"),
	}
}

// EmbedText returns the cached vector or embeds and stores it
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds only the texts missing from the cache, in one batch
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, t := range texts {
		vec, ok, err := c.cache.Get(CacheKey(c.model, t))
		if err != nil {
			c.logger.Warn("cache read failed", "err", err)
		}
		if ok {
			out[i] = vec
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}

	c.logger.Debug("embedding cache lookup", "hits", len(texts)-len(missing), "misses", len(missing))
	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.next.EmbedTexts(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missing))
	}
	for j, vec := range fresh {
		out[missingIdx[j]] = vec
		if err := c.cache.Put(CacheKey(c.model, missing[j]), vec); err != nil {
			c.logger.Warn("cache write failed", "err", err)
		}
	}
	return out, nil
}

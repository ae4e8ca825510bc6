package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tatankam/eventmap/internal/index"
	"github.com/tatankam/eventmap/internal/retrieval"
	"gopkg.in/yaml.v3"
)

// Provider names
const (
	RoutingORS  = "openrouteservice"
	RoutingOSRM = "osrm"

	IndexQdrant = "qdrant"
	IndexLocal  = "local"

	SparseHashing = "hashing"
	SparseTEI     = "tei"
)

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	Port            string        `yaml:"port"`
	RateLimit       int           `yaml:"rate_limit"`  // requests per window per client
	RateWindow      time.Duration `yaml:"rate_window"` // e.g. 1m
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// LogConfig selects the log level
type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// DatabaseConfig locates the sqlite event store
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig locates the embedding cache; an empty Dir keeps it in memory
type CacheConfig struct {
	Dir string        `yaml:"dir"`
	TTL time.Duration `yaml:"ttl"`
}

// RoutingConfig selects the geocoding/routing backends
type RoutingConfig struct {
	Provider       string        `yaml:"provider"` // openrouteservice|osrm
	ORSBaseURL     string        `yaml:"ors_base_url"`
	ORSAPIKey      string        `yaml:"ors_api_key"`
	OSRMDrivingURL string        `yaml:"osrm_driving_url"`
	OSRMCyclingURL string        `yaml:"osrm_cycling_url"`
	OSRMWalkingURL string        `yaml:"osrm_walking_url"`
	Timeout        time.Duration `yaml:"timeout"`
}

// IndexConfig selects the event index
type IndexConfig struct {
	Provider string             `yaml:"provider"` // qdrant|local
	Qdrant   index.QdrantConfig `yaml:"qdrant"`
}

// EmbeddingConfig configures the dense and sparse embedders
type EmbeddingConfig struct {
	Host           string        `yaml:"host"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	Dimension      int           `yaml:"dimension"`       // used when creating the collection
	SparseProvider string        `yaml:"sparse_provider"` // hashing|tei
	TEIURL         string        `yaml:"tei_url"`
	Timeout        time.Duration `yaml:"timeout"`
	Workers        int           `yaml:"workers"`    // ingestion pool size
	BatchSize      int           `yaml:"batch_size"` // texts per embedding call
}

// ExtractionConfig configures the sentence-to-payload LLM; empty Model disables it
type ExtractionConfig struct {
	Host   string `yaml:"host"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
}

// Config is the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	Routing    RoutingConfig    `yaml:"routing"`
	Index      IndexConfig      `yaml:"index"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Ranker     retrieval.Config `yaml:"ranker"`
	Extraction ExtractionConfig `yaml:"extraction"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			RateLimit:       60,
			RateWindow:      time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  32 << 20,
		},
		Log:      LogConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Path: "./data/eventmap.db"},
		Cache:    CacheConfig{Dir: "./data/embedding-cache", TTL: 30 * 24 * time.Hour},
		Routing: RoutingConfig{
			Provider: RoutingORS,
			Timeout:  20 * time.Second,
		},
		Index: IndexConfig{
			Provider: IndexQdrant,
			Qdrant: index.QdrantConfig{
				Collection:   "veneto_events",
				DenseVector:  index.DefaultDenseVectorName,
				SparseVector: index.DefaultSparseVectorName,
				Timeout:      index.DefaultQdrantTimeout,
			},
		},
		Embedding: EmbeddingConfig{
			Dimension:      384,
			SparseProvider: SparseHashing,
			Timeout:        30 * time.Second,
			Workers:        4,
			BatchSize:      32,
		},
		Ranker: retrieval.DefaultConfig(),
	}
}

// Load reads .env, the YAML file named by EVENTMAP_CONFIG (if any) and the
// environment, in increasing precedence
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}

	cfg := Default()
	if path := os.Getenv("EVENTMAP_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	if c.Server.Port != "" && !strings.Contains(c.Server.Port, ":") {
		c.Server.Port = ":" + c.Server.Port
	}
	setInt(&c.Server.RateLimit, "RATE_LIMIT")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Database.Path, "DB_PATH")
	setString(&c.Cache.Dir, "EMBEDDING_CACHE_DIR")

	setString(&c.Routing.Provider, "ROUTING_PROVIDER")
	setString(&c.Routing.ORSBaseURL, "OPENROUTE_BASE_URL")
	setString(&c.Routing.ORSAPIKey, "OPENROUTE_API_KEY")
	setString(&c.Routing.OSRMDrivingURL, "OSRM_DRIVING_URL")
	setString(&c.Routing.OSRMCyclingURL, "OSRM_CYCLING_URL")
	setString(&c.Routing.OSRMWalkingURL, "OSRM_WALKING_URL")

	setString(&c.Index.Provider, "INDEX_PROVIDER")
	setString(&c.Index.Qdrant.URL, "QDRANT_SERVER")
	setString(&c.Index.Qdrant.APIKey, "QDRANT_API_KEY")
	setString(&c.Index.Qdrant.Collection, "QDRANT_COLLECTION")

	setString(&c.Embedding.Host, "EMBEDDING_HOST")
	setString(&c.Embedding.Model, "DENSE_MODEL_NAME")
	setString(&c.Embedding.APIKey, "EMBEDDING_API_KEY")
	setInt(&c.Embedding.Dimension, "DENSE_DIMENSION")
	setString(&c.Embedding.SparseProvider, "SPARSE_PROVIDER")
	setString(&c.Embedding.TEIURL, "SPARSE_TEI_URL")

	setFloat(&c.Ranker.ScoreThreshold, "SCORE_THRESHOLD")
	setInt(&c.Ranker.PrefetchLimit, "PREFETCH_LIMIT")
	setFloat(&c.Ranker.RRFK, "RRF_K")

	setString(&c.Extraction.Host, "OPEN_AI_BASE_URL")
	setString(&c.Extraction.Model, "OPENAI_MODEL")
	setString(&c.Extraction.APIKey, "OPENAI_API_KEY")
	if c.Embedding.Host == "" {
		c.Embedding.Host = c.Extraction.Host
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.Extraction.APIKey
	}
}

// Validate checks the keys each selected provider needs
func (c *Config) Validate() error {
	var errs []error

	switch c.Routing.Provider {
	case RoutingORS:
		if c.Routing.ORSAPIKey == "" {
			errs = append(errs, errors.New("routing: OPENROUTE_API_KEY is required for openrouteservice"))
		}
	case RoutingOSRM:
		// geocoding still goes through openrouteservice
		if c.Routing.ORSAPIKey == "" {
			errs = append(errs, errors.New("routing: OPENROUTE_API_KEY is required for geocoding"))
		}
	default:
		errs = append(errs, fmt.Errorf("routing: unknown provider %q", c.Routing.Provider))
	}

	switch c.Index.Provider {
	case IndexQdrant:
		if err := c.Index.Qdrant.Validate(); err != nil {
			errs = append(errs, err)
		}
	case IndexLocal:
	default:
		errs = append(errs, fmt.Errorf("index: unknown provider %q", c.Index.Provider))
	}

	if c.Embedding.Host == "" || c.Embedding.Model == "" {
		errs = append(errs, errors.New("embedding: host and model are required"))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, errors.New("embedding: dimension must be positive"))
	}
	switch c.Embedding.SparseProvider {
	case SparseHashing:
	case SparseTEI:
		if c.Embedding.TEIURL == "" {
			errs = append(errs, errors.New("embedding: SPARSE_TEI_URL is required for the tei sparse provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("embedding: unknown sparse provider %q", c.Embedding.SparseProvider))
	}

	if c.Server.RateLimit <= 0 || c.Server.RateWindow <= 0 {
		errs = append(errs, errors.New("server: rate limit and window must be positive"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ParseLevel maps a level name to slog.Level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log: unknown level %q", s)
}

// NewLogger builds the process logger from the log settings
func (c LogConfig) NewLogger() *slog.Logger {
	level, _ := ParseLevel(c.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			slog.Warn("ignoring invalid integer setting", "key", key, "value", v)
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		} else {
			slog.Warn("ignoring invalid number setting", "key", key, "value", v)
		}
	}
}

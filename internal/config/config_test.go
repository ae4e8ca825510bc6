package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Routing.ORSAPIKey = "ors-key"
	cfg.Index.Qdrant.URL = "http://localhost:6333"
	cfg.Embedding.Host = "http://localhost:11434"
	cfg.Embedding.Model = "nomic-embed-text"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, RoutingORS, cfg.Routing.Provider)
	assert.Equal(t, IndexQdrant, cfg.Index.Provider)
	assert.Equal(t, "veneto_events", cfg.Index.Qdrant.Collection)
	assert.Equal(t, 0.34, cfg.Ranker.ScoreThreshold)
	assert.Equal(t, 50, cfg.Ranker.PrefetchLimit)
	assert.Equal(t, 2.0, cfg.Ranker.RRFK)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eventmap.yaml")
	yaml := `
server:
  port: ":9090"
  rate_window: 30s
routing:
  provider: osrm
  osrm_driving_url: http://osrm:5000
index:
  provider: local
ranker:
  score_threshold: 0.5
  rrf_k: 60
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	t.Setenv("EVENTMAP_CONFIG", path)
	t.Setenv("PORT", ":7070")
	t.Setenv("OPENROUTE_API_KEY", "env-key")
	t.Setenv("OPEN_AI_BASE_URL", "http://llm:8000/v1")
	t.Setenv("OPENAI_MODEL", "llama3")
	t.Setenv("PREFETCH_LIMIT", "80")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Port, "env wins over yaml")
	assert.Equal(t, 30*time.Second, cfg.Server.RateWindow)
	assert.Equal(t, RoutingOSRM, cfg.Routing.Provider)
	assert.Equal(t, "http://osrm:5000", cfg.Routing.OSRMDrivingURL)
	assert.Equal(t, "env-key", cfg.Routing.ORSAPIKey)
	assert.Equal(t, IndexLocal, cfg.Index.Provider)
	assert.Equal(t, 0.5, cfg.Ranker.ScoreThreshold)
	assert.Equal(t, 60.0, cfg.Ranker.RRFK)
	assert.Equal(t, 80, cfg.Ranker.PrefetchLimit)
	assert.Equal(t, "llama3", cfg.Extraction.Model)
	assert.Equal(t, "http://llm:8000/v1", cfg.Embedding.Host, "embedding host falls back to the llm host")
	assert.Equal(t, "veneto_events", cfg.Index.Qdrant.Collection, "unset keys keep defaults")
}

func TestLoad_BadFile(t *testing.T) {
	t.Setenv("EVENTMAP_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing ors key", func(c *Config) { c.Routing.ORSAPIKey = "" }, "OPENROUTE_API_KEY"},
		{"unknown routing", func(c *Config) { c.Routing.Provider = "google" }, "unknown provider"},
		{"missing qdrant url", func(c *Config) { c.Index.Qdrant.URL = "" }, "qdrant: url"},
		{"local index needs no qdrant", func(c *Config) { c.Index.Provider = IndexLocal; c.Index.Qdrant.URL = "" }, ""},
		{"missing embedding model", func(c *Config) { c.Embedding.Model = "" }, "embedding"},
		{"tei without url", func(c *Config) { c.Embedding.SparseProvider = SparseTEI }, "SPARSE_TEI_URL"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "unknown level"},
		{"zero rate limit", func(c *Config) { c.Server.RateLimit = 0 }, "rate limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

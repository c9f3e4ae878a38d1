package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/chunking"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "semindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, StoreBadger, cfg.Store)
	assert.Equal(t, 384, cfg.Model.Dimensions)
	assert.Equal(t, 300, cfg.Chunking.Size)
	assert.Equal(t, 60*time.Second, cfg.Worker.RequestTimeout)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
store: sqlite
db_path: /tmp/index.sqlite
model:
  backend: openai
  host: http://localhost:11434
chunking:
  size: 200
worker:
  request_timeout: 15s
search:
  threshold: 0.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, "/tmp/index.sqlite", cfg.DBPath)
	assert.Equal(t, "openai", cfg.Model.Backend)
	assert.Equal(t, 200, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap, "absent keys keep defaults")
	assert.Equal(t, 15*time.Second, cfg.Worker.RequestTimeout)
	assert.Equal(t, float32(0.5), cfg.Search.Threshold)

	aiCfg := cfg.AIConfig()
	assert.Equal(t, ai.BackendOpenAI, aiCfg.Backend)
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://localhost:11434/v1", aiCfg.EmbeddingHost)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "store: sqlite\nlog_level: warn\n")
	t.Setenv("SEMINDEX_STORE", "badger")
	t.Setenv("SEMINDEX_MODEL_BACKEND", "mock")
	t.Setenv("SEMINDEX_WORKER_CONCURRENCY", "4")
	t.Setenv("SEMINDEX_SEARCH_LIMIT", "12")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreBadger, cfg.Store)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "mock", cfg.Model.Backend)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 12, cfg.Search.Limit)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown store", content: "store: redis"},
		{name: "unknown log level", content: "log_level: loud"},
		{name: "unknown backend", content: "model:\n  backend: quantum"},
		{name: "zero concurrency", content: "worker:\n  concurrency: 0"},
		{name: "malformed yaml", content: "store: [badger"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeFile(t, "chunking:\n  size: 10\n  overlap: 10"))
	assert.ErrorIs(t, err, chunking.ErrInvalidWindow)
}

func TestConfig_Options(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.IndexOptions(), 6)
	assert.Len(t, cfg.SearchOptions(), 2)
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "INFO", "", "warn", "warning", "error"} {
		_, err := ParseLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	cfg.LogFile = filepath.Join(t.TempDir(), "semindex.log")

	logger, closer, err := cfg.NewLogger()
	require.NoError(t, err)
	logger.Debug("hello", "k", "v")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
}

// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config loads settings for the semindex command and HTTP server.
//
// Values are resolved in order: built-in defaults, then a YAML file, then
// environment variables prefixed with SEMINDEX_. Command-line flags are
// applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/semindex"
	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/chunking"
	"github.com/poiesic/semindex/search"
	"github.com/poiesic/semindex/worker"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "SEMINDEX"

// Store names accepted in Config.Store.
const (
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
)

// Config holds every setting of the command and server.
type Config struct {
	// DBPath is the badger directory or the SQLite file.
	// Env: SEMINDEX_DB_PATH (default: semindex.db)
	DBPath string `yaml:"db_path" envconfig:"DB_PATH"`

	// Store selects the persistent store, badger or sqlite.
	// Env: SEMINDEX_STORE (default: badger)
	Store string `yaml:"store" envconfig:"STORE"`

	// LogLevel is one of debug, info, warn, error.
	// Env: SEMINDEX_LOG_LEVEL (default: info)
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	// LogFile, when set, receives logs with size-based rotation.
	// Env: SEMINDEX_LOG_FILE
	LogFile string `yaml:"log_file" envconfig:"LOG_FILE"`

	// QueryCacheSize is the number of cached query vectors.
	// Env: SEMINDEX_QUERY_CACHE_SIZE (default: 256)
	QueryCacheSize int `yaml:"query_cache_size" envconfig:"QUERY_CACHE_SIZE"`

	Model    ModelConfig    `yaml:"model" envconfig:"MODEL"`
	Chunking ChunkingConfig `yaml:"chunking" envconfig:"CHUNKING"`
	Worker   WorkerConfig   `yaml:"worker" envconfig:"WORKER"`
	Search   SearchConfig   `yaml:"search" envconfig:"SEARCH"`
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
}

// ModelConfig selects and locates the embedding model.
type ModelConfig struct {
	// Env: SEMINDEX_MODEL_BACKEND (default: hugot)
	Backend string `yaml:"backend" envconfig:"BACKEND"`
	// Env: SEMINDEX_MODEL_NAME
	Name string `yaml:"name" envconfig:"NAME"`
	// Env: SEMINDEX_MODEL_ONNX_FILE
	OnnxFile string `yaml:"onnx_file" envconfig:"ONNX_FILE"`
	// Env: SEMINDEX_MODEL_DIR
	Dir string `yaml:"dir" envconfig:"DIR"`
	// Env: SEMINDEX_MODEL_HOST
	Host string `yaml:"host" envconfig:"HOST"`
	// Env: SEMINDEX_MODEL_REMOTE_NAME
	RemoteName string `yaml:"remote_name" envconfig:"REMOTE_NAME"`
	// Env: SEMINDEX_MODEL_DIMENSIONS (default: 384)
	Dimensions int `yaml:"dimensions" envconfig:"DIMENSIONS"`
	// Env: SEMINDEX_MODEL_LOAD_RETRIES (default: 3)
	LoadRetries int `yaml:"load_retries" envconfig:"LOAD_RETRIES"`
}

// ChunkingConfig sets the word window for long-form content.
type ChunkingConfig struct {
	// Env: SEMINDEX_CHUNKING_SIZE (default: 300)
	Size int `yaml:"size" envconfig:"SIZE"`
	// Env: SEMINDEX_CHUNKING_OVERLAP (default: 50)
	Overlap int `yaml:"overlap" envconfig:"OVERLAP"`
}

// WorkerConfig bounds the background embedding unit.
type WorkerConfig struct {
	// Env: SEMINDEX_WORKER_REQUEST_TIMEOUT (default: 60s)
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	// Env: SEMINDEX_WORKER_INIT_TIMEOUT (default: 5m)
	InitTimeout time.Duration `yaml:"init_timeout" envconfig:"INIT_TIMEOUT"`
	// Env: SEMINDEX_WORKER_CONCURRENCY (default: 1)
	Concurrency int `yaml:"concurrency" envconfig:"CONCURRENCY"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	// Env: SEMINDEX_SEARCH_LIMIT (default: 5)
	Limit int `yaml:"limit" envconfig:"LIMIT"`
	// Env: SEMINDEX_SEARCH_THRESHOLD (default: 0.3)
	Threshold float32 `yaml:"threshold" envconfig:"THRESHOLD"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Env: SEMINDEX_SERVER_ADDR (default: 127.0.0.1:8080)
	Addr string `yaml:"addr" envconfig:"ADDR"`
	// Env: SEMINDEX_SERVER_REQUEST_TIMEOUT (default: 30s)
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	model := ai.DefaultConfig()
	return &Config{
		DBPath:         "semindex.db",
		Store:          StoreBadger,
		LogLevel:       "info",
		QueryCacheSize: semindex.DefaultQueryCacheSize,
		Model: ModelConfig{
			Backend:     string(model.Backend),
			Name:        model.ModelName,
			OnnxFile:    model.OnnxFile,
			Dir:         model.ModelDir,
			Host:        model.EmbeddingHost,
			RemoteName:  model.EmbeddingModel,
			Dimensions:  model.Dimensions,
			LoadRetries: model.LoadRetries,
		},
		Chunking: ChunkingConfig{
			Size:    chunking.DefaultSize,
			Overlap: chunking.DefaultOverlap,
		},
		Worker: WorkerConfig{
			RequestTimeout: worker.DefaultRequestTimeout,
			InitTimeout:    worker.DefaultInitTimeout,
			Concurrency:    1,
		},
		Search: SearchConfig{
			Limit:     search.DefaultLimit,
			Threshold: search.DefaultThreshold,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			RequestTimeout: 30 * time.Second,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path and the
// environment. A missing file is not an error; an empty path skips it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML decodes the file over the current values, so keys absent from
// the file keep their defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks values that cannot be fixed up later.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreBadger, StoreSQLite:
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Chunking.Size <= c.Chunking.Overlap || c.Chunking.Overlap < 0 {
		return fmt.Errorf("config: %w: size=%d overlap=%d", chunking.ErrInvalidWindow, c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker concurrency must be at least 1")
	}
	if c.Search.Limit < 1 {
		return fmt.Errorf("config: search limit must be at least 1")
	}
	return c.AIConfig().Validate()
}

// AIConfig maps the model section to an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithBackend(ai.Backend(strings.ToLower(c.Model.Backend))),
		ai.WithModelName(c.Model.Name),
		ai.WithOnnxFile(c.Model.OnnxFile),
		ai.WithModelDir(c.Model.Dir),
		ai.WithEmbeddingHost(c.Model.Host),
		ai.WithEmbeddingModel(c.Model.RemoteName),
		ai.WithDimensions(c.Model.Dimensions),
		ai.WithLoadRetries(c.Model.LoadRetries, ai.DefaultConfig().RetryDelay),
	)
}

// IndexOptions returns the semindex options this configuration implies.
// The store is chosen by the caller.
func (c *Config) IndexOptions() []semindex.Option {
	return []semindex.Option{
		semindex.WithAIConfig(c.AIConfig()),
		semindex.WithChunking(c.Chunking.Size, c.Chunking.Overlap),
		semindex.WithRequestTimeout(c.Worker.RequestTimeout),
		semindex.WithInitTimeout(c.Worker.InitTimeout),
		semindex.WithConcurrency(c.Worker.Concurrency),
		semindex.WithQueryCacheSize(c.QueryCacheSize),
	}
}

// SearchOptions returns the configured search defaults.
func (c *Config) SearchOptions() []search.Option {
	return []search.Option{
		search.WithLimit(c.Search.Limit),
		search.WithThreshold(c.Search.Threshold),
	}
}

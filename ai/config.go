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


package ai

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/semindex/core"
)

// Backend selects the implementation that computes embeddings.
type Backend string

const (
	// BackendHugot runs a sentence-transformer model locally through ONNX.
	BackendHugot Backend = "hugot"
	// BackendOpenAI calls an OpenAI-compatible embeddings endpoint.
	BackendOpenAI Backend = "openai"
	// BackendMock produces deterministic vectors without a model. Tests only.
	BackendMock Backend = "mock"
)

// Config holds configuration for the embedding model.
type Config struct {
	// Backend selects the model implementation.
	Backend Backend

	// ModelName is the Hugging Face repository of the local model.
	// Example: "sentence-transformers/all-MiniLM-L6-v2"
	ModelName string

	// OnnxFile is the path of the ONNX graph inside the model repository.
	OnnxFile string

	// ModelDir is where downloaded models are cached.
	ModelDir string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the remote model identifier.
	// Example: "all-minilm", "text-embedding-3-small"
	EmbeddingModel string

	// Dimensions is the vector length every model must produce.
	// Default: 384
	Dimensions int

	// LoadRetries is the number of attempts made to download or reach a model.
	// Default: 3
	LoadRetries int

	// RetryDelay is the base delay between load attempts, doubled each retry.
	RetryDelay time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBackend sets the model backend.
func WithBackend(backend Backend) ConfigOption {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithModelName sets the local model repository name.
func WithModelName(name string) ConfigOption {
	return func(c *Config) {
		c.ModelName = name
	}
}

// WithOnnxFile sets the ONNX file path inside the model repository.
func WithOnnxFile(path string) ConfigOption {
	return func(c *Config) {
		c.OnnxFile = path
	}
}

// WithModelDir sets the model cache directory.
func WithModelDir(dir string) ConfigOption {
	return func(c *Config) {
		c.ModelDir = dir
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the remote embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithDimensions sets the expected vector length.
func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

// WithLoadRetries sets the number of load attempts and the base retry delay.
func WithLoadRetries(attempts int, delay time.Duration) ConfigOption {
	return func(c *Config) {
		c.LoadRetries = attempts
		c.RetryDelay = delay
	}
}

// DefaultConfig returns a Config that runs all-MiniLM-L6-v2 locally.
func DefaultConfig() *Config {
	return &Config{
		Backend:        BackendHugot,
		ModelName:      "sentence-transformers/all-MiniLM-L6-v2",
		OnnxFile:       "onnx/model.onnx",
		ModelDir:       "models",
		EmbeddingHost:  "http://localhost:11434/v1",
		EmbeddingModel: "all-minilm",
		Dimensions:     core.Dimensions,
		LoadRetries:    3,
		RetryDelay:     time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithBackend(BackendOpenAI),
//	    WithEmbeddingHost("http://localhost:11434/v1"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to the embedding host if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
		c.EmbeddingHost = c.EmbeddingHost + "/v1"
	}
	if c.Backend == "" {
		c.Backend = BackendHugot
	}
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Dimensions <= 0 {
		return errors.New("ai config: Dimensions must be positive")
	}
	if c.LoadRetries < 1 {
		return errors.New("ai config: LoadRetries must be at least 1")
	}

	switch c.Backend {
	case BackendHugot:
		if c.ModelName == "" {
			return errors.New("ai config: ModelName is required")
		}
		if c.ModelDir == "" {
			return errors.New("ai config: ModelDir is required")
		}
	case BackendOpenAI:
		if c.EmbeddingHost == "" {
			return errors.New("ai config: EmbeddingHost is required")
		}
		if c.EmbeddingModel == "" {
			return errors.New("ai config: EmbeddingModel is required")
		}
	case BackendMock:
	default:
		return fmt.Errorf("ai config: unknown backend %q", c.Backend)
	}
	return nil
}

package openai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/semindex/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// probeText is embedded once during Load to check connectivity and the
// dimension contract.
const (
	probeText   = "semindex connectivity probe"
	retryJitter = 0.2
)

// Model implements ai.Model using OpenAI-compatible embedding APIs.
type Model struct {
	config   *ai.Config
	mu       sync.RWMutex
	embedder embeddings.Embedder
	logger   *slog.Logger
}

var _ ai.Model = (*Model)(nil)

// newModel is an internal constructor that returns the concrete type.
func newModel(config *ai.Config) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Model{
		config: config,
		logger: slog.Default().With("component", "openai-model"),
	}, nil
}

// NewModel creates an unloaded model using the provided configuration.
//
// Returns ai.Model interface to enforce abstraction.
func NewModel(config *ai.Config) (ai.Model, error) {
	return newModel(config)
}

// Factory returns an ai.ModelFactory creating models from config.
func Factory(config *ai.Config) ai.ModelFactory {
	return func() (ai.Model, error) {
		return NewModel(config)
	}
}

// Load creates the client and embeds a probe text to verify the endpoint
// answers with vectors of the configured length.
func (m *Model) Load(ctx context.Context, report ai.ProgressFunc) error {
	report.Report(ai.Progress{Stage: ai.StageLoad, Percent: 0, Message: m.config.EmbeddingHost})

	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(m.config.EmbeddingHost),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(m.config.EmbeddingModel),
	)
	if err != nil {
		return err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return err
	}

	var probe [][]float32
	err = ai.RetryWithBackoff(ctx, func() error {
		var err error
		probe, err = embedder.EmbedDocuments(ctx, []string{probeText})
		return err
	}, m.config.LoadRetries, m.config.RetryDelay, ai.WithJitter(retryJitter), ai.ReportRetries(report, ai.StageLoad))
	if err != nil {
		m.logger.Error("embedding endpoint unreachable", "host", m.config.EmbeddingHost, "err", err)
		return err
	}
	if len(probe) == 0 {
		return ai.ErrEmptyResult
	}
	if len(probe[0]) != m.config.Dimensions {
		return fmt.Errorf("%w: %s returned %d, want %d",
			ai.ErrDimensionMismatch, m.config.EmbeddingModel, len(probe[0]), m.config.Dimensions)
	}

	m.mu.Lock()
	m.embedder = embedder
	m.mu.Unlock()

	report.Report(ai.Progress{Stage: ai.StageLoad, Percent: 100})
	return nil
}

// EmbedText generates a vector embedding for a single text string.
func (m *Model) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		m.logger.Warn("embedder returned empty result")
		return nil, ai.ErrEmptyResult
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (m *Model) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.RLock()
	embedder := m.embedder
	m.mu.RUnlock()
	if embedder == nil {
		return nil, ai.ErrModelNotLoaded
	}

	m.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		m.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ai.ErrEmptyResult, len(vectors), len(texts))
	}
	return vectors, nil
}

// Dimensions returns the configured vector length.
func (m *Model) Dimensions() int {
	return m.config.Dimensions
}

// Close drops the client. The underlying HTTP client needs no cleanup.
func (m *Model) Close() error {
	m.logger.Debug("closing OpenAI model")
	m.mu.Lock()
	m.embedder = nil
	m.mu.Unlock()
	return nil
}

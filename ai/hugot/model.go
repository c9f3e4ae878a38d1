// Package hugot runs a sentence-transformer embedding model in-process
// through the hugot ONNX pipelines. The default model is
// all-MiniLM-L6-v2, which produces 384 dimensional normalized vectors.
package hugot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/poiesic/semindex/ai"
)

const (
	pipelineName = "semindex-embeddings"
	retryJitter  = 0.2
)

// Model implements ai.Model with a local feature extraction pipeline.
// Inference is serialized; the pipeline is not safe for concurrent use.
type Model struct {
	config   *ai.Config
	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	logger   *slog.Logger
}

var _ ai.Model = (*Model)(nil)

// NewModel creates an unloaded local model. Nothing is downloaded until Load.
func NewModel(config *ai.Config) (ai.Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Model{
		config: config,
		logger: slog.Default().With("component", "hugot-model"),
	}, nil
}

// Factory returns an ai.ModelFactory creating models from config.
func Factory(config *ai.Config) ai.ModelFactory {
	return func() (ai.Model, error) {
		return NewModel(config)
	}
}

// Load downloads the model into the cache directory when it is not there
// yet, then creates the session and pipeline.
func (m *Model) Load(ctx context.Context, report ai.ProgressFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pipeline != nil {
		report.Report(ai.Progress{Stage: ai.StageLoad, Percent: 100})
		return nil
	}

	report.Report(ai.Progress{Stage: ai.StageDownload, Percent: 0, Message: m.config.ModelName})
	path, err := m.ensureDownloaded(ctx, report)
	if err != nil {
		return err
	}
	report.Report(ai.Progress{Stage: ai.StageDownload, Percent: 100, Message: path})

	if err := ctx.Err(); err != nil {
		return err
	}

	report.Report(ai.Progress{Stage: ai.StageLoad, Percent: 0})
	session, err := hugot.NewGoSession()
	if err != nil {
		return fmt.Errorf("create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: path,
		Name:      pipelineName,
		Options: []hugot.FeatureExtractionOption{
			pipelines.WithNormalization(),
		},
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		_ = session.Destroy()
		return fmt.Errorf("create feature extraction pipeline: %w", err)
	}
	report.Report(ai.Progress{Stage: ai.StageLoad, Percent: 50})

	probe, err := pipeline.RunPipeline([]string{"semindex"})
	if err != nil {
		_ = session.Destroy()
		return fmt.Errorf("run probe embedding: %w", err)
	}
	if len(probe.Embeddings) == 0 || len(probe.Embeddings[0]) != m.config.Dimensions {
		_ = session.Destroy()
		got := 0
		if len(probe.Embeddings) > 0 {
			got = len(probe.Embeddings[0])
		}
		return fmt.Errorf("%w: %s produces %d, want %d", ai.ErrDimensionMismatch, m.config.ModelName, got, m.config.Dimensions)
	}

	m.session = session
	m.pipeline = pipeline
	m.logger.Info("model loaded", "model", m.config.ModelName, "path", path)
	report.Report(ai.Progress{Stage: ai.StageLoad, Percent: 100})
	return nil
}

func (m *Model) ensureDownloaded(ctx context.Context, report ai.ProgressFunc) (string, error) {
	path := modelPath(m.config.ModelDir, m.config.ModelName)
	if _, err := os.Stat(filepath.Join(path, "tokenizer.json")); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(m.config.ModelDir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}

	opts := hugot.NewDownloadOptions()
	if m.config.OnnxFile != "" {
		opts.OnnxFilePath = m.config.OnnxFile
	}

	err := ai.RetryWithBackoff(ctx, func() error {
		downloaded, err := hugot.DownloadModel(m.config.ModelName, m.config.ModelDir, opts)
		if err != nil {
			m.logger.Warn("model download failed", "model", m.config.ModelName, "err", err)
			return err
		}
		path = downloaded
		return nil
	}, m.config.LoadRetries, m.config.RetryDelay, ai.WithJitter(retryJitter), ai.ReportRetries(report, ai.StageDownload))
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", m.config.ModelName, err)
	}
	return path, nil
}

// modelPath is the directory hugot downloads a repository into.
func modelPath(dir, name string) string {
	return filepath.Join(dir, strings.ReplaceAll(name, "/", "_"))
}

// EmbedText generates a vector embedding for a single text string.
func (m *Model) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (m *Model) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pipeline == nil {
		return nil, ai.ErrModelNotLoaded
	}

	result, err := m.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("run embedding pipeline: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ai.ErrEmptyResult, len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

// Dimensions returns the configured vector length.
func (m *Model) Dimensions() int {
	return m.config.Dimensions
}

// Close destroys the session.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pipeline = nil
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/core"
)

// MockModel is a test double for ai.Model.
// It allows custom behavior injection via the With*Func methods.
type MockModel struct {
	loadFunc       func(ctx context.Context, report ai.ProgressFunc) error
	embedTextFunc  func(ctx context.Context, text string) ([]float32, error)
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	dims       int
	mu         sync.Mutex
	loadCalls  int
	embedCalls int
	textsSeen  int
	loaded     bool
	closed     bool
}

var _ ai.Model = (*MockModel)(nil)

// NewMockModel creates a mock model producing core.Dimensions long vectors.
// Note: Returns concrete type to allow test assertions.
func NewMockModel() *MockModel {
	return &MockModel{dims: core.Dimensions}
}

// NewMockModelWithDimensions creates a mock model producing dims long vectors.
func NewMockModelWithDimensions(dims int) *MockModel {
	return &MockModel{dims: dims}
}

// Factory returns an ai.ModelFactory that always hands out m.
func (m *MockModel) Factory() ai.ModelFactory {
	return func() (ai.Model, error) {
		return m, nil
	}
}

// WithLoadFunc replaces the default Load behavior.
func (m *MockModel) WithLoadFunc(fn func(ctx context.Context, report ai.ProgressFunc) error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadFunc = fn
	return m
}

// WithEmbedTextFunc replaces the default EmbedText behavior.
func (m *MockModel) WithEmbedTextFunc(fn func(ctx context.Context, text string) ([]float32, error)) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedTextFunc = fn
	return m
}

// WithEmbedTextsFunc replaces the default EmbedTexts behavior.
func (m *MockModel) WithEmbedTextsFunc(fn func(ctx context.Context, texts []string) ([][]float32, error)) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedTextsFunc = fn
	return m
}

// Load reports download and load progress and marks the model loaded.
func (m *MockModel) Load(ctx context.Context, report ai.ProgressFunc) error {
	m.mu.Lock()
	m.loadCalls++
	fn := m.loadFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, report); err != nil {
			return err
		}
	} else {
		report.Report(ai.Progress{Stage: ai.StageDownload, Percent: 0})
		report.Report(ai.Progress{Stage: ai.StageDownload, Percent: 100})
		report.Report(ai.Progress{Stage: ai.StageLoad, Percent: 0})
		report.Report(ai.Progress{Stage: ai.StageLoad, Percent: 100})
	}

	m.mu.Lock()
	m.loaded = true
	m.mu.Unlock()
	return nil
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockModel) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.embedCalls++
	m.textsSeen++
	fn := m.embedTextFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return DeterministicVector(text, m.dims), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockModel) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.embedCalls++
	m.textsSeen += len(texts)
	fn := m.embedTextsFunc
	single := m.embedTextFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if single != nil {
			vec, err := single(ctx, text)
			if err != nil {
				return nil, err
			}
			embeddings[i] = vec
			continue
		}
		embeddings[i] = DeterministicVector(text, m.dims)
	}
	return embeddings, nil
}

// Dimensions returns the configured vector length.
func (m *MockModel) Dimensions() int {
	return m.dims
}

// Close marks the model closed.
func (m *MockModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// LoadCount returns the number of Load calls.
func (m *MockModel) LoadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// CallCount returns the number of EmbedText and EmbedTexts calls.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls
}

// TextCount returns the number of texts embedded across all calls.
func (m *MockModel) TextCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.textsSeen
}

// Loaded reports whether Load completed successfully.
func (m *MockModel) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Closed reports whether Close was called.
func (m *MockModel) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reset clears the counters and custom behavior.
func (m *MockModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls = 0
	m.embedCalls = 0
	m.textsSeen = 0
	m.loaded = false
	m.closed = false
	m.loadFunc = nil
	m.embedTextFunc = nil
	m.embedTextsFunc = nil
}

// DeterministicVector creates a unit-length embedding vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000) / 1000.0
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}

	return vector
}

package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Model is an embedding model that must be loaded before use. A model is
// owned by exactly one worker unit, which loads it at most once.
type Model interface {
	Embedder

	// Load downloads (if needed) and loads the model, reporting progress
	// through report. report may be nil.
	Load(ctx context.Context, report ProgressFunc) error

	// Dimensions returns the length of the vectors the model produces.
	Dimensions() int

	// Close releases resources held by the model.
	Close() error
}

// ModelFactory creates a fresh, unloaded model. It is called each time a
// worker unit is spawned.
type ModelFactory func() (Model, error)

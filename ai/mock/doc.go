// Package mock provides a test double for ai.Model.
//
// The mock lets tests run the full worker protocol without downloading or
// loading a real model, with controlled and deterministic behavior.
//
// # Usage in Tests
//
//	model := mock.NewMockModel().
//	    WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
//	        return []float32{0.1, 0.2, 0.3}, nil
//	    })
//	client, err := worker.NewClient(model.Factory())
//
//	// Check call counts
//	loads := model.LoadCount()
//	embeds := model.CallCount()
//
// # Default Behavior
//
// Load reports download and load progress at 0% and 100% and succeeds.
// EmbedText returns a unit-length vector derived from an FNV hash of the
// text, so equal texts always get equal vectors.
package mock

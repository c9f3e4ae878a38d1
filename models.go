package semindex

import (
	"fmt"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/ai/hugot"
	"github.com/poiesic/semindex/ai/mock"
	"github.com/poiesic/semindex/ai/openai"
)

// NewModelFactory returns the model factory for the configured backend.
func NewModelFactory(cfg *ai.Config) (ai.ModelFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case ai.BackendHugot:
		return hugot.Factory(cfg), nil
	case ai.BackendOpenAI:
		return openai.Factory(cfg), nil
	case ai.BackendMock:
		dims := cfg.Dimensions
		return func() (ai.Model, error) {
			return mock.NewMockModelWithDimensions(dims), nil
		}, nil
	default:
		return nil, fmt.Errorf("ai config: unknown backend %q", cfg.Backend)
	}
}

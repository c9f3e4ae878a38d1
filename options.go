package semindex

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/chunking"
	"github.com/poiesic/semindex/storage"
	"github.com/poiesic/semindex/worker"
)

// DefaultQueryCacheSize is the number of query vectors kept in memory.
const DefaultQueryCacheSize = 256

// Option configures an Index.
type Option func(*options) error

type options struct {
	store          storage.EmbeddingStore
	factory        ai.ModelFactory
	aiConfig       *ai.Config
	chunkSize      int
	chunkOverlap   int
	requestTimeout time.Duration
	initTimeout    time.Duration
	concurrency    int
	queryCacheSize int
	logger         *slog.Logger
}

func defaultOptions() *options {
	return &options{
		aiConfig:       ai.DefaultConfig(),
		chunkSize:      chunking.DefaultSize,
		chunkOverlap:   chunking.DefaultOverlap,
		requestTimeout: worker.DefaultRequestTimeout,
		initTimeout:    worker.DefaultInitTimeout,
		concurrency:    1,
		queryCacheSize: DefaultQueryCacheSize,
		logger:         slog.Default(),
	}
}

// WithStore uses store instead of opening a badger database at the path
// given to Open. The Index takes ownership and closes store on Close.
func WithStore(store storage.EmbeddingStore) Option {
	return func(o *options) error {
		o.store = store
		return nil
	}
}

// WithModelFactory overrides the model built from the AI configuration.
func WithModelFactory(factory ai.ModelFactory) Option {
	return func(o *options) error {
		o.factory = factory
		return nil
	}
}

// WithAIConfig sets the embedding model configuration.
// Default is ai.DefaultConfig().
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("ai config cannot be nil")
		}
		o.aiConfig = cfg
		return nil
	}
}

// WithChunking sets the chunk window in words.
// Default is 300 words with a 50 word overlap.
func WithChunking(size, overlap int) Option {
	return func(o *options) error {
		o.chunkSize = size
		o.chunkOverlap = overlap
		return nil
	}
}

// WithRequestTimeout bounds each embedding request.
// Default is 60 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) error {
		o.requestTimeout = d
		return nil
	}
}

// WithInitTimeout bounds model loading.
// Default is 5 minutes.
func WithInitTimeout(d time.Duration) Option {
	return func(o *options) error {
		o.initTimeout = d
		return nil
	}
}

// WithConcurrency sets how many requests the background unit serves at once.
// Default is 1.
func WithConcurrency(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("concurrency must be at least 1, got %d", n)
		}
		o.concurrency = n
		return nil
	}
}

// WithQueryCacheSize sets how many query vectors are cached.
// Default is 256.
func WithQueryCacheSize(size int) Option {
	return func(o *options) error {
		if size < 1 {
			return fmt.Errorf("query cache size must be at least 1, got %d", size)
		}
		o.queryCacheSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

package search

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/storage"
)

// Source supplies the records a search runs over.
// *cache.VectorCache implements it.
type Source interface {
	Snapshot(ctx context.Context) ([]*core.EmbeddingRecord, error)
	FirstChunk(ctx context.Context, entityType core.EntityType, entityID string) (*core.EmbeddingRecord, error)
}

// Engine runs similarity searches over a record source.
type Engine struct {
	source Source
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a new search engine.
func NewEngine(source Source, opts ...EngineOption) (*Engine, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	e := &Engine{
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// FindSimilar returns the entities whose best chunk is most similar to query.
func (e *Engine) FindSimilar(ctx context.Context, query []float32, opts ...Option) ([]*core.SearchResult, error) {
	return e.search(ctx, query, NewOptions(opts...), nil)
}

// FindSimilarToEntity uses the first chunk of an entity as the query and
// leaves every chunk of that entity out of the results.
func (e *Engine) FindSimilarToEntity(ctx context.Context, entityType core.EntityType, entityID string, opts ...Option) ([]*core.SearchResult, error) {
	source, err := e.source.FirstChunk(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	o := NewOptions(opts...)
	limit := o.Limit
	o.Limit = limit + 1
	exclude := core.EntityKey{Type: entityType, ID: entityID}

	results, err := e.search(ctx, source.Embedding, o, &exclude)
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) search(ctx context.Context, query []float32, o Options, exclude *core.EntityKey) ([]*core.SearchResult, error) {
	if o.Limit < 1 {
		return nil, ErrInvalidLimit
	}
	monitor := o.Monitor
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	records, err := e.source.Snapshot(ctx)
	if err != nil {
		e.logger.Error("error loading records for search", "err", err)
		return nil, err
	}
	monitor.Start(o, len(records))

	// 1. Type allow-list and job scope
	candidates := make([]*core.EmbeddingRecord, 0, len(records))
	for _, r := range records {
		if !o.allows(r.EntityType) {
			continue
		}
		if o.JobID != "" && !storage.MatchesJob(r, o.JobID) {
			continue
		}
		candidates = append(candidates, r)
	}
	monitor.AfterFilter(candidates)

	// 2. Score and threshold, keeping the best chunk of each entity
	best := make(map[core.EntityKey]*core.SearchResult)
	scored := 0
	for _, r := range candidates {
		score, err := CosineSimilarity(query, r.Embedding)
		if err != nil {
			e.logger.Error("stored vector does not match query", "id", r.ID, "err", err)
			return nil, err
		}
		if score < o.Threshold {
			continue
		}
		scored++
		key := r.Key()
		if exclude != nil && key == *exclude {
			continue
		}
		if cur, ok := best[key]; !ok || score > cur.Score || (score == cur.Score && r.Chunk() < cur.Record.Chunk()) {
			best[key] = &core.SearchResult{Record: r, Score: score}
		}
	}
	monitor.AfterThreshold(scored)

	results := make([]*core.SearchResult, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	monitor.AfterDedup(results)

	// 3. Rank
	slices.SortFunc(results, compareResults)
	if len(results) > o.Limit {
		results = results[:o.Limit]
	}
	monitor.Finish(results)

	return results, nil
}

// compareResults orders by score descending, then entity type and id ascending.
func compareResults(a, b *core.SearchResult) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Record.EntityType, b.Record.EntityType); c != 0 {
		return c
	}
	return cmp.Compare(a.Record.EntityID, b.Record.EntityID)
}

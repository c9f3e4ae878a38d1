package semindex

import (
	"context"
	"slices"
	"strings"

	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/search"
)

// EmbedText returns the embedding of text. Results are cached by content
// hash, so repeated queries do not reach the model.
func (idx *Index) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := core.ComputeHash(text)
	if vec, ok := idx.queries.Get(key); ok {
		return slices.Clone(vec), nil
	}

	if err := idx.ready(ctx); err != nil {
		return nil, err
	}
	vec, err := idx.indexer.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	idx.queries.Add(key, vec)
	return slices.Clone(vec), nil
}

// SemanticSearch embeds query and returns the most similar entities.
func (idx *Index) SemanticSearch(ctx context.Context, query string, opts ...search.Option) ([]*core.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	vec, err := idx.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}
	return idx.engine.FindSimilar(ctx, vec, opts...)
}

// FindSimilarJobs returns the jobs most similar to jobID, excluding it.
// It returns core.ErrEntityNotEmbedded if the job has no embedding. A limit
// below 1 means search.DefaultLimit.
func (idx *Index) FindSimilarJobs(ctx context.Context, jobID string, limit int) ([]*core.SearchResult, error) {
	if err := idx.checkOpen(); err != nil {
		return nil, err
	}
	return idx.engine.FindSimilarToEntity(ctx, core.EntityTypeJob, jobID,
		search.WithEntityTypes(core.EntityTypeJob),
		search.WithLimit(limitOrDefault(limit)),
	)
}

// SearchWithinJob searches the job itself and everything it owns. A blank
// jobID returns ErrEmptyJobID rather than searching the whole corpus.
func (idx *Index) SearchWithinJob(ctx context.Context, query, jobID string, opts ...search.Option) ([]*core.SearchResult, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, ErrEmptyJobID
	}
	return idx.SemanticSearch(ctx, query, append(slices.Clone(opts), search.WithJobID(jobID))...)
}

// SearchStories searches stories only.
func (idx *Index) SearchStories(ctx context.Context, query string, limit int) ([]*core.SearchResult, error) {
	return idx.SemanticSearch(ctx, query,
		search.WithEntityTypes(core.EntityTypeStory),
		search.WithLimit(limitOrDefault(limit)),
	)
}

// SearchQAHistory searches Q&A entries across every job.
func (idx *Index) SearchQAHistory(ctx context.Context, query string, limit int) ([]*core.SearchResult, error) {
	return idx.SemanticSearch(ctx, query,
		search.WithEntityTypes(core.EntityTypeQA),
		search.WithLimit(limitOrDefault(limit)),
	)
}

func limitOrDefault(limit int) int {
	if limit < 1 {
		return search.DefaultLimit
	}
	return limit
}

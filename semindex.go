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


// Package semindex indexes job-tracker content as embedding vectors and
// answers semantic similarity queries over it.
//
// An Index owns every moving part: the persistent store, the in-memory
// vector cache, the background embedding unit and the search engine.
//
// Example usage:
//
//	idx, err := semindex.Open("data/semindex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
//
//	if err := idx.Initialize(ctx, nil); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := idx.EmbedJob(ctx, job); err != nil {
//	    log.Fatal(err)
//	}
//	results, err := idx.SemanticSearch(ctx, "distributed systems", search.WithLimit(3))
package semindex

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/cache"
	"github.com/poiesic/semindex/chunking"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/indexing"
	"github.com/poiesic/semindex/search"
	"github.com/poiesic/semindex/storage"
	"github.com/poiesic/semindex/storage/badger"
	"github.com/poiesic/semindex/worker"
)

// Index is an open semantic index.
type Index struct {
	vectors *cache.VectorCache
	client  *worker.Client
	indexer *indexing.Indexer
	engine  *search.Engine
	queries *lru.Cache[string, []float32]
	status  *status
	logger  *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Open opens the badger database at path, or uses the store given with
// WithStore. An empty path opens an in-memory database. No model is loaded
// until Initialize or the first embedding call.
func Open(path string, opts ...Option) (*Index, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if err := o.aiConfig.Validate(); err != nil {
		return nil, err
	}
	logger := o.logger

	chunker, err := chunking.New(o.chunkSize, o.chunkOverlap)
	if err != nil {
		return nil, err
	}

	factory := o.factory
	if factory == nil {
		factory, err = NewModelFactory(o.aiConfig)
		if err != nil {
			return nil, err
		}
	}

	store := o.store
	if store == nil {
		store, err = openBadger(path, o.aiConfig.Dimensions)
		if err != nil {
			return nil, err
		}
	}

	idx := &Index{
		status: newStatus(),
		logger: logger,
		closed: make(chan struct{}),
	}

	idx.client, err = worker.NewClient(factory,
		worker.WithRequestTimeout(o.requestTimeout),
		worker.WithInitTimeout(o.initTimeout),
		worker.WithUnitOptions(worker.WithConcurrency(o.concurrency)),
		worker.WithFatalHandler(idx.onFatal),
		worker.WithLogger(logger.With("component", "worker")),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	idx.vectors = cache.New(store, cache.WithLogger(logger.With("component", "cache")))

	idx.indexer, err = indexing.NewIndexer(idx.client, idx.vectors,
		indexing.WithChunker(chunker),
		indexing.WithLogger(logger),
		indexing.WithReadyFunc(idx.ready),
	)
	if err != nil {
		idx.client.Close()
		idx.vectors.Close()
		return nil, err
	}

	idx.engine, err = search.NewEngine(idx.vectors, search.WithLogger(logger.With("component", "search")))
	if err != nil {
		idx.indexer.Close()
		idx.client.Close()
		idx.vectors.Close()
		return nil, err
	}

	idx.queries, err = lru.New[string, []float32](o.queryCacheSize)
	if err != nil {
		idx.indexer.Close()
		idx.client.Close()
		idx.vectors.Close()
		return nil, err
	}
	return idx, nil
}

func openBadger(path string, dims int) (storage.EmbeddingStore, error) {
	if path == "" {
		return badger.NewMemoryStore(badger.WithDimensions(dims))
	}
	return badger.Open(path, badger.WithDimensions(dims))
}

// Initialize loads the embedding model, or joins a load already in
// progress. onProgress may be nil.
func (idx *Index) Initialize(ctx context.Context, onProgress ai.ProgressFunc) error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	if idx.client.IsReady() {
		return nil
	}

	idx.status.begin()
	err := idx.client.Initialize(ctx, func(p ai.Progress) {
		idx.status.observe(p)
		onProgress.Report(p)
	})
	switch {
	case err == nil:
		idx.status.ready()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// The shared load keeps running for other callers.
	default:
		idx.status.fail(err)
	}
	return err
}

// IsReady reports whether the model is loaded.
func (idx *Index) IsReady() bool {
	return idx.client.IsReady()
}

// Status returns the current model state and record count.
func (idx *Index) Status() StatusSnapshot {
	snap := idx.status.snapshot()
	snap.Ready = snap.Ready && idx.client.IsReady()
	if idx.vectors.Loaded() {
		snap.Records = idx.vectors.Len()
	}
	return snap
}

// Terminate stops the background unit and rejects requests in flight.
// The next call that needs the model starts a new unit.
func (idx *Index) Terminate() error {
	err := idx.client.Terminate()
	idx.status.reset()
	return err
}

// Close stops background work and the model and closes the store.
func (idx *Index) Close() error {
	var err error
	idx.closeOnce.Do(func() {
		close(idx.closed)
		err = errors.Join(
			idx.indexer.Close(),
			idx.client.Close(),
			idx.vectors.Close(),
		)
		if err != nil {
			idx.logger.Error("error closing index", "err", err)
		}
	})
	return err
}

// Indexer returns the indexer, for callers that submit background tasks.
func (idx *Index) Indexer() *indexing.Indexer {
	return idx.indexer
}

// Engine returns the search engine.
func (idx *Index) Engine() *search.Engine {
	return idx.engine
}

// Vectors returns the vector cache.
func (idx *Index) Vectors() *cache.VectorCache {
	return idx.vectors
}

func (idx *Index) onFatal(err error) {
	idx.status.fail(err)
}

func (idx *Index) checkOpen() error {
	select {
	case <-idx.closed:
		return ErrIndexClosed
	default:
		return nil
	}
}

// ready loads the model if needed so that status reflects every load.
func (idx *Index) ready(ctx context.Context) error {
	if idx.client.IsReady() {
		return idx.checkOpen()
	}
	return idx.Initialize(ctx, nil)
}

// EmbedJob embeds a job. It reports whether new embeddings were computed;
// unchanged content is skipped.
func (idx *Index) EmbedJob(ctx context.Context, job core.Job) (bool, error) {
	if err := idx.ready(ctx); err != nil {
		return false, err
	}
	return idx.indexer.EmbedJob(ctx, job)
}

// EmbedStory embeds a story.
func (idx *Index) EmbedStory(ctx context.Context, story core.Story) (bool, error) {
	if err := idx.ready(ctx); err != nil {
		return false, err
	}
	return idx.indexer.EmbedStory(ctx, story)
}

// EmbedQA embeds a Q&A entry of jobID.
func (idx *Index) EmbedQA(ctx context.Context, entry core.QAEntry, jobID string) (bool, error) {
	if err := idx.ready(ctx); err != nil {
		return false, err
	}
	return idx.indexer.EmbedQA(ctx, entry, jobID)
}

// EmbedNote embeds a note of jobID.
func (idx *Index) EmbedNote(ctx context.Context, note core.Note, jobID string) (bool, error) {
	if err := idx.ready(ctx); err != nil {
		return false, err
	}
	return idx.indexer.EmbedNote(ctx, note, jobID)
}

// EmbedDocument embeds a document, optionally through its summary.
func (idx *Index) EmbedDocument(ctx context.Context, doc core.Document, useSummary bool) (bool, error) {
	if err := idx.ready(ctx); err != nil {
		return false, err
	}
	return idx.indexer.EmbedDocument(ctx, doc, useSummary)
}

// EmbedCoverLetter embeds the cover letter of job. Empty header fields are
// taken from job.
func (idx *Index) EmbedCoverLetter(ctx context.Context, letter core.CoverLetter, job *core.Job) (bool, error) {
	if err := idx.ready(ctx); err != nil {
		return false, err
	}
	var jobID string
	if job != nil {
		jobID = job.ID
	}
	return idx.indexer.EmbedCoverLetter(ctx, letter.WithDefaults(job), jobID)
}

// IndexAll embeds a whole corpus, see indexing.Indexer.IndexAll.
func (idx *Index) IndexAll(ctx context.Context, jobs []core.Job, stories []core.Story, documents []core.Document, onProgress indexing.ProgressFunc, opts ...indexing.IndexOption) (*indexing.IndexSummary, error) {
	if err := idx.ready(ctx); err != nil {
		return nil, err
	}
	return idx.indexer.IndexAll(ctx, jobs, stories, documents, onProgress, opts...)
}

// DeleteEntity removes every record of one entity.
func (idx *Index) DeleteEntity(ctx context.Context, entityType core.EntityType, entityID string) error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	return idx.vectors.RemoveByEntity(ctx, entityType, entityID)
}

// DeleteJob removes a job's records and the records of everything it owns.
func (idx *Index) DeleteJob(ctx context.Context, jobID string) error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	return idx.vectors.RemoveByJob(ctx, jobID)
}

// Clear removes every record.
func (idx *Index) Clear(ctx context.Context) error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	return idx.vectors.Clear(ctx)
}

// Counts returns the number of distinct embedded entities per type.
func (idx *Index) Counts(ctx context.Context) (map[core.EntityType]int, error) {
	records, err := idx.vectors.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[core.EntityKey]struct{})
	counts := make(map[core.EntityType]int)
	for _, r := range records {
		if _, ok := seen[r.Key()]; ok {
			continue
		}
		seen[r.Key()] = struct{}{}
		counts[r.EntityType]++
	}
	return counts, nil
}

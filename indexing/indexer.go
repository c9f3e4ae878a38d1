package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/semindex/cache"
	"github.com/poiesic/semindex/chunking"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/extract"
	"github.com/poiesic/semindex/worker"
)

// EmbeddingClient computes the embedding of one text.
// *worker.Client implements it.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string, entityType core.EntityType, entityID string) (*worker.EmbeddingResult, error)
}

var _ EmbeddingClient = (*worker.Client)(nil)

// Indexer embeds entities and keeps their records in the vector cache.
type Indexer struct {
	client  EmbeddingClient
	vectors *cache.VectorCache
	chunker *chunking.Chunker
	pool    *ants.Pool
	logger  *slog.Logger
	now     func() time.Time
	ready   func(ctx context.Context) error

	// Background tasks run under baseCtx and are cancelled on Close.
	baseCtx context.Context
	cancel  context.CancelFunc
	tasks   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithChunker sets the chunker used for long-form content.
// Default is chunking.Default().
func WithChunker(chunker *chunking.Chunker) Option {
	return func(ix *Indexer) error {
		if chunker != nil {
			ix.chunker = chunker
		}
		return nil
	}
}

// WithPoolSize sets the number of background tasks that may run at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(ix *Indexer) error {
		if size < 1 {
			size = 1
		}
		if ix.pool != nil {
			ix.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		ix.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// WithReadyFunc sets a hook that background tasks call before embedding,
// typically to load the model through a status-tracking initializer.
func WithReadyFunc(fn func(ctx context.Context) error) Option {
	return func(ix *Indexer) error {
		ix.ready = fn
		return nil
	}
}

// NewIndexer creates an Indexer that embeds through client and stores
// through vectors.
func NewIndexer(client EmbeddingClient, vectors *cache.VectorCache, opts ...Option) (*Indexer, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if vectors == nil {
		return nil, ErrCacheRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	ix := &Indexer{
		client:  client,
		vectors: vectors,
		chunker: chunking.Default(),
		pool:    pool,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if optErr := opt(ix); optErr != nil {
			ix.pool.Release()
			return nil, optErr
		}
	}
	ix.logger = ix.logger.With("component", "indexer")
	ix.baseCtx, ix.cancel = context.WithCancel(context.Background())
	return ix, nil
}

// Close cancels running background tasks, waits for them to return and
// releases the pool. It does not close the client or the cache.
func (ix *Indexer) Close() error {
	ix.mu.Lock()
	if ix.closed {
		ix.mu.Unlock()
		return nil
	}
	ix.closed = true
	ix.mu.Unlock()

	ix.cancel()
	ix.tasks.Wait()
	ix.pool.Release()
	return nil
}

// EmbedJob embeds a job's title, company and description. It reports
// whether new embeddings were computed.
func (ix *Indexer) EmbedJob(ctx context.Context, job core.Job) (bool, error) {
	return ix.embed(ctx, jobItem(job))
}

// EmbedStory embeds a story.
func (ix *Indexer) EmbedStory(ctx context.Context, story core.Story) (bool, error) {
	return ix.embed(ctx, storyItem(story))
}

// EmbedQA embeds a Q&A entry that belongs to jobID.
func (ix *Indexer) EmbedQA(ctx context.Context, entry core.QAEntry, jobID string) (bool, error) {
	return ix.embed(ctx, qaItem(entry, jobID))
}

// EmbedNote embeds a note that belongs to jobID.
func (ix *Indexer) EmbedNote(ctx context.Context, note core.Note, jobID string) (bool, error) {
	return ix.embed(ctx, noteItem(note, jobID))
}

// EmbedDocument embeds a document, using its summary instead of its full
// text when useSummary is set and a summary exists.
func (ix *Indexer) EmbedDocument(ctx context.Context, doc core.Document, useSummary bool) (bool, error) {
	return ix.embed(ctx, documentItem(doc, useSummary))
}

// EmbedCoverLetter embeds a cover letter that belongs to jobID. The letter's
// header fields should already be filled in, see core.CoverLetter.WithDefaults.
func (ix *Indexer) EmbedCoverLetter(ctx context.Context, letter core.CoverLetter, jobID string) (bool, error) {
	return ix.embed(ctx, coverLetterItem(letter, jobID))
}

// EmbedText embeds arbitrary text that is not stored, such as a search query.
func (ix *Indexer) EmbedText(ctx context.Context, text string) ([]float32, error) {
	res, err := ix.client.Embed(ctx, text, "", "")
	if err != nil {
		return nil, err
	}
	return res.Embedding, nil
}

func (ix *Indexer) embed(ctx context.Context, item Item) (bool, error) {
	out, err := ix.prepare(ctx, item, false)
	if err != nil {
		return false, err
	}
	switch out.state {
	case stateUnchanged:
		ix.logger.Debug("content unchanged, skipping", "entity", item.Key)
		return false, nil
	case stateBlank:
		if err := ix.vectors.RemoveByEntity(ctx, item.Key.Type, item.Key.ID); err != nil {
			return false, fmt.Errorf("remove %s: %w", item.Key, err)
		}
		return false, nil
	}

	if err := ix.vectors.ReplaceEntity(ctx, item.Key.Type, item.Key.ID, out.records); err != nil {
		return false, fmt.Errorf("store %s: %w", item.Key, err)
	}
	ix.logger.Debug("entity embedded", "entity", item.Key, "chunks", len(out.records))
	return true, nil
}

type itemState int

const (
	stateEmbedded itemState = iota
	stateUnchanged
	stateBlank
)

type prepared struct {
	state   itemState
	records []*core.EmbeddingRecord
}

// prepare computes the records for item without writing anything. Unless
// force is set, an item whose stored records carry the same content hash,
// owner and chunk count is reported unchanged and not embedded. Items
// without an ID are rejected before the model is called.
func (ix *Indexer) prepare(ctx context.Context, item Item, force bool) (prepared, error) {
	if item.Key.ID == "" {
		return prepared{}, fmt.Errorf("%s: %w", item.Key.Type, core.ErrEmptyEntityID)
	}
	if extract.IsBlank(item.Text) {
		return prepared{state: stateBlank}, nil
	}

	hash := core.ComputeHash(item.Text)
	chunks := []string{item.Text}
	if item.Key.Type.Chunkable() {
		chunks = ix.chunker.Split(item.Text)
	}

	if !force {
		existing, err := ix.vectors.EntityRecords(ctx, item.Key.Type, item.Key.ID)
		if err != nil {
			return prepared{}, err
		}
		if unchanged(existing, hash, item.ParentJobID, len(chunks)) {
			return prepared{state: stateUnchanged}, nil
		}
	}

	now := ix.now().UTC()
	records := make([]*core.EmbeddingRecord, 0, len(chunks))
	for i, chunk := range chunks {
		res, err := ix.client.Embed(ctx, chunk, item.Key.Type, item.Key.ID)
		if err != nil {
			return prepared{}, fmt.Errorf("embed %s chunk %d: %w", item.Key, i, err)
		}
		if res.EntityID != "" && (res.EntityType != item.Key.Type || res.EntityID != item.Key.ID) {
			return prepared{}, fmt.Errorf("%w: got %s:%s for %s", ErrEmbeddingMismatch, res.EntityType, res.EntityID, item.Key)
		}

		record := &core.EmbeddingRecord{
			EntityType:  item.Key.Type,
			EntityID:    item.Key.ID,
			ParentJobID: item.ParentJobID,
			Embedding:   res.Embedding,
			TextHash:    hash,
			CreatedAt:   now,
		}
		if len(chunks) > 1 {
			index, total := i, len(chunks)
			record.ChunkIndex = &index
			record.ChunkTotal = &total
		}
		record.ID = core.RecordID(record.EntityType, record.EntityID, record.ChunkIndex)
		records = append(records, record)
	}
	return prepared{state: stateEmbedded, records: records}, nil
}

func unchanged(existing []*core.EmbeddingRecord, hash, parentJobID string, chunks int) bool {
	if len(existing) != chunks {
		return false
	}
	for _, r := range existing {
		if r.TextHash != hash || r.ParentJobID != parentJobID {
			return false
		}
	}
	return true
}

// Package cache keeps every embedding record in memory in front of a
// persistent store.
package cache

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/storage"
)

// VectorCache is a write-through cache over a storage.EmbeddingStore. Every
// write goes to the store first and reaches the in-memory map only if the
// store accepted it. VectorCache implements storage.EmbeddingStore itself.
//
// Records returned by read methods are shared and must not be modified.
type VectorCache struct {
	store  storage.EmbeddingStore
	logger *slog.Logger

	writeMu sync.Mutex // serializes mutations and the initial load

	mu       sync.RWMutex
	loaded   bool
	records  map[string]*core.EmbeddingRecord
	byEntity map[core.EntityKey]map[string]*core.EmbeddingRecord
}

var _ storage.EmbeddingStore = (*VectorCache)(nil)

// Option configures a VectorCache.
type Option func(*VectorCache)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *VectorCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an empty, unloaded cache over store.
func New(store storage.EmbeddingStore, opts ...Option) *VectorCache {
	c := &VectorCache{
		store:    store,
		logger:   slog.Default(),
		records:  make(map[string]*core.EmbeddingRecord),
		byEntity: make(map[core.EntityKey]map[string]*core.EmbeddingRecord),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads every record from the store. It runs once; after a failure
// the next call tries again.
func (c *VectorCache) Load(ctx context.Context) error {
	if c.Loaded() {
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.Loaded() {
		return nil
	}

	records, err := c.store.GetAllEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("load embeddings: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]*core.EmbeddingRecord, len(records))
	c.byEntity = make(map[core.EntityKey]map[string]*core.EmbeddingRecord)
	for _, r := range records {
		c.put(r)
	}
	c.loaded = true
	c.logger.Debug("vector cache loaded", "records", len(records))
	return nil
}

// Loaded reports whether Load has completed.
func (c *VectorCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Len returns the number of cached records.
func (c *VectorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Upsert writes one record.
func (c *VectorCache) Upsert(ctx context.Context, record *core.EmbeddingRecord) error {
	return c.UpsertBatch(ctx, []*core.EmbeddingRecord{record})
}

// UpsertBatch writes several records in one store call.
func (c *VectorCache) UpsertBatch(ctx context.Context, records []*core.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.store.SaveEmbeddings(ctx, records); err != nil {
		return err
	}
	c.apply(func() {
		for _, r := range records {
			c.put(r)
		}
	})
	return nil
}

// Remove deletes one record by ID.
func (c *VectorCache) Remove(ctx context.Context, id string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.store.DeleteEmbedding(ctx, id); err != nil {
		return err
	}
	c.apply(func() {
		if r, ok := c.records[id]; ok {
			c.del(r)
		}
	})
	return nil
}

// RemoveByEntity deletes every chunk of one entity.
func (c *VectorCache) RemoveByEntity(ctx context.Context, entityType core.EntityType, entityID string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.removeEntity(ctx, core.EntityKey{Type: entityType, ID: entityID})
}

// RemoveByJob deletes the job's own records and every record whose
// ParentJobID is jobID.
func (c *VectorCache) RemoveByJob(ctx context.Context, jobID string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.store.DeleteEmbeddingsByJob(ctx, jobID); err != nil {
		return err
	}
	c.apply(func() {
		for _, r := range c.records {
			if storage.MatchesJob(r, jobID) {
				c.del(r)
			}
		}
	})
	return nil
}

// ReplaceEntity swaps the stored chunk set of one entity for records. Old
// chunks are deleted before the new ones are written, so a shorter chunk
// set leaves nothing behind.
func (c *VectorCache) ReplaceEntity(ctx context.Context, entityType core.EntityType, entityID string, records []*core.EmbeddingRecord) error {
	return c.ReplaceEntities(ctx, []core.EntityKey{{Type: entityType, ID: entityID}}, records)
}

// ReplaceEntities deletes the chunks of every entity in keys and writes
// records through one store transaction. The cache is only touched once the
// store has committed.
func (c *VectorCache) ReplaceEntities(ctx context.Context, keys []core.EntityKey, records []*core.EmbeddingRecord) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.store.ReplaceEntities(ctx, keys, records); err != nil {
		return err
	}
	c.apply(func() {
		for _, key := range keys {
			for _, r := range c.byEntity[key] {
				c.del(r)
			}
		}
		for _, r := range records {
			c.put(r)
		}
	})
	return nil
}

// Clear deletes every record.
func (c *VectorCache) Clear(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.store.ClearAllEmbeddings(ctx); err != nil {
		return err
	}
	c.apply(func() {
		clear(c.records)
		clear(c.byEntity)
	})
	return nil
}

// Get returns the record with the given ID, or storage.ErrNotFound.
func (c *VectorCache) Get(ctx context.Context, id string) (*core.EmbeddingRecord, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r, nil
}

// EntityRecords returns the records of one entity ordered by chunk index.
func (c *VectorCache) EntityRecords(ctx context.Context, entityType core.EntityType, entityID string) ([]*core.EmbeddingRecord, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	chunks := c.byEntity[core.EntityKey{Type: entityType, ID: entityID}]
	out := make([]*core.EmbeddingRecord, 0, len(chunks))
	for _, r := range chunks {
		out = append(out, r)
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b *core.EmbeddingRecord) int {
		return cmp.Compare(a.Chunk(), b.Chunk())
	})
	return out, nil
}

// FirstChunk returns the entity's lowest-index record, or
// core.ErrEntityNotEmbedded.
func (c *VectorCache) FirstChunk(ctx context.Context, entityType core.EntityType, entityID string) (*core.EmbeddingRecord, error) {
	records, err := c.EntityRecords(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s:%s", core.ErrEntityNotEmbedded, entityType, entityID)
	}
	return records[0], nil
}

// Snapshot returns every cached record ordered by ID.
func (c *VectorCache) Snapshot(ctx context.Context) ([]*core.EmbeddingRecord, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	out := make([]*core.EmbeddingRecord, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r)
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b *core.EmbeddingRecord) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// storage.EmbeddingStore

func (c *VectorCache) GetAllEmbeddings(ctx context.Context) ([]*core.EmbeddingRecord, error) {
	return c.Snapshot(ctx)
}

func (c *VectorCache) SaveEmbedding(ctx context.Context, record *core.EmbeddingRecord) error {
	return c.Upsert(ctx, record)
}

func (c *VectorCache) SaveEmbeddings(ctx context.Context, records []*core.EmbeddingRecord) error {
	return c.UpsertBatch(ctx, records)
}

func (c *VectorCache) DeleteEmbedding(ctx context.Context, id string) error {
	return c.Remove(ctx, id)
}

func (c *VectorCache) DeleteEmbeddingsByEntity(ctx context.Context, entityType core.EntityType, entityID string) error {
	return c.RemoveByEntity(ctx, entityType, entityID)
}

func (c *VectorCache) DeleteEmbeddingsByJob(ctx context.Context, jobID string) error {
	return c.RemoveByJob(ctx, jobID)
}

func (c *VectorCache) ClearAllEmbeddings(ctx context.Context) error {
	return c.Clear(ctx)
}

// Close closes the underlying store.
func (c *VectorCache) Close() error {
	return c.store.Close()
}

// removeEntity requires writeMu.
func (c *VectorCache) removeEntity(ctx context.Context, key core.EntityKey) error {
	if err := c.store.DeleteEmbeddingsByEntity(ctx, key.Type, key.ID); err != nil {
		return err
	}
	c.apply(func() {
		for _, r := range c.byEntity[key] {
			c.del(r)
		}
	})
	return nil
}

// apply runs fn under the write lock. Before the first load the map is not
// authoritative, so mutations are left to Load to pick up from the store.
func (c *VectorCache) apply(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		fn()
	}
}

func (c *VectorCache) put(r *core.EmbeddingRecord) {
	if old, ok := c.records[r.ID]; ok {
		c.del(old)
	}
	c.records[r.ID] = r
	key := r.Key()
	chunks := c.byEntity[key]
	if chunks == nil {
		chunks = make(map[string]*core.EmbeddingRecord)
		c.byEntity[key] = chunks
	}
	chunks[r.ID] = r
}

func (c *VectorCache) del(r *core.EmbeddingRecord) {
	delete(c.records, r.ID)
	key := r.Key()
	if chunks := c.byEntity[key]; chunks != nil {
		delete(chunks, r.ID)
		if len(chunks) == 0 {
			delete(c.byEntity, key)
		}
	}
}

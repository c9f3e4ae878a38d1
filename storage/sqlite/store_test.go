package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("", WithDimensions(3))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func intPtr(v int) *int { return &v }

func record(entityType core.EntityType, entityID, parentJobID string, chunk *int, total int) *core.EmbeddingRecord {
	r := &core.EmbeddingRecord{
		ID:          core.RecordID(entityType, entityID, chunk),
		EntityType:  entityType,
		EntityID:    entityID,
		ParentJobID: parentJobID,
		Embedding:   []float32{0.5, -0.25, 1},
		TextHash:    core.ComputeHash(entityID),
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	if chunk != nil {
		r.ChunkIndex = chunk
		r.ChunkTotal = intPtr(total)
	}
	return r
}

func ids(records []*core.EmbeddingRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunk := record(core.EntityTypeDocument, "d1", "", intPtr(1), 2)
	note := record(core.EntityTypeNote, "n1", "j1", nil, 0)
	require.NoError(t, store.SaveEmbeddings(ctx, []*core.EmbeddingRecord{chunk, note}))

	all, err := store.GetAllEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, chunk, all[0])
	assert.Equal(t, note, all[1])
}

func TestStore_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := record(core.EntityTypeStory, "s1", "", nil, 0)
	require.NoError(t, store.SaveEmbedding(ctx, r))
	r.Embedding = []float32{1, 1, 1}
	require.NoError(t, store.SaveEmbedding(ctx, r))

	all, err := store.GetAllEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []float32{1, 1, 1}, all[0].Embedding)
}

func TestStore_Validation(t *testing.T) {
	store := newTestStore(t)
	bad := record(core.EntityTypeStory, "s1", "", nil, 0)
	bad.Embedding = []float32{1}

	err := store.SaveEmbeddings(context.Background(), []*core.EmbeddingRecord{
		record(core.EntityTypeStory, "s0", "", nil, 0), bad,
	})
	assert.ErrorIs(t, err, storage.ErrInvalidRecord)

	all, err := store.GetAllEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_Deletes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEmbeddings(ctx, []*core.EmbeddingRecord{
		record(core.EntityTypeJob, "j1", "", intPtr(0), 2),
		record(core.EntityTypeJob, "j1", "", intPtr(1), 2),
		record(core.EntityTypeNote, "n1", "j1", nil, 0),
		record(core.EntityTypeCoverLetter, "c1", "j1", nil, 0),
		record(core.EntityTypeJob, "j2", "", nil, 0),
		record(core.EntityTypeDocument, "d1", "", intPtr(0), 2),
		record(core.EntityTypeDocument, "d1", "", intPtr(1), 2),
		record(core.EntityTypeStory, "s1", "", nil, 0),
	}))

	require.NoError(t, store.DeleteEmbeddingsByJob(ctx, "j1"))
	require.NoError(t, store.DeleteEmbeddingsByEntity(ctx, core.EntityTypeDocument, "d1"))
	require.NoError(t, store.DeleteEmbedding(ctx, "story:s1"))
	require.NoError(t, store.DeleteEmbedding(ctx, "story:s1"))

	all, err := store.GetAllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job:j2"}, ids(all))

	require.NoError(t, store.ClearAllEmbeddings(ctx))
	all, err = store.GetAllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "index.db")
	ctx := context.Background()

	store, err := Open(path, WithDimensions(3))
	require.NoError(t, err)
	require.NoError(t, store.SaveEmbedding(ctx, record(core.EntityTypeQA, "q1", "j1", nil, 0)))
	require.NoError(t, store.Close())

	store, err = Open(path, WithDimensions(3))
	require.NoError(t, err)
	defer store.Close()

	all, err := store.GetAllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"qa:q1"}, ids(all))
}

func TestStore_Closed(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.GetAllEmbeddings(context.Background())
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, store.ClearAllEmbeddings(context.Background()), storage.ErrStorageClosed)
}

func TestStore_ReplaceEntities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveEmbeddings(ctx, []*core.EmbeddingRecord{
		record(core.EntityTypeJob, "j1", "", intPtr(0), 2),
		record(core.EntityTypeJob, "j1", "", intPtr(1), 2),
		record(core.EntityTypeStory, "s1", "", nil, 0),
	}))
	keys := []core.EntityKey{{Type: core.EntityTypeJob, ID: "j1"}}

	bad := record(core.EntityTypeCoverLetter, "", "j1", nil, 0)
	err := store.ReplaceEntities(ctx, keys, []*core.EmbeddingRecord{record(core.EntityTypeJob, "j1", "", nil, 0), bad})
	require.ErrorIs(t, err, storage.ErrInvalidRecord)
	all, err := store.GetAllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job:j1#0", "job:j1#1", "story:s1"}, ids(all))

	require.NoError(t, store.ReplaceEntities(ctx, keys, []*core.EmbeddingRecord{record(core.EntityTypeJob, "j1", "", nil, 0)}))
	all, err = store.GetAllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job:j1", "story:s1"}, ids(all))
}

package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/semindex/core"
)

type sliceSource struct {
	records []*core.EmbeddingRecord
	err     error
}

func (s *sliceSource) Snapshot(ctx context.Context) ([]*core.EmbeddingRecord, error) {
	return s.records, s.err
}

func (s *sliceSource) FirstChunk(ctx context.Context, entityType core.EntityType, entityID string) (*core.EmbeddingRecord, error) {
	var first *core.EmbeddingRecord
	for _, r := range s.records {
		if r.EntityType == entityType && r.EntityID == entityID && (first == nil || r.Chunk() < first.Chunk()) {
			first = r
		}
	}
	if first == nil {
		return nil, fmt.Errorf("%w: %s:%s", core.ErrEntityNotEmbedded, entityType, entityID)
	}
	return first, nil
}

// at returns a unit vector whose cosine with [1, 0] is score.
func at(score float64) []float32 {
	return []float32{float32(score), float32(math.Sqrt(1 - score*score))}
}

var query = []float32{1, 0}

func intPtr(v int) *int { return &v }

func rec(entityType core.EntityType, entityID, parentJobID string, chunk *int, vec []float32) *core.EmbeddingRecord {
	return &core.EmbeddingRecord{
		ID:          core.RecordID(entityType, entityID, chunk),
		EntityType:  entityType,
		EntityID:    entityID,
		ParentJobID: parentJobID,
		ChunkIndex:  chunk,
		Embedding:   vec,
	}
}

func newEngine(t *testing.T, records ...*core.EmbeddingRecord) *Engine {
	t.Helper()
	engine, err := NewEngine(&sliceSource{records: records})
	require.NoError(t, err)
	return engine
}

func keys(results []*core.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Record.Key().String()
	}
	return out
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical vectors", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, s, 1e-6)
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
		require.NoError(t, err)
		assert.InDelta(t, 0.0, s, 1e-6)
	})

	t.Run("opposite vectors", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{1, 1}, []float32{-2, -2})
		require.NoError(t, err)
		assert.InDelta(t, -1.0, s, 1e-6)
	})

	t.Run("scale invariant", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{3, 4}, []float32{6, 8})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, s, 1e-6)
	})

	t.Run("zero vector yields zero", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1})
		require.NoError(t, err)
		assert.Equal(t, float32(0), s)
		assert.False(t, math.IsNaN(float64(s)))
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestNewEngine(t *testing.T) {
	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ErrSourceRequired)

	engine, err := NewEngine(&sliceSource{}, WithLogger(nil))
	require.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestFindSimilar_TypeFilter(t *testing.T) {
	engine := newEngine(t,
		rec(core.EntityTypeStory, "s1", "", nil, at(0.7)),
		rec(core.EntityTypeJob, "j1", "", nil, at(0.9)),
	)

	results, err := engine.FindSimilar(context.Background(), query,
		WithEntityTypes(core.EntityTypeStory), WithThreshold(0.5))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "story:s1", results[0].Record.Key().String())
	assert.InDelta(t, 0.7, results[0].Score, 1e-5)
}

func TestFindSimilar_ThresholdAndLimit(t *testing.T) {
	engine := newEngine(t,
		rec(core.EntityTypeNote, "n1", "", nil, at(0.95)),
		rec(core.EntityTypeNote, "n2", "", nil, at(0.8)),
		rec(core.EntityTypeNote, "n3", "", nil, at(0.6)),
		rec(core.EntityTypeNote, "n4", "", nil, at(0.31)),
		rec(core.EntityTypeNote, "n5", "", nil, at(0.29)),
	)

	results, err := engine.FindSimilar(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, []string{"note:n1", "note:n2", "note:n3", "note:n4"}, keys(results))

	results, err = engine.FindSimilar(context.Background(), query, WithLimit(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"note:n1", "note:n2"}, keys(results))

	_, err = engine.FindSimilar(context.Background(), query, WithLimit(0))
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestFindSimilar_DedupKeepsBestChunk(t *testing.T) {
	engine := newEngine(t,
		rec(core.EntityTypeDocument, "d1", "", intPtr(0), at(0.5)),
		rec(core.EntityTypeDocument, "d1", "", intPtr(1), at(0.9)),
		rec(core.EntityTypeDocument, "d1", "", intPtr(2), at(0.7)),
		rec(core.EntityTypeDocument, "d2", "", nil, at(0.8)),
	)

	results, err := engine.FindSimilar(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc:d1#1", results[0].Record.ID)
	assert.InDelta(t, 0.9, results[0].Score, 1e-5)
	assert.Equal(t, "doc:d2", results[1].Record.ID)
}

func TestFindSimilar_JobScope(t *testing.T) {
	engine := newEngine(t,
		rec(core.EntityTypeJob, "j1", "", nil, at(0.9)),
		rec(core.EntityTypeNote, "n1", "j1", nil, at(0.8)),
		rec(core.EntityTypeQA, "q1", "j1", nil, at(0.7)),
		rec(core.EntityTypeNote, "n2", "j2", nil, at(0.95)),
		rec(core.EntityTypeJob, "j2", "", nil, at(0.99)),
	)

	results, err := engine.FindSimilar(context.Background(), query, WithJobID("j1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"job:j1", "note:n1", "qa:q1"}, keys(results))

	results, err = engine.FindSimilar(context.Background(), query,
		WithJobID("j1"), WithEntityTypes(core.EntityTypeNote, core.EntityTypeQA))
	require.NoError(t, err)
	assert.Equal(t, []string{"note:n1", "qa:q1"}, keys(results))
}

func TestFindSimilar_DeterministicTies(t *testing.T) {
	vec := at(0.8)
	engine := newEngine(t,
		rec(core.EntityTypeStory, "b", "", nil, vec),
		rec(core.EntityTypeNote, "z", "", nil, vec),
		rec(core.EntityTypeStory, "a", "", nil, vec),
		rec(core.EntityTypeJob, "m", "", nil, vec),
	)

	for range 5 {
		results, err := engine.FindSimilar(context.Background(), query)
		require.NoError(t, err)
		assert.Equal(t, []string{"job:m", "note:z", "story:a", "story:b"}, keys(results))
	}
}

func TestFindSimilar_Errors(t *testing.T) {
	t.Run("dimension mismatch propagates", func(t *testing.T) {
		engine := newEngine(t, rec(core.EntityTypeNote, "n1", "", nil, []float32{1, 0, 0}))
		_, err := engine.FindSimilar(context.Background(), query)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("source failure propagates", func(t *testing.T) {
		boom := errors.New("load failed")
		engine, err := NewEngine(&sliceSource{err: boom})
		require.NoError(t, err)
		_, err = engine.FindSimilar(context.Background(), query)
		assert.ErrorIs(t, err, boom)
	})
}

func TestFindSimilarToEntity(t *testing.T) {
	engine := newEngine(t,
		rec(core.EntityTypeJob, "j1", "", intPtr(0), at(1)),
		rec(core.EntityTypeJob, "j1", "", intPtr(1), at(0.99)),
		rec(core.EntityTypeJob, "j2", "", nil, at(0.9)),
		rec(core.EntityTypeJob, "j3", "", nil, at(0.8)),
		rec(core.EntityTypeJob, "j4", "", nil, at(0.7)),
		rec(core.EntityTypeStory, "s1", "", nil, at(0.95)),
	)

	results, err := engine.FindSimilarToEntity(context.Background(), core.EntityTypeJob, "j1",
		WithEntityTypes(core.EntityTypeJob), WithLimit(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"job:j2", "job:j3"}, keys(results))

	_, err = engine.FindSimilarToEntity(context.Background(), core.EntityTypeJob, "missing")
	assert.ErrorIs(t, err, core.ErrEntityNotEmbedded)
}

type recordingMonitor struct {
	stages []string
}

func (m *recordingMonitor) Start(_ Options, _ int)                { m.stages = append(m.stages, "start") }
func (m *recordingMonitor) AfterFilter(_ []*core.EmbeddingRecord) { m.stages = append(m.stages, "filter") }
func (m *recordingMonitor) AfterThreshold(_ int)                  { m.stages = append(m.stages, "threshold") }
func (m *recordingMonitor) AfterDedup(_ []*core.SearchResult)     { m.stages = append(m.stages, "dedup") }
func (m *recordingMonitor) Finish(_ []*core.SearchResult)         { m.stages = append(m.stages, "finish") }

func TestFindSimilar_Monitor(t *testing.T) {
	engine := newEngine(t, rec(core.EntityTypeNote, "n1", "", nil, at(0.9)))
	m := &recordingMonitor{}

	_, err := engine.FindSimilar(context.Background(), query, WithMonitor(m))
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "filter", "threshold", "dedup", "finish"}, m.stages)

	_, err = engine.FindSimilar(context.Background(), query, WithMonitor(&LogMonitor{}))
	require.NoError(t, err)
}

package semindex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/ai/mock"
	"github.com/poiesic/semindex/chunking"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/search"
	"github.com/poiesic/semindex/worker"
)

const testDims = 8

func newTestIndex(t *testing.T, opts ...Option) (*Index, *mock.MockModel) {
	t.Helper()
	model := mock.NewMockModelWithDimensions(testDims)
	base := []Option{
		WithAIConfig(ai.NewConfig(ai.WithBackend(ai.BackendMock), ai.WithDimensions(testDims))),
		WithModelFactory(model.Factory()),
	}
	idx, err := Open("", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx, model
}

func testCorpus() ([]core.Job, []core.Story, []core.Document) {
	jobs := []core.Job{
		{
			ID:          "j1",
			Title:       "Backend Engineer",
			Company:     "Acme",
			Description: "Design and operate Go services.",
			Notes:       []core.Note{{ID: "n1", Content: "Hiring manager likes Kafka"}},
			QAEntries:   []core.QAEntry{{ID: "q1", Question: "Why Acme?", Answer: "Payments at scale."}},
		},
		{ID: "j2", Title: "Data Engineer", Company: "Globex", Description: "Pipelines in Spark."},
		{ID: "j3", Title: "Platform Engineer", Company: "Initech", Description: "Kubernetes and Terraform."},
	}
	stories := []core.Story{
		{ID: "s1", Question: "Tell me about a failure", Answer: "I shipped a migration without a rollback plan."},
		{ID: "s2", Question: "Leadership", Answer: "I mentored two juniors into owners."},
	}
	docs := []core.Document{{ID: "d1", Name: "Resume", Text: "Go, Postgres, AWS."}}
	return jobs, stories, docs
}

func TestOpen(t *testing.T) {
	t.Run("on disk", func(t *testing.T) {
		model := mock.NewMockModelWithDimensions(testDims)
		idx, err := Open(filepath.Join(t.TempDir(), "db"),
			WithAIConfig(ai.NewConfig(ai.WithBackend(ai.BackendMock), ai.WithDimensions(testDims))),
			WithModelFactory(model.Factory()))
		require.NoError(t, err)
		assert.NotNil(t, idx.Indexer())
		assert.NotNil(t, idx.Engine())
		assert.NotNil(t, idx.Vectors())
		assert.NoError(t, idx.Close())
		assert.NoError(t, idx.Close())
	})

	t.Run("invalid path", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(file, []byte("test"), 0644))

		idx, err := Open(file, WithAIConfig(ai.NewConfig(ai.WithBackend(ai.BackendMock))))
		assert.Error(t, err)
		assert.Nil(t, idx)
	})

	t.Run("invalid chunking", func(t *testing.T) {
		_, err := Open("", WithAIConfig(ai.NewConfig(ai.WithBackend(ai.BackendMock))), WithChunking(50, 50))
		assert.ErrorIs(t, err, chunking.ErrInvalidWindow)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := Open("", WithConcurrency(0))
		assert.Error(t, err)
		_, err = Open("", WithQueryCacheSize(0))
		assert.Error(t, err)
		_, err = Open("", WithAIConfig(nil))
		assert.Error(t, err)
		_, err = Open("", WithAIConfig(ai.NewConfig(ai.WithBackend("quantum"))))
		assert.Error(t, err)
	})
}

func TestIndex_StatusLifecycle(t *testing.T) {
	idx, model := newTestIndex(t)
	ctx := context.Background()

	snap := idx.Status()
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Ready)
	assert.False(t, idx.IsReady())

	var stages []ai.Stage
	require.NoError(t, idx.Initialize(ctx, func(p ai.Progress) { stages = append(stages, p.Stage) }))
	assert.Contains(t, stages, ai.StageLoad)

	snap = idx.Status()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, ai.StageReady, snap.Stage)
	assert.Equal(t, 100.0, snap.Progress)
	assert.True(t, snap.Ready)
	assert.Empty(t, snap.Error)

	require.NoError(t, idx.Initialize(ctx, nil))
	assert.Equal(t, 1, model.LoadCount())

	_, err := idx.EmbedStory(ctx, core.Story{ID: "s1", Question: "q", Answer: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Status().Records)
}

func TestIndex_InitializeFailureAndRetry(t *testing.T) {
	idx, model := newTestIndex(t)
	ctx := context.Background()
	model.WithLoadFunc(func(ctx context.Context, report ai.ProgressFunc) error {
		return errors.New("weights corrupted")
	})

	err := idx.Initialize(ctx, nil)
	require.ErrorIs(t, err, worker.ErrModelLoad)

	snap := idx.Status()
	assert.Equal(t, StateError, snap.State)
	assert.Contains(t, snap.Error, "weights corrupted")
	assert.False(t, snap.Ready)

	model.WithLoadFunc(nil)
	require.NoError(t, idx.Initialize(ctx, nil))
	assert.Equal(t, StateReady, idx.Status().State)
	assert.Equal(t, 2, model.LoadCount())
}

func TestIndex_ConcurrentInitializeLoadsOnce(t *testing.T) {
	idx, model := newTestIndex(t)
	release := make(chan struct{})
	model.WithLoadFunc(func(ctx context.Context, report ai.ProgressFunc) error {
		<-release
		return nil
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = idx.Initialize(context.Background(), nil)
		}()
	}
	assert.Eventually(t, func() bool { return model.LoadCount() == 1 }, timeout, tick)
	close(release)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, 1, model.LoadCount())
}

func TestIndex_SemanticSearch(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	jobs, stories, docs := testCorpus()

	summary, err := idx.IndexAll(ctx, jobs, stories, docs, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Records)

	// The extracted text of s1 is its own nearest neighbour.
	results, err := idx.SemanticSearch(ctx, "Tell me about a failure\n\nI shipped a migration without a rollback plan.",
		search.WithThreshold(-1), search.WithLimit(3))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "story:s1", results[0].Record.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.LessOrEqual(t, len(results), 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	_, err = idx.SemanticSearch(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestIndex_ScopedSearches(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	jobs, stories, docs := testCorpus()
	_, err := idx.IndexAll(ctx, jobs, stories, docs, nil)
	require.NoError(t, err)

	all := search.WithThreshold(-1)

	results, err := idx.SearchWithinJob(ctx, "kafka", "j1", all, search.WithLimit(10))
	require.NoError(t, err)
	assert.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Record.EntityID == "j1" || r.Record.ParentJobID == "j1", r.Record.ID)
	}

	results, err = idx.SearchStories(ctx, "leadership", 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, core.EntityTypeStory, r.Record.EntityType)
	}

	results, err = idx.SearchQAHistory(ctx, "why this company", 0)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, core.EntityTypeQA, r.Record.EntityType)
	}
}

func TestIndex_FindSimilarJobs(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	jobs, _, _ := testCorpus()
	// Identical text makes j4 a perfect match for j1.
	twin := jobs[0]
	twin.ID = "j4"
	twin.Notes, twin.QAEntries = nil, nil
	jobs = append(jobs, twin)

	_, err := idx.IndexAll(ctx, jobs, nil, nil, nil)
	require.NoError(t, err)

	results, err := idx.FindSimilarJobs(ctx, "j1", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "j4", results[0].Record.EntityID)
	for _, r := range results {
		assert.NotEqual(t, "j1", r.Record.EntityID)
		assert.Equal(t, core.EntityTypeJob, r.Record.EntityType)
	}

	_, err = idx.FindSimilarJobs(ctx, "missing", 0)
	assert.ErrorIs(t, err, core.ErrEntityNotEmbedded)
}

func TestIndex_QueryCache(t *testing.T) {
	idx, model := newTestIndex(t, WithQueryCacheSize(2))
	ctx := context.Background()

	v1, err := idx.EmbedText(ctx, "golang")
	require.NoError(t, err)
	calls := model.CallCount()

	v2, err := idx.EmbedText(ctx, "golang")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, calls, model.CallCount(), "second lookup is served from the cache")

	v2[0] = 42
	v3, err := idx.EmbedText(ctx, "golang")
	require.NoError(t, err)
	assert.Equal(t, v1, v3, "callers cannot corrupt cached vectors")
}

func TestIndex_Deletes(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	jobs, stories, docs := testCorpus()
	_, err := idx.IndexAll(ctx, jobs, stories, docs, nil)
	require.NoError(t, err)

	counts, err := idx.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[core.EntityType]int{
		core.EntityTypeJob:      3,
		core.EntityTypeNote:     1,
		core.EntityTypeQA:       1,
		core.EntityTypeStory:    2,
		core.EntityTypeDocument: 1,
	}, counts)

	require.NoError(t, idx.DeleteJob(ctx, "j1"))
	counts, err = idx.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[core.EntityTypeJob])
	assert.Zero(t, counts[core.EntityTypeNote])
	assert.Zero(t, counts[core.EntityTypeQA])

	require.NoError(t, idx.DeleteEntity(ctx, core.EntityTypeStory, "s1"))
	counts, err = idx.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[core.EntityTypeStory])

	require.NoError(t, idx.Clear(ctx))
	assert.Equal(t, 0, idx.Status().Records)
}

func TestIndex_CoverLetterDefaults(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	job := &core.Job{ID: "j1", Title: "SRE", Company: "Acme"}

	embedded, err := idx.EmbedCoverLetter(ctx, core.CoverLetter{ID: "c1", Content: "Hello"}, job)
	require.NoError(t, err)
	assert.True(t, embedded)

	r, err := idx.Vectors().Get(ctx, "coverLetter:c1")
	require.NoError(t, err)
	assert.Equal(t, "j1", r.ParentJobID)
	assert.Equal(t, core.ComputeHash("Cover letter: SRE at Acme\n\nHello"), r.TextHash)
}

func TestIndex_TerminateAndClose(t *testing.T) {
	idx, model := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Initialize(ctx, nil))
	require.NoError(t, idx.Terminate())
	assert.Equal(t, StateIdle, idx.Status().State)
	assert.False(t, idx.IsReady())

	_, err := idx.EmbedNote(ctx, core.Note{ID: "n1", Content: "follow up"}, "j1")
	require.NoError(t, err)
	assert.Equal(t, 2, model.LoadCount(), "a new unit loads the model again")
	assert.Equal(t, StateReady, idx.Status().State)

	require.NoError(t, idx.Close())
	assert.ErrorIs(t, idx.Initialize(ctx, nil), ErrIndexClosed)
	_, err = idx.EmbedJob(ctx, core.Job{ID: "j9", Title: "x"})
	assert.ErrorIs(t, err, ErrIndexClosed)
	assert.ErrorIs(t, idx.Clear(ctx), ErrIndexClosed)
}

func TestNewModelFactory(t *testing.T) {
	factory, err := NewModelFactory(ai.NewConfig(ai.WithBackend(ai.BackendMock), ai.WithDimensions(4)))
	require.NoError(t, err)
	model, err := factory()
	require.NoError(t, err)
	assert.Equal(t, 4, model.Dimensions())

	_, err = NewModelFactory(ai.NewConfig(ai.WithBackend(ai.BackendOpenAI)))
	assert.NoError(t, err)

	_, err = NewModelFactory(ai.NewConfig(ai.WithBackend("quantum")))
	assert.Error(t, err)
}

func TestIndex_BackgroundTaskTracksStatus(t *testing.T) {
	t.Run("load succeeds", func(t *testing.T) {
		idx, model := newTestIndex(t)

		task, err := idx.Indexer().SubmitJob(core.Job{ID: "j1", Title: "SRE", Company: "Globex"})
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		require.NoError(t, task.Wait(ctx))

		snap := idx.Status()
		assert.Equal(t, StateReady, snap.State)
		assert.True(t, snap.Ready)
		assert.Equal(t, 1, snap.Records)
		assert.Equal(t, 1, model.LoadCount())
	})

	t.Run("load fails", func(t *testing.T) {
		idx, model := newTestIndex(t)
		model.WithLoadFunc(func(ctx context.Context, report ai.ProgressFunc) error {
			return errors.New("weights corrupted")
		})

		task, err := idx.Indexer().SubmitStory(core.Story{ID: "s1", Question: "q", Answer: "a"})
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		require.ErrorIs(t, task.Wait(ctx), worker.ErrModelLoad)

		snap := idx.Status()
		assert.Equal(t, StateError, snap.State)
		assert.Contains(t, snap.Error, "weights corrupted")
	})
}

func TestIndex_SearchWithinJobRequiresJobID(t *testing.T) {
	idx, model := newTestIndex(t)
	ctx := context.Background()
	jobs, stories, docs := testCorpus()
	_, err := idx.IndexAll(ctx, jobs, stories, docs, nil)
	require.NoError(t, err)
	calls := model.CallCount()

	for _, jobID := range []string{"", "   "} {
		results, err := idx.SearchWithinJob(ctx, "kafka", jobID, search.WithThreshold(-1))
		assert.ErrorIs(t, err, ErrEmptyJobID)
		assert.Nil(t, results)
	}
	assert.Equal(t, calls, model.CallCount(), "no query is embedded for a blank job id")
}

package indexing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/semindex/core"
)

func corpus() ([]core.Job, []core.Story, []core.Document) {
	jobs := []core.Job{
		{
			ID:          "j1",
			Title:       "Backend Engineer",
			Company:     "Acme",
			Description: "Build APIs in Go.",
			Notes:       []core.Note{{ID: "n1", Content: "Referral from Sam"}},
			QAEntries:   []core.QAEntry{{ID: "q1", Question: "Why Acme?", Answer: "Their API platform."}},
			CoverLetter: &core.CoverLetter{ID: "c1", Content: "Dear Acme"},
		},
		{ID: "j2", Title: "SRE", Company: "Globex", Description: "Keep things up."},
	}
	stories := []core.Story{{ID: "s1", Question: "A failure?", Answer: "Outage in 2021."}}
	docs := []core.Document{{ID: "d1", Name: "Resume", Text: "Go, Kubernetes, Postgres."}}
	return jobs, stories, docs
}

func keysOf(items []Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Key.String()
	}
	return out
}

func TestWorklist(t *testing.T) {
	jobs, stories, docs := corpus()
	items := Worklist(jobs, stories, docs, false)

	assert.Equal(t, []string{
		"job:j1", "note:n1", "qa:q1", "coverLetter:c1",
		"job:j2",
		"story:s1",
		"doc:d1",
	}, keysOf(items))

	byKey := make(map[string]Item)
	for _, item := range items {
		byKey[item.Key.String()] = item
	}
	assert.Equal(t, "j1", byKey["note:n1"].ParentJobID)
	assert.Equal(t, "j1", byKey["qa:q1"].ParentJobID)
	assert.Equal(t, "j1", byKey["coverLetter:c1"].ParentJobID)
	assert.Empty(t, byKey["job:j1"].ParentJobID)
	assert.Equal(t, "Cover letter: Backend Engineer at Acme\n\nDear Acme", byKey["coverLetter:c1"].Text)
}

func TestIndexAll(t *testing.T) {
	ix, client, vectors := newTestIndexer(t)
	ctx := context.Background()
	jobs, stories, docs := corpus()

	var progress []Progress
	var embeddedBefore []int
	summary, err := ix.IndexAll(ctx, jobs, stories, docs, func(p Progress) {
		progress = append(progress, p)
		embeddedBefore = append(embeddedBefore, client.count())
	})
	require.NoError(t, err)

	assert.Equal(t, 7, summary.Items)
	assert.Equal(t, 7, summary.Embedded)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 7, summary.Records)
	assert.Equal(t, 7, vectors.Len())

	require.Len(t, progress, 7)
	for i, p := range progress {
		assert.Equal(t, i+1, p.Current)
		assert.Equal(t, 7, p.Total)
		assert.Equal(t, i, embeddedBefore[i], "progress fires before the item is processed")
	}
	assert.Equal(t, core.EntityKey{Type: core.EntityTypeDocument, ID: "d1"}, progress[6].Key)

	r, err := vectors.Get(ctx, "note:n1")
	require.NoError(t, err)
	assert.Equal(t, "j1", r.ParentJobID)
}

func TestIndexAll_SkipsUnchangedUnlessForced(t *testing.T) {
	ix, client, vectors := newTestIndexer(t)
	ctx := context.Background()
	jobs, stories, docs := corpus()

	_, err := ix.IndexAll(ctx, jobs, stories, docs, nil)
	require.NoError(t, err)
	require.Equal(t, 7, client.count())

	jobs[1].Description = "Keep things up and fast."
	summary, err := ix.IndexAll(ctx, jobs, stories, docs, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Embedded)
	assert.Equal(t, 6, summary.Skipped)
	assert.Equal(t, 8, client.count())

	summary, err = ix.IndexAll(ctx, jobs, stories, docs, nil, WithForceReindex())
	require.NoError(t, err)
	assert.Equal(t, 7, summary.Embedded)
	assert.Equal(t, 15, client.count())
	assert.Equal(t, 7, vectors.Len())
}

func TestIndexAll_BlankItemsRemoveRecords(t *testing.T) {
	ix, _, vectors := newTestIndexer(t)
	ctx := context.Background()
	jobs, stories, docs := corpus()

	_, err := ix.IndexAll(ctx, jobs, stories, docs, nil)
	require.NoError(t, err)

	jobs[0].Notes[0].Content = ""
	summary, err := ix.IndexAll(ctx, jobs, stories, docs, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Blank)
	assert.Equal(t, 6, vectors.Len())

	_, err = vectors.Get(ctx, "note:n1")
	assert.Error(t, err)
}

func TestIndexAll_CancelledRunWritesNothing(t *testing.T) {
	ix, client, vectors := newTestIndexer(t)
	jobs, stories, docs := corpus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := ix.IndexAll(ctx, jobs, stories, docs, func(p Progress) {
		if p.Current == 3 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, client.count())
	assert.Equal(t, 0, vectors.Len())
}

func TestIndexAll_FailedItemWritesNothing(t *testing.T) {
	ix, client, vectors := newTestIndexer(t)
	client.failOn = "Outage"
	jobs, stories, docs := corpus()

	summary, err := ix.IndexAll(context.Background(), jobs, stories, docs, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "story:s1")
	assert.Equal(t, 5, summary.Embedded)
	assert.Equal(t, 0, vectors.Len())
}

func TestIndexAll_Empty(t *testing.T) {
	ix, client, _ := newTestIndexer(t)

	summary, err := ix.IndexAll(context.Background(), nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, IndexSummary{Duration: summary.Duration}, *summary)
	assert.Equal(t, 0, client.count())
}

func TestIndexAll_EmptyIDKeepsStoredRecords(t *testing.T) {
	ix, client, vectors := newTestIndexer(t)
	ctx := context.Background()
	jobs, stories, docs := corpus()

	_, err := ix.IndexAll(ctx, jobs, stories, docs, nil)
	require.NoError(t, err)
	before, err := vectors.EntityRecords(ctx, core.EntityTypeJob, "j1")
	require.NoError(t, err)
	calls := client.count()

	jobs[0].Description = "Build APIs in Go and Rust."
	jobs[0].CoverLetter = &core.CoverLetter{Content: "Dear Acme, again"}
	_, err = ix.IndexAll(ctx, jobs, stories, docs, nil)
	require.ErrorIs(t, err, core.ErrEmptyEntityID)
	assert.Contains(t, err.Error(), "coverLetter")
	assert.Equal(t, calls+1, client.count(), "only the changed job is embedded before the bad item")

	after, err := vectors.EntityRecords(ctx, core.EntityTypeJob, "j1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 7, vectors.Len())
}

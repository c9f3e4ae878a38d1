package indexing

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/semindex/core"
)

// Progress reports which item IndexAll is about to process. Current is
// 1-based.
type Progress struct {
	Current int
	Total   int
	Key     core.EntityKey
}

// ProgressFunc receives IndexAll progress.
type ProgressFunc func(Progress)

// Report calls fn with p if fn is not nil.
func (fn ProgressFunc) Report(p Progress) {
	if fn != nil {
		fn(p)
	}
}

// IndexSummary describes a finished IndexAll run.
type IndexSummary struct {
	Items    int // Logical items in the worklist
	Embedded int // Items embedded in this run
	Skipped  int // Items whose content hash was unchanged
	Blank    int // Items with no text; their records were removed
	Records  int // Records written
	Duration time.Duration
}

type indexOptions struct {
	force      bool
	useSummary bool
}

// IndexOption configures a single IndexAll run.
type IndexOption func(*indexOptions)

// WithForceReindex re-embeds every item even when its content hash is
// unchanged. Use it after switching models.
func WithForceReindex() IndexOption {
	return func(o *indexOptions) {
		o.force = true
	}
}

// WithDocumentSummaries embeds document summaries instead of full text
// where a summary exists.
func WithDocumentSummaries(enabled bool) IndexOption {
	return func(o *indexOptions) {
		o.useSummary = enabled
	}
}

// IndexAll embeds a whole corpus. Items are processed one at a time in
// Worklist order and onProgress fires once per item before it is processed.
// All records are written in one batch after the last item; if any item
// fails or ctx is cancelled, nothing is written.
func (ix *Indexer) IndexAll(ctx context.Context, jobs []core.Job, stories []core.Story, documents []core.Document, onProgress ProgressFunc, opts ...IndexOption) (*IndexSummary, error) {
	var o indexOptions
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	items := Worklist(jobs, stories, documents, o.useSummary)
	summary := &IndexSummary{Items: len(items)}
	ix.logger.Info("indexing corpus", "items", len(items), "force", o.force)

	var (
		keys    []core.EntityKey
		records []*core.EmbeddingRecord
	)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		onProgress.Report(Progress{Current: i + 1, Total: len(items), Key: item.Key})

		out, err := ix.prepare(ctx, item, o.force)
		if err != nil {
			ix.logger.Error("indexing failed", "entity", item.Key, "err", err)
			return summary, fmt.Errorf("index %s: %w", item.Key, err)
		}
		switch out.state {
		case stateUnchanged:
			summary.Skipped++
		case stateBlank:
			summary.Blank++
			keys = append(keys, item.Key)
		case stateEmbedded:
			summary.Embedded++
			keys = append(keys, item.Key)
			records = append(records, out.records...)
		}
	}

	if len(keys) > 0 {
		if err := ix.vectors.ReplaceEntities(ctx, keys, records); err != nil {
			return summary, fmt.Errorf("store batch: %w", err)
		}
	}
	summary.Records = len(records)
	summary.Duration = time.Since(start)

	ix.logger.Info("indexing complete",
		"items", summary.Items,
		"embedded", summary.Embedded,
		"skipped", summary.Skipped,
		"records", summary.Records,
		"duration", summary.Duration)
	return summary, nil
}

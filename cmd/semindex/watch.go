package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/semindex"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/indexing"
)

const watchDebounce = 400 * time.Millisecond

func watchCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	path, err := filepath.Abs(c.String("corpus"))
	if err != nil {
		return err
	}
	useSummary := c.Bool("summaries")

	corpus, err := loadCorpus(path)
	if err != nil {
		return err
	}

	idx, _, err := openIndex(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	summary, err := idx.IndexAll(ctx, corpus.Jobs, corpus.Stories, corpus.Documents, nil,
		indexing.WithDocumentSummaries(useSummary))
	if err != nil {
		return fmt.Errorf("initial indexing failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Indexed %d entities (%d embedded); watching %s\n",
		summary.Items, summary.Embedded, path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	logger := slog.Default().With("component", "watch", "corpus", path)
	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			logger.Debug("corpus event", "op", ev.Op.String())
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(watchDebounce)
			fire = debounce.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "err", err)

		case <-fire:
			fire = nil
			next, err := loadCorpus(path)
			if err != nil {
				logger.Warn("skipping unreadable corpus", "err", err)
				continue
			}
			submitted, removed, err := syncCorpus(ctx, idx, corpus, next, useSummary)
			if err != nil {
				logger.Error("corpus sync failed", "err", err)
			}
			corpus = next
			fmt.Fprintf(c.App.Writer, "Corpus changed: %d re-embedded, %d removed\n", submitted, removed)
		}
	}
}

// syncCorpus brings the index from prev to next: changed entities are
// embedded through background tasks and vanished ones are removed.
func syncCorpus(ctx context.Context, idx *semindex.Index, prev, next *Corpus, useSummary bool) (submitted, removed int, err error) {
	diff := diffCorpus(prev, next, useSummary)
	ix := idx.Indexer()

	var errs []error
	for _, key := range diff.Removed {
		if err := idx.DeleteEntity(ctx, key.Type, key.ID); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
			continue
		}
		removed++
	}

	var tasks []*indexing.Task
	submit := func(key core.EntityKey, fn func() (*indexing.Task, error)) {
		if !diff.Changed[key] {
			return
		}
		task, err := fn()
		if err != nil {
			errs = append(errs, fmt.Errorf("submit %s: %w", key, err))
			return
		}
		tasks = append(tasks, task)
	}

	for _, job := range next.Jobs {
		submit(core.EntityKey{Type: core.EntityTypeJob, ID: job.ID}, func() (*indexing.Task, error) {
			return ix.SubmitJob(job)
		})
		for _, note := range job.Notes {
			submit(core.EntityKey{Type: core.EntityTypeNote, ID: note.ID}, func() (*indexing.Task, error) {
				return ix.SubmitNote(note, job.ID)
			})
		}
		for _, entry := range job.QAEntries {
			submit(core.EntityKey{Type: core.EntityTypeQA, ID: entry.ID}, func() (*indexing.Task, error) {
				return ix.SubmitQA(entry, job.ID)
			})
		}
		if job.CoverLetter != nil {
			letter := job.CoverLetter.WithDefaults(&job)
			submit(core.EntityKey{Type: core.EntityTypeCoverLetter, ID: letter.ID}, func() (*indexing.Task, error) {
				return ix.SubmitCoverLetter(letter, job.ID)
			})
		}
	}
	for _, story := range next.Stories {
		submit(core.EntityKey{Type: core.EntityTypeStory, ID: story.ID}, func() (*indexing.Task, error) {
			return ix.SubmitStory(story)
		})
	}
	for _, doc := range next.Documents {
		submit(core.EntityKey{Type: core.EntityTypeDocument, ID: doc.ID}, func() (*indexing.Task, error) {
			return ix.SubmitDocument(doc, useSummary)
		})
	}

	for _, task := range tasks {
		if err := task.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", task.Name(), err))
			continue
		}
		submitted++
	}
	return submitted, removed, errors.Join(errs...)
}

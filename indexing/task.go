package indexing

import (
	"context"
	"fmt"

	"github.com/poiesic/semindex/core"
)

// Task is the handle of work running in the background. Its outcome can be
// awaited, inspected later, or ignored.
type Task struct {
	name string
	done chan struct{}
	err  error
}

// Name returns the name the task was submitted with.
func (t *Task) Name() string { return t.name }

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task's error, or nil while it is still running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Submit runs fn on the background pool. fn receives a context that is
// cancelled when the Indexer is closed. Failures are logged and kept on
// the returned Task.
func (ix *Indexer) Submit(name string, fn func(ctx context.Context) error) (*Task, error) {
	ix.mu.Lock()
	if ix.closed {
		ix.mu.Unlock()
		return nil, ErrIndexerClosed
	}
	ix.tasks.Add(1)
	ix.mu.Unlock()

	task := &Task{name: name, done: make(chan struct{})}
	err := ix.pool.Submit(func() {
		defer ix.tasks.Done()
		defer close(task.done)
		defer func() {
			if r := recover(); r != nil {
				task.err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
				ix.logger.Error("background task panicked", "task", name, "panic", r)
			}
		}()

		task.err = fn(ix.baseCtx)
		if task.err != nil {
			ix.logger.Error("background task failed", "task", name, "err", task.err)
		}
	})
	if err != nil {
		ix.tasks.Done()
		return nil, fmt.Errorf("submit %s: %w", name, err)
	}
	return task, nil
}

// SubmitJob embeds a job in the background.
func (ix *Indexer) SubmitJob(job core.Job) (*Task, error) {
	return ix.submitItem(jobItem(job))
}

// SubmitStory embeds a story in the background.
func (ix *Indexer) SubmitStory(story core.Story) (*Task, error) {
	return ix.submitItem(storyItem(story))
}

// SubmitQA embeds a Q&A entry in the background.
func (ix *Indexer) SubmitQA(entry core.QAEntry, jobID string) (*Task, error) {
	return ix.submitItem(qaItem(entry, jobID))
}

// SubmitNote embeds a note in the background.
func (ix *Indexer) SubmitNote(note core.Note, jobID string) (*Task, error) {
	return ix.submitItem(noteItem(note, jobID))
}

// SubmitDocument embeds a document in the background.
func (ix *Indexer) SubmitDocument(doc core.Document, useSummary bool) (*Task, error) {
	return ix.submitItem(documentItem(doc, useSummary))
}

// SubmitCoverLetter embeds a cover letter in the background.
func (ix *Indexer) SubmitCoverLetter(letter core.CoverLetter, jobID string) (*Task, error) {
	return ix.submitItem(coverLetterItem(letter, jobID))
}

func (ix *Indexer) submitItem(item Item) (*Task, error) {
	return ix.Submit("embed "+item.Key.String(), func(ctx context.Context) error {
		if ix.ready != nil {
			if err := ix.ready(ctx); err != nil {
				return err
			}
		}
		_, err := ix.embed(ctx, item)
		return err
	})
}

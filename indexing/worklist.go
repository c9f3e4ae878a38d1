package indexing

import (
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/extract"
)

// Item is one logical entity to embed.
type Item struct {
	Key         core.EntityKey
	ParentJobID string
	Text        string
}

// Worklist flattens a corpus into the order IndexAll processes it: each job
// followed by its notes, Q&A entries and cover letter, then every story,
// then every document.
func Worklist(jobs []core.Job, stories []core.Story, documents []core.Document, useSummary bool) []Item {
	var items []Item
	for _, job := range jobs {
		items = append(items, jobItem(job))
		for _, note := range job.Notes {
			items = append(items, noteItem(note, job.ID))
		}
		for _, entry := range job.QAEntries {
			items = append(items, qaItem(entry, job.ID))
		}
		if job.CoverLetter != nil {
			items = append(items, coverLetterItem(job.CoverLetter.WithDefaults(&job), job.ID))
		}
	}
	for _, story := range stories {
		items = append(items, storyItem(story))
	}
	for _, doc := range documents {
		items = append(items, documentItem(doc, useSummary))
	}
	return items
}

func jobItem(job core.Job) Item {
	return Item{
		Key:  core.EntityKey{Type: core.EntityTypeJob, ID: job.ID},
		Text: extract.Job(job),
	}
}

func storyItem(story core.Story) Item {
	return Item{
		Key:  core.EntityKey{Type: core.EntityTypeStory, ID: story.ID},
		Text: extract.Story(story),
	}
}

func qaItem(entry core.QAEntry, jobID string) Item {
	return Item{
		Key:         core.EntityKey{Type: core.EntityTypeQA, ID: entry.ID},
		ParentJobID: jobID,
		Text:        extract.QA(entry),
	}
}

func noteItem(note core.Note, jobID string) Item {
	return Item{
		Key:         core.EntityKey{Type: core.EntityTypeNote, ID: note.ID},
		ParentJobID: jobID,
		Text:        extract.Note(note),
	}
}

func documentItem(doc core.Document, useSummary bool) Item {
	return Item{
		Key:  core.EntityKey{Type: core.EntityTypeDocument, ID: doc.ID},
		Text: extract.Document(doc, useSummary),
	}
}

func coverLetterItem(letter core.CoverLetter, jobID string) Item {
	return Item{
		Key:         core.EntityKey{Type: core.EntityTypeCoverLetter, ID: letter.ID},
		ParentJobID: jobID,
		Text:        extract.CoverLetter(letter),
	}
}

// Package extract turns source entities into the text that gets embedded.
// Every function is pure: the same entity always yields the same text, so
// the content hash of the result is a reliable change detector.
package extract

import (
	"strings"

	"github.com/poiesic/semindex/core"
)

const separator = "\n\n"

// Job returns title, company and description.
func Job(j core.Job) string {
	return join(j.Title, j.Company, j.Description)
}

// Story returns question and answer.
func Story(s core.Story) string {
	return join(s.Question, s.Answer)
}

// QA returns question and answer.
func QA(q core.QAEntry) string {
	return join(q.Question, q.Answer)
}

// Note returns the raw note content.
func Note(n core.Note) string {
	return n.Content
}

// Document returns the document name followed by either its summary or
// its full text. The summary is used only when useSummary is set and the
// document actually has one.
func Document(d core.Document, useSummary bool) string {
	if useSummary && strings.TrimSpace(d.Summary) != "" {
		return join(d.Name, d.Summary)
	}
	return join(d.Name, d.Text)
}

// CoverLetter returns an identifying header followed by the letter body.
func CoverLetter(c core.CoverLetter) string {
	header := "Cover letter"
	switch title, company := strings.TrimSpace(c.JobTitle), strings.TrimSpace(c.Company); {
	case title != "" && company != "":
		header += ": " + title + " at " + company
	case title != "":
		header += ": " + title
	case company != "":
		header += ": " + company
	}
	return join(header, c.Content)
}

// IsBlank reports whether text has nothing worth embedding.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

func join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, separator)
}

package core

// Job is a tracked job application. Notes, Q&A entries and the cover letter
// belong to it and are embedded as separate entities that point back at the
// job through ParentJobID.
type Job struct {
	ID          string       `yaml:"id" json:"id"`
	Title       string       `yaml:"title" json:"title"`
	Company     string       `yaml:"company" json:"company"`
	Description string       `yaml:"description" json:"description"`
	Notes       []Note       `yaml:"notes,omitempty" json:"notes,omitempty"`
	QAEntries   []QAEntry    `yaml:"qa,omitempty" json:"qa,omitempty"`
	CoverLetter *CoverLetter `yaml:"coverLetter,omitempty" json:"coverLetter,omitempty"`
}

// Note is a free-form note attached to a job.
type Note struct {
	ID      string `yaml:"id" json:"id"`
	Content string `yaml:"content" json:"content"`
}

// QAEntry is an application question and the answer given for one job.
type QAEntry struct {
	ID       string `yaml:"id" json:"id"`
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// CoverLetter is the letter written for a job. JobTitle and Company form
// the identifying header; when empty they are taken from the owning job.
type CoverLetter struct {
	ID       string `yaml:"id" json:"id"`
	JobTitle string `yaml:"jobTitle,omitempty" json:"jobTitle,omitempty"`
	Company  string `yaml:"company,omitempty" json:"company,omitempty"`
	Content  string `yaml:"content" json:"content"`
}

// Story is a reusable behavioral interview story.
type Story struct {
	ID       string `yaml:"id" json:"id"`
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// Document is an uploaded document such as a resume or portfolio.
type Document struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Summary string `yaml:"summary,omitempty" json:"summary,omitempty"`
	Text    string `yaml:"text" json:"text"`
}

// WithDefaults returns a copy of the letter whose header fields fall back
// to the job's title and company.
func (c CoverLetter) WithDefaults(job *Job) CoverLetter {
	if job == nil {
		return c
	}
	if c.JobTitle == "" {
		c.JobTitle = job.Title
	}
	if c.Company == "" {
		c.Company = job.Company
	}
	return c
}

package ai

// Stage is a phase of model initialization.
type Stage string

const (
	StageDownload Stage = "download"
	StageLoad     Stage = "load"
	StageReady    Stage = "ready"
	StageError    Stage = "error"
)

// Progress describes how far model initialization has come.
type Progress struct {
	Stage   Stage
	Percent float64 // 0-100
	Loaded  int64   // Bytes or steps done, when known
	Total   int64
	Message string
}

// ProgressFunc receives initialization progress.
type ProgressFunc func(Progress)

// Report calls fn with p if fn is not nil.
func (fn ProgressFunc) Report(p Progress) {
	if fn != nil {
		fn(p)
	}
}

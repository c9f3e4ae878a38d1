package semindex

import (
	"sync"
	"time"

	"github.com/poiesic/semindex/ai"
)

// State is the lifecycle state of the embedding model.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// StatusSnapshot is a point-in-time view of the model and the index.
type StatusSnapshot struct {
	State    State     `json:"state"`
	Stage    ai.Stage  `json:"stage,omitempty"`
	Progress float64   `json:"progress"`
	Error    string    `json:"error,omitempty"`
	Ready    bool      `json:"ready"`
	Records  int       `json:"records"`
	Updated  time.Time `json:"updated"`
}

// status tracks initialization progress and failures.
type status struct {
	mu       sync.Mutex
	state    State
	stage    ai.Stage
	progress float64
	err      string
	updated  time.Time
}

func newStatus() *status {
	return &status{state: StateIdle, updated: time.Now()}
}

func (s *status) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateReady || s.state == StateLoading {
		return
	}
	s.state = StateLoading
	s.stage = ""
	s.progress = 0
	s.err = ""
	s.updated = time.Now()
}

func (s *status) observe(p ai.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoading {
		return
	}
	s.stage = p.Stage
	s.progress = p.Percent
	if p.Stage == ai.StageError {
		s.state = StateError
		s.err = p.Message
	}
	s.updated = time.Now()
}

func (s *status) ready() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateReady
	s.stage = ai.StageReady
	s.progress = 100
	s.err = ""
	s.updated = time.Now()
}

func (s *status) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateError
	s.stage = ai.StageError
	s.err = err.Error()
	s.updated = time.Now()
}

func (s *status) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.stage = ""
	s.progress = 0
	s.err = ""
	s.updated = time.Now()
}

func (s *status) snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusSnapshot{
		State:    s.state,
		Stage:    s.stage,
		Progress: s.progress,
		Error:    s.err,
		Ready:    s.state == StateReady,
		Updated:  s.updated,
	}
}

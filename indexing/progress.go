package indexing

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker renders IndexAll progress as a single updating line.
type ProgressTracker struct {
	writer         io.Writer
	reportInterval int

	mu           sync.Mutex
	total        int
	current      int
	lastReported int
	last         string
	startTime    time.Time
	started      bool
}

// NewProgressTracker creates a tracker that writes to writer every
// reportInterval items.
func NewProgressTracker(writer io.Writer, reportInterval int) *ProgressTracker {
	return &ProgressTracker{
		writer:         writer,
		reportInterval: max(reportInterval, 1),
	}
}

// Observe records p. The first call starts the clock. Pass it to IndexAll
// through Func.
func (p *ProgressTracker) Observe(progress Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.startTime = time.Now()
		p.started = true
	}
	p.total = progress.Total
	p.current = min(progress.Current, p.total)
	p.last = progress.Key.String()

	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// Func adapts the tracker to a ProgressFunc.
func (p *ProgressTracker) Func() ProgressFunc {
	return p.Observe
}

// Finish prints the final line. It does nothing if no progress was observed.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.current = p.total
	p.last = ""
	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since the first observed progress.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report must be called with the lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.current) / elapsed.Seconds()
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rIndexing: %d/%d (%.1f%%) - %.1f items/s %s",
		p.current, p.total, percentage, rate, p.last)
}

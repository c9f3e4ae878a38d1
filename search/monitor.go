package search

import (
	"log/slog"

	"github.com/poiesic/semindex/core"
)

// Monitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type Monitor interface {
	Start(opts Options, candidates int)
	AfterFilter(records []*core.EmbeddingRecord)
	AfterThreshold(scored int)
	AfterDedup(results []*core.SearchResult)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Options, _ int)                {}
func (n *noopMonitor) AfterFilter(_ []*core.EmbeddingRecord) {}
func (n *noopMonitor) AfterThreshold(_ int)                  {}
func (n *noopMonitor) AfterDedup(_ []*core.SearchResult)     {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)         {}

// LogMonitor writes every search stage to a logger at debug level.
type LogMonitor struct {
	Logger *slog.Logger
}

var _ Monitor = (*LogMonitor)(nil)

func (m *LogMonitor) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *LogMonitor) Start(opts Options, candidates int) {
	m.logger().Debug("search started",
		"candidates", candidates,
		"limit", opts.Limit,
		"threshold", opts.Threshold,
		"types", opts.EntityTypes,
		"job", opts.JobID)
}

func (m *LogMonitor) AfterFilter(records []*core.EmbeddingRecord) {
	m.logger().Debug("search filtered", "remaining", len(records))
}

func (m *LogMonitor) AfterThreshold(scored int) {
	m.logger().Debug("search thresholded", "remaining", scored)
}

func (m *LogMonitor) AfterDedup(results []*core.SearchResult) {
	m.logger().Debug("search deduplicated", "entities", len(results))
}

func (m *LogMonitor) Finish(results []*core.SearchResult) {
	for i, r := range results {
		m.logger().Debug("search hit", "rank", i+1, "type", r.Record.EntityType, "id", r.Record.EntityID, "score", r.Score)
	}
}

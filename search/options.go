package search

import "github.com/poiesic/semindex/core"

const (
	DefaultLimit     = 5
	DefaultThreshold = 0.3
)

// Options controls a single search.
type Options struct {
	// Limit is the maximum number of results.
	Limit int

	// Threshold is the minimum similarity a result must reach.
	Threshold float32

	// EntityTypes restricts results to these types. Empty means all types.
	EntityTypes []core.EntityType

	// JobID restricts results to the job's own records and the records it owns.
	JobID string

	// Monitor observes the search. Nil means no monitoring.
	Monitor Monitor
}

// Option modifies Options.
type Option func(*Options)

// DefaultOptions returns limit 5, threshold 0.3 and no filters.
func DefaultOptions() Options {
	return Options{
		Limit:     DefaultLimit,
		Threshold: DefaultThreshold,
	}
}

// NewOptions applies opts over DefaultOptions.
func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLimit sets the maximum number of results.
func WithLimit(limit int) Option {
	return func(o *Options) {
		o.Limit = limit
	}
}

// WithThreshold sets the minimum similarity.
func WithThreshold(threshold float32) Option {
	return func(o *Options) {
		o.Threshold = threshold
	}
}

// WithEntityTypes restricts results to the given types.
func WithEntityTypes(types ...core.EntityType) Option {
	return func(o *Options) {
		o.EntityTypes = types
	}
}

// WithJobID restricts results to one job.
func WithJobID(jobID string) Option {
	return func(o *Options) {
		o.JobID = jobID
	}
}

// WithMonitor attaches a monitor to the search.
func WithMonitor(m Monitor) Option {
	return func(o *Options) {
		o.Monitor = m
	}
}

func (o Options) allows(t core.EntityType) bool {
	if len(o.EntityTypes) == 0 {
		return true
	}
	for _, allowed := range o.EntityTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

package docfind

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordSearch is called after each page fetch.
	// duration is the total time taken, err is nil if successful.
	RecordSearch(duration time.Duration, err error)

	// RecordMutation is called after each document add/delete submission.
	RecordMutation(duration time.Duration, err error)

	// RecordCheckpoint is called after each checkpoint submission.
	RecordCheckpoint(duration time.Duration, err error)

	// RecordPoll is called after each checkpoint status request.
	RecordPoll(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSearch(time.Duration, error)     {}
func (NoopMetricsCollector) RecordMutation(time.Duration, error)   {}
func (NoopMetricsCollector) RecordCheckpoint(time.Duration, error) {}
func (NoopMetricsCollector) RecordPoll(time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	MutationCount    atomic.Int64
	MutationErrors   atomic.Int64
	CheckpointCount  atomic.Int64
	CheckpointErrors atomic.Int64
	PollCount        atomic.Int64
	PollErrors       atomic.Int64
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordMutation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMutation(duration time.Duration, err error) {
	b.MutationCount.Add(1)
	if err != nil {
		b.MutationErrors.Add(1)
	}
}

// RecordCheckpoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpoint(duration time.Duration, err error) {
	b.CheckpointCount.Add(1)
	if err != nil {
		b.CheckpointErrors.Add(1)
	}
}

// RecordPoll implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPoll(duration time.Duration, err error) {
	b.PollCount.Add(1)
	if err != nil {
		b.PollErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SearchCount:      b.SearchCount.Load(),
		SearchErrors:     b.SearchErrors.Load(),
		SearchAvgNanos:   b.getAvgSearchNanos(),
		MutationCount:    b.MutationCount.Load(),
		MutationErrors:   b.MutationErrors.Load(),
		CheckpointCount:  b.CheckpointCount.Load(),
		CheckpointErrors: b.CheckpointErrors.Load(),
		PollCount:        b.PollCount.Load(),
		PollErrors:       b.PollErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SearchCount      int64
	SearchErrors     int64
	SearchAvgNanos   int64
	MutationCount    int64
	MutationErrors   int64
	CheckpointCount  int64
	CheckpointErrors int64
	PollCount        int64
	PollErrors       int64
}

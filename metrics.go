package sparsevec

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordBuild is called after each index build attempt.
	// indexed is the number of vectors in the published index (0 on failure),
	// duration is the total build time, err is nil on success.
	RecordBuild(indexed int, duration time.Duration, err error)

	// RecordSearch is called after each search.
	// k is the number of results requested, fullScan reports which scan
	// strategy served the query.
	RecordSearch(k int, fullScan bool, duration time.Duration, err error)

	// RecordUpsert is called after each insert-or-update operation.
	RecordUpsert(duration time.Duration, err error)

	// RecordRemove is called after each remove operation.
	RecordRemove(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBuild(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordSearch(int, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordUpsert(time.Duration, error)            {}
func (NoopMetricsCollector) RecordRemove(time.Duration, error)            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BuildCount       atomic.Int64
	BuildErrors      atomic.Int64
	BuildTotalNanos  atomic.Int64
	SearchCount      atomic.Int64
	SearchFullScans  atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	UpsertCount      atomic.Int64
	UpsertErrors     atomic.Int64
	RemoveCount      atomic.Int64
	RemoveErrors     atomic.Int64
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(indexed int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, fullScan bool, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if fullScan {
		b.SearchFullScans.Add(1)
	}
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(duration time.Duration, err error) {
	b.UpsertCount.Add(1)
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(duration time.Duration, err error) {
	b.RemoveCount.Add(1)
	if err != nil {
		b.RemoveErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BuildCount:      b.BuildCount.Load(),
		BuildErrors:     b.BuildErrors.Load(),
		BuildAvgNanos:   avgNanos(b.BuildTotalNanos.Load(), b.BuildCount.Load()),
		SearchCount:     b.SearchCount.Load(),
		SearchFullScans: b.SearchFullScans.Load(),
		SearchErrors:    b.SearchErrors.Load(),
		SearchAvgNanos:  avgNanos(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		UpsertCount:     b.UpsertCount.Load(),
		UpsertErrors:    b.UpsertErrors.Load(),
		RemoveCount:     b.RemoveCount.Load(),
		RemoveErrors:    b.RemoveErrors.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BuildCount      int64
	BuildErrors     int64
	BuildAvgNanos   int64
	SearchCount     int64
	SearchFullScans int64
	SearchErrors    int64
	SearchAvgNanos  int64
	UpsertCount     int64
	UpsertErrors    int64
	RemoveCount     int64
	RemoveErrors    int64
}

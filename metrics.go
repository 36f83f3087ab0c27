package spatialidx

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordExtract is called after each extraction with the source size and
	// the number of entries produced.
	RecordExtract(bytes, entries int, duration time.Duration, err error)

	// RecordLoad is called after the tree load step.
	RecordLoad(strategy LoadStrategy, entries int, duration time.Duration, err error)

	// RecordBuild is called after each build.
	RecordBuild(mode Mode, entries int, duration time.Duration, err error)

	// RecordSnapshot is called after each snapshot export or import.
	RecordSnapshot(bytes uint64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordExtract(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordLoad(LoadStrategy, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordBuild(Mode, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSnapshot(uint64, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ExtractCount    atomic.Int64
	ExtractErrors   atomic.Int64
	ExtractBytes    atomic.Int64
	ExtractEntries  atomic.Int64
	LoadCount       atomic.Int64
	LoadErrors      atomic.Int64
	LoadIncremental atomic.Int64
	LoadTotalNanos  atomic.Int64
	BuildCount      atomic.Int64
	BuildErrors     atomic.Int64
	BuildEntries    atomic.Int64
	BuildTotalNanos atomic.Int64
	SnapshotCount   atomic.Int64
	SnapshotErrors  atomic.Int64
	SnapshotBytes   atomic.Int64
}

// RecordExtract implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExtract(bytes, entries int, _ time.Duration, err error) {
	b.ExtractCount.Add(1)
	if err != nil {
		b.ExtractErrors.Add(1)
		return
	}
	b.ExtractBytes.Add(int64(bytes))
	b.ExtractEntries.Add(int64(entries))
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(strategy LoadStrategy, _ int, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if strategy == LoadIncremental {
		b.LoadIncremental.Add(1)
	}
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(_ Mode, entries int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
		return
	}
	b.BuildEntries.Add(int64(entries))
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(bytes uint64, _ time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
		return
	}
	b.SnapshotBytes.Add(int64(bytes)) //nolint:gosec // snapshot sizes fit in int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ExtractCount:   b.ExtractCount.Load(),
		ExtractErrors:  b.ExtractErrors.Load(),
		ExtractBytes:   b.ExtractBytes.Load(),
		ExtractEntries: b.ExtractEntries.Load(),
		LoadCount:      b.LoadCount.Load(),
		LoadErrors:     b.LoadErrors.Load(),
		LoadAvgNanos:   avg(b.LoadTotalNanos.Load(), b.LoadCount.Load()),
		BuildCount:     b.BuildCount.Load(),
		BuildErrors:    b.BuildErrors.Load(),
		BuildEntries:   b.BuildEntries.Load(),
		BuildAvgNanos:  avg(b.BuildTotalNanos.Load(), b.BuildCount.Load()),
		SnapshotCount:  b.SnapshotCount.Load(),
		SnapshotErrors: b.SnapshotErrors.Load(),
		SnapshotBytes:  b.SnapshotBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a point-in-time copy of BasicMetricsCollector.
type BasicMetricsStats struct {
	ExtractCount   int64
	ExtractErrors  int64
	ExtractBytes   int64
	ExtractEntries int64
	LoadCount      int64
	LoadErrors     int64
	LoadAvgNanos   int64
	BuildCount     int64
	BuildErrors    int64
	BuildEntries   int64
	BuildAvgNanos  int64
	SnapshotCount  int64
	SnapshotErrors int64
	SnapshotBytes  int64
}

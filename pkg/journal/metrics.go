package journal

import "time"

// MetricsSink receives the journal's counters and timers. Implementations
// must be safe for concurrent use. The Prometheus-backed implementation
// lives in pkg/metrics; the journal itself only depends on this interface.
type MetricsSink interface {
	RecordAppend(bytes int, latency time.Duration)
	ObserveSegmentRoll(latency time.Duration)
	ObserveSegmentTruncation(latency time.Duration)
	SetSegmentCount(count int)
	SetFirstIndex(index uint64)
	SetLastIndex(index uint64)
}

// Clock supplies the timestamps used for metric timers.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

type noopMetrics struct{}

func (noopMetrics) RecordAppend(int, time.Duration)        {}
func (noopMetrics) ObserveSegmentRoll(time.Duration)       {}
func (noopMetrics) ObserveSegmentTruncation(time.Duration) {}
func (noopMetrics) SetSegmentCount(int)                    {}
func (noopMetrics) SetFirstIndex(uint64)                   {}
func (noopMetrics) SetLastIndex(uint64)                    {}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AppendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_appends_total",
		Help: "Total number of records appended to the journal",
	}, []string{"journal"})

	AppendBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_append_bytes_total",
		Help: "Total payload bytes appended to the journal",
	}, []string{"journal"})

	AppendLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "journal_append_latency_seconds",
		Help:    "Histogram of single-record append latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"journal"})

	SegmentRollLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "journal_segment_roll_latency_seconds",
		Help:    "Histogram of segment allocation latency during rollover",
		Buckets: prometheus.DefBuckets,
	}, []string{"journal"})

	TruncationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "journal_truncation_latency_seconds",
		Help:    "Histogram of deleteAfter truncation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"journal"})

	SegmentCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "journal_segments",
		Help: "Current number of segment files",
	}, []string{"journal"})

	FirstIndex = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "journal_first_index",
		Help: "Index of the earliest retained record",
	}, []string{"journal"})

	LastIndex = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "journal_last_index",
		Help: "Index of the most recently appended record",
	}, []string{"journal"})
)

// JournalMetrics implements the journal's MetricsSink on the package
// collectors, labeled by journal name.
type JournalMetrics struct {
	name string
}

func NewJournalMetrics(name string) *JournalMetrics {
	return &JournalMetrics{name: name}
}

func (m *JournalMetrics) RecordAppend(bytes int, latency time.Duration) {
	AppendsTotal.WithLabelValues(m.name).Inc()
	AppendBytesTotal.WithLabelValues(m.name).Add(float64(bytes))
	AppendLatency.WithLabelValues(m.name).Observe(latency.Seconds())
}

func (m *JournalMetrics) ObserveSegmentRoll(latency time.Duration) {
	SegmentRollLatency.WithLabelValues(m.name).Observe(latency.Seconds())
}

func (m *JournalMetrics) ObserveSegmentTruncation(latency time.Duration) {
	TruncationLatency.WithLabelValues(m.name).Observe(latency.Seconds())
}

func (m *JournalMetrics) SetSegmentCount(count int) {
	SegmentCount.WithLabelValues(m.name).Set(float64(count))
}

func (m *JournalMetrics) SetFirstIndex(index uint64) {
	FirstIndex.WithLabelValues(m.name).Set(float64(index))
}

func (m *JournalMetrics) SetLastIndex(index uint64) {
	LastIndex.WithLabelValues(m.name).Set(float64(index))
}

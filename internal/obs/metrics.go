package obs

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome classifies how a single ingested record ended.
type Outcome uint8

const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
	OutcomeMalformed
	OutcomeRedeliver
	outcomeCount
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeRedeliver:
		return "redeliver"
	default:
		return "unknown"
	}
}

// Metrics collects lightweight counters and latency stats. When built with
// a prometheus.Registerer the same values are exported as collectors.
type Metrics struct {
	outcomes    [outcomeCount]uint64
	batchRows   uint64
	batches     uint64
	receiveIdle uint64

	handleLatency LatencyStats
	flushLatency  LatencyStats

	promOutcomes  *prometheus.CounterVec
	promBatchRows *prometheus.CounterVec
	promFlush     prometheus.Histogram
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Outcomes      map[Outcome]uint64
	BatchRows     uint64
	Batches       uint64
	ReceiveIdle   uint64
	HandleLatency LatencySnapshot
	FlushLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container. reg may be nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}
	if reg == nil {
		return m
	}
	m.promOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "equity_ingest_records_total",
		Help: "Records ingested, by outcome",
	}, []string{"outcome"})
	m.promBatchRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "equity_bulk_rows_loaded_total",
		Help: "Rows bulk-loaded, by shard",
	}, []string{"shard"})
	m.promFlush = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "equity_bulk_flush_duration_seconds",
		Help:    "Time taken by one bulk load call",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	reg.MustRegister(m.promOutcomes, m.promBatchRows, m.promFlush)
	return m
}

// ObserveOutcome counts a processed record and how long it took.
func (m *Metrics) ObserveOutcome(o Outcome, d time.Duration) {
	if m == nil || o >= outcomeCount {
		return
	}
	atomic.AddUint64(&m.outcomes[o], 1)
	if d > 0 {
		m.handleLatency.Observe(d)
	}
	if m.promOutcomes != nil {
		m.promOutcomes.WithLabelValues(o.String()).Inc()
	}
}

// ObserveFlush records one bulk load call for a shard.
func (m *Metrics) ObserveFlush(shardSuffix string, rows int64, d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.batches, 1)
	atomic.AddUint64(&m.batchRows, uint64(rows))
	m.flushLatency.Observe(d)
	if m.promBatchRows != nil {
		m.promBatchRows.WithLabelValues(shardSuffix).Add(float64(rows))
		m.promFlush.Observe(d.Seconds())
	}
}

// IncReceiveIdle records a receive wait that returned no message.
func (m *Metrics) IncReceiveIdle() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.receiveIdle, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	outcomes := make(map[Outcome]uint64)
	for i := range m.outcomes {
		if v := atomic.LoadUint64(&m.outcomes[i]); v > 0 {
			outcomes[Outcome(i)] = v
		}
	}
	return Snapshot{
		Outcomes:      outcomes,
		BatchRows:     atomic.LoadUint64(&m.batchRows),
		Batches:       atomic.LoadUint64(&m.batches),
		ReceiveIdle:   atomic.LoadUint64(&m.receiveIdle),
		HandleLatency: m.handleLatency.Snapshot(),
		FlushLatency:  m.flushLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}

package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const maxEventKind = int(schema.KindHeartbeat)

// Metrics collects lightweight counters and latency stats for the realtime
// hub.
type Metrics struct {
	eventCounts   [maxEventKind + 1]uint64
	unknownEvents uint64
	queueDrops    uint64
	encodeErrors  uint64

	fanoutLatency LatencyStats
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
	EventCounts   map[string]uint64
	UnknownEvents uint64
	QueueDrops    uint64
	EncodeErrors  uint64
	FanoutLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts one emitted event by kind.
func (m *Metrics) ObserveEvent(kind schema.EventKind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
		return
	}
	atomic.AddUint64(&m.unknownEvents, 1)
}

// IncQueueDrop records a slow consumer losing its connection.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncEncodeError records a payload that could not be serialized.
func (m *Metrics) IncEncodeError() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.encodeErrors, 1)
}

// ObserveFanout measures one broadcast delivery pass.
func (m *Metrics) ObserveFanout(d time.Duration) {
	if m == nil {
		return
	}
	m.fanoutLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[string]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventKind(i).String()] = v
		}
	}
	return Snapshot{
		EventCounts:   eventCounts,
		UnknownEvents: atomic.LoadUint64(&m.unknownEvents),
		QueueDrops:    atomic.LoadUint64(&m.queueDrops),
		EncodeErrors:  atomic.LoadUint64(&m.encodeErrors),
		FanoutLatency: m.fanoutLatency.Snapshot(),
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

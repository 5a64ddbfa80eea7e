package monitor

import (
	"sync"
	"sync/atomic"
	"time"
)

var latencyBuckets = []time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
}

// LatencyHistogram is a fixed-bucket latency recorder.
type LatencyHistogram struct {
	mu     sync.Mutex
	counts []int64
	sum    time.Duration
	max    time.Duration
	count  int64
}

// NewLatencyHistogram builds an empty histogram.
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{counts: make([]int64, len(latencyBuckets)+1)}
}

// Observe records one sample.
func (h *LatencyHistogram) Observe(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := len(latencyBuckets)
	for i, b := range latencyBuckets {
		if d <= b {
			idx = i
			break
		}
	}
	h.counts[idx]++
	h.sum += d
	h.count++
	if d > h.max {
		h.max = d
	}
}

// Snapshot reports count, average and max in milliseconds plus the
// per-bucket counts.
func (h *LatencyHistogram) Snapshot() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	avg := time.Duration(0)
	if h.count > 0 {
		avg = h.sum / time.Duration(h.count)
	}
	buckets := make(map[string]int64, len(h.counts))
	for i, c := range h.counts {
		if i < len(latencyBuckets) {
			buckets["le_"+latencyBuckets[i].String()] = c
		} else {
			buckets["inf"] = c
		}
	}
	return map[string]any{
		"count":   h.count,
		"avg_ms":  float64(avg.Microseconds()) / 1000,
		"max_ms":  float64(h.max.Microseconds()) / 1000,
		"buckets": buckets,
	}
}

// SystemMetrics aggregates the bot's operational counters, exposed as
// one JSON snapshot on the metrics endpoint.
type SystemMetrics struct {
	startedAt time.Time

	execLatency   *LatencyHistogram
	brokerLatency *LatencyHistogram
	apiLatency    *LatencyHistogram

	mu       sync.Mutex
	outcomes map[string]int64

	apiRequests atomic.Int64
	apiErrors   atomic.Int64
}

// NewSystemMetrics builds zeroed metrics.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		startedAt:     time.Now(),
		execLatency:   NewLatencyHistogram(),
		brokerLatency: NewLatencyHistogram(),
		apiLatency:    NewLatencyHistogram(),
		outcomes:      make(map[string]int64),
	}
}

// ObserveExecLatency records one end-to-end trade attempt duration.
func (m *SystemMetrics) ObserveExecLatency(d time.Duration) { m.execLatency.Observe(d) }

// ObserveBrokerLatency records one venue round trip.
func (m *SystemMetrics) ObserveBrokerLatency(d time.Duration) { m.brokerLatency.Observe(d) }

// ObserveAPILatency records one HTTP request duration.
func (m *SystemMetrics) ObserveAPILatency(d time.Duration) { m.apiLatency.Observe(d) }

// IncOutcome counts one coordinator outcome by name.
func (m *SystemMetrics) IncOutcome(outcome string) {
	m.mu.Lock()
	m.outcomes[outcome]++
	m.mu.Unlock()
}

// IncAPIRequest counts one HTTP request.
func (m *SystemMetrics) IncAPIRequest() { m.apiRequests.Add(1) }

// IncAPIError counts one HTTP 5xx response.
func (m *SystemMetrics) IncAPIError() { m.apiErrors.Add(1) }

// Snapshot renders everything for the metrics endpoint.
func (m *SystemMetrics) Snapshot() map[string]any {
	m.mu.Lock()
	outcomes := make(map[string]int64, len(m.outcomes))
	for k, v := range m.outcomes {
		outcomes[k] = v
	}
	m.mu.Unlock()

	return map[string]any{
		"uptime_seconds": int64(time.Since(m.startedAt).Seconds()),
		"outcomes":       outcomes,
		"exec_latency":   m.execLatency.Snapshot(),
		"broker_latency": m.brokerLatency.Snapshot(),
		"api_latency":    m.apiLatency.Snapshot(),
		"api_requests":   m.apiRequests.Load(),
		"api_errors":     m.apiErrors.Load(),
	}
}

package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	eventsProcessed atomic.Uint64
	ordersAccepted  atomic.Uint64
	ordersRejected  atomic.Uint64
	ordersCanceled  atomic.Uint64
	transactions    atomic.Uint64
	stepsTotal      atomic.Uint64
	errorsTotal     atomic.Uint64

	// Latency tracking (publish to processed)
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records an event processing with latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.eventsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// RecordOrder records a submission outcome.
func (m *Metrics) RecordOrder(accepted bool) {
	if accepted {
		m.ordersAccepted.Add(1)
	} else {
		m.ordersRejected.Add(1)
	}
}

// RecordCancel records a successful cancellation.
func (m *Metrics) RecordCancel() {
	m.ordersCanceled.Add(1)
}

// RecordStep records one simulation step and the trades it produced.
func (m *Metrics) RecordStep(transactions int) {
	m.stepsTotal.Add(1)
	m.transactions.Add(uint64(transactions))
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed   uint64    `json:"events_processed"`
	OrdersAccepted    uint64    `json:"orders_accepted"`
	OrdersRejected    uint64    `json:"orders_rejected"`
	OrdersCanceled    uint64    `json:"orders_canceled"`
	Transactions      uint64    `json:"transactions"`
	Steps             uint64    `json:"steps"`
	ErrorsTotal       uint64    `json:"errors_total"`
	AvgLatencyNs      int64     `json:"avg_latency_ns"`
	ActiveConnections int32     `json:"active_connections"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EventsProcessed:   m.eventsProcessed.Load(),
		OrdersAccepted:    m.ordersAccepted.Load(),
		OrdersRejected:    m.ordersRejected.Load(),
		OrdersCanceled:    m.ordersCanceled.Load(),
		Transactions:      m.transactions.Load(),
		Steps:             m.stepsTotal.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.ordersAccepted.Store(0)
	m.ordersRejected.Store(0)
	m.ordersCanceled.Store(0)
	m.transactions.Store(0)
	m.stepsTotal.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
}

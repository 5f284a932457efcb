package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame outcomes recorded by FrameReceived.
const (
	FrameAccepted    = "accepted"
	FrameDecodeError = "decode_error"
	FrameUnknownUser = "unknown_user"
	FrameRateLimited = "rate_limited"
	FrameFailed      = "failed"
)

// Metrics holds all Prometheus metrics for the hub. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Connection metrics
	activeConnections prometheus.Gauge
	connectionsOpened prometheus.Counter
	connectionsClosed prometheus.Counter

	// Inbound metrics
	framesReceived *prometheus.CounterVec // by outcome

	// Broadcast metrics
	messagesBroadcast prometheus.Counter
	deliveries        *prometheus.CounterVec // by result
	broadcastFanout   prometheus.Histogram
	broadcastDuration prometheus.Histogram
}

// NewMetrics registers hub metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "msghub_active_connections",
				Help: "Current number of registered socket connections",
			},
		),
		connectionsOpened: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "msghub_connections_opened_total",
				Help: "Total number of socket connections registered",
			},
		),
		connectionsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "msghub_connections_closed_total",
				Help: "Total number of socket connections deregistered",
			},
		),
		framesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msghub_frames_received_total",
				Help: "Inbound frames by processing outcome",
			},
			[]string{"outcome"},
		),
		messagesBroadcast: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "msghub_messages_broadcast_total",
				Help: "Total number of messages broadcast (unique messages, not deliveries)",
			},
		),
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msghub_deliveries_total",
				Help: "Per-connection broadcast writes by result",
			},
			[]string{"result"},
		),
		broadcastFanout: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "msghub_broadcast_fanout",
				Help:    "Number of connections targeted by each broadcast",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		broadcastDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "msghub_broadcast_duration_seconds",
				Help:    "Time taken to write a broadcast to all targeted connections",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// ConnectionOpened records a registered connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsOpened.Inc()
	m.activeConnections.Inc()
}

// ConnectionClosed records a deregistered connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsClosed.Inc()
	m.activeConnections.Dec()
}

// FrameReceived records how an inbound frame was handled.
func (m *Metrics) FrameReceived(outcome string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(outcome).Inc()
}

// RecordBroadcast records one broadcast and its per-connection results.
func (m *Metrics) RecordBroadcast(targets, delivered int, seconds float64) {
	if m == nil {
		return
	}
	m.messagesBroadcast.Inc()
	m.broadcastFanout.Observe(float64(targets))
	m.broadcastDuration.Observe(seconds)
	m.deliveries.WithLabelValues("ok").Add(float64(delivered))
	m.deliveries.WithLabelValues("error").Add(float64(targets - delivered))
}

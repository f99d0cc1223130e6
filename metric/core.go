package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wfmanager"

// Metrics contains the core metrics of the workflow manager
type Metrics struct {
	// Verification metrics
	VerificationRuns     *prometheus.CounterVec
	VerificationDuration prometheus.Histogram
	VerificationIssues   *prometheus.GaugeVec

	// Messaging metrics
	FramesReceived  *prometheus.CounterVec
	FramesDiscarded prometheus.Counter
	Handshakes      *prometheus.CounterVec
	ServerState     prometheus.Gauge
	EventsDelivered *prometheus.CounterVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		VerificationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "verification",
				Name:      "runs_total",
				Help:      "Total number of verification passes",
			},
			[]string{"status"},
		),

		VerificationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "verification",
				Name:      "duration_seconds",
				Help:      "Verification pass duration in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),

		VerificationIssues: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "verification",
				Name:      "issues",
				Help:      "Issues found by the last verification pass",
			},
			[]string{"code"},
		),

		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "frames_received_total",
				Help:      "Total number of protocol frames received",
			},
			[]string{"kind"},
		),

		FramesDiscarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "frames_discarded_total",
				Help:      "Total number of frames discarded before a handshake",
			},
		),

		Handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "handshakes_total",
				Help:      "Total number of handshakes",
			},
			[]string{"side", "outcome"},
		),

		ServerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "server_state",
				Help:      "Notification server state (0=stopped, 1=waiting, 2=receiving)",
			},
		),

		EventsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "events_total",
				Help:      "Total number of events decoded by the server",
			},
			[]string{"type"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.VerificationRuns,
		c.VerificationDuration,
		c.VerificationIssues,
		c.FramesReceived,
		c.FramesDiscarded,
		c.Handshakes,
		c.ServerState,
		c.EventsDelivered,
		c.NATSConnected,
		c.NATSReconnects,
	}
}

// RecordVerification records one verification pass. issues maps issue codes
// to counts; codes absent from the map are reset to zero.
func (c *Metrics) RecordVerification(duration time.Duration, issues map[string]int, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.VerificationRuns.WithLabelValues(status).Inc()
	c.VerificationDuration.Observe(duration.Seconds())
	if err != nil {
		return
	}
	c.VerificationIssues.Reset()
	for code, n := range issues {
		c.VerificationIssues.WithLabelValues(code).Set(float64(n))
	}
}

// RecordFrame increments the received frame counter
func (c *Metrics) RecordFrame(kind string) {
	if c == nil {
		return
	}
	c.FramesReceived.WithLabelValues(kind).Inc()
}

// RecordDiscarded increments the discarded frame counter
func (c *Metrics) RecordDiscarded() {
	if c == nil {
		return
	}
	c.FramesDiscarded.Inc()
}

// RecordHandshake counts a handshake by side (server/client) and outcome
func (c *Metrics) RecordHandshake(side, outcome string) {
	if c == nil {
		return
	}
	c.Handshakes.WithLabelValues(side, outcome).Inc()
}

// RecordServerState updates the server state gauge
func (c *Metrics) RecordServerState(state int) {
	if c == nil {
		return
	}
	c.ServerState.Set(float64(state))
}

// RecordEvent counts a decoded event by type
func (c *Metrics) RecordEvent(eventType string) {
	if c == nil {
		return
	}
	c.EventsDelivered.WithLabelValues(eventType).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	if c == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	if c == nil {
		return
	}
	c.NATSReconnects.Inc()
}

// Package metrics exposes the Binary Packet Protocol transport layer's
// Prometheus metrics: packets/bytes per direction, MAC failures, FATAL
// aborts by reason, sessions by phase, and dispatcher UNIMPLEMENTED
// replies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "sshcore"
	subsystem = "transport"
)

// Label names for transport metrics.
const (
	labelRole   = "role"
	labelPhase  = "phase"
	labelReason = "reason"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Transport Metrics
// -------------------------------------------------------------------------

// Collector holds all transport-layer Prometheus metrics.
//
// Metrics are designed for production monitoring of an SSH transport:
//   - Sessions gauge tracks currently active sessions by phase.
//   - Packet/byte counters track send/receive volumes per role.
//   - MACFailures and FatalAborts flag protocol-level attacks or bugs.
//   - Unimplemented counts packets the Dispatcher never claimed.
type Collector struct {
	// Sessions tracks the number of currently active sessions, labeled by
	// their current session phase. A session moves between phase buckets
	// over its life; RecordPhaseChange handles the increment/decrement
	// pair.
	Sessions *prometheus.GaugeVec

	// PacketsSent/PacketsReceived count wire packets per role (client or
	// server), the Outgoing Packetizer's and Reassembler's throughput.
	PacketsSent     *prometheus.CounterVec
	PacketsReceived *prometheus.CounterVec

	// BytesSent/BytesReceived count wire bytes per role.
	BytesSent     *prometheus.CounterVec
	BytesReceived *prometheus.CounterVec

	// MACFailures counts Wire Codec MAC verification failures per role
	// (the FATAL-causing ErrMACFailure).
	MACFailures *prometheus.CounterVec

	// FatalAborts counts sessions entering the ERROR phase, labeled by
	// role and the TransportError's underlying cause.
	FatalAborts *prometheus.CounterVec

	// Unimplemented counts packets the Dispatcher had no claiming handler
	// for, whether because the message type is genuinely unknown or
	// because no protocol sub-layer has registered a bundle for it yet.
	Unimplemented *prometheus.CounterVec
}

// NewCollector creates a Collector with all transport metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.PacketsSent,
		c.PacketsReceived,
		c.BytesSent,
		c.BytesReceived,
		c.MACFailures,
		c.FatalAborts,
		c.Unimplemented,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	roleLabels := []string{labelRole}
	phaseLabels := []string{labelRole, labelPhase}
	reasonLabels := []string{labelRole, labelReason}

	return &Collector{
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently active sessions, by phase.",
		}, phaseLabels),

		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_sent_total",
			Help:      "Total Binary Packet Protocol packets transmitted.",
		}, roleLabels),

		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total Binary Packet Protocol packets received.",
		}, roleLabels),

		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_sent_total",
			Help:      "Total wire bytes transmitted.",
		}, roleLabels),

		BytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_received_total",
			Help:      "Total wire bytes received.",
		}, roleLabels),

		MACFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mac_failures_total",
			Help:      "Total MAC verification failures.",
		}, roleLabels),

		FatalAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fatal_aborts_total",
			Help:      "Total sessions driven into the ERROR phase, by cause.",
		}, reasonLabels),

		Unimplemented: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unimplemented_total",
			Help:      "Total packets with no claiming Dispatcher handler.",
		}, roleLabels),
	}
}

// -------------------------------------------------------------------------
// Session Lifecycle
// -------------------------------------------------------------------------

// RecordPhaseChange moves a session's gauge contribution from its previous
// phase bucket to its new one. Called by the host on every phase
// transition it observes (construction uses from == "" to only increment).
func (c *Collector) RecordPhaseChange(role, from, to string) {
	if from != "" {
		c.Sessions.WithLabelValues(role, from).Dec()
	}
	c.Sessions.WithLabelValues(role, to).Inc()
}

// ForgetSession decrements the gauge bucket for a session's final phase
// when it is torn down (e.g. the connection closes after ERROR).
func (c *Collector) ForgetSession(role, phase string) {
	c.Sessions.WithLabelValues(role, phase).Dec()
}

// -------------------------------------------------------------------------
// Failure/Diagnostic Counters
// -------------------------------------------------------------------------

// IncFatalAbort increments the FATAL-abort counter for the given role and
// cause string (typically a TransportError's wrapped sentinel's message,
// e.g. "mac verification failed").
func (c *Collector) IncFatalAbort(role, reason string) {
	c.FatalAborts.WithLabelValues(role, reason).Inc()
}

// IncMACFailure increments the MAC-failure counter for the given role.
func (c *Collector) IncMACFailure(role string) {
	c.MACFailures.WithLabelValues(role).Inc()
}

// IncUnimplemented increments the UNIMPLEMENTED counter for the given role.
func (c *Collector) IncUnimplemented(role string) {
	c.Unimplemented.WithLabelValues(role).Inc()
}

// -------------------------------------------------------------------------
// Per-Session Sink
// -------------------------------------------------------------------------

// SessionSink adapts a Collector to transport.TrafficCounterSink for one
// Session, pre-binding the role label so the hot send/receive path never
// has to look it up. Construct with NewSessionSink and pass to
// transport.WithTrafficCounterSink.
type SessionSink struct {
	c    *Collector
	role string
}

// NewSessionSink returns a SessionSink bound to role, suitable for
// transport.WithTrafficCounterSink(c.NewSessionSink(session.Role().String())).
func (c *Collector) NewSessionSink(role string) *SessionSink {
	return &SessionSink{c: c, role: role}
}

// CountSent implements transport.TrafficCounterSink.
func (s *SessionSink) CountSent(packets, bytes uint64) {
	s.c.PacketsSent.WithLabelValues(s.role).Add(float64(packets))
	s.c.BytesSent.WithLabelValues(s.role).Add(float64(bytes))
}

// CountReceived implements transport.TrafficCounterSink.
func (s *SessionSink) CountReceived(packets, bytes uint64) {
	s.c.PacketsReceived.WithLabelValues(s.role).Add(float64(packets))
	s.c.BytesReceived.WithLabelValues(s.role).Add(float64(bytes))
}

// Package metrics exposes prometheus collectors for the runtime. All
// methods are nil-safe so callers never have to guard on whether metrics
// were enabled.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "stagehand"

// Metrics tracks connection and dispatch statistics.
type Metrics struct {
	connectsTotal          prometheus.Counter
	reconnectsTotal        prometheus.Counter
	heartbeatTimeoutsTotal prometheus.Counter
	inboundTotal           *prometheus.CounterVec
	handlerErrorsTotal     *prometheus.CounterVec
	pendingCalls           prometheus.Gauge
	dispatchSeconds        *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg keeps
// the collectors unregistered but still usable.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "connects_total",
			Help:      "Successful connection establishments.",
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts after a lost connection.",
		}),
		heartbeatTimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "heartbeat_timeouts_total",
			Help:      "Forced terminations after a missed pong.",
		}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "inbound_messages_total",
			Help:      "Inbound envelopes by message type.",
		}, []string{"message_type"}),
		handlerErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "handler_errors_total",
			Help:      "Reply-level errors produced per handler.",
		}, []string{"handler"}),
		pendingCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "pending_calls",
			Help:      "Round-trip calls currently awaiting a reply.",
		}),
		dispatchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "dispatch_seconds",
			Help:      "Time spent handling one inbound request envelope.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"message_type"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.connectsTotal,
			m.reconnectsTotal,
			m.heartbeatTimeoutsTotal,
			m.inboundTotal,
			m.handlerErrorsTotal,
			m.pendingCalls,
			m.dispatchSeconds,
		)
	}
	return m
}

// IncConnects records a successful connection.
func (m *Metrics) IncConnects() {
	if m != nil {
		m.connectsTotal.Inc()
	}
}

// IncReconnects records a reconnect attempt.
func (m *Metrics) IncReconnects() {
	if m != nil {
		m.reconnectsTotal.Inc()
	}
}

// IncHeartbeatTimeouts records a forced close after a missed pong.
func (m *Metrics) IncHeartbeatTimeouts() {
	if m != nil {
		m.heartbeatTimeoutsTotal.Inc()
	}
}

// IncInbound records one inbound envelope.
func (m *Metrics) IncInbound(messageType string) {
	if m != nil {
		m.inboundTotal.WithLabelValues(messageType).Inc()
	}
}

// IncHandlerErrors records reply-level errors for a handler.
func (m *Metrics) IncHandlerErrors(handler string, n int) {
	if m != nil && n > 0 {
		m.handlerErrorsTotal.WithLabelValues(handler).Add(float64(n))
	}
}

// AddPendingCalls moves the outstanding-call gauge by delta.
func (m *Metrics) AddPendingCalls(delta int) {
	if m != nil {
		m.pendingCalls.Add(float64(delta))
	}
}

// ObserveDispatch records the handling duration of one request envelope.
func (m *Metrics) ObserveDispatch(messageType string, seconds float64) {
	if m != nil {
		m.dispatchSeconds.WithLabelValues(messageType).Observe(seconds)
	}
}

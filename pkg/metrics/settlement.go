package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics counts settlement attempts and tracks armed in-process timers.
type SettlementMetrics struct {
	attempts *prometheus.CounterVec
	armed    prometheus.Gauge
}

// NewSettlementMetrics registers settlement metrics on reg. A nil registerer yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	m := &SettlementMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "attempts_total",
			Help:      "Settlement attempts by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		armed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "armed_timers",
			Help:      "Auto-payment timers currently scheduled in this process.",
		}),
	}
	reg.MustRegister(m.attempts, m.armed)
	return m
}

// ObserveAttempt counts one settlement attempt.
func (m *SettlementMetrics) ObserveAttempt(trigger, outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(trigger), normalizeLabel(outcome)).Inc()
}

// SetArmedTimers reports the current number of scheduled timers.
func (m *SettlementMetrics) SetArmedTimers(n int) {
	if m == nil || m.armed == nil {
		return
	}
	m.armed.Set(float64(n))
}

package authclient

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts refresh coordination events. A nil *Metrics records nothing.
type Metrics struct {
	refreshes     *prometheus.CounterVec
	waiters       prometheus.Counter
	replays       *prometheus.CounterVec
	invalidations prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitals",
			Subsystem: "client",
			Name:      "refresh_total",
			Help:      "Credential renewals by outcome (success, failure, skipped).",
		}, []string{"outcome"}),
		waiters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vitals",
			Subsystem: "client",
			Name:      "refresh_waiters_total",
			Help:      "Requests that joined a renewal already in flight.",
		}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitals",
			Subsystem: "client",
			Name:      "replay_total",
			Help:      "Requests replayed after renewal by outcome (ok, rejected, error).",
		}, []string{"outcome"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vitals",
			Subsystem: "client",
			Name:      "invalidations_total",
			Help:      "Sessions invalidated.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.refreshes, m.waiters, m.replays, m.invalidations)
	}
	return m
}

func (m *Metrics) refresh(outcome string) {
	if m != nil {
		m.refreshes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) waiter() {
	if m != nil {
		m.waiters.Inc()
	}
}

func (m *Metrics) replay(outcome string) {
	if m != nil {
		m.replays.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) invalidation() {
	if m != nil {
		m.invalidations.Inc()
	}
}

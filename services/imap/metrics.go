package imap

import (
	"github.com/prometheus/client_golang/prometheus"
)

type PoolMetrics struct {
	sessions  *prometheus.GaugeVec
	dials     *prometheus.CounterVec
	evictions *prometheus.CounterVec
	exhausted prometheus.Counter
}

// NewPoolMetrics registers the pool collectors on reg; a nil registerer keeps them unregistered.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	m := &PoolMetrics{
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailsync_imap_pool_sessions",
			Help: "Pooled IMAP sessions per account and state.",
		}, []string{"account", "state"}),
		dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailsync_imap_dial_total",
			Help: "IMAP connection attempts by result.",
		}, []string{"result"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailsync_imap_pool_evictions_total",
			Help: "Pooled sessions evicted, by reason.",
		}, []string{"reason"}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailsync_imap_pool_exhausted_total",
			Help: "Acquire calls rejected because every session of the account was in use.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sessions, m.dials, m.evictions, m.exhausted)
	}
	return m
}

package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/customeros/mailsync/internal/enum"
)

type Metrics struct {
	ticks             *prometheus.CounterVec
	tickDuration      prometheus.Histogram
	messagesProcessed prometheus.Counter
	skips             *prometheus.CounterVec
	audits            *prometheus.CounterVec
}

// NewMetrics registers the sync collectors on reg; a nil registerer keeps them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailsync_sync_ticks_total",
			Help: "Account sync ticks by result.",
		}, []string{"result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailsync_sync_tick_duration_seconds",
			Help:    "Duration of completed account sync ticks.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
		messagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailsync_sync_messages_processed_total",
			Help: "Messages fetched and mirrored by sync ticks.",
		}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailsync_sync_skips_total",
			Help: "Sync ticks skipped, by reason.",
		}, []string{"reason"}),
		audits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailsync_consistency_audits_total",
			Help: "Consistency maintenance runs triggered by the scheduler, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.ticks, m.tickDuration, m.messagesProcessed, m.skips, m.audits)
	}
	return m
}

func (m *Metrics) observeTick(action enum.SyncAction, duration time.Duration, messages int) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(action.String()).Inc()
	if action == enum.SyncActionSuccess || action == enum.SyncActionError {
		m.tickDuration.Observe(duration.Seconds())
	}
	if messages > 0 {
		m.messagesProcessed.Add(float64(messages))
	}
}

func (m *Metrics) observeSkip(reason string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(enum.SyncActionSkip.String()).Inc()
	m.skips.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeAudit(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "error"
	}
	m.audits.WithLabelValues(result).Inc()
}

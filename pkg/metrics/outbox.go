package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks the outbox relay. A nil value records nothing.
type OutboxMetrics struct {
	published     *prometheus.CounterVec
	retried       *prometheus.CounterVec
	deadLettered  *prometheus.CounterVec
	held          prometheus.Counter
	batchDuration prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_outbox_published_total",
			Help: "Outbox events acknowledged by Pub/Sub, by topic.",
		}, []string{"topic"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_outbox_retry_total",
			Help: "Outbox publishes that failed and will be retried, by topic.",
		}, []string{"topic"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_outbox_dead_lettered_total",
			Help: "Outbox events moved to the DLQ, by reason.",
		}, []string{"reason"}),
		held: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_outbox_held_total",
			Help: "Outbox events deferred behind an earlier failure on the same aggregate.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "settlement_outbox_batch_duration_seconds",
			Help:    "Time spent publishing one outbox batch.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.published, m.retried, m.deadLettered, m.held, m.batchDuration)
	return m
}

func (m *OutboxMetrics) IncPublished(topic string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(topic)).Inc()
}

func (m *OutboxMetrics) IncRetried(topic string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(topic)).Inc()
}

func (m *OutboxMetrics) IncDeadLettered(reason string) {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *OutboxMetrics) IncHeld() {
	if m == nil || m.held == nil {
		return
	}
	m.held.Inc()
}

func (m *OutboxMetrics) ObserveBatch(d time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}

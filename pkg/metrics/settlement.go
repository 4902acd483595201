package metrics

import "github.com/prometheus/client_golang/prometheus"

// SettlementMetrics counts payment applications and inventory side effects.
type SettlementMetrics struct {
	applied        *prometheus.CounterVec
	duplicates     *prometheus.CounterVec
	shortfalls     prometheus.Counter
	restoreFailure prometheus.Counter
	orphaned       prometheus.Counter
}

// NewSettlementMetrics registers the settlement counters on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	applied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_payments_applied_total",
		Help: "Payments that moved an order to paid, by channel.",
	}, []string{"channel"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_payments_duplicate_total",
		Help: "Payment applications that found the order already paid, by channel.",
	}, []string{"channel"})
	shortfalls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_stock_shortfall_total",
		Help: "Fulfillment units whose stock decrement failed after payment.",
	})
	restoreFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_stock_restore_failed_total",
		Help: "Fulfillment units whose stock could not be restored on cancel.",
	})
	orphaned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_payments_orphaned_total",
		Help: "Captured payments for orders that were already cancelled.",
	})
	reg.MustRegister(applied, duplicates, shortfalls, restoreFailure, orphaned)
	return &SettlementMetrics{
		applied:        applied,
		duplicates:     duplicates,
		shortfalls:     shortfalls,
		restoreFailure: restoreFailure,
		orphaned:       orphaned,
	}
}

func (m *SettlementMetrics) IncApplied(channel string) {
	if m == nil || m.applied == nil {
		return
	}
	m.applied.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *SettlementMetrics) IncDuplicate(channel string) {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *SettlementMetrics) IncStockShortfall() {
	if m == nil || m.shortfalls == nil {
		return
	}
	m.shortfalls.Inc()
}

func (m *SettlementMetrics) IncStockRestoreFailed() {
	if m == nil || m.restoreFailure == nil {
		return
	}
	m.restoreFailure.Inc()
}

func (m *SettlementMetrics) IncOrphaned() {
	if m == nil || m.orphaned == nil {
		return
	}
	m.orphaned.Inc()
}

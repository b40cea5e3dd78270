package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ReconciliationMetrics records how often stored balances drift from the ledger.
type ReconciliationMetrics struct {
	accounts *prometheus.CounterVec
	failures prometheus.Counter
	dropped  prometheus.Counter
}

// NewReconciliationMetrics registers the reconciliation metrics on the provided registerer.
func NewReconciliationMetrics(reg prometheus.Registerer) *ReconciliationMetrics {
	if reg == nil {
		return &ReconciliationMetrics{}
	}
	accounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_reconciled_accounts_total",
		Help: "Accounts reconciled by outcome.",
	}, []string{"outcome"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_reconciliation_failures_total",
		Help: "Accounts whose reconciliation returned an error.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_repair_queue_dropped_total",
		Help: "Repair requests dropped because the queue was full.",
	})
	reg.MustRegister(accounts, failures, dropped)
	return &ReconciliationMetrics{accounts: accounts, failures: failures, dropped: dropped}
}

func (m *ReconciliationMetrics) IncOutcome(outcome string) {
	if m == nil || m.accounts == nil {
		return
	}
	m.accounts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *ReconciliationMetrics) IncFailure() {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.Inc()
}

func (m *ReconciliationMetrics) IncDropped() {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.Inc()
}

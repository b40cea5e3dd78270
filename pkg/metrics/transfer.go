package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transfer outcomes.
const (
	OutcomeSettled  = "settled"
	OutcomeReplayed = "replayed"
	OutcomeDeferred = "deferred"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// TransferMetrics records settlement outcomes and latency.
type TransferMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lockWait prometheus.Histogram
	retries  prometheus.Counter
}

// NewTransferMetrics registers the transfer metrics on the provided registerer.
func NewTransferMetrics(reg prometheus.Registerer) *TransferMetrics {
	if reg == nil {
		return &TransferMetrics{}
	}
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_transfers_total",
		Help: "Transfers by kind and outcome.",
	}, []string{"kind", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_transfer_duration_seconds",
		Help:    "End-to-end transfer latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wallet_transfer_lock_wait_seconds",
		Help:    "Time spent waiting for account locks.",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_ledger_append_retries_total",
		Help: "Ledger append attempts that were retried.",
	})
	reg.MustRegister(total, duration, lockWait, retries)
	return &TransferMetrics{total: total, duration: duration, lockWait: lockWait, retries: retries}
}

// Observe records one finished transfer.
func (m *TransferMetrics) Observe(kind, outcome string, elapsed time.Duration) {
	if m == nil || m.total == nil {
		return
	}
	m.total.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(kind)).Observe(elapsed.Seconds())
}

func (m *TransferMetrics) ObserveLockWait(elapsed time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(elapsed.Seconds())
}

func (m *TransferMetrics) IncAppendRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transaction lifecycle metrics
	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Total number of submitted ledger transactions",
		},
		[]string{"function", "status"},
	)

	transactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_transaction_duration_seconds",
			Help:    "Duration of submitted ledger transactions, proposal to commit",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"function"},
	)

	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_evaluations_total",
			Help: "Total number of read-only ledger evaluations",
		},
		[]string{"function", "status"},
	)

	// Gateway retry metrics
	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_transient_retries_total",
			Help: "Total number of transient connectivity retries performed by the gateway",
		},
		[]string{"operation"},
	)

	endorsementMismatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_endorsement_mismatches_total",
			Help: "Total number of endorsement mismatches detected (non-determinism signal)",
		},
	)

	concurrencyConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_concurrency_conflicts_total",
			Help: "Total number of transactions invalidated by optimistic-concurrency conflicts",
		},
	)
)

func init() {
	prometheus.MustRegister(
		transactionsTotal,
		transactionDuration,
		evaluationsTotal,
		retriesTotal,
		endorsementMismatchesTotal,
		concurrencyConflictsTotal,
	)
}

// RecordTransaction records the outcome and duration of a Submit call
func RecordTransaction(function, status string, duration time.Duration) {
	transactionsTotal.WithLabelValues(function, status).Inc()
	transactionDuration.WithLabelValues(function).Observe(duration.Seconds())
}

// RecordEvaluation records the outcome of an Evaluate call
func RecordEvaluation(function, status string) {
	evaluationsTotal.WithLabelValues(function, status).Inc()
}

// RecordRetry records a transient connectivity retry
func RecordRetry(operation string) {
	retriesTotal.WithLabelValues(operation).Inc()
}

// RecordEndorsementMismatch records a detected endorsement mismatch
func RecordEndorsementMismatch() {
	endorsementMismatchesTotal.Inc()
}

// RecordConcurrencyConflict records an MVCC invalidation
func RecordConcurrencyConflict() {
	concurrencyConflictsTotal.Inc()
}

// Handler returns the HTTP handler exposing registered metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

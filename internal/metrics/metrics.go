package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qpg_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Ledger operations (payment|transfer|adjustment|registration|set_points)
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qpg_ledger_operations_total",
			Help: "Ledger operations by outcome",
		},
		[]string{"operation", "outcome"},
	)
	OperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qpg_ledger_operation_duration_seconds",
			Help:    "Latency of ledger operations including retries.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Optimistic commits
	CommitConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qpg_commit_conflicts_total",
			Help: "Atomic units discarded because a read record changed",
		},
	)
	CommitsExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qpg_commit_retries_exhausted_total",
			Help: "Atomic units that gave up after max attempts",
		},
	)

	// Sweeper
	OrdersExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qpg_orders_expired_total",
			Help: "PENDING orders failed by the expiry sweeper",
		},
	)

	initOnce sync.Once
)

// Handler serves the /metrics endpoint.
var Handler = promhttp.Handler

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestsTotal)
		prometheus.MustRegister(OperationsTotal)
		prometheus.MustRegister(OperationLatency)
		prometheus.MustRegister(CommitConflicts)
		prometheus.MustRegister(CommitsExhausted)
		prometheus.MustRegister(OrdersExpired)
	})
}

// ObserveOperation records the outcome and latency of one ledger operation.
func ObserveOperation(operation, outcome string, start time.Time) {
	OperationsTotal.WithLabelValues(operation, outcome).Inc()
	OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks outbound calls to the settlement node.
	SettleRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settle_node_requests_total",
			Help: "Total number of settlement node requests made (by endpoint and status).",
		},
		[]string{"endpoint", "status"},
	)

	// Measures duration of instruction submissions, end to end.
	SubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settle_submission_duration_seconds",
			Help:    "Duration of signed-instruction submissions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"operation"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settle_submissions_total",
			Help: "Signed-instruction submissions by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vesting_ledger_operations_total",
			Help: "Ledger mutations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	AvailableBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vesting_pool_available_balance",
			Help: "Unencumbered pool balance in base units (float approximation).",
		},
	)

	ActiveTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vesting_active_tokens",
			Help: "Number of tokens currently in ACTIVE status.",
		},
	)

	ReconciliationGaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vesting_reconciliation_gaps_total",
			Help: "Exchange payouts whose settlement acknowledgement was lost.",
		},
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_publish_duration_seconds",
			Help:    "Duration of NATS publishes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"subject"},
	)

	NATSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "NATS publishes by subject and outcome.",
		},
		[]string{"subject", "outcome"},
	)
)

// ObserveDuration records the time taken since start on the given histogram.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncSettleRequest(endpoint, status string) {
	SettleRequestsTotal.WithLabelValues(endpoint, status).Inc()
}

func IncSubmission(operation, outcome string) {
	SubmissionsTotal.WithLabelValues(operation, outcome).Inc()
}

func IncLedgerOp(operation, outcome string) {
	LedgerOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

func IncNATSMessage(subject, outcome string) {
	NATSMessagesTotal.WithLabelValues(subject, outcome).Inc()
}

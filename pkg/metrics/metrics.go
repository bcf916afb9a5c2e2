package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SubmissionsTotal counts payout submissions by result
var SubmissionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "instapay_submissions_total",
		Help: "Total number of payout submissions by result",
	},
	[]string{"channel", "result"},
)

// PollsTotal counts status polls by outcome (settled, pending, skipped, error)
var PollsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "instapay_polls_total",
		Help: "Total number of settlement status polls by outcome",
	},
	[]string{"outcome"},
)

// LedgerPostings counts voucher postings by result (posted, no_voucher, error)
var LedgerPostings = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "instapay_ledger_postings_total",
		Help: "Total number of ledger posting attempts by result",
	},
	[]string{"result"},
)

// SkippedCycles counts scheduler firings dropped because a cycle was still running
var SkippedCycles = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "instapay_reconcile_skipped_total",
		Help: "Scheduler firings skipped because a reconcile cycle was in flight",
	},
)

// GatewayLatency records gateway round trip latency by operation
var GatewayLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "instapay_gateway_latency_seconds",
		Help:    "Latency in seconds of settlement gateway calls",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// CycleDuration records the wall time of a reconcile cycle
var CycleDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "instapay_reconcile_cycle_seconds",
		Help:    "Duration in seconds of a full reconcile cycle",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	},
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "instapay_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "instapay_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

// HTTP request metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instapay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "instapay_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(SubmissionsTotal, PollsTotal, LedgerPostings, SkippedCycles)
	prometheus.MustRegister(GatewayLatency, CycleDuration)
	prometheus.MustRegister(DBOpenConns, DBInUseConns)
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration)
}

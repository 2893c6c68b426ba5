// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Evaluation metrics
	EvaluationCycles    *prometheus.CounterVec
	CyclesSkipped       prometheus.Counter
	AccountsScanned     prometheus.Counter
	Decisions           *prometheus.CounterVec
	PairingsRepaired    prometheus.Counter
	EvaluationErrors    *prometheus.CounterVec
	CycleDuration       prometheus.Histogram
	LastSuccessfulCycle prometheus.Gauge

	// Broker sync metrics
	SyncRuns           *prometheus.CounterVec
	AccountsSynced     prometheus.Counter
	SyncErrors         prometheus.Counter
	SyncDuration       prometheus.Histogram
	LastSuccessfulSync prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "syntax_engine"
	}

	return &Metrics{
		EvaluationCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "cycles_total",
			Help:      "Total number of evaluation cycles by status",
		}, []string{"status"}),
		CyclesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "cycles_skipped_total",
			Help:      "Total number of ticks skipped because a cycle was still running",
		}),
		AccountsScanned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "accounts_scanned_total",
			Help:      "Total number of active trading states scanned",
		}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "decisions_total",
			Help:      "Total number of challenge decisions committed by outcome",
		}, []string{"decision"}),
		PairingsRepaired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "pairings_repaired_total",
			Help:      "Total number of decided accounts whose trading state was re-marked completed",
		}),
		EvaluationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "errors_total",
			Help:      "Total number of evaluation errors by stage",
		}, []string{"stage"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "cycle_duration_seconds",
			Help:      "Evaluation cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last completed evaluation cycle",
		}),

		SyncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "sync_runs_total",
			Help:      "Total number of broker sync runs by status",
		}, []string{"status"}),
		AccountsSynced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "accounts_synced_total",
			Help:      "Total number of accounts successfully synced from the broker",
		}),
		SyncErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "sync_errors_total",
			Help:      "Total number of per-account broker sync failures",
		}),
		SyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "sync_duration_seconds",
			Help:      "Broker sync run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of the last completed broker sync run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCycle records a finished evaluation cycle.
func RecordCycle(status string, durationSeconds float64) {
	DefaultMetrics.EvaluationCycles.WithLabelValues(status).Inc()
	DefaultMetrics.CycleDuration.Observe(durationSeconds)
}

// RecordCycleSkipped increments the skipped-tick counter.
func RecordCycleSkipped() {
	DefaultMetrics.CyclesSkipped.Inc()
}

// RecordDecision increments the decision counter for an outcome.
func RecordDecision(decision string) {
	DefaultMetrics.Decisions.WithLabelValues(decision).Inc()
}

// RecordEvaluationError records a per-account evaluation error.
func RecordEvaluationError(stage string) {
	DefaultMetrics.EvaluationErrors.WithLabelValues(stage).Inc()
}

// RecordSyncRun records a finished broker sync run.
func RecordSyncRun(status string, durationSeconds float64) {
	DefaultMetrics.SyncRuns.WithLabelValues(status).Inc()
	DefaultMetrics.SyncDuration.Observe(durationSeconds)
}

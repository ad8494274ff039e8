// Package observability provides Prometheus metrics for the mint workflow.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	usecase "blockto/internal/application/usecase"
	ledgerdom "blockto/internal/domain/ledger"
	transferdom "blockto/internal/domain/transfer"
	"blockto/internal/infra/solana"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry

	// Workflow metrics
	OutcomesTotal    *prometheus.CounterVec
	WorkflowDuration prometheus.Histogram
	StageDuration    *prometheus.HistogramVec
	StrandedAssets   *prometheus.CounterVec

	// Ledger metrics
	SubmissionsTotal   *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec

	// HTTP metrics
	RateLimited prometheus.Counter
}

var (
	_ usecase.WorkflowObserver  = (*Metrics)(nil)
	_ solana.SubmissionObserver = (*Metrics)(nil)
)

// ledger round trips are seconds to minutes
var ledgerBuckets = []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "blockto"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		OutcomesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "outcomes_total",
			Help:      "Mint-and-transfer outcomes by result and error kind",
		}, []string{"result", "error_kind"}),
		WorkflowDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "workflow_duration_seconds",
			Help:      "End-to-end mint-and-transfer duration in seconds",
			Buckets:   ledgerBuckets,
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "stage_duration_seconds",
			Help:      "Time spent reaching each workflow stage",
			Buckets:   ledgerBuckets,
		}, []string{"stage", "result"}),
		StrandedAssets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "stranded_assets_total",
			Help:      "Assets minted into custody that did not reach the recipient",
		}, []string{"kind"}),

		SubmissionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "submissions_total",
			Help:      "Ledger transactions by intent kind and final status",
		}, []string{"intent", "status"}),
		SubmissionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "submission_duration_seconds",
			Help:      "Submit-and-await latency in seconds",
			Buckets:   ledgerBuckets,
		}, []string{"intent"}),

		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Mint requests rejected by the per-recipient rate limit",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveStage(stage transferdom.Stage, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StageDuration.WithLabelValues(string(stage), result).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveOutcome(out transferdom.Outcome, elapsed time.Duration) {
	result := "success"
	if !out.Success {
		result = "failure"
	}
	m.OutcomesTotal.WithLabelValues(result, string(out.ErrorKind)).Inc()
	m.WorkflowDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveStranded(kind transferdom.Kind) {
	m.StrandedAssets.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ObserveSubmission(kind ledgerdom.IntentKind, status ledgerdom.Status, elapsed time.Duration) {
	m.SubmissionsTotal.WithLabelValues(string(kind), string(status)).Inc()
	m.SubmissionDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// ObserveRateLimited counts a rejected request.
func (m *Metrics) ObserveRateLimited() { m.RateLimited.Inc() }

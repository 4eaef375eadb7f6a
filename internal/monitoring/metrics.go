// Package monitoring exposes prometheus metrics for the resolution
// pipeline and runs a background health checker with webhook alerts.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's prometheus instruments on a private
// registry, so the /metrics endpoint never leaks default collectors.
type Metrics struct {
	registry *prometheus.Registry

	recordsTotal    *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	signalsTotal    *prometheus.CounterVec
	providerCalls   *prometheus.CounterVec
	providerCostUSD prometheus.Counter
	holdingDepth    prometheus.Gauge
	warmCompanies   prometheus.Gauge
}

// NewMetrics creates and registers the pipeline instruments.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	recordsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intent",
			Subsystem: "pipeline",
			Name:      "records_total",
			Help:      "Processed intake records by type and terminal status.",
		},
		[]string{"type", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intent",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	signalsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intent",
			Subsystem: "signals",
			Name:      "emitted_total",
			Help:      "Stored intent signals by kind; deduplicated signals are not counted.",
		},
		[]string{"kind"},
	)
	providerCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intent",
			Subsystem: "pattern",
			Name:      "provider_calls_total",
			Help:      "Pattern provider calls by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	providerCostUSD := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intent",
			Subsystem: "pattern",
			Name:      "provider_cost_usd_total",
			Help:      "Cumulative paid-provider spend in USD.",
		},
	)
	holdingDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "intent",
			Subsystem: "holding",
			Name:      "queue_depth",
			Help:      "Current holding-queue depth.",
		},
	)
	warmCompanies := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "intent",
			Subsystem: "score",
			Name:      "warm_companies",
			Help:      "Companies at or above the warm threshold.",
		},
	)

	registry.MustRegister(
		recordsTotal,
		stageDuration,
		signalsTotal,
		providerCalls,
		providerCostUSD,
		holdingDepth,
		warmCompanies,
	)

	return &Metrics{
		registry:        registry,
		recordsTotal:    recordsTotal,
		stageDuration:   stageDuration,
		signalsTotal:    signalsTotal,
		providerCalls:   providerCalls,
		providerCostUSD: providerCostUSD,
		holdingDepth:    holdingDepth,
		warmCompanies:   warmCompanies,
	}
}

// Handler serves the registry for prometheus scrapes.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordProcessed counts one terminal record outcome.
func (m *Metrics) RecordProcessed(recordType, status string) {
	m.recordsTotal.WithLabelValues(recordType, status).Inc()
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordSignal counts one stored signal.
func (m *Metrics) RecordSignal(kind string) {
	m.signalsTotal.WithLabelValues(kind).Inc()
}

// RecordProviderCall counts one pattern provider call.
func (m *Metrics) RecordProviderCall(provider, outcome string, costUSD float64) {
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	if costUSD > 0 {
		m.providerCostUSD.Add(costUSD)
	}
}

// SetSnapshot publishes gauge values from a collector snapshot.
func (m *Metrics) SetSnapshot(snap *Snapshot) {
	m.holdingDepth.Set(float64(snap.HoldingDepth))
	m.warmCompanies.Set(float64(snap.WarmCompanies))
}

// Package metrics exposes Prometheus instrumentation for the research
// engine: row outcomes, rate-limit pressure, fallback usage, active jobs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all engine Prometheus collectors.
type Metrics struct {
	RowsProcessed *prometheus.CounterVec
	RateLimitHits *prometheus.CounterVec
	FallbackCalls prometheus.Counter
	EmailDrafts   prometheus.Counter
	ActiveJobs    prometheus.Gauge
	SpendUSD      *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a metrics set on its own registry so tests can build as many
// as they need without collisions.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		RowsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "research_rows_processed_total",
			Help: "Rows finished by final status and provider",
		}, []string{"status", "provider"}),

		RateLimitHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "research_rate_limit_hits_total",
			Help: "Rate-limit rejections observed per provider",
		}, []string{"provider"}),

		FallbackCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "research_fallback_calls_total",
			Help: "Escalation calls issued to fallback providers",
		}),

		EmailDrafts: factory.NewCounter(prometheus.CounterOpts{
			Name: "research_email_drafts_total",
			Help: "Derived email drafts generated",
		}),

		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "research_active_jobs",
			Help: "Jobs currently in a run loop",
		}),

		SpendUSD: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "research_spend_usd_total",
			Help: "Accumulated provider spend in USD",
		}, []string{"provider"}),

		registry: reg,
	}
}

// Handler serves this metrics set for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRow counts one finished row.
func (m *Metrics) RecordRow(status, provider string) {
	m.RowsProcessed.WithLabelValues(status, provider).Inc()
}

// RecordRateLimit counts one rate-limit rejection.
func (m *Metrics) RecordRateLimit(provider string) {
	m.RateLimitHits.WithLabelValues(provider).Inc()
}

// RecordSpend accumulates provider spend.
func (m *Metrics) RecordSpend(provider string, usd float64) {
	if usd > 0 {
		m.SpendUSD.WithLabelValues(provider).Add(usd)
	}
}

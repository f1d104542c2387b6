// Package metrics exposes prometheus instrumentation for the extraction
// engine. All collectors live on a dedicated registry so the /metrics
// endpoint only shows this tool's series.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nasalciuc/darwinscrape/models"
)

// Metrics bundles the collectors. All methods are nil-safe so callers can
// run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	attemptsTotal    *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	recordsTotal     *prometheus.CounterVec
	failuresTotal    *prometheus.CounterVec
	cooldownsTotal   prometheus.Counter
	cacheHitsTotal   prometheus.Counter
	effectiveWorkers prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "darwinscrape",
			Name:      "attempts_total",
			Help:      "Extraction attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "darwinscrape",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of single extraction attempts.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "darwinscrape",
			Name:      "records_total",
			Help:      "Extracted product records by quality verdict.",
		}, []string{"verdict"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "darwinscrape",
			Name:      "url_failures_total",
			Help:      "Terminally failed URLs by failure code.",
		}, []string{"code"}),
		cooldownsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "darwinscrape",
			Name:      "governor_cooldowns_total",
			Help:      "Cooldown windows opened by the rate governor.",
		}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "darwinscrape",
			Name:      "cache_hits_total",
			Help:      "Record cache hits that skipped a fetch.",
		}),
		effectiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "darwinscrape",
			Name:      "effective_workers",
			Help:      "Workers currently allowed to pull jobs.",
		}),
	}

	m.registry.MustRegister(
		m.attemptsTotal,
		m.attemptDuration,
		m.recordsTotal,
		m.failuresTotal,
		m.cooldownsTotal,
		m.cacheHitsTotal,
		m.effectiveWorkers,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAttempt records one (method, outcome, duration) attempt.
func (m *Metrics) ObserveAttempt(method models.Method, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.attemptsTotal.WithLabelValues(string(method), outcome).Inc()
	m.attemptDuration.WithLabelValues(string(method)).Observe(d.Seconds())
}

// ObserveRecord counts one extracted record under its verdict.
func (m *Metrics) ObserveRecord(verdict models.Verdict) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(string(verdict)).Inc()
}

// ObserveFailure counts one terminally failed URL.
func (m *Metrics) ObserveFailure(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = models.ErrCodeInternal
	}
	m.failuresTotal.WithLabelValues(code).Inc()
}

// ObserveCooldown counts one governor cooldown window.
func (m *Metrics) ObserveCooldown() {
	if m == nil {
		return
	}
	m.cooldownsTotal.Inc()
}

// ObserveCacheHit counts one cache hit.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

// SetEffectiveWorkers reports the current effective worker count.
func (m *Metrics) SetEffectiveWorkers(n int) {
	if m == nil {
		return
	}
	m.effectiveWorkers.Set(float64(n))
}

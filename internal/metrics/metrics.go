// Package metrics exposes querybot's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "querybot"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	decisions  *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    prometheus.Histogram
	inFlight   prometheus.Gauge
	answers    *prometheus.CounterVec
	httpServed *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Utterances classified, by cascade stage and route.",
		}, []string{"reason", "route"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_failures_total",
			Help:      "Failed Query Service calls, by error kind.",
		}, []string{"kind"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query Service call latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queries_in_flight",
			Help:      "Query Service calls currently outstanding.",
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_answers_total",
			Help:      "Questions answered by the reference backend, by translator rule.",
		}, []string{"rule"}),
		httpServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		m.decisions, m.failures, m.latency, m.inFlight, m.answers, m.httpServed,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "go_goroutines",
			Help: "Number of active goroutines.",
		}, func() float64 { return float64(runtime.NumGoroutine()) }),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Decision counts one routing decision.
func (m *Metrics) Decision(reason string, remote bool) {
	if m == nil {
		return
	}
	route := "local"
	if remote {
		route = "remote"
	}
	m.decisions.WithLabelValues(reason, route).Inc()
}

// QueryStarted marks a call in flight and returns a func that records its
// completion. kind is empty on success.
func (m *Metrics) QueryStarted() func(kind string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func(kind string) {
		m.inFlight.Dec()
		m.latency.Observe(time.Since(start).Seconds())
		if kind != "" {
			m.failures.WithLabelValues(kind).Inc()
		}
	}
}

// Answered counts a question answered by the reference backend.
func (m *Metrics) Answered(rule string) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(rule).Inc()
}

// Served counts an HTTP response.
func (m *Metrics) Served(route, code string) {
	if m == nil {
		return
	}
	m.httpServed.WithLabelValues(route, code).Inc()
}

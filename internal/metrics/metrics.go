package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the portal's Prometheus metrics on a private registry.
type Registry struct {
	registry *prometheus.Registry

	Evaluations  *prometheus.CounterVec
	Violations   *prometheus.CounterVec
	PolicySaves  *prometheus.CounterVec
	Triage       *prometheus.CounterVec
	FeedFetch    *prometheus.HistogramVec
	HTTPRequests *prometheus.CounterVec
	OpenItems    prometheus.Gauge
}

// New creates and registers all portal metrics.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_portal_policy_evaluations_total",
				Help: "Transactions evaluated against a card policy, by outcome",
			},
			[]string{"outcome"},
		),

		Violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_portal_policy_violations_total",
				Help: "Policy violations reported, by kind",
			},
			[]string{"kind"},
		),

		PolicySaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_portal_policy_saves_total",
				Help: "Policy save attempts, by result",
			},
			[]string{"result"},
		),

		Triage: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_portal_triage_actions_total",
				Help: "Exception triage actions, by decision and result",
			},
			[]string{"decision", "result"},
		),

		FeedFetch: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_portal_feed_fetch_seconds",
				Help:    "Duration of feed fetches in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"feed", "result"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_portal_http_requests_total",
				Help: "HTTP requests served, by method and status code",
			},
			[]string{"method", "code"},
		),

		OpenItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_portal_open_exceptions",
				Help: "Exceptions currently awaiting triage",
			},
		),
	}

	r.registry.MustRegister(
		r.Evaluations,
		r.Violations,
		r.PolicySaves,
		r.Triage,
		r.FeedFetch,
		r.HTTPRequests,
		r.OpenItems,
		collectors.NewGoCollector(),
	)
	return r
}

// ObserveFetch records how long a feed fetch took.
func (r *Registry) ObserveFetch(feed string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.FeedFetch.WithLabelValues(feed, result).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

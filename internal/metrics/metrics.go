package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	Analyses            *prometheus.CounterVec
	InferenceFailures   *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	InferenceDuration   prometheus.Histogram
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mushroom_analyses_total",
			Help: "Completed classifications by verdict.",
		}, []string{"verdict"}),
		InferenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mushroom_inference_failures_total",
			Help: "Failed classifications by error kind.",
		}, []string{"kind"}),
		PersistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mushroom_persistence_failures_total",
			Help: "Log store failures by operation.",
		}, []string{"op"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mushroom_inference_duration_seconds",
			Help:    "Round trip time of calls to the classification endpoint.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.Analyses,
		m.InferenceFailures,
		m.PersistenceFailures,
		m.InferenceDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

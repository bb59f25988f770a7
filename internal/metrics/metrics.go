// Package metrics exposes Prometheus metrics for requests made to ACME servers
// and for probe runs.
//
// acmewire_http_acme_client_request_count{"scheme", "host", "path", "method", "status"}
// acmewire_http_acme_client_request_duration_seconds{"scheme", "host", "path", "method", "status"}
// acmewire_probe_result_count{"directory", "result"}
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "acmewire"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	acmeClientRequestCount           *prometheus.CounterVec
	acmeClientRequestDurationSeconds *prometheus.SummaryVec
	probeResultCount                 *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		acmeClientRequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "acme_client_request_count",
				Help:      "The number of requests made by the ACME client.",
			},
			[]string{"scheme", "host", "path", "method", "status"},
		),
		acmeClientRequestDurationSeconds: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace:  namespace,
				Subsystem:  "http",
				Name:       "acme_client_request_duration_seconds",
				Help:       "The HTTP request latencies in seconds for the ACME client.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"scheme", "host", "path", "method", "status"},
		),
		probeResultCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "result_count",
				Help:      "The number of directory probes by result.",
			},
			[]string{"directory", "result"},
		),
	}
	m.registry.MustRegister(
		m.acmeClientRequestCount,
		m.acmeClientRequestDurationSeconds,
		m.probeResultCount,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveACMERequestDuration records the duration of one ACME request.
func (m *Metrics) ObserveACMERequestDuration(duration time.Duration, labels ...string) {
	m.acmeClientRequestDurationSeconds.WithLabelValues(labels...).Observe(duration.Seconds())
}

// IncrementACMERequestCount increases the ACME client request counter.
func (m *Metrics) IncrementACMERequestCount(labels ...string) {
	m.acmeClientRequestCount.WithLabelValues(labels...).Inc()
}

// IncrementProbeResult counts a finished probe of a directory.
func (m *Metrics) IncrementProbeResult(directory string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.probeResultCount.WithLabelValues(directory, result).Inc()
}

// Package metrics exposes Prometheus collectors for the API and the family
// coordinator.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
)

const namespace = "budgetpal"

type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	retries    *prometheus.CounterVec
	requests   *prometheus.HistogramVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "family_operations_total",
			Help:      "Family operations by name and outcome.",
		}, []string{"operation", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_retries_total",
			Help:      "Requests retried after a concurrent modification.",
		}, []string{"route"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.operations,
		m.retries,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOperation implements family.Recorder.
func (m *Metrics) ObserveOperation(op string, kind core.Kind, ok bool) {
	result := "ok"
	if !ok {
		result = kind.String()
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveRetry(route string) {
	m.retries.WithLabelValues(route).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

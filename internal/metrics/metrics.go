// Package metrics holds the prometheus collectors of the service on a
// private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "equiptrack"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	loanTransitions *prometheus.CounterVec
	partialFailures *prometheus.CounterVec
	writeRetries    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loanTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loan_transitions_total",
			Help:      "Loan open and close attempts by outcome.",
		}, []string{"kind", "action", "outcome"}),
		partialFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_failures_total",
			Help:      "Dual writes whose compensation failed.",
		}, []string{"kind", "action"}),
		writeRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_retries_total",
			Help:      "Store writes retried after a transient failure.",
		}, []string{"op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.loanTransitions,
		m.partialFailures,
		m.writeRetries,
		m.httpRequests,
	)
	return m
}

// LoanTransition counts one open or close attempt.
func (m *Metrics) LoanTransition(kind, action, outcome string) {
	if m == nil {
		return
	}
	m.loanTransitions.WithLabelValues(kind, action, outcome).Inc()
}

// PartialFailure counts a dual write left half applied.
func (m *Metrics) PartialFailure(kind, action string) {
	if m == nil {
		return
	}
	m.partialFailures.WithLabelValues(kind, action).Inc()
}

// WriteRetry counts a retried store write.
func (m *Metrics) WriteRetry(op string) {
	if m == nil {
		return
	}
	m.writeRetries.WithLabelValues(op).Inc()
}

// HTTPRequest counts a served request.
func (m *Metrics) HTTPRequest(method, route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
}

// Registry exposes the registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics exposes Prometheus collectors for the deposit webhook.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	evidence     *prometheus.CounterVec
	indexLookups *prometheus.HistogramVec
	notify       *prometheus.CounterVec
}

// New builds collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "allocator_webhook_requests_total",
			Help: "Allocator webhook deliveries by outcome.",
		}, []string{"outcome"}),
		evidence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "allocator_evidence_verdicts_total",
			Help: "Evidence verdicts by strategy and verdict.",
		}, []string{"strategy", "verdict"}),
		indexLookups: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "allocator_chain_index_lookup_seconds",
			Help:    "Latency of chain index transaction lookups.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		notify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "allocator_notifications_total",
			Help: "Downstream notifications by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.requests, m.evidence, m.indexLookups, m.notify)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveEvidence(strategy, verdict string) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "none"
	}
	m.evidence.WithLabelValues(strategy, verdict).Inc()
}

func (m *Metrics) ObserveIndexLookup(d time.Duration, result string) {
	if m == nil {
		return
	}
	m.indexLookups.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) ObserveNotify(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notify.WithLabelValues(result).Inc()
}

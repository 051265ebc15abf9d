package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the prometheus collectors of the service. A private
// registry is used so several instances can live in the same process.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	statusChanges   *prometheus.CounterVec
	invalidations   *prometheus.CounterVec
}

// NewMetrics builds and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lrap",
			Name:      "http_requests_total",
			Help:      "Number of processed http requests by method and status code.",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lrap",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of http requests by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lrap",
			Name:      "reservation_status_changes_total",
			Help:      "Reservation state changes by outcome.",
		}, []string{"outcome"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lrap",
			Name:      "cache_invalidations_total",
			Help:      "View cache invalidations by source.",
		}, []string{"source"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.statusChanges,
		m.invalidations,
	)
	return m
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveStatusChange records the outcome of a reservation state change.
// The outcome is the reached status on success or the error kind.
func (m *Metrics) ObserveStatusChange(outcome string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(outcome).Inc()
}

// ObserveInvalidation records a view cache invalidation.
func (m *Metrics) ObserveInvalidation(source string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(source).Inc()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Package metrics exposes Prometheus collectors for the HTTP API and the application workflow.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gymhub"

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	workflowOutcomes *prometheus.CounterVec
	promotionQueued  prometheus.Counter
	promotionDrained *prometheus.CounterVec
	promotionBacklog prometheus.Gauge
}

// New creates a registry with the process and Go collectors and the application collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		workflowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "applications",
			Name:      "operations_total",
			Help:      "Owner application workflow operations by outcome.",
		}, []string{"operation", "outcome"}),
		promotionQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "promotion",
			Name:      "queued_total",
			Help:      "Role promotions queued for retry after a partial approval.",
		}),
		promotionDrained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "promotion",
			Name:      "retries_total",
			Help:      "Queued role promotion retries by result.",
		}, []string{"result"}),
		promotionBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "promotion",
			Name:      "backlog",
			Help:      "Role promotions still queued after the last drain.",
		}),
	}
	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.workflowOutcomes,
		m.promotionQueued,
		m.promotionDrained,
		m.promotionBacklog,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and duration per route template.
// Unmatched routes are recorded as "unmatched" to bound cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// WorkflowOutcome counts one workflow operation (submit, approve, reject, retry_promotion)
// by outcome (ok or the error kind).
func (m *Metrics) WorkflowOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.workflowOutcomes.WithLabelValues(operation, outcome).Inc()
}

// PromotionQueued counts a promotion added to the retry queue.
func (m *Metrics) PromotionQueued() {
	if m == nil {
		return
	}
	m.promotionQueued.Inc()
}

// PromotionDrained records one drain of the retry queue.
func (m *Metrics) PromotionDrained(promoted, failed, remaining int) {
	if m == nil {
		return
	}
	m.promotionDrained.WithLabelValues("promoted").Add(float64(promoted))
	m.promotionDrained.WithLabelValues("failed").Add(float64(failed))
	m.promotionBacklog.Set(float64(remaining))
}

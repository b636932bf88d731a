// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ActiveSessions     prometheus.Gauge
	SessionTransitions *prometheus.CounterVec
	SessionOutcomes    *prometheus.CounterVec
	IntegrityEvents    *prometheus.CounterVec
	RetrievalDuration  *prometheus.HistogramVec
	AuditEventsWritten prometheus.Counter
}

// New builds and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "test_sessions_active",
			Help: "Test sessions currently registered",
		}),
		SessionTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "test_session_transitions_total",
				Help: "Session status transitions",
			},
			[]string{"from", "to"},
		),
		SessionOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "test_session_outcomes_total",
				Help: "Terminated sessions by status and reason",
			},
			[]string{"status", "reason"},
		),
		IntegrityEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "test_integrity_violations_total",
				Help: "Integrity violations by signal",
			},
			[]string{"signal"},
		),
		RetrievalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_request_duration_seconds",
				Help:    "Duration of scoring service calls",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation", "outcome"},
		),
		AuditEventsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_events_written_total",
			Help: "Session audit events persisted to postgres",
		}),
	}

	m.registry.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.ActiveSessions,
		m.SessionTransitions,
		m.SessionOutcomes,
		m.IntegrityEvents,
		m.RetrievalDuration,
		m.AuditEventsWritten,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRetrieval records one scoring service call.
func (m *Metrics) ObserveRetrieval(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RetrievalDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

// Middleware records count and latency for every routed request.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		m.RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		m.RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

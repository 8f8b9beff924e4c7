// Package metrics holds the Prometheus collectors of the kiosk service.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faceattend/internal/queue"
)

const namespace = "faceattend"

// Metrics is a private registry plus the collectors recorded into it.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	outcomes        *prometheus.CounterVec
	verifyDuration  *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	deviceFailures  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	auditsPublished *prometheus.CounterVec
}

// New registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_outcomes_total",
		Help:      "Scan session outcomes by mode and kind",
	}, []string{"mode", "kind"})

	verifyDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "verification_duration_seconds",
		Help:      "Duration of verification pipeline runs",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
	}, []string{"mode", "kind"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Scan sessions currently holding the capture device",
	})

	deviceFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "device_failures_total",
		Help:      "Capture device failures by step",
	}, []string{"step"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	auditsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audits_published_total",
		Help:      "Scan audit messages published, by result",
	}, []string{"result"})

	registry.MustRegister(
		outcomes, verifyDuration, activeSessions, deviceFailures, requestDuration, auditsPublished,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		outcomes:        outcomes,
		verifyDuration:  verifyDuration,
		activeSessions:  activeSessions,
		deviceFailures:  deviceFailures,
		requestDuration: requestDuration,
		auditsPublished: auditsPublished,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveOutcome counts a session outcome.
func (m *Metrics) ObserveOutcome(mode, kind, step string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(mode, kind).Inc()
	if kind == "device_error" {
		m.deviceFailures.WithLabelValues(step).Inc()
	}
}

// ObserveVerification records the duration of one pipeline run.
func (m *Metrics) ObserveVerification(mode, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.verifyDuration.WithLabelValues(mode, kind).Observe(d.Seconds())
}

// SetActiveSessions sets the live session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// ObserveAudit counts an audit publish attempt.
func (m *Metrics) ObserveAudit(err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, queue.ErrAuditDropped):
		result = "dropped"
	case err != nil:
		result = "error"
	}
	m.auditsPublished.WithLabelValues(result).Inc()
}

// GinMiddleware records request durations by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

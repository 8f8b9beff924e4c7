package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"faceattend/internal/queue"
)

func TestObserveOutcome(t *testing.T) {
	m := New()
	m.ObserveOutcome("attendance", "success", "")
	m.ObserveOutcome("attendance", "success", "")
	m.ObserveOutcome("attendance", "device_error", "device")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("attendance", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deviceFailures.WithLabelValues("device")))
}

func TestGaugeAndAudits(t *testing.T) {
	m := New()
	m.SetActiveSessions(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
	m.SetActiveSessions(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeSessions))

	m.ObserveAudit(nil)
	m.ObserveAudit(errors.New("redis down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditsPublished.WithLabelValues("error")))
	m.ObserveAudit(fmt.Errorf("publish: %w", queue.ErrAuditDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditsPublished.WithLabelValues("dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditsPublished.WithLabelValues("error")))
	m.ObserveVerification("registration", "success", 150*time.Millisecond)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveOutcome("attendance", "success", "")
	m.SetActiveSessions(3)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandlerExposesCollectors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/v1/courses", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/courses", nil))
	m.ObserveOutcome("attendance", "no_match", "match")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `faceattend_scan_outcomes_total{kind="no_match",mode="attendance"} 1`)
	assert.Contains(t, body, `route="/v1/courses"`)
}

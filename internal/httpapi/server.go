// Package httpapi exposes courses and scan sessions to kiosk clients over
// HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/logging"
	"faceattend/internal/metrics"
	"faceattend/internal/model"
	"faceattend/internal/scan"
)

// Courses lists and resolves courses. *attendance.Pipeline implements it.
type Courses interface {
	Courses(ctx context.Context) ([]model.Course, error)
	Course(ctx context.Context, id string) (model.Course, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Courses  Courses
	Sessions *scan.Manager
	Issuer   *auth.Issuer
	Limiter  *httpmiddleware.SimpleTokenBucket
	Metrics  *metrics.Metrics
	Health   map[string]HealthCheck
	Log      *zap.Logger
}

// Server holds the gin handlers.
type Server struct {
	Deps
	validate *validator.Validate
}

// New creates a Server.
func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Server{Deps: d, validate: validator.New()}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinMiddleware(s.Log, "/healthz", "/metrics"))
	r.Use(s.Metrics.GinMiddleware())
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	r.GET("/healthz", s.healthz)

	open := r.Group("/v1/kiosks")
	if s.Limiter != nil {
		open.Use(s.Limiter.GinMiddleware())
	}
	open.POST("/register", s.registerKiosk)
	open.POST("/refresh", s.refreshKiosk)

	v1 := r.Group("/v1", auth.KioskAuth(s.Issuer))
	if s.Limiter != nil {
		v1.Use(s.Limiter.GinMiddleware())
	}
	v1.GET("/courses", s.listCourses)
	v1.POST("/sessions", s.openSession)
	v1.GET("/sessions/:id", s.getSession)
	v1.POST("/sessions/:id/scan", s.sessionCommand((*scan.Session).BeginScan))
	v1.POST("/sessions/:id/retry", s.sessionCommand((*scan.Session).RetryVerification))
	v1.POST("/sessions/:id/reset", s.sessionCommand((*scan.Session).Reset))
	v1.DELETE("/sessions/:id", s.cancelSession)
	return r
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (s *Server) registerKiosk(c *gin.Context) {
	var req struct {
		KioskID string `json:"kiosk_id" binding:"required,max=128"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := s.Issuer.Issue(req.KioskID, auth.RoleKiosk)
	if err != nil {
		s.Log.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, tokenResponse(tokens))
}

func (s *Server) refreshKiosk(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := s.Issuer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokenResponse(tokens))
}

func tokenResponse(t auth.TokenPair) gin.H {
	return gin.H{
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"expires_at":    t.AccessExp.Unix(),
	}
}

func (s *Server) listCourses(c *gin.Context) {
	courses, err := s.Courses.Courses(c.Request.Context())
	if err != nil {
		s.Log.Error("list courses failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not load courses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

type openSessionRequest struct {
	Mode         attendance.Mode     `json:"mode" binding:"required,oneof=attendance registration"`
	CourseID     string              `json:"course_id"`
	Registration *model.Registration `json:"registration"`
}

func (s *Server) openSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target := attendance.Context{Mode: req.Mode}
	switch req.Mode {
	case attendance.ModeAttendance:
		if req.CourseID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "course_id required for attendance"})
			return
		}
		if _, err := s.Courses.Course(c.Request.Context(), req.CourseID); err != nil {
			if errors.Is(err, attendance.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "could not load course"})
			return
		}
		target.CourseID = req.CourseID
	case attendance.ModeRegistration:
		if req.Registration == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "registration required"})
			return
		}
		if err := s.validate.Struct(req.Registration); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		target.Registration = req.Registration
	}

	sess, err := s.Sessions.Open(auth.KioskID(c), target)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newSessionView(sess.Snapshot()))
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newSessionView(sess.Snapshot()))
}

func (s *Server) sessionCommand(cmd func(*scan.Session) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.session(c)
		if !ok {
			return
		}
		if err := cmd(sess); err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, newSessionView(sess.Snapshot()))
	}
}

func (s *Server) cancelSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Cancel(); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// session loads the addressed session, hiding other kiosks' sessions.
func (s *Server) session(c *gin.Context) (*scan.Session, bool) {
	sess, err := s.Sessions.Get(c.Param("id"))
	if err == nil && sess.Owner() != auth.KioskID(c) {
		err = scan.ErrSessionNotFound
	}
	if err != nil {
		s.renderError(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scan.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scan.ErrDeviceBusy), errors.Is(err, scan.ErrBusy), errors.Is(err, scan.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, scan.ErrClosed):
		status = http.StatusGone
	default:
		s.Log.Error("session request failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

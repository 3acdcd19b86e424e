// Package httpapi exposes the App over HTTP with gin. It stands in for the
// registration, offtake, settings and lock screens.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"herdsync/internal/core"
	"herdsync/internal/logging"
	"herdsync/internal/session"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server holds the handlers' dependencies.
type Server struct {
	app     *core.App
	logger  logging.Logger
	metrics http.Handler
}

// NewRouter builds the gin engine for app.
func NewRouter(app *core.App, opts ...Option) *gin.Engine {
	s := &Server{app: app, logger: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/ping", func(c *gin.Context) { ok(c, gin.H{"message": "pong"}) })
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := r.Group("/v1")
	sess := v1.Group("/session")
	{
		sess.GET("", s.sessionState)
		sess.POST("/login", s.login)
		sess.POST("/pin", s.createPIN)
		sess.POST("/unlock", s.unlock)
		sess.POST("/logout", s.logout)
		sess.POST("/lifecycle", s.lifecycle)
	}

	protected := v1.Group("")
	protected.Use(s.requireUnlocked())
	{
		protected.GET("/farmers", s.listFarmers)
		protected.POST("/farmers", s.submitFarmer)
		protected.GET("/offtakes", s.listOfftakes)
		protected.POST("/offtakes", s.submitOfftake)
		protected.DELETE("/offtakes", s.clearOfftakes)
		protected.GET("/sync", s.pending)
		protected.POST("/sync", s.syncNow)
		protected.GET("/reports", s.reports)
		protected.GET("/settings/county", s.getCounty)
		protected.PUT("/settings/county", s.putCounty)
	}
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// requireUnlocked rejects record routes until the PIN has been entered.
func (s *Server) requireUnlocked() gin.HandlerFunc {
	return func(c *gin.Context) {
		if st := s.app.Guard().State(); st != session.Unlocked {
			fail(c, http.StatusLocked, "session is "+string(st))
			return
		}
		c.Next()
	}
}

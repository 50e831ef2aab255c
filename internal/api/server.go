// Package api exposes the HTTP surface: auth, batch preview/submission,
// job control, live streaming, and export.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/north-cloud/prospect-research/internal/auth"
	"github.com/north-cloud/prospect-research/internal/domain"
	"github.com/north-cloud/prospect-research/internal/engine"
	"github.com/north-cloud/prospect-research/internal/logger"
	"github.com/north-cloud/prospect-research/internal/metrics"
	"github.com/north-cloud/prospect-research/internal/provider"
	"github.com/north-cloud/prospect-research/internal/store"
)

// Server bundles the handler dependencies.
type Server struct {
	store    *store.Store
	engine   *engine.Engine
	registry *provider.Registry
	issuer   *auth.Issuer
	metrics  *metrics.Metrics
	log      logger.Logger
}

// NewServer creates the API server.
func NewServer(st *store.Store, eng *engine.Engine, reg *provider.Registry, issuer *auth.Issuer, m *metrics.Metrics, log logger.Logger) *Server {
	return &Server{
		store:    st,
		engine:   eng,
		registry: reg,
		issuer:   issuer,
		metrics:  m,
		log:      log,
	}
}

// Router builds the gin engine with all routes.
func (s *Server) Router(debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log), corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api")
	api.POST("/signup", s.signup)
	api.POST("/login", s.login)
	api.GET("/templates", s.listTemplates)

	authed := api.Group("", s.issuer.Middleware())
	authed.GET("/me", s.me)
	authed.GET("/providers", s.listProviders)
	authed.POST("/setkey", s.setKey)
	authed.POST("/preview", s.preview)
	authed.POST("/research", s.research)
	authed.POST("/resume/:id", s.resume)
	authed.POST("/cancel/:id", s.cancel)
	authed.GET("/stream/:id", s.stream)
	authed.GET("/export/:id", s.export)
	authed.GET("/jobs", s.listJobs)
	authed.DELETE("/jobs/:id", s.deleteJob)

	return r
}

// ownedJob loads the :id job and enforces ownership. Writes the error
// response itself when the caller should stop.
func (s *Server) ownedJob(c *gin.Context) (*domain.Job, bool) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}
	job, err := s.store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil || job.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return nil, false
	}
	return job, true
}

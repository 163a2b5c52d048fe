package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/cloudbrowser/api/handler"
	"github.com/use-agent/cloudbrowser/api/middleware"
	"github.com/use-agent/cloudbrowser/config"
	"github.com/use-agent/cloudbrowser/pipeline"
	"github.com/use-agent/cloudbrowser/pool"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(p *pool.BrowserPool, ext *pipeline.Extension, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(p, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Fetch a page through a pooled browser session.
	protected.POST("/fetch", handler.Fetch(ext))

	return r
}

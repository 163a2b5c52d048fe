package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/cloudbrowser/models"
	"github.com/use-agent/cloudbrowser/pool"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and degrades status when > 80% of sessions are busy.
func Health(p *pool.BrowserPool, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := p.Stats()

		status := "healthy"
		if stats.NumBrowsers > 0 && stats.Busy > int(float64(stats.NumBrowsers)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: stats,
			Version:   "0.1.0",
		})
	}
}

// Package api serves the optional status endpoints for a running session.
// The server is read-only; it reports progress, it never accepts work.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nasalciuc/darwinscrape/batch"
	"github.com/nasalciuc/darwinscrape/engine"
	"github.com/nasalciuc/darwinscrape/metrics"
	"github.com/nasalciuc/darwinscrape/models"
	"github.com/nasalciuc/darwinscrape/scraper"
)

// Deps are the live components the status endpoints read from. Scraper and
// Metrics may be nil.
type Deps struct {
	Scheduler *batch.Scheduler
	Registry  *engine.Registry
	Scraper   *scraper.Scraper
	Metrics   *metrics.Metrics
	StartTime time.Time
}

// healthResponse is the GET /healthz body.
type healthResponse struct {
	Status string             `json:"status"`
	Uptime string             `json:"uptime"`
	Pool   *scraper.PoolStats `json:"pool,omitempty"`
}

// sessionResponse is the GET /api/v1/session body.
type sessionResponse struct {
	Session batch.Snapshot                       `json:"session"`
	Methods map[models.Method]models.MethodStats `json:"method_stats"`
	Pool    *scraper.PoolStats                   `json:"pool,omitempty"`
}

// NewRouter creates the Gin engine for the status server.
//
// Routes:
//
//	GET /healthz         liveness, degrades when the page pool is near full
//	GET /metrics         prometheus exposition
//	GET /api/v1/session  live batch progress and per-method stats
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", health(deps))
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	r.GET("/api/v1/session", session(deps))

	return r
}

// health degrades status when more than 80% of browser pages are active.
func health(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := healthResponse{
			Status: "healthy",
			Uptime: time.Since(deps.StartTime).Round(time.Second).String(),
		}
		if deps.Scraper != nil {
			stats := deps.Scraper.Stats()
			resp.Pool = &stats
			if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
				resp.Status = "degraded"
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func session(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := sessionResponse{
			Session: deps.Scheduler.Snapshot(),
			Methods: deps.Registry.Snapshot(),
		}
		if deps.Scraper != nil {
			stats := deps.Scraper.Stats()
			resp.Pool = &stats
		}
		c.JSON(http.StatusOK, resp)
	}
}

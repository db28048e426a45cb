package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/dataflow/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// BackendStats reports on the browser backend.
type BackendStats interface {
	Available() bool
	ActiveSessions() int
}

// Health returns a handler for GET /api/v1/health.
//
// Status is "degraded" when no browser is available: scrapes then return
// partial records only.
func Health(bs BackendStats, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: Version,
		}
		if bs != nil {
			resp.BrowserAvailable = bs.Available()
			resp.ActiveSessions = bs.ActiveSessions()
		}
		if !resp.BrowserAvailable {
			resp.Status = "degraded"
		}
		c.JSON(http.StatusOK, resp)
	}
}

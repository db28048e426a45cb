package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/dataflow/api/handler"
	"github.com/use-agent/dataflow/api/middleware"
	"github.com/use-agent/dataflow/cache"
	"github.com/use-agent/dataflow/config"
	"github.com/use-agent/dataflow/models"
)

// Deps are the services the HTTP API serves. Cache and History may be nil.
type Deps struct {
	Backend   handler.BackendStats
	Scraper   handler.Scraper
	Settings  models.Settings
	Videos    *handler.VideoJobs
	Assembler handler.Assembler
	Cache     *cache.Cache
	History   History
	StartTime time.Time
}

// History is the scrape history as used by the API.
type History interface {
	handler.HistoryStore
	handler.HistoryReader
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health is outside auth.
func NewRouter(cfg *config.Config, d Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(d.Backend, d.StartTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	var hs handler.HistoryStore
	if d.History != nil {
		hs = d.History
		protected.GET("/history", handler.ListHistory(d.History))
		protected.GET("/history/:id", handler.GetHistory(d.History))
	}
	protected.POST("/scrape", handler.Scrape(d.Scraper, d.Settings, d.Cache, hs))

	if d.Videos != nil {
		protected.POST("/video", d.Videos.Post())
		protected.GET("/video/:id", d.Videos.Get())
		protected.DELETE("/video/:id", d.Videos.Delete())
		protected.GET("/video/:id/watch", d.Videos.Watch())
	}
	if d.Assembler != nil {
		protected.POST("/assemble", handler.Assemble(d.Assembler))
	}

	return r
}

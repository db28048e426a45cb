package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/dataflow/cache"
	"github.com/use-agent/dataflow/models"
)

// Scraper runs one authenticated-session scrape.
type Scraper interface {
	Scrape(ctx context.Context, req models.ScrapeRequest, settings models.Settings) []models.CanonicalRecord
}

// HistoryStore persists scrape calls.
type HistoryStore interface {
	Save(ctx context.Context, platform, url string, records []models.CanonicalRecord) (*models.HistorySession, error)
}

// Scrape returns a handler for POST /api/v1/scrape.
//
// Flow:
//  1. Parse & validate request.
//  2. Cache lookup when max_age > 0.
//  3. Scrape with base settings plus request credentials.
//  4. Persist to history, cache fully successful results, respond 200.
func Scrape(sc Scraper, base models.Settings, cc *cache.Cache, hs HistoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		cacheKey := cache.Key(req.Platform, req.URL)
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				c.JSON(http.StatusOK, models.ScrapeResponse{
					Success:     true,
					Records:     cached,
					CacheStatus: "hit",
					Timing:      models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()},
				})
				return
			}
		}

		settings := base
		if req.APIKey != "" {
			settings.Credentials.APIKey = req.APIKey
		}
		records := sc.Scrape(c.Request.Context(), req, settings)

		resp := models.ScrapeResponse{Success: true, Records: records}
		if hs != nil {
			sess, err := hs.Save(c.Request.Context(), req.Platform, req.URL, records)
			if err != nil {
				slog.Warn("history save failed", "platform", req.Platform, "error", err)
			} else {
				resp.HistoryID = sess.ID
			}
		}
		if cc != nil && req.MaxAge > 0 {
			resp.CacheStatus = "miss"
			if allSucceeded(records) {
				cc.Set(cacheKey, records)
			}
		}
		resp.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
		c.JSON(http.StatusOK, resp)
	}
}

func allSucceeded(records []models.CanonicalRecord) bool {
	for _, r := range records {
		if r.CrawlingStatus != models.CrawlSuccess {
			return false
		}
	}
	return len(records) > 0
}

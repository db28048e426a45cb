package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/dataflow/history"
	"github.com/use-agent/dataflow/models"
)

// HistoryReader lists and loads persisted scrape sessions.
type HistoryReader interface {
	List(ctx context.Context, opts history.ListOptions) ([]models.HistorySession, error)
	Get(ctx context.Context, id string) (*models.HistorySession, bool, error)
}

// ListHistory returns a handler for GET /api/v1/history?platform=&limit=.
func ListHistory(hr HistoryReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts := history.ListOptions{Platform: c.Query("platform")}
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 500 {
				c.JSON(http.StatusBadRequest, models.ErrorResponse{
					Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: "limit must be between 1 and 500"},
				})
				return
			}
			opts.Limit = n
		}

		sessions, err := hr.List(c.Request.Context(), opts)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.HistoryListResponse{Success: true, Sessions: sessions})
	}
}

// GetHistory returns a handler for GET /api/v1/history/:id.
func GetHistory(hr HistoryReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok, err := hr.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if !ok {
			notFound(c, "history session")
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

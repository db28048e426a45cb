package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/dataflow/models"
)

// respondError maps err to an HTTP status and writes an ErrorResponse.
func respondError(c *gin.Context, err error) {
	e := models.AsError(err)
	c.JSON(mapErrorToStatus(e), models.ErrorResponse{Error: e.ToDetail()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
	})
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error: &models.ErrorDetail{Code: models.ErrCodeNotFound, Message: what + " not found"},
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.Error) int {
	switch e.Code {
	case models.ErrCodeInvalidInput, models.ErrCodeNoValidImages:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized, models.ErrCodeLLMAuthFailure, models.ErrCodeVideoInvalidCredential:
		return http.StatusUnauthorized // 401
	case models.ErrCodeVideoPermissionDenied:
		return http.StatusForbidden // 403
	case models.ErrCodeNotFound, models.ErrCodeVideoModelNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited, models.ErrCodeLLMRateLimited, models.ErrCodeVideoQuotaExceeded:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeNavigationTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeLLMFailure:
		return http.StatusBadGateway // 502
	case models.ErrCodeBrowserNotFound, models.ErrCodeShuttingDown:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

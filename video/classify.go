package video

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/use-agent/dataflow/llm"
	"github.com/use-agent/dataflow/models"
)

// classify maps a provider failure onto the closed set of video error
// kinds. Context errors pass through unchanged.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var me *models.Error
	if errors.As(err, &me) && strings.HasPrefix(me.Code, "VIDEO_") {
		return me
	}

	var status int
	var code string
	msg := err.Error()
	var ae *llm.APIError
	if errors.As(err, &ae) {
		status, code, msg = ae.Status, ae.Code, ae.Message
	}
	lower := strings.ToLower(msg)

	switch {
	case status == http.StatusNotFound || code == "NOT_FOUND" || strings.Contains(lower, "not found"):
		return models.NewError(models.ErrCodeVideoModelNotFound, msg, err)
	case status == http.StatusUnauthorized || code == "UNAUTHENTICATED" || strings.Contains(lower, "api key not valid"):
		return models.NewError(models.ErrCodeVideoInvalidCredential, msg, err)
	case status == http.StatusForbidden || code == "PERMISSION_DENIED" || strings.Contains(lower, "permission"):
		return models.NewError(models.ErrCodeVideoPermissionDenied, msg, err)
	case status == http.StatusTooManyRequests || code == "RESOURCE_EXHAUSTED" || strings.Contains(lower, "quota"):
		return models.NewError(models.ErrCodeVideoQuotaExceeded, msg, err)
	default:
		return models.NewError(models.ErrCodeVideoUnknown, msg, err)
	}
}

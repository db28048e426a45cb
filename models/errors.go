package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeCanceled     = "CANCELED"
	ErrCodeShuttingDown = "SHUTTING_DOWN"

	// Browser session codes.
	ErrCodeBrowserNotFound   = "BROWSER_NOT_FOUND"
	ErrCodeBrowserLaunch     = "BROWSER_LAUNCH_FAILED"
	ErrCodeNavigationTimeout = "NAVIGATION_TIMEOUT"
	ErrCodeNavigation        = "NAVIGATION_FAILED"
	ErrCodeExtraction        = "CONTENT_EXTRACTION_FAILED"

	// Generative model codes.
	ErrCodeLLMFailure          = "LLM_FAILURE"
	ErrCodeLLMAuthFailure      = "LLM_AUTH_FAILURE"
	ErrCodeLLMRateLimited      = "LLM_RATE_LIMITED"
	ErrCodeMalformedExtraction = "MALFORMED_EXTRACTION"

	// Video job codes. This set is closed: every lower-level failure of a
	// generation job is mapped onto exactly one of them.
	ErrCodeVideoModelNotFound     = "VIDEO_MODEL_NOT_FOUND"
	ErrCodeVideoPermissionDenied  = "VIDEO_PERMISSION_DENIED"
	ErrCodeVideoQuotaExceeded     = "VIDEO_QUOTA_EXCEEDED"
	ErrCodeVideoInvalidCredential = "VIDEO_INVALID_CREDENTIAL"
	ErrCodeVideoUnknown           = "VIDEO_UNKNOWN"

	// Media assembly codes.
	ErrCodeNoValidImages = "NO_VALID_IMAGES"
	ErrCodeEncode        = "ENCODE_FAILED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type Error struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error.
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *Error) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// AsError returns the first *Error in err's chain, or wraps err as
// ErrCodeInternal when there is none.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(ErrCodeInternal, err.Error(), err)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

package models

import "time"

// ScrapeResponse is the response for POST /api/v1/scrape.
// Scraping never fails at this level: failures come back as a single
// "blocked" record carrying the crawl timeline.
type ScrapeResponse struct {
	Success bool              `json:"success"`
	Records []CanonicalRecord `json:"records"`

	// HistoryID identifies the persisted history session, when stored.
	HistoryID string `json:"history_id,omitempty"`

	// CacheStatus is "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	Timing TimingInfo `json:"timing"`

	// Error is populated only for request validation failures.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in a request.
type TimingInfo struct {
	TotalMs int64 `json:"total_ms"`
}

// VideoResult is the outcome of a video generation request.
type VideoResult struct {
	// URI is a playable URI or file:// path.
	URI string `json:"uri"`

	// Model is the model actually used, which differs from the requested
	// one when the fallback model served the request.
	Model string `json:"model"`

	// Demo is true when the placeholder path produced the result.
	Demo bool `json:"demo,omitempty"`
}

// VideoJobStatus values.
const (
	VideoStatusSubmitted = "submitted"
	VideoStatusPolling   = "polling"
	VideoStatusDone      = "done"
	VideoStatusFailed    = "failed"
	VideoStatusCanceled  = "canceled"
)

// VideoJob tracks an asynchronous video request served by the API.
type VideoJob struct {
	ID        string       `json:"id"`
	Status    string       `json:"status"`
	Model     string       `json:"model"`
	Result    *VideoResult `json:"result,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// AssembleResponse is the response for POST /api/v1/assemble.
type AssembleResponse struct {
	Success bool         `json:"success"`
	Path    string       `json:"path,omitempty"`
	URI     string       `json:"uri,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// HistorySession is one persisted scrape call.
type HistorySession struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	Platform    string            `json:"platform"`
	URL         string            `json:"url"`
	Status      CrawlingStatus    `json:"status"`
	ResultCount int               `json:"result_count"`
	Results     []CanonicalRecord `json:"results,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status           string `json:"status"` // "healthy" or "degraded"
	Uptime           string `json:"uptime"`
	BrowserAvailable bool   `json:"browser_available"`
	ActiveSessions   int    `json:"active_sessions"`
	Version          string `json:"version"`
}

// ErrorResponse is the body of non-scrape error responses.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HistoryListResponse is the response for GET /api/v1/history.
type HistoryListResponse struct {
	Success  bool             `json:"success"`
	Sessions []HistorySession `json:"sessions"`
}

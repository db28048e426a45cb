package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Confidence describes how a record's values were obtained.
type Confidence string

const (
	// ConfidenceHigh is reserved for records produced by a completed
	// authenticated-session extraction.
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// CrawlingStatus is the outcome of the acquisition that produced a record.
type CrawlingStatus string

const (
	CrawlSuccess CrawlingStatus = "success"
	CrawlPartial CrawlingStatus = "partial"
	CrawlBlocked CrawlingStatus = "blocked"
)

// Platform identifiers understood by the extraction registry.
const (
	PlatformDouyin      = "douyin"
	PlatformXiaohongshu = "xiaohongshu"
	PlatformTaobao      = "taobao"
	PlatformWeChat      = "wechat"
	PlatformChanmama    = "chanmama"
)

// DailyMetric is one point of a record's history series.
type DailyMetric struct {
	Date       string  `json:"date"`
	Sales      float64 `json:"sales"`
	Engagement float64 `json:"engagement"`
}

// CanonicalRecord is the normalized description of one scraped item.
type CanonicalRecord struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Price           float64         `json:"price"`
	Sales           float64         `json:"sales"`
	Engagement      float64         `json:"engagement"`
	TrendScore      float64         `json:"trendScore"`
	Summary         string          `json:"summary"`
	Tags            []string        `json:"tags"`
	URL             string          `json:"url,omitempty"`
	ImageURL        string          `json:"imageUrl,omitempty"`
	History         []DailyMetric   `json:"history"`
	Confidence      Confidence      `json:"confidence"`
	PlatformMetrics PlatformMetrics `json:"platformMetrics,omitempty"`
	CrawlingStatus  CrawlingStatus  `json:"crawlingStatus"`
	CrawlingLogs    []CrawlLog      `json:"crawlingLogs"`
}

// UnmarshalJSON decodes a record; platformMetrics stays undecoded here
// because its shape depends on the platform. Use DecodeRecord for that.
func (r *CanonicalRecord) UnmarshalJSON(data []byte) error {
	type alias CanonicalRecord
	aux := struct {
		*alias
		PlatformMetrics json.RawMessage `json:"platformMetrics,omitempty"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.PlatformMetrics = nil
	return nil
}

// DecodeRecord decodes a record and its platform-specific metrics.
// Unknown platforms keep the raw metrics object.
func DecodeRecord(data []byte, platform string) (CanonicalRecord, error) {
	var rec CanonicalRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	var aux struct {
		PlatformMetrics json.RawMessage `json:"platformMetrics"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return rec, err
	}
	if len(aux.PlatformMetrics) == 0 || string(aux.PlatformMetrics) == "null" {
		return rec, nil
	}
	m, err := DecodePlatformMetrics(platform, aux.PlatformMetrics)
	if err != nil {
		return rec, fmt.Errorf("platformMetrics: %w", err)
	}
	rec.PlatformMetrics = m
	return rec, nil
}

// CrawlLogStatus classifies a timeline entry.
type CrawlLogStatus string

const (
	LogInfo      CrawlLogStatus = "info"
	LogSuccess   CrawlLogStatus = "success"
	LogWarning   CrawlLogStatus = "warning"
	LogError     CrawlLogStatus = "error"
	LogEncrypted CrawlLogStatus = "encrypted"
)

// CrawlLog is one entry of the diagnostic timeline returned with results.
type CrawlLog struct {
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	Status    CrawlLogStatus `json:"status"`
}

// CrawlLogs is an append-only, chronologically ordered timeline.
// It is not safe for concurrent use; one flow owns one timeline.
type CrawlLogs struct {
	entries []CrawlLog
	now     func() time.Time
}

// NewCrawlLogs creates an empty timeline stamped with now (time.Now if nil).
func NewCrawlLogs(now func() time.Time) *CrawlLogs {
	if now == nil {
		now = time.Now
	}
	return &CrawlLogs{now: now}
}

// Add appends an entry.
func (l *CrawlLogs) Add(status CrawlLogStatus, format string, args ...any) {
	l.entries = append(l.entries, CrawlLog{
		Timestamp: l.now(),
		Message:   fmt.Sprintf(format, args...),
		Status:    status,
	})
}

// Len returns the number of entries.
func (l *CrawlLogs) Len() int { return len(l.entries) }

// Snapshot returns a copy of the entries so later appends never leak into
// results that were already handed out.
func (l *CrawlLogs) Snapshot() []CrawlLog {
	out := make([]CrawlLog, len(l.entries))
	copy(out, l.entries)
	return out
}

package scrape

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/dataflow/browser"
	"github.com/use-agent/dataflow/config"
	"github.com/use-agent/dataflow/models"
)

type fakeSession struct {
	navErr     error
	extractErr error
	payload    *models.RawPayload

	navigated  string
	closed     int
	closeGrace time.Duration
}

func (s *fakeSession) Navigate(_ context.Context, url string, _ time.Duration) error {
	s.navigated = url
	return s.navErr
}

func (s *fakeSession) Extract(context.Context, string) (*models.RawPayload, error) {
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	return s.payload, nil
}

func (s *fakeSession) Close(_ context.Context, grace time.Duration) error {
	s.closed++
	s.closeGrace = grace
	return nil
}

type fakeBackend struct {
	available bool
	openErr   error
	session   *fakeSession
	opened    browser.OpenOptions
}

func (b *fakeBackend) Available() bool { return b.available }

func (b *fakeBackend) Open(_ context.Context, opts browser.OpenOptions) (browser.Session, error) {
	b.opened = opts
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.session, nil
}

type fakeExtractor struct {
	records []models.CanonicalRecord
	err     error
	creds   models.Credentials
}

func (e *fakeExtractor) Extract(_ context.Context, _ *models.RawPayload, _ string, creds models.Credentials) ([]models.CanonicalRecord, error) {
	e.creds = creds
	return e.records, e.err
}

var testCfg = config.ScraperConfig{
	NavigationTimeout: time.Minute,
	CloseGrace:        2 * time.Second,
}

func tickingClock() func() time.Time {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Millisecond)
	}
}

func twoRecords() []models.CanonicalRecord {
	return []models.CanonicalRecord{
		{ID: "crawl-x-0", Title: "口红A", Confidence: models.ConfidenceHigh, CrawlingStatus: models.CrawlSuccess,
			PlatformMetrics: models.DouyinMetrics{AudienceGenders: models.AudienceGenders{Male: 20, Female: 80}}},
		{ID: "crawl-x-1", Title: "精华B", Confidence: models.ConfidenceHigh, CrawlingStatus: models.CrawlSuccess,
			PlatformMetrics: models.DouyinMetrics{AudienceGenders: models.AudienceGenders{Male: 35, Female: 65}}},
	}
}

func TestScrape_Success(t *testing.T) {
	sess := &fakeSession{payload: &models.RawPayload{Title: "抖音带货榜"}}
	backend := &fakeBackend{available: true, session: sess}
	ext := &fakeExtractor{records: twoRecords()}

	var states []State
	o := New(backend, ext, testCfg, WithClock(tickingClock()), WithObserver(func(s State) { states = append(states, s) }))

	settings := models.Settings{
		Credentials: models.Credentials{APIKey: "k"},
		ProfileDir:  "/tmp/profile",
		UserAgent:   "settings-ua",
		Cookies:     []models.Cookie{{Name: "sid", Value: "1"}},
	}
	req := models.ScrapeRequest{Platform: models.PlatformDouyin, URL: "https://www.douyin.com/rank", UserAgent: "req-ua"}

	recs := o.Scrape(context.Background(), req, settings)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	for _, r := range recs {
		if r.Confidence != models.ConfidenceHigh || r.CrawlingStatus != models.CrawlSuccess {
			t.Errorf("%s tagged %s/%s", r.ID, r.Confidence, r.CrawlingStatus)
		}
		if len(r.CrawlingLogs) == 0 {
			t.Errorf("%s has no timeline", r.ID)
		}
	}

	logs := recs[0].CrawlingLogs
	for i := 1; i < len(logs); i++ {
		if logs[i].Timestamp.Before(logs[i-1].Timestamp) {
			t.Fatalf("timeline out of order at %d", i)
		}
	}
	if !hasLog(logs, models.LogSuccess, "抖音带货榜") {
		t.Error("missing DOM retrieved entry with page title")
	}
	if !hasLog(logs, models.LogEncrypted, "1 session cookies") {
		t.Error("missing cookie entry")
	}

	if want := []State{StateInit, StateScraping, StateExtracting, StateDone}; !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
	if sess.closed != 1 || sess.closeGrace != 2*time.Second {
		t.Errorf("close = %d calls, grace %v", sess.closed, sess.closeGrace)
	}
	if backend.opened.UserAgent != "req-ua" || backend.opened.ProfileDir != "/tmp/profile" || len(backend.opened.Cookies) != 1 {
		t.Errorf("open options = %+v", backend.opened)
	}
	if ext.creds.APIKey != "k" {
		t.Errorf("credentials not threaded: %+v", ext.creds)
	}
}

func TestScrape_Degraded(t *testing.T) {
	for name, backend := range map[string]browser.Backend{
		"nil":      nil,
		"disabled": &fakeBackend{available: false},
	} {
		t.Run(name, func(t *testing.T) {
			var states []State
			o := New(backend, &fakeExtractor{}, testCfg, WithObserver(func(s State) { states = append(states, s) }))
			recs := o.Scrape(context.Background(), models.ScrapeRequest{Platform: "taobao", URL: "https://taobao.com"}, models.Settings{})
			if len(recs) != 1 {
				t.Fatalf("got %d records", len(recs))
			}
			r := recs[0]
			if r.CrawlingStatus != models.CrawlPartial || r.Confidence != models.ConfidenceLow {
				t.Errorf("tagged %s/%s, want partial/low", r.CrawlingStatus, r.Confidence)
			}
			if !strings.HasPrefix(r.ID, "degraded-") {
				t.Errorf("ID = %q", r.ID)
			}
			if !hasLog(r.CrawlingLogs, models.LogError, "not available") {
				t.Error("missing backend-unavailable entry")
			}
			if states[len(states)-1] != StateDegradedDone {
				t.Errorf("final state = %s", states[len(states)-1])
			}
		})
	}
}

func TestScrape_Failures(t *testing.T) {
	navErr := models.NewError(models.ErrCodeNavigationTimeout, "timed out waiting for DOMContentLoaded", context.DeadlineExceeded)
	tests := []struct {
		name      string
		backend   *fakeBackend
		extractor *fakeExtractor
		url       string
		wantCode  string
		wantClose int
	}{
		{
			name:     "browser not found",
			backend:  &fakeBackend{available: true, openErr: models.NewError(models.ErrCodeBrowserNotFound, "no Chrome found", nil)},
			wantCode: models.ErrCodeBrowserNotFound,
		},
		{
			name:      "navigation timeout",
			backend:   &fakeBackend{available: true, session: &fakeSession{navErr: navErr}},
			wantCode:  models.ErrCodeNavigationTimeout,
			wantClose: 1,
		},
		{
			name:      "extract failure",
			backend:   &fakeBackend{available: true, session: &fakeSession{extractErr: errors.New("page gone")}},
			wantCode:  models.ErrCodeInternal,
			wantClose: 1,
		},
		{
			name:      "malformed model reply",
			backend:   &fakeBackend{available: true, session: &fakeSession{payload: &models.RawPayload{Title: "t"}}},
			extractor: &fakeExtractor{err: models.NewError(models.ErrCodeMalformedExtraction, "model returned no records", nil)},
			wantCode:  models.ErrCodeMalformedExtraction,
			wantClose: 1,
		},
		{
			name:     "relative url",
			backend:  &fakeBackend{available: true, session: &fakeSession{}},
			url:      "/rank",
			wantCode: models.ErrCodeInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := tt.extractor
			if ext == nil {
				ext = &fakeExtractor{}
			}
			u := tt.url
			if u == "" {
				u = "https://www.douyin.com/rank"
			}
			o := New(tt.backend, ext, testCfg)
			recs := o.Scrape(context.Background(), models.ScrapeRequest{Platform: "douyin", URL: u}, models.Settings{})
			if len(recs) != 1 {
				t.Fatalf("got %d records, want 1", len(recs))
			}
			r := recs[0]
			if r.CrawlingStatus != models.CrawlBlocked || r.Confidence != models.ConfidenceLow {
				t.Errorf("tagged %s/%s, want blocked/low", r.CrawlingStatus, r.Confidence)
			}
			if !strings.HasPrefix(r.ID, "error-") {
				t.Errorf("ID = %q", r.ID)
			}
			if len(r.Tags) != 1 || r.Tags[0] != tt.wantCode {
				t.Errorf("tags = %v, want [%s]", r.Tags, tt.wantCode)
			}
			if !hasLog(r.CrawlingLogs, models.LogError, "") {
				t.Error("timeline lacks the error entry")
			}
			if s := tt.backend.session; s != nil {
				if s.closed != tt.wantClose {
					t.Errorf("close calls = %d, want %d", s.closed, tt.wantClose)
				}
				if s.closed > 0 && s.closeGrace != 0 {
					t.Errorf("failed session closed with grace %v, want immediate", s.closeGrace)
				}
			}
		})
	}
}

func TestScrape_ProfilePerPlatform(t *testing.T) {
	backend := &fakeBackend{available: true, session: &fakeSession{payload: &models.RawPayload{}}}
	o := New(backend, &fakeExtractor{records: twoRecords()}, testCfg, WithProfilePerPlatform(true))
	o.Scrape(context.Background(),
		models.ScrapeRequest{Platform: "xiaohongshu", URL: "https://www.xiaohongshu.com/explore"},
		models.Settings{ProfileDir: "/data/profile"})
	if want := filepath.Join("/data/profile", "xiaohongshu"); backend.opened.ProfileDir != want {
		t.Errorf("profile = %q, want %q", backend.opened.ProfileDir, want)
	}
}

func hasLog(logs []models.CrawlLog, status models.CrawlLogStatus, substr string) bool {
	for _, l := range logs {
		if l.Status == status && strings.Contains(l.Message, substr) {
			return true
		}
	}
	return false
}

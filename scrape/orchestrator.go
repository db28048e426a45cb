// Package scrape runs one authenticated-session scrape end to end and
// always answers with records, never an error.
package scrape

import (
	"context"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/dataflow/browser"
	"github.com/use-agent/dataflow/config"
	"github.com/use-agent/dataflow/models"
)

// State is a step of the scrape flow.
type State string

const (
	StateInit               State = "init"
	StateScraping           State = "scraping"
	StateExtracting         State = "extracting"
	StateDone               State = "done"
	StateBackendUnavailable State = "backend_unavailable"
	StateDegradedDone       State = "degraded_done"
	StateErrorDone          State = "error_done"
)

// Extractor turns a page payload into records.
type Extractor interface {
	Extract(ctx context.Context, payload *models.RawPayload, platform string, creds models.Credentials) ([]models.CanonicalRecord, error)
}

// Orchestrator composes a browser backend and an extractor.
// It is safe for concurrent use; each call owns its session and timeline.
type Orchestrator struct {
	backend            browser.Backend
	extractor          Extractor
	cfg                config.ScraperConfig
	profilePerPlatform bool

	now     func() time.Time
	newID   func() string
	observe func(State)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock stamps timeline entries with now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithObserver reports every state transition to fn.
func WithObserver(fn func(State)) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

// WithProfilePerPlatform gives every platform its own profile subdirectory.
func WithProfilePerPlatform(on bool) Option {
	return func(o *Orchestrator) { o.profilePerPlatform = on }
}

// New creates an Orchestrator. A nil backend means browser automation is
// absent and every call degrades.
func New(backend browser.Backend, extractor Extractor, cfg config.ScraperConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   backend,
		extractor: extractor,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
		observe:   func(State) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Scrape acquires req.URL in a browser session on the settings' profile and
// extracts records from it. Failures come back as a single blocked record
// carrying the full timeline; a missing backend yields one partial record.
func (o *Orchestrator) Scrape(ctx context.Context, req models.ScrapeRequest, settings models.Settings) []models.CanonicalRecord {
	platform := req.Platform
	if platform == "" {
		platform = "generic"
	}

	logs := models.NewCrawlLogs(o.now)
	o.observe(StateInit)
	logs.Add(models.LogInfo, "Desktop agent initialized")
	logs.Add(models.LogInfo, "Target platform: %s", platform)

	if o.backend == nil || !o.backend.Available() {
		o.observe(StateBackendUnavailable)
		logs.Add(models.LogError, "Browser automation backend not available; only a placeholder result can be returned")
		o.observe(StateDegradedDone)
		return []models.CanonicalRecord{o.degradedRecord(req, logs)}
	}

	records, err := o.run(ctx, req, settings, platform, logs)
	if err != nil {
		slog.Warn("scrape failed", "platform", platform, "url", req.URL, "error", err)
		logs.Add(models.LogError, "Browser automation error: %s", err.Error())
		o.observe(StateErrorDone)
		return []models.CanonicalRecord{o.errorRecord(req, err, logs)}
	}

	snapshot := logs.Snapshot()
	for i := range records {
		records[i].CrawlingLogs = snapshot
	}
	o.observe(StateDone)
	return records
}

func (o *Orchestrator) run(ctx context.Context, req models.ScrapeRequest, settings models.Settings, platform string, logs *models.CrawlLogs) (records []models.CanonicalRecord, err error) {
	if u, perr := url.Parse(req.URL); perr != nil || u.Scheme == "" || u.Host == "" {
		return nil, models.NewError(models.ErrCodeInvalidInput, "target URL must be absolute: "+req.URL, perr)
	}

	o.observe(StateScraping)
	profile := o.profileDir(settings.ProfileDir, platform)
	logs.Add(models.LogWarning, "Connecting to local Chrome (profile %s)", profile)

	cookies := append(append([]models.Cookie(nil), settings.Cookies...), req.Cookies...)
	ua := req.UserAgent
	if ua == "" {
		ua = settings.UserAgent
	}

	sess, err := o.backend.Open(ctx, browser.OpenOptions{
		ProfileDir: profile,
		UserAgent:  ua,
		Cookies:    cookies,
		TargetURL:  req.URL,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		grace := time.Duration(0)
		if err == nil {
			grace = o.cfg.CloseGrace
		}
		if cerr := sess.Close(ctx, grace); cerr != nil {
			slog.Debug("browser close reported an error", "error", cerr)
		}
	}()
	if len(cookies) > 0 {
		logs.Add(models.LogEncrypted, "Injected %d session cookies", len(cookies))
	}

	logs.Add(models.LogInfo, "Navigating to %s", req.URL)
	if err := sess.Navigate(ctx, req.URL, o.cfg.NavigationTimeout); err != nil {
		return nil, err
	}

	payload, err := sess.Extract(ctx, platform)
	if err != nil {
		return nil, err
	}
	logs.Add(models.LogSuccess, "DOM content retrieved (%s)", payload.Title)

	o.observe(StateExtracting)
	logs.Add(models.LogInfo, "Structuring page content with the language model")
	records, err = o.extractor.Extract(ctx, payload, platform, settings.Credentials)
	if err != nil {
		return nil, err
	}
	logs.Add(models.LogSuccess, "Extracted %d records", len(records))
	return records, nil
}

func (o *Orchestrator) profileDir(base, platform string) string {
	if o.profilePerPlatform && base != "" {
		return filepath.Join(base, platform)
	}
	return base
}

func (o *Orchestrator) degradedRecord(req models.ScrapeRequest, logs *models.CrawlLogs) models.CanonicalRecord {
	return models.CanonicalRecord{
		ID:             "degraded-" + o.newID(),
		Title:          "Browser automation unavailable",
		Summary:        "Authenticated scraping needs a local Chrome controlled by this service.",
		URL:            req.URL,
		Tags:           []string{},
		History:        []models.DailyMetric{},
		Confidence:     models.ConfidenceLow,
		CrawlingStatus: models.CrawlPartial,
		CrawlingLogs:   logs.Snapshot(),
	}
}

func (o *Orchestrator) errorRecord(req models.ScrapeRequest, err error, logs *models.CrawlLogs) models.CanonicalRecord {
	e := models.AsError(err)
	return models.CanonicalRecord{
		ID:             "error-" + o.newID(),
		Title:          "Scraping failed",
		Summary:        "Could not complete the browser scrape: " + e.Message,
		URL:            req.URL,
		Tags:           []string{e.Code},
		History:        []models.DailyMetric{},
		Confidence:     models.ConfidenceLow,
		CrawlingStatus: models.CrawlBlocked,
		CrawlingLogs:   logs.Snapshot(),
	}
}

// Package browser drives a visible Chrome instance on a persistent profile
// so scrapes run with the user's logged-in sessions.
package browser

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/dataflow/cleaner"
	"github.com/use-agent/dataflow/config"
	"github.com/use-agent/dataflow/models"
	"github.com/ysmood/gson"
)

// Backend opens automation sessions. Available reports whether the
// automation capability exists at all in this process.
type Backend interface {
	Available() bool
	Open(ctx context.Context, opts OpenOptions) (Session, error)
}

// Session is one browser window bound to a profile directory.
type Session interface {
	// Navigate loads url and waits for DOMContentLoaded within timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// Extract samples the current page with the strategy for platform.
	Extract(ctx context.Context, platform string) (*models.RawPayload, error)

	// Close waits grace (or until ctx is done), then ends the browser
	// process. The profile directory is left on disk.
	Close(ctx context.Context, grace time.Duration) error
}

// OpenOptions configures one session.
type OpenOptions struct {
	ProfileDir string
	UserAgent  string
	Cookies    []models.Cookie

	// TargetURL scopes cookies that carry no domain.
	TargetURL string
}

// RodBackend launches Chrome through go-rod.
type RodBackend struct {
	cfg        config.BrowserConfig
	scraperCfg config.ScraperConfig
	registry   *Registry
	sampler    *cleaner.Sampler
	locks      *ProfileLocks
}

// NewRodBackend creates a backend. A nil registry selects DefaultRegistry.
func NewRodBackend(cfg config.BrowserConfig, scraperCfg config.ScraperConfig, registry *Registry) *RodBackend {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &RodBackend{
		cfg:        cfg,
		scraperCfg: scraperCfg,
		registry:   registry,
		sampler:    cleaner.NewSampler(),
		locks:      NewProfileLocks(),
	}
}

// Available reports whether browser automation is enabled.
func (b *RodBackend) Available() bool {
	return b.cfg.Enabled
}

// ActiveSessions returns the number of open sessions.
func (b *RodBackend) ActiveSessions() int {
	return b.locks.Held()
}

// Open locks the profile, launches Chrome on it and prepares one page.
func (b *RodBackend) Open(ctx context.Context, opts OpenOptions) (Session, error) {
	bin, err := resolveBin(b.cfg.BrowserBin)
	if err != nil {
		return nil, err
	}
	if opts.ProfileDir == "" {
		opts.ProfileDir = b.cfg.ProfileDir
	}
	if err := os.MkdirAll(opts.ProfileDir, 0o755); err != nil {
		return nil, models.NewError(models.ErrCodeBrowserLaunch, "failed to create profile directory", err)
	}

	release, err := b.locks.Acquire(ctx, opts.ProfileDir)
	if err != nil {
		return nil, models.NewError(models.ErrCodeBrowserLaunch, "waiting for browser profile", err)
	}

	s, err := b.launch(bin, opts)
	if err != nil {
		release()
		return nil, err
	}
	s.release = release
	return s, nil
}

func (b *RodBackend) launch(bin string, opts OpenOptions) (*rodSession, error) {
	l := launcher.New().
		Bin(bin).
		UserDataDir(opts.ProfileDir).
		Headless(b.cfg.Headless).
		NoSandbox(b.cfg.NoSandbox)

	if b.cfg.DefaultProxy != "" {
		l = l.Proxy(b.cfg.DefaultProxy)
	}
	l.Set(flags.Flag("start-maximized"))
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("no-default-browser-check"))
	l.Set(flags.Flag("disable-dev-shm-usage"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewError(models.ErrCodeBrowserLaunch, "failed to launch browser", err)
	}
	slog.Info("browser launched", "profile", opts.ProfileDir, "headless", b.cfg.Headless)

	br := rod.New().ControlURL(controlURL).NoDefaultDevice()
	if err := br.Connect(); err != nil {
		l.Kill()
		return nil, models.NewError(models.ErrCodeBrowserLaunch, "failed to connect to browser", err)
	}

	page, err := br.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = br.Close()
		l.Kill()
		return nil, models.NewError(models.ErrCodeBrowserLaunch, "failed to open page", err)
	}

	s := &rodSession{
		launcher: l,
		browser:  br,
		page:     page,
		backend:  b,
	}

	if b.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = b.cfg.UserAgent
	}
	if ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			slog.Warn("user agent override failed", "error", err)
		}
	}

	if len(opts.Cookies) > 0 {
		setCookies(page, opts.Cookies, opts.TargetURL)
	}

	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{
			"Accept-Language": gson.New("zh-CN,zh;q=0.9,en;q=0.8"),
		},
	}.Call(page)

	s.router = blockResources(page, b.scraperCfg.BlockedResourceTypes)
	return s, nil
}

func setCookies(page *rod.Page, cookies []models.Cookie, target string) {
	host := ""
	if u, err := url.Parse(target); err == nil {
		host = u.Hostname()
	}
	for _, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = host
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		if _, err := (proto.NetworkSetCookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: domain,
			Path:   path,
		}).Call(page); err != nil {
			slog.Debug("set cookie failed", "name", c.Name, "error", err)
		}
	}
}

// resolveBin finds the Chrome binary: the configured path if set, else
// whatever the launcher finds on this machine.
func resolveBin(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", models.NewError(models.ErrCodeBrowserNotFound,
				"configured browser binary not found: "+configured, err)
		}
		return configured, nil
	}
	if path, ok := launcher.LookPath(); ok {
		return path, nil
	}
	return "", models.NewError(models.ErrCodeBrowserNotFound,
		"no Chrome or Chromium installation found; set DATAFLOW_BROWSER_BIN", nil)
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	backend  *RodBackend
	release  func()

	requestURL string
	closeOnce  sync.Once
	closeErr   error
}

func (s *rodSession) Navigate(ctx context.Context, target string, timeout time.Duration) error {
	s.requestURL = target
	if timeout <= 0 {
		timeout = s.backend.scraperCfg.NavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.page.Context(navCtx)
	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(target); err != nil {
		return categorizeError(err, "navigation to target URL failed")
	}
	wait()
	if err := navCtx.Err(); err != nil {
		return categorizeError(err, "timed out waiting for DOMContentLoaded")
	}

	// Let client-side rendering settle before reading the DOM.
	renderCtx, renderCancel := context.WithTimeout(ctx, s.backend.scraperCfg.RenderWait)
	defer renderCancel()
	if err := s.page.Context(renderCtx).WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("DOM did not settle, proceeding with current DOM", "error", err)
	}
	return ctx.Err()
}

func (s *rodSession) Extract(ctx context.Context, platform string) (*models.RawPayload, error) {
	p := s.page.Context(ctx)

	html, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to read page HTML")
	}
	snap := PageSnapshot{
		RequestURL: s.requestURL,
		URL:        evalString(p, `() => window.location.href`),
		Title:      evalString(p, `() => document.title`),
		HTML:       html,
		ImageURL: evalString(p, `() => {
			const m = document.querySelector('meta[property="og:image"]');
			return m ? m.content : "";
		}`),
	}
	if snap.URL == "" {
		snap.URL = s.requestURL
	}

	payload, err := s.backend.registry.Apply(s.backend.sampler, platform, snap)
	if err != nil {
		return nil, models.NewError(models.ErrCodeExtraction, "failed to sample page content", err)
	}
	return payload, nil
}

func (s *rodSession) Close(ctx context.Context, grace time.Duration) error {
	s.closeOnce.Do(func() {
		if grace > 0 {
			t := time.NewTimer(grace)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}
		if s.router != nil {
			_ = s.router.Stop()
		}
		s.closeErr = s.browser.Close()
		// Kill, never Cleanup: Cleanup would delete the persistent profile.
		s.launcher.Kill()
		if s.release != nil {
			s.release()
		}
		slog.Debug("browser session closed")
	})
	return s.closeErr
}

func evalString(p *rod.Page, js string) string {
	res, err := p.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func categorizeError(err error, msg string) *models.Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewError(models.ErrCodeNavigationTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewError(models.ErrCodeCanceled, "request canceled", err)
	default:
		return models.NewError(models.ErrCodeNavigation, msg, err)
	}
}

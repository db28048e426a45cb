package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	LLM       LLMConfig
	Video     VideoConfig
	Media     MediaConfig
	Storage   StorageConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "127.0.0.1"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the automation browser launched per scrape.
type BrowserConfig struct {
	// Enabled reports whether a browser-automation backend is present.
	// When false every scrape degrades to a partial result.
	Enabled bool // default: true

	// Headless hides the window. The default shows it so a human can solve
	// login or captcha challenges inside the persistent profile.
	Headless bool // default: false

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chrome/Chromium binary path.
	BrowserBin string

	// ProfileDir is the persistent user data dir that keeps login sessions.
	ProfileDir string // default: <user config dir>/dataflow/browser_session

	// ProfilePerPlatform gives every platform its own sub-profile.
	ProfilePerPlatform bool // default: false

	// UserAgent is the default user agent for scrape sessions.
	UserAgent string

	// Stealth injects anti-detection evasions before navigation.
	Stealth bool // default: true

	// DefaultProxy is the proxy URL for the browser and image fetches.
	DefaultProxy string
}

// ScraperConfig controls scraping behavior.
type ScraperConfig struct {
	// NavigationTimeout bounds the wait for DOMContentLoaded.
	NavigationTimeout time.Duration // default: 60s

	// RenderWait bounds the post-navigation wait for the DOM to settle.
	RenderWait time.Duration // default: 5s

	// CloseGrace keeps the window open after a successful run.
	CloseGrace time.Duration // default: 2s

	// BlockedResourceTypes lists resource types to block.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string

	// DedupeDistance drops extracted records whose fingerprint lies within
	// this many bits of an earlier record. Negative disables it.
	DedupeDistance int // default: -1
}

// LLMConfig controls the generative text model.
type LLMConfig struct {
	// Provider is "gemini" or "openai" (any OpenAI-compatible API).
	Provider string // default: "gemini"

	// APIKey is the process-wide default credential.
	APIKey string

	// BaseURL is the API base URL.
	BaseURL string // default depends on Provider

	// TextModel is the extraction model.
	TextModel string // default: "gemini-2.5-flash"

	// Timeout bounds a single model request.
	Timeout time.Duration // default: 60s
}

// VideoConfig controls video generation.
type VideoConfig struct {
	// BaseURL is the generative video API base URL.
	BaseURL string // default: Gemini API v1beta

	// DefaultModel is used when a request names none.
	DefaultModel string // default: "veo-2.0-generate-preview-001"

	// FallbackModel is the stable target retried once after MODEL_NOT_FOUND.
	FallbackModel string // default: "veo-2.0-generate-preview-001"

	// FallbackEligible lists model id substrings that may fall back.
	FallbackEligible []string // default: ["veo-3"]

	// CapabilityMarker marks model ids that generate real video.
	CapabilityMarker string // default: "veo"

	// LocalModel routes requests to local frame assembly.
	LocalModel string // default: "local-ffmpeg"

	// PollInterval is the fixed delay between status polls.
	PollInterval time.Duration // default: 5s

	// DemoDelay is the synthetic delay of the placeholder path.
	DemoDelay time.Duration // default: 3s

	// PlaceholderURI is returned by the placeholder path.
	PlaceholderURI string
}

// MediaConfig controls local video assembly.
type MediaConfig struct {
	// FFmpegBin is the encoder binary.
	FFmpegBin string // default: "ffmpeg"

	// OutputDir receives assembled videos.
	OutputDir string // default: <home>/Downloads

	// TempDir is the parent of per-call scratch directories.
	TempDir string // default: os.TempDir()

	// EncodeTimeout bounds one encoder run.
	EncodeTimeout time.Duration // default: 5m
}

// StorageConfig controls persistence of jobs and history.
type StorageConfig struct {
	// HistoryPath is the SQLite database of scrape history. Empty disables it.
	HistoryPath string // default: <user config dir>/dataflow/history.db

	// RedisAddr switches the video job store to Redis when set.
	RedisAddr string

	// RedisPrefix namespaces job keys.
	RedisPrefix string // default: "dataflow:video:"

	// JobTTL is how long finished jobs stay queryable.
	JobTTL time.Duration // default: 1h
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the scrape result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int // default: 500

	// TTL bounds how long an entry is kept regardless of max_age.
	TTL time.Duration // default: 1h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// DefaultPlaceholderURI is the canned clip returned by the demo path.
const DefaultPlaceholderURI = "https://storage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4"

// Load reads configuration from a .env file (if present) and environment
// variables, with sane defaults.
func Load() *Config {
	_ = godotenv.Load()

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = os.TempDir()
	}
	appDir := filepath.Join(cfgDir, "dataflow")
	home, _ := os.UserHomeDir()

	provider := envOr("DATAFLOW_LLM_PROVIDER", "gemini")

	return &Config{
		Server: ServerConfig{
			Host: envOr("DATAFLOW_HOST", "127.0.0.1"),
			Port: envIntOr("DATAFLOW_PORT", 8080),
			Mode: envOr("DATAFLOW_MODE", "release"),
		},
		Browser: BrowserConfig{
			Enabled:            envBoolOr("DATAFLOW_BROWSER_ENABLED", true),
			Headless:           envBoolOr("DATAFLOW_HEADLESS", false),
			NoSandbox:          envBoolOr("DATAFLOW_NO_SANDBOX", true),
			BrowserBin:         os.Getenv("DATAFLOW_BROWSER_BIN"),
			ProfileDir:         ExpandPath(envOr("DATAFLOW_PROFILE_DIR", filepath.Join(appDir, "browser_session"))),
			ProfilePerPlatform: envBoolOr("DATAFLOW_PROFILE_PER_PLATFORM", false),
			UserAgent:          envOr("DATAFLOW_USER_AGENT", defaultUserAgent),
			Stealth:            envBoolOr("DATAFLOW_STEALTH", true),
			DefaultProxy:       os.Getenv("DATAFLOW_PROXY"),
		},
		Scraper: ScraperConfig{
			NavigationTimeout: envDurationOr("DATAFLOW_NAV_TIMEOUT", 60*time.Second),
			RenderWait:        envDurationOr("DATAFLOW_RENDER_WAIT", 5*time.Second),
			CloseGrace:        envDurationOr("DATAFLOW_CLOSE_GRACE", 2*time.Second),
			BlockedResourceTypes: envSliceOr("DATAFLOW_BLOCKED_RESOURCES", []string{
				"Font", "Media",
			}),
			DedupeDistance: envIntOr("DATAFLOW_DEDUPE_DISTANCE", -1),
		},
		LLM: LLMConfig{
			Provider:  provider,
			APIKey:    firstEnv("DATAFLOW_LLM_API_KEY", "GEMINI_API_KEY", "API_KEY"),
			BaseURL:   envOr("DATAFLOW_LLM_BASE_URL", defaultBaseURL(provider)),
			TextModel: envOr("DATAFLOW_TEXT_MODEL", "gemini-2.5-flash"),
			Timeout:   envDurationOr("DATAFLOW_LLM_TIMEOUT", 60*time.Second),
		},
		Video: VideoConfig{
			BaseURL:          envOr("DATAFLOW_VIDEO_BASE_URL", defaultBaseURL("gemini")),
			DefaultModel:     envOr("DATAFLOW_VIDEO_MODEL", "veo-2.0-generate-preview-001"),
			FallbackModel:    envOr("DATAFLOW_VIDEO_FALLBACK_MODEL", "veo-2.0-generate-preview-001"),
			FallbackEligible: envSliceOr("DATAFLOW_VIDEO_FALLBACK_ELIGIBLE", []string{"veo-3"}),
			CapabilityMarker: envOr("DATAFLOW_VIDEO_MARKER", "veo"),
			LocalModel:       envOr("DATAFLOW_VIDEO_LOCAL_MODEL", "local-ffmpeg"),
			PollInterval:     envDurationOr("DATAFLOW_VIDEO_POLL_INTERVAL", 5*time.Second),
			DemoDelay:        envDurationOr("DATAFLOW_VIDEO_DEMO_DELAY", 3*time.Second),
			PlaceholderURI:   envOr("DATAFLOW_VIDEO_PLACEHOLDER", DefaultPlaceholderURI),
		},
		Media: MediaConfig{
			FFmpegBin:     envOr("DATAFLOW_FFMPEG_BIN", "ffmpeg"),
			OutputDir:     ExpandPath(envOr("DATAFLOW_OUTPUT_DIR", filepath.Join(home, "Downloads"))),
			TempDir:       envOr("DATAFLOW_TEMP_DIR", os.TempDir()),
			EncodeTimeout: envDurationOr("DATAFLOW_ENCODE_TIMEOUT", 5*time.Minute),
		},
		Storage: StorageConfig{
			HistoryPath: ExpandPath(envOr("DATAFLOW_HISTORY_PATH", filepath.Join(appDir, "history.db"))),
			RedisAddr:   os.Getenv("DATAFLOW_REDIS_ADDR"),
			RedisPrefix: envOr("DATAFLOW_REDIS_PREFIX", "dataflow:video:"),
			JobTTL:      envDurationOr("DATAFLOW_JOB_TTL", time.Hour),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("DATAFLOW_AUTH_ENABLED", false),
			APIKeys: envSliceOr("DATAFLOW_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("DATAFLOW_RATE_RPS", 2.0),
			Burst:             envIntOr("DATAFLOW_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("DATAFLOW_CACHE_MAX_ENTRIES", 500),
			TTL:        envDurationOr("DATAFLOW_CACHE_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("DATAFLOW_LOG_LEVEL", "info"),
			Format: envOr("DATAFLOW_LOG_FORMAT", "json"),
		},
	}
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func defaultBaseURL(provider string) string {
	if provider == "openai" {
		return "https://api.openai.com/v1"
	}
	return "https://generativelanguage.googleapis.com/v1beta"
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// --- helper functions ---

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

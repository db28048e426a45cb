package models

// Credentials carries the generative model credential for one call.
// An empty APIKey means "use the process-wide default" configured at startup.
type Credentials struct {
	APIKey string `json:"api_key,omitempty"`
}

// Cookie is an auth cookie applied to the browser page before navigation.
type Cookie struct {
	Name   string `json:"name" binding:"required"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Settings is the explicit per-call configuration threaded into the scrape
// orchestrator. Nothing in the pipeline reads ambient process state instead.
type Settings struct {
	Credentials Credentials

	// ProfileDir is the persistent browser profile. Required.
	ProfileDir string

	// UserAgent overrides the browser user agent when set.
	UserAgent string

	// Cookies are set on the page before navigation.
	Cookies []Cookie
}

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// Platform is the platform identifier, e.g. "douyin". Required.
	Platform string `json:"platform" binding:"required"`

	// URL is the target page. Required.
	URL string `json:"url" binding:"required,url"`

	// APIKey overrides the default model credential for this call.
	APIKey string `json:"api_key,omitempty"`

	// UserAgent overrides the configured browser user agent.
	UserAgent string `json:"user_agent,omitempty"`

	// Cookies are injected into the session before navigation.
	Cookies []Cookie `json:"cookies,omitempty"`

	// MaxAge allows serving a cached result younger than MaxAge milliseconds.
	// Default: 0 (no cache).
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// AspectRatio of a generated video.
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
)

// VideoRequest is the payload for POST /api/v1/video.
type VideoRequest struct {
	// Prompt describes the video. Required.
	Prompt string `json:"prompt" binding:"required"`

	// AspectRatio is "16:9" (default) or "9:16".
	AspectRatio AspectRatio `json:"aspect_ratio,omitempty" binding:"omitempty,oneof=16:9 9:16"`

	// Model is the generation model id. Default: the configured video model.
	Model string `json:"model,omitempty"`

	// Image is an optional reference image: data URI, raw base64 or http(s) URL.
	Image string `json:"image,omitempty"`

	// Images are the stills used by the local assembly model.
	Images []string `json:"images,omitempty"`

	// Duration is the requested length in seconds. Default: 5.
	Duration int `json:"duration,omitempty" binding:"omitempty,min=1,max=60"`

	// APIKey overrides the default model credential for this call.
	APIKey string `json:"api_key,omitempty"`

	// WebhookURL receives video.completed / video.failed events.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs webhook bodies with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *VideoRequest) Defaults(defaultModel string) {
	if r.AspectRatio == "" {
		r.AspectRatio = AspectLandscape
	}
	if r.Model == "" {
		r.Model = defaultModel
	}
	if r.Duration == 0 {
		r.Duration = 5
	}
}

// AssembleRequest is the payload for POST /api/v1/assemble.
type AssembleRequest struct {
	// Images are the ordered stills: data URIs, raw base64 or http(s) URLs.
	Images []string `json:"images" binding:"required,min=1,max=200"`

	// Duration is the total video length in seconds. Required.
	Duration float64 `json:"duration" binding:"required,gt=0"`

	// FPS is the output frame rate. Default: 30.
	FPS int `json:"fps,omitempty" binding:"omitempty,min=1,max=60"`

	// OutputPath is where the video is written. Default: a timestamped file
	// in the configured output directory.
	OutputPath string `json:"-"`
}

// Defaults applies default values to unset fields.
func (r *AssembleRequest) Defaults() {
	if r.FPS == 0 {
		r.FPS = 30
	}
}

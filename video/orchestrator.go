// Package video runs video generation requests: a genuine long-running
// job against a video model with one fallback retry, a placeholder path for
// models without video capability, or local assembly of still images.
package video

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/dataflow/config"
	"github.com/use-agent/dataflow/llm"
	"github.com/use-agent/dataflow/media"
	"github.com/use-agent/dataflow/models"
)

// Clock suspends the flow between polls.
type Clock interface {
	// Sleep waits d or until ctx is done, returning ctx.Err() in that case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock sleeps on real timers.
type SystemClock struct{}

// Sleep implements Clock.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Assembler builds a video from stills.
type Assembler interface {
	Assemble(ctx context.Context, req models.AssembleRequest) (string, error)
}

// Observer receives every status transition of one job.
type Observer func(status string)

// Orchestrator runs video requests. It is safe for concurrent use.
type Orchestrator struct {
	gen       llm.VideoGenerator
	text      llm.TextGenerator
	textModel string
	assembler Assembler
	fetcher   media.Fetcher
	cfg       config.VideoConfig
	clock     Clock
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithAssembler routes the local model to a.
func WithAssembler(a Assembler) Option {
	return func(o *Orchestrator) { o.assembler = a }
}

// WithFetcher enables http(s) reference images.
func WithFetcher(f media.Fetcher) Option {
	return func(o *Orchestrator) { o.fetcher = f }
}

// WithTextModel sets the model used by the placeholder path's best-effort
// call and by Validate.
func WithTextModel(gen llm.TextGenerator, model string) Option {
	return func(o *Orchestrator) { o.text, o.textModel = gen, model }
}

// New creates an Orchestrator.
func New(gen llm.VideoGenerator, cfg config.VideoConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{gen: gen, cfg: cfg, clock: SystemClock{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate runs req to completion.
func (o *Orchestrator) Generate(ctx context.Context, req models.VideoRequest, creds models.Credentials) (*models.VideoResult, error) {
	return o.Run(ctx, req, creds, nil)
}

// Run is Generate with a status observer (may be nil).
func (o *Orchestrator) Run(ctx context.Context, req models.VideoRequest, creds models.Credentials, observe Observer) (*models.VideoResult, error) {
	if observe == nil {
		observe = func(string) {}
	}
	req.Defaults(o.cfg.DefaultModel)

	var (
		res *models.VideoResult
		err error
	)
	switch {
	case o.cfg.LocalModel != "" && req.Model == o.cfg.LocalModel:
		res, err = o.assemble(ctx, req, observe)
	case !strings.Contains(strings.ToLower(req.Model), strings.ToLower(o.cfg.CapabilityMarker)):
		res, err = o.demo(ctx, req, creds, observe)
	default:
		res, err = o.genuine(ctx, req, creds, observe)
	}

	switch {
	case err == nil:
		observe(models.VideoStatusDone)
	case errors.Is(err, context.Canceled):
		observe(models.VideoStatusCanceled)
	default:
		observe(models.VideoStatusFailed)
	}
	return res, err
}

// Validate checks that creds can reach the text model.
func (o *Orchestrator) Validate(ctx context.Context, creds models.Credentials) error {
	if creds.APIKey == "" {
		return models.NewError(models.ErrCodeVideoInvalidCredential, "no API key configured", nil)
	}
	if o.text == nil {
		return models.NewError(models.ErrCodeVideoUnknown, "no text model configured", nil)
	}
	_, err := o.text.GenerateText(ctx, llm.TextRequest{APIKey: creds.APIKey, Model: o.textModel, Prompt: "ping"})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (o *Orchestrator) assemble(ctx context.Context, req models.VideoRequest, observe Observer) (*models.VideoResult, error) {
	if o.assembler == nil {
		return nil, models.NewError(models.ErrCodeInvalidInput, "local assembly is not available", nil)
	}
	images := req.Images
	if req.Image != "" {
		images = append([]string{req.Image}, images...)
	}
	observe(models.VideoStatusSubmitted)
	path, err := o.assembler.Assemble(ctx, models.AssembleRequest{
		Images:   images,
		Duration: float64(req.Duration),
	})
	if err != nil {
		return nil, err
	}
	return &models.VideoResult{URI: (&url.URL{Scheme: "file", Path: path}).String(), Model: req.Model}, nil
}

func (o *Orchestrator) demo(ctx context.Context, req models.VideoRequest, creds models.Credentials, observe Observer) (*models.VideoResult, error) {
	slog.Warn("model has no native video generation, returning placeholder", "model", req.Model)
	observe(models.VideoStatusSubmitted)

	// The description call runs alongside the delay and is cut off with it.
	if o.text != nil && creds.APIKey != "" {
		dctx, cancel := context.WithTimeout(ctx, o.cfg.DemoDelay)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if _, err := o.text.GenerateText(dctx, llm.TextRequest{
				APIKey: creds.APIKey,
				Model:  req.Model,
				Prompt: "Generate a description: " + req.Prompt,
			}); err != nil {
				slog.Debug("placeholder description call failed", "model", req.Model, "error", err)
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	observe(models.VideoStatusPolling)
	if err := o.clock.Sleep(ctx, o.cfg.DemoDelay); err != nil {
		return nil, err
	}
	return &models.VideoResult{URI: o.cfg.PlaceholderURI, Model: req.Model, Demo: true}, nil
}

func (o *Orchestrator) genuine(ctx context.Context, req models.VideoRequest, creds models.Credentials, observe Observer) (*models.VideoResult, error) {
	if creds.APIKey == "" {
		return nil, models.NewError(models.ErrCodeVideoInvalidCredential, "no API key configured", nil)
	}

	var img *llm.InlineImage
	if req.Image != "" {
		loaded, err := media.LoadImage(ctx, req.Image, o.fetcher)
		if err != nil {
			return nil, models.NewError(models.ErrCodeInvalidInput, "invalid reference image", err)
		}
		img = &llm.InlineImage{Data: loaded.Data, MIMEType: loaded.MIMEType}
	}

	job := llm.VideoRequest{
		APIKey:          creds.APIKey,
		Model:           req.Model,
		Prompt:          req.Prompt,
		AspectRatio:     string(req.AspectRatio),
		DurationSeconds: req.Duration,
		Image:           img,
	}
	uri, err := o.runJob(ctx, job, observe)
	if err != nil && models.IsCode(err, models.ErrCodeVideoModelNotFound) && o.fallbackEligible(req.Model) {
		slog.Warn("video model not found, retrying with fallback",
			"model", req.Model, "fallback", o.cfg.FallbackModel)
		job.Model = o.cfg.FallbackModel
		uri, err = o.runJob(ctx, job, observe)
	}
	if err != nil {
		return nil, err
	}
	return &models.VideoResult{URI: withKey(uri, creds.APIKey), Model: job.Model}, nil
}

// runJob submits one job and polls it to a terminal state.
func (o *Orchestrator) runJob(ctx context.Context, job llm.VideoRequest, observe Observer) (string, error) {
	observe(models.VideoStatusSubmitted)
	op, err := o.gen.SubmitVideo(ctx, job)
	if err != nil {
		return "", classify(err)
	}
	slog.Info("video job submitted", "model", job.Model, "operation", op.Name)

	for !op.Done {
		observe(models.VideoStatusPolling)
		if err := o.clock.Sleep(ctx, o.cfg.PollInterval); err != nil {
			o.cancelRemote(ctx, job.APIKey, op.Name)
			return "", err
		}
		next, err := o.gen.PollVideo(ctx, job.APIKey, op.Name)
		if err != nil {
			if ctx.Err() != nil {
				o.cancelRemote(ctx, job.APIKey, op.Name)
				return "", ctx.Err()
			}
			return "", classify(err)
		}
		op = next
	}

	if op.Err != nil {
		return "", classify(op.Err)
	}
	if op.VideoURI == "" {
		return "", models.NewError(models.ErrCodeVideoUnknown, "No video URI returned", nil)
	}
	return op.VideoURI, nil
}

// cancelRemote asks the provider to stop the job. Errors are logged only.
func (o *Orchestrator) cancelRemote(ctx context.Context, apiKey, name string) {
	if name == "" {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.gen.CancelVideo(cctx, apiKey, name); err != nil {
		slog.Debug("remote cancel failed", "operation", name, "error", err)
	}
}

func (o *Orchestrator) fallbackEligible(model string) bool {
	if o.cfg.FallbackModel == "" || model == o.cfg.FallbackModel {
		return false
	}
	for _, m := range o.cfg.FallbackEligible {
		if m != "" && strings.Contains(model, m) {
			return true
		}
	}
	return false
}

// withKey adds the API key as the "key" query parameter.
func withKey(uri, key string) string {
	u, err := url.Parse(uri)
	if err != nil {
		sep := "?"
		if strings.Contains(uri, "?") {
			sep = "&"
		}
		return uri + sep + "key=" + url.QueryEscape(key)
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String()
}

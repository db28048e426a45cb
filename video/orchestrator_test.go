package video

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/dataflow/config"
	"github.com/use-agent/dataflow/llm"
	"github.com/use-agent/dataflow/models"
)

const fallback = "veo-2.0-generate-preview-001"

var testCfg = config.VideoConfig{
	DefaultModel:     fallback,
	FallbackModel:    fallback,
	FallbackEligible: []string{"veo-3"},
	CapabilityMarker: "veo",
	LocalModel:       "local-ffmpeg",
	PollInterval:     5 * time.Second,
	DemoDelay:        3 * time.Second,
	PlaceholderURI:   config.DefaultPlaceholderURI,
}

// fakeClock records requested sleeps and never blocks. cancelAfter > 0
// cancels the flow on that sleep.
type fakeClock struct {
	sleeps      []time.Duration
	cancelAfter int
	cancel      context.CancelFunc
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	if c.cancelAfter > 0 && len(c.sleeps) == c.cancelAfter {
		c.cancel()
	}
	return ctx.Err()
}

// fakeGen scripts provider behavior per model.
type fakeGen struct {
	submitErr   map[string]error
	pollsToDone int
	finalErr    *llm.APIError

	submitted []string
	polls     int
	canceled  []string
	lastJob   llm.VideoRequest
}

func (g *fakeGen) SubmitVideo(_ context.Context, req llm.VideoRequest) (*llm.Operation, error) {
	g.submitted = append(g.submitted, req.Model)
	g.lastJob = req
	if err := g.submitErr[req.Model]; err != nil {
		return nil, err
	}
	return &llm.Operation{Name: "operations/" + req.Model}, nil
}

func (g *fakeGen) PollVideo(_ context.Context, _, name string) (*llm.Operation, error) {
	g.polls++
	if g.polls < g.pollsToDone {
		return &llm.Operation{Name: name}, nil
	}
	if g.finalErr != nil {
		return &llm.Operation{Name: name, Done: true, Err: g.finalErr}, nil
	}
	return &llm.Operation{Name: name, Done: true, VideoURI: "https://files.example/v.mp4?alt=media"}, nil
}

func (g *fakeGen) CancelVideo(_ context.Context, _, name string) error {
	g.canceled = append(g.canceled, name)
	return nil
}

type fakeText struct {
	calls []llm.TextRequest
	err   error
	hang  bool // block until ctx is done
}

func (f *fakeText) GenerateText(ctx context.Context, req llm.TextRequest) (*llm.TextResult, error) {
	f.calls = append(f.calls, req)
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.TextResult{Text: "ok"}, nil
}

var creds = models.Credentials{APIKey: "secret-key"}

func notFound() error {
	return &llm.APIError{Status: 404, Code: "NOT_FOUND", Message: "models/veo-3.1-fast is not found"}
}

func TestGenerate_Genuine(t *testing.T) {
	gen := &fakeGen{pollsToDone: 3}
	clock := &fakeClock{}
	o := New(gen, testCfg, WithClock(clock))

	var states []string
	res, err := o.Run(context.Background(), models.VideoRequest{Prompt: "a cat", Model: fallback}, creds,
		func(s string) { states = append(states, s) })
	if err != nil {
		t.Fatal(err)
	}
	if res.Model != fallback || res.Demo {
		t.Errorf("result = %+v", res)
	}
	u, err := url.Parse(res.URI)
	if err != nil {
		t.Fatal(err)
	}
	if u.Query().Get("key") != "secret-key" || u.Query().Get("alt") != "media" {
		t.Errorf("URI = %s, want key embedded and original query kept", res.URI)
	}
	if len(clock.sleeps) != 3 {
		t.Errorf("sleeps = %v, want 3 polls", clock.sleeps)
	}
	for _, d := range clock.sleeps {
		if d != 5*time.Second {
			t.Errorf("poll interval = %v, want fixed 5s", d)
		}
	}
	want := []string{"submitted", "polling", "polling", "polling", "done"}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
	if gen.lastJob.AspectRatio != "16:9" || gen.lastJob.DurationSeconds != 5 {
		t.Errorf("defaults not applied: %+v", gen.lastJob)
	}
}

func TestGenerate_FallbackOnce(t *testing.T) {
	gen := &fakeGen{submitErr: map[string]error{"veo-3.1-fast-generate-preview": notFound()}}
	o := New(gen, testCfg, WithClock(&fakeClock{}))

	res, err := o.Generate(context.Background(), models.VideoRequest{Prompt: "p", Model: "veo-3.1-fast-generate-preview"}, creds)
	if err != nil {
		t.Fatal(err)
	}
	if res.Model != fallback {
		t.Errorf("reported model = %q, want %q", res.Model, fallback)
	}
	if want := []string{"veo-3.1-fast-generate-preview", fallback}; !reflect.DeepEqual(gen.submitted, want) {
		t.Errorf("submitted = %v, want %v", gen.submitted, want)
	}
}

func TestGenerate_SecondNotFoundSurfaces(t *testing.T) {
	gen := &fakeGen{submitErr: map[string]error{
		"veo-3.1-fast-generate-preview": notFound(),
		fallback:                        notFound(),
	}}
	o := New(gen, testCfg, WithClock(&fakeClock{}))

	_, err := o.Generate(context.Background(), models.VideoRequest{Prompt: "p", Model: "veo-3.1-fast-generate-preview"}, creds)
	if !models.IsCode(err, models.ErrCodeVideoModelNotFound) {
		t.Fatalf("err = %v, want VIDEO_MODEL_NOT_FOUND", err)
	}
	if len(gen.submitted) != 2 {
		t.Errorf("submitted %d times, want exactly 2", len(gen.submitted))
	}
}

func TestGenerate_NoFallbackForIneligible(t *testing.T) {
	gen := &fakeGen{submitErr: map[string]error{"veo-1.0-custom": notFound()}}
	o := New(gen, testCfg, WithClock(&fakeClock{}))
	_, err := o.Generate(context.Background(), models.VideoRequest{Prompt: "p", Model: "veo-1.0-custom"}, creds)
	if !models.IsCode(err, models.ErrCodeVideoModelNotFound) || len(gen.submitted) != 1 {
		t.Errorf("err = %v, submitted = %v", err, gen.submitted)
	}
}

func TestGenerate_OperationFailureKinds(t *testing.T) {
	tests := []struct {
		name string
		err  *llm.APIError
		want string
	}{
		{"permission", &llm.APIError{Status: 403, Code: "PERMISSION_DENIED", Message: "The caller does not have permission"}, models.ErrCodeVideoPermissionDenied},
		{"quota", &llm.APIError{Status: 429, Code: "RESOURCE_EXHAUSTED", Message: "Quota exceeded"}, models.ErrCodeVideoQuotaExceeded},
		{"credential", &llm.APIError{Status: 400, Code: "INVALID_ARGUMENT", Message: "API key not valid. Please pass a valid API key."}, models.ErrCodeVideoInvalidCredential},
		{"unknown", &llm.APIError{Status: 500, Code: "INTERNAL", Message: "boom"}, models.ErrCodeVideoUnknown},
		{"filtered", &llm.APIError{Message: "video filtered: unsafe"}, models.ErrCodeVideoUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGen{pollsToDone: 1, finalErr: tt.err}
			o := New(gen, testCfg, WithClock(&fakeClock{}))
			var last string
			_, err := o.Run(context.Background(), models.VideoRequest{Prompt: "p"}, creds, func(s string) { last = s })
			if !models.IsCode(err, tt.want) {
				t.Errorf("err = %v, want %s", err, tt.want)
			}
			if last != models.VideoStatusFailed {
				t.Errorf("final state = %s", last)
			}
		})
	}
}

func TestGenerate_Demo(t *testing.T) {
	text := &fakeText{err: errors.New("model does not exist")}
	clock := &fakeClock{}
	gen := &fakeGen{}
	o := New(gen, testCfg, WithClock(clock), WithTextModel(text, "gemini-2.5-flash"))

	res, err := o.Generate(context.Background(), models.VideoRequest{Prompt: "sunset", Model: "gemini-2.5-flash"}, creds)
	if err != nil {
		t.Fatalf("demo path must tolerate a failed description call: %v", err)
	}
	if !res.Demo || res.URI != config.DefaultPlaceholderURI || res.Model != "gemini-2.5-flash" {
		t.Errorf("result = %+v", res)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 3*time.Second {
		t.Errorf("sleeps = %v, want one 3s delay", clock.sleeps)
	}
	if len(gen.submitted) != 0 {
		t.Error("demo path submitted a real job")
	}
	if len(text.calls) != 1 || !strings.Contains(text.calls[0].Prompt, "sunset") {
		t.Errorf("description calls = %+v", text.calls)
	}
}

func TestGenerate_DemoSlowDescription(t *testing.T) {
	cfg := testCfg
	cfg.DemoDelay = 50 * time.Millisecond
	o := New(&fakeGen{}, cfg, WithTextModel(&fakeText{hang: true}, "gemini-2.5-flash"))

	start := time.Now()
	res, err := o.Generate(context.Background(), models.VideoRequest{Prompt: "sunset", Model: "gemini-2.5-flash"}, creds)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Demo {
		t.Errorf("result = %+v, want demo", res)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("demo took %v with a hanging description call, want about %v", elapsed, cfg.DemoDelay)
	}
}

func TestGenerate_CancelDuringPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &fakeGen{pollsToDone: 100}
	clock := &fakeClock{cancelAfter: 2, cancel: cancel}
	o := New(gen, testCfg, WithClock(clock))

	var last string
	_, err := o.Run(ctx, models.VideoRequest{Prompt: "p"}, creds, func(s string) { last = s })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if gen.polls != 1 {
		t.Errorf("polls = %d, want polling to stop after cancel", gen.polls)
	}
	if len(gen.canceled) != 1 || gen.canceled[0] != "operations/"+fallback {
		t.Errorf("remote cancel = %v", gen.canceled)
	}
	if last != models.VideoStatusCanceled {
		t.Errorf("final state = %s", last)
	}
}

func TestGenerate_MissingKey(t *testing.T) {
	gen := &fakeGen{}
	o := New(gen, testCfg, WithClock(&fakeClock{}))
	_, err := o.Generate(context.Background(), models.VideoRequest{Prompt: "p"}, models.Credentials{})
	if !models.IsCode(err, models.ErrCodeVideoInvalidCredential) || len(gen.submitted) != 0 {
		t.Errorf("err = %v, submitted = %v", err, gen.submitted)
	}
}

type fakeAssembler struct {
	req models.AssembleRequest
}

func (a *fakeAssembler) Assemble(_ context.Context, req models.AssembleRequest) (string, error) {
	a.req = req
	return "/videos/out.mp4", nil
}

func TestGenerate_LocalModel(t *testing.T) {
	asm := &fakeAssembler{}
	gen := &fakeGen{}
	o := New(gen, testCfg, WithClock(&fakeClock{}), WithAssembler(asm))

	res, err := o.Generate(context.Background(), models.VideoRequest{
		Prompt: "slides", Model: "local-ffmpeg", Image: "first", Images: []string{"a", "b"}, Duration: 9,
	}, models.Credentials{})
	if err != nil {
		t.Fatal(err)
	}
	if res.URI != "file:///videos/out.mp4" || res.Model != "local-ffmpeg" {
		t.Errorf("result = %+v", res)
	}
	if !reflect.DeepEqual(asm.req.Images, []string{"first", "a", "b"}) || asm.req.Duration != 9 {
		t.Errorf("assemble request = %+v", asm.req)
	}
	if len(gen.submitted) != 0 {
		t.Error("local model submitted a remote job")
	}
}

func TestValidate(t *testing.T) {
	o := New(&fakeGen{}, testCfg, WithTextModel(&fakeText{}, "gemini-2.5-flash"))
	if err := o.Validate(context.Background(), creds); err != nil {
		t.Errorf("Validate = %v", err)
	}

	bad := New(&fakeGen{}, testCfg, WithTextModel(&fakeText{err: &llm.APIError{Status: 403, Message: "permission denied"}}, "m"))
	if err := bad.Validate(context.Background(), creds); !models.IsCode(err, models.ErrCodeVideoPermissionDenied) {
		t.Errorf("Validate = %v, want VIDEO_PERMISSION_DENIED", err)
	}
	if err := o.Validate(context.Background(), models.Credentials{}); !models.IsCode(err, models.ErrCodeVideoInvalidCredential) {
		t.Errorf("Validate(no key) = %v", err)
	}
}

func TestWithKey(t *testing.T) {
	if got := withKey("https://x.example/v.mp4", "k"); got != "https://x.example/v.mp4?key=k" {
		t.Errorf("withKey = %q", got)
	}
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/use-agent/dataflow/models"
)

func TestGemini_GenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "k1" {
			t.Errorf("api key header = %q", got)
		}
		var body generateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Contents[0].Parts[0].Text != "hello" {
			t.Errorf("prompt = %+v", body.Contents)
		}
		if body.GenerationConfig == nil || body.GenerationConfig.ResponseMIMEType != "application/json" {
			t.Errorf("json mode not requested: %+v", body.GenerationConfig)
		}
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"[{\"title\":"},{"text":"\"A\"}]"}]}}],
			"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`)
	}))
	defer srv.Close()

	g := NewGemini(srv.URL+"/", srv.Client())
	res, err := g.GenerateText(context.Background(), TextRequest{APIKey: "k1", Model: "gemini-2.5-flash", Prompt: "hello", JSON: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != `[{"title":"A"}]` {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", res.Usage)
	}
}

func TestGemini_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"code":404,"message":"models/veo-9 is not found","status":"NOT_FOUND"}}`)
	}))
	defer srv.Close()

	_, err := NewGemini(srv.URL, nil).SubmitVideo(context.Background(), VideoRequest{Model: "veo-9", Prompt: "x"})
	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if ae.Status != 404 || ae.Code != "NOT_FOUND" || !strings.Contains(ae.Message, "not found") {
		t.Errorf("APIError = %+v", ae)
	}
}

func TestGemini_VideoLifecycle(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/models/veo-2.0:predictLongRunning":
			var body predictRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode: %v", err)
			}
			p := body.Parameters
			if p.AspectRatio != "9:16" || p.SampleCount != 1 || p.DurationSeconds != 5 {
				t.Errorf("parameters = %+v", p)
			}
			img := body.Instances[0].Image
			if img == nil || img.MIMEType != "image/png" || img.BytesBase64Encoded != "AQID" {
				t.Errorf("image = %+v", img)
			}
			io.WriteString(w, `{"name":"models/veo-2.0/operations/op1"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/models/veo-2.0/operations/op1":
			polls++
			if polls < 2 {
				io.WriteString(w, `{"name":"models/veo-2.0/operations/op1","done":false}`)
				return
			}
			io.WriteString(w, `{"name":"models/veo-2.0/operations/op1","done":true,
				"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"https://files.example/v.mp4"}}]}}}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	g := NewGemini(srv.URL, srv.Client())
	ctx := context.Background()
	op, err := g.SubmitVideo(ctx, VideoRequest{
		APIKey: "k", Model: "veo-2.0", Prompt: "p", AspectRatio: "9:16", DurationSeconds: 5,
		Image: &InlineImage{Data: []byte{1, 2, 3}, MIMEType: "image/png"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if op.Done {
		t.Fatal("fresh operation reported done")
	}
	op, err = g.PollVideo(ctx, "k", op.Name)
	if err != nil || op.Done {
		t.Fatalf("first poll = %+v, %v", op, err)
	}
	op, err = g.PollVideo(ctx, "k", op.Name)
	if err != nil {
		t.Fatal(err)
	}
	if !op.Done || op.Err != nil || op.VideoURI != "https://files.example/v.mp4" {
		t.Errorf("final op = %+v", op)
	}
}

func TestGemini_OperationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"name":"ops/1","done":true,"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	op, err := NewGemini(srv.URL, nil).PollVideo(context.Background(), "k", "ops/1")
	if err != nil {
		t.Fatal(err)
	}
	if op.Err == nil || op.Err.Status != 429 || op.Err.Code != "RESOURCE_EXHAUSTED" {
		t.Errorf("op.Err = %+v", op.Err)
	}
}

func TestGemini_DoneWithoutVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"name":"ops/1","done":true,"response":{"generateVideoResponse":{"raiMediaFilteredReasons":["unsafe"]}}}`)
	}))
	defer srv.Close()

	op, err := NewGemini(srv.URL, nil).PollVideo(context.Background(), "k", "ops/1")
	if err != nil {
		t.Fatal(err)
	}
	if op.Err == nil || !strings.Contains(op.Err.Message, "unsafe") {
		t.Errorf("op.Err = %+v", op.Err)
	}
}

func TestTextError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", &APIError{Status: 401, Message: "bad key"}, models.ErrCodeLLMAuthFailure},
		{"invalid key text", &APIError{Status: 400, Message: "API key not valid. Please pass a valid API key."}, models.ErrCodeLLMAuthFailure},
		{"rate limited", &APIError{Status: 429, Message: "slow down"}, models.ErrCodeLLMRateLimited},
		{"server", &APIError{Status: 500, Message: "boom"}, models.ErrCodeLLMFailure},
		{"transport", errors.New("dial tcp: refused"), models.ErrCodeLLMFailure},
		{"coded passthrough", models.NewError(models.ErrCodeMalformedExtraction, "x", nil), models.ErrCodeMalformedExtraction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TextError(tt.err).Code; got != tt.want {
				t.Errorf("code = %s, want %s", got, tt.want)
			}
		})
	}
}

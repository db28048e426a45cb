package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/use-agent/dataflow/models"
)

// Gemini is a REST client for the Generative Language API.
// It uses net/http directly, no SDK.
type Gemini struct {
	httpClient *http.Client
	baseURL    string
}

// NewGemini creates a client. Pass nil to use a default http.Client.
func NewGemini(baseURL string, httpClient *http.Client) *Gemini {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Gemini{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type geminiStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type geminiErrorResponse struct {
	Error geminiStatus `json:"error"`
}

// GenerateText calls models/{model}:generateContent.
func (g *Gemini) GenerateText(ctx context.Context, req TextRequest) (*TextResult, error) {
	body := generateRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.JSON {
		body.GenerationConfig = &generationConfig{ResponseMIMEType: "application/json"}
	}

	var resp generateResponse
	if err := g.do(ctx, http.MethodPost, "/models/"+req.Model+":generateContent", req.APIKey, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, models.NewError(models.ErrCodeLLMFailure, "model returned no candidates", nil)
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return &TextResult{
		Text: sb.String(),
		Usage: Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

type videoInstance struct {
	Prompt string      `json:"prompt"`
	Image  *videoImage `json:"image,omitempty"`
}

type videoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType"`
}

type videoParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	SampleCount     int    `json:"sampleCount"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type predictRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

type operationResponse struct {
	Name     string        `json:"name"`
	Done     bool          `json:"done"`
	Error    *geminiStatus `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RaiMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

// SubmitVideo calls models/{model}:predictLongRunning.
func (g *Gemini) SubmitVideo(ctx context.Context, req VideoRequest) (*Operation, error) {
	inst := videoInstance{Prompt: req.Prompt}
	if req.Image != nil {
		inst.Image = &videoImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(req.Image.Data),
			MIMEType:           req.Image.MIMEType,
		}
	}
	body := predictRequest{
		Instances: []videoInstance{inst},
		Parameters: videoParameters{
			AspectRatio:     req.AspectRatio,
			SampleCount:     1,
			DurationSeconds: req.DurationSeconds,
		},
	}

	var resp operationResponse
	if err := g.do(ctx, http.MethodPost, "/models/"+req.Model+":predictLongRunning", req.APIKey, body, &resp); err != nil {
		return nil, err
	}
	return resp.toOperation(), nil
}

// PollVideo fetches the current state of operation name.
func (g *Gemini) PollVideo(ctx context.Context, apiKey, name string) (*Operation, error) {
	var resp operationResponse
	if err := g.do(ctx, http.MethodGet, "/"+strings.TrimLeft(name, "/"), apiKey, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Name == "" {
		resp.Name = name
	}
	return resp.toOperation(), nil
}

// CancelVideo asks the provider to stop operation name. Providers that do
// not support cancellation answer with an error the caller may ignore.
func (g *Gemini) CancelVideo(ctx context.Context, apiKey, name string) error {
	return g.do(ctx, http.MethodPost, "/"+strings.TrimLeft(name, "/")+":cancel", apiKey, struct{}{}, nil)
}

func (r *operationResponse) toOperation() *Operation {
	op := &Operation{Name: r.Name, Done: r.Done}
	if r.Error != nil {
		op.Done = true
		op.Err = &APIError{Status: r.Error.Code, Code: r.Error.Status, Message: r.Error.Message}
		return op
	}
	if !r.Done || r.Response == nil {
		return op
	}
	samples := r.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) > 0 && samples[0].Video.URI != "" {
		op.VideoURI = samples[0].Video.URI
		return op
	}
	msg := "operation finished without a video"
	if reasons := r.Response.GenerateVideoResponse.RaiMediaFilteredReasons; len(reasons) > 0 {
		msg = "video filtered: " + strings.Join(reasons, "; ")
	}
	op.Err = &APIError{Message: msg}
	return op
}

// do sends one JSON request. Non-2xx responses become *APIError.
func (g *Gemini) do(ctx context.Context, method, path, apiKey string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseGeminiError(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseGeminiError(status int, body []byte) *APIError {
	ae := &APIError{Status: status, Message: http.StatusText(status)}
	var er geminiErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		ae.Message = er.Error.Message
		ae.Code = er.Error.Status
	} else if len(body) > 0 {
		ae.Message = strings.TrimSpace(string(body))
	}
	return ae
}

// Package llm talks to generative model APIs over plain HTTP: text
// generation for extraction and long-running video generation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/use-agent/dataflow/config"
	"github.com/use-agent/dataflow/models"
)

// TextRequest is one single-turn prompt.
type TextRequest struct {
	APIKey string
	Model  string
	Prompt string

	// JSON asks the model for a JSON response body.
	JSON bool
}

// Usage reports token consumption when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TextResult is the model's reply.
type TextResult struct {
	Text  string
	Usage Usage
}

// TextGenerator runs single-turn text prompts.
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (*TextResult, error)
}

// InlineImage is a reference image sent with a video request.
type InlineImage struct {
	Data     []byte
	MIMEType string
}

// VideoRequest submits one video generation job.
type VideoRequest struct {
	APIKey          string
	Model           string
	Prompt          string
	AspectRatio     string
	DurationSeconds int
	Image           *InlineImage
}

// Operation is the provider's handle on a long-running video job.
type Operation struct {
	Name     string
	Done     bool
	VideoURI string

	// Err is set when the job finished with an error.
	Err *APIError
}

// VideoGenerator submits and polls long-running video jobs.
type VideoGenerator interface {
	SubmitVideo(ctx context.Context, req VideoRequest) (*Operation, error)
	PollVideo(ctx context.Context, apiKey, name string) (*Operation, error)
	CancelVideo(ctx context.Context, apiKey, name string) error
}

// APIError is a provider error as reported on the wire.
type APIError struct {
	// Status is the HTTP status, or the numeric code of an operation error.
	Status int

	// Code is the provider's symbolic status, e.g. "NOT_FOUND".
	Code string

	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// TextError maps a text-generation failure to a coded error.
func TextError(err error) *models.Error {
	var me *models.Error
	if errors.As(err, &me) {
		return me
	}
	var ae *APIError
	if !errors.As(err, &ae) {
		return models.NewError(models.ErrCodeLLMFailure, "LLM request failed", err)
	}
	switch {
	case ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden ||
		strings.Contains(ae.Message, "API key not valid"):
		return models.NewError(models.ErrCodeLLMAuthFailure, ae.Message, ae)
	case ae.Status == http.StatusTooManyRequests || ae.Code == "RESOURCE_EXHAUSTED":
		return models.NewError(models.ErrCodeLLMRateLimited, ae.Message, ae)
	default:
		return models.NewError(models.ErrCodeLLMFailure,
			fmt.Sprintf("LLM API returned %d: %s", ae.Status, ae.Message), ae)
	}
}

// NewTextGenerator picks the client for cfg.Provider.
func NewTextGenerator(cfg config.LLMConfig, httpClient *http.Client) TextGenerator {
	if cfg.Provider == "openai" {
		return NewOpenAI(cfg.BaseURL, httpClient)
	}
	return NewGemini(cfg.BaseURL, httpClient)
}

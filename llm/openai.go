package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/use-agent/dataflow/models"
)

// OpenAI is a lightweight client for any OpenAI-compatible chat API.
// It uses net/http directly, no SDK.
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
}

// NewOpenAI creates a client. Pass nil to use a default http.Client.
func NewOpenAI(baseURL string, httpClient *http.Client) *OpenAI {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAI{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// GenerateText sends the prompt as a single user message to /chat/completions.
func (c *OpenAI) GenerateText(ctx context.Context, req TextRequest) (*TextResult, error) {
	body := chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: 0,
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, models.NewError(models.ErrCodeLLMFailure, "LLM request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewError(models.ErrCodeLLMFailure, "failed to read LLM response", err)
	}
	if resp.StatusCode != http.StatusOK {
		ae := &APIError{Status: resp.StatusCode, Message: "LLM API error"}
		var er chatErrorResponse
		if err := json.Unmarshal(respBody, &er); err == nil && er.Error.Message != "" {
			ae.Message = er.Error.Message
			ae.Code = er.Error.Code
		}
		return nil, ae
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return nil, models.NewError(models.ErrCodeLLMFailure, "failed to parse LLM response", err)
	}
	if len(cr.Choices) == 0 {
		return nil, models.NewError(models.ErrCodeLLMFailure, "LLM returned no choices", nil)
	}
	return &TextResult{Text: cr.Choices[0].Message.Content, Usage: cr.Usage}, nil
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/use-agent/dataflow/models"
)

// apiClient calls the DataFlow HTTP API.
type apiClient struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL:      baseURL,
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 10 * time.Minute},
		pollInterval: 3 * time.Second,
	}
}

// do sends a request and decodes the JSON response into out. Error bodies
// carrying an ErrorDetail are returned as an error.
func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var e models.ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != nil {
			return fmt.Errorf("[%s] %s", e.Error.Code, e.Error.Message)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *apiClient) scrape(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResponse, error) {
	var resp models.ScrapeResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/scrape", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) assemble(ctx context.Context, req models.AssembleRequest) (*models.AssembleResponse, error) {
	var resp models.AssembleResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/assemble", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) history(ctx context.Context, platform string) (*models.HistoryListResponse, error) {
	path := "/api/v1/history"
	if platform != "" {
		path += "?platform=" + platform
	}
	var resp models.HistoryListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// generateVideo submits a job and polls it until it leaves the submitted
// and polling states. If ctx ends first the job is canceled server-side.
func (c *apiClient) generateVideo(ctx context.Context, req models.VideoRequest) (*models.VideoJob, error) {
	var job models.VideoJob
	if err := c.do(ctx, http.MethodPost, "/api/v1/video", req, &job); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			var ignored models.VideoJob
			_ = c.do(cctx, http.MethodDelete, "/api/v1/video/"+job.ID, nil, &ignored)
			cancel()
			return nil, ctx.Err()
		case <-ticker.C:
			if err := c.do(ctx, http.MethodGet, "/api/v1/video/"+job.ID, nil, &job); err != nil {
				return nil, err
			}
			switch job.Status {
			case models.VideoStatusSubmitted, models.VideoStatusPolling:
				continue
			}
			return &job, nil
		}
	}
}

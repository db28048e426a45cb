// Package extract turns sampled page content into canonical records with a
// generative text model.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/use-agent/dataflow/llm"
	"github.com/use-agent/dataflow/models"
)

// Adapter runs the extraction prompt and normalizes the model's reply.
// It is safe for concurrent use.
type Adapter struct {
	gen      llm.TextGenerator
	model    string
	newID    func() string
	dupLimit int
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithDedupe drops records whose title and summary fingerprint lies within
// maxDistance bits of an earlier record. Negative disables it (default).
func WithDedupe(maxDistance int) Option {
	return func(a *Adapter) { a.dupLimit = maxDistance }
}

// NewAdapter creates an Adapter that prompts model through gen.
func NewAdapter(gen llm.TextGenerator, model string, opts ...Option) *Adapter {
	a := &Adapter{gen: gen, model: model, newID: uuid.NewString, dupLimit: -1}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Extract prompts the model with payload and returns the records it found,
// tagged as high-confidence successful crawls. Failures carry an LLM_* code
// or MALFORMED_EXTRACTION.
func (a *Adapter) Extract(ctx context.Context, payload *models.RawPayload, platform string, creds models.Credentials) ([]models.CanonicalRecord, error) {
	if creds.APIKey == "" {
		return nil, models.NewError(models.ErrCodeLLMAuthFailure, "no API key configured for extraction", nil)
	}

	res, err := a.gen.GenerateText(ctx, llm.TextRequest{
		APIKey: creds.APIKey,
		Model:  a.model,
		Prompt: BuildPrompt(platform, payload),
		JSON:   true,
	})
	if err != nil {
		return nil, llm.TextError(err)
	}
	slog.Debug("extraction reply received",
		"platform", platform,
		"model", a.model,
		"tokens", res.Usage.TotalTokens,
	)

	records, err := ParseRecords(res.Text, platform)
	if err != nil {
		return nil, err
	}
	if a.dupLimit >= 0 {
		n := len(records)
		records = Dedupe(records, a.dupLimit)
		if dropped := n - len(records); dropped > 0 {
			slog.Debug("near-duplicate records dropped", "platform", platform, "dropped", dropped)
		}
	}

	batch := a.newID()
	for i := range records {
		r := &records[i]
		r.ID = fmt.Sprintf("crawl-%s-%d", batch, i)
		r.Confidence = models.ConfidenceHigh
		r.CrawlingStatus = models.CrawlSuccess
		if r.URL == "" {
			r.URL = payload.FinalURL
		}
		if r.ImageURL == "" {
			r.ImageURL = payload.ImageURL
		}
	}
	return records, nil
}

// BuildPrompt renders the extraction prompt for one page.
func BuildPrompt(platform string, p *models.RawPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this page captured from the %s platform.\n", platform)
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	if p.FinalURL != "" {
		fmt.Fprintf(&b, "URL: %s\n", p.FinalURL)
	}
	if p.Text != "" {
		fmt.Fprintf(&b, "Visible content:\n%s\n", p.Text)
	}
	if p.HTML != "" {
		fmt.Fprintf(&b, "HTML sample:\n%s\n", p.HTML)
	}

	b.WriteString(`
Extract the commercial metrics of every product, creator or post on this page.
Respond with a JSON array. Each element has:
  title (string), price (number), sales (number), engagement (number),
  trendScore (number 0-100), summary (string), tags (array of strings),
  url (string), imageUrl (string),
  history (array of {"date": "YYYY-MM-DD", "sales": number, "engagement": number} for the last 7 days),
  platformMetrics (object).
`)
	if hint := models.MetricsShapeHint(platform); hint != "" {
		fmt.Fprintf(&b, "platformMetrics must have this shape: %s\n", hint)
	} else {
		b.WriteString("platformMetrics holds any platform-specific numbers you find, keyed by name.\n")
	}
	b.WriteString("When the page is sparse, estimate plausible values from context. Return only JSON.")
	return b.String()
}

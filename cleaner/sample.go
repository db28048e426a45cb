package cleaner

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/dataflow/models"
)

// Format selects how a page sample is rendered for the model prompt.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// noiseSelector matches elements that never carry content worth prompting on.
const noiseSelector = "script, style, noscript, svg, iframe, template, link, meta"

// Sampler turns a rendered page into a size-capped sample that bounds the
// downstream prompt. The converter is created once and reused (goroutine-safe).
type Sampler struct {
	mdConverter *converter.Converter
}

// NewSampler initialises the Sampler with a pre-configured Markdown converter.
func NewSampler() *Sampler {
	return &Sampler{mdConverter: newMarkdownConverter()}
}

// SampleOptions controls one sampling pass.
type SampleOptions struct {
	// Selector narrows the page to matching elements before sampling.
	Selector string

	// Format of the text sample. Default: text.
	Format Format

	// Readability runs the main-content extractor first (ignored when a
	// selector matched).
	Readability bool

	// TextLimit caps the text sample in runes. Zero means no cap.
	TextLimit int

	// HTMLLimit caps the HTML sample in runes. Zero disables the HTML sample.
	HTMLLimit int
}

// Sample is the bounded extract of one page.
type Sample struct {
	Text            string
	HTML            string
	Tokens          int
	Truncated       bool
	SelectorMatched bool
}

// Sample runs the pipeline:
//
//  1. Narrow to opts.Selector (falls back to the full page on no match).
//  2. Strip script/style/etc.
//  3. Render text (readability or plain) or Markdown.
//  4. Cap both samples.
func (s *Sampler) Sample(rawHTML, sourceURL string, opts SampleOptions) (Sample, error) {
	var out Sample

	// ── 1. Selector ────────────────────────────────────────────────
	scoped := rawHTML
	if opts.Selector != "" {
		narrowed, matched, err := ApplyCSSSelector(rawHTML, opts.Selector)
		if err != nil {
			return out, models.NewError(models.ErrCodeExtraction, "invalid platform selector", err)
		}
		scoped = narrowed
		out.SelectorMatched = matched
	}

	// ── 2. Noise removal ───────────────────────────────────────────
	scoped = stripNoise(scoped)

	// ── 3. Render ──────────────────────────────────────────────────
	var text string
	switch opts.Format {
	case FormatMarkdown:
		md, err := ToMarkdown(s.mdConverter, scoped, sourceURL)
		if err != nil {
			return out, models.NewError(models.ErrCodeExtraction, "markdown conversion failed", err)
		}
		text = md
	default:
		if opts.Readability && !out.SelectorMatched {
			if article, ok := ExtractContent(scoped, sourceURL); ok {
				text = article.TextContent
			}
		}
		if text == "" {
			text = visibleText(scoped)
		}
	}
	text = collapseWhitespace(text)

	// ── 4. Caps ────────────────────────────────────────────────────
	var cut bool
	out.Text, cut = Truncate(text, opts.TextLimit)
	out.Truncated = cut
	if opts.HTMLLimit > 0 {
		out.HTML, cut = Truncate(scoped, opts.HTMLLimit)
		out.Truncated = out.Truncated || cut
	}
	out.Tokens = EstimateTokens(out.Text) + EstimateTokens(out.HTML)
	return out, nil
}

// Truncate caps s at limit runes. limit <= 0 returns s unchanged.
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// EstimateTokens provides a fast token count estimate.
//
// Heuristic: utf8 rune count / 3. English averages ~4 chars/token and CJK
// ~1.5 chars/token; 3 is the middle ground for mixed pages.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	est := n / 3
	if est < 1 {
		return 1
	}
	return est
}

func stripNoise(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find(noiseSelector).Remove()
	body := doc.Find("body")
	if body.Length() == 0 {
		out, err := doc.Html()
		if err != nil {
			return html
		}
		return out
	}
	out, err := body.Html()
	if err != nil {
		return html
	}
	return strings.TrimSpace(out)
}

// visibleText extracts visible text from an HTML fragment with goquery.
func visibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return doc.Text()
}

// collapseWhitespace folds runs of whitespace into single spaces but keeps
// line breaks, which carry structure for the model.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace, lastNewline := false, false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r == '\n':
			if !lastNewline {
				b.WriteRune('\n')
			}
			lastNewline, lastSpace = true, true
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
		default:
			b.WriteRune(r)
			lastSpace, lastNewline = false, false
		}
	}
	return b.String()
}

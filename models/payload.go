package models

// RawPayload is what a browser session extracts from one page: the title
// plus size-capped samples that bound the downstream prompt.
type RawPayload struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
	FinalURL string `json:"final_url"`
	Title    string `json:"title"`

	// Text is the visible-text (or Markdown) sample.
	Text string `json:"text,omitempty"`

	// HTML is the raw markup sample, when the strategy keeps one.
	HTML string `json:"html,omitempty"`

	// ImageURL is the page's og:image, if any.
	ImageURL string `json:"image_url,omitempty"`

	// Strategy names the platform strategy that produced the payload.
	Strategy string `json:"strategy"`

	// Tokens estimates the prompt cost of Text + HTML.
	Tokens int `json:"tokens"`
}

package browser

import (
	"strings"
	"sync"

	"github.com/use-agent/dataflow/cleaner"
	"github.com/use-agent/dataflow/models"
)

// Strategy describes how one platform's pages are sampled.
type Strategy struct {
	// Name identifies the strategy in payloads and logs.
	Name string

	// URLMatch lists URL substrings that select this strategy when the
	// platform id itself is not registered.
	URLMatch []string

	// Selector narrows the page before sampling.
	Selector string

	Format      cleaner.Format
	Readability bool

	// TextLimit and HTMLLimit cap the samples, in runes.
	TextLimit int
	HTMLLimit int
}

// Registry maps platform ids to extraction strategies, with one generic
// fallback. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	byPlatform map[string]Strategy
	order      []string
	fallback   Strategy
}

// NewRegistry creates a Registry that answers fallback for unknown platforms.
func NewRegistry(fallback Strategy) *Registry {
	return &Registry{
		byPlatform: make(map[string]Strategy),
		fallback:   fallback,
	}
}

// Register adds or replaces the strategy for platform.
func (r *Registry) Register(platform string, s Strategy) {
	platform = strings.ToLower(platform)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPlatform[platform]; !ok {
		r.order = append(r.order, platform)
	}
	r.byPlatform[platform] = s
}

// Lookup resolves a strategy: exact platform id first, then the first
// registered strategy whose URLMatch occurs in rawURL, then the fallback.
func (r *Registry) Lookup(platform, rawURL string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.byPlatform[strings.ToLower(platform)]; ok {
		return s
	}
	lower := strings.ToLower(rawURL)
	for _, p := range r.order {
		s := r.byPlatform[p]
		for _, m := range s.URLMatch {
			if strings.Contains(lower, m) {
				return s
			}
		}
	}
	return r.fallback
}

// Apply samples a rendered page with the strategy for platform/url.
func (r *Registry) Apply(sampler *cleaner.Sampler, platform string, page PageSnapshot) (*models.RawPayload, error) {
	s := r.Lookup(platform, page.URL)
	sample, err := sampler.Sample(page.HTML, page.URL, cleaner.SampleOptions{
		Selector:    s.Selector,
		Format:      s.Format,
		Readability: s.Readability,
		TextLimit:   s.TextLimit,
		HTMLLimit:   s.HTMLLimit,
	})
	if err != nil {
		return nil, err
	}
	return &models.RawPayload{
		Platform: platform,
		URL:      page.RequestURL,
		FinalURL: page.URL,
		Title:    strings.TrimSpace(page.Title),
		Text:     sample.Text,
		HTML:     sample.HTML,
		ImageURL: page.ImageURL,
		Strategy: s.Name,
		Tokens:   sample.Tokens,
	}, nil
}

// PageSnapshot is the rendered state read from a page before sampling.
type PageSnapshot struct {
	RequestURL string
	URL        string
	Title      string
	HTML       string
	ImageURL   string
}

// DefaultRegistry returns the built-in platform strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry(Strategy{
		Name:        "generic",
		Format:      cleaner.FormatText,
		Readability: true,
		TextLimit:   1000,
		HTMLLimit:   1000,
	})
	r.Register(models.PlatformChanmama, Strategy{
		Name:      "chanmama",
		URLMatch:  []string{"chanmama"},
		Format:    cleaner.FormatText,
		TextLimit: 500,
	})
	r.Register(models.PlatformDouyin, Strategy{
		Name:      "douyin",
		URLMatch:  []string{"douyin.com", "jinritemai.com", "iesdouyin.com"},
		Format:    cleaner.FormatText,
		TextLimit: 1000,
	})
	r.Register(models.PlatformXiaohongshu, Strategy{
		Name:      "xiaohongshu",
		URLMatch:  []string{"xiaohongshu.com", "xhslink.com"},
		Selector:  "#detail-desc, .note-content, .feeds-container",
		Format:    cleaner.FormatText,
		TextLimit: 1000,
	})
	r.Register(models.PlatformWeChat, Strategy{
		Name:        "wechat",
		URLMatch:    []string{"mp.weixin.qq.com"},
		Selector:    "#js_content",
		Format:      cleaner.FormatText,
		Readability: true,
		TextLimit:   1000,
	})
	r.Register(models.PlatformTaobao, Strategy{
		Name:      "taobao",
		URLMatch:  []string{"taobao.com", "tmall.com"},
		Format:    cleaner.FormatMarkdown,
		TextLimit: 1000,
	})
	return r
}

package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/use-agent/dataflow/llm"
	"github.com/use-agent/dataflow/models"
)

type fakeGenerator struct {
	reply string
	err   error
	got   llm.TextRequest
	calls int
}

func (f *fakeGenerator) GenerateText(_ context.Context, req llm.TextRequest) (*llm.TextResult, error) {
	f.calls++
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.TextResult{Text: f.reply}, nil
}

func newTestAdapter(gen llm.TextGenerator) *Adapter {
	a := NewAdapter(gen, "gemini-2.5-flash")
	a.newID = func() string { return "batch" }
	return a
}

var douyinPayload = &models.RawPayload{
	Platform: models.PlatformDouyin,
	FinalURL: "https://www.douyin.com/rank",
	Title:    "抖音带货榜",
	Text:     "口红A 销量 12000 ; 精华B 销量 8500",
	ImageURL: "https://img.example/og.png",
}

const twoDouyinItems = "```json\n" + `[
  {"title":"口红A","price":99,"sales":12000,"engagement":3400,"trendScore":88,"summary":"hot","tags":["beauty"],
   "history":[{"date":"2024-05-01","sales":1000,"engagement":300}],
   "platformMetrics":{"sevenDaySales":12000,"cvr":3.2,"commissionRate":20,"gpm":800,"livePeakUser":5000,
     "audienceGenders":{"male":20,"female":80}}},
  {"title":"精华B","price":199,"sales":8500,"engagement":2100,"trendScore":71,"summary":"rising","tags":[],
   "url":"https://www.douyin.com/item/2",
   "platformMetrics":{"sevenDaySales":8500,"cvr":2.1,"commissionRate":15,"gpm":500,"livePeakUser":1200,
     "audienceGenders":{"male":35,"female":65}}}
]` + "\n```"

func TestAdapter_Extract_TwoDouyinItems(t *testing.T) {
	gen := &fakeGenerator{reply: twoDouyinItems}
	a := newTestAdapter(gen)

	recs, err := a.Extract(context.Background(), douyinPayload, models.PlatformDouyin, models.Credentials{APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	for i, r := range recs {
		if r.Confidence != models.ConfidenceHigh || r.CrawlingStatus != models.CrawlSuccess {
			t.Errorf("record %d tagged %s/%s", i, r.Confidence, r.CrawlingStatus)
		}
		m, ok := r.PlatformMetrics.(models.DouyinMetrics)
		if !ok {
			t.Fatalf("record %d metrics = %T, want DouyinMetrics", i, r.PlatformMetrics)
		}
		if m.AudienceGenders.Male+m.AudienceGenders.Female != 100 {
			t.Errorf("record %d audience split = %+v", i, m.AudienceGenders)
		}
	}
	if recs[0].ID == recs[1].ID {
		t.Errorf("ids not unique: %q", recs[0].ID)
	}
	if recs[0].ID != "crawl-batch-0" {
		t.Errorf("ID = %q", recs[0].ID)
	}
	if recs[0].URL != douyinPayload.FinalURL {
		t.Errorf("URL default = %q", recs[0].URL)
	}
	if recs[1].URL != "https://www.douyin.com/item/2" {
		t.Errorf("model URL overwritten: %q", recs[1].URL)
	}
	if recs[1].History == nil {
		t.Error("History should be an empty slice, not nil")
	}

	if gen.got.APIKey != "k" || !gen.got.JSON {
		t.Errorf("request = %+v", gen.got)
	}
	if !strings.Contains(gen.got.Prompt, "audienceGenders") {
		t.Error("prompt lacks the douyin metrics shape")
	}
	if !strings.Contains(gen.got.Prompt, "口红A") {
		t.Error("prompt lacks the page sample")
	}
}

func TestAdapter_Extract_SingleObject(t *testing.T) {
	gen := &fakeGenerator{reply: `{"title":"Only","price":1,"sales":2,"engagement":3,"trendScore":4,"summary":"s","tags":[]}`}
	recs, err := newTestAdapter(gen).Extract(context.Background(), douyinPayload, "shop", models.Credentials{APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Title != "Only" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestAdapter_Extract_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"prose", "Sorry, I cannot help with that."},
		{"empty", "   "},
		{"empty array", "[]"},
		{"non-object items", `["first", 42]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestAdapter(&fakeGenerator{reply: tt.reply}).
				Extract(context.Background(), douyinPayload, models.PlatformDouyin, models.Credentials{APIKey: "k"})
			if !models.IsCode(err, models.ErrCodeMalformedExtraction) {
				t.Errorf("err = %v, want MALFORMED_EXTRACTION", err)
			}
		})
	}
}

func TestAdapter_Extract_NoAPIKey(t *testing.T) {
	gen := &fakeGenerator{reply: "[]"}
	_, err := newTestAdapter(gen).Extract(context.Background(), douyinPayload, models.PlatformDouyin, models.Credentials{})
	if !models.IsCode(err, models.ErrCodeLLMAuthFailure) {
		t.Errorf("err = %v, want LLM_AUTH_FAILURE", err)
	}
	if gen.calls != 0 {
		t.Error("model called without a key")
	}
}

func TestAdapter_Extract_ProviderError(t *testing.T) {
	gen := &fakeGenerator{err: &llm.APIError{Status: 429, Code: "RESOURCE_EXHAUSTED", Message: "quota"}}
	_, err := newTestAdapter(gen).Extract(context.Background(), douyinPayload, models.PlatformDouyin, models.Credentials{APIKey: "k"})
	if !models.IsCode(err, models.ErrCodeLLMRateLimited) {
		t.Errorf("err = %v, want LLM_RATE_LIMITED", err)
	}
}

func TestParseRecords_BadMetricsDropped(t *testing.T) {
	recs, err := ParseRecords(`[{"title":"x","platformMetrics":{"cvr":"high"}}]`, models.PlatformDouyin)
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].PlatformMetrics != nil {
		t.Errorf("metrics = %+v, want dropped", recs[0].PlatformMetrics)
	}
}

func TestParseRecords_LenientFields(t *testing.T) {
	reply := `[
		{"title":"A","price":"29.9","sales":"1,200","history":[{"date":"2024-05-01","sales":"7","engagement":3}]},
		{"title":"B","price":10,"tags":"not-a-list","platformMetrics":{"sevenDaySales":"300","cvr":0.1}},
		{"title":42,"summary":"kept"}
	]`
	recs, err := ParseRecords(reply, models.PlatformDouyin)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}

	if recs[0].Price != 29.9 || recs[0].Sales != 1200 {
		t.Errorf("record A price/sales = %v/%v, want 29.9/1200", recs[0].Price, recs[0].Sales)
	}
	if len(recs[0].History) != 1 || recs[0].History[0].Sales != 7 {
		t.Errorf("record A history = %+v", recs[0].History)
	}

	if recs[1].Price != 10 || len(recs[1].Tags) != 0 {
		t.Errorf("record B = price %v tags %v, want 10 and no tags", recs[1].Price, recs[1].Tags)
	}
	m, ok := recs[1].PlatformMetrics.(models.DouyinMetrics)
	if !ok || m.SevenDaySales != 300 || m.CVR != 0.1 {
		t.Errorf("record B metrics = %#v", recs[1].PlatformMetrics)
	}

	if recs[2].Title != "" || recs[2].Summary != "kept" {
		t.Errorf("record C = %q/%q, want title dropped and summary kept", recs[2].Title, recs[2].Summary)
	}
}

func TestParseRecords_GenericMetrics(t *testing.T) {
	recs, err := ParseRecords(`[{"title":"x","platformMetrics":{"favorites":12}}]`, "shop")
	if err != nil {
		t.Fatal(err)
	}
	g, ok := recs[0].PlatformMetrics.(models.GenericMetrics)
	if !ok || g.Values["favorites"] != float64(12) {
		t.Errorf("metrics = %#v", recs[0].PlatformMetrics)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"[1]", "[1]"},
		{"```json\n[1]\n```", "[1]"},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```JSON\n[2]```  ", "[2]"},
		{"```[3]```", "[3]"},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

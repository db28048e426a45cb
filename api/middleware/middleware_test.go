package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/dataflow/config"
)

func init() { gin.SetMode(gin.TestMode) }

func TestAuth(t *testing.T) {
	r := gin.New()
	r.Use(Auth([]string{"k1", "k2"}))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextKeyAPIKey)) })

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"x-api-key", "X-API-Key", "k2", http.StatusOK},
		{"bearer", "Authorization", "Bearer k1", http.StatusOK},
		{"invalid", "X-API-Key", "nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuth_NoKeysIsOpen(t *testing.T) {
	r := gin.New()
	r.Use(Auth([]string{""}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	var codes []int
	var retry string
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
		retry = w.Header().Get("Retry-After")
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
	if retry == "" {
		t.Error("missing Retry-After")
	}
}

func TestLimiterSet_EvictIdle(t *testing.T) {
	s := newLimiterSet(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if d := s.reserve("a"); d != 0 {
		t.Fatalf("first reserve waited %v", d)
	}
	if d := s.reserve("a"); d <= 0 {
		t.Error("second reserve should wait")
	}
	now = now.Add(2 * time.Hour)
	s.reserve("b")
	s.evictIdle(now.Add(-time.Hour))
	if _, ok := s.limiters["a"]; ok {
		t.Error("idle identity not evicted")
	}
	if len(s.limiters) != 1 {
		t.Errorf("len = %d, want 1", len(s.limiters))
	}
}

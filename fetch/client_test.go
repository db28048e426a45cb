package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("User-Agent"), "Chrome") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		switch r.URL.Path {
		case "/ok":
			io.WriteString(w, "payload")
		case "/big":
			io.WriteString(w, strings.Repeat("x", 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New("", WithHTTPClient(srv.Client()), WithMaxBytes(32))
	ctx := context.Background()

	body, err := c.Fetch(ctx, srv.URL+"/ok")
	if err != nil || string(body) != "payload" {
		t.Fatalf("Fetch(/ok) = %q, %v", body, err)
	}
	if _, err := c.Fetch(ctx, srv.URL+"/big"); err == nil {
		t.Error("expected size cap error")
	}
	if _, err := c.Fetch(ctx, srv.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Fetch(/missing) err = %v", err)
	}
}

func TestNew_ProxySchemes(t *testing.T) {
	for _, p := range []string{"", "http://127.0.0.1:8080", "socks5://127.0.0.1:1080", "::bad"} {
		if c := New(p); c == nil || c.http == nil {
			t.Errorf("New(%q) returned no client", p)
		}
	}
}

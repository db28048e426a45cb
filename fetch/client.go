// Package fetch downloads remote resources over HTTP with a Chrome TLS
// fingerprint, so CDNs that gate on fingerprints serve them like a browser.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes = 20 << 20

// Client performs GET requests with a Chrome TLS fingerprint (utls).
// It is safe for concurrent use.
type Client struct {
	http     *http.Client
	maxBytes int64
}

// Option customizes a Client.
type Option func(*Client)

// WithMaxBytes caps response bodies at n bytes.
func WithMaxBytes(n int64) Option {
	return func(c *Client) { c.maxBytes = n }
}

// WithHTTPClient replaces the fingerprinting transport, e.g. in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client. proxyURL may be empty, http(s):// or socks5://.
func New(proxyURL string, opts ...Option) *Client {
	var socks proxy.Dialer
	transport := &http.Transport{
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
	}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			switch u.Scheme {
			case "http", "https":
				transport.Proxy = http.ProxyURL(u)
			case "socks5", "socks5h":
				if d, err := proxy.FromURL(u, proxy.Direct); err == nil {
					socks = d
				}
			}
		}
	}
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialTLSChrome(ctx, network, addr, socks)
	}

	c := &Client{
		http:     &http.Client{Transport: transport, Timeout: 2 * time.Minute},
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads targetURL. Bodies larger than the cap are an error.
func (c *Client) Fetch(ctx context.Context, targetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch: HTTP %d for %s", resp.StatusCode, targetURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("fetch: %s exceeds %d bytes", targetURL, c.maxBytes)
	}
	return body, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint,
// optionally tunnelled through a SOCKS5 dialer.
func dialTLSChrome(ctx context.Context, network, addr string, socks proxy.Dialer) (net.Conn, error) {
	var rawConn net.Conn
	var err error

	switch d := socks.(type) {
	case nil:
		rawConn, err = (&net.Dialer{}).DialContext(ctx, network, addr)
	case proxy.ContextDialer:
		rawConn, err = d.DialContext(ctx, network, addr)
	default:
		rawConn, err = d.Dial(network, addr)
	}
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// Package api talks to the usage host over plain HTTP, authenticated with
// cookies taken from the logged-in browser context.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hetzner-invoices/internal/browser"
)

const (
	DefaultUsageBaseURL = "https://usage.hetzner.com"
	defaultTimeout      = 30 * time.Second
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Client handles HTTP requests to the usage host
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent should match the browser's so the host sees one client.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a new usage API client
func NewClient(logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL:   DefaultUsageBaseURL,
		userAgent: defaultUserAgent,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// makeRequest performs a cookie-authenticated HTTP request
func (c *Client) makeRequest(ctx context.Context, method, endpoint string, cookies []browser.Cookie) (*http.Response, error) {
	url := c.baseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if header := browser.CookieHeader(cookies); header != "" {
		req.Header.Set("Cookie", header)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", "https://accounts.hetzner.com/invoice")

	c.logger.Debug().Str("method", method).Str("url", url).Int("cookies", len(cookies)).Msg("Usage request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}

	return resp, nil
}

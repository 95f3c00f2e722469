// Package browser owns the stealth Chromium session used to drive
// accounts.hetzner.com and exposes it to the rest of the program through
// the narrow Page interface.
package browser

import (
	"context"
	"strings"
	"time"
)

// Page is the set of interactions the login flow and the invoice scraper
// need from a rendered page. The real implementation is backed by rod;
// tests use an in-memory fake.
//
// A Page is not safe for concurrent use.
type Page interface {
	// Navigate loads url and waits for the document to load.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitForSelector blocks until selector matches an element.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	// WaitIdle waits for network and DOM activity to settle.
	WaitIdle(ctx context.Context, timeout time.Duration) error
	// WaitURL polls the page URL until match returns true.
	WaitURL(ctx context.Context, match func(url string) bool, timeout time.Duration) error
	// Sleep pauses without touching the page.
	Sleep(ctx context.Context, d time.Duration) error

	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error

	// Content returns the serialized DOM.
	Content(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	// Cookies returns every cookie of the browser context, not only the
	// ones for the current URL.
	Cookies(ctx context.Context) ([]Cookie, error)

	// Download arms a download listener, clicks selector and saves the
	// resulting file at dest. Arming happens before the click.
	Download(ctx context.Context, selector, dest string, timeout time.Duration) error
}

// Cookie is a browser cookie reduced to what the HTTP bridge needs.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// CookieHeader serializes cookies the way a browser does in a Cookie
// request header: name=value pairs joined by "; ", in the given order.
func CookieHeader(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Session is a live browser with exactly one page.
type Session interface {
	Page() Page
	Close() error
}

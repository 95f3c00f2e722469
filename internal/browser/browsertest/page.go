// Package browsertest provides a scripted, in-memory browser.Page for
// tests. Selectors are evaluated against the current HTML with goquery, so
// fixtures behave like a rendered page without a browser process.
package browsertest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"hetzner-invoices/internal/browser"
)

// Page is a fake browser.Page. Navigate serves Routes; Click runs OnClick,
// which tests use to move the page to its next state.
type Page struct {
	URLValue  string
	HTMLValue string

	// Routes maps a URL to the HTML served when navigating to it.
	Routes map[string]string

	CookieList []browser.Cookie

	// OnClick is invoked after a successful click on an existing element.
	OnClick func(p *Page, selector string) error

	// IdleErr is returned by WaitIdle.
	IdleErr error

	// DownloadData is written to the destination of Download.
	DownloadData []byte

	Filled map[string]string
	Calls  []string
}

var _ browser.Page = (*Page)(nil)

// New returns a fake page serving routes.
func New(routes map[string]string) *Page {
	return &Page{
		Routes: routes,
		Filled: map[string]string{},
	}
}

// SetState replaces the current URL and HTML.
func (p *Page) SetState(url, html string) {
	p.URLValue = url
	p.HTMLValue = html
}

func (p *Page) record(format string, args ...any) {
	p.Calls = append(p.Calls, fmt.Sprintf(format, args...))
}

// Has reports whether selector matches the current HTML.
func (p *Page) Has(selector string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTMLValue))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}

// Called reports whether a call with the given prefix was recorded.
func (p *Page) Called(prefix string) bool {
	for _, c := range p.Calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p.record("navigate %s", url)
	if err := ctx.Err(); err != nil {
		return err
	}
	html, ok := p.Routes[url]
	if !ok {
		return fmt.Errorf("navigating to %s: no route", url)
	}
	p.SetState(url, html)
	return nil
}

func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	p.record("wait %s", selector)
	if !p.Has(selector) {
		return fmt.Errorf("waiting for %q: %w", selector, context.DeadlineExceeded)
	}
	return nil
}

func (p *Page) WaitIdle(ctx context.Context, timeout time.Duration) error {
	p.record("idle")
	return p.IdleErr
}

func (p *Page) WaitURL(ctx context.Context, match func(string) bool, timeout time.Duration) error {
	p.record("wait-url")
	if !match(p.URLValue) {
		return fmt.Errorf("waiting for url (last %q): %w", p.URLValue, context.DeadlineExceeded)
	}
	return nil
}

func (p *Page) Sleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	p.record("fill %s", selector)
	if !p.Has(selector) {
		return fmt.Errorf("finding %q: %w", selector, context.DeadlineExceeded)
	}
	if p.Filled == nil {
		p.Filled = map[string]string{}
	}
	p.Filled[selector] = value
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.record("click %s", selector)
	if !p.Has(selector) {
		return fmt.Errorf("finding %q: %w", selector, context.DeadlineExceeded)
	}
	if p.OnClick != nil {
		return p.OnClick(p, selector)
	}
	return nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	return p.HTMLValue, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	return p.URLValue, nil
}

func (p *Page) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	return p.CookieList, nil
}

func (p *Page) Download(ctx context.Context, selector, dest string, timeout time.Duration) error {
	p.record("download %s", selector)
	if !p.Has(selector) {
		return fmt.Errorf("triggering download via %q: %w", selector, context.DeadlineExceeded)
	}
	return os.WriteFile(dest, p.DownloadData, 0o644)
}

// Session is a fake browser.Session around a Page.
type Session struct {
	P      *Page
	Closed int
}

func (s *Session) Page() browser.Page { return s.P }

func (s *Session) Close() error {
	s.Closed++
	return nil
}

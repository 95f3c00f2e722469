package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const (
	// interactionTimeout bounds Fill and Click, which have no explicit timeout
	interactionTimeout = 10 * time.Second

	urlPollInterval = 250 * time.Millisecond
)

// RodPage implements Page on top of a rod page. The owning browser context
// is kept for cookie access and download handling, which are
// context-level in CDP.
type RodPage struct {
	page    *rod.Page
	browser *rod.Browser
}

func newRodPage(page *rod.Page, browser *rod.Browser) *RodPage {
	return &RodPage{page: page, browser: browser}
}

func (p *RodPage) scoped(ctx context.Context, timeout time.Duration) (*rod.Page, context.CancelFunc) {
	if timeout <= 0 {
		return p.page.Context(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return p.page.Context(ctx), cancel
}

func (p *RodPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	pg, cancel := p.scoped(ctx, timeout)
	defer cancel()

	// Armed before navigating so the event can't be missed
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	wait()

	if err := pg.GetContext().Err(); err != nil {
		return fmt.Errorf("loading %s: %w", url, err)
	}
	return nil
}

func (p *RodPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	pg, cancel := p.scoped(ctx, timeout)
	defer cancel()

	if _, err := pg.Element(selector); err != nil {
		return fmt.Errorf("waiting for %q: %w", selector, err)
	}
	return nil
}

func (p *RodPage) WaitIdle(ctx context.Context, timeout time.Duration) error {
	pg, cancel := p.scoped(ctx, timeout)
	defer cancel()

	if err := pg.WaitStable(500 * time.Millisecond); err != nil {
		return fmt.Errorf("waiting for page to settle: %w", err)
	}
	return nil
}

func (p *RodPage) WaitURL(ctx context.Context, match func(string) bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(urlPollInterval)
	defer ticker.Stop()

	last := ""
	for {
		info, err := p.page.Context(ctx).Info()
		if err == nil {
			last = info.URL
			if match(last) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for url (last %q): %w", last, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *RodPage) Sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

func (p *RodPage) Fill(ctx context.Context, selector, value string) error {
	pg, cancel := p.scoped(ctx, interactionTimeout)
	defer cancel()

	el, err := pg.Element(selector)
	if err != nil {
		return fmt.Errorf("finding %q: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("clearing %q: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("filling %q: %w", selector, err)
	}
	return nil
}

func (p *RodPage) Click(ctx context.Context, selector string) error {
	pg, cancel := p.scoped(ctx, interactionTimeout)
	defer cancel()

	el, err := pg.Element(selector)
	if err != nil {
		return fmt.Errorf("finding %q: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	return nil
}

func (p *RodPage) Content(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("reading page html: %w", err)
	}
	return html, nil
}

func (p *RodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("reading page url: %w", err)
	}
	return info.URL, nil
}

func (p *RodPage) Cookies(ctx context.Context) ([]Cookie, error) {
	raw, err := p.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return cookies, nil
}

func (p *RodPage) Download(ctx context.Context, selector, dest string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Chrome names the file after the download GUID; stage it next to dest
	// so the final rename stays on one filesystem.
	staging, err := os.MkdirTemp(filepath.Dir(dest), ".download-")
	if err != nil {
		return fmt.Errorf("creating download staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	wait := p.browser.Context(ctx).WaitDownload(staging)

	el, err := p.page.Context(ctx).Element(selector)
	if err == nil {
		err = el.Click(proto.InputMouseButtonLeft, 1)
	}
	if err != nil {
		// Unblock the listener so the download behaviour gets restored
		cancel()
		wait()
		return fmt.Errorf("triggering download via %q: %w", selector, err)
	}

	info := wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("waiting for download: %w", ctxErr)
	}
	if info == nil {
		return errors.New("waiting for download: browser reported no download")
	}

	if err := os.Rename(filepath.Join(staging, info.GUID), dest); err != nil {
		return fmt.Errorf("saving download to %s: %w", dest, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

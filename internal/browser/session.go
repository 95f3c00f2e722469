package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
)

// Options controls how the browser is launched and how the page presents
// itself to the portal.
type Options struct {
	Headless bool
	Bin      string

	UserAgent string
	Locale    string
	Timezone  string
	Width     int
	Height    int
}

// DefaultOptions mimics a common desktop Chrome on Windows.
func DefaultOptions() Options {
	return Options{
		Headless:  true,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Locale:    "en-US",
		Timezone:  "America/New_York",
		Width:     1920,
		Height:    1080,
	}
}

// RodSession is a launched Chromium process, a fresh incognito context
// and the single stealth page used for every operation.
type RodSession struct {
	launcher  *launcher.Launcher
	launched  bool
	browser   *rod.Browser
	incognito *rod.Browser
	page      *rod.Page
	rodPage   *RodPage
	logger    zerolog.Logger
}

// Launch starts the browser. Whatever was acquired before a failure is
// released before Launch returns, so a failed launch leaves no process
// behind.
func Launch(ctx context.Context, opts Options, logger zerolog.Logger) (_ *RodSession, err error) {
	s := &RodSession{logger: logger}
	defer func() {
		if err != nil {
			if closeErr := s.Close(); closeErr != nil {
				logger.Warn().Err(closeErr).Msg("Cleanup after failed browser launch")
			}
		}
	}()

	s.launcher = launcher.New().
		Headless(opts.Headless).
		Delete("enable-automation").
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-web-security").
		Set("disable-features", "IsolateOrigins,site-per-process").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("window-size", fmt.Sprintf("%d,%d", opts.Width, opts.Height))
	if opts.Bin != "" {
		s.launcher = s.launcher.Bin(opts.Bin)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Debug().Bool("headless", opts.Headless).Msg("Launching browser")
	controlURL, err := s.launcher.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	s.launched = true

	s.browser = rod.New().ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		s.browser = nil
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	s.incognito, err = s.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}

	s.page, err = stealth.Page(s.incognito)
	if err != nil {
		return nil, fmt.Errorf("opening stealth page: %w", err)
	}

	if err := applyFingerprint(s.page, opts); err != nil {
		return nil, err
	}

	s.rodPage = newRodPage(s.page, s.incognito)
	logger.Info().Msg("Browser session started")
	return s, nil
}

func applyFingerprint(page *rod.Page, opts Options) error {
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("setting viewport: %w", err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      opts.UserAgent,
		AcceptLanguage: opts.Locale,
	}); err != nil {
		return fmt.Errorf("setting user agent: %w", err)
	}

	if err := (proto.EmulationSetLocaleOverride{Locale: opts.Locale}).Call(page); err != nil {
		return fmt.Errorf("setting locale: %w", err)
	}

	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: opts.Timezone}).Call(page); err != nil {
		return fmt.Errorf("setting timezone: %w", err)
	}

	return nil
}

// Page returns the session's only page.
func (s *RodSession) Page() Page {
	return s.rodPage
}

// Close tears down page, context, browser and process, in that order.
// Safe to call more than once and on a partially launched session.
func (s *RodSession) Close() error {
	var errs []error

	if s.page != nil {
		if err := s.page.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Closing page")
		}
		s.page = nil
		s.rodPage = nil
	}

	if s.incognito != nil {
		if err := s.incognito.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Disposing browser context")
		}
		s.incognito = nil
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing browser: %w", err))
		}
		s.browser = nil
	}

	// Cleanup blocks until the process exits, so only run it for a
	// process that was actually started
	if s.launcher != nil && s.launched {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
	s.launcher = nil
	s.launched = false

	return errors.Join(errs...)
}

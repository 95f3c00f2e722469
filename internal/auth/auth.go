// Package auth logs into Hetzner Accounts through a browser.Page, including
// the optional TOTP second factor.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hetzner-invoices/internal/browser"
	"hetzner-invoices/internal/config"
)

const (
	DefaultBaseURL = "https://accounts.hetzner.com"

	selectorUsername  = `input[name="_username"]`
	selectorPassword  = `input[name="_password"]`
	selectorSubmit    = `input[type="submit"]`
	selectorTOTPField = `input[name="_auth_code"]`
)

var (
	ErrLoginFailed       = errors.New("login failed")
	ErrTwoFactorRequired = errors.New("two-factor authentication required but no TOTP secret configured (set HETZNER_TOTP_SECRET)")
	ErrTwoFactorFailed   = errors.New("two-factor authentication failed")
	errAlreadyAttempted  = errors.New("login already attempted for this session")
)

// State is a step of the login flow.
type State int

const (
	StateNotStarted State = iota
	StateFormSubmitted
	StateTwoFactorPending
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateFormSubmitted:
		return "form-submitted"
	case StateTwoFactorPending:
		return "two-factor-pending"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Timeouts bounds every wait of the login flow.
type Timeouts struct {
	Navigate       time.Duration // login page load, generous for bot mitigation
	Settle         time.Duration // fixed pause after load
	Form           time.Duration // credential form render
	Idle           time.Duration // post-submit quiescence, best effort
	Landing        time.Duration // post-login redirect check
	TwoFactorField time.Duration
	TwoFactorDone  time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigate:       30 * time.Second,
		Settle:         2 * time.Second,
		Form:           15 * time.Second,
		Idle:           10 * time.Second,
		Landing:        5 * time.Second,
		TwoFactorField: 5 * time.Second,
		TwoFactorDone:  10 * time.Second,
	}
}

// CodeSource produces second-factor codes. *TOTP implements it.
type CodeSource interface {
	Configured() bool
	Code() (string, error)
}

// Authenticator drives one login attempt on one page.
type Authenticator struct {
	page     browser.Page
	email    string
	password string
	codes    CodeSource
	baseURL  string
	timeouts Timeouts
	logger   zerolog.Logger
	state    State
}

// Option configures an Authenticator.
type Option func(*Authenticator)

func WithBaseURL(u string) Option {
	return func(a *Authenticator) {
		a.baseURL = strings.TrimRight(u, "/")
	}
}

func WithTimeouts(t Timeouts) Option {
	return func(a *Authenticator) {
		a.timeouts = t
	}
}

func WithCodeSource(c CodeSource) Option {
	return func(a *Authenticator) {
		a.codes = c
	}
}

// NewAuthenticator prepares a login with creds on page. Credentials are
// assumed validated; the portal decides whether they are correct.
func NewAuthenticator(page browser.Page, creds config.Credentials, logger zerolog.Logger, opts ...Option) *Authenticator {
	a := &Authenticator{
		page:     page,
		email:    creds.Email,
		password: creds.Password,
		codes:    NewTOTP(creds.TOTPSecret),
		baseURL:  DefaultBaseURL,
		timeouts: DefaultTimeouts(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns where the flow currently is.
func (a *Authenticator) State() State {
	return a.state
}

// LoginURL is the portal's login form.
func (a *Authenticator) LoginURL() string {
	return a.baseURL + "/login"
}

// Login runs the flow once. A second call returns an error; a new session
// needs a new Authenticator.
func (a *Authenticator) Login(ctx context.Context) error {
	if a.state != StateNotStarted {
		return fmt.Errorf("%w (state %s)", errAlreadyAttempted, a.state)
	}

	if err := a.submitCredentials(ctx); err != nil {
		return a.fail(err)
	}
	a.state = StateFormSubmitted

	// Best effort: the portal may keep long-polling connections open
	if err := a.page.WaitIdle(ctx, a.timeouts.Idle); err != nil {
		a.logger.Debug().Err(err).Msg("Page not idle after login submit, inspecting anyway")
	}

	url, err := a.page.URL(ctx)
	if err != nil {
		return a.fail(err)
	}
	content, err := a.page.Content(ctx)
	if err != nil {
		return a.fail(err)
	}

	if IsTwoFactorPage(url, content) {
		a.state = StateTwoFactorPending
		a.logger.Info().Msg("Second factor requested")
		if err := a.completeTwoFactor(ctx); err != nil {
			return a.fail(err)
		}
		a.state = StateAuthenticated
		a.logger.Info().Msg("Logged in with second factor")
		return nil
	}

	if err := a.checkLanding(ctx, url); err != nil {
		return a.fail(err)
	}
	a.state = StateAuthenticated
	return nil
}

func (a *Authenticator) submitCredentials(ctx context.Context) error {
	a.logger.Debug().Str("url", a.LoginURL()).Msg("Opening login page")
	if err := a.page.Navigate(ctx, a.LoginURL(), a.timeouts.Navigate); err != nil {
		return err
	}
	if err := a.page.Sleep(ctx, a.timeouts.Settle); err != nil {
		return err
	}

	// The portal names the e-mail field _username
	if err := a.page.WaitForSelector(ctx, selectorUsername, a.timeouts.Form); err != nil {
		return err
	}
	if err := a.page.Fill(ctx, selectorUsername, a.email); err != nil {
		return err
	}
	if err := a.page.Fill(ctx, selectorPassword, a.password); err != nil {
		return err
	}
	return a.page.Click(ctx, selectorSubmit)
}

func (a *Authenticator) completeTwoFactor(ctx context.Context) error {
	// Checked before any code is generated
	if a.codes == nil || !a.codes.Configured() {
		return ErrTwoFactorRequired
	}

	if err := a.page.WaitForSelector(ctx, selectorTOTPField, a.timeouts.TwoFactorField); err != nil {
		return fmt.Errorf("%w: %w", ErrTwoFactorFailed, err)
	}

	code, err := a.codes.Code()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTwoFactorFailed, err)
	}

	if err := a.page.Fill(ctx, selectorTOTPField, code); err != nil {
		return fmt.Errorf("%w: %w", ErrTwoFactorFailed, err)
	}
	if err := a.page.Click(ctx, selectorSubmit); err != nil {
		return fmt.Errorf("%w: %w", ErrTwoFactorFailed, err)
	}

	done := func(url string) bool {
		return a.inPortal(url) && !isTwoFactorURL(url)
	}
	if err := a.page.WaitURL(ctx, done, a.timeouts.TwoFactorDone); err != nil {
		return fmt.Errorf("%w: %w", ErrTwoFactorFailed, err)
	}
	return nil
}

// checkLanding decides the no-2FA outcome. Back on the login page is a
// failure; anywhere else is accepted, since the landing page after login
// is not fixed.
func (a *Authenticator) checkLanding(ctx context.Context, url string) error {
	if isLoginURL(url) {
		return fmt.Errorf("%w: still on login page", ErrLoginFailed)
	}
	if a.inPortal(url) {
		return nil
	}

	if err := a.page.WaitURL(ctx, a.inPortal, a.timeouts.Landing); err != nil {
		current, urlErr := a.page.URL(ctx)
		if urlErr == nil && isLoginURL(current) {
			return fmt.Errorf("%w: redirected back to login page", ErrLoginFailed)
		}
		a.logger.Warn().Str("url", current).Msg("Unexpected page after login, assuming logged in")
	}
	return nil
}

func (a *Authenticator) inPortal(url string) bool {
	return strings.HasPrefix(url, a.baseURL+"/") && !isLoginURL(url)
}

func (a *Authenticator) fail(err error) error {
	a.state = StateFailed
	a.logger.Error().Err(err).Msg("Login failed")
	return err
}

var (
	twoFactorURLMarkers     = []string{"totp", "2fa"}
	twoFactorContentMarkers = []string{"two-factor", "2fa", "totp"}
	twoFactorFieldMarkers   = []string{
		`input[name="totp"]`,
		`input[name="code"]`,
		`input[name="_auth_code"]`,
		`name="_auth_code"`,
	}
)

// IsTwoFactorPage reports whether the page asks for a second factor. The
// portal's markup is not ours, so any one of several weak signals counts.
// Misses are possible; they surface later as a failed navigation.
func IsTwoFactorPage(url, content string) bool {
	if isTwoFactorURL(url) {
		return true
	}

	lower := strings.ToLower(content)
	for _, m := range twoFactorContentMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	for _, m := range twoFactorFieldMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}

func isTwoFactorURL(url string) bool {
	lower := strings.ToLower(url)
	for _, m := range twoFactorURLMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func isLoginURL(url string) bool {
	return strings.Contains(strings.ToLower(url), "/login")
}

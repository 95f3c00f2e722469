package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpPeriod = 30

// ErrTOTPNotConfigured is returned when a code is requested but no shared
// secret was supplied. It means "2FA required but not configured", as
// opposed to 2FA not being required at all.
var ErrTOTPNotConfigured = errors.New("no TOTP secret configured")

// TOTP generates RFC 6238 codes (SHA1, 6 digits, 30s step) for the portal's
// second factor.
type TOTP struct {
	secret string
	now    func() time.Time
}

// NewTOTP creates a generator for a base32 secret. An empty secret is
// allowed; Code then fails with ErrTOTPNotConfigured.
func NewTOTP(secret string) *TOTP {
	// Setup keys are often shown in groups of four
	secret = strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	return &TOTP{secret: secret, now: time.Now}
}

// Configured reports whether a secret is present.
func (t *TOTP) Configured() bool {
	return t != nil && t.secret != ""
}

// Code returns the code for the current time window.
func (t *TOTP) Code() (string, error) {
	if !t.Configured() {
		return "", ErrTOTPNotConfigured
	}
	return t.CodeAt(t.now())
}

// CodeAt returns the code for the window containing at.
func (t *TOTP) CodeAt(at time.Time) (string, error) {
	if !t.Configured() {
		return "", ErrTOTPNotConfigured
	}

	code, err := totp.GenerateCodeCustom(t.secret, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generating TOTP code: %w", err)
	}
	return code, nil
}

package main

import (
	"context"
	"errors"
	"fmt"

	"hetzner-invoices/internal/auth"
	"hetzner-invoices/internal/config"
	"hetzner-invoices/internal/invoice"
)

// describeError adds a hint for the failures an operator can act on.
func describeError(err error) string {
	var hint string
	switch {
	case errors.Is(err, config.ErrConfiguration):
		hint = "check HETZNER_ACCOUNT_EMAIL, HETZNER_ACCOUNT_PASSWORD and HETZNER_CUSTOMER_NUMBER or the matching flags"
	case errors.Is(err, auth.ErrTwoFactorRequired), errors.Is(err, auth.ErrTOTPNotConfigured):
		hint = "the account uses two-factor authentication; set HETZNER_TOTP_SECRET to its base32 secret"
	case errors.Is(err, auth.ErrTwoFactorFailed):
		hint = "the TOTP code was not accepted; check the secret and the system clock"
	case errors.Is(err, auth.ErrLoginFailed):
		hint = "the portal rejected the login; check the e-mail and password"
	case errors.Is(err, invoice.ErrNotFound):
		hint = "only the newest invoices are searched; run `list` to see the available IDs"
	case errors.Is(err, context.DeadlineExceeded):
		hint = "the portal did not respond in time; retry, or run with --headless=false to watch the browser"
	case errors.Is(err, context.Canceled):
		return "interrupted"
	}

	if hint == "" {
		return err.Error()
	}
	return fmt.Sprintf("%v\n  hint: %s", err, hint)
}

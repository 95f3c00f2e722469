package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"hetzner-invoices/internal/auth"
	"hetzner-invoices/internal/config"
	"hetzner-invoices/internal/invoice"
)

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"configuration", fmt.Errorf("starting: %w", config.ErrConfiguration), "HETZNER_ACCOUNT_EMAIL"},
		{"two factor required", fmt.Errorf("logging in: %w", auth.ErrTwoFactorRequired), "HETZNER_TOTP_SECRET"},
		{"two factor failed", fmt.Errorf("%w: %w", auth.ErrTwoFactorFailed, context.DeadlineExceeded), "system clock"},
		{"login failed", fmt.Errorf("logging in: %w", auth.ErrLoginFailed), "e-mail and password"},
		{"not found", fmt.Errorf("invoice X: %w", invoice.ErrNotFound), "run `list`"},
		{"timeout", fmt.Errorf("navigating: %w", context.DeadlineExceeded), "--headless=false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeError(tt.err)
			assert.Contains(t, got, tt.err.Error())
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestDescribeErrorPlain(t *testing.T) {
	assert.Equal(t, "boom", describeError(errors.New("boom")))
	assert.Equal(t, "interrupted", describeError(fmt.Errorf("watch: %w", context.Canceled)))
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"list", "latest", "get", "pdf", "parse", "details", "sync", "watch", "import", "cleanup"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if assert.NoError(t, err, name) {
			assert.Equal(t, name, cmd.Name())
		}
	}
}

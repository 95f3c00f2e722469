package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Browser.Headless {
		t.Error("Expected headless browser by default")
	}

	if cfg.Watch.IntervalMinutes != 360 {
		t.Errorf("Expected default interval 360, got %d", cfg.Watch.IntervalMinutes)
	}

	if cfg.Database.RetentionDays != 730 {
		t.Errorf("Expected default retention 730 days, got %d", cfg.Database.RetentionDays)
	}

	if cfg.DownloadDir() != os.TempDir() {
		t.Errorf("Expected download dir %s, got %s", os.TempDir(), cfg.DownloadDir())
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
browser:
  headless: false
downloads:
  dir: /srv/invoices
watch:
  interval_minutes: 30
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Browser.Headless {
		t.Error("Expected headless to be disabled")
	}
	if cfg.DownloadDir() != "/srv/invoices" {
		t.Errorf("Expected download dir /srv/invoices, got %s", cfg.DownloadDir())
	}
	if cfg.WatchInterval() != 30*time.Minute {
		t.Errorf("Expected 30m interval, got %v", cfg.WatchInterval())
	}
	// Untouched sections keep their defaults
	if cfg.Database.RetentionDays != 730 {
		t.Errorf("Expected default retention, got %d", cfg.Database.RetentionDays)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level, got %s", cfg.Logging.Level)
	}
}

func TestExpandPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantHome bool
	}{
		{
			name:     "tilde expansion",
			path:     "~/.test",
			wantHome: true,
		},
		{
			name:     "no tilde",
			path:     "/absolute/path",
			wantHome: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandPath(tt.path)
			if err != nil {
				t.Errorf("expandPath() error = %v", err)
				return
			}

			if tt.wantHome {
				home, _ := os.UserHomeDir()
				expected := filepath.Join(home, ".test")
				if got != expected {
					t.Errorf("expandPath() = %v, want %v", got, expected)
				}
			} else {
				if got != tt.path {
					t.Errorf("expandPath() = %v, want %v", got, tt.path)
				}
			}
		})
	}
}

func TestResolveCredentials(t *testing.T) {
	t.Setenv("HETZNER_ACCOUNT_EMAIL", "env@example.com")
	t.Setenv("HETZNER_ACCOUNT_PASSWORD", "env-pass")
	t.Setenv("HETZNER_TOTP_SECRET", "")
	t.Setenv("HETZNER_CUSTOMER_NUMBER", "K0000001")

	creds, err := ResolveCredentials(Credentials{Email: "flag@example.com"})
	if err != nil {
		t.Fatalf("ResolveCredentials() error = %v", err)
	}

	if creds.Email != "flag@example.com" {
		t.Errorf("Expected override email, got %s", creds.Email)
	}
	if creds.Password != "env-pass" {
		t.Errorf("Expected env password, got %s", creds.Password)
	}
	if creds.CustomerNumber != "K0000001" {
		t.Errorf("Expected env customer number, got %s", creds.CustomerNumber)
	}
	if creds.HasTOTP() {
		t.Error("Expected no TOTP secret")
	}
}

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{"complete", Credentials{Email: "a@b.c", Password: "pw"}, false},
		{"missing email", Credentials{Password: "pw"}, true},
		{"missing password", Credentials{Email: "a@b.c"}, true},
		{"empty", Credentials{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("Expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestApplyHeadless(t *testing.T) {
	cfg := DefaultConfig()

	cfg.ApplyHeadless("")
	if !cfg.Browser.Headless {
		t.Error("Empty value must not change headless mode")
	}

	cfg.ApplyHeadless("false")
	if cfg.Browser.Headless {
		t.Error("Expected headless to be disabled")
	}
}

func TestSetupLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "app.log")

	logger, closer, err := SetupLogger(&LoggingConfig{File: logFile, Level: "debug"})
	if err != nil {
		t.Fatalf("SetupLogger() error = %v", err)
	}
	logger.Info().Msg("hello")
	if err := closer(); err != nil {
		t.Fatalf("closing log file: %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected log output in file")
	}

	if _, _, err := SetupLogger(&LoggingConfig{Level: "loud"}); err == nil {
		t.Error("Expected error for unknown log level")
	}
}

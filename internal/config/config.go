package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Downloads DownloadsConfig `yaml:"downloads"`
	Database  DatabaseConfig  `yaml:"database"`
	Watch     WatchConfig     `yaml:"watch"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BrowserConfig holds browser launch settings
type BrowserConfig struct {
	Headless bool   `yaml:"headless"`
	Bin      string `yaml:"bin"` // Chromium binary (empty = let rod download/locate one)
}

// DownloadsConfig holds where invoice PDFs are written
type DownloadsConfig struct {
	Dir string `yaml:"dir"` // empty = os.TempDir()
}

// DatabaseConfig holds database path and retention settings
type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// WatchConfig holds polling interval settings for the invoice watcher
type WatchConfig struct {
	IntervalMinutes int  `yaml:"interval_minutes"`
	Limit           int  `yaml:"limit"`          // newest invoices checked per poll
	BackfillLimit   int  `yaml:"backfill_limit"` // invoices cached silently on first run
	DownloadPDFs    bool `yaml:"download_pdfs"`
	FetchUsage      bool `yaml:"fetch_usage"` // needs HETZNER_CUSTOMER_NUMBER
}

// AlertsConfig holds notification settings
type AlertsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Sound   string `yaml:"sound"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	File  string `yaml:"file"`  // Log file path (empty = stderr only)
	Level string `yaml:"level"` // Log level: debug, info, warn, error
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless: true,
		},
		Downloads: DownloadsConfig{
			Dir: "",
		},
		Database: DatabaseConfig{
			Path:          "~/.hetzner_invoices/invoices.db",
			RetentionDays: 730,
		},
		Watch: WatchConfig{
			IntervalMinutes: 360,
			Limit:           10,
			BackfillLimit:   100,
			DownloadPDFs:    true,
			FetchUsage:      false,
		},
		Alerts: AlertsConfig{
			Enabled: true,
			Sound:   "default",
		},
		Logging: LoggingConfig{
			File:  "",
			Level: "info",
		},
	}
}

// DefaultPath returns the default location of the config file
func DefaultPath() string {
	return "~/.hetzner_invoices/config.yaml"
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	expandedPath, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	config := DefaultConfig()

	data, err := os.ReadFile(expandedPath)
	switch {
	case os.IsNotExist(err):
		// Defaults when the file doesn't exist
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	config.Database.Path, err = expandPath(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding database path: %w", err)
	}

	if config.Downloads.Dir != "" {
		config.Downloads.Dir, err = expandPath(config.Downloads.Dir)
		if err != nil {
			return nil, fmt.Errorf("expanding downloads dir: %w", err)
		}
	}

	if config.Logging.File != "" {
		config.Logging.File, err = expandPath(config.Logging.File)
		if err != nil {
			return nil, fmt.Errorf("expanding log file path: %w", err)
		}
	}

	return config, nil
}

// WatchInterval returns the watcher polling interval as a time.Duration
func (c *Config) WatchInterval() time.Duration {
	if c.Watch.IntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Watch.IntervalMinutes) * time.Minute
}

// DownloadDir returns the configured download directory, falling back to
// the system temp dir
func (c *Config) DownloadDir() string {
	if c.Downloads.Dir == "" {
		return os.TempDir()
	}
	return c.Downloads.Dir
}

// expandPath expands ~ to the user's home directory
func expandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	usr, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("getting current user: %w", err)
	}

	if path == "~" {
		return usr.HomeDir, nil
	}

	return filepath.Join(usr.HomeDir, path[2:]), nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hetzner-invoices/internal/alerts"
	"hetzner-invoices/internal/browser"
	"hetzner-invoices/internal/config"
	"hetzner-invoices/internal/invoice"
	"hetzner-invoices/internal/storage"
)

var (
	cfgFile        string
	email          string
	password       string
	totpSecret     string
	customerNumber string
	headless       bool
)

var rootCmd = &cobra.Command{
	Use:   "hetzner-invoices",
	Short: "Fetch invoices and usage data from Hetzner Accounts",
	Long: `hetzner-invoices logs into accounts.hetzner.com with a headless browser
and reads invoices, invoice PDFs and usage CSVs.

Credentials come from HETZNER_ACCOUNT_EMAIL, HETZNER_ACCOUNT_PASSWORD,
HETZNER_TOTP_SECRET and HETZNER_CUSTOMER_NUMBER, or from the matching flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&email, "email", "", "account e-mail (overrides HETZNER_ACCOUNT_EMAIL)")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "account password (overrides HETZNER_ACCOUNT_PASSWORD)")
	rootCmd.PersistentFlags().StringVar(&totpSecret, "totp-secret", "", "base32 TOTP secret (overrides HETZNER_TOTP_SECRET)")
	rootCmd.PersistentFlags().StringVar(&customerNumber, "customer-number", "", "customer number for usage CSVs (overrides HETZNER_CUSTOMER_NUMBER)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "run the browser without a window")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describeError(err))
		os.Exit(1)
	}
}

// app is what every command needs after flags are parsed.
type app struct {
	cfg      *config.Config
	creds    config.Credentials
	logger   zerolog.Logger
	closeLog func() error
}

func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	env, err := config.ReadEnvironment()
	if err != nil {
		return nil, err
	}
	cfg.ApplyHeadless(env.Headless)
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = headless
	}

	creds := config.MergeCredentials(config.Credentials{
		Email:          email,
		Password:       password,
		TOTPSecret:     totpSecret,
		CustomerNumber: customerNumber,
	}, env.Credentials)

	logger, closeLog, err := config.SetupLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("setting up logger: %w", err)
	}

	return &app{cfg: cfg, creds: creds, logger: logger, closeLog: closeLog}, nil
}

func (a *app) Close() {
	if a.closeLog != nil {
		if err := a.closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "WARN: closing log file: %v\n", err)
		}
	}
}

func (a *app) newClient() *invoice.Client {
	opts := browser.DefaultOptions()
	opts.Headless = a.cfg.Browser.Headless
	opts.Bin = a.cfg.Browser.Bin
	return invoice.NewDefaultClient(a.creds, opts, a.logger, invoice.WithDownloadDir(a.cfg.Downloads.Dir))
}

func (a *app) openStorage() (*storage.Storage, error) {
	store, err := storage.New(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return store, nil
}

func (a *app) alertEngine() *alerts.AlertEngine {
	if !a.cfg.Alerts.Enabled {
		return nil
	}
	return alerts.New(a.cfg.Alerts.Sound)
}

func closeClient(client *invoice.Client, logger zerolog.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn().Err(err).Msg("Closing browser session")
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

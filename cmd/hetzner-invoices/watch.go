package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hetzner-invoices/internal/monitor"
)

var cleanupDays int

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Poll the portal once and cache new invoices",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the portal periodically and notify about new invoices",
	Long: `Poll the invoice list every watch.interval_minutes, cache what is
listed and send one desktop notification per new invoice.

On the first run the existing invoices are cached without notifications.
Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete cached data older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "retention in days (default: database.retention_days)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	client := a.newClient()
	defer closeClient(client, a.logger)

	m := monitor.New(a.cfg, client, store, a.alertEngine(), a.logger)
	result, err := m.Poll(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	client := a.newClient()
	defer closeClient(client, a.logger)

	a.logger.Info().
		Dur("interval", a.cfg.WatchInterval()).
		Bool("alerts", a.cfg.Alerts.Enabled).
		Msg("Starting invoice watcher")

	m := monitor.New(a.cfg, client, store, a.alertEngine(), a.logger)
	if err := m.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	days := cleanupDays
	if days == 0 {
		days = a.cfg.Database.RetentionDays
	}
	if days < 0 {
		return fmt.Errorf("--days must not be negative, got %d", days)
	}

	store, err := a.openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.CleanupOldData(days); err != nil {
		return fmt.Errorf("cleaning up: %w", err)
	}
	a.logger.Info().Int("retention_days", days).Msg("Cleanup complete")
	return nil
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hetzner-invoices/internal/importcsv"
	"hetzner-invoices/internal/invoice"
	"hetzner-invoices/internal/storage"
)

var (
	detailsInvoice   string
	detailsSummaryBy string
	detailsNoRaw     bool
	importUsageID    string
)

var detailsCmd = &cobra.Command{
	Use:   "details [usage-id]",
	Short: "Fetch the usage CSV behind an invoice",
	Long: `Fetch and decode the usage CSV for a billing period.

Pass the usage ID directly, or --invoice to look it up from the invoice
list. Needs HETZNER_CUSTOMER_NUMBER. The rows are cached; --summary-by
prints row counts grouped by one column instead of the rows.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDetails,
}

var importCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Import a usage CSV saved from the portal into the cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	detailsCmd.Flags().StringVar(&detailsInvoice, "invoice", "", "invoice ID whose usage link to follow")
	detailsCmd.Flags().StringVar(&detailsSummaryBy, "summary-by", "", "column to group cached rows by")
	detailsCmd.Flags().BoolVar(&detailsNoRaw, "no-raw", false, "omit the raw CSV from the output")
	importCmd.Flags().StringVar(&importUsageID, "usage-id", "", "usage ID to store rows under (default: file name)")

	rootCmd.AddCommand(detailsCmd)
	rootCmd.AddCommand(importCmd)
}

func runDetails(cmd *cobra.Command, args []string) error {
	if len(args) == 1 && detailsInvoice != "" {
		return errors.New("pass either a usage ID or --invoice, not both")
	}
	if len(args) == 0 && detailsInvoice == "" {
		return errors.New("a usage ID or --invoice is required")
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	client := a.newClient()
	defer closeClient(client, a.logger)

	usageID := ""
	if len(args) == 1 {
		usageID = args[0]
	} else {
		usageID, err = client.UsageIDFor(cmd.Context(), detailsInvoice)
		if err != nil {
			return fmt.Errorf("finding usage ID: %w", err)
		}
	}

	details, err := client.GetInvoiceDetails(cmd.Context(), usageID)
	if err != nil {
		return fmt.Errorf("fetching usage details: %w", err)
	}

	store, err := a.openStorage()
	if err != nil {
		if detailsSummaryBy != "" {
			return err
		}
		a.logger.Warn().Err(err).Msg("Cache unavailable, usage rows not stored")
		return printDetails(cmd, details)
	}
	defer store.Close()

	if err := store.SaveUsageRows(usageID, details.Data); err != nil {
		return fmt.Errorf("caching usage rows: %w", err)
	}

	if detailsSummaryBy != "" {
		return printSummary(cmd, store, usageID, detailsSummaryBy)
	}
	return printDetails(cmd, details)
}

func printDetails(cmd *cobra.Command, details *invoice.UsageDetails) error {
	if detailsNoRaw {
		details.CSVRaw = ""
	}
	return printJSON(cmd, details)
}

func printSummary(cmd *cobra.Command, store *storage.Storage, usageID, column string) error {
	summary, err := store.SummarizeUsage(usageID, column)
	if err != nil {
		return fmt.Errorf("summarizing usage: %w", err)
	}
	return printJSON(cmd, summary)
}

func runImport(cmd *cobra.Command, args []string) error {
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

	result, err := importcsv.ImportUsageCSV(args[0], importUsageID, store, a.logger)
	if err != nil {
		return fmt.Errorf("importing %s: %w", args[0], err)
	}
	return printJSON(cmd, result)
}

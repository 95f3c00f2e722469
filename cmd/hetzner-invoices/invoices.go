package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	listPage    int
	listPerPage int
	latestParse bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recent invoice",
	Args:  cobra.NoArgs,
	RunE:  runLatest,
}

var getCmd = &cobra.Command{
	Use:   "get <invoice-id>",
	Short: "Show one invoice by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	listCmd.Flags().IntVar(&listPage, "page", 1, "page number, starting at 1")
	listCmd.Flags().IntVar(&listPerPage, "per-page", 10, "invoices per page (1-50)")
	latestCmd.Flags().BoolVar(&latestParse, "parsed", false, "download the PDF and include the extracted fields")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(getCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if listPerPage < 1 || listPerPage > 50 {
		return fmt.Errorf("--per-page must be between 1 and 50, got %d", listPerPage)
	}
	if listPage < 1 {
		return fmt.Errorf("--page must be at least 1, got %d", listPage)
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	client := a.newClient()
	defer closeClient(client, a.logger)

	page, err := client.ListPage(cmd.Context(), listPage, listPerPage)
	if err != nil {
		return fmt.Errorf("listing invoices: %w", err)
	}
	return printJSON(cmd, page)
}

func runLatest(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	client := a.newClient()
	defer closeClient(client, a.logger)

	if latestParse {
		result, err := client.GetLatestInvoiceParsed(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting latest invoice: %w", err)
		}
		return printJSON(cmd, result)
	}

	inv, err := client.GetLatestInvoice(cmd.Context())
	if err != nil {
		return fmt.Errorf("getting latest invoice: %w", err)
	}
	return printJSON(cmd, inv)
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	client := a.newClient()
	defer closeClient(client, a.logger)

	inv, err := client.GetInvoice(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("getting invoice %s: %w", args[0], err)
	}
	return printJSON(cmd, inv)
}

package api

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"hetzner-invoices/internal/browser"
	"hetzner-invoices/internal/config"
)

// maxErrorBody caps how much of a failed response ends up in the error.
const maxErrorBody = 512

// UsageTable is a decoded usage CSV: the header and one map per data row
// keyed by header name, in file order.
type UsageTable struct {
	Header []string
	Rows   []map[string]string
}

// FetchUsageCSV downloads the usage CSV for usageID. The customer number is
// a required query parameter of the usage host; cookies must come from an
// authenticated browser context.
func (c *Client) FetchUsageCSV(ctx context.Context, usageID, customerNumber string, cookies []browser.Cookie) (string, error) {
	if customerNumber == "" {
		return "", fmt.Errorf("%w: HETZNER_CUSTOMER_NUMBER must be set to fetch usage data", config.ErrConfiguration)
	}
	if usageID == "" {
		return "", errors.New("fetching usage CSV: empty usage ID")
	}

	// The host expects a bare "csv" flag, which url.Values cannot express
	endpoint := "/" + url.PathEscape(usageID) + "?csv&cn=" + url.QueryEscape(customerNumber)
	resp, err := c.makeRequest(ctx, http.MethodGet, endpoint, cookies)
	if err != nil {
		return "", fmt.Errorf("fetching usage CSV: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("usage host returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading usage CSV: %w", err)
	}

	c.logger.Info().Str("usage_id", usageID).Int("bytes", len(body)).Msg("Fetched usage CSV")
	return string(body), nil
}

// ParseUsageCSV decodes header-driven rows. Quoting is lenient and rows
// may be shorter or longer than the header: missing cells become empty
// strings, extra cells are dropped. Rows the reader cannot decode are
// skipped. Only an unreadable header is an error; empty input yields an
// empty table.
func ParseUsageCSV(r io.Reader) (*UsageTable, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return &UsageTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	// Parse header to find column names
	for i, col := range header {
		col = strings.TrimSpace(col)
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff")
		}
		header[i] = col
	}

	table := &UsageTable{Header: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue // Skip malformed rows
			}
			return nil, fmt.Errorf("reading CSV: %w", err)
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

package monitor

import (
	"context"
	"fmt"

	"hetzner-invoices/internal/alerts"
)

// Backfill caches up to limit existing invoices and marks them as already
// notified, so a first run does not announce the whole history. PDFs and
// usage rows are not fetched.
func (m *Monitor) Backfill(ctx context.Context, limit int) (int, error) {
	m.logger.Info().Int("limit", limit).Msg("Fetching historical invoices")

	invoices, err := m.source.ListInvoices(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("listing historical invoices: %w", err)
	}

	if _, err := m.storage.SaveInvoices(invoices); err != nil {
		return 0, fmt.Errorf("saving historical invoices: %w", err)
	}

	for _, inv := range invoices {
		if err := m.storage.RecordAlert(alerts.AlertNewInvoice, inv.ID); err != nil {
			return 0, fmt.Errorf("marking invoice %s as notified: %w", inv.ID, err)
		}

		// Check for context cancellation
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
	}

	return len(invoices), nil
}

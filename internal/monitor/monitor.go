// Package monitor polls the portal for new invoices, caches them and sends
// one notification per new invoice.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hetzner-invoices/internal/alerts"
	"hetzner-invoices/internal/config"
	"hetzner-invoices/internal/invoice"
	"hetzner-invoices/internal/storage"
)

// InvoiceSource is the part of invoice.Client the watcher uses.
type InvoiceSource interface {
	ListInvoices(ctx context.Context, limit int) ([]invoice.Invoice, error)
	DownloadInvoicePDF(ctx context.Context, id, dir string) (string, error)
	GetInvoiceDetails(ctx context.Context, usageID string) (*invoice.UsageDetails, error)
}

// Monitor handles the polling loop and coordinates all components
type Monitor struct {
	config      *config.Config
	source      InvoiceSource
	storage     *storage.Storage
	alertEngine *alerts.AlertEngine
	logger      zerolog.Logger
}

// New creates a new Monitor. alertEngine may be nil to disable
// notifications.
func New(cfg *config.Config, source InvoiceSource, store *storage.Storage, alertEngine *alerts.AlertEngine, logger zerolog.Logger) *Monitor {
	return &Monitor{
		config:      cfg,
		source:      source,
		storage:     store,
		alertEngine: alertEngine,
		logger:      logger,
	}
}

// Run starts the polling loop and blocks until ctx is done. A failed poll
// is logged and the loop waits for the next tick.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.WatchInterval())
	defer ticker.Stop()

	// Check if this is first run (nothing cached yet)
	cached, err := m.storage.GetInvoices(1)
	if err != nil {
		return fmt.Errorf("reading invoice cache: %w", err)
	}
	if len(cached) == 0 {
		m.logger.Info().Msg("First run detected, caching existing invoices without notifications")
		if n, err := m.Backfill(ctx, m.config.Watch.BackfillLimit); err != nil {
			m.logger.Error().Err(err).Msg("Backfill failed")
		} else {
			m.logger.Info().Int("invoices", n).Msg("Backfill complete")
		}
	} else {
		m.logger.Info().Msg("Starting initial poll")
		if _, err := m.Poll(ctx); err != nil {
			m.logger.Error().Err(err).Msg("Initial poll failed")
		}
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Shutting down watcher")
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Poll(ctx); err != nil {
				m.logger.Error().Err(err).Msg("Poll failed")
			}
		}
	}
}

// PollResult summarises one poll.
type PollResult struct {
	Listed   int      `json:"listed"`
	New      []string `json:"new"`
	Notified int      `json:"notified"`
}

// Poll performs a single polling cycle (exposed for manual refresh)
func (m *Monitor) Poll(ctx context.Context) (*PollResult, error) {
	invoices, err := m.source.ListInvoices(ctx, m.config.Watch.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}

	previous := make(map[string]string, len(invoices))
	for _, inv := range invoices {
		if cached, err := m.storage.GetInvoice(inv.ID); err != nil {
			m.logger.Warn().Err(err).Str("invoice", inv.ID).Msg("Could not read cached invoice")
		} else if cached != nil {
			previous[inv.ID] = cached.Status
		}
	}

	added, err := m.storage.SaveInvoices(invoices)
	if err != nil {
		return nil, fmt.Errorf("saving invoices: %w", err)
	}
	result := &PollResult{Listed: len(invoices), New: added}

	isNew := make(map[string]bool, len(added))
	for _, id := range added {
		isNew[id] = true
	}

	var fresh []invoice.Invoice
	for _, inv := range invoices {
		if !isNew[inv.ID] {
			m.checkStatus(inv, previous[inv.ID])
			continue
		}
		m.fetchExtras(ctx, inv)
		fresh = append(fresh, inv)
	}

	if m.alertEngine != nil && len(fresh) > 0 {
		sent, err := m.alertEngine.CheckNewInvoices(fresh, m.storage.AlertAlreadySent, m.storage.RecordAlert)
		result.Notified = sent
		if err != nil {
			m.logger.Warn().Err(err).Msg("Could not send new invoice notification")
		}
	}

	// Cleanup old data
	if err := m.storage.CleanupOldData(m.config.Database.RetentionDays); err != nil {
		m.logger.Warn().Err(err).Msg("Could not clean up old data")
	}

	m.logger.Info().
		Int("listed", result.Listed).
		Int("new", len(result.New)).
		Int("notified", result.Notified).
		Msg("Poll completed")

	return result, nil
}

func (m *Monitor) checkStatus(inv invoice.Invoice, previousStatus string) {
	if m.alertEngine == nil {
		return
	}
	if err := m.alertEngine.CheckStatusChange(inv, previousStatus); err != nil {
		m.logger.Warn().Err(err).Str("invoice", inv.ID).Msg("Could not send status notification")
	}
}

// fetchExtras downloads the PDF and usage rows of a new invoice as
// configured. Failures are logged; the invoice stays cached either way.
func (m *Monitor) fetchExtras(ctx context.Context, inv invoice.Invoice) {
	if m.config.Watch.DownloadPDFs {
		path, err := m.source.DownloadInvoicePDF(ctx, inv.ID, m.config.DownloadDir())
		if err != nil {
			m.logger.Warn().Err(err).Str("invoice", inv.ID).Msg("Could not download PDF")
		} else if err := m.storage.SetPDFPath(inv.ID, path); err != nil {
			m.logger.Warn().Err(err).Str("invoice", inv.ID).Msg("Could not record PDF path")
		}
	}

	if m.config.Watch.FetchUsage && inv.UsageID != "" {
		if err := m.storeUsage(ctx, inv.UsageID); err != nil {
			m.logger.Warn().Err(err).Str("invoice", inv.ID).Msg("Could not fetch usage data")
		}
	}
}

func (m *Monitor) storeUsage(ctx context.Context, usageID string) error {
	details, err := m.source.GetInvoiceDetails(ctx, usageID)
	if err != nil {
		return err
	}
	return m.storage.SaveUsageRows(usageID, details.Data)
}

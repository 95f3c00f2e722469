// Package storage caches invoices, usage rows and sent notifications in a
// local SQLite database.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"hetzner-invoices/internal/invoice"
)

// Storage handles all database operations
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// StoredInvoice is a cached invoice with the times it was first and last
// seen on the portal.
type StoredInvoice struct {
	invoice.Invoice
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// New creates a new Storage instance and opens the database
func New(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Open database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	storage := &Storage{db: db, now: time.Now}

	// Run migrations
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveInvoices upserts invoices as seen now and returns the IDs that were
// not cached before, in input order. A cached PDF path or usage ID is kept
// when the new record has none.
func (s *Storage) SaveInvoices(invoices []invoice.Invoice) ([]string, error) {
	if len(invoices) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}

	// Use a flag to track if we should rollback
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	exists, err := tx.Prepare(`SELECT COUNT(*) FROM invoices WHERE id = ?`)
	if err != nil {
		return nil, fmt.Errorf("preparing lookup statement: %w", err)
	}
	defer exists.Close()

	upsert, err := tx.Prepare(`INSERT INTO invoices
		(id, date, amount, currency, status, usage_id, pdf_path, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			amount = excluded.amount,
			currency = excluded.currency,
			status = excluded.status,
			usage_id = CASE WHEN excluded.usage_id != '' THEN excluded.usage_id ELSE invoices.usage_id END,
			pdf_path = CASE WHEN excluded.pdf_path != '' THEN excluded.pdf_path ELSE invoices.pdf_path END,
			last_seen_at = excluded.last_seen_at`)
	if err != nil {
		return nil, fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer upsert.Close()

	seen := s.now().UTC().Format(time.RFC3339)
	var added []string
	for _, inv := range invoices {
		var count int
		if err := exists.QueryRow(inv.ID).Scan(&count); err != nil {
			return nil, fmt.Errorf("looking up invoice %s: %w", inv.ID, err)
		}

		_, err := upsert.Exec(inv.ID, inv.Date, inv.Amount, inv.Currency, inv.Status,
			inv.UsageID, inv.PDFPath, seen, seen)
		if err != nil {
			return nil, fmt.Errorf("saving invoice %s: %w", inv.ID, err)
		}

		if count == 0 {
			added = append(added, inv.ID)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	committed = true

	return added, nil
}

const invoiceColumns = `id, date, amount, currency, status, usage_id, pdf_path, first_seen_at, last_seen_at`

// GetInvoice returns a cached invoice, or nil if it is not cached.
func (s *Storage) GetInvoice(id string) (*StoredInvoice, error) {
	row := s.db.QueryRow(`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)

	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting invoice %s: %w", id, err)
	}
	return inv, nil
}

// GetInvoices returns up to limit cached invoices, most recently
// discovered first. limit <= 0 returns all.
func (s *Storage) GetInvoices(limit int) ([]StoredInvoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		ORDER BY first_seen_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying invoices: %w", err)
	}
	defer rows.Close()

	var invoices []StoredInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invoices: %w", err)
	}

	return invoices, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (*StoredInvoice, error) {
	var inv StoredInvoice
	var firstSeenStr, lastSeenStr string

	err := row.Scan(
		&inv.ID,
		&inv.Date,
		&inv.Amount,
		&inv.Currency,
		&inv.Status,
		&inv.UsageID,
		&inv.PDFPath,
		&firstSeenStr,
		&lastSeenStr,
	)
	if err != nil {
		return nil, err
	}

	inv.FirstSeenAt, _ = time.Parse(time.RFC3339, firstSeenStr)
	inv.LastSeenAt, _ = time.Parse(time.RFC3339, lastSeenStr)
	return &inv, nil
}

// SetPDFPath records where the PDF of a cached invoice was saved.
func (s *Storage) SetPDFPath(id, path string) error {
	res, err := s.db.Exec(`UPDATE invoices SET pdf_path = ? WHERE id = ?`, path, id)
	if err != nil {
		return fmt.Errorf("setting PDF path for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("setting PDF path: invoice %s is not cached", id)
	}
	return nil
}

// SaveUsageRows replaces the cached rows of usageID.
func (s *Storage) SaveUsageRows(usageID string, rows []map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	// Use a flag to track if we should rollback
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	// Delete existing rows for this usage ID
	_, err = tx.Exec("DELETE FROM usage_rows WHERE usage_id = ?", usageID)
	if err != nil {
		return fmt.Errorf("deleting existing usage rows: %w", err)
	}

	// Insert new rows
	stmt, err := tx.Prepare(`INSERT INTO usage_rows
		(usage_id, row_index, data, fetched_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	fetched := s.now().UTC().Format(time.RFC3339)
	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encoding usage row %d: %w", i, err)
		}
		if _, err = stmt.Exec(usageID, i, string(data), fetched); err != nil {
			return fmt.Errorf("inserting usage row %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true

	return nil
}

// GetUsageRows returns the cached rows of usageID in file order.
func (s *Storage) GetUsageRows(usageID string) ([]map[string]string, error) {
	rows, err := s.db.Query(`SELECT data FROM usage_rows
		WHERE usage_id = ?
		ORDER BY row_index`, usageID)
	if err != nil {
		return nil, fmt.Errorf("querying usage rows: %w", err)
	}
	defer rows.Close()

	var result []map[string]string
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}

		row := map[string]string{}
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, fmt.Errorf("decoding usage row: %w", err)
		}
		result = append(result, row)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}

	return result, nil
}

// AlertAlreadySent checks if an alert of alertType was sent for an invoice
func (s *Storage) AlertAlreadySent(alertType, invoiceID string) (bool, error) {
	query := `SELECT COUNT(*) FROM alerts_sent
		WHERE alert_type = ? AND invoice_id = ?`

	var count int
	err := s.db.QueryRow(query, alertType, invoiceID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking alert history: %w", err)
	}

	return count > 0, nil
}

// RecordAlert records that an alert was sent
func (s *Storage) RecordAlert(alertType, invoiceID string) error {
	query := `INSERT OR IGNORE INTO alerts_sent (timestamp, alert_type, invoice_id)
		VALUES (?, ?, ?)`

	_, err := s.db.Exec(
		query,
		s.now().UTC().Format(time.RFC3339),
		alertType,
		invoiceID,
	)

	if err != nil {
		return fmt.Errorf("recording alert: %w", err)
	}

	return nil
}

// CleanupOldData removes data older than the retention period. A
// non-positive retention keeps everything.
func (s *Storage) CleanupOldData(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	cutoffStr := cutoff.Format(time.RFC3339)

	// Delete invoices no longer listed on the portal
	_, err := s.db.Exec("DELETE FROM invoices WHERE last_seen_at < ?", cutoffStr)
	if err != nil {
		return fmt.Errorf("deleting old invoices: %w", err)
	}

	// Delete old alerts
	_, err = s.db.Exec("DELETE FROM alerts_sent WHERE timestamp < ?", cutoffStr)
	if err != nil {
		return fmt.Errorf("deleting old alerts: %w", err)
	}

	// Delete old usage rows
	_, err = s.db.Exec("DELETE FROM usage_rows WHERE fetched_at < ?", cutoffStr)
	if err != nil {
		return fmt.Errorf("deleting old usage rows: %w", err)
	}

	return nil
}

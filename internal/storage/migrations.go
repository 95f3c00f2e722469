package storage

import (
	"database/sql"
	"fmt"
)

// RunMigrations creates all necessary database tables
func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS invoices (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT 'EUR',
			status TEXT NOT NULL DEFAULT '',
			usage_id TEXT NOT NULL DEFAULT '',
			pdf_path TEXT NOT NULL DEFAULT '',
			first_seen_at TEXT NOT NULL,
			last_seen_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS usage_rows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			usage_id TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			data TEXT NOT NULL,
			fetched_at TEXT NOT NULL,
			UNIQUE(usage_id, row_index)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts_sent (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			invoice_id TEXT NOT NULL,
			UNIQUE(alert_type, invoice_id)
		)`,
		// Create indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_invoices_first_seen ON invoices(first_seen_at)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_usage_id ON invoices(usage_id)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_rows_usage_id ON usage_rows(usage_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_sent_timestamp ON alerts_sent(timestamp)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}

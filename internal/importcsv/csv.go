package importcsv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"hetzner-invoices/internal/api"
	"hetzner-invoices/internal/storage"
)

// Result describes one imported file.
type Result struct {
	UsageID string   `json:"usage_id"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
}

// ImportUsageCSV imports a usage CSV saved from the portal into the cache
// under usageID. An empty usageID is taken from the file name, so
// "<usage-id>.csv" imports without extra arguments. Existing rows for the
// same usage ID are replaced.
func ImportUsageCSV(csvPath, usageID string, store *storage.Storage, logger zerolog.Logger) (*Result, error) {
	if usageID == "" {
		usageID = strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath))
	}
	if usageID == "" || usageID == "." {
		return nil, fmt.Errorf("cannot derive usage ID from %q", csvPath)
	}

	file, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("opening CSV file: %w", err)
	}
	defer file.Close()

	table, err := api.ParseUsageCSV(file)
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}

	if len(table.Header) == 0 {
		return nil, fmt.Errorf("CSV file %s is empty", csvPath)
	}
	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("CSV file has no data rows (only header)")
	}

	if err := store.SaveUsageRows(usageID, table.Rows); err != nil {
		return nil, fmt.Errorf("saving usage rows for %s: %w", usageID, err)
	}

	logger.Info().Str("usage_id", usageID).Int("rows", len(table.Rows)).Msg("Imported usage CSV")

	return &Result{
		UsageID: usageID,
		Rows:    len(table.Rows),
		Columns: table.Header,
	}, nil
}

package storage

import (
	"fmt"
	"sort"
)

// UsageSummary counts cached usage rows grouped by one column. Cell values
// are counted as text; amounts are not summed.
type UsageSummary struct {
	UsageID  string         `json:"usage_id"`
	Column   string         `json:"column"`
	RowCount int            `json:"row_count"`
	Columns  []string       `json:"columns"`
	ByValue  map[string]int `json:"by_value"`
}

// SummarizeUsage groups the cached rows of usageID by column. Rows without
// the column are counted under the empty string.
func (s *Storage) SummarizeUsage(usageID, column string) (*UsageSummary, error) {
	rows, err := s.GetUsageRows(usageID)
	if err != nil {
		return nil, fmt.Errorf("getting usage rows: %w", err)
	}

	summary := &UsageSummary{
		UsageID:  usageID,
		Column:   column,
		RowCount: len(rows),
		ByValue:  make(map[string]int),
	}

	columns := make(map[string]bool)
	for _, row := range rows {
		for col := range row {
			columns[col] = true
		}
		summary.ByValue[row[column]]++
	}

	for col := range columns {
		summary.Columns = append(summary.Columns, col)
	}
	sort.Strings(summary.Columns)

	return summary, nil
}

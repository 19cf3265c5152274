package report

import (
	"encoding/csv"
	"fmt"
	"os"

	"trenddrop/internal/domain"
)

// WriteCSV пишет полный набор данных с теми же колонками, что и PDF.
func WriteCSV(path string, columns []Column, listings []domain.Listing) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Label
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}

	row := make([]string, len(columns))
	for _, l := range listings {
		for i, col := range columns {
			row[i] = columnValue(l, col.Key)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

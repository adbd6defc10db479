package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/couchcryptid/sales-report-etl/internal/domain"
)

var exportHeader = []string{"order_number", "city", "state", "zip_code"}

// WriteExport writes the flat export of all orders, enriched or not.
// Null location fields become empty cells, so a re-import sees exactly
// the values that were exported.
func WriteExport(path string, orders []domain.Order) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(exportHeader); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}

	for _, o := range orders {
		row := []string{o.OrderNumber, deref(o.City), deref(o.State), deref(o.ZipCode)}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write export row for order %s: %w", o.OrderNumber, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush export file: %w", err)
	}
	return nil
}

// ReadExport parses a previously written export file back into orders
// with only the exported columns populated. Empty cells map back to nil.
func ReadExport(path string) ([]domain.Order, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read export file: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("export file %s has no header row", path)
	}

	orders := make([]domain.Order, 0, len(records)-1)
	for _, rec := range records[1:] {
		orders = append(orders, domain.Order{
			OrderNumber: rec[0],
			City:        nonEmptyCell(rec[1]),
			State:       nonEmptyCell(rec[2]),
			ZipCode:     nonEmptyCell(rec[3]),
		})
	}
	return orders, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmptyCell(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

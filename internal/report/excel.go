// Package report renders the quarterly per-state sales summary as a
// spreadsheet artifact.
package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/sales-report-etl/internal/domain"
)

const sheetName = "Sales Report"

// ExcelWriter writes quarterly sales reports as XLSX files into Dir.
type ExcelWriter struct {
	Dir string
}

// WriteQuarterly renders the summary rows to
// <STATE>_state_sales_report_<year>.xlsx and returns the file path.
// Callers handle the empty-rows case before calling; an artifact is only
// produced when there is data.
func (w *ExcelWriter) WriteQuarterly(state string, year int, rows []domain.QuarterlySales) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return "", fmt.Errorf("rename report sheet: %w", err)
	}

	header := []any{"Quarter", "City", "Total Sales"}
	for col, v := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return "", fmt.Errorf("header cell name: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return "", fmt.Errorf("write header cell %s: %w", cell, err)
		}
	}

	for i, row := range rows {
		values := []any{row.Label(), row.City, row.TotalSales}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return "", fmt.Errorf("report cell name: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return "", fmt.Errorf("write report cell %s: %w", cell, err)
			}
		}
	}

	name := fmt.Sprintf("%s_state_sales_report_%d.xlsx", strings.ToUpper(state), year)
	path := filepath.Join(w.Dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save report %s: %w", path, err)
	}
	return path, nil
}

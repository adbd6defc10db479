// Package csvfile reads the flat-file inputs (orders, IP addresses) and
// writes the flat-file export. Source column headers vary between
// upstream exports and are normalized to the canonical column set before
// mapping.
package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/sales-report-etl/internal/domain"
)

// orderDateLayouts are tried in sequence when parsing order dates. The
// upstream system has shipped all of these at one point or another.
var orderDateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// headerRenames maps normalized source headers to canonical column names.
var headerRenames = map[string]string{
	"zip":    "zip_code",
	"$_sale": "sale_amount",
	"date":   "order_date",
}

// ReadOrders parses the orders CSV into domain orders. A malformed row or
// missing required column fails the whole load; ingestion is
// all-or-nothing at the file level.
func ReadOrders(path string) ([]domain.Order, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open orders file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read orders file: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("orders file %s has no header row", path)
	}

	cols := columnIndex(records[0])
	for _, required := range []string{"order_number", "order_date", "ip_address", "sale_amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("orders file missing required column %q", required)
		}
	}

	orders := make([]domain.Order, 0, len(records)-1)
	for i, rec := range records[1:] {
		order, err := parseOrderRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("orders file row %d: %w", i+2, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func parseOrderRow(rec []string, cols map[string]int) (domain.Order, error) {
	num := strings.TrimSpace(rec[cols["order_number"]])
	if num == "" {
		return domain.Order{}, fmt.Errorf("empty order_number")
	}

	date, err := parseOrderDate(strings.TrimSpace(rec[cols["order_date"]]))
	if err != nil {
		return domain.Order{}, err
	}

	amount, err := parseSaleAmount(rec[cols["sale_amount"]])
	if err != nil {
		return domain.Order{}, err
	}

	return domain.Order{
		OrderNumber: num,
		OrderDate:   date,
		IPAddress:   strings.TrimSpace(rec[cols["ip_address"]]),
		SaleAmount:  amount,
	}, nil
}

func parseOrderDate(s string) (time.Time, error) {
	for _, layout := range orderDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable order_date %q", s)
}

// parseSaleAmount strips the currency prefix and thousands separators
// ("$1,204.50" -> 1204.50) before parsing.
func parseSaleAmount(s string) (float64, error) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(s))
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable sale_amount %q", s)
	}
	return amount, nil
}

// columnIndex normalizes header names (trim, lowercase, spaces to
// underscores, canonical renames) and maps them to their positions.
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if canonical, ok := headerRenames[name]; ok {
			name = canonical
		}
		cols[name] = i
	}
	return cols
}

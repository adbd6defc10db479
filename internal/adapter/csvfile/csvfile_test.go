package csvfile

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sales-report-etl/internal/domain"
)

func writeTempCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func TestReadOrders_NormalizesHeaders(t *testing.T) {
	path := writeTempCSV(t, "orders.csv", "Order Number, Date ,IP Address,$ Sale\n"+
		"1001,2021-02-15,203.0.113.10,\"$1,204.50\"\n"+
		"1002,3/5/2021,203.0.113.11,99.99\n")

	orders, err := ReadOrders(path)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, "1001", orders[0].OrderNumber)
	assert.Equal(t, time.Date(2021, time.February, 15, 0, 0, 0, 0, time.UTC), orders[0].OrderDate)
	assert.Equal(t, "203.0.113.10", orders[0].IPAddress)
	assert.Equal(t, 1204.50, orders[0].SaleAmount)
	assert.Nil(t, orders[0].City)

	assert.Equal(t, time.Date(2021, time.March, 5, 0, 0, 0, 0, time.UTC), orders[1].OrderDate)
	assert.Equal(t, 99.99, orders[1].SaleAmount)
}

func TestReadOrders_MissingColumn(t *testing.T) {
	path := writeTempCSV(t, "orders.csv", "order_number,date\n1001,2021-01-01\n")

	_, err := ReadOrders(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ip_address")
}

func TestReadOrders_MalformedRowAbortsLoad(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"bad date", "1001,not-a-date,203.0.113.10,50.00"},
		{"bad amount", "1001,2021-01-01,203.0.113.10,fifty"},
		{"empty order number", ",2021-01-01,203.0.113.10,50.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempCSV(t, "orders.csv",
				"order_number,date,ip_address,$ sale\n"+tt.row+"\n")
			_, err := ReadOrders(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "row 2")
		})
	}
}

func TestReadIPs_DeduplicatesPreservingOrder(t *testing.T) {
	path := writeTempCSV(t, "ips.csv", "ip_address\n"+
		"203.0.113.10\n203.0.113.11\n203.0.113.10\n2001:db8::1\n203.0.113.11\n")

	ips, err := ReadIPs(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"203.0.113.10", "203.0.113.11", "2001:db8::1"}, ips)
}

func TestReadIPs_SkipsInvalidAddresses(t *testing.T) {
	path := writeTempCSV(t, "ips.csv", "ip_address\nnot-an-ip\n203.0.113.10\n999.1.1.1\n")

	ips, err := ReadIPs(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"203.0.113.10"}, ips)
}

func TestReadIPs_MissingColumn(t *testing.T) {
	path := writeTempCSV(t, "ips.csv", "address\n203.0.113.10\n")

	_, err := ReadIPs(path, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ip_address")
}

func TestExport_RoundTrip(t *testing.T) {
	orders := []domain.Order{
		{OrderNumber: "1001", City: strPtr("Chicago"), State: strPtr("IL"), ZipCode: strPtr("60601")},
		{OrderNumber: "1002"}, // unenriched order keeps empty cells
		{OrderNumber: "1003", City: strPtr("Peoria"), State: strPtr("IL"), ZipCode: strPtr("61602")},
	}

	path := filepath.Join(t.TempDir(), "orders_export.csv")
	require.NoError(t, WriteExport(path, orders))

	got, err := ReadExport(path)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, o := range orders {
		assert.Equal(t, o.OrderNumber, got[i].OrderNumber)
		assert.Equal(t, o.City, got[i].City)
		assert.Equal(t, o.State, got[i].State)
		assert.Equal(t, o.ZipCode, got[i].ZipCode)
	}
}

func TestWriteExport_EmptyOrders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders_export.csv")
	require.NoError(t, WriteExport(path, nil))

	got, err := ReadExport(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

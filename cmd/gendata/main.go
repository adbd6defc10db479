// Command gendata generates sample input fixtures for local runs of the
// sales report ETL: an orders file with the raw headers the pipeline
// normalizes, and an IP address file with duplicates to exercise
// deduplication.
//
// Usage:
//
//	go run ./cmd/gendata -orders 200 -orders-out orders_file.csv -ips-out ip_addresses.csv
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	orders := flag.Int("orders", 200, "number of order rows to generate")
	ordersOut := flag.String("orders-out", "orders_file.csv", "output path for the orders file")
	ipsOut := flag.String("ips-out", "ip_addresses.csv", "output path for the IP address file")
	year := flag.Int("year", 2021, "calendar year for order dates")
	seed := flag.Int64("seed", 42, "random seed for reproducible fixtures")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	ips := make([]string, 40)
	for i := range ips {
		ips[i] = fmt.Sprintf("%d.%d.%d.%d", 1+rng.Intn(223), rng.Intn(256), rng.Intn(256), 1+rng.Intn(254))
	}

	if err := writeOrders(*ordersOut, *orders, *year, ips, rng); err != nil {
		return fmt.Errorf("writing orders file: %w", err)
	}
	log.Printf("wrote %d orders: %s", *orders, *ordersOut)

	if err := writeIPs(*ipsOut, ips, rng); err != nil {
		return fmt.Errorf("writing ip file: %w", err)
	}
	log.Printf("wrote ip file: %s", *ipsOut)

	return nil
}

// writeOrders emits rows under the raw headers the ingestion step is
// expected to normalize, with dollar-formatted sale amounts.
func writeOrders(path string, count, year int, ips []string, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Order Number", "Date", "IP Address", "$ Sale"}); err != nil {
		return err
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		date := start.AddDate(0, 0, rng.Intn(365))
		amount := 5 + rng.Float64()*995
		row := []string{
			fmt.Sprintf("%06d", 100000+i),
			date.Format("2006-01-02"),
			ips[rng.Intn(len(ips))],
			fmt.Sprintf("$%.2f", amount),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// writeIPs emits every IP at least once plus random repeats, so the
// fixture exercises first-seen deduplication.
func writeIPs(path string, ips []string, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"ip_address"}); err != nil {
		return err
	}

	rows := append([]string(nil), ips...)
	for i := 0; i < len(ips); i++ {
		rows = append(rows, ips[rng.Intn(len(ips))])
	}
	rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

	for _, ip := range rows {
		if err := w.Write([]string{ip}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

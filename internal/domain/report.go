package domain

import (
	"fmt"
	"sort"
	"time"
)

// QuarterlySales is one row of the per-state sales report: total sales
// for one city within one calendar quarter.
type QuarterlySales struct {
	Quarter    int
	City       string
	TotalSales float64
}

// Label formats the quarter for report output, e.g. "Q1".
func (q QuarterlySales) Label() string {
	return fmt.Sprintf("Q%d", q.Quarter)
}

// QuarterOf returns the 1-indexed calendar quarter of t.
func QuarterOf(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// AggregateQuarterly groups orders by (quarter, city) and sums sale
// amounts, returning rows ordered by quarter then city. Orders without a
// city are skipped; they carry no reportable location. An empty result is
// a valid outcome, not an error.
func AggregateQuarterly(orders []Order) []QuarterlySales {
	type key struct {
		quarter int
		city    string
	}

	totals := make(map[key]float64)
	for _, o := range orders {
		if o.City == nil {
			continue
		}
		k := key{quarter: QuarterOf(o.OrderDate), city: *o.City}
		totals[k] += o.SaleAmount
	}

	rows := make([]QuarterlySales, 0, len(totals))
	for k, total := range totals {
		rows = append(rows, QuarterlySales{Quarter: k.quarter, City: k.city, TotalSales: total})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Quarter != rows[j].Quarter {
			return rows[i].Quarter < rows[j].Quarter
		}
		return rows[i].City < rows[j].City
	})

	return rows
}

// Package domain models the sales-report data set: orders, cached IP
// geolocations, and the quarterly aggregation used for state reports.
//
// # Data Source
//
// Orders arrive as CSV exports from the upstream sales system. Column
// headers vary between exports ("Order Number", "$ Sale", "Zip", ...) and
// are normalized during ingestion: trimmed, lowercased, spaces replaced
// with underscores, then renamed to the canonical column set
// (order_number, order_date, ip_address, sale_amount, zip_code).
//
// Sale amounts may carry a currency prefix and thousands separators
// ("$1,204.50"); both are stripped before parsing.
//
// # Geolocation Cache Semantics
//
// Each distinct IP address is looked up against an external geolocation
// API at most once, ever. The first result wins and is persisted to the
// ip_locations table, including failed lookups, which are recorded with
// null city/state/zip so they are not re-attempted on later runs. An
// order's location fields are only ever copied from a matching cached
// record; orders whose IP has no cache entry keep null location fields.
//
// # Quarterly Aggregation
//
// Report rows group enriched orders by the 1-indexed calendar quarter of
// the order date and by city, summing sale amounts. January–March is Q1.
package domain

package domain

import "time"

// Order is an order record as persisted in the orders table. Location
// fields are nil until the merge step copies them from a cached
// geolocation, and stay nil when no cache entry matches.
type Order struct {
	OrderNumber string     `json:"order_number"`
	OrderDate   time.Time  `json:"order_date"`
	IPAddress   string     `json:"ip_address"`
	City        *string    `json:"city,omitempty"`
	State       *string    `json:"state,omitempty"`
	ZipCode     *string    `json:"zip_code,omitempty"`
	SaleAmount  float64    `json:"sale_amount"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Enriched reports whether the merge step has populated location fields.
// The needs-enrichment predicate is city alone, matching the merge SQL.
func (o Order) Enriched() bool {
	return o.City != nil
}

// GeoLocation is a cached lookup result for one IP address. All location
// fields are nil for a failed or partial lookup; the row still exists so
// the IP is never looked up again.
type GeoLocation struct {
	IPAddress string  `json:"ip_address"`
	City      *string `json:"city,omitempty"`
	State     *string `json:"state,omitempty"`
	ZipCode   *string `json:"zip_code,omitempty"`
}

// Resolved reports whether the lookup produced any usable location data.
func (g GeoLocation) Resolved() bool {
	return g.City != nil || g.State != nil || g.ZipCode != nil
}

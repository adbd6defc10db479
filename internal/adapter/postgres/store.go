// Package postgres persists orders and the IP geolocation cache. It is
// the only writer of shared state in the system; enrichment workers never
// touch it directly.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/sales-report-etl/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS orders (
	order_number TEXT PRIMARY KEY,
	order_date   DATE NOT NULL,
	ip_address   TEXT NOT NULL,
	city         TEXT,
	state        TEXT,
	zip_code     TEXT,
	sale_amount  DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_ip_address_idx ON orders (ip_address);

CREATE TABLE IF NOT EXISTS ip_locations (
	ip_address TEXT PRIMARY KEY,
	city       TEXT,
	state      TEXT,
	zip_code   TEXT
);
`

const (
	insertOrderSQL = `
		INSERT INTO orders (order_number, order_date, ip_address, sale_amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_number) DO NOTHING`

	insertGeoLocationSQL = `
		INSERT INTO ip_locations (ip_address, city, state, zip_code)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ip_address) DO NOTHING`

	mergeSQL = `
		UPDATE orders o
		SET city = ip.city, state = ip.state, zip_code = ip.zip_code
		FROM ip_locations ip
		WHERE o.ip_address = ip.ip_address AND o.city IS NULL
		RETURNING o.order_number, o.order_date, o.ip_address, o.city, o.state, o.zip_code, o.sale_amount`

	selectAllOrdersSQL = `
		SELECT order_number, order_date, ip_address, city, state, zip_code, sale_amount
		FROM orders
		ORDER BY order_number`

	selectReportOrdersSQL = `
		SELECT order_number, order_date, ip_address, city, state, zip_code, sale_amount
		FROM orders
		WHERE state = $1 AND date_part('year', order_date) = $2 AND city IS NOT NULL`
)

// Store is the handle to the orders and ip_locations tables. Lifecycle is
// owned by the top-level run, not ambient package state.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the orders and ip_locations tables if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertOrders persists a batch of ingested orders, skipping order
// numbers already present. Returns the number of rows actually inserted.
func (s *Store) InsertOrders(ctx context.Context, orders []domain.Order) (int64, error) {
	if len(orders) == 0 {
		return 0, nil
	}

	b := &pgx.Batch{}
	for _, o := range orders {
		b.Queue(insertOrderSQL, o.OrderNumber, o.OrderDate, o.IPAddress, o.SaleAmount)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	var inserted int64
	for _, o := range orders {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert order %s (%s): %w", o.OrderNumber, ErrorClass(err), err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ExistingIPs returns the set of IP addresses already present in the
// geolocation cache. The enrichment orchestrator subtracts these from its
// candidates so cached IPs are never looked up again.
func (s *Store) ExistingIPs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT ip_address FROM ip_locations`)
	if err != nil {
		return nil, fmt.Errorf("query cached ips: %w", err)
	}
	defer rows.Close()

	ips := make(map[string]struct{})
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("scan cached ip: %w", err)
		}
		ips[ip] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached ips: %w", err)
	}
	return ips, nil
}

// InsertGeoLocations persists collected lookup results in one batched
// write. First result wins: conflicts on ip_address are ignored, so an
// existing cache row is never overwritten. Partial application on failure
// is acceptable; the returned count covers rows applied before the error.
func (s *Store) InsertGeoLocations(ctx context.Context, locs []domain.GeoLocation) (int64, error) {
	if len(locs) == 0 {
		return 0, nil
	}

	b := &pgx.Batch{}
	for _, loc := range locs {
		b.Queue(insertGeoLocationSQL, loc.IPAddress, loc.City, loc.State, loc.ZipCode)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	var inserted int64
	for _, loc := range locs {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert geolocation %s (%s): %w", loc.IPAddress, ErrorClass(err), err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// MergeLocations backfills location fields onto orders that have none,
// from matching cache rows. Idempotent: enriched orders no longer match
// the city-is-null predicate. Returns the orders touched by this merge.
func (s *Store) MergeLocations(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, mergeSQL)
	if err != nil {
		return nil, fmt.Errorf("merge locations (%s): %w", ErrorClass(err), err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// AllOrders returns every order, enriched or not, ordered by order number
// for deterministic export output.
func (s *Store) AllOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, selectAllOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("query all orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// OrdersForReport returns enriched orders for one state and year. An
// empty result is valid and signals the no-data report path.
func (s *Store) OrdersForReport(ctx context.Context, state string, year int) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, selectReportOrdersSQL, state, year)
	if err != nil {
		return nil, fmt.Errorf("query report orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.OrderNumber, &o.OrderDate, &o.IPAddress, &o.City, &o.State, &o.ZipCode, &o.SaleAmount); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// ErrorClass maps a persistence error to a diagnostic label for logging.
func ErrorClass(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "other"
	}
	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		return "unique_violation"
	case pgerrcode.IsIntegrityConstraintViolation(pgErr.Code):
		return "constraint_violation"
	case pgerrcode.IsConnectionException(pgErr.Code):
		return "connection"
	default:
		return "other"
	}
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oskar-77/OskarTrackSystem33/internal/analytics"
)

const customerColumns = `customer_id, first_seen_unix_nanos, last_seen_unix_nanos, total_visits, total_time_spent`

func scanCustomer(row interface{ Scan(...interface{}) error }) (analytics.Customer, error) {
	var (
		c           analytics.Customer
		first, last int64
	)
	if err := row.Scan(&c.CustomerID, &first, &last, &c.TotalVisits, &c.TotalTimeSpent); err != nil {
		return analytics.Customer{}, err
	}
	c.FirstSeen = time.Unix(0, first).UTC()
	c.LastSeen = time.Unix(0, last).UTC()
	return c, nil
}

// ListCustomers returns up to limit customers, most recently seen first,
// skipping the first offset.
func (db *DB) ListCustomers(ctx context.Context, limit, offset int) ([]analytics.Customer, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY last_seen_unix_nanos DESC, customer_id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []analytics.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCustomer returns one customer by id.
func (db *DB) GetCustomer(ctx context.Context, customerID string) (analytics.Customer, error) {
	c, err := scanCustomer(db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE customer_id = ?`, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return analytics.Customer{}, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	return c, err
}

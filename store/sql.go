package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentdesk/internal/sqldb"
)

// SQLStore is a Store backed by a SQL database (SQLite or MySQL).
type SQLStore struct {
	db *sqldb.DB
}

// Compile-time interface check
var _ Store = (*SQLStore)(nil)

// NewSQLStore creates the schema if needed and returns the store. The handle
// stays owned by the caller.
func NewSQLStore(ctx context.Context, db *sqldb.DB) (*SQLStore, error) {
	if err := db.Migrate(ctx, Tables(db.Dialect)...); err != nil {
		return nil, fmt.Errorf("failed to initialize entity schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Tables returns the entity tables for the dialect.
func Tables(d sqldb.Dialect) []sqldb.Table {
	key, text := d.KeyType(), d.TextType()
	return []sqldb.Table{
		{
			Name: "orders",
			Columns: []string{
				"id " + key + " PRIMARY KEY",
				"user_id " + key + " NOT NULL",
				"status " + key + " NOT NULL",
				"details " + text + " NOT NULL",
				"created_at BIGINT NOT NULL",
			},
			Indexes: []sqldb.Index{{Name: "idx_orders_user", Columns: []string{"user_id"}}},
		},
		{
			Name: "payments",
			Columns: []string{
				"id " + key + " PRIMARY KEY",
				"user_id " + key + " NOT NULL",
				"order_id " + key,
				"amount BIGINT NOT NULL",
				"status " + key + " NOT NULL",
				"invoice_id " + key,
				"refund_id " + key,
				"refund_amount BIGINT",
				"refund_reason " + text,
				"created_at BIGINT NOT NULL",
			},
			Indexes: []sqldb.Index{
				{Name: "idx_payments_order", Columns: []string{"order_id"}},
				{Name: "idx_payments_refund", Columns: []string{"refund_id"}},
			},
		},
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const orderColumns = "id, user_id, status, details, created_at"

func scanOrder(row rowScanner) (Order, error) {
	var (
		o       Order
		details string
		created int64
	)
	if err := row.Scan(&o.ID, &o.OwnerID, &o.Status, &details, &created); err != nil {
		return Order{}, err
	}
	o.Details = map[string]any{}
	if details != "" {
		if err := json.Unmarshal([]byte(details), &o.Details); err != nil {
			return Order{}, fmt.Errorf("failed to decode details of order %s: %w", o.ID, err)
		}
	}
	o.CreatedAt = time.UnixMilli(created).UTC()
	return o, nil
}

// FindOrder returns the order with the given id.
func (s *SQLStore) FindOrder(ctx context.Context, id string) (Order, error) {
	return findOrder(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findOrder(ctx context.Context, q querier, id string) (Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Order{}, fmt.Errorf("failed to query order %s: %w", id, err)
	}
	return o, nil
}

// UpdateOrder reads the order, merges patch and writes it back in one
// transaction.
func (s *SQLStore) UpdateOrder(ctx context.Context, id string, patch OrderPatch) (Order, error) {
	var updated Order
	err := s.db.Tx(ctx, func(tx *sql.Tx) error {
		o, err := findOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.apply(&o)

		details, err := json.Marshal(o.Details)
		if err != nil {
			return fmt.Errorf("failed to encode details: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE orders SET status = ?, details = ? WHERE id = ?", o.Status, string(details), id); err != nil {
			return fmt.Errorf("failed to update order %s: %w", id, err)
		}
		updated = o.Clone()
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return updated, nil
}

// ListOrdersByOwner returns up to limit orders of ownerID, newest first.
func (s *SQLStore) ListOrdersByOwner(ctx context.Context, ownerID string, limit int) ([]Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE user_id = ? ORDER BY created_at DESC, id ASC"
	args := []any{ownerID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const paymentColumns = "id, user_id, order_id, amount, status, invoice_id, refund_id, refund_amount, refund_reason, created_at"

func scanPayment(row rowScanner) (Payment, error) {
	var (
		p                                    Payment
		orderID, invoiceID, refundID, reason sql.NullString
		refundAmount                         sql.NullInt64
		created                              int64
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &orderID, &p.Amount, &p.Status, &invoiceID, &refundID, &refundAmount, &reason, &created); err != nil {
		return Payment{}, err
	}
	p.OrderID = orderID.String
	p.InvoiceID = invoiceID.String
	p.RefundID = refundID.String
	p.RefundAmount = refundAmount.Int64
	p.RefundReason = reason.String
	p.CreatedAt = time.UnixMilli(created).UTC()
	return p, nil
}

func (s *SQLStore) findPayment(ctx context.Context, column, value string) (Payment, error) {
	query := "SELECT " + paymentColumns + " FROM payments WHERE " + column + " = ? ORDER BY created_at ASC, id ASC LIMIT 1"
	p, err := scanPayment(s.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, fmt.Errorf("payment by %s %s: %w", column, value, ErrNotFound)
	}
	if err != nil {
		return Payment{}, fmt.Errorf("failed to query payment: %w", err)
	}
	return p, nil
}

// FindPayment returns the payment with the given id.
func (s *SQLStore) FindPayment(ctx context.Context, id string) (Payment, error) {
	return s.findPayment(ctx, "id", id)
}

// FindPaymentByOrder returns the first payment recorded for orderID.
func (s *SQLStore) FindPaymentByOrder(ctx context.Context, orderID string) (Payment, error) {
	return s.findPayment(ctx, "order_id", orderID)
}

// FindPaymentByRefund returns the payment carrying refundID.
func (s *SQLStore) FindPaymentByRefund(ctx context.Context, refundID string) (Payment, error) {
	return s.findPayment(ctx, "refund_id", refundID)
}

// PutOrder inserts or replaces an order.
func (s *SQLStore) PutOrder(ctx context.Context, o Order) error {
	details, err := json.Marshal(cloneDetails(o.Details))
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = ?", o.ID); err != nil {
			return fmt.Errorf("failed to replace order %s: %w", o.ID, err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO orders ("+orderColumns+") VALUES (?, ?, ?, ?, ?)",
			o.ID, o.OwnerID, o.Status, string(details), millis(o.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
		}
		return nil
	})
}

// PutPayment inserts or replaces a payment.
func (s *SQLStore) PutPayment(ctx context.Context, p Payment) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", p.ID); err != nil {
			return fmt.Errorf("failed to replace payment %s: %w", p.ID, err)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO payments ("+paymentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			p.ID, p.OwnerID, nullString(p.OrderID), p.Amount, p.Status,
			nullString(p.InvoiceID), nullString(p.RefundID), nullInt(p.RefundAmount), nullString(p.RefundReason),
			millis(p.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert payment %s: %w", p.ID, err)
		}
		return nil
	})
}

// Close is a no-op; the database handle belongs to the caller.
func (s *SQLStore) Close() error { return nil }

func millis(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

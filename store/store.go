// Package store holds the commerce entities the support tools operate on
// (orders and payments) together with an in-memory and a SQL implementation.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"time"
)

// ErrNotFound is returned when an entity does not exist.
var ErrNotFound = errors.New("not found")

// Order statuses used by the seed data. Status is free text; tools do not
// enforce a state machine.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"
)

// Payment statuses.
const (
	PaymentSuccess  = "success"
	PaymentRefunded = "refunded"
	PaymentFailed   = "failed"
)

// Order is a placed order. Details is a free-form bag (items, address,
// notes, priority, ...).
type Order struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"userId"`
	Status    string         `json:"status"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Clone returns a deep copy.
func (o Order) Clone() Order {
	o.Details = cloneDetails(o.Details)
	return o
}

// Payment is a payment record, optionally refunded. Amounts are in cents.
type Payment struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"userId"`
	OrderID      string    `json:"orderId"`
	Amount       int64     `json:"amount"`
	Status       string    `json:"status"`
	InvoiceID    string    `json:"invoiceId,omitempty"`
	RefundID     string    `json:"refundId,omitempty"`
	RefundAmount int64     `json:"refundAmount,omitempty"`
	RefundReason string    `json:"refundReason,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Refunded reports whether the payment carries a refund.
func (p Payment) Refunded() bool {
	return p.RefundID != "" || p.Status == PaymentRefunded
}

// OrderPatch is a partial order update. A nil Status leaves the status
// unchanged; Details keys are merged over the stored details.
type OrderPatch struct {
	Status  *string
	Details map[string]any
}

// Empty reports whether the patch changes nothing.
func (p OrderPatch) Empty() bool { return p.Status == nil && len(p.Details) == 0 }

// apply merges the patch into o.
func (p OrderPatch) apply(o *Order) {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if len(p.Details) > 0 {
		if o.Details == nil {
			o.Details = map[string]any{}
		}
		maps.Copy(o.Details, cloneDetails(p.Details))
	}
}

// OrderStore reads and updates orders.
type OrderStore interface {
	FindOrder(ctx context.Context, id string) (Order, error)
	UpdateOrder(ctx context.Context, id string, patch OrderPatch) (Order, error)
	ListOrdersByOwner(ctx context.Context, ownerID string, limit int) ([]Order, error)
}

// PaymentStore reads payments.
type PaymentStore interface {
	FindPayment(ctx context.Context, id string) (Payment, error)
	FindPaymentByOrder(ctx context.Context, orderID string) (Payment, error)
	FindPaymentByRefund(ctx context.Context, refundID string) (Payment, error)
}

// Writer inserts or replaces entities. Used for seeding.
type Writer interface {
	PutOrder(ctx context.Context, o Order) error
	PutPayment(ctx context.Context, p Payment) error
}

// Store is the full entity store.
type Store interface {
	OrderStore
	PaymentStore
	Writer
	Close() error
}

// cloneDetails deep copies a details bag through JSON so nested values are
// never shared and numbers have a single representation (float64)
// regardless of the backing store.
func cloneDetails(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return maps.Clone(in)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return maps.Clone(in)
	}
	return out
}

package store

import (
	"context"
	"fmt"
	"time"
)

// Demo identities owning the seed data.
const (
	DefaultUserID = "00000000-0000-0000-0000-000000000000"
	SecondUserID  = "11111111-1111-1111-1111-111111111111"
)

var seedEpoch = time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC)

// SeedOrders returns the demo orders.
func SeedOrders() []Order {
	return []Order{
		{
			ID:      "ORD-123",
			OwnerID: DefaultUserID,
			Status:  OrderShipped,
			Details: map[string]any{
				"items": []any{
					map[string]any{"name": "Wireless Headphones", "price": 150, "quantity": 1},
					map[string]any{"name": "USB-C Cable", "price": 20, "quantity": 2},
				},
				"shippingAddress":   "123 Tech Park, Bangalore",
				"estimatedDelivery": "2026-02-15",
			},
			CreatedAt: seedEpoch.Add(72 * time.Hour),
		},
		{
			ID:      "ORD-456",
			OwnerID: DefaultUserID,
			Status:  OrderDelivered,
			Details: map[string]any{
				"items":        []any{map[string]any{"name": "Gaming Mouse", "price": 80, "quantity": 1}},
				"deliveryDate": "2026-02-01",
			},
			CreatedAt: seedEpoch,
		},
		{
			ID:      "ORD-789",
			OwnerID: DefaultUserID,
			Status:  OrderPending,
			Details: map[string]any{
				"items": []any{map[string]any{"name": "4K Monitor", "price": 400, "quantity": 1}},
				"notes": "Fragile handling required",
			},
			CreatedAt: seedEpoch.Add(96 * time.Hour),
		},
		{
			ID:      "ORD-999",
			OwnerID: SecondUserID,
			Status:  OrderProcessing,
			Details: map[string]any{
				"items": []any{map[string]any{"name": "Secret Item", "price": 999, "quantity": 1}},
			},
			CreatedAt: seedEpoch.Add(24 * time.Hour),
		},
	}
}

// SeedPayments returns the demo payments.
func SeedPayments() []Payment {
	return []Payment{
		{ID: "PAY-123", OwnerID: DefaultUserID, OrderID: "ORD-123", Amount: 19000, Status: PaymentSuccess, InvoiceID: "INV-123", CreatedAt: seedEpoch.Add(72 * time.Hour)},
		{ID: "PAY-456", OwnerID: DefaultUserID, OrderID: "ORD-456", Amount: 8000, Status: PaymentSuccess, InvoiceID: "INV-456", CreatedAt: seedEpoch},
		{
			ID:           "PAY-789",
			OwnerID:      DefaultUserID,
			OrderID:      "ORD-789",
			Amount:       40000,
			Status:       PaymentRefunded,
			InvoiceID:    "INV-789",
			RefundID:     "REF-789",
			RefundAmount: 40000,
			RefundReason: "Customer changed mind",
			CreatedAt:    seedEpoch.Add(96 * time.Hour),
		},
	}
}

// Seed writes the demo orders and payments, replacing existing rows with the
// same ids.
func Seed(ctx context.Context, w Writer) error {
	for _, o := range SeedOrders() {
		if err := w.PutOrder(ctx, o); err != nil {
			return fmt.Errorf("seed order %s: %w", o.ID, err)
		}
	}
	for _, p := range SeedPayments() {
		if err := w.PutPayment(ctx, p); err != nil {
			return fmt.Errorf("seed payment %s: %w", p.ID, err)
		}
	}
	return nil
}

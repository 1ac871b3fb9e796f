package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a volatile Store backed by process local maps. It is safe
// for concurrent access; returned entities are copies.
type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[string]Order
	payments map[string]Payment
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]Order),
		payments: make(map[string]Payment),
	}
}

// FindOrder returns the order with the given id.
func (s *MemoryStore) FindOrder(_ context.Context, id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return o.Clone(), nil
}

// UpdateOrder applies patch to the stored order and returns the result.
func (s *MemoryStore) UpdateOrder(_ context.Context, id string, patch OrderPatch) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	o = o.Clone()
	patch.apply(&o)
	s.orders[id] = o
	return o.Clone(), nil
}

// ListOrdersByOwner returns up to limit orders of ownerID, newest first.
func (s *MemoryStore) ListOrdersByOwner(_ context.Context, ownerID string, limit int) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Order
	for _, o := range s.orders {
		if o.OwnerID == ownerID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindPayment returns the payment with the given id.
func (s *MemoryStore) FindPayment(_ context.Context, id string) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, fmt.Errorf("payment %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// FindPaymentByOrder returns the first payment recorded for orderID.
func (s *MemoryStore) FindPaymentByOrder(_ context.Context, orderID string) (Payment, error) {
	return s.findPayment(func(p Payment) bool { return p.OrderID == orderID }, "order "+orderID)
}

// FindPaymentByRefund returns the payment carrying refundID.
func (s *MemoryStore) FindPaymentByRefund(_ context.Context, refundID string) (Payment, error) {
	return s.findPayment(func(p Payment) bool { return p.RefundID == refundID }, "refund "+refundID)
}

func (s *MemoryStore) findPayment(match func(Payment) bool, what string) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		found Payment
		ok    bool
	)
	for _, p := range s.payments {
		if !match(p) {
			continue
		}
		// deterministic pick across map iteration
		if !ok || p.CreatedAt.Before(found.CreatedAt) || (p.CreatedAt.Equal(found.CreatedAt) && p.ID < found.ID) {
			found, ok = p, true
		}
	}
	if !ok {
		return Payment{}, fmt.Errorf("payment for %s: %w", what, ErrNotFound)
	}
	return found, nil
}

// PutOrder inserts or replaces an order.
func (s *MemoryStore) PutOrder(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
	return nil
}

// PutPayment inserts or replaces a payment.
func (s *MemoryStore) PutPayment(_ context.Context, p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

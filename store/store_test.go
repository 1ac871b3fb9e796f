package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/agentdesk/internal/sqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var memdbSeq atomic.Int64

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:storememdb%d?mode=memory&cache=shared", memdbSeq.Add(1)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLStore(ctx, db)
	require.NoError(t, err)
	return s
}

// backends runs fn against every Store implementation with seed data loaded.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, Seed(context.Background(), s))
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		s := newSQLStore(t)
		require.NoError(t, Seed(context.Background(), s))
		fn(t, s)
	})
}

func TestFindOrder(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		o, err := s.FindOrder(ctx, "ORD-123")
		require.NoError(t, err)
		assert.Equal(t, OrderShipped, o.Status)
		assert.Equal(t, DefaultUserID, o.OwnerID)
		assert.Equal(t, "123 Tech Park, Bangalore", o.Details["shippingAddress"])
		items, ok := o.Details["items"].([]any)
		require.True(t, ok)
		assert.Len(t, items, 2)

		_, err = s.FindOrder(ctx, "ORD-000")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdateOrder_MergesDetails(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		status := OrderShipped

		o, err := s.UpdateOrder(ctx, "ORD-789", OrderPatch{
			Status:  &status,
			Details: map[string]any{"priority": "high", "notes": "Leave at door"},
		})
		require.NoError(t, err)
		assert.Equal(t, OrderShipped, o.Status)
		assert.Equal(t, "high", o.Details["priority"])
		assert.Equal(t, "Leave at door", o.Details["notes"])
		assert.Contains(t, o.Details, "items")

		reloaded, err := s.FindOrder(ctx, "ORD-789")
		require.NoError(t, err)
		assert.Equal(t, o, reloaded)

		_, err = s.UpdateOrder(ctx, "ORD-000", OrderPatch{Status: &status})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdateOrder_StatusOnlyKeepsDetails(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		before, err := s.FindOrder(ctx, "ORD-456")
		require.NoError(t, err)

		status := OrderCancelled
		after, err := s.UpdateOrder(ctx, "ORD-456", OrderPatch{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, OrderCancelled, after.Status)
		assert.Equal(t, before.Details, after.Details)
	})
}

func TestListOrdersByOwner(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		orders, err := s.ListOrdersByOwner(ctx, DefaultUserID, 5)
		require.NoError(t, err)
		require.Len(t, orders, 3)
		assert.Equal(t, []string{"ORD-789", "ORD-123", "ORD-456"}, []string{orders[0].ID, orders[1].ID, orders[2].ID})

		orders, err = s.ListOrdersByOwner(ctx, DefaultUserID, 1)
		require.NoError(t, err)
		assert.Len(t, orders, 1)

		orders, err = s.ListOrdersByOwner(ctx, "nobody", 5)
		require.NoError(t, err)
		assert.Empty(t, orders)
	})
}

func TestPaymentLookups(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		p, err := s.FindPayment(ctx, "PAY-123")
		require.NoError(t, err)
		assert.Equal(t, int64(19000), p.Amount)
		assert.False(t, p.Refunded())
		assert.Empty(t, p.RefundID)

		p, err = s.FindPaymentByOrder(ctx, "ORD-456")
		require.NoError(t, err)
		assert.Equal(t, "PAY-456", p.ID)

		p, err = s.FindPaymentByRefund(ctx, "REF-789")
		require.NoError(t, err)
		assert.Equal(t, "PAY-789", p.ID)
		assert.True(t, p.Refunded())
		assert.Equal(t, int64(40000), p.RefundAmount)
		assert.Equal(t, "Customer changed mind", p.RefundReason)

		_, err = s.FindPayment(ctx, "PAY-000")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.FindPaymentByOrder(ctx, "ORD-999")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.FindPaymentByRefund(ctx, "REF-000")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSeed_Idempotent(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		require.NoError(t, Seed(context.Background(), s))
		orders, err := s.ListOrdersByOwner(context.Background(), DefaultUserID, 0)
		require.NoError(t, err)
		assert.Len(t, orders, 3)
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, Seed(context.Background(), s))

	o, err := s.FindOrder(context.Background(), "ORD-123")
	require.NoError(t, err)
	o.Details["shippingAddress"] = "elsewhere"

	again, err := s.FindOrder(context.Background(), "ORD-123")
	require.NoError(t, err)
	assert.Equal(t, "123 Tech Park, Bangalore", again.Details["shippingAddress"])
}

func TestOrderPatch_Empty(t *testing.T) {
	assert.True(t, OrderPatch{}.Empty())
	assert.True(t, OrderPatch{Details: map[string]any{}}.Empty())
	s := "x"
	assert.False(t, OrderPatch{Status: &s}.Empty())
}

package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/internal/sqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var memdbSeq atomic.Int64

// tickingClock returns strictly increasing timestamps one second apart.
func tickingClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Second) }
}

func stores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStore()
		s.now = tickingClock()
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		ctx := context.Background()
		db, err := sqldb.Open(ctx, sqldb.Config{
			Driver: "sqlite",
			DSN:    fmt.Sprintf("file:sessionmemdb%d?mode=memory&cache=shared", memdbSeq.Add(1)),
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		s, err := NewSQLStore(ctx, db)
		require.NoError(t, err)
		s.now = tickingClock()
		fn(t, s)
	})
}

func TestCreateAndGetConversation(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c, err := s.CreateConversation(ctx, "user-1")
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "user-1", c.OwnerID)
		assert.Empty(t, c.ActiveAgent)

		got, err := s.GetConversation(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c, got)

		_, err = s.GetConversation(ctx, "missing")
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func TestSaveMessage_TracksActiveAgent(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c, err := s.CreateConversation(ctx, "user-1")
		require.NoError(t, err)

		_, err = s.SaveMessage(ctx, c.ID, core.RoleUser, "where is ORD-123?", "")
		require.NoError(t, err)
		_, err = s.SaveMessage(ctx, c.ID, core.RoleAssistant, "It shipped.", "order")
		require.NoError(t, err)

		got, err := s.GetConversation(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "order", got.ActiveAgent)

		_, err = s.SaveMessage(ctx, c.ID, core.RoleAssistant, "Refund issued.", "billing")
		require.NoError(t, err)
		got, err = s.GetConversation(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "billing", got.ActiveAgent)

		msgs, err := s.Messages(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, core.RoleUser, msgs[0].Role)
		assert.Equal(t, "It shipped.", msgs[1].Content)
		assert.Equal(t, "order", msgs[1].AgentTag)
		assert.Equal(t, "billing", msgs[2].AgentTag)

		_, err = s.SaveMessage(ctx, "missing", core.RoleUser, "hi", "")
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func TestListConversations_NewestFirst(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		first, err := s.CreateConversation(ctx, "user-1")
		require.NoError(t, err)
		second, err := s.CreateConversation(ctx, "user-1")
		require.NoError(t, err)
		_, err = s.CreateConversation(ctx, "user-2")
		require.NoError(t, err)

		list, err := s.ListConversations(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, first.ID, list[1].ID)

		list, err = s.ListConversations(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})
}

func TestDeleteConversation(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c, err := s.CreateConversation(ctx, "user-1")
		require.NoError(t, err)
		_, err = s.SaveMessage(ctx, c.ID, core.RoleUser, "hello", "")
		require.NoError(t, err)

		require.NoError(t, s.DeleteConversation(ctx, c.ID))

		_, err = s.GetConversation(ctx, c.ID)
		assert.ErrorIs(t, err, ErrConversationNotFound)
		_, err = s.Messages(ctx, c.ID)
		assert.ErrorIs(t, err, ErrConversationNotFound)

		assert.ErrorIs(t, s.DeleteConversation(ctx, c.ID), ErrConversationNotFound)
	})
}

func TestTranscript(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c, err := s.CreateConversation(ctx, "user-1")
	require.NoError(t, err)
	_, _ = s.SaveMessage(ctx, c.ID, core.RoleUser, "hi", "")
	_, _ = s.SaveMessage(ctx, c.ID, core.RoleAssistant, "hello", "support")

	tr, err := Transcript(ctx, s, c.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Transcript{
		{Role: core.RoleUser, Content: "hi"},
		{Role: core.RoleAssistant, Content: "hello"},
	}, tr)
}

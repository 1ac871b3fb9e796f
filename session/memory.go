package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentdesk/core"
)

// MemoryStore is a volatile Store keeping conversations in process local
// maps. It is safe for concurrent access and best suited for tests or
// ephemeral demo servers. Returned values are copies.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]core.Conversation
	messages      map[string][]core.StoredMessage
	now           func() time.Time
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]core.Conversation),
		messages:      make(map[string][]core.StoredMessage),
		now:           time.Now,
	}
}

// CreateConversation starts a new conversation.
func (s *MemoryStore) CreateConversation(_ context.Context, ownerID string) (core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := core.Conversation{ID: core.NewID(), OwnerID: ownerID, CreatedAt: s.now().UTC()}
	s.conversations[c.ID] = c
	return c, nil
}

// GetConversation returns a conversation by id.
func (s *MemoryStore) GetConversation(_ context.Context, id string) (core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return core.Conversation{}, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return c, nil
}

// ListConversations returns the owner's conversations, newest first.
func (s *MemoryStore) ListConversations(_ context.Context, ownerID string) ([]core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Conversation{}
	for _, c := range s.conversations {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// SaveMessage appends a message to an existing conversation.
func (s *MemoryStore) SaveMessage(_ context.Context, conversationID string, role core.Role, content, agentTag string) (core.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return core.StoredMessage{}, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	m := core.StoredMessage{
		ID:             core.NewID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		AgentTag:       agentTag,
		CreatedAt:      s.now().UTC(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	if tracksAgent(role, agentTag) {
		c.ActiveAgent = agentTag
		s.conversations[conversationID] = c
	}
	return m, nil
}

// Messages returns the conversation's messages in insertion order.
func (s *MemoryStore) Messages(_ context.Context, conversationID string) ([]core.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	return append([]core.StoredMessage{}, s.messages[conversationID]...), nil
}

// DeleteConversation removes the messages, then the conversation.
func (s *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	delete(s.messages, id)
	delete(s.conversations, id)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

package session

import (
	"context"
	"errors"

	"github.com/hupe1980/agentdesk/core"
)

// ErrConversationNotFound is returned for unknown conversation ids.
var ErrConversationNotFound = errors.New("conversation not found")

// Store persists conversations and their messages. Implementations must be
// safe for concurrent use.
type Store interface {
	// CreateConversation starts a new conversation owned by ownerID.
	CreateConversation(ctx context.Context, ownerID string) (core.Conversation, error)

	// GetConversation returns a conversation by id.
	GetConversation(ctx context.Context, id string) (core.Conversation, error)

	// ListConversations returns the owner's conversations, newest first.
	ListConversations(ctx context.Context, ownerID string) ([]core.Conversation, error)

	// SaveMessage appends a message. A non-empty agentTag on an assistant
	// message also becomes the conversation's ActiveAgent.
	SaveMessage(ctx context.Context, conversationID string, role core.Role, content, agentTag string) (core.StoredMessage, error)

	// Messages returns the conversation's messages in insertion order.
	Messages(ctx context.Context, conversationID string) ([]core.StoredMessage, error)

	// DeleteConversation removes a conversation and all of its messages.
	DeleteConversation(ctx context.Context, id string) error

	Close() error
}

// Transcript loads the stored messages of a conversation as a transcript.
func Transcript(ctx context.Context, s Store, conversationID string) (core.Transcript, error) {
	msgs, err := s.Messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := make(core.Transcript, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToMessage())
	}
	return out, nil
}

func tracksAgent(role core.Role, agentTag string) bool {
	return role == core.RoleAssistant && agentTag != ""
}

package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/internal/sqldb"
)

// SQLStore is a Store backed by SQLite or MySQL.
type SQLStore struct {
	db  *sqldb.DB
	now func() time.Time
}

// Compile-time interface check
var _ Store = (*SQLStore)(nil)

// NewSQLStore creates the schema if needed and returns the store. The handle
// stays owned by the caller.
func NewSQLStore(ctx context.Context, db *sqldb.DB) (*SQLStore, error) {
	if err := db.Migrate(ctx, Tables(db.Dialect)...); err != nil {
		return nil, fmt.Errorf("failed to initialize conversation schema: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

// Tables returns the conversation tables for the dialect.
func Tables(d sqldb.Dialect) []sqldb.Table {
	key, text := d.KeyType(), d.TextType()
	return []sqldb.Table{
		{
			Name: "conversations",
			Columns: []string{
				"id " + key + " PRIMARY KEY",
				"user_id " + key + " NOT NULL",
				"active_agent " + key,
				"created_at BIGINT NOT NULL",
			},
			Indexes: []sqldb.Index{{Name: "idx_conversations_user", Columns: []string{"user_id", "created_at"}}},
		},
		{
			Name: "messages",
			Columns: []string{
				"id " + key + " PRIMARY KEY",
				"conversation_id " + key + " NOT NULL",
				"position BIGINT NOT NULL",
				"role " + key + " NOT NULL",
				"content " + text + " NOT NULL",
				"agent_id " + key,
				"created_at BIGINT NOT NULL",
			},
			Indexes: []sqldb.Index{{Name: "idx_messages_conversation", Columns: []string{"conversation_id", "position"}}},
		},
	}
}

const conversationColumns = "id, user_id, active_agent, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (core.Conversation, error) {
	var (
		c       core.Conversation
		agent   sql.NullString
		created int64
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &agent, &created); err != nil {
		return core.Conversation{}, err
	}
	c.ActiveAgent = agent.String
	c.CreatedAt = time.UnixMilli(created).UTC()
	return c, nil
}

// CreateConversation starts a new conversation.
func (s *SQLStore) CreateConversation(ctx context.Context, ownerID string) (core.Conversation, error) {
	c := core.Conversation{ID: core.NewID(), OwnerID: ownerID, CreatedAt: s.stamp()}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations ("+conversationColumns+") VALUES (?, ?, ?, ?)",
		c.ID, c.OwnerID, nil, c.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return core.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return c, nil
}

// GetConversation returns a conversation by id.
func (s *SQLStore) GetConversation(ctx context.Context, id string) (core.Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Conversation{}, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if err != nil {
		return core.Conversation{}, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns the owner's conversations, newest first.
func (s *SQLStore) ListConversations(ctx context.Context, ownerID string) ([]core.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	out := []core.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveMessage appends a message and updates the active agent in one
// transaction.
func (s *SQLStore) SaveMessage(ctx context.Context, conversationID string, role core.Role, content, agentTag string) (core.StoredMessage, error) {
	m := core.StoredMessage{
		ID:             core.NewID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		AgentTag:       agentTag,
		CreatedAt:      s.stamp(),
	}

	err := s.db.Tx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations WHERE id = ?", conversationID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check conversation: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}

		var position int64
		err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(position), 0) + 1 FROM messages WHERE conversation_id = ?", conversationID).Scan(&position)
		if err != nil {
			return fmt.Errorf("failed to allocate message position: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO messages (id, conversation_id, position, role, content, agent_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			m.ID, m.ConversationID, position, string(m.Role), m.Content, nullString(m.AgentTag), m.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		if tracksAgent(role, agentTag) {
			if _, err := tx.ExecContext(ctx, "UPDATE conversations SET active_agent = ? WHERE id = ?", agentTag, conversationID); err != nil {
				return fmt.Errorf("failed to update active agent: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return core.StoredMessage{}, err
	}
	return m, nil
}

// Messages returns the conversation's messages in insertion order.
func (s *SQLStore) Messages(ctx context.Context, conversationID string) ([]core.StoredMessage, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, role, content, agent_id, created_at FROM messages WHERE conversation_id = ? ORDER BY position ASC",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	out := []core.StoredMessage{}
	for rows.Next() {
		var (
			m       core.StoredMessage
			role    string
			agent   sql.NullString
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &agent, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = core.Role(role)
		m.AgentTag = agent.String
		m.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteConversation removes the messages, then the conversation.
func (s *SQLStore) DeleteConversation(ctx context.Context, id string) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
		}
		return nil
	})
}

// Close is a no-op; the database handle belongs to the caller.
func (s *SQLStore) Close() error { return nil }

// stamp truncates to millisecond precision so values round-trip unchanged.
func (s *SQLStore) stamp() time.Time {
	return time.UnixMilli(s.now().UnixMilli()).UTC()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

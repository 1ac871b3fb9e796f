// Package events publishes an audit record for every completed chat turn.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hupe1980/agentdesk/logging"
)

// TurnCompleted describes one finished turn.
type TurnCompleted struct {
	ConversationID string    `json:"conversationId"`
	OwnerID        string    `json:"userId"`
	Agent          string    `json:"agent"`
	Intent         string    `json:"intent"`
	OrderID        string    `json:"orderId,omitempty"`
	Steps          int       `json:"steps"`
	ToolCalls      int       `json:"toolCalls"`
	Forced         bool      `json:"forced"`
	Degraded       bool      `json:"degraded"`
	Empty          bool      `json:"empty"`
	DurationMS     int64     `json:"durationMs"`
	CompletedAt    time.Time `json:"completedAt"`
}

// Publisher delivers turn events.
type Publisher interface {
	Publish(ctx context.Context, ev TurnCompleted) error
	Close() error
}

// LogPublisher writes events to a logger.
type LogPublisher struct {
	logger logging.Logger
}

// NewLogPublisher creates a LogPublisher. A nil logger discards events.
func NewLogPublisher(logger logging.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event at info level.
func (p *LogPublisher) Publish(_ context.Context, ev TurnCompleted) error {
	p.logger.Info("events.turn.completed",
		"conversation_id", ev.ConversationID,
		"agent", ev.Agent,
		"intent", ev.Intent,
		"steps", ev.Steps,
		"tool_calls", ev.ToolCalls,
		"forced", ev.Forced,
		"degraded", ev.Degraded,
		"duration_ms", ev.DurationMS,
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }

func encode(ev TurnCompleted) ([]byte, error) { return json.Marshal(ev) }

package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a transcript message.
type Role string

const (
	// RoleSystem carries instructions.
	RoleSystem Role = "system"
	// RoleUser carries end user input.
	RoleUser Role = "user"
	// RoleAssistant carries model output, optionally with tool call requests.
	RoleAssistant Role = "assistant"
	// RoleTool carries a synthetic tool result tagged with the originating call id.
	RoleTool Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall is a tool invocation requested by the model. Arguments are kept raw
// because providers (and models) disagree on their shape: an object, a JSON
// encoded string, or nothing at all.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one ordered entry of a Transcript.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// NewUserMessage builds a user authored message.
func NewUserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// NewAssistantMessage builds an assistant message, optionally carrying tool calls.
func NewAssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// HasToolCalls reports whether the message requests at least one tool execution.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Transcript is the ordered message history threaded through a turn.
type Transcript []Message

// Clone returns a deep copy so a turn can append freely without touching the
// caller's history.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	for i, m := range t {
		cp := m
		if len(m.ToolCalls) > 0 {
			cp.ToolCalls = make([]ToolCall, len(m.ToolCalls))
			for j, tc := range m.ToolCalls {
				cp.ToolCalls[j] = tc
				if tc.Arguments != nil {
					cp.ToolCalls[j].Arguments = append(json.RawMessage(nil), tc.Arguments...)
				}
			}
		}
		out[i] = cp
	}
	return out
}

// Append returns the transcript with msgs added at the end.
func (t Transcript) Append(msgs ...Message) Transcript { return append(t, msgs...) }

// LastUserText returns the content of the most recent user message.
func (t Transcript) LastUserText() (string, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == RoleUser {
			return t[i].Content, true
		}
	}
	return "", false
}

// ToolResult is the outcome of executing one ToolCall. Payload is what the
// model sees; when Err is set Payload holds the model facing error object.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Payload any    `json:"payload"`
	Err     error  `json:"-"`
}

// Failed reports whether the tool returned a typed error payload.
func (r ToolResult) Failed() bool { return r.Err != nil }

// JSON renders the payload for transcripts. Encoding failures degrade to a
// quoted error object so a result always produces a message.
func (r ToolResult) JSON() string {
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, "unencodable tool result: "+err.Error())
	}
	return string(b)
}

// Message renders the synthetic transcript entry appended after execution.
func (r ToolResult) Message() Message {
	return Message{Role: RoleTool, Content: r.JSON(), ToolCallID: r.CallID, Name: r.Name}
}

// Conversation is a persisted chat thread owned by one user.
type Conversation struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"userId"`
	ActiveAgent string    `json:"activeAgent,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StoredMessage is a persisted transcript entry. AgentTag names the profile
// that produced an assistant message.
type StoredMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	AgentTag       string    `json:"agentId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ToMessage converts the stored record back into a transcript message.
func (m StoredMessage) ToMessage() Message { return Message{Role: m.Role, Content: m.Content} }

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }

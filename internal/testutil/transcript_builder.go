package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentdesk/core"
)

// TranscriptBuilder provides a fluent helper for constructing transcripts in tests.
// Example:
//
//	tr := NewTranscriptBuilder().User("where is ORD-123?").Call("getOrderDetails", `{}`).Build()
//
// Tool call ids are generated deterministically ("call-1", "call-2", ...).
type TranscriptBuilder struct {
	msgs  core.Transcript
	calls int
}

// NewTranscriptBuilder creates an empty builder.
func NewTranscriptBuilder() *TranscriptBuilder { return &TranscriptBuilder{} }

// User appends a user message (chainable).
func (b *TranscriptBuilder) User(text string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.NewUserMessage(text))
	return b
}

// Assistant appends a plain assistant message (chainable).
func (b *TranscriptBuilder) Assistant(text string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.NewAssistantMessage(text))
	return b
}

// Call appends an assistant message requesting a single tool (chainable).
func (b *TranscriptBuilder) Call(name, args string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.NewAssistantMessage("", ToolCall(b.nextID(), name, args)))
	return b
}

// Result appends a tool result for the most recent call id (chainable).
func (b *TranscriptBuilder) Result(name string, payload any) *TranscriptBuilder {
	r := core.ToolResult{CallID: fmt.Sprintf("call-%d", b.calls), Name: name, Payload: payload}
	b.msgs = append(b.msgs, r.Message())
	return b
}

// Build returns a copy of the transcript.
func (b *TranscriptBuilder) Build() core.Transcript { return b.msgs.Clone() }

func (b *TranscriptBuilder) nextID() string {
	b.calls++
	return fmt.Sprintf("call-%d", b.calls)
}

// ToolCall builds a core.ToolCall with raw arguments. An empty args string
// produces a call with no arguments at all.
func ToolCall(id, name, args string) core.ToolCall {
	tc := core.ToolCall{ID: id, Name: name}
	if args != "" {
		tc.Arguments = json.RawMessage(args)
	}
	return tc
}

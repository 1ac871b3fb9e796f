package model

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/hupe1980/agentdesk/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input.
type Request struct {
	Instructions string           `json:"instructions"` // System prompt
	Messages     core.Transcript  `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. Partial chunks
// carry a text delta; the final chunk carries the full text and any tool calls.
type Response struct {
	ID           string          `json:"id"`
	Partial      bool            `json:"partial"`
	Text         string          `json:"text"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoResponse is returned when a model closes its stream without a final response.
var ErrNoResponse = errors.New("model returned no response")

// Complete performs a non-streaming generation and returns the final response.
func Complete(ctx context.Context, m Model, req Request) (Response, error) {
	req.Stream = false

	var (
		final Response
		got   bool
	)
	err := drain(ctx, m, req, func(resp Response) error {
		if !resp.Partial {
			final = resp
			got = true
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	if !got {
		return Response{}, ErrNoResponse
	}
	return final, nil
}

// Stream performs a streaming generation, forwarding each text delta to
// onChunk as it arrives, and returns the assembled text. Providers that only
// deliver a final chunk still produce one onChunk call.
func Stream(ctx context.Context, m Model, req Request, onChunk func(string) error) (string, error) {
	req.Stream = true

	var (
		sb       strings.Builder
		final    string
		sawDelta bool
	)
	err := drain(ctx, m, req, func(resp Response) error {
		if resp.Partial {
			if resp.Text == "" {
				return nil
			}
			sawDelta = true
			sb.WriteString(resp.Text)
			if onChunk != nil {
				return onChunk(resp.Text)
			}
			return nil
		}
		final = resp.Text
		return nil
	})
	if err != nil {
		return sb.String(), err
	}
	if sawDelta {
		return sb.String(), nil
	}
	if final != "" && onChunk != nil {
		if err := onChunk(final); err != nil {
			return final, err
		}
	}
	return final, nil
}

// drain reads a generation to the end. An error from the model is returned
// only after the chunks queued before it have been handed to fn. Returning
// early cancels the generation so the producer never blocks on a send.
func drain(ctx context.Context, m Model, req Request, fn func(Response) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	respCh, errCh := m.Generate(ctx, req)
	var genErr error
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if err := fn(resp); err != nil {
				return err
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil && genErr == nil {
				genErr = err
			}
		}
	}
	return genErr
}

// Send delivers resp unless ctx is done first. Adapters use it for every
// send so an abandoned generation releases its goroutine.
func Send(ctx context.Context, out chan<- Response, resp Response) bool {
	select {
	case out <- resp:
		return true
	case <-ctx.Done():
		return false
	}
}

// RawArguments converts provider supplied argument text into a raw message.
// Invalid JSON is preserved as a JSON string so the normalizer can report it.
func RawArguments(s string) json.RawMessage {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

package flow

import (
	"encoding/json"
	"slices"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/tool"
	"github.com/hupe1980/agentdesk/tool/commerce"
)

// SanitizerOptions configure a Sanitizer. Nil lists take the commerce
// defaults.
type SanitizerOptions struct {
	Logger logging.Logger

	// OrderIDTools receive the router's order id when called without a
	// usable value for any of IdentifierKeys.
	OrderIDTools []string

	// IdentifierKeys are the lookup keys checked for OrderIDTools.
	IdentifierKeys []string

	// OwnerScopedTools always receive userId = Turn.OwnerID.
	OwnerScopedTools []string

	// ConversationScopedTools always receive conversationId =
	// Turn.ConversationID.
	ConversationScopedTools []string
}

// Sanitizer repairs model issued tool calls before execution.
type Sanitizer struct {
	opts       SanitizerOptions
	normalizer *tool.Normalizer
}

// NewSanitizer creates a Sanitizer.
func NewSanitizer(optFns ...func(o *SanitizerOptions)) *Sanitizer {
	opts := SanitizerOptions{
		Logger:                  logging.NoOpLogger{},
		OrderIDTools:            commerce.OrderIDTools,
		IdentifierKeys:          commerce.IdentifierKeys,
		OwnerScopedTools:        commerce.OwnerScopedTools,
		ConversationScopedTools: commerce.ConversationScopedTools,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Sanitizer{opts: opts, normalizer: tool.NewNormalizer(opts.Logger)}
}

type sanitizedCall struct {
	Call core.ToolCall
	Args tool.Args
	// Err is the normalization failure; Call then keeps its raw arguments.
	Err error
}

// Sanitize normalizes the call's arguments and applies the session rules:
//
//   - OrderIDTools without a usable identifier (absent, blank, null or
//     "MISSING") get {"orderId": <router order id>} when the router
//     extracted one, otherwise {"orderId": "MISSING"}
//   - other tools called with empty arguments get {"orderId": "MISSING"}
//   - owner scoped tools get userId set to the session owner, overriding
//     whatever the model supplied
//   - conversation scoped tools get the current conversation id
//
// The returned call carries the canonical arguments and a non-empty id.
func (s *Sanitizer) Sanitize(call core.ToolCall, turn Turn) sanitizedCall {
	if call.ID == "" {
		call.ID = "call_" + core.NewID()
	}

	args, err := s.normalizer.Normalize(call.Arguments)
	if err != nil {
		s.opts.Logger.Warn("flow.sanitize.invalid_arguments", "tool", call.Name, "fc_id", call.ID, "error", err.Error())
		return sanitizedCall{Call: call, Err: err}
	}

	lookup := slices.Contains(s.opts.OrderIDTools, call.Name)
	if (lookup && !s.hasIdentifier(args)) || (!lookup && args.Empty()) {
		orderID, ok := turn.Intent.OrderID()
		if ok && lookup {
			s.opts.Logger.Debug("flow.sanitize.inject_order_id", "tool", call.Name, "order_id", orderID)
		} else {
			orderID = tool.MissingSentinel
			s.opts.Logger.Debug("flow.sanitize.inject_missing", "tool", call.Name)
		}
		args = args.With(tool.KeyOrderID, orderID)
	}

	if slices.Contains(s.opts.OwnerScopedTools, call.Name) {
		args = args.With(commerce.KeyUserID, turn.OwnerID)
	}
	if slices.Contains(s.opts.ConversationScopedTools, call.Name) {
		args = args.With(commerce.KeyConversationID, turn.ConversationID)
	}

	if b, err := json.Marshal(args); err == nil {
		call.Arguments = b
	}
	return sanitizedCall{Call: call, Args: args}
}

func (s *Sanitizer) hasIdentifier(args tool.Args) bool {
	for _, key := range s.opts.IdentifierKeys {
		if _, ok := args.Identifier(key); ok {
			return true
		}
	}
	return false
}

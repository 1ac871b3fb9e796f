package commerce

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/session"
	"github.com/hupe1980/agentdesk/store"
	"github.com/hupe1980/agentdesk/tool"
)

// Tool names.
const (
	GetOrderDetails     = "getOrderDetails"
	CheckDeliveryStatus = "checkDeliveryStatus"
	ListUserOrders      = "listUserOrders"
	ModifyOrder         = "modifyOrder"
	GetPaymentDetails   = "getPaymentDetails"
	CheckRefundStatus   = "checkRefundStatus"
	QueryHistory        = "queryHistory"
)

// Argument keys filled in from session context rather than by the model.
const (
	KeyUserID         = "userId"
	KeyConversationID = "conversationId"
)

// OrderIDTools lists the tools that look an entity up by order id. When the
// model calls one of them without a usable identifier the router's order id
// is injected.
var OrderIDTools = []string{GetOrderDetails, CheckDeliveryStatus, GetPaymentDetails, CheckRefundStatus}

// IdentifierKeys are the argument keys any of the OrderIDTools accepts as a
// lookup key.
var IdentifierKeys = []string{tool.KeyOrderID, "transactionId", "paymentId", "refundId"}

// OwnerScopedTools always receive the session owner as userId.
var OwnerScopedTools = []string{ListUserOrders}

// ConversationScopedTools always receive the current conversation id.
var ConversationScopedTools = []string{QueryHistory}

// HistoryReader reads the stored messages of a conversation. session.Store
// satisfies it.
type HistoryReader interface {
	Messages(ctx context.Context, conversationID string) ([]core.StoredMessage, error)
}

var _ HistoryReader = (session.Store)(nil)

// OrderTools returns the registry of the order agent.
func OrderTools(orders store.OrderStore) *tool.Registry {
	return tool.MustRegistry(
		NewModifyOrder(orders),
		NewGetOrderDetails(orders),
		NewListUserOrders(orders),
		NewCheckDeliveryStatus(orders),
	)
}

// BillingTools returns the registry of the billing agent.
func BillingTools(payments store.PaymentStore) *tool.Registry {
	return tool.MustRegistry(
		NewGetPaymentDetails(payments),
		NewCheckRefundStatus(payments),
	)
}

// SupportTools returns the registry of the general support agent.
func SupportTools(history HistoryReader) *tool.Registry {
	return tool.MustRegistry(NewQueryHistory(history))
}

// Toolsets returns the registries keyed by the tool set names used in agent
// profiles: "order", "billing" and "support".
func Toolsets(orders store.OrderStore, payments store.PaymentStore, history HistoryReader) map[string]*tool.Registry {
	return map[string]*tool.Registry{
		"order":   OrderTools(orders),
		"billing": BillingTools(payments),
		"support": SupportTools(history),
	}
}

func readOnly(o *tool.FunctionOptions) { o.ReadOnly = true }

func missing(name, msg string) error {
	return tool.NewToolError(name, msg, tool.CodeMissingParameter)
}

func notFound(name, msg string) error {
	return tool.NewToolError(name, msg, tool.CodeNotFound)
}

// lookupError maps a store error to the payload the model sees.
func lookupError(name string, err error, notFoundMsg, unavailableMsg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(name, notFoundMsg)
	}
	return &tool.ToolError{Tool: name, Message: unavailableMsg, Code: tool.CodeUnavailable, Details: err.Error()}
}

func decode(name string, args tool.Args, v any) error {
	if err := args.Decode(v); err != nil {
		return tool.NewToolError(name, fmt.Sprintf("invalid arguments: %v", err), tool.CodeInvalidArguments)
	}
	return nil
}

// identifier trims v and maps the MISSING sentinel to "".
func identifier(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, tool.MissingSentinel) {
		return ""
	}
	return v
}

// firstIdentifier returns the first usable identifier with the key it came from.
func firstIdentifier(pairs ...string) (key, value string) {
	for i := 0; i+1 < len(pairs); i += 2 {
		if v := identifier(pairs[i+1]); v != "" {
			return pairs[i], v
		}
	}
	return "", ""
}

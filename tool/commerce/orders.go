package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/hupe1980/agentdesk/store"
	"github.com/hupe1980/agentdesk/tool"
)

const defaultListLimit = 5

type orderLookupArgs struct {
	OrderID string `json:"orderId,omitempty" description:"Order identifier, e.g. ORD-123"`
}

// NewGetOrderDetails returns the getOrderDetails tool.
func NewGetOrderDetails(orders store.OrderStore) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		GetOrderDetails,
		"Retrieve details of a PREVIOUSLY PLACED order by order ID. Do NOT use for new orders.",
		orderLookupArgs{},
		func(ctx context.Context, args tool.Args) (any, error) {
			var in orderLookupArgs
			if err := decode(GetOrderDetails, args, &in); err != nil {
				return nil, err
			}
			id := identifier(in.OrderID)
			if id == "" {
				return nil, missing(GetOrderDetails, "Missing orderId. Please provide a valid Order ID.")
			}
			o, err := orders.FindOrder(ctx, id)
			if err != nil {
				return nil, lookupError(GetOrderDetails, err, "Order not found", "Failed to fetch order details")
			}
			return o, nil
		},
		readOnly,
	)
}

// NewCheckDeliveryStatus returns the checkDeliveryStatus tool.
func NewCheckDeliveryStatus(orders store.OrderStore) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		CheckDeliveryStatus,
		"Check delivery status of an order",
		orderLookupArgs{},
		func(ctx context.Context, args tool.Args) (any, error) {
			var in orderLookupArgs
			if err := decode(CheckDeliveryStatus, args, &in); err != nil {
				return nil, err
			}
			id := identifier(in.OrderID)
			if id == "" {
				return nil, missing(CheckDeliveryStatus, "Missing orderId. Please provide a valid Order ID.")
			}
			o, err := orders.FindOrder(ctx, id)
			if err != nil {
				return nil, lookupError(CheckDeliveryStatus, err, "Order not found", "Failed to fetch delivery status")
			}
			return map[string]any{
				"orderId": o.ID,
				"status":  o.Status,
				"details": o.Details,
			}, nil
		},
		readOnly,
	)
}

type listOrdersArgs struct {
	UserID string `json:"userId,omitempty" description:"Filled in automatically with the current user"`
	Limit  int    `json:"limit,omitempty" description:"Maximum number of orders to return (default 5)"`
}

// NewListUserOrders returns the listUserOrders tool.
func NewListUserOrders(orders store.OrderStore) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		ListUserOrders,
		`List recent orders for the current user. Use this when the user asks about "my orders" or "latest order" without providing an ID.`,
		listOrdersArgs{},
		func(ctx context.Context, args tool.Args) (any, error) {
			var in listOrdersArgs
			if err := decode(ListUserOrders, args, &in); err != nil {
				return nil, err
			}
			owner := identifier(in.UserID)
			if owner == "" {
				return nil, missing(ListUserOrders, "User ID is missing. Cannot fetch orders.")
			}
			limit := in.Limit
			if limit <= 0 {
				limit = defaultListLimit
			}
			list, err := orders.ListOrdersByOwner(ctx, owner, limit)
			if err != nil {
				return nil, lookupError(ListUserOrders, err, "No orders found for this user.", "Failed to fetch user orders.")
			}
			if len(list) == 0 {
				return map[string]any{"message": "No orders found for this user."}, nil
			}
			return list, nil
		},
		readOnly,
	)
}

// modifyOrderArgs documents the common fields; any other key is merged into
// the order details as well. Detail fields are free-form and accept any JSON
// value.
type modifyOrderArgs struct {
	OrderID  string `json:"orderId,omitempty" description:"Order identifier, e.g. ORD-123"`
	Status   string `json:"status,omitempty" description:"New order status"`
	Priority any    `json:"priority,omitempty" description:"Handling priority"`
	Notes    any    `json:"notes,omitempty" description:"Delivery or handling notes"`
	Address  any    `json:"shippingAddress,omitempty" description:"New shipping address"`
}

// NewModifyOrder returns the modifyOrder tool. It reads the order first,
// drops patch fields that already hold the requested value and only writes
// when something actually changes, so repeating a request is harmless.
func NewModifyOrder(orders store.OrderStore) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		ModifyOrder,
		"Modify an order: change its status or update details such as priority, notes or shipping address. Pass orderId plus only the fields to change.",
		modifyOrderArgs{},
		func(ctx context.Context, args tool.Args) (any, error) {
			id, ok := args.Identifier(tool.KeyOrderID)
			if !ok {
				return nil, missing(ModifyOrder, "Error: orderId is required.")
			}

			current, err := orders.FindOrder(ctx, id)
			if err != nil {
				return nil, lookupError(ModifyOrder, err, fmt.Sprintf("Order %s not found. Cannot modify.", id), "Failed to modify order due to a technical error.")
			}

			patch := effectivePatch(current, args.Patch())
			if patch.Empty() {
				return map[string]any{
					"orderId": id,
					"changed": false,
					"message": fmt.Sprintf("No changes detected for order %s.", id),
				}, nil
			}

			updated, err := orders.UpdateOrder(ctx, id, store.OrderPatch{Status: patch.Status, Details: patch.Details})
			if err != nil {
				return nil, lookupError(ModifyOrder, err, fmt.Sprintf("Order %s not found. Cannot modify.", id), "Failed to modify order due to a technical error.")
			}

			applied := patch.Applied()
			details, _ := json.Marshal(patch.Details)
			if patch.Details == nil {
				details = []byte("{}")
			}
			return map[string]any{
				"orderId": id,
				"status":  updated.Status,
				"changed": true,
				"applied": applied,
				"message": fmt.Sprintf("Order %s modified successfully. New status: %s. Updated details: %s", id, updated.Status, details),
			}, nil
		},
	)
}

// effectivePatch removes fields whose requested value equals the stored one.
func effectivePatch(current store.Order, p tool.Patch) tool.Patch {
	var out tool.Patch
	if p.Status != nil && *p.Status != current.Status {
		out.Status = p.Status
	}
	for k, v := range p.Details {
		if old, ok := current.Details[k]; ok && sameValue(old, v) {
			continue
		}
		if out.Details == nil {
			out.Details = map[string]any{}
		}
		out.Details[k] = v
	}
	return out
}

// sameValue compares through JSON so 2 and 2.0 are equal.
func sameValue(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	var va, vb any
	if json.Unmarshal(ja, &va) != nil || json.Unmarshal(jb, &vb) != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

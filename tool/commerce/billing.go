package commerce

import (
	"context"

	"github.com/hupe1980/agentdesk/store"
	"github.com/hupe1980/agentdesk/tool"
)

type paymentLookupArgs struct {
	TransactionID string `json:"transactionId,omitempty" description:"Payment (transaction) identifier, e.g. PAY-123"`
	PaymentID     string `json:"paymentId,omitempty" description:"Alias for transactionId"`
	OrderID       string `json:"orderId,omitempty" description:"Order identifier, e.g. ORD-123"`
}

// NewGetPaymentDetails returns the getPaymentDetails tool. Keys are tried in
// the order transactionId, paymentId, orderId.
func NewGetPaymentDetails(payments store.PaymentStore) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		GetPaymentDetails,
		"Get payment/invoice details. Provide EITHER transactionId (Payment ID) OR orderId.",
		paymentLookupArgs{},
		func(ctx context.Context, args tool.Args) (any, error) {
			var in paymentLookupArgs
			if err := decode(GetPaymentDetails, args, &in); err != nil {
				return nil, err
			}

			var (
				p   store.Payment
				err error
			)
			switch key, id := firstIdentifier("transactionId", in.TransactionID, "paymentId", in.PaymentID, "orderId", in.OrderID); key {
			case "transactionId", "paymentId":
				p, err = payments.FindPayment(ctx, id)
			case "orderId":
				p, err = payments.FindPaymentByOrder(ctx, id)
			default:
				return nil, missing(GetPaymentDetails, "Please provide either transactionId (or paymentId) or orderId.")
			}
			if err != nil {
				return nil, lookupError(GetPaymentDetails, err, "Payment details not found.", "Failed to fetch payment details")
			}
			return p, nil
		},
		readOnly,
	)
}

type refundLookupArgs struct {
	RefundID      string `json:"refundId,omitempty" description:"Refund identifier, e.g. REF-789"`
	PaymentID     string `json:"paymentId,omitempty" description:"Payment identifier, e.g. PAY-789"`
	TransactionID string `json:"transactionId,omitempty" description:"Alias for paymentId"`
	OrderID       string `json:"orderId,omitempty" description:"Order identifier, e.g. ORD-789"`
}

// NewCheckRefundStatus returns the checkRefundStatus tool. Keys are tried in
// the order refundId, paymentId, orderId.
func NewCheckRefundStatus(payments store.PaymentStore) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		CheckRefundStatus,
		"Check refund status. Provide EITHER refundId OR orderId OR paymentId.",
		refundLookupArgs{},
		func(ctx context.Context, args tool.Args) (any, error) {
			var in refundLookupArgs
			if err := decode(CheckRefundStatus, args, &in); err != nil {
				return nil, err
			}

			var (
				p   store.Payment
				err error
			)
			switch key, id := firstIdentifier("refundId", in.RefundID, "paymentId", in.PaymentID, "transactionId", in.TransactionID, "orderId", in.OrderID); key {
			case "refundId":
				p, err = payments.FindPaymentByRefund(ctx, id)
			case "paymentId", "transactionId":
				p, err = payments.FindPayment(ctx, id)
			case "orderId":
				p, err = payments.FindPaymentByOrder(ctx, id)
			default:
				return nil, missing(CheckRefundStatus, "Please provide refundId, paymentId, or orderId.")
			}
			if err != nil {
				return nil, lookupError(CheckRefundStatus, err, "Refund record not found.", "Failed to check refund status.")
			}

			if !p.Refunded() {
				return map[string]any{
					"status":        "No refund found for this transaction.",
					"paymentStatus": p.Status,
				}, nil
			}
			return map[string]any{
				"status":            "Refunded",
				"refundId":          p.RefundID,
				"refundAmount":      p.RefundAmount,
				"reason":            p.RefundReason,
				"originalPaymentId": p.ID,
			}, nil
		},
		readOnly,
	)
}

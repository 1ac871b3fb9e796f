// Package router classifies a user utterance into an intent and extracts the
// order identifier it refers to, using one non-streaming model call.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/model"
)

// Instructions is the system prompt of the classification call.
const Instructions = `You are a Router Agent. Your job is to classify the user's intent and extract any relevant Order IDs.

INTENTS:
- 'order': User wants to check status, modify an order, list orders, or asks about a specific order item.
- 'billing': User asks about invoices, payments, refunds, or pricing details of a SPECIFIC transaction/order.
- 'support': User asks about return policies, general FAQs, or contact info.
- 'general': Greetings, or queries not related to orders/billing.

EXTRACTION:
- Extract 'orderId' if present in the user query OR conversation history.
- Format: Look for patterns like "ORD-..." or just IDs mentioned in context.

OUTPUT JSON: { intent: "...", parameters: { "orderId": "..." } }

CRITICAL INSTRUCTION: You MUST respond with ONLY a valid JSON object. Do not use markdown code blocks. Do not add explanations.`

var (
	// ErrNoJSON is returned by Parse when the text holds no JSON object.
	ErrNoJSON = errors.New("no json object in classification")

	thinkRE   = regexp.MustCompile(`(?s)<think>.*?</think>`)
	orderIDRE = regexp.MustCompile(`\bORD-[A-Za-z0-9]+\b`)
)

// Options configure a Router.
type Options struct {
	Logger logging.Logger

	// OrderIDFallback extracts an ORD-... identifier from the utterance or
	// history when the model returned none.
	OrderIDFallback bool

	// HistoryMessages caps how many recent history messages are sent.
	HistoryMessages int
}

// Router is stateless and safe for concurrent use.
type Router struct {
	model  model.Model
	opts   Options
	tracer trace.Tracer
}

// New creates a Router on top of a completion model.
func New(m model.Model, optFns ...func(o *Options)) *Router {
	opts := Options{
		Logger:          logging.NoOpLogger{},
		OrderIDFallback: true,
		HistoryMessages: 10,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Router{model: m, opts: opts, tracer: otel.Tracer("github.com/hupe1980/agentdesk/router")}
}

// Classify returns the intent of utterance. It never fails: any model or
// parsing problem yields the general intent with no parameters.
func (r *Router) Classify(ctx context.Context, utterance string, history core.Transcript) core.Intent {
	ctx, span := r.tracer.Start(ctx, "router.classify")
	defer span.End()

	req := model.Request{
		Instructions: Instructions,
		Messages:     append(r.conversation(history), core.NewUserMessage(utterance)),
	}

	resp, err := model.Complete(ctx, r.model, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification call failed")
		r.opts.Logger.Warn("router.classify.fallback", "reason", "model_error", "error", err.Error())
		return core.GeneralIntent()
	}
	r.opts.Logger.Debug("router.classify.raw", "text", resp.Text)

	intent, err := Parse(resp.Text)
	if err != nil {
		span.RecordError(err)
		r.opts.Logger.Warn("router.classify.fallback", "reason", "parse_error", "error", err.Error())
		return core.GeneralIntent()
	}

	if _, ok := intent.OrderID(); !ok && r.opts.OrderIDFallback {
		if id := findOrderID(utterance, history); id != "" {
			intent.Parameters["orderId"] = id
			r.opts.Logger.Debug("router.classify.order_id_fallback", "order_id", id)
		}
	}

	orderID, _ := intent.OrderID()
	span.SetAttributes(
		attribute.String("intent", string(intent.Kind)),
		attribute.String("order_id", orderID),
	)
	r.opts.Logger.Info("router.classify.done", "intent", intent.Kind, "order_id", orderID)

	return intent
}

// conversation keeps the plain user/assistant text of the most recent history.
func (r *Router) conversation(history core.Transcript) core.Transcript {
	out := make(core.Transcript, 0, len(history)+1)
	for _, m := range history {
		if (m.Role == core.RoleUser || m.Role == core.RoleAssistant) && strings.TrimSpace(m.Content) != "" {
			out = append(out, core.Message{Role: m.Role, Content: m.Content})
		}
	}
	if n := r.opts.HistoryMessages; n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

type classification struct {
	Intent     any            `json:"intent"`
	Parameters map[string]any `json:"parameters"`
}

// Parse extracts the classification from raw model text. Reasoning traces
// in <think> tags and markdown fences are tolerated; a missing or unknown
// intent is general.
func Parse(text string) (core.Intent, error) {
	clean := strings.TrimSpace(thinkRE.ReplaceAllString(text, ""))

	first, last := strings.Index(clean, "{"), strings.LastIndex(clean, "}")
	if first != -1 && last > first {
		clean = clean[first : last+1]
	} else {
		clean = strings.TrimSpace(strings.NewReplacer("```json", "", "```", "").Replace(clean))
	}
	if clean == "" {
		return core.Intent{}, ErrNoJSON
	}

	var c classification
	if err := json.Unmarshal([]byte(clean), &c); err != nil {
		return core.Intent{}, fmt.Errorf("decode classification: %w", err)
	}

	intent := core.GeneralIntent()
	if s, ok := c.Intent.(string); ok {
		intent.Kind = core.ParseIntentKind(s)
	}
	for k, v := range c.Parameters {
		if s := paramString(v); s != "" {
			intent.Parameters[k] = s
		}
	}
	return intent, nil
}

func paramString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// findOrderID looks at the utterance first, then history from newest to oldest.
func findOrderID(utterance string, history core.Transcript) string {
	if id := orderIDRE.FindString(utterance); id != "" {
		return id
	}
	for i := len(history) - 1; i >= 0; i-- {
		if id := orderIDRE.FindString(history[i].Content); id != "" {
			return id
		}
	}
	return ""
}

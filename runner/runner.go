package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentdesk/agent"
	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/events"
	"github.com/hupe1980/agentdesk/flow"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/router"
	"github.com/hupe1980/agentdesk/session"
	"github.com/hupe1980/agentdesk/tool"
	"github.com/hupe1980/agentdesk/tool/commerce"
)

// ErrInvalidMessages is returned when a request carries no usable user
// message.
var ErrInvalidMessages = errors.New("invalid messages format")

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	Logger logging.Logger
	// Publisher receives a TurnCompleted event per finished turn.
	Publisher events.Publisher
	// MaxConcurrentTurns bounds simultaneously running turns; <= 0 means
	// unbounded.
	MaxConcurrentTurns int
	// Executor runs the eager context lookup.
	Executor *tool.Executor
}

// Runner composes router, selector and flow for chat requests. It is safe
// for concurrent use.
type Runner struct {
	conversations session.Store
	router        *router.Router
	selector      *agent.Selector
	flow          *flow.Flow

	logger    logging.Logger
	publisher events.Publisher
	executor  *tool.Executor
	slots     chan struct{}
	now       func() time.Time
}

// New constructs a Runner.
func New(conversations session.Store, r *router.Router, s *agent.Selector, f *flow.Flow, optFns ...func(o *Options)) *Runner {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NewLogPublisher(opts.Logger)
	}
	if opts.Executor == nil {
		logger := opts.Logger
		opts.Executor = tool.NewExecutor(func(o *tool.ExecutorOptions) { o.Logger = logger })
	}

	run := &Runner{
		conversations: conversations,
		router:        r,
		selector:      s,
		flow:          f,
		logger:        opts.Logger,
		publisher:     opts.Publisher,
		executor:      opts.Executor,
		now:           time.Now,
	}
	if opts.MaxConcurrentTurns > 0 {
		run.slots = make(chan struct{}, opts.MaxConcurrentTurns)
	}
	return run
}

// Request is one chat request.
type Request struct {
	// ConversationID continues an existing conversation; empty starts a new
	// one.
	ConversationID string
	OwnerID        string
	// Messages is the client side transcript; its last entry is the new
	// user message.
	Messages core.Transcript
}

// Chat is a bootstrapped turn, ready to run.
type Chat struct {
	runner         *Runner
	ConversationID string
	ownerID        string
	utterance      string
	transcript     core.Transcript
	started        time.Time
}

// Start validates the request, creates or loads the conversation and stores
// the user message.
func (r *Runner) Start(ctx context.Context, req Request) (*Chat, error) {
	transcript := clientTranscript(req.Messages)
	if len(transcript) == 0 {
		return nil, ErrInvalidMessages
	}
	last := transcript[len(transcript)-1]
	if last.Role != core.RoleUser || strings.TrimSpace(last.Content) == "" {
		return nil, ErrInvalidMessages
	}

	convID := req.ConversationID
	if convID == "" {
		conv, err := r.conversations.CreateConversation(ctx, req.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		convID = conv.ID
		r.logger.Info("runner.conversation.created", "conversation_id", convID, "owner_id", req.OwnerID)
	} else if _, err := r.conversations.GetConversation(ctx, convID); err != nil {
		return nil, err
	}

	if _, err := r.conversations.SaveMessage(ctx, convID, core.RoleUser, last.Content, ""); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	return &Chat{
		runner:         r,
		ConversationID: convID,
		ownerID:        req.OwnerID,
		utterance:      last.Content,
		transcript:     transcript,
		started:        r.now(),
	}, nil
}

// Run executes the turn, streaming answer fragments to onChunk. The final
// answer is stored even when the caller's context is cancelled mid stream.
func (c *Chat) Run(ctx context.Context, onChunk func(string) error) (flow.Outcome, error) {
	r := c.runner
	logger := logging.With(r.logger, "conversation_id", c.ConversationID)
	if err := r.acquire(ctx); err != nil {
		logger.Warn("runner.slot.cancelled", "error", err.Error())
		return c.fallback(ctx, onChunk, "")
	}
	defer r.release()

	intent := r.router.Classify(ctx, c.utterance, c.transcript[:len(c.transcript)-1])
	profile := r.selector.Select(intent)
	logger.Info("runner.profile.selected", "agent", profile.Name, "intent", intent.Kind)

	data := agent.PromptData{UserID: c.ownerID}
	data.OrderID, _ = intent.OrderID()
	if profile.EagerContext && data.OrderID != "" {
		data.Context = r.orderContext(ctx, profile, data.OrderID, logger)
	}

	instructions, err := profile.Render(ctx, data)
	if err != nil {
		logger.Error("runner.render.failed", "agent", profile.Name, "error", err.Error())
		return c.fallback(ctx, onChunk, profile.Name)
	}

	sink := c.sink(onChunk, profile.Name)

	out, err := r.flow.Run(ctx, flow.Turn{
		Transcript:     c.transcript,
		Instructions:   instructions,
		Tools:          profile.Tools,
		Intent:         intent,
		OwnerID:        c.ownerID,
		ConversationID: c.ConversationID,
	}, sink)
	if err != nil {
		logger.Error("runner.turn.failed", "agent", profile.Name, "error", err.Error())
		return out, err
	}

	ev := events.TurnCompleted{
		ConversationID: c.ConversationID,
		OwnerID:        c.ownerID,
		Agent:          profile.Name,
		Intent:         string(intent.Kind),
		OrderID:        data.OrderID,
		Steps:          out.Steps,
		ToolCalls:      out.ToolCalls,
		Forced:         out.Forced,
		Degraded:       out.Degraded,
		Empty:          out.Empty,
		DurationMS:     r.now().Sub(c.started).Milliseconds(),
		CompletedAt:    r.now().UTC(),
	}
	if err := r.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warn("runner.event.publish_failed", "error", err.Error())
	}
	return out, nil
}

func (c *Chat) sink(onChunk func(string) error, agentName string) flow.Sink {
	return flow.Sink{
		OnChunk: onChunk,
		OnFinish: func(ctx context.Context, text string) error {
			_, err := c.runner.conversations.SaveMessage(ctx, c.ConversationID, core.RoleAssistant, text, agentName)
			return err
		},
	}
}

// fallback answers a turn that could not reach the flow with the fallback
// message, so the conversation never ends on an unanswered user message.
func (c *Chat) fallback(ctx context.Context, onChunk func(string) error, agentName string) (flow.Outcome, error) {
	return c.runner.flow.Fallback(ctx, c.sink(onChunk, agentName))
}

// orderContext runs getOrderDetails from the profile's tool set and returns
// the JSON payload, or "" when the tool is unavailable.
func (r *Runner) orderContext(ctx context.Context, profile agent.Profile, orderID string, logger logging.Logger) string {
	if _, ok := profile.Tools.Get(commerce.GetOrderDetails); !ok {
		return ""
	}
	res := r.executor.ExecuteArgs(ctx, profile.Tools, core.ToolCall{ID: "eager-context", Name: commerce.GetOrderDetails},
		tool.NewArgs(map[string]any{tool.KeyOrderID: orderID}))
	if res.Failed() && tool.IsCode(res.Err, tool.CodeUnavailable) {
		logger.Warn("runner.context.unavailable", "order_id", orderID, "error", res.Err.Error())
		return ""
	}
	logger.Debug("runner.context.loaded", "order_id", orderID, "failed", res.Failed())
	return res.JSON()
}

func (r *Runner) acquire(ctx context.Context) error {
	if r.slots == nil {
		return nil
	}
	select {
	case r.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) release() {
	if r.slots != nil {
		<-r.slots
	}
}

// clientTranscript keeps the user and assistant text of a client supplied
// transcript.
func clientTranscript(msgs core.Transcript) core.Transcript {
	out := make(core.Transcript, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != core.RoleUser && m.Role != core.RoleAssistant {
			continue
		}
		out = append(out, core.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/model"
	"github.com/hupe1980/agentdesk/tool"
)

// Default messages used when no answer can be produced.
const (
	DefaultFallbackMessage       = "Sorry, the assistant is temporarily unavailable and could not process your request. Please try again in a moment."
	DefaultUnknownOutcomeMessage = "I wasn't able to produce a final answer for this request, so I can't confirm what happened. Please check the current status before trying again."
)

// State is a phase of the turn state machine.
type State int

const (
	StateDeciding State = iota
	StateToolDispatch
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateDeciding:
		return "deciding"
	case StateToolDispatch:
		return "tool_dispatch"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Turn is the input of one Run.
type Turn struct {
	// Transcript is the conversation so far, ending with the user message.
	// It is cloned; Run never mutates the caller's slice.
	Transcript     core.Transcript
	Instructions   string
	Tools          *tool.Registry
	Intent         core.Intent
	OwnerID        string
	ConversationID string
}

// Sink receives the final answer. OnChunk is called for every streamed
// fragment; OnFinish once with the full text. Either may be nil.
type Sink struct {
	OnChunk  func(chunk string) error
	OnFinish func(ctx context.Context, text string) error
}

func (s Sink) chunk(text string) error {
	if s.OnChunk == nil || text == "" {
		return nil
	}
	return s.OnChunk(text)
}

func (s Sink) finish(ctx context.Context, text string) error {
	if s.OnFinish == nil {
		return nil
	}
	return s.OnFinish(ctx, text)
}

// Outcome summarizes a finished turn.
type Outcome struct {
	Text      string
	Steps     int
	ToolCalls int
	// Forced is set when the step budget ended the tool loop.
	Forced bool
	// Degraded is set when a completion failed and the fallback was sent.
	Degraded bool
	// Empty is set when the model streamed no text.
	Empty bool
}

// ErrSink wraps errors returned by the Sink.
var ErrSink = errors.New("sink failed")

// Options configure a Flow.
type Options struct {
	Logger                logging.Logger
	MaxSteps              int
	FallbackMessage       string
	UnknownOutcomeMessage string
	Sanitizer             *Sanitizer
	Executor              *tool.Executor
	RequestProcessors     []RequestProcessor
}

// Flow executes turns. It holds no per-turn state and is safe for
// concurrent use.
type Flow struct {
	model  model.Model
	opts   Options
	tracer trace.Tracer
}

// New creates a Flow driving m.
func New(m model.Model, optFns ...func(o *Options)) *Flow {
	opts := Options{
		Logger:                logging.NoOpLogger{},
		MaxSteps:              core.DefaultMaxSteps,
		FallbackMessage:       DefaultFallbackMessage,
		UnknownOutcomeMessage: DefaultUnknownOutcomeMessage,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = NewSanitizer(func(o *SanitizerOptions) { o.Logger = opts.Logger })
	}
	if opts.Executor == nil {
		logger := opts.Logger
		opts.Executor = tool.NewExecutor(func(o *tool.ExecutorOptions) { o.Logger = logger })
	}
	return &Flow{model: m, opts: opts, tracer: otel.Tracer("github.com/hupe1980/agentdesk/flow")}
}

// turnState is the mutable state of one Run.
type turnState struct {
	turn       Turn
	transcript core.Transcript
	steps      *core.StepBudget
	pending    core.Message
	toolCalls  int
	forced     bool
}

// Run executes the turn until the answer has been delivered to sink. A
// completion failure is not an error: the fallback message is delivered and
// Outcome.Degraded is set. Errors are returned only when the sink fails.
func (f *Flow) Run(ctx context.Context, turn Turn, sink Sink) (Outcome, error) {
	ctx, span := f.tracer.Start(ctx, "flow.run", trace.WithAttributes(
		attribute.String("intent", string(turn.Intent.Kind)),
		attribute.String("conversation_id", turn.ConversationID),
	))
	defer span.End()

	st := &turnState{
		turn:       turn,
		transcript: turn.Transcript.Clone(),
		steps:      core.NewStepBudget(f.opts.MaxSteps),
	}

	state := StateDeciding
	var (
		out Outcome
		err error
	)
	for state != StateDone {
		switch state {
		case StateDeciding:
			var ok bool
			state, ok = f.decide(ctx, st)
			if !ok {
				out, err = f.degrade(ctx, st, sink)
				state = StateDone
			}
		case StateToolDispatch:
			f.dispatch(ctx, st)
			state = StateDeciding
		case StateFinalizing:
			out, err = f.finalize(ctx, st, sink)
			state = StateDone
		}
	}

	span.SetAttributes(
		attribute.Int("steps", out.Steps),
		attribute.Int("tool_calls", out.ToolCalls),
		attribute.Bool("forced", out.Forced),
		attribute.Bool("degraded", out.Degraded),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sink failed")
	}
	return out, err
}

// request builds a model request from the current transcript and runs the
// request processors over it.
func (f *Flow) request(ctx context.Context, st *turnState, withTools bool) (model.Request, error) {
	req := model.Request{
		Instructions: st.turn.Instructions,
		Messages:     st.transcript.Clone(),
	}
	if withTools && st.turn.Tools.Len() > 0 {
		req.Tools = st.turn.Tools.Definitions()
	}
	for _, p := range f.opts.RequestProcessors {
		if err := p.ProcessRequest(ctx, &req); err != nil {
			return model.Request{}, fmt.Errorf("request processor %s failed: %w", p.Name(), err)
		}
	}
	return req, nil
}

// decide performs one non-streaming model call and returns the next state.
// ok is false when the completion failed.
func (f *Flow) decide(ctx context.Context, st *turnState) (next State, ok bool) {
	ctx, span := f.tracer.Start(ctx, "flow.decide")
	defer span.End()

	step := st.steps.Count() + 1
	f.opts.Logger.Debug("flow.step.start", "step", step, "max_steps", st.steps.Max(), "conversation_id", st.turn.ConversationID)

	req, err := f.request(ctx, st, true)
	var resp model.Response
	if err == nil {
		resp, err = model.Complete(ctx, f.model, req)
	}
	exhausted := st.steps.Take()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		f.opts.Logger.Error("flow.completion.error", "phase", StateDeciding.String(), "step", step, "error", err.Error())
		return StateDone, false
	}

	span.SetAttributes(attribute.Int("tool_calls", len(resp.ToolCalls)))
	if len(resp.ToolCalls) == 0 {
		return StateFinalizing, true
	}
	if exhausted {
		st.forced = true
		f.opts.Logger.Warn("flow.budget.exhausted", "steps", st.steps.Count(), "dropped_calls", len(resp.ToolCalls))
		return StateFinalizing, true
	}

	st.pending = core.NewAssistantMessage(resp.Text, resp.ToolCalls...)
	return StateToolDispatch, true
}

// dispatch sanitizes the pending calls, appends them as one assistant
// message and executes them in declared order.
func (f *Flow) dispatch(ctx context.Context, st *turnState) {
	calls := st.pending.ToolCalls
	sanitized := make([]sanitizedCall, len(calls))
	msg := core.NewAssistantMessage(st.pending.Content)
	for i, call := range calls {
		sanitized[i] = f.opts.Sanitizer.Sanitize(call, st.turn)
		msg.ToolCalls = append(msg.ToolCalls, sanitized[i].Call)
	}
	st.transcript = st.transcript.Append(msg)
	st.pending = core.Message{}

	for _, sc := range sanitized {
		st.transcript = st.transcript.Append(f.execute(ctx, st, sc).Message())
		st.toolCalls++
	}
}

func (f *Flow) execute(ctx context.Context, st *turnState, sc sanitizedCall) core.ToolResult {
	ctx, span := f.tracer.Start(ctx, "flow.tool", trace.WithAttributes(attribute.String("tool", sc.Call.Name)))
	defer span.End()

	var res core.ToolResult
	if sc.Err != nil {
		res = f.opts.Executor.Execute(ctx, st.turn.Tools, sc.Call)
	} else {
		res = f.opts.Executor.ExecuteArgs(ctx, st.turn.Tools, sc.Call, sc.Args)
	}
	if res.Failed() {
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

// finalize streams the answer without tools.
func (f *Flow) finalize(ctx context.Context, st *turnState, sink Sink) (Outcome, error) {
	ctx, span := f.tracer.Start(ctx, "flow.finalize")
	defer span.End()

	out := st.outcome()
	f.opts.Logger.Debug("flow.finalize.start", "steps", out.Steps, "forced", out.Forced)

	req, err := f.request(ctx, st, false)
	if err != nil {
		return f.degrade(ctx, st, sink)
	}

	var (
		sinkErr error
		sent    bool
	)
	text, err := model.Stream(ctx, f.model, req, func(chunk string) error {
		if err := sink.chunk(chunk); err != nil {
			sinkErr = err
			return err
		}
		sent = true
		return nil
	})
	if sinkErr != nil {
		out.Text = text
		return out, fmt.Errorf("%w: %w", ErrSink, sinkErr)
	}
	if err != nil {
		span.RecordError(err)
		f.opts.Logger.Error("flow.completion.error", "phase", StateFinalizing.String(), "error", err.Error(), "partial", sent)
		if sent {
			// The client already holds part of the answer; keep what it saw.
			out.Text, out.Degraded = text, true
			return out, f.persist(ctx, sink, text)
		}
		return f.degrade(ctx, st, sink)
	}

	if strings.TrimSpace(text) == "" {
		out.Empty = true
		text = f.opts.UnknownOutcomeMessage
		f.opts.Logger.Warn("flow.finalize.empty", "steps", out.Steps)
		if err := sink.chunk(text); err != nil {
			return out, fmt.Errorf("%w: %w", ErrSink, err)
		}
	}

	out.Text = text
	f.opts.Logger.Info("flow.finalize.done", "steps", out.Steps, "tool_calls", out.ToolCalls, "forced", out.Forced, "chars", len(text))
	return out, f.persist(ctx, sink, text)
}

// degrade delivers the fallback message after a completion failure.
func (f *Flow) degrade(ctx context.Context, st *turnState, sink Sink) (Outcome, error) {
	out := st.outcome()
	out.Degraded = true
	out.Text = f.opts.FallbackMessage
	f.opts.Logger.Warn("flow.degraded", "steps", out.Steps)

	if err := sink.chunk(out.Text); err != nil {
		return out, fmt.Errorf("%w: %w", ErrSink, err)
	}
	return out, f.persist(ctx, sink, out.Text)
}

// Fallback delivers the fallback message for a turn that failed before the
// flow could run. The message is stored even when streaming it fails.
func (f *Flow) Fallback(ctx context.Context, sink Sink) (Outcome, error) {
	out := Outcome{Text: f.opts.FallbackMessage, Degraded: true}
	f.opts.Logger.Warn("flow.fallback")

	chunkErr := sink.chunk(out.Text)
	if err := f.persist(ctx, sink, out.Text); err != nil {
		return out, err
	}
	if chunkErr != nil {
		return out, fmt.Errorf("%w: %w", ErrSink, chunkErr)
	}
	return out, nil
}

// persist hands the final text to the sink, detached from cancellation so a
// disconnecting client does not lose the stored answer.
func (f *Flow) persist(ctx context.Context, sink Sink, text string) error {
	if err := sink.finish(context.WithoutCancel(ctx), text); err != nil {
		f.opts.Logger.Error("flow.persist.error", "error", err.Error())
		return fmt.Errorf("%w: %w", ErrSink, err)
	}
	return nil
}

func (st *turnState) outcome() Outcome {
	return Outcome{Steps: st.steps.Count(), ToolCalls: st.toolCalls, Forced: st.forced}
}

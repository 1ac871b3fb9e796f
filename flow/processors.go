package flow

import (
	"context"

	"github.com/hupe1980/agentdesk/internal/tokens"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/model"
)

// RequestProcessor adjusts a model request before it is sent.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request in place.
	ProcessRequest(ctx context.Context, req *model.Request) error
}

// HistoryProcessor trims the transcript of every request to a token budget,
// keeping the most recent messages.
type HistoryProcessor struct {
	counter   *tokens.Counter
	maxTokens int
	logger    logging.Logger
}

// NewHistoryProcessor creates a HistoryProcessor. maxTokens <= 0 disables
// trimming.
func NewHistoryProcessor(counter *tokens.Counter, maxTokens int, logger logging.Logger) *HistoryProcessor {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &HistoryProcessor{counter: counter, maxTokens: maxTokens, logger: logger}
}

// Name returns the processor's identifier.
func (p *HistoryProcessor) Name() string { return "history" }

// ProcessRequest drops the oldest messages that exceed the budget.
func (p *HistoryProcessor) ProcessRequest(_ context.Context, req *model.Request) error {
	if p.maxTokens <= 0 {
		return nil
	}
	budget := max(p.maxTokens-p.counter.Text(req.Instructions), 1)
	trimmed := p.counter.Trim(req.Messages, budget)
	if dropped := len(req.Messages) - len(trimmed); dropped > 0 {
		p.logger.Debug("flow.history.trimmed", "dropped", dropped, "kept", len(trimmed), "max_tokens", p.maxTokens)
	}
	req.Messages = trimmed
	return nil
}

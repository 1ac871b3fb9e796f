package tool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/logging"
)

// ExecutorOptions configure an Executor.
type ExecutorOptions struct {
	Logger logging.Logger
}

// Executor runs tool calls against a registry. Execute is total: whatever the
// call looks like, it returns a core.ToolResult and never panics.
type Executor struct {
	logger     logging.Logger
	normalizer *Normalizer
}

// NewExecutor creates an Executor.
func NewExecutor(optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{logger: opts.Logger, normalizer: NewNormalizer(opts.Logger)}
}

// Execute normalizes the call's arguments and runs it.
func (e *Executor) Execute(ctx context.Context, reg *Registry, call core.ToolCall) core.ToolResult {
	args, err := e.normalizer.Normalize(call.Arguments)
	if err != nil {
		e.logger.Warn("tool.call.invalid_arguments", "tool", call.Name, "fc_id", call.ID, "error", err.Error())
		return failed(call, &ToolError{Tool: call.Name, Message: err.Error(), Code: CodeInvalidArguments})
	}
	return e.ExecuteArgs(ctx, reg, call, args)
}

// ExecuteArgs runs a call whose arguments were already normalized.
func (e *Executor) ExecuteArgs(ctx context.Context, reg *Registry, call core.ToolCall, args Args) core.ToolResult {
	impl, ok := reg.Get(call.Name)
	if !ok {
		e.logger.Warn("tool.call.unknown", "tool", call.Name, "fc_id", call.ID)
		return failed(call, NewToolError(call.Name, fmt.Sprintf("tool %s is not available", call.Name), CodeUnknownTool))
	}

	e.logger.Debug("tool.call.start", "tool", call.Name, "fc_id", call.ID, "read_only", impl.ReadOnly())
	start := time.Now()

	var (
		result  any
		callErr error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("tool.call.panic", "tool", call.Name, "fc_id", call.ID, "recover", r, "stack", string(debug.Stack()))
				callErr = NewToolError(call.Name, "the tool failed unexpectedly", CodePanic)
			}
		}()
		result, callErr = impl.Call(ctx, args)
	}()

	if callErr != nil {
		var toolErr *ToolError
		if !errors.As(callErr, &toolErr) {
			toolErr = NewToolError(call.Name, callErr.Error(), CodeExecution)
		}
		e.logger.Warn("tool.call.error", "tool", call.Name, "fc_id", call.ID, "code", toolErr.Code, "error", toolErr.Message)
		return failed(call, toolErr)
	}

	e.logger.Info("tool.call.success", "tool", call.Name, "fc_id", call.ID, "duration_ms", time.Since(start).Milliseconds())

	return core.ToolResult{CallID: call.ID, Name: call.Name, Payload: result}
}

func failed(call core.ToolCall, err *ToolError) core.ToolResult {
	return core.ToolResult{CallID: call.ID, Name: call.Name, Payload: err.Payload(), Err: err}
}

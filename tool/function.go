package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentdesk/internal/util"
)

// Func is the signature wrapped by FunctionTool.
type Func func(ctx context.Context, args Args) (any, error)

// FunctionOptions configure a FunctionTool.
type FunctionOptions struct {
	// ReadOnly declares the function free of side effects.
	ReadOnly bool
}

// FunctionTool is a generic adapter that exposes a plain Go function as a Tool.
//
// It validates arguments against the declared schema before calling the
// function and normalizes errors so callers always receive *ToolError:
//
//	VALIDATION_ERROR  -> schema / argument mismatch
//	EXECUTION_ERROR   -> underlying function returned a plain error
//	(custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	readOnly    bool
	fn          Func
}

// NewFunctionTool constructs a FunctionTool from an explicit schema.
func NewFunctionTool(name, description string, parameters map[string]any, fn Func, optFns ...func(o *FunctionOptions)) *FunctionTool {
	opts := FunctionOptions{}
	for _, f := range optFns {
		f(&opts)
	}
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		readOnly:    opts.ReadOnly,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema).
//
// Example:
//
//	type lookupArgs struct {
//	  OrderID string `json:"orderId,omitempty" description:"Order identifier, e.g. ORD-123"`
//	}
//
//	t := NewFunctionToolFromStruct("getOrderDetails", "Retrieve an order", lookupArgs{}, fn,
//	  func(o *FunctionOptions) { o.ReadOnly = true })
func NewFunctionToolFromStruct(name, description string, structType any, fn Func, optFns ...func(o *FunctionOptions)) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// ReadOnly reports whether the tool is side-effect free.
func (t *FunctionTool) ReadOnly() bool { return t.readOnly }

// Call validates args against the schema then invokes the function.
func (t *FunctionTool) Call(ctx context.Context, args Args) (any, error) {
	if err := util.ValidateParameters(args.Raw(), t.parameters); err != nil {
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return nil, toolErr
		}
		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	return result, nil
}

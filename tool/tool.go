// Package tool implements the tool calling subsystem: the Tool contract, a
// name-unique Registry, the argument normalizer that turns whatever a model
// produced into canonical arguments, and a total executor that converts every
// failure into a typed payload the model can read.
package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentdesk/internal/util"
)

// Tool defines a capability the model may invoke.
//
// Implementations should:
//   - Provide a stable, unique name and a description the model can act on
//   - Declare a JSON schema for parameters
//   - Report through ReadOnly whether Call has side effects
//   - Return *ToolError for conditions the model should recover from
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description provided to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// ReadOnly reports whether the tool leaves all stores untouched.
	ReadOnly() bool

	// Call executes the tool with normalized arguments.
	Call(ctx context.Context, args Args) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeMissingParameter = "MISSING_PARAMETER"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeUnavailable      = "UNAVAILABLE"
	CodeExecution        = "EXECUTION_ERROR"
	CodeUnknownTool      = "UNKNOWN_TOOL"
	CodePanic            = "PANIC"
)

// ToolError represents a recoverable tool failure. Its Message is shown to the
// model verbatim.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Payload renders the model facing error object.
func (e *ToolError) Payload() map[string]any {
	p := map[string]any{"error": e.Message}
	if e.Code != "" {
		p["code"] = e.Code
	}
	return p
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// IsCode reports whether err is a *ToolError with the given code.
func IsCode(err error, code string) bool {
	var te *ToolError
	return errors.As(err, &te) && te.Code == code
}

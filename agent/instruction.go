package agent

import (
	"context"

	"github.com/hupe1980/agentdesk/internal/util"
)

// PromptData is the per-turn data an instruction can reference.
type PromptData struct {
	// OrderID is the identifier the router extracted, if any.
	OrderID string
	// Context is pre-fetched entity data (JSON) spliced into the prompt.
	Context string
	// UserID is the session owner.
	UserID string
}

func (d PromptData) values() map[string]any {
	return map[string]any{
		"OrderID": d.OrderID,
		"Context": d.Context,
		"UserID":  d.UserID,
	}
}

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(ctx context.Context, data PromptData) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context, data PromptData) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, data PromptData) (string, error) { return f(ctx, data) }

// Instruction represents a static string, a text/template rendered against
// PromptData, or a dynamic provider.
type Instruction struct {
	text     string
	template bool
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromTemplate creates an Instruction rendered with
// util.RenderTemplate ({{.OrderID}}, {{.Context}}, {{.UserID}}).
func NewInstructionFromTemplate(text string) Instruction {
	return Instruction{text: text, template: true}
}

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, data PromptData) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction does not depend on PromptData.
func (i Instruction) IsStatic() bool { return i.provider == nil && !i.template }

// Resolve returns the instruction text, rendering or invoking the provider
// as needed.
func (i Instruction) Resolve(ctx context.Context, data PromptData) (string, error) {
	switch {
	case i.provider != nil:
		return i.provider.Instruction(ctx, data)
	case i.template:
		return util.RenderTemplate(i.text, data.values())
	default:
		return i.text, nil
	}
}

package tool

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentdesk/model"
)

// ErrDuplicateTool is returned when two tools share a name.
var ErrDuplicateTool = errors.New("duplicate tool name")

// Registry is an ordered, name-unique set of tools. It is populated once and
// then only read, so it is safe for concurrent lookups after construction.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry from tools, failing on empty or duplicate names.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error, for static tool sets.
func MustRegistry(tools ...Tool) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a tool.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errors.New("nil tool")
	}
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return errors.New("tool name must not be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []Tool {
	if r == nil {
		return nil
	}
	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// ReadOnly reports whether every registered tool is side-effect free.
func (r *Registry) ReadOnly() bool {
	for _, t := range r.Tools() {
		if !t.ReadOnly() {
			return false
		}
	}
	return true
}

// Definitions exposes the registry to a model request.
func (r *Registry) Definitions() []model.ToolDefinition {
	tools := r.Tools()
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Merge unions registries in argument order. A name present in more than one
// input is an error rather than a silent override.
func Merge(regs ...*Registry) (*Registry, error) {
	out := &Registry{tools: map[string]Tool{}}
	for _, reg := range regs {
		for _, t := range reg.Tools() {
			if err := out.Register(t); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

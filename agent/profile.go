package agent

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/tool"
)

//go:embed profiles.yaml
var defaultProfiles []byte

// DefaultProfiles returns the embedded profile definitions.
func DefaultProfiles() []byte { return append([]byte(nil), defaultProfiles...) }

// Profile is an agent configuration: a named instruction plus tool registry.
type Profile struct {
	Name        string
	Intents     []core.IntentKind
	Instruction Instruction
	Tools       *tool.Registry

	// EagerContext asks the runner to pre-fetch the order the router
	// extracted and pass it as PromptData.Context.
	EagerContext bool
}

// Render resolves the instruction for one turn.
func (p Profile) Render(ctx context.Context, data PromptData) (string, error) {
	text, err := p.Instruction.Resolve(ctx, data)
	if err != nil {
		return "", fmt.Errorf("render instruction of profile %s: %w", p.Name, err)
	}
	return strings.TrimSpace(text), nil
}

type profileSpec struct {
	Name         string   `yaml:"name"`
	Intents      []string `yaml:"intents"`
	Tools        string   `yaml:"tools"`
	Instruction  string   `yaml:"instruction"`
	EagerContext bool     `yaml:"eager_context"`
	Default      bool     `yaml:"default"`
}

type profileFile struct {
	Profiles []profileSpec `yaml:"profiles"`
}

// ParseProfiles decodes profile definitions and binds them to tool sets.
// The default profile is returned separately.
func ParseProfiles(data []byte, toolsets map[string]*tool.Registry) ([]Profile, Profile, error) {
	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, Profile{}, fmt.Errorf("decode profiles: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, Profile{}, errors.New("no profiles defined")
	}

	var (
		profiles   []Profile
		def        Profile
		hasDefault bool
		seen       = map[string]bool{}
	)
	for _, spec := range file.Profiles {
		if spec.Name == "" {
			return nil, Profile{}, errors.New("profile without name")
		}
		if seen[spec.Name] {
			return nil, Profile{}, fmt.Errorf("duplicate profile %q", spec.Name)
		}
		seen[spec.Name] = true

		reg, ok := toolsets[spec.Tools]
		if !ok {
			return nil, Profile{}, fmt.Errorf("profile %q references unknown tool set %q", spec.Name, spec.Tools)
		}

		p := Profile{
			Name:         spec.Name,
			Instruction:  NewInstructionFromTemplate(spec.Instruction),
			Tools:        reg,
			EagerContext: spec.EagerContext,
		}
		for _, in := range spec.Intents {
			p.Intents = append(p.Intents, core.IntentKind(strings.ToLower(strings.TrimSpace(in))))
		}
		profiles = append(profiles, p)

		if spec.Default {
			if hasDefault {
				return nil, Profile{}, fmt.Errorf("profile %q: more than one default profile", spec.Name)
			}
			def, hasDefault = p, true
		}
	}
	if !hasDefault {
		return nil, Profile{}, errors.New("no default profile")
	}
	return profiles, def, nil
}

package agent

import (
	"fmt"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/tool"
)

// SelectorOptions configure a Selector.
type SelectorOptions struct {
	// Profiles holds YAML profile definitions; nil uses the embedded default.
	Profiles []byte
}

// Selector maps intents onto profiles. It is immutable after construction.
type Selector struct {
	byIntent map[core.IntentKind]Profile
	profiles []Profile
	fallback Profile
}

// NewSelector builds a selector binding the profiles' tool set names to
// registries.
func NewSelector(toolsets map[string]*tool.Registry, optFns ...func(o *SelectorOptions)) (*Selector, error) {
	opts := SelectorOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	data := opts.Profiles
	if data == nil {
		data = defaultProfiles
	}

	profiles, def, err := ParseProfiles(data, toolsets)
	if err != nil {
		return nil, err
	}

	s := &Selector{byIntent: map[core.IntentKind]Profile{}, profiles: profiles, fallback: def}
	for _, p := range profiles {
		for _, in := range p.Intents {
			if other, dup := s.byIntent[in]; dup {
				return nil, fmt.Errorf("intent %q served by both %q and %q", in, other.Name, p.Name)
			}
			s.byIntent[in] = p
		}
	}
	return s, nil
}

// Select returns the profile serving intent. Unrecognized intents get the
// default profile.
func (s *Selector) Select(intent core.Intent) Profile {
	if p, ok := s.byIntent[intent.Kind]; ok {
		return p
	}
	return s.fallback
}

// Names lists the profile names with the default first.
func (s *Selector) Names() []string {
	names := []string{s.fallback.Name}
	for _, p := range s.profiles {
		if p.Name != s.fallback.Name {
			names = append(names, p.Name)
		}
	}
	return names
}

// Profiles returns all profiles in declaration order.
func (s *Selector) Profiles() []Profile { return append([]Profile(nil), s.profiles...) }

package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/hupe1980/agentdesk/logging"
)

// MissingSentinel marks an identifier the orchestration layer could not
// recover. Tools treat it exactly like an absent identifier.
const MissingSentinel = "MISSING"

// Reserved argument keys that map to dedicated entity fields rather than the
// free-form details bag.
const (
	KeyOrderID = "orderId"
	KeyStatus  = "status"

	keyIDAlias    = "id"
	keyUpdates    = "updates"
	keyJSONParams = "jsonParams"
)

// ArgumentError reports arguments that could not be turned into an object.
type ArgumentError struct {
	Reason string
	Err    error
}

func (e *ArgumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid arguments: %s: %v", e.Reason, e.Err)
	}
	return "invalid arguments: " + e.Reason
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// Args is the canonical argument view handed to tools.
type Args struct {
	fields map[string]any
}

// NewArgs wraps a map. The map is copied.
func NewArgs(fields map[string]any) Args {
	return Args{fields: maps.Clone(fields)}
}

// Raw returns a copy of the underlying fields.
func (a Args) Raw() map[string]any {
	if a.fields == nil {
		return map[string]any{}
	}
	return maps.Clone(a.fields)
}

// Len returns the number of fields.
func (a Args) Len() int { return len(a.fields) }

// Empty reports whether no fields are present.
func (a Args) Empty() bool { return len(a.fields) == 0 }

// Has reports whether key is present with a non-nil value.
func (a Args) Has(key string) bool {
	v, ok := a.fields[key]
	return ok && v != nil
}

// With returns a copy with key set to value.
func (a Args) With(key string, value any) Args {
	out := a.Raw()
	out[key] = value
	return Args{fields: out}
}

// String returns the value for key rendered as trimmed text. Numbers are
// formatted without exponent so numeric identifiers survive.
func (a Args) String(key string) string {
	switch v := a.fields[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Identifier returns a usable identifier for key. Empty values and the
// MissingSentinel both count as absent.
func (a Args) Identifier(key string) (string, bool) {
	v := a.String(key)
	if v == "" || strings.EqualFold(v, MissingSentinel) {
		return "", false
	}
	return v, true
}

// Int returns key as an integer or def when absent or not numeric.
func (a Args) Int(key string, def int) int {
	switch v := a.fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Decode unmarshals the arguments into a typed struct.
func (a Args) Decode(v any) error {
	b, err := json.Marshal(a.Raw())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// MarshalJSON encodes the fields as an object.
func (a Args) MarshalJSON() ([]byte, error) { return json.Marshal(a.Raw()) }

// Patch is a partial entity update split into reserved and free-form parts.
type Patch struct {
	Status  *string        `json:"status,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Empty reports whether applying the patch would change nothing.
func (p Patch) Empty() bool { return p.Status == nil && len(p.Details) == 0 }

// Applied renders the diff that was requested, for tool results.
func (p Patch) Applied() map[string]any {
	out := maps.Clone(p.Details)
	if out == nil {
		out = map[string]any{}
	}
	if p.Status != nil {
		out[KeyStatus] = *p.Status
	}
	return out
}

// Patch separates reserved keys from the free-form details bag. orderId never
// appears in either part.
func (a Args) Patch() Patch {
	var p Patch
	for k, v := range a.fields {
		switch k {
		case KeyOrderID:
			continue
		case KeyStatus:
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				s = strings.TrimSpace(s)
				p.Status = &s
			}
		default:
			if p.Details == nil {
				p.Details = map[string]any{}
			}
			p.Details[k] = v
		}
	}
	return p
}

// Normalizer canonicalizes raw tool arguments.
type Normalizer struct {
	logger logging.Logger
}

// NewNormalizer creates a Normalizer. A nil logger discards output.
func NewNormalizer(logger logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Normalizer{logger: logger}
}

// Normalize is a convenience for a Normalizer without logging.
func Normalize(raw json.RawMessage) (Args, error) {
	return NewNormalizer(nil).Normalize(raw)
}

// Normalize accepts an object, a JSON string containing an object (optionally
// wrapped as {"jsonParams": "..."}), or nothing, and returns canonical Args:
//
//   - orderId wins over its alias id, which is dropped
//   - a nested "updates" object is flattened over the direct fields, nested
//     keys overwriting direct keys of the same name
//
// It never panics; unparsable input yields *ArgumentError.
func (n *Normalizer) Normalize(raw json.RawMessage) (Args, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return Args{}, err
	}

	if jp, ok := fields[keyJSONParams]; ok {
		delete(fields, keyJSONParams)
		inner, err := unwrapJSONParams(jp)
		if err != nil {
			return Args{}, err
		}
		n.logger.Debug("tool.args.unwrap", "key", keyJSONParams)
		maps.Copy(fields, inner)
	}

	if nested, ok := fields[keyUpdates].(map[string]any); ok {
		delete(fields, keyUpdates)
		n.logger.Debug("tool.args.flatten", "key", keyUpdates, "fields", len(nested))
		maps.Copy(fields, nested)
	}

	if alias, ok := fields[keyIDAlias]; ok {
		delete(fields, keyIDAlias)
		if !nonEmpty(fields[KeyOrderID]) && nonEmpty(alias) {
			fields[KeyOrderID] = alias
			n.logger.Debug("tool.args.alias", "from", keyIDAlias, "to", KeyOrderID)
		}
	}

	return Args{fields: fields}, nil
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, &ArgumentError{Reason: "malformed string payload", Err: err}
		}
		return decodeObject(json.RawMessage(s))
	case '{':
		var m map[string]any
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, &ArgumentError{Reason: "malformed object payload", Err: err}
		}
		if m == nil {
			m = map[string]any{}
		}
		return m, nil
	default:
		return nil, &ArgumentError{Reason: "arguments must be an object"}
	}
}

func unwrapJSONParams(v any) (map[string]any, error) {
	switch jp := v.(type) {
	case map[string]any:
		return jp, nil
	case string:
		if strings.TrimSpace(jp) == "" {
			return map[string]any{}, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(jp), &m); err != nil {
			return nil, &ArgumentError{Reason: "jsonParams is not a valid JSON object", Err: err}
		}
		if m == nil {
			m = map[string]any{}
		}
		return m, nil
	case nil:
		return map[string]any{}, nil
	default:
		return nil, &ArgumentError{Reason: fmt.Sprintf("jsonParams has unsupported type %T", v)}
	}
}

func nonEmpty(v any) bool {
	switch s := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(s) != ""
	default:
		return true
	}
}

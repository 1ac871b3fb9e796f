package core

import "strings"

// IntentKind is the router's classification of a user utterance.
type IntentKind string

const (
	IntentOrder   IntentKind = "order"
	IntentBilling IntentKind = "billing"
	IntentSupport IntentKind = "support"
	IntentGeneral IntentKind = "general"
)

// ParseIntentKind maps a model supplied label onto a known kind. Anything
// unrecognized is general.
func ParseIntentKind(s string) IntentKind {
	switch k := IntentKind(strings.ToLower(strings.TrimSpace(s))); k {
	case IntentOrder, IntentBilling, IntentSupport, IntentGeneral:
		return k
	default:
		return IntentGeneral
	}
}

// Intent is the routing result for one turn.
type Intent struct {
	Kind       IntentKind        `json:"intent"`
	Parameters map[string]string `json:"parameters"`
}

// GeneralIntent is the fallback classification.
func GeneralIntent() Intent {
	return Intent{Kind: IntentGeneral, Parameters: map[string]string{}}
}

// Param returns a non-empty extracted parameter.
func (i Intent) Param(key string) (string, bool) {
	v, ok := i.Parameters[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// OrderID returns the order identifier extracted by the router, if any.
func (i Intent) OrderID() (string, bool) { return i.Param("orderId") }

package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript_CloneIsDeep(t *testing.T) {
	orig := Transcript{
		NewUserMessage("hi"),
		NewAssistantMessage("", ToolCall{ID: "c1", Name: "getOrderDetails", Arguments: json.RawMessage(`{"orderId":"ORD-1"}`)}),
	}

	cp := orig.Clone()
	cp[0].Content = "changed"
	cp[1].ToolCalls[0].Arguments[2] = 'X'
	cp = cp.Append(NewUserMessage("more"))

	assert.Equal(t, "hi", orig[0].Content)
	assert.Equal(t, `{"orderId":"ORD-1"}`, string(orig[1].ToolCalls[0].Arguments))
	assert.Len(t, orig, 2)
	assert.Len(t, cp, 3)
}

func TestTranscript_LastUserText(t *testing.T) {
	tr := Transcript{NewUserMessage("first"), NewAssistantMessage("ok"), NewUserMessage("second"), NewAssistantMessage("done")}
	text, ok := tr.LastUserText()
	require.True(t, ok)
	assert.Equal(t, "second", text)

	_, ok = Transcript{}.LastUserText()
	assert.False(t, ok)
}

func TestToolResult_Message(t *testing.T) {
	r := ToolResult{CallID: "call-7", Name: "checkDeliveryStatus", Payload: map[string]any{"status": "shipped"}}
	msg := r.Message()
	assert.Equal(t, RoleTool, msg.Role)
	assert.Equal(t, "call-7", msg.ToolCallID)
	assert.Equal(t, `{"status":"shipped"}`, msg.Content)
	assert.False(t, r.Failed())

	bad := ToolResult{CallID: "c", Payload: make(chan int), Err: errors.New("x")}
	assert.Contains(t, bad.JSON(), "unencodable tool result")
	assert.True(t, bad.Failed())
}

func TestParseIntentKind(t *testing.T) {
	cases := map[string]IntentKind{
		"order":     IntentOrder,
		" Billing ": IntentBilling,
		"support":   IntentSupport,
		"general":   IntentGeneral,
		"weather":   IntentGeneral,
		"":          IntentGeneral,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseIntentKind(in), in)
	}
}

func TestIntent_OrderID(t *testing.T) {
	id, ok := Intent{Kind: IntentOrder, Parameters: map[string]string{"orderId": "ORD-456"}}.OrderID()
	assert.True(t, ok)
	assert.Equal(t, "ORD-456", id)

	_, ok = Intent{Kind: IntentOrder, Parameters: map[string]string{"orderId": "  "}}.OrderID()
	assert.False(t, ok)

	_, ok = GeneralIntent().OrderID()
	assert.False(t, ok)
}

func TestStepBudget(t *testing.T) {
	b := NewStepBudget(0)
	assert.Equal(t, DefaultMaxSteps, b.Max())

	for i := 1; i < DefaultMaxSteps; i++ {
		if b.Take() {
			t.Fatalf("budget exhausted early at step %d", i)
		}
	}
	assert.True(t, b.Take())
	assert.True(t, b.Exhausted())

	// further takes never push the counter past max
	b.Take()
	assert.Equal(t, DefaultMaxSteps, b.Count())
	assert.Equal(t, 0, b.Remaining())
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleTool.Valid())
	assert.False(t, Role("robot").Valid())
}

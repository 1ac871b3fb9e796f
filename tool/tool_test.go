package tool

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/hupe1980/agentdesk/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- Normalizer Tests --------------------

func TestNormalize_Shapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{"empty", ``, map[string]any{}},
		{"null", `null`, map[string]any{}},
		{"empty object", `{}`, map[string]any{}},
		{"object", `{"orderId":"ORD-1"}`, map[string]any{"orderId": "ORD-1"}},
		{"string payload", `"{\"orderId\":\"ORD-2\"}"`, map[string]any{"orderId": "ORD-2"}},
		{"jsonParams string", `{"jsonParams":"{\"orderId\":\"ORD-3\",\"status\":\"shipped\"}"}`, map[string]any{"orderId": "ORD-3", "status": "shipped"}},
		{"jsonParams object", `{"jsonParams":{"transactionId":"PAY-1"}}`, map[string]any{"transactionId": "PAY-1"}},
		{"empty string payload", `""`, map[string]any{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args, err := Normalize(json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, args.Raw())
		})
	}
}

func TestNormalize_Malformed(t *testing.T) {
	inputs := []string{
		`"{not json"`,
		`"plain words"`,
		`{"orderId":`,
		`[1,2,3]`,
		`42`,
		`{"jsonParams":"{broken"}`,
		`{"jsonParams":7}`,
	}
	for _, in := range inputs {
		_, err := Normalize(json.RawMessage(in))
		var argErr *ArgumentError
		if !errors.As(err, &argErr) {
			t.Fatalf("input %q: expected ArgumentError, got %v", in, err)
		}
	}
}

func TestNormalize_RandomGarbageNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	alphabet := []byte(`{}[]":,\ abcORD-123nulltrue`)
	for i := 0; i < 2000; i++ {
		buf := make([]byte, rng.Intn(24))
		for j := range buf {
			buf[j] = alphabet[rng.Intn(len(alphabet))]
		}
		args, err := Normalize(json.RawMessage(buf))
		if err == nil {
			assert.NotNil(t, args.Raw())
		}
	}
}

func TestNormalize_AliasPreference(t *testing.T) {
	args, err := Normalize(json.RawMessage(`{"id":"ORD-9"}`))
	require.NoError(t, err)
	assert.Equal(t, "ORD-9", args.String(KeyOrderID))
	assert.False(t, args.Has("id"))

	args, err = Normalize(json.RawMessage(`{"id":"ORD-9","orderId":"ORD-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", args.String(KeyOrderID))
	assert.False(t, args.Has("id"))

	args, err = Normalize(json.RawMessage(`{"id":"ORD-9","orderId":""}`))
	require.NoError(t, err)
	assert.Equal(t, "ORD-9", args.String(KeyOrderID))
}

func TestNormalize_UpdatesMergeOrder(t *testing.T) {
	raw := `{"orderId":"ORD-1","priority":"low","notes":"direct","updates":{"priority":"high","status":"cancelled"}}`
	args, err := Normalize(json.RawMessage(raw))
	require.NoError(t, err)

	// nested keys overwrite direct keys
	assert.Equal(t, "high", args.String("priority"))
	assert.Equal(t, "direct", args.String("notes"))
	assert.Equal(t, "cancelled", args.String(KeyStatus))
	assert.False(t, args.Has("updates"))
}

func TestArgs_Patch(t *testing.T) {
	args := NewArgs(map[string]any{"orderId": "ORD-1", "status": " shipped ", "priority": "high"})
	p := args.Patch()
	require.NotNil(t, p.Status)
	assert.Equal(t, "shipped", *p.Status)
	assert.Equal(t, map[string]any{"priority": "high"}, p.Details)
	assert.Equal(t, map[string]any{"priority": "high", "status": "shipped"}, p.Applied())
	assert.False(t, p.Empty())

	assert.True(t, NewArgs(map[string]any{"orderId": "ORD-1"}).Patch().Empty())
	assert.True(t, NewArgs(map[string]any{"orderId": "ORD-1", "status": ""}).Patch().Empty())
}

func TestArgs_Accessors(t *testing.T) {
	args := NewArgs(map[string]any{"orderId": "MISSING", "limit": 3.0, "n": "7", "num": 12345.0})
	_, ok := args.Identifier(KeyOrderID)
	assert.False(t, ok)
	assert.Equal(t, 3, args.Int("limit", 5))
	assert.Equal(t, 7, args.Int("n", 5))
	assert.Equal(t, 5, args.Int("absent", 5))
	assert.Equal(t, "12345", args.String("num"))

	with := args.With(KeyOrderID, "ORD-5")
	id, ok := with.Identifier(KeyOrderID)
	assert.True(t, ok)
	assert.Equal(t, "ORD-5", id)
	assert.Equal(t, "MISSING", args.String(KeyOrderID))

	var decoded struct {
		Limit int `json:"limit"`
	}
	require.NoError(t, args.Decode(&decoded))
	assert.Equal(t, 3, decoded.Limit)
}

// -------------------- Registry Tests --------------------

func noop(_ context.Context, _ Args) (any, error) { return "ok", nil }

func TestRegistry_UniqueNames(t *testing.T) {
	a := NewFunctionTool("a", "A", map[string]any{"type": "object"}, noop)
	b := NewFunctionTool("b", "B", map[string]any{"type": "object"}, noop, func(o *FunctionOptions) { o.ReadOnly = true })

	reg, err := NewRegistry(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.False(t, reg.ReadOnly())

	_, err = NewRegistry(a, a)
	assert.ErrorIs(t, err, ErrDuplicateTool)

	_, err = NewRegistry(NewFunctionTool(" ", "blank", nil, noop))
	assert.Error(t, err)

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "a", defs[0].Function.Name)
}

func TestMerge_RejectsCollisions(t *testing.T) {
	r1 := MustRegistry(NewFunctionTool("a", "A", nil, noop))
	r2 := MustRegistry(NewFunctionTool("b", "B", nil, noop))
	r3 := MustRegistry(NewFunctionTool("a", "A again", nil, noop))

	merged, err := Merge(r1, r2)
	require.NoError(t, err)
	assert.Equal(t, 2, merged.Len())

	_, err = Merge(r1, r3)
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

// -------------------- Executor Tests --------------------

func TestExecutor_Total(t *testing.T) {
	type lookup struct {
		OrderID string `json:"orderId,omitempty"`
	}
	ok := NewFunctionToolFromStruct("ok", "returns args", lookup{}, func(_ context.Context, args Args) (any, error) {
		return args.Raw(), nil
	})
	boom := NewFunctionTool("boom", "panics", nil, func(context.Context, Args) (any, error) {
		panic("kaboom")
	})
	plain := NewFunctionTool("plain", "plain error", nil, func(context.Context, Args) (any, error) {
		return nil, errors.New("store unavailable")
	})
	typed := NewFunctionTool("typed", "typed error", nil, func(context.Context, Args) (any, error) {
		return nil, NewToolError("typed", "Order not found", CodeNotFound)
	})
	reg := MustRegistry(ok, boom, plain, typed)
	exec := NewExecutor()
	ctx := context.Background()

	res := exec.Execute(ctx, reg, core.ToolCall{ID: "1", Name: "ok", Arguments: json.RawMessage(`{"id":"ORD-1"}`)})
	assert.False(t, res.Failed())
	assert.Equal(t, map[string]any{"orderId": "ORD-1"}, res.Payload)
	assert.Equal(t, "1", res.CallID)

	res = exec.Execute(ctx, reg, core.ToolCall{ID: "2", Name: "ok", Arguments: json.RawMessage(`"{oops"`)})
	assert.True(t, IsCode(res.Err, CodeInvalidArguments))
	assert.Contains(t, res.Payload.(map[string]any)["error"], "invalid arguments")

	res = exec.Execute(ctx, reg, core.ToolCall{ID: "3", Name: "boom"})
	assert.True(t, IsCode(res.Err, CodePanic))

	res = exec.Execute(ctx, reg, core.ToolCall{ID: "4", Name: "plain"})
	assert.True(t, IsCode(res.Err, CodeExecution))
	assert.Equal(t, "store unavailable", res.Payload.(map[string]any)["error"])

	res = exec.Execute(ctx, reg, core.ToolCall{ID: "5", Name: "typed"})
	assert.True(t, IsCode(res.Err, CodeNotFound))
	assert.Equal(t, "Order not found", res.Payload.(map[string]any)["error"])

	res = exec.Execute(ctx, reg, core.ToolCall{ID: "6", Name: "nope"})
	assert.True(t, IsCode(res.Err, CodeUnknownTool))
	assert.Equal(t, "6", res.Message().ToolCallID)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{"type": "integer"},
		},
	}
	tl := NewFunctionTool("test", "Test", params, noop)
	_, err := tl.Call(context.Background(), NewArgs(map[string]any{"limit": "ten"}))
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

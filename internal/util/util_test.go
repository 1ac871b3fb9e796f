package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	OrderID string  `json:"orderId,omitempty" description:"Order identifier"`
	Status  string  `json:"status,omitempty" enum:"pending,shipped,delivered,cancelled"`
	Limit   int     `json:"limit"`
	Note    *string `json:"note"`
	hidden  string
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleArgs{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	assert.Contains(t, props, "orderId")
	assert.Contains(t, props, "note")
	assert.NotContains(t, props, "hidden")
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
	assert.Equal(t, "Order identifier", props["orderId"].(map[string]any)["description"])
	assert.Equal(t, []string{"pending", "shipped", "delivered", "cancelled"}, props["status"].(map[string]any)["enum"])
	assert.Equal(t, []string{"limit"}, schema["required"])
}

func TestValidateParameters(t *testing.T) {
	schema := CreateSchema(sampleArgs{})

	assert.NoError(t, ValidateParameters(map[string]any{"limit": 3.0}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "limit", vErr.Field)

	err = ValidateParameters(map[string]any{"limit": "three"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type integer")

	err = ValidateParameters(map[string]any{"limit": 1, "status": "teleported"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "status", vErr.Field)

	// JSON decoded schemas carry required as []any
	decoded := map[string]any{"required": []any{"x"}, "properties": map[string]any{}}
	assert.Error(t, ValidateParameters(map[string]any{}, decoded))
}

func TestValidateParameters_FreeFormField(t *testing.T) {
	schema := CreateSchema(struct {
		Priority any `json:"priority,omitempty" description:"Handling priority"`
	}{})
	prop := schema["properties"].(map[string]any)["priority"].(map[string]any)
	assert.NotContains(t, prop, "type")
	assert.Equal(t, "Handling priority", prop["description"])

	for _, v := range []any{"high", 1.0, true, map[string]any{"level": 2.0}, []any{"a"}} {
		assert.NoError(t, ValidateParameters(map[string]any{"priority": v}, schema), "%v", v)
	}
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate(`Order: {{.Context}} for {{default "you" .Name}}`, map[string]any{
		"Context": `{"id":"ORD-1","status":"shipped"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, `Order: {"id":"ORD-1","status":"shipped"} for you`, out)

	out, err = RenderTemplate(`{{json .Items}}`, map[string]any{"Items": []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, `["a"]`, out)

	_, err = RenderTemplate("{{.Broken", nil)
	assert.Error(t, err)
}

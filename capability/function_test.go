package capability

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addCapability() *FunctionCapability {
	return NewFunctionCapability(
		"add",
		"Add two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(_ context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("%v", args["a"].(float64)+args["b"].(float64)), nil
		},
	)
}

func TestFunctionCapabilityInvoke(t *testing.T) {
	text, err := addCapability().Invoke(context.Background(), map[string]any{"a": 1.0, "b": 2.0})
	require.NoError(t, err)
	assert.Equal(t, "3", text)
}

func TestFunctionCapabilityValidation(t *testing.T) {
	_, err := addCapability().Invoke(context.Background(), map[string]any{"a": 1.0})
	require.Error(t, err)
	capErr, ok := err.(*CapabilityError)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", capErr.Code)
}

func TestFunctionCapabilityExecutionError(t *testing.T) {
	c := NewFunctionCapability("fail", "always fails", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (string, error) {
			return "", fmt.Errorf("backend unavailable")
		})
	_, err := c.Invoke(context.Background(), map[string]any{})
	require.Error(t, err)
	capErr, ok := err.(*CapabilityError)
	require.True(t, ok)
	assert.Equal(t, "EXECUTION_ERROR", capErr.Code)
}

type echoArgs struct {
	Text  string `json:"text" jsonschema_description:"Text to echo back."`
	Times int    `json:"times,omitempty" jsonschema_description:"Repetition count (default 1)."`
}

func TestSchemaFor(t *testing.T) {
	schema := SchemaFor[echoArgs]()
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "text")
	assert.Contains(t, props, "times")

	text, ok := props["text"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", text["type"])
	assert.Equal(t, "Text to echo back.", text["description"])
}

func TestRegistryDescriptors(t *testing.T) {
	reg := NewRegistry()
	reg.Register(addCapability())
	reg.Register(NewFunctionCapabilityFor[echoArgs]("echo", "Echo text",
		func(_ context.Context, args map[string]any) (string, error) {
			return args["text"].(string), nil
		}))

	assert.Equal(t, []string{"add", "echo"}, reg.Names())

	descriptors := reg.Descriptors([]string{"echo", "missing"})
	require.Len(t, descriptors, 1)
	assert.Equal(t, "echo", descriptors[0].Name)

	all := reg.Descriptors(nil)
	assert.Len(t, all, 2)
}

package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/corentra/agentloop/internal/util"
)

// FunctionCapability is a generic adapter that exposes a plain Go function as
// an in-process capability.
//
// Responsibilities:
//   - Holds a JSON-Schema parameter specification
//   - Validates supplied arguments against that schema before execution
//   - Normalizes error handling so callers receive *CapabilityError with
//     consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error
//     (custom codes preserved if the function returns *CapabilityError directly)
//
// A FunctionCapability has no internal mutable state after construction and is
// safe for concurrent use by multiple goroutines.
type FunctionCapability struct {
	// Capability identifier (snake_case recommended)
	name string
	// Human-readable description shown to models
	description string
	// JSON schema describing accepted arguments
	parameters map[string]any
	// User supplied implementation
	fn func(ctx context.Context, args map[string]any) (string, error)
}

// NewFunctionCapability constructs a FunctionCapability from explicit schema and function.
//
// Example:
//
//	add := NewFunctionCapability(
//	  "add",
//	  "Add two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (string, error) {
//	    return fmt.Sprintf("%v", args["a"].(float64)+args["b"].(float64)), nil
//	  },
//	)
func NewFunctionCapability(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (string, error),
) *FunctionCapability {
	return &FunctionCapability{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionCapabilityFor derives the parameter schema from the type
// parameter's struct tags, equivalent to SchemaFor[T]().
func NewFunctionCapabilityFor[T any](
	name, description string,
	fn func(ctx context.Context, args map[string]any) (string, error),
) *FunctionCapability {
	return NewFunctionCapability(name, description, SchemaFor[T](), fn)
}

// SchemaFor derives a JSON schema map from a Go struct type using reflection.
// Field names come from json tags; jsonschema_description tags become property
// descriptions.
func SchemaFor[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	delete(m, "$schema")
	return m
}

// Name returns the unique capability name used in call declarations and routing.
func (c *FunctionCapability) Name() string { return c.name }

// Description returns the short natural language description exposed to models.
func (c *FunctionCapability) Description() string { return c.description }

// Parameters returns the JSON schema describing expected arguments.
func (c *FunctionCapability) Parameters() map[string]any { return c.parameters }

// Invoke validates the provided args against the declared schema then invokes
// the underlying function. Validation or execution failures are wrapped (or
// passed through) as *CapabilityError for uniform downstream handling.
func (c *FunctionCapability) Invoke(ctx context.Context, args map[string]any) (string, error) {
	if err := util.ValidateParameters(args, c.parameters); err != nil {
		return "", &CapabilityError{
			Capability: c.name,
			Message:    fmt.Sprintf("parameter validation failed: %v", err),
			Code:       "VALIDATION_ERROR",
			Details:    err,
		}
	}

	result, err := c.fn(ctx, args)
	if err != nil {
		if capErr, ok := err.(*CapabilityError); ok {
			return "", capErr
		}
		return "", &CapabilityError{
			Capability: c.name,
			Message:    err.Error(),
			Code:       "EXECUTION_ERROR",
		}
	}

	return result, nil
}

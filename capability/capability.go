// Package capability implements the tool subsystem that lets a conversation
// invoke structured capabilities (APIs, computations, side effects) with
// schema validated arguments and consistent error handling.
//
// A Capability may be backed by an in-process Go function (FunctionCapability)
// or an out-of-process protocol endpoint (see the mcp subpackage); dispatch is
// backend-agnostic once a name has been resolved through a Registry.
package capability

import (
	"context"
	"fmt"

	"github.com/corentra/agentloop/core"
)

// Capability defines a named, invocable unit the model may request.
//
// Implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Be safe for concurrent use: the registry is shared read-only across
//     many independent conversations
type Capability interface {
	// Name returns the unique identifier for this capability.
	// Names should follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description provided to the model
	// so it understands when and how to use the capability.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Invoke executes the capability with parsed arguments. A returned error
	// is converted by the dispatcher into an error ToolResult; it never
	// aborts the surrounding turn.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Describe converts a capability into the read-only descriptor sent to model
// backends.
func Describe(c Capability) core.Descriptor {
	return core.Descriptor{
		Name:        c.Name(),
		Description: c.Description(),
		Parameters:  c.Parameters(),
	}
}

// CapabilityError represents errors that occur during capability execution.
type CapabilityError struct {
	Capability string `json:"capability"`        // Name of the capability that failed
	Message    string `json:"message"`           // Error message
	Code       string `json:"code"`              // Error code for categorization
	Details    any    `json:"details,omitempty"` // Additional error details
}

func (e *CapabilityError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("capability error [%s] in %s: %s", e.Code, e.Capability, e.Message)
	}
	return fmt.Sprintf("capability error in %s: %s", e.Capability, e.Message)
}

// NewCapabilityError creates a new CapabilityError with the specified details.
func NewCapabilityError(capability, message, code string) *CapabilityError {
	return &CapabilityError{
		Capability: capability,
		Message:    message,
		Code:       code,
	}
}

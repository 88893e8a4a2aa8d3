package engine

import (
	"errors"
	"fmt"
)

// ErrNoValidToolCalls marks a round where the model demanded tool execution
// but not a single call survived aggregation. The turn fails because there is
// nothing to execute and nothing to feed back.
var ErrNoValidToolCalls = errors.New("engine: model requested tool execution but no tool call parsed")

// BackendError wraps a stream-level failure from the model backend. Per-call
// failures never take this path; only the backend itself can fail a turn.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error: %v", e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

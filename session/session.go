// Package session persists conversations between turns so a history can be
// reloaded into a fresh conversation to resume a session.
package session

import (
	"context"
	"errors"

	"github.com/corentra/agentloop/core"
)

// ErrNotFound is returned when no conversation exists under the given id.
var ErrNotFound = errors.New("session: conversation not found")

// Store saves and restores conversations. Implementations must preserve the
// ordered message sequence exactly: role, content, reasoning, tool calls and
// tool results round-trip under stable field names.
type Store interface {
	Save(ctx context.Context, conv *core.Conversation) error
	Load(ctx context.Context, id string) (*core.Conversation, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

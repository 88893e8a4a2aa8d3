package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corentra/agentloop/core"
)

func sampleConversation() *core.Conversation {
	conv := core.NewConversation("conv-42", "You are helpful.")
	conv.Append(core.Message{Role: core.RoleUser, Content: "add 1 and 2"})
	conv.Append(core.Message{
		Role:      core.RoleAssistant,
		ToolCalls: []core.ToolCall{{ID: "1", Name: "add", Arguments: `{"a":1,"b":2}`}},
	})
	conv.Append(core.Message{
		Role:        core.RoleUser,
		ToolResults: []core.ToolResult{{ID: "1", Name: "add", Content: "3"}},
	})
	conv.Append(core.Message{Role: core.RoleAssistant, Content: "3"})
	conv.IncrementRound()
	conv.IncrementRound()
	conv.AddUsage(core.Usage{InputTokens: 20, OutputTokens: 5})
	return conv
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	conv := sampleConversation()

	require.NoError(t, store.Save(ctx, conv))

	loaded, err := store.Load(ctx, "conv-42")
	require.NoError(t, err)
	assert.Equal(t, conv.History(), loaded.History())
	assert.Equal(t, conv.Rounds, loaded.Rounds)
	assert.Equal(t, conv.Usage, loaded.Usage)

	// Mutating the live conversation must not change the stored snapshot.
	conv.Append(core.Message{Role: core.RoleUser, Content: "more"})
	loaded2, err := store.Load(ctx, "conv-42")
	require.NoError(t, err)
	assert.Len(t, loaded2.History(), 6)
}

func TestInMemoryStoreNotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	conv := sampleConversation()

	require.NoError(t, store.Save(ctx, conv))

	loaded, err := store.Load(ctx, "conv-42")
	require.NoError(t, err)
	assert.Equal(t, conv.History(), loaded.History())
	assert.Equal(t, conv.Title, loaded.Title)
	assert.Equal(t, conv.MaxRounds, loaded.MaxRounds)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"conv-42"}, ids)

	require.NoError(t, store.Delete(ctx, "conv-42"))
	_, err = store.Load(ctx, "conv-42")
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStoreDeleteUnknownIsNoOp(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Delete(context.Background(), "missing"))
}

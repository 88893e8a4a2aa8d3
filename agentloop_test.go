package agentloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corentra/agentloop/backend"
	"github.com/corentra/agentloop/config"
	"github.com/corentra/agentloop/core"
	"github.com/corentra/agentloop/logging"
)

func newTestAgent(t *testing.T, sb *backend.ScriptedBackend) *Agent {
	t.Helper()
	cfg := config.Default()
	cfg.SystemPrompt = "You are helpful."
	agent, err := New(cfg, func(o *Options) {
		o.Backend = sb
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)
	return agent
}

func TestAgentChat(t *testing.T) {
	sb := backend.NewScriptedBackend(backend.Script{Deltas: []core.Delta{
		{Content: "hello"},
		{FinishReason: core.FinishStop},
	}})
	agent := newTestAgent(t, sb)
	conv := agent.NewConversation("")

	result, err := agent.Chat(context.Background(), conv, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Message.Content)

	history := conv.History()
	require.Len(t, history, 3)
	assert.Equal(t, core.RoleSystem, history[0].Role)
	assert.Equal(t, "You are helpful.", history[0].Content)
}

func TestAgentStreamAndPersistence(t *testing.T) {
	sb := backend.NewScriptedBackend(backend.Script{Deltas: []core.Delta{
		{Content: "a"}, {Content: "b"}, {FinishReason: core.FinishStop},
	}})
	agent := newTestAgent(t, sb)
	conv := agent.NewConversation("sess-1")

	deltas, exec, err := agent.Stream(context.Background(), conv, "spell")
	require.NoError(t, err)
	var streamed string
	for d := range deltas {
		streamed += d.Content
	}
	assert.Equal(t, "ab", streamed)
	require.NoError(t, exec.Result().Err)

	// The turn was persisted through the default in-memory store.
	loaded, err := agent.LoadConversation(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, conv.History(), loaded.History())

	ids, err := agent.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, ids)

	require.NoError(t, agent.DeleteConversation(context.Background(), "sess-1"))
	ids, err = agent.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAgentConfiguredRoundBound(t *testing.T) {
	cfg := config.Default()
	cfg.MaxRounds = 3
	agent, err := New(cfg, func(o *Options) {
		o.Backend = backend.NewScriptedBackend()
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)

	conv := agent.NewConversation("")
	assert.Equal(t, 3, conv.RoundBound())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.Provider = "carrier-pigeon"
	_, err := New(cfg)
	assert.Error(t, err)
}

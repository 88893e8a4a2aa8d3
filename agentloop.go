// Package agentloop provides a high-level façade over the turn engine and its
// collaborators (backends, capabilities, sessions, logging) enabling rapid
// construction of tool-using conversational agents. Most applications interact
// with this package by:
//  1. Creating an Agent via New() from a config.Config
//  2. Registering in-process capabilities and connecting MCP servers
//  3. Driving conversations with Chat (synchronous) or Stream (incremental)
//
// The façade delegates orchestration to engine.Executor while keeping setup
// ergonomics concise. Defaults are safe for local development; production
// deployments typically supply a session directory and structured logging.
package agentloop

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/corentra/agentloop/backend"
	anthropicbackend "github.com/corentra/agentloop/backend/anthropic"
	openaibackend "github.com/corentra/agentloop/backend/openai"
	"github.com/corentra/agentloop/capability"
	"github.com/corentra/agentloop/capability/mcp"
	"github.com/corentra/agentloop/config"
	"github.com/corentra/agentloop/core"
	"github.com/corentra/agentloop/engine"
	"github.com/corentra/agentloop/logging"
	"github.com/corentra/agentloop/session"
)

// Options allow overriding the components New derives from configuration.
type Options struct {
	Logger   logging.Logger
	Backend  backend.Backend
	Store    session.Store
	Registry *capability.Registry
}

// Agent bundles a backend, a capability registry and a session store behind a
// conversation-oriented API. One Agent serves many independent conversations.
type Agent struct {
	cfg      config.Config
	backend  backend.Backend
	registry *capability.Registry
	store    session.Store
	logger   logging.Logger
	mcp      []*mcp.Client
}

// New assembles an agent from configuration.
func New(cfg config.Config, optFns ...func(o *Options)) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New(&logging.Config{
			Level:  parseLogLevel(cfg.Logging.Level),
			Format: cfg.Logging.Format,
		})
	}

	be := opts.Backend
	if be == nil {
		var err error
		be, err = buildBackend(cfg.Backend)
		if err != nil {
			return nil, err
		}
	}

	store := opts.Store
	if store == nil {
		if cfg.SessionDir != "" {
			fileStore, err := session.NewFileStore(cfg.SessionDir)
			if err != nil {
				return nil, err
			}
			store = fileStore
		} else {
			store = session.NewInMemoryStore()
		}
	}

	registry := opts.Registry
	if registry == nil {
		registry = capability.NewRegistry()
	}

	return &Agent{
		cfg:      cfg,
		backend:  be,
		registry: registry,
		store:    store,
		logger:   logger,
	}, nil
}

// RegisterCapabilities adds in-process capabilities to the shared registry.
func (a *Agent) RegisterCapabilities(caps ...capability.Capability) {
	a.registry.RegisterAll(caps...)
}

// Registry exposes the shared capability registry.
func (a *Agent) Registry() *capability.Registry { return a.registry }

// Backend exposes the configured model backend.
func (a *Agent) Backend() backend.Backend { return a.backend }

// ConnectMCP connects every configured MCP server and merges the tools it
// serves into the registry alongside the in-process capabilities.
func (a *Agent) ConnectMCP(ctx context.Context) error {
	for _, server := range a.cfg.MCPServers {
		client := mcp.NewClient(server.Transport, func(o *mcp.Options) { o.Logger = a.logger })
		caps, err := client.Capabilities(ctx)
		if err != nil {
			client.Close()
			return fmt.Errorf("mcp server %s: %w", server.Name, err)
		}
		a.registry.RegisterAll(caps...)
		a.mcp = append(a.mcp, client)
		a.logger.Info("mcp.registered", "server", server.Name, "capabilities", len(caps))
	}
	return nil
}

// NewConversation opens a conversation seeded with the configured system
// prompt and round bound. An empty id gets a generated one.
func (a *Agent) NewConversation(id string) *core.Conversation {
	conv := core.NewConversation(id, a.cfg.SystemPrompt)
	if a.cfg.MaxRounds > 0 {
		conv.MaxRounds = a.cfg.MaxRounds
	}
	return conv
}

// LoadConversation restores a persisted conversation.
func (a *Agent) LoadConversation(ctx context.Context, id string) (*core.Conversation, error) {
	return a.store.Load(ctx, id)
}

// ListConversations returns the ids of every persisted conversation.
func (a *Agent) ListConversations(ctx context.Context) ([]string, error) {
	return a.store.List(ctx)
}

// DeleteConversation removes a persisted conversation.
func (a *Agent) DeleteConversation(ctx context.Context, id string) error {
	return a.store.Delete(ctx, id)
}

// Executor binds a turn executor to a conversation, wired to the agent's
// backend, registry, store and logger.
func (a *Agent) Executor(conv *core.Conversation) *engine.Executor {
	return engine.NewExecutor(conv, a.backend, a.registry, func(o *engine.Options) {
		o.Logger = a.logger
		o.Store = a.store
	})
}

// Chat runs one synchronous turn and returns its outcome.
func (a *Agent) Chat(ctx context.Context, conv *core.Conversation, userText string) (engine.TurnResult, error) {
	return a.Executor(conv).Invoke(ctx, userText)
}

// Stream starts one turn and returns the live delta channel together with the
// executor, so callers can display increments and request an abort. The caller
// must drain the channel; afterwards the executor's Result holds the outcome.
func (a *Agent) Stream(ctx context.Context, conv *core.Conversation, userText string) (<-chan core.Delta, *engine.Executor, error) {
	exec := a.Executor(conv)
	deltas, err := exec.StartTurn(ctx, userText)
	if err != nil {
		return nil, nil, err
	}
	return deltas, exec, nil
}

// Close shuts down MCP connections.
func (a *Agent) Close() error {
	var firstErr error
	for _, client := range a.mcp {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.mcp = nil
	return firstErr
}

func buildBackend(cfg config.BackendConfig) (backend.Backend, error) {
	switch cfg.Provider {
	case "openai":
		return openaibackend.New(func(o *openaibackend.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
		}), nil
	case "anthropic":
		return anthropicbackend.New(func(o *anthropicbackend.Options) {
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
		}), nil
	default:
		return nil, fmt.Errorf("unsupported backend provider %q", cfg.Provider)
	}
}

func parseLogLevel(level string) logging.LogLevel {
	switch level {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}

// Package mcp exposes tools served by Model Context Protocol servers as
// agentloop capabilities. One Client wraps one server connection; the tools it
// lists become out-of-process capabilities that dispatch through CallTool.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/corentra/agentloop/capability"
	"github.com/corentra/agentloop/logging"
)

const (
	stdioSchemePrefix = "stdio://"
	sseSchemePrefix   = "sse://"
)

// Options configure a Client.
type Options struct {
	Logger logging.Logger
}

// Client manages a lazy connection to a single MCP server identified by a
// transport spec:
//
//	stdio://<command and args>  spawn a local server process over stdio
//	sse://<url>                 server-sent events endpoint
//	http(s)://<url>             streamable HTTP endpoint
//	<command and args>          shorthand for stdio
//
// The connection is established on first use and shared by every capability
// derived from the client.
type Client struct {
	impl          *mcpsdk.Client
	transportSpec string
	logger        logging.Logger

	once       sync.Once
	connectErr error

	mu      sync.Mutex
	session *mcpsdk.ClientSession
	closed  bool
}

// NewClient constructs a client for the given transport spec. No connection is
// made until the first listing or invocation.
func NewClient(spec string, optFns ...func(o *Options)) *Client {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	impl := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "agentloop", Version: "dev"}, nil)
	return &Client{impl: impl, transportSpec: spec, logger: opts.Logger}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("mcp client %s is closed", c.transportSpec)
	}
	c.mu.Unlock()

	c.once.Do(func() {
		transport, err := buildTransport(ctx, c.transportSpec)
		if err != nil {
			c.connectErr = fmt.Errorf("build transport: %w", err)
			return
		}
		session, err := c.impl.Connect(ctx, transport, nil)
		if err != nil {
			c.connectErr = fmt.Errorf("connect %s: %w", c.transportSpec, err)
			return
		}
		c.logger.Info("mcp.connected", "transport", c.transportSpec)
		c.mu.Lock()
		c.session = session
		c.mu.Unlock()
	})
	return c.connectErr
}

func (c *Client) currentSession() *mcpsdk.ClientSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Capabilities lists the server's tools and wraps each one as a capability
// suitable for registry registration.
func (c *Client) Capabilities(ctx context.Context) ([]capability.Capability, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	session := c.currentSession()
	if session == nil {
		return nil, fmt.Errorf("mcp client %s is closed", c.transportSpec)
	}
	var caps []capability.Capability
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		caps = append(caps, &remoteCapability{
			client:      c,
			name:        tool.Name,
			description: tool.Description,
			parameters:  schemaToMap(tool.InputSchema),
		})
	}
	return caps, nil
}

// Close shuts down the underlying session, if any. A closed client stays
// closed: later invocations fail with a connection error instead of
// reconnecting.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

// remoteCapability forwards invocations to the MCP server that declared the tool.
type remoteCapability struct {
	client      *Client
	name        string
	description string
	parameters  map[string]any
}

func (r *remoteCapability) Name() string               { return r.name }
func (r *remoteCapability) Description() string        { return r.description }
func (r *remoteCapability) Parameters() map[string]any { return r.parameters }

// Invoke calls the remote tool. A server-side IsError result is surfaced as a
// Go error so the dispatcher marks the ToolResult accordingly.
func (r *remoteCapability) Invoke(ctx context.Context, args map[string]any) (string, error) {
	if err := r.client.ensureConnected(ctx); err != nil {
		return "", capability.NewCapabilityError(r.name, err.Error(), "CONNECTION_ERROR")
	}
	session := r.client.currentSession()
	if session == nil {
		return "", capability.NewCapabilityError(r.name, fmt.Sprintf("mcp client %s is closed", r.client.transportSpec), "CONNECTION_ERROR")
	}
	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: r.name, Arguments: args})
	if err != nil {
		return "", capability.NewCapabilityError(r.name, err.Error(), "EXECUTION_ERROR")
	}
	text := flattenContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "remote tool reported an error"
		}
		return "", capability.NewCapabilityError(r.name, text, "REMOTE_ERROR")
	}
	return text, nil
}

// flattenContent concatenates textual content blocks in arrival order.
func flattenContent(blocks []mcpsdk.Content) string {
	var sb strings.Builder
	for _, block := range blocks {
		if tc, ok := block.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// schemaToMap normalizes whatever schema representation the SDK surfaces into
// the map form used by core.Descriptor.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

func buildTransport(ctx context.Context, spec string) (mcpsdk.Transport, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("transport spec is empty")
	}

	lowered := strings.ToLower(spec)
	switch {
	case strings.HasPrefix(lowered, stdioSchemePrefix):
		return buildStdioTransport(ctx, spec[len(stdioSchemePrefix):])
	case strings.HasPrefix(lowered, sseSchemePrefix):
		return &mcpsdk.SSEClientTransport{Endpoint: spec[len(sseSchemePrefix):]}, nil
	case strings.HasPrefix(lowered, "http://"), strings.HasPrefix(lowered, "https://"):
		return &mcpsdk.StreamableClientTransport{Endpoint: spec}, nil
	}
	return buildStdioTransport(ctx, spec)
}

func buildStdioTransport(ctx context.Context, cmdSpec string) (mcpsdk.Transport, error) {
	parts := strings.Fields(strings.TrimSpace(cmdSpec))
	if len(parts) == 0 {
		return nil, fmt.Errorf("stdio command is empty")
	}
	// #nosec G204 -- cmdSpec originates from trusted server config, not arbitrary user input
	command := exec.CommandContext(ctx, parts[0], parts[1:]...)
	return &mcpsdk.CommandTransport{Command: command}, nil
}

package core

import "github.com/google/uuid"

// Role identifies the author of a message.
type Role string

const (
	// RoleSystem marks the instruction message that opens a conversation.
	RoleSystem Role = "system"
	// RoleUser marks caller-provided input, including tool result feedback.
	RoleUser Role = "user"
	// RoleAssistant marks model-produced output.
	RoleAssistant Role = "assistant"
)

// FinishReason is the terminal classification of why a model stopped
// generating for one round.
type FinishReason string

const (
	// FinishStop indicates natural completion.
	FinishStop FinishReason = "stop"
	// FinishToolCalls indicates the model requested tool execution.
	FinishToolCalls FinishReason = "tool_calls"
	// FinishLength indicates the output token limit was reached.
	FinishLength FinishReason = "length"
	// FinishUnknown covers vendor-specific reasons with no mapping.
	FinishUnknown FinishReason = "unknown"
	// FinishError indicates the backend reported a generation failure.
	FinishError FinishReason = "error"
)

// Usage captures token accounting for a round or a whole turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage sample into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// ToolCall is a model-issued request to invoke a named capability. Arguments
// is the raw JSON payload reassembled from streaming fragments; it is frozen
// once the terminating fragment arrives.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of dispatching a ToolCall. It is always data,
// never an error value: failures set IsError and describe the problem in
// Content so the model can react to them next round.
type ToolResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message is one frozen entry of a conversation. Assistant messages may carry
// tool calls; the user message that follows carries the matching tool results.
// Field names are stable: persisted history must round-trip unchanged.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Reasoning   string       `json:"reasoning,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// Descriptor declaratively exposes a callable capability to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewID generates a new unique identifier for conversations and responses.
func NewID() string { return uuid.NewString() }

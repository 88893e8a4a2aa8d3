package core

import (
	"errors"
	"sync"
	"time"
)

// ErrTurnInFlight is returned when a turn is started against a conversation
// that is already being driven by an executor.
var ErrTurnInFlight = errors.New("conversation: turn already in flight")

// DefaultMaxRounds bounds the number of model rounds per turn when a
// conversation does not configure its own limit. The round bound is the
// primary anti-runaway control: the model, not the engine, decides whether to
// keep requesting tools.
const DefaultMaxRounds = 10

// Conversation owns the ordered message history of one session together with
// its round counter and cumulative token usage. It is exclusively owned by a
// single turn executor for the duration of a turn (single-writer discipline);
// Acquire/Release enforce that discipline.
//
// Messages are append-only once frozen. The JSON shape is the persistence
// contract: reloading a serialized conversation into a fresh instance must
// reproduce the identical ordered message sequence.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`
	Rounds    int       `json:"rounds"`
	Usage     Usage     `json:"usage"`
	MaxRounds int       `json:"max_rounds"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`

	mu       sync.Mutex
	inFlight bool
}

// NewConversation creates an empty conversation. A non-empty systemPrompt is
// installed as the opening system message.
func NewConversation(id, systemPrompt string) *Conversation {
	if id == "" {
		id = NewID()
	}
	now := time.Now().UTC()
	c := &Conversation{ID: id, Messages: []Message{}, MaxRounds: DefaultMaxRounds, Created: now, Updated: now}
	if systemPrompt != "" {
		c.Messages = append(c.Messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return c
}

// Acquire claims exclusive turn ownership. A second call while a turn is in
// flight fails with ErrTurnInFlight rather than interleaving writers.
func (c *Conversation) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return ErrTurnInFlight
	}
	c.inFlight = true
	return nil
}

// Release returns the conversation to an idle state after a turn.
func (c *Conversation) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
}

// Append adds a frozen message to the history.
func (c *Conversation) Append(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = append(c.Messages, msg)
	c.Updated = time.Now().UTC()
}

// History returns a defensive copy of the ordered message sequence.
func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]Message, len(c.Messages))
	copy(msgs, c.Messages)
	return msgs
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Messages)
}

// IncrementRound bumps the round counter after a completed tool round.
func (c *Conversation) IncrementRound() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Rounds++
}

// AddUsage accumulates token usage reported by the backend.
func (c *Conversation) AddUsage(u Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Usage.Add(u)
}

// SetTitle updates the display title.
func (c *Conversation) SetTitle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Title = title
	c.Updated = time.Now().UTC()
}

// RoundBound returns the configured max-round bound, falling back to
// DefaultMaxRounds when unset.
func (c *Conversation) RoundBound() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.MaxRounds <= 0 {
		return DefaultMaxRounds
	}
	return c.MaxRounds
}

// DeleteRound removes the trailing assistant message together with the user
// message that prompted it. It is a no-op unless the history ends with an
// assistant message.
func (c *Conversation) DeleteRound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.Messages)
	if n < 2 || c.Messages[n-1].Role != RoleAssistant {
		return false
	}
	c.Messages = c.Messages[:n-2]
	c.Updated = time.Now().UTC()
	return true
}

// PopRound removes the trailing assistant/user pair and returns the user text
// so the caller can resend it.
func (c *Conversation) PopRound() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.Messages)
	if n < 2 || c.Messages[n-1].Role != RoleAssistant || c.Messages[n-2].Role != RoleUser {
		return "", false
	}
	text := c.Messages[n-2].Content
	c.Messages = c.Messages[:n-2]
	c.Updated = time.Now().UTC()
	return text, true
}

// Clone returns a deep copy safe for independent mutation. The clone starts
// idle regardless of the source's in-flight state.
func (c *Conversation) Clone() *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		Messages:  make([]Message, len(c.Messages)),
		Rounds:    c.Rounds,
		Usage:     c.Usage,
		MaxRounds: c.MaxRounds,
		Created:   c.Created,
		Updated:   c.Updated,
	}
	for i, m := range c.Messages {
		clone.Messages[i] = cloneMessage(m)
	}
	return clone
}

func cloneMessage(m Message) Message {
	cp := m
	if m.ToolCalls != nil {
		cp.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(cp.ToolCalls, m.ToolCalls)
	}
	if m.ToolResults != nil {
		cp.ToolResults = make([]ToolResult, len(m.ToolResults))
		copy(cp.ToolResults, m.ToolResults)
	}
	return cp
}

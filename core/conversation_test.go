package core

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestConversationSystemMessageFirst(t *testing.T) {
	c := NewConversation("c1", "be helpful")
	if c.Len() != 1 {
		t.Fatalf("expected 1 message got %d", c.Len())
	}
	if got := c.History()[0]; got.Role != RoleSystem || got.Content != "be helpful" {
		t.Fatalf("unexpected system message: %+v", got)
	}
}

func TestConversationAcquireSingleWriter(t *testing.T) {
	c := NewConversation("c1", "")
	if err := c.Acquire(); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := c.Acquire(); err != ErrTurnInFlight {
		t.Fatalf("expected ErrTurnInFlight got %v", err)
	}
	c.Release()
	if err := c.Acquire(); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
}

func TestConversationRoundTrip(t *testing.T) {
	c := NewConversation("c1", "sys")
	c.Append(Message{Role: RoleUser, Content: "2+2?"})
	c.Append(Message{
		Role:    RoleAssistant,
		Content: "let me check",
		ToolCalls: []ToolCall{
			{ID: "1", Name: "add", Arguments: `{"a":1,"b":2}`},
			{ID: "2", Name: "mul", Arguments: `{"a":3,"b":4}`},
		},
	})
	c.Append(Message{
		Role: RoleUser,
		ToolResults: []ToolResult{
			{ID: "1", Name: "add", Content: "3"},
			{ID: "2", Name: "mul", Content: "boom", IsError: true},
		},
	})
	c.Append(Message{Role: RoleAssistant, Content: "4", Reasoning: "trivial"})
	c.Rounds = 2
	c.Usage = Usage{InputTokens: 10, OutputTokens: 20}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored := new(Conversation)
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(c.History(), restored.History()) {
		t.Fatalf("history mismatch:\n%+v\n%+v", c.History(), restored.History())
	}
	if restored.Rounds != 2 || restored.Usage != c.Usage || restored.MaxRounds != c.MaxRounds {
		t.Fatalf("counters not preserved: %+v", restored)
	}
}

func TestConversationDeleteRound(t *testing.T) {
	c := NewConversation("c1", "sys")
	c.Append(Message{Role: RoleUser, Content: "hi"})
	c.Append(Message{Role: RoleAssistant, Content: "hello"})
	if !c.DeleteRound() {
		t.Fatal("expected delete to succeed")
	}
	if c.Len() != 1 {
		t.Fatalf("expected only system message, got %d messages", c.Len())
	}
	// History ending in a user message must not be touched.
	c.Append(Message{Role: RoleUser, Content: "hi again"})
	if c.DeleteRound() {
		t.Fatal("expected delete to be a no-op")
	}
}

func TestConversationPopRound(t *testing.T) {
	c := NewConversation("c1", "sys")
	c.Append(Message{Role: RoleUser, Content: "try again"})
	c.Append(Message{Role: RoleAssistant, Content: "nope"})
	text, ok := c.PopRound()
	if !ok || text != "try again" {
		t.Fatalf("unexpected pop result %q %v", text, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 message got %d", c.Len())
	}
}

func TestConversationCloneIndependence(t *testing.T) {
	c := NewConversation("c1", "sys")
	c.Append(Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1", Name: "add"}}})
	clone := c.Clone()
	clone.Messages[1].ToolCalls[0].Name = "changed"
	if c.History()[1].ToolCalls[0].Name != "add" {
		t.Fatal("clone mutation leaked into original")
	}
}

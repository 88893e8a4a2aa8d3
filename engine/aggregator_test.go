package engine

import (
	"strings"
	"testing"

	"github.com/corentra/agentloop/core"
)

func TestAggregatorTextAccumulation(t *testing.T) {
	agg := NewAggregator()
	agg.Consume(core.Delta{Content: "Hel"})
	agg.Consume(core.Delta{Content: "lo", Reasoning: "thinking"})
	agg.Consume(core.Delta{FinishReason: core.FinishStop, Usage: &core.Usage{InputTokens: 5, OutputTokens: 2}})

	out := agg.Finalize()
	if out.Message.Content != "Hello" || out.Message.Reasoning != "thinking" {
		t.Fatalf("unexpected message: %+v", out.Message)
	}
	if out.FinishReason != core.FinishStop {
		t.Fatalf("unexpected finish: %q", out.FinishReason)
	}
	if out.Usage.InputTokens != 5 || out.Usage.OutputTokens != 2 {
		t.Fatalf("unexpected usage: %+v", out.Usage)
	}
}

// Accumulated argument text must equal the ordered concatenation of fragments
// regardless of how arrival is chunked.
func TestAggregatorChunkingInvariance(t *testing.T) {
	payload := `{"a":1,"b":2}`
	chunkings := [][]string{
		{payload},
		{`{"a":1,`, `"b":2}`},
		{`{`, `"a"`, `:1,"b"`, `:2}`},
	}

	for _, chunks := range chunkings {
		agg := NewAggregator()
		agg.Consume(core.Delta{Calls: []core.ToolCallDelta{{Index: 0, ID: "call_1", Name: "add"}}})
		for _, chunk := range chunks {
			agg.Consume(core.Delta{Calls: []core.ToolCallDelta{{Index: 0, Arguments: chunk}}})
		}
		agg.Consume(core.Delta{FinishReason: core.FinishToolCalls})

		out := agg.Finalize()
		if len(out.ValidCalls) != 1 {
			t.Fatalf("chunking %v: want 1 valid call, got %d", chunks, len(out.ValidCalls))
		}
		if out.ValidCalls[0].Arguments != payload {
			t.Fatalf("chunking %v: got %q", chunks, out.ValidCalls[0].Arguments)
		}
	}
}

// A continuation fragment that omits its call id routes by positional index.
func TestAggregatorIndexFallback(t *testing.T) {
	agg := NewAggregator()
	agg.Consume(core.Delta{Calls: []core.ToolCallDelta{
		{Index: 0, ID: "call_a", Name: "first", Arguments: `{"x":`},
		{Index: 1, ID: "call_b", Name: "second", Arguments: `{"y":`},
	}})
	agg.Consume(core.Delta{Calls: []core.ToolCallDelta{
		{Index: 0, Arguments: `1}`},
		{Index: 1, Arguments: `2}`},
	}})
	agg.Consume(core.Delta{FinishReason: core.FinishToolCalls})

	out := agg.Finalize()
	if len(out.ValidCalls) != 2 {
		t.Fatalf("want 2 valid calls, got %+v", out)
	}
	if out.ValidCalls[0].Arguments != `{"x":1}` || out.ValidCalls[1].Arguments != `{"y":2}` {
		t.Fatalf("index routing broke payloads: %+v", out.ValidCalls)
	}
}

func TestAggregatorMalformedCallFailsIndependently(t *testing.T) {
	agg := NewAggregator()
	agg.Consume(core.Delta{Calls: []core.ToolCallDelta{{Index: 0, ID: "good", Name: "add", Arguments: `{"a":1}`}}})
	agg.Consume(core.Delta{Calls: []core.ToolCallDelta{{Index: 1, ID: "bad", Name: "add", Arguments: `{"a":`}}})
	agg.Consume(core.Delta{FinishReason: core.FinishToolCalls})

	out := agg.Finalize()
	if len(out.ValidCalls) != 1 || out.ValidCalls[0].ID != "good" {
		t.Fatalf("valid calls: %+v", out.ValidCalls)
	}
	failure, ok := out.Failures["bad"]
	if !ok || !failure.IsError || !strings.HasPrefix(failure.Content, "MalformedToolArguments:") {
		t.Fatalf("failure result: %+v", failure)
	}
	// The history message still carries both calls.
	if len(out.Message.ToolCalls) != 2 {
		t.Fatalf("message calls: %+v", out.Message.ToolCalls)
	}
}

func TestAggregatorEmptyPayloadIsEmptyObject(t *testing.T) {
	agg := NewAggregator()
	agg.Consume(core.Delta{Calls: []core.ToolCallDelta{{Index: 0, ID: "call_1", Name: "ping"}}})
	agg.Consume(core.Delta{FinishReason: core.FinishToolCalls})

	out := agg.Finalize()
	if len(out.ValidCalls) != 1 || out.ValidCalls[0].Arguments != "{}" {
		t.Fatalf("unexpected calls: %+v", out.ValidCalls)
	}
}

// A call id reappearing at a higher index after completion poisons only that
// call, never the round.
func TestAggregatorReappearingIDPoisonsCall(t *testing.T) {
	agg := NewAggregator()
	agg.Consume(core.Delta{Calls: []core.ToolCallDelta{{Index: 0, ID: "call_1", Name: "add", Arguments: `{"a":1}`}}})
	agg.Consume(core.Delta{Calls: []core.ToolCallDelta{{Index: 1, ID: "call_2", Name: "mul", Arguments: `{"b":2}`}}})
	agg.Consume(core.Delta{Calls: []core.ToolCallDelta{{Index: 2, ID: "call_1", Arguments: `{"again":true}`}}})
	agg.Consume(core.Delta{FinishReason: core.FinishToolCalls})

	out := agg.Finalize()
	if len(out.ValidCalls) != 1 || out.ValidCalls[0].ID != "call_2" {
		t.Fatalf("valid calls: %+v", out.ValidCalls)
	}
	failure, ok := out.Failures["call_1"]
	if !ok || !failure.IsError {
		t.Fatalf("expected call_1 poisoned, failures: %+v", out.Failures)
	}
}

// A declared finish reason is authoritative: fragments arriving after it are
// discarded while usage updates still apply.
func TestAggregatorTerminalIsAuthoritative(t *testing.T) {
	agg := NewAggregator()
	agg.Consume(core.Delta{Content: "done"})
	agg.Consume(core.Delta{FinishReason: core.FinishStop})
	agg.Consume(core.Delta{Content: "late", Calls: []core.ToolCallDelta{{Index: 0, ID: "x", Name: "noop"}}})
	agg.Consume(core.Delta{Usage: &core.Usage{InputTokens: 7, OutputTokens: 3}})

	out := agg.Finalize()
	if out.Message.Content != "done" {
		t.Fatalf("late content not discarded: %q", out.Message.Content)
	}
	if len(out.Message.ToolCalls) != 0 {
		t.Fatalf("late call not discarded: %+v", out.Message.ToolCalls)
	}
	if out.Usage.InputTokens != 7 {
		t.Fatalf("post-terminal usage lost: %+v", out.Usage)
	}
}

func TestAggregatorResponseIDFirstNonEmpty(t *testing.T) {
	agg := NewAggregator()
	agg.Consume(core.Delta{Content: "no id yet"})
	agg.Consume(core.Delta{ID: "resp-1", Content: "first"})
	agg.Consume(core.Delta{ID: "resp-2", FinishReason: core.FinishStop})

	out := agg.Finalize()
	if out.ResponseID != "resp-1" {
		t.Fatalf("want first non-empty response id, got %q", out.ResponseID)
	}
}

func TestAggregatorSnapshotFreezesPartialOutput(t *testing.T) {
	agg := NewAggregator()
	agg.Consume(core.Delta{Content: "partial answ"})
	agg.Consume(core.Delta{Calls: []core.ToolCallDelta{{Index: 0, ID: "call_1", Name: "add", Arguments: `{"a":`}}})

	msg := agg.Snapshot()
	if msg.Content != "partial answ" || msg.Role != core.RoleAssistant {
		t.Fatalf("unexpected snapshot: %+v", msg)
	}
	if len(msg.ToolCalls) != 0 {
		t.Fatalf("snapshot must drop in-progress calls: %+v", msg.ToolCalls)
	}
}

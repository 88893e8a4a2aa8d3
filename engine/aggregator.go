package engine

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/corentra/agentloop/core"
)

// callBuilder accumulates one tool call from streamed fragments. Argument
// fragments append in arrival order; the builder freezes once a later call
// starts or the stream declares a finish reason.
type callBuilder struct {
	index  int
	id     string
	name   string
	args   strings.Builder
	frozen bool
	// failReason poisons the call without failing the turn. Set when the
	// call's id reappears after freezing or its payload never parses.
	failReason string
}

// Aggregate is the reduced outcome of one model round.
type Aggregate struct {
	// ResponseID is the first non-empty response id seen on the stream.
	ResponseID string
	// Message carries accumulated text, reasoning and every finalized tool
	// call in declaration order, including calls whose payload failed to
	// parse (their raw payload is preserved for the history).
	Message core.Message
	// ValidCalls are the subset of Message.ToolCalls safe to dispatch.
	ValidCalls []core.ToolCall
	// Failures maps call id to a precomputed error result for calls that
	// failed aggregation. They are fed back to the model instead of being
	// dispatched.
	Failures     map[string]core.ToolResult
	FinishReason core.FinishReason
	Usage        core.Usage
}

// Aggregator reduces a lazy sequence of streaming deltas into one assistant
// message. Text and reasoning fragments append in arrival order. Tool-call
// fragments route by call id; a continuation fragment without an id routes by
// its positional index. Finish reason and usage are last-write-wins, the
// response id keeps its first non-empty value. Once a
// finish reason has been observed, late text and call fragments are discarded
// while usage updates still apply.
type Aggregator struct {
	responseID string
	content    strings.Builder
	reasoning  strings.Builder
	builders   []*callBuilder
	byID       map[string]*callBuilder
	byIndex    map[int]*callBuilder
	finish     core.FinishReason
	usage      core.Usage
	terminal   bool
}

// NewAggregator returns an empty aggregator for one round.
func NewAggregator() *Aggregator {
	return &Aggregator{
		byID:    make(map[string]*callBuilder),
		byIndex: make(map[int]*callBuilder),
	}
}

// Consume folds one delta into the accumulated state.
func (a *Aggregator) Consume(d core.Delta) {
	if a.responseID == "" {
		a.responseID = d.ID
	}
	if d.Usage != nil {
		a.usage = *d.Usage
	}

	if !a.terminal {
		a.content.WriteString(d.Content)
		a.reasoning.WriteString(d.Reasoning)
		for _, frag := range d.Calls {
			a.consumeFragment(frag)
		}
	}

	if d.FinishReason != "" {
		a.finish = d.FinishReason
		a.terminal = true
	}
}

func (a *Aggregator) consumeFragment(frag core.ToolCallDelta) {
	if frag.ID != "" {
		if b, ok := a.byID[frag.ID]; ok {
			if b.frozen && frag.Index > b.index {
				// The id came back as a new call after completion. Protocol
				// violation: poison this call only, the round survives.
				b.failReason = fmt.Sprintf("MalformedToolArguments: call %s reappeared after completion", frag.ID)
				return
			}
			a.appendFragment(b, frag)
			return
		}
		b := a.builderAt(frag.Index)
		if b.id == "" {
			b.id = frag.ID
			a.byID[frag.ID] = b
		} else if b.id != frag.ID {
			// A different id at an occupied index starts a new call.
			b = a.newBuilder(frag.Index)
			b.id = frag.ID
			a.byID[frag.ID] = b
		}
		a.appendFragment(b, frag)
		return
	}

	// Continuation without an id routes to the builder last seen at this
	// positional index.
	a.appendFragment(a.builderAt(frag.Index), frag)
}

// builderAt returns the live builder at index, creating one if needed. A new
// index freezes every lower-index builder: providers start a new call only
// after the previous one's payload is complete.
func (a *Aggregator) builderAt(index int) *callBuilder {
	if b, ok := a.byIndex[index]; ok {
		return b
	}
	return a.newBuilder(index)
}

func (a *Aggregator) newBuilder(index int) *callBuilder {
	for _, b := range a.builders {
		if b.index < index {
			b.frozen = true
		}
	}
	b := &callBuilder{index: index}
	a.builders = append(a.builders, b)
	a.byIndex[index] = b
	return b
}

func (a *Aggregator) appendFragment(b *callBuilder, frag core.ToolCallDelta) {
	if b.failReason != "" {
		return
	}
	if frag.Name != "" {
		b.name = frag.Name
	}
	b.args.WriteString(frag.Arguments)
}

// FinishReason reports the last finish reason observed so far.
func (a *Aggregator) FinishReason() core.FinishReason { return a.finish }

// Usage reports the last usage counters observed so far.
func (a *Aggregator) Usage() core.Usage { return a.usage }

// Snapshot freezes the partial text and reasoning accumulated so far into an
// assistant message, dropping in-progress tool calls. Used when a turn is
// aborted mid-stream: already-surfaced content is never discarded.
func (a *Aggregator) Snapshot() core.Message {
	return core.Message{
		Role:      core.RoleAssistant,
		Content:   a.content.String(),
		Reasoning: a.reasoning.String(),
	}
}

// Finalize reduces the consumed stream into an Aggregate. Each call's
// concatenated payload must parse as a JSON object; an empty payload counts as
// the empty object. Calls that fail to parse, or were poisoned during
// consumption, fail independently with an error result in Failures while
// still appearing in Message.ToolCalls so the history stays well formed.
func (a *Aggregator) Finalize() Aggregate {
	agg := Aggregate{
		ResponseID: a.responseID,
		Message: core.Message{
			Role:      core.RoleAssistant,
			Content:   a.content.String(),
			Reasoning: a.reasoning.String(),
		},
		Failures:     make(map[string]core.ToolResult),
		FinishReason: a.finish,
		Usage:        a.usage,
	}

	for _, b := range a.builders {
		call := core.ToolCall{ID: b.id, Name: b.name, Arguments: b.args.String()}
		if call.ID == "" {
			call.ID = core.NewID()
			if b.failReason == "" {
				b.failReason = "MalformedToolArguments: tool call without id"
			}
		}
		if call.Arguments == "" {
			call.Arguments = "{}"
		}
		if b.failReason == "" && !gjson.Valid(call.Arguments) {
			b.failReason = fmt.Sprintf("MalformedToolArguments: invalid payload for call %s", call.ID)
		}

		agg.Message.ToolCalls = append(agg.Message.ToolCalls, call)
		if b.failReason != "" {
			agg.Failures[call.ID] = core.ToolResult{
				ID:      call.ID,
				Name:    call.Name,
				Content: b.failReason,
				IsError: true,
			}
			continue
		}
		agg.ValidCalls = append(agg.ValidCalls, call)
	}

	return agg
}

// Package backend defines the contract between the turn executor and a model
// provider. Adapters translate the normalized request into provider wire
// formats and report output either as a stream of deltas or as one complete
// result.
package backend

import (
	"context"

	"github.com/corentra/agentloop/core"
)

// Request is a normalized generation request. The full conversation history is
// sent on every call; adapters decide how to encode roles and tool traffic for
// their provider.
type Request struct {
	// Messages is the ordered history, system message first.
	Messages []core.Message
	// Descriptors advertises the invokable capabilities for this turn.
	Descriptors []core.Descriptor
	// Temperature overrides the adapter default when non-nil.
	Temperature *float64
	// MaxTokens overrides the adapter default when positive.
	MaxTokens int64
}

// Result is one complete model response.
type Result struct {
	Message      core.Message
	FinishReason core.FinishReason
	Usage        core.Usage
}

// Info describes a backend implementation.
type Info struct {
	Name          string
	Provider      string
	SupportsTools bool
}

// Backend generates model output for a request.
//
// StreamTurn returns a delta channel and an error channel; both are closed
// when the turn ends. Fragmented tool-call deltas are forwarded as received,
// reassembly is the caller's concern. InvokeTurn runs the same request to
// completion without incremental delivery.
type Backend interface {
	StreamTurn(ctx context.Context, req Request) (<-chan core.Delta, <-chan error)
	InvokeTurn(ctx context.Context, req Request) (*Result, error)
	Info() Info
}

package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/corentra/agentloop/core"
)

// Script is one canned model response. StreamTurn replays Deltas in order,
// InvokeTurn returns Result. Err aborts the call after any deltas were sent.
type Script struct {
	Deltas []core.Delta
	Result *Result
	Err    error
}

// ScriptedBackend replays canned responses in registration order. It records
// every request it receives so tests can assert on the history and descriptors
// an executor sent. Safe for use from a single executor goroutine at a time.
type ScriptedBackend struct {
	mu       sync.Mutex
	scripts  []Script
	requests []Request
}

// NewScriptedBackend builds a backend that serves the given scripts in order.
func NewScriptedBackend(scripts ...Script) *ScriptedBackend {
	return &ScriptedBackend{scripts: scripts}
}

// StreamTurn replays the next script as a delta stream. Replay honors context
// cancellation between deltas so abort tests observe partial output.
func (s *ScriptedBackend) StreamTurn(ctx context.Context, req Request) (<-chan core.Delta, <-chan error) {
	out := make(chan core.Delta, 32)
	errCh := make(chan error, 1)

	script, err := s.next(req)

	go func() {
		defer close(out)
		defer close(errCh)
		if err != nil {
			errCh <- err
			return
		}
		for _, delta := range script.Deltas {
			select {
			case out <- delta:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if script.Err != nil {
			errCh <- script.Err
		}
	}()

	return out, errCh
}

// InvokeTurn returns the next script's Result.
func (s *ScriptedBackend) InvokeTurn(ctx context.Context, req Request) (*Result, error) {
	script, err := s.next(req)
	if err != nil {
		return nil, err
	}
	if script.Err != nil {
		return nil, script.Err
	}
	if script.Result == nil {
		return nil, fmt.Errorf("scripted backend: script has no result")
	}
	return script.Result, nil
}

// Info identifies the double.
func (s *ScriptedBackend) Info() Info {
	return Info{Name: "scripted", Provider: "test", SupportsTools: true}
}

// Requests returns a copy of every request received so far.
func (s *ScriptedBackend) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *ScriptedBackend) next(req Request) (Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.scripts) == 0 {
		return Script{}, fmt.Errorf("scripted backend: no script for call %d", len(s.requests))
	}
	script := s.scripts[0]
	s.scripts = s.scripts[1:]
	return script, nil
}

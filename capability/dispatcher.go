package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/corentra/agentloop/core"
	"github.com/corentra/agentloop/logging"
)

// DispatcherConfig configures the dispatcher.
type DispatcherConfig struct {
	// Timeout bounds a single capability invocation. Zero means no limit; a
	// hit timeout is mapped to an error ToolResult, never propagated.
	Timeout time.Duration
	// MaxParallel limits concurrent dispatch within one batch.
	// 0 or <1 => no explicit limit (len(calls)).
	MaxParallel int
	// Logger receives per-call execution records.
	Logger logging.Logger
}

// Dispatcher resolves tool calls against a registry and invokes them. It
// always returns data (text plus error flag) and never raises: a lookup miss,
// malformed arguments, a timeout or a panic inside a capability all become
// error ToolResults so one bad call cannot abort sibling calls in the same
// round.
type Dispatcher struct {
	registry *Registry
	cfg      DispatcherConfig
}

// NewDispatcher constructs a dispatcher over the given registry.
func NewDispatcher(registry *Registry, optFns ...func(o *DispatcherConfig)) *Dispatcher {
	cfg := DispatcherConfig{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &Dispatcher{registry: registry, cfg: cfg}
}

// Execute runs a single tool call to completion and reports its outcome as a
// ToolResult.
func (d *Dispatcher) Execute(ctx context.Context, call core.ToolCall) core.ToolResult {
	capImpl, ok := d.registry.Resolve(call.Name)
	if !ok {
		d.cfg.Logger.Warn("dispatch.unknown_capability", "capability", call.Name, "call_id", call.ID)
		return errorResult(call, fmt.Sprintf("UnknownCapability: %s", call.Name))
	}

	args, err := parseArguments(call.Arguments)
	if err != nil {
		d.cfg.Logger.Warn("dispatch.malformed_arguments", "capability", call.Name, "call_id", call.ID, "error", err.Error())
		return errorResult(call, fmt.Sprintf("MalformedToolArguments: %v", err))
	}

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := invokeSafely(ctx, capImpl, args)
	dur := time.Since(start)

	d.cfg.Logger.Info(
		"dispatch.executed",
		"capability", call.Name,
		"call_id", call.ID,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errorResult(call, fmt.Sprintf("capability %s aborted: %v", call.Name, ctxErr))
		}
		return errorResult(call, err.Error())
	}

	return core.ToolResult{ID: call.ID, Name: call.Name, Content: text}
}

// ExecuteBatch dispatches every call of one round. Calls may run concurrently
// bounded by MaxParallel, but results are always resequenced into declaration
// order: the order calls were issued defines the order results are fed back,
// independent of completion order.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, calls []core.ToolCall) []core.ToolResult {
	n := len(calls)
	if n == 0 {
		return nil
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		return []core.ToolResult{d.Execute(ctx, calls[0])}
	}

	maxPar := d.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]core.ToolResult, n)
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		if ctx.Err() != nil { // pre-check cancellation
			results[i] = errorResult(calls[i], fmt.Sprintf("capability %s aborted: %v", calls[i].Name, ctx.Err()))
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call core.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = d.Execute(ctx, call)
		}(i, calls[i])
	}
	wg.Wait()

	d.cfg.Logger.Debug(
		"dispatch.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

// invokeSafely shields the dispatcher from panicking capabilities.
func invokeSafely(ctx context.Context, c Capability, args map[string]any) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capability %s panicked: %v", c.Name(), r)
		}
	}()
	return c.Invoke(ctx, args)
}

func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func errorResult(call core.ToolCall, content string) core.ToolResult {
	return core.ToolResult{ID: call.ID, Name: call.Name, Content: content, IsError: true}
}

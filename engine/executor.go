// Package engine drives a conversation through turns: model generation, tool
// call extraction, tool execution and feedback, repeated until a terminal
// state or the round bound is reached.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/corentra/agentloop/backend"
	"github.com/corentra/agentloop/capability"
	"github.com/corentra/agentloop/core"
	"github.com/corentra/agentloop/logging"
	"github.com/corentra/agentloop/session"
)

// Options configure an Executor.
type Options struct {
	// Logger receives turn lifecycle records.
	Logger logging.Logger
	// Store, when set, persists the conversation after every terminal state.
	Store session.Store
	// Dispatcher overrides the default dispatcher built over the registry.
	Dispatcher *capability.Dispatcher
	// Capabilities restricts the descriptors advertised to the model.
	// Nil advertises every registered capability.
	Capabilities []string
	// MaxRounds overrides the conversation's round bound when positive.
	MaxRounds int
}

// TurnResult is the observable outcome of one turn. Every terminal state is
// an explicit value, never silent.
type TurnResult struct {
	// State is one of StateFinished, StateAborted, StateFailed.
	State State
	// FinishReason is the last reason reported by the model.
	FinishReason core.FinishReason
	// BudgetExhausted is set when the turn ended because the round bound was
	// reached while the model still wanted tools executed. This is a defined
	// terminal condition, not an error.
	BudgetExhausted bool
	// Message is the final assistant message appended, if any.
	Message core.Message
	// Rounds counts the model generations consumed by this turn.
	Rounds int
	// Usage sums the token usage of this turn.
	Usage core.Usage
	// Err is set only when State is StateFailed.
	Err error
}

// Executor owns one conversation for the duration of each turn and drives the
// round loop against a backend and a capability registry. A second StartTurn
// while one is in flight is rejected with core.ErrTurnInFlight.
type Executor struct {
	backend    backend.Backend
	registry   *capability.Registry
	dispatcher *capability.Dispatcher
	conv       *core.Conversation
	opts       Options

	state atomic.Int32

	mu      sync.Mutex
	cancel  context.CancelFunc
	aborted bool
	result  TurnResult
}

// NewExecutor binds an executor to a conversation.
func NewExecutor(conv *core.Conversation, b backend.Backend, registry *capability.Registry, optFns ...func(o *Options)) *Executor {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = capability.NewDispatcher(registry, func(o *capability.DispatcherConfig) {
			o.Logger = opts.Logger
		})
	}
	return &Executor{
		backend:    b,
		registry:   registry,
		dispatcher: dispatcher,
		conv:       conv,
		opts:       opts,
	}
}

// State reports the executor's current position in the state machine.
func (e *Executor) State() State { return State(e.state.Load()) }

// History returns the conversation's ordered message sequence.
func (e *Executor) History() []core.Message { return e.conv.History() }

// Conversation returns the owned conversation.
func (e *Executor) Conversation() *core.Conversation { return e.conv }

// Result returns the outcome of the most recent turn. Valid once the delta
// channel returned by StartTurn has closed.
func (e *Executor) Result() TurnResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// RequestAbort asks the in-flight turn to stop at its next suspension point.
// Partial output produced so far is frozen and appended, never discarded.
// Calling it again has no further effect.
func (e *Executor) RequestAbort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.aborted {
		return
	}
	e.aborted = true
	if e.cancel != nil {
		e.cancel()
	}
}

// StartTurn appends the user message and runs the round loop in the
// background. The returned channel passes through every delta for real-time
// display and closes when the turn reaches a terminal state; the caller must
// drain it. Afterwards Result holds the outcome.
func (e *Executor) StartTurn(ctx context.Context, userText string) (<-chan core.Delta, error) {
	if err := e.conv.Acquire(); err != nil {
		return nil, err
	}

	turnCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.aborted = false
	e.result = TurnResult{}
	e.mu.Unlock()

	if userText != "" {
		e.conv.Append(core.Message{Role: core.RoleUser, Content: userText})
	}

	out := make(chan core.Delta, 64)
	go e.run(turnCtx, out)
	return out, nil
}

// Invoke runs a full turn without incremental delivery: it starts the turn,
// drains the stream and returns the outcome.
func (e *Executor) Invoke(ctx context.Context, userText string) (TurnResult, error) {
	deltas, err := e.StartTurn(ctx, userText)
	if err != nil {
		return TurnResult{}, err
	}
	for range deltas {
	}
	result := e.Result()
	return result, result.Err
}

func (e *Executor) run(ctx context.Context, out chan<- core.Delta) {
	var turn TurnResult
	defer func() {
		e.mu.Lock()
		e.result = turn
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.mu.Unlock()
		e.state.Store(int32(turn.State))
		e.conv.Release()
		e.persist()
		close(out)
		e.opts.Logger.Info(
			"turn.end",
			"conversation", e.conv.ID,
			"state", turn.State.String(),
			"rounds", turn.Rounds,
			"budget_exhausted", turn.BudgetExhausted,
		)
	}()

	maxRounds := e.conv.RoundBound()
	if e.opts.MaxRounds > 0 {
		maxRounds = e.opts.MaxRounds
	}

	for round := 1; ; round++ {
		e.state.Store(int32(StateAwaitingModel))
		e.opts.Logger.Info("turn.round.start", "conversation", e.conv.ID, "round", round, "max_rounds", maxRounds)

		req := backend.Request{
			Messages:    e.conv.History(),
			Descriptors: e.registry.Descriptors(e.opts.Capabilities),
		}
		deltas, errs := e.backend.StreamTurn(ctx, req)

		e.state.Store(int32(StateAggregatingStream))
		agg := NewAggregator()
		streamErr := e.consume(ctx, agg, deltas, errs, out)

		if streamErr != nil {
			if e.wasAborted() || errors.Is(streamErr, context.Canceled) {
				turn = e.freezePartial(turn, agg)
				return
			}
			turn.State = StateFailed
			turn.Err = &BackendError{Err: streamErr}
			e.opts.Logger.Error("turn.backend_error", "conversation", e.conv.ID, "round", round, "error", streamErr.Error())
			return
		}
		if e.wasAborted() {
			turn = e.freezePartial(turn, agg)
			return
		}

		aggregate := agg.Finalize()
		turn.FinishReason = aggregate.FinishReason

		// An error finish fails the turn like a stream failure: nothing is
		// appended and the round counter stays untouched.
		if aggregate.FinishReason == core.FinishError {
			turn.State = StateFailed
			turn.Err = &BackendError{Err: fmt.Errorf("model reported error finish")}
			return
		}

		e.conv.IncrementRound()
		e.conv.AddUsage(aggregate.Usage)
		turn.Rounds++
		turn.Usage.Add(aggregate.Usage)
		e.opts.Logger.Debug(
			"turn.round.aggregated",
			"conversation", e.conv.ID,
			"round", round,
			"finish", string(aggregate.FinishReason),
			"content_len", len(aggregate.Message.Content),
			"tool_calls", len(aggregate.Message.ToolCalls),
		)

		switch aggregate.FinishReason {
		case core.FinishToolCalls:
			if len(aggregate.ValidCalls) == 0 {
				turn.State = StateFailed
				turn.Err = ErrNoValidToolCalls
				return
			}
			e.conv.Append(aggregate.Message)
			turn.Message = aggregate.Message

			if round >= maxRounds {
				// The model still wants tools but the budget is spent. The
				// assistant message stays, its calls unexecuted.
				turn.State = StateFinished
				turn.BudgetExhausted = true
				e.opts.Logger.Warn("turn.budget_exhausted", "conversation", e.conv.ID, "rounds", round)
				return
			}

			e.state.Store(int32(StateExecutingTools))
			results := e.executeRound(ctx, aggregate)
			e.conv.Append(core.Message{Role: core.RoleUser, ToolResults: results})

			if e.wasAborted() || ctx.Err() != nil {
				turn.State = StateAborted
				turn.FinishReason = core.FinishUnknown
				return
			}

		default:
			// stop, length-limit, unknown or a stream that never declared a
			// finish reason all end the turn normally.
			if turn.FinishReason == "" {
				turn.FinishReason = core.FinishUnknown
			}
			e.conv.Append(aggregate.Message)
			turn.Message = aggregate.Message
			turn.State = StateFinished
			return
		}
	}
}

// consume drains the delta and error channels, folding deltas into the
// aggregator and passing them through to the caller. It returns the stream
// error, context cancellation included, or nil on clean exhaustion.
func (e *Executor) consume(
	ctx context.Context,
	agg *Aggregator,
	deltas <-chan core.Delta,
	errs <-chan error,
	out chan<- core.Delta,
) error {
	var streamErr error
	for deltas != nil || errs != nil {
		select {
		case d, ok := <-deltas:
			if !ok {
				deltas = nil
				continue
			}
			agg.Consume(d)
			select {
			case out <- d:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && streamErr == nil {
				streamErr = err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return streamErr
}

// executeRound dispatches the round's valid calls and reassembles results into
// declaration order, slotting in precomputed failure results for calls that
// did not survive aggregation.
func (e *Executor) executeRound(ctx context.Context, aggregate Aggregate) []core.ToolResult {
	dispatched := e.dispatcher.ExecuteBatch(ctx, aggregate.ValidCalls)

	results := make([]core.ToolResult, 0, len(aggregate.Message.ToolCalls))
	next := 0
	for _, call := range aggregate.Message.ToolCalls {
		if failure, ok := aggregate.Failures[call.ID]; ok {
			results = append(results, failure)
			continue
		}
		if next < len(dispatched) {
			results = append(results, dispatched[next])
			next++
		}
	}
	return results
}

// freezePartial appends whatever text and reasoning the stream surfaced before
// the abort, exactly as if the stream had ended with an unknown finish reason.
func (e *Executor) freezePartial(turn TurnResult, agg *Aggregator) TurnResult {
	msg := agg.Snapshot()
	e.conv.Append(msg)
	turn.State = StateAborted
	turn.FinishReason = core.FinishUnknown
	turn.Message = msg
	if u := agg.Usage(); u.InputTokens > 0 || u.OutputTokens > 0 {
		e.conv.AddUsage(u)
		turn.Usage.Add(u)
	}
	e.opts.Logger.Info("turn.aborted", "conversation", e.conv.ID, "partial_len", len(msg.Content))
	return turn
}

func (e *Executor) wasAborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborted
}

func (e *Executor) persist() {
	if e.opts.Store == nil {
		return
	}
	if err := e.opts.Store.Save(context.Background(), e.conv); err != nil {
		e.opts.Logger.Error("turn.persist_failed", "conversation", e.conv.ID, "error", err.Error())
	}
}

const titleInstruction = "Generate a concise title (at most eight words) summarizing this conversation. Reply with the title only, no quotes."

// GenerateTitle asks the backend for a short conversation title using a
// one-shot low-temperature request over a copy of the history, then stores it
// on the conversation.
func (e *Executor) GenerateTitle(ctx context.Context) (string, error) {
	history := e.conv.History()
	messages := append(history, core.Message{Role: core.RoleUser, Content: titleInstruction})

	temperature := 0.2
	result, err := e.backend.InvokeTurn(ctx, backend.Request{
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   64,
	})
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}

	title := strings.TrimSpace(result.Message.Content)
	title = strings.Trim(title, "\"'")
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = strings.TrimSpace(title[:idx])
	}
	if title != "" {
		e.conv.SetTitle(title)
	}
	return title, nil
}

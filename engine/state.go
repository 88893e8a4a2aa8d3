package engine

// State is the executor's position in the turn state machine.
type State int32

const (
	// StateIdle means no turn has started yet or the executor is between turns.
	StateIdle State = iota
	// StateAwaitingModel means a generation request is being issued.
	StateAwaitingModel
	// StateAggregatingStream means increments are being consumed and reduced.
	StateAggregatingStream
	// StateExecutingTools means requested calls are being dispatched.
	StateExecutingTools
	// StateFinished is the normal terminal state.
	StateFinished
	// StateAborted is the terminal state after a caller-requested abort.
	StateAborted
	// StateFailed is the terminal state after a backend-level failure.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateAggregatingStream:
		return "aggregating_stream"
	case StateExecutingTools:
		return "executing_tools"
	case StateFinished:
		return "finished"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a turn.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateAborted || s == StateFailed
}

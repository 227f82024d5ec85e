package pipeline

// State is the lifecycle stage of a session. Transitions go
// Idle -> Profiling -> Running -> Draining -> Stopped; Error is reachable
// from any non-terminal state.
type State uint32

const (
	StateIdle State = iota
	StateProfiling
	StateRunning
	StateDraining
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProfiling:
		return "profiling"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateError
}

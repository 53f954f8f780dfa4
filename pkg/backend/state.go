package backend

// State is the debug session state. Transitions follow a fixed edge
// set shared by all backends; ErrorState is reachable from any state on
// unrecoverable failure.
type State int

const (
	// StateInactive is the initial state, before launch or attach.
	StateInactive State = iota
	// StateStarting covers launch/attach until the target is under
	// debugger control.
	StateStarting
	// StateRunning means the target executes; inspection is forbidden.
	StateRunning
	// StatePaused means the target is stopped and inspectable.
	StatePaused
	// StateStepping is the transient state of an in-flight step; like
	// StateRunning it forbids inspection.
	StateStepping
	// StateStopping covers detach/terminate teardown.
	StateStopping
	// StateTerminated is the final state of an ended session.
	StateTerminated
	// StateError marks an unrecoverable backend failure.
	StateError
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStepping:
		return "stepping"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// validTransitions is the edge set of the session state machine.
var validTransitions = map[State][]State{
	StateInactive: {StateStarting},
	StateStarting: {StateRunning, StatePaused, StateStopping, StateTerminated},
	StateRunning:  {StatePaused, StateStepping, StateStopping, StateTerminated},
	StatePaused:   {StateRunning, StateStepping, StateStopping, StateTerminated},
	StateStepping: {StateRunning, StatePaused, StateStopping, StateTerminated},
	StateStopping: {StateTerminated},
	StateError:    {StateStopping, StateTerminated},
}

// CanTransition reports whether from -> to is a legal edge. StateError
// is reachable from every state.
func CanTransition(from, to State) bool {
	if to == StateError {
		return from != StateTerminated
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanInspect reports whether the state permits stack, variable,
// register and memory reads.
func CanInspect(s State) bool { return s == StatePaused }

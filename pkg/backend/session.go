package backend

import (
	"sync"

	"github.com/google/uuid"
)

// eventQueueSize bounds the session event channel. The consumer (the
// debug manager or the DAP server) is expected to drain continuously;
// if it stalls, events are dropped rather than deadlocking the
// dispatcher.
const eventQueueSize = 256

// Session is one attached or launched debug target. It is owned by
// exactly one Debugger instance, created on Launch/Attach and destroyed
// on Terminate/Detach. No session state is shared across sessions.
type Session struct {
	// ID identifies the session to external collaborators.
	ID string

	mu           sync.Mutex
	state        State
	activeThread int
	activeFrame  int
	targetPid    int
	remote       string

	// Breakpoints is the session breakpoint/watch table.
	Breakpoints *BreakpointTable

	events    chan Event
	eventsMu  sync.Mutex
	closed    bool
	errorSent bool
}

// NewSession returns an inactive session with a fresh identity.
func NewSession() *Session {
	return &Session{
		ID:          uuid.New().String(),
		state:       StateInactive,
		Breakpoints: NewBreakpointTable(),
		events:      make(chan Event, eventQueueSize),
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState performs the from->to transition, emitting an
// EventStateChanged. Illegal edges return InvalidStateError and leave
// the state untouched.
func (s *Session) SetState(to State) error {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return nil
	}
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return &InvalidStateError{Op: "enter state " + to.String(), State: from}
	}
	s.state = to
	s.mu.Unlock()

	s.Emit(Event{Kind: EventStateChanged, OldState: from, NewState: to})
	return nil
}

// RequireInspectable fails fast with InvalidStateError unless the
// session is paused. Stack, variable, register and memory reads call
// this before touching the backend.
func (s *Session) RequireInspectable(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanInspect(s.state) {
		return &InvalidStateError{Op: op, State: s.state}
	}
	return nil
}

// ActiveThread returns the currently selected thread id.
func (s *Session) ActiveThread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeThread
}

// SetActiveThread selects the current thread.
func (s *Session) SetActiveThread(id int) {
	s.mu.Lock()
	s.activeThread = id
	s.mu.Unlock()
}

// ActiveFrame returns the currently selected stack frame index.
func (s *Session) ActiveFrame() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeFrame
}

// SetActiveFrame selects the current stack frame index.
func (s *Session) SetActiveFrame(idx int) {
	s.mu.Lock()
	s.activeFrame = idx
	s.mu.Unlock()
}

// TargetPid returns the debug target's process id, or 0.
func (s *Session) TargetPid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetPid
}

// SetTarget records the target identity (local pid or remote endpoint).
func (s *Session) SetTarget(pid int, remote string) {
	s.mu.Lock()
	s.targetPid = pid
	s.remote = remote
	s.mu.Unlock()
}

// RemoteEndpoint returns the remote target address, or "".
func (s *Session) RemoteEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// Events is the typed session event stream consumed by the debug
// manager. The channel closes when the session is destroyed.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Emit publishes an event without ever blocking the dispatcher; if the
// consumer stalled long enough to fill the queue the event is dropped.
func (s *Session) Emit(ev Event) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.closed {
		return
	}
	if ev.Kind == EventError {
		// Process-level fatal errors are surfaced exactly once.
		if s.errorSent {
			return
		}
		s.errorSent = true
	}
	select {
	case s.events <- ev:
	default:
	}
}

// Close ends the event stream. Safe to call more than once.
func (s *Session) Close() {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

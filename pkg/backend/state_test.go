package backend

import (
	"errors"
	"testing"
)

func TestStateTransitions(t *testing.T) {
	for _, tc := range []struct {
		from, to State
		ok       bool
	}{
		{StateInactive, StateStarting, true},
		{StateStarting, StateRunning, true},
		{StateStarting, StatePaused, true}, // stop on entry
		{StateRunning, StatePaused, true},
		{StatePaused, StateRunning, true},
		{StatePaused, StateStepping, true},
		{StateStepping, StatePaused, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateTerminated, true},
		{StateRunning, StateTerminated, true}, // target exited

		{StateInactive, StateRunning, false},
		{StateInactive, StatePaused, false},
		{StateRunning, StateStarting, false},
		{StateTerminated, StateRunning, false},
		{StateStopping, StateRunning, false},
	} {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("CanTransition(%v, %v) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestErrorStateReachableFromAnywhereButTerminated(t *testing.T) {
	for _, from := range []State{StateInactive, StateStarting, StateRunning, StatePaused, StateStepping, StateStopping} {
		if !CanTransition(from, StateError) {
			t.Errorf("CanTransition(%v, error) = false", from)
		}
	}
	if CanTransition(StateTerminated, StateError) {
		t.Error("terminated session entered error state")
	}
}

func TestInspectionRequiresPaused(t *testing.T) {
	s := NewSession()
	must := func(to State) {
		t.Helper()
		if err := s.SetState(to); err != nil {
			t.Fatal(err)
		}
	}
	must(StateStarting)
	must(StateRunning)

	err := s.RequireInspectable("read memory")
	var ise *InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("RequireInspectable while running = %v, want InvalidStateError", err)
	}
	if ise.State != StateRunning {
		t.Errorf("error state = %v, want running", ise.State)
	}

	must(StatePaused)
	if err := s.RequireInspectable("read memory"); err != nil {
		t.Errorf("RequireInspectable while paused = %v", err)
	}

	must(StateStepping)
	if err := s.RequireInspectable("list locals"); err == nil {
		t.Error("RequireInspectable while stepping succeeded")
	}
}

func TestSetStateRejectsIllegalEdge(t *testing.T) {
	s := NewSession()
	if err := s.SetState(StateRunning); err == nil {
		t.Fatal("inactive -> running succeeded")
	}
	if s.State() != StateInactive {
		t.Errorf("state after rejected transition = %v, want inactive", s.State())
	}
}

func TestSetStateEmitsEvent(t *testing.T) {
	s := NewSession()
	if err := s.SetState(StateStarting); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-s.Events():
		if ev.Kind != EventStateChanged || ev.OldState != StateInactive || ev.NewState != StateStarting {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("no state change event emitted")
	}
}

func TestErrorEventEmittedOnce(t *testing.T) {
	s := NewSession()
	s.Emit(Event{Kind: EventError, Err: errors.New("backend crashed")})
	s.Emit(Event{Kind: EventError, Err: errors.New("backend crashed again")})

	count := 0
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == EventError {
				count++
			}
			continue
		default:
		}
		break
	}
	if count != 1 {
		t.Errorf("error events = %d, want exactly 1", count)
	}
}

func TestSessionCloseStopsEmission(t *testing.T) {
	s := NewSession()
	s.Close()
	s.Close() // idempotent
	s.Emit(Event{Kind: EventOutput, Output: "late"})
	if _, ok := <-s.Events(); ok {
		t.Error("received event after close")
	}
}

package backend

import (
	"errors"
	"fmt"
)

// ErrCommandTimeout is returned when a correlated command was not
// answered within its deadline. It is distinct from CommandRejectedError,
// which is an explicit error result reported by the backend.
var ErrCommandTimeout = errors.New("command timed out")

// ErrNoBreakpoint is returned when a breakpoint id does not exist in
// the session table.
var ErrNoBreakpoint = errors.New("no such breakpoint")

// ErrSessionClosed is returned for commands that were pending when the
// session was torn down.
var ErrSessionClosed = errors.New("session closed")

// SpawnFailedError reports that the debugger executable could not be
// started. It is terminal and never retried.
type SpawnFailedError struct {
	Path string
	Err  error
}

func (e *SpawnFailedError) Error() string {
	return fmt.Sprintf("could not start debugger %s: %v", e.Path, e.Err)
}

func (e *SpawnFailedError) Unwrap() error { return e.Err }

// CommandRejectedError is an explicit error result from the backend
// (an MI ^error record or an lldb error line).
type CommandRejectedError struct {
	Command string
	Msg     string
}

func (e *CommandRejectedError) Error() string {
	if e.Command == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Msg)
}

// ProtocolDesyncError reports unparseable or out-of-sequence protocol
// data. The session logs it and resynchronizes on the next line
// boundary instead of crashing.
type ProtocolDesyncError struct {
	Line string
}

func (e *ProtocolDesyncError) Error() string {
	return fmt.Sprintf("protocol desync near %q", e.Line)
}

// InvalidStateError reports an operation attempted in a session state
// that forbids it, such as reading memory while the target runs.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s while the session is %s", e.Op, e.State)
}

// BackendCrashError reports that the debugger subprocess exited
// unexpectedly. It forces the session into ErrorState and fails all
// pending commands.
type BackendCrashError struct {
	ExitCode int
}

func (e *BackendCrashError) Error() string {
	return fmt.Sprintf("debugger exited unexpectedly with code %d", e.ExitCode)
}

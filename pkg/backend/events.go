package backend

// EventKind discriminates session events.
type EventKind int

const (
	// EventStateChanged reports a session state transition.
	EventStateChanged EventKind = iota
	// EventStopped reports a target stop with reason and location.
	EventStopped
	// EventContinued reports that the target resumed.
	EventContinued
	// EventBreakpointChanged reports backend-side breakpoint resolution
	// or hit-count updates.
	EventBreakpointChanged
	// EventThread reports a thread started or exited.
	EventThread
	// EventOutput carries target or debugger console output.
	EventOutput
	// EventExited reports that the target process ended.
	EventExited
	// EventModule reports a shared library loaded or unloaded.
	EventModule
	// EventError reports a fatal backend failure, exactly once.
	EventError
)

// StopReason explains an EventStopped.
type StopReason string

const (
	StopBreakpoint StopReason = "breakpoint"
	StopWatchpoint StopReason = "watchpoint"
	StopStep       StopReason = "step"
	StopPause      StopReason = "pause"
	StopSignal     StopReason = "signal"
	StopEntry      StopReason = "entry"
	StopExited     StopReason = "exited"
	StopUnknown    StopReason = "unknown"
)

// OutputChannel identifies the origin of an EventOutput.
type OutputChannel string

const (
	OutputConsole OutputChannel = "console"
	OutputTarget  OutputChannel = "stdout"
	OutputStderr  OutputChannel = "stderr"
	OutputLog     OutputChannel = "log"
)

// Event is one typed session event, delivered on the session's event
// channel. Fields beyond Kind are set per kind.
type Event struct {
	Kind EventKind

	// EventStateChanged
	OldState State
	NewState State

	// EventStopped
	Reason   StopReason
	ThreadID int
	File     string
	Line     int
	// Breakpoint that was hit or changed, when applicable.
	Breakpoint *Breakpoint

	// EventThread
	ThreadCreated bool

	// EventOutput
	Output  string
	Channel OutputChannel

	// EventExited
	ExitCode int

	// EventModule
	Module *Module
	Loaded bool

	// EventError
	Err error
}

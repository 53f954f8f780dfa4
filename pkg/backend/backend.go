// Package backend defines the uniform debugger capability interface,
// the shared session state machine and the error taxonomy implemented
// by every debugger plugin. Backends are leaf implementers behind this
// interface; callers never depend on a concrete backend type.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/config"
)

// Thread is one target thread.
type Thread struct {
	ID       int
	Name     string
	Function string
	File     string
	Line     int
}

// StackFrame is one frame of a thread's call stack.
type StackFrame struct {
	Level    int
	Function string
	File     string
	Line     int
	// Address is the frame program counter.
	Address uint64
}

// Variable is one variable or child value. Ref is the backend-assigned
// variablesReference: 0 marks a leaf with no children; a positive ref
// can be passed to VariableChildren, which is the only way children
// are fetched (never eagerly for whole scopes).
type Variable struct {
	Name  string
	Value string
	Type  string
	Ref   int
	// NumChildren is the backend-reported child count, when known.
	NumChildren int
}

// Register is one CPU register value, formatted by the backend.
type Register struct {
	Name  string
	Value string
}

// Instruction is one disassembled instruction, formatting passed
// through from the backend.
type Instruction struct {
	Address uint64
	Text    string
	// Opcodes is the hex-encoded instruction bytes, when reported.
	Opcodes string
}

// Module is one loaded module/shared library of the target.
type Module struct {
	Name    string
	Path    string
	Address uint64
}

// Debugger is the uniform capability interface implemented by each
// backend plugin. Session control and execution control calls are
// asynchronous at the protocol level but synchronous at this surface:
// they return once the backend accepted the command. Inspection calls
// require StatePaused and fail fast with InvalidStateError otherwise.
type Debugger interface {
	// Name returns the backend name ("gdb", "lldb").
	Name() string
	// Session returns the session owned by this instance.
	Session() *Session

	// Launch starts a new target from a launch configuration.
	Launch(cfg *config.LaunchConfig) error
	// Attach attaches to a running process by pid.
	Attach(pid int) error
	// AttachByName attaches to the newest process matching name.
	AttachByName(name string) error
	// ConnectRemote attaches to a remote debug stub (host:port).
	ConnectRemote(addr string) error
	// LoadCoreDump opens a core dump for post-mortem inspection.
	LoadCoreDump(executable, core string) error
	// Detach releases the target and ends the session.
	Detach() error
	// Terminate kills the target and ends the session. All pending
	// commands fail immediately with ErrSessionClosed.
	Terminate() error

	Continue() error
	Pause() error
	StepOver() error
	StepInto() error
	StepOut() error
	StepInstruction() error
	// RunToCursor resumes until file:line is reached, without creating
	// a persistent breakpoint.
	RunToCursor(file string, line int) error
	// SetNextStatement moves the program counter to file:line without
	// executing the code in between.
	SetNextStatement(file string, line int) error

	// SetBreakpoint creates a breakpoint; validity starts Pending and
	// is updated by backend resolution events.
	SetBreakpoint(loc Location, kind BreakpointKind, condition, logMessage string) (*Breakpoint, error)
	// SetWatchpoint creates a data watchpoint on an expression.
	SetWatchpoint(expr string, write, read bool) (*Breakpoint, error)
	// RemoveBreakpoint deletes a breakpoint or watchpoint by engine id.
	RemoveBreakpoint(id int) error
	// EnableBreakpoint toggles a breakpoint without removing it.
	EnableBreakpoint(id int, enable bool) error

	Threads() ([]Thread, error)
	Stacktrace(threadID, depth int) ([]StackFrame, error)
	// Variables lists the local scope of a frame; children are lazy.
	Variables(threadID, frame int) ([]Variable, error)
	// VariableChildren expands one compound variable.
	VariableChildren(ref int) ([]Variable, error)
	// Evaluate evaluates an expression in a frame context.
	Evaluate(threadID, frame int, expr string) (*Variable, error)
	Registers(threadID int) ([]Register, error)
	ReadMemory(addr uint64, size int) ([]byte, error)
	WriteMemory(addr uint64, data []byte) error
	Disassemble(start, end uint64) ([]Instruction, error)
	Modules() ([]Module, error)
}

// Config carries backend construction parameters.
type Config struct {
	// DebuggerPath overrides the debugger executable.
	DebuggerPath string
	// CommandTimeout bounds every correlated command. Zero means
	// DefaultCommandTimeout.
	CommandTimeout time.Duration
}

// DefaultCommandTimeout bounds correlated commands that were given no
// explicit deadline.
const DefaultCommandTimeout = 10 * time.Second

// Constructor builds one backend instance.
type Constructor func(cfg Config) Debugger

var (
	registryMu sync.Mutex
	registry   = make(map[string]registration)
)

type registration struct {
	ctor Constructor
	// executable probed for availability when no override is given.
	executable string
}

// Register installs a backend constructor under name. Called from
// backend package init functions.
func RegisterBackend(name, executable string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = registration{ctor: ctor, executable: executable}
}

// New constructs the named backend.
func New(name string, cfg Config) (Debugger, error) {
	registryMu.Lock()
	reg, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	return reg.ctor(cfg), nil
}

// Names lists the registered backends, sorted.
func Names() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProbeResult reports backend availability.
type ProbeResult struct {
	Name      string
	Available bool
	// Version is the first line of `<debugger> --version` output.
	Version string
	Err     error
}

// Probe checks whether the named backend's debugger executable can be
// run, reporting its version string.
func Probe(name string) ProbeResult {
	registryMu.Lock()
	reg, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return ProbeResult{Name: name, Err: fmt.Errorf("unknown backend %q", name)}
	}
	return probeExecutable(name, reg.executable)
}

func probeExecutable(name, executable string) ProbeResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, executable, "--version").Output()
	if err != nil {
		return ProbeResult{Name: name, Err: &SpawnFailedError{Path: executable, Err: err}}
	}
	version := string(out)
	if i := bytes.IndexByte(out, '\n'); i >= 0 {
		version = string(bytes.TrimRight(out[:i], "\r"))
	}
	return ProbeResult{Name: name, Available: true, Version: version}
}

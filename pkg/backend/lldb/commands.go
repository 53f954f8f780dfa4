package lldb

import (
	"fmt"
	"strconv"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
)

func (l *LLDB) requireResumable(op string) error {
	if s := l.session.State(); s != backend.StatePaused {
		return &backend.InvalidStateError{Op: op, State: s}
	}
	return nil
}

// Continue implements backend.Debugger.
func (l *LLDB) Continue() error {
	if err := l.requireResumable("continue"); err != nil {
		return err
	}
	l.markStepping(false)
	_, err := l.exec("process continue")
	return err
}

// Pause implements backend.Debugger.
func (l *LLDB) Pause() error {
	switch s := l.session.State(); s {
	case backend.StateRunning, backend.StateStepping:
	default:
		return &backend.InvalidStateError{Op: "pause", State: s}
	}
	// The CLI accepts no commands while the target runs; a SIGINT to
	// lldb interrupts the inferior.
	l.mu.Lock()
	sup := l.sup
	l.mu.Unlock()
	if sup == nil {
		return backend.ErrSessionClosed
	}
	return sup.Interrupt()
}

func (l *LLDB) step(op, command string) error {
	if err := l.requireResumable(op); err != nil {
		return err
	}
	l.markStepping(true)
	_, err := l.exec(command)
	if err != nil {
		l.markStepping(false)
	}
	return err
}

// StepOver implements backend.Debugger.
func (l *LLDB) StepOver() error { return l.step("next", "thread step-over") }

// StepInto implements backend.Debugger.
func (l *LLDB) StepInto() error { return l.step("stepIn", "thread step-in") }

// StepOut implements backend.Debugger.
func (l *LLDB) StepOut() error { return l.step("stepOut", "thread step-out") }

// StepInstruction implements backend.Debugger.
func (l *LLDB) StepInstruction() error { return l.step("stepInstruction", "thread step-inst-over") }

// RunToCursor implements backend.Debugger. A one-shot breakpoint makes
// intervening breakpoints still win the race.
func (l *LLDB) RunToCursor(file string, line int) error {
	if err := l.requireResumable("runToCursor"); err != nil {
		return err
	}
	cmd := fmt.Sprintf("breakpoint set --file %s --line %d --one-shot true", quote(file), line)
	if _, err := l.exec(cmd); err != nil {
		return err
	}
	l.markStepping(false)
	_, err := l.exec("process continue")
	return err
}

// SetNextStatement implements backend.Debugger. thread jump moves the
// program counter without resuming.
func (l *LLDB) SetNextStatement(file string, line int) error {
	if err := l.requireResumable("goto"); err != nil {
		return err
	}
	_, err := l.exec(fmt.Sprintf("thread jump --file %s --line %d", quote(file), line))
	return err
}

// SetBreakpoint implements backend.Debugger.
func (l *LLDB) SetBreakpoint(loc backend.Location, kind backend.BreakpointKind, condition, logMessage string) (*backend.Breakpoint, error) {
	bp := l.session.Breakpoints.Add(&backend.Breakpoint{
		Kind:       kind,
		Loc:        loc,
		Enabled:    true,
		Condition:  condition,
		LogMessage: logMessage,
	})

	var cmd string
	switch {
	case loc.Function != "":
		cmd = "breakpoint set --name " + quote(loc.Function)
	case loc.Address != 0:
		cmd = fmt.Sprintf("breakpoint set --address 0x%x", loc.Address)
	default:
		cmd = fmt.Sprintf("breakpoint set --file %s --line %d", quote(loc.File), loc.Line)
	}
	if condition != "" {
		cmd += " --condition " + quote(condition)
	}

	out, err := l.exec(cmd)
	if err != nil {
		if _, rejected := err.(*backend.CommandRejectedError); rejected {
			bp.Validity = backend.InvalidBreakpoint
			l.session.Emit(backend.Event{Kind: backend.EventBreakpointChanged, Breakpoint: bp})
			return bp, nil
		}
		l.session.Breakpoints.Remove(bp.ID)
		return nil, err
	}

	for _, line := range out {
		if m := breakpointPendRe.FindStringSubmatch(line); m != nil {
			bp.BackendID = m[1]
			bp.Validity = backend.PendingValidity
			break
		}
		if m := breakpointSetRe.FindStringSubmatch(line); m != nil {
			bp.BackendID = m[1]
			bp.Validity = backend.ValidBreakpoint
			if am := breakpointAddrRe.FindStringSubmatch(line); am != nil {
				bp.Loc.Address, _ = strconv.ParseUint(am[1], 0, 64)
			}
			if lm := atLocRe.FindStringSubmatch(line); lm != nil {
				bp.Loc.File = lm[1]
				bp.Loc.Line, _ = strconv.Atoi(lm[2])
			}
			break
		}
	}
	l.session.Emit(backend.Event{Kind: backend.EventBreakpointChanged, Breakpoint: bp})
	return bp, nil
}

// SetWatchpoint implements backend.Debugger.
func (l *LLDB) SetWatchpoint(expr string, write, read bool) (*backend.Breakpoint, error) {
	if err := l.session.RequireInspectable("setWatchpoint"); err != nil {
		return nil, err
	}
	mode := "write"
	switch {
	case write && read:
		mode = "read_write"
	case read:
		mode = "read"
	}
	out, err := l.exec(fmt.Sprintf("watchpoint set expression -w %s -- %s", mode, expr))
	if err != nil {
		return nil, err
	}
	bp := l.session.Breakpoints.Add(&backend.Breakpoint{
		Kind:    backend.Watchpoint,
		Loc:     backend.Location{Expression: expr},
		Enabled: true,
	})
	if m := watchpointSetRe.FindStringSubmatch(joined(out)); m != nil {
		bp.BackendID = m[1]
		bp.Loc.Address, _ = strconv.ParseUint(m[2], 0, 64)
	}
	bp.Validity = backend.ValidBreakpoint
	return bp, nil
}

// RemoveBreakpoint implements backend.Debugger.
func (l *LLDB) RemoveBreakpoint(id int) error {
	bp, ok := l.session.Breakpoints.Get(id)
	if !ok {
		return backend.ErrNoBreakpoint
	}
	if bp.BackendID != "" {
		op := "breakpoint delete "
		if bp.Kind == backend.Watchpoint {
			op = "watchpoint delete "
		}
		if _, err := l.exec(op + bp.BackendID); err != nil {
			return err
		}
	}
	l.session.Breakpoints.Remove(id)
	return nil
}

// EnableBreakpoint implements backend.Debugger.
func (l *LLDB) EnableBreakpoint(id int, enable bool) error {
	bp, ok := l.session.Breakpoints.Get(id)
	if !ok {
		return backend.ErrNoBreakpoint
	}
	if bp.BackendID != "" {
		kind := "breakpoint"
		if bp.Kind == backend.Watchpoint {
			kind = "watchpoint"
		}
		verb := "enable"
		if !enable {
			verb = "disable"
		}
		if _, err := l.exec(fmt.Sprintf("%s %s %s", kind, verb, bp.BackendID)); err != nil {
			return err
		}
	}
	bp.Enabled = enable
	return nil
}

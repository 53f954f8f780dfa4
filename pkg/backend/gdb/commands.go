package gdb

import (
	"strconv"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/mi"
)

// requireResumable rejects execution-control commands outside Paused.
func (g *Gdb) requireResumable(op string) error {
	if s := g.session.State(); s != backend.StatePaused {
		return &backend.InvalidStateError{Op: op, State: s}
	}
	return nil
}

// Continue implements backend.Debugger.
func (g *Gdb) Continue() error {
	if err := g.requireResumable("continue"); err != nil {
		return err
	}
	g.markStepping(false)
	_, err := g.send(mi.NewCommand("exec-continue"))
	return err
}

// Pause implements backend.Debugger. The stop itself is reported by
// the resulting *stopped record.
func (g *Gdb) Pause() error {
	switch s := g.session.State(); s {
	case backend.StateRunning, backend.StateStepping:
	default:
		return &backend.InvalidStateError{Op: "pause", State: s}
	}
	// In mi-async mode -exec-interrupt works while running; fall back
	// to a signal when the command is rejected.
	if _, err := g.send(mi.NewCommand("exec-interrupt")); err != nil {
		g.mu.Lock()
		sup := g.sup
		g.mu.Unlock()
		if sup == nil {
			return backend.ErrSessionClosed
		}
		return sup.Interrupt()
	}
	return nil
}

func (g *Gdb) step(op, command string) error {
	if err := g.requireResumable(op); err != nil {
		return err
	}
	g.markStepping(true)
	_, err := g.send(mi.NewCommand(command))
	if err != nil {
		g.markStepping(false)
	}
	return err
}

// StepOver implements backend.Debugger.
func (g *Gdb) StepOver() error { return g.step("next", "exec-next") }

// StepInto implements backend.Debugger.
func (g *Gdb) StepInto() error { return g.step("stepIn", "exec-step") }

// StepOut implements backend.Debugger.
func (g *Gdb) StepOut() error { return g.step("stepOut", "exec-finish") }

// StepInstruction implements backend.Debugger.
func (g *Gdb) StepInstruction() error { return g.step("stepInstruction", "exec-next-instruction") }

// RunToCursor implements backend.Debugger. -exec-until runs without a
// persistent breakpoint; passing other breakpoints on the way still
// stops there first.
func (g *Gdb) RunToCursor(file string, line int) error {
	if err := g.requireResumable("runToCursor"); err != nil {
		return err
	}
	g.markStepping(false)
	_, err := g.send(mi.NewCommand("exec-until").Arg(file + ":" + strconv.Itoa(line)))
	return err
}

// SetNextStatement implements backend.Debugger. The program counter
// moves without executing the skipped range.
func (g *Gdb) SetNextStatement(file string, line int) error {
	if err := g.requireResumable("goto"); err != nil {
		return err
	}
	loc := file + ":" + strconv.Itoa(line)
	// -exec-jump resumes; pin the current line with a temporary
	// breakpoint so the jump lands paused.
	if _, err := g.send(mi.NewCommand("break-insert").Option("t", "").Arg(loc)); err != nil {
		return err
	}
	g.markStepping(true)
	_, err := g.send(mi.NewCommand("exec-jump").Arg(loc))
	if err != nil {
		g.markStepping(false)
	}
	return err
}

// SetBreakpoint implements backend.Debugger. The breakpoint is entered
// into the session table as Pending and resolved from gdb's reply;
// an unresolvable location is kept as Invalid rather than failing.
func (g *Gdb) SetBreakpoint(loc backend.Location, kind backend.BreakpointKind, condition, logMessage string) (*backend.Breakpoint, error) {
	bp := g.session.Breakpoints.Add(&backend.Breakpoint{
		Kind:       kind,
		Loc:        loc,
		Enabled:    true,
		Condition:  condition,
		LogMessage: logMessage,
	})

	cmd := mi.NewCommand("break-insert").Option("f", "")
	if bp.Condition != "" {
		cmd.Option("c", bp.Condition)
	}
	cmd.Arg(breakLocation(bp))

	rec, err := g.send(cmd)
	if err != nil {
		if _, rejected := err.(*backend.CommandRejectedError); rejected {
			bp.Validity = backend.InvalidBreakpoint
			g.session.Emit(backend.Event{Kind: backend.EventBreakpointChanged, Breakpoint: bp})
			return bp, nil
		}
		g.session.Breakpoints.Remove(bp.ID)
		return nil, err
	}

	if bkpt := rec.Fields.GetTuple("bkpt"); bkpt != nil {
		bp.BackendID = bkpt.GetString("number")
		updateValidity(bp, bkpt)
	}
	g.session.Emit(backend.Event{Kind: backend.EventBreakpointChanged, Breakpoint: bp})
	return bp, nil
}

// SetWatchpoint implements backend.Debugger. Write-only gives a plain
// watchpoint, read-only a read watch, both an access watch.
func (g *Gdb) SetWatchpoint(expr string, write, read bool) (*backend.Breakpoint, error) {
	if err := g.session.RequireInspectable("setWatchpoint"); err != nil {
		return nil, err
	}
	cmd := mi.NewCommand("break-watch")
	switch {
	case write && read:
		cmd.Option("a", "")
	case read:
		cmd.Option("r", "")
	}
	cmd.Arg(expr)

	rec, err := g.send(cmd)
	if err != nil {
		return nil, err
	}
	bp := g.session.Breakpoints.Add(&backend.Breakpoint{
		Kind:    backend.Watchpoint,
		Loc:     backend.Location{Expression: expr},
		Enabled: true,
	})
	// The reply field name varies with the watch mode.
	for _, key := range []string{"wpt", "hw-rwpt", "hw-awpt"} {
		if wpt := rec.Fields.GetTuple(key); wpt != nil {
			bp.BackendID = wpt.GetString("number")
			break
		}
	}
	bp.Validity = backend.ValidBreakpoint
	return bp, nil
}

// RemoveBreakpoint implements backend.Debugger.
func (g *Gdb) RemoveBreakpoint(id int) error {
	bp, ok := g.session.Breakpoints.Get(id)
	if !ok {
		return backend.ErrNoBreakpoint
	}
	if bp.BackendID != "" {
		if _, err := g.send(mi.NewCommand("break-delete").Arg(bp.BackendID)); err != nil {
			return err
		}
	}
	g.session.Breakpoints.Remove(id)
	return nil
}

// EnableBreakpoint implements backend.Debugger.
func (g *Gdb) EnableBreakpoint(id int, enable bool) error {
	bp, ok := g.session.Breakpoints.Get(id)
	if !ok {
		return backend.ErrNoBreakpoint
	}
	if bp.BackendID != "" {
		op := "break-enable"
		if !enable {
			op = "break-disable"
		}
		if _, err := g.send(mi.NewCommand(op).Arg(bp.BackendID)); err != nil {
			return err
		}
	}
	bp.Enabled = enable
	return nil
}

func breakLocation(bp *backend.Breakpoint) string {
	switch {
	case bp.Loc.Function != "":
		return bp.Loc.Function
	case bp.Loc.Address != 0:
		return "*" + hexAddr(bp.Loc.Address)
	default:
		return bp.Loc.File + ":" + strconv.Itoa(bp.Loc.Line)
	}
}

// updateValidity reconciles table state with a bkpt result tuple.
func updateValidity(bp *backend.Breakpoint, bkpt mi.Tuple) {
	if bkpt.GetString("pending") != "" {
		bp.Validity = backend.PendingValidity
		return
	}
	bp.Validity = backend.ValidBreakpoint
	if f := bkpt.GetString("fullname"); f != "" {
		bp.Loc.File = f
	}
	if l, err := strconv.Atoi(bkpt.GetString("line")); err == nil {
		bp.Loc.Line = l
	}
	if fn := bkpt.GetString("func"); fn != "" {
		bp.Loc.Function = fn
	}
	bp.Loc.Address = parseAddr(bkpt.GetString("addr"))
}

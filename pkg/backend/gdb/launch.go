package gdb

import (
	"strconv"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/config"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/mi"
)

// Launch implements backend.Debugger. It spawns gdb, loads the target
// and runs it, honoring StopOnEntry and the configured console mode.
func (g *Gdb) Launch(cfg *config.LaunchConfig) error {
	if cfg.DebuggerPath != "" {
		g.cfg.DebuggerPath = cfg.DebuggerPath
	}
	if err := g.start(); err != nil {
		return err
	}

	if _, err := g.send(mi.NewCommand("file-exec-and-symbols").Arg(cfg.Program)); err != nil {
		g.session.SetState(backend.StateError)
		return err
	}

	args, err := cfg.TargetArgs()
	if err != nil {
		g.session.SetState(backend.StateError)
		return err
	}
	if len(args) > 0 {
		cmd := mi.NewCommand("exec-arguments")
		for _, a := range args {
			cmd.Arg(a)
		}
		if _, err := g.send(cmd); err != nil {
			g.session.SetState(backend.StateError)
			return err
		}
	}

	if cfg.WorkingDir != "" {
		if _, err := g.send(mi.NewCommand("environment-cd").Arg(cfg.WorkingDir)); err != nil {
			g.session.SetState(backend.StateError)
			return err
		}
	}
	for k, v := range cfg.Env {
		g.sendQuiet(mi.NewCommand("gdb-set").Arg("environment").Arg(k + "=" + v))
	}
	if cfg.PreLaunch != "" {
		if err := g.console(cfg.PreLaunch); err != nil {
			g.session.SetState(backend.StateError)
			return err
		}
	}

	if cfg.Console == config.ConsoleTTY {
		if err := g.setupInferiorTTY(); err != nil {
			g.session.SetState(backend.StateError)
			return err
		}
	}

	run := mi.NewCommand("exec-run")
	if cfg.StopOnEntry {
		run.Option("-start", "")
	}
	g.markStepping(cfg.StopOnEntry)
	if _, err := g.send(run); err != nil {
		g.session.SetState(backend.StateError)
		return err
	}
	return nil
}

// Attach implements backend.Debugger.
func (g *Gdb) Attach(pid int) error {
	if err := g.start(); err != nil {
		return err
	}
	if _, err := g.send(mi.NewCommand("target-attach").Arg(strconv.Itoa(pid))); err != nil {
		g.session.SetState(backend.StateError)
		return err
	}
	g.mu.Lock()
	g.attached = true
	g.mu.Unlock()
	g.session.SetTarget(pid, "")
	// Attach leaves the target stopped without a *stopped record in
	// some gdb versions; normalize.
	if g.session.State() == backend.StateStarting {
		g.session.SetState(backend.StateRunning)
		g.session.SetState(backend.StatePaused)
		g.session.Emit(backend.Event{Kind: backend.EventStopped, Reason: backend.StopEntry})
	}
	return nil
}

// AttachByName implements backend.Debugger. When several processes
// match, the most recently started one wins.
func (g *Gdb) AttachByName(name string) error {
	pid, err := backend.FindNewestProcess(name)
	if err != nil {
		return err
	}
	return g.Attach(pid)
}

// ConnectRemote implements backend.Debugger. addr is a gdbserver
// endpoint, host:port.
func (g *Gdb) ConnectRemote(addr string) error {
	if err := g.start(); err != nil {
		return err
	}
	if _, err := g.send(mi.NewCommand("target-select").Arg("remote").Arg(addr)); err != nil {
		g.session.SetState(backend.StateError)
		return err
	}
	g.session.SetTarget(0, addr)
	if g.session.State() == backend.StateStarting {
		g.session.SetState(backend.StateRunning)
		g.session.SetState(backend.StatePaused)
		g.session.Emit(backend.Event{Kind: backend.EventStopped, Reason: backend.StopEntry})
	}
	return nil
}

// LoadCoreDump implements backend.Debugger. The session comes up
// paused for post-mortem inspection; execution control is rejected by
// gdb itself.
func (g *Gdb) LoadCoreDump(program, core string) error {
	if err := g.start(); err != nil {
		return err
	}
	if _, err := g.send(mi.NewCommand("file-exec-and-symbols").Arg(program)); err != nil {
		g.session.SetState(backend.StateError)
		return err
	}
	if err := g.console("core-file " + core); err != nil {
		g.session.SetState(backend.StateError)
		return err
	}
	g.session.SetState(backend.StateRunning)
	g.session.SetState(backend.StatePaused)
	g.session.Emit(backend.Event{Kind: backend.EventStopped, Reason: backend.StopEntry})
	return nil
}

func (g *Gdb) markStepping(v bool) {
	g.mu.Lock()
	g.stepping = v
	g.mu.Unlock()
}

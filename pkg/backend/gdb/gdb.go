// Package gdb implements the debugger plugin interface on top of the
// GDB machine interface (MI). All commands flow through a correlated
// MI connection; asynchronous records drive the shared session state
// machine.
package gdb

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/logflags"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/mi"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/proc"
)

// DefaultPath is the gdb executable probed and spawned when the
// configuration does not override it.
const DefaultPath = "gdb"

// memCacheSize bounds the paused-state memory read cache.
const memCacheSize = 64

func init() {
	backend.RegisterBackend("gdb", DefaultPath, func(cfg backend.Config) backend.Debugger {
		return New(cfg)
	})
}

// Gdb drives one gdb process in MI mode. It owns its session; no state
// is shared across instances.
type Gdb struct {
	cfg     backend.Config
	session *backend.Session
	log     *logrus.Entry

	mu       sync.Mutex
	sup      *proc.Supervisor
	conn     *Conn
	attached bool // detach instead of kill on teardown
	stopping bool // intentional teardown in progress
	stepping bool // a step command is in flight

	// memCache holds memory chunks read while paused; purged on every
	// resume since the target invalidates them.
	memCache *lru.Cache

	// varRefs maps variablesReference handles to gdb varobj names.
	// References are monotonic for the session lifetime.
	varMu    sync.Mutex
	nextRef  int
	varRefs  map[int]string
	regNames []string
}

// New returns an inactive gdb backend.
func New(cfg backend.Config) *Gdb {
	if cfg.DebuggerPath == "" {
		cfg.DebuggerPath = DefaultPath
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = backend.DefaultCommandTimeout
	}
	cache, _ := lru.New(memCacheSize)
	return &Gdb{
		cfg:      cfg,
		session:  backend.NewSession(),
		log:      logflags.GdbBackendLogger(),
		memCache: cache,
		nextRef:  1,
		varRefs:  make(map[int]string),
	}
}

// Name implements backend.Debugger.
func (g *Gdb) Name() string { return "gdb" }

// Session implements backend.Debugger.
func (g *Gdb) Session() *backend.Session { return g.session }

// start spawns gdb in MI mode and starts the dispatcher. The session
// must be Inactive.
func (g *Gdb) start() error {
	if err := g.session.SetState(backend.StateStarting); err != nil {
		return err
	}

	sup := proc.New(g.cfg.DebuggerPath, []string{"--interpreter=mi2", "--quiet", "-nx"}, proc.Options{})
	if err := sup.Start(); err != nil {
		g.session.SetState(backend.StateError)
		return &backend.SpawnFailedError{Path: g.cfg.DebuggerPath, Err: err}
	}

	g.mu.Lock()
	g.sup = sup
	g.conn = NewConn(sup, g.handleAsync)
	g.mu.Unlock()

	go g.conn.Run()
	go g.watchExit(sup)
	go g.forwardStderr(sup)

	// Session-wide defaults; failures here are advisory.
	g.sendQuiet(mi.NewCommand("gdb-set").Arg("confirm").Arg("off"))
	g.sendQuiet(mi.NewCommand("gdb-set").Arg("mi-async").Arg("on"))
	return nil
}

// watchExit turns an unexpected gdb exit into a backend crash:
// ErrorState, all pending commands failed, one error event.
func (g *Gdb) watchExit(sup *proc.Supervisor) {
	st := <-sup.ExitChan()

	g.mu.Lock()
	intentional := g.stopping
	conn := g.conn
	g.mu.Unlock()

	if intentional {
		return
	}
	crash := &backend.BackendCrashError{ExitCode: st.Code}
	g.log.Errorf("gdb exited unexpectedly: %v", crash)
	if conn != nil {
		conn.Close(crash)
	}
	g.session.SetState(backend.StateError)
	g.session.Emit(backend.Event{Kind: backend.EventError, Err: crash})
}

// forwardStderr surfaces gdb's own stderr as log output.
func (g *Gdb) forwardStderr(sup *proc.Supervisor) {
	for line := range sup.ErrLines() {
		g.session.Emit(backend.Event{Kind: backend.EventOutput, Output: line + "\n", Channel: backend.OutputLog})
	}
}

func (g *Gdb) cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.cfg.CommandTimeout)
}

// send issues one correlated command with the configured timeout.
func (g *Gdb) send(cmd *mi.Command) (*mi.Record, error) {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return nil, backend.ErrSessionClosed
	}
	ctx, cancel := g.cmdContext()
	defer cancel()
	return conn.Send(ctx, cmd)
}

// sendQuiet issues a command whose failure is logged, not surfaced.
func (g *Gdb) sendQuiet(cmd *mi.Command) {
	if _, err := g.send(cmd); err != nil {
		g.log.Debugf("advisory command failed: %v", err)
	}
}

// console runs a CLI command through the MI interpreter-exec escape
// hatch, for the few operations MI has no first-class command for.
func (g *Gdb) console(command string) error {
	_, err := g.send(mi.NewCommand("interpreter-exec").Arg("console").Arg(command))
	return err
}

// handleAsync consumes every uncorrelated record from the dispatcher.
func (g *Gdb) handleAsync(rec mi.Record) {
	switch {
	case rec.Kind == mi.RecordAsyncExec:
		g.handleExecAsync(rec)
	case rec.Kind == mi.RecordAsyncNotify:
		g.handleNotify(rec)
	case rec.Kind == mi.RecordConsoleStream:
		g.session.Emit(backend.Event{Kind: backend.EventOutput, Output: rec.Text, Channel: backend.OutputConsole})
	case rec.Kind == mi.RecordTargetStream:
		g.session.Emit(backend.Event{Kind: backend.EventOutput, Output: rec.Text, Channel: backend.OutputTarget})
	case rec.Kind == mi.RecordLogStream:
		g.session.Emit(backend.Event{Kind: backend.EventOutput, Output: rec.Text, Channel: backend.OutputLog})
	case rec.Kind == mi.RecordOther:
		// Diagnostic chatter or a desync; resynchronization happens
		// naturally on the next line boundary.
		g.log.Debugf("protocol noise: %v", &backend.ProtocolDesyncError{Line: rec.Raw})
	case rec.IsResult():
		// Late response to a timed-out token, or a token-less result
		// from a console-originated command. Dropped by design.
		g.log.Debugf("dropping unmatched result %q", rec.Raw)
	}
}

// handleExecAsync processes *running and *stopped records.
func (g *Gdb) handleExecAsync(rec mi.Record) {
	switch rec.Class {
	case "running":
		g.invalidateInspectionState()
		g.mu.Lock()
		stepping := g.stepping
		g.mu.Unlock()
		next := backend.StateRunning
		if stepping {
			next = backend.StateStepping
		}
		if err := g.session.SetState(next); err == nil {
			g.session.Emit(backend.Event{Kind: backend.EventContinued})
		}
	case "stopped":
		g.handleStopped(rec)
	}
}

// handleStopped translates a *stopped record into a state transition
// and a stop event with reason and location.
func (g *Gdb) handleStopped(rec mi.Record) {
	g.mu.Lock()
	g.stepping = false
	g.mu.Unlock()

	reason := rec.Fields.GetString("reason")
	switch reason {
	case "exited-normally", "exited", "exited-signalled":
		code := 0
		if ec := rec.Fields.GetString("exit-code"); ec != "" {
			// MI reports the exit code in octal.
			if v, err := strconv.ParseInt(ec, 8, 32); err == nil {
				code = int(v)
			}
		}
		g.session.SetState(backend.StateTerminated)
		g.session.Emit(backend.Event{Kind: backend.EventExited, ExitCode: code})
		return
	}

	ev := backend.Event{Kind: backend.EventStopped, Reason: stopReason(reason)}
	if tid := rec.Fields.GetString("thread-id"); tid != "" {
		if v, err := strconv.Atoi(tid); err == nil {
			ev.ThreadID = v
			g.session.SetActiveThread(v)
		}
	}
	if frame := rec.Fields.GetTuple("frame"); frame != nil {
		ev.File = frameFile(frame)
		if l, err := strconv.Atoi(frame.GetString("line")); err == nil {
			ev.Line = l
		}
	}

	var hitLogpoint *backend.Breakpoint
	if no := rec.Fields.GetString("bkptno"); no != "" {
		if bp, ok := g.session.Breakpoints.FindByBackendID(no); ok {
			bp.HitCount++
			ev.Breakpoint = bp
			if bp.Kind == backend.Logpoint {
				hitLogpoint = bp
			}
		}
	}

	g.session.SetState(backend.StatePaused)
	g.session.Emit(ev)

	if hitLogpoint != nil {
		// Logpoints report and keep going; the breakpoint itself is
		// backend-side only because MI has no native logpoint.
		g.session.Emit(backend.Event{
			Kind:    backend.EventOutput,
			Output:  hitLogpoint.LogMessage + "\n",
			Channel: backend.OutputConsole,
		})
		go g.Continue()
	}
}

// handleNotify processes '=' notify records: breakpoint resolution,
// thread lifecycle and library loads.
func (g *Gdb) handleNotify(rec mi.Record) {
	switch rec.Class {
	case "breakpoint-modified", "breakpoint-created":
		bkpt := rec.Fields.GetTuple("bkpt")
		if bkpt == nil {
			return
		}
		no := bkpt.GetString("number")
		bp, ok := g.session.Breakpoints.FindByBackendID(no)
		if !ok {
			return
		}
		updateValidity(bp, bkpt)
		if times := bkpt.GetString("times"); times != "" {
			if v, err := strconv.Atoi(times); err == nil {
				bp.HitCount = v
			}
		}
		g.session.Emit(backend.Event{Kind: backend.EventBreakpointChanged, Breakpoint: bp})
	case "thread-created", "thread-exited":
		id, err := strconv.Atoi(rec.Fields.GetString("id"))
		if err != nil {
			return
		}
		g.session.Emit(backend.Event{
			Kind:          backend.EventThread,
			ThreadID:      id,
			ThreadCreated: rec.Class == "thread-created",
		})
	case "library-loaded", "library-unloaded":
		mod := &backend.Module{
			Name: rec.Fields.GetString("id"),
			Path: rec.Fields.GetString("host-name"),
		}
		if ranges := rec.Fields.GetList("ranges"); len(ranges) > 0 {
			if t, ok := ranges[0].(mi.Tuple); ok {
				mod.Address = parseAddr(t.GetString("from"))
			}
		}
		g.session.Emit(backend.Event{
			Kind:   backend.EventModule,
			Module: mod,
			Loaded: rec.Class == "library-loaded",
		})
	}
}

// invalidateInspectionState drops state that a resume makes stale:
// cached memory and gdb variable objects.
func (g *Gdb) invalidateInspectionState() {
	g.memCache.Purge()

	g.varMu.Lock()
	refs := g.varRefs
	g.varRefs = make(map[int]string)
	g.varMu.Unlock()

	for _, name := range refs {
		name := name
		go g.sendQuiet(mi.NewCommand("var-delete").Arg(name))
	}
}

func stopReason(reason string) backend.StopReason {
	switch reason {
	case "breakpoint-hit":
		return backend.StopBreakpoint
	case "watchpoint-trigger", "access-watchpoint-trigger", "read-watchpoint-trigger":
		return backend.StopWatchpoint
	case "end-stepping-range", "function-finished", "location-reached":
		return backend.StopStep
	case "signal-received":
		return backend.StopSignal
	case "":
		return backend.StopPause
	default:
		return backend.StopUnknown
	}
}

func frameFile(frame mi.Tuple) string {
	if f := frame.GetString("fullname"); f != "" {
		return f
	}
	return frame.GetString("file")
}

func parseAddr(s string) uint64 {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0
	}
	return v
}

// teardown ends the session. kill selects target termination over
// detach. All pending commands fail immediately.
func (g *Gdb) teardown(kill bool) error {
	g.mu.Lock()
	if g.stopping {
		g.mu.Unlock()
		return nil
	}
	g.stopping = true
	sup := g.sup
	conn := g.conn
	g.mu.Unlock()

	g.session.SetState(backend.StateStopping)

	if conn != nil {
		if kill {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			conn.Send(ctx, mi.NewCommand("gdb-exit"))
			cancel()
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			conn.Send(ctx, mi.NewCommand("target-detach"))
			cancel()
			ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
			conn.Send(ctx, mi.NewCommand("gdb-exit"))
			cancel()
		}
		conn.Close(backend.ErrSessionClosed)
	}

	var err error
	if sup != nil {
		err = sup.Stop()
	}
	g.session.SetState(backend.StateTerminated)
	g.session.Close()
	return err
}

// Detach implements backend.Debugger.
func (g *Gdb) Detach() error { return g.teardown(false) }

// Terminate implements backend.Debugger.
func (g *Gdb) Terminate() error { return g.teardown(true) }

func itoa(v int) string { return strconv.Itoa(v) }

func hexAddr(addr uint64) string { return fmt.Sprintf("%#x", addr) }

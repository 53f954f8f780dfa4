package lldb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/config"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/logflags"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/proc"
)

// DefaultPath is the lldb executable probed and spawned when the
// configuration does not override it.
const DefaultPath = "lldb"

func init() {
	backend.RegisterBackend("lldb", DefaultPath, func(cfg backend.Config) backend.Debugger {
		return New(cfg)
	})
}

// LLDB drives one lldb process through its command line.
type LLDB struct {
	cfg     backend.Config
	session *backend.Session
	log     *logrus.Entry

	mu       sync.Mutex
	sup      *proc.Supervisor
	cli      *cli
	attached bool
	stopping bool
	stepping bool
	// stopSeen tracks that a "Process stopped" line arrived and the
	// thread detail line carrying the reason is still expected.
	stopSeen bool

	varMu   sync.Mutex
	nextRef int
	// varRefs maps variablesReference handles to frame variable paths.
	varRefs map[int]varPath
}

// varPath pins a variable expression to the frame it was read in.
type varPath struct {
	threadID int
	frame    int
	expr     string
}

// New returns an inactive lldb backend.
func New(cfg backend.Config) *LLDB {
	if cfg.DebuggerPath == "" {
		cfg.DebuggerPath = DefaultPath
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = backend.DefaultCommandTimeout
	}
	return &LLDB{
		cfg:     cfg,
		session: backend.NewSession(),
		log:     logflags.LLDBBackendLogger(),
		nextRef: 1,
		varRefs: make(map[int]varPath),
	}
}

// Name implements backend.Debugger.
func (l *LLDB) Name() string { return "lldb" }

// Session implements backend.Debugger.
func (l *LLDB) Session() *backend.Session { return l.session }

func (l *LLDB) start() error {
	if err := l.session.SetState(backend.StateStarting); err != nil {
		return err
	}

	sup := proc.New(l.cfg.DebuggerPath, []string{"--no-use-colors"}, proc.Options{})
	if err := sup.Start(); err != nil {
		l.session.SetState(backend.StateError)
		return &backend.SpawnFailedError{Path: l.cfg.DebuggerPath, Err: err}
	}

	l.mu.Lock()
	l.sup = sup
	l.cli = newCLI(sup, l.handleEventLine, l.log)
	l.mu.Unlock()

	go l.cli.run()
	go l.watchExit(sup)
	go l.forwardStderr(sup)

	// Asynchronous mode keeps the CLI responsive while the target
	// runs, matching the engine's execution model.
	l.execQuiet("settings set interpreter.prompt-on-quit false")
	return nil
}

func (l *LLDB) watchExit(sup *proc.Supervisor) {
	st := <-sup.ExitChan()

	l.mu.Lock()
	intentional := l.stopping
	cl := l.cli
	l.mu.Unlock()

	if intentional {
		return
	}
	crash := &backend.BackendCrashError{ExitCode: st.Code}
	l.log.Errorf("lldb exited unexpectedly: %v", crash)
	if cl != nil {
		cl.close(crash)
	}
	l.session.SetState(backend.StateError)
	l.session.Emit(backend.Event{Kind: backend.EventError, Err: crash})
}

func (l *LLDB) forwardStderr(sup *proc.Supervisor) {
	for line := range sup.ErrLines() {
		l.session.Emit(backend.Event{Kind: backend.EventOutput, Output: line + "\n", Channel: backend.OutputLog})
	}
}

// exec issues one CLI command with the configured timeout.
func (l *LLDB) exec(command string) ([]string, error) {
	l.mu.Lock()
	cl := l.cli
	l.mu.Unlock()
	if cl == nil {
		return nil, backend.ErrSessionClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CommandTimeout)
	defer cancel()
	return cl.exec(ctx, command)
}

func (l *LLDB) execQuiet(command string) {
	if _, err := l.exec(command); err != nil {
		l.log.Debugf("advisory command failed: %v", err)
	}
}

func (l *LLDB) markStepping(v bool) {
	l.mu.Lock()
	l.stepping = v
	l.mu.Unlock()
}

// handleEventLine classifies every output line. Process lifecycle
// lines can appear inside command replies as well as between them.
func (l *LLDB) handleEventLine(line string) {
	switch {
	case processStoppedRe.MatchString(line):
		l.mu.Lock()
		l.stopSeen = true
		l.mu.Unlock()
	case processResumingRe.MatchString(line):
		l.mu.Lock()
		stepping := l.stepping
		l.mu.Unlock()
		l.invalidateInspectionState()
		next := backend.StateRunning
		if stepping {
			next = backend.StateStepping
		}
		if err := l.session.SetState(next); err == nil {
			l.session.Emit(backend.Event{Kind: backend.EventContinued})
		}
	case processExitedRe.MatchString(line):
		m := processExitedRe.FindStringSubmatch(line)
		code, _ := strconv.Atoi(m[2])
		l.mu.Lock()
		intentional := l.stopping
		l.mu.Unlock()
		if intentional {
			return
		}
		l.session.SetState(backend.StateTerminated)
		l.session.Emit(backend.Event{Kind: backend.EventExited, ExitCode: code})
	default:
		l.mu.Lock()
		pending := l.stopSeen
		l.mu.Unlock()
		if pending {
			if st, ok := parseStopDetail(line); ok {
				l.finishStop(st)
			}
		}
	}
}

// finishStop completes a stop once the thread detail line arrived.
func (l *LLDB) finishStop(st stopDetail) {
	l.mu.Lock()
	l.stopSeen = false
	l.stepping = false
	l.mu.Unlock()

	ev := backend.Event{
		Kind:     backend.EventStopped,
		Reason:   st.reason,
		ThreadID: st.threadID,
		File:     st.file,
		Line:     st.line,
	}
	if st.threadID > 0 {
		l.session.SetActiveThread(st.threadID)
	}
	if st.breakpoint != "" {
		if bp, ok := l.session.Breakpoints.FindByBackendID(st.breakpoint); ok {
			bp.HitCount++
			ev.Breakpoint = bp
			if bp.Kind == backend.Logpoint {
				l.session.SetState(backend.StatePaused)
				l.session.Emit(ev)
				l.session.Emit(backend.Event{
					Kind:    backend.EventOutput,
					Output:  bp.LogMessage + "\n",
					Channel: backend.OutputConsole,
				})
				go l.Continue()
				return
			}
		}
	}
	l.session.SetState(backend.StatePaused)
	l.session.Emit(ev)
}

func (l *LLDB) invalidateInspectionState() {
	l.varMu.Lock()
	l.varRefs = make(map[int]varPath)
	l.varMu.Unlock()
}

func (l *LLDB) registerVarRef(p varPath) int {
	l.varMu.Lock()
	defer l.varMu.Unlock()
	ref := l.nextRef
	l.nextRef++
	l.varRefs[ref] = p
	return ref
}

// Launch implements backend.Debugger.
func (l *LLDB) Launch(cfg *config.LaunchConfig) error {
	if cfg.DebuggerPath != "" {
		l.cfg.DebuggerPath = cfg.DebuggerPath
	}
	if cfg.Console == config.ConsoleTTY {
		return errors.New("tty console mode is not supported by the lldb backend")
	}
	if err := l.start(); err != nil {
		return err
	}
	if _, err := l.exec("target create " + quote(cfg.Program)); err != nil {
		l.session.SetState(backend.StateError)
		return err
	}

	args, err := cfg.TargetArgs()
	if err != nil {
		l.session.SetState(backend.StateError)
		return err
	}
	for k, v := range cfg.Env {
		l.execQuiet("settings set target.env-vars " + quote(k+"="+v))
	}
	if cfg.WorkingDir != "" {
		if _, err := l.exec("settings set target.run-working-dir " + quote(cfg.WorkingDir)); err != nil {
			l.session.SetState(backend.StateError)
			return err
		}
	}
	if cfg.PreLaunch != "" {
		if _, err := l.exec(cfg.PreLaunch); err != nil {
			l.session.SetState(backend.StateError)
			return err
		}
	}

	launch := "process launch"
	if cfg.StopOnEntry {
		launch += " --stop-at-entry"
	}
	for _, a := range args {
		launch += " " + quote(a)
	}
	l.markStepping(cfg.StopOnEntry)
	out, err := l.exec(launch)
	if err != nil {
		l.session.SetState(backend.StateError)
		return err
	}
	if pid := firstMatch(out, processLaunchedRe); pid != "" {
		if v, err := strconv.Atoi(pid); err == nil {
			l.session.SetTarget(v, "")
		}
	}
	return nil
}

// Attach implements backend.Debugger.
func (l *LLDB) Attach(pid int) error {
	if err := l.start(); err != nil {
		return err
	}
	if _, err := l.exec(fmt.Sprintf("process attach --pid %d", pid)); err != nil {
		l.session.SetState(backend.StateError)
		return err
	}
	l.mu.Lock()
	l.attached = true
	l.mu.Unlock()
	l.session.SetTarget(pid, "")
	l.normalizeAttachStop()
	return nil
}

// AttachByName implements backend.Debugger.
func (l *LLDB) AttachByName(name string) error {
	pid, err := backend.FindNewestProcess(name)
	if err != nil {
		return err
	}
	return l.Attach(pid)
}

// ConnectRemote implements backend.Debugger. addr is a debugserver or
// gdbserver endpoint, host:port.
func (l *LLDB) ConnectRemote(addr string) error {
	if err := l.start(); err != nil {
		return err
	}
	if _, err := l.exec("gdb-remote " + addr); err != nil {
		l.session.SetState(backend.StateError)
		return err
	}
	l.session.SetTarget(0, addr)
	l.normalizeAttachStop()
	return nil
}

// LoadCoreDump implements backend.Debugger.
func (l *LLDB) LoadCoreDump(program, core string) error {
	if err := l.start(); err != nil {
		return err
	}
	if _, err := l.exec("target create " + quote(program) + " --core " + quote(core)); err != nil {
		l.session.SetState(backend.StateError)
		return err
	}
	l.normalizeAttachStop()
	return nil
}

// normalizeAttachStop brings the session to Paused when the stop is
// implicit and no event line announced it.
func (l *LLDB) normalizeAttachStop() {
	if l.session.State() != backend.StateStarting {
		return
	}
	l.session.SetState(backend.StateRunning)
	l.session.SetState(backend.StatePaused)
	l.session.Emit(backend.Event{Kind: backend.EventStopped, Reason: backend.StopEntry})
}

// teardown ends the session; kill selects target termination over
// detach.
func (l *LLDB) teardown(kill bool) error {
	l.mu.Lock()
	if l.stopping {
		l.mu.Unlock()
		return nil
	}
	l.stopping = true
	sup := l.sup
	cl := l.cli
	l.mu.Unlock()

	l.session.SetState(backend.StateStopping)

	if cl != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if kill {
			cl.exec(ctx, "process kill")
		} else {
			cl.exec(ctx, "process detach")
		}
		cancel()
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		cl.exec(ctx, "quit")
		cancel()
		cl.close(backend.ErrSessionClosed)
	}

	var err error
	if sup != nil {
		err = sup.Stop()
	}
	l.session.SetState(backend.StateTerminated)
	l.session.Close()
	return err
}

// Detach implements backend.Debugger.
func (l *LLDB) Detach() error { return l.teardown(false) }

// Terminate implements backend.Debugger.
func (l *LLDB) Terminate() error { return l.teardown(true) }

// quote wraps s in double quotes when it needs them for the lldb
// command line.
func quote(s string) string {
	if s == "" {
		return `""`
	}
	for _, r := range s {
		if r == ' ' || r == '"' || r == '\\' || r == '\t' {
			return strconv.Quote(s)
		}
	}
	return s
}

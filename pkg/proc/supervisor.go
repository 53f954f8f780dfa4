// Package proc spawns and supervises debugger and adapter subprocesses.
//
// A Supervisor owns exactly one child process. It exposes the child's
// stdout and stderr as bounded line queues filled by two background
// reader goroutines, and the child's stdin as a line- or byte-oriented
// writer. Stop terminates the child gracefully, escalating to a kill
// after a grace period, and joins both readers before returning.
package proc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/logflags"
)

// ErrNotRunning is returned by operations that require a live child.
var ErrNotRunning = errors.New("process is not running")

// ErrQueueEmpty is returned by a non-blocking or timed read when no
// complete line arrived in time.
var ErrQueueEmpty = errors.New("no line available")

// lineQueueSize bounds the per-stream line queues. A debugger that
// floods faster than the engine drains will block its own pipe, which
// is the desired backpressure.
const lineQueueSize = 4096

// Options configure how the child process is spawned.
type Options struct {
	// WorkingDir is the child working directory.
	WorkingDir string
	// Env replaces the child environment when non-nil.
	Env []string
	// RawStdout disables the stdout line reader; the stream is exposed
	// through Stdout() instead. Used for byte-framed protocols (DAP
	// over stdio). Stderr is always line-buffered.
	RawStdout bool
	// UsePTY runs the child under a pseudo terminal (unix only).
	UsePTY bool
	// GracePeriod is how long Stop waits after the graceful signal
	// before killing the child. Zero means DefaultGracePeriod.
	GracePeriod time.Duration
}

// DefaultGracePeriod is the default Stop escalation timeout.
const DefaultGracePeriod = 500 * time.Millisecond

// ExitStatus describes how the child exited.
type ExitStatus struct {
	Code int
	Err  error
}

// Supervisor owns one child process and its I/O.
type Supervisor struct {
	path string
	args []string
	opts Options
	log  *logrus.Entry

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	running bool

	outLines chan string
	errLines chan string

	readers  sync.WaitGroup
	exitCh   chan ExitStatus
	exitOnce sync.Once
}

// New prepares a supervisor for the given executable. The child is not
// spawned until Start.
func New(path string, args []string, opts Options) *Supervisor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	return &Supervisor{
		path: path,
		args: args,
		opts: opts,
		log:  logflags.ProcLogger(),
	}
}

// Start spawns the child with three independent pipes and starts the
// stream readers. A spawn failure (missing executable, permission) is
// terminal and is never retried.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("process already started")
	}

	cmd := exec.Command(s.path, s.args...)
	cmd.Dir = s.opts.WorkingDir
	if s.opts.Env != nil {
		cmd.Env = s.opts.Env
	}

	s.outLines = make(chan string, lineQueueSize)
	s.errLines = make(chan string, lineQueueSize)
	s.exitCh = make(chan ExitStatus, 1)
	s.exitOnce = sync.Once{}

	var err error
	if s.opts.UsePTY {
		err = s.startPTY(cmd)
	} else {
		err = s.startPipes(cmd)
	}
	if err != nil {
		return fmt.Errorf("could not launch %s: %w", s.path, err)
	}

	s.cmd = cmd
	s.running = true
	s.log.Debugf("started %s (pid %d)", s.path, cmd.Process.Pid)

	go s.wait()
	return nil
}

func (s *Supervisor) startPipes(cmd *exec.Cmd) error {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	s.stdin = stdin
	s.stdout = stdout

	if !s.opts.RawStdout {
		s.readers.Add(1)
		go s.readStream(stdout, s.outLines)
	}
	s.readers.Add(1)
	go s.readStream(stderr, s.errLines)
	return nil
}

// readStream splits a stream into lines and pushes them onto the queue
// until EOF. The queue channel is closed when the stream ends so timed
// reads can distinguish "empty" from "gone".
func (s *Supervisor) readStream(r io.Reader, lines chan<- string) {
	defer s.readers.Done()
	defer close(lines)
	rd := bufio.NewReader(r)
	for {
		line, err := rd.ReadString('\n')
		if len(line) > 0 {
			for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
				line = line[:len(line)-1]
			}
			lines <- line
		}
		if err != nil {
			if err != io.EOF {
				s.log.Debugf("stream reader: %v", err)
			}
			return
		}
	}
}

// wait reaps the child and publishes its exit status.
func (s *Supervisor) wait() {
	err := s.cmd.Wait()
	code := 0
	if exitErr := new(exec.ExitError); errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
		err = nil
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.log.Debugf("process %s exited with code %d", s.path, code)
	s.exitOnce.Do(func() {
		s.exitCh <- ExitStatus{Code: code, Err: err}
		close(s.exitCh)
	})
}

// IsRunning reports whether the child is still alive.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pid returns the child process id, or -1 before Start.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return -1
	}
	return s.cmd.Process.Pid
}

// ExitChan delivers the exit status once, when the child exits.
func (s *Supervisor) ExitChan() <-chan ExitStatus {
	return s.exitCh
}

// Stdout exposes the raw stdout stream. Only valid with
// Options.RawStdout.
func (s *Supervisor) Stdout() io.Reader {
	return s.stdout
}

// SendLine writes one line to the child's stdin, appending a newline.
func (s *Supervisor) SendLine(text string) error {
	s.mu.Lock()
	stdin := s.stdin
	running := s.running
	s.mu.Unlock()
	if !running || stdin == nil {
		return ErrNotRunning
	}
	_, err := io.WriteString(stdin, text+"\n")
	return err
}

// Write writes raw bytes to the child's stdin.
func (s *Supervisor) Write(p []byte) (int, error) {
	s.mu.Lock()
	stdin := s.stdin
	running := s.running
	s.mu.Unlock()
	if !running || stdin == nil {
		return 0, ErrNotRunning
	}
	return stdin.Write(p)
}

// ReadLine reads one stdout line. A negative timeout blocks until a
// line or EOF, zero polls, a positive timeout waits at most that long.
// Returns io.EOF once the stream is exhausted.
func (s *Supervisor) ReadLine(timeout time.Duration) (string, error) {
	return readQueue(s.outLines, timeout)
}

// ReadErrLine reads one stderr line with ReadLine semantics.
func (s *Supervisor) ReadErrLine(timeout time.Duration) (string, error) {
	return readQueue(s.errLines, timeout)
}

// Lines exposes the stdout line queue for dispatcher loops. The channel
// closes when the stream ends.
func (s *Supervisor) Lines() <-chan string {
	return s.outLines
}

// ErrLines exposes the stderr line queue.
func (s *Supervisor) ErrLines() <-chan string {
	return s.errLines
}

func readQueue(lines <-chan string, timeout time.Duration) (string, error) {
	if lines == nil {
		return "", ErrNotRunning
	}
	switch {
	case timeout < 0:
		line, ok := <-lines
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case timeout == 0:
		select {
		case line, ok := <-lines:
			if !ok {
				return "", io.EOF
			}
			return line, nil
		default:
			return "", ErrQueueEmpty
		}
	default:
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case line, ok := <-lines:
			if !ok {
				return "", io.EOF
			}
			return line, nil
		case <-t.C:
			return "", ErrQueueEmpty
		}
	}
}

// Interrupt delivers the platform interrupt signal to the child,
// typically to pause a running debug target.
func (s *Supervisor) Interrupt() error {
	s.mu.Lock()
	cmd := s.cmd
	running := s.running
	s.mu.Unlock()
	if !running || cmd == nil || cmd.Process == nil {
		return ErrNotRunning
	}
	return interruptProcess(cmd.Process)
}

// Stop terminates the child. It requests graceful termination first,
// waits for the grace period, escalates to a forceful kill if the
// child is still alive, and joins both reader goroutines before
// returning. It is safe to call on an already-exited child.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	running := s.running
	stdin := s.stdin
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	if running {
		if stdin != nil {
			stdin.Close()
		}
		if err := terminateProcess(cmd.Process); err != nil {
			s.log.Debugf("graceful termination failed: %v", err)
		}
		select {
		case <-s.exitCh:
		case <-time.After(s.opts.GracePeriod):
			s.log.Debugf("process %d ignored termination, killing", cmd.Process.Pid)
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return err
			}
			<-s.exitCh
		}
	}

	s.readers.Wait()
	return nil
}

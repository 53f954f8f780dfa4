//go:build linux || darwin || freebsd
// +build linux darwin freebsd

package proc

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// startPTY launches the child under a pseudo terminal. The pty master
// serves as both stdin and stdout; stderr is merged into it by the
// kernel, so only one reader goroutine is needed.
func (s *Supervisor) startPTY(cmd *exec.Cmd) error {
	master, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	s.stdin = master
	s.stdout = master
	if !s.opts.RawStdout {
		s.readers.Add(1)
		go s.readStream(master, s.outLines)
	}
	// Nothing will ever arrive on the stderr queue; close it so timed
	// reads return EOF instead of stalling.
	close(s.errLines)
	return nil
}

func terminateProcess(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}

func interruptProcess(p *os.Process) error {
	return p.Signal(unix.SIGINT)
}

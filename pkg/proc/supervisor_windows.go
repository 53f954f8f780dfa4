//go:build windows
// +build windows

package proc

import (
	"errors"
	"os"
	"os/exec"
)

// startPTY is not supported on Windows; console-mode launches fall back
// to pipes at the configuration layer.
func (s *Supervisor) startPTY(cmd *exec.Cmd) error {
	return errors.New("pty console mode is not supported on windows")
}

// Windows has no graceful termination signal usable across process
// groups; Stop goes straight to Kill after the grace period, and the
// initial request is a no-op that keeps the escalation shape uniform.
func terminateProcess(p *os.Process) error {
	return nil
}

func interruptProcess(p *os.Process) error {
	return errors.New("interrupt is not supported on windows")
}

//go:build linux || darwin || freebsd
// +build linux darwin freebsd

package proc

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartFailureIsTerminal(t *testing.T) {
	s := New("/nonexistent/debugger-binary", nil, Options{})
	err := s.Start()
	require.Error(t, err)
	assert.False(t, s.IsRunning())
}

func TestReadLinesFromBothStreams(t *testing.T) {
	s := New("/bin/sh", []string{"-c", "echo out-line; echo err-line 1>&2"}, Options{})
	require.NoError(t, s.Start())
	defer s.Stop()

	line, err := s.ReadLine(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "out-line", line)

	line, err = s.ReadErrLine(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "err-line", line)

	// After exit the stdout queue drains to EOF.
	<-s.ExitChan()
	_, err = s.ReadLine(2 * time.Second)
	assert.Equal(t, io.EOF, err)
}

func TestNonBlockingPollAndSendLine(t *testing.T) {
	s := New("/bin/sh", []string{"-c", "read x; echo got $x"}, Options{})
	require.NoError(t, s.Start())
	defer s.Stop()

	// Nothing was written yet: a poll must not block.
	_, err := s.ReadLine(0)
	assert.Equal(t, ErrQueueEmpty, err)

	require.NoError(t, s.SendLine("ping"))
	line, err := s.ReadLine(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "got ping", line)
}

func TestStopEscalatesToKill(t *testing.T) {
	// The child ignores SIGTERM, so Stop has to escalate.
	s := New("/bin/sh", []string{"-c", `trap "" TERM; while true; do sleep 1; done`}, Options{
		GracePeriod: 200 * time.Millisecond,
	})
	require.NoError(t, s.Start())

	start := time.Now()
	require.NoError(t, s.Stop())
	elapsed := time.Since(start)

	assert.False(t, s.IsRunning())
	assert.Less(t, elapsed, 5*time.Second, "Stop did not return within a bounded time")
}

func TestStopGraceful(t *testing.T) {
	s := New("/bin/sh", []string{"-c", "sleep 30"}, Options{})
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestExitStatus(t *testing.T) {
	s := New("/bin/sh", []string{"-c", "exit 3"}, Options{})
	require.NoError(t, s.Start())
	select {
	case st := <-s.ExitChan():
		assert.Equal(t, 3, st.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit status")
	}
	require.NoError(t, s.Stop())
}

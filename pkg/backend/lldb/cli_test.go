package lldb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/logflags"
)

// fakeLLDB replies to each command with canned lines followed by the
// end-of-command sentinel the session expects.
type fakeLLDB struct {
	mu      sync.Mutex
	lines   chan string
	sent    []string
	replies map[string][]string // command prefix -> reply lines
	mute    bool                // swallow sentinel commands (timeout path)
}

func newFakeLLDB() *fakeLLDB {
	return &fakeLLDB{
		lines:   make(chan string, 64),
		replies: make(map[string][]string),
	}
}

func (f *fakeLLDB) Lines() <-chan string { return f.lines }

func (f *fakeLLDB) SendLine(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)

	if strings.HasPrefix(text, "script print(") {
		if f.mute {
			return nil
		}
		// Echo the sentinel the way lldb's script command would.
		marker := strings.TrimSuffix(strings.TrimPrefix(text, `script print("`), `")`)
		f.lines <- marker
		return nil
	}
	for prefix, reply := range f.replies {
		if strings.HasPrefix(text, prefix) {
			for _, l := range reply {
				f.lines <- l
			}
			return nil
		}
	}
	return nil
}

func newTestCLI(f *fakeLLDB, onEvent func(string)) *cli {
	if onEvent == nil {
		onEvent = func(string) {}
	}
	c := newCLI(f, onEvent, logflags.LLDBBackendLogger())
	go c.run()
	return c
}

func TestCLIExecCollectsOutput(t *testing.T) {
	f := newFakeLLDB()
	f.replies["thread list"] = []string{
		"Process 1201 stopped",
		"* thread #1: tid = 0x1f03",
	}
	c := newTestCLI(f, nil)
	defer c.close(nil)

	out, err := c.exec(context.Background(), "thread list")
	require.NoError(t, err)
	assert.Equal(t, []string{"Process 1201 stopped", "* thread #1: tid = 0x1f03"}, out)
}

func TestCLIExecErrorLine(t *testing.T) {
	f := newFakeLLDB()
	f.replies["breakpoint set"] = []string{`error: unable to resolve location`}
	c := newTestCLI(f, nil)
	defer c.close(nil)

	_, err := c.exec(context.Background(), "breakpoint set --file x.c --line 1")
	var rejected *backend.CommandRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "unable to resolve location", rejected.Msg)
}

func TestCLIEventLinesAlwaysScanned(t *testing.T) {
	f := newFakeLLDB()
	f.replies["process continue"] = []string{"Process 1201 resuming"}
	var events []string
	var evMu sync.Mutex
	c := newTestCLI(f, func(line string) {
		evMu.Lock()
		events = append(events, line)
		evMu.Unlock()
	})
	defer c.close(nil)

	// Inside a command reply.
	_, err := c.exec(context.Background(), "process continue")
	require.NoError(t, err)

	// Between commands.
	f.lines <- "Process 1201 stopped"

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		evMu.Lock()
		n := len(events)
		evMu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	evMu.Lock()
	defer evMu.Unlock()
	assert.Contains(t, events, "Process 1201 resuming")
	assert.Contains(t, events, "Process 1201 stopped")
}

func TestCLITimeoutBurnsCommandID(t *testing.T) {
	f := newFakeLLDB()
	f.mute = true
	c := newTestCLI(f, nil)
	defer c.close(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.exec(ctx, "process continue")
	require.ErrorIs(t, err, backend.ErrCommandTimeout)

	// The late sentinel of the timed-out command resolves nothing.
	f.lines <- "---cmd-1---"

	f.mu.Lock()
	f.mute = false
	f.mu.Unlock()
	out, err := c.exec(context.Background(), "version")
	require.NoError(t, err)
	assert.Empty(t, out)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Contains(t, f.sent, fmt.Sprintf("script print(%q)", "---cmd-2---"))
}

func TestCLICloseFailsInFlight(t *testing.T) {
	f := newFakeLLDB()
	f.mute = true
	c := newTestCLI(f, nil)

	errs := make(chan error, 1)
	go func() {
		_, err := c.exec(context.Background(), "process continue")
		errs <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		inflight := c.inflight != nil
		c.mu.Unlock()
		if inflight {
			break
		}
		time.Sleep(time.Millisecond)
	}

	crash := &backend.BackendCrashError{ExitCode: 9}
	c.close(crash)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, error(crash))
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight command not failed by close")
	}

	_, err := c.exec(context.Background(), "version")
	assert.ErrorIs(t, err, error(crash))
}

package gdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/mi"
)

// scriptedSource answers each sent command with a canned reply keyed
// by the command name, substituting the allocated token.
type scriptedSource struct {
	mu      sync.Mutex
	lines   chan string
	sent    []string
	replies map[string][]string // command name -> reply lines
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		lines:   make(chan string, 64),
		replies: make(map[string][]string),
	}
}

func (s *scriptedSource) Lines() <-chan string { return s.lines }

func (s *scriptedSource) SendLine(text string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)

	// Strip "<token>-" to find the command name.
	i := 0
	for i < len(text) && text[i] >= '0' && text[i] <= '9' {
		i++
	}
	token := text[:i]
	name := text[i+1:]
	if j := indexByte(name, ' '); j >= 0 {
		name = name[:j]
	}
	for _, reply := range s.replies[name] {
		if len(reply) > 0 && reply[0] == '@' {
			reply = token + reply[1:]
		}
		s.lines <- reply
	}
	return nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func (s *scriptedSource) push(lines ...string) {
	for _, l := range lines {
		s.lines <- l
	}
}

func (s *scriptedSource) sentLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

type asyncCollector struct {
	mu   sync.Mutex
	recs []mi.Record
}

func (a *asyncCollector) handle(rec mi.Record) {
	a.mu.Lock()
	a.recs = append(a.recs, rec)
	a.mu.Unlock()
}

func (a *asyncCollector) wait(t *testing.T, n int) []mi.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		if len(a.recs) >= n {
			out := make([]mi.Record, len(a.recs))
			copy(out, a.recs)
			a.mu.Unlock()
			return out
		}
		a.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d async records", n)
	return nil
}

func TestConnCorrelatesResult(t *testing.T) {
	src := newScriptedSource()
	src.replies["data-evaluate-expression"] = []string{`@^done,value="42"`, "(gdb)"}
	var col asyncCollector
	conn := NewConn(src, col.handle)
	go conn.Run()
	defer conn.Close(nil)

	rec, err := conn.Send(context.Background(), mi.NewCommand("data-evaluate-expression").Arg("x"))
	require.NoError(t, err)
	assert.Equal(t, mi.ClassDone, rec.Class)
	assert.Equal(t, "42", rec.Fields.GetString("value"))
	assert.Equal(t, 0, conn.Pending())

	sent := src.sentLines()
	require.Len(t, sent, 1)
	assert.Equal(t, "1-data-evaluate-expression x", sent[0])
}

func TestConnTokensMonotonic(t *testing.T) {
	src := newScriptedSource()
	src.replies["break-delete"] = []string{`@^done`}
	conn := NewConn(src, func(mi.Record) {})
	go conn.Run()
	defer conn.Close(nil)

	for i := 0; i < 3; i++ {
		_, err := conn.Send(context.Background(), mi.NewCommand("break-delete").Arg("1"))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"1-break-delete 1", "2-break-delete 1", "3-break-delete 1"}, src.sentLines())
}

func TestConnRoutesAsyncRecords(t *testing.T) {
	src := newScriptedSource()
	var col asyncCollector
	conn := NewConn(src, col.handle)
	go conn.Run()
	defer conn.Close(nil)

	src.push(
		`*stopped,reason="breakpoint-hit",bkptno="3",thread-id="1"`,
		`~"Reading symbols...\n"`,
		`(gdb)`,
		`=thread-created,id="2"`,
	)

	recs := col.wait(t, 3) // prompt is swallowed by the dispatcher
	assert.Equal(t, mi.RecordAsyncExec, recs[0].Kind)
	assert.Equal(t, "stopped", recs[0].Class)
	assert.Equal(t, "3", recs[0].Fields.GetString("bkptno"))
	assert.Equal(t, mi.RecordConsoleStream, recs[1].Kind)
	assert.Equal(t, "Reading symbols...\n", recs[1].Text)
	assert.Equal(t, mi.RecordAsyncNotify, recs[2].Kind)
}

func TestConnCommandRejected(t *testing.T) {
	src := newScriptedSource()
	src.replies["break-insert"] = []string{`@^error,msg="No symbol table is loaded."`}
	conn := NewConn(src, func(mi.Record) {})
	go conn.Run()
	defer conn.Close(nil)

	_, err := conn.Send(context.Background(), mi.NewCommand("break-insert").Arg("nowhere"))
	var rejected *backend.CommandRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "No symbol table is loaded.", rejected.Msg)
}

func TestConnTimeoutBurnsToken(t *testing.T) {
	src := newScriptedSource() // no reply configured
	var col asyncCollector
	conn := NewConn(src, col.handle)
	go conn.Run()
	defer conn.Close(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := conn.Send(ctx, mi.NewCommand("exec-continue"))
	require.ErrorIs(t, err, backend.ErrCommandTimeout)
	assert.Equal(t, 0, conn.Pending())

	// The late response finds no pending entry and goes to the async
	// handler instead of resolving anything.
	src.push(`1^done`)
	recs := col.wait(t, 1)
	assert.True(t, recs[0].IsResult())
	assert.Equal(t, 1, recs[0].Token)

	// The next command gets a fresh token, not the burned one.
	src.replies["gdb-exit"] = []string{`@^done`}
	_, err = conn.Send(context.Background(), mi.NewCommand("gdb-exit"))
	require.NoError(t, err)
	sent := src.sentLines()
	assert.Equal(t, "2-gdb-exit", sent[len(sent)-1])
}

func TestConnCloseFailsPending(t *testing.T) {
	src := newScriptedSource()
	conn := NewConn(src, func(mi.Record) {})
	go conn.Run()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := conn.Send(context.Background(), mi.NewCommand("exec-continue"))
			errs <- err
		}()
	}
	// Both commands must be in flight before teardown.
	deadline := time.Now().Add(2 * time.Second)
	for conn.Pending() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 2, conn.Pending())

	crash := &backend.BackendCrashError{ExitCode: 137}
	conn.Close(crash)

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, error(crash))
		case <-time.After(2 * time.Second):
			t.Fatal("pending command not failed by Close")
		}
	}

	// Sends after teardown fail immediately with the same error.
	_, err := conn.Send(context.Background(), mi.NewCommand("gdb-exit"))
	assert.ErrorIs(t, err, error(crash))
}

func TestConnEOFClosesWithSessionError(t *testing.T) {
	src := newScriptedSource()
	conn := NewConn(src, func(mi.Record) {})
	done := make(chan struct{})
	go func() { conn.Run(); close(done) }()

	close(src.lines)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not exit on EOF")
	}
	_, err := conn.Send(context.Background(), mi.NewCommand("exec-continue"))
	assert.ErrorIs(t, err, backend.ErrSessionClosed)
}

func TestConnCanceledContext(t *testing.T) {
	src := newScriptedSource()
	conn := NewConn(src, func(mi.Record) {})
	go conn.Run()
	defer conn.Close(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := conn.Send(ctx, mi.NewCommand("exec-continue"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, backend.ErrCommandTimeout)
	assert.True(t, errors.Is(err, context.Canceled))
}

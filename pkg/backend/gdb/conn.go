package gdb

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/logflags"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/mi"
)

// lineSource is the slice of the process supervisor the connection
// needs: a line queue in and a line writer out.
type lineSource interface {
	Lines() <-chan string
	SendLine(text string) error
}

// Conn correlates outgoing MI commands with incoming result records.
// Tokens are allocated monotonically per session and never reused;
// a late response after a timeout finds no pending entry and is routed
// to the async handler like any other unsolicited record.
type Conn struct {
	src     lineSource
	onAsync func(mi.Record)

	wireLog *logrus.Entry

	mu        sync.Mutex
	nextToken int
	pending   map[int]chan *mi.Record
	closed    bool
	closeErr  error

	done chan struct{}
}

// NewConn wraps src. onAsync receives every record that is not a
// correlated result: async records, stream records, unsolicited
// results and unparseable chatter. It is called from the dispatcher
// goroutine and must not block.
func NewConn(src lineSource, onAsync func(mi.Record)) *Conn {
	return &Conn{
		src:       src,
		onAsync:   onAsync,
		wireLog:   logflags.MIWireLogger(),
		nextToken: 1,
		pending:   make(map[int]chan *mi.Record),
		done:      make(chan struct{}),
	}
}

// Run is the dispatcher loop. It returns when the line source is
// exhausted, failing any still-pending commands. Run in its own
// goroutine.
func (c *Conn) Run() {
	for line := range c.src.Lines() {
		c.wireLog.Debug("<- ", line)
		rec := mi.ParseLine(line)
		if rec.Kind == mi.RecordPrompt {
			continue
		}
		if rec.IsResult() && rec.Token != mi.NoToken {
			c.mu.Lock()
			ch, ok := c.pending[rec.Token]
			if ok {
				delete(c.pending, rec.Token)
			}
			c.mu.Unlock()
			if ok {
				r := rec
				ch <- &r
				continue
			}
			// No matching pending entry: either a late response after
			// a timeout (dropped) or a desync; let the session decide.
		}
		c.onAsync(rec)
	}
	c.Close(backend.ErrSessionClosed)
}

// Send transmits one command and waits for its result record. The
// context bounds the wait: a deadline expiry yields ErrCommandTimeout,
// leaving the token burned so the late response is discarded. An
// ^error result yields CommandRejectedError.
func (c *Conn) Send(ctx context.Context, cmd *mi.Command) (*mi.Record, error) {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}
	token := c.nextToken
	c.nextToken++
	ch := make(chan *mi.Record, 1)
	c.pending[token] = ch
	c.mu.Unlock()

	line := cmd.Token(token).String()
	c.wireLog.Debug("-> ", line)
	if err := c.src.SendLine(line); err != nil {
		c.mu.Lock()
		delete(c.pending, token)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case rec := <-ch:
		if rec.Class == mi.ClassError {
			msg := rec.Fields.GetString("msg")
			if msg == "" {
				msg = "command failed"
			}
			return rec, &backend.CommandRejectedError{Command: line, Msg: msg}
		}
		return rec, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, token)
		c.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, backend.ErrCommandTimeout
		}
		return nil, ctx.Err()
	case <-c.done:
		c.mu.Lock()
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}
}

// Close fails every pending command with err and rejects future sends.
// Safe to call more than once; the first error wins.
func (c *Conn) Close(err error) {
	if err == nil {
		err = backend.ErrSessionClosed
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	pending := c.pending
	c.pending = make(map[int]chan *mi.Record)
	c.mu.Unlock()

	close(c.done)
	// Pending channels are buffered; nothing will send on them now
	// that the map was swapped, and their waiters are woken by done.
	_ = pending
}

// Pending returns the number of outstanding commands. Used by tests.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Package dapclient implements a programmatic DAP client. It drives a
// debug adapter over TCP or over the adapter process's stdio, pairing
// responses with requests by sequence number and dispatching events to
// registered handlers.
package dapclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/logflags"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/proc"
)

// ErrClientClosed fails pending and future calls after Close.
var ErrClientClosed = errors.New("dap client closed")

// EventHandlers receives adapter events. Nil members are skipped.
// Handlers run on the client's reader goroutine and must not block.
type EventHandlers struct {
	OnInitialized func(*dap.InitializedEvent)
	OnStopped     func(*dap.StoppedEvent)
	OnContinued   func(*dap.ContinuedEvent)
	OnExited      func(*dap.ExitedEvent)
	OnTerminated  func(*dap.TerminatedEvent)
	OnThread      func(*dap.ThreadEvent)
	OnOutput      func(*dap.OutputEvent)
	OnBreakpoint  func(*dap.BreakpointEvent)
	OnModule      func(*dap.ModuleEvent)
	OnProcess     func(*dap.ProcessEvent)
}

// Client is a DAP client over one adapter connection. Requests carry
// monotonically increasing sequence numbers that are never reused;
// responses complete the matching pending call by request_seq, in any
// order. A reader goroutine owns the connection's read side.
type Client struct {
	writer io.Writer
	reader *bufio.Reader
	closer io.Closer
	log    *logrus.Entry

	handlers EventHandlers

	writeMu sync.Mutex

	mu       sync.Mutex
	seq      int
	pending  map[int]chan dap.Message
	closed   bool
	closeErr error

	// sup is set when the client owns the adapter process.
	sup *proc.Supervisor
}

// Dial connects to a DAP server listening on a TCP address.
func Dial(addr string, handlers EventHandlers) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, handlers), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, handlers EventHandlers) *Client {
	c := newClient(conn, conn, conn, handlers)
	go c.run()
	return c
}

// Spawn starts a debug adapter process and speaks DAP over its stdio.
// The adapter's stderr lines are forwarded to the log.
func Spawn(path string, args []string, handlers EventHandlers) (*Client, error) {
	sup := proc.New(path, args, proc.Options{RawStdout: true})
	if err := sup.Start(); err != nil {
		return nil, err
	}
	c := newClient(sup.Stdout(), sup, nil, handlers)
	c.sup = sup
	go c.run()
	go c.forwardStderr()
	go c.watchExit()
	return c, nil
}

func newClient(r io.Reader, w io.Writer, closer io.Closer, handlers EventHandlers) *Client {
	return &Client{
		writer:   w,
		reader:   bufio.NewReader(r),
		closer:   closer,
		log:      logflags.DAPClientLogger(),
		handlers: handlers,
		seq:      1,
		pending:  make(map[int]chan dap.Message),
	}
}

func (c *Client) forwardStderr() {
	for line := range c.sup.ErrLines() {
		c.log.Debug("adapter stderr: ", line)
	}
}

func (c *Client) watchExit() {
	st := <-c.sup.ExitChan()
	c.close(fmt.Errorf("debug adapter exited: %v", st))
}

// run is the reader goroutine: it classifies incoming messages into
// responses, which complete the matching pending call, and events,
// which are dispatched to the registered handlers. A response whose
// request_seq matches nothing (a call that already timed out) is
// logged and dropped.
func (c *Client) run() {
	for {
		msg, err := dap.ReadProtocolMessage(c.reader)
		if err != nil {
			c.close(err)
			return
		}
		jsonmsg, _ := json.Marshal(msg)
		c.log.Debug("[<- from adapter]", string(jsonmsg))

		switch m := msg.(type) {
		case dap.ResponseMessage:
			c.complete(m)
		case dap.EventMessage:
			c.dispatchEvent(msg)
		default:
			c.log.Debugf("discarding unexpected message %T", msg)
		}
	}
}

func (c *Client) complete(resp dap.ResponseMessage) {
	seq := resp.GetResponse().RequestSeq
	c.mu.Lock()
	ch, ok := c.pending[seq]
	if ok {
		delete(c.pending, seq)
	}
	c.mu.Unlock()
	if !ok {
		c.log.Debugf("discarding response to request %d", seq)
		return
	}
	ch <- resp
}

func (c *Client) dispatchEvent(msg dap.Message) {
	switch ev := msg.(type) {
	case *dap.InitializedEvent:
		if c.handlers.OnInitialized != nil {
			c.handlers.OnInitialized(ev)
		}
	case *dap.StoppedEvent:
		if c.handlers.OnStopped != nil {
			c.handlers.OnStopped(ev)
		}
	case *dap.ContinuedEvent:
		if c.handlers.OnContinued != nil {
			c.handlers.OnContinued(ev)
		}
	case *dap.ExitedEvent:
		if c.handlers.OnExited != nil {
			c.handlers.OnExited(ev)
		}
	case *dap.TerminatedEvent:
		if c.handlers.OnTerminated != nil {
			c.handlers.OnTerminated(ev)
		}
	case *dap.ThreadEvent:
		if c.handlers.OnThread != nil {
			c.handlers.OnThread(ev)
		}
	case *dap.OutputEvent:
		if c.handlers.OnOutput != nil {
			c.handlers.OnOutput(ev)
		}
	case *dap.BreakpointEvent:
		if c.handlers.OnBreakpoint != nil {
			c.handlers.OnBreakpoint(ev)
		}
	case *dap.ModuleEvent:
		if c.handlers.OnModule != nil {
			c.handlers.OnModule(ev)
		}
	case *dap.ProcessEvent:
		if c.handlers.OnProcess != nil {
			c.handlers.OnProcess(ev)
		}
	default:
		c.log.Debugf("unhandled event %T", msg)
	}
}

// nextSeq allocates a request sequence number. Numbers rise for the
// lifetime of the client and are never reused, even for calls that
// time out.
func (c *Client) nextSeq() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.seq
	c.seq++
	return seq
}

// Call sends a request and waits for its response. fill receives the
// allocated sequence number and must return the complete request
// message. Context expiry abandons the call with
// backend.ErrCommandTimeout; the sequence number is burned and a late
// response is dropped by the reader.
func (c *Client) Call(ctx context.Context, fill func(seq int) dap.Message) (dap.Message, error) {
	seq := c.nextSeq()
	request := fill(seq)

	ch := make(chan dap.Message, 1)
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}
	c.pending[seq] = ch
	c.mu.Unlock()

	if err := c.write(request); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		if er, ok := resp.(*dap.ErrorResponse); ok {
			return resp, errorFromResponse(er)
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, backend.ErrCommandTimeout
		}
		return nil, ctx.Err()
	}
}

func errorFromResponse(er *dap.ErrorResponse) error {
	if er.Body.Error != nil {
		return fmt.Errorf("request %q failed: %s", er.Command, er.Body.Error.Format)
	}
	return fmt.Errorf("request %q failed: %s", er.Command, er.Message)
}

func (c *Client) write(msg dap.Message) error {
	jsonmsg, _ := json.Marshal(msg)
	c.log.Debug("[-> to adapter]", string(jsonmsg))
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return dap.WriteProtocolMessage(c.writer, msg)
}

// close fails all pending calls and stops the reader.
func (c *Client) close(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if err == nil || err == io.EOF {
		err = ErrClientClosed
	}
	c.closeErr = err
	pending := c.pending
	c.pending = make(map[int]chan dap.Message)
	c.mu.Unlock()

	for seq, ch := range pending {
		er := &dap.ErrorResponse{}
		er.Type = "response"
		er.RequestSeq = seq
		er.Success = false
		er.Message = err.Error()
		ch <- er
	}

	if c.closer != nil {
		c.closer.Close()
	}
	if c.sup != nil {
		c.sup.Stop()
	}
}

// Close tears the connection down, failing all in-flight calls. If the
// client spawned the adapter process, it is stopped too.
func (c *Client) Close() {
	c.close(ErrClientClosed)
}

func (c *Client) newRequest(seq int, command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
		Command:         command,
	}
}

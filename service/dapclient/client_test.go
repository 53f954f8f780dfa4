package dapclient

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
)

// fakeAdapter reads requests off one end of a pipe and lets tests
// reply or emit events at will.
type fakeAdapter struct {
	conn   net.Conn
	reader *bufio.Reader

	mu      sync.Mutex
	writeMu sync.Mutex
	reqs    []dap.RequestMessage
	gotReq  chan dap.RequestMessage
}

func newFakeAdapter(conn net.Conn) *fakeAdapter {
	a := &fakeAdapter{
		conn:   conn,
		reader: bufio.NewReader(conn),
		gotReq: make(chan dap.RequestMessage, 16),
	}
	go a.run()
	return a
}

func (a *fakeAdapter) run() {
	for {
		msg, err := dap.ReadProtocolMessage(a.reader)
		if err != nil {
			return
		}
		if req, ok := msg.(dap.RequestMessage); ok {
			a.mu.Lock()
			a.reqs = append(a.reqs, req)
			a.mu.Unlock()
			a.gotReq <- req
		}
	}
}

func (a *fakeAdapter) send(t *testing.T, msg dap.Message) {
	t.Helper()
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	require.NoError(t, dap.WriteProtocolMessage(a.conn, msg))
}

func (a *fakeAdapter) expectRequest(t *testing.T) dap.RequestMessage {
	t.Helper()
	select {
	case req := <-a.gotReq:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no request received")
		return nil
	}
}

func (a *fakeAdapter) respondThreads(t *testing.T, req *dap.Request, names ...string) {
	t.Helper()
	resp := &dap.ThreadsResponse{}
	resp.Type = "response"
	resp.Command = req.Command
	resp.RequestSeq = req.Seq
	resp.Success = true
	for i, n := range names {
		resp.Body.Threads = append(resp.Body.Threads, dap.Thread{Id: i + 1, Name: n})
	}
	a.send(t, resp)
}

func startClient(t *testing.T, handlers EventHandlers) (*Client, *fakeAdapter) {
	t.Helper()
	clientConn, adapterConn := net.Pipe()
	client := NewClient(clientConn, handlers)
	t.Cleanup(client.Close)
	return client, newFakeAdapter(adapterConn)
}

func TestCallCorrelatesOutOfOrderResponses(t *testing.T) {
	client, adapter := startClient(t, EventHandlers{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		threads []dap.Thread
		err     error
	}
	results := make([]chan result, 2)
	for i := range results {
		results[i] = make(chan result, 1)
		ch := results[i]
		go func() {
			threads, err := client.Threads(ctx)
			ch <- result{threads, err}
		}()
	}

	first := adapter.expectRequest(t).GetRequest()
	second := adapter.expectRequest(t).GetRequest()
	require.NotEqual(t, first.Seq, second.Seq)

	// Answer in reverse order; each call must still get its own reply.
	adapter.respondThreads(t, second, "for-second")
	adapter.respondThreads(t, first, "for-first")

	for _, ch := range results {
		r := <-ch
		require.NoError(t, r.err)
		require.Len(t, r.threads, 1)
	}
}

func TestSequenceNumbersNeverReused(t *testing.T) {
	client, adapter := startClient(t, EventHandlers{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Threads(ctx)
	require.ErrorIs(t, err, backend.ErrCommandTimeout)
	timedOut := adapter.expectRequest(t).GetRequest()

	// The late response to the abandoned call is dropped.
	adapter.respondThreads(t, timedOut, "late")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	done := make(chan error, 1)
	go func() {
		_, err := client.Threads(ctx2)
		done <- err
	}()
	next := adapter.expectRequest(t).GetRequest()
	assert.Greater(t, next.Seq, timedOut.Seq)
	adapter.respondThreads(t, next, "ok")
	require.NoError(t, <-done)
}

func TestEventsDispatchedToHandlers(t *testing.T) {
	stopped := make(chan *dap.StoppedEvent, 1)
	output := make(chan *dap.OutputEvent, 1)
	_, adapter := startClient(t, EventHandlers{
		OnStopped: func(ev *dap.StoppedEvent) { stopped <- ev },
		OnOutput:  func(ev *dap.OutputEvent) { output <- ev },
	})

	se := &dap.StoppedEvent{Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: "stopped"}}
	se.Body.Reason = "breakpoint"
	se.Body.ThreadId = 3
	adapter.send(t, se)

	oe := &dap.OutputEvent{Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: "output"}}
	oe.Body.Category = "stdout"
	oe.Body.Output = "hi\n"
	adapter.send(t, oe)

	select {
	case ev := <-stopped:
		assert.Equal(t, "breakpoint", ev.Body.Reason)
		assert.Equal(t, 3, ev.Body.ThreadId)
	case <-time.After(2 * time.Second):
		t.Fatal("stopped event not dispatched")
	}
	select {
	case ev := <-output:
		assert.Equal(t, "hi\n", ev.Body.Output)
	case <-time.After(2 * time.Second):
		t.Fatal("output event not dispatched")
	}
}

func TestErrorResponseSurfacesAsError(t *testing.T) {
	client, adapter := startClient(t, EventHandlers{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- client.Continue(ctx, 1)
	}()
	req := adapter.expectRequest(t).GetRequest()

	er := &dap.ErrorResponse{}
	er.Type = "response"
	er.Command = req.Command
	er.RequestSeq = req.Seq
	er.Success = false
	er.Message = "Unable to continue"
	er.Body.Error = &dap.ErrorMessage{Id: 2010, Format: "Unable to continue: target exited"}
	adapter.send(t, er)

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target exited")
}

func TestCloseFailsPendingCalls(t *testing.T) {
	client, adapter := startClient(t, EventHandlers{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := client.Threads(ctx)
		done <- err
	}()
	adapter.expectRequest(t)

	client.Close()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not failed on close")
	}
}

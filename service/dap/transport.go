package dap

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
)

// ErrTransportClosed is returned for reads and writes after Close.
var ErrTransportClosed = errors.New("transport closed")

// Transport frames DAP messages over one client connection. Writes
// may come from the request loop and the event translator at the same
// time; reads are single-goroutine.
type Transport interface {
	ReadMessage() (dap.Message, error)
	WriteMessage(msg dap.Message) error
	Close() error
}

// streamTransport frames messages over any read/write stream pair.
// It backs both the TCP and the stdio servers.
type streamTransport struct {
	reader *bufio.Reader
	writer *bufio.Writer
	in     io.Closer
	out    io.Closer

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewStreamTransport frames DAP messages over separate in/out streams
// (stdin and stdout of an adapter process).
func NewStreamTransport(in io.ReadCloser, out io.WriteCloser) Transport {
	return &streamTransport{
		reader: bufio.NewReader(in),
		writer: bufio.NewWriter(out),
		in:     in,
		out:    out,
	}
}

// NewConnTransport frames DAP messages over a network connection.
func NewConnTransport(conn net.Conn) Transport {
	return &streamTransport{
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		in:     conn,
		// conn closes once, through in.
	}
}

func (t *streamTransport) ReadMessage() (dap.Message, error) {
	if t.isClosed() {
		return nil, ErrTransportClosed
	}
	return dap.ReadProtocolMessage(t.reader)
}

func (t *streamTransport) WriteMessage(msg dap.Message) error {
	if t.isClosed() {
		return ErrTransportClosed
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := dap.WriteProtocolMessage(t.writer, msg); err != nil {
		return err
	}
	return t.writer.Flush()
}

func (t *streamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	var err error
	if t.in != nil {
		err = t.in.Close()
	}
	if t.out != nil {
		if cerr := t.out.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (t *streamTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

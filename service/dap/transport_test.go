package dap

import (
	"bytes"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramingRoundTripsUTF8(t *testing.T) {
	const text = "héllo 世界 😀\n"

	srvConn, cliConn := net.Pipe()
	srv := NewConnTransport(srvConn)
	cli := NewConnTransport(cliConn)
	defer srv.Close()
	defer cli.Close()

	ev := &dap.OutputEvent{Event: *newEvent("output")}
	ev.Body.Category = "stdout"
	ev.Body.Output = text

	done := make(chan error, 1)
	go func() { done <- srv.WriteMessage(ev) }()

	msg, err := cli.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-done)

	got, ok := msg.(*dap.OutputEvent)
	require.True(t, ok, "read back %T, want *dap.OutputEvent", msg)
	assert.Equal(t, text, got.Body.Output)

	want, err := json.Marshal(ev)
	require.NoError(t, err)
	have, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Equal(t, want, have)
}

func TestFramingContentLengthCountsBytes(t *testing.T) {
	ev := &dap.EvaluateResponse{Response: *newResponse(dap.Request{Command: "evaluate"})}
	ev.Body.Result = "\"héllo 世界 😀\""

	var buf bytes.Buffer
	require.NoError(t, dap.WriteProtocolMessage(&buf, ev))

	header, body, found := strings.Cut(buf.String(), "\r\n\r\n")
	require.True(t, found, "missing header separator in %q", buf.String())
	n, err := strconv.Atoi(strings.TrimPrefix(header, "Content-Length: "))
	require.NoError(t, err)

	assert.Equal(t, len(body), n)
	// Multi-byte content makes the byte length exceed the rune count;
	// a rune-counting framer would truncate the body.
	assert.Greater(t, len(body), utf8.RuneCountInString(body))

	want, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Equal(t, string(want), body)
}

// Package lldb implements the debugger plugin interface by driving
// the lldb command line. lldb's MI front end is not shipped
// everywhere, so this backend speaks the human CLI and parses replies
// with per-command patterns. The session state machine and error
// behavior match the machine-interface backend exactly.
package lldb

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
)

// lineSource is the slice of the process supervisor the CLI session
// needs.
type lineSource interface {
	Lines() <-chan string
	SendLine(text string) error
}

// markerRe matches the end-of-command sentinel printed after every
// issued command. The captured number is the command id.
var markerRe = regexp.MustCompile(`^---cmd-(\d+)---$`)

// errorRe matches lldb's error output lines.
var errorRe = regexp.MustCompile(`^error: (.*)$`)

// cli serializes commands to one lldb process. lldb prints no
// newline-terminated prompt, so each command is chased by a
// `script print` sentinel; everything up to the sentinel belongs to
// the command. Event lines are scanned on both paths since stops can
// interleave with command output. Command ids grow monotonically and
// are never reused.
type cli struct {
	src     lineSource
	onEvent func(line string)
	log     *logrus.Entry

	sendMu sync.Mutex // one command in flight at a time

	mu       sync.Mutex
	nextID   int
	inflight *pendingCmd
	closed   bool
	closeErr error

	done chan struct{}
}

type pendingCmd struct {
	id    int
	lines []string
	ready chan struct{}
}

func newCLI(src lineSource, onEvent func(line string), log *logrus.Entry) *cli {
	return &cli{
		src:     src,
		onEvent: onEvent,
		log:     log,
		nextID:  1,
		done:    make(chan struct{}),
	}
}

// run is the dispatcher loop; run in its own goroutine. It returns
// when the line source is exhausted, failing any in-flight command.
func (c *cli) run() {
	for line := range c.src.Lines() {
		c.log.Debug("<- ", line)

		if m := markerRe.FindStringSubmatch(line); m != nil {
			c.mu.Lock()
			p := c.inflight
			if p != nil && fmt.Sprintf("%d", p.id) == m[1] {
				c.inflight = nil
				close(p.ready)
			}
			c.mu.Unlock()
			continue
		}

		c.onEvent(line)

		c.mu.Lock()
		if p := c.inflight; p != nil {
			p.lines = append(p.lines, line)
		}
		c.mu.Unlock()
	}
	c.close(backend.ErrSessionClosed)
}

// exec issues one CLI command and returns its output lines. An
// `error:` line in the output yields CommandRejectedError carrying the
// first error message. Context expiry yields ErrCommandTimeout; the
// command id is burned and its late output is discarded with it.
func (c *cli) exec(ctx context.Context, command string) ([]string, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}
	id := c.nextID
	c.nextID++
	p := &pendingCmd{id: id, ready: make(chan struct{})}
	c.inflight = p
	c.mu.Unlock()

	c.log.Debug("-> ", command)
	if err := c.src.SendLine(command); err != nil {
		c.abandon(p)
		return nil, err
	}
	if err := c.src.SendLine(fmt.Sprintf("script print(\"---cmd-%d---\")", id)); err != nil {
		c.abandon(p)
		return nil, err
	}

	select {
	case <-p.ready:
	case <-ctx.Done():
		c.abandon(p)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, backend.ErrCommandTimeout
		}
		return nil, ctx.Err()
	case <-c.done:
		c.mu.Lock()
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	lines := p.lines
	c.mu.Unlock()

	for _, l := range lines {
		if m := errorRe.FindStringSubmatch(l); m != nil {
			return lines, &backend.CommandRejectedError{Command: command, Msg: m[1]}
		}
	}
	return lines, nil
}

func (c *cli) abandon(p *pendingCmd) {
	c.mu.Lock()
	if c.inflight == p {
		c.inflight = nil
	}
	c.mu.Unlock()
}

// close fails the in-flight command and rejects future ones. The
// first error wins.
func (c *cli) close(err error) {
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
	c.inflight = nil
	c.mu.Unlock()
	close(c.done)
}

// firstMatch returns the first submatch of re across lines, or "".
func firstMatch(lines []string, re *regexp.Regexp) string {
	for _, l := range lines {
		if m := re.FindStringSubmatch(l); m != nil {
			return m[1]
		}
	}
	return ""
}

// joined returns the output as one string, for parsers that span
// lines.
func joined(lines []string) string { return strings.Join(lines, "\n") }

//go:build linux || darwin || freebsd

package gdb

import (
	"bufio"
	"os"

	"github.com/creack/pty"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/mi"
)

// setupInferiorTTY allocates a pseudo terminal pair for the target and
// points gdb's inferior at the slave end. Target output arrives on the
// master and is forwarded as stdout events.
func (g *Gdb) setupInferiorTTY() error {
	master, slave, err := pty.Open()
	if err != nil {
		return err
	}
	if _, err := g.send(mi.NewCommand("inferior-tty-set").Arg(slave.Name())); err != nil {
		master.Close()
		slave.Close()
		return err
	}
	go g.forwardTTY(master, slave)
	return nil
}

func (g *Gdb) forwardTTY(master, slave *os.File) {
	defer master.Close()
	defer slave.Close()
	rd := bufio.NewReader(master)
	buf := make([]byte, 4096)
	for {
		n, err := rd.Read(buf)
		if n > 0 {
			g.session.Emit(backend.Event{
				Kind:    backend.EventOutput,
				Output:  string(buf[:n]),
				Channel: backend.OutputTarget,
			})
		}
		if err != nil {
			return
		}
	}
}

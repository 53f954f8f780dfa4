//go:build windows

package gdb

import "errors"

// setupInferiorTTY is unavailable on Windows; launch configurations
// must use pipe console mode there.
func (g *Gdb) setupInferiorTTY() error {
	return errors.New("tty console mode is not supported on windows")
}

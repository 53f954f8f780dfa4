package cmds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandTree(t *testing.T) {
	root := New()
	want := map[string]bool{"dap": false, "backends": false, "version": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, seen := range want {
		assert.True(t, seen, "missing subcommand %q", name)
	}
}

func TestDapCommandFlags(t *testing.T) {
	root := New()
	dapCmd, _, err := root.Find([]string{"dap"})
	assert.NoError(t, err)
	for _, flag := range []string{"listen", "stdio", "backend", "debugger-path", "command-timeout"} {
		assert.NotNil(t, dapCmd.Flags().Lookup(flag), "missing flag %q", flag)
	}
}

// Package config holds launch configurations and the breakpoint
// persistence store consumed by the debug engine. Both are stored as
// YAML documents so external tools (and the IDE shell) can read and
// edit them.
package config

import (
	"fmt"
	"os"

	"github.com/cosiner/argv"
	"gopkg.in/yaml.v2"
)

// ConsoleMode selects how the debug target's terminal is provided.
type ConsoleMode string

const (
	// ConsolePipe connects the target's stdio to the debugger pipes.
	ConsolePipe ConsoleMode = "pipe"
	// ConsoleTTY allocates a pseudo terminal for the target (unix only).
	ConsoleTTY ConsoleMode = "tty"
)

// LaunchConfig describes how to launch or attach to a debug target.
type LaunchConfig struct {
	// Name identifies the configuration in the UI.
	Name string `yaml:"name"`
	// Backend selects the debugger backend ("gdb" or "lldb").
	Backend string `yaml:"backend"`
	// DebuggerPath overrides the debugger executable path.
	DebuggerPath string `yaml:"debugger-path,omitempty"`
	// Program is the path of the executable to debug.
	Program string `yaml:"program"`
	// Args is the argument string for the target, split with shell-like
	// quoting rules.
	Args string `yaml:"args,omitempty"`
	// WorkingDir is the working directory of the target.
	WorkingDir string `yaml:"wd,omitempty"`
	// Env is additional environment for the target.
	Env map[string]string `yaml:"env,omitempty"`
	// Console selects the target terminal mode.
	Console ConsoleMode `yaml:"console,omitempty"`
	// PreLaunch is a command executed before the target is launched
	// (typically a build step). It is run with the launch working
	// directory and inherits the engine environment.
	PreLaunch string `yaml:"pre-launch,omitempty"`
	// StopOnEntry stops the target at its entry point after launch.
	StopOnEntry bool `yaml:"stop-on-entry,omitempty"`
	// RemoteTarget is a host:port to connect to instead of launching
	// (gdbserver / lldb-server platforms).
	RemoteTarget string `yaml:"remote,omitempty"`
	// CoreFile is a core dump to load instead of launching.
	CoreFile string `yaml:"core,omitempty"`
}

// TargetArgs splits the Args string into an argument vector using
// shell-like quoting. Backticks are not supported.
func (c *LaunchConfig) TargetArgs() ([]string, error) {
	if c.Args == "" {
		return nil, nil
	}
	v, err := argv.Argv(c.Args,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in %q", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal argument string %q", c.Args)
	}
	return v[0], nil
}

// Environ renders Env as KEY=VALUE pairs appended to the current
// process environment.
func (c *LaunchConfig) Environ() []string {
	env := os.Environ()
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// LoadLaunchConfig reads a single launch configuration from path.
func LoadLaunchConfig(path string) (*LaunchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c LaunchConfig
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("unable to decode launch configuration %s: %v", path, err)
	}
	if c.Backend == "" {
		c.Backend = "gdb"
	}
	if c.Console == "" {
		c.Console = ConsolePipe
	}
	return &c, nil
}

// SaveLaunchConfig writes a launch configuration to path.
func SaveLaunchConfig(path string, c *LaunchConfig) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

package config

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestLaunchConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launch.yml")
	in := &LaunchConfig{
		Name:       "demo",
		Backend:    "gdb",
		Program:    "/usr/bin/true",
		Args:       `--mode fast "two words"`,
		WorkingDir: "/tmp",
		Env:        map[string]string{"DEBUG": "1"},
		Console:    ConsoleTTY,
	}
	if err := SaveLaunchConfig(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := LoadLaunchConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\ngot  %#v\nwant %#v", out, in)
	}
}

func TestLaunchConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launch.yml")
	if err := SaveLaunchConfig(path, &LaunchConfig{Program: "/bin/ls"}); err != nil {
		t.Fatal(err)
	}
	c, err := LoadLaunchConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Backend != "gdb" {
		t.Errorf("default backend = %q, want gdb", c.Backend)
	}
	if c.Console != ConsolePipe {
		t.Errorf("default console = %q, want pipe", c.Console)
	}
}

func TestTargetArgs(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want []string
	}{
		{``, nil},
		{`one two`, []string{"one", "two"}},
		{`--flag "a b" c`, []string{"--flag", "a b", "c"}},
		{`'single quoted'`, []string{"single quoted"}},
	} {
		c := &LaunchConfig{Args: tc.in}
		got, err := c.TargetArgs()
		if err != nil {
			t.Errorf("TargetArgs(%q): %v", tc.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("TargetArgs(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTargetArgsRejectsBacktick(t *testing.T) {
	c := &LaunchConfig{Args: "`rm -rf /`"}
	if _, err := c.TargetArgs(); err == nil {
		t.Errorf("expected error for backtick argument string")
	}
}

func TestBreakpointStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breakpoints.yml")

	// A missing store is an empty list, not an error.
	bps, err := LoadBreakpoints(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(bps) != 0 {
		t.Errorf("missing store yielded %d breakpoints", len(bps))
	}

	in := []SavedBreakpoint{
		{File: "main.c", Line: 12, Enabled: true},
		{Function: "compute", Condition: "x > 3", Enabled: false},
		{Address: 0x401000, Enabled: true},
	}
	if err := SaveBreakpoints(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := LoadBreakpoints(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\ngot  %#v\nwant %#v", out, in)
	}
}

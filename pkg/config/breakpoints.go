package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// SavedBreakpoint is one record of the breakpoint/watch persistence
// store. The engine treats it as opaque location+condition data; the
// owning plugin resolves it when a session starts.
type SavedBreakpoint struct {
	File       string `yaml:"file,omitempty"`
	Line       int    `yaml:"line,omitempty"`
	Function   string `yaml:"function,omitempty"`
	Address    uint64 `yaml:"address,omitempty"`
	Condition  string `yaml:"condition,omitempty"`
	LogMessage string `yaml:"log-message,omitempty"`
	Enabled    bool   `yaml:"enabled"`
}

type breakpointFile struct {
	Breakpoints []SavedBreakpoint `yaml:"breakpoints"`
}

// LoadBreakpoints reads the breakpoint store at path. A missing file is
// not an error and yields an empty list.
func LoadBreakpoints(path string) ([]SavedBreakpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var f breakpointFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.Breakpoints, nil
}

// SaveBreakpoints writes the breakpoint store at path.
func SaveBreakpoints(path string, bps []SavedBreakpoint) error {
	out, err := yaml.Marshal(breakpointFile{Breakpoints: bps})
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

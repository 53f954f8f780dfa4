// Package mi parses the GDB machine interface (GDB/MI) output grammar
// and builds outgoing MI commands.
//
// An MI output line starts with an optional integer token followed by
// one of '^' (result), '*' (exec async), '+' (status async), '=' (notify
// async), '~'/'@'/'&' (console/target/log stream) or the bare "(gdb)"
// prompt. Result and async records carry a class keyword and a list of
// key=value fields whose values nest arbitrarily as C strings, {...}
// tuples and [...] lists.
//
// Real debuggers emit malformed diagnostic chatter; the parser never
// fails, it degrades unparseable lines to RecordOther and preserves the
// raw text.
package mi

import (
	"sort"
	"strings"
)

// RecordKind classifies one parsed MI output line.
type RecordKind int

const (
	// RecordOther is the lenient fallback: an unrecognized or
	// unparseable line, preserved verbatim in Raw.
	RecordOther RecordKind = iota
	// RecordResult is a '^' record terminating a command.
	RecordResult
	// RecordAsyncExec is a '*' record reporting target execution state.
	RecordAsyncExec
	// RecordAsyncStatus is a '+' record reporting on-going progress.
	RecordAsyncStatus
	// RecordAsyncNotify is a '=' record reporting debugger-side changes.
	RecordAsyncNotify
	// RecordConsoleStream is a '~' textual stream line.
	RecordConsoleStream
	// RecordTargetStream is a '@' textual stream line.
	RecordTargetStream
	// RecordLogStream is a '&' textual stream line.
	RecordLogStream
	// RecordPrompt is the "(gdb)" ready prompt.
	RecordPrompt
)

func (k RecordKind) String() string {
	switch k {
	case RecordResult:
		return "result"
	case RecordAsyncExec:
		return "exec-async"
	case RecordAsyncStatus:
		return "status-async"
	case RecordAsyncNotify:
		return "notify-async"
	case RecordConsoleStream:
		return "console-stream"
	case RecordTargetStream:
		return "target-stream"
	case RecordLogStream:
		return "log-stream"
	case RecordPrompt:
		return "prompt"
	default:
		return "other"
	}
}

// Result classes reported by '^' records.
const (
	ClassDone      = "done"
	ClassRunning   = "running"
	ClassConnected = "connected"
	ClassError     = "error"
	ClassExit      = "exit"
	ClassStopped   = "stopped"
)

// NoToken marks a record that carried no command token.
const NoToken = -1

// Record is one parsed MI output line.
type Record struct {
	Kind   RecordKind
	Token  int    // NoToken when absent
	Class  string // class keyword of result/async records
	Fields Tuple  // key=value tree of result/async records
	Text   string // payload of stream records
	Raw    string // the original line
}

// IsResult reports whether the record terminates a command.
func (r *Record) IsResult() bool { return r.Kind == RecordResult }

// IsAsync reports whether the record is any asynchronous record class.
func (r *Record) IsAsync() bool {
	return r.Kind == RecordAsyncExec || r.Kind == RecordAsyncStatus || r.Kind == RecordAsyncNotify
}

// IsStream reports whether the record is a textual stream line.
func (r *Record) IsStream() bool {
	return r.Kind == RecordConsoleStream || r.Kind == RecordTargetStream || r.Kind == RecordLogStream
}

// Value is one node of an MI field tree: String, Tuple or List.
type Value interface {
	// Serialize renders the node back to MI wire syntax.
	Serialize() string
}

// String is a C-string leaf value.
type String string

// Serialize renders the string as an escaped MI C string.
func (s String) Serialize() string { return `"` + Escape(string(s)) + `"` }

// Field is one named entry of a Tuple.
type Field struct {
	Name  string
	Value Value
}

// Tuple is an ordered sequence of named fields ({...} in the grammar,
// and the top-level field list of result/async records).
type Tuple []Field

// Serialize renders the tuple in MI wire syntax.
func (t Tuple) Serialize() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range t {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.Name)
		sb.WriteByte('=')
		sb.WriteString(f.Value.Serialize())
	}
	sb.WriteByte('}')
	return sb.String()
}

// Get returns the value of the named field.
func (t Tuple) Get(name string) (Value, bool) {
	for _, f := range t {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// GetString returns the named field as a plain string, or "" if the
// field is absent or not a string leaf.
func (t Tuple) GetString(name string) string {
	v, ok := t.Get(name)
	if !ok {
		return ""
	}
	s, ok := v.(String)
	if !ok {
		return ""
	}
	return string(s)
}

// GetTuple returns the named field as a nested tuple.
func (t Tuple) GetTuple(name string) Tuple {
	v, ok := t.Get(name)
	if !ok {
		return nil
	}
	nt, ok := v.(Tuple)
	if !ok {
		return nil
	}
	return nt
}

// GetList returns the named field as a list.
func (t Tuple) GetList(name string) List {
	v, ok := t.Get(name)
	if !ok {
		return nil
	}
	l, ok := v.(List)
	if !ok {
		return nil
	}
	return l
}

// Canonical renders the tuple with fields sorted by name, nested tuples
// included. Used by round-trip tests, where MI tuple field order is not
// significant.
func (t Tuple) Canonical() string {
	c := make(Tuple, len(t))
	for i, f := range t {
		if nt, ok := f.Value.(Tuple); ok {
			c[i] = Field{f.Name, canonicalValue(nt)}
		} else {
			c[i] = Field{f.Name, canonicalValue(f.Value)}
		}
	}
	sort.SliceStable(c, func(i, j int) bool { return c[i].Name < c[j].Name })
	return c.Serialize()
}

func canonicalValue(v Value) Value {
	switch v := v.(type) {
	case Tuple:
		c := make(Tuple, len(v))
		for i, f := range v {
			c[i] = Field{f.Name, canonicalValue(f.Value)}
		}
		sort.SliceStable(c, func(i, j int) bool { return c[i].Name < c[j].Name })
		return c
	case List:
		c := make(List, len(v))
		for i, item := range v {
			c[i] = canonicalValue(item)
		}
		return c
	case Named:
		return Named{v.Name, canonicalValue(v.Value)}
	default:
		return v
	}
}

// List is an ordered sequence of values ([...] in the grammar). A bare
// key=value result inside a list is represented as a Named value.
type List []Value

// Serialize renders the list in MI wire syntax.
func (l List) Serialize() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range l {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(v.Serialize())
	}
	sb.WriteByte(']')
	return sb.String()
}

// Named is a bare key=value result appearing inside a list, e.g. the
// bkpt=... entries of -break-list output.
type Named struct {
	Name  string
	Value Value
}

// Serialize renders the named result in its bare key=value form.
func (n Named) Serialize() string { return n.Name + "=" + n.Value.Serialize() }

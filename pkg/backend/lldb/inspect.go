package lldb

import (
	"fmt"
	"strings"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
)

// Threads implements backend.Debugger.
func (l *LLDB) Threads() ([]backend.Thread, error) {
	if err := l.session.RequireInspectable("threads"); err != nil {
		return nil, err
	}
	out, err := l.exec("thread list")
	if err != nil {
		return nil, err
	}
	return parseThreads(out), nil
}

// Stacktrace implements backend.Debugger. depth <= 0 means unlimited.
func (l *LLDB) Stacktrace(threadID, depth int) ([]backend.StackFrame, error) {
	if err := l.session.RequireInspectable("stackTrace"); err != nil {
		return nil, err
	}
	if err := l.selectThread(threadID); err != nil {
		return nil, err
	}
	cmd := "thread backtrace"
	if depth > 0 {
		cmd += fmt.Sprintf(" --count %d", depth)
	}
	out, err := l.exec(cmd)
	if err != nil {
		return nil, err
	}
	return parseFrames(out), nil
}

// Variables implements backend.Debugger. Compound values are reported
// with a children reference and expanded only on demand.
func (l *LLDB) Variables(threadID, frame int) ([]backend.Variable, error) {
	if err := l.session.RequireInspectable("variables"); err != nil {
		return nil, err
	}
	if err := l.selectFrame(threadID, frame); err != nil {
		return nil, err
	}
	out, err := l.exec("frame variable -T")
	if err != nil {
		return nil, err
	}
	vars := parseVariables(out)
	for i := range vars {
		if isCompound(vars[i].Value) {
			vars[i].Ref = l.registerVarRef(varPath{threadID, frame, vars[i].Name})
		}
	}
	return vars, nil
}

// VariableChildren implements backend.Debugger.
func (l *LLDB) VariableChildren(ref int) ([]backend.Variable, error) {
	if err := l.session.RequireInspectable("variables"); err != nil {
		return nil, err
	}
	l.varMu.Lock()
	p, ok := l.varRefs[ref]
	l.varMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown variables reference %d", ref)
	}
	if err := l.selectFrame(p.threadID, p.frame); err != nil {
		return nil, err
	}
	out, err := l.exec("frame variable -T " + p.expr)
	if err != nil {
		return nil, err
	}
	children := parseChildren(out)
	for i := range children {
		if isCompound(children[i].Value) {
			child := varPath{p.threadID, p.frame, childExpr(p.expr, children[i].Name)}
			children[i].Ref = l.registerVarRef(child)
		}
	}
	return children, nil
}

// Evaluate implements backend.Debugger.
func (l *LLDB) Evaluate(threadID, frame int, expr string) (*backend.Variable, error) {
	if err := l.session.RequireInspectable("evaluate"); err != nil {
		return nil, err
	}
	if err := l.selectFrame(threadID, frame); err != nil {
		return nil, err
	}
	out, err := l.exec("expression -- " + expr)
	if err != nil {
		return nil, err
	}
	for _, line := range out {
		if m := evalResultRe.FindStringSubmatch(line); m != nil {
			v := &backend.Variable{
				Name:  expr,
				Type:  m[1],
				Value: strings.TrimSpace(m[3]),
			}
			if isCompound(v.Value) {
				v.Ref = l.registerVarRef(varPath{threadID, frame, expr})
			}
			return v, nil
		}
	}
	return &backend.Variable{Name: expr, Value: strings.TrimSpace(joined(out))}, nil
}

// Registers implements backend.Debugger.
func (l *LLDB) Registers(threadID int) ([]backend.Register, error) {
	if err := l.session.RequireInspectable("registers"); err != nil {
		return nil, err
	}
	if err := l.selectThread(threadID); err != nil {
		return nil, err
	}
	out, err := l.exec("register read")
	if err != nil {
		return nil, err
	}
	return parseRegisters(out), nil
}

// ReadMemory implements backend.Debugger.
func (l *LLDB) ReadMemory(addr uint64, size int) ([]byte, error) {
	if err := l.session.RequireInspectable("readMemory"); err != nil {
		return nil, err
	}
	out, err := l.exec(fmt.Sprintf("memory read -f x -s 1 -c %d 0x%x", size, addr))
	if err != nil {
		return nil, err
	}
	data := parseMemory(out)
	if len(data) == 0 {
		return nil, fmt.Errorf("memory at 0x%x is unreadable", addr)
	}
	if len(data) > size {
		data = data[:size]
	}
	return data, nil
}

// WriteMemory implements backend.Debugger.
func (l *LLDB) WriteMemory(addr uint64, data []byte) error {
	if err := l.session.RequireInspectable("writeMemory"); err != nil {
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "memory write 0x%x", addr)
	for _, b := range data {
		fmt.Fprintf(&sb, " 0x%02x", b)
	}
	_, err := l.exec(sb.String())
	return err
}

// Disassemble implements backend.Debugger.
func (l *LLDB) Disassemble(start, end uint64) ([]backend.Instruction, error) {
	if err := l.session.RequireInspectable("disassemble"); err != nil {
		return nil, err
	}
	out, err := l.exec(fmt.Sprintf("disassemble --start-address 0x%x --end-address 0x%x", start, end))
	if err != nil {
		return nil, err
	}
	return parseInstructions(out), nil
}

// Modules implements backend.Debugger.
func (l *LLDB) Modules() ([]backend.Module, error) {
	if err := l.session.RequireInspectable("modules"); err != nil {
		return nil, err
	}
	out, err := l.exec("image list -o -f")
	if err != nil {
		return nil, err
	}
	return parseModules(out), nil
}

func (l *LLDB) selectThread(threadID int) error {
	if threadID <= 0 {
		return nil
	}
	_, err := l.exec(fmt.Sprintf("thread select %d", threadID))
	return err
}

func (l *LLDB) selectFrame(threadID, frame int) error {
	if err := l.selectThread(threadID); err != nil {
		return err
	}
	_, err := l.exec(fmt.Sprintf("frame select %d", frame))
	return err
}

// isCompound reports whether a printed value is an aggregate whose
// members are fetched lazily.
func isCompound(value string) bool {
	return value == "" || strings.HasPrefix(value, "{")
}

// childExpr builds the variable path of a member: array elements keep
// bracket syntax, struct members use dots.
func childExpr(parent, name string) string {
	if strings.HasPrefix(name, "[") {
		return parent + name
	}
	return parent + "." + name
}

package gdb

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/mi"
)

// memCacheKey identifies one cached memory read.
type memCacheKey struct {
	addr uint64
	size int
}

// Threads implements backend.Debugger.
func (g *Gdb) Threads() ([]backend.Thread, error) {
	if err := g.session.RequireInspectable("threads"); err != nil {
		return nil, err
	}
	rec, err := g.send(mi.NewCommand("thread-info"))
	if err != nil {
		return nil, err
	}
	var threads []backend.Thread
	for _, v := range rec.Fields.GetList("threads") {
		t, ok := v.(mi.Tuple)
		if !ok {
			continue
		}
		id, err := strconv.Atoi(t.GetString("id"))
		if err != nil {
			continue
		}
		th := backend.Thread{ID: id, Name: t.GetString("name")}
		if th.Name == "" {
			th.Name = t.GetString("target-id")
		}
		if frame := t.GetTuple("frame"); frame != nil {
			th.Function = frame.GetString("func")
			th.File = frameFile(frame)
			th.Line, _ = strconv.Atoi(frame.GetString("line"))
		}
		threads = append(threads, th)
	}
	return threads, nil
}

// Stacktrace implements backend.Debugger. depth <= 0 means unlimited.
func (g *Gdb) Stacktrace(threadID, depth int) ([]backend.StackFrame, error) {
	if err := g.session.RequireInspectable("stackTrace"); err != nil {
		return nil, err
	}
	cmd := mi.NewCommand("stack-list-frames").Option("-thread", itoa(threadID))
	if depth > 0 {
		cmd.Arg("0").Arg(itoa(depth - 1))
	}
	rec, err := g.send(cmd)
	if err != nil {
		return nil, err
	}
	var frames []backend.StackFrame
	for _, v := range rec.Fields.GetList("stack") {
		var frame mi.Tuple
		switch fv := v.(type) {
		case mi.Named: // frame={...}
			if t, ok := fv.Value.(mi.Tuple); ok {
				frame = t
			}
		case mi.Tuple:
			frame = fv
		}
		if frame == nil {
			continue
		}
		sf := backend.StackFrame{
			Function: frame.GetString("func"),
			File:     frameFile(frame),
			Address:  parseAddr(frame.GetString("addr")),
		}
		sf.Level, _ = strconv.Atoi(frame.GetString("level"))
		sf.Line, _ = strconv.Atoi(frame.GetString("line"))
		frames = append(frames, sf)
	}
	return frames, nil
}

// Variables implements backend.Debugger. Locals and arguments come
// back as name/value pairs; compound values get a variable object so
// their children can be expanded lazily.
func (g *Gdb) Variables(threadID, frame int) ([]backend.Variable, error) {
	if err := g.session.RequireInspectable("variables"); err != nil {
		return nil, err
	}
	rec, err := g.send(mi.NewCommand("stack-list-variables").
		Option("-thread", itoa(threadID)).
		Option("-frame", itoa(frame)).
		Option("-simple-values", ""))
	if err != nil {
		return nil, err
	}
	var vars []backend.Variable
	for _, v := range rec.Fields.GetList("variables") {
		t, ok := v.(mi.Tuple)
		if !ok {
			continue
		}
		name := t.GetString("name")
		val := backend.Variable{
			Name:  name,
			Value: t.GetString("value"),
			Type:  t.GetString("type"),
		}
		if val.Value == "" {
			// Compound value: create a varobj for lazy expansion.
			if vo, err := g.createVarObj(threadID, frame, name); err == nil {
				val.Value = vo.Value
				if val.Type == "" {
					val.Type = vo.Type
				}
				val.Ref = vo.Ref
				val.NumChildren = vo.NumChildren
			}
		}
		vars = append(vars, val)
	}
	return vars, nil
}

// createVarObj registers a gdb variable object for expr and returns it
// as a Variable carrying a children reference.
func (g *Gdb) createVarObj(threadID, frame int, expr string) (*backend.Variable, error) {
	rec, err := g.send(mi.NewCommand("var-create").
		Option("-thread", itoa(threadID)).
		Option("-frame", itoa(frame)).
		Arg("-").Arg("*").Arg(expr))
	if err != nil {
		return nil, err
	}
	v := &backend.Variable{
		Name:  expr,
		Value: rec.Fields.GetString("value"),
		Type:  rec.Fields.GetString("type"),
	}
	n, _ := strconv.Atoi(rec.Fields.GetString("numchild"))
	v.NumChildren = n
	if n > 0 {
		v.Ref = g.registerVarRef(rec.Fields.GetString("name"))
	}
	return v, nil
}

// registerVarRef assigns the next children reference to a varobj name.
// References are never reused within a session.
func (g *Gdb) registerVarRef(varName string) int {
	g.varMu.Lock()
	defer g.varMu.Unlock()
	ref := g.nextRef
	g.nextRef++
	g.varRefs[ref] = varName
	return ref
}

// VariableChildren implements backend.Debugger.
func (g *Gdb) VariableChildren(ref int) ([]backend.Variable, error) {
	if err := g.session.RequireInspectable("variables"); err != nil {
		return nil, err
	}
	g.varMu.Lock()
	varName, ok := g.varRefs[ref]
	g.varMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown variables reference %d", ref)
	}
	rec, err := g.send(mi.NewCommand("var-list-children").
		Option("-all-values", "").Arg(varName))
	if err != nil {
		return nil, err
	}
	var children []backend.Variable
	for _, cv := range rec.Fields.GetList("children") {
		var t mi.Tuple
		switch c := cv.(type) {
		case mi.Named: // child={...}
			if tt, ok := c.Value.(mi.Tuple); ok {
				t = tt
			}
		case mi.Tuple:
			t = c
		}
		if t == nil {
			continue
		}
		child := backend.Variable{
			Name:  t.GetString("exp"),
			Value: t.GetString("value"),
			Type:  t.GetString("type"),
		}
		n, _ := strconv.Atoi(t.GetString("numchild"))
		child.NumChildren = n
		if n > 0 {
			child.Ref = g.registerVarRef(t.GetString("name"))
		}
		children = append(children, child)
	}
	return children, nil
}

// Evaluate implements backend.Debugger.
func (g *Gdb) Evaluate(threadID, frame int, expr string) (*backend.Variable, error) {
	if err := g.session.RequireInspectable("evaluate"); err != nil {
		return nil, err
	}
	rec, err := g.send(mi.NewCommand("data-evaluate-expression").
		Option("-thread", itoa(threadID)).
		Option("-frame", itoa(frame)).
		Arg(expr))
	if err == nil {
		return &backend.Variable{Name: expr, Value: rec.Fields.GetString("value")}, nil
	}
	if _, rejected := err.(*backend.CommandRejectedError); !rejected {
		return nil, err
	}
	// Structured values make -data-evaluate-expression fail in some
	// gdb versions; a varobj handles those and adds lazy children.
	return g.createVarObj(threadID, frame, expr)
}

// Registers implements backend.Debugger. Register names are fetched
// once per session; values every call.
func (g *Gdb) Registers(threadID int) ([]backend.Register, error) {
	if err := g.session.RequireInspectable("registers"); err != nil {
		return nil, err
	}

	g.varMu.Lock()
	names := g.regNames
	g.varMu.Unlock()
	if names == nil {
		rec, err := g.send(mi.NewCommand("data-list-register-names"))
		if err != nil {
			return nil, err
		}
		for _, v := range rec.Fields.GetList("register-names") {
			if s, ok := v.(mi.String); ok {
				names = append(names, string(s))
			}
		}
		g.varMu.Lock()
		g.regNames = names
		g.varMu.Unlock()
	}

	rec, err := g.send(mi.NewCommand("data-list-register-values").
		Option("-thread", itoa(threadID)).Arg("x"))
	if err != nil {
		return nil, err
	}
	var regs []backend.Register
	for _, v := range rec.Fields.GetList("register-values") {
		t, ok := v.(mi.Tuple)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(t.GetString("number"))
		if err != nil || n >= len(names) || names[n] == "" {
			continue
		}
		regs = append(regs, backend.Register{Name: names[n], Value: t.GetString("value")})
	}
	return regs, nil
}

// ReadMemory implements backend.Debugger. Reads are cached until the
// next resume.
func (g *Gdb) ReadMemory(addr uint64, size int) ([]byte, error) {
	if err := g.session.RequireInspectable("readMemory"); err != nil {
		return nil, err
	}
	key := memCacheKey{addr, size}
	if v, ok := g.memCache.Get(key); ok {
		return v.([]byte), nil
	}
	rec, err := g.send(mi.NewCommand("data-read-memory-bytes").
		Arg(hexAddr(addr)).Arg(itoa(size)))
	if err != nil {
		return nil, err
	}
	// memory=[{begin=...,offset=...,end=...,contents="hex"}]
	for _, v := range rec.Fields.GetList("memory") {
		t, ok := v.(mi.Tuple)
		if !ok {
			continue
		}
		data, err := hex.DecodeString(t.GetString("contents"))
		if err != nil {
			return nil, &backend.ProtocolDesyncError{Line: rec.Raw}
		}
		g.memCache.Add(key, data)
		return data, nil
	}
	return nil, fmt.Errorf("memory at %s is unreadable", hexAddr(addr))
}

// WriteMemory implements backend.Debugger. The cache is dropped since
// the write may overlap any cached range.
func (g *Gdb) WriteMemory(addr uint64, data []byte) error {
	if err := g.session.RequireInspectable("writeMemory"); err != nil {
		return err
	}
	_, err := g.send(mi.NewCommand("data-write-memory-bytes").
		Arg(hexAddr(addr)).Arg(hex.EncodeToString(data)))
	if err == nil {
		g.memCache.Purge()
	}
	return err
}

// Disassemble implements backend.Debugger.
func (g *Gdb) Disassemble(start, end uint64) ([]backend.Instruction, error) {
	if err := g.session.RequireInspectable("disassemble"); err != nil {
		return nil, err
	}
	rec, err := g.send(mi.NewCommand("data-disassemble").
		Option("s", hexAddr(start)).
		Option("e", hexAddr(end)).
		Option("-", "2")) // opcode mode
	if err != nil {
		return nil, err
	}
	var instrs []backend.Instruction
	for _, v := range rec.Fields.GetList("asm_insns") {
		t, ok := v.(mi.Tuple)
		if !ok {
			continue
		}
		instrs = append(instrs, backend.Instruction{
			Address: parseAddr(t.GetString("address")),
			Text:    t.GetString("inst"),
			Opcodes: t.GetString("opcodes"),
		})
	}
	return instrs, nil
}

// Modules implements backend.Debugger.
func (g *Gdb) Modules() ([]backend.Module, error) {
	if err := g.session.RequireInspectable("modules"); err != nil {
		return nil, err
	}
	rec, err := g.send(mi.NewCommand("file-list-shared-libraries"))
	if err != nil {
		return nil, err
	}
	var mods []backend.Module
	for _, v := range rec.Fields.GetList("shared-libraries") {
		t, ok := v.(mi.Tuple)
		if !ok {
			continue
		}
		mods = append(mods, backend.Module{
			Name: t.GetString("id"),
			Path: t.GetString("host-name"),
			Address: func() uint64 {
				if ranges := t.GetList("ranges"); len(ranges) > 0 {
					if rt, ok := ranges[0].(mi.Tuple); ok {
						return parseAddr(rt.GetString("from"))
					}
				}
				return 0
			}(),
		})
	}
	return mods, nil
}

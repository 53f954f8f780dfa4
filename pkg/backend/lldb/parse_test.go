package lldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
)

func TestParseStopDetail(t *testing.T) {
	st, ok := parseStopDetail("* thread #1, name = 'a.out', stop reason = breakpoint 2.1")
	require.True(t, ok)
	assert.Equal(t, 1, st.threadID)
	assert.Equal(t, backend.StopBreakpoint, st.reason)
	assert.Equal(t, "2", st.breakpoint)

	st, ok = parseStopDetail("* thread #3, stop reason = step over")
	require.True(t, ok)
	assert.Equal(t, 3, st.threadID)
	assert.Equal(t, backend.StopStep, st.reason)

	st, ok = parseStopDetail("* thread #1, stop reason = signal SIGSEGV")
	require.True(t, ok)
	assert.Equal(t, backend.StopSignal, st.reason)

	st, ok = parseStopDetail("* thread #1, stop reason = signal SIGINT")
	require.True(t, ok)
	assert.Equal(t, backend.StopPause, st.reason)

	st, ok = parseStopDetail("* thread #2, stop reason = watchpoint 1")
	require.True(t, ok)
	assert.Equal(t, backend.StopWatchpoint, st.reason)
	assert.Equal(t, "1", st.breakpoint)

	_, ok = parseStopDetail("  frame #0: 0x0000000100000e9e a.out`main + 30 at main.c:10:5")
	assert.False(t, ok, "frame lines carry no stop reason")
}

func TestParseThreads(t *testing.T) {
	threads := parseThreads([]string{
		"Process 1201 stopped",
		"* thread #1: tid = 0x1f03, 0x0000000100000e9e a.out`compute + 30 at main.c:10:5, name = 'a.out', stop reason = breakpoint 1.1",
		"  thread #2: tid = 0x2103, 0x00007fff8a1b6a1a libsystem_kernel.dylib`__workq_kernreturn + 10, name = 'worker'",
	})
	require.Len(t, threads, 2)
	assert.Equal(t, 1, threads[0].ID)
	assert.Equal(t, "a.out", threads[0].Name)
	assert.Equal(t, "compute", threads[0].Function)
	assert.Equal(t, "main.c", threads[0].File)
	assert.Equal(t, 10, threads[0].Line)
	assert.Equal(t, 2, threads[1].ID)
	assert.Equal(t, "worker", threads[1].Name)
}

func TestParseFrames(t *testing.T) {
	frames := parseFrames([]string{
		"* thread #1, stop reason = breakpoint 1.1",
		"  * frame #0: 0x0000000100000e9e a.out`compute(x=3) at main.c:10:5",
		"    frame #1: 0x0000000100000f20 a.out`main at main.c:22:9",
		"    frame #2: 0x00007fff8a1b75ad libdyld.dylib`start + 1",
	})
	require.Len(t, frames, 3)
	assert.Equal(t, 0, frames[0].Level)
	assert.Equal(t, uint64(0x100000e9e), frames[0].Address)
	assert.Equal(t, "compute", frames[0].Function)
	assert.Equal(t, "main.c", frames[0].File)
	assert.Equal(t, 10, frames[0].Line)
	assert.Equal(t, 1, frames[1].Level)
	assert.Equal(t, "main", frames[1].Function)
	assert.Equal(t, 22, frames[1].Line)
	assert.Equal(t, 2, frames[2].Level)
	assert.Equal(t, "start", frames[2].Function)
	assert.Empty(t, frames[2].File)
}

func TestParseVariables(t *testing.T) {
	vars := parseVariables([]string{
		"(int) x = 42",
		"(char *) msg = 0x0000000100000f8c \"hello\"",
		"(Point) p = {",
		"  x = 1",
		"  y = 2",
		"}",
	})
	require.Len(t, vars, 3)
	assert.Equal(t, backend.Variable{Type: "int", Name: "x", Value: "42"}, vars[0])
	assert.Equal(t, "msg", vars[1].Name)
	assert.Equal(t, "char *", vars[1].Type)
	assert.Equal(t, "p", vars[2].Name)
	assert.True(t, isCompound(vars[2].Value))
	assert.False(t, isCompound(vars[0].Value))
}

func TestParseChildren(t *testing.T) {
	children := parseChildren([]string{
		"(Rect) r = {",
		"  (Point) origin = {",
		"    x = 0",
		"    y = 0",
		"  }",
		"  (int) width = 640",
		"  (int) height = 480",
		"}",
	})
	require.Len(t, children, 3)
	assert.Equal(t, "origin", children[0].Name)
	assert.True(t, isCompound(children[0].Value))
	assert.Equal(t, backend.Variable{Type: "int", Name: "width", Value: "640"}, children[1])
	assert.Equal(t, backend.Variable{Type: "int", Name: "height", Value: "480"}, children[2])
}

func TestChildExpr(t *testing.T) {
	assert.Equal(t, "r.origin", childExpr("r", "origin"))
	assert.Equal(t, "arr[3]", childExpr("arr", "[3]"))
}

func TestParseRegisters(t *testing.T) {
	regs := parseRegisters([]string{
		"General Purpose Registers:",
		"       rax = 0x0000000000000000",
		"       rbx = 0x00007fff5fbff8a8",
		"       rip = 0x0000000100000e9e  a.out`compute + 30 at main.c:10",
	})
	require.Len(t, regs, 3)
	assert.Equal(t, "rax", regs[0].Name)
	assert.Equal(t, "0x0000000000000000", regs[0].Value)
	assert.Equal(t, "rip", regs[2].Name)
}

func TestParseMemory(t *testing.T) {
	data := parseMemory([]string{
		"0x100000f80: 0x48 0x65 0x6c 0x6c 0x6f 0x00 0x00 0x00",
		"0x100000f88: 0xde 0xad",
	})
	assert.Equal(t, []byte{0x48, 0x65, 0x6c, 0x6c, 0x6f, 0, 0, 0, 0xde, 0xad}, data)
	assert.Empty(t, parseMemory([]string{"error: memory read failed"}))
}

func TestParseInstructions(t *testing.T) {
	instrs := parseInstructions([]string{
		"a.out`compute:",
		"    0x100000e80 <+0>:  pushq  %rbp",
		"->  0x100000e81 <+1>:  movq   %rsp, %rbp",
	})
	require.Len(t, instrs, 2)
	assert.Equal(t, uint64(0x100000e80), instrs[0].Address)
	assert.Equal(t, "pushq  %rbp", instrs[0].Text)
	assert.Equal(t, uint64(0x100000e81), instrs[1].Address)
}

func TestParseModules(t *testing.T) {
	mods := parseModules([]string{
		"[  0] 01234567-89AB-CDEF-0123-456789ABCDEF 0x0000000100000000 /tmp/a.out",
		"[  1] /usr/lib/libSystem.B.dylib",
	})
	require.Len(t, mods, 2)
	assert.Equal(t, "/tmp/a.out", mods[0].Path)
	assert.Equal(t, "a.out", mods[0].Name)
	assert.Equal(t, uint64(0x100000000), mods[0].Address)
	assert.Equal(t, "libSystem.B.dylib", mods[1].Name)
	assert.Zero(t, mods[1].Address)
}

package lldb

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/pkg/backend"
)

// Process lifecycle lines, printed both asynchronously and inside
// command replies.
var (
	processStoppedRe  = regexp.MustCompile(`^Process (\d+) stopped`)
	processResumingRe = regexp.MustCompile(`^Process (\d+) resuming`)
	processExitedRe   = regexp.MustCompile(`^Process (\d+) exited with status = (-?\d+)`)
	processLaunchedRe = regexp.MustCompile(`^Process (\d+) launched`)
)

// Thread detail line following "Process N stopped", e.g.
//
//   - thread #1, name = 'a.out', stop reason = breakpoint 1.1
var (
	stopThreadRe = regexp.MustCompile(`^\*?\s*thread #(\d+)[,:].*stop reason = (.+)$`)
	stopBkptRe   = regexp.MustCompile(`^breakpoint (\d+)(?:\.\d+)?`)
	stopWatchRe  = regexp.MustCompile(`^watchpoint (\d+)`)
	atLocRe      = regexp.MustCompile(` at ([^:\s]+):(\d+)`)
)

// Command reply patterns.
var (
	breakpointSetRe  = regexp.MustCompile(`^Breakpoint (\d+): `)
	breakpointPendRe = regexp.MustCompile(`^Breakpoint (\d+): no locations \(pending\)`)
	breakpointAddrRe = regexp.MustCompile(`address = (0x[0-9a-fA-F]+)`)
	watchpointSetRe  = regexp.MustCompile(`Watchpoint (\d+): addr = (0x[0-9a-fA-F]+)`)

	threadLineRe = regexp.MustCompile(`^\s*\*?\s*thread #(\d+)`)
	threadNameRe = regexp.MustCompile(`name = '([^']*)'`)
	frameLineRe  = regexp.MustCompile("frame #(\\d+): (0x[0-9a-fA-F]+)(?: [^`]*`([^(\\s]+))?")

	variableRe       = regexp.MustCompile(`^\((.+?)\)\s+([\w$:.\[\]]+)\s+=\s?(.*)$`)
	childNoTypeRe    = regexp.MustCompile(`^\s+([\w$:.\[\]]+)\s+=\s?(.*)$`)
	registerLineRe   = regexp.MustCompile(`^\s*([a-z][a-z0-9]*) = (0x[0-9a-fA-F]+.*)$`)
	memoryLineRe     = regexp.MustCompile(`^(0x[0-9a-fA-F]+): ((?:0x[0-9a-fA-F]{2}\s*)+)`)
	instructionRe    = regexp.MustCompile(`(0x[0-9a-fA-F]+)\s*(?:<[^>]*>)?:\s+(.+)$`)
	imageListRe      = regexp.MustCompile(`^\[\s*\d+\]\s+(?:[0-9A-Fa-f-]{8,}\s+)?(?:(0x[0-9a-fA-F]+)\s+)?(\S+)$`)
	evalResultRe     = regexp.MustCompile(`^\((.+?)\)\s+(\$\d+|\S+)\s+=\s?(.*)$`)
	funcFromThreadRe = regexp.MustCompile("`([^(+]+?)(?: \\+ \\d+)?(?: at |\\(|$)")
)

// stopDetail is the decoded form of a stop's thread line.
type stopDetail struct {
	threadID   int
	reason     backend.StopReason
	breakpoint string // backend watchpoint/breakpoint number, if any
	file       string
	line       int
}

// parseStopDetail decodes the thread line of a stop. ok is false for
// lines that carry no stop reason.
func parseStopDetail(line string) (stopDetail, bool) {
	m := stopThreadRe.FindStringSubmatch(line)
	if m == nil {
		return stopDetail{}, false
	}
	var st stopDetail
	st.threadID, _ = strconv.Atoi(m[1])
	reason := strings.TrimSpace(m[2])
	switch {
	case stopBkptRe.MatchString(reason):
		st.reason = backend.StopBreakpoint
		st.breakpoint = stopBkptRe.FindStringSubmatch(reason)[1]
	case stopWatchRe.MatchString(reason):
		st.reason = backend.StopWatchpoint
		st.breakpoint = stopWatchRe.FindStringSubmatch(reason)[1]
	case strings.HasPrefix(reason, "step"), strings.HasPrefix(reason, "instruction step"):
		st.reason = backend.StopStep
	case strings.HasPrefix(reason, "signal SIGINT"), strings.HasPrefix(reason, "signal SIGSTOP"):
		st.reason = backend.StopPause
	case strings.HasPrefix(reason, "signal"), strings.HasPrefix(reason, "exception"), strings.HasPrefix(reason, "EXC_"):
		st.reason = backend.StopSignal
	default:
		st.reason = backend.StopUnknown
	}
	if loc := atLocRe.FindStringSubmatch(line); loc != nil {
		st.file = loc[1]
		st.line, _ = strconv.Atoi(loc[2])
	}
	return st, true
}

// parseThreads decodes `thread list` output.
func parseThreads(lines []string) []backend.Thread {
	var threads []backend.Thread
	for _, l := range lines {
		m := threadLineRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		th := backend.Thread{ID: id}
		if nm := threadNameRe.FindStringSubmatch(l); nm != nil {
			th.Name = nm[1]
		}
		if fn := funcFromThreadRe.FindStringSubmatch(l); fn != nil {
			th.Function = strings.TrimSpace(fn[1])
		}
		if loc := atLocRe.FindStringSubmatch(l); loc != nil {
			th.File = loc[1]
			th.Line, _ = strconv.Atoi(loc[2])
		}
		threads = append(threads, th)
	}
	return threads
}

// parseFrames decodes `thread backtrace` output.
func parseFrames(lines []string) []backend.StackFrame {
	var frames []backend.StackFrame
	for _, l := range lines {
		m := frameLineRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		var fr backend.StackFrame
		fr.Level, _ = strconv.Atoi(m[1])
		fr.Address, _ = strconv.ParseUint(m[2], 0, 64)
		fr.Function = strings.TrimSpace(m[3])
		if loc := atLocRe.FindStringSubmatch(l); loc != nil {
			fr.File = loc[1]
			fr.Line, _ = strconv.Atoi(loc[2])
		}
		frames = append(frames, fr)
	}
	return frames
}

// parseVariables decodes top-level `frame variable -T` output lines of
// the form `(type) name = value`. Continuation lines of multi-line
// aggregate values are skipped; aggregates read as compound via their
// `{`-opening value.
func parseVariables(lines []string) []backend.Variable {
	var vars []backend.Variable
	for _, l := range lines {
		if strings.HasPrefix(l, " ") || strings.HasPrefix(l, "}") {
			continue
		}
		m := variableRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		vars = append(vars, backend.Variable{
			Type:  m[1],
			Name:  m[2],
			Value: strings.TrimSpace(m[3]),
		})
	}
	return vars
}

// parseChildren decodes the first indentation level of
// `frame variable -T <expr>` output.
func parseChildren(lines []string) []backend.Variable {
	var children []backend.Variable
	for _, l := range lines {
		if !strings.HasPrefix(l, "  ") {
			continue
		}
		// Deeper nesting levels are skipped; they are fetched through
		// their own reference.
		if strings.HasPrefix(l, "    ") {
			continue
		}
		trimmed := strings.TrimPrefix(l, "  ")
		if m := variableRe.FindStringSubmatch(trimmed); m != nil {
			children = append(children, backend.Variable{
				Type:  m[1],
				Name:  m[2],
				Value: strings.TrimSpace(m[3]),
			})
			continue
		}
		if m := childNoTypeRe.FindStringSubmatch(l); m != nil {
			children = append(children, backend.Variable{
				Name:  m[1],
				Value: strings.TrimSpace(m[2]),
			})
		}
	}
	return children
}

// parseRegisters decodes `register read` output.
func parseRegisters(lines []string) []backend.Register {
	var regs []backend.Register
	for _, l := range lines {
		if m := registerLineRe.FindStringSubmatch(l); m != nil {
			regs = append(regs, backend.Register{Name: m[1], Value: strings.TrimSpace(m[2])})
		}
	}
	return regs
}

// parseMemory decodes `memory read -f x -s 1` output into raw bytes.
func parseMemory(lines []string) []byte {
	var data []byte
	for _, l := range lines {
		m := memoryLineRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		for _, tok := range strings.Fields(m[2]) {
			v, err := strconv.ParseUint(tok, 0, 8)
			if err != nil {
				continue
			}
			data = append(data, byte(v))
		}
	}
	return data
}

// parseInstructions decodes `disassemble` output.
func parseInstructions(lines []string) []backend.Instruction {
	var instrs []backend.Instruction
	for _, l := range lines {
		m := instructionRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		addr, err := strconv.ParseUint(m[1], 0, 64)
		if err != nil {
			continue
		}
		instrs = append(instrs, backend.Instruction{
			Address: addr,
			Text:    strings.TrimSpace(m[2]),
		})
	}
	return instrs
}

// parseModules decodes `image list -o -f` style output.
func parseModules(lines []string) []backend.Module {
	var mods []backend.Module
	for _, l := range lines {
		m := imageListRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		mod := backend.Module{Path: m[2], Name: baseName(m[2])}
		if m[1] != "" {
			mod.Address, _ = strconv.ParseUint(m[1], 0, 64)
		}
		mods = append(mods, mod)
	}
	return mods
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

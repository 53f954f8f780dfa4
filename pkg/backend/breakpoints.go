package backend

import (
	"fmt"
	"sync"
)

// BreakpointKind classifies a breakpoint.
type BreakpointKind int

const (
	LineBreakpoint BreakpointKind = iota
	ConditionalBreakpoint
	FunctionBreakpoint
	AddressBreakpoint
	Logpoint
	Watchpoint
)

// BreakpointValidity tracks backend resolution of a breakpoint. It is
// set only by the owning plugin.
type BreakpointValidity int

const (
	// PendingValidity means the backend has not resolved the location yet.
	PendingValidity BreakpointValidity = iota
	// ValidBreakpoint means the backend bound the breakpoint to code.
	ValidBreakpoint
	// InvalidBreakpoint means resolution failed.
	InvalidBreakpoint
)

// Location is a breakpoint target: file+line, function name, address,
// or a watch expression, whichever is set.
type Location struct {
	File     string
	Line     int
	Function string
	Address  uint64
	// Expression is the watched expression of a watchpoint.
	Expression string
}

func (l Location) String() string {
	switch {
	case l.File != "":
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	case l.Function != "":
		return l.Function
	case l.Address != 0:
		return fmt.Sprintf("*%#x", l.Address)
	default:
		return l.Expression
	}
}

// Breakpoint is one engine-side breakpoint or watchpoint. The ID is
// allocated by the session table and is distinct from the backend's
// native breakpoint number.
type Breakpoint struct {
	ID   int
	Kind BreakpointKind
	Loc  Location

	Enabled    bool
	Condition  string
	LogMessage string

	HitCount int
	Validity BreakpointValidity

	// BackendID is the debugger's native breakpoint number.
	BackendID string
}

// BreakpointTable is the mutex-guarded per-session breakpoint store.
// It is mutated by the issuing thread and the backend dispatcher.
type BreakpointTable struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]*Breakpoint
}

// NewBreakpointTable returns an empty table. IDs start at 1 and are
// never reused for the lifetime of the session.
func NewBreakpointTable() *BreakpointTable {
	return &BreakpointTable{nextID: 1, byID: make(map[int]*Breakpoint)}
}

// Add registers the breakpoint and assigns its ID.
func (t *BreakpointTable) Add(bp *Breakpoint) *Breakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	bp.ID = t.nextID
	t.nextID++
	t.byID[bp.ID] = bp
	return bp
}

// Get looks a breakpoint up by engine ID.
func (t *BreakpointTable) Get(id int) (*Breakpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bp, ok := t.byID[id]
	return bp, ok
}

// FindByBackendID looks a breakpoint up by the debugger's native number.
func (t *BreakpointTable) FindByBackendID(backendID string) (*Breakpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, bp := range t.byID {
		if bp.BackendID == backendID {
			return bp, true
		}
	}
	return nil, false
}

// Remove deletes a breakpoint by engine ID.
func (t *BreakpointTable) Remove(id int) (*Breakpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bp, ok := t.byID[id]
	if ok {
		delete(t.byID, id)
	}
	return bp, ok
}

// All returns the breakpoints sorted by ID.
func (t *BreakpointTable) All() []*Breakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	bps := make([]*Breakpoint, 0, len(t.byID))
	for id := 1; id < t.nextID; id++ {
		if bp, ok := t.byID[id]; ok {
			bps = append(bps, bp)
		}
	}
	return bps
}

// Clear empties the table. The ID counter keeps rising so removed IDs
// never come back.
func (t *BreakpointTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID = make(map[int]*Breakpoint)
}

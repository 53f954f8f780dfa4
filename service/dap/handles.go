package dap

const startHandle = 1000

// handlesMap maps protocol-visible reference numbers to engine values
// (stack frames, variable scopes, variable references). Handles grow
// monotonically for the lifetime of the map: reset invalidates all
// live handles but never rewinds the counter, so a stale reference
// from before a resume can only miss, never alias a new value.
type handlesMap struct {
	nextHandle  int
	handleToVal map[int]interface{}
}

func newHandlesMap() *handlesMap {
	return &handlesMap{startHandle, make(map[int]interface{})}
}

func (hs *handlesMap) reset() {
	hs.handleToVal = make(map[int]interface{})
}

func (hs *handlesMap) create(value interface{}) int {
	next := hs.nextHandle
	hs.nextHandle++
	hs.handleToVal[next] = value
	return next
}

func (hs *handlesMap) get(handle int) (interface{}, bool) {
	v, ok := hs.handleToVal[handle]
	return v, ok
}

// frameID identifies one stack frame of one thread.
type frameID struct {
	threadID int
	frame    int
}

// varRef ties a backend variables reference to the frame it was read
// in, so child expansion can address the right scope.
type varRef struct {
	backendRef int
}

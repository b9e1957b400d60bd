package vm

import "strconv"

// ---------------------------------------------------------------------------
// Object: a heap-allocated runtime object
// ---------------------------------------------------------------------------

// objectKind distinguishes the internal layouts that share Object.
type objectKind uint8

const (
	objPlain      objectKind = iota // class instance (including Error instances)
	objArray                        // dense element vector plus dynamic properties
	objFunction                     // closure over a method
	objClass                        // class object holding static slots
	objActivation                   // method activation (newactivation)
	objCatch                        // catch scope (newcatch)
	objGlobal                       // script global object
)

// Object is an arena-resident object. Objects refer to each other only
// through Values carrying arena references, never through Go pointers, so
// the collector in heap.go can find every edge.
type Object struct {
	kind  objectKind
	class *Class // instance class; for class objects, the class described

	// traits is the own trait table of activation, catch and global
	// objects. Instances resolve traits through their class chain instead.
	traits *Traits
	slots  []Value

	sealed bool
	dyn    *dynProps

	elems []Value  // arrays
	fn    *closure // functions
	scope []Value  // captured scope chain of functions and class objects
	owner *Script  // global objects: the script they belong to

	// filled marks class-trait slots that hold their final value, written
	// by newclass, by script code or by lazy materialisation.
	filled map[int]bool
}

// closure is the payload of a function object.
type closure struct {
	method *Method
	this   Value // receiver of a bound method closure
	bound  bool
}

// slot returns slot i (0-based); out-of-range reads yield undefined.
func (o *Object) slot(i int) Value {
	if i < 0 || i >= len(o.slots) {
		return Undefined
	}
	return o.slots[i]
}

func (o *Object) fill(i int) {
	if o.filled == nil {
		o.filled = make(map[int]bool)
	}
	o.filled[i] = true
}

// ---------------------------------------------------------------------------
// Dynamic properties
// ---------------------------------------------------------------------------

// dynProps is an insertion-ordered property map for non-sealed objects.
type dynProps struct {
	index map[string]int
	keys  []string
	vals  []Value
}

func (o *Object) getDynamic(key string) (Value, bool) {
	if o.dyn == nil {
		return Undefined, false
	}
	i, ok := o.dyn.index[key]
	if !ok {
		return Undefined, false
	}
	return o.dyn.vals[i], true
}

func (o *Object) setDynamic(key string, v Value) {
	if o.dyn == nil {
		o.dyn = &dynProps{index: make(map[string]int)}
	}
	if i, ok := o.dyn.index[key]; ok {
		o.dyn.vals[i] = v
		return
	}
	o.dyn.index[key] = len(o.dyn.keys)
	o.dyn.keys = append(o.dyn.keys, key)
	o.dyn.vals = append(o.dyn.vals, v)
}

func (o *Object) deleteDynamic(key string) bool {
	if o.dyn == nil {
		return false
	}
	i, ok := o.dyn.index[key]
	if !ok {
		return false
	}
	o.dyn.keys = append(o.dyn.keys[:i], o.dyn.keys[i+1:]...)
	o.dyn.vals = append(o.dyn.vals[:i], o.dyn.vals[i+1:]...)
	delete(o.dyn.index, key)
	for j := i; j < len(o.dyn.keys); j++ {
		o.dyn.index[o.dyn.keys[j]] = j
	}
	return true
}

func (o *Object) dynamicCount() int {
	if o.dyn == nil {
		return 0
	}
	return len(o.dyn.keys)
}

// ---------------------------------------------------------------------------
// Array elements
// ---------------------------------------------------------------------------

func (o *Object) getElement(i uint32) (Value, bool) {
	if int64(i) < int64(len(o.elems)) {
		return o.elems[i], true
	}
	return Undefined, false
}

// setElement stores element i, growing the vector with undefined holes.
// Indices far beyond the current length go to dynamic storage.
func (o *Object) setElement(i uint32, v Value) {
	n := len(o.elems)
	switch {
	case int(i) < n:
		o.elems[i] = v
	case int(i) < n+maxArrayGap:
		for len(o.elems) < int(i) {
			o.elems = append(o.elems, Undefined)
		}
		o.elems = append(o.elems, v)
	default:
		o.setDynamic(uitoa(i), v)
	}
}

// maxArrayGap bounds the number of holes a single store may create.
const maxArrayGap = 1 << 16

// enumerableCount is the number of for-in positions: elements, then
// dynamic properties.
func (o *Object) enumerableCount() int {
	return len(o.elems) + o.dynamicCount()
}

func uitoa(u uint32) string {
	return strconv.FormatUint(uint64(u), 10)
}

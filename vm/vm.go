package vm

import (
	"context"
	"fmt"
	"io"
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// NativeFunc implements a method in Go. this is the receiver (a primitive
// for boxed builtin methods). Returning an error made with ScriptError
// throws a catchable script error; returning a *ThrownError rethrows its
// value; any other error aborts execution.
type NativeFunc func(vm *VM, this Value, args []Value) (Value, error)

// Options configures a VM.
type Options struct {
	// MaxCallDepth bounds the number of live frames, natives included.
	MaxCallDepth int

	// InstructionBudget bounds the instructions executed per host call;
	// 0 means unlimited.
	InstructionBudget int64

	// GCThreshold is the number of allocations between automatic
	// collections; a negative value disables automatic collection.
	GCThreshold int

	// StrictStack enforces the declared max_stack and max_scope_depth of
	// every method body.
	StrictStack bool

	// Natives implements body-less methods, keyed by dotted method name
	// ("pkg.Class.method", "pkg.function").
	Natives map[string]NativeFunc

	// Trace receives the output of the trace() builtin. When nil, trace
	// output is logged at Info.
	Trace io.Writer
}

// DefaultOptions returns the options used by the package-level CallMethod.
func DefaultOptions() Options {
	return Options{
		MaxCallDepth: 256,
		GCThreshold:  4096,
		StrictStack:  true,
	}
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// script initialisation states
const (
	scriptPending uint8 = iota
	scriptRunning
	scriptDone
)

// VM executes one Program. It owns the object heap and all per-execution
// state (script globals, class objects, frames). A VM is not safe for
// concurrent use; run one VM per goroutine, sharing the Program.
type VM struct {
	program *Program
	opts    Options
	heap    *heap

	frames      []*frame
	runDepth    int
	nativeDepth int
	result      Value

	ctx      context.Context
	budget   int64
	budgeted bool
	steps    uint64

	toplevel  Value
	globals   []Value
	scriptSt  []uint8
	classObjs map[*Class]Value
	pins      map[Ref]int
}

// New creates a VM for p. Zero-valued limits in opts take the defaults.
func New(p *Program, opts Options) *VM {
	def := DefaultOptions()
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = def.MaxCallDepth
	}
	if opts.GCThreshold == 0 {
		opts.GCThreshold = def.GCThreshold
	}
	vm := &VM{
		program:   p,
		opts:      opts,
		heap:      newHeap(),
		ctx:       context.Background(),
		classObjs: make(map[*Class]Value),
		pins:      make(map[Ref]int),
	}

	b := p.builtins
	vm.toplevel = vm.newTraitObject(objGlobal, b.toplevel, nil)
	top := vm.object(vm.toplevel)
	for _, c := range b.all {
		co := vm.newClassObject(c, nil)
		vm.classObjs[c] = co
		if tb := b.toplevel.LookupQName(c.Name); tb != nil {
			top.slots[tb.Slot] = co
		}
	}

	vm.globals = make([]Value, len(p.Scripts))
	vm.scriptSt = make([]uint8, len(p.Scripts))
	for i, s := range p.Scripts {
		g := vm.newTraitObject(objGlobal, s.Traits, nil)
		vm.object(g).owner = s
		vm.globals[i] = g
	}
	return vm
}

// Program returns the program the VM executes.
func (vm *VM) Program() *Program {
	return vm.program
}

// CallMethod runs a program with default options; see VM.CallMethod.
func CallMethod(p *Program, name string, recv Value, args ...Value) (Value, error) {
	return New(p, DefaultOptions()).CallMethod(name, recv, args...)
}

// ---------------------------------------------------------------------------
// Host entry points
// ---------------------------------------------------------------------------

// host runs fn as an outermost call: it installs ctx, resets the budget,
// recovers internal panics and converts escaping errors to their host
// form. Nested calls (from natives) run fn directly.
func (vm *VM) host(ctx context.Context, fn func() (Value, error)) (v Value, err error) {
	if vm.runDepth > 0 || vm.nativeDepth > 0 {
		return fn()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return Undefined, err
	}
	prev := vm.ctx
	vm.ctx = ctx
	vm.budget = vm.opts.InstructionBudget
	vm.budgeted = vm.opts.InstructionBudget > 0
	base := len(vm.frames)
	defer func() {
		vm.ctx = prev
		if r := recover(); r != nil {
			vm.frames = vm.frames[:base]
			vm.runDepth, vm.nativeDepth = 0, 0
			v, err = Undefined, fmt.Errorf("vm: internal error: %v", r)
			log.Errorf("%s", err)
		}
	}()
	v, err = fn()
	if err != nil {
		return Undefined, vm.hostError(err)
	}
	return v, nil
}

// CallMethod invokes a script-level or class-level member by qualified
// name: "pkg::name" or "pkg.name" for script traits, "pkg.Class.name" for
// static members and for instance members called on recv. An undefined
// recv means the script global; statics always run on the class object. An
// unresolved name fails with ErrReference.
func (vm *VM) CallMethod(name string, recv Value, args ...Value) (Value, error) {
	return vm.CallMethodContext(context.Background(), name, recv, args...)
}

// CallMethodContext is CallMethod with cancellation: ctx is checked
// between instructions.
func (vm *VM) CallMethodContext(ctx context.Context, name string, recv Value, args ...Value) (Value, error) {
	return vm.host(ctx, func() (Value, error) {
		return vm.callNamed(name, recv, args)
	})
}

// RunEntryPoint runs the initializer of the last script, the program's
// main entry point. It returns undefined if the script already ran.
func (vm *VM) RunEntryPoint() (Value, error) {
	return vm.RunEntryPointContext(context.Background())
}

// RunEntryPointContext is RunEntryPoint with cancellation.
func (vm *VM) RunEntryPointContext(ctx context.Context) (Value, error) {
	return vm.host(ctx, func() (Value, error) {
		return vm.runScript(vm.program.Scripts[len(vm.program.Scripts)-1])
	})
}

// Construct instantiates the class with the given qualified name.
func (vm *VM) Construct(className string, args ...Value) (Value, error) {
	return vm.host(nil, func() (Value, error) {
		c := vm.program.LookupClass(className)
		if c == nil {
			return Undefined, referenceErrorf("class %s is not defined", className)
		}
		if _, err := vm.classObject(c); err != nil {
			return Undefined, err
		}
		return vm.constructSync(c, args)
	})
}

// Call invokes a function or class object.
func (vm *VM) Call(fn Value, this Value, args ...Value) (Value, error) {
	return vm.host(nil, func() (Value, error) {
		return vm.callSync(fn, this, args)
	})
}

// GetProperty reads the public property name of obj, running getters.
func (vm *VM) GetProperty(obj Value, name string) (Value, error) {
	return vm.host(nil, func() (Value, error) {
		n := NameOf(name)
		return vm.getPropSync(obj, &n)
	})
}

// SetProperty writes the public property name of obj, running setters.
func (vm *VM) SetProperty(obj Value, name string, v Value) error {
	_, err := vm.host(nil, func() (Value, error) {
		n := NameOf(name)
		return Undefined, vm.setPropSync(obj, &n, v)
	})
	return err
}

// ToString converts v the way string concatenation does, calling
// toString or valueOf on objects.
func (vm *VM) ToString(v Value) (string, error) {
	var s string
	_, err := vm.host(nil, func() (Value, error) {
		var err error
		s, err = vm.toString(v)
		return Undefined, err
	})
	return s, err
}

// ToNumber converts v to a number, calling valueOf or toString on objects.
func (vm *VM) ToNumber(v Value) (float64, error) {
	var f float64
	_, err := vm.host(nil, func() (Value, error) {
		var err error
		f, err = vm.toNumber(v)
		return Undefined, err
	})
	return f, err
}

// Global returns the global object of script i.
func (vm *VM) Global(i int) Value {
	return vm.globals[i]
}

// ---------------------------------------------------------------------------
// Named calls
// ---------------------------------------------------------------------------

// lookupLocal finds a binding by local name in t, preferring the public
// namespace, then any namespace with the given URI.
func lookupLocal(t *Traits, uri, local string) *Binding {
	if t == nil {
		return nil
	}
	if uri == "" {
		if b := t.LookupQName(PublicQName(local)); b != nil {
			return b
		}
	}
	for _, b := range t.byLocal[local] {
		if b.Name.NS.URI == uri {
			return b
		}
	}
	return nil
}

func (vm *VM) callNamed(name string, recv Value, args []Value) (Value, error) {
	uri, local := splitQualified(name)
	for _, s := range vm.program.Scripts {
		b := lookupLocal(s.Traits, uri, local)
		if b == nil {
			continue
		}
		if err := vm.ensureScript(s); err != nil {
			return Undefined, err
		}
		g := vm.globals[s.Index]
		if b.Kind == BindMethod && !recv.IsUndefined() {
			return vm.callMethodSync(b.Method, recv, args, []Value{g})
		}
		return vm.callBindingSync(g, vm.object(g), b, args)
	}

	if c := vm.program.LookupClass(uri); c != nil {
		co, err := vm.classObject(c)
		if err != nil {
			return Undefined, err
		}
		if b := lookupLocal(c.Static, "", local); b != nil {
			return vm.callBindingSync(co, vm.object(co), b, args)
		}
		n := Name{AnyNS: true, Local: local}
		if pub := NameOf(local); c.FindTrait(&pub) != nil {
			n = pub
		}
		if b := c.FindTrait(&n); b != nil {
			if !vm.isType(recv, c) {
				return Undefined, typeErrorf("%s requires a %s receiver, got %s", name, c, vm.describe(recv))
			}
			return vm.callBindingSync(recv, vm.object(recv), b, args)
		}
	}
	return Undefined, referenceErrorf("%s is not defined", name)
}

// ---------------------------------------------------------------------------
// Scripts and class objects
// ---------------------------------------------------------------------------

// ensureScript runs the initializer of s once. A script that is already
// running (its initializer is on the stack) is treated as initialised.
func (vm *VM) ensureScript(s *Script) error {
	if vm.scriptSt[s.Index] != scriptPending {
		return nil
	}
	_, err := vm.runScript(s)
	return err
}

func (vm *VM) runScript(s *Script) (Value, error) {
	if vm.scriptSt[s.Index] != scriptPending {
		return Undefined, nil
	}
	vm.scriptSt[s.Index] = scriptRunning
	g := vm.globals[s.Index]
	log.Debugf("initialising script %d", s.Index)
	v, err := vm.callMethodSync(s.Init, g, nil, nil)
	vm.scriptSt[s.Index] = scriptDone
	return v, err
}

// classObject returns the class object of c, creating it if no newclass
// has run for it yet: the defining script is initialised first, and if
// that does not create the class either, the object is built with the
// script global as its scope and the static initializer is run.
func (vm *VM) classObject(c *Class) (Value, error) {
	if v, ok := vm.classObjs[c]; ok {
		return v, nil
	}
	if c.script != nil {
		if err := vm.ensureScript(c.script); err != nil {
			return Undefined, err
		}
		if v, ok := vm.classObjs[c]; ok {
			return v, nil
		}
	}
	if c.Super != nil {
		if _, err := vm.classObject(c.Super); err != nil {
			return Undefined, err
		}
	}
	var scope []Value
	if c.script != nil {
		scope = []Value{vm.globals[c.script.Index]}
	}
	co := vm.newClassObject(c, scope)
	vm.classObjs[c] = co
	log.Debugf("materialised class %s outside newclass", c)
	if _, err := vm.callMethodSync(c.StaticInit, co, nil, append(scope, co)); err != nil {
		return Undefined, err
	}
	return co, nil
}

// classScope is the scope chain of c's methods: the scope captured by
// newclass followed by the class object itself.
func (vm *VM) classScope(c *Class) ([]Value, error) {
	if c.builtin {
		return nil, nil
	}
	co, err := vm.classObject(c)
	if err != nil {
		return nil, err
	}
	o := vm.object(co)
	scope := make([]Value, 0, len(o.scope)+1)
	return append(append(scope, o.scope...), co), nil
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

func (vm *VM) alloc(o *Object) Value {
	return ObjectValue(vm.heap.alloc(o))
}

// object resolves an object value; it returns nil for primitives and
// collected objects.
func (vm *VM) object(v Value) *Object {
	if v.kind != KindObject {
		return nil
	}
	return vm.heap.get(v.Ref())
}

// newTraitObject allocates an activation, catch or global object. Function
// traits are bound to closures whose scope is scope plus the new object.
func (vm *VM) newTraitObject(kind objectKind, t *Traits, scope []Value) Value {
	o := &Object{kind: kind, traits: t, slots: make([]Value, t.SlotCount()), sealed: kind != objGlobal}
	v := vm.alloc(o)
	for _, b := range t.Bindings() {
		if b.Kind != BindSlot && b.Kind != BindConst {
			continue
		}
		o.slots[b.Slot] = b.def
		if b.function != nil {
			fs := make([]Value, 0, len(scope)+1)
			o.slots[b.Slot] = vm.newFunction(b.function, append(append(fs, scope...), v))
		}
	}
	return v
}

func (vm *VM) newClassObject(c *Class, scope []Value) Value {
	o := &Object{kind: objClass, class: c, traits: c.Static, slots: make([]Value, c.Static.SlotCount()), sealed: true, scope: scope}
	for _, b := range c.Static.Bindings() {
		if b.Kind == BindSlot || b.Kind == BindConst {
			o.slots[b.Slot] = b.def
		}
	}
	return vm.alloc(o)
}

// newInstance allocates an uninitialised instance of c with every slot
// along the class chain at its default.
func (vm *VM) newInstance(c *Class) Value {
	o := &Object{kind: c.layout, class: c, slots: make([]Value, c.slotCount), sealed: c.Sealed}
	for cur := c; cur != nil; cur = cur.Super {
		for _, b := range cur.Instance.Bindings() {
			if (b.Kind == BindSlot || b.Kind == BindConst) && b.Slot < len(o.slots) && b.Owner == cur {
				o.slots[b.Slot] = b.def
			}
		}
	}
	return vm.alloc(o)
}

func (vm *VM) newFunction(m *Method, scope []Value) Value {
	return vm.alloc(&Object{kind: objFunction, fn: &closure{method: m}, scope: scope})
}

func (vm *VM) newBoundMethod(m *Method, this Value, scope []Value) Value {
	return vm.alloc(&Object{kind: objFunction, fn: &closure{method: m, this: this, bound: true}, scope: scope})
}

// NewObject allocates an empty dynamic Object.
func (vm *VM) NewObject() Value {
	return vm.alloc(&Object{kind: objPlain, class: vm.program.builtins.object})
}

// NewArray allocates an Array holding a copy of vals.
func (vm *VM) NewArray(vals ...Value) Value {
	elems := make([]Value, len(vals))
	copy(elems, vals)
	return vm.alloc(&Object{kind: objArray, class: vm.program.builtins.array, elems: elems})
}

// ArrayElements returns a copy of the elements of an Array.
func (vm *VM) ArrayElements(v Value) ([]Value, bool) {
	o := vm.object(v)
	if o == nil || o.kind != objArray {
		return nil, false
	}
	out := make([]Value, len(o.elems))
	copy(out, o.elems)
	return out, true
}

// ---------------------------------------------------------------------------
// Garbage collection
// ---------------------------------------------------------------------------

// Pin keeps v (and everything it reaches) alive across collections until
// a matching Unpin. Pins nest.
func (vm *VM) Pin(v Value) {
	if v.IsObject() {
		vm.pins[v.Ref()]++
	}
}

// Unpin releases one Pin of v.
func (vm *VM) Unpin(v Value) {
	if !v.IsObject() {
		return
	}
	r := v.Ref()
	if vm.pins[r] <= 1 {
		delete(vm.pins, r)
		return
	}
	vm.pins[r]--
}

// Collect runs a full collection. Objects reachable only from host
// variables are freed unless pinned.
func (vm *VM) Collect() GCStats {
	st := vm.heap.collect(vm.markRoots)
	log.Debugf("gc: marked %d, swept %d, live %d in %s", st.Marked, st.Swept, st.Live, st.Duration)
	return st
}

// HeapStats reports arena usage.
func (vm *VM) HeapStats() HeapStats {
	return vm.heap.stats()
}

func (vm *VM) markRoots(m *marker) {
	m.value(vm.toplevel)
	m.values(vm.globals)
	for _, v := range vm.classObjs {
		m.value(v)
	}
	for r := range vm.pins {
		m.value(ObjectValue(r))
	}
	m.value(vm.result)
	for _, f := range vm.frames {
		m.values(f.regs)
		m.values(f.stack[:f.sp])
		for _, e := range f.scope {
			m.value(e.value)
		}
		m.values(f.outer)
		m.value(f.this)
		m.value(f.caught)
	}
}

package vm

import (
	"fmt"

	"github.com/chazu/avm2/abc"
)

// ---------------------------------------------------------------------------
// frame: execution state of one byte-code method invocation
// ---------------------------------------------------------------------------

// returnMode says what happens to a frame's result when it returns.
type returnMode uint8

const (
	returnPush     returnMode = iota // push the result on the caller's stack
	returnDiscard                    // drop the result (callpropvoid, constructsuper)
	returnReceiver                   // push the receiver instead (construct, newclass)
	returnHost                       // hand the result back to run()
)

type scopeEntry struct {
	value Value
	with  bool // pushed by pushwith: dynamic properties are searched too
}

type frame struct {
	method *Method
	code   []byte
	pc     int
	start  int // pc of the instruction being executed

	regs     []Value
	stack    []Value
	sp       int
	maxStack int
	scope    []scopeEntry
	maxScope int
	outer    []Value // captured scope chain, outermost first

	this   Value
	caught Value // value bound by the most recent handler entry
	mode   returnMode
}

func (f *frame) push(v Value) {
	if f.sp < len(f.stack) {
		f.stack[f.sp] = v
	} else {
		f.stack = append(f.stack, v)
	}
	f.sp++
}

// pop is unchecked: step verifies stack depth before dispatching.
func (f *frame) pop() Value {
	f.sp--
	v := f.stack[f.sp]
	f.stack[f.sp] = Undefined
	return v
}

func (f *frame) top() Value {
	return f.stack[f.sp-1]
}

// popN removes the top n values and returns them in push order. The
// returned slice aliases the stack and is only valid until the next push.
func (f *frame) popN(n int) []Value {
	f.sp -= n
	return f.stack[f.sp : f.sp+n : f.sp+n]
}

func (f *frame) reg(i int) (Value, error) {
	if i < 0 || i >= len(f.regs) {
		return Undefined, verifyErrorf("%s: register %d out of range (%d registers)", f.method, i, len(f.regs))
	}
	return f.regs[i], nil
}

func (f *frame) setReg(i int, v Value) error {
	if i < 0 || i >= len(f.regs) {
		return verifyErrorf("%s: register %d out of range (%d registers)", f.method, i, len(f.regs))
	}
	f.regs[i] = v
	return nil
}

// scopeValues returns the full scope chain, outermost first.
func (f *frame) scopeValues() []Value {
	out := make([]Value, 0, len(f.outer)+len(f.scope))
	out = append(out, f.outer...)
	for _, e := range f.scope {
		out = append(out, e.value)
	}
	return out
}

// globalScope returns the bottom of the scope chain.
func (f *frame) globalScope() Value {
	if len(f.outer) > 0 {
		return f.outer[0]
	}
	if len(f.scope) > 0 {
		return f.scope[0].value
	}
	return Undefined
}

// ---------------------------------------------------------------------------
// Frame management
// ---------------------------------------------------------------------------

func (vm *VM) top() *frame {
	return vm.frames[len(vm.frames)-1]
}

func (vm *VM) checkDepth() error {
	if len(vm.frames)+vm.nativeDepth >= vm.opts.MaxCallDepth {
		return fmt.Errorf("%w: %d frames", ErrCallDepth, vm.opts.MaxCallDepth)
	}
	return nil
}

// pushFrame enters a byte-code method. Argument errors are raised before
// the frame exists, so they belong to the caller.
func (vm *VM) pushFrame(m *Method, this Value, args []Value, outer []Value, mode returnMode) error {
	if err := vm.checkDepth(); err != nil {
		return err
	}
	body := m.Body
	n := m.ParamCount()
	required := n - len(m.defaults)
	if len(args) < required {
		return argumentErrorf("%s expects %d arguments, got %d", m, required, len(args))
	}
	extra := m.has(abc.MethodNeedRest) || m.has(abc.MethodNeedArguments)

	nregs := int(body.LocalCount)
	if min := n + 1; nregs < min {
		nregs = min
	}
	if extra && nregs < n+2 {
		nregs = n + 2
	}
	regs := make([]Value, nregs)
	regs[0] = this
	for i := 0; i < n; i++ {
		var v Value
		if i < len(args) {
			v = args[i]
		} else {
			v = m.defaults[i-required]
		}
		cv, err := vm.coerce(v, m.paramTypes[i])
		if err != nil {
			return err
		}
		regs[i+1] = cv
	}
	switch {
	case m.has(abc.MethodNeedRest):
		var rest []Value
		if len(args) > n {
			rest = args[n:]
		}
		regs[n+1] = vm.NewArray(rest...)
	case m.has(abc.MethodNeedArguments):
		regs[n+1] = vm.NewArray(args...)
	}

	maxScope := int(body.MaxScopeDepth) - int(body.InitScopeDepth)
	if maxScope < 0 {
		maxScope = 0
	}
	f := &frame{
		method:   m,
		code:     body.Code,
		regs:     regs,
		stack:    make([]Value, 0, body.MaxStack),
		maxStack: int(body.MaxStack),
		scope:    make([]scopeEntry, 0, maxScope),
		maxScope: maxScope,
		outer:    outer,
		this:     this,
		mode:     mode,
	}
	vm.frames = append(vm.frames, f)
	return nil
}

func (vm *VM) popFrame() {
	n := len(vm.frames) - 1
	vm.frames[n] = nil
	vm.frames = vm.frames[:n]
}

// ret leaves the top frame with result v. It reports whether the frame was
// the one run() was started for.
func (vm *VM) ret(v Value) bool {
	f := vm.top()
	vm.popFrame()
	switch f.mode {
	case returnHost:
		vm.result = v
		return true
	case returnPush:
		vm.top().push(v)
	case returnReceiver:
		vm.top().push(f.this)
	}
	return false
}

// nativeFor returns the Go implementation of m: a builtin, or a native
// registered in Options for a body-less method.
func (vm *VM) nativeFor(m *Method) NativeFunc {
	if m.native != nil {
		return m.native
	}
	if m.Body == nil {
		return vm.opts.Natives[m.Name]
	}
	return nil
}

func (vm *VM) callNative(fn NativeFunc, this Value, args []Value) (Value, error) {
	if err := vm.checkDepth(); err != nil {
		return Undefined, err
	}
	vm.nativeDepth++
	defer func() { vm.nativeDepth-- }()
	return fn(vm, this, args)
}

// invoke calls m from the running frame f. A byte-code method gets a new
// frame whose result is delivered according to mode when it returns;
// natives complete immediately.
func (vm *VM) invoke(f *frame, m *Method, this Value, args []Value, scope []Value, mode returnMode) error {
	if m.Body == nil || m.native != nil {
		fn := vm.nativeFor(m)
		if fn == nil {
			return linkErrorf("method %s has no body and no native implementation", m)
		}
		v, err := vm.callNative(fn, this, args)
		if err != nil {
			return err
		}
		vm.deliver(f, v, this, mode)
		return nil
	}
	return vm.pushFrame(m, this, args, scope, mode)
}

func (vm *VM) deliver(f *frame, v, this Value, mode returnMode) {
	switch mode {
	case returnPush:
		f.push(v)
	case returnReceiver:
		f.push(this)
	}
}

// callMethodSync runs m to completion and returns its result. Byte-code
// methods run in a nested run loop.
func (vm *VM) callMethodSync(m *Method, this Value, args []Value, scope []Value) (Value, error) {
	if m.Body == nil || m.native != nil {
		fn := vm.nativeFor(m)
		if fn == nil {
			return Undefined, linkErrorf("method %s has no body and no native implementation", m)
		}
		return vm.callNative(fn, this, args)
	}
	base := len(vm.frames)
	if err := vm.pushFrame(m, this, args, scope, returnHost); err != nil {
		return Undefined, err
	}
	return vm.run(base)
}

// ---------------------------------------------------------------------------
// Run loop
// ---------------------------------------------------------------------------

// tick charges one instruction against the budget and polls the context.
func (vm *VM) tick() error {
	vm.steps++
	if vm.budgeted {
		if vm.budget <= 0 {
			return fmt.Errorf("%w: %d instructions", ErrBudget, vm.opts.InstructionBudget)
		}
		vm.budget--
	}
	if vm.steps&1023 == 0 {
		if err := vm.ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// run executes until the frame at index base returns, and returns its
// result. Throws are dispatched to handlers in frames above base; a throw
// that escapes them is returned as a *ThrownError.
func (vm *VM) run(base int) (Value, error) {
	vm.runDepth++
	defer func() { vm.runDepth-- }()

	for len(vm.frames) > base {
		f := vm.top()
		err := vm.tick()
		if err == nil {
			if vm.runDepth == 1 && vm.nativeDepth == 0 && vm.opts.GCThreshold > 0 &&
				vm.heap.sinceGC >= vm.opts.GCThreshold {
				vm.Collect()
			}
			var done bool
			done, err = vm.step(f)
			if done {
				v := vm.result
				vm.result = Undefined
				return v, nil
			}
			if err == nil && vm.opts.StrictStack && f.sp > f.maxStack && len(vm.frames) > 0 && vm.top() == f {
				err = verifyErrorf("%s: operand stack exceeds max_stack %d at %d", f.method, f.maxStack, f.start)
			}
		}
		if err != nil {
			if err = vm.dispatch(err, base); err != nil {
				return Undefined, err
			}
		}
	}
	return Undefined, nil
}

// ---------------------------------------------------------------------------
// Instruction dispatch
// ---------------------------------------------------------------------------

// step executes one instruction of f. It reports done when f was the run
// loop's base frame and has returned.
func (vm *VM) step(f *frame) (bool, error) {
	if f.pc >= len(f.code) {
		return false, verifyErrorf("%s: execution fell off the end of the code", f.method)
	}
	in, err := abc.Decode(f.code, f.pc)
	if err != nil {
		return false, verifyErrorf("%s: %v", f.method, err)
	}
	if need := vm.stackNeed(&in); f.sp < need {
		return false, verifyErrorf("%s: stack underflow at %d (%s)", f.method, f.pc, in.Op)
	}
	f.start = f.pc
	f.pc = in.Next
	a := in.Args
	p := vm.program
	pool := p.File.Pool

	switch in.Op {
	// --- No-ops ---
	case abc.OpNop, abc.OpLabel, abc.OpBkpt, abc.OpBkptLine, abc.OpDebug, abc.OpDebugLine,
		abc.OpDebugFile, abc.OpTimestamp, abc.OpDXNS:

	case abc.OpDXNSLate:
		f.pop()

	// --- Stack ---
	case abc.OpPop:
		f.pop()
	case abc.OpDup:
		f.push(f.top())
	case abc.OpSwap:
		y, x := f.pop(), f.pop()
		f.push(y)
		f.push(x)

	// --- Constants ---
	case abc.OpPushNull:
		f.push(Null)
	case abc.OpPushUndefined:
		f.push(Undefined)
	case abc.OpPushTrue:
		f.push(True)
	case abc.OpPushFalse:
		f.push(False)
	case abc.OpPushNaN:
		f.push(NaN)
	case abc.OpPushByte:
		f.push(Int(int32(int8(a[0]))))
	case abc.OpPushShort:
		f.push(Int(int32(int16(a[0]))))
	case abc.OpPushString:
		s, err := pool.String(uint32(a[0]))
		if err != nil || a[0] == 0 {
			return false, verifyErrorf("%s: pushstring %d: bad string index", f.method, a[0])
		}
		f.push(String(s))
	case abc.OpPushInt:
		i, err := pool.Int(uint32(a[0]))
		if err != nil {
			return false, verifyErrorf("%s: %v", f.method, err)
		}
		f.push(Int(i))
	case abc.OpPushUInt:
		u, err := pool.UInt(uint32(a[0]))
		if err != nil {
			return false, verifyErrorf("%s: %v", f.method, err)
		}
		f.push(UInt(u))
	case abc.OpPushDouble:
		d, err := pool.Double(uint32(a[0]))
		if err != nil {
			return false, verifyErrorf("%s: %v", f.method, err)
		}
		f.push(Number(d))
	case abc.OpPushNamespace:
		if a[0] <= 0 || a[0] >= len(p.namespaces) {
			return false, verifyErrorf("%s: pushnamespace %d out of range", f.method, a[0])
		}
		f.push(NamespaceValue(p.namespaces[a[0]]))

	// --- Registers ---
	case abc.OpGetLocal0, abc.OpGetLocal1, abc.OpGetLocal2, abc.OpGetLocal3:
		v, err := f.reg(int(in.Op - abc.OpGetLocal0))
		if err != nil {
			return false, err
		}
		f.push(v)
	case abc.OpGetLocal:
		v, err := f.reg(a[0])
		if err != nil {
			return false, err
		}
		f.push(v)
	case abc.OpSetLocal0, abc.OpSetLocal1, abc.OpSetLocal2, abc.OpSetLocal3:
		return false, f.setReg(int(in.Op-abc.OpSetLocal0), f.pop())
	case abc.OpSetLocal:
		return false, f.setReg(a[0], f.pop())
	case abc.OpKill:
		return false, f.setReg(a[0], Undefined)
	case abc.OpIncLocal, abc.OpDecLocal, abc.OpIncLocalI, abc.OpDecLocalI:
		return false, vm.stepLocal(f, in.Op, a[0])

	// --- Control flow ---
	case abc.OpJump:
		f.pc = in.Target()
	case abc.OpIfTrue, abc.OpIfFalse:
		if ToBoolean(f.pop()) == (in.Op == abc.OpIfTrue) {
			f.pc = in.Target()
		}
	case abc.OpIfEq, abc.OpIfNe, abc.OpIfStrictEq, abc.OpIfStrictNe,
		abc.OpIfLT, abc.OpIfLE, abc.OpIfGT, abc.OpIfGE,
		abc.OpIfNLT, abc.OpIfNLE, abc.OpIfNGT, abc.OpIfNGE:
		y, x := f.pop(), f.pop()
		taken, err := vm.branchTaken(in.Op, x, y)
		if err != nil {
			return false, err
		}
		if taken {
			f.pc = in.Target()
		}
	case abc.OpLookupSwitch:
		idx := f.pop()
		n := -1
		if idx.IsNumeric() {
			n = int(DoubleToInt32(idx.AsNumber()))
		}
		if n >= 0 && n < len(in.Cases)-1 {
			f.pc = in.Cases[n+1]
		} else {
			f.pc = in.Cases[0]
		}
	case abc.OpReturnVoid:
		return vm.ret(Undefined), nil
	case abc.OpReturnValue:
		return vm.ret(f.pop()), nil
	case abc.OpThrow:
		return false, &ThrownError{Value: f.pop()}

	// --- Scope ---
	case abc.OpPushScope, abc.OpPushWith:
		v := f.pop()
		if v.IsNullish() {
			return false, typeErrorf("cannot push %s onto the scope chain", primitiveToString(v))
		}
		if vm.opts.StrictStack && len(f.scope) >= f.maxScope {
			return false, verifyErrorf("%s: scope stack exceeds max_scope_depth at %d", f.method, f.start)
		}
		f.scope = append(f.scope, scopeEntry{value: v, with: in.Op == abc.OpPushWith})
	case abc.OpPopScope:
		if len(f.scope) == 0 {
			return false, verifyErrorf("%s: popscope on an empty scope stack", f.method)
		}
		f.scope[len(f.scope)-1] = scopeEntry{}
		f.scope = f.scope[:len(f.scope)-1]
	case abc.OpGetScopeObject:
		if a[0] >= len(f.scope) {
			return false, verifyErrorf("%s: getscopeobject %d with %d scopes", f.method, a[0], len(f.scope))
		}
		f.push(f.scope[a[0]].value)
	case abc.OpGetGlobalScope:
		f.push(f.globalScope())

	// --- Property access ---
	case abc.OpFindPropStrict, abc.OpFindProperty, abc.OpFindDef:
		n, err := vm.readName(f, a[0])
		if err != nil {
			return false, err
		}
		v, err := vm.findProperty(f, &n, in.Op)
		if err != nil {
			return false, err
		}
		f.push(v)
	case abc.OpGetLex:
		n, err := vm.readName(f, a[0])
		if err != nil {
			return false, err
		}
		obj, err := vm.findProperty(f, &n, abc.OpFindPropStrict)
		if err != nil {
			return false, err
		}
		return false, vm.opGetProperty(f, obj, &n)
	case abc.OpGetProperty:
		n, err := vm.readName(f, a[0])
		if err != nil {
			return false, err
		}
		return false, vm.opGetProperty(f, f.pop(), &n)
	case abc.OpSetProperty, abc.OpInitProperty:
		v := f.pop()
		n, err := vm.readName(f, a[0])
		if err != nil {
			return false, err
		}
		return false, vm.opSetProperty(f, f.pop(), &n, v, in.Op == abc.OpInitProperty)
	case abc.OpDeleteProperty:
		n, err := vm.readName(f, a[0])
		if err != nil {
			return false, err
		}
		ok, err := vm.deleteProperty(f.pop(), &n)
		if err != nil {
			return false, err
		}
		f.push(Bool(ok))
	case abc.OpIn:
		obj, name := f.pop(), f.pop()
		ok, err := vm.hasProperty(obj, name)
		if err != nil {
			return false, err
		}
		f.push(Bool(ok))
	case abc.OpGetSuper:
		n, err := vm.readName(f, a[0])
		if err != nil {
			return false, err
		}
		return false, vm.opGetSuper(f, f.pop(), &n)
	case abc.OpSetSuper:
		v := f.pop()
		n, err := vm.readName(f, a[0])
		if err != nil {
			return false, err
		}
		return false, vm.opSetSuper(f, f.pop(), &n, v)
	case abc.OpGetDescendants:
		if _, err := vm.readName(f, a[0]); err != nil {
			return false, err
		}
		f.pop()
		return false, typeErrorf("the descendants operator requires XML, which is not supported")
	case abc.OpCheckFilter:
		return false, typeErrorf("filter operator applied to %s; XML is not supported", vm.describe(f.pop()))

	// --- Slots ---
	case abc.OpGetSlot:
		v, err := vm.getSlot(f.pop(), a[0])
		if err != nil {
			return false, err
		}
		f.push(v)
	case abc.OpSetSlot:
		v := f.pop()
		return false, vm.setSlot(f.pop(), a[0], v)
	case abc.OpGetGlobalSlot:
		v, err := vm.getSlot(f.globalScope(), a[0])
		if err != nil {
			return false, err
		}
		f.push(v)
	case abc.OpSetGlobalSlot:
		return false, vm.setSlot(f.globalScope(), a[0], f.pop())

	// --- Calls ---
	case abc.OpCall:
		args := f.popN(a[0])
		this := f.pop()
		return false, vm.callValue(f, f.pop(), this, args, returnPush)
	case abc.OpCallProperty, abc.OpCallPropLex, abc.OpCallPropVoid:
		args := f.popN(a[1])
		n, err := vm.readName(f, a[0])
		if err != nil {
			return false, err
		}
		mode := returnPush
		if in.Op == abc.OpCallPropVoid {
			mode = returnDiscard
		}
		return false, vm.callProperty(f, f.pop(), &n, args, mode)
	case abc.OpCallSuper, abc.OpCallSuperVoid:
		args := f.popN(a[1])
		n, err := vm.readName(f, a[0])
		if err != nil {
			return false, err
		}
		mode := returnPush
		if in.Op == abc.OpCallSuperVoid {
			mode = returnDiscard
		}
		return false, vm.callSuper(f, f.pop(), &n, args, mode)
	case abc.OpCallMethod:
		args := f.popN(a[1])
		return false, vm.callDisp(f, f.pop(), uint32(a[0]), args)
	case abc.OpCallStatic:
		if a[0] >= len(p.Methods) {
			return false, verifyErrorf("%s: callstatic %d out of range", f.method, a[0])
		}
		args := f.popN(a[1])
		m := p.Methods[a[0]]
		scope, err := vm.methodScope(m, f)
		if err != nil {
			return false, err
		}
		return false, vm.invoke(f, m, f.pop(), args, scope, returnPush)
	case abc.OpApplyType:
		f.popN(a[0])

	// --- Construction ---
	case abc.OpConstruct:
		args := f.popN(a[0])
		return false, vm.constructValue(f, f.pop(), args, returnPush)
	case abc.OpConstructProp:
		args := f.popN(a[1])
		n, err := vm.readName(f, a[0])
		if err != nil {
			return false, err
		}
		ctor, err := vm.getPropSync(f.pop(), &n)
		if err != nil {
			return false, err
		}
		return false, vm.constructValue(f, ctor, args, returnPush)
	case abc.OpConstructSuper:
		args := f.popN(a[0])
		return false, vm.constructSuper(f, f.pop(), args)
	case abc.OpNewObject:
		return false, vm.newObjectOp(f, a[0])
	case abc.OpNewArray:
		f.push(vm.NewArray(f.popN(a[0])...))
	case abc.OpNewFunction:
		if a[0] >= len(p.Methods) {
			return false, verifyErrorf("%s: newfunction %d out of range", f.method, a[0])
		}
		f.push(vm.newFunction(p.Methods[a[0]], f.scopeValues()))
	case abc.OpNewClass:
		if a[0] >= len(p.Classes) {
			return false, verifyErrorf("%s: newclass %d out of range", f.method, a[0])
		}
		f.pop()
		return false, vm.newClass(f, p.Classes[a[0]])
	case abc.OpNewActivation:
		t := f.method.activation
		if t == nil {
			t = newTraits()
		}
		f.push(vm.newTraitObject(objActivation, t, f.scopeValues()))
	case abc.OpNewCatch:
		if a[0] >= len(f.method.handlers) {
			return false, verifyErrorf("%s: newcatch %d out of range", f.method, a[0])
		}
		c := vm.newTraitObject(objCatch, f.method.handlers[a[0]].traits, nil)
		vm.object(c).slots[0] = f.caught
		f.push(c)

	// --- Enumeration ---
	case abc.OpHasNext:
		idx, obj := f.pop(), f.pop()
		f.push(Int(vm.nextIndex(obj, intOf(idx))))
	case abc.OpHasNext2:
		return false, vm.hasNext2(f, a[0], a[1])
	case abc.OpNextName:
		idx, obj := f.pop(), f.pop()
		f.push(vm.nextName(obj, intOf(idx)))
	case abc.OpNextValue:
		idx, obj := f.pop(), f.pop()
		f.push(vm.nextValue(obj, intOf(idx)))

	// --- Conversion and type tests ---
	case abc.OpConvertS, abc.OpCoerceS, abc.OpConvertI, abc.OpCoerceI, abc.OpConvertU, abc.OpCoerceU,
		abc.OpConvertD, abc.OpCoerceD, abc.OpConvertB, abc.OpCoerceB, abc.OpConvertO, abc.OpCoerceO,
		abc.OpCoerceA, abc.OpEscXElem, abc.OpEscXAttr:
		v, err := vm.convert(in.Op, f.pop())
		if err != nil {
			return false, err
		}
		f.push(v)
	case abc.OpCoerce:
		v, err := vm.coerce(f.pop(), p.resolveType(uint32(a[0])))
		if err != nil {
			return false, err
		}
		f.push(v)
	case abc.OpAsType:
		v := f.pop()
		if !vm.isType(v, p.resolveType(uint32(a[0]))) {
			v = Null
		}
		f.push(v)
	case abc.OpIsType:
		f.push(Bool(vm.isType(f.pop(), p.resolveType(uint32(a[0])))))
	case abc.OpAsTypeLate, abc.OpIsTypeLate:
		t, v := f.pop(), f.pop()
		c, err := vm.typeOperand(t)
		if err != nil {
			return false, err
		}
		ok := vm.isType(v, c)
		switch {
		case in.Op == abc.OpIsTypeLate:
			f.push(Bool(ok))
		case ok:
			f.push(v)
		default:
			f.push(Null)
		}
	case abc.OpInstanceOf:
		t, v := f.pop(), f.pop()
		ok, err := vm.instanceOf(v, t)
		if err != nil {
			return false, err
		}
		f.push(Bool(ok))
	case abc.OpTypeOf:
		f.push(String(vm.typeOf(f.pop())))

	// --- Arithmetic and comparison ---
	case abc.OpNot:
		f.push(Bool(!ToBoolean(f.pop())))
	case abc.OpNegate, abc.OpIncrement, abc.OpDecrement, abc.OpBitNot,
		abc.OpNegateI, abc.OpIncrementI, abc.OpDecrementI:
		v, err := vm.unary(in.Op, f.pop())
		if err != nil {
			return false, err
		}
		f.push(v)
	case abc.OpAdd, abc.OpSubtract, abc.OpMultiply, abc.OpDivide, abc.OpModulo,
		abc.OpLShift, abc.OpRShift, abc.OpURShift, abc.OpBitAnd, abc.OpBitOr, abc.OpBitXor,
		abc.OpAddI, abc.OpSubtractI, abc.OpMultiplyI,
		abc.OpEquals, abc.OpStrictEquals, abc.OpLessThan, abc.OpLessEquals,
		abc.OpGreaterThan, abc.OpGreaterEquals:
		y, x := f.pop(), f.pop()
		v, err := vm.binary(in.Op, x, y)
		if err != nil {
			return false, err
		}
		f.push(v)

	default:
		return false, verifyErrorf("%s: unsupported opcode %s at %d", f.method, in.Op, f.start)
	}
	return false, nil
}

// stackNeed is the number of operands in must find on the stack.
func (vm *VM) stackNeed(in *abc.Instruction) int {
	a := in.Args
	switch in.Op {
	case abc.OpThrow, abc.OpIfTrue, abc.OpIfFalse, abc.OpLookupSwitch, abc.OpPushWith, abc.OpPushScope,
		abc.OpPop, abc.OpDup, abc.OpReturnValue, abc.OpDXNSLate, abc.OpSetLocal, abc.OpSetLocal0,
		abc.OpSetLocal1, abc.OpSetLocal2, abc.OpSetLocal3, abc.OpConvertS, abc.OpConvertI, abc.OpConvertU,
		abc.OpConvertD, abc.OpConvertB, abc.OpConvertO, abc.OpCoerce, abc.OpCoerceA, abc.OpCoerceB,
		abc.OpCoerceI, abc.OpCoerceD, abc.OpCoerceS, abc.OpCoerceU, abc.OpCoerceO, abc.OpAsType,
		abc.OpIsType, abc.OpNegate, abc.OpIncrement, abc.OpDecrement, abc.OpTypeOf, abc.OpNot,
		abc.OpBitNot, abc.OpNegateI, abc.OpIncrementI, abc.OpDecrementI, abc.OpGetSlot,
		abc.OpSetGlobalSlot, abc.OpEscXElem, abc.OpEscXAttr, abc.OpCheckFilter, abc.OpNewClass:
		return 1
	case abc.OpIfEq, abc.OpIfNe, abc.OpIfStrictEq, abc.OpIfStrictNe, abc.OpIfLT, abc.OpIfLE, abc.OpIfGT,
		abc.OpIfGE, abc.OpIfNLT, abc.OpIfNLE, abc.OpIfNGT, abc.OpIfNGE, abc.OpSwap, abc.OpNextName,
		abc.OpHasNext, abc.OpNextValue, abc.OpSetSlot, abc.OpAsTypeLate, abc.OpIsTypeLate,
		abc.OpInstanceOf, abc.OpIn, abc.OpAdd, abc.OpSubtract, abc.OpMultiply, abc.OpDivide,
		abc.OpModulo, abc.OpLShift, abc.OpRShift, abc.OpURShift, abc.OpBitAnd, abc.OpBitOr,
		abc.OpBitXor, abc.OpAddI, abc.OpSubtractI, abc.OpMultiplyI, abc.OpEquals, abc.OpStrictEquals,
		abc.OpLessThan, abc.OpLessEquals, abc.OpGreaterThan, abc.OpGreaterEquals:
		return 2
	case abc.OpFindPropStrict, abc.OpFindProperty, abc.OpFindDef, abc.OpGetLex:
		return vm.rtCount(a[0])
	case abc.OpGetProperty, abc.OpDeleteProperty, abc.OpGetSuper, abc.OpGetDescendants:
		return 1 + vm.rtCount(a[0])
	case abc.OpSetProperty, abc.OpInitProperty, abc.OpSetSuper:
		return 2 + vm.rtCount(a[0])
	case abc.OpCall:
		return a[0] + 2
	case abc.OpConstruct, abc.OpConstructSuper, abc.OpApplyType:
		return a[0] + 1
	case abc.OpCallMethod, abc.OpCallStatic:
		return a[1] + 1
	case abc.OpCallProperty, abc.OpCallPropLex, abc.OpCallPropVoid, abc.OpCallSuper,
		abc.OpCallSuperVoid, abc.OpConstructProp:
		return a[1] + 1 + vm.rtCount(a[0])
	case abc.OpNewObject:
		return 2 * a[0]
	case abc.OpNewArray:
		return a[0]
	}
	return 0
}

// rtCount is the number of runtime name parts multiname idx pops.
func (vm *VM) rtCount(idx int) int {
	if idx <= 0 || idx >= len(vm.program.multinames) {
		return 0
	}
	m := &vm.program.multinames[idx]
	n := 0
	if m.rtNS {
		n++
	}
	if m.rtName {
		n++
	}
	return n
}

// readName materialises multiname idx, popping its runtime name and then
// its runtime namespace.
func (vm *VM) readName(f *frame, idx int) (Name, error) {
	p := vm.program
	if idx <= 0 || idx >= len(p.multinames) {
		return Name{}, verifyErrorf("%s: multiname %d out of range", f.method, idx)
	}
	m := &p.multinames[idx]
	n := m.name
	if m.rtName {
		v := f.pop()
		switch {
		case v.IsNumeric() && v.AsNumber() >= 0 && v.AsNumber() == float64(uint32(v.AsNumber())):
			n.Local = uitoa(uint32(v.AsNumber()))
		default:
			s, err := vm.toString(v)
			if err != nil {
				return Name{}, err
			}
			n.Local = s
		}
		n.index, n.isIndex = arrayIndex(n.Local)
	}
	if m.rtNS {
		v := f.pop()
		if v.Kind() != KindNamespace {
			return Name{}, typeErrorf("runtime namespace must be a Namespace, got %s", v.Kind())
		}
		n.NS = []Namespace{v.AsNamespace()}
	}
	return n, nil
}

// stepLocal implements inclocal, declocal and their int variants.
func (vm *VM) stepLocal(f *frame, op abc.Opcode, r int) error {
	v, err := f.reg(r)
	if err != nil {
		return err
	}
	switch op {
	case abc.OpIncLocal:
		v, err = vm.unary(abc.OpIncrement, v)
	case abc.OpDecLocal:
		v, err = vm.unary(abc.OpDecrement, v)
	case abc.OpIncLocalI:
		v, err = vm.unary(abc.OpIncrementI, v)
	case abc.OpDecLocalI:
		v, err = vm.unary(abc.OpDecrementI, v)
	}
	if err != nil {
		return err
	}
	return f.setReg(r, v)
}

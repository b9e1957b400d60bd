package vm

import "github.com/chazu/avm2/abc"

// ---------------------------------------------------------------------------
// Name resolution
//
// Resolution on an object is, in order: own dynamic property (public names
// only; array elements first for arrays), then traits. Instances search
// their class chain, class objects their static traits, and activation,
// catch and global objects their own trait table. Primitives resolve
// against the traits of their builtin wrapper class for reads and calls;
// writes, deletes and the in operator on a primitive raise ReferenceError.
// Any access on null or undefined raises TypeError.
// ---------------------------------------------------------------------------

// boxClass returns the builtin class whose traits serve a primitive.
func (vm *VM) boxClass(v Value) *Class {
	b := vm.program.builtins
	switch v.kind {
	case KindBoolean:
		return b.boolean
	case KindInt:
		return b.int
	case KindUInt:
		return b.uint
	case KindNumber:
		return b.number
	case KindString:
		return b.string
	case KindNamespace:
		return b.namespace
	}
	return b.object
}

// traitFor resolves n against the trait tables that apply to o.
func (vm *VM) traitFor(o *Object, n *Name) *Binding {
	switch o.kind {
	case objClass:
		return o.class.Static.Lookup(n)
	case objActivation, objCatch, objGlobal:
		return o.traits.Lookup(n)
	case objFunction:
		return vm.program.builtins.function.FindTrait(n)
	}
	if o.class == nil {
		return vm.program.builtins.object.FindTrait(n)
	}
	return o.class.FindTrait(n)
}

func (vm *VM) typeName(o *Object) string {
	if o.kind == objClass {
		return "class " + o.class.String()
	}
	return vm.classOf(o).String()
}

func (vm *VM) liveObject(v Value) (*Object, error) {
	o := vm.object(v)
	if o == nil {
		return nil, typeErrorf("reference to a collected object")
	}
	return o, nil
}

// bindingScope is the scope chain a method found through b runs with.
func (vm *VM) bindingScope(recv Value, o *Object, b *Binding) ([]Value, error) {
	if b.Owner != nil {
		return vm.classScope(b.Owner)
	}
	if o != nil && o.kind == objGlobal {
		return []Value{recv}, nil
	}
	return nil, nil
}

// methodScope is the scope chain for a method called by index.
func (vm *VM) methodScope(m *Method, f *frame) ([]Value, error) {
	if m.owner != nil {
		return vm.classScope(m.owner)
	}
	return []Value{f.globalScope()}, nil
}

// scopeHas reports whether a scope chain entry defines n.
func (vm *VM) scopeHas(v Value, n *Name, with bool) bool {
	o := vm.object(v)
	if o == nil {
		return false
	}
	if vm.traitFor(o, n) != nil {
		return true
	}
	if (with || o.kind == objGlobal) && n.HasPublic() {
		if o.kind == objArray && n.isIndex && int64(n.index) < int64(len(o.elems)) {
			return true
		}
		_, ok := o.getDynamic(n.Local)
		return ok
	}
	return false
}

// findProperty searches the local scope stack top to bottom, then the
// captured scope chain, then the script tables (initialising the defining
// script on first use), then the builtin top level. findpropstrict and
// finddef raise ReferenceError when nothing matches; findproperty returns
// the global object.
func (vm *VM) findProperty(f *frame, n *Name, op abc.Opcode) (Value, error) {
	if op != abc.OpFindDef {
		for i := len(f.scope) - 1; i >= 0; i-- {
			if vm.scopeHas(f.scope[i].value, n, f.scope[i].with) {
				return f.scope[i].value, nil
			}
		}
		for i := len(f.outer) - 1; i >= 0; i-- {
			if vm.scopeHas(f.outer[i], n, false) {
				return f.outer[i], nil
			}
		}
	}
	for _, s := range vm.program.Scripts {
		if s.Traits.Lookup(n) != nil {
			if err := vm.ensureScript(s); err != nil {
				return Undefined, err
			}
			return vm.globals[s.Index], nil
		}
	}
	if vm.program.builtins.toplevel.Lookup(n) != nil {
		return vm.toplevel, nil
	}
	if op == abc.OpFindProperty {
		if g := f.globalScope(); g.IsObject() {
			return g, nil
		}
		return vm.toplevel, nil
	}
	return Undefined, referenceErrorf("%s is not defined", n)
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// getProp resolves n on recv. When the name is bound to a getter, the
// getter and its scope are returned instead of a value.
func (vm *VM) getProp(recv Value, n *Name) (Value, *Method, []Value, error) {
	if recv.IsNullish() {
		return Undefined, nil, nil, typeErrorf("cannot access property %s of %s", n, primitiveToString(recv))
	}
	if !recv.IsObject() {
		c := vm.boxClass(recv)
		b := c.FindTrait(n)
		if b == nil {
			return Undefined, nil, nil, referenceErrorf("property %s not found on %s", n, c)
		}
		return vm.readBinding(recv, nil, b)
	}
	o, err := vm.liveObject(recv)
	if err != nil {
		return Undefined, nil, nil, err
	}
	if n.AnyName {
		return Undefined, nil, nil, nil
	}
	if n.HasPublic() {
		if n.isIndex && o.kind == objArray {
			if v, ok := o.getElement(n.index); ok {
				return v, nil, nil, nil
			}
		}
		if v, ok := o.getDynamic(n.Local); ok {
			return v, nil, nil, nil
		}
	}
	if b := vm.traitFor(o, n); b != nil {
		return vm.readBinding(recv, o, b)
	}
	if !o.sealed {
		return Undefined, nil, nil, nil
	}
	return Undefined, nil, nil, referenceErrorf("property %s not found on %s", n, vm.typeName(o))
}

// readBinding reads b on recv (o is nil for primitives). Methods read as
// closures bound to recv.
func (vm *VM) readBinding(recv Value, o *Object, b *Binding) (Value, *Method, []Value, error) {
	switch b.Kind {
	case BindMethod:
		scope, err := vm.bindingScope(recv, o, b)
		if err != nil {
			return Undefined, nil, nil, err
		}
		return vm.newBoundMethod(b.Method, recv, scope), nil, nil, nil
	case BindAccessor:
		if b.Getter == nil {
			return Undefined, nil, nil, referenceErrorf("property %s is write-only", b.Name.Local)
		}
		scope, err := vm.bindingScope(recv, o, b)
		if err != nil {
			return Undefined, nil, nil, err
		}
		return Undefined, b.Getter, scope, nil
	}
	if o == nil {
		return Undefined, nil, nil, nil
	}
	v, err := vm.classSlot(o, b)
	return v, nil, nil, err
}

func (vm *VM) opGetProperty(f *frame, recv Value, n *Name) error {
	v, getter, scope, err := vm.getProp(recv, n)
	if err != nil {
		return err
	}
	if getter != nil {
		return vm.invoke(f, getter, recv, nil, scope, returnPush)
	}
	f.push(v)
	return nil
}

func (vm *VM) getPropSync(recv Value, n *Name) (Value, error) {
	v, getter, scope, err := vm.getProp(recv, n)
	if err != nil || getter == nil {
		return v, err
	}
	return vm.callMethodSync(getter, recv, nil, scope)
}

func (vm *VM) readBindingSync(recv Value, o *Object, b *Binding) (Value, error) {
	v, getter, scope, err := vm.readBinding(recv, o, b)
	if err != nil || getter == nil {
		return v, err
	}
	return vm.callMethodSync(getter, recv, nil, scope)
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// setProp stores v under n on recv, returning the setter to run when the
// name is bound to an accessor. init permits writes to const slots.
func (vm *VM) setProp(recv Value, n *Name, v Value, init bool) (*Method, []Value, error) {
	if recv.IsNullish() {
		return nil, nil, typeErrorf("cannot set property %s of %s", n, primitiveToString(recv))
	}
	if !recv.IsObject() {
		return nil, nil, referenceErrorf("cannot create property %s on %s", n, recv.Kind())
	}
	o, err := vm.liveObject(recv)
	if err != nil {
		return nil, nil, err
	}
	if n.HasPublic() {
		if n.isIndex && o.kind == objArray {
			o.setElement(n.index, v)
			return nil, nil, nil
		}
		if _, ok := o.getDynamic(n.Local); ok {
			o.setDynamic(n.Local, v)
			return nil, nil, nil
		}
	}
	if b := vm.traitFor(o, n); b != nil {
		return vm.writeBinding(recv, o, b, v, init)
	}
	if o.sealed || n.AnyName {
		return nil, nil, referenceErrorf("cannot create property %s on %s", n, vm.typeName(o))
	}
	o.setDynamic(n.Local, v)
	return nil, nil, nil
}

func (vm *VM) writeBinding(recv Value, o *Object, b *Binding, v Value, init bool) (*Method, []Value, error) {
	switch b.Kind {
	case BindMethod:
		return nil, nil, referenceErrorf("cannot assign to method %s", b.Name.Local)
	case BindAccessor:
		if b.Setter == nil {
			return nil, nil, referenceErrorf("property %s is read-only", b.Name.Local)
		}
		scope, err := vm.bindingScope(recv, o, b)
		return b.Setter, scope, err
	case BindConst:
		if !init {
			return nil, nil, referenceErrorf("cannot assign to constant %s", b.Name.Local)
		}
	}
	cv, err := vm.coerce(v, b.typ)
	if err != nil {
		return nil, nil, err
	}
	o.slots[b.Slot] = cv
	if b.class >= 0 {
		o.fill(b.Slot)
	}
	return nil, nil, nil
}

// classSlot reads slot b of o. A class trait slot that nothing has written
// yet holds null and is filled with the materialised class object.
func (vm *VM) classSlot(o *Object, b *Binding) (Value, error) {
	if b.class < 0 || o.filled[b.Slot] || b.Slot >= len(o.slots) {
		return o.slot(b.Slot), nil
	}
	co, err := vm.classObject(vm.program.Classes[b.class])
	if err != nil {
		return Undefined, err
	}
	// Materialising may have run the defining script, whose newclass
	// already stored the slot.
	if !o.filled[b.Slot] {
		o.slots[b.Slot] = co
		o.fill(b.Slot)
	}
	return o.slots[b.Slot], nil
}

func (vm *VM) opSetProperty(f *frame, recv Value, n *Name, v Value, init bool) error {
	setter, scope, err := vm.setProp(recv, n, v, init)
	if err != nil || setter == nil {
		return err
	}
	return vm.invoke(f, setter, recv, []Value{v}, scope, returnDiscard)
}

func (vm *VM) setPropSync(recv Value, n *Name, v Value) error {
	setter, scope, err := vm.setProp(recv, n, v, false)
	if err != nil || setter == nil {
		return err
	}
	_, err = vm.callMethodSync(setter, recv, []Value{v}, scope)
	return err
}

func (vm *VM) deleteProperty(recv Value, n *Name) (bool, error) {
	if recv.IsNullish() {
		return false, typeErrorf("cannot delete property %s of %s", n, primitiveToString(recv))
	}
	if !recv.IsObject() {
		return false, referenceErrorf("cannot delete property %s of %s", n, recv.Kind())
	}
	o, err := vm.liveObject(recv)
	if err != nil {
		return false, err
	}
	if n.HasPublic() {
		if n.isIndex && o.kind == objArray && int64(n.index) < int64(len(o.elems)) {
			o.elems[n.index] = Undefined
			return true, nil
		}
		if o.deleteDynamic(n.Local) {
			return true, nil
		}
	}
	return vm.traitFor(o, n) == nil, nil
}

// hasProperty implements the in operator.
func (vm *VM) hasProperty(recv, name Value) (bool, error) {
	if recv.IsNullish() {
		return false, typeErrorf("cannot use 'in' on %s", primitiveToString(recv))
	}
	if !recv.IsObject() {
		return false, referenceErrorf("cannot use 'in' on %s", recv.Kind())
	}
	o, err := vm.liveObject(recv)
	if err != nil {
		return false, err
	}
	key, err := vm.propertyKey(name)
	if err != nil {
		return false, err
	}
	n := NameOf(key)
	if n.isIndex && o.kind == objArray && int64(n.index) < int64(len(o.elems)) {
		return true, nil
	}
	if _, ok := o.getDynamic(key); ok {
		return true, nil
	}
	return vm.traitFor(o, &n) != nil, nil
}

// propertyKey converts a value used as a property name to a string.
func (vm *VM) propertyKey(v Value) (string, error) {
	if v.IsNumeric() {
		f := v.AsNumber()
		if f >= 0 && f == float64(uint32(f)) {
			return uitoa(uint32(f)), nil
		}
	}
	return vm.toString(v)
}

// ---------------------------------------------------------------------------
// Super access
// ---------------------------------------------------------------------------

func (vm *VM) superOf(f *frame) (*Class, error) {
	owner := f.method.owner
	if owner == nil || owner.Super == nil {
		return nil, verifyErrorf("%s has no super class", f.method)
	}
	return owner.Super, nil
}

func (vm *VM) superBinding(f *frame, recv Value, n *Name) (*Object, *Binding, error) {
	sc, err := vm.superOf(f)
	if err != nil {
		return nil, nil, err
	}
	o, err := vm.liveObject(recv)
	if err != nil {
		return nil, nil, err
	}
	b := sc.FindTrait(n)
	if b == nil {
		return nil, nil, referenceErrorf("property %s not found on super class %s", n, sc)
	}
	return o, b, nil
}

func (vm *VM) opGetSuper(f *frame, recv Value, n *Name) error {
	o, b, err := vm.superBinding(f, recv, n)
	if err != nil {
		return err
	}
	v, getter, scope, err := vm.readBinding(recv, o, b)
	if err != nil {
		return err
	}
	if getter != nil {
		return vm.invoke(f, getter, recv, nil, scope, returnPush)
	}
	f.push(v)
	return nil
}

func (vm *VM) opSetSuper(f *frame, recv Value, n *Name, v Value) error {
	o, b, err := vm.superBinding(f, recv, n)
	if err != nil {
		return err
	}
	setter, scope, err := vm.writeBinding(recv, o, b, v, false)
	if err != nil || setter == nil {
		return err
	}
	return vm.invoke(f, setter, recv, []Value{v}, scope, returnDiscard)
}

func (vm *VM) callSuper(f *frame, recv Value, n *Name, args []Value, mode returnMode) error {
	o, b, err := vm.superBinding(f, recv, n)
	if err != nil {
		return err
	}
	return vm.callBinding(f, recv, o, b, args, mode)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// callProperty calls the property n of recv: a dynamic function value
// first, then a method trait found along the class chain.
func (vm *VM) callProperty(f *frame, recv Value, n *Name, args []Value, mode returnMode) error {
	if recv.IsNullish() {
		return typeErrorf("cannot call %s on %s", n, primitiveToString(recv))
	}
	if !recv.IsObject() {
		c := vm.boxClass(recv)
		b := c.FindTrait(n)
		if b == nil {
			return referenceErrorf("%s is not a method of %s", n, c)
		}
		return vm.callBinding(f, recv, nil, b, args, mode)
	}
	o, err := vm.liveObject(recv)
	if err != nil {
		return err
	}
	if n.HasPublic() {
		if n.isIndex && o.kind == objArray {
			if v, ok := o.getElement(n.index); ok {
				return vm.callValue(f, v, recv, args, mode)
			}
		}
		if v, ok := o.getDynamic(n.Local); ok {
			return vm.callValue(f, v, recv, args, mode)
		}
	}
	if b := vm.traitFor(o, n); b != nil {
		return vm.callBinding(f, recv, o, b, args, mode)
	}
	if !o.sealed {
		return typeErrorf("%s is not a function", n)
	}
	return referenceErrorf("%s is not defined on %s", n, vm.typeName(o))
}

func (vm *VM) callBinding(f *frame, recv Value, o *Object, b *Binding, args []Value, mode returnMode) error {
	if b.Kind == BindMethod {
		scope, err := vm.bindingScope(recv, o, b)
		if err != nil {
			return err
		}
		return vm.invoke(f, b.Method, recv, args, scope, mode)
	}
	fn, err := vm.readBindingSync(recv, o, b)
	if err != nil {
		return err
	}
	return vm.callValue(f, fn, recv, args, mode)
}

// callBindingSync runs b to completion. A non-function slot or getter
// called without arguments yields its value.
func (vm *VM) callBindingSync(recv Value, o *Object, b *Binding, args []Value) (Value, error) {
	if b.Kind == BindMethod {
		scope, err := vm.bindingScope(recv, o, b)
		if err != nil {
			return Undefined, err
		}
		return vm.callMethodSync(b.Method, recv, args, scope)
	}
	fn, err := vm.readBindingSync(recv, o, b)
	if err != nil {
		return Undefined, err
	}
	if len(args) == 0 && !vm.callable(fn) {
		return fn, nil
	}
	return vm.callSync(fn, recv, args)
}

// callDisp implements callmethod: the most derived method with the given
// dispatch id.
func (vm *VM) callDisp(f *frame, recv Value, disp uint32, args []Value) error {
	o := vm.object(recv)
	if o == nil {
		return typeErrorf("callmethod on %s", vm.describe(recv))
	}
	for c := vm.classOf(o); c != nil; c = c.Super {
		for _, b := range c.Instance.Bindings() {
			if b.Kind == BindMethod && b.disp == disp {
				return vm.callBinding(f, recv, o, b, args, returnPush)
			}
		}
	}
	return referenceErrorf("no method with dispatch id %d on %s", disp, vm.typeName(o))
}

func (vm *VM) callable(v Value) bool {
	o := vm.object(v)
	return o != nil && (o.kind == objFunction || o.kind == objClass)
}

// callValue calls a function or class object. Unbound closures called
// with a null or undefined receiver run with their outermost scope as
// this.
func (vm *VM) callValue(f *frame, fn, this Value, args []Value, mode returnMode) error {
	if o := vm.object(fn); o != nil {
		switch o.kind {
		case objFunction:
			return vm.invoke(f, o.fn.method, closureThis(o, this), args, o.scope, mode)
		case objClass:
			v, err := vm.callClass(o.class, args)
			if err != nil {
				return err
			}
			vm.deliver(f, v, v, mode)
			return nil
		}
	}
	return typeErrorf("%s is not a function", vm.describe(fn))
}

func (vm *VM) callSync(fn, this Value, args []Value) (Value, error) {
	if o := vm.object(fn); o != nil {
		switch o.kind {
		case objFunction:
			return vm.callMethodSync(o.fn.method, closureThis(o, this), args, o.scope)
		case objClass:
			return vm.callClass(o.class, args)
		}
	}
	return Undefined, typeErrorf("%s is not a function", vm.describe(fn))
}

func closureThis(o *Object, this Value) Value {
	if o.fn.bound {
		return o.fn.this
	}
	if this.IsNullish() && len(o.scope) > 0 {
		return o.scope[0]
	}
	return this
}

// callClass performs the conversion a class performs when called as a
// function; user classes cast their single argument.
func (vm *VM) callClass(c *Class, args []Value) (Value, error) {
	if c.call != nil {
		return vm.callNative(c.call, Undefined, args)
	}
	if len(args) != 1 {
		return Undefined, argumentErrorf("conversion to %s expects 1 argument, got %d", c, len(args))
	}
	return vm.coerce(args[0], c)
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func receiverMode(mode returnMode) returnMode {
	if mode == returnPush {
		return returnReceiver
	}
	return mode
}

func (vm *VM) constructValue(f *frame, ctor Value, args []Value, mode returnMode) error {
	if o := vm.object(ctor); o != nil {
		switch o.kind {
		case objClass:
			return vm.construct(f, o.class, args, mode)
		case objFunction:
			return vm.invoke(f, o.fn.method, vm.NewObject(), args, o.scope, receiverMode(mode))
		}
	}
	return typeErrorf("%s is not a constructor", vm.describe(ctor))
}

func (vm *VM) construct(f *frame, c *Class, args []Value, mode returnMode) error {
	if c.Interface {
		return typeErrorf("cannot instantiate interface %s", c)
	}
	if c.factory != nil {
		v, err := vm.callNative(c.factory, Undefined, args)
		if err != nil {
			return err
		}
		vm.deliver(f, v, v, mode)
		return nil
	}
	scope, err := vm.classScope(c)
	if err != nil {
		return err
	}
	return vm.invoke(f, c.Init, vm.newInstance(c), args, scope, receiverMode(mode))
}

func (vm *VM) constructSync(c *Class, args []Value) (Value, error) {
	if c.Interface {
		return Undefined, typeErrorf("cannot instantiate interface %s", c)
	}
	if c.factory != nil {
		return vm.callNative(c.factory, Undefined, args)
	}
	scope, err := vm.classScope(c)
	if err != nil {
		return Undefined, err
	}
	obj := vm.newInstance(c)
	if _, err := vm.callMethodSync(c.Init, obj, args, scope); err != nil {
		return Undefined, err
	}
	return obj, nil
}

// constructSuper runs the super class's instance initializer on recv.
func (vm *VM) constructSuper(f *frame, recv Value, args []Value) error {
	owner := f.method.owner
	if owner == nil {
		return verifyErrorf("%s: constructsuper outside an instance initializer", f.method)
	}
	sc := owner.Super
	if sc == nil {
		return nil
	}
	scope, err := vm.classScope(sc)
	if err != nil {
		return err
	}
	return vm.invoke(f, sc.Init, recv, args, scope, returnDiscard)
}

// newClass implements newclass: the class object captures the current
// scope chain and its static initializer runs before it is pushed.
func (vm *VM) newClass(f *frame, c *Class) error {
	if v, ok := vm.classObjs[c]; ok {
		f.push(v)
		return nil
	}
	scope := f.scopeValues()
	co := vm.newClassObject(c, scope)
	vm.classObjs[c] = co
	log.Debugf("newclass %s", c)
	return vm.invoke(f, c.StaticInit, co, nil, append(scope[:len(scope):len(scope)], co), returnReceiver)
}

func (vm *VM) newObjectOp(f *frame, argc int) error {
	kv := f.popN(2 * argc)
	obj := vm.NewObject()
	o := vm.object(obj)
	for i := 0; i < len(kv); i += 2 {
		key, err := vm.propertyKey(kv[i])
		if err != nil {
			return err
		}
		o.setDynamic(key, kv[i+1])
	}
	f.push(obj)
	return nil
}

// ---------------------------------------------------------------------------
// Slots
// ---------------------------------------------------------------------------

func (vm *VM) slotObject(v Value, idx int) (*Object, int, error) {
	if v.IsNullish() {
		return nil, 0, typeErrorf("cannot access slot %d of %s", idx, primitiveToString(v))
	}
	o := vm.object(v)
	if o == nil {
		return nil, 0, typeErrorf("%s has no slots", vm.describe(v))
	}
	i := idx - 1
	if i < 0 || i >= len(o.slots) {
		return nil, 0, verifyErrorf("slot %d out of range (%d slots)", idx, len(o.slots))
	}
	return o, i, nil
}

// slotBinding finds the trait that declares slot i of o.
func (vm *VM) slotBinding(o *Object, i int) *Binding {
	if o.traits != nil {
		return o.traits.slotBinding(i)
	}
	for c := o.class; c != nil; c = c.Super {
		if b := c.Instance.slotBinding(i); b != nil {
			return b
		}
	}
	return nil
}

func (vm *VM) getSlot(v Value, idx int) (Value, error) {
	o, i, err := vm.slotObject(v, idx)
	if err != nil {
		return Undefined, err
	}
	if b := vm.slotBinding(o, i); b != nil {
		return vm.classSlot(o, b)
	}
	return o.slots[i], nil
}

func (vm *VM) setSlot(v Value, idx int, val Value) error {
	o, i, err := vm.slotObject(v, idx)
	if err != nil {
		return err
	}
	b := vm.slotBinding(o, i)
	if b != nil {
		if val, err = vm.coerce(val, b.typ); err != nil {
			return err
		}
	}
	o.slots[i] = val
	if b != nil && b.class >= 0 {
		o.fill(i)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Enumeration
//
// Index 0 starts an enumeration; positions 1..n cover array elements and
// then dynamic properties in insertion order.
// ---------------------------------------------------------------------------

func intOf(v Value) int32 {
	if v.IsNumeric() {
		return DoubleToInt32(v.AsNumber())
	}
	return 0
}

func (vm *VM) nextIndex(obj Value, i int32) int32 {
	o := vm.object(obj)
	if o == nil || i < 0 {
		return 0
	}
	if int(i) < o.enumerableCount() {
		return i + 1
	}
	return 0
}

func (vm *VM) nextName(obj Value, i int32) Value {
	o := vm.object(obj)
	if o == nil || i <= 0 {
		return Undefined
	}
	pos := int(i) - 1
	if pos < len(o.elems) {
		return String(uitoa(uint32(pos)))
	}
	pos -= len(o.elems)
	if o.dyn != nil && pos < len(o.dyn.keys) {
		return String(o.dyn.keys[pos])
	}
	return Undefined
}

func (vm *VM) nextValue(obj Value, i int32) Value {
	o := vm.object(obj)
	if o == nil || i <= 0 {
		return Undefined
	}
	pos := int(i) - 1
	if pos < len(o.elems) {
		return o.elems[pos]
	}
	pos -= len(o.elems)
	if o.dyn != nil && pos < len(o.dyn.vals) {
		return o.dyn.vals[pos]
	}
	return Undefined
}

// hasNext2 advances the enumeration held in two registers; when it ends
// the object register is set to null.
func (vm *VM) hasNext2(f *frame, objReg, idxReg int) error {
	obj, err := f.reg(objReg)
	if err != nil {
		return err
	}
	idx, err := f.reg(idxReg)
	if err != nil {
		return err
	}
	next := vm.nextIndex(obj, intOf(idx))
	if next == 0 {
		f.regs[objReg] = Null
		f.regs[idxReg] = Int(0)
		f.push(False)
		return nil
	}
	f.regs[idxReg] = Int(next)
	f.push(True)
	return nil
}

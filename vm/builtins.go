package vm

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/avm2/abc"
)

// ---------------------------------------------------------------------------
// Builtin classes
//
// Builtin classes are shared by every VM of a Program. Their methods are
// NativeFuncs; their instance traits are prototype-style, so byte code may
// redefine them in subclasses without an override attribute.
// ---------------------------------------------------------------------------

type builtins struct {
	all []*Class

	object    *Class
	function  *Class
	class     *Class
	array     *Class
	string    *Class
	number    *Class
	int       *Class
	uint      *Class
	boolean   *Class
	namespace *Class
	math      *Class

	error          *Class
	typeError      *Class
	referenceError *Class
	argumentError  *Class
	rangeError     *Class
	verifyError    *Class
	linkError      *Class

	// toplevel holds the global names every script can see: the builtin
	// classes and a few functions and constants.
	toplevel *Traits
}

// Instance slots of Error and its subclasses.
const (
	errorMessageSlot = 0
	errorNameSlot    = 1
)

func newBuiltins(p *Program) *builtins {
	b := &builtins{toplevel: newTraits()}

	b.object = b.define(p, "Object", nil, objPlain)
	b.object.Sealed = false
	b.function = b.define(p, "Function", b.object, objFunction)
	b.class = b.define(p, "Class", b.object, objClass)
	b.array = b.define(p, "Array", b.object, objArray)
	b.array.Sealed = false
	b.string = b.defineFinal(p, "String")
	b.number = b.defineFinal(p, "Number")
	b.int = b.defineFinal(p, "int")
	b.uint = b.defineFinal(p, "uint")
	b.boolean = b.defineFinal(p, "Boolean")
	b.namespace = b.defineFinal(p, "Namespace")
	b.math = b.defineFinal(p, "Math")

	b.error = b.define(p, "Error", b.object, objPlain)
	b.error.Sealed = false
	// Subclasses copy the slot count at definition time.
	b.error.addSlot("message", String(""))
	b.error.addSlot("name", String("Error"))
	b.typeError = b.define(p, "TypeError", b.error, objPlain)
	b.referenceError = b.define(p, "ReferenceError", b.error, objPlain)
	b.argumentError = b.define(p, "ArgumentError", b.error, objPlain)
	b.rangeError = b.define(p, "RangeError", b.error, objPlain)
	b.verifyError = b.define(p, "VerifyError", b.error, objPlain)
	b.linkError = b.define(p, "LinkError", b.error, objPlain)

	b.registerObjectPrimitives()
	b.registerArrayPrimitives()
	b.registerStringPrimitives()
	b.registerNumberPrimitives()
	b.registerBooleanPrimitives()
	b.registerMathPrimitives()
	b.registerErrorPrimitives()
	b.registerToplevel()
	return b
}

func (b *builtins) define(p *Program, name string, super *Class, layout objectKind) *Class {
	c := &Class{
		Name:     PublicQName(name),
		Index:    -1,
		Super:    super,
		Sealed:   true,
		Instance: newTraits(),
		Static:   newTraits(),
		program:  p,
		layout:   layout,
		builtin:  true,
	}
	if super != nil {
		c.slotCount = super.slotCount
	}
	c.Init = c.nativeMethod(name, nativeNoop)
	c.StaticInit = c.nativeMethod(name+"$cinit", nativeNoop)
	b.all = append(b.all, c)
	return c
}

func (b *builtins) defineFinal(p *Program, name string) *Class {
	c := b.define(p, name, b.object, objPlain)
	c.Final = true
	return c
}

func nativeNoop(vm *VM, this Value, args []Value) (Value, error) {
	return Undefined, nil
}

func (c *Class) nativeMethod(name string, fn NativeFunc) *Method {
	return &Method{Index: -1, Name: name, program: c.program, owner: c, native: fn}
}

// addMethod defines an instance method.
func (c *Class) addMethod(name string, fn NativeFunc) {
	c.Instance.add(&Binding{
		Name: PublicQName(name), Kind: BindMethod, Owner: c, class: -1, proto: true,
		Method: c.nativeMethod(c.Name.Dotted()+"."+name, fn),
	})
}

// addGetter defines an instance accessor; set may be nil.
func (c *Class) addGetter(name string, get, set NativeFunc) {
	bd := &Binding{Name: PublicQName(name), Kind: BindAccessor, Owner: c, class: -1, proto: true}
	bd.Getter = c.nativeMethod(c.Name.Dotted()+"."+name+"$get", get)
	if set != nil {
		bd.Setter = c.nativeMethod(c.Name.Dotted()+"."+name+"$set", set)
	}
	c.Instance.add(bd)
}

// addSlot defines an instance slot after the inherited ones.
func (c *Class) addSlot(name string, def Value) int {
	slot := c.slotCount
	c.Instance.add(&Binding{Name: PublicQName(name), Kind: BindSlot, Slot: slot, Owner: c, class: -1, def: def, proto: true})
	c.slotCount++
	return slot
}

func (c *Class) addStaticMethod(name string, fn NativeFunc) {
	c.Static.add(&Binding{
		Name: PublicQName(name), Kind: BindMethod, Owner: c, class: -1,
		Method: c.nativeMethod(c.Name.Dotted()+"."+name, fn),
	})
}

func (c *Class) addStaticConst(name string, v Value) {
	c.Static.add(&Binding{Name: PublicQName(name), Kind: BindConst, Slot: c.Static.SlotCount(), Owner: c, class: -1, def: v})
}

// arg returns argument i or undefined.
func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// ---------------------------------------------------------------------------
// Object, Function, Class and Namespace
// ---------------------------------------------------------------------------

func (b *builtins) registerObjectPrimitives() {
	c := b.object
	c.call = func(vm *VM, this Value, args []Value) (Value, error) {
		if v := arg(args, 0); !v.IsNullish() {
			return v, nil
		}
		return vm.NewObject(), nil
	}

	// toString - "[object ClassName]"
	c.addMethod("toString", func(vm *VM, this Value, args []Value) (Value, error) {
		o := vm.object(this)
		if o == nil {
			return String("[object " + vm.boxClass(this).Name.Local + "]"), nil
		}
		return String("[object " + vm.classOf(o).Name.Local + "]"), nil
	})

	// valueOf - the receiver itself
	c.addMethod("valueOf", func(vm *VM, this Value, args []Value) (Value, error) {
		return this, nil
	})

	// hasOwnProperty - own dynamic properties, elements and traits
	c.addMethod("hasOwnProperty", func(vm *VM, this Value, args []Value) (Value, error) {
		if !this.IsObject() {
			key, err := vm.propertyKey(arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			n := NameOf(key)
			return Bool(vm.boxClass(this).FindTrait(&n) != nil), nil
		}
		ok, err := vm.hasProperty(this, arg(args, 0))
		return Bool(ok), err
	})

	// propertyIsEnumerable - dynamic properties and elements only
	c.addMethod("propertyIsEnumerable", func(vm *VM, this Value, args []Value) (Value, error) {
		o := vm.object(this)
		if o == nil {
			return False, nil
		}
		key, err := vm.propertyKey(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		if idx, ok := arrayIndex(key); ok && o.kind == objArray && int64(idx) < int64(len(o.elems)) {
			return True, nil
		}
		_, ok := o.getDynamic(key)
		return Bool(ok), nil
	})

	fn := b.function
	fn.factory = func(vm *VM, this Value, args []Value) (Value, error) {
		return Undefined, typeErrorf("the Function constructor is not supported")
	}
	fn.call = fn.factory

	// call - invoke with an explicit receiver
	fn.addMethod("call", func(vm *VM, this Value, args []Value) (Value, error) {
		var rest []Value
		if len(args) > 1 {
			rest = append(rest, args[1:]...)
		}
		return vm.callSync(this, arg(args, 0), rest)
	})

	// apply - invoke with an explicit receiver and an argument array
	fn.addMethod("apply", func(vm *VM, this Value, args []Value) (Value, error) {
		var rest []Value
		if a := arg(args, 1); !a.IsNullish() {
			o := vm.object(a)
			if o == nil || o.kind != objArray {
				return Undefined, typeErrorf("apply expects an Array, got %s", vm.describe(a))
			}
			rest = append(rest, o.elems...)
		}
		return vm.callSync(this, arg(args, 0), rest)
	})

	// length - declared parameter count
	fn.addGetter("length", func(vm *VM, this Value, args []Value) (Value, error) {
		if o := vm.object(this); o != nil && o.fn != nil {
			return Int(int32(o.fn.method.ParamCount())), nil
		}
		return Int(0), nil
	}, nil)

	fn.addMethod("toString", func(vm *VM, this Value, args []Value) (Value, error) {
		return String("function Function() {}"), nil
	})

	cls := b.class
	cls.factory = func(vm *VM, this Value, args []Value) (Value, error) {
		return Undefined, typeErrorf("Class is not constructible")
	}
	cls.call = cls.factory

	ns := b.namespace
	ns.primitive = func(v Value) bool { return v.kind == KindNamespace }
	ns.factory = func(vm *VM, this Value, args []Value) (Value, error) {
		uri := ""
		if len(args) == 0 {
			return NamespaceValue(PublicNamespace), nil
		}
		if v := args[len(args)-1]; !v.IsNullish() {
			if v.kind == KindNamespace {
				return v, nil
			}
			s, err := vm.toString(v)
			if err != nil {
				return Undefined, err
			}
			uri = s
		}
		return NamespaceValue(Namespace{Kind: abc.NamespaceKindPackage, URI: uri}), nil
	}
	ns.call = ns.factory

	// uri - the namespace URI
	ns.addGetter("uri", func(vm *VM, this Value, args []Value) (Value, error) {
		if this.kind != KindNamespace {
			return Undefined, typeErrorf("uri getter called on %s", vm.describe(this))
		}
		return String(this.AsNamespace().URI), nil
	}, nil)

	ns.addMethod("toString", func(vm *VM, this Value, args []Value) (Value, error) {
		return String(primitiveToString(this)), nil
	})
}

// ---------------------------------------------------------------------------
// Error classes
// ---------------------------------------------------------------------------

func (b *builtins) registerErrorPrimitives() {
	e := b.error

	// toString - "Name: message"
	e.addMethod("toString", func(vm *VM, this Value, args []Value) (Value, error) {
		return String(vm.describe(this)), nil
	})

	// getStackTrace - stack traces are reported to the host instead
	e.addMethod("getStackTrace", func(vm *VM, this Value, args []Value) (Value, error) {
		return Null, nil
	})

	for _, c := range []*Class{b.error, b.typeError, b.referenceError, b.argumentError, b.rangeError, b.verifyError, b.linkError} {
		c := c
		name := c.Name.Local
		c.Init = c.nativeMethod(name, func(vm *VM, this Value, args []Value) (Value, error) {
			o := vm.object(this)
			if o == nil {
				return Undefined, nil
			}
			if m := arg(args, 0); !m.IsUndefined() {
				s, err := vm.toString(m)
				if err != nil {
					return Undefined, err
				}
				o.slots[errorMessageSlot] = String(s)
			}
			if primitiveToString(o.slot(errorNameSlot)) == "Error" {
				o.slots[errorNameSlot] = String(name)
			}
			return Undefined, nil
		})
		c.call = func(vm *VM, this Value, args []Value) (Value, error) {
			return vm.constructSync(c, args)
		}
	}
}

// newError allocates an instance of the error class c without running
// script code.
func (vm *VM) newError(c *Class, msg string) Value {
	v := vm.newInstance(c)
	o := vm.object(v)
	o.slots[errorMessageSlot] = String(msg)
	o.slots[errorNameSlot] = String(c.Name.Local)
	return v
}

// ---------------------------------------------------------------------------
// Top level
// ---------------------------------------------------------------------------

func (b *builtins) registerToplevel() {
	t := b.toplevel
	for _, c := range b.all {
		t.add(&Binding{Name: c.Name, Kind: BindConst, Slot: t.SlotCount(), class: -1, def: Null})
	}
	constant := func(name string, v Value) {
		t.add(&Binding{Name: PublicQName(name), Kind: BindConst, Slot: t.SlotCount(), class: -1, def: v})
	}
	constant("NaN", NaN)
	constant("Infinity", Number(math.Inf(1)))
	constant("undefined", Undefined)

	function := func(name string, fn NativeFunc) {
		t.add(&Binding{Name: PublicQName(name), Kind: BindMethod, class: -1,
			Method: &Method{Index: -1, Name: name, program: b.object.program, native: fn}})
	}

	// trace - print the arguments separated by spaces
	function("trace", func(vm *VM, this Value, args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			s, err := vm.toString(a)
			if err != nil {
				return Undefined, err
			}
			parts[i] = s
		}
		line := strings.Join(parts, " ")
		if vm.opts.Trace != nil {
			fmt.Fprintln(vm.opts.Trace, line)
		} else {
			log.Infof("trace: %s", line)
		}
		return Undefined, nil
	})

	function("isNaN", func(vm *VM, this Value, args []Value) (Value, error) {
		n, err := vm.toNumber(arg(args, 0))
		return Bool(math.IsNaN(n)), err
	})

	function("isFinite", func(vm *VM, this Value, args []Value) (Value, error) {
		n, err := vm.toNumber(arg(args, 0))
		return Bool(!math.IsNaN(n) && !math.IsInf(n, 0)), err
	})

	function("parseInt", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.toString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		radix := 0
		if r := arg(args, 1); !r.IsUndefined() {
			n, err := vm.toNumber(r)
			if err != nil {
				return Undefined, err
			}
			radix = int(DoubleToInt32(n))
		}
		return numberResult(parseIntPrefix(s, radix)), nil
	})

	function("parseFloat", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.toString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		return numberResult(parseFloatPrefix(s)), nil
	})
}

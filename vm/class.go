package vm

import (
	"fmt"

	"github.com/chazu/avm2/abc"
)

// ---------------------------------------------------------------------------
// Class: an assembled runtime class
// ---------------------------------------------------------------------------

// Class is one linked class: the instance side (instance traits and the
// instance initializer) and the static side (static traits and the static
// initializer). Classes are built once per Program and never modified
// afterwards; per-VM state such as static slot values lives on the class
// object.
type Class struct {
	Name       QName
	Index      int // position in the file; -1 for builtin classes
	Super      *Class
	Interfaces []*Class

	Sealed    bool
	Final     bool
	Interface bool

	Instance   *Traits // own instance traits
	Static     *Traits
	Init       *Method // instance initializer
	StaticInit *Method

	protectedNS *Namespace
	slotCount   int     // instance slots including inherited ones
	script      *Script // script whose traits declare the class
	program     *Program
	layout      objectKind
	builtin     bool

	// conversion performed when the class is called as a function
	call NativeFunc
	// factory replaces allocation for value-like builtins (String, int, ...)
	factory NativeFunc
	// primitive is the value kind boxed by this class, for is/as checks
	primitive func(v Value) bool
}

func (c *Class) String() string {
	return c.Name.Dotted()
}

// IsSubclassOf reports whether c is other or inherits from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == other {
			return true
		}
	}
	return false
}

// Implements reports whether c or one of its super classes lists iface,
// directly or through an inherited interface.
func (c *Class) Implements(iface *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		for _, i := range cur.Interfaces {
			if i == iface || i.Implements(iface) {
				return true
			}
		}
	}
	return false
}

// SlotCount returns the number of instance slots, inherited ones included.
func (c *Class) SlotCount() int {
	return c.slotCount
}

// ---------------------------------------------------------------------------
// Trait lookup along the super chain
// ---------------------------------------------------------------------------

// FindTrait resolves n against the instance traits of c and then each super
// class in turn. When the walk moves up one level, a name that includes the
// current class's protected namespace also matches the super class's
// protected namespace.
func (c *Class) FindTrait(n *Name) *Binding {
	for cur := c; cur != nil; cur = cur.Super {
		if b := cur.Instance.Lookup(n); b != nil {
			return b
		}
		if cur.Super != nil {
			n = aliasProtected(n, cur.protectedNS, cur.Super.protectedNS)
		}
	}
	return nil
}

// findTraitQName is FindTrait for an exact qualified name.
func (c *Class) findTraitQName(q QName) *Binding {
	n := Name{NS: []Namespace{q.NS}, Local: q.Local}
	return c.FindTrait(&n)
}

// aliasProtected returns n extended with to when it includes from.
func aliasProtected(n *Name, from, to *Namespace) *Name {
	if from == nil || to == nil || *from == *to || n.AnyNS {
		return n
	}
	for _, ns := range n.NS {
		if ns == *from {
			out := *n
			out.NS = append(append([]Namespace(nil), n.NS...), *to)
			return &out
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Type tests
// ---------------------------------------------------------------------------

// isType implements the istype relation. A nil class stands for the any
// type and accepts everything, null and undefined included.
func (vm *VM) isType(v Value, c *Class) bool {
	if c == nil {
		return true
	}
	if v.IsNullish() {
		return false
	}
	if c == vm.program.builtins.object {
		return true
	}
	if !v.IsObject() {
		return c.primitive != nil && c.primitive(v)
	}
	o := vm.heap.get(v.Ref())
	if o == nil {
		return false
	}
	oc := vm.classOf(o)
	if c.Interface {
		return oc.Implements(c)
	}
	return oc.IsSubclassOf(c)
}

// classOf returns the class an object is an instance of.
func (vm *VM) classOf(o *Object) *Class {
	b := vm.program.builtins
	switch o.kind {
	case objFunction:
		return b.function
	case objClass:
		return b.class
	case objActivation, objCatch, objGlobal:
		return b.object
	}
	if o.class == nil {
		return b.object
	}
	return o.class
}

// checkOverride validates an own instance binding against whatever it
// shadows in the super chain.
func checkOverride(c *Class, b *Binding) error {
	if c.Super == nil {
		if b.Override {
			return fmt.Errorf("%w: %s.%s overrides nothing", abc.ErrVerify, c, b.Name.Local)
		}
		return nil
	}
	q := b.Name
	if c.protectedNS != nil && q.NS == *c.protectedNS && c.Super.protectedNS != nil {
		q.NS = *c.Super.protectedNS
	}
	prev := c.Super.findTraitQName(q)
	if prev == nil {
		if b.Override {
			return fmt.Errorf("%w: %s.%s overrides nothing", abc.ErrVerify, c, b.Name.Local)
		}
		return nil
	}
	switch {
	case prev.proto:
		return nil
	case prev.Final:
		return fmt.Errorf("%w: %s.%s overrides a final trait", abc.ErrVerify, c, b.Name.Local)
	case !b.Override:
		return fmt.Errorf("%w: %s.%s hides an inherited trait without override", abc.ErrVerify, c, b.Name.Local)
	case prev.Kind != b.Kind || b.Kind == BindSlot || b.Kind == BindConst:
		return fmt.Errorf("%w: %s.%s overrides a %s with a %s", abc.ErrVerify, c, b.Name.Local, prev.Kind, b.Kind)
	}
	if b.Kind == BindAccessor {
		if b.Getter == nil {
			b.Getter = prev.Getter
		}
		if b.Setter == nil {
			b.Setter = prev.Setter
		}
	}
	return nil
}

func (k BindingKind) String() string {
	switch k {
	case BindSlot:
		return "slot"
	case BindConst:
		return "const"
	case BindMethod:
		return "method"
	case BindAccessor:
		return "accessor"
	}
	return fmt.Sprintf("BindingKind(%d)", uint8(k))
}

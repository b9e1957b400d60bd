package vm

import (
	"fmt"

	"github.com/chazu/avm2/abc"
)

// ---------------------------------------------------------------------------
// Binding: a resolved trait
// ---------------------------------------------------------------------------

// BindingKind classifies what a name is bound to.
type BindingKind uint8

const (
	BindSlot     BindingKind = iota // slot, class or function trait
	BindConst                       // read-only slot
	BindMethod                      // method trait
	BindAccessor                    // getter and/or setter
)

// Binding is one entry of a trait table.
type Binding struct {
	Name     QName
	Kind     BindingKind
	Slot     int // 0-based slot index for slot and const bindings
	Method   *Method
	Getter   *Method
	Setter   *Method
	Final    bool
	Override bool
	Owner    *Class // declaring class; nil for script, activation and catch traits

	typ      *Class // declared slot type; nil means any
	def      Value  // initial slot value
	class    int    // class traits: class index, -1 otherwise
	function *Method
	disp     uint32
	// prototype-style members of builtin classes may be redefined by
	// subclasses without an override attribute
	proto bool
}

// ---------------------------------------------------------------------------
// Traits: a trait table keyed by qualified name
// ---------------------------------------------------------------------------

// Traits maps qualified names to bindings and slot indices to slot
// bindings. Tables are built once at load time and never modified.
type Traits struct {
	bindings []*Binding
	byQName  map[QName]*Binding
	byLocal  map[string][]*Binding
	slots    []*Binding // slot index -> binding; nil for inherited or unused slots
}

func newTraits() *Traits {
	return &Traits{
		byQName: make(map[QName]*Binding),
		byLocal: make(map[string][]*Binding),
	}
}

func (t *Traits) add(b *Binding) {
	t.bindings = append(t.bindings, b)
	t.byQName[b.Name] = b
	t.byLocal[b.Name.Local] = append(t.byLocal[b.Name.Local], b)
	if b.Kind == BindSlot || b.Kind == BindConst {
		for len(t.slots) <= b.Slot {
			t.slots = append(t.slots, nil)
		}
		t.slots[b.Slot] = b
	}
}

// Lookup finds the binding selected by n: namespaces are tried in order,
// and a wildcard namespace matches the first binding with the local name.
func (t *Traits) Lookup(n *Name) *Binding {
	if t == nil || n.AnyName {
		return nil
	}
	if n.AnyNS {
		if bs := t.byLocal[n.Local]; len(bs) > 0 {
			return bs[0]
		}
		return nil
	}
	for _, ns := range n.NS {
		if b, ok := t.byQName[QName{NS: ns, Local: n.Local}]; ok {
			return b
		}
	}
	return nil
}

// LookupQName finds the binding for exactly q.
func (t *Traits) LookupQName(q QName) *Binding {
	if t == nil {
		return nil
	}
	return t.byQName[q]
}

// SlotCount returns one past the highest slot index used.
func (t *Traits) SlotCount() int {
	if t == nil {
		return 0
	}
	return len(t.slots)
}

// Bindings returns the bindings in declaration order.
func (t *Traits) Bindings() []*Binding {
	if t == nil {
		return nil
	}
	return t.bindings
}

// slotBinding returns the binding of slot i, or nil.
func (t *Traits) slotBinding(i int) *Binding {
	if t == nil || i < 0 || i >= len(t.slots) {
		return nil
	}
	return t.slots[i]
}

// ---------------------------------------------------------------------------
// Building trait tables from the file
// ---------------------------------------------------------------------------

// traitScope tells buildTraits how the table will be used.
type traitScope struct {
	owner    *Class // nil outside classes
	slotBase int    // first slot index available (inherited slots come first)
	prefix   string // dotted prefix for method names, e.g. "pkg.Point"
}

// buildTraits turns raw traits into a table. Explicit slot ids are
// absolute and must not collide with inherited or earlier slots; slot id 0
// takes the next free slot after all explicit ones are placed.
func (p *Program) buildTraits(raw []abc.Trait, sc traitScope) (*Traits, error) {
	t := newTraits()
	for len(t.slots) < sc.slotBase {
		t.slots = append(t.slots, nil)
	}
	used := make(map[int]bool)
	var pending []*Binding
	waiting := make(map[QName]bool) // names of pending slots
	taken := func(name QName) bool {
		return t.byQName[name] != nil || waiting[name]
	}

	for i := range raw {
		tr := &raw[i]
		name := p.qname(tr.Name)
		b := &Binding{Name: name, Owner: sc.owner, class: -1, Final: tr.IsFinal(), Override: tr.IsOverride()}

		switch tr.Kind {
		case abc.TraitSlot, abc.TraitConst, abc.TraitClass, abc.TraitFunction:
			if taken(name) {
				return nil, fmt.Errorf("%w: duplicate trait %s", abc.ErrVerify, name)
			}
			b.Kind = BindSlot
			switch tr.Kind {
			case abc.TraitConst:
				b.Kind = BindConst
				fallthrough
			case abc.TraitSlot:
				b.typ = p.resolveType(tr.TypeName)
				if tr.ValueIndex != 0 {
					v, err := p.constant(tr.ValueKind, tr.ValueIndex)
					if err != nil {
						return nil, err
					}
					b.def = v
				} else {
					b.def = p.defaultFor(b.typ)
				}
			case abc.TraitClass:
				b.class = int(tr.Class)
				b.def = Null
			case abc.TraitFunction:
				b.function = p.Methods[tr.Method]
				p.nameMethod(b.function, sc.prefix, name, "")
				b.def = Null
			}
			if tr.SlotID == 0 {
				pending = append(pending, b)
				waiting[name] = true
				continue
			}
			idx := int(tr.SlotID) - 1
			if idx < sc.slotBase || used[idx] {
				return nil, fmt.Errorf("%w: slot id %d of %s is already in use", abc.ErrVerify, tr.SlotID, name)
			}
			used[idx] = true
			b.Slot = idx
			t.add(b)

		case abc.TraitMethod:
			if taken(name) {
				return nil, fmt.Errorf("%w: duplicate trait %s", abc.ErrVerify, name)
			}
			b.Kind = BindMethod
			b.Method = p.Methods[tr.Method]
			b.disp = tr.DispID
			setOwner(b.Method, sc.owner)
			p.nameMethod(b.Method, sc.prefix, name, "")
			t.add(b)

		case abc.TraitGetter, abc.TraitSetter:
			m := p.Methods[tr.Method]
			setOwner(m, sc.owner)
			if waiting[name] {
				return nil, fmt.Errorf("%w: duplicate trait %s", abc.ErrVerify, name)
			}
			if existing := t.byQName[name]; existing != nil {
				if existing.Kind != BindAccessor ||
					(tr.Kind == abc.TraitGetter && existing.Getter != nil) ||
					(tr.Kind == abc.TraitSetter && existing.Setter != nil) {
					return nil, fmt.Errorf("%w: duplicate trait %s", abc.ErrVerify, name)
				}
				b = existing
			} else {
				b.Kind = BindAccessor
				t.add(b)
			}
			if tr.Kind == abc.TraitGetter {
				b.Getter = m
				p.nameMethod(m, sc.prefix, name, "$get")
			} else {
				b.Setter = m
				p.nameMethod(m, sc.prefix, name, "$set")
			}
		}
	}

	next := sc.slotBase
	for _, b := range pending {
		for used[next] {
			next++
		}
		used[next] = true
		b.Slot = next
		t.add(b)
	}
	return t, nil
}

func setOwner(m *Method, c *Class) {
	if m.owner == nil {
		m.owner = c
	}
}

// nameMethod gives m its dotted display and native-lookup name the first
// time a trait refers to it: "pkg.name" for script traits and
// "pkg.Class.name" for class traits. Accessors get a "$get" or "$set"
// suffix.
func (p *Program) nameMethod(m *Method, prefix string, name QName, suffix string) {
	if m.Name != "" {
		return
	}
	if prefix == "" {
		m.Name = name.Dotted() + suffix
		return
	}
	m.Name = prefix + "." + name.Local + suffix
}

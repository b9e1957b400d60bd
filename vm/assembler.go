package vm

import (
	"fmt"

	"github.com/chazu/avm2/abc"
)

// ---------------------------------------------------------------------------
// Class assembly
// ---------------------------------------------------------------------------

// assembleClasses links the instance/class pairs in file order. Every class
// is registered by name first so slot and parameter types can refer to any
// class, but a super class or interface must be a builtin or a class with a
// lower index.
func (p *Program) assembleClasses() error {
	f := p.File
	p.Classes = make([]*Class, len(f.Instances))
	for i := range f.Instances {
		inst := &f.Instances[i]
		c := &Class{
			Name:      p.qname(inst.Name),
			Index:     i,
			Sealed:    inst.IsSealed(),
			Final:     inst.IsFinal(),
			Interface: inst.IsInterface(),
			program:   p,
			layout:    objPlain,
		}
		if inst.Flags&abc.ClassProtectedNs != 0 {
			ns := p.namespaces[inst.ProtectedNs]
			c.protectedNS = &ns
		}
		p.Classes[i] = c
		p.registerClass(c)
	}
	for i, c := range p.Classes {
		if err := p.assembleClass(i, c); err != nil {
			return fmt.Errorf("class %s: %w", c, err)
		}
	}
	return nil
}

// linkedClass resolves a super class or interface reference of class i.
func (p *Program) linkedClass(i int, idx uint32, what string) (*Class, error) {
	m := &p.multinames[idx]
	if m.rtNS || m.rtName {
		return nil, fmt.Errorf("%w: %s name must not be a runtime name", abc.ErrVerify, what)
	}
	c := p.findClass(&m.name)
	if c == nil {
		return nil, fmt.Errorf("%w: %s %s is not defined", abc.ErrVerify, what, m.name.String())
	}
	if !c.builtin && c.Index >= i {
		return nil, fmt.Errorf("%w: %s %s must be defined before class %d", abc.ErrVerify, what, c, i)
	}
	return c, nil
}

func (p *Program) assembleClass(i int, c *Class) error {
	f := p.File
	inst := &f.Instances[i]

	switch {
	case inst.SuperName != 0:
		super, err := p.linkedClass(i, inst.SuperName, "super class")
		if err != nil {
			return err
		}
		if super.Final {
			return fmt.Errorf("%w: cannot extend final class %s", abc.ErrVerify, super)
		}
		if super.Interface {
			return fmt.Errorf("%w: cannot extend interface %s", abc.ErrVerify, super)
		}
		c.Super = super
	case !c.Interface:
		c.Super = p.builtins.object
	}
	if c.Super != nil {
		c.layout = c.Super.layout
		c.slotCount = c.Super.slotCount
	}

	for _, idx := range inst.Interfaces {
		iface, err := p.linkedClass(i, idx, "interface")
		if err != nil {
			return err
		}
		if !iface.Interface {
			return fmt.Errorf("%w: %s is not an interface", abc.ErrVerify, iface)
		}
		c.Interfaces = append(c.Interfaces, iface)
	}

	c.Init = p.Methods[inst.Init]
	c.Init.Name = c.Name.Dotted()
	c.Init.owner = c
	c.StaticInit = p.Methods[f.Classes[i].Init]
	c.StaticInit.Name = c.Name.Dotted() + "$cinit"
	c.StaticInit.owner = c

	prefix := c.Name.Dotted()
	t, err := p.buildTraits(inst.Traits, traitScope{owner: c, slotBase: c.slotCount, prefix: prefix})
	if err != nil {
		return err
	}
	c.Instance = t
	if n := t.SlotCount(); n > c.slotCount {
		c.slotCount = n
	}
	for _, b := range t.Bindings() {
		if err := checkOverride(c, b); err != nil {
			return err
		}
	}
	if !c.Interface {
		p.aliasInterfaces(c, c.Interfaces)
	}

	if c.Static, err = p.buildTraits(f.Classes[i].Traits, traitScope{owner: c, prefix: prefix}); err != nil {
		return err
	}
	log.Debugf("assembled class %s: super %v, %d instance slots, %d static traits",
		c, c.Super, c.slotCount, len(c.Static.Bindings()))
	return nil
}

// aliasInterfaces makes each interface method reachable under the
// interface's own qualified name by pointing it at the public method of the
// same local name.
func (p *Program) aliasInterfaces(c *Class, ifaces []*Class) {
	for _, iface := range ifaces {
		for _, ib := range iface.Instance.Bindings() {
			if c.Instance.LookupQName(ib.Name) != nil {
				continue
			}
			impl := c.findTraitQName(PublicQName(ib.Name.Local))
			if impl == nil || impl.Kind == BindSlot || impl.Kind == BindConst {
				log.Debugf("class %s does not implement %s.%s", c, iface, ib.Name.Local)
				continue
			}
			alias := *impl
			alias.Name = ib.Name
			c.Instance.add(&alias)
		}
		p.aliasInterfaces(c, iface.Interfaces)
	}
}

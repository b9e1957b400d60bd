package vm

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/avm2/abc"
)

var log = commonlog.GetLogger("avm2.vm")

// ---------------------------------------------------------------------------
// Program: a linked, immutable ABC payload
// ---------------------------------------------------------------------------

// Program is the result of loading one payload. It holds the decoded file,
// the linked method, class and script tables and the builtin classes. A
// Program is never modified after Load returns, so any number of VMs may
// execute it concurrently, each with its own heap.
type Program struct {
	ID      uuid.UUID
	File    *abc.File
	Methods []*Method
	Classes []*Class
	Scripts []*Script

	builtins     *builtins
	namespaces   []Namespace
	multinames   []multiname
	classByQName map[QName]*Class
	classByName  map[string]*Class
}

// Method is a linked method: its signature, its body if it has one, and
// the tables derived from them.
type Method struct {
	Index int // position in the file; -1 for builtin methods
	Name  string
	Info  *abc.MethodInfo
	Body  *abc.MethodBody

	program    *Program
	owner      *Class // class whose traits declare it
	native     NativeFunc
	paramTypes []*Class
	defaults   []Value // defaults of the trailing optional parameters
	activation *Traits
	handlers   []handler
}

func (m *Method) String() string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("method#%d", m.Index)
}

// ParamCount returns the number of declared parameters.
func (m *Method) ParamCount() int {
	if m.Info == nil {
		return 0
	}
	return m.Info.ParamCount()
}

func (m *Method) has(f abc.MethodFlags) bool {
	return m.Info != nil && m.Info.Has(f)
}

// Script is a top-level initializer with the traits of its global object.
type Script struct {
	Index  int
	Init   *Method
	Traits *Traits
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load decodes and links a raw ABC payload. Any error rejects the payload
// as a whole; decoding errors wrap the abc sentinels, linking errors wrap
// ErrVerify.
func Load(data []byte) (*Program, error) {
	f, err := abc.Parse(data)
	if err != nil {
		return nil, err
	}
	return Link(f)
}

// Link builds a Program from an already decoded file.
func Link(f *abc.File) (*Program, error) {
	if len(f.Scripts) == 0 {
		return nil, fmt.Errorf("%w: payload has no scripts", abc.ErrVerify)
	}
	if err := f.IndexBodies(); err != nil {
		return nil, err
	}
	p := &Program{
		ID:           uuid.New(),
		File:         f,
		classByQName: make(map[QName]*Class),
		classByName:  make(map[string]*Class),
	}
	if err := p.resolveMultinames(); err != nil {
		return nil, err
	}

	p.Methods = make([]*Method, len(f.Methods))
	for i := range f.Methods {
		m := &Method{Index: i, Info: &f.Methods[i], program: p}
		m.Body, _ = f.Body(uint32(i))
		p.Methods[i] = m
	}

	p.builtins = newBuiltins(p)
	for _, c := range p.builtins.all {
		p.registerClass(c)
	}
	if err := p.assembleClasses(); err != nil {
		return nil, err
	}
	if err := p.linkScripts(); err != nil {
		return nil, err
	}
	if err := p.linkMethods(); err != nil {
		return nil, err
	}

	pool := f.Pool
	log.Infof("loaded program %s: abc %d.%d, %d strings, %d multinames, %d methods, %d classes, %d scripts",
		p.ID, f.MajorVersion, f.MinorVersion, len(pool.Strings), len(pool.Multinames),
		len(p.Methods), len(p.Classes), len(p.Scripts))
	return p, nil
}

func (p *Program) registerClass(c *Class) {
	p.classByQName[c.Name] = c
	p.classByName[c.Name.Dotted()] = c
	p.classByName[c.Name.String()] = c
}

// LookupClass finds a class by "pkg.Name", "pkg::Name" or a bare name.
func (p *Program) LookupClass(name string) *Class {
	if c, ok := p.classByName[name]; ok {
		return c
	}
	uri, local := splitQualified(name)
	for q, c := range p.classByQName {
		if q.Local == local && q.NS.URI == uri {
			return c
		}
	}
	return nil
}

func (p *Program) linkScripts() error {
	f := p.File
	p.Scripts = make([]*Script, len(f.Scripts))
	for i := range f.Scripts {
		si := &f.Scripts[i]
		s := &Script{Index: i, Init: p.Methods[si.Init]}
		if s.Init.Name == "" {
			s.Init.Name = fmt.Sprintf("script%d$init", i)
		}
		t, err := p.buildTraits(si.Traits, traitScope{})
		if err != nil {
			return fmt.Errorf("script %d: %w", i, err)
		}
		s.Traits = t
		for _, b := range t.Bindings() {
			if b.class >= 0 {
				p.Classes[b.class].script = s
			}
		}
		p.Scripts[i] = s
	}
	return nil
}

// linkMethods resolves parameter types, optional defaults, activation
// traits and exception tables once every class is known.
func (p *Program) linkMethods() error {
	for _, m := range p.Methods {
		info := m.Info
		if m.Name == "" {
			if name, _ := p.File.Pool.String(info.Name); name != "" {
				m.Name = name
			} else {
				m.Name = fmt.Sprintf("method#%d", m.Index)
			}
		}
		m.paramTypes = make([]*Class, len(info.ParamTypes))
		for i, t := range info.ParamTypes {
			m.paramTypes[i] = p.resolveType(t)
		}
		m.defaults = make([]Value, len(info.Options))
		for i, o := range info.Options {
			v, err := p.constant(o.Kind, o.Value)
			if err != nil {
				return fmt.Errorf("method %s: %w", m, err)
			}
			m.defaults[i] = v
		}
		if m.Body == nil {
			continue
		}
		if len(m.Body.Traits) > 0 {
			t, err := p.buildTraits(m.Body.Traits, traitScope{prefix: m.Name})
			if err != nil {
				return fmt.Errorf("method %s: %w", m, err)
			}
			m.activation = t
		}
		code := len(m.Body.Code)
		for i, ex := range m.Body.Exceptions {
			if ex.From > ex.To || int(ex.To) > code || int(ex.Target) >= code {
				return fmt.Errorf("%w: method %s: exception %d range [%d,%d) -> %d outside %d bytes of code",
					abc.ErrVerify, m, i, ex.From, ex.To, ex.Target, code)
			}
			h := handler{from: int(ex.From), to: int(ex.To), target: int(ex.Target)}
			h.typ = p.resolveType(ex.ExcType)
			h.traits = newTraits()
			b := &Binding{Kind: BindSlot, typ: h.typ, def: Undefined, class: -1}
			if ex.VarName != 0 {
				b.Name = p.qname(ex.VarName)
			}
			h.traits.add(b)
			m.handlers = append(m.handlers, h)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Constants and types
// ---------------------------------------------------------------------------

// constant materialises a default value from the pool.
func (p *Program) constant(kind abc.ConstantKind, idx uint32) (Value, error) {
	pool := p.File.Pool
	switch kind {
	case abc.ConstantUndefined:
		return Undefined, nil
	case abc.ConstantNull:
		return Null, nil
	case abc.ConstantTrue:
		return True, nil
	case abc.ConstantFalse:
		return False, nil
	case abc.ConstantInt:
		i, err := pool.Int(idx)
		return Int(i), err
	case abc.ConstantUInt:
		u, err := pool.UInt(idx)
		return UInt(u), err
	case abc.ConstantDouble:
		d, err := pool.Double(idx)
		return Number(d), err
	case abc.ConstantUtf8:
		s, err := pool.String(idx)
		return String(s), err
	case abc.ConstantPrivateNs, abc.ConstantNamespace, abc.ConstantPackageNs, abc.ConstantPackageInternal,
		abc.ConstantProtectedNs, abc.ConstantExplicitNs, abc.ConstantStaticProtected:
		if int(idx) >= len(p.namespaces) {
			return Undefined, fmt.Errorf("%w: namespace constant %d", abc.ErrIndex, idx)
		}
		return NamespaceValue(p.namespaces[idx]), nil
	}
	return Undefined, fmt.Errorf("%w: constant kind 0x%02x", abc.ErrFormat, uint8(kind))
}

// resolveType maps a type multiname to a class. Index 0, "*", runtime
// names and names that match no class all mean the any type (nil).
func (p *Program) resolveType(idx uint32) *Class {
	if idx == 0 || int(idx) >= len(p.multinames) {
		return nil
	}
	m := &p.multinames[idx]
	if m.rtNS || m.rtName || m.name.AnyName || m.name.Local == "*" {
		return nil
	}
	if c := p.findClass(&m.name); c != nil {
		return c
	}
	if m.name.Local != "void" {
		log.Debugf("type %s is not a known class; treating it as any", m.name.String())
	}
	return nil
}

// findClass resolves a name against the class table.
func (p *Program) findClass(n *Name) *Class {
	if n.AnyNS {
		for q, c := range p.classByQName {
			if q.Local == n.Local {
				return c
			}
		}
		return nil
	}
	for _, ns := range n.NS {
		if c, ok := p.classByQName[QName{NS: ns, Local: n.Local}]; ok {
			return c
		}
	}
	return nil
}

// defaultFor is the value an uninitialised slot of type c holds.
func (p *Program) defaultFor(c *Class) Value {
	b := p.builtins
	switch c {
	case nil:
		return Undefined
	case b.int:
		return Int(0)
	case b.uint:
		return UInt(0)
	case b.number:
		return Number(math.NaN())
	case b.boolean:
		return False
	}
	return Null
}

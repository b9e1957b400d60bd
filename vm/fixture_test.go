package vm

import (
	"testing"

	"github.com/chazu/avm2/abc"
)

// ---------------------------------------------------------------------------
// Test fixtures: small ABC programs assembled in memory
// ---------------------------------------------------------------------------

type fixture struct {
	t      *testing.T
	b      *abc.Builder
	pub    uint32 // public namespace
	set    uint32 // namespace set holding only pub
	script []abc.Trait
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := abc.NewBuilder()
	pub := b.Package("")
	return &fixture{t: t, b: b, pub: pub, set: b.NamespaceSet(pub)}
}

// name interns a public QName.
func (fx *fixture) name(s string) int {
	return int(fx.b.QName(fx.pub, s))
}

// str interns a string constant.
func (fx *fixture) str(s string) int {
	return int(fx.b.String(s))
}

// method adds a method with params untyped parameters and body a.
func (fx *fixture) method(params int, a *abc.Asm, excs ...abc.ExceptionInfo) uint32 {
	fx.t.Helper()
	return fx.methodInfo(abc.MethodInfo{ParamTypes: make([]uint32, params)}, a, excs...)
}

func (fx *fixture) methodInfo(mi abc.MethodInfo, a *abc.Asm, excs ...abc.ExceptionInfo) uint32 {
	fx.t.Helper()
	code, err := a.Code()
	if err != nil {
		fx.t.Fatalf("assembling method: %v", err)
	}
	return fx.b.Function(mi, abc.MethodBody{
		MaxStack:      16,
		LocalCount:    uint32(len(mi.ParamTypes) + 4),
		MaxScopeDepth: 8,
		Code:          code,
		Exceptions:    excs,
	})
}

// ctor adds the usual instance initializer: push this, call the super
// constructor, return.
func (fx *fixture) ctor() uint32 {
	return fx.method(0, abc.NewAsm().
		Op(abc.OpGetLocal0).Op(abc.OpPushScope).
		Op(abc.OpGetLocal0).Op(abc.OpConstructSuper, 0).
		Op(abc.OpReturnVoid))
}

// empty adds a method that only returns.
func (fx *fixture) empty() uint32 {
	return fx.method(0, abc.NewAsm().Op(abc.OpReturnVoid))
}

// scriptMethod declares a script-level function.
func (fx *fixture) scriptMethod(name string, m uint32) {
	fx.script = append(fx.script, abc.Trait{Name: uint32(fx.name(name)), Kind: abc.TraitMethod, Method: m})
}

// scriptSlot declares a script-level variable.
func (fx *fixture) scriptSlot(name string) {
	fx.script = append(fx.script, abc.Trait{Name: uint32(fx.name(name)), Kind: abc.TraitSlot})
}

func methodTrait(fx *fixture, name string, m uint32, attr abc.TraitAttr) abc.Trait {
	return abc.Trait{Name: uint32(fx.name(name)), Kind: abc.TraitMethod, Method: m, Attr: attr}
}

type classSpec struct {
	name    string
	super   string // "" extends Object
	flags   abc.ClassFlags
	iinit   uint32 // 0 picks ctor()
	cinit   uint32 // 0 picks empty()
	ifaces  []string
	traits  []abc.Trait
	statics []abc.Trait
}

// class declares a class and its script trait. Unless the script
// initializer runs newclass, the VM materialises the class on first use.
func (fx *fixture) class(cs classSpec) uint32 {
	in := abc.InstanceInfo{Name: uint32(fx.name(cs.name)), Flags: cs.flags, Init: cs.iinit, Traits: cs.traits}
	if in.Init == 0 {
		in.Init = fx.ctor()
	}
	if cs.super != "" {
		in.SuperName = uint32(fx.name(cs.super))
	}
	for _, i := range cs.ifaces {
		in.Interfaces = append(in.Interfaces, uint32(fx.name(i)))
	}
	ci := abc.ClassInfo{Init: cs.cinit, Traits: cs.statics}
	if ci.Init == 0 {
		ci.Init = fx.empty()
	}
	idx := fx.b.Class(in, ci)
	fx.script = append(fx.script, abc.Trait{Name: uint32(fx.name(cs.name)), Kind: abc.TraitClass, Class: idx})
	return idx
}

// bytes adds the script and encodes the file.
func (fx *fixture) bytes(init *abc.Asm) []byte {
	fx.t.Helper()
	if init == nil {
		init = abc.NewAsm().Op(abc.OpGetLocal0).Op(abc.OpPushScope).Op(abc.OpReturnVoid)
	}
	fx.b.Script(abc.ScriptInfo{Init: fx.method(0, init), Traits: fx.script})
	data, err := fx.b.Bytes()
	if err != nil {
		fx.t.Fatalf("encoding: %v", err)
	}
	return data
}

// load links the program with a trivial script initializer.
func (fx *fixture) load() *Program {
	fx.t.Helper()
	p, err := Load(fx.bytes(nil))
	if err != nil {
		fx.t.Fatalf("Load failed: %v", err)
	}
	return p
}

func (fx *fixture) vm(opts Options) *VM {
	fx.t.Helper()
	return New(fx.load(), opts)
}

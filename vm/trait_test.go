package vm

import (
	"errors"
	"testing"

	"github.com/chazu/avm2/abc"
)

// ---------------------------------------------------------------------------
// Names
// ---------------------------------------------------------------------------

func TestNameMatches(t *testing.T) {
	other := Namespace{Kind: abc.NamespaceKindPackage, URI: "flash.utils"}
	q := QName{NS: other, Local: "x"}

	pub := NameOf("x")
	if pub.Matches(q) {
		t.Error("public name matched a name in flash.utils")
	}
	set := Name{NS: []Namespace{PublicNamespace, other}, Local: "x"}
	if !set.Matches(q) {
		t.Error("namespace set including flash.utils did not match")
	}
	wild := Name{AnyNS: true, Local: "x"}
	if !wild.Matches(q) || wild.Matches(PublicQName("y")) {
		t.Error("wildcard namespace matched incorrectly")
	}
}

func TestArrayIndex(t *testing.T) {
	tests := []struct {
		in   string
		idx  uint32
		want bool
	}{
		{"0", 0, true},
		{"17", 17, true},
		{"4294967294", 4294967294, true},
		{"4294967295", 0, false},
		{"017", 0, false},
		{"-1", 0, false},
		{"1.5", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		idx, ok := arrayIndex(tt.in)
		if ok != tt.want || idx != tt.idx {
			t.Errorf("arrayIndex(%q) = %d, %v; want %d, %v", tt.in, idx, ok, tt.idx, tt.want)
		}
	}
}

func TestSplitQualified(t *testing.T) {
	tests := []struct {
		in, uri, local string
	}{
		{"main", "", "main"},
		{"com.example::main", "com.example", "main"},
		{"com.example.main", "com.example", "main"},
		{"Point.length", "Point", "length"},
	}
	for _, tt := range tests {
		uri, local := splitQualified(tt.in)
		if uri != tt.uri || local != tt.local {
			t.Errorf("splitQualified(%q) = %q, %q; want %q, %q", tt.in, uri, local, tt.uri, tt.local)
		}
	}
}

func TestLookupTriesNamespacesInOrder(t *testing.T) {
	first := Namespace{Kind: abc.NamespaceKindPackage, URI: "a"}
	second := Namespace{Kind: abc.NamespaceKindPackage, URI: "b"}
	tr := newTraits()
	tr.add(&Binding{Name: QName{NS: second, Local: "v"}, Kind: BindSlot, Slot: 0})
	tr.add(&Binding{Name: QName{NS: first, Local: "v"}, Kind: BindSlot, Slot: 1})

	n := Name{NS: []Namespace{first, second}, Local: "v"}
	if b := tr.Lookup(&n); b == nil || b.Slot != 1 {
		t.Errorf("Lookup picked %+v, want the binding in namespace a", b)
	}
	n = Name{NS: []Namespace{PublicNamespace}, Local: "v"}
	if b := tr.Lookup(&n); b != nil {
		t.Errorf("public lookup found %s", b.Name)
	}
	if tr.SlotCount() != 2 {
		t.Errorf("SlotCount() = %d, want 2", tr.SlotCount())
	}
}

// ---------------------------------------------------------------------------
// Trait tables built from files
// ---------------------------------------------------------------------------

func TestDuplicateTraitsFailToLoad(t *testing.T) {
	tests := []struct {
		name  string
		kinds []abc.TraitKind
	}{
		{"two slots", []abc.TraitKind{abc.TraitSlot, abc.TraitSlot}},
		{"slot and method", []abc.TraitKind{abc.TraitSlot, abc.TraitMethod}},
		{"method and slot", []abc.TraitKind{abc.TraitMethod, abc.TraitSlot}},
		{"two getters", []abc.TraitKind{abc.TraitGetter, abc.TraitGetter}},
		{"slot and getter", []abc.TraitKind{abc.TraitSlot, abc.TraitGetter}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			for _, k := range tt.kinds {
				fx.script = append(fx.script, abc.Trait{Name: uint32(fx.name("dup")), Kind: k, Method: fx.empty()})
			}
			if _, err := Load(fx.bytes(nil)); !errors.Is(err, ErrVerify) {
				t.Fatalf("Load err = %v, want ErrVerify", err)
			}
		})
	}
}

func TestSlotIDs(t *testing.T) {
	fx := newFixture(t)
	fx.script = append(fx.script,
		abc.Trait{Name: uint32(fx.name("explicit")), Kind: abc.TraitSlot, SlotID: 2},
		abc.Trait{Name: uint32(fx.name("auto")), Kind: abc.TraitSlot},
		abc.Trait{Name: uint32(fx.name("next")), Kind: abc.TraitConst},
	)
	p, err := Load(fx.bytes(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	traits := p.Scripts[0].Traits
	want := map[string]int{"explicit": 1, "auto": 0, "next": 2}
	for name, slot := range want {
		b := traits.LookupQName(PublicQName(name))
		if b == nil {
			t.Fatalf("no binding for %s", name)
		}
		if b.Slot != slot {
			t.Errorf("%s slot = %d, want %d", name, b.Slot, slot)
		}
	}
	if b := traits.LookupQName(PublicQName("next")); b.Kind != BindConst {
		t.Errorf("const trait bound as %v", b.Kind)
	}
}

func TestSlotIDCollisionFailsToLoad(t *testing.T) {
	fx := newFixture(t)
	fx.script = append(fx.script,
		abc.Trait{Name: uint32(fx.name("a")), Kind: abc.TraitSlot, SlotID: 1},
		abc.Trait{Name: uint32(fx.name("b")), Kind: abc.TraitSlot, SlotID: 1},
	)
	if _, err := Load(fx.bytes(nil)); !errors.Is(err, ErrVerify) {
		t.Fatalf("Load err = %v, want ErrVerify", err)
	}
}

func TestInheritedSlotsComeFirst(t *testing.T) {
	fx := newFixture(t)
	fx.class(classSpec{name: "Base", traits: []abc.Trait{
		{Name: uint32(fx.name("x")), Kind: abc.TraitSlot},
	}})
	fx.class(classSpec{name: "Derived", super: "Base", traits: []abc.Trait{
		{Name: uint32(fx.name("y")), Kind: abc.TraitSlot},
	}})
	p := fx.load()

	base, derived := p.LookupClass("Base"), p.LookupClass("Derived")
	if derived.SlotCount() != base.SlotCount()+1 {
		t.Errorf("Derived has %d slots, Base %d", derived.SlotCount(), base.SlotCount())
	}
	y := derived.Instance.LookupQName(PublicQName("y"))
	if y == nil || y.Slot != base.SlotCount() {
		t.Errorf("y bound to %+v, want slot %d", y, base.SlotCount())
	}
	n := NameOf("x")
	if b := derived.FindTrait(&n); b == nil || b.Owner != base {
		t.Errorf("FindTrait(x) on Derived = %+v, want Base's slot", b)
	}
}

func TestMethodNames(t *testing.T) {
	fx := newFixture(t)
	f := fx.empty()
	fx.scriptMethod("helper", f)
	m := fx.empty()
	get := fx.method(0, abc.NewAsm().Op(abc.OpPushNull).Op(abc.OpReturnValue))
	fx.class(classSpec{name: "Point", traits: []abc.Trait{
		methodTrait(fx, "norm", m, 0),
		{Name: uint32(fx.name("length")), Kind: abc.TraitGetter, Method: get},
	}})
	p := fx.load()

	tests := []struct {
		idx  uint32
		want string
	}{
		{f, "helper"},
		{m, "Point.norm"},
		{get, "Point.length$get"},
	}
	for _, tt := range tests {
		if got := p.Methods[tt.idx].Name; got != tt.want {
			t.Errorf("method %d named %q, want %q", tt.idx, got, tt.want)
		}
	}
	if got := p.LookupClass("Point").Init.Name; got != "Point" {
		t.Errorf("instance initializer named %q, want \"Point\"", got)
	}
}

// Package inspect exports summaries of loaded programs. Summaries are
// encoded as canonical CBOR so identical payloads produce identical bytes.
package inspect

import (
	"crypto/sha256"

	"github.com/chazu/avm2/abc"
	"github.com/chazu/avm2/vm"
)

// Summary describes a loaded program.
type Summary struct {
	ID           [16]byte        `cbor:"1,keyasint"`
	Hash         [32]byte        `cbor:"2,keyasint"` // SHA-256 of the payload
	MinorVersion uint16          `cbor:"3,keyasint"`
	MajorVersion uint16          `cbor:"4,keyasint"`
	Pool         PoolCounts      `cbor:"5,keyasint"`
	Methods      []MethodSummary `cbor:"6,keyasint,omitempty"`
	Classes      []ClassSummary  `cbor:"7,keyasint,omitempty"`
	Scripts      []ScriptSummary `cbor:"8,keyasint,omitempty"`
}

// PoolCounts gives the number of entries in each constant pool table,
// not counting the index 0 sentinel.
type PoolCounts struct {
	Ints          int `cbor:"1,keyasint"`
	UInts         int `cbor:"2,keyasint"`
	Doubles       int `cbor:"3,keyasint"`
	Strings       int `cbor:"4,keyasint"`
	Namespaces    int `cbor:"5,keyasint"`
	NamespaceSets int `cbor:"6,keyasint"`
	Multinames    int `cbor:"7,keyasint"`
}

// MethodSummary describes one method. Body fields are zero for methods
// without a body.
type MethodSummary struct {
	Name     string          `cbor:"1,keyasint"`
	Params   int             `cbor:"2,keyasint"`
	Flags    abc.MethodFlags `cbor:"3,keyasint"`
	HasBody  bool            `cbor:"4,keyasint"`
	CodeSize int             `cbor:"5,keyasint,omitempty"`
	MaxStack uint32          `cbor:"6,keyasint,omitempty"`
	Locals   uint32          `cbor:"7,keyasint,omitempty"`
	Handlers int             `cbor:"8,keyasint,omitempty"`
}

// ClassSummary describes one class.
type ClassSummary struct {
	Name       string         `cbor:"1,keyasint"`
	Super      string         `cbor:"2,keyasint,omitempty"`
	Interfaces []string       `cbor:"3,keyasint,omitempty"`
	Flags      abc.ClassFlags `cbor:"4,keyasint"`
	Slots      int            `cbor:"5,keyasint"`
	Instance   []TraitSummary `cbor:"6,keyasint,omitempty"`
	Static     []TraitSummary `cbor:"7,keyasint,omitempty"`
}

// ScriptSummary describes one script.
type ScriptSummary struct {
	Init   string         `cbor:"1,keyasint"`
	Traits []TraitSummary `cbor:"2,keyasint,omitempty"`
}

// TraitSummary describes one binding. Slot is -1 for methods and
// accessors.
type TraitSummary struct {
	Name string         `cbor:"1,keyasint"`
	Kind vm.BindingKind `cbor:"2,keyasint"`
	Slot int            `cbor:"3,keyasint"`
}

// Summarize builds the summary of p. payload is the raw ABC the program
// was loaded from.
func Summarize(p *vm.Program, payload []byte) *Summary {
	s := &Summary{
		ID:   p.ID,
		Hash: sha256.Sum256(payload),
	}
	if f := p.File; f != nil {
		s.MinorVersion, s.MajorVersion = f.MinorVersion, f.MajorVersion
		s.Pool = poolCounts(f.Pool)
	}
	for _, m := range p.Methods {
		s.Methods = append(s.Methods, summarizeMethod(m))
	}
	for _, c := range p.Classes {
		s.Classes = append(s.Classes, summarizeClass(c))
	}
	for _, sc := range p.Scripts {
		s.Scripts = append(s.Scripts, ScriptSummary{Init: sc.Init.String(), Traits: summarizeTraits(sc.Traits)})
	}
	return s
}

func poolCounts(p *abc.ConstantPool) PoolCounts {
	if p == nil {
		return PoolCounts{}
	}
	n := func(l int) int { return max(l-1, 0) }
	return PoolCounts{
		Ints:          n(len(p.Ints)),
		UInts:         n(len(p.UInts)),
		Doubles:       n(len(p.Doubles)),
		Strings:       n(len(p.Strings)),
		Namespaces:    n(len(p.Namespaces)),
		NamespaceSets: n(len(p.NamespaceSets)),
		Multinames:    n(len(p.Multinames)),
	}
}

func summarizeMethod(m *vm.Method) MethodSummary {
	ms := MethodSummary{Name: m.String(), Params: m.ParamCount()}
	if m.Info != nil {
		ms.Flags = m.Info.Flags
	}
	if b := m.Body; b != nil {
		ms.HasBody = true
		ms.CodeSize = len(b.Code)
		ms.MaxStack = b.MaxStack
		ms.Locals = b.LocalCount
		ms.Handlers = len(b.Exceptions)
	}
	return ms
}

func summarizeClass(c *vm.Class) ClassSummary {
	cs := ClassSummary{
		Name:     c.Name.String(),
		Slots:    c.SlotCount(),
		Instance: summarizeTraits(c.Instance),
		Static:   summarizeTraits(c.Static),
	}
	if c.Super != nil {
		cs.Super = c.Super.Name.String()
	}
	for _, i := range c.Interfaces {
		cs.Interfaces = append(cs.Interfaces, i.Name.String())
	}
	if c.Sealed {
		cs.Flags |= abc.ClassSealed
	}
	if c.Final {
		cs.Flags |= abc.ClassFinal
	}
	if c.Interface {
		cs.Flags |= abc.ClassInterface
	}
	return cs
}

func summarizeTraits(t *vm.Traits) []TraitSummary {
	var out []TraitSummary
	for _, b := range t.Bindings() {
		ts := TraitSummary{Name: b.Name.String(), Kind: b.Kind, Slot: -1}
		if b.Kind == vm.BindSlot || b.Kind == vm.BindConst {
			ts.Slot = b.Slot
		}
		out = append(out, ts)
	}
	return out
}

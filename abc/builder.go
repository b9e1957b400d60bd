package abc

import (
	"math"
	"strings"
)

// Builder assembles a File in memory, interning pool entries so that equal
// constants share an index. It is used by tests and by tools that emit ABC.
type Builder struct {
	file *File

	strings    map[string]uint32
	ints       map[int32]uint32
	uints      map[uint32]uint32
	doubles    map[uint64]uint32
	namespaces map[Namespace]uint32
	nssets     map[string]uint32
	multinames map[Multiname]uint32
}

// NewBuilder returns a builder for an ABC 46.16 file.
func NewBuilder() *Builder {
	return &Builder{
		file: &File{
			MinorVersion: 16,
			MajorVersion: 46,
			Pool:         NewConstantPool(),
		},
		strings:    make(map[string]uint32),
		ints:       make(map[int32]uint32),
		uints:      make(map[uint32]uint32),
		doubles:    make(map[uint64]uint32),
		namespaces: make(map[Namespace]uint32),
		nssets:     make(map[string]uint32),
		multinames: make(map[Multiname]uint32),
	}
}

// ---------------------------------------------------------------------------
// Constant pool
// ---------------------------------------------------------------------------

// String interns s. The empty string gets its own entry; index 0 is
// reserved for "no string".
func (b *Builder) String(s string) uint32 {
	if idx, ok := b.strings[s]; ok {
		return idx
	}
	p := b.file.Pool
	idx := uint32(len(p.Strings))
	p.Strings = append(p.Strings, s)
	b.strings[s] = idx
	return idx
}

func (b *Builder) Int(v int32) uint32 {
	if idx, ok := b.ints[v]; ok {
		return idx
	}
	p := b.file.Pool
	idx := uint32(len(p.Ints))
	p.Ints = append(p.Ints, v)
	b.ints[v] = idx
	return idx
}

func (b *Builder) UInt(v uint32) uint32 {
	if idx, ok := b.uints[v]; ok {
		return idx
	}
	p := b.file.Pool
	idx := uint32(len(p.UInts))
	p.UInts = append(p.UInts, v)
	b.uints[v] = idx
	return idx
}

func (b *Builder) Double(v float64) uint32 {
	key := math.Float64bits(v)
	if idx, ok := b.doubles[key]; ok {
		return idx
	}
	p := b.file.Pool
	idx := uint32(len(p.Doubles))
	p.Doubles = append(p.Doubles, v)
	b.doubles[key] = idx
	return idx
}

// Namespace interns a namespace of the given kind and URI.
func (b *Builder) Namespace(kind NamespaceKind, uri string) uint32 {
	ns := Namespace{Kind: kind, Name: b.String(uri)}
	if kind == NamespaceKindPrivate {
		// Private namespaces are distinct even when their names collide.
		return b.appendNamespace(ns)
	}
	if idx, ok := b.namespaces[ns]; ok {
		return idx
	}
	idx := b.appendNamespace(ns)
	b.namespaces[ns] = idx
	return idx
}

func (b *Builder) appendNamespace(ns Namespace) uint32 {
	p := b.file.Pool
	idx := uint32(len(p.Namespaces))
	p.Namespaces = append(p.Namespaces, ns)
	return idx
}

// Package interns the package namespace uri ("" is the public namespace).
func (b *Builder) Package(uri string) uint32 {
	return b.Namespace(NamespaceKindPackage, uri)
}

// NamespaceSet interns an ordered set of namespace indices.
func (b *Builder) NamespaceSet(namespaces ...uint32) uint32 {
	var key strings.Builder
	for _, ns := range namespaces {
		key.Write(AppendVarint(nil, ns))
	}
	if idx, ok := b.nssets[key.String()]; ok {
		return idx
	}
	p := b.file.Pool
	idx := uint32(len(p.NamespaceSets))
	p.NamespaceSets = append(p.NamespaceSets, NamespaceSet{Namespaces: append([]uint32(nil), namespaces...)})
	b.nssets[key.String()] = idx
	return idx
}

// AddMultiname interns an arbitrary multiname entry.
func (b *Builder) AddMultiname(mn Multiname) uint32 {
	if idx, ok := b.multinames[mn]; ok {
		return idx
	}
	p := b.file.Pool
	idx := uint32(len(p.Multinames))
	p.Multinames = append(p.Multinames, mn)
	b.multinames[mn] = idx
	return idx
}

// QName interns the qualified name ns::name.
func (b *Builder) QName(ns uint32, name string) uint32 {
	return b.AddMultiname(Multiname{Kind: MultinameKindQName, Namespace: ns, Name: b.String(name)})
}

// PublicName interns a QName in the public namespace.
func (b *Builder) PublicName(name string) uint32 {
	return b.QName(b.Package(""), name)
}

// PackageName interns a QName in the package namespace pkg.
func (b *Builder) PackageName(pkg, name string) uint32 {
	return b.QName(b.Package(pkg), name)
}

// Multiname interns a multiname searched in the given namespace set.
func (b *Builder) Multiname(name string, nsset uint32) uint32 {
	return b.AddMultiname(Multiname{Kind: MultinameKindMultiname, Name: b.String(name), NamespaceSet: nsset})
}

// MultinameL interns a late-bound multiname (name taken from the stack).
func (b *Builder) MultinameL(nsset uint32) uint32 {
	return b.AddMultiname(Multiname{Kind: MultinameKindMultinameL, NamespaceSet: nsset})
}

// ---------------------------------------------------------------------------
// Methods, classes, scripts
// ---------------------------------------------------------------------------

// Method adds a method signature and returns its index.
func (b *Builder) Method(m MethodInfo) uint32 {
	b.file.Methods = append(b.file.Methods, m)
	return uint32(len(b.file.Methods) - 1)
}

// Body attaches body to the method named by body.Method.
func (b *Builder) Body(body MethodBody) {
	b.file.Bodies = append(b.file.Bodies, body)
	b.file.bodyIndex = nil
}

// Function adds a method with a body in one step. The body's Method field
// is filled in.
func (b *Builder) Function(m MethodInfo, body MethodBody) uint32 {
	idx := b.Method(m)
	body.Method = idx
	b.Body(body)
	return idx
}

// Metadata adds a metadata record and returns its index.
func (b *Builder) Metadata(md Metadata) uint32 {
	b.file.Metadata = append(b.file.Metadata, md)
	return uint32(len(b.file.Metadata) - 1)
}

// Class adds a class and returns its index.
func (b *Builder) Class(in InstanceInfo, c ClassInfo) uint32 {
	b.file.Instances = append(b.file.Instances, in)
	b.file.Classes = append(b.file.Classes, c)
	return uint32(len(b.file.Instances) - 1)
}

// Script adds a script and returns its index.
func (b *Builder) Script(s ScriptInfo) uint32 {
	b.file.Scripts = append(b.file.Scripts, s)
	return uint32(len(b.file.Scripts) - 1)
}

// File returns the assembled file. The builder keeps ownership; further
// additions are visible through the returned value.
func (b *Builder) File() *File {
	return b.file
}

// Bytes encodes the assembled file.
func (b *Builder) Bytes() ([]byte, error) {
	return Encode(b.file)
}

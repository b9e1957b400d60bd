package abc

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Namespaces and names
// ---------------------------------------------------------------------------

// NamespaceKind distinguishes the namespace flavours of the format.
type NamespaceKind uint8

const (
	NamespaceKindAny             NamespaceKind = 0x00 // sentinel (pool index 0)
	NamespaceKindPrivate         NamespaceKind = 0x05
	NamespaceKindNamespace       NamespaceKind = 0x08 // user-declared (public) namespace
	NamespaceKindPackage         NamespaceKind = 0x16
	NamespaceKindPackageInternal NamespaceKind = 0x17
	NamespaceKindProtected       NamespaceKind = 0x18
	NamespaceKindExplicit        NamespaceKind = 0x19
	NamespaceKindStaticProtected NamespaceKind = 0x1A
)

func (k NamespaceKind) valid() bool {
	switch k {
	case NamespaceKindPrivate, NamespaceKindNamespace, NamespaceKindPackage,
		NamespaceKindPackageInternal, NamespaceKindProtected, NamespaceKindExplicit,
		NamespaceKindStaticProtected:
		return true
	}
	return false
}

func (k NamespaceKind) String() string {
	switch k {
	case NamespaceKindAny:
		return "any"
	case NamespaceKindPrivate:
		return "private"
	case NamespaceKindNamespace:
		return "namespace"
	case NamespaceKindPackage:
		return "package"
	case NamespaceKindPackageInternal:
		return "internal"
	case NamespaceKindProtected:
		return "protected"
	case NamespaceKindExplicit:
		return "explicit"
	case NamespaceKindStaticProtected:
		return "static protected"
	}
	return fmt.Sprintf("NamespaceKind(0x%02x)", uint8(k))
}

// Namespace is a namespace pool entry. Name == 0 denotes the any namespace.
type Namespace struct {
	Kind NamespaceKind
	Name uint32 // string pool index
}

// NamespaceSet is an ordered, non-empty list of namespace pool indices.
type NamespaceSet struct {
	Namespaces []uint32
}

// MultinameKind tags the multiname variants.
type MultinameKind uint8

const (
	MultinameKindAny        MultinameKind = 0x00 // sentinel (pool index 0)
	MultinameKindQName      MultinameKind = 0x07
	MultinameKindQNameA     MultinameKind = 0x0D
	MultinameKindRTQName    MultinameKind = 0x0F
	MultinameKindRTQNameA   MultinameKind = 0x10
	MultinameKindRTQNameL   MultinameKind = 0x11
	MultinameKindRTQNameLA  MultinameKind = 0x12
	MultinameKindMultiname  MultinameKind = 0x09
	MultinameKindMultinameA MultinameKind = 0x0E
	MultinameKindMultinameL MultinameKind = 0x1B
)

// IsQName reports whether the namespace and name are both fixed.
func (k MultinameKind) IsQName() bool {
	return k == MultinameKindQName || k == MultinameKindQNameA
}

// IsAttribute reports whether this is an attribute ("A") variant.
func (k MultinameKind) IsAttribute() bool {
	switch k {
	case MultinameKindQNameA, MultinameKindRTQNameA, MultinameKindRTQNameLA, MultinameKindMultinameA:
		return true
	}
	return false
}

// HasRuntimeNamespace reports whether the namespace is popped from the
// operand stack.
func (k MultinameKind) HasRuntimeNamespace() bool {
	switch k {
	case MultinameKindRTQName, MultinameKindRTQNameA, MultinameKindRTQNameL, MultinameKindRTQNameLA:
		return true
	}
	return false
}

// HasRuntimeName reports whether the local name is popped from the operand
// stack.
func (k MultinameKind) HasRuntimeName() bool {
	switch k {
	case MultinameKindRTQNameL, MultinameKindRTQNameLA, MultinameKindMultinameL:
		return true
	}
	return false
}

func (k MultinameKind) String() string {
	switch k {
	case MultinameKindAny:
		return "Any"
	case MultinameKindQName:
		return "QName"
	case MultinameKindQNameA:
		return "QNameA"
	case MultinameKindRTQName:
		return "RTQName"
	case MultinameKindRTQNameA:
		return "RTQNameA"
	case MultinameKindRTQNameL:
		return "RTQNameL"
	case MultinameKindRTQNameLA:
		return "RTQNameLA"
	case MultinameKindMultiname:
		return "Multiname"
	case MultinameKindMultinameA:
		return "MultinameA"
	case MultinameKindMultinameL:
		return "MultinameL"
	}
	return fmt.Sprintf("MultinameKind(0x%02x)", uint8(k))
}

// Multiname is a multiname pool entry. Which index fields are meaningful
// depends on Kind; Name == 0 is the wildcard name and Namespace == 0 the
// wildcard namespace.
type Multiname struct {
	Kind         MultinameKind
	Namespace    uint32 // QName
	Name         uint32 // QName, RTQName, Multiname
	NamespaceSet uint32 // Multiname, MultinameL
}

// ---------------------------------------------------------------------------
// ConstantPool
// ---------------------------------------------------------------------------

// ConstantPool holds the seven constant tables. Element 0 of every table is
// the sentinel and is never read from the buffer.
type ConstantPool struct {
	Ints          []int32
	UInts         []uint32
	Doubles       []float64
	Strings       []string
	Namespaces    []Namespace
	NamespaceSets []NamespaceSet
	Multinames    []Multiname
}

// NewConstantPool returns a pool holding only the sentinel entries.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{
		Ints:          []int32{0},
		UInts:         []uint32{0},
		Doubles:       []float64{math.NaN()},
		Strings:       []string{""},
		Namespaces:    []Namespace{{Kind: NamespaceKindAny}},
		NamespaceSets: []NamespaceSet{{}},
		Multinames:    []Multiname{{Kind: MultinameKindAny}},
	}
}

func indexErr(table string, idx uint32, n int) error {
	return fmt.Errorf("%w: %s index %d (size %d)", ErrIndex, table, idx, n)
}

// Int returns the signed integer at idx; index 0 resolves to 0.
func (p *ConstantPool) Int(idx uint32) (int32, error) {
	if int(idx) >= len(p.Ints) {
		return 0, indexErr("int", idx, len(p.Ints))
	}
	return p.Ints[idx], nil
}

// UInt returns the unsigned integer at idx; index 0 resolves to 0.
func (p *ConstantPool) UInt(idx uint32) (uint32, error) {
	if int(idx) >= len(p.UInts) {
		return 0, indexErr("uint", idx, len(p.UInts))
	}
	return p.UInts[idx], nil
}

// Double returns the double at idx; index 0 resolves to NaN.
func (p *ConstantPool) Double(idx uint32) (float64, error) {
	if int(idx) >= len(p.Doubles) {
		return 0, indexErr("double", idx, len(p.Doubles))
	}
	return p.Doubles[idx], nil
}

// String returns the string at idx; index 0 resolves to "".
// Callers that treat index 0 as "any" or "none" must check it first.
func (p *ConstantPool) String(idx uint32) (string, error) {
	if int(idx) >= len(p.Strings) {
		return "", indexErr("string", idx, len(p.Strings))
	}
	return p.Strings[idx], nil
}

// Namespace returns the namespace at idx; index 0 resolves to the any
// namespace.
func (p *ConstantPool) Namespace(idx uint32) (Namespace, error) {
	if int(idx) >= len(p.Namespaces) {
		return Namespace{}, indexErr("namespace", idx, len(p.Namespaces))
	}
	return p.Namespaces[idx], nil
}

// NamespaceSet returns the namespace set at idx; index 0 resolves to the
// empty set.
func (p *ConstantPool) NamespaceSet(idx uint32) (NamespaceSet, error) {
	if int(idx) >= len(p.NamespaceSets) {
		return NamespaceSet{}, indexErr("namespace set", idx, len(p.NamespaceSets))
	}
	return p.NamespaceSets[idx], nil
}

// Multiname returns the multiname at idx; index 0 resolves to the any name.
func (p *ConstantPool) Multiname(idx uint32) (Multiname, error) {
	if int(idx) >= len(p.Multinames) {
		return Multiname{}, indexErr("multiname", idx, len(p.Multinames))
	}
	return p.Multinames[idx], nil
}

// NamespaceURI returns the URI string of the namespace at idx.
func (p *ConstantPool) NamespaceURI(idx uint32) (string, error) {
	ns, err := p.Namespace(idx)
	if err != nil {
		return "", err
	}
	return p.String(ns.Name)
}

// QualifiedName renders a multiname for display and for name-keyed tables:
// "uri::name" for QNames in a non-empty namespace, the bare name otherwise,
// and "*" for wildcards.
func (p *ConstantPool) QualifiedName(idx uint32) string {
	mn, err := p.Multiname(idx)
	if err != nil {
		return fmt.Sprintf("<bad multiname %d>", idx)
	}
	name := "*"
	if mn.Name != 0 && int(mn.Name) < len(p.Strings) {
		name = p.Strings[mn.Name]
	}
	switch {
	case mn.Kind.IsQName():
		if mn.Namespace == 0 {
			return "*::" + name
		}
		uri, _ := p.NamespaceURI(mn.Namespace)
		if uri == "" {
			return name
		}
		return uri + "::" + name
	case mn.Kind == MultinameKindAny:
		return "*"
	case mn.Kind.HasRuntimeName():
		return "[runtime]"
	}
	return name
}

// ---------------------------------------------------------------------------
// Pool decoding
// ---------------------------------------------------------------------------

// readCount reads a pool count; entries 1..n-1 follow. A count of 0 or 1
// both mean "sentinel only".
func readCount(r *Reader) (int, error) {
	n, err := r.ReadU30()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if int(n-1) > r.Remaining() {
		return 0, fmt.Errorf("%w: pool count %d exceeds remaining %d bytes", ErrTruncated, n, r.Remaining())
	}
	return int(n - 1), nil
}

// ReadConstantPool decodes the seven pools in dependency order.
func ReadConstantPool(r *Reader) (*ConstantPool, error) {
	p := NewConstantPool()

	n, err := readCount(r)
	if err != nil {
		return nil, decodeErr("int pool", r.Offset(), err)
	}
	for i := 0; i < n; i++ {
		v, err := r.ReadS32()
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("int pool entry %d", i+1), r.Offset(), err)
		}
		p.Ints = append(p.Ints, v)
	}

	if n, err = readCount(r); err != nil {
		return nil, decodeErr("uint pool", r.Offset(), err)
	}
	for i := 0; i < n; i++ {
		v, err := r.ReadU32()
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("uint pool entry %d", i+1), r.Offset(), err)
		}
		p.UInts = append(p.UInts, v)
	}

	if n, err = readCount(r); err != nil {
		return nil, decodeErr("double pool", r.Offset(), err)
	}
	for i := 0; i < n; i++ {
		v, err := r.ReadDouble()
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("double pool entry %d", i+1), r.Offset(), err)
		}
		p.Doubles = append(p.Doubles, v)
	}

	if n, err = readCount(r); err != nil {
		return nil, decodeErr("string pool", r.Offset(), err)
	}
	for i := 0; i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("string pool entry %d", i+1), r.Offset(), err)
		}
		p.Strings = append(p.Strings, s)
	}

	if n, err = readCount(r); err != nil {
		return nil, decodeErr("namespace pool", r.Offset(), err)
	}
	for i := 0; i < n; i++ {
		ns, err := p.readNamespace(r)
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("namespace %d", i+1), r.Offset(), err)
		}
		p.Namespaces = append(p.Namespaces, ns)
	}

	if n, err = readCount(r); err != nil {
		return nil, decodeErr("namespace set pool", r.Offset(), err)
	}
	for i := 0; i < n; i++ {
		set, err := p.readNamespaceSet(r)
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("namespace set %d", i+1), r.Offset(), err)
		}
		p.NamespaceSets = append(p.NamespaceSets, set)
	}

	if n, err = readCount(r); err != nil {
		return nil, decodeErr("multiname pool", r.Offset(), err)
	}
	for i := 0; i < n; i++ {
		mn, err := p.readMultiname(r)
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("multiname %d", i+1), r.Offset(), err)
		}
		p.Multinames = append(p.Multinames, mn)
	}

	return p, nil
}

func (p *ConstantPool) checkString(idx uint32) error {
	if int(idx) >= len(p.Strings) {
		return indexErr("string", idx, len(p.Strings))
	}
	return nil
}

func (p *ConstantPool) readNamespace(r *Reader) (Namespace, error) {
	kind, err := r.ReadU8()
	if err != nil {
		return Namespace{}, err
	}
	if !NamespaceKind(kind).valid() {
		return Namespace{}, fmt.Errorf("%w: unknown namespace kind 0x%02x", ErrFormat, kind)
	}
	name, err := r.ReadU30()
	if err != nil {
		return Namespace{}, err
	}
	if err := p.checkString(name); err != nil {
		return Namespace{}, err
	}
	return Namespace{Kind: NamespaceKind(kind), Name: name}, nil
}

func (p *ConstantPool) readNamespaceSet(r *Reader) (NamespaceSet, error) {
	count, err := r.ReadU30()
	if err != nil {
		return NamespaceSet{}, err
	}
	if count == 0 {
		return NamespaceSet{}, fmt.Errorf("%w: empty namespace set", ErrVerify)
	}
	if int(count) > r.Remaining() {
		return NamespaceSet{}, fmt.Errorf("%w: namespace set of %d entries", ErrTruncated, count)
	}
	set := NamespaceSet{Namespaces: make([]uint32, count)}
	for i := range set.Namespaces {
		idx, err := r.ReadU30()
		if err != nil {
			return NamespaceSet{}, err
		}
		if idx == 0 {
			return NamespaceSet{}, fmt.Errorf("%w: namespace set entry %d is the sentinel", ErrVerify, i)
		}
		if int(idx) >= len(p.Namespaces) {
			return NamespaceSet{}, indexErr("namespace", idx, len(p.Namespaces))
		}
		set.Namespaces[i] = idx
	}
	return set, nil
}

func (p *ConstantPool) readMultiname(r *Reader) (Multiname, error) {
	kind, err := r.ReadU8()
	if err != nil {
		return Multiname{}, err
	}
	mn := Multiname{Kind: MultinameKind(kind)}
	switch mn.Kind {
	case MultinameKindQName, MultinameKindQNameA:
		if mn.Namespace, err = r.ReadU30(); err != nil {
			return mn, err
		}
		if int(mn.Namespace) >= len(p.Namespaces) {
			return mn, indexErr("namespace", mn.Namespace, len(p.Namespaces))
		}
		if mn.Name, err = r.ReadU30(); err != nil {
			return mn, err
		}
		if err := p.checkString(mn.Name); err != nil {
			return mn, err
		}
	case MultinameKindRTQName, MultinameKindRTQNameA:
		if mn.Name, err = r.ReadU30(); err != nil {
			return mn, err
		}
		if err := p.checkString(mn.Name); err != nil {
			return mn, err
		}
	case MultinameKindRTQNameL, MultinameKindRTQNameLA:
		// no payload
	case MultinameKindMultiname, MultinameKindMultinameA:
		if mn.Name, err = r.ReadU30(); err != nil {
			return mn, err
		}
		if err := p.checkString(mn.Name); err != nil {
			return mn, err
		}
		if mn.NamespaceSet, err = r.ReadU30(); err != nil {
			return mn, err
		}
		if err := p.checkNamespaceSet(mn.NamespaceSet); err != nil {
			return mn, err
		}
	case MultinameKindMultinameL:
		if mn.NamespaceSet, err = r.ReadU30(); err != nil {
			return mn, err
		}
		if err := p.checkNamespaceSet(mn.NamespaceSet); err != nil {
			return mn, err
		}
	default:
		return mn, fmt.Errorf("%w: unknown multiname kind 0x%02x", ErrFormat, kind)
	}
	return mn, nil
}

func (p *ConstantPool) checkNamespaceSet(idx uint32) error {
	if idx == 0 {
		return fmt.Errorf("%w: multiname references the sentinel namespace set", ErrVerify)
	}
	if int(idx) >= len(p.NamespaceSets) {
		return indexErr("namespace set", idx, len(p.NamespaceSets))
	}
	return nil
}

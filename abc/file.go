package abc

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("avm2.abc")

// ClassFlags is the flags byte of an instance descriptor.
type ClassFlags uint8

const (
	ClassSealed      ClassFlags = 0x01
	ClassFinal       ClassFlags = 0x02
	ClassInterface   ClassFlags = 0x04
	ClassProtectedNs ClassFlags = 0x08
)

// MetadataItem is one key/value pair of a metadata record; Key == 0 means
// a keyless value.
type MetadataItem struct {
	Key   uint32
	Value uint32
}

// Metadata is a metadata record, e.g. [Event(name="change")].
type Metadata struct {
	Name  uint32
	Items []MetadataItem
}

// InstanceInfo describes the instance side of a class.
type InstanceInfo struct {
	Name        uint32 // QName multiname
	SuperName   uint32 // multiname, 0 = no super class
	Flags       ClassFlags
	ProtectedNs uint32 // namespace index, only with ClassProtectedNs
	Interfaces  []uint32
	Init        uint32 // instance initializer method
	Traits      []Trait
}

func (i *InstanceInfo) IsSealed() bool    { return i.Flags&ClassSealed != 0 }
func (i *InstanceInfo) IsFinal() bool     { return i.Flags&ClassFinal != 0 }
func (i *InstanceInfo) IsInterface() bool { return i.Flags&ClassInterface != 0 }
func (i *InstanceInfo) IsDynamic() bool   { return i.Flags&ClassSealed == 0 }

// ClassInfo describes the static side of the class with the same index.
type ClassInfo struct {
	Init   uint32 // static initializer method
	Traits []Trait
}

// ScriptInfo is a top-level initializer and its traits.
type ScriptInfo struct {
	Init   uint32
	Traits []Trait
}

// ---------------------------------------------------------------------------
// File: a decoded ABC payload
// ---------------------------------------------------------------------------

// File is a fully decoded, index-checked ABC payload.
type File struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         *ConstantPool
	Methods      []MethodInfo
	Metadata     []Metadata
	Instances    []InstanceInfo
	Classes      []ClassInfo
	Scripts      []ScriptInfo
	Bodies       []MethodBody

	bodyIndex []int // method index -> body index, -1 if none
}

// Body returns the body of the given method, if it has one. On a file
// whose bodies fail IndexBodies no method has a body.
func (f *File) Body(method uint32) (*MethodBody, bool) {
	if f.bodyIndex == nil {
		if err := f.IndexBodies(); err != nil {
			return nil, false
		}
	}
	if int(method) >= len(f.bodyIndex) || f.bodyIndex[method] < 0 {
		return nil, false
	}
	return &f.Bodies[f.bodyIndex[method]], true
}

// IndexBodies checks that every body belongs to exactly one non-native
// method and rebuilds the method-to-body index. Parse calls it; files
// assembled by hand are checked by Link.
func (f *File) IndexBodies() error {
	f.bodyIndex = nil
	index := make([]int, len(f.Methods))
	for i := range index {
		index[i] = -1
	}
	for i := range f.Bodies {
		m := f.Bodies[i].Method
		if int(m) >= len(f.Methods) {
			return fmt.Errorf("%w: body %d for method %d (count %d)", ErrIndex, i, m, len(f.Methods))
		}
		if index[m] >= 0 {
			return fmt.Errorf("%w: method %d has bodies %d and %d", ErrVerify, m, index[m], i)
		}
		if f.Methods[m].Has(MethodNative) {
			return fmt.Errorf("%w: native method %d has a body", ErrVerify, m)
		}
		index[m] = i
	}
	f.bodyIndex = index
	return nil
}

// ClassName returns the display name of class i.
func (f *File) ClassName(i int) string {
	if i < 0 || i >= len(f.Instances) {
		return fmt.Sprintf("<class %d>", i)
	}
	return f.Pool.QualifiedName(f.Instances[i].Name)
}

// Parse decodes a raw ABC payload. The payload is rejected as a whole on
// the first error; errors wrap ErrTruncated, ErrFormat, ErrVerify or
// ErrIndex.
func Parse(data []byte) (*File, error) {
	r := NewReader(data)
	f := &File{}
	var err error

	if f.MinorVersion, err = r.ReadU16(); err != nil {
		return nil, decodeErr("header", r.Offset(), err)
	}
	if f.MajorVersion, err = r.ReadU16(); err != nil {
		return nil, decodeErr("header", r.Offset(), err)
	}

	if f.Pool, err = ReadConstantPool(r); err != nil {
		return nil, err
	}
	p := f.Pool

	// Methods
	n, err := readArrayCount(r)
	if err != nil {
		return nil, decodeErr("method count", r.Offset(), err)
	}
	f.Methods = make([]MethodInfo, n)
	for i := range f.Methods {
		if f.Methods[i], err = readMethodInfo(r, p); err != nil {
			return nil, decodeErr(fmt.Sprintf("method %d", i), r.Offset(), err)
		}
	}

	// Metadata
	if n, err = readArrayCount(r); err != nil {
		return nil, decodeErr("metadata count", r.Offset(), err)
	}
	f.Metadata = make([]Metadata, n)
	for i := range f.Metadata {
		if f.Metadata[i], err = readMetadata(r, p); err != nil {
			return nil, decodeErr(fmt.Sprintf("metadata %d", i), r.Offset(), err)
		}
	}

	// Instances and classes share one count.
	if n, err = readArrayCount(r); err != nil {
		return nil, decodeErr("class count", r.Offset(), err)
	}
	lim := limits{methods: len(f.Methods), metadata: len(f.Metadata), classes: n}
	f.Instances = make([]InstanceInfo, n)
	for i := range f.Instances {
		if f.Instances[i], err = readInstance(r, p, lim); err != nil {
			return nil, decodeErr(fmt.Sprintf("instance %d", i), r.Offset(), err)
		}
	}
	f.Classes = make([]ClassInfo, n)
	for i := range f.Classes {
		if f.Classes[i], err = readClass(r, p, lim); err != nil {
			return nil, decodeErr(fmt.Sprintf("class %d", i), r.Offset(), err)
		}
	}

	// Scripts
	if n, err = readArrayCount(r); err != nil {
		return nil, decodeErr("script count", r.Offset(), err)
	}
	f.Scripts = make([]ScriptInfo, n)
	for i := range f.Scripts {
		if f.Scripts[i], err = readScript(r, p, lim); err != nil {
			return nil, decodeErr(fmt.Sprintf("script %d", i), r.Offset(), err)
		}
	}

	// Method bodies
	if n, err = readArrayCount(r); err != nil {
		return nil, decodeErr("method body count", r.Offset(), err)
	}
	f.Bodies = make([]MethodBody, n)
	for i := range f.Bodies {
		if f.Bodies[i], err = readMethodBody(r, p, lim); err != nil {
			return nil, decodeErr(fmt.Sprintf("method body %d", i), r.Offset(), err)
		}
	}
	if err := f.IndexBodies(); err != nil {
		return nil, decodeErr("method bodies", r.Offset(), err)
	}

	if !r.EOF() {
		log.Warningf("ignoring %d trailing bytes after method bodies", r.Remaining())
	}
	log.Debugf("parsed abc %d.%d: %d strings, %d multinames, %d methods, %d classes, %d scripts, %d bodies",
		f.MajorVersion, f.MinorVersion, len(p.Strings)-1, len(p.Multinames)-1,
		len(f.Methods), len(f.Instances), len(f.Scripts), len(f.Bodies))
	return f, nil
}

// readArrayCount reads a u30 element count and sanity-checks it against the
// remaining input (every element occupies at least one byte).
func readArrayCount(r *Reader) (int, error) {
	n, err := r.ReadU30()
	if err != nil {
		return 0, err
	}
	if int(n) > r.Remaining() {
		return 0, fmt.Errorf("%w: %d entries declared, %d bytes remain", ErrTruncated, n, r.Remaining())
	}
	return int(n), nil
}

func readMetadata(r *Reader, p *ConstantPool) (Metadata, error) {
	var md Metadata
	var err error
	if md.Name, err = r.ReadU30(); err != nil {
		return md, err
	}
	if err := p.checkString(md.Name); err != nil {
		return md, err
	}
	n, err := readArrayCount(r)
	if err != nil {
		return md, err
	}
	md.Items = make([]MetadataItem, n)
	// The format stores all keys, then all values.
	for i := range md.Items {
		if md.Items[i].Key, err = r.ReadU30(); err != nil {
			return md, err
		}
		if err := p.checkString(md.Items[i].Key); err != nil {
			return md, err
		}
	}
	for i := range md.Items {
		if md.Items[i].Value, err = r.ReadU30(); err != nil {
			return md, err
		}
		if err := p.checkString(md.Items[i].Value); err != nil {
			return md, err
		}
	}
	return md, nil
}

func readInstance(r *Reader, p *ConstantPool, lim limits) (InstanceInfo, error) {
	var in InstanceInfo
	var err error
	if in.Name, err = r.ReadU30(); err != nil {
		return in, err
	}
	mn, err := p.Multiname(in.Name)
	if err != nil {
		return in, err
	}
	if !mn.Kind.IsQName() {
		return in, fmt.Errorf("%w: class name %d is a %s, not a QName", ErrVerify, in.Name, mn.Kind)
	}
	if in.SuperName, err = r.ReadU30(); err != nil {
		return in, err
	}
	if _, err := p.Multiname(in.SuperName); err != nil {
		return in, err
	}
	flags, err := r.ReadU8()
	if err != nil {
		return in, err
	}
	in.Flags = ClassFlags(flags)
	if in.Flags&ClassProtectedNs != 0 {
		if in.ProtectedNs, err = r.ReadU30(); err != nil {
			return in, err
		}
		if _, err := p.Namespace(in.ProtectedNs); err != nil {
			return in, err
		}
	}
	n, err := readArrayCount(r)
	if err != nil {
		return in, err
	}
	in.Interfaces = make([]uint32, n)
	for i := range in.Interfaces {
		if in.Interfaces[i], err = r.ReadU30(); err != nil {
			return in, err
		}
		if in.Interfaces[i] == 0 {
			return in, fmt.Errorf("%w: interface %d is the sentinel multiname", ErrVerify, i)
		}
		if _, err := p.Multiname(in.Interfaces[i]); err != nil {
			return in, err
		}
	}
	if in.Init, err = r.ReadU30(); err != nil {
		return in, err
	}
	if int(in.Init) >= lim.methods {
		return in, fmt.Errorf("%w: instance initializer %d (count %d)", ErrIndex, in.Init, lim.methods)
	}
	if in.Traits, err = readTraits(r, p, lim); err != nil {
		return in, err
	}
	return in, nil
}

func readClass(r *Reader, p *ConstantPool, lim limits) (ClassInfo, error) {
	var c ClassInfo
	var err error
	if c.Init, err = r.ReadU30(); err != nil {
		return c, err
	}
	if int(c.Init) >= lim.methods {
		return c, fmt.Errorf("%w: static initializer %d (count %d)", ErrIndex, c.Init, lim.methods)
	}
	if c.Traits, err = readTraits(r, p, lim); err != nil {
		return c, err
	}
	return c, nil
}

func readScript(r *Reader, p *ConstantPool, lim limits) (ScriptInfo, error) {
	var s ScriptInfo
	var err error
	if s.Init, err = r.ReadU30(); err != nil {
		return s, err
	}
	if int(s.Init) >= lim.methods {
		return s, fmt.Errorf("%w: script initializer %d (count %d)", ErrIndex, s.Init, lim.methods)
	}
	if s.Traits, err = readTraits(r, p, lim); err != nil {
		return s, err
	}
	return s, nil
}

// SplitDoABC splits a DoABC tag body into its flags, name and the ABC
// payload that follows the NUL-terminated name.
func SplitDoABC(raw []byte) (flags uint32, name string, payload []byte, err error) {
	r := NewReader(raw)
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, "", nil, decodeErr("DoABC header", r.Offset(), err)
	}
	flags = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	if name, err = r.ReadCString(); err != nil {
		return 0, "", nil, decodeErr("DoABC name", r.Offset(), err)
	}
	payload, _ = r.ReadBytes(r.Remaining())
	return flags, name, payload, nil
}

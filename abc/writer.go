package abc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Writer: primitive wire encodings
// ---------------------------------------------------------------------------

// Writer accumulates ABC-encoded bytes.
type Writer struct {
	buf bytes.Buffer
	err error
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded data.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Err returns the first encoding error (an out-of-range u30).
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) WriteU8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// WriteS24 writes a three-byte little-endian signed integer.
func (w *Writer) WriteS24(v int32) {
	u := uint32(v)
	w.buf.WriteByte(byte(u))
	w.buf.WriteByte(byte(u >> 8))
	w.buf.WriteByte(byte(u >> 16))
}

// WriteU32 writes a variable-length unsigned integer (1 to 5 bytes).
func (w *Writer) WriteU32(v uint32) {
	w.buf.Write(AppendVarint(nil, v))
}

// WriteU30 writes a variable-length integer, recording an error if v does
// not fit in 30 bits.
func (w *Writer) WriteU30(v uint32) {
	if v > MaxU30 && w.err == nil {
		w.err = fmt.Errorf("%w: u30 value %d exceeds 30 bits", ErrFormat, v)
	}
	w.WriteU32(v)
}

// WriteS32 writes the two's-complement bits of v as a variable-length
// integer.
func (w *Writer) WriteS32(v int32) {
	w.WriteU32(uint32(v))
}

func (w *Writer) WriteDouble(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
}

// WriteString writes a u30 length followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	w.WriteU30(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *Writer) WriteBytes(b []byte) {
	w.buf.Write(b)
}

// AppendVarint appends the 7-bits-per-byte encoding of v to dst.
func AppendVarint(dst []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v == 0 {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// ---------------------------------------------------------------------------
// File encoding
// ---------------------------------------------------------------------------

// Encode serializes f in the exact wire layout Parse reads.
func Encode(f *File) ([]byte, error) {
	w := NewWriter()
	w.WriteU16(f.MinorVersion)
	w.WriteU16(f.MajorVersion)

	p := f.Pool
	if p == nil {
		p = NewConstantPool()
	}
	writePoolCount(w, len(p.Ints))
	for _, v := range p.Ints[1:] {
		w.WriteS32(v)
	}
	writePoolCount(w, len(p.UInts))
	for _, v := range p.UInts[1:] {
		w.WriteU32(v)
	}
	writePoolCount(w, len(p.Doubles))
	for _, v := range p.Doubles[1:] {
		w.WriteDouble(v)
	}
	writePoolCount(w, len(p.Strings))
	for _, v := range p.Strings[1:] {
		w.WriteString(v)
	}
	writePoolCount(w, len(p.Namespaces))
	for _, ns := range p.Namespaces[1:] {
		w.WriteU8(uint8(ns.Kind))
		w.WriteU30(ns.Name)
	}
	writePoolCount(w, len(p.NamespaceSets))
	for _, set := range p.NamespaceSets[1:] {
		w.WriteU30(uint32(len(set.Namespaces)))
		for _, ns := range set.Namespaces {
			w.WriteU30(ns)
		}
	}
	writePoolCount(w, len(p.Multinames))
	for _, mn := range p.Multinames[1:] {
		if err := writeMultiname(w, mn); err != nil {
			return nil, err
		}
	}

	w.WriteU30(uint32(len(f.Methods)))
	for i := range f.Methods {
		writeMethodInfo(w, &f.Methods[i])
	}

	w.WriteU30(uint32(len(f.Metadata)))
	for _, md := range f.Metadata {
		w.WriteU30(md.Name)
		w.WriteU30(uint32(len(md.Items)))
		for _, it := range md.Items {
			w.WriteU30(it.Key)
		}
		for _, it := range md.Items {
			w.WriteU30(it.Value)
		}
	}

	if len(f.Instances) != len(f.Classes) {
		return nil, fmt.Errorf("%w: %d instances but %d classes", ErrVerify, len(f.Instances), len(f.Classes))
	}
	w.WriteU30(uint32(len(f.Instances)))
	for i := range f.Instances {
		in := &f.Instances[i]
		w.WriteU30(in.Name)
		w.WriteU30(in.SuperName)
		w.WriteU8(uint8(in.Flags))
		if in.Flags&ClassProtectedNs != 0 {
			w.WriteU30(in.ProtectedNs)
		}
		w.WriteU30(uint32(len(in.Interfaces)))
		for _, iface := range in.Interfaces {
			w.WriteU30(iface)
		}
		w.WriteU30(in.Init)
		writeTraits(w, in.Traits)
	}
	for i := range f.Classes {
		w.WriteU30(f.Classes[i].Init)
		writeTraits(w, f.Classes[i].Traits)
	}

	w.WriteU30(uint32(len(f.Scripts)))
	for i := range f.Scripts {
		w.WriteU30(f.Scripts[i].Init)
		writeTraits(w, f.Scripts[i].Traits)
	}

	w.WriteU30(uint32(len(f.Bodies)))
	for i := range f.Bodies {
		b := &f.Bodies[i]
		w.WriteU30(b.Method)
		w.WriteU30(b.MaxStack)
		w.WriteU30(b.LocalCount)
		w.WriteU30(b.InitScopeDepth)
		w.WriteU30(b.MaxScopeDepth)
		w.WriteU30(uint32(len(b.Code)))
		w.WriteBytes(b.Code)
		w.WriteU30(uint32(len(b.Exceptions)))
		for _, e := range b.Exceptions {
			w.WriteU30(e.From)
			w.WriteU30(e.To)
			w.WriteU30(e.Target)
			w.WriteU30(e.ExcType)
			w.WriteU30(e.VarName)
		}
		writeTraits(w, b.Traits)
	}

	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// writePoolCount writes the count of a pool whose slice includes the
// sentinel: a pool holding only the sentinel is written as 0.
func writePoolCount(w *Writer, n int) {
	if n <= 1 {
		w.WriteU30(0)
		return
	}
	w.WriteU30(uint32(n))
}

func writeMultiname(w *Writer, mn Multiname) error {
	w.WriteU8(uint8(mn.Kind))
	switch mn.Kind {
	case MultinameKindQName, MultinameKindQNameA:
		w.WriteU30(mn.Namespace)
		w.WriteU30(mn.Name)
	case MultinameKindRTQName, MultinameKindRTQNameA:
		w.WriteU30(mn.Name)
	case MultinameKindRTQNameL, MultinameKindRTQNameLA:
	case MultinameKindMultiname, MultinameKindMultinameA:
		w.WriteU30(mn.Name)
		w.WriteU30(mn.NamespaceSet)
	case MultinameKindMultinameL:
		w.WriteU30(mn.NamespaceSet)
	default:
		return fmt.Errorf("%w: cannot encode multiname kind 0x%02x", ErrFormat, uint8(mn.Kind))
	}
	return nil
}

func writeMethodInfo(w *Writer, m *MethodInfo) {
	flags := m.Flags
	if len(m.Options) > 0 {
		flags |= MethodHasOptional
	} else {
		flags &^= MethodHasOptional
	}
	if len(m.ParamNames) > 0 {
		flags |= MethodHasParamNames
	} else {
		flags &^= MethodHasParamNames
	}
	w.WriteU30(uint32(len(m.ParamTypes)))
	w.WriteU30(m.ReturnType)
	for _, t := range m.ParamTypes {
		w.WriteU30(t)
	}
	w.WriteU30(m.Name)
	w.WriteU8(uint8(flags))
	if len(m.Options) > 0 {
		w.WriteU30(uint32(len(m.Options)))
		for _, o := range m.Options {
			w.WriteU30(o.Value)
			w.WriteU8(uint8(o.Kind))
		}
	}
	for _, n := range m.ParamNames {
		w.WriteU30(n)
	}
}

func writeTraits(w *Writer, traits []Trait) {
	w.WriteU30(uint32(len(traits)))
	for i := range traits {
		t := &traits[i]
		attr := t.Attr
		if len(t.Metadata) > 0 {
			attr |= TraitAttrMetadata
		} else {
			attr &^= TraitAttrMetadata
		}
		w.WriteU30(t.Name)
		w.WriteU8(uint8(t.Kind) | uint8(attr)<<4)
		switch t.Kind {
		case TraitSlot, TraitConst:
			w.WriteU30(t.SlotID)
			w.WriteU30(t.TypeName)
			w.WriteU30(t.ValueIndex)
			if t.ValueIndex != 0 {
				w.WriteU8(uint8(t.ValueKind))
			}
		case TraitMethod, TraitGetter, TraitSetter:
			w.WriteU30(t.DispID)
			w.WriteU30(t.Method)
		case TraitClass:
			w.WriteU30(t.SlotID)
			w.WriteU30(t.Class)
		case TraitFunction:
			w.WriteU30(t.SlotID)
			w.WriteU30(t.Method)
		}
		if len(t.Metadata) > 0 {
			w.WriteU30(uint32(len(t.Metadata)))
			for _, md := range t.Metadata {
				w.WriteU30(md)
			}
		}
	}
}

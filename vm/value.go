package vm

import (
	"fmt"
	"math"
	"strconv"

	"github.com/chazu/avm2/abc"
)

// Kind is the runtime type tag of a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindInt
	KindUInt
	KindNumber
	KindString
	KindNamespace
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "Boolean"
	case KindInt:
		return "int"
	case KindUInt:
		return "uint"
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindNamespace:
		return "Namespace"
	case KindObject:
		return "Object"
	}
	return "invalid"
}

// Value is a tagged runtime value. Scalars live in bits, strings and
// namespace URIs in str, and objects are arena references (see Ref).
//
// The zero Value is undefined.
type Value struct {
	kind Kind
	bits uint64
	str  string
}

// Pre-defined values
var (
	Undefined = Value{}
	Null      = Value{kind: KindNull}
	True      = Value{kind: KindBoolean, bits: 1}
	False     = Value{kind: KindBoolean}
	NaN       = Value{kind: KindNumber, bits: math.Float64bits(math.NaN())}
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func Int(i int32) Value {
	return Value{kind: KindInt, bits: uint64(uint32(i))}
}

func UInt(u uint32) Value {
	return Value{kind: KindUInt, bits: uint64(u)}
}

func Number(f float64) Value {
	return Value{kind: KindNumber, bits: math.Float64bits(f)}
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// NamespaceValue wraps a namespace as a first-class value.
func NamespaceValue(ns Namespace) Value {
	return Value{kind: KindNamespace, bits: uint64(ns.Kind) | uint64(ns.id)<<8, str: ns.URI}
}

// ObjectValue wraps an arena reference.
func ObjectValue(r Ref) Value {
	return Value{kind: KindObject, bits: uint64(r)}
}

// numberResult returns an int-tagged value when f is an integral value in
// the int32 range (other than -0), and a Number otherwise.
func numberResult(f float64) Value {
	if f >= math.MinInt32 && f <= math.MaxInt32 && f == math.Trunc(f) && !(f == 0 && math.Signbit(f)) {
		return Int(int32(f))
	}
	return Number(f)
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsObject() bool    { return v.kind == KindObject }
func (v Value) IsString() bool    { return v.kind == KindString }

// IsNullish reports whether v is null or undefined.
func (v Value) IsNullish() bool {
	return v.kind == KindUndefined || v.kind == KindNull
}

// IsNumeric reports whether v is an int, uint or Number.
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindUInt || v.kind == KindNumber
}

// IsPrimitive reports whether v is anything other than an object.
func (v Value) IsPrimitive() bool {
	return v.kind != KindObject
}

// String renders v for diagnostics. Objects print as their heap reference.
func (v Value) String() string {
	switch v.kind {
	case KindObject:
		return fmt.Sprintf("object#%d", v.Ref())
	case KindString:
		return strconv.Quote(v.str)
	}
	return primitiveToString(v)
}

// ---------------------------------------------------------------------------
// Raw accessors (no coercion; callers check Kind first)
// ---------------------------------------------------------------------------

func (v Value) AsBool() bool     { return v.bits != 0 }
func (v Value) AsInt() int32     { return int32(uint32(v.bits)) }
func (v Value) AsUInt() uint32   { return uint32(v.bits) }
func (v Value) AsString() string { return v.str }
func (v Value) Ref() Ref         { return Ref(v.bits) }

// AsNumber returns the numeric value of an int, uint or Number.
func (v Value) AsNumber() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.AsInt())
	case KindUInt:
		return float64(v.AsUInt())
	case KindNumber:
		return math.Float64frombits(v.bits)
	}
	return math.NaN()
}

// AsNamespace returns the namespace carried by a namespace value.
func (v Value) AsNamespace() Namespace {
	return Namespace{Kind: abc.NamespaceKind(v.bits & 0xFF), URI: v.str, id: uint32(v.bits >> 8)}
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// StrictEquals implements the strictequals opcode: numbers compare by value
// across int, uint and Number; everything else compares by kind and value.
func StrictEquals(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		if a.kind == b.kind && a.kind != KindNumber {
			return a.bits == b.bits
		}
		return a.AsNumber() == b.AsNumber()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBoolean, KindObject:
		return a.bits == b.bits
	case KindString:
		return a.str == b.str
	case KindNamespace:
		return a.str == b.str && a.AsNamespace().id == b.AsNamespace().id
	}
	return false
}

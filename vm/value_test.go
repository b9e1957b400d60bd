package vm

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/avm2/abc"
)

// ---------------------------------------------------------------------------
// Value construction
// ---------------------------------------------------------------------------

func TestNumberResultPrefersInt(t *testing.T) {
	tests := []struct {
		in   float64
		kind Kind
	}{
		{0, KindInt},
		{42, KindInt},
		{-7, KindInt},
		{math.MaxInt32, KindInt},
		{math.MinInt32, KindInt},
		{math.MaxInt32 + 1, KindNumber},
		{1.5, KindNumber},
		{math.Copysign(0, -1), KindNumber},
		{math.NaN(), KindNumber},
		{math.Inf(1), KindNumber},
	}
	for _, tt := range tests {
		if got := numberResult(tt.in).Kind(); got != tt.kind {
			t.Errorf("numberResult(%v).Kind() = %v, want %v", tt.in, got, tt.kind)
		}
	}
}

func TestNumericAccessors(t *testing.T) {
	if got := Int(-3).AsNumber(); got != -3 {
		t.Errorf("Int(-3).AsNumber() = %v", got)
	}
	if got := UInt(math.MaxUint32).AsNumber(); got != math.MaxUint32 {
		t.Errorf("UInt(max).AsNumber() = %v", got)
	}
	if got := Number(2.5).AsNumber(); got != 2.5 {
		t.Errorf("Number(2.5).AsNumber() = %v", got)
	}
	if !Undefined.IsNullish() || !Null.IsNullish() || False.IsNullish() {
		t.Error("IsNullish misclassifies primitives")
	}
}

// ---------------------------------------------------------------------------
// Primitive coercions
// ---------------------------------------------------------------------------

func TestToBoolean(t *testing.T) {
	tests := []struct {
		in   Value
		want bool
	}{
		{Undefined, false},
		{Null, false},
		{True, true},
		{False, false},
		{Int(0), false},
		{Int(-1), true},
		{UInt(0), false},
		{Number(0.1), true},
		{NaN, false},
		{String(""), false},
		{String("0"), true},
		{String("false"), true},
	}
	for _, tt := range tests {
		if got := ToBoolean(tt.in); got != tt.want {
			t.Errorf("ToBoolean(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStringToNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"  12  ", 12},
		{"-4.5", -4.5},
		{"+3", 3},
		{".5", 0.5},
		{"5.", 5},
		{"1e3", 1000},
		{"0x1F", 31},
		{"-0x10", -16},
		{"Infinity", math.Inf(1)},
		{"-Infinity", math.Inf(-1)},
	}
	for _, tt := range tests {
		if got := StringToNumber(tt.in); got != tt.want {
			t.Errorf("StringToNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, s := range []string{"abc", "1e", "12px", "0x", "--1", "1.2.3", "infinity"} {
		if got := StringToNumber(s); !math.IsNaN(got) {
			t.Errorf("StringToNumber(%q) = %v, want NaN", s, got)
		}
	}
}

func TestNumberToString(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{100, "100"},
		{-42, "-42"},
		{123.456, "123.456"},
		{0.1, "0.1"},
		{0.000001, "0.000001"},
		{1e-7, "1e-7"},
		{1.5e-10, "1.5e-10"},
		{1e21, "1e+21"},
		{123456789012345680000, "123456789012345680000"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		if got := NumberToString(tt.in); got != tt.want {
			t.Errorf("NumberToString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDoubleToInt32(t *testing.T) {
	tests := []struct {
		in   float64
		want int32
	}{
		{0, 0},
		{3.9, 3},
		{-3.9, -3},
		{-1, -1},
		{2147483648, -2147483648},
		{4294967296 + 5, 5},
		{-4294967296 - 5, -5},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, tt := range tests {
		if got := DoubleToInt32(tt.in); got != tt.want {
			t.Errorf("DoubleToInt32(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := DoubleToUint32(-1); got != math.MaxUint32 {
		t.Errorf("DoubleToUint32(-1) = %d, want %d", got, uint32(math.MaxUint32))
	}
}

func TestFormatRadix(t *testing.T) {
	tests := []struct {
		in    float64
		radix int
		want  string
	}{
		{255, 16, "ff"},
		{-255, 16, "-ff"},
		{5, 2, "101"},
		{35, 36, "z"},
		{1.5, 16, "1.5"},
	}
	for _, tt := range tests {
		if got := formatRadix(tt.in, tt.radix); got != tt.want {
			t.Errorf("formatRadix(%v, %d) = %q, want %q", tt.in, tt.radix, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

func TestStrictEquals(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{Int(1), Number(1), true},
		{Int(1), UInt(1), true},
		{Int(-1), UInt(math.MaxUint32), false},
		{NaN, NaN, false},
		{String("a"), String("a"), true},
		{String("1"), Int(1), false},
		{Null, Undefined, false},
		{Null, Null, true},
		{True, Int(1), false},
	}
	for _, tt := range tests {
		if got := StrictEquals(tt.a, tt.b); got != tt.want {
			t.Errorf("StrictEquals(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLooseEqualsPrimitive(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{Null, Undefined, true},
		{Null, Int(0), false},
		{String("1"), Int(1), true},
		{String(""), Int(0), true},
		{True, Int(1), true},
		{False, String("0"), true},
		{NaN, NaN, false},
		{String("a"), String("b"), false},
	}
	for _, tt := range tests {
		if got := looseEqualsPrimitive(tt.a, tt.b); got != tt.want {
			t.Errorf("looseEqualsPrimitive(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func TestBinaryOperators(t *testing.T) {
	vm := newFixture(t).vm(DefaultOptions())
	tests := []struct {
		op   abc.Opcode
		a, b Value
		want Value
	}{
		{abc.OpAdd, Int(1), Int(2), Int(3)},
		{abc.OpAdd, Int(1), String("2"), String("12")},
		{abc.OpAdd, String("a"), Null, String("anull")},
		{abc.OpAdd, True, Int(1), Int(2)},
		{abc.OpAdd, Int(math.MaxInt32), Int(1), Number(math.MaxInt32 + 1)},
		{abc.OpSubtract, String("5"), Int(2), Int(3)},
		{abc.OpMultiply, Number(1.5), Int(2), Int(3)},
		{abc.OpDivide, Int(1), Int(4), Number(0.25)},
		{abc.OpDivide, Int(1), Int(0), Number(math.Inf(1))},
		{abc.OpModulo, Int(-5), Int(3), Int(-2)},
		{abc.OpLShift, Int(1), Int(33), Int(2)},
		{abc.OpRShift, Int(-8), Int(1), Int(-4)},
		{abc.OpURShift, Int(-1), Int(0), UInt(math.MaxUint32)},
		{abc.OpBitAnd, Int(6), Int(3), Int(2)},
		{abc.OpBitOr, Int(6), Int(3), Int(7)},
		{abc.OpBitXor, Int(6), Int(3), Int(5)},
		{abc.OpAddI, Number(2.7), Number(2.7), Int(4)},
		{abc.OpEquals, String("1"), Int(1), True},
		{abc.OpStrictEquals, String("1"), Int(1), False},
		{abc.OpLessThan, String("a"), String("b"), True},
		{abc.OpLessThan, String("10"), Int(9), False},
		{abc.OpGreaterEquals, Int(2), Int(2), True},
		{abc.OpLessEquals, NaN, Int(1), False},
		{abc.OpGreaterThan, Undefined, Int(0), False},
	}
	for _, tt := range tests {
		got, err := vm.binary(tt.op, tt.a, tt.b)
		if err != nil {
			t.Errorf("%s(%v, %v): %v", tt.op, tt.a, tt.b, err)
			continue
		}
		if got.Kind() != tt.want.Kind() || !StrictEquals(got, tt.want) {
			t.Errorf("%s(%v, %v) = %v (%v), want %v (%v)", tt.op, tt.a, tt.b, got, got.Kind(), tt.want, tt.want.Kind())
		}
	}
}

func TestNegatedBranchesTakenOnNaN(t *testing.T) {
	vm := newFixture(t).vm(DefaultOptions())
	for _, op := range []abc.Opcode{abc.OpIfNLT, abc.OpIfNLE, abc.OpIfNGT, abc.OpIfNGE} {
		taken, err := vm.branchTaken(op, NaN, Int(1))
		if err != nil {
			t.Fatalf("%s: %v", op, err)
		}
		if !taken {
			t.Errorf("%s(NaN, 1) not taken", op)
		}
	}
	for _, op := range []abc.Opcode{abc.OpIfLT, abc.OpIfLE, abc.OpIfGT, abc.OpIfGE} {
		taken, err := vm.branchTaken(op, NaN, Int(1))
		if err != nil {
			t.Fatalf("%s: %v", op, err)
		}
		if taken {
			t.Errorf("%s(NaN, 1) taken", op)
		}
	}
}

func TestUnaryOperators(t *testing.T) {
	vm := newFixture(t).vm(DefaultOptions())
	tests := []struct {
		op   abc.Opcode
		in   Value
		want Value
	}{
		{abc.OpNegate, Int(5), Int(-5)},
		{abc.OpNegate, Int(0), Number(math.Copysign(0, -1))},
		{abc.OpIncrement, String("41"), Int(42)},
		{abc.OpDecrement, Number(0.5), Number(-0.5)},
		{abc.OpBitNot, Int(0), Int(-1)},
		{abc.OpIncrementI, Int(math.MaxInt32), Int(math.MinInt32)},
	}
	for _, tt := range tests {
		got, err := vm.unary(tt.op, tt.in)
		if err != nil {
			t.Fatalf("%s(%v): %v", tt.op, tt.in, err)
		}
		if got.Kind() != tt.want.Kind() || !StrictEquals(got, tt.want) {
			t.Errorf("%s(%v) = %v, want %v", tt.op, tt.in, got, tt.want)
		}
	}
}

func TestTypeOf(t *testing.T) {
	vm := newFixture(t).vm(DefaultOptions())
	tests := []struct {
		in   Value
		want string
	}{
		{Undefined, "undefined"},
		{Null, "object"},
		{True, "boolean"},
		{UInt(3), "number"},
		{String("x"), "string"},
		{vm.NewObject(), "object"},
		{vm.NewArray(), "object"},
	}
	for _, tt := range tests {
		if got := vm.typeOf(tt.in); got != tt.want {
			t.Errorf("typeof %v = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Coercion to declared types
// ---------------------------------------------------------------------------

func TestCoerceBuiltinTypes(t *testing.T) {
	vm := newFixture(t).vm(DefaultOptions())
	b := vm.program.builtins
	tests := []struct {
		in   Value
		to   *Class
		want Value
	}{
		{Number(3.7), b.int, Int(3)},
		{String("x"), b.int, Int(0)},
		{Int(-1), b.uint, UInt(math.MaxUint32)},
		{Int(2), b.number, Number(2)},
		{String(""), b.boolean, False},
		{Int(7), b.string, String("7")},
		{Undefined, b.string, Null},
		{Null, b.string, Null},
		{Undefined, b.object, Null},
		{Int(1), b.object, Int(1)},
		{Undefined, nil, Undefined},
	}
	for _, tt := range tests {
		got, err := vm.coerce(tt.in, tt.to)
		if err != nil {
			t.Fatalf("coerce(%v, %v): %v", tt.in, tt.to, err)
		}
		if got.Kind() != tt.want.Kind() || !StrictEquals(got, tt.want) {
			t.Errorf("coerce(%v, %v) = %v (%v), want %v (%v)", tt.in, tt.to, got, got.Kind(), tt.want, tt.want.Kind())
		}
	}
}

func TestCoerceToClassRejectsMismatch(t *testing.T) {
	fx := newFixture(t)
	fx.class(classSpec{name: "A"})
	fx.class(classSpec{name: "B", super: "A"})
	vm := fx.vm(DefaultOptions())

	b, err := vm.Construct("B")
	if err != nil {
		t.Fatalf("Construct(B): %v", err)
	}
	classA := vm.program.LookupClass("A")
	if got, err := vm.coerce(b, classA); err != nil || got != b {
		t.Errorf("coerce(B instance, A) = %v, %v; want the instance", got, err)
	}
	if got, err := vm.coerce(Undefined, classA); err != nil || !got.IsNull() {
		t.Errorf("coerce(undefined, A) = %v, %v; want null", got, err)
	}
	_, err = vm.coerce(String("x"), classA)
	if !errors.Is(err, ErrType) {
		t.Errorf("coerce(string, A) error = %v, want ErrType", err)
	}
}

func TestConvertOpcodes(t *testing.T) {
	vm := newFixture(t).vm(DefaultOptions())
	tests := []struct {
		op   abc.Opcode
		in   Value
		want Value
	}{
		{abc.OpConvertS, Null, String("null")},
		{abc.OpCoerceS, Null, Null},
		{abc.OpConvertB, String("x"), True},
		{abc.OpCoerceO, Undefined, Null},
		{abc.OpEscXElem, String("a<b&c"), String("a&lt;b&amp;c")},
		{abc.OpEscXAttr, String(`"x"`), String("&quot;x&quot;")},
	}
	for _, tt := range tests {
		got, err := vm.convert(tt.op, tt.in)
		if err != nil {
			t.Fatalf("%s(%v): %v", tt.op, tt.in, err)
		}
		if got.Kind() != tt.want.Kind() || !StrictEquals(got, tt.want) {
			t.Errorf("%s(%v) = %v, want %v", tt.op, tt.in, got, tt.want)
		}
	}
	if _, err := vm.convert(abc.OpConvertO, Null); !errors.Is(err, ErrType) {
		t.Errorf("convert_o(null) error = %v, want ErrType", err)
	}
}

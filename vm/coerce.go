package vm

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Primitive coercions
//
// These operate on primitive values only. Objects are first converted with
// the interpreter's toPrimitive, which may run script code.
// ---------------------------------------------------------------------------

// ToBoolean converts a value to a boolean.
func ToBoolean(v Value) bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindBoolean:
		return v.AsBool()
	case KindInt, KindUInt:
		return v.bits != 0
	case KindNumber:
		f := v.AsNumber()
		return f != 0 && !math.IsNaN(f)
	case KindString:
		return v.str != ""
	}
	return true
}

// primitiveToNumber converts a primitive to a float64.
func primitiveToNumber(v Value) float64 {
	switch v.kind {
	case KindUndefined:
		return math.NaN()
	case KindNull:
		return 0
	case KindBoolean:
		if v.AsBool() {
			return 1
		}
		return 0
	case KindInt, KindUInt, KindNumber:
		return v.AsNumber()
	case KindString:
		return StringToNumber(v.str)
	}
	return math.NaN()
}

// DoubleToInt32 applies the ECMAScript ToInt32 truncation.
func DoubleToInt32(f float64) int32 {
	return int32(DoubleToUint32(f))
}

// DoubleToUint32 applies the ECMAScript ToUint32 truncation: NaN and
// infinities map to 0, everything else is truncated and reduced modulo 2^32.
func DoubleToUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f >= 0 && f < 1<<32 {
		return uint32(f)
	}
	t := math.Mod(math.Trunc(f), 1<<32)
	if t < 0 {
		t += 1 << 32
	}
	return uint32(t)
}

// StringToNumber parses a numeric literal the way Number(string) does:
// surrounding white space is ignored, the empty string is 0, hexadecimal
// "0x" literals and "Infinity" are accepted, anything else is NaN.
func StringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	sign := 1.0
	body := s
	switch body[0] {
	case '-':
		sign = -1
		body = body[1:]
	case '+':
		body = body[1:]
	}
	if body == "Infinity" {
		return sign * math.Inf(1)
	}
	if len(body) > 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		u, err := strconv.ParseUint(body[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return sign * float64(u)
	}
	if !isDecimalLiteral(body) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(body, 64)
	if err != nil {
		// Out of range literals still have a value.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return sign * f
		}
		return math.NaN()
	}
	return sign * f
}

// isDecimalLiteral accepts digits [. digits] [e [+-] digits], with at least
// one digit in the mantissa.
func isDecimalLiteral(s string) bool {
	i, digits := 0, 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

// NumberToString formats a double the way ECMAScript Number.toString does:
// the shortest round-tripping digits, in positional notation for
// exponents in [-7, 21) and in exponential notation otherwise.
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if f < 0 {
		return "-" + NumberToString(-f)
	}

	// Shortest digits and decimal exponent from the 'e' format.
	e := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expPart, _ := strings.Cut(e, "e")
	digits := strings.Replace(mant, ".", "", 1)
	exp, _ := strconv.Atoi(expPart)
	k := len(digits)
	n := exp + 1 // position of the decimal point relative to the digits

	switch {
	case k <= n && n <= 21:
		return digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		return digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		return "0." + strings.Repeat("0", -n) + digits
	}
	sign := "+"
	if n-1 < 0 {
		sign = "-"
	}
	ex := n - 1
	if ex < 0 {
		ex = -ex
	}
	if k == 1 {
		return digits + "e" + sign + strconv.Itoa(ex)
	}
	return digits[:1] + "." + digits[1:] + "e" + sign + strconv.Itoa(ex)
}

// primitiveToString converts a primitive to its string form.
func primitiveToString(v Value) string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(int64(v.AsInt()), 10)
	case KindUInt:
		return strconv.FormatUint(uint64(v.AsUInt()), 10)
	case KindNumber:
		return NumberToString(v.AsNumber())
	case KindString, KindNamespace:
		return v.str
	}
	return ""
}

// formatRadix renders an integral double in the given radix (2..36).
func formatRadix(f float64, radix int) string {
	if radix == 10 || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) >= 1<<63 {
		return NumberToString(f)
	}
	return strconv.FormatInt(int64(f), radix)
}

// ---------------------------------------------------------------------------
// Abstract comparison on primitives
// ---------------------------------------------------------------------------

// compareResult is the outcome of the abstract relational comparison.
type compareResult int8

const (
	cmpFalse     compareResult = 0
	cmpTrue      compareResult = 1
	cmpUndefined compareResult = -1 // a NaN was involved
)

// lessThanPrimitive implements a < b for two primitives.
func lessThanPrimitive(a, b Value) compareResult {
	if a.kind == KindString && b.kind == KindString {
		if a.str < b.str {
			return cmpTrue
		}
		return cmpFalse
	}
	x, y := primitiveToNumber(a), primitiveToNumber(b)
	if math.IsNaN(x) || math.IsNaN(y) {
		return cmpUndefined
	}
	if x < y {
		return cmpTrue
	}
	return cmpFalse
}

// looseEqualsPrimitive implements the abstract equality comparison for two
// primitives.
func looseEqualsPrimitive(a, b Value) bool {
	if a.IsNullish() && b.IsNullish() {
		return true
	}
	if a.IsNullish() || b.IsNullish() {
		return false
	}
	if a.IsNumeric() && b.IsNumeric() {
		return a.AsNumber() == b.AsNumber()
	}
	if a.kind == b.kind {
		return StrictEquals(a, b)
	}
	if a.kind == KindNamespace || b.kind == KindNamespace {
		return primitiveToString(a) == primitiveToString(b)
	}
	// Mixed string, boolean and number compare numerically.
	return primitiveToNumber(a) == primitiveToNumber(b)
}

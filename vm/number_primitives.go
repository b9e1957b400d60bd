package vm

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"unicode"
)

// ---------------------------------------------------------------------------
// Number, int and uint Primitives
// ---------------------------------------------------------------------------

func isIntValue(v Value) bool {
	switch v.kind {
	case KindInt:
		return true
	case KindUInt:
		return v.AsUInt() <= math.MaxInt32
	case KindNumber:
		f := v.AsNumber()
		return f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 && !(f == 0 && math.Signbit(f))
	}
	return false
}

func isUintValue(v Value) bool {
	switch v.kind {
	case KindInt:
		return v.AsInt() >= 0
	case KindUInt:
		return true
	case KindNumber:
		f := v.AsNumber()
		return f == math.Trunc(f) && f >= 0 && f <= math.MaxUint32 && !math.Signbit(f)
	}
	return false
}

func (vm *VM) numberThis(this Value) (float64, error) {
	if !this.IsNumeric() {
		return 0, typeErrorf("Number method called on %s", vm.describe(this))
	}
	return this.AsNumber(), nil
}

// numericClass installs the conversion, toString and valueOf shared by
// Number, int and uint.
func numericClass(c *Class, conv func(float64) Value, isValue func(Value) bool) {
	c.primitive = isValue
	c.factory = func(vm *VM, this Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return conv(0), nil
		}
		n, err := vm.toNumber(args[0])
		return conv(n), err
	}
	c.call = c.factory

	// toString - decimal or the given radix (2 to 36)
	c.addMethod("toString", func(vm *VM, this Value, args []Value) (Value, error) {
		f, err := vm.numberThis(this)
		if err != nil {
			return Undefined, err
		}
		radix := 10
		if r := arg(args, 0); !r.IsUndefined() {
			n, err := vm.toNumber(r)
			if err != nil {
				return Undefined, err
			}
			radix = int(DoubleToInt32(n))
			if radix < 2 || radix > 36 {
				return Undefined, rangeErrorf("radix %d is out of range", radix)
			}
		}
		return String(formatRadix(f, radix)), nil
	})

	c.addMethod("valueOf", func(vm *VM, this Value, args []Value) (Value, error) {
		_, err := vm.numberThis(this)
		return this, err
	})

	// toFixed - fixed-point notation with 0 to 20 fraction digits
	c.addMethod("toFixed", func(vm *VM, this Value, args []Value) (Value, error) {
		f, err := vm.numberThis(this)
		if err != nil {
			return Undefined, err
		}
		d, err := vm.toNumber(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		if math.IsNaN(d) {
			d = 0
		}
		if d < 0 || d > 20 {
			return Undefined, rangeErrorf("toFixed digits %s out of range", NumberToString(d))
		}
		if math.IsNaN(f) || math.Abs(f) >= 1e21 {
			return String(NumberToString(f)), nil
		}
		return String(strconv.FormatFloat(f, 'f', int(d), 64)), nil
	})
}

func (b *builtins) registerNumberPrimitives() {
	numericClass(b.number, Number, Value.IsNumeric)
	b.number.addStaticConst("MAX_VALUE", Number(math.MaxFloat64))
	b.number.addStaticConst("MIN_VALUE", Number(math.SmallestNonzeroFloat64))
	b.number.addStaticConst("NaN", NaN)
	b.number.addStaticConst("POSITIVE_INFINITY", Number(math.Inf(1)))
	b.number.addStaticConst("NEGATIVE_INFINITY", Number(math.Inf(-1)))

	numericClass(b.int, func(f float64) Value { return Int(DoubleToInt32(f)) }, isIntValue)
	b.int.addStaticConst("MAX_VALUE", Int(math.MaxInt32))
	b.int.addStaticConst("MIN_VALUE", Int(math.MinInt32))

	numericClass(b.uint, func(f float64) Value { return UInt(DoubleToUint32(f)) }, isUintValue)
	b.uint.addStaticConst("MAX_VALUE", UInt(math.MaxUint32))
	b.uint.addStaticConst("MIN_VALUE", UInt(0))
}

// ---------------------------------------------------------------------------
// Math
// ---------------------------------------------------------------------------

func (b *builtins) registerMathPrimitives() {
	c := b.math
	c.factory = func(vm *VM, this Value, args []Value) (Value, error) {
		return Undefined, typeErrorf("Math is not constructible")
	}
	c.call = c.factory

	c.addStaticConst("PI", Number(math.Pi))
	c.addStaticConst("E", Number(math.E))
	c.addStaticConst("LN2", Number(math.Ln2))
	c.addStaticConst("LN10", Number(math.Ln10))
	c.addStaticConst("LOG2E", Number(math.Log2E))
	c.addStaticConst("LOG10E", Number(math.Log10E))
	c.addStaticConst("SQRT2", Number(math.Sqrt2))
	c.addStaticConst("SQRT1_2", Number(math.Sqrt2/2))

	unary := func(name string, fn func(float64) float64) {
		c.addStaticMethod(name, func(vm *VM, this Value, args []Value) (Value, error) {
			x, err := vm.toNumber(arg(args, 0))
			if err != nil {
				return Undefined, err
			}
			return numberResult(fn(x)), nil
		})
	}
	unary("abs", math.Abs)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("sqrt", math.Sqrt)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("asin", math.Asin)
	unary("acos", math.Acos)
	unary("atan", math.Atan)
	unary("log", math.Log)
	unary("exp", math.Exp)
	unary("round", func(x float64) float64 {
		r := math.Floor(x + 0.5)
		if r == 0 && x < 0 {
			return math.Copysign(0, -1)
		}
		return r
	})

	binary := func(name string, fn func(x, y float64) float64) {
		c.addStaticMethod(name, func(vm *VM, this Value, args []Value) (Value, error) {
			x, y, err := vm.numbers(arg(args, 0), arg(args, 1))
			if err != nil {
				return Undefined, err
			}
			return numberResult(fn(x, y)), nil
		})
	}
	binary("pow", math.Pow)
	binary("atan2", math.Atan2)

	extremum := func(name string, init float64, better func(x, best float64) bool) {
		c.addStaticMethod(name, func(vm *VM, this Value, args []Value) (Value, error) {
			best := init
			for _, a := range args {
				x, err := vm.toNumber(a)
				if err != nil {
					return Undefined, err
				}
				if math.IsNaN(x) {
					return NaN, nil
				}
				if better(x, best) {
					best = x
				}
			}
			return numberResult(best), nil
		})
	}
	extremum("min", math.Inf(1), func(x, best float64) bool {
		return x < best || (x == 0 && best == 0 && math.Signbit(x))
	})
	extremum("max", math.Inf(-1), func(x, best float64) bool {
		return x > best || (x == 0 && best == 0 && !math.Signbit(x))
	})

	c.addStaticMethod("random", func(vm *VM, this Value, args []Value) (Value, error) {
		return Number(rand.Float64()), nil
	})
}

// ---------------------------------------------------------------------------
// parseInt and parseFloat
// ---------------------------------------------------------------------------

// parseIntPrefix parses the longest integer prefix of s after leading
// white space. Radix 0 means 10, or 16 with a 0x prefix.
func parseIntPrefix(s string, radix int) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if (radix == 0 || radix == 16) && len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s, radix = s[2:], 16
	}
	if radix == 0 {
		radix = 10
	}
	if radix < 2 || radix > 36 {
		return math.NaN()
	}
	var n float64
	digits := 0
	for ; digits < len(s); digits++ {
		d := digitValue(s[digits])
		if d >= radix {
			break
		}
		n = n*float64(radix) + float64(d)
	}
	if digits == 0 {
		return math.NaN()
	}
	if neg {
		n = -n
	}
	return n
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 36
}

// parseFloatPrefix parses the longest decimal literal prefix of s after
// leading white space.
func parseFloatPrefix(s string) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		if s[0] == '-' {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i, digits = i+1, digits+1
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i, digits = i+1, digits+1
		}
	}
	if digits == 0 {
		return math.NaN()
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && s[j] >= '0' && s[j] <= '9' {
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			i = j
		}
	}
	// out of range literals yield ±Inf along with an error
	f, _ := strconv.ParseFloat(s[:i], 64)
	return f
}

package vm

import (
	"math"
	"slices"
	"strings"
	"unicode/utf16"
)

// ---------------------------------------------------------------------------
// String Primitives
//
// Strings are Go strings; lengths and indices count UTF-16 code units.
// ---------------------------------------------------------------------------

// units returns the UTF-16 code units of s.
func units(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

func fromUnits(u []uint16) string {
	return string(utf16.Decode(u))
}

// isASCII reports whether byte offsets and code unit offsets coincide.
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func unitLength(s string) int {
	if isASCII(s) {
		return len(s)
	}
	return len(units(s))
}

// unitSlice returns code units [from, to) of s.
func unitSlice(s string, from, to int) string {
	if isASCII(s) {
		return s[from:to]
	}
	return fromUnits(units(s)[from:to])
}

// stringThis converts the receiver of a String method.
func (vm *VM) stringThis(this Value) (string, error) {
	if this.kind == KindString {
		return this.str, nil
	}
	if this.IsNullish() {
		return "", typeErrorf("String method called on %s", primitiveToString(this))
	}
	return vm.toString(this)
}

// clampIndex converts v to an integer index clamped to [0, n].
func clampIndex(vm *VM, v Value, n, def int) (int, error) {
	if v.IsUndefined() {
		return def, nil
	}
	f, err := vm.toNumber(v)
	if err != nil {
		return 0, err
	}
	switch {
	case math.IsNaN(f), f < 0:
		return 0, nil
	case f > float64(n):
		return n, nil
	}
	return int(f), nil
}

func (b *builtins) registerStringPrimitives() {
	c := b.string
	c.primitive = func(v Value) bool { return v.kind == KindString }
	c.factory = func(vm *VM, this Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return String(""), nil
		}
		s, err := vm.toString(args[0])
		return String(s), err
	}
	c.call = c.factory

	// fromCharCode - string of the given code units
	c.addStaticMethod("fromCharCode", func(vm *VM, this Value, args []Value) (Value, error) {
		u := make([]uint16, len(args))
		for i, a := range args {
			n, err := vm.toNumber(a)
			if err != nil {
				return Undefined, err
			}
			u[i] = uint16(DoubleToUint32(n))
		}
		return String(fromUnits(u)), nil
	})

	// length - code unit count
	c.addGetter("length", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		return Int(int32(unitLength(s))), err
	}, nil)

	// charAt - one-unit string, or "" out of range
	c.addMethod("charAt", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		if err != nil {
			return Undefined, err
		}
		i, err := vm.toNumber(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		if math.IsNaN(i) {
			i = 0
		}
		n := unitLength(s)
		if i < 0 || i >= float64(n) {
			return String(""), nil
		}
		return String(unitSlice(s, int(i), int(i)+1)), nil
	})

	// charCodeAt - code unit value, or NaN out of range
	c.addMethod("charCodeAt", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		if err != nil {
			return Undefined, err
		}
		i, err := vm.toNumber(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		if math.IsNaN(i) {
			i = 0
		}
		u := units(s)
		if i < 0 || i >= float64(len(u)) {
			return NaN, nil
		}
		return Int(int32(u[int(i)])), nil
	})

	// indexOf - first occurrence at or after a start position
	c.addMethod("indexOf", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		if err != nil {
			return Undefined, err
		}
		sub, err := vm.toString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		u, su := units(s), units(sub)
		from, err := clampIndex(vm, arg(args, 1), len(u), 0)
		if err != nil {
			return Undefined, err
		}
		return Int(int32(indexUnits(u, su, from))), nil
	})

	// lastIndexOf - last occurrence
	c.addMethod("lastIndexOf", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		if err != nil {
			return Undefined, err
		}
		sub, err := vm.toString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		u, su := units(s), units(sub)
		from, err := clampIndex(vm, arg(args, 1), len(u), len(u))
		if err != nil {
			return Undefined, err
		}
		for i := min(from, len(u)-len(su)); i >= 0; i-- {
			if slices.Equal(u[i:i+len(su)], su) {
				return Int(int32(i)), nil
			}
		}
		return Int(-1), nil
	})

	// substring - units between two clamped indices, in either order
	c.addMethod("substring", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		if err != nil {
			return Undefined, err
		}
		n := unitLength(s)
		start, err := clampIndex(vm, arg(args, 0), n, 0)
		if err != nil {
			return Undefined, err
		}
		end, err := clampIndex(vm, arg(args, 1), n, n)
		if err != nil {
			return Undefined, err
		}
		if start > end {
			start, end = end, start
		}
		return String(unitSlice(s, start, end)), nil
	})

	// substr - units from a start position with a length
	c.addMethod("substr", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		if err != nil {
			return Undefined, err
		}
		n := unitLength(s)
		start, err := relativeIndex(vm, arg(args, 0), n, 0)
		if err != nil {
			return Undefined, err
		}
		count, err := clampIndex(vm, arg(args, 1), n, n)
		if err != nil {
			return Undefined, err
		}
		return String(unitSlice(s, start, min(start+count, n))), nil
	})

	// slice - units in [start, end) with negative indices from the end
	c.addMethod("slice", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		if err != nil {
			return Undefined, err
		}
		n := unitLength(s)
		start, err := relativeIndex(vm, arg(args, 0), n, 0)
		if err != nil {
			return Undefined, err
		}
		end, err := relativeIndex(vm, arg(args, 1), n, n)
		if err != nil {
			return Undefined, err
		}
		if end < start {
			end = start
		}
		return String(unitSlice(s, start, end)), nil
	})

	// split - array of substrings; an empty separator splits into units
	c.addMethod("split", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		if err != nil {
			return Undefined, err
		}
		if sepv := arg(args, 0); sepv.IsUndefined() {
			return vm.NewArray(String(s)), nil
		}
		sep, err := vm.toString(arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		var parts []Value
		if sep == "" {
			for _, u := range units(s) {
				parts = append(parts, String(fromUnits([]uint16{u})))
			}
		} else {
			for _, p := range strings.Split(s, sep) {
				parts = append(parts, String(p))
			}
		}
		return vm.NewArray(parts...), nil
	})

	c.addMethod("toUpperCase", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		return String(strings.ToUpper(s)), err
	})

	c.addMethod("toLowerCase", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		return String(strings.ToLower(s)), err
	})

	// concat - receiver followed by the string forms of the arguments
	c.addMethod("concat", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		if err != nil {
			return Undefined, err
		}
		var sb strings.Builder
		sb.WriteString(s)
		for _, a := range args {
			as, err := vm.toString(a)
			if err != nil {
				return Undefined, err
			}
			sb.WriteString(as)
		}
		return String(sb.String()), nil
	})

	c.addMethod("toString", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		return String(s), err
	})

	c.addMethod("valueOf", func(vm *VM, this Value, args []Value) (Value, error) {
		s, err := vm.stringThis(this)
		return String(s), err
	})
}

func indexUnits(u, sub []uint16, from int) int {
	for i := from; i+len(sub) <= len(u); i++ {
		if slices.Equal(u[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

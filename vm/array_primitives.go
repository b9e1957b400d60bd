package vm

import (
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Array Primitives
// ---------------------------------------------------------------------------

// arrayThis returns the receiver of an Array method.
func (vm *VM) arrayThis(this Value) (*Object, error) {
	o := vm.object(this)
	if o == nil || o.kind != objArray {
		return nil, typeErrorf("Array method called on %s", vm.describe(this))
	}
	return o, nil
}

// arrayLength converts a requested length, raising RangeError for values
// that are not array lengths.
func arrayLength(vm *VM, v Value) (int, error) {
	n, err := vm.toNumber(v)
	if err != nil {
		return 0, err
	}
	if n < 0 || n != math.Trunc(n) || n > maxArrayGap {
		return 0, rangeErrorf("invalid array length %s", NumberToString(n))
	}
	return int(n), nil
}

// relativeIndex resolves a slice bound that may count from the end.
func relativeIndex(vm *VM, v Value, length, def int) (int, error) {
	if v.IsUndefined() {
		return def, nil
	}
	n, err := vm.toNumber(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) {
		return 0, nil
	}
	i := int(math.Trunc(math.Max(math.Min(n, float64(length)), -float64(length)-1)))
	if i < 0 {
		i += length
		if i < 0 {
			i = 0
		}
	}
	return i, nil
}

func (b *builtins) registerArrayPrimitives() {
	c := b.array

	// new Array(n) makes n holes; any other argument list becomes the
	// elements.
	c.Init = c.nativeMethod("Array", func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil {
			return Undefined, err
		}
		if len(args) == 1 && args[0].IsNumeric() {
			n, err := arrayLength(vm, args[0])
			if err != nil {
				return Undefined, err
			}
			o.elems = make([]Value, n)
			return Undefined, nil
		}
		o.elems = append([]Value(nil), args...)
		return Undefined, nil
	})
	c.call = func(vm *VM, this Value, args []Value) (Value, error) {
		return vm.constructSync(c, args)
	}

	// length - element count; assigning truncates or pads with undefined
	c.addGetter("length", func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil {
			return Undefined, err
		}
		return UInt(uint32(len(o.elems))), nil
	}, func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil {
			return Undefined, err
		}
		n, err := arrayLength(vm, arg(args, 0))
		if err != nil {
			return Undefined, err
		}
		for len(o.elems) < n {
			o.elems = append(o.elems, Undefined)
		}
		o.elems = o.elems[:n]
		return Undefined, nil
	})

	// push - append elements, returning the new length
	c.addMethod("push", func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil {
			return Undefined, err
		}
		o.elems = append(o.elems, args...)
		return UInt(uint32(len(o.elems))), nil
	})

	// pop - remove and return the last element
	c.addMethod("pop", func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil || len(o.elems) == 0 {
			return Undefined, err
		}
		v := o.elems[len(o.elems)-1]
		o.elems = o.elems[:len(o.elems)-1]
		return v, nil
	})

	// shift - remove and return the first element
	c.addMethod("shift", func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil || len(o.elems) == 0 {
			return Undefined, err
		}
		v := o.elems[0]
		o.elems = append(o.elems[:0], o.elems[1:]...)
		return v, nil
	})

	// unshift - prepend elements, returning the new length
	c.addMethod("unshift", func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil {
			return Undefined, err
		}
		elems := make([]Value, 0, len(args)+len(o.elems))
		o.elems = append(append(elems, args...), o.elems...)
		return UInt(uint32(len(o.elems))), nil
	})

	// join - string forms joined by a separator (default ",")
	c.addMethod("join", func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil {
			return Undefined, err
		}
		sep := ","
		if s := arg(args, 0); !s.IsUndefined() {
			if sep, err = vm.toString(s); err != nil {
				return Undefined, err
			}
		}
		s, err := vm.joinElements(o, sep)
		return String(s), err
	})

	c.addMethod("toString", func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil {
			return Undefined, err
		}
		s, err := vm.joinElements(o, ",")
		return String(s), err
	})

	// indexOf - first strictly equal element, or -1
	c.addMethod("indexOf", func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil {
			return Undefined, err
		}
		from, err := relativeIndex(vm, arg(args, 1), len(o.elems), 0)
		if err != nil {
			return Undefined, err
		}
		want := arg(args, 0)
		for i := from; i < len(o.elems); i++ {
			if StrictEquals(o.elems[i], want) {
				return Int(int32(i)), nil
			}
		}
		return Int(-1), nil
	})

	// slice - copy of [start, end)
	c.addMethod("slice", func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil {
			return Undefined, err
		}
		n := len(o.elems)
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
		return vm.NewArray(o.elems[start:end]...), nil
	})

	// concat - new array of the receiver followed by the arguments, with
	// array arguments spread
	c.addMethod("concat", func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil {
			return Undefined, err
		}
		elems := append([]Value(nil), o.elems...)
		for _, a := range args {
			if ao := vm.object(a); ao != nil && ao.kind == objArray {
				elems = append(elems, ao.elems...)
				continue
			}
			elems = append(elems, a)
		}
		return vm.alloc(&Object{kind: objArray, class: c, elems: elems}), nil
	})

	// reverse - in place
	c.addMethod("reverse", func(vm *VM, this Value, args []Value) (Value, error) {
		o, err := vm.arrayThis(this)
		if err != nil {
			return Undefined, err
		}
		for i, j := 0, len(o.elems)-1; i < j; i, j = i+1, j-1 {
			o.elems[i], o.elems[j] = o.elems[j], o.elems[i]
		}
		return this, nil
	})
}

// joinElements renders elements with null and undefined as empty strings.
func (vm *VM) joinElements(o *Object, sep string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(o.elems); i++ {
		if i > 0 {
			sb.WriteString(sep)
		}
		e := o.elems[i]
		if e.IsNullish() {
			continue
		}
		s, err := vm.toString(e)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

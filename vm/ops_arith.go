package vm

import (
	"math"
	"strings"

	"github.com/chazu/avm2/abc"
)

// ---------------------------------------------------------------------------
// Object to primitive conversion
// ---------------------------------------------------------------------------

// toPrimitive converts objects by calling valueOf and toString (toString
// first when preferString), taking the first primitive result. Class,
// function and scope objects have fixed renderings.
func (vm *VM) toPrimitive(v Value, preferString bool) (Value, error) {
	if !v.IsObject() {
		return v, nil
	}
	o, err := vm.liveObject(v)
	if err != nil {
		return Undefined, err
	}
	switch o.kind {
	case objClass:
		return String("[class " + o.class.Name.Local + "]"), nil
	case objFunction:
		return String("function Function() {}"), nil
	case objActivation, objCatch:
		return String("[object Object]"), nil
	case objGlobal:
		return String("[object global]"), nil
	}
	order := [2]string{"valueOf", "toString"}
	if preferString {
		order[0], order[1] = order[1], order[0]
	}
	for _, name := range order {
		r, ok, err := vm.callOwn(v, o, name)
		if err != nil {
			return Undefined, err
		}
		if ok && !r.IsObject() {
			return r, nil
		}
	}
	return Undefined, typeErrorf("cannot convert %s to a primitive value", vm.typeName(o))
}

// callOwn calls the public method name of o without arguments, reporting
// false when o has no callable property of that name.
func (vm *VM) callOwn(v Value, o *Object, name string) (Value, bool, error) {
	n := NameOf(name)
	if fn, ok := o.getDynamic(name); ok {
		if !vm.callable(fn) {
			return Undefined, false, nil
		}
		r, err := vm.callSync(fn, v, nil)
		return r, true, err
	}
	b := vm.traitFor(o, &n)
	if b == nil {
		return Undefined, false, nil
	}
	if b.Kind == BindMethod {
		r, err := vm.callBindingSync(v, o, b, nil)
		return r, true, err
	}
	fn, err := vm.readBindingSync(v, o, b)
	if err != nil || !vm.callable(fn) {
		return Undefined, false, err
	}
	r, err := vm.callSync(fn, v, nil)
	return r, true, err
}

func (vm *VM) toString(v Value) (string, error) {
	p, err := vm.toPrimitive(v, true)
	if err != nil {
		return "", err
	}
	return primitiveToString(p), nil
}

func (vm *VM) toNumber(v Value) (float64, error) {
	if v.IsNumeric() {
		return v.AsNumber(), nil
	}
	p, err := vm.toPrimitive(v, false)
	if err != nil {
		return 0, err
	}
	return primitiveToNumber(p), nil
}

// ---------------------------------------------------------------------------
// Coercion to declared types
// ---------------------------------------------------------------------------

// coerce converts v to the declared type c. A nil class is the any type.
// Numeric and boolean types convert; String and object types pass null
// through; class types raise TypeError on a mismatch.
func (vm *VM) coerce(v Value, c *Class) (Value, error) {
	if c == nil {
		return v, nil
	}
	b := vm.program.builtins
	switch c {
	case b.int:
		if v.kind == KindInt {
			return v, nil
		}
		n, err := vm.toNumber(v)
		return Int(DoubleToInt32(n)), err
	case b.uint:
		if v.kind == KindUInt {
			return v, nil
		}
		n, err := vm.toNumber(v)
		return UInt(DoubleToUint32(n)), err
	case b.number:
		n, err := vm.toNumber(v)
		return Number(n), err
	case b.boolean:
		return Bool(ToBoolean(v)), nil
	case b.string:
		if v.IsNullish() {
			return Null, nil
		}
		s, err := vm.toString(v)
		return String(s), err
	case b.object:
		if v.IsUndefined() {
			return Null, nil
		}
		return v, nil
	}
	if v.IsNullish() {
		return Null, nil
	}
	if vm.isType(v, c) {
		return v, nil
	}
	return Undefined, typeErrorf("type coercion failed: cannot convert %s to %s", vm.describe(v), c)
}

var (
	xmlElemEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	xmlAttrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", "\"", "&quot;", "\n", "&#xA;", "\r", "&#xD;", "\t", "&#x9;")
)

// convert implements the convert_x, coerce_x and esc_x opcodes.
func (vm *VM) convert(op abc.Opcode, v Value) (Value, error) {
	switch op {
	case abc.OpConvertS:
		s, err := vm.toString(v)
		return String(s), err
	case abc.OpCoerceS:
		return vm.coerce(v, vm.program.builtins.string)
	case abc.OpConvertI, abc.OpCoerceI:
		return vm.coerce(v, vm.program.builtins.int)
	case abc.OpConvertU, abc.OpCoerceU:
		return vm.coerce(v, vm.program.builtins.uint)
	case abc.OpConvertD, abc.OpCoerceD:
		return vm.coerce(v, vm.program.builtins.number)
	case abc.OpConvertB, abc.OpCoerceB:
		return Bool(ToBoolean(v)), nil
	case abc.OpConvertO:
		if v.IsNullish() {
			return Undefined, typeErrorf("cannot convert %s to an object", primitiveToString(v))
		}
		return v, nil
	case abc.OpCoerceO:
		if v.IsUndefined() {
			return Null, nil
		}
		return v, nil
	case abc.OpEscXElem, abc.OpEscXAttr:
		s, err := vm.toString(v)
		if err != nil {
			return Undefined, err
		}
		if op == abc.OpEscXElem {
			return String(xmlElemEscaper.Replace(s)), nil
		}
		return String(xmlAttrEscaper.Replace(s)), nil
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Type tests
// ---------------------------------------------------------------------------

// typeOperand extracts the class from the right operand of istypelate,
// astypelate and instanceof.
func (vm *VM) typeOperand(t Value) (*Class, error) {
	if o := vm.object(t); o != nil && o.kind == objClass {
		return o.class, nil
	}
	return nil, typeErrorf("%s is not a class", vm.describe(t))
}

// instanceOf follows the class chain only; interfaces never match.
func (vm *VM) instanceOf(v, t Value) (bool, error) {
	o := vm.object(t)
	if o == nil {
		return false, typeErrorf("right-hand side of instanceof must be a class or function, got %s", vm.describe(t))
	}
	switch o.kind {
	case objClass:
		if o.class.Interface {
			return false, nil
		}
		return vm.isType(v, o.class), nil
	case objFunction:
		return false, nil
	}
	return false, typeErrorf("right-hand side of instanceof must be a class or function, got %s", vm.typeName(o))
}

func (vm *VM) typeOf(v Value) string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindBoolean:
		return "boolean"
	case KindInt, KindUInt, KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		if o := vm.object(v); o != nil && o.kind == objFunction {
			return "function"
		}
	}
	return "object"
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func (vm *VM) unary(op abc.Opcode, v Value) (Value, error) {
	n, err := vm.toNumber(v)
	if err != nil {
		return Undefined, err
	}
	switch op {
	case abc.OpNegate:
		return numberResult(-n), nil
	case abc.OpIncrement:
		return numberResult(n + 1), nil
	case abc.OpDecrement:
		return numberResult(n - 1), nil
	case abc.OpBitNot:
		return Int(^DoubleToInt32(n)), nil
	case abc.OpNegateI:
		return Int(-DoubleToInt32(n)), nil
	case abc.OpIncrementI:
		return Int(DoubleToInt32(n) + 1), nil
	case abc.OpDecrementI:
		return Int(DoubleToInt32(n) - 1), nil
	}
	return Undefined, verifyErrorf("%s is not a unary operator", op)
}

// add concatenates when either primitive operand is a string and adds
// numerically otherwise.
func (vm *VM) add(x, y Value) (Value, error) {
	if x.IsNumeric() && y.IsNumeric() {
		return numberResult(x.AsNumber() + y.AsNumber()), nil
	}
	px, err := vm.toPrimitive(x, false)
	if err != nil {
		return Undefined, err
	}
	py, err := vm.toPrimitive(y, false)
	if err != nil {
		return Undefined, err
	}
	if px.IsString() || py.IsString() {
		return String(primitiveToString(px) + primitiveToString(py)), nil
	}
	return numberResult(primitiveToNumber(px) + primitiveToNumber(py)), nil
}

func (vm *VM) numbers(x, y Value) (float64, float64, error) {
	a, err := vm.toNumber(x)
	if err != nil {
		return 0, 0, err
	}
	b, err := vm.toNumber(y)
	return a, b, err
}

func (vm *VM) binary(op abc.Opcode, x, y Value) (Value, error) {
	switch op {
	case abc.OpAdd:
		return vm.add(x, y)
	case abc.OpEquals:
		eq, err := vm.looseEquals(x, y)
		return Bool(eq), err
	case abc.OpStrictEquals:
		return Bool(StrictEquals(x, y)), nil
	case abc.OpLessThan, abc.OpLessEquals, abc.OpGreaterThan, abc.OpGreaterEquals:
		ok, err := vm.compare(op, x, y)
		return Bool(ok), err
	}
	a, b, err := vm.numbers(x, y)
	if err != nil {
		return Undefined, err
	}
	switch op {
	case abc.OpSubtract:
		return numberResult(a - b), nil
	case abc.OpMultiply:
		return numberResult(a * b), nil
	case abc.OpDivide:
		return numberResult(a / b), nil
	case abc.OpModulo:
		return numberResult(math.Mod(a, b)), nil
	case abc.OpLShift:
		return Int(DoubleToInt32(a) << (DoubleToUint32(b) & 31)), nil
	case abc.OpRShift:
		return Int(DoubleToInt32(a) >> (DoubleToUint32(b) & 31)), nil
	case abc.OpURShift:
		return UInt(DoubleToUint32(a) >> (DoubleToUint32(b) & 31)), nil
	case abc.OpBitAnd:
		return Int(DoubleToInt32(a) & DoubleToInt32(b)), nil
	case abc.OpBitOr:
		return Int(DoubleToInt32(a) | DoubleToInt32(b)), nil
	case abc.OpBitXor:
		return Int(DoubleToInt32(a) ^ DoubleToInt32(b)), nil
	case abc.OpAddI:
		return Int(DoubleToInt32(a) + DoubleToInt32(b)), nil
	case abc.OpSubtractI:
		return Int(DoubleToInt32(a) - DoubleToInt32(b)), nil
	case abc.OpMultiplyI:
		return Int(DoubleToInt32(a) * DoubleToInt32(b)), nil
	}
	return Undefined, verifyErrorf("%s is not a binary operator", op)
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

func (vm *VM) looseEquals(x, y Value) (bool, error) {
	if x.IsObject() && y.IsObject() {
		return x.Ref() == y.Ref(), nil
	}
	var err error
	switch {
	case x.IsObject():
		if y.IsNullish() {
			return false, nil
		}
		x, err = vm.toPrimitive(x, false)
	case y.IsObject():
		if x.IsNullish() {
			return false, nil
		}
		y, err = vm.toPrimitive(y, false)
	}
	if err != nil {
		return false, err
	}
	return looseEqualsPrimitive(x, y), nil
}

func (vm *VM) lessThan(x, y Value) (compareResult, error) {
	px, err := vm.toPrimitive(x, false)
	if err != nil {
		return cmpUndefined, err
	}
	py, err := vm.toPrimitive(y, false)
	if err != nil {
		return cmpUndefined, err
	}
	return lessThanPrimitive(px, py), nil
}

// compare evaluates the four relational operators. Any NaN operand makes
// all of them false.
func (vm *VM) compare(op abc.Opcode, x, y Value) (bool, error) {
	switch op {
	case abc.OpLessThan:
		r, err := vm.lessThan(x, y)
		return r == cmpTrue, err
	case abc.OpLessEquals:
		r, err := vm.lessThan(y, x)
		return r == cmpFalse, err
	case abc.OpGreaterThan:
		r, err := vm.lessThan(y, x)
		return r == cmpTrue, err
	default:
		r, err := vm.lessThan(x, y)
		return r == cmpFalse, err
	}
}

// branchTaken evaluates the condition of a two-operand branch. The negated
// forms (ifnlt and friends) are taken when the comparison is false or
// undefined.
func (vm *VM) branchTaken(op abc.Opcode, x, y Value) (bool, error) {
	switch op {
	case abc.OpIfEq, abc.OpIfNe:
		eq, err := vm.looseEquals(x, y)
		return eq == (op == abc.OpIfEq), err
	case abc.OpIfStrictEq:
		return StrictEquals(x, y), nil
	case abc.OpIfStrictNe:
		return !StrictEquals(x, y), nil
	case abc.OpIfLT:
		return vm.compare(abc.OpLessThan, x, y)
	case abc.OpIfLE:
		return vm.compare(abc.OpLessEquals, x, y)
	case abc.OpIfGT:
		return vm.compare(abc.OpGreaterThan, x, y)
	case abc.OpIfGE:
		return vm.compare(abc.OpGreaterEquals, x, y)
	case abc.OpIfNLT:
		ok, err := vm.compare(abc.OpLessThan, x, y)
		return !ok, err
	case abc.OpIfNLE:
		ok, err := vm.compare(abc.OpLessEquals, x, y)
		return !ok, err
	case abc.OpIfNGT:
		ok, err := vm.compare(abc.OpGreaterThan, x, y)
		return !ok, err
	case abc.OpIfNGE:
		ok, err := vm.compare(abc.OpGreaterEquals, x, y)
		return !ok, err
	}
	return false, verifyErrorf("%s is not a conditional branch", op)
}

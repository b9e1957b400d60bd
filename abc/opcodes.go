package abc

import "fmt"

// Opcode is an AVM2 instruction byte.
type Opcode uint8

const (
	OpBkpt           Opcode = 0x01
	OpNop            Opcode = 0x02
	OpThrow          Opcode = 0x03
	OpGetSuper       Opcode = 0x04
	OpSetSuper       Opcode = 0x05
	OpDXNS           Opcode = 0x06
	OpDXNSLate       Opcode = 0x07
	OpKill           Opcode = 0x08
	OpLabel          Opcode = 0x09
	OpIfNLT          Opcode = 0x0C
	OpIfNLE          Opcode = 0x0D
	OpIfNGT          Opcode = 0x0E
	OpIfNGE          Opcode = 0x0F
	OpJump           Opcode = 0x10
	OpIfTrue         Opcode = 0x11
	OpIfFalse        Opcode = 0x12
	OpIfEq           Opcode = 0x13
	OpIfNe           Opcode = 0x14
	OpIfLT           Opcode = 0x15
	OpIfLE           Opcode = 0x16
	OpIfGT           Opcode = 0x17
	OpIfGE           Opcode = 0x18
	OpIfStrictEq     Opcode = 0x19
	OpIfStrictNe     Opcode = 0x1A
	OpLookupSwitch   Opcode = 0x1B
	OpPushWith       Opcode = 0x1C
	OpPopScope       Opcode = 0x1D
	OpNextName       Opcode = 0x1E
	OpHasNext        Opcode = 0x1F
	OpPushNull       Opcode = 0x20
	OpPushUndefined  Opcode = 0x21
	OpNextValue      Opcode = 0x23
	OpPushByte       Opcode = 0x24
	OpPushShort      Opcode = 0x25
	OpPushTrue       Opcode = 0x26
	OpPushFalse      Opcode = 0x27
	OpPushNaN        Opcode = 0x28
	OpPop            Opcode = 0x29
	OpDup            Opcode = 0x2A
	OpSwap           Opcode = 0x2B
	OpPushString     Opcode = 0x2C
	OpPushInt        Opcode = 0x2D
	OpPushUInt       Opcode = 0x2E
	OpPushDouble     Opcode = 0x2F
	OpPushScope      Opcode = 0x30
	OpPushNamespace  Opcode = 0x31
	OpHasNext2       Opcode = 0x32
	OpNewFunction    Opcode = 0x40
	OpCall           Opcode = 0x41
	OpConstruct      Opcode = 0x42
	OpCallMethod     Opcode = 0x43
	OpCallStatic     Opcode = 0x44
	OpCallSuper      Opcode = 0x45
	OpCallProperty   Opcode = 0x46
	OpReturnVoid     Opcode = 0x47
	OpReturnValue    Opcode = 0x48
	OpConstructSuper Opcode = 0x49
	OpConstructProp  Opcode = 0x4A
	OpCallPropLex    Opcode = 0x4C
	OpCallSuperVoid  Opcode = 0x4E
	OpCallPropVoid   Opcode = 0x4F
	OpApplyType      Opcode = 0x53
	OpNewObject      Opcode = 0x55
	OpNewArray       Opcode = 0x56
	OpNewActivation  Opcode = 0x57
	OpNewClass       Opcode = 0x58
	OpGetDescendants Opcode = 0x59
	OpNewCatch       Opcode = 0x5A
	OpFindPropStrict Opcode = 0x5D
	OpFindProperty   Opcode = 0x5E
	OpFindDef        Opcode = 0x5F
	OpGetLex         Opcode = 0x60
	OpSetProperty    Opcode = 0x61
	OpGetLocal       Opcode = 0x62
	OpSetLocal       Opcode = 0x63
	OpGetGlobalScope Opcode = 0x64
	OpGetScopeObject Opcode = 0x65
	OpGetProperty    Opcode = 0x66
	OpInitProperty   Opcode = 0x68
	OpDeleteProperty Opcode = 0x6A
	OpGetSlot        Opcode = 0x6C
	OpSetSlot        Opcode = 0x6D
	OpGetGlobalSlot  Opcode = 0x6E
	OpSetGlobalSlot  Opcode = 0x6F
	OpConvertS       Opcode = 0x70
	OpEscXElem       Opcode = 0x71
	OpEscXAttr       Opcode = 0x72
	OpConvertI       Opcode = 0x73
	OpConvertU       Opcode = 0x74
	OpConvertD       Opcode = 0x75
	OpConvertB       Opcode = 0x76
	OpConvertO       Opcode = 0x77
	OpCheckFilter    Opcode = 0x78
	OpCoerce         Opcode = 0x80
	OpCoerceB        Opcode = 0x81
	OpCoerceA        Opcode = 0x82
	OpCoerceI        Opcode = 0x83
	OpCoerceD        Opcode = 0x84
	OpCoerceS        Opcode = 0x85
	OpAsType         Opcode = 0x86
	OpAsTypeLate     Opcode = 0x87
	OpCoerceU        Opcode = 0x88
	OpCoerceO        Opcode = 0x89
	OpNegate         Opcode = 0x90
	OpIncrement      Opcode = 0x91
	OpIncLocal       Opcode = 0x92
	OpDecrement      Opcode = 0x93
	OpDecLocal       Opcode = 0x94
	OpTypeOf         Opcode = 0x95
	OpNot            Opcode = 0x96
	OpBitNot         Opcode = 0x97
	OpAdd            Opcode = 0xA0
	OpSubtract       Opcode = 0xA1
	OpMultiply       Opcode = 0xA2
	OpDivide         Opcode = 0xA3
	OpModulo         Opcode = 0xA4
	OpLShift         Opcode = 0xA5
	OpRShift         Opcode = 0xA6
	OpURShift        Opcode = 0xA7
	OpBitAnd         Opcode = 0xA8
	OpBitOr          Opcode = 0xA9
	OpBitXor         Opcode = 0xAA
	OpEquals         Opcode = 0xAB
	OpStrictEquals   Opcode = 0xAC
	OpLessThan       Opcode = 0xAD
	OpLessEquals     Opcode = 0xAE
	OpGreaterThan    Opcode = 0xAF
	OpGreaterEquals  Opcode = 0xB0
	OpInstanceOf     Opcode = 0xB1
	OpIsType         Opcode = 0xB2
	OpIsTypeLate     Opcode = 0xB3
	OpIn             Opcode = 0xB4
	OpIncrementI     Opcode = 0xC0
	OpDecrementI     Opcode = 0xC1
	OpIncLocalI      Opcode = 0xC2
	OpDecLocalI      Opcode = 0xC3
	OpNegateI        Opcode = 0xC4
	OpAddI           Opcode = 0xC5
	OpSubtractI      Opcode = 0xC6
	OpMultiplyI      Opcode = 0xC7
	OpGetLocal0      Opcode = 0xD0
	OpGetLocal1      Opcode = 0xD1
	OpGetLocal2      Opcode = 0xD2
	OpGetLocal3      Opcode = 0xD3
	OpSetLocal0      Opcode = 0xD4
	OpSetLocal1      Opcode = 0xD5
	OpSetLocal2      Opcode = 0xD6
	OpSetLocal3      Opcode = 0xD7
	OpDebug          Opcode = 0xEF
	OpDebugLine      Opcode = 0xF0
	OpDebugFile      Opcode = 0xF1
	OpBkptLine       Opcode = 0xF2
	OpTimestamp      Opcode = 0xF3
)

// OperandKind is the encoding of one immediate operand.
type OperandKind uint8

const (
	OperandU8 OperandKind = iota + 1
	OperandU30
	OperandS24
)

type opInfo struct {
	name     string
	operands []OperandKind
}

var (
	none   = []OperandKind{}
	u8     = []OperandKind{OperandU8}
	u30    = []OperandKind{OperandU30}
	u30u30 = []OperandKind{OperandU30, OperandU30}
	s24    = []OperandKind{OperandS24}
)

var opTable = map[Opcode]opInfo{
	OpBkpt: {"bkpt", none}, OpNop: {"nop", none}, OpThrow: {"throw", none},
	OpGetSuper: {"getsuper", u30}, OpSetSuper: {"setsuper", u30},
	OpDXNS: {"dxns", u30}, OpDXNSLate: {"dxnslate", none},
	OpKill: {"kill", u30}, OpLabel: {"label", none},
	OpIfNLT: {"ifnlt", s24}, OpIfNLE: {"ifnle", s24}, OpIfNGT: {"ifngt", s24}, OpIfNGE: {"ifnge", s24},
	OpJump: {"jump", s24}, OpIfTrue: {"iftrue", s24}, OpIfFalse: {"iffalse", s24},
	OpIfEq: {"ifeq", s24}, OpIfNe: {"ifne", s24}, OpIfLT: {"iflt", s24}, OpIfLE: {"ifle", s24},
	OpIfGT: {"ifgt", s24}, OpIfGE: {"ifge", s24},
	OpIfStrictEq: {"ifstricteq", s24}, OpIfStrictNe: {"ifstrictne", s24},
	OpLookupSwitch: {"lookupswitch", nil},
	OpPushWith: {"pushwith", none}, OpPopScope: {"popscope", none},
	OpNextName: {"nextname", none}, OpHasNext: {"hasnext", none},
	OpPushNull: {"pushnull", none}, OpPushUndefined: {"pushundefined", none},
	OpNextValue: {"nextvalue", none},
	OpPushByte: {"pushbyte", u8}, OpPushShort: {"pushshort", u30},
	OpPushTrue: {"pushtrue", none}, OpPushFalse: {"pushfalse", none}, OpPushNaN: {"pushnan", none},
	OpPop: {"pop", none}, OpDup: {"dup", none}, OpSwap: {"swap", none},
	OpPushString: {"pushstring", u30}, OpPushInt: {"pushint", u30}, OpPushUInt: {"pushuint", u30},
	OpPushDouble: {"pushdouble", u30}, OpPushScope: {"pushscope", none},
	OpPushNamespace: {"pushnamespace", u30}, OpHasNext2: {"hasnext2", u30u30},
	OpNewFunction: {"newfunction", u30}, OpCall: {"call", u30}, OpConstruct: {"construct", u30},
	OpCallMethod: {"callmethod", u30u30}, OpCallStatic: {"callstatic", u30u30},
	OpCallSuper: {"callsuper", u30u30}, OpCallProperty: {"callproperty", u30u30},
	OpReturnVoid: {"returnvoid", none}, OpReturnValue: {"returnvalue", none},
	OpConstructSuper: {"constructsuper", u30}, OpConstructProp: {"constructprop", u30u30},
	OpCallPropLex: {"callproplex", u30u30}, OpCallSuperVoid: {"callsupervoid", u30u30},
	OpCallPropVoid: {"callpropvoid", u30u30}, OpApplyType: {"applytype", u30},
	OpNewObject: {"newobject", u30}, OpNewArray: {"newarray", u30},
	OpNewActivation: {"newactivation", none}, OpNewClass: {"newclass", u30},
	OpGetDescendants: {"getdescendants", u30}, OpNewCatch: {"newcatch", u30},
	OpFindPropStrict: {"findpropstrict", u30}, OpFindProperty: {"findproperty", u30},
	OpFindDef: {"finddef", u30}, OpGetLex: {"getlex", u30},
	OpSetProperty: {"setproperty", u30}, OpGetLocal: {"getlocal", u30}, OpSetLocal: {"setlocal", u30},
	OpGetGlobalScope: {"getglobalscope", none}, OpGetScopeObject: {"getscopeobject", u8},
	OpGetProperty: {"getproperty", u30}, OpInitProperty: {"initproperty", u30},
	OpDeleteProperty: {"deleteproperty", u30},
	OpGetSlot: {"getslot", u30}, OpSetSlot: {"setslot", u30},
	OpGetGlobalSlot: {"getglobalslot", u30}, OpSetGlobalSlot: {"setglobalslot", u30},
	OpConvertS: {"convert_s", none}, OpEscXElem: {"esc_xelem", none}, OpEscXAttr: {"esc_xattr", none},
	OpConvertI: {"convert_i", none}, OpConvertU: {"convert_u", none}, OpConvertD: {"convert_d", none},
	OpConvertB: {"convert_b", none}, OpConvertO: {"convert_o", none}, OpCheckFilter: {"checkfilter", none},
	OpCoerce: {"coerce", u30}, OpCoerceB: {"coerce_b", none}, OpCoerceA: {"coerce_a", none},
	OpCoerceI: {"coerce_i", none}, OpCoerceD: {"coerce_d", none}, OpCoerceS: {"coerce_s", none},
	OpAsType: {"astype", u30}, OpAsTypeLate: {"astypelate", none},
	OpCoerceU: {"coerce_u", none}, OpCoerceO: {"coerce_o", none},
	OpNegate: {"negate", none}, OpIncrement: {"increment", none}, OpIncLocal: {"inclocal", u30},
	OpDecrement: {"decrement", none}, OpDecLocal: {"declocal", u30},
	OpTypeOf: {"typeof", none}, OpNot: {"not", none}, OpBitNot: {"bitnot", none},
	OpAdd: {"add", none}, OpSubtract: {"subtract", none}, OpMultiply: {"multiply", none},
	OpDivide: {"divide", none}, OpModulo: {"modulo", none},
	OpLShift: {"lshift", none}, OpRShift: {"rshift", none}, OpURShift: {"urshift", none},
	OpBitAnd: {"bitand", none}, OpBitOr: {"bitor", none}, OpBitXor: {"bitxor", none},
	OpEquals: {"equals", none}, OpStrictEquals: {"strictequals", none},
	OpLessThan: {"lessthan", none}, OpLessEquals: {"lessequals", none},
	OpGreaterThan: {"greaterthan", none}, OpGreaterEquals: {"greaterequals", none},
	OpInstanceOf: {"instanceof", none}, OpIsType: {"istype", u30}, OpIsTypeLate: {"istypelate", none},
	OpIn: {"in", none},
	OpIncrementI: {"increment_i", none}, OpDecrementI: {"decrement_i", none},
	OpIncLocalI: {"inclocal_i", u30}, OpDecLocalI: {"declocal_i", u30},
	OpNegateI: {"negate_i", none}, OpAddI: {"add_i", none}, OpSubtractI: {"subtract_i", none},
	OpMultiplyI: {"multiply_i", none},
	OpGetLocal0: {"getlocal0", none}, OpGetLocal1: {"getlocal1", none},
	OpGetLocal2: {"getlocal2", none}, OpGetLocal3: {"getlocal3", none},
	OpSetLocal0: {"setlocal0", none}, OpSetLocal1: {"setlocal1", none},
	OpSetLocal2: {"setlocal2", none}, OpSetLocal3: {"setlocal3", none},
	OpDebug: {"debug", []OperandKind{OperandU8, OperandU30, OperandU8, OperandU30}},
	OpDebugLine: {"debugline", u30}, OpDebugFile: {"debugfile", u30},
	OpBkptLine: {"bkptline", u30}, OpTimestamp: {"timestamp", none},
}

func (op Opcode) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("op_0x%02x", uint8(op))
}

// Known reports whether op is a defined instruction.
func (op Opcode) Known() bool {
	_, ok := opTable[op]
	return ok
}

// Operands returns the operand layout of op (nil for lookupswitch, whose
// layout is variable).
func (op Opcode) Operands() []OperandKind {
	return opTable[op].operands
}

// IsBranch reports whether op takes a single s24 branch offset.
func (op Opcode) IsBranch() bool {
	return op >= OpIfNLT && op <= OpIfStrictNe
}

// ---------------------------------------------------------------------------
// Instruction decoding
// ---------------------------------------------------------------------------

// Instruction is one decoded instruction.
type Instruction struct {
	Op    Opcode
	PC    int    // offset of the opcode byte
	Next  int    // offset of the following instruction
	Args  [4]int // immediate operands in encoding order
	NArgs int
	Cases []int // lookupswitch: absolute targets, default first
}

// Target returns the absolute destination of a branch instruction.
func (in *Instruction) Target() int {
	return in.Next + in.Args[0]
}

// Decode decodes the instruction at pc.
func Decode(code []byte, pc int) (Instruction, error) {
	in := Instruction{PC: pc}
	r := NewReader(code)
	if err := r.SetOffset(pc); err != nil {
		return in, err
	}
	b, err := r.ReadU8()
	if err != nil {
		return in, err
	}
	in.Op = Opcode(b)
	info, ok := opTable[in.Op]
	if !ok {
		return in, fmt.Errorf("%w: unknown opcode 0x%02x at %d", ErrVerify, b, pc)
	}

	if in.Op == OpLookupSwitch {
		def, err := r.ReadS24()
		if err != nil {
			return in, err
		}
		n, err := r.ReadU30()
		if err != nil {
			return in, err
		}
		if (int(n)+1)*3 > r.Remaining() {
			return in, fmt.Errorf("%w: lookupswitch with %d cases at %d", ErrTruncated, n+1, pc)
		}
		in.Cases = make([]int, 0, n+2)
		in.Cases = append(in.Cases, pc+int(def))
		for i := 0; i <= int(n); i++ {
			off, err := r.ReadS24()
			if err != nil {
				return in, err
			}
			in.Cases = append(in.Cases, pc+int(off))
		}
		in.Next = r.Offset()
		return in, nil
	}

	for i, k := range info.operands {
		switch k {
		case OperandU8:
			v, err := r.ReadU8()
			if err != nil {
				return in, err
			}
			in.Args[i] = int(v)
		case OperandU30:
			v, err := r.ReadU30()
			if err != nil {
				return in, err
			}
			in.Args[i] = int(v)
		case OperandS24:
			v, err := r.ReadS24()
			if err != nil {
				return in, err
			}
			in.Args[i] = int(v)
		}
	}
	in.NArgs = len(info.operands)
	in.Next = r.Offset()
	return in, nil
}

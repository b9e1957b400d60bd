package abc

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// FormatInstruction renders one decoded instruction. Pool operands are
// resolved when pool is non-nil.
func FormatInstruction(in Instruction, pool *ConstantPool) string {
	head := fmt.Sprintf("%04d  %s", in.PC, in.Op)

	switch {
	case in.Op == OpLookupSwitch:
		parts := make([]string, len(in.Cases)-1)
		for i, c := range in.Cases[1:] {
			parts[i] = fmt.Sprintf("%04d", c)
		}
		return fmt.Sprintf("%s default=%04d [%s]", head, in.Cases[0], strings.Join(parts, " "))
	case in.Op.IsBranch():
		return fmt.Sprintf("%s %d (-> %04d)", head, in.Args[0], in.Target())
	}

	switch in.Op {
	case OpPushByte:
		return fmt.Sprintf("%s %d", head, int8(in.Args[0]))
	case OpPushShort:
		return fmt.Sprintf("%s %d", head, int16(in.Args[0]))

	case OpPushString, OpDXNS, OpDebugFile:
		return fmt.Sprintf("%s %s", head, poolString(pool, in.Args[0]))
	case OpPushInt:
		if pool != nil {
			if v, err := pool.Int(uint32(in.Args[0])); err == nil {
				return fmt.Sprintf("%s %d", head, v)
			}
		}
	case OpPushUInt:
		if pool != nil {
			if v, err := pool.UInt(uint32(in.Args[0])); err == nil {
				return fmt.Sprintf("%s %d", head, v)
			}
		}
	case OpPushDouble:
		if pool != nil {
			if v, err := pool.Double(uint32(in.Args[0])); err == nil {
				return fmt.Sprintf("%s %s", head, strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
	case OpPushNamespace:
		if pool != nil {
			if uri, err := pool.NamespaceURI(uint32(in.Args[0])); err == nil {
				return fmt.Sprintf("%s %q", head, uri)
			}
		}

	case OpGetSuper, OpSetSuper, OpFindPropStrict, OpFindProperty, OpFindDef, OpGetLex,
		OpSetProperty, OpGetProperty, OpInitProperty, OpDeleteProperty, OpGetDescendants,
		OpCoerce, OpAsType, OpIsType:
		return fmt.Sprintf("%s %s", head, poolName(pool, in.Args[0]))
	case OpCallProperty, OpCallPropLex, OpCallPropVoid, OpCallSuper, OpCallSuperVoid, OpConstructProp:
		return fmt.Sprintf("%s %s argc=%d", head, poolName(pool, in.Args[0]), in.Args[1])
	case OpCallMethod, OpCallStatic:
		return fmt.Sprintf("%s method=%d argc=%d", head, in.Args[0], in.Args[1])
	case OpNewFunction:
		return fmt.Sprintf("%s method=%d", head, in.Args[0])
	case OpNewClass:
		return fmt.Sprintf("%s class=%d", head, in.Args[0])
	case OpCall, OpConstruct, OpConstructSuper, OpNewObject, OpNewArray:
		return fmt.Sprintf("%s argc=%d", head, in.Args[0])
	case OpHasNext2:
		return fmt.Sprintf("%s object=%d index=%d", head, in.Args[0], in.Args[1])
	case OpDebug:
		return fmt.Sprintf("%s %d %s reg=%d %d", head, in.Args[0], poolString(pool, in.Args[1]), in.Args[2], in.Args[3])
	}

	for i := 0; i < in.NArgs; i++ {
		head += " " + strconv.Itoa(in.Args[i])
	}
	return head
}

// Disassemble renders code one instruction per line. Decoding stops at the
// first malformed instruction; the listing up to that point is returned
// together with the error.
func Disassemble(code []byte, pool *ConstantPool) (string, error) {
	var sb strings.Builder
	for pc := 0; pc < len(code); {
		in, err := Decode(code, pc)
		if err != nil {
			return sb.String(), err
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(FormatInstruction(in, pool))
		pc = in.Next
	}
	return sb.String(), nil
}

// DisassembleBody renders a method body with its header and exception
// table.
func DisassembleBody(f *File, body *MethodBody) (string, error) {
	var sb strings.Builder
	m := &f.Methods[body.Method]
	name, _ := f.Pool.String(m.Name)
	fmt.Fprintf(&sb, "method %d %q params=%d max_stack=%d locals=%d scope=%d..%d\n",
		body.Method, name, m.ParamCount(), body.MaxStack, body.LocalCount,
		body.InitScopeDepth, body.MaxScopeDepth)
	listing, err := Disassemble(body.Code, f.Pool)
	sb.WriteString(listing)
	for _, e := range body.Exceptions {
		fmt.Fprintf(&sb, "\n  catch [%04d,%04d) -> %04d type=%s", e.From, e.To, e.Target, f.Pool.QualifiedName(e.ExcType))
	}
	return sb.String(), err
}

func poolString(pool *ConstantPool, idx int) string {
	if pool != nil {
		if s, err := pool.String(uint32(idx)); err == nil {
			return strconv.Quote(s)
		}
	}
	return "#" + strconv.Itoa(idx)
}

func poolName(pool *ConstantPool, idx int) string {
	if pool == nil {
		return "#" + strconv.Itoa(idx)
	}
	return pool.QualifiedName(uint32(idx))
}

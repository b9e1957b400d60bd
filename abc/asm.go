package abc

import "fmt"

// Asm emits method body byte-code. Branch targets are named labels that
// are resolved when Code is called, so forward jumps need no bookkeeping.
type Asm struct {
	w      *Writer
	labels map[string]int
	fixups []fixup
	err    error
}

type fixup struct {
	at    int // offset of the s24 field
	base  int // offset the displacement is relative to
	label string
}

func NewAsm() *Asm {
	return &Asm{w: NewWriter(), labels: make(map[string]int)}
}

// PC returns the offset of the next emitted byte.
func (a *Asm) PC() int {
	return a.w.Len()
}

// Op emits an instruction with immediate operands. Operand count and
// encoding come from the opcode table.
func (a *Asm) Op(op Opcode, args ...int) *Asm {
	info, ok := opTable[op]
	if !ok || op == OpLookupSwitch {
		a.fail(fmt.Errorf("%w: cannot emit %s with Op", ErrFormat, op))
		return a
	}
	if len(args) != len(info.operands) {
		a.fail(fmt.Errorf("%w: %s takes %d operands, got %d", ErrFormat, op, len(info.operands), len(args)))
		return a
	}
	a.w.WriteU8(uint8(op))
	for i, k := range info.operands {
		switch k {
		case OperandU8:
			a.w.WriteU8(uint8(args[i]))
		case OperandU30:
			a.w.WriteU30(uint32(args[i]))
		case OperandS24:
			a.w.WriteS24(int32(args[i]))
		}
	}
	return a
}

// Label binds name to the current offset.
func (a *Asm) Label(name string) *Asm {
	if _, dup := a.labels[name]; dup {
		a.fail(fmt.Errorf("%w: label %q defined twice", ErrFormat, name))
		return a
	}
	a.labels[name] = a.PC()
	return a
}

// Branch emits a jump or conditional branch to label.
func (a *Asm) Branch(op Opcode, label string) *Asm {
	if !op.IsBranch() {
		a.fail(fmt.Errorf("%w: %s is not a branch", ErrFormat, op))
		return a
	}
	a.w.WriteU8(uint8(op))
	at := a.PC()
	a.w.WriteS24(0)
	a.fixups = append(a.fixups, fixup{at: at, base: at + 3, label: label})
	return a
}

// LookupSwitch emits a lookupswitch with a default label and one label
// per case. Offsets are relative to the lookupswitch opcode itself.
func (a *Asm) LookupSwitch(def string, cases ...string) *Asm {
	if len(cases) == 0 {
		a.fail(fmt.Errorf("%w: lookupswitch needs at least one case", ErrFormat))
		return a
	}
	base := a.PC()
	a.w.WriteU8(uint8(OpLookupSwitch))
	a.fixups = append(a.fixups, fixup{at: a.PC(), base: base, label: def})
	a.w.WriteS24(0)
	a.w.WriteU30(uint32(len(cases) - 1))
	for _, c := range cases {
		a.fixups = append(a.fixups, fixup{at: a.PC(), base: base, label: c})
		a.w.WriteS24(0)
	}
	return a
}

// Raw appends bytes verbatim, e.g. to build deliberately invalid code.
func (a *Asm) Raw(b ...byte) *Asm {
	a.w.WriteBytes(b)
	return a
}

// LabelPC returns the offset bound to name.
func (a *Asm) LabelPC(name string) int {
	pc, ok := a.labels[name]
	if !ok {
		a.fail(fmt.Errorf("%w: undefined label %q", ErrFormat, name))
	}
	return pc
}

// Code resolves all branch labels and returns the byte-code.
func (a *Asm) Code() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	if err := a.w.Err(); err != nil {
		return nil, err
	}
	code := append([]byte(nil), a.w.Bytes()...)
	for _, f := range a.fixups {
		target, ok := a.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("%w: undefined label %q", ErrFormat, f.label)
		}
		d := target - f.base
		if d < -1<<23 || d >= 1<<23 {
			return nil, fmt.Errorf("%w: branch to %q out of s24 range", ErrFormat, f.label)
		}
		code[f.at] = byte(d)
		code[f.at+1] = byte(d >> 8)
		code[f.at+2] = byte(d >> 16)
	}
	return code, nil
}

// MustCode is Code for fixtures known to be well formed.
func (a *Asm) MustCode() []byte {
	code, err := a.Code()
	if err != nil {
		panic(err)
	}
	return code
}

func (a *Asm) fail(err error) {
	if a.err == nil {
		a.err = err
	}
}

package abc

import (
	"errors"
	"strings"
	"testing"
)

func TestAsmBranchOffsets(t *testing.T) {
	a := NewAsm()
	a.Op(OpPushTrue).
		Branch(OpIfFalse, "else").
		Op(OpPushByte, 1).
		Branch(OpJump, "done").
		Label("else").
		Op(OpPushByte, 2).
		Label("done").
		Op(OpReturnValue)
	code, err := a.Code()
	if err != nil {
		t.Fatalf("Code failed: %v", err)
	}

	in, err := Decode(code, 1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if in.Op != OpIfFalse || in.Next != 5 {
		t.Fatalf("decoded %s next=%d", in.Op, in.Next)
	}
	if got, want := in.Target(), a.LabelPC("else"); got != want {
		t.Errorf("iffalse target = %d, want %d", got, want)
	}

	jump, _ := Decode(code, 7)
	if jump.Op != OpJump || jump.Target() != a.LabelPC("done") {
		t.Errorf("jump = %+v, want target %d", jump, a.LabelPC("done"))
	}
}

func TestAsmBackwardBranch(t *testing.T) {
	a := NewAsm()
	a.Label("top").Op(OpNop).Branch(OpJump, "top")
	code := a.MustCode()
	in, err := Decode(code, 1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if in.Args[0] != -5 || in.Target() != 0 {
		t.Errorf("offset=%d target=%d, want -5 and 0", in.Args[0], in.Target())
	}
}

func TestAsmLookupSwitch(t *testing.T) {
	a := NewAsm()
	a.Op(OpPushByte, 1).
		LookupSwitch("dflt", "c0", "c1").
		Label("c0").Op(OpPushByte, 10).Op(OpReturnValue).
		Label("c1").Op(OpPushByte, 11).Op(OpReturnValue).
		Label("dflt").Op(OpPushByte, 12).Op(OpReturnValue)
	code := a.MustCode()

	in, err := Decode(code, 2)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []int{a.LabelPC("dflt"), a.LabelPC("c0"), a.LabelPC("c1")}
	if len(in.Cases) != len(want) {
		t.Fatalf("cases = %v, want %v", in.Cases, want)
	}
	for i := range want {
		if in.Cases[i] != want[i] {
			t.Errorf("case %d = %d, want %d", i, in.Cases[i], want[i])
		}
	}
	if in.Next != a.LabelPC("c0") {
		t.Errorf("next = %d, want %d", in.Next, a.LabelPC("c0"))
	}
}

func TestAsmErrors(t *testing.T) {
	if _, err := NewAsm().Branch(OpJump, "nowhere").Code(); !errors.Is(err, ErrFormat) {
		t.Errorf("undefined label: error = %v, want ErrFormat", err)
	}
	if _, err := NewAsm().Op(OpGetLocal, 1, 2).Code(); !errors.Is(err, ErrFormat) {
		t.Errorf("operand count: error = %v, want ErrFormat", err)
	}
	if _, err := NewAsm().Branch(OpAdd, "x").Code(); !errors.Is(err, ErrFormat) {
		t.Errorf("non-branch: error = %v, want ErrFormat", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte{0xFE}, 0); !errors.Is(err, ErrVerify) {
		t.Errorf("unknown opcode: error = %v, want ErrVerify", err)
	}
	if _, err := Decode([]byte{byte(OpJump), 0x01}, 0); !errors.Is(err, ErrTruncated) {
		t.Errorf("short branch: error = %v, want ErrTruncated", err)
	}
	if _, err := Decode([]byte{byte(OpLookupSwitch), 0, 0, 0, 0x7F}, 0); !errors.Is(err, ErrTruncated) {
		t.Errorf("short lookupswitch: error = %v, want ErrTruncated", err)
	}
}

func TestOpcodeNames(t *testing.T) {
	tests := map[Opcode]string{
		OpAdd:          "add",
		OpGetLocal0:    "getlocal0",
		OpCallPropVoid: "callpropvoid",
		OpCoerceS:      "coerce_s",
		OpLookupSwitch: "lookupswitch",
		Opcode(0xFE):   "op_0xfe",
	}
	for op, want := range tests {
		if got := op.String(); got != want {
			t.Errorf("Opcode(0x%02x).String() = %q, want %q", uint8(op), got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

func TestDisassemble(t *testing.T) {
	b := NewBuilder()
	a := NewAsm()
	a.Op(OpPushString, int(b.String("hi"))).
		Op(OpPushInt, int(b.Int(-9))).
		Op(OpPushByte, -3).
		Op(OpCallPropVoid, int(b.PublicName("trace")), 1).
		Branch(OpJump, "end").
		Label("end").
		Op(OpReturnVoid)

	dis, err := Disassemble(a.MustCode(), b.File().Pool)
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	for _, want := range []string{`pushstring "hi"`, "pushint -9", "pushbyte -3", "callpropvoid trace argc=1", "jump 0 (->", "returnvoid"} {
		if !strings.Contains(dis, want) {
			t.Errorf("disassembly should contain %q, got:\n%s", want, dis)
		}
	}
}

func TestDisassembleStopsAtBadOpcode(t *testing.T) {
	dis, err := Disassemble([]byte{byte(OpNop), 0xFE}, nil)
	if !errors.Is(err, ErrVerify) {
		t.Fatalf("error = %v, want ErrVerify", err)
	}
	if !strings.Contains(dis, "nop") {
		t.Errorf("partial listing = %q", dis)
	}
}

func TestDisassembleBody(t *testing.T) {
	f := sampleFile(t)
	body, _ := f.Body(f.Instances[0].Init)
	dis, err := DisassembleBody(f, body)
	if err != nil {
		t.Fatalf("DisassembleBody failed: %v", err)
	}
	if !strings.Contains(dis, `"Point"`) || !strings.Contains(dis, "catch [") {
		t.Errorf("unexpected listing:\n%s", dis)
	}
}

package abc

import (
	"bytes"
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

// sampleFile builds a file exercising every table: a class with instance
// and static traits, an optional parameter, metadata and an exception
// handler.
func sampleFile(t *testing.T) *File {
	t.Helper()
	b := NewBuilder()

	pkg := b.Package("demo")
	objName := b.PublicName("Object")
	pointName := b.QName(pkg, "Point")
	xName := b.PublicName("x")
	intType := b.PublicName("int")
	errType := b.PublicName("Error")
	eName := b.PublicName("e")
	b.Multiname("trace", b.NamespaceSet(b.Package(""), pkg))

	md := b.Metadata(Metadata{
		Name:  b.String("Event"),
		Items: []MetadataItem{{Key: b.String("name"), Value: b.String("change")}, {Value: b.String("bare")}},
	})

	code := NewAsm().
		Op(OpGetLocal0).Op(OpPushScope).
		Label("try").
		Op(OpPushInt, int(b.Int(-7))).
		Op(OpPushUInt, int(b.UInt(4000000000))).
		Op(OpPushDouble, int(b.Double(2.5))).
		Op(OpPushString, int(b.String("hi"))).
		Op(OpPop).Op(OpPop).Op(OpPop).Op(OpPop).
		Label("end").
		Op(OpReturnVoid).
		Label("catch").
		Op(OpPop).
		Op(OpReturnVoid)
	body := MethodBody{MaxStack: 4, LocalCount: 2, InitScopeDepth: 0, MaxScopeDepth: 2, Code: code.MustCode()}
	body.Exceptions = []ExceptionInfo{{
		From: uint32(code.LabelPC("try")), To: uint32(code.LabelPC("end")),
		Target: uint32(code.LabelPC("catch")), ExcType: errType, VarName: eName,
	}}

	iinit := b.Function(MethodInfo{
		ParamTypes: []uint32{intType},
		Name:       b.String("Point"),
		Options:    []OptionDetail{{Value: b.Int(3), Kind: ConstantInt}},
		ParamNames: []uint32{b.String("x")},
	}, body)
	cinit := b.Function(MethodInfo{}, MethodBody{MaxStack: 1, LocalCount: 1, MaxScopeDepth: 1,
		Code: NewAsm().Op(OpReturnVoid).MustCode()})
	getter := b.Function(MethodInfo{ReturnType: intType}, MethodBody{MaxStack: 1, LocalCount: 1, MaxScopeDepth: 1,
		Code: NewAsm().Op(OpPushByte, -1).Op(OpReturnValue).MustCode()})
	native := b.Method(MethodInfo{Name: b.String("nat"), Flags: MethodNative})

	cls := b.Class(InstanceInfo{
		Name: pointName, SuperName: objName, Flags: ClassSealed | ClassProtectedNs,
		ProtectedNs: b.Namespace(NamespaceKindProtected, "demo:Point"),
		Init:        iinit,
		Traits: []Trait{
			{Name: xName, Kind: TraitSlot, TypeName: intType, ValueIndex: b.Int(3), ValueKind: ConstantInt},
			{Name: b.PublicName("len"), Kind: TraitGetter, Method: getter, Attr: TraitAttrFinal, Metadata: []uint32{md}},
			{Name: b.PublicName("nat"), Kind: TraitMethod, Method: native},
		},
	}, ClassInfo{
		Init:   cinit,
		Traits: []Trait{{Name: b.PublicName("ORIGIN"), Kind: TraitConst, ValueIndex: uint32(ConstantNull), ValueKind: ConstantNull}},
	})

	sinit := b.Function(MethodInfo{}, MethodBody{MaxStack: 2, LocalCount: 1, MaxScopeDepth: 1,
		Code: NewAsm().Op(OpGetLocal0).Op(OpPushScope).Op(OpReturnVoid).MustCode()})
	b.Script(ScriptInfo{Init: sinit, Traits: []Trait{{Name: pointName, Kind: TraitClass, Class: cls}}})
	return b.File()
}

func mustEncode(t *testing.T, f *File) []byte {
	t.Helper()
	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return data
}

// rawHeader writes the version, empty numeric pools and the given string
// pool; callers append the remaining pool sections.
func rawHeader(w *Writer, strs ...string) {
	w.WriteU16(16)
	w.WriteU16(46)
	w.WriteU30(0) // ints
	w.WriteU30(0) // uints
	w.WriteU30(0) // doubles
	if len(strs) == 0 {
		w.WriteU30(0)
		return
	}
	w.WriteU30(uint32(len(strs) + 1))
	for _, s := range strs {
		w.WriteString(s)
	}
}

// ---------------------------------------------------------------------------
// Round trips
// ---------------------------------------------------------------------------

func TestParseBuiltFile(t *testing.T) {
	data := mustEncode(t, sampleFile(t))

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.MajorVersion != 46 || f.MinorVersion != 16 {
		t.Errorf("version = %d.%d, want 46.16", f.MajorVersion, f.MinorVersion)
	}
	if len(f.Instances) != 1 || len(f.Classes) != 1 || len(f.Scripts) != 1 {
		t.Fatalf("counts: %d instances, %d classes, %d scripts", len(f.Instances), len(f.Classes), len(f.Scripts))
	}
	if got := f.ClassName(0); got != "demo::Point" {
		t.Errorf("ClassName(0) = %q, want %q", got, "demo::Point")
	}

	in := &f.Instances[0]
	if !in.IsSealed() || in.IsDynamic() || in.IsInterface() {
		t.Errorf("instance flags = %#x", in.Flags)
	}
	if uri, _ := f.Pool.NamespaceURI(in.ProtectedNs); uri != "demo:Point" {
		t.Errorf("protected namespace = %q", uri)
	}
	if len(in.Traits) != 3 {
		t.Fatalf("instance traits = %d, want 3", len(in.Traits))
	}
	if tr := in.Traits[1]; tr.Kind != TraitGetter || !tr.IsFinal() || !tr.HasMetadata() || len(tr.Metadata) != 1 {
		t.Errorf("getter trait = %+v", tr)
	}
	if v, _ := f.Pool.Int(in.Traits[0].ValueIndex); v != 3 {
		t.Errorf("slot default = %d, want 3", v)
	}

	m := f.Methods[in.Init]
	if !m.Has(MethodHasOptional) || !m.Has(MethodHasParamNames) {
		t.Errorf("iinit flags = %#x, want optional and param names", m.Flags)
	}
	if len(m.Options) != 1 || m.Options[0].Kind != ConstantInt {
		t.Errorf("options = %+v", m.Options)
	}

	md := f.Metadata[0]
	if name, _ := f.Pool.String(md.Name); name != "Event" || len(md.Items) != 2 || md.Items[1].Key != 0 {
		t.Errorf("metadata = %+v", md)
	}

	body, ok := f.Body(in.Init)
	if !ok {
		t.Fatal("iinit has no body")
	}
	if len(body.Exceptions) != 1 || !body.Exceptions[0].Covers(int(body.Exceptions[0].From)) {
		t.Errorf("exceptions = %+v", body.Exceptions)
	}
	if _, ok := f.Body(3); ok {
		t.Error("native method reported a body")
	}

	if v, _ := f.Pool.UInt(1); v != 4000000000 {
		t.Errorf("uint pool[1] = %d", v)
	}
	if v, _ := f.Pool.Double(1); v != 2.5 {
		t.Errorf("double pool[1] = %v", v)
	}
}

func TestEncodeIsStable(t *testing.T) {
	first := mustEncode(t, sampleFile(t))
	f, err := Parse(first)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	second := mustEncode(t, f)
	if !bytes.Equal(first, second) {
		t.Errorf("re-encoding changed the payload: %d bytes vs %d bytes", len(first), len(second))
	}
}

func TestParseEmptyFile(t *testing.T) {
	f, err := Parse(mustEncode(t, &File{MinorVersion: 16, MajorVersion: 46}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(f.Pool.Strings) != 1 || len(f.Pool.Multinames) != 1 {
		t.Errorf("pool should hold only sentinels: %+v", f.Pool)
	}
	if s, _ := f.Pool.String(0); s != "" {
		t.Errorf("string sentinel = %q", s)
	}
}

func TestParseTrailingBytesIgnored(t *testing.T) {
	data := append(mustEncode(t, sampleFile(t)), 0xDE, 0xAD)
	if _, err := Parse(data); err != nil {
		t.Fatalf("Parse with trailing bytes failed: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Rejections
// ---------------------------------------------------------------------------

func TestParseTruncatedPrefixes(t *testing.T) {
	data := mustEncode(t, sampleFile(t))
	for n := 0; n < len(data); n++ {
		_, err := Parse(data[:n])
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("Parse(data[:%d]) error = %v, want ErrTruncated", n, err)
		}
	}
}

func TestParseDecodeErrorLocation(t *testing.T) {
	data := mustEncode(t, sampleFile(t))
	_, err := Parse(data[:len(data)-1])
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error %v is not a *DecodeError", err)
	}
	if de.Section == "" || de.Offset <= 0 {
		t.Errorf("DecodeError = %+v", de)
	}
}

func TestParseUnknownMultinameKind(t *testing.T) {
	for _, kind := range []uint8{0x1C, 0x1D, 0x01, 0xFF} {
		w := NewWriter()
		rawHeader(w, "x")
		w.WriteU30(0) // namespaces
		w.WriteU30(0) // namespace sets
		w.WriteU30(2)
		w.WriteU8(kind)
		w.WriteU30(1)
		_, err := Parse(w.Bytes())
		if !errors.Is(err, ErrFormat) {
			t.Errorf("multiname kind 0x%02x: error = %v, want ErrFormat", kind, err)
		}
	}
}

func TestParseUnknownNamespaceKind(t *testing.T) {
	w := NewWriter()
	rawHeader(w, "pkg")
	w.WriteU30(2)
	w.WriteU8(0x42)
	w.WriteU30(1)
	if _, err := Parse(w.Bytes()); !errors.Is(err, ErrFormat) {
		t.Errorf("error = %v, want ErrFormat", err)
	}
}

func TestParseNamespaceSetErrors(t *testing.T) {
	tests := []struct {
		name    string
		entries []uint32
		want    error
	}{
		{"empty set", nil, ErrVerify},
		{"sentinel entry", []uint32{0}, ErrVerify},
		{"out of range", []uint32{7}, ErrIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			rawHeader(w, "")
			w.WriteU30(2)
			w.WriteU8(uint8(NamespaceKindPackage))
			w.WriteU30(1)
			w.WriteU30(2)
			w.WriteU30(uint32(len(tt.entries)))
			for _, e := range tt.entries {
				w.WriteU30(e)
			}
			if _, err := Parse(w.Bytes()); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseStringIndexOutOfRange(t *testing.T) {
	w := NewWriter()
	rawHeader(w, "a")
	w.WriteU30(2)
	w.WriteU8(uint8(NamespaceKindPackage))
	w.WriteU30(5)
	if _, err := Parse(w.Bytes()); !errors.Is(err, ErrIndex) {
		t.Errorf("error = %v, want ErrIndex", err)
	}
}

func TestParseOversizedU30(t *testing.T) {
	w := NewWriter()
	w.WriteU16(16)
	w.WriteU16(46)
	w.WriteBytes([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F})
	if _, err := Parse(w.Bytes()); !errors.Is(err, ErrFormat) {
		t.Errorf("error = %v, want ErrFormat", err)
	}
}

func TestParseTraitNameMustBeQName(t *testing.T) {
	f := sampleFile(t)
	bad := uint32(len(f.Pool.Multinames))
	f.Pool.Multinames = append(f.Pool.Multinames, Multiname{Kind: MultinameKindMultiname, Name: 1, NamespaceSet: 1})
	f.Scripts[0].Traits = append(f.Scripts[0].Traits, Trait{Name: bad, Kind: TraitSlot})

	if _, err := Parse(mustEncode(t, f)); !errors.Is(err, ErrVerify) {
		t.Errorf("error = %v, want ErrVerify", err)
	}
}

func TestParseDuplicateBody(t *testing.T) {
	f := sampleFile(t)
	f.Bodies = append(f.Bodies, f.Bodies[0])
	if _, err := Parse(mustEncode(t, f)); !errors.Is(err, ErrVerify) {
		t.Errorf("error = %v, want ErrVerify", err)
	}
}

func TestBodyOnInvalidHandBuiltFile(t *testing.T) {
	f := sampleFile(t)
	m := f.Bodies[0].Method
	f.Bodies = append(f.Bodies, f.Bodies[0])
	if err := f.IndexBodies(); !errors.Is(err, ErrVerify) {
		t.Fatalf("IndexBodies error = %v, want ErrVerify", err)
	}
	if _, ok := f.Body(m); ok {
		t.Error("Body resolved a method with two bodies")
	}

	f.Bodies = f.Bodies[:len(f.Bodies)-1]
	if err := f.IndexBodies(); err != nil {
		t.Fatalf("IndexBodies after removing the duplicate: %v", err)
	}
	if _, ok := f.Body(m); !ok {
		t.Errorf("method %d lost its body", m)
	}
}

func TestParseBodyForNativeMethod(t *testing.T) {
	f := sampleFile(t)
	f.Bodies = append(f.Bodies, MethodBody{Method: 3, Code: []byte{byte(OpReturnVoid)}})
	if _, err := Parse(mustEncode(t, f)); !errors.Is(err, ErrVerify) {
		t.Errorf("error = %v, want ErrVerify", err)
	}
}

func TestParseExceptionOutsideCode(t *testing.T) {
	f := sampleFile(t)
	f.Bodies[0].Exceptions[0].Target = uint32(len(f.Bodies[0].Code) + 4)
	if _, err := Parse(mustEncode(t, f)); !errors.Is(err, ErrVerify) {
		t.Errorf("error = %v, want ErrVerify", err)
	}
}

func TestParseMethodIndexOutOfRange(t *testing.T) {
	f := sampleFile(t)
	f.Scripts[0].Init = uint32(len(f.Methods) + 10)
	if _, err := Parse(mustEncode(t, f)); !errors.Is(err, ErrIndex) {
		t.Errorf("error = %v, want ErrIndex", err)
	}
}

// ---------------------------------------------------------------------------
// DoABC tags
// ---------------------------------------------------------------------------

func TestSplitDoABC(t *testing.T) {
	payload := mustEncode(t, sampleFile(t))
	raw := append([]byte{0x01, 0x00, 0x00, 0x00}, []byte("frame1\x00")...)
	raw = append(raw, payload...)

	flags, name, got, err := SplitDoABC(raw)
	if err != nil {
		t.Fatalf("SplitDoABC failed: %v", err)
	}
	if flags != 1 || name != "frame1" {
		t.Errorf("flags=%d name=%q", flags, name)
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload mismatch")
	}

	if _, _, _, err := SplitDoABC([]byte{1, 0}); !errors.Is(err, ErrTruncated) {
		t.Errorf("short tag: error = %v, want ErrTruncated", err)
	}
}

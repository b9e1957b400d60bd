package vm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chazu/avm2/abc"
)

// ---------------------------------------------------------------------------
// Host calls
// ---------------------------------------------------------------------------

func TestCallConstantMethod(t *testing.T) {
	fx := newFixture(t)
	fx.scriptMethod("answer", fx.method(0, abc.NewAsm().
		Op(abc.OpPushByte, 42).
		Op(abc.OpReturnValue)))

	v, err := CallMethod(fx.load(), "answer", Undefined)
	if err != nil {
		t.Fatalf("CallMethod failed: %v", err)
	}
	if v.Kind() != KindInt || v.AsInt() != 42 {
		t.Errorf("answer() = %v, want int 42", v)
	}
}

func TestCallWithArguments(t *testing.T) {
	fx := newFixture(t)
	fx.scriptMethod("sum", fx.method(2, abc.NewAsm().
		Op(abc.OpGetLocal1).
		Op(abc.OpGetLocal2).
		Op(abc.OpAdd).
		Op(abc.OpReturnValue)))
	vm := fx.vm(DefaultOptions())

	tests := []struct {
		a, b Value
		want string
	}{
		{Int(2), Int(3), "5"},
		{String("a"), Int(1), "a1"},
		{Number(0.5), Number(0.25), "0.75"},
		{Int(2147483647), Int(1), "2147483648"},
	}
	for _, tc := range tests {
		v, err := vm.CallMethod("sum", Undefined, tc.a, tc.b, String("extra is dropped"))
		if err != nil {
			t.Fatalf("sum(%v, %v) failed: %v", tc.a, tc.b, err)
		}
		if got := primitiveToString(v); got != tc.want {
			t.Errorf("sum(%v, %v) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestTypedParameterCoercion(t *testing.T) {
	fx := newFixture(t)
	intName := uint32(fx.name("int"))
	fx.scriptMethod("twice", fx.methodInfo(abc.MethodInfo{ParamTypes: []uint32{intName}}, abc.NewAsm().
		Op(abc.OpGetLocal1).
		Op(abc.OpGetLocal1).
		Op(abc.OpAddI).
		Op(abc.OpReturnValue)))

	v, err := CallMethod(fx.load(), "twice", Undefined, String("12.9"))
	if err != nil {
		t.Fatalf("CallMethod failed: %v", err)
	}
	if v.Kind() != KindInt || v.AsInt() != 24 {
		t.Errorf("twice(\"12.9\") = %v, want int 24", v)
	}
}

func TestTooFewArguments(t *testing.T) {
	fx := newFixture(t)
	fx.scriptMethod("pair", fx.method(2, abc.NewAsm().Op(abc.OpPushNull).Op(abc.OpReturnValue)))

	_, err := CallMethod(fx.load(), "pair", Undefined, Int(1))
	if !errors.Is(err, ErrArgument) {
		t.Fatalf("err = %v, want ErrArgument", err)
	}
}

func TestUnknownMethodName(t *testing.T) {
	fx := newFixture(t)
	fx.scriptMethod("present", fx.empty())

	_, err := CallMethod(fx.load(), "absent", Undefined)
	if !errors.Is(err, ErrReference) {
		t.Fatalf("err = %v, want ErrReference", err)
	}
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

// greeterFixture declares A with greet() = "A" and hello() = "hello", and
// B extends A overriding greet() = "B" + super.greet().
func greeterFixture(t *testing.T) *fixture {
	fx := newFixture(t)
	aGreet := fx.method(0, abc.NewAsm().
		Op(abc.OpPushString, fx.str("A")).
		Op(abc.OpReturnValue))
	aHello := fx.method(0, abc.NewAsm().
		Op(abc.OpPushString, fx.str("hello")).
		Op(abc.OpReturnValue))
	fx.class(classSpec{name: "A", traits: []abc.Trait{
		methodTrait(fx, "greet", aGreet, 0),
		methodTrait(fx, "hello", aHello, 0),
	}})

	bGreet := fx.method(0, abc.NewAsm().
		Op(abc.OpGetLocal0).Op(abc.OpPushScope).
		Op(abc.OpPushString, fx.str("B")).
		Op(abc.OpGetLocal0).
		Op(abc.OpCallSuper, fx.name("greet"), 0).
		Op(abc.OpAdd).
		Op(abc.OpReturnValue))
	fx.class(classSpec{name: "B", super: "A", traits: []abc.Trait{
		methodTrait(fx, "greet", bGreet, abc.TraitAttrOverride),
	}})
	return fx
}

func TestSuperChainCall(t *testing.T) {
	vm := greeterFixture(t).vm(DefaultOptions())

	b, err := vm.Construct("B")
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	vm.Pin(b)
	defer vm.Unpin(b)

	v, err := vm.CallMethod("B.greet", b)
	if err != nil {
		t.Fatalf("B.greet failed: %v", err)
	}
	if v.AsString() != "BA" {
		t.Errorf("B.greet() = %q, want \"BA\"", v.AsString())
	}

	v, err = vm.CallMethod("B.hello", b)
	if err != nil {
		t.Fatalf("B.hello failed: %v", err)
	}
	if v.AsString() != "hello" {
		t.Errorf("inherited hello() = %q, want \"hello\"", v.AsString())
	}
}

func TestInstanceMethodNeedsInstance(t *testing.T) {
	vm := greeterFixture(t).vm(DefaultOptions())

	a, err := vm.Construct("A")
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	if _, err := vm.CallMethod("B.greet", a); !errors.Is(err, ErrType) {
		t.Fatalf("B.greet on an A: err = %v, want ErrType", err)
	}
}

func TestOverrideWithoutAttributeFailsToLoad(t *testing.T) {
	fx := newFixture(t)
	fx.class(classSpec{name: "A", traits: []abc.Trait{methodTrait(fx, "m", fx.empty(), 0)}})
	fx.class(classSpec{name: "B", super: "A", traits: []abc.Trait{methodTrait(fx, "m", fx.empty(), 0)}})

	if _, err := Load(fx.bytes(nil)); !errors.Is(err, ErrVerify) {
		t.Fatalf("Load err = %v, want ErrVerify", err)
	}
}

func TestFinalSuperFailsToLoad(t *testing.T) {
	fx := newFixture(t)
	fx.class(classSpec{name: "A", flags: abc.ClassFinal | abc.ClassSealed})
	fx.class(classSpec{name: "B", super: "A"})

	if _, err := Load(fx.bytes(nil)); !errors.Is(err, ErrVerify) {
		t.Fatalf("Load err = %v, want ErrVerify", err)
	}
}

func TestSuperDefinedLaterFailsToLoad(t *testing.T) {
	fx := newFixture(t)
	fx.class(classSpec{name: "B", super: "A"})
	fx.class(classSpec{name: "A"})

	_, err := Load(fx.bytes(nil))
	if !errors.Is(err, abc.ErrVerify) {
		t.Fatalf("Load err = %v, want ErrVerify", err)
	}
	if !strings.Contains(err.Error(), "must be defined before") {
		t.Errorf("Load err = %v, want an ordering failure", err)
	}
}

func TestLinkRejectsStrayBody(t *testing.T) {
	fx := newFixture(t)
	fx.bytes(nil)
	f := fx.b.File()
	f.Bodies = append(f.Bodies, abc.MethodBody{Method: uint32(len(f.Methods)), Code: []byte{byte(abc.OpReturnVoid)}})

	if _, err := Link(f); !errors.Is(err, abc.ErrIndex) {
		t.Fatalf("Link err = %v, want ErrIndex", err)
	}
}

func TestSealedInstanceRejectsNewProperties(t *testing.T) {
	fx := newFixture(t)
	fx.class(classSpec{name: "Sealed", flags: abc.ClassSealed})
	fx.class(classSpec{name: "Open"})
	vm := fx.vm(DefaultOptions())

	sealed, err := vm.Construct("Sealed")
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	if err := vm.SetProperty(sealed, "x", Int(1)); !errors.Is(err, ErrReference) {
		t.Errorf("SetProperty on sealed: err = %v, want ErrReference", err)
	}

	open, err := vm.Construct("Open")
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}
	if err := vm.SetProperty(open, "x", Int(1)); err != nil {
		t.Fatalf("SetProperty on dynamic: %v", err)
	}
	v, err := vm.GetProperty(open, "x")
	if err != nil || v.AsInt() != 1 {
		t.Errorf("GetProperty = %v, %v; want 1", v, err)
	}
	v, err = vm.GetProperty(open, "missing")
	if err != nil || !v.IsUndefined() {
		t.Errorf("missing dynamic property = %v, %v; want undefined", v, err)
	}
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

func TestCatchAll(t *testing.T) {
	fx := newFixture(t)
	a := abc.NewAsm()
	a.Op(abc.OpGetLocal0).Op(abc.OpPushScope).
		Label("from").
		Op(abc.OpPushString, fx.str("boom")).
		Op(abc.OpThrow).
		Label("to").
		Op(abc.OpPushUndefined).Op(abc.OpReturnValue).
		Label("catch").
		Op(abc.OpSetLocal1).
		Op(abc.OpPushString, fx.str("caught ")).
		Op(abc.OpGetLocal1).
		Op(abc.OpAdd).
		Op(abc.OpReturnValue)
	fx.scriptMethod("run", fx.method(0, a, abc.ExceptionInfo{
		From: uint32(a.LabelPC("from")), To: uint32(a.LabelPC("to")), Target: uint32(a.LabelPC("catch")),
	}))

	v, err := CallMethod(fx.load(), "run", Undefined)
	if err != nil {
		t.Fatalf("CallMethod failed: %v", err)
	}
	if v.AsString() != "caught boom" {
		t.Errorf("run() = %q, want \"caught boom\"", v.AsString())
	}
}

func TestTypedCatchSkipsNonMatchingHandler(t *testing.T) {
	fx := newFixture(t)
	a := abc.NewAsm()
	a.Label("from").
		Op(abc.OpPushNull).
		Op(abc.OpGetProperty, fx.name("field")).
		Label("to").
		Op(abc.OpReturnValue).
		Label("reference").
		Op(abc.OpPop).Op(abc.OpPushString, fx.str("reference")).Op(abc.OpReturnValue).
		Label("type").
		Op(abc.OpPop).Op(abc.OpPushString, fx.str("type")).Op(abc.OpReturnValue)
	from, to := uint32(a.LabelPC("from")), uint32(a.LabelPC("to"))
	fx.scriptMethod("run", fx.method(0, a,
		abc.ExceptionInfo{From: from, To: to, Target: uint32(a.LabelPC("reference")), ExcType: uint32(fx.name("ReferenceError"))},
		abc.ExceptionInfo{From: from, To: to, Target: uint32(a.LabelPC("type")), ExcType: uint32(fx.name("TypeError"))},
	))

	v, err := CallMethod(fx.load(), "run", Undefined)
	if err != nil {
		t.Fatalf("CallMethod failed: %v", err)
	}
	if v.AsString() != "type" {
		t.Errorf("run() = %q, want \"type\"", v.AsString())
	}
}

func TestHandlersMatchInTableOrder(t *testing.T) {
	fx := newFixture(t)
	a := abc.NewAsm()
	a.Label("from").
		Op(abc.OpPushByte, 1).
		Op(abc.OpThrow).
		Label("to").
		Label("first").
		Op(abc.OpPop).Op(abc.OpPushByte, 1).Op(abc.OpReturnValue).
		Label("second").
		Op(abc.OpPop).Op(abc.OpPushByte, 2).Op(abc.OpReturnValue)
	from, to := uint32(a.LabelPC("from")), uint32(a.LabelPC("to"))
	fx.scriptMethod("run", fx.method(0, a,
		abc.ExceptionInfo{From: from, To: to, Target: uint32(a.LabelPC("first"))},
		abc.ExceptionInfo{From: 0, To: to, Target: uint32(a.LabelPC("second"))},
	))

	v, err := CallMethod(fx.load(), "run", Undefined)
	if err != nil {
		t.Fatalf("CallMethod failed: %v", err)
	}
	if v.AsInt() != 1 {
		t.Errorf("run() = %v, want the first handler (1)", v)
	}
}

func TestUncaughtErrorUnwindsFrames(t *testing.T) {
	fx := newFixture(t)
	fx.scriptMethod("inner", fx.method(0, abc.NewAsm().
		Op(abc.OpFindPropStrict, fx.name("RangeError")).
		Op(abc.OpPushString, fx.str("too far")).
		Op(abc.OpConstructProp, fx.name("RangeError"), 1).
		Op(abc.OpThrow)))
	fx.scriptMethod("outer", fx.method(0, abc.NewAsm().
		Op(abc.OpGetLocal0).Op(abc.OpPushScope).
		Op(abc.OpFindPropStrict, fx.name("inner")).
		Op(abc.OpCallProperty, fx.name("inner"), 0).
		Op(abc.OpReturnValue)))

	_, err := CallMethod(fx.load(), "outer", Undefined)
	var te *ThrownError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *ThrownError", err)
	}
	if !errors.Is(err, ErrRange) {
		t.Errorf("err does not match ErrRange: %v", err)
	}
	if te.Message != "RangeError: too far" {
		t.Errorf("Message = %q", te.Message)
	}
	if got := strings.Join(te.Stack, ","); got != "inner,outer" {
		t.Errorf("Stack = %q, want \"inner,outer\"", got)
	}
}

func TestCallerHandlerCatchesCalleeThrow(t *testing.T) {
	fx := newFixture(t)
	fx.scriptMethod("inner", fx.method(0, abc.NewAsm().
		Op(abc.OpFindPropStrict, fx.name("RangeError")).
		Op(abc.OpPushString, fx.str("too far")).
		Op(abc.OpConstructProp, fx.name("RangeError"), 1).
		Op(abc.OpThrow)))
	a := abc.NewAsm()
	a.Op(abc.OpGetLocal0).Op(abc.OpPushScope).
		Label("from").
		Op(abc.OpFindPropStrict, fx.name("inner")).
		Op(abc.OpCallProperty, fx.name("inner"), 0).
		Label("to").
		Op(abc.OpReturnValue).
		Label("catch").
		Op(abc.OpGetProperty, fx.name("message")).
		Op(abc.OpReturnValue)
	fx.scriptMethod("outer", fx.method(0, a, abc.ExceptionInfo{
		From: uint32(a.LabelPC("from")), To: uint32(a.LabelPC("to")), Target: uint32(a.LabelPC("catch")),
	}))

	v, err := CallMethod(fx.load(), "outer", Undefined)
	if err != nil {
		t.Fatalf("CallMethod failed: %v", err)
	}
	if v.AsString() != "too far" {
		t.Errorf("outer() = %v, want the callee's message", v)
	}
}

func TestThrownPrimitiveMatchesErrThrown(t *testing.T) {
	fx := newFixture(t)
	fx.scriptMethod("run", fx.method(0, abc.NewAsm().Op(abc.OpPushByte, 7).Op(abc.OpThrow)))

	_, err := CallMethod(fx.load(), "run", Undefined)
	var te *ThrownError
	if !errors.As(err, &te) || !errors.Is(err, ErrThrown) {
		t.Fatalf("err = %v, want an ErrThrown *ThrownError", err)
	}
	if te.Value.AsInt() != 7 {
		t.Errorf("thrown value = %v, want 7", te.Value)
	}
}

// ---------------------------------------------------------------------------
// Natives
// ---------------------------------------------------------------------------

func nativeFixture(t *testing.T) *fixture {
	fx := newFixture(t)
	m := fx.b.Method(abc.MethodInfo{ParamTypes: make([]uint32, 2), Flags: abc.MethodNative})
	fx.scriptMethod("hostAdd", m)
	return fx
}

func TestMissingNativeIsLinkError(t *testing.T) {
	_, err := CallMethod(nativeFixture(t).load(), "hostAdd", Undefined, Int(1), Int(2))
	if !errors.Is(err, ErrLink) {
		t.Fatalf("err = %v, want ErrLink", err)
	}
}

func TestNativeMethod(t *testing.T) {
	opts := DefaultOptions()
	opts.Natives = map[string]NativeFunc{
		"hostAdd": func(vm *VM, this Value, args []Value) (Value, error) {
			return numberResult(args[0].AsNumber() + args[1].AsNumber()), nil
		},
	}
	vm := nativeFixture(t).vm(opts)

	v, err := vm.CallMethod("hostAdd", Undefined, Int(40), Int(2))
	if err != nil {
		t.Fatalf("CallMethod failed: %v", err)
	}
	if v.AsInt() != 42 {
		t.Errorf("hostAdd(40, 2) = %v, want 42", v)
	}
}

// ---------------------------------------------------------------------------
// Limits
// ---------------------------------------------------------------------------

func TestStrictStackOverflow(t *testing.T) {
	fx := newFixture(t)
	code := abc.NewAsm().
		Op(abc.OpPushByte, 1).
		Op(abc.OpPushByte, 2).
		Op(abc.OpAdd).
		Op(abc.OpReturnValue).
		MustCode()
	m := fx.b.Function(abc.MethodInfo{}, abc.MethodBody{MaxStack: 1, LocalCount: 1, Code: code})
	fx.scriptMethod("run", m)
	p := fx.load()

	if _, err := New(p, DefaultOptions()).CallMethod("run", Undefined); !errors.Is(err, ErrVerify) {
		t.Fatalf("strict: err = %v, want ErrVerify", err)
	}

	lax := DefaultOptions()
	lax.StrictStack = false
	v, err := New(p, lax).CallMethod("run", Undefined)
	if err != nil || v.AsInt() != 3 {
		t.Fatalf("lax: run() = %v, %v; want 3", v, err)
	}
}

func loopFixture(t *testing.T) *fixture {
	fx := newFixture(t)
	fx.scriptMethod("spin", fx.method(0, abc.NewAsm().
		Label("top").
		Op(abc.OpLabel).
		Branch(abc.OpJump, "top")))
	return fx
}

func TestInstructionBudget(t *testing.T) {
	opts := DefaultOptions()
	opts.InstructionBudget = 1000
	vm := loopFixture(t).vm(opts)

	for i := 0; i < 2; i++ {
		if _, err := vm.CallMethod("spin", Undefined); !errors.Is(err, ErrBudget) {
			t.Fatalf("call %d: err = %v, want ErrBudget", i, err)
		}
	}
}

func TestContextCancellation(t *testing.T) {
	vm := loopFixture(t).vm(DefaultOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := vm.CallMethodContext(ctx, "spin", Undefined)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}

	// An abort leaves no frames behind, so the VM stays usable.
	if len(vm.frames) != 0 || vm.runDepth != 0 {
		t.Fatalf("after abort: %d frames, run depth %d", len(vm.frames), vm.runDepth)
	}
	if _, err := vm.CallMethodContext(ctx, "spin", Undefined); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expired context: err = %v", err)
	}
}

func TestRecursionDepthLimit(t *testing.T) {
	fx := newFixture(t)
	fx.scriptMethod("down", fx.method(0, abc.NewAsm().
		Op(abc.OpGetLocal0).Op(abc.OpPushScope).
		Op(abc.OpFindPropStrict, fx.name("down")).
		Op(abc.OpCallProperty, fx.name("down"), 0).
		Op(abc.OpReturnValue)))
	opts := DefaultOptions()
	opts.MaxCallDepth = 64

	_, err := New(fx.load(), opts).CallMethod("down", Undefined)
	if !errors.Is(err, ErrCallDepth) {
		t.Fatalf("err = %v, want ErrCallDepth", err)
	}
}

// ---------------------------------------------------------------------------
// Closures and the heap
// ---------------------------------------------------------------------------

func TestClosureCounter(t *testing.T) {
	fx := newFixture(t)
	n := fx.name("n")
	inner := fx.method(0, abc.NewAsm().
		Op(abc.OpFindPropStrict, n).
		Op(abc.OpFindPropStrict, n).
		Op(abc.OpGetProperty, n).
		Op(abc.OpIncrement).
		Op(abc.OpSetProperty, n).
		Op(abc.OpGetLex, n).
		Op(abc.OpReturnValue))
	code := abc.NewAsm().
		Op(abc.OpGetLocal0).Op(abc.OpPushScope).
		Op(abc.OpNewActivation).Op(abc.OpDup).Op(abc.OpSetLocal1).Op(abc.OpPushScope).
		Op(abc.OpGetScopeObject, 1).
		Op(abc.OpPushByte, 0).
		Op(abc.OpSetSlot, 1).
		Op(abc.OpNewFunction, int(inner)).
		Op(abc.OpReturnValue).
		MustCode()
	outer := fx.b.Function(abc.MethodInfo{Flags: abc.MethodNeedActivation}, abc.MethodBody{
		MaxStack: 4, LocalCount: 2, MaxScopeDepth: 2, Code: code,
		Traits: []abc.Trait{{Name: uint32(n), Kind: abc.TraitSlot, SlotID: 1}},
	})
	fx.scriptMethod("makeCounter", outer)
	vm := fx.vm(DefaultOptions())

	counter, err := vm.CallMethod("makeCounter", Undefined)
	if err != nil {
		t.Fatalf("makeCounter failed: %v", err)
	}
	vm.Pin(counter)
	defer vm.Unpin(counter)

	for want := int32(1); want <= 3; want++ {
		vm.Collect()
		v, err := vm.Call(counter, Undefined)
		if err != nil {
			t.Fatalf("counter() failed: %v", err)
		}
		if v.AsInt() != want {
			t.Errorf("counter() = %v, want %d", v, want)
		}
	}
}

func TestCollectFreesCycles(t *testing.T) {
	fx := newFixture(t)
	fx.scriptMethod("noop", fx.empty())
	vm := fx.vm(DefaultOptions())

	a, b := vm.NewObject(), vm.NewObject()
	if err := vm.SetProperty(a, "peer", b); err != nil {
		t.Fatal(err)
	}
	if err := vm.SetProperty(b, "peer", a); err != nil {
		t.Fatal(err)
	}
	kept := vm.NewObject()
	vm.Pin(kept)

	before := vm.HeapStats().Live
	st := vm.Collect()
	if st.Swept != 2 {
		t.Errorf("swept %d objects, want the 2-object cycle", st.Swept)
	}
	if after := vm.HeapStats().Live; after != before-2 {
		t.Errorf("live %d -> %d, want a drop of 2", before, after)
	}
	if vm.object(kept) == nil {
		t.Error("pinned object was collected")
	}
	if vm.object(a) != nil {
		t.Error("stale reference still resolves after collection")
	}
}

package vm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/avm2/abc"
)

// ---------------------------------------------------------------------------
// Runtime error sentinels
// ---------------------------------------------------------------------------

var (
	// ErrLink is raised when a method without a body has no native
	// implementation.
	ErrLink = errors.New("LinkError")

	// ErrReference is raised for unresolved property or method names.
	ErrReference = errors.New("ReferenceError")

	// ErrType is raised for invalid coercions and operations on null or
	// undefined.
	ErrType = errors.New("TypeError")

	// ErrRange is raised by builtins for out-of-range numeric arguments.
	ErrRange = errors.New("RangeError")

	// ErrArgument is raised when a method receives too few arguments.
	ErrArgument = errors.New("ArgumentError")

	// ErrVerify is shared with the decoder: a load-time verify failure and
	// a runtime one (such as overflowing the declared max_stack) test equal.
	ErrVerify = abc.ErrVerify

	// ErrThrown is the sentinel for uncaught values that are not instances
	// of a builtin error class.
	ErrThrown = errors.New("uncaught exception")

	// ErrBudget is returned when Options.InstructionBudget is exhausted.
	ErrBudget = errors.New("instruction budget exhausted")

	// ErrCallDepth is returned when Options.MaxCallDepth is exceeded.
	ErrCallDepth = errors.New("call depth exceeded")
)

// ---------------------------------------------------------------------------
// scriptError: a runtime error not yet materialised as an Error object
// ---------------------------------------------------------------------------

type scriptError struct {
	kind error
	msg  string
}

func (e *scriptError) Error() string { return e.kind.Error() + ": " + e.msg }
func (e *scriptError) Unwrap() error { return e.kind }

// ScriptError returns an error that the interpreter raises inside the
// script as an instance of the builtin class matching kind (one of ErrType,
// ErrReference, ErrRange, ErrArgument, ErrVerify, ErrLink). Natives use it
// to throw catchable errors.
func ScriptError(kind error, format string, args ...any) error {
	return &scriptError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func typeErrorf(format string, args ...any) error {
	return ScriptError(ErrType, format, args...)
}

func referenceErrorf(format string, args ...any) error {
	return ScriptError(ErrReference, format, args...)
}

func verifyErrorf(format string, args ...any) error {
	return ScriptError(ErrVerify, format, args...)
}

func argumentErrorf(format string, args ...any) error {
	return ScriptError(ErrArgument, format, args...)
}

func rangeErrorf(format string, args ...any) error {
	return ScriptError(ErrRange, format, args...)
}

func linkErrorf(format string, args ...any) error {
	return ScriptError(ErrLink, format, args...)
}

// ---------------------------------------------------------------------------
// ThrownError: an uncaught script-level throw
// ---------------------------------------------------------------------------

// ThrownError is returned to the host when a thrown value unwinds past the
// outermost frame of a call. Stack lists the methods it unwound through,
// innermost first.
type ThrownError struct {
	Value   Value
	Message string
	Stack   []string

	kind error
}

func (e *ThrownError) Error() string {
	if len(e.Stack) == 0 {
		return "uncaught " + e.Message
	}
	return "uncaught " + e.Message + " (in " + strings.Join(e.Stack, " <- ") + ")"
}

// Unwrap returns the sentinel matching the builtin class of the thrown
// value, or ErrThrown.
func (e *ThrownError) Unwrap() error {
	if e.kind != nil {
		return e.kind
	}
	return ErrThrown
}

// isHostAbort reports whether err ends execution without being offered to
// exception handlers.
func isHostAbort(err error) bool {
	var se *scriptError
	var te *ThrownError
	return !errors.As(err, &se) && !errors.As(err, &te)
}

// thrownValue extracts the value to dispatch for a catchable error,
// materialising script errors as Error instances.
func (vm *VM) thrownValue(err error) (Value, []string) {
	var te *ThrownError
	if errors.As(err, &te) {
		return te.Value, te.Stack
	}
	var se *scriptError
	errors.As(err, &se)
	return vm.newError(vm.errorClass(se.kind), se.msg), nil
}

// errorClass maps a sentinel to its builtin class.
func (vm *VM) errorClass(kind error) *Class {
	b := vm.program.builtins
	switch kind {
	case ErrType:
		return b.typeError
	case ErrReference:
		return b.referenceError
	case ErrRange:
		return b.rangeError
	case ErrArgument:
		return b.argumentError
	case ErrVerify:
		return b.verifyError
	case ErrLink:
		return b.linkError
	}
	return b.error
}

// errorKind maps a thrown value to the sentinel of the nearest builtin
// error class it is an instance of.
func (vm *VM) errorKind(v Value) error {
	o := vm.object(v)
	if o == nil || o.class == nil {
		return nil
	}
	b := vm.program.builtins
	for c := o.class; c != nil; c = c.Super {
		switch c {
		case b.typeError:
			return ErrType
		case b.referenceError:
			return ErrReference
		case b.rangeError:
			return ErrRange
		case b.argumentError:
			return ErrArgument
		case b.verifyError:
			return ErrVerify
		case b.linkError:
			return ErrLink
		}
	}
	return nil
}

// uncaught builds the host-facing error for a value that escaped every
// handler.
func (vm *VM) uncaught(v Value, stack []string) *ThrownError {
	return &ThrownError{Value: v, Message: vm.describe(v), Stack: stack, kind: vm.errorKind(v)}
}

// describe renders a thrown value without running script code.
func (vm *VM) describe(v Value) string {
	if !v.IsObject() {
		return primitiveToString(v)
	}
	o := vm.object(v)
	if o == nil {
		return "<collected object>"
	}
	if o.class != nil && o.class.IsSubclassOf(vm.program.builtins.error) {
		name, msg := primitiveToString(o.slot(errorNameSlot)), primitiveToString(o.slot(errorMessageSlot))
		if msg == "" {
			return name
		}
		return name + ": " + msg
	}
	return "[object " + vm.classOf(o).Name.Local + "]"
}

// ---------------------------------------------------------------------------
// Handler dispatch
// ---------------------------------------------------------------------------

// handler is a resolved exception table entry.
type handler struct {
	from, to, target int
	typ              *Class // nil catches everything
	traits           *Traits
}

// findHandler returns the first entry, in table order, whose range covers
// the throwing instruction and whose type accepts v.
func (vm *VM) findHandler(f *frame, v Value) *handler {
	for i := range f.method.handlers {
		h := &f.method.handlers[i]
		if f.start >= h.from && f.start < h.to && vm.isType(v, h.typ) {
			return h
		}
	}
	return nil
}

// dispatch offers err to the handlers of the frames above base, innermost
// first. It returns nil when a handler took over, and otherwise the error
// to hand back to whoever started run(base); the frames above base are gone
// in that case.
func (vm *VM) dispatch(err error, base int) error {
	if isHostAbort(err) {
		vm.frames = vm.frames[:base]
		return err
	}
	v, stack := vm.thrownValue(err)
	for len(vm.frames) > base {
		f := vm.frames[len(vm.frames)-1]
		if h := vm.findHandler(f, v); h != nil {
			f.sp = 0
			f.scope = f.scope[:0]
			f.caught = v
			f.pc = h.target
			f.push(v)
			return nil
		}
		stack = append(stack, f.method.String())
		vm.popFrame()
	}
	return vm.uncaught(v, stack)
}

// hostError converts an error leaving the VM into its host-facing form.
func (vm *VM) hostError(err error) error {
	if err == nil {
		return nil
	}
	var se *scriptError
	if errors.As(err, &se) {
		v, _ := vm.thrownValue(err)
		err = vm.uncaught(v, nil)
	}
	var te *ThrownError
	switch {
	case errors.As(err, &te):
		log.Warningf("%s", te.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Debugf("execution cancelled: %s", err)
	default:
		log.Infof("execution aborted: %s", err)
	}
	return err
}

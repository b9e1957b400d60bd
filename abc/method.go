package abc

import "fmt"

// MethodFlags is the flags byte of a method signature.
type MethodFlags uint8

const (
	MethodNeedArguments  MethodFlags = 0x01
	MethodNeedActivation MethodFlags = 0x02
	MethodNeedRest       MethodFlags = 0x04
	MethodHasOptional    MethodFlags = 0x08
	MethodIgnoreRest     MethodFlags = 0x10
	MethodNative         MethodFlags = 0x20 // implemented by the host
	MethodSetDXNS        MethodFlags = 0x40
	MethodHasParamNames  MethodFlags = 0x80
)

// OptionDetail is the default value of an optional parameter.
type OptionDetail struct {
	Value uint32
	Kind  ConstantKind
}

// MethodInfo is a method signature.
type MethodInfo struct {
	ParamTypes []uint32 // multiname indices, 0 = any type
	ReturnType uint32   // multiname index, 0 = any type
	Name       uint32   // string index
	Flags      MethodFlags
	Options    []OptionDetail // defaults for the last len(Options) parameters
	ParamNames []uint32       // string indices, only with MethodHasParamNames
}

// ParamCount returns the number of declared parameters.
func (m *MethodInfo) ParamCount() int {
	return len(m.ParamTypes)
}

// Has reports whether every bit of f is set.
func (m *MethodInfo) Has(f MethodFlags) bool {
	return m.Flags&f == f
}

// ExceptionInfo is one exception table entry. [From, To) is a half-open
// range of byte-code offsets.
type ExceptionInfo struct {
	From    uint32
	To      uint32
	Target  uint32
	ExcType uint32 // multiname index, 0 = catch everything
	VarName uint32 // multiname index
}

// Covers reports whether pc lies inside the protected range.
func (e *ExceptionInfo) Covers(pc int) bool {
	return pc >= int(e.From) && pc < int(e.To)
}

// MethodBody is the byte-code of one method.
type MethodBody struct {
	Method         uint32
	MaxStack       uint32
	LocalCount     uint32
	InitScopeDepth uint32
	MaxScopeDepth  uint32
	Code           []byte
	Exceptions     []ExceptionInfo
	Traits         []Trait // activation traits
}

// ---------------------------------------------------------------------------
// Method decoding
// ---------------------------------------------------------------------------

func readMethodInfo(r *Reader, p *ConstantPool) (MethodInfo, error) {
	var m MethodInfo
	paramCount, err := r.ReadU30()
	if err != nil {
		return m, err
	}
	if m.ReturnType, err = r.ReadU30(); err != nil {
		return m, err
	}
	if _, err := p.Multiname(m.ReturnType); err != nil {
		return m, err
	}
	if int(paramCount) > r.Remaining() {
		return m, fmt.Errorf("%w: param count %d", ErrTruncated, paramCount)
	}
	m.ParamTypes = make([]uint32, paramCount)
	for i := range m.ParamTypes {
		if m.ParamTypes[i], err = r.ReadU30(); err != nil {
			return m, err
		}
		if _, err := p.Multiname(m.ParamTypes[i]); err != nil {
			return m, err
		}
	}
	if m.Name, err = r.ReadU30(); err != nil {
		return m, err
	}
	if err := p.checkString(m.Name); err != nil {
		return m, err
	}
	flags, err := r.ReadU8()
	if err != nil {
		return m, err
	}
	m.Flags = MethodFlags(flags)

	if m.Has(MethodHasOptional) {
		n, err := r.ReadU30()
		if err != nil {
			return m, err
		}
		if n == 0 || n > paramCount {
			return m, fmt.Errorf("%w: %d optional values for %d parameters", ErrVerify, n, paramCount)
		}
		m.Options = make([]OptionDetail, n)
		for i := range m.Options {
			if m.Options[i].Value, err = r.ReadU30(); err != nil {
				return m, err
			}
			kind, err := r.ReadU8()
			if err != nil {
				return m, err
			}
			m.Options[i].Kind = ConstantKind(kind)
			if err := p.checkConstant(m.Options[i].Kind, m.Options[i].Value); err != nil {
				return m, err
			}
		}
	}

	if m.Has(MethodHasParamNames) {
		m.ParamNames = make([]uint32, paramCount)
		for i := range m.ParamNames {
			if m.ParamNames[i], err = r.ReadU30(); err != nil {
				return m, err
			}
			if err := p.checkString(m.ParamNames[i]); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

func readMethodBody(r *Reader, p *ConstantPool, lim limits) (MethodBody, error) {
	var b MethodBody
	var err error
	if b.Method, err = r.ReadU30(); err != nil {
		return b, err
	}
	if int(b.Method) >= lim.methods {
		return b, fmt.Errorf("%w: body for method %d (count %d)", ErrIndex, b.Method, lim.methods)
	}
	if b.MaxStack, err = r.ReadU30(); err != nil {
		return b, err
	}
	if b.LocalCount, err = r.ReadU30(); err != nil {
		return b, err
	}
	if b.InitScopeDepth, err = r.ReadU30(); err != nil {
		return b, err
	}
	if b.MaxScopeDepth, err = r.ReadU30(); err != nil {
		return b, err
	}
	if b.InitScopeDepth > b.MaxScopeDepth {
		return b, fmt.Errorf("%w: init_scope_depth %d > max_scope_depth %d", ErrVerify, b.InitScopeDepth, b.MaxScopeDepth)
	}
	codeLen, err := r.ReadU30()
	if err != nil {
		return b, err
	}
	if b.Code, err = r.ReadBytes(int(codeLen)); err != nil {
		return b, err
	}

	n, err := r.ReadU30()
	if err != nil {
		return b, err
	}
	if int(n) > r.Remaining() {
		return b, fmt.Errorf("%w: exception count %d", ErrTruncated, n)
	}
	b.Exceptions = make([]ExceptionInfo, n)
	for i := range b.Exceptions {
		e := &b.Exceptions[i]
		fields := []*uint32{&e.From, &e.To, &e.Target, &e.ExcType, &e.VarName}
		for _, f := range fields {
			if *f, err = r.ReadU30(); err != nil {
				return b, err
			}
		}
		if e.From > e.To || int(e.To) > len(b.Code) || int(e.Target) >= len(b.Code) {
			return b, fmt.Errorf("%w: exception %d range [%d,%d) target %d outside code of %d bytes",
				ErrVerify, i, e.From, e.To, e.Target, len(b.Code))
		}
		if _, err := p.Multiname(e.ExcType); err != nil {
			return b, err
		}
		if _, err := p.Multiname(e.VarName); err != nil {
			return b, err
		}
	}

	if b.Traits, err = readTraits(r, p, lim); err != nil {
		return b, err
	}
	return b, nil
}

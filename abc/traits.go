package abc

import "fmt"

// ---------------------------------------------------------------------------
// Trait kinds and attributes
// ---------------------------------------------------------------------------

// TraitKind is the low nibble of a trait's kind byte.
type TraitKind uint8

const (
	TraitSlot     TraitKind = 0
	TraitMethod   TraitKind = 1
	TraitGetter   TraitKind = 2
	TraitSetter   TraitKind = 3
	TraitClass    TraitKind = 4
	TraitFunction TraitKind = 5
	TraitConst    TraitKind = 6
)

func (k TraitKind) String() string {
	switch k {
	case TraitSlot:
		return "slot"
	case TraitMethod:
		return "method"
	case TraitGetter:
		return "getter"
	case TraitSetter:
		return "setter"
	case TraitClass:
		return "class"
	case TraitFunction:
		return "function"
	case TraitConst:
		return "const"
	}
	return fmt.Sprintf("TraitKind(%d)", uint8(k))
}

// TraitAttr is the high nibble of a trait's kind byte.
type TraitAttr uint8

const (
	TraitAttrFinal    TraitAttr = 0x1
	TraitAttrOverride TraitAttr = 0x2
	TraitAttrMetadata TraitAttr = 0x4
)

// ConstantKind tags a default value (slot initialisers and optional
// parameters).
type ConstantKind uint8

const (
	ConstantUndefined       ConstantKind = 0x00
	ConstantUtf8            ConstantKind = 0x01
	ConstantInt             ConstantKind = 0x03
	ConstantUInt            ConstantKind = 0x04
	ConstantPrivateNs       ConstantKind = 0x05
	ConstantDouble          ConstantKind = 0x06
	ConstantNamespace       ConstantKind = 0x08
	ConstantFalse           ConstantKind = 0x0A
	ConstantTrue            ConstantKind = 0x0B
	ConstantNull            ConstantKind = 0x0C
	ConstantPackageNs       ConstantKind = 0x16
	ConstantPackageInternal ConstantKind = 0x17
	ConstantProtectedNs     ConstantKind = 0x18
	ConstantExplicitNs      ConstantKind = 0x19
	ConstantStaticProtected ConstantKind = 0x1A
)

// checkConstant validates that (kind, index) names an existing pool entry.
func (p *ConstantPool) checkConstant(kind ConstantKind, idx uint32) error {
	var n int
	switch kind {
	case ConstantUndefined, ConstantFalse, ConstantTrue, ConstantNull:
		return nil
	case ConstantUtf8:
		n = len(p.Strings)
	case ConstantInt:
		n = len(p.Ints)
	case ConstantUInt:
		n = len(p.UInts)
	case ConstantDouble:
		n = len(p.Doubles)
	case ConstantPrivateNs, ConstantNamespace, ConstantPackageNs, ConstantPackageInternal,
		ConstantProtectedNs, ConstantExplicitNs, ConstantStaticProtected:
		n = len(p.Namespaces)
	default:
		return fmt.Errorf("%w: unknown constant kind 0x%02x", ErrFormat, uint8(kind))
	}
	if int(idx) >= n {
		return fmt.Errorf("%w: constant index %d of kind 0x%02x (size %d)", ErrIndex, idx, uint8(kind), n)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Trait
// ---------------------------------------------------------------------------

// Trait is a named member descriptor. Which payload fields are meaningful
// depends on Kind:
//   - slot, const:  SlotID, TypeName, ValueIndex, ValueKind
//   - method, getter, setter: DispID, Method
//   - class:        SlotID, Class
//   - function:     SlotID, Method
//
// SlotID or DispID 0 means "assign at link time".
type Trait struct {
	Name       uint32 // multiname index, always a QName
	Kind       TraitKind
	Attr       TraitAttr
	SlotID     uint32
	TypeName   uint32
	ValueIndex uint32
	ValueKind  ConstantKind
	DispID     uint32
	Method     uint32
	Class      uint32
	Metadata   []uint32
}

func (t *Trait) IsFinal() bool     { return t.Attr&TraitAttrFinal != 0 }
func (t *Trait) IsOverride() bool  { return t.Attr&TraitAttrOverride != 0 }
func (t *Trait) HasMetadata() bool { return t.Attr&TraitAttrMetadata != 0 }

// IsSlot reports whether the trait occupies a slot (slot, const, class,
// function).
func (t *Trait) IsSlot() bool {
	switch t.Kind {
	case TraitSlot, TraitConst, TraitClass, TraitFunction:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Trait decoding
// ---------------------------------------------------------------------------

// limits bounds the indices a trait block may reference. Methods and
// metadata are fully decoded before any trait; the class count is read
// before the instance array.
type limits struct {
	methods  int
	metadata int
	classes  int
}

func readTraits(r *Reader, p *ConstantPool, lim limits) ([]Trait, error) {
	count, err := r.ReadU30()
	if err != nil {
		return nil, err
	}
	if int(count) > r.Remaining() {
		return nil, fmt.Errorf("%w: trait count %d", ErrTruncated, count)
	}
	traits := make([]Trait, count)
	for i := range traits {
		if err := readTrait(r, p, lim, &traits[i]); err != nil {
			return nil, fmt.Errorf("trait %d: %w", i, err)
		}
	}
	return traits, nil
}

func readTrait(r *Reader, p *ConstantPool, lim limits, t *Trait) error {
	var err error
	if t.Name, err = r.ReadU30(); err != nil {
		return err
	}
	mn, err := p.Multiname(t.Name)
	if err != nil {
		return err
	}
	if !mn.Kind.IsQName() {
		return fmt.Errorf("%w: trait name %d is a %s, not a QName", ErrVerify, t.Name, mn.Kind)
	}

	kind, err := r.ReadU8()
	if err != nil {
		return err
	}
	t.Kind = TraitKind(kind & 0x0F)
	t.Attr = TraitAttr(kind >> 4)

	switch t.Kind {
	case TraitSlot, TraitConst:
		if t.SlotID, err = r.ReadU30(); err != nil {
			return err
		}
		if t.TypeName, err = r.ReadU30(); err != nil {
			return err
		}
		if _, err := p.Multiname(t.TypeName); err != nil {
			return err
		}
		if t.ValueIndex, err = r.ReadU30(); err != nil {
			return err
		}
		if t.ValueIndex != 0 {
			vk, err := r.ReadU8()
			if err != nil {
				return err
			}
			t.ValueKind = ConstantKind(vk)
			if err := p.checkConstant(t.ValueKind, t.ValueIndex); err != nil {
				return err
			}
		}
	case TraitMethod, TraitGetter, TraitSetter:
		if t.DispID, err = r.ReadU30(); err != nil {
			return err
		}
		if t.Method, err = r.ReadU30(); err != nil {
			return err
		}
		if int(t.Method) >= lim.methods {
			return fmt.Errorf("%w: method %d (count %d)", ErrIndex, t.Method, lim.methods)
		}
	case TraitClass:
		if t.SlotID, err = r.ReadU30(); err != nil {
			return err
		}
		if t.Class, err = r.ReadU30(); err != nil {
			return err
		}
		if int(t.Class) >= lim.classes {
			return fmt.Errorf("%w: class %d (count %d)", ErrIndex, t.Class, lim.classes)
		}
	case TraitFunction:
		if t.SlotID, err = r.ReadU30(); err != nil {
			return err
		}
		if t.Method, err = r.ReadU30(); err != nil {
			return err
		}
		if int(t.Method) >= lim.methods {
			return fmt.Errorf("%w: method %d (count %d)", ErrIndex, t.Method, lim.methods)
		}
	default:
		return fmt.Errorf("%w: unknown trait kind %d", ErrFormat, t.Kind)
	}

	if t.HasMetadata() {
		n, err := r.ReadU30()
		if err != nil {
			return err
		}
		if int(n) > r.Remaining() {
			return fmt.Errorf("%w: metadata count %d", ErrTruncated, n)
		}
		t.Metadata = make([]uint32, n)
		for i := range t.Metadata {
			if t.Metadata[i], err = r.ReadU30(); err != nil {
				return err
			}
			if int(t.Metadata[i]) >= lim.metadata {
				return fmt.Errorf("%w: metadata %d (count %d)", ErrIndex, t.Metadata[i], lim.metadata)
			}
		}
	}
	return nil
}

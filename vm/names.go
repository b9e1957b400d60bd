package vm

import (
	"strconv"
	"strings"

	"github.com/chazu/avm2/abc"
)

// ---------------------------------------------------------------------------
// Namespaces and qualified names
// ---------------------------------------------------------------------------

// Namespace is a resolved namespace. User-declared namespaces (kind 0x08)
// are folded into the package kind since both are public. Private
// namespaces additionally carry the pool index that declared them, so two
// private namespaces with the same URI stay distinct.
type Namespace struct {
	Kind abc.NamespaceKind
	URI  string
	id   uint32
}

// PublicNamespace is the unnamed package namespace.
var PublicNamespace = Namespace{Kind: abc.NamespaceKindPackage}

func (ns Namespace) IsPublic() bool {
	return ns.Kind == abc.NamespaceKindPackage && ns.URI == ""
}

func normalizeNamespaceKind(k abc.NamespaceKind) abc.NamespaceKind {
	if k == abc.NamespaceKindNamespace {
		return abc.NamespaceKindPackage
	}
	return k
}

// QName is a fully qualified trait key.
type QName struct {
	NS    Namespace
	Local string
}

// PublicQName returns local in the public namespace.
func PublicQName(local string) QName {
	return QName{NS: PublicNamespace, Local: local}
}

func (q QName) String() string {
	if q.NS.URI == "" {
		return q.Local
	}
	return q.NS.URI + "::" + q.Local
}

// Dotted returns the "pkg.Name" form used for class and native lookups.
func (q QName) Dotted() string {
	if q.NS.URI == "" {
		return q.Local
	}
	return q.NS.URI + "." + q.Local
}

// ---------------------------------------------------------------------------
// Name: a multiname with its runtime parts filled in
// ---------------------------------------------------------------------------

// Name is a property name as seen by the interpreter once any runtime
// namespace or runtime name has been popped from the operand stack.
type Name struct {
	NS      []Namespace // candidate namespaces, searched in order
	AnyNS   bool
	Local   string
	AnyName bool
	Attr    bool

	index   uint32 // valid when isIndex
	isIndex bool   // Local is a canonical array index
}

// NameOf returns a public name.
func NameOf(local string) Name {
	n := Name{NS: []Namespace{PublicNamespace}, Local: local}
	n.index, n.isIndex = arrayIndex(local)
	return n
}

// Matches reports whether q is selected by n.
func (n *Name) Matches(q QName) bool {
	if !n.AnyName && n.Local != q.Local {
		return false
	}
	if n.AnyNS {
		return true
	}
	for _, ns := range n.NS {
		if ns == q.NS {
			return true
		}
	}
	return false
}

// HasPublic reports whether dynamic (public) properties can match n.
func (n *Name) HasPublic() bool {
	if n.AnyNS {
		return true
	}
	for _, ns := range n.NS {
		if ns.IsPublic() {
			return true
		}
	}
	return false
}

func (n *Name) String() string {
	if n.AnyName {
		return "*"
	}
	if len(n.NS) == 1 && n.NS[0].URI != "" {
		return n.NS[0].URI + "::" + n.Local
	}
	return n.Local
}

// arrayIndex reports whether s is a canonical array index ("0", "17", not
// "017" or "-1").
func arrayIndex(s string) (uint32, bool) {
	if s == "" || len(s) > 10 || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	u, err := strconv.ParseUint(s, 10, 32)
	if err != nil || u == 1<<32-1 {
		return 0, false
	}
	return uint32(u), true
}

// ---------------------------------------------------------------------------
// Static multiname table
// ---------------------------------------------------------------------------

// multiname is the load-time part of a pool multiname.
type multiname struct {
	kind   abc.MultinameKind
	name   Name
	rtNS   bool // namespace is popped from the stack
	rtName bool // local name is popped from the stack
}

func (p *Program) resolveMultinames() error {
	pool := p.File.Pool
	p.namespaces = make([]Namespace, len(pool.Namespaces))
	for i := 1; i < len(pool.Namespaces); i++ {
		ns := pool.Namespaces[i]
		uri, err := pool.String(ns.Name)
		if err != nil {
			return err
		}
		rn := Namespace{Kind: normalizeNamespaceKind(ns.Kind), URI: uri}
		if ns.Kind == abc.NamespaceKindPrivate {
			rn.id = uint32(i)
		}
		p.namespaces[i] = rn
	}

	p.multinames = make([]multiname, len(pool.Multinames))
	p.multinames[0] = multiname{name: Name{AnyNS: true, AnyName: true}}
	for i := 1; i < len(pool.Multinames); i++ {
		mn := pool.Multinames[i]
		m := multiname{kind: mn.Kind}
		m.name.Attr = mn.Kind.IsAttribute()
		m.rtNS = mn.Kind.HasRuntimeNamespace()
		m.rtName = mn.Kind.HasRuntimeName()

		if !m.rtName {
			if mn.Name == 0 {
				m.name.AnyName = true
			} else {
				local, err := pool.String(mn.Name)
				if err != nil {
					return err
				}
				m.name.Local = local
				m.name.index, m.name.isIndex = arrayIndex(local)
			}
		}
		switch {
		case mn.Kind.IsQName():
			if mn.Namespace == 0 {
				m.name.AnyNS = true
			} else {
				m.name.NS = []Namespace{p.namespaces[mn.Namespace]}
			}
		case m.rtNS:
			// filled in at run time
		default:
			set, err := pool.NamespaceSet(mn.NamespaceSet)
			if err != nil {
				return err
			}
			m.name.NS = make([]Namespace, len(set.Namespaces))
			for j, idx := range set.Namespaces {
				m.name.NS[j] = p.namespaces[idx]
			}
		}
		p.multinames[i] = m
	}
	return nil
}

// qname returns the QName of a trait or class name multiname.
func (p *Program) qname(idx uint32) QName {
	m := p.multinames[idx]
	q := QName{Local: m.name.Local}
	if len(m.name.NS) > 0 {
		q.NS = m.name.NS[0]
	} else {
		q.NS = PublicNamespace
	}
	return q
}

// ---------------------------------------------------------------------------
// Host-facing qualified names
// ---------------------------------------------------------------------------

// splitQualified splits "pkg::name", "pkg.name" or "name" into package URI
// and local name.
func splitQualified(s string) (uri, local string) {
	if before, after, ok := strings.Cut(s, "::"); ok {
		return before, after
	}
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

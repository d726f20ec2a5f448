// Package types implements a process-local (per compilation context) type
// registry: a store of structurally-interned type handles, plus the
// implicit/explicit conversion and common-type predicates the parser and
// expression layer depend on.
//
// Types are value handles (small, comparable structs), not interfaces —
// structural equality is handle equality: two type handles compare equal
// iff the structural description of the underlying type is identical.
// Layout arithmetic (size/alignment/member offsets) follows a natural-
// alignment approach, adapted from WGSL's struct layout rules to this
// language's C-like ones.
package types

import (
	"fmt"
	"strings"

	"codeberg.org/saruga/abcc/internal/intern"
)

// Kind identifies the shape of a Type's descriptor.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindVoid
	KindNullptr
	KindAuto
	KindInt
	KindFloat
	KindPointer
	KindArray
	KindFunction
	KindStruct
	KindEnum
	KindAlias
)

// FloatWidth distinguishes single and double precision floats.
type FloatWidth uint8

const (
	Single FloatWidth = iota
	Double
)

// Type is a value-typed handle into a Registry. The zero Type is invalid;
// compare handles with ==.
type Type struct {
	idx int32
}

// Invalid reports whether t is the zero handle.
func (t Type) Invalid() bool { return t.idx == 0 }

// Member describes one field of a struct type.
type Member struct {
	Name   intern.String
	Type   Type
	Offset int // byte offset, computed by Complete
}

type desc struct {
	kind    Kind
	isConst bool

	// KindInt
	intWidth  int
	intSigned bool

	// KindFloat
	floatWidth FloatWidth

	// KindPointer / KindArray(elem) / KindEnum(underlying)
	elem Type

	// KindArray
	arrayLen   int
	arrayBound bool

	// KindFunction
	ret     Type
	params  []Type
	varargs bool

	// KindStruct / KindEnum: a stable id shared by the const/non-const pair
	aggID int

	// display name (struct/enum/alias)
	name intern.String

	// KindStruct
	complete bool
	members  []Member
	size     int
	align    int

	// KindAlias
	aliasTo Type
}

func (d *desc) key() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "k%d;c%v;", d.kind, d.isConst)
	switch d.kind {
	case KindInt:
		fmt.Fprintf(&sb, "w%ds%v", d.intWidth, d.intSigned)
	case KindFloat:
		fmt.Fprintf(&sb, "f%d", d.floatWidth)
	case KindPointer:
		fmt.Fprintf(&sb, "p%d", d.elem.idx)
	case KindArray:
		fmt.Fprintf(&sb, "a%d[%d]%v", d.elem.idx, d.arrayLen, d.arrayBound)
	case KindFunction:
		fmt.Fprintf(&sb, "r%d(", d.ret.idx)
		for _, p := range d.params {
			fmt.Fprintf(&sb, "%d,", p.idx)
		}
		fmt.Fprintf(&sb, ")v%v", d.varargs)
	case KindStruct, KindEnum:
		fmt.Fprintf(&sb, "id%d", d.aggID)
	case KindAlias:
		fmt.Fprintf(&sb, "n%s->%d", d.name.Text(), d.aliasTo.idx)
	}
	return sb.String()
}

// Registry is a fresh type context for one compilation unit.
type Registry struct {
	strings  *intern.Store
	descs    []desc // descs[0] is the invalid sentinel
	interned map[string]Type

	nextAggID int
	// aggID -> (non-const handle, const handle), kept in sync by Complete.
	aggNonConst map[int]Type
	aggConst    map[int]Type

	voidT, nullptrT, autoT, boolT, charT Type
	ptrWidthBytes                        int
}

// NewRegistry creates an empty registry with the fixed primitive types
// constructed eagerly. ptrWidthBytes is the target's pointer size (8 for
// every LLVM target this front end emits for; kept as a field rather than a
// constant so a future cross-target mode only touches this one value).
func NewRegistry(strings *intern.Store) *Registry {
	r := &Registry{
		strings:       strings,
		descs:         make([]desc, 1, 64), // index 0 = invalid
		interned:      make(map[string]Type),
		aggNonConst:   make(map[int]Type),
		aggConst:      make(map[int]Type),
		ptrWidthBytes: 8,
	}
	r.voidT = r.intern(desc{kind: KindVoid})
	r.nullptrT = r.intern(desc{kind: KindNullptr})
	r.autoT = r.intern(desc{kind: KindAuto})
	r.boolT = r.Int(1, false)
	r.charT = r.Int(8, true) // : char is platform-signed 8-bit
	return r
}

func (r *Registry) intern(d desc) Type {
	key := d.key()
	if t, ok := r.interned[key]; ok {
		return t
	}
	r.descs = append(r.descs, d)
	t := Type{idx: int32(len(r.descs) - 1)}
	r.interned[key] = t
	return t
}

func (r *Registry) desc(t Type) *desc {
	return &r.descs[t.idx]
}

// ----------------------------------------------------------------------------
// Constructors
// ----------------------------------------------------------------------------

func (r *Registry) Void() Type    { return r.voidT }
func (r *Registry) Nullptr() Type { return r.nullptrT }
func (r *Registry) Auto() Type    { return r.autoT }
func (r *Registry) Bool() Type    { return r.boolT }
func (r *Registry) Char() Type    { return r.charT }

// Int returns the integer type of the given bit width and signedness.
func (r *Registry) Int(width int, signed bool) Type {
	return r.intern(desc{kind: KindInt, intWidth: width, intSigned: signed})
}

// Float returns the float type of the given precision.
func (r *Registry) Float(width FloatWidth) Type {
	return r.intern(desc{kind: KindFloat, floatWidth: width})
}

// Pointer returns a pointer-to-to type.
func (r *Registry) Pointer(to Type) Type {
	return r.intern(desc{kind: KindPointer, elem: to})
}

// Array returns array(of, length). A length of -1 denotes an unbound array,
// legal only as a parameter type (decays to a pointer).
func (r *Registry) Array(of Type, length int) Type {
	bound := length >= 0
	n := length
	if !bound {
		n = -1
	}
	return r.intern(desc{kind: KindArray, elem: of, arrayLen: n, arrayBound: bound})
}

// Function returns a function type.
func (r *Registry) Function(ret Type, params []Type, varargs bool) Type {
	p := append([]Type(nil), params...)
	return r.intern(desc{kind: KindFunction, ret: ret, params: p, varargs: varargs})
}

// CreateIncompleteStruct allocates a fresh aggregate id and registers both
// the non-const and const forms, struct/enum lifecycle
// step 1. The caller is responsible for also registering the name in the
// symbol table.
func (r *Registry) CreateIncompleteStruct(name intern.String) Type {
	id := r.nextAggID
	r.nextAggID++
	nonConst := r.intern(desc{kind: KindStruct, aggID: id, name: name})
	constForm := r.intern(desc{kind: KindStruct, aggID: id, name: name, isConst: true})
	r.aggNonConst[id] = nonConst
	r.aggConst[id] = constForm
	return nonConst
}

// CreateIncompleteEnum allocates a fresh aggregate id for an enum type with
// the given underlying integer type.
func (r *Registry) CreateIncompleteEnum(name intern.String, underlying Type) Type {
	id := r.nextAggID
	r.nextAggID++
	nonConst := r.intern(desc{kind: KindEnum, aggID: id, name: name, elem: underlying})
	constForm := r.intern(desc{kind: KindEnum, aggID: id, name: name, elem: underlying, isConst: true})
	r.aggNonConst[id] = nonConst
	r.aggConst[id] = constForm
	return nonConst
}

// Complete fills in a previously-incomplete struct's member list on both its
// const and non-const forms. ok is false if
// t was never created via CreateIncompleteStruct, or if it was already
// completed with a different member signature — the caller (the parser)
// turns that into a fatal diagnostic; Complete itself never touches diag.
func (r *Registry) Complete(t Type, members []Member) (ok bool) {
	d := r.desc(t)
	if d.kind != KindStruct {
		return false
	}
	laidOut := r.layoutMembers(members)
	size, align := r.aggregateSizeAlign(laidOut)

	nonConst := r.aggNonConst[d.aggID]
	constForm := r.aggConst[d.aggID]
	ndesc := r.desc(nonConst)
	cdesc := r.desc(constForm)

	if ndesc.complete {
		return sameSignature(ndesc.members, laidOut)
	}

	ndesc.complete, cdesc.complete = true, true
	ndesc.members, cdesc.members = laidOut, laidOut
	ndesc.size, cdesc.size = size, size
	ndesc.align, cdesc.align = align, align
	return true
}

// CompleteEnum marks an enum as having its constant list fixed (the
// constants themselves live in the symbol table as typed const expressions,
// not here — the registry only needs to know the enum is no longer open for
// new values, ).
func (r *Registry) CompleteEnum(t Type) {
	d := r.desc(t)
	if d.kind != KindEnum {
		return
	}
	nonConst := r.aggNonConst[d.aggID]
	constForm := r.aggConst[d.aggID]
	r.desc(nonConst).complete = true
	r.desc(constForm).complete = true
}

// CompleteUnion is a supplement to the struct lifecycle in for
// the `union` keyword reserved in token set but left without a
// grammar production there: members overlap at offset 0 instead of being
// laid out consecutively, by direct analogy with C's union, and the
// aggregate size/alignment are the widest member's rather than the sum.
func (r *Registry) CompleteUnion(t Type, members []Member) (ok bool) {
	d := r.desc(t)
	if d.kind != KindStruct {
		return false
	}
	laidOut := append([]Member(nil), members...)
	size, align := 0, 1
	for i := range laidOut {
		laidOut[i].Offset = 0
		if s := r.SizeOf(laidOut[i].Type); s > size {
			size = s
		}
		if a := r.alignOf(laidOut[i].Type); a > align {
			align = a
		}
	}
	size = roundUp(size, align)

	nonConst := r.aggNonConst[d.aggID]
	constForm := r.aggConst[d.aggID]
	ndesc := r.desc(nonConst)
	cdesc := r.desc(constForm)

	if ndesc.complete {
		return sameSignature(ndesc.members, laidOut)
	}

	ndesc.complete, cdesc.complete = true, true
	ndesc.members, cdesc.members = laidOut, laidOut
	ndesc.size, cdesc.size = size, size
	ndesc.align, cdesc.align = align, align
	return true
}

func sameSignature(a, b []Member) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Name.Equal(b[i].Name) || a[i].Type != b[i].Type {
			return false
		}
	}
	return true
}

// layoutMembers assigns offsets using natural alignment: each field's
// offset rounds up to its own alignment, adapted from WGSL's alignment
// table to this language's "alignment equals size for any scalar or
// pointer" rule.
func (r *Registry) layoutMembers(members []Member) []Member {
	out := append([]Member(nil), members...)
	offset := 0
	for i := range out {
		align := r.alignOf(out[i].Type)
		if align < 1 {
			align = 1
		}
		offset = roundUp(offset, align)
		out[i].Offset = offset
		offset += r.SizeOf(out[i].Type)
	}
	return out
}

func (r *Registry) aggregateSizeAlign(members []Member) (size, align int) {
	align = 1
	for _, m := range members {
		if a := r.alignOf(m.Type); a > align {
			align = a
		}
	}
	if len(members) > 0 {
		last := members[len(members)-1]
		size = roundUp(last.Offset+r.SizeOf(last.Type), align)
	}
	return size, align
}

func roundUp(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// Alias creates (or returns the interned) named alias of to.
func (r *Registry) Alias(name intern.String, to Type) Type {
	return r.intern(desc{kind: KindAlias, name: name, aliasTo: to})
}

// ----------------------------------------------------------------------------
// Const qualification
// ----------------------------------------------------------------------------

// GetConst returns the const-qualified form of t. Always defined
//.
func (r *Registry) GetConst(t Type) Type {
	d := *r.desc(t)
	if d.isConst {
		return t
	}
	if d.kind == KindStruct || d.kind == KindEnum {
		return r.aggConst[d.aggID]
	}
	d.isConst = true
	return r.intern(d)
}

// GetConstRemoved returns the unqualified form of t.
func (r *Registry) GetConstRemoved(t Type) Type {
	d := *r.desc(t)
	if !d.isConst {
		return t
	}
	if d.kind == KindStruct || d.kind == KindEnum {
		return r.aggNonConst[d.aggID]
	}
	d.isConst = false
	return r.intern(d)
}

// IsConst reports the qualifier bit.
func (r *Registry) IsConst(t Type) bool { return r.desc(t).isConst }

// ----------------------------------------------------------------------------
// Structural queries
// ----------------------------------------------------------------------------

func (r *Registry) Kind(t Type) Kind { return r.desc(t).kind }

// Equals is structural equality modulo interning, which for handles from
// the same Registry reduces to handle equality.
func (r *Registry) Equals(a, b Type) bool { return a == b }

// Elem returns the referent of a pointer, the element of an array, or the
// underlying integer type of an enum.
func (r *Registry) Elem(t Type) Type { return r.desc(t).elem }

// ArrayLen returns an array type's length and whether it is bound.
func (r *Registry) ArrayLen(t Type) (n int, bound bool) {
	d := r.desc(t)
	return d.arrayLen, d.arrayBound
}

// FuncSignature returns a function type's return type, parameters, and
// vararg flag.
func (r *Registry) FuncSignature(t Type) (ret Type, params []Type, varargs bool) {
	d := r.desc(t)
	return d.ret, d.params, d.varargs
}

func (r *Registry) IntWidth(t Type) int         { return r.desc(t).intWidth }
func (r *Registry) IntSigned(t Type) bool       { return r.desc(t).intSigned }
func (r *Registry) FloatBits(t Type) FloatWidth { return r.desc(t).floatWidth }
func (r *Registry) IsComplete(t Type) bool      { return r.desc(t).complete }

// HasSize reports whether t has a fixed storage size — an incomplete
// struct, void, a function type, auto, and an unbound array do not
//.
func (r *Registry) HasSize(t Type) bool {
	d := r.desc(t)
	switch d.kind {
	case KindVoid, KindFunction, KindAuto:
		return false
	case KindArray:
		return d.arrayBound && r.HasSize(d.elem)
	case KindStruct:
		return d.complete
	case KindEnum:
		return true // enum storage is always its underlying integer width
	case KindAlias:
		return r.HasSize(d.aliasTo)
	default:
		return true
	}
}

// SizeOf returns t's storage size in bytes. Callers must check HasSize
// first; SizeOf on a sizeless type returns 0.
func (r *Registry) SizeOf(t Type) int {
	d := r.desc(t)
	switch d.kind {
	case KindInt:
		return (d.intWidth + 7) / 8
	case KindFloat:
		if d.floatWidth == Double {
			return 8
		}
		return 4
	case KindPointer, KindNullptr:
		return r.ptrWidthBytes
	case KindArray:
		if !d.arrayBound {
			return 0
		}
		return d.arrayLen * r.SizeOf(d.elem)
	case KindStruct:
		return d.size
	case KindEnum:
		return r.SizeOf(d.elem)
	case KindAlias:
		return r.SizeOf(d.aliasTo)
	default:
		return 0
	}
}

func (r *Registry) alignOf(t Type) int {
	d := r.desc(t)
	switch d.kind {
	case KindStruct:
		return d.align
	case KindArray:
		return r.alignOf(d.elem)
	case KindEnum:
		return r.SizeOf(d.elem)
	case KindAlias:
		return r.alignOf(d.aliasTo)
	default:
		return r.SizeOf(t)
	}
}

// MemberType returns the type of a named struct member, or an invalid
// handle if not found.
func (r *Registry) MemberType(t Type, name intern.String) Type {
	idx := r.MemberIndex(t, name)
	if idx < 0 {
		return Type{}
	}
	return r.desc(t).members[idx].Type
}

// MemberIndex returns a struct member's position, or -1.
func (r *Registry) MemberIndex(t Type, name intern.String) int {
	for i, m := range r.desc(t).members {
		if m.Name.Equal(name) {
			return i
		}
	}
	return -1
}

// AggregateSize returns a completed struct's size in bytes.
func (r *Registry) AggregateSize(t Type) int { return r.desc(t).size }

// AggregateType returns the i'th member's type.
func (r *Registry) AggregateType(t Type, i int) Type { return r.desc(t).members[i].Type }

// AggregateOffset returns the i'th member's byte offset.
func (r *Registry) AggregateOffset(t Type, i int) int { return r.desc(t).members[i].Offset }

// Members returns a completed struct's member list.
func (r *Registry) Members(t Type) []Member { return r.desc(t).members }

// Name returns a struct/enum/alias type's declared name.
func (r *Registry) Name(t Type) intern.String { return r.desc(t).name }

// ResolveAlias follows a chain of alias types down to the first non-alias
// type.
func (r *Registry) ResolveAlias(t Type) Type {
	for r.desc(t).kind == KindAlias {
		t = r.desc(t).aliasTo
	}
	return t
}

// Decay applies array-to-pointer and function-to-pointer decay, per
// /§4.6. It leaves every other type unchanged.
func (r *Registry) Decay(t Type) Type {
	d := r.desc(t)
	switch d.kind {
	case KindArray:
		return r.Pointer(d.elem)
	case KindFunction:
		return r.Pointer(t)
	default:
		return t
	}
}

// ----------------------------------------------------------------------------
// Conversion predicates
// ----------------------------------------------------------------------------

func isArithmetic(k Kind) bool { return k == KindInt || k == KindFloat }

// scalarRank orders arithmetic types for usual-arithmetic-conversion
// purposes: wider wins, float beats int of the same or lesser width, double
// beats single.
func (r *Registry) scalarRank(t Type) int {
	d := r.desc(t)
	switch d.kind {
	case KindFloat:
		if d.floatWidth == Double {
			return 1000
		}
		return 900
	case KindInt:
		return d.intWidth
	default:
		return -1
	}
}

// Convert reports whether a value of type from may be implicitly converted
// to type to: arithmetic widening/narrowing
// between int/float, any pointer from nullptr_t, a pointer gaining const
// qualification on its pointee, array/function decay, and identity.
func (r *Registry) Convert(from, to Type) bool {
	from = r.ResolveAlias(from)
	to = r.ResolveAlias(to)
	if from == to {
		return true
	}
	fd, td := r.desc(from), r.desc(to)

	if isArithmetic(fd.kind) && isArithmetic(td.kind) {
		return true
	}
	if fd.kind == KindNullptr && td.kind == KindPointer {
		return true
	}
	if fd.kind == KindPointer && td.kind == KindPointer {
		if r.desc(fd.elem).kind == KindVoid || r.desc(td.elem).kind == KindVoid {
			return true
		}
		if r.GetConstRemoved(fd.elem) == r.GetConstRemoved(td.elem) {
			// Gaining const on the pointee is implicit; losing it is not.
			// The relevant flags are the referents' constness (fd.elem/td.elem),
			// not the outer pointer handles' own (pointers are never const
			// themselves in this language — only what they point to is).
			fElemConst := r.desc(fd.elem).isConst
			tElemConst := r.desc(td.elem).isConst
			return tElemConst || fElemConst == tElemConst
		}
		return false
	}
	if fd.kind == KindArray && td.kind == KindPointer {
		return r.Convert(r.Pointer(fd.elem), to)
	}
	if fd.kind == KindFunction && td.kind == KindPointer {
		return r.desc(td.elem).kind == KindFunction && from == td.elem
	}
	if fd.kind == KindEnum && isArithmetic(td.kind) {
		return true
	}
	if isArithmetic(fd.kind) && td.kind == KindEnum {
		return true
	}
	return false
}

// ExplicitCast reports whether from may be converted to to with an explicit
// cast expression: a superset of Convert that
// additionally allows pointer<->integer reinterpretation, narrowing a
// const pointer to non-const, and pointer<->pointer reinterpretation
// between unrelated pointee types.
func (r *Registry) ExplicitCast(from, to Type) bool {
	if r.Convert(from, to) {
		return true
	}
	from = r.ResolveAlias(from)
	to = r.ResolveAlias(to)
	fd, td := r.desc(from), r.desc(to)

	if fd.kind == KindPointer && isArithmetic(td.kind) {
		return true
	}
	if isArithmetic(fd.kind) && td.kind == KindPointer {
		return true
	}
	if fd.kind == KindPointer && td.kind == KindPointer {
		return true
	}
	if (fd.kind == KindStruct || fd.kind == KindEnum) && fd.aggID == td.aggID {
		return true // const/non-const struct or enum reinterpretation
	}
	return false
}

// Common returns the usual-arithmetic-conversion result type of a and b, or
// an invalid handle if the two types have no common type.
func (r *Registry) Common(a, b Type) Type {
	a = r.ResolveAlias(a)
	b = r.ResolveAlias(b)
	if a == b {
		return a
	}
	ad, bd := r.desc(a), r.desc(b)

	if ad.kind == KindPointer || bd.kind == KindPointer || ad.kind == KindNullptr || bd.kind == KindNullptr {
		if ad.kind == KindNullptr {
			return b
		}
		if bd.kind == KindNullptr {
			return a
		}
		if ad.kind == KindPointer && bd.kind == KindPointer {
			if r.GetConstRemoved(ad.elem) == r.GetConstRemoved(bd.elem) {
				if ad.isConst || bd.isConst {
					return r.Pointer(r.GetConst(ad.elem))
				}
				return a
			}
		}
		return Type{}
	}
	if isArithmetic(ad.kind) && isArithmetic(bd.kind) {
		if r.scalarRank(a) >= r.scalarRank(b) {
			return a
		}
		return b
	}
	if ad.kind == KindEnum && isArithmetic(bd.kind) {
		return b
	}
	if isArithmetic(ad.kind) && bd.kind == KindEnum {
		return a
	}
	return Type{}
}

// String renders a diagnostic-friendly display name for t.
func (r *Registry) String(t Type) string {
	d := r.desc(t)
	prefix := ""
	if d.isConst {
		prefix = "const "
	}
	switch d.kind {
	case KindVoid:
		return prefix + "void"
	case KindNullptr:
		return prefix + "nullptr_t"
	case KindAuto:
		return prefix + "auto"
	case KindInt:
		sign := "i"
		if !d.intSigned {
			sign = "u"
		}
		return fmt.Sprintf("%s%s%d", prefix, sign, d.intWidth)
	case KindFloat:
		if d.floatWidth == Double {
			return prefix + "f64"
		}
		return prefix + "f32"
	case KindPointer:
		return prefix + r.String(d.elem) + "*"
	case KindArray:
		if d.arrayBound {
			return fmt.Sprintf("%s%s[%d]", prefix, r.String(d.elem), d.arrayLen)
		}
		return fmt.Sprintf("%s%s[]", prefix, r.String(d.elem))
	case KindFunction:
		var ps []string
		for _, p := range d.params {
			ps = append(ps, r.String(p))
		}
		return fmt.Sprintf("%sfn(%s): %s", prefix, strings.Join(ps, ", "), r.String(d.ret))
	case KindStruct, KindEnum, KindAlias:
		return prefix + d.name.Text()
	default:
		return prefix + "?"
	}
}

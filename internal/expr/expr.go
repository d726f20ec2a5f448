// Package expr implements the language's expression nodes. Each constructor
// performs its own type-check via the shared types.Registry's
// Convert/Common/ExplicitCast predicates and rewrites operands with
// implicit casts as needed, so every expression tree that gets built is
// already fully typed and cast-resolved.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	llvmir "github.com/llir/llvm/ir"
	llvmtypes "github.com/llir/llvm/ir/types"
	llvmvalue "github.com/llir/llvm/ir/value"

	"codeberg.org/saruga/abcc/internal/diag"
	"codeberg.org/saruga/abcc/internal/intern"
	"codeberg.org/saruga/abcc/internal/irgen"
	"codeberg.org/saruga/abcc/internal/source"
	"codeberg.org/saruga/abcc/internal/symtab"
	"codeberg.org/saruga/abcc/internal/types"
)

// Context bundles the services an expression needs to type-check itself and
// later generate code: the type registry, the diagnostic sink, and a
// lowering cache down to the IR builder's LLVM types. Constructors take a
// *Context instead of each service separately so adding a new cross-cutting
// need touches one signature, not every constructor, and each node keeps
// its own Context so codegen methods need nothing beyond the *irgen.Builder
// the Expr interface already threads through.
type Context struct {
	Types *types.Registry
	Diags *diag.Sink
	Lower *TypeLowering
}

// Expr is the common interface every expression variant implements
//.
type Expr interface {
	Range() source.Range
	Type() types.Type
	HasAddress() bool
	IsLValue() bool
	IsConst() bool
	HasConstantAddress() bool

	LoadValue(b *irgen.Builder) llvmvalue.Value
	LoadAddress(b *irgen.Builder) llvmvalue.Value
	LoadConstant() (int64, bool)

	// Condition emits a branch to trueLabel/falseLabel, preserving
	// short-circuit semantics for && and ||.
	Condition(b *irgen.Builder, trueLabel, falseLabel *llvmir.Block)

	// Flat renders a one-line form for diagnostics/assert stringification,
	// parenthesising itself if its own precedence is less than callerPrec.
	Flat(callerPrec int) string
}

type base struct {
	ctx *Context
	rng source.Range
	typ types.Type
}

func (b *base) Range() source.Range { return b.rng }
func (b *base) Type() types.Type    { return b.typ }

// loadAddressThenFetch is the generic "I have an address, load through it"
// path shared by every variant whose HasAddress() is true.
func loadAddressThenFetch(e Expr, ctx *Context, b *irgen.Builder) llvmvalue.Value {
	addr := e.LoadAddress(b)
	return b.Fetch(addr, ctx.Lower.Lower(e.Type()))
}

// defaultCondition implements the non-short-circuit case shared by most
// variants: evaluate the value, branch on it being nonzero.
func defaultCondition(e Expr, ctx *Context, b *irgen.Builder, trueLabel, falseLabel *llvmir.Block) {
	v := e.LoadValue(b)
	zero := b.ZeroValue(ctx.Lower.Lower(e.Type()))
	cond := b.Binary(irgen.Ne, v, zero)
	b.CondJump(cond, trueLabel, falseLabel)
}

// ---------------------------------------------------------------------------
// Type lowering: internal/types.Type -> github.com/llir/llvm/ir/types.Type
// ---------------------------------------------------------------------------

// TypeLowering maps this front end's interned type handles to the concrete
// LLVM types the irgen facade needs, memoizing by handle since the registry
// already guarantees structural interning.
type TypeLowering struct {
	reg   *types.Registry
	cache map[types.Type]llvmtypes.Type
}

func NewTypeLowering(reg *types.Registry) *TypeLowering {
	return &TypeLowering{reg: reg, cache: make(map[types.Type]llvmtypes.Type)}
}

func (tl *TypeLowering) Lower(t types.Type) llvmtypes.Type {
	if lt, ok := tl.cache[t]; ok {
		return lt
	}
	lt := tl.lower(t)
	tl.cache[t] = lt
	return lt
}

func (tl *TypeLowering) lower(t types.Type) llvmtypes.Type {
	r := tl.reg
	t = r.ResolveAlias(t)
	switch r.Kind(t) {
	case types.KindVoid:
		return llvmtypes.Void
	case types.KindNullptr:
		return llvmtypes.NewPointer(llvmtypes.I8)
	case types.KindInt:
		return llvmtypes.NewInt(uint64(r.IntWidth(t)))
	case types.KindFloat:
		if r.FloatBits(t) == types.Double {
			return llvmtypes.Double
		}
		return llvmtypes.Float
	case types.KindPointer:
		return llvmtypes.NewPointer(tl.Lower(r.Elem(t)))
	case types.KindArray:
		n, _ := r.ArrayLen(t)
		return llvmtypes.NewArray(uint64(n), tl.Lower(r.Elem(t)))
	case types.KindFunction:
		ret, params, variadic := r.FuncSignature(t)
		lparams := make([]llvmtypes.Type, len(params))
		for i, p := range params {
			lparams[i] = tl.Lower(p)
		}
		ft := llvmtypes.NewFunc(tl.Lower(ret), lparams...)
		ft.Variadic = variadic
		return ft
	case types.KindEnum:
		return tl.Lower(r.Elem(t))
	case types.KindStruct:
		members := r.Members(t)
		fields := make([]llvmtypes.Type, len(members))
		for i, m := range members {
			fields[i] = tl.Lower(m.Type)
		}
		return llvmtypes.NewStruct(fields...)
	default:
		return llvmtypes.I32
	}
}

// ---------------------------------------------------------------------------
// Integer literal
// ---------------------------------------------------------------------------

type IntLiteral struct {
	base
	Value      int64
	IsUnsigned bool
}

// NewIntLiteral types the literal as the smallest signed integer that fits
// (32- then 64-bit), 
func NewIntLiteral(ctx *Context, rng source.Range, value int64, unsigned bool) *IntLiteral {
	width := 32
	if value > 1<<31-1 || value < -(1<<31) {
		width = 64
	}
	t := ctx.Types.Int(width, !unsigned)
	return &IntLiteral{base: base{ctx: ctx, rng: rng, typ: t}, Value: value, IsUnsigned: unsigned}
}

func (e *IntLiteral) HasAddress() bool            { return false }
func (e *IntLiteral) IsLValue() bool              { return false }
func (e *IntLiteral) IsConst() bool               { return true }
func (e *IntLiteral) HasConstantAddress() bool    { return false }
func (e *IntLiteral) LoadConstant() (int64, bool) { return e.Value, true }
func (e *IntLiteral) LoadValue(b *irgen.Builder) llvmvalue.Value {
	lt := e.ctx.Lower.Lower(e.typ).(*llvmtypes.IntType)
	return b.ConstInt(lt, e.Value)
}
func (e *IntLiteral) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	panic("expr: IntLiteral has no address")
}
func (e *IntLiteral) Condition(b *irgen.Builder, t, f *llvmir.Block) {
	defaultCondition(e, e.ctx, b, t, f)
}
func (e *IntLiteral) Flat(callerPrec int) string { return strconv.FormatInt(e.Value, 10) }

// ---------------------------------------------------------------------------
// Float literal
// ---------------------------------------------------------------------------

type FloatLiteral struct {
	base
	Value float64
}

func NewFloatLiteral(ctx *Context, rng source.Range, value float64) *FloatLiteral {
	return &FloatLiteral{base: base{ctx: ctx, rng: rng, typ: ctx.Types.Float(types.Double)}, Value: value}
}

func (e *FloatLiteral) HasAddress() bool            { return false }
func (e *FloatLiteral) IsLValue() bool              { return false }
func (e *FloatLiteral) IsConst() bool               { return true }
func (e *FloatLiteral) HasConstantAddress() bool    { return false }
func (e *FloatLiteral) LoadConstant() (int64, bool) { return 0, false }
func (e *FloatLiteral) LoadValue(b *irgen.Builder) llvmvalue.Value {
	lt := e.ctx.Lower.Lower(e.typ).(*llvmtypes.FloatType)
	return b.ConstFloat(lt, e.Value)
}
func (e *FloatLiteral) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	panic("expr: FloatLiteral has no address")
}
func (e *FloatLiteral) Condition(b *irgen.Builder, t, f *llvmir.Block) {
	defaultCondition(e, e.ctx, b, t, f)
}
func (e *FloatLiteral) Flat(callerPrec int) string {
	return strconv.FormatFloat(e.Value, 'g', -1, 64)
}

// ---------------------------------------------------------------------------
// String literal
// ---------------------------------------------------------------------------

type StringLiteral struct {
	base
	Cooked string
}

func NewStringLiteral(ctx *Context, rng source.Range, cooked string) *StringLiteral {
	charT := ctx.Types.Char()
	t := ctx.Types.Pointer(ctx.Types.GetConst(charT))
	return &StringLiteral{base: base{ctx: ctx, rng: rng, typ: t}, Cooked: cooked}
}

func (e *StringLiteral) HasAddress() bool            { return false }
func (e *StringLiteral) IsLValue() bool              { return false }
func (e *StringLiteral) IsConst() bool               { return true }
func (e *StringLiteral) HasConstantAddress() bool    { return true }
func (e *StringLiteral) LoadConstant() (int64, bool) { return 0, false }
func (e *StringLiteral) LoadValue(b *irgen.Builder) llvmvalue.Value { return b.ConstString(e.Cooked) }
func (e *StringLiteral) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	return b.ConstString(e.Cooked)
}
func (e *StringLiteral) Condition(b *irgen.Builder, t, f *llvmir.Block) { b.Jump(t) }
func (e *StringLiteral) Flat(callerPrec int) string {
	return strconv.Quote(e.Cooked)
}

// ---------------------------------------------------------------------------
// Nullptr literal
// ---------------------------------------------------------------------------

type NullptrLiteral struct{ base }

func NewNullptrLiteral(ctx *Context, rng source.Range) *NullptrLiteral {
	return &NullptrLiteral{base{ctx: ctx, rng: rng, typ: ctx.Types.Nullptr()}}
}

func (e *NullptrLiteral) HasAddress() bool            { return false }
func (e *NullptrLiteral) IsLValue() bool              { return false }
func (e *NullptrLiteral) IsConst() bool               { return true }
func (e *NullptrLiteral) HasConstantAddress() bool    { return false }
func (e *NullptrLiteral) LoadConstant() (int64, bool) { return 0, true }
func (e *NullptrLiteral) LoadValue(b *irgen.Builder) llvmvalue.Value {
	return b.ZeroValue(e.ctx.Lower.Lower(e.typ))
}
func (e *NullptrLiteral) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	panic("expr: NullptrLiteral has no address")
}
func (e *NullptrLiteral) Condition(b *irgen.Builder, t, f *llvmir.Block) { b.Jump(f) }
func (e *NullptrLiteral) Flat(callerPrec int) string                    { return "nullptr" }

// ---------------------------------------------------------------------------
// Identifier
// ---------------------------------------------------------------------------

type Ident struct {
	base
	Name  intern.String
	Entry *symtab.Entry
}

// NewIdent copies its type from the resolved symbol-table entry.
// hasAddress() iff the entry names a variable; constant-expression
// bindings (enumerators, `const` folds) carry no storage.
func NewIdent(ctx *Context, rng source.Range, name intern.String, e *symtab.Entry) *Ident {
	return &Ident{base: base{ctx: ctx, rng: rng, typ: e.Type}, Name: name, Entry: e}
}

func (e *Ident) HasAddress() bool { return e.Entry.Kind == symtab.KindDecl }
func (e *Ident) IsLValue() bool   { return e.Entry.Kind == symtab.KindDecl && !e.Entry.IsFunc }
func (e *Ident) IsConst() bool    { return e.Entry.Kind == symtab.KindExpr }
func (e *Ident) HasConstantAddress() bool {
	return e.Entry.Kind == symtab.KindDecl
}
func (e *Ident) LoadConstant() (int64, bool) {
	if e.Entry.Kind == symtab.KindExpr {
		return e.Entry.ConstValue, true
	}
	return 0, false
}
func (e *Ident) LoadValue(b *irgen.Builder) llvmvalue.Value {
	if e.Entry.Kind == symtab.KindExpr {
		lt, ok := e.ctx.Lower.Lower(e.typ).(*llvmtypes.IntType)
		if ok {
			return b.ConstInt(lt, e.Entry.ConstValue)
		}
	}
	if e.Entry.IsFunc {
		// A function name decays to its own address; there is no storage
		// slot to load through.
		return e.LoadAddress(b)
	}
	return loadAddressThenFetch(e, e.ctx, b)
}
func (e *Ident) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	v, ok := b.LoadAddress(e.Entry.MangledID.Text())
	if !ok {
		panic(fmt.Sprintf("expr: unresolved identifier %q reached codegen", e.Name.Text()))
	}
	return v
}
func (e *Ident) Condition(b *irgen.Builder, t, f *llvmir.Block) { defaultCondition(e, e.ctx, b, t, f) }
func (e *Ident) Flat(callerPrec int) string                    { return e.Name.Text() }

// ---------------------------------------------------------------------------
// Member access
// ---------------------------------------------------------------------------

type Member struct {
	base
	Operand Expr
	Name    intern.String
	Index   int
	// ViaPointer is true for the `->` spelling (operand is a pointer to
	// struct); false for `.` (operand is the struct itself).
	ViaPointer bool
}

// NewMember resolves name against the struct/pointer-to-struct operand's
// member map, failing with a member-list diagnostic if not found.
func NewMember(ctx *Context, rng source.Range, operand Expr, name intern.String, viaPointer bool) *Member {
	structType := operand.Type()
	if viaPointer {
		structType = ctx.Types.Elem(structType)
	}
	idx := ctx.Types.MemberIndex(structType, name)
	if idx < 0 {
		var names []string
		for _, m := range ctx.Types.Members(structType) {
			names = append(names, m.Name.Text())
		}
		ctx.Diags.Fatal(rng, "no member %q in %s (have: %s)", name.Text(), ctx.Types.String(structType), strings.Join(names, ", "))
	}
	memberType := ctx.Types.AggregateType(structType, idx)
	return &Member{base: base{ctx: ctx, rng: rng, typ: memberType}, Operand: operand, Name: name, Index: idx, ViaPointer: viaPointer}
}

func (e *Member) structType() types.Type {
	if e.ViaPointer {
		return e.ctx.Types.Elem(e.Operand.Type())
	}
	return e.Operand.Type()
}

func (e *Member) HasAddress() bool            { return true }
func (e *Member) IsLValue() bool              { return true }
func (e *Member) IsConst() bool               { return false }
func (e *Member) HasConstantAddress() bool    { return e.Operand.HasConstantAddress() }
func (e *Member) LoadConstant() (int64, bool) { return 0, false }
func (e *Member) LoadValue(b *irgen.Builder) llvmvalue.Value {
	return loadAddressThenFetch(e, e.ctx, b)
}
func (e *Member) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	var base llvmvalue.Value
	if e.ViaPointer {
		base = e.Operand.LoadValue(b)
	} else {
		base = e.Operand.LoadAddress(b)
	}
	return b.PointerToIndex(e.ctx.Lower.Lower(e.structType()), base, e.Index)
}
func (e *Member) Condition(b *irgen.Builder, t, f *llvmir.Block) { defaultCondition(e, e.ctx, b, t, f) }
func (e *Member) Flat(callerPrec int) string {
	sep := "."
	if e.ViaPointer {
		sep = "->"
	}
	return e.Operand.Flat(16) + sep + e.Name.Text()
}

// ---------------------------------------------------------------------------
// Unary
// ---------------------------------------------------------------------------

type UnaryOp uint8

const (
	Addr UnaryOp = iota
	Deref
	Not
	Neg
	BitNot
	PreInc
	PreDec
	PostInc
	PostDec
)

type Unary struct {
	base
	Op      UnaryOp
	Operand Expr
}

// NewUnary enforces `&` requires an lvalue and `*` rejects a nullptr-typed
// operand.
func NewUnary(ctx *Context, rng source.Range, op UnaryOp, operand Expr) *Unary {
	var t types.Type
	switch op {
	case Addr:
		if !operand.IsLValue() {
			ctx.Diags.Fatal(rng, "cannot take the address of a non-lvalue")
		}
		t = ctx.Types.Pointer(operand.Type())
	case Deref:
		if ctx.Types.Kind(operand.Type()) == types.KindNullptr {
			ctx.Diags.Fatal(rng, "cannot dereference a nullptr-typed expression")
		}
		t = ctx.Types.Elem(operand.Type())
	case Not:
		t = ctx.Types.Bool()
	case Neg, BitNot:
		t = operand.Type()
	case PreInc, PreDec, PostInc, PostDec:
		if !operand.IsLValue() {
			ctx.Diags.Fatal(rng, "operand of ++/-- must be an lvalue")
		}
		t = operand.Type()
	}
	return &Unary{base: base{ctx: ctx, rng: rng, typ: t}, Op: op, Operand: operand}
}

func (e *Unary) HasAddress() bool { return e.Op == Deref }
func (e *Unary) IsLValue() bool   { return e.Op == Deref }
func (e *Unary) IsConst() bool {
	switch e.Op {
	case Addr, PreInc, PreDec, PostInc, PostDec:
		return false
	default:
		return e.Operand.IsConst()
	}
}
func (e *Unary) HasConstantAddress() bool { return e.Op == Deref && e.Operand.IsConst() }
func (e *Unary) LoadConstant() (int64, bool) {
	v, ok := e.Operand.LoadConstant()
	if !ok {
		return 0, false
	}
	switch e.Op {
	case Neg:
		return -v, true
	case BitNot:
		return ^v, true
	case Not:
		if v == 0 {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
func (e *Unary) LoadValue(b *irgen.Builder) llvmvalue.Value {
	switch e.Op {
	case Addr:
		return e.Operand.LoadAddress(b)
	case Deref:
		return loadAddressThenFetch(e, e.ctx, b)
	case Not:
		v := e.Operand.LoadValue(b)
		zero := b.ZeroValue(e.ctx.Lower.Lower(e.Operand.Type()))
		return b.Binary(irgen.Eq, v, zero)
	case Neg:
		v := e.Operand.LoadValue(b)
		zero := b.ZeroValue(e.ctx.Lower.Lower(e.typ))
		if e.ctx.Types.Kind(e.typ) == types.KindFloat {
			return b.Binary(irgen.FSub, zero, v)
		}
		return b.Binary(irgen.Sub, zero, v)
	case BitNot:
		v := e.Operand.LoadValue(b)
		allOnes := b.ConstInt(e.ctx.Lower.Lower(e.typ).(*llvmtypes.IntType), -1)
		return b.Binary(irgen.Xor, v, allOnes)
	case PreInc, PreDec, PostInc, PostDec:
		return e.loadIncDec(b)
	}
	panic("expr: unhandled unary operator")
}
func (e *Unary) loadIncDec(b *irgen.Builder) llvmvalue.Value {
	addr := e.Operand.LoadAddress(b)
	lt := e.ctx.Lower.Lower(e.typ)
	old := b.Fetch(addr, lt)
	one := b.ConstInt(lt.(*llvmtypes.IntType), 1)
	op := irgen.Add
	if e.Op == PreDec || e.Op == PostDec {
		op = irgen.Sub
	}
	updated := b.Binary(op, old, one)
	b.Store(updated, addr)
	if e.Op == PreInc || e.Op == PreDec {
		return updated
	}
	return old
}
func (e *Unary) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	if e.Op != Deref {
		panic("expr: Unary.LoadAddress only valid for *")
	}
	return e.Operand.LoadValue(b)
}
func (e *Unary) Condition(b *irgen.Builder, t, f *llvmir.Block) {
	if e.Op == Not {
		e.Operand.Condition(b, f, t)
		return
	}
	defaultCondition(e, e.ctx, b, t, f)
}
func (e *Unary) Flat(callerPrec int) string {
	const prec = 15
	var s string
	switch e.Op {
	case Addr:
		s = "&" + e.Operand.Flat(prec)
	case Deref:
		s = "*" + e.Operand.Flat(prec)
	case Not:
		s = "!" + e.Operand.Flat(prec)
	case Neg:
		s = "-" + e.Operand.Flat(prec)
	case BitNot:
		s = "~" + e.Operand.Flat(prec)
	case PreInc:
		s = "++" + e.Operand.Flat(prec)
	case PreDec:
		s = "--" + e.Operand.Flat(prec)
	case PostInc:
		s = e.Operand.Flat(prec) + "++"
	case PostDec:
		s = e.Operand.Flat(prec) + "--"
	}
	if prec < callerPrec {
		return "(" + s + ")"
	}
	return s
}

// ---------------------------------------------------------------------------
// Binary
// ---------------------------------------------------------------------------

type BinaryOp uint8

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	BitAnd
	BitOr
	BitXor
	Shl
	Shr
	LogAnd
	LogOr
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	Assign
	Index
	CompoundAdd
	CompoundSub
	CompoundMul
	CompoundDiv
	CompoundMod
	CompoundAnd
	CompoundOr
	CompoundXor
	CompoundShl
	CompoundShr
)

var binaryPrec = map[BinaryOp]int{
	Mul: 13, Div: 13, Mod: 13,
	Add: 11, Sub: 11,
	Lt: 10, Le: 10, Gt: 10, Ge: 10,
	Eq: 9, Ne: 9,
	BitAnd: 8, BitXor: 7, BitOr: 6,
	LogAnd: 5, LogOr: 4,
	Assign: 2, CompoundAdd: 2, CompoundSub: 2, CompoundMul: 2, CompoundDiv: 2,
	CompoundMod: 2, CompoundAnd: 2, CompoundOr: 2, CompoundXor: 2, CompoundShl: 2, CompoundShr: 2,
	Shl: 12, Shr: 12, Index: 16,
}

var binarySpelling = map[BinaryOp]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Mod: "%",
	BitAnd: "&", BitOr: "|", BitXor: "^", Shl: "<<", Shr: ">>",
	LogAnd: "&&", LogOr: "||", Eq: "==", Ne: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
	Assign: "=", CompoundAdd: "+=", CompoundSub: "-=", CompoundMul: "*=", CompoundDiv: "/=",
	CompoundMod: "%=", CompoundAnd: "&=", CompoundOr: "|=", CompoundXor: "^=",
	CompoundShl: "<<=", CompoundShr: ">>=",
}

// compoundBase maps a CompoundXxx op to its non-compound arithmetic op.
var compoundBase = map[BinaryOp]BinaryOp{
	CompoundAdd: Add, CompoundSub: Sub, CompoundMul: Mul, CompoundDiv: Div, CompoundMod: Mod,
	CompoundAnd: BitAnd, CompoundOr: BitOr, CompoundXor: BitXor, CompoundShl: Shl, CompoundShr: Shr,
}

type Binary struct {
	base
	Op          BinaryOp
	Left, Right Expr
}

// NewBinary implements binary contracts: ASSIGN requires an
// lvalue left operand with the right side implicitly cast to match;
// ADD/SUB on pointer operands implement pointer arithmetic; comparisons
// yield bool; && and || are left as bool here and lowered exclusively
// through Condition to preserve short-circuit semantics (LoadValue falls
// back to materializing the branch result when used as a plain rvalue).
func NewBinary(ctx *Context, rng source.Range, op BinaryOp, left, right Expr) *Binary {
	lt, rt := left.Type(), right.Type()
	var t types.Type
	switch op {
	case Assign:
		if !left.IsLValue() {
			ctx.Diags.Fatal(rng, "left-hand side of assignment is not an lvalue")
		}
		right = implicitCast(ctx, rng, right, lt)
		t = lt
	case CompoundAdd, CompoundSub, CompoundMul, CompoundDiv, CompoundMod,
		CompoundAnd, CompoundOr, CompoundXor, CompoundShl, CompoundShr:
		if !left.IsLValue() {
			ctx.Diags.Fatal(rng, "left-hand side of compound assignment is not an lvalue")
		}
		t = lt
	case Add, Sub:
		lk, rk := ctx.Types.Kind(lt), ctx.Types.Kind(rt)
		switch {
		case lk == types.KindPointer && isIntKind(rk):
			t = lt
		case op == Add && rk == types.KindPointer && isIntKind(lk):
			t = rt
		case op == Sub && lk == types.KindPointer && rk == types.KindPointer:
			t = ctx.Types.Int(64, true)
		default:
			t = ctx.Types.Common(lt, rt)
			left = implicitCast(ctx, rng, left, t)
			right = implicitCast(ctx, rng, right, t)
		}
	case Eq, Ne, Lt, Le, Gt, Ge:
		common := ctx.Types.Common(lt, rt)
		left = implicitCast(ctx, rng, left, common)
		right = implicitCast(ctx, rng, right, common)
		t = ctx.Types.Bool()
	case LogAnd, LogOr:
		t = ctx.Types.Bool()
	case Index:
		t = ctx.Types.Elem(ctx.Types.Decay(lt))
	default:
		t = ctx.Types.Common(lt, rt)
		left = implicitCast(ctx, rng, left, t)
		right = implicitCast(ctx, rng, right, t)
	}
	return &Binary{base: base{ctx: ctx, rng: rng, typ: t}, Op: op, Left: left, Right: right}
}

func isIntKind(k types.Kind) bool { return k == types.KindInt || k == types.KindEnum }

func (e *Binary) HasAddress() bool { return e.Op == Index }
func (e *Binary) IsLValue() bool   { return e.Op == Index }
func (e *Binary) IsConst() bool {
	switch e.Op {
	case Assign, CompoundAdd, CompoundSub, CompoundMul, CompoundDiv, CompoundMod,
		CompoundAnd, CompoundOr, CompoundXor, CompoundShl, CompoundShr:
		return false
	default:
		return e.Left.IsConst() && e.Right.IsConst()
	}
}
func (e *Binary) HasConstantAddress() bool { return e.Op == Index && e.Left.HasConstantAddress() }
func (e *Binary) LoadConstant() (int64, bool) {
	lv, ok := e.Left.LoadConstant()
	if !ok {
		return 0, false
	}
	rv, ok := e.Right.LoadConstant()
	if !ok {
		return 0, false
	}
	switch e.Op {
	case Add:
		return lv + rv, true
	case Sub:
		return lv - rv, true
	case Mul:
		return lv * rv, true
	case BitAnd:
		return lv & rv, true
	case BitOr:
		return lv | rv, true
	case BitXor:
		return lv ^ rv, true
	case Shl:
		return lv << uint(rv), true
	case Shr:
		return lv >> uint(rv), true
	default:
		// Division/modulo by a zero constant is deliberately not checked
		// here: that is a backend concern at fold time, not
		// this constructor's.
		return 0, false
	}
}
func (e *Binary) LoadValue(b *irgen.Builder) llvmvalue.Value {
	switch e.Op {
	case Assign:
		v := e.Right.LoadValue(b)
		addr := e.Left.LoadAddress(b)
		b.Store(v, addr)
		return v
	case CompoundAdd, CompoundSub, CompoundMul, CompoundDiv, CompoundMod,
		CompoundAnd, CompoundOr, CompoundXor, CompoundShl, CompoundShr:
		addr := e.Left.LoadAddress(b)
		old := b.Fetch(addr, e.ctx.Lower.Lower(e.typ))
		rv := implicitLoad(b, e.ctx, e.Right, e.typ)
		updated := b.Binary(binOpFor(e.ctx, compoundBase[e.Op], e.typ), old, rv)
		b.Store(updated, addr)
		return updated
	case LogAnd, LogOr:
		return e.shortCircuitValue(b)
	case Index:
		return loadAddressThenFetch(e, e.ctx, b)
	default:
		lv := e.Left.LoadValue(b)
		rv := e.Right.LoadValue(b)
		return b.Binary(binOpFor(e.ctx, e.Op, e.Left.Type()), lv, rv)
	}
}

// implicitLoad materializes rhs and, if needed, casts it to target before
// a compound-assignment's arithmetic op.
func implicitLoad(b *irgen.Builder, ctx *Context, e Expr, target types.Type) llvmvalue.Value {
	v := e.LoadValue(b)
	if e.Type() == target {
		return v
	}
	return b.Cast(v, ctx.Lower.Lower(e.Type()), ctx.Lower.Lower(target), isSignedType(ctx, e.Type()))
}

func isSignedType(ctx *Context, t types.Type) bool {
	if ctx.Types.Kind(t) == types.KindInt {
		return ctx.Types.IntSigned(t)
	}
	return true
}

func binOpFor(ctx *Context, op BinaryOp, operandType types.Type) irgen.BinOp {
	isFloat := ctx.Types.Kind(operandType) == types.KindFloat
	signed := isSignedType(ctx, operandType)
	switch op {
	case Add:
		if isFloat {
			return irgen.FAdd
		}
		return irgen.Add
	case Sub:
		if isFloat {
			return irgen.FSub
		}
		return irgen.Sub
	case Mul:
		if isFloat {
			return irgen.FMul
		}
		return irgen.SMul
	case Div:
		if isFloat {
			return irgen.FDiv
		}
		if signed {
			return irgen.SDiv
		}
		return irgen.UDiv
	case Mod:
		if signed {
			return irgen.SMod
		}
		return irgen.UMod
	case BitAnd:
		return irgen.And
	case BitOr:
		return irgen.Or
	case BitXor:
		return irgen.Xor
	case Shl:
		return irgen.Shl
	case Shr:
		if signed {
			return irgen.AShr
		}
		return irgen.LShr
	case Eq:
		if isFloat {
			return irgen.FEq
		}
		return irgen.Eq
	case Ne:
		if isFloat {
			return irgen.FNe
		}
		return irgen.Ne
	case Lt:
		if isFloat {
			return irgen.FLt
		}
		if signed {
			return irgen.SLt
		}
		return irgen.ULt
	case Le:
		if isFloat {
			return irgen.FLe
		}
		if signed {
			return irgen.SLe
		}
		return irgen.ULe
	case Gt:
		if isFloat {
			return irgen.FGt
		}
		if signed {
			return irgen.SGt
		}
		return irgen.UGt
	case Ge:
		if isFloat {
			return irgen.FGe
		}
		if signed {
			return irgen.SGe
		}
		return irgen.UGe
	}
	panic("expr: unhandled binary operator")
}

// shortCircuitValue materializes a bool from && / || without a Condition
// caller driving the branch (used when the result is consumed as a plain
// rvalue rather than a branch condition).
func (e *Binary) shortCircuitValue(b *irgen.Builder) llvmvalue.Value {
	trueL := b.GetLabel(".logic.true")
	falseL := b.GetLabel(".logic.false")
	joinL := b.GetLabel(".logic.join")
	boolT := e.ctx.Lower.Lower(e.ctx.Types.Bool())
	slot := b.LocalVariableDefinition(".logicval", boolT)

	e.Condition(b, trueL, falseL)

	b.DefineLabel(trueL)
	b.Store(b.ConstInt(boolT.(*llvmtypes.IntType), 1), slot)
	b.Jump(joinL)

	b.DefineLabel(falseL)
	b.Store(b.ConstInt(boolT.(*llvmtypes.IntType), 0), slot)
	b.Jump(joinL)

	b.DefineLabel(joinL)
	return b.Fetch(slot, boolT)
}

func (e *Binary) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	if e.Op != Index {
		panic("expr: Binary.LoadAddress only valid for []")
	}
	base := e.ctx.Types.Decay(e.Left.Type())
	var baseVal llvmvalue.Value
	if e.ctx.Types.Kind(e.Left.Type()) == types.KindArray {
		baseVal = e.Left.LoadAddress(b)
	} else {
		baseVal = e.Left.LoadValue(b)
	}
	idx := e.Right.LoadValue(b)
	return b.PointerIncrement(e.ctx.Lower.Lower(e.ctx.Types.Elem(base)), baseVal, idx)
}
func (e *Binary) Condition(b *irgen.Builder, t, f *llvmir.Block) {
	switch e.Op {
	case LogAnd:
		mid := b.GetLabel(".and.rhs")
		e.Left.Condition(b, mid, f)
		b.DefineLabel(mid)
		e.Right.Condition(b, t, f)
	case LogOr:
		mid := b.GetLabel(".or.rhs")
		e.Left.Condition(b, t, mid)
		b.DefineLabel(mid)
		e.Right.Condition(b, t, f)
	default:
		defaultCondition(e, e.ctx, b, t, f)
	}
}
func (e *Binary) Flat(callerPrec int) string {
	prec := binaryPrec[e.Op]
	s := e.Left.Flat(prec) + " " + binarySpelling[e.Op] + " " + e.Right.Flat(prec+1)
	if prec < callerPrec {
		return "(" + s + ")"
	}
	return s
}

// ---------------------------------------------------------------------------
// Call
// ---------------------------------------------------------------------------

type Call struct {
	base
	Callee Expr
	Args   []Expr
}

// NewCall fixes the argument count against the function type: fatal if
// fewer than declared; more-than-declared only permitted for varargs.
// Declared arguments are implicitly cast to their parameter type; variadic
// arguments only receive array/function-to-pointer decay.
func NewCall(ctx *Context, rng source.Range, callee Expr, args []Expr) *Call {
	ret, params, varargs := ctx.Types.FuncSignature(callee.Type())
	if len(args) < len(params) {
		ctx.Diags.Fatal(rng, "too few arguments: expected %d, got %d", len(params), len(args))
	}
	if len(args) > len(params) && !varargs {
		ctx.Diags.Fatal(rng, "too many arguments: expected %d, got %d", len(params), len(args))
	}
	for i := range args {
		if i < len(params) {
			args[i] = implicitCast(ctx, rng, args[i], params[i])
		} else {
			args[i] = decayArg(ctx, args[i])
		}
	}
	return &Call{base: base{ctx: ctx, rng: rng, typ: ret}, Callee: callee, Args: args}
}

func decayArg(ctx *Context, e Expr) Expr {
	decayed := ctx.Types.Decay(e.Type())
	if decayed == e.Type() {
		return e
	}
	return NewImplicitCast(ctx, e.Range(), e, decayed)
}

func (e *Call) HasAddress() bool            { return false }
func (e *Call) IsLValue() bool              { return false }
func (e *Call) IsConst() bool               { return false }
func (e *Call) HasConstantAddress() bool    { return false }
func (e *Call) LoadConstant() (int64, bool) { return 0, false }
func (e *Call) LoadValue(b *irgen.Builder) llvmvalue.Value {
	callee := e.Callee.LoadValue(b)
	argVals := make([]llvmvalue.Value, len(e.Args))
	for i, a := range e.Args {
		argVals[i] = a.LoadValue(b)
	}
	return b.Call(callee, argVals...)
}
func (e *Call) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	panic("expr: Call has no address")
}
func (e *Call) Condition(b *irgen.Builder, t, f *llvmir.Block) { defaultCondition(e, e.ctx, b, t, f) }
func (e *Call) Flat(callerPrec int) string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.Flat(2)
	}
	return e.Callee.Flat(16) + "(" + strings.Join(args, ", ") + ")"
}

// ---------------------------------------------------------------------------
// Conditional (?: and then/else)
// ---------------------------------------------------------------------------

type Conditional struct {
	base
	Cond, Then, Else Expr
}

// NewConditional computes the common type via Common(thenType, elseType)
// and casts both arms to it. Result is always a materialized value
//; LoadAddress is therefore unsupported.
func NewConditional(ctx *Context, rng source.Range, cond, then, els Expr) *Conditional {
	common := ctx.Types.Common(then.Type(), els.Type())
	then = implicitCast(ctx, rng, then, common)
	els = implicitCast(ctx, rng, els, common)
	return &Conditional{base: base{ctx: ctx, rng: rng, typ: common}, Cond: cond, Then: then, Else: els}
}

func (e *Conditional) HasAddress() bool         { return false }
func (e *Conditional) IsLValue() bool           { return false }
func (e *Conditional) IsConst() bool            { return e.Cond.IsConst() && e.Then.IsConst() && e.Else.IsConst() }
func (e *Conditional) HasConstantAddress() bool { return false }
func (e *Conditional) LoadConstant() (int64, bool) {
	c, ok := e.Cond.LoadConstant()
	if !ok {
		return 0, false
	}
	if c != 0 {
		return e.Then.LoadConstant()
	}
	return e.Else.LoadConstant()
}
func (e *Conditional) LoadValue(b *irgen.Builder) llvmvalue.Value {
	thenL := b.GetLabel(".cond.then")
	elseL := b.GetLabel(".cond.else")
	joinL := b.GetLabel(".cond.join")
	lt := e.ctx.Lower.Lower(e.typ)
	slot := b.LocalVariableDefinition(".condval", lt)

	e.Cond.Condition(b, thenL, elseL)

	b.DefineLabel(thenL)
	b.Store(e.Then.LoadValue(b), slot)
	b.Jump(joinL)

	b.DefineLabel(elseL)
	b.Store(e.Else.LoadValue(b), slot)
	b.Jump(joinL)

	b.DefineLabel(joinL)
	return b.Fetch(slot, lt)
}
func (e *Conditional) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	panic("expr: Conditional has no address")
}
func (e *Conditional) Condition(b *irgen.Builder, t, f *llvmir.Block) {
	thenL := b.GetLabel(".cond.then")
	elseL := b.GetLabel(".cond.else")
	e.Cond.Condition(b, thenL, elseL)
	b.DefineLabel(thenL)
	e.Then.Condition(b, t, f)
	b.DefineLabel(elseL)
	e.Else.Condition(b, t, f)
}
func (e *Conditional) Flat(callerPrec int) string {
	const prec = 1
	s := e.Cond.Flat(prec+1) + " ? " + e.Then.Flat(prec+1) + " : " + e.Else.Flat(prec)
	if prec < callerPrec {
		return "(" + s + ")"
	}
	return s
}

// ---------------------------------------------------------------------------
// Casts
// ---------------------------------------------------------------------------

type Cast struct {
	base
	Operand  Expr
	Implicit bool
}

// NewExplicitCast is allowed iff ExplicitCast(from, to) holds; otherwise
// fatal.
func NewExplicitCast(ctx *Context, rng source.Range, operand Expr, to types.Type) *Cast {
	if !ctx.Types.ExplicitCast(operand.Type(), to) {
		ctx.Diags.Fatal(rng, "cannot cast %s to %s", ctx.Types.String(operand.Type()), ctx.Types.String(to))
	}
	return &Cast{base: base{ctx: ctx, rng: rng, typ: to}, Operand: operand, Implicit: false}
}

// NewImplicitCast is inserted by peer constructors; behaves like an
// explicit cast whose printer is suppressed.
func NewImplicitCast(ctx *Context, rng source.Range, operand Expr, to types.Type) *Cast {
	return &Cast{base: base{ctx: ctx, rng: rng, typ: to}, Operand: operand, Implicit: true}
}

func implicitCast(ctx *Context, rng source.Range, e Expr, to types.Type) Expr {
	if e.Type() == to {
		return e
	}
	if !ctx.Types.Convert(e.Type(), to) {
		ctx.Diags.Fatal(rng, "cannot implicitly convert %s to %s", ctx.Types.String(e.Type()), ctx.Types.String(to))
	}
	return NewImplicitCast(ctx, rng, e, to)
}

func (e *Cast) HasAddress() bool            { return false }
func (e *Cast) IsLValue() bool              { return false }
func (e *Cast) IsConst() bool               { return e.Operand.IsConst() }
func (e *Cast) HasConstantAddress() bool    { return false }
func (e *Cast) LoadConstant() (int64, bool) { return e.Operand.LoadConstant() }
func (e *Cast) LoadValue(b *irgen.Builder) llvmvalue.Value {
	v := e.Operand.LoadValue(b)
	if e.Operand.Type() == e.typ {
		return v
	}
	return b.Cast(v, e.ctx.Lower.Lower(e.Operand.Type()), e.ctx.Lower.Lower(e.typ), isSignedType(e.ctx, e.Operand.Type()))
}
func (e *Cast) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	panic("expr: Cast has no address")
}
func (e *Cast) Condition(b *irgen.Builder, t, f *llvmir.Block) { defaultCondition(e, e.ctx, b, t, f) }
func (e *Cast) Flat(callerPrec int) string {
	if e.Implicit {
		return e.Operand.Flat(callerPrec)
	}
	const prec = 14
	s := "(" + e.ctx.Types.String(e.typ) + ")" + e.Operand.Flat(prec)
	if prec < callerPrec {
		return "(" + s + ")"
	}
	return s
}

// ---------------------------------------------------------------------------
// Sizeof
// ---------------------------------------------------------------------------

type Sizeof struct {
	base
	OperandType types.Type // valid iff Operand == nil
	Operand     Expr       // valid iff OperandType is invalid
}

func NewSizeofType(ctx *Context, rng source.Range, t types.Type) *Sizeof {
	return &Sizeof{base: base{ctx: ctx, rng: rng, typ: ctx.Types.Int(64, false)}, OperandType: t}
}

func NewSizeofExpr(ctx *Context, rng source.Range, operand Expr) *Sizeof {
	return &Sizeof{base: base{ctx: ctx, rng: rng, typ: ctx.Types.Int(64, false)}, Operand: operand}
}

func (e *Sizeof) sizedType() types.Type {
	if e.Operand != nil {
		return e.Operand.Type()
	}
	return e.OperandType
}
func (e *Sizeof) HasAddress() bool            { return false }
func (e *Sizeof) IsLValue() bool              { return false }
func (e *Sizeof) IsConst() bool               { return true }
func (e *Sizeof) HasConstantAddress() bool    { return false }
func (e *Sizeof) LoadConstant() (int64, bool) { return int64(e.ctx.Types.SizeOf(e.sizedType())), true }
func (e *Sizeof) LoadValue(b *irgen.Builder) llvmvalue.Value {
	lt := e.ctx.Lower.Lower(e.typ).(*llvmtypes.IntType)
	return b.ConstInt(lt, int64(e.ctx.Types.SizeOf(e.sizedType())))
}
func (e *Sizeof) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	panic("expr: Sizeof has no address")
}
func (e *Sizeof) Condition(b *irgen.Builder, t, f *llvmir.Block) { b.Jump(t) }
func (e *Sizeof) Flat(callerPrec int) string {
	if e.Operand != nil {
		return "sizeof(" + e.Operand.Flat(0) + ")"
	}
	return "sizeof(" + e.ctx.Types.String(e.OperandType) + ")"
}

// ---------------------------------------------------------------------------
// Compound literal
// ---------------------------------------------------------------------------

type CompoundLiteral struct {
	base
	SlotName string // synthetic ".compoundN" local, materialized by the statement layer
	Items    []Expr // one per aggregate member/element, already cast
}

func NewCompoundLiteral(ctx *Context, rng source.Range, slotName string, t types.Type, items []Expr) *CompoundLiteral {
	return &CompoundLiteral{base: base{ctx: ctx, rng: rng, typ: t}, SlotName: slotName, Items: items}
}

func (e *CompoundLiteral) HasAddress() bool { return true }
func (e *CompoundLiteral) IsLValue() bool   { return true }
func (e *CompoundLiteral) IsConst() bool {
	for _, it := range e.Items {
		if !it.IsConst() {
			return false
		}
	}
	return true
}
func (e *CompoundLiteral) HasConstantAddress() bool    { return false }
func (e *CompoundLiteral) LoadConstant() (int64, bool) { return 0, false }
func (e *CompoundLiteral) LoadValue(b *irgen.Builder) llvmvalue.Value {
	return loadAddressThenFetch(e, e.ctx, b)
}
func (e *CompoundLiteral) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	v, ok := b.LoadAddress(e.SlotName)
	if !ok {
		panic(fmt.Sprintf("expr: compound literal slot %q not materialized before codegen", e.SlotName))
	}
	return v
}
func (e *CompoundLiteral) Condition(b *irgen.Builder, t, f *llvmir.Block) { b.Jump(t) }
func (e *CompoundLiteral) Flat(callerPrec int) string {
	items := make([]string, len(e.Items))
	for i, it := range e.Items {
		items[i] = it.Flat(2)
	}
	return "{" + strings.Join(items, ", ") + "}"
}

// ---------------------------------------------------------------------------
// Comma list
// ---------------------------------------------------------------------------

type Comma struct {
	base
	Items []Expr // result type/value is the last item's
}

func NewComma(ctx *Context, rng source.Range, items []Expr) *Comma {
	last := items[len(items)-1]
	return &Comma{base: base{ctx: ctx, rng: rng, typ: last.Type()}, Items: items}
}

func (e *Comma) HasAddress() bool { return e.Items[len(e.Items)-1].HasAddress() }
func (e *Comma) IsLValue() bool   { return e.Items[len(e.Items)-1].IsLValue() }
func (e *Comma) IsConst() bool {
	for _, it := range e.Items {
		if !it.IsConst() {
			return false
		}
	}
	return true
}
func (e *Comma) HasConstantAddress() bool    { return false }
func (e *Comma) LoadConstant() (int64, bool) { return e.Items[len(e.Items)-1].LoadConstant() }
func (e *Comma) LoadValue(b *irgen.Builder) llvmvalue.Value {
	for _, it := range e.Items[:len(e.Items)-1] {
		it.LoadValue(b)
	}
	return e.Items[len(e.Items)-1].LoadValue(b)
}
func (e *Comma) LoadAddress(b *irgen.Builder) llvmvalue.Value {
	for _, it := range e.Items[:len(e.Items)-1] {
		it.LoadValue(b)
	}
	return e.Items[len(e.Items)-1].LoadAddress(b)
}
func (e *Comma) Condition(b *irgen.Builder, t, f *llvmir.Block) {
	for _, it := range e.Items[:len(e.Items)-1] {
		it.LoadValue(b)
	}
	e.Items[len(e.Items)-1].Condition(b, t, f)
}
func (e *Comma) Flat(callerPrec int) string {
	items := make([]string, len(e.Items))
	for i, it := range e.Items {
		items[i] = it.Flat(3)
	}
	s := strings.Join(items, ", ")
	if 3 < callerPrec {
		return "(" + s + ")"
	}
	return s
}

// ---------------------------------------------------------------------------
// Assert
// ---------------------------------------------------------------------------

// NewAssert expands `assert(expr)` to `expr || __assert(stringify(expr),
// file, line)`, building on Binary/Call so the expansion
// reuses ordinary short-circuit codegen instead of a bespoke node.
func NewAssert(ctx *Context, rng source.Range, inner Expr, assertFn *Ident, fileLit, lineLit Expr) Expr {
	msg := NewStringLiteral(ctx, rng, inner.Flat(0))
	call := NewCall(ctx, rng, assertFn, []Expr{msg, fileLit, lineLit})
	return NewBinary(ctx, rng, LogOr, inner, call)
}

package expr_test

import (
	"testing"

	"codeberg.org/saruga/abcc/internal/diag"
	"codeberg.org/saruga/abcc/internal/expr"
	"codeberg.org/saruga/abcc/internal/intern"
	"codeberg.org/saruga/abcc/internal/source"
	"codeberg.org/saruga/abcc/internal/symtab"
	"codeberg.org/saruga/abcc/internal/test"
	"codeberg.org/saruga/abcc/internal/types"
)

func newContext(t *testing.T) (*expr.Context, *intern.Store) {
	t.Helper()
	strs := intern.NewStore()
	reg := types.NewRegistry(strs)
	sink := diag.NewSink(func(intern.String) string { return "" })
	return &expr.Context{Types: reg, Diags: sink, Lower: expr.NewTypeLowering(reg)}, strs
}

var zeroRange source.Range

func TestIntLiteralPicksSmallestWidth(t *testing.T) {
	ctx, _ := newContext(t)
	small := expr.NewIntLiteral(ctx, zeroRange, 1, false)
	test.AssertEqual(t, ctx.Types.IntWidth(small.Type()), 32)

	big := expr.NewIntLiteral(ctx, zeroRange, 1<<40, false)
	test.AssertEqual(t, ctx.Types.IntWidth(big.Type()), 64)
}

func TestIntLiteralFlat(t *testing.T) {
	ctx, _ := newContext(t)
	e := expr.NewIntLiteral(ctx, zeroRange, 42, false)
	test.AssertEqual(t, e.Flat(0), "42")
}

func TestIntLiteralIsConstAndFolds(t *testing.T) {
	ctx, _ := newContext(t)
	e := expr.NewIntLiteral(ctx, zeroRange, 7, false)
	test.AssertEqual(t, e.IsConst(), true)
	v, ok := e.LoadConstant()
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, v, int64(7))
}

func TestBinaryAddFoldsConstants(t *testing.T) {
	ctx, _ := newContext(t)
	l := expr.NewIntLiteral(ctx, zeroRange, 3, false)
	r := expr.NewIntLiteral(ctx, zeroRange, 4, false)
	b := expr.NewBinary(ctx, zeroRange, expr.Add, l, r)
	v, ok := b.LoadConstant()
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, v, int64(7))
}

func TestBinaryFlatAddsParensByPrecedence(t *testing.T) {
	ctx, _ := newContext(t)
	a := expr.NewIntLiteral(ctx, zeroRange, 1, false)
	bLit := expr.NewIntLiteral(ctx, zeroRange, 2, false)
	cLit := expr.NewIntLiteral(ctx, zeroRange, 3, false)
	sum := expr.NewBinary(ctx, zeroRange, expr.Add, a, bLit)
	mul := expr.NewBinary(ctx, zeroRange, expr.Mul, sum, cLit)
	test.AssertEqual(t, mul.Flat(0), "(1 + 2) * 3")
}

func TestUnaryNegateFoldsConstant(t *testing.T) {
	ctx, _ := newContext(t)
	lit := expr.NewIntLiteral(ctx, zeroRange, 5, false)
	neg := expr.NewUnary(ctx, zeroRange, expr.Neg, lit)
	v, ok := neg.LoadConstant()
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, v, int64(-5))
}

func TestIdentOfVariableHasAddressAndIsLValue(t *testing.T) {
	ctx, strs := newContext(t)
	entry := &symtab.Entry{Kind: symtab.KindDecl, Type: ctx.Types.Int(32, true)}
	id := expr.NewIdent(ctx, zeroRange, strs.Create("x"), entry)
	test.AssertEqual(t, id.HasAddress(), true)
	test.AssertEqual(t, id.IsLValue(), true)
	test.AssertEqual(t, id.IsConst(), false)
}

func TestIdentOfEnumConstantIsConstWithNoAddress(t *testing.T) {
	ctx, strs := newContext(t)
	entry := &symtab.Entry{Kind: symtab.KindExpr, Type: ctx.Types.Int(32, true), ConstValue: 9}
	id := expr.NewIdent(ctx, zeroRange, strs.Create("RED"), entry)
	test.AssertEqual(t, id.HasAddress(), false)
	test.AssertEqual(t, id.IsConst(), true)
	v, ok := id.LoadConstant()
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, v, int64(9))
}

func TestAssignRequiresLValue(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("assigning to an lvalue must not panic: %v", r)
		}
	}()
	ctx, strs := newContext(t)
	entry := &symtab.Entry{Kind: symtab.KindDecl, Type: ctx.Types.Int(32, true)}
	id := expr.NewIdent(ctx, zeroRange, strs.Create("x"), entry)
	rhs := expr.NewIntLiteral(ctx, zeroRange, 1, false)
	expr.NewBinary(ctx, zeroRange, expr.Assign, id, rhs)
}

func TestSizeofTypeIsConstant(t *testing.T) {
	ctx, _ := newContext(t)
	s := expr.NewSizeofType(ctx, zeroRange, ctx.Types.Int(32, true))
	v, ok := s.LoadConstant()
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, v, int64(4))
	test.AssertEqual(t, s.Flat(0), "sizeof(i32)")
}

func TestConditionalCommonTypeWidensArms(t *testing.T) {
	ctx, _ := newContext(t)
	cond := expr.NewIntLiteral(ctx, zeroRange, 1, false)
	thenE := expr.NewIntLiteral(ctx, zeroRange, 1, false)
	elseE := expr.NewFloatLiteral(ctx, zeroRange, 2.5)
	c := expr.NewConditional(ctx, zeroRange, cond, thenE, elseE)
	test.AssertEqual(t, ctx.Types.Kind(c.Type()), types.KindFloat)
}

func TestCommaYieldsLastItemsTypeAndValue(t *testing.T) {
	ctx, _ := newContext(t)
	first := expr.NewIntLiteral(ctx, zeroRange, 1, false)
	last := expr.NewIntLiteral(ctx, zeroRange, 2, false)
	c := expr.NewComma(ctx, zeroRange, []expr.Expr{first, last})
	v, ok := c.LoadConstant()
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, v, int64(2))
}

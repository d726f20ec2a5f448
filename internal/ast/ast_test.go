package ast_test

import (
	"strings"
	"testing"

	llvmtypes "github.com/llir/llvm/ir/types"

	"codeberg.org/saruga/abcc/internal/ast"
	"codeberg.org/saruga/abcc/internal/diag"
	"codeberg.org/saruga/abcc/internal/expr"
	"codeberg.org/saruga/abcc/internal/intern"
	"codeberg.org/saruga/abcc/internal/irgen"
	"codeberg.org/saruga/abcc/internal/source"
	"codeberg.org/saruga/abcc/internal/symtab"
	"codeberg.org/saruga/abcc/internal/test"
	"codeberg.org/saruga/abcc/internal/types"
)

var zeroRange source.Range

func newContext(t *testing.T) (*ast.Context, *intern.Store) {
	t.Helper()
	strs := intern.NewStore()
	reg := types.NewRegistry(strs)
	sink := diag.NewSink(func(intern.String) string { return "" })
	ec := &expr.Context{Types: reg, Diags: sink, Lower: expr.NewTypeLowering(reg)}
	return ast.NewContext(ec), strs
}

// intFunc opens a `fn(): i32` function body so statement Codegen calls have
// somewhere to emit into, returning the builder with the body still open.
func intFunc(name string) *irgen.Builder {
	b := irgen.New("test", 0)
	fnType := llvmtypes.NewFunc(llvmtypes.I32)
	b.FunctionDefinitionBegin(name, fnType, nil, false)
	return b
}

func TestIfWithoutElseBranchesOnCondition(t *testing.T) {
	ctx, _ := newContext(t)
	b := intFunc("main")
	cond := expr.NewIntLiteral(ctx.Context, zeroRange, 1, false)
	then := ast.NewExprStmt(zeroRange, expr.NewIntLiteral(ctx.Context, zeroRange, 2, false))
	s := ast.NewIf(zeroRange, cond, then, nil)
	s.Codegen(ctx, b)
	b.Jump(b.Leave())
	if err := b.FunctionDefinitionEnd(); err != nil {
		t.Fatalf("function body did not verify: %v", err)
	}
	ir := b.Module().String()
	test.AssertEqual(t, strings.Contains(ir, "br i1"), true)
}

func TestWhileLoopsBackToCondition(t *testing.T) {
	ctx, _ := newContext(t)
	b := intFunc("main")
	cond := expr.NewIntLiteral(ctx.Context, zeroRange, 1, false)
	body := ast.NewBlock(zeroRange, nil)
	s := ast.NewWhile(zeroRange, cond, body)
	s.Codegen(ctx, b)
	b.Jump(b.Leave())
	if err := b.FunctionDefinitionEnd(); err != nil {
		t.Fatalf("function body did not verify: %v", err)
	}
	ir := b.Module().String()
	test.AssertEqual(t, strings.Contains(ir, "while.cond"), true)
	test.AssertEqual(t, strings.Contains(ir, "while.end"), true)
}

func TestBreakJumpsToEnclosingLoopEnd(t *testing.T) {
	ctx, _ := newContext(t)
	b := intFunc("main")
	cond := expr.NewIntLiteral(ctx.Context, zeroRange, 1, false)
	body := ast.NewBlock(zeroRange, []ast.Stmt{ast.NewBreak(zeroRange)})
	s := ast.NewWhile(zeroRange, cond, body)
	s.Codegen(ctx, b)
	b.Jump(b.Leave())
	if err := b.FunctionDefinitionEnd(); err != nil {
		t.Fatalf("function body did not verify: %v", err)
	}
}

func TestReturnStoresValueAndJumpsToLeave(t *testing.T) {
	ctx, _ := newContext(t)
	b := intFunc("main")
	ret := ast.NewReturn(zeroRange, expr.NewIntLiteral(ctx.Context, zeroRange, 7, false))
	ret.Codegen(ctx, b)
	if err := b.FunctionDefinitionEnd(); err != nil {
		t.Fatalf("function body did not verify: %v", err)
	}
	ir := b.Module().String()
	test.AssertEqual(t, strings.Contains(ir, "ret i32"), true)
}

func TestSwitchEmitsJumpTableWithDefault(t *testing.T) {
	ctx, strs := newContext(t)
	b := intFunc("main")
	entry := &symtab.Entry{Kind: symtab.KindDecl, MangledID: strs.Create("x"), Type: ctx.Types.Int(32, true)}
	b.LocalVariableDefinition("x", llvmtypes.I32)
	tag := expr.NewIdent(ctx.Context, zeroRange, strs.Create("x"), entry)

	cases := []ast.CaseLabel{
		{Value: 1, BodyIndex: 0},
		{Value: 2, BodyIndex: 1},
		{IsDefault: true, BodyIndex: 2},
	}
	body := []ast.Stmt{
		ast.NewBreak(zeroRange),
		ast.NewBreak(zeroRange),
		ast.NewBreak(zeroRange),
	}
	sw := ast.NewSwitch(zeroRange, tag, cases, body)
	sw.Codegen(ctx, b)
	b.Jump(b.Leave())
	if err := b.FunctionDefinitionEnd(); err != nil {
		t.Fatalf("function body did not verify: %v", err)
	}
	ir := b.Module().String()
	test.AssertEqual(t, strings.Contains(ir, "switch i32"), true)
	test.AssertEqual(t, strings.Contains(ir, "switch.case0"), true)
	test.AssertEqual(t, strings.Contains(ir, "switch.end"), true)
}

func TestLabelCollectionFindsForwardLabel(t *testing.T) {
	body := ast.NewBlock(zeroRange, []ast.Stmt{
		ast.NewGoto(zeroRange, "done"),
		ast.NewExprStmt(zeroRange, nil),
		ast.NewLabelStmt(zeroRange, "done"),
	})

	labels := map[string]bool{}
	body.Apply(func(n ast.Node) bool {
		if l, ok := n.(*ast.LabelStmt); ok {
			labels[l.Name] = true
		}
		return true
	})
	test.AssertEqual(t, labels["done"], true)
}

func TestFuncDefVerifiesCleanly(t *testing.T) {
	ctx, strs := newContext(t)
	b := irgen.New("test", 0)
	fnType := ctx.Types.Function(ctx.Types.Void(), nil, false)
	entry := &symtab.Entry{MangledID: strs.Create("main"), Name: strs.Create("main"), Type: fnType, IsFunc: true}
	body := ast.NewBlock(zeroRange, []ast.Stmt{ast.NewReturn(zeroRange, nil)})
	def := ast.NewFuncDef(zeroRange, entry, nil, false, body)
	def.Codegen(ctx, b)
	ir := b.Module().String()
	test.AssertEqual(t, strings.Contains(ir, "define"), true)
}

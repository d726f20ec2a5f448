package parser_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/saruga/abcc/internal/ast"
	"codeberg.org/saruga/abcc/internal/diag"
	"codeberg.org/saruga/abcc/internal/expr"
	"codeberg.org/saruga/abcc/internal/intern"
	"codeberg.org/saruga/abcc/internal/lexer"
	"codeberg.org/saruga/abcc/internal/parser"
	"codeberg.org/saruga/abcc/internal/source"
	"codeberg.org/saruga/abcc/internal/symtab"
	"codeberg.org/saruga/abcc/internal/test"
	"codeberg.org/saruga/abcc/internal/types"
)

// parseSource parses src as a standalone file and returns its Program. A
// fatal diagnostic aborts parsing via diag.Sink's exit-on-first-error
// contract, which the parser surfaces as a panic recovered by testing.T.
func parseSource(t *testing.T, src string) *ast.Program {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "in.abc")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	strs := intern.NewStore()
	reg := types.NewRegistry(strs)
	r := source.NewReader(strs, nil)
	if err := r.OpenRoot(path); err != nil {
		t.Fatal(err)
	}
	sink := diag.NewSink(func(intern.String) string { return src })
	m := source.NewMacros()
	lex := lexer.New(r, m, strs, sink)
	syms := symtab.New(strs)
	ec := &expr.Context{Types: reg, Diags: sink, Lower: expr.NewTypeLowering(reg)}
	parser.SeedBuiltinTypes(strs, syms, reg)
	return parser.Parse(lex, strs, syms, ec)
}

func TestParsesFunctionDeclarationAndDefinition(t *testing.T) {
	prog := parseSource(t, `
fn add(a: i32, b: i32): i32;
fn add(a: i32, b: i32): i32 {
  return a + b;
}
`)
	test.AssertEqual(t, len(prog.Decls), 2)
	if _, ok := prog.Decls[0].(*ast.FuncDecl); !ok {
		t.Fatalf("expected first decl to be a FuncDecl, got %T", prog.Decls[0])
	}
	if _, ok := prog.Decls[1].(*ast.FuncDef); !ok {
		t.Fatalf("expected second decl to be a FuncDef, got %T", prog.Decls[1])
	}
}

func TestStaticFunctionGetsInternalLinkage(t *testing.T) {
	prog := parseSource(t, `
static fn helper(): void {
  return;
}
`)
	test.AssertEqual(t, len(prog.Decls), 1)
	def, ok := prog.Decls[0].(*ast.FuncDef)
	if !ok {
		t.Fatalf("expected a FuncDef, got %T", prog.Decls[0])
	}
	test.AssertEqual(t, def.External, false)
}

func TestExternDeclaresMultipleVariablesOfOneType(t *testing.T) {
	prog := parseSource(t, `extern x, y, z: i32;`)
	test.AssertEqual(t, len(prog.Decls), 3)
	for _, d := range prog.Decls {
		if _, ok := d.(*ast.ExternVarDecl); !ok {
			t.Fatalf("expected an ExternVarDecl, got %T", d)
		}
	}
}

func TestGlobalConstBindsWithoutStorage(t *testing.T) {
	prog := parseSource(t, `global const limit: i32 = 10;`)
	test.AssertEqual(t, len(prog.Decls), 1)
	if _, ok := prog.Decls[0].(*ast.ConstDecl); !ok {
		t.Fatalf("expected a ConstDecl, got %T", prog.Decls[0])
	}
}

func TestUnionMembersOverlapAtOffsetZero(t *testing.T) {
	prog := parseSource(t, `
union Tag {
  asInt: i32;
  asFloat: f32;
  asBytes: array[8] of char;
};
`)
	test.AssertEqual(t, len(prog.Decls), 1)
	if _, ok := prog.Decls[0].(*ast.StructDecl); !ok {
		t.Fatalf("expected a StructDecl node for the union, got %T", prog.Decls[0])
	}
}

func TestTypeAliasDeclaration(t *testing.T) {
	prog := parseSource(t, `type Celsius = f64;`)
	test.AssertEqual(t, len(prog.Decls), 1)
	if _, ok := prog.Decls[0].(*ast.TypeAliasDecl); !ok {
		t.Fatalf("expected a TypeAliasDecl, got %T", prog.Decls[0])
	}
}

func TestEnumDeclarationWithExplicitValues(t *testing.T) {
	prog := parseSource(t, `
enum Color {
  Red = 1,
  Green = 2,
  Blue = 4,
};
`)
	test.AssertEqual(t, len(prog.Decls), 1)
	if _, ok := prog.Decls[0].(*ast.EnumDecl); !ok {
		t.Fatalf("expected an EnumDecl, got %T", prog.Decls[0])
	}
}

func TestIfStatementAndBothConditionalExpressionSyntaxes(t *testing.T) {
	prog := parseSource(t, `
fn classify(n: i32): i32 {
  local ternary: i32 = n >= 0 ? 1 : -1;
  local worded: i32 = n >= 0 then 1 else -1;
  if (n == 0) {
    return 0;
  } else {
    return ternary + worded;
  }
}
`)
	test.AssertEqual(t, len(prog.Decls), 1)
}

func TestWhileDoWhileAndForStatements(t *testing.T) {
	prog := parseSource(t, `
fn sumTo(n: i32): i32 {
  local total: i32 = 0;
  local i: i32 = 0;
  while (i < n) {
    total = total + i;
    i = i + 1;
  }
  do {
    total = total + 1;
  } while (total < 0);
  for (local j: i32 = 0; j < n; j = j + 1) {
    total = total + j;
  }
  return total;
}
`)
	test.AssertEqual(t, len(prog.Decls), 1)
}

func TestSwitchStatementWithFallthroughAndDefault(t *testing.T) {
	prog := parseSource(t, `
fn describe(n: i32): i32 {
  switch (n) {
    case 1:
    case 2:
      return 20;
    default:
      return -1;
  }
  return 0;
}
`)
	test.AssertEqual(t, len(prog.Decls), 1)
}

func TestLabeledStatementBothSyntaxes(t *testing.T) {
	prog := parseSource(t, `
fn loopy(): void {
  local i: i32 = 0;
  top:
  if (i < 10) {
    i = i + 1;
    goto top;
  }
  label bottom:
  return;
}
`)
	test.AssertEqual(t, len(prog.Decls), 1)
}

func TestExplicitCastVersusParenthesizedExpression(t *testing.T) {
	prog := parseSource(t, `
fn convert(x: f64): i32 {
  local grouped: f64 = (x + 1.0);
  return (i32)grouped;
}
`)
	test.AssertEqual(t, len(prog.Decls), 1)
}

func TestStructInitializerListFillsTrailingMembersWithZero(t *testing.T) {
	prog := parseSource(t, `
struct Point {
  x: i32;
  y: i32;
  z: i32;
};

fn origin(): Point {
  local p: Point = { 1 };
  return p;
}
`)
	test.AssertEqual(t, len(prog.Decls), 2)
}

func TestArrayInitializerListFillsTrailingElementsWithZero(t *testing.T) {
	prog := parseSource(t, `
fn make(): void {
  local xs: array[4] of i32 = { 1, 2 };
}
`)
	test.AssertEqual(t, len(prog.Decls), 1)
}

func TestAssertExpressionExpandsAgainstAssertSymbol(t *testing.T) {
	prog := parseSource(t, `
extern fn __assert(message: array[] of char, file: array[] of char, line: i32): bool;

fn check(x: i32): void {
  assert(x > 0);
}
`)
	test.AssertEqual(t, len(prog.Decls), 2)
}

func TestProgramPrintIncludesEveryTopLevelName(t *testing.T) {
	prog := parseSource(t, `
global count: i32 = 0;
fn bump(): void {
  count = count + 1;
}
`)
	out := prog.Print()
	test.AssertEqual(t, strings.Contains(out, "count"), true)
	test.AssertEqual(t, strings.Contains(out, "bump"), true)
}

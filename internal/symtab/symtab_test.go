package symtab_test

import (
	"testing"

	"codeberg.org/saruga/abcc/internal/intern"
	"codeberg.org/saruga/abcc/internal/symtab"
	"codeberg.org/saruga/abcc/internal/test"
	"codeberg.org/saruga/abcc/internal/types"
)

func newTable() (*symtab.Table, *intern.Store, *types.Registry) {
	strs := intern.NewStore()
	return symtab.New(strs), strs, types.NewRegistry(strs)
}

func TestRootNamesAreNotMangled(t *testing.T) {
	tbl, strs, reg := newTable()
	name := strs.Create("main")
	entry, result := tbl.AddDeclaration(name, reg.Int(32, true), true, nil)
	test.AssertEqual(t, result, symtab.Added)
	test.AssertEqual(t, entry.MangledID.Text(), "main")
}

func TestNestedScopeMangling(t *testing.T) {
	tbl, strs, reg := newTable()
	tbl.Push("main")
	x := strs.Create("x")
	entry, result := tbl.AddDeclaration(x, reg.Int(32, true), false, nil)
	test.AssertEqual(t, result, symtab.Added)
	test.AssertEqual(t, entry.MangledID.Text(), ".main.x.0")

	y := strs.Create("x") // same text, new scope below
	tbl.Push("main.block")
	entry2, result2 := tbl.AddDeclaration(y, reg.Int(32, true), false, nil)
	test.AssertEqual(t, result2, symtab.Added)
	test.AssertEqual(t, entry2.MangledID.Text(), ".main.block.x.0")
}

func TestDuplicateInSameScopeIsIncompatibleByDefault(t *testing.T) {
	tbl, strs, reg := newTable()
	tbl.Push("main")
	x := strs.Create("count")
	tbl.AddDeclaration(x, reg.Int(32, true), false, nil)
	_, result := tbl.AddDeclaration(x, reg.Int(32, true), false, nil)
	test.AssertEqual(t, result, symtab.Incompatible)
}

func TestDuplicateCompatibleViaCallback(t *testing.T) {
	tbl, strs, reg := newTable()
	fname := strs.Create("puts")
	fnType := reg.Function(reg.Void(), []types.Type{reg.Pointer(reg.Char())}, false)
	tbl.AddDeclaration(fname, fnType, true, nil)

	compatible := func(existing *symtab.Entry) bool {
		return existing.Type == fnType
	}
	_, result := tbl.AddDeclaration(fname, fnType, true, compatible)
	test.AssertEqual(t, result, symtab.Compatible)

	otherType := reg.Function(reg.Int(32, true), nil, false)
	compatible2 := func(existing *symtab.Entry) bool { return existing.Type == otherType }
	_, result2 := tbl.AddDeclaration(fname, otherType, true, compatible2)
	test.AssertEqual(t, result2, symtab.Incompatible)
}

func TestFindCurrentOnlyDoesNotSeeParentScope(t *testing.T) {
	tbl, strs, reg := newTable()
	outer := strs.Create("v")
	tbl.AddDeclaration(outer, reg.Int(32, true), false, nil)

	tbl.Push("block")
	_, foundCurrent := tbl.Find("v", symtab.CurrentOnly)
	test.AssertEqual(t, foundCurrent, false)

	_, foundAny := tbl.Find("v", symtab.AnyEnclosing)
	test.AssertEqual(t, foundAny, true)
}

func TestPopReturnsToParentScope(t *testing.T) {
	tbl, strs, reg := newTable()
	tbl.Push("main")
	x := strs.Create("x")
	tbl.AddDeclaration(x, reg.Int(32, true), false, nil)
	tbl.Pop()

	_, found := tbl.Find("x", symtab.AnyEnclosing)
	test.AssertEqual(t, found, false)
}

func TestAddTypeAndAddExpressionUseDistinctKinds(t *testing.T) {
	tbl, strs, reg := newTable()
	st := reg.CreateIncompleteStruct(strs.Create("Point"))
	typeEntry, _ := tbl.AddType(strs.Create("Point"), st, nil)
	test.AssertEqual(t, typeEntry.Kind, symtab.KindType)

	exprEntry, _ := tbl.AddExpression(strs.Create("RED"), reg.Int(32, false), 0, nil)
	test.AssertEqual(t, exprEntry.Kind, symtab.KindExpr)
	test.AssertEqual(t, exprEntry.ConstValue, int64(0))
}

func TestPopRootPanics(t *testing.T) {
	tbl, _, _ := newTable()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic popping the root scope")
		}
	}()
	tbl.Pop()
}

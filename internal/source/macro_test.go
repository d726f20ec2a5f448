package source_test

import (
	"testing"

	"codeberg.org/saruga/abcc/internal/source"
	"codeberg.org/saruga/abcc/internal/test"
)

func TestRedefiningMacroIsAnError(t *testing.T) {
	m := source.NewMacros()
	if err := m.Define("FOO", "1"); err != nil {
		t.Fatalf("unexpected error defining FOO: %v", err)
	}
	if err := m.Define("FOO", "2"); err == nil {
		t.Fatal("expected an error redefining FOO")
	}
}

func TestRewritePassesThroughUndefinedNames(t *testing.T) {
	m := source.NewMacros()
	result, ok := m.Rewrite("bar")
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, result, "bar")
}

func TestRewriteChainsThroughDefinitions(t *testing.T) {
	m := source.NewMacros()
	m.Define("A", "B")
	m.Define("B", "42")
	result, ok := m.Rewrite("A")
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, result, "42")
}

func TestRewriteDetectsCycle(t *testing.T) {
	m := source.NewMacros()
	m.Define("A", "B")
	m.Define("B", "A")
	_, ok := m.Rewrite("A")
	test.AssertEqual(t, ok, false)
}

func TestRewriteToEmptyStringSucceeds(t *testing.T) {
	m := source.NewMacros()
	m.Define("EMPTY", "")
	result, ok := m.Rewrite("EMPTY")
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, result, "")
}

func TestIfdefSuppressesUndefinedBranch(t *testing.T) {
	m := source.NewMacros()
	if err := m.BeginIfdef("NOT_DEFINED"); err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, m.Suppressed(), true)
	if err := m.EndIfdef(); err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, m.Suppressed(), false)
}

func TestIfdefAllowsDefinedBranch(t *testing.T) {
	m := source.NewMacros()
	m.Define("FEATURE", "")
	m.BeginIfdef("FEATURE")
	test.AssertEqual(t, m.Suppressed(), false)
}

func TestNestedIfdefIsRejected(t *testing.T) {
	m := source.NewMacros()
	m.BeginIfdef("X")
	if err := m.BeginIfdef("Y"); err == nil {
		t.Fatal("expected an error for nested @ifdef")
	}
}

func TestEndIfdefWithoutBeginIsRejected(t *testing.T) {
	m := source.NewMacros()
	if err := m.EndIfdef(); err == nil {
		t.Fatal("expected an error for unmatched @endif")
	}
}

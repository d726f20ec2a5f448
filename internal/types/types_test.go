package types_test

import (
	"testing"

	"codeberg.org/saruga/abcc/internal/intern"
	"codeberg.org/saruga/abcc/internal/test"
	"codeberg.org/saruga/abcc/internal/types"
)

func newRegistry() *types.Registry {
	return types.NewRegistry(intern.NewStore())
}

func TestPrimitivesAreStable(t *testing.T) {
	r := newRegistry()
	test.AssertEqual(t, r.Int(32, true), r.Int(32, true))
	test.AssertEqual(t, r.Int(32, true) == r.Int(32, false), false)
	test.AssertEqual(t, r.Float(types.Double), r.Float(types.Double))
}

func TestPointerInterning(t *testing.T) {
	r := newRegistry()
	i32 := r.Int(32, true)
	p1 := r.Pointer(i32)
	p2 := r.Pointer(i32)
	test.AssertEqual(t, p1, p2)
	test.AssertEqual(t, r.Kind(p1), types.KindPointer)
	test.AssertEqual(t, r.Elem(p1), i32)
}

func TestConstIsInverseOfConstRemoved(t *testing.T) {
	r := newRegistry()
	i32 := r.Int(32, true)
	c := r.GetConst(i32)
	test.AssertEqual(t, r.IsConst(c), true)
	test.AssertEqual(t, r.GetConstRemoved(c), i32)
	test.AssertEqual(t, r.GetConst(r.GetConst(i32)), c)
}

func TestStructLifecycleRejectsMismatchedCompletion(t *testing.T) {
	r := newRegistry()
	store := intern.NewStore()
	name := store.Create("point")

	st := r.CreateIncompleteStruct(name)
	if r.HasSize(st) {
		t.Fatal("incomplete struct must report HasSize == false")
	}

	x := store.Create("x")
	y := store.Create("y")
	i32 := r.Int(32, true)

	ok := r.Complete(st, []types.Member{{Name: x, Type: i32}, {Name: y, Type: i32}})
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, r.HasSize(st), true)
	test.AssertEqual(t, r.AggregateSize(st), 8)

	// Re-completing with the same signature succeeds idempotently.
	ok = r.Complete(st, []types.Member{{Name: x, Type: i32}, {Name: y, Type: i32}})
	test.AssertEqual(t, ok, true)

	// Re-completing with a different signature fails.
	z := store.Create("z")
	ok = r.Complete(st, []types.Member{{Name: x, Type: i32}, {Name: z, Type: i32}})
	test.AssertEqual(t, ok, false)
}

func TestStructConstAndNonConstShareLayout(t *testing.T) {
	r := newRegistry()
	store := intern.NewStore()
	name := store.Create("point")
	st := r.CreateIncompleteStruct(name)
	x := store.Create("x")
	i32 := r.Int(32, true)
	r.Complete(st, []types.Member{{Name: x, Type: i32}})

	cst := r.GetConst(st)
	test.AssertEqual(t, r.HasSize(cst), true)
	test.AssertEqual(t, r.AggregateSize(cst), r.AggregateSize(st))
	test.AssertEqual(t, r.GetConstRemoved(cst), st)
}

func TestStructPadsMembersToAlignment(t *testing.T) {
	r := newRegistry()
	store := intern.NewStore()
	st := r.CreateIncompleteStruct(store.Create("packed"))
	i8 := r.Int(8, true)
	i32 := r.Int(32, true)
	r.Complete(st, []types.Member{
		{Name: store.Create("a"), Type: i8},
		{Name: store.Create("b"), Type: i32},
	})
	test.AssertEqual(t, r.AggregateOffset(st, 0), 0)
	test.AssertEqual(t, r.AggregateOffset(st, 1), 4)
	test.AssertEqual(t, r.AggregateSize(st), 8)
}

func TestConvertArithmeticWidening(t *testing.T) {
	r := newRegistry()
	i8 := r.Int(8, true)
	i32 := r.Int(32, true)
	f64 := r.Float(types.Double)
	test.AssertEqual(t, r.Convert(i8, i32), true)
	test.AssertEqual(t, r.Convert(i32, f64), true)
	test.AssertEqual(t, r.Convert(f64, i32), true)
}

func TestConvertPointerConstGainOnly(t *testing.T) {
	r := newRegistry()
	i32 := r.Int(32, true)
	mutPtr := r.Pointer(i32)
	constPtr := r.Pointer(r.GetConst(i32))

	test.AssertEqual(t, r.Convert(mutPtr, constPtr), true)
	test.AssertEqual(t, r.Convert(constPtr, mutPtr), false)
	test.AssertEqual(t, r.ExplicitCast(constPtr, mutPtr), true)
}

func TestConvertNullptrToAnyPointer(t *testing.T) {
	r := newRegistry()
	i32 := r.Int(32, true)
	test.AssertEqual(t, r.Convert(r.Nullptr(), r.Pointer(i32)), true)
	test.AssertEqual(t, r.Convert(r.Pointer(i32), r.Nullptr()), false)
}

func TestArrayDecaysToPointer(t *testing.T) {
	r := newRegistry()
	i32 := r.Int(32, true)
	arr := r.Array(i32, 4)
	test.AssertEqual(t, r.Decay(arr), r.Pointer(i32))
	test.AssertEqual(t, r.Convert(arr, r.Pointer(i32)), true)
}

func TestUnboundArrayHasNoSize(t *testing.T) {
	r := newRegistry()
	i32 := r.Int(32, true)
	unbound := r.Array(i32, -1)
	test.AssertEqual(t, r.HasSize(unbound), false)
}

func TestCommonArithmeticPicksWiderRank(t *testing.T) {
	r := newRegistry()
	i32 := r.Int(32, true)
	f32 := r.Float(types.Single)
	test.AssertEqual(t, r.Common(i32, f32), f32)
}

func TestCommonPointersRequireMatchingPointeeModuloConst(t *testing.T) {
	r := newRegistry()
	i32 := r.Int(32, true)
	i8 := r.Int(8, true)
	p1 := r.Pointer(i32)
	p2 := r.Pointer(i32)
	test.AssertEqual(t, r.Common(p1, p2), p1)

	incompatible := r.Common(p1, r.Pointer(i8))
	test.AssertEqual(t, incompatible.Invalid(), true)
}

func TestExplicitCastAllowsPointerIntegerReinterpretation(t *testing.T) {
	r := newRegistry()
	i64 := r.Int(64, false)
	ptr := r.Pointer(r.Int(8, true))
	test.AssertEqual(t, r.Convert(ptr, i64), false)
	test.AssertEqual(t, r.ExplicitCast(ptr, i64), true)
	test.AssertEqual(t, r.ExplicitCast(i64, ptr), true)
}

func TestAliasResolvesForConversionAndSize(t *testing.T) {
	r := newRegistry()
	store := intern.NewStore()
	i32 := r.Int(32, true)
	alias := r.Alias(store.Create("int32_t"), i32)
	test.AssertEqual(t, r.ResolveAlias(alias), i32)
	test.AssertEqual(t, r.SizeOf(alias), 4)
	test.AssertEqual(t, r.Convert(alias, r.Int(64, true)), true)
}

func TestEnumUnderlyingTypeConvertsToAndFromInteger(t *testing.T) {
	r := newRegistry()
	store := intern.NewStore()
	i32 := r.Int(32, true)
	e := r.CreateIncompleteEnum(store.Create("Color"), i32)
	r.CompleteEnum(e)
	test.AssertEqual(t, r.Convert(e, i32), true)
	test.AssertEqual(t, r.Convert(i32, e), true)
	test.AssertEqual(t, r.Common(e, i32), i32)
}

func TestStringRendersDeclaredNames(t *testing.T) {
	r := newRegistry()
	store := intern.NewStore()
	st := r.CreateIncompleteStruct(store.Create("Point"))
	test.AssertEqual(t, r.String(st), "Point")
	test.AssertEqual(t, r.String(r.GetConst(st)), "const Point")
	test.AssertEqual(t, r.String(r.Pointer(r.Int(32, true))), "i32*")
}

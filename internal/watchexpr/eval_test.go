package watchexpr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avodev/dbgcore/internal/watchexpr"
	"github.com/avodev/dbgcore/internal/watchexpr/watchexprtest"
)

func TestArithmeticPrecedence(t *testing.T) {
	e := watchexpr.NewEvaluator(watchexprtest.New())
	v, mod, err := e.Eval("2 + 3 * 4")
	require.NoError(t, err)
	assert.Equal(t, "", mod)
	assert.Equal(t, int64(14), v.I)
}

func TestBitwiseAndShift(t *testing.T) {
	e := watchexpr.NewEvaluator(watchexprtest.New())
	v, _, err := e.Eval("(1 << 4) | 0x3")
	require.NoError(t, err)
	assert.Equal(t, int64(0x13), v.I)
}

func TestHexAndBinaryLiterals(t *testing.T) {
	e := watchexpr.NewEvaluator(watchexprtest.New())
	v, _, err := e.Eval("0xff + 0b1010")
	require.NoError(t, err)
	assert.Equal(t, int64(0xff+0b1010), v.I)
}

func TestComparisonAndLogical(t *testing.T) {
	e := watchexpr.NewEvaluator(watchexprtest.New())
	v, _, err := e.Eval("1 < 2 && 3 >= 3")
	require.NoError(t, err)
	assert.True(t, v.Bool)
}

func TestLogicalOrShortCircuits(t *testing.T) {
	ctx := watchexprtest.New()
	e := watchexpr.NewEvaluator(ctx)
	// unknownvar would error if resolved; short-circuit must skip it.
	v, _, err := e.Eval("1 == 1 || unknownvar == 1")
	require.NoError(t, err)
	assert.True(t, v.Bool)
}

func TestConditionTruthyMatchesScenarioSix(t *testing.T) {
	ctx := watchexprtest.New()
	ctx.Variables["x"] = watchexpr.IntVal(2)
	e := watchexpr.NewEvaluator(ctx)

	hit, err := e.EvalCondition("x == 1")
	require.NoError(t, err)
	assert.False(t, hit, "x==2, condition x==1 must not be a hit")

	hit, err = e.EvalCondition("x == 2")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestFieldAccessAutoDerefsPointer(t *testing.T) {
	ctx := watchexprtest.New()
	inner := watchexpr.Value{
		Kind:       watchexpr.KindStruct,
		TypeName:   "Point",
		Fields:     map[string]watchexpr.Value{"x": watchexpr.IntVal(7), "y": watchexpr.IntVal(9)},
		FieldOrder: []string{"x", "y"},
	}
	ptr := watchexpr.PointerVal(0x1000, 1, false)
	ctx.Pointees[0x1000] = inner
	ctx.Variables["p"] = ptr

	e := watchexpr.NewEvaluator(ctx)
	v, _, err := e.Eval("p.x")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.I)
}

func TestIndexAccess(t *testing.T) {
	ctx := watchexprtest.New()
	ctx.Variables["arr"] = watchexpr.Value{
		Kind:  watchexpr.KindArray,
		Elems: []watchexpr.Value{watchexpr.IntVal(10), watchexpr.IntVal(20), watchexpr.IntVal(30)},
	}
	e := watchexpr.NewEvaluator(ctx)
	v, _, err := e.Eval("arr[1]")
	require.NoError(t, err)
	assert.Equal(t, int64(20), v.I)
}

func TestArrayConstruction(t *testing.T) {
	ctx := watchexprtest.New()
	ctx.Pointees[0x2000] = watchexpr.IntVal(1)
	ctx.Pointees[0x2001] = watchexpr.IntVal(2)
	ctx.Pointees[0x2002] = watchexpr.IntVal(3)
	ctx.Variables["p"] = watchexpr.PointerVal(0x2000, 1, false)

	e := watchexpr.NewEvaluator(ctx)
	v, _, err := e.Eval("p.[3]")
	require.NoError(t, err)
	require.Equal(t, watchexpr.KindArray, v.Kind)
	require.Len(t, v.Elems, 3)
	assert.Equal(t, int64(2), v.Elems[1].I)
}

func TestRangeExpression(t *testing.T) {
	e := watchexpr.NewEvaluator(watchexprtest.New())
	v, _, err := e.Eval("1..5")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.RangeLo)
	assert.Equal(t, int64(5), v.RangeHi)
}

func TestCastChangesTypeName(t *testing.T) {
	ctx := watchexprtest.New()
	ctx.Variables["x"] = watchexpr.IntVal(65)
	e := watchexpr.NewEvaluator(ctx)
	v, _, err := e.Eval("x as char")
	require.NoError(t, err)
	assert.Equal(t, "char", v.TypeName)
}

func TestTypeIntrospection(t *testing.T) {
	ctx := watchexprtest.New()
	ctx.Types["Point"] = watchexpr.Value{Kind: watchexpr.KindType, Str: "Point"}
	ctx.Variables["p"] = watchexpr.Value{Kind: watchexpr.KindStruct, TypeName: "Point"}
	e := watchexpr.NewEvaluator(ctx)

	v, _, err := e.Eval("type(Point)")
	require.NoError(t, err)
	assert.Equal(t, "Point", v.Str)

	v, _, err = e.Eval("typeof(p)")
	require.NoError(t, err)
	assert.Equal(t, "Point", v.Str)
}

func TestPointerArithmetic(t *testing.T) {
	ctx := watchexprtest.New()
	ctx.Variables["p"] = watchexpr.PointerVal(0x1000, 4, false)
	e := watchexpr.NewEvaluator(ctx)

	v, _, err := e.Eval("p + 2")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1008), v.PtrAddr)
}

func TestScriptVariablesPersistAcrossEvaluations(t *testing.T) {
	ctx := watchexprtest.New()
	e := watchexpr.NewEvaluator(ctx)
	e.Vars["count"] = watchexpr.IntVal(41)

	v, _, err := e.Eval("$count + 1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.I)
}

func TestUnknownScriptVariableErrors(t *testing.T) {
	e := watchexpr.NewEvaluator(watchexprtest.New())
	_, _, err := e.Eval("$nope")
	require.Error(t, err)
}

func TestFormatHexAndBin(t *testing.T) {
	assert.Equal(t, "0xff", watchexpr.Format(watchexpr.UintVal(255), "hex"))
	assert.Equal(t, "00001111", watchexpr.Format(watchexpr.UintVal(15), "bin"))
}

func TestFormatPrettyUnwrapsSingleFieldStruct(t *testing.T) {
	v := watchexpr.Value{
		Kind:       watchexpr.KindStruct,
		Fields:     map[string]watchexpr.Value{"inner": watchexpr.IntVal(9)},
		FieldOrder: []string{"inner"},
	}
	assert.Equal(t, "9", watchexpr.Format(v, ""))
}

func TestFormatHeuristicStringFromCharArray(t *testing.T) {
	v := watchexpr.Value{
		Kind:         watchexpr.KindArray,
		ElemCharLike: true,
		KnownLen:     true,
		Elems: []watchexpr.Value{
			watchexpr.IntVal('h'), watchexpr.IntVal('i'),
		},
	}
	assert.Equal(t, `"hi"`, watchexpr.Format(v, ""))
}

func TestDivisionByZeroErrors(t *testing.T) {
	e := watchexpr.NewEvaluator(watchexprtest.New())
	_, _, err := e.Eval("1 / 0")
	require.Error(t, err)
}

func TestFormatModifierParsedFromTrailingComma(t *testing.T) {
	e := watchexpr.NewEvaluator(watchexprtest.New())
	v, mod, err := e.Eval("255,hex")
	require.NoError(t, err)
	assert.Equal(t, "hex", mod)
	assert.Equal(t, "0xff", watchexpr.Format(v, mod))
}

package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/scriptvm/binder"
	"github.com/aledsdavies/scriptvm/compile"
	"github.com/aledsdavies/scriptvm/intern"
	"github.com/aledsdavies/scriptvm/memory"
	"github.com/aledsdavies/scriptvm/optimize"
	"github.com/aledsdavies/scriptvm/parser"
	"github.com/aledsdavies/scriptvm/value"
)

// run parses, optimizes, compiles, validates, and evaluates src against mem
// and tbl — the full pipeline, end to end.
func run(t *testing.T, src string, mem *memory.Memory, tbl *binder.Table) Result {
	t.Helper()
	interner := intern.New()
	d, root, diags, _ := parser.Read(src, interner, tbl)
	require.False(t, diags.HasErrors(), "unexpected diagnostics: %v", diags.All())

	root = optimize.Optimize(d, root)

	var hash uint64
	if tbl != nil {
		hash = tbl.Hash()
	}
	p, err := compile.Compile(d, root, hash)
	require.NoError(t, err)
	require.NoError(t, Validate(p, tbl))

	m := &VM{Binder: tbl, Mem: mem}
	return m.Eval(p)
}

func TestArithmeticPrecedence(t *testing.T) {
	res := run(t, "1 + 2 * 3;", memory.New(), nil)
	require.Nil(t, res.Panic)
	assert.Equal(t, 7.0, res.Val.Num())
}

func TestWhileLoopAccumulates(t *testing.T) {
	res := run(t, "var i = 0; while (i < 10) { i += 1; }; i;", memory.New(), nil)
	require.Nil(t, res.Panic)
	assert.Equal(t, 10.0, res.Val.Num())
}

func TestMemoryCompoundAssign(t *testing.T) {
	mem := memory.New()
	interner := intern.New()
	hp := interner.Intern("hp")

	d, root, diags, _ := parser.Read("$hp = 100; $hp -= 25; $hp;", interner, nil)
	require.False(t, diags.HasErrors())
	p, err := compile.Compile(d, optimize.Optimize(d, root), 0)
	require.NoError(t, err)

	res := Eval(p, mem, nil)
	require.Nil(t, res.Panic)
	assert.Equal(t, 75.0, res.Val.Num())
	assert.Equal(t, 75.0, mem.Load(hp).Num())
}

func TestShortCircuitValueSemantics(t *testing.T) {
	res := run(t, "true && (false || 1);", memory.New(), nil)
	require.Nil(t, res.Panic)
	require.Equal(t, value.TypeBool, res.Val.Type())
	assert.True(t, res.Val.Bool())
}

func TestForLoopEarlyReturnStaysUnderOpBudget(t *testing.T) {
	src := "for (var i = 0;; i += 1) { if (i == 11) { return i; } };"
	interner := intern.New()
	d, root, diags, _ := parser.Read(src, interner, nil)
	require.False(t, diags.HasErrors())
	p, err := compile.Compile(d, optimize.Optimize(d, root), 0)
	require.NoError(t, err)

	m := &VM{Mem: memory.New(), OpCap: 200}
	res := m.Eval(p)
	require.Nil(t, res.Panic)
	assert.Equal(t, 11.0, res.Val.Num())
}

func TestExecutionCapStopsRunawayLoop(t *testing.T) {
	res := run(t, "while (true) { 1; };", memory.New(), nil)
	require.NotNil(t, res.Panic)
	assert.Equal(t, binder.ExecutionLimitExceeded, res.Panic.Kind)
	assert.True(t, res.Val.IsNull())
}

func TestAssertFailurePanicsWithSourceRange(t *testing.T) {
	res := run(t, "assert(false);", memory.New(), nil)
	require.NotNil(t, res.Panic)
	assert.Equal(t, binder.AssertionFailed, res.Panic.Kind)
	assert.NotEqual(t, uint32(0), res.Panic.Range.End)
}

func TestAssertSuccessYieldsNull(t *testing.T) {
	res := run(t, "assert(1 < 2);", memory.New(), nil)
	require.Nil(t, res.Panic)
	assert.True(t, res.Val.IsNull())
}

func TestCoalesceAssignStoresOnlyWhenAbsent(t *testing.T) {
	mem := memory.New()
	interner := intern.New()
	k := interner.Intern("spawn")
	mem.Store(k, value.NewNum(3))

	d, root, diags, _ := parser.Read("$spawn ??= 9; $spawn;", interner, nil)
	require.False(t, diags.HasErrors())
	p, err := compile.Compile(d, optimize.Optimize(d, root), 0)
	require.NoError(t, err)

	res := Eval(p, mem, nil)
	require.Nil(t, res.Panic)
	assert.Equal(t, 3.0, res.Val.Num())
}

func TestDynamicMemoryLoadRequiresStr(t *testing.T) {
	mem := memory.New()
	interner := intern.New()
	mem.Store(interner.Intern("target"), value.NewNum(42))

	d, root, diags, _ := parser.Read(`mem_load("target");`, interner, nil)
	require.False(t, diags.HasErrors())
	p, err := compile.Compile(d, optimize.Optimize(d, root), 0)
	require.NoError(t, err)

	res := Eval(p, mem, nil)
	require.Nil(t, res.Panic)
	assert.Equal(t, 42.0, res.Val.Num())

	// A non-Str key yields Null rather than panicking.
	res = run(t, "mem_load(7);", memory.New(), nil)
	require.Nil(t, res.Panic)
	assert.True(t, res.Val.IsNull())
}

func TestDynamicMemoryStoreWrites(t *testing.T) {
	mem := memory.New()
	interner := intern.New()
	k := interner.Intern("mark")

	d, root, diags, _ := parser.Read(`mem_store("mark", 5);`, interner, nil)
	require.False(t, diags.HasErrors())
	p, err := compile.Compile(d, optimize.Optimize(d, root), 0)
	require.NoError(t, err)

	res := Eval(p, mem, nil)
	require.Nil(t, res.Panic)
	assert.Equal(t, 5.0, mem.Load(k).Num())
}

func TestReadOnlyModeRejectsStores(t *testing.T) {
	interner := intern.New()
	d, root, diags, _ := parser.Read("$hp = 1;", interner, nil)
	require.False(t, diags.HasErrors())
	p, err := compile.Compile(d, root, 0)
	require.NoError(t, err)

	m := &VM{Mem: memory.New(), ReadOnly: true}
	res := m.Eval(p)
	require.NotNil(t, res.Panic)
	assert.Equal(t, binder.MissingCapability, res.Panic.Kind)
}

func TestExternCallAndPanicAttribution(t *testing.T) {
	tbl := binder.NewBuilder("natives").
		Declare("double", "", binder.Signature{
			Params:     []binder.ParamSpec{{Name: "x", Mask: binder.Bit(value.TypeNum)}},
			ReturnMask: binder.Bit(value.TypeNum),
		}, func(c *binder.Call) (value.Value, *binder.ScriptPanic) {
			return value.NewNum(c.Args[0].Num() * 2), nil
		}).
		Declare("explode", "", binder.Signature{ReturnMask: binder.Bit(value.TypeNull)},
			func(c *binder.Call) (value.Value, *binder.ScriptPanic) {
				return value.Null, binder.NewPanic(binder.QueryInvalid)
			}).
		Finalize()

	res := run(t, "double(21);", memory.New(), tbl)
	require.Nil(t, res.Panic)
	assert.Equal(t, 42.0, res.Val.Num())

	res = run(t, "explode();", memory.New(), tbl)
	require.NotNil(t, res.Panic)
	assert.Equal(t, binder.QueryInvalid, res.Panic.Kind)
	assert.NotEqual(t, uint32(0), res.Panic.Range.End)
}

func TestExternArgumentTypeMismatch(t *testing.T) {
	tbl := binder.NewBuilder("natives").
		Declare("double", "", binder.Signature{
			Params:     []binder.ParamSpec{{Name: "x", Mask: binder.Bit(value.TypeNum)}},
			ReturnMask: binder.Bit(value.TypeNum),
		}, func(c *binder.Call) (value.Value, *binder.ScriptPanic) {
			return value.NewNum(c.Args[0].Num() * 2), nil
		}).Finalize()

	res := run(t, "double(true);", memory.New(), tbl)
	require.NotNil(t, res.Panic)
	require.Equal(t, binder.ArgumentTypeMismatch, res.Panic.Kind)
	require.NotNil(t, res.Panic.ArgIndex)
	assert.Equal(t, 0, *res.Panic.ArgIndex)
	assert.Equal(t, value.TypeBool, *res.Panic.ActualType)
}

func TestBinderHashMismatchFailsExecution(t *testing.T) {
	tbl := binder.NewBuilder("natives").Finalize()
	d, root, diags, _ := parser.Read("1;", intern.New(), nil)
	require.False(t, diags.HasErrors())
	p, err := compile.Compile(d, root, tbl.Hash()+1)
	require.NoError(t, err)

	m := &VM{Binder: tbl, Mem: memory.New()}
	res := m.Eval(p)
	require.NotNil(t, res.Panic)
	assert.Equal(t, binder.ExecutionFailed, res.Panic.Kind)
}

func TestVectorPipeline(t *testing.T) {
	res := run(t, "magnitude(vec3(3, 4, 0));", memory.New(), nil)
	require.Nil(t, res.Panic)
	assert.InDelta(t, 5.0, res.Val.Num(), 1e-9)
}

func TestSelectPicksByTruthiness(t *testing.T) {
	res := run(t, "select($missing, 1, 2);", memory.New(), nil)
	require.Nil(t, res.Panic)
	assert.Equal(t, 2.0, res.Val.Num())
}

func TestColorChannelsRoundTrip(t *testing.T) {
	res := run(t, "color_a(color_rgba(1, 0.5, 0, 0.25));", memory.New(), nil)
	require.Nil(t, res.Panic)
	assert.InDelta(t, 0.25, res.Val.Num(), 1e-3)

	res = run(t, "color_r(color_hsv(0, 1, 1, 1));", memory.New(), nil)
	require.Nil(t, res.Panic)
	assert.InDelta(t, 1.0, res.Val.Num(), 1e-3)

	// Channel accessors on a non-color yield Null.
	res = run(t, "color_g(5);", memory.New(), nil)
	require.Nil(t, res.Panic)
	assert.True(t, res.Val.IsNull())
}

func TestColorForProducesStableColor(t *testing.T) {
	a := run(t, `color_for("goblin");`, memory.New(), nil)
	b := run(t, `color_for("goblin");`, memory.New(), nil)
	require.Nil(t, a.Panic)
	require.Nil(t, b.Panic)
	require.Equal(t, value.TypeColor, a.Val.Type())
	assert.True(t, value.Equal(a.Val, b.Val))
}

func TestRandomSphereIsUnitLength(t *testing.T) {
	interner := intern.New()
	d, root, diags, _ := parser.Read("magnitude(random_sphere());", interner, nil)
	require.False(t, diags.HasErrors())
	p, err := compile.Compile(d, root, 0)
	require.NoError(t, err)

	seq := []float64{0.3, 0.8}
	i := 0
	m := &VM{Mem: memory.New(), Rand: func() float64 { v := seq[i%len(seq)]; i++; return v }}
	res := m.Eval(p)
	require.Nil(t, res.Panic)
	assert.InDelta(t, 1.0, res.Val.Num(), 1e-6)
}

func TestRandomCircleXZStaysInGroundPlane(t *testing.T) {
	interner := intern.New()
	d, root, diags, _ := parser.Read("random_circle_xz();", interner, nil)
	require.False(t, diags.HasErrors())
	p, err := compile.Compile(d, root, 0)
	require.NoError(t, err)

	m := &VM{Mem: memory.New(), Rand: func() float64 { return 0.25 }}
	res := m.Eval(p)
	require.Nil(t, res.Panic)
	require.Equal(t, value.TypeVec3, res.Val.Type())
	x, y, z := res.Val.Vec3()
	assert.InDelta(t, 0.0, float64(y), 1e-6)
	assert.InDelta(t, 1.0, math.Sqrt(float64(x*x+z*z)), 1e-6)
}

func TestPerlin3IsDeterministic(t *testing.T) {
	a := run(t, "perlin3(vec3(0.5, 0.25, 0.75));", memory.New(), nil)
	b := run(t, "perlin3(vec3(0.5, 0.25, 0.75));", memory.New(), nil)
	require.Nil(t, a.Panic)
	require.Nil(t, b.Panic)
	assert.Equal(t, a.Val.Num(), b.Val.Num())
	assert.LessOrEqual(t, a.Val.Num(), 1.0)
	assert.GreaterOrEqual(t, a.Val.Num(), -1.0)
}

func TestRandomRangeRespectsBounds(t *testing.T) {
	interner := intern.New()
	d, root, diags, _ := parser.Read("random(5, 10);", interner, nil)
	require.False(t, diags.HasErrors())
	p, err := compile.Compile(d, root, 0)
	require.NoError(t, err)

	m := &VM{Mem: memory.New(), Rand: func() float64 { return 0.5 }}
	res := m.Eval(p)
	require.Nil(t, res.Panic)
	assert.Equal(t, 7.5, res.Val.Num())
}

func TestOptimizedAndUnoptimizedAgree(t *testing.T) {
	srcs := []string{
		"1 + 2 * 3;",
		"clamp(15, 0, 10);",
		"var i = 0; while (i < 3) { i += 1; }; i * 10;",
		"select(true, min(1, 2), max(3, 4));",
	}
	for _, src := range srcs {
		interner := intern.New()
		d, root, diags, _ := parser.Read(src, interner, nil)
		require.False(t, diags.HasErrors(), src)
		plain, err := compile.Compile(d, root, 0)
		require.NoError(t, err)
		opt, err := compile.Compile(d, optimize.Optimize(d, root), 0)
		require.NoError(t, err)

		a := Eval(plain, memory.New(), nil)
		b := Eval(opt, memory.New(), nil)
		require.Nil(t, a.Panic, src)
		require.Nil(t, b.Panic, src)
		assert.True(t, value.Equal(a.Val, b.Val), src)
	}
}

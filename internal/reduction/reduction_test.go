package reduction

import (
	"context"
	"testing"

	"github.com/benroywillis/Cyclebite-sub001/internal/basepointer"
	"github.com/benroywillis/Cyclebite-sub001/internal/category"
	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/dimension"
	"github.com/benroywillis/Cyclebite-sub001/internal/indexvar"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
	"github.com/benroywillis/Cyclebite-sub001/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func find(t *testing.T, idx *program.Index, kernels map[cycle.ID]cycle.Kernel) (*Set, *dimension.Set) {
	t.Helper()
	ctx := context.Background()
	cycles, err := cycle.Build(ctx, idx, kernels)
	require.NoError(t, err)
	tasks, err := cycle.GroupTasks(ctx, idx, cycles, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]
	cats, err := category.Categorize(ctx, idx, task, cycles)
	require.NoError(t, err)
	dims, err := dimension.Find(ctx, idx, task, cycles, cats)
	require.NoError(t, err)
	cfg := basepointer.DefaultConfig()
	bps, err := basepointer.Find(ctx, idx, task, cfg, basepointer.NewCallArgs(ctx, idx, cfg))
	require.NoError(t, err)
	forest, err := indexvar.Build(ctx, idx, task, cats, dims, bps)
	require.NoError(t, err)
	cols, err := indexvar.Collections(ctx, idx, task, cats, forest, bps)
	require.NoError(t, err)

	return Find(ctx, Input{
		Index:       idx,
		Task:        task,
		Cycles:      cycles,
		Categories:  cats,
		Dimensions:  dims,
		Forest:      forest,
		Collections: cols,
	}), dims
}

func dimOf(t *testing.T, dims *dimension.Set, node program.ValueID) dimension.ID {
	t.Helper()
	d, ok := dims.ByNode(node)
	require.True(t, ok)
	return d.ID
}

func TestFind_MergeCycle(t *testing.T) {
	k := testutil.GEMV(t)
	set, dims := find(t, k.Index, k.Kernels)
	require.Equal(t, 1, set.Len())

	r := set.Get(1)
	assert.Equal(t, FormMerge, r.Form)
	assert.Equal(t, k.V(t, "acc.next"), r.Node)
	assert.Equal(t, program.OpFAdd, r.Op)
	assert.Equal(t, k.V(t, "acc"), r.Accumulator)
	assert.Equal(t, k.V(t, "y.store"), r.Store)
	assert.Equal(t, k.V(t, "y.gep"), r.Address)
	assert.Equal(t, cycle.ID(2), r.Cycle, "paired with the innermost cycle updating the accumulator")
	assert.Equal(t, dimOf(t, dims, k.V(t, "j")), r.Dimension)

	got, ok := set.ByNode(k.V(t, "acc.next"))
	require.True(t, ok)
	assert.Same(t, r, got)
}

func TestFind_Unoptimized(t *testing.T) {
	k := testutil.SumUnoptimized(t)
	set, dims := find(t, k.Index, k.Kernels)
	require.Equal(t, 1, set.Len())

	r := set.Get(1)
	assert.Equal(t, FormMemory, r.Form)
	assert.Equal(t, k.V(t, "sum"), r.Node)
	assert.Equal(t, k.V(t, "acc"), r.Accumulator)
	assert.Equal(t, k.V(t, "out.store"), r.Store)
	assert.Equal(t, dimOf(t, dims, k.V(t, "i.slot")), r.Dimension)
}

func TestFind_FusedMultiplyAdd(t *testing.T) {
	b := program.NewBuilder()
	fn := b.Function("dot", program.Ptr, program.Ptr, program.Ptr)
	x, y, out := b.Arg(fn, 0), b.Arg(fn, 1), b.Arg(fn, 2)
	entry, loop, exit := b.Block(fn), b.Block(fn), b.Block(fn)
	b.Br(entry, loop)
	i := b.Phi(loop, program.I64, program.Incoming{Value: b.ConstInt(program.I64, 0), Block: entry})
	acc := b.Phi(loop, program.Float, program.Incoming{Value: b.ConstFloat(program.Float, 0), Block: entry})
	lx := b.Load(loop, program.Float, b.GEP(loop, program.Float, x, i))
	ly := b.Load(loop, program.Float, b.GEP(loop, program.Float, y, i))
	fma := b.CallNamed(loop, program.Float, "llvm.fmuladd.f32", lx, ly, acc)
	b.AddIncoming(acc, fma, loop)
	st := b.Store(loop, fma, out)
	next := b.Binary(loop, program.OpAdd, i, b.ConstInt(program.I64, 1))
	b.AddIncoming(i, next, loop)
	b.CondBr(loop, b.Cmp(loop, program.PredSLT, next, b.ConstInt(program.I64, 64)), loop, exit)
	b.Ret(exit)
	idx, err := b.Build()
	require.NoError(t, err)

	set, dims := find(t, idx, map[cycle.ID]cycle.Kernel{1: {Blocks: []program.BlockID{loop}}})
	require.Equal(t, 1, set.Len())
	r := set.Get(1)
	assert.Equal(t, FormFusedMultiplyAdd, r.Form)
	assert.Equal(t, fma, r.Node)
	assert.Equal(t, acc, r.Accumulator)
	assert.Equal(t, st, r.Store)
	assert.Equal(t, dimOf(t, dims, i), r.Dimension)
}

func TestFind_ElementwiseIsNotAReduction(t *testing.T) {
	for name, build := range map[string]func(*testing.T) *testutil.Kernel{
		"zip":         testutil.MallocWrapper,
		"elementwise": testutil.ElementwiseAdd,
		"stencil":     testutil.Stencil,
		"scale2d":     testutil.Scale2D,
	} {
		t.Run(name, func(t *testing.T) {
			k := build(t)
			set, _ := find(t, k.Index, k.Kernels)
			assert.Zero(t, set.Len())
			assert.Nil(t, set.Get(1))
		})
	}
}

func TestFind_AdvancingPointerIsNotAReduction(t *testing.T) {
	// for (i = 0, p = a; i < 10; i++, p++) *p = *p * 2;
	b := program.NewBuilder()
	fn := b.Function("scale", program.Ptr)
	a := b.Arg(fn, 0)
	entry, loop, exit := b.Block(fn), b.Block(fn), b.Block(fn)
	b.Br(entry, loop)
	i := b.Phi(loop, program.I64, program.Incoming{Value: b.ConstInt(program.I64, 0), Block: entry})
	p := b.Phi(loop, program.Ptr, program.Incoming{Value: a, Block: entry})
	prod := b.Binary(loop, program.OpFMul, b.Load(loop, program.Float, p), b.ConstFloat(program.Float, 2))
	b.Store(loop, prod, p)
	b.AddIncoming(p, b.GEP(loop, program.Float, p, b.ConstInt(program.I64, 1)), loop)
	next := b.Binary(loop, program.OpAdd, i, b.ConstInt(program.I64, 1))
	b.AddIncoming(i, next, loop)
	b.CondBr(loop, b.Cmp(loop, program.PredSLT, next, b.ConstInt(program.I64, 10)), loop, exit)
	b.Ret(exit)
	idx, err := b.Build()
	require.NoError(t, err)

	set, _ := find(t, idx, map[cycle.ID]cycle.Kernel{1: {Blocks: []program.BlockID{loop}}})
	assert.Zero(t, set.Len())
}

func TestSameAddress(t *testing.T) {
	b := program.NewBuilder()
	fn := b.Function("f", program.Ptr, program.I64)
	bb := b.Block(fn)
	p, n := b.Arg(fn, 0), b.Arg(fn, 1)
	slot := b.Alloca(bb, program.Ptr)
	l1, l2 := b.Load(bb, program.Ptr, slot), b.Load(bb, program.Ptr, slot)
	g1 := b.GEP(bb, program.Float, l1, b.ConstInt(program.I64, 2))
	g2 := b.GEP(bb, program.Float, l2, b.ConstInt(program.I64, 2))
	g3 := b.GEP(bb, program.Float, l2, b.ConstInt(program.I64, 3))
	g4 := b.GEP(bb, program.Float, p, n)
	g5 := b.GEP(bb, program.Float, p, n)
	cast := b.Cast(bb, program.OpBitCast, program.Ptr, g4)
	b.Ret(bb)
	idx, err := b.Build()
	require.NoError(t, err)

	for _, tc := range []struct {
		name string
		a, b program.ValueID
		want bool
	}{
		{"identical", p, p, true},
		{"reloaded slot", l1, l2, true},
		{"same constant index", g1, g2, true},
		{"different constant index", g1, g3, false},
		{"same variable index", g4, g5, true},
		{"through cast", cast, g5, true},
		{"different kinds", l1, g1, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sameAddress(idx, tc.a, tc.b, 0))
		})
	}
}

func TestForm_String(t *testing.T) {
	assert.Equal(t, "merge", FormMerge.String())
	assert.Equal(t, "fmuladd", FormFusedMultiplyAdd.String())
	assert.Equal(t, "memory", FormMemory.String())
	assert.Equal(t, "unknown", Form(42).String())
}

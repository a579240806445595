package symbol

import (
	"context"
	"testing"

	"github.com/benroywillis/Cyclebite-sub001/internal/basepointer"
	"github.com/benroywillis/Cyclebite-sub001/internal/category"
	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/dimension"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/indexvar"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
	"github.com/benroywillis/Cyclebite-sub001/internal/reduction"
	"github.com/benroywillis/Cyclebite-sub001/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func synthesize(t *testing.T, idx *program.Index, kernels map[cycle.ID]cycle.Kernel) (*Table, error) {
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
	reds := reduction.Find(ctx, reduction.Input{
		Index: idx, Task: task, Cycles: cycles, Categories: cats,
		Dimensions: dims, Forest: forest, Collections: cols,
	})
	return Build(ctx, Input{
		Index:        idx,
		Task:         task,
		Categories:   cats,
		Dimensions:   dims,
		BasePointers: bps,
		Config:       cfg,
		Forest:       forest,
		Collections:  cols,
		Reductions:   reds,
	})
}

func TestBuild_StoredValueIsRoot(t *testing.T) {
	k := testutil.ElementwiseAdd(t)
	tab, err := synthesize(t, k.Index, k.Kernels)
	require.NoError(t, err)

	root, ok := tab.Root.(*OperatorExpression)
	require.True(t, ok, "root is a %T", tab.Root)
	assert.Equal(t, k.V(t, "sum"), root.Node)
	assert.Equal(t, []program.Op{program.OpFAdd}, root.Ops)
	require.NotNil(t, root.Output)
	assert.Equal(t, []program.ValueID{k.V(t, "out.store")}, root.Output.Source.Stores)

	require.Len(t, root.Operands, 2)
	for i, load := range []string{"a.load", "b.load"} {
		c, ok := root.Operands[i].(*Collection)
		require.True(t, ok)
		assert.Equal(t, []program.ValueID{k.V(t, load)}, c.Source.Loads)
		got, ok := tab.ByValue(k.V(t, load))
		require.True(t, ok)
		assert.Same(t, c, got)
	}
	assert.Len(t, tab.Collections(), 3)
	assert.Equal(t, "arg2[i] = (arg0[i] + arg1[i])", Dump(tab))
}

func TestBuild_Dumps(t *testing.T) {
	for _, tc := range []struct {
		name  string
		build func(*testing.T) *testutil.Kernel
		want  string
	}{
		{"scale2d", testutil.Scale2D, "B[i][j] = (A[i][j] * 2)"},
		{"gemv", testutil.GEMV, "arg1[i] = reduce+(A[i][j] * arg0[j])"},
		{"gemm", testutil.GEMM, "C[i][j] = reduce+(A[i][k] * B[k][j])"},
		{"sum", testutil.SumUnoptimized, "arg1 = reduce+(arg0[i])"},
		{"stencil", testutil.Stencil, "arg1[i] = ((arg0[i-1] + arg0[i]) + arg0[i+1])"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			k := tc.build(t)
			tab, err := synthesize(t, k.Index, k.Kernels)
			require.NoError(t, err)
			assert.Equal(t, tc.want, Dump(tab))
		})
	}
}

func TestBuild_ReductionExcludesAccumulator(t *testing.T) {
	k := testutil.GEMV(t)
	tab, err := synthesize(t, k.Index, k.Kernels)
	require.NoError(t, err)

	r, ok := tab.Root.(*Reduction)
	require.True(t, ok, "root is a %T", tab.Root)
	assert.Equal(t, KindReduction, r.Kind())
	assert.Equal(t, k.V(t, "acc.next"), r.Variable.Node)
	require.Len(t, r.Operands, 1)
	prod, ok := r.Operands[0].(*OperatorExpression)
	require.True(t, ok)
	assert.Equal(t, k.V(t, "prod"), prod.Node)
	_, seen := tab.ByValue(k.V(t, "acc"))
	assert.False(t, seen, "the accumulator has no symbol")
}

// branchy stores a value merged from two arms of a condition inside the loop:
//
//	for (i...) { t = a[i] > 0 ? a[i] * 2 : a[i] + 1; out[i] = t + a[i]; }
func branchy(t *testing.T, profile bool) (*program.Index, map[cycle.ID]cycle.Kernel, program.ValueID) {
	t.Helper()
	b := program.NewBuilder()
	fn := b.Function("branchy", program.Ptr, program.Ptr)
	a, out := b.Arg(fn, 0), b.Arg(fn, 1)
	entry, head, yes, no, merge, exit := b.Block(fn), b.Block(fn), b.Block(fn), b.Block(fn), b.Block(fn), b.Block(fn)
	b.Br(entry, head)
	i := b.Phi(head, program.I64, program.Incoming{Value: b.ConstInt(program.I64, 0), Block: entry})
	l := b.Load(head, program.Float, b.GEP(head, program.Float, a, i))
	b.CondBr(head, b.Cmp(head, program.PredOGT, l, b.ConstFloat(program.Float, 0)), yes, no)
	x1 := b.Binary(yes, program.OpFMul, l, b.ConstFloat(program.Float, 2))
	b.Br(yes, merge)
	x2 := b.Binary(no, program.OpFAdd, l, b.ConstFloat(program.Float, 1))
	b.Br(no, merge)
	p := b.Phi(merge, program.Float, program.Incoming{Value: x1, Block: yes}, program.Incoming{Value: x2, Block: no})
	s := b.Binary(merge, program.OpFAdd, p, l)
	b.Store(merge, s, b.GEP(merge, program.Float, out, i))
	next := b.Binary(merge, program.OpAdd, i, b.ConstInt(program.I64, 1))
	b.AddIncoming(i, next, merge)
	b.CondBr(merge, b.Cmp(merge, program.PredSLT, next, b.ConstInt(program.I64, 16)), head, exit)
	b.Ret(exit)
	if profile {
		b.LiveEdge(entry, head, 1)
		b.LiveEdge(head, yes, 16)
		b.LiveEdge(yes, merge, 16)
		b.LiveEdge(merge, head, 15)
		b.LiveEdge(merge, exit, 1)
	}
	idx, err := b.Build()
	require.NoError(t, err)
	return idx, map[cycle.ID]cycle.Kernel{1: {Blocks: []program.BlockID{head, yes, no, merge}}}, x1
}

func TestBuild_Predication(t *testing.T) {
	idx, kernels, _ := branchy(t, false)
	_, err := synthesize(t, idx, kernels)
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrPredication)
	assert.False(t, fault.IsRunFatal(err))
}

func TestBuild_SingleLiveEdge(t *testing.T) {
	idx, kernels, x1 := branchy(t, true)
	tab, err := synthesize(t, idx, kernels)
	require.NoError(t, err)

	root, ok := tab.Root.(*OperatorExpression)
	require.True(t, ok)
	arm, ok := root.Operands[0].(*OperatorExpression)
	require.True(t, ok, "the merge value resolves to its only live arm")
	assert.Equal(t, x1, arm.Node)
	assert.Nil(t, arm.Output)
}

func TestBuild_SmallConstantGlobal(t *testing.T) {
	b := program.NewBuilder()
	scale := b.GlobalInit("scale", program.Float, b.ConstFloat(program.Float, 3))
	fn := b.Function("scale", program.Ptr, program.Ptr)
	a, out := b.Arg(fn, 0), b.Arg(fn, 1)
	entry, loop, exit := b.Block(fn), b.Block(fn), b.Block(fn)
	b.Br(entry, loop)
	i := b.Phi(loop, program.I64, program.Incoming{Value: b.ConstInt(program.I64, 0), Block: entry})
	la := b.Load(loop, program.Float, b.GEP(loop, program.Float, a, i))
	m := b.Binary(loop, program.OpFMul, la, b.Load(loop, program.Float, scale))
	b.Store(loop, m, b.GEP(loop, program.Float, out, i))
	next := b.Binary(loop, program.OpAdd, i, b.ConstInt(program.I64, 1))
	b.AddIncoming(i, next, loop)
	b.CondBr(loop, b.Cmp(loop, program.PredSLT, next, b.ConstInt(program.I64, 8)), loop, exit)
	b.Ret(exit)
	idx, err := b.Build()
	require.NoError(t, err)

	tab, err := synthesize(t, idx, map[cycle.ID]cycle.Kernel{1: {Blocks: []program.BlockID{loop}}})
	require.NoError(t, err)
	assert.Equal(t, "arg1[i] = (arg0[i] * 3)", Dump(tab))
	c, ok := tab.Root.Base().Operands[1].(*Constant)
	require.True(t, ok)
	f, ok := c.Float(0)
	require.True(t, ok)
	assert.Equal(t, 3.0, f)
}

func TestBuild_OneExpressionPerTask(t *testing.T) {
	b := program.NewBuilder()
	fn := b.Function("two", program.Ptr, program.Ptr, program.Ptr)
	a, out, out2 := b.Arg(fn, 0), b.Arg(fn, 1), b.Arg(fn, 2)
	entry, loop, exit := b.Block(fn), b.Block(fn), b.Block(fn)
	b.Br(entry, loop)
	i := b.Phi(loop, program.I64, program.Incoming{Value: b.ConstInt(program.I64, 0), Block: entry})
	la := b.Load(loop, program.Float, b.GEP(loop, program.Float, a, i))
	b.Store(loop, b.Binary(loop, program.OpFAdd, la, la), b.GEP(loop, program.Float, out, i))
	b.Store(loop, b.Binary(loop, program.OpFMul, la, la), b.GEP(loop, program.Float, out2, i))
	next := b.Binary(loop, program.OpAdd, i, b.ConstInt(program.I64, 1))
	b.AddIncoming(i, next, loop)
	b.CondBr(loop, b.Cmp(loop, program.PredSLT, next, b.ConstInt(program.I64, 8)), loop, exit)
	b.Ret(exit)
	idx, err := b.Build()
	require.NoError(t, err)

	_, err = synthesize(t, idx, map[cycle.ID]cycle.Kernel{1: {Blocks: []program.BlockID{loop}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrUnsupported)
	assert.Contains(t, err.Error(), "2 expressions")
}

func TestDecodeConstant(t *testing.T) {
	b := program.NewBuilder()
	row := program.ArrayOf(program.I32, 2)
	r0 := b.ConstAggregate(row, b.ConstInt(program.I32, 1), b.ConstInt(program.I32, -2))
	r1 := b.ConstAggregate(row, b.ConstInt(program.I32, 3), b.ConstInt(program.I32, 4))
	matrix := b.ConstAggregate(program.ArrayOf(row, 2), r0, r1)
	vec := b.ConstAggregate(program.VectorOf(program.Double, 2), b.ConstFloat(program.Double, 0.5), b.ConstFloat(program.Double, -1))
	small := b.ConstInt(program.I8, -1)
	mixed := b.ConstAggregate(program.ArrayOf(program.I32, 2), b.ConstInt(program.I32, 1), b.ConstInt(program.I64, 2))
	short := b.ConstAggregate(program.ArrayOf(program.I32, 3), b.ConstInt(program.I32, 1))
	idx, err := b.Build()
	require.NoError(t, err)

	c, err := decodeConstant(idx, matrix)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0, 0xfe, 0xff, 0xff, 0xff, 3, 0, 0, 0, 4, 0, 0, 0}, c.Data)
	assert.Equal(t, 4, c.Len())
	n, ok := c.Int(1)
	require.True(t, ok)
	assert.Equal(t, int64(-2), n)
	want := cty.ListVal([]cty.Value{
		cty.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(-2)}),
		cty.ListVal([]cty.Value{cty.NumberIntVal(3), cty.NumberIntVal(4)}),
	})
	assert.True(t, want.RawEquals(c.Value), "got %#v", c.Value)
	assert.Equal(t, "{{1, -2}, {3, 4}}", c.String())

	c, err = decodeConstant(idx, vec)
	require.NoError(t, err)
	assert.Len(t, c.Data, 16)
	f, ok := c.Float(1)
	require.True(t, ok)
	assert.Equal(t, -1.0, f)
	_, ok = c.Int(0)
	assert.False(t, ok)

	c, err = decodeConstant(idx, small)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff}, c.Data)
	n, _ = c.Int(0)
	assert.Equal(t, int64(-1), n)

	_, err = decodeConstant(idx, mixed)
	assert.ErrorContains(t, err, "mixed element types")
	_, err = decodeConstant(idx, short)
	assert.ErrorContains(t, err, "has 1 elements")
	_, err = decodeConstant(idx, program.NoValue)
	assert.Error(t, err)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "collection", KindCollection.String())
	assert.Equal(t, "reduction", KindReduction.String())
	assert.Equal(t, "unknown", Kind(-1).String())
}

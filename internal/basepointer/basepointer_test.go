package basepointer

import (
	"context"
	"testing"

	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
	"github.com/benroywillis/Cyclebite-sub001/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func find(t *testing.T, idx *program.Index, kernels map[cycle.ID]cycle.Kernel, cfg Config) (*Set, error) {
	t.Helper()
	ctx := context.Background()
	forest, err := cycle.Build(ctx, idx, kernels)
	require.NoError(t, err)
	tasks, err := cycle.GroupTasks(ctx, idx, forest, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	return Find(ctx, idx, tasks[0], cfg, NewCallArgs(ctx, idx, cfg))
}

func nodes(set *Set) []program.ValueID {
	var out []program.ValueID
	for _, bp := range set.All() {
		out = append(out, bp.Node)
	}
	return out
}

func TestFind_Arguments(t *testing.T) {
	k := testutil.ElementwiseAdd(t)
	set, err := find(t, k.Index, k.Kernels, DefaultConfig())
	require.NoError(t, err)

	assert.ElementsMatch(t, []program.ValueID{k.V(t, "a"), k.V(t, "b"), k.V(t, "out")}, nodes(set))
	for _, bp := range set.All() {
		assert.Equal(t, KindArgument, bp.Kind)
	}
	a, ok := set.ByNode(k.V(t, "a"))
	require.True(t, ok)
	assert.Equal(t, []ID{a.ID}, set.Resolve(k.V(t, "a.gep")))
}

func TestFind_Globals(t *testing.T) {
	k := testutil.Scale2D(t)
	set, err := find(t, k.Index, k.Kernels, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, set.All(), 2)
	A, ok := set.ByNode(k.V(t, "A"))
	require.True(t, ok)
	assert.Equal(t, KindGlobal, A.Kind)
	assert.Equal(t, int64(800), A.Size)
}

func TestFind_ContainersAreLookedThrough(t *testing.T) {
	k := testutil.SumUnoptimized(t)
	set, err := find(t, k.Index, k.Kernels, DefaultConfig())
	require.NoError(t, err)

	assert.ElementsMatch(t, []program.ValueID{k.V(t, "a"), k.V(t, "out")}, nodes(set))
	out, _ := set.ByNode(k.V(t, "out"))
	assert.Equal(t, []ID{out.ID}, set.Resolve(k.V(t, "out.ptr.store")))
	assert.Empty(t, set.Resolve(k.V(t, "i.slot")), "loop counters own no memory")
}

func TestFind_AllocatorBehindWrapper(t *testing.T) {
	k := testutil.MallocWrapper(t)
	set, err := find(t, k.Index, k.Kernels, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, set.All(), 1)
	bp := set.All()[0]
	assert.Equal(t, k.V(t, "malloc"), bp.Node)
	assert.Equal(t, KindAllocator, bp.Kind)
	assert.Equal(t, int64(400), bp.Size)
	assert.Equal(t, []ID{bp.ID}, set.Resolve(k.V(t, "a.gep")))
}

func TestFind_ThresholdIsConfigurable(t *testing.T) {
	k := testutil.MallocWrapper(t)
	cfg := DefaultConfig()
	cfg.MinSize = 1024
	_, err := find(t, k.Index, k.Kernels, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrNoBasePointer)
	assert.False(t, fault.IsRunFatal(err))
}

func TestFind_StructOfPointers(t *testing.T) {
	b := program.NewBuilder()
	pair := program.StructOf(program.Ptr, program.Ptr)
	s := b.Global("pair", pair)
	fn := b.Function("f")
	entry, loop, exit := b.Block(fn), b.Block(fn), b.Block(fn)
	zero := b.ConstInt(program.I32, 0)
	b.Br(entry, loop)
	i := b.Phi(loop, program.I64, program.Incoming{Value: b.ConstInt(program.I64, 0), Block: entry})
	px := b.Load(loop, program.Ptr, b.GEP(loop, pair, s, zero, zero))
	py := b.Load(loop, program.Ptr, b.GEP(loop, pair, s, zero, b.ConstInt(program.I32, 1)))
	gx := b.GEP(loop, program.Float, px, i)
	gy := b.GEP(loop, program.Float, py, i)
	b.Store(loop, b.Load(loop, program.Float, gx), gy)
	next := b.Binary(loop, program.OpAdd, i, b.ConstInt(program.I64, 1))
	b.AddIncoming(i, next, loop)
	b.CondBr(loop, b.Cmp(loop, program.PredSLT, next, b.ConstInt(program.I64, 8)), loop, exit)
	b.Ret(exit)
	idx, err := b.Build()
	require.NoError(t, err)

	set, err := find(t, idx, map[cycle.ID]cycle.Kernel{1: {Blocks: []program.BlockID{loop}}}, DefaultConfig())
	require.NoError(t, err)

	parent, ok := set.ByNode(s)
	require.True(t, ok)
	assert.Equal(t, int64(16), parent.Size)
	require.Len(t, parent.SubPointers, 2)
	for _, id := range parent.SubPointers {
		sub := set.Get(id)
		assert.Equal(t, KindSubPointer, sub.Kind)
		assert.Equal(t, parent.ID, sub.Parent)
	}
	x, ok := set.ByNode(px)
	require.True(t, ok)
	y, ok := set.ByNode(py)
	require.True(t, ok)
	assert.Equal(t, []ID{x.ID}, set.Resolve(gx))
	assert.Equal(t, []ID{y.ID}, set.Resolve(gy))
}

func TestCallArgs(t *testing.T) {
	b := program.NewBuilder()
	calloc := b.Declare("calloc")
	malloc := b.Declare("malloc")

	// long wrap(long n) { long m = n + 1; return calloc(m, 8); }
	wrap := b.Function("wrap", program.I64)
	we := b.Block(wrap)
	slot := b.Alloca(we, program.I64)
	b.Store(we, b.Binary(we, program.OpAdd, b.Arg(wrap, 0), b.ConstInt(program.I64, 1)), slot)
	m := b.Load(we, program.I64, slot)
	inner := b.Call(we, program.Ptr, calloc, m, b.ConstInt(program.I64, 8))
	b.Ret(we, inner)

	main := b.Function("main", program.I64)
	me := b.Block(main)
	b.Call(me, program.Ptr, wrap, b.ConstInt(program.I64, 3))
	b.Call(me, program.Ptr, wrap, b.ConstInt(program.I64, 9))
	unknown := b.Call(me, program.Ptr, malloc, b.Arg(main, 0))
	b.Ret(me)
	idx, err := b.Build()
	require.NoError(t, err)

	args := NewCallArgs(context.Background(), idx, DefaultConfig())
	n, ok := args.Size(inner)
	require.True(t, ok)
	assert.Equal(t, int64(80), n, "the larger of the two call sites wins")
	_, ok = args.Size(unknown)
	assert.False(t, ok)
	assert.Equal(t, 1, args.Len())

	var none *CallArgs
	_, ok = none.Size(inner)
	assert.False(t, ok)
}

func TestConfig_IsAllocator(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.IsAllocator("malloc"))
	assert.True(t, cfg.IsAllocator("_Znam"))
	assert.False(t, cfg.IsAllocator("free"))
	assert.Equal(t, "subpointer", KindSubPointer.String())
}

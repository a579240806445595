package category

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

func categorize(t *testing.T, idx *program.Index, kernels map[cycle.ID]cycle.Kernel) (*Set, error) {
	t.Helper()
	ctx := context.Background()
	forest, err := cycle.Build(ctx, idx, kernels)
	require.NoError(t, err)
	tasks, err := cycle.GroupTasks(ctx, idx, forest, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	return Categorize(ctx, idx, tasks[0], forest)
}

func TestCategorize_ElementwiseAdd(t *testing.T) {
	k := testutil.ElementwiseAdd(t)
	set, err := categorize(t, k.Index, k.Kernels)
	require.NoError(t, err)

	assert.Equal(t, []program.ValueID{k.V(t, "sum")}, set.Function.Sorted())
	for _, name := range []string{"i", "i.next", "i.cmp", "i.br"} {
		assert.Equal(t, State, set.Of(k.V(t, name)), name)
	}
	for _, name := range []string{"a.gep", "b.gep", "out.gep"} {
		assert.Equal(t, Memory, set.Of(k.V(t, name)), name)
	}
	assert.Empty(t, set.StatePointers)
}

func TestCategorize_GEMV(t *testing.T) {
	k := testutil.GEMV(t)
	set, err := categorize(t, k.Index, k.Kernels)
	require.NoError(t, err)

	assert.ElementsMatch(t, []program.ValueID{k.V(t, "prod"), k.V(t, "acc.next")}, set.Function.Sorted())
	assert.Equal(t, None, set.Of(k.V(t, "acc")), "the accumulator merge is only reached forward")
	assert.Equal(t, State, set.Of(k.V(t, "j")))
	assert.Equal(t, State, set.Of(k.V(t, "i")))
	assert.Equal(t, Memory, set.Of(k.V(t, "y.gep")))
}

func TestCategorize_StatePointers(t *testing.T) {
	k := testutil.SumUnoptimized(t)
	set, err := categorize(t, k.Index, k.Kernels)
	require.NoError(t, err)

	assert.Equal(t, []program.ValueID{k.V(t, "i.slot")}, set.StatePointers.Sorted())
	for _, name := range []string{"i.cond.load", "i.cmp", "i.br", "i.inc.load", "i.next", "i.store"} {
		assert.Equal(t, State, set.Of(k.V(t, name)), name)
	}
	assert.Equal(t, Function, set.Of(k.V(t, "sum")))
	for _, name := range []string{"a.gep", "a.ptr", "i.ext", "i.idx.load", "out.ptr", "out.ptr.store"} {
		assert.Equal(t, Memory, set.Of(k.V(t, name)), name)
	}
}

func TestCategorize_Exclusive(t *testing.T) {
	for name, build := range map[string]func(*testing.T) *testutil.Kernel{
		"elementwise": testutil.ElementwiseAdd,
		"scale2d":     testutil.Scale2D,
		"gemv":        testutil.GEMV,
		"sum":         testutil.SumUnoptimized,
		"stencil":     testutil.Stencil,
		"malloc":      testutil.MallocWrapper,
	} {
		t.Run(name, func(t *testing.T) {
			k := build(t)
			set, err := categorize(t, k.Index, k.Kernels)
			require.NoError(t, err)
			for id := range set.State {
				assert.False(t, set.Function.Has(id), "%d is State and Function", id)
				assert.False(t, set.Memory.Has(id), "%d is State and Memory", id)
			}
			for id := range set.Function {
				assert.False(t, set.Memory.Has(id), "%d is Function and Memory", id)
			}
		})
	}
}

func TestCategorize_StoreFeedingStore(t *testing.T) {
	b := program.NewBuilder()
	fn := b.Function("f", program.Ptr, program.I1)
	entry, loop, exit := b.Block(fn), b.Block(fn), b.Block(fn)
	b.Br(entry, loop)
	st := b.Store(loop, b.ConstInt(program.I32, 1), b.Arg(fn, 0))
	b.Inst(loop, program.OpStore, program.Void, st, b.Arg(fn, 0))
	b.CondBr(loop, b.Arg(fn, 1), loop, exit)
	b.Ret(exit)
	idx, err := b.Build()
	require.NoError(t, err)

	_, err = categorize(t, idx, map[cycle.ID]cycle.Kernel{1: {Blocks: []program.BlockID{loop}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrStructural)
	assert.False(t, fault.IsRunFatal(err))
}

func TestCategorize_UnsupportedExit(t *testing.T) {
	b := program.NewBuilder()
	fn := b.Function("f", program.Ptr)
	entry, loop, exit := b.Block(fn), b.Block(fn), b.Block(fn)
	b.Br(entry, loop)
	jump := b.Inst(loop, program.OpIndirectBr, program.Void, b.Arg(fn, 0))
	b.Set(jump, func(v *program.Value) { v.Successors = []program.BlockID{loop, exit} })
	b.Ret(exit)
	idx, err := b.Build()
	require.NoError(t, err)

	_, err = categorize(t, idx, map[cycle.ID]cycle.Kernel{1: {Blocks: []program.BlockID{loop}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrUnsupported)
}

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "function", Function.String())
	assert.Equal(t, "state", State.String())
	assert.Equal(t, "memory", Memory.String())
	assert.Equal(t, "none", None.String())
}

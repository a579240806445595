package testutil

import (
	"testing"

	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
	"github.com/stretchr/testify/require"
)

// Kernel is a small traced program together with the kernel descriptor a
// profiler would have produced for it. Interesting values and blocks are
// reachable by name.
type Kernel struct {
	Index   *program.Index
	Kernels map[cycle.ID]cycle.Kernel
	Values  map[string]program.ValueID
	Blocks  map[string]program.BlockID
}

// V returns the named value and fails the test if it is unknown.
func (k *Kernel) V(t *testing.T, name string) program.ValueID {
	t.Helper()
	id, ok := k.Values[name]
	require.True(t, ok, "fixture has no value %q", name)
	return id
}

// B returns the named block and fails the test if it is unknown.
func (k *Kernel) B(t *testing.T, name string) program.BlockID {
	t.Helper()
	id, ok := k.Blocks[name]
	require.True(t, ok, "fixture has no block %q", name)
	return id
}

type fixture struct {
	t *testing.T
	*program.Builder
	k *Kernel
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		t:       t,
		Builder: program.NewBuilder(),
		k: &Kernel{
			Kernels: make(map[cycle.ID]cycle.Kernel),
			Values:  make(map[string]program.ValueID),
			Blocks:  make(map[string]program.BlockID),
		},
	}
}

func (f *fixture) name(n string, id program.ValueID) program.ValueID {
	f.k.Values[n] = id
	return id
}

func (f *fixture) block(fn program.FuncID, n string) program.BlockID {
	id := f.Block(fn)
	f.k.Blocks[n] = id
	return id
}

func (f *fixture) done() *Kernel {
	f.t.Helper()
	idx, err := f.Build()
	require.NoError(f.t, err)
	f.k.Index = idx
	return f.k
}

// counted appends `next = iv + 1; cond = next < n; br cond, loop, out` to bb
// and closes the phi iv.
func (f *fixture) counted(bb program.BlockID, iv program.ValueID, n int64, loop, out program.BlockID, prefix string) {
	one := f.ConstInt(program.I64, 1)
	next := f.name(prefix+".next", f.Binary(bb, program.OpAdd, iv, one))
	f.AddIncoming(iv, next, bb)
	cond := f.name(prefix+".cmp", f.Cmp(bb, program.PredSLT, next, f.ConstInt(program.I64, n)))
	f.name(prefix+".br", f.CondBr(bb, cond, loop, out))
}

// ElementwiseAdd is the single-block loop
//
//	for (i = 0; i < 10; i++) out[i] = a[i] + b[i];
//
// in optimized form (the induction variable is a phi).
func ElementwiseAdd(t *testing.T) *Kernel {
	t.Helper()
	f := newFixture(t)
	fn := f.Function("add", program.Ptr, program.Ptr, program.Ptr)
	a, b, out := f.name("a", f.Arg(fn, 0)), f.name("b", f.Arg(fn, 1)), f.name("out", f.Arg(fn, 2))
	entry, loop, exit := f.block(fn, "entry"), f.block(fn, "loop"), f.block(fn, "exit")

	f.Br(entry, loop)
	i := f.name("i", f.Phi(loop, program.I64, program.Incoming{Value: f.ConstInt(program.I64, 0), Block: entry}))
	f.SetLoc(i, "add.c", 5)
	ga := f.name("a.gep", f.GEP(loop, program.Float, a, i))
	la := f.name("a.load", f.Load(loop, program.Float, ga))
	gb := f.name("b.gep", f.GEP(loop, program.Float, b, i))
	lb := f.name("b.load", f.Load(loop, program.Float, gb))
	sum := f.name("sum", f.Binary(loop, program.OpFAdd, la, lb))
	f.SetLoc(sum, "add.c", 6)
	gout := f.name("out.gep", f.GEP(loop, program.Float, out, i))
	f.name("out.store", f.Store(loop, sum, gout))
	f.counted(loop, i, 10, loop, exit, "i")
	f.Ret(exit)

	f.k.Kernels[1] = cycle.Kernel{Blocks: []program.BlockID{loop}}
	return f.done()
}

// Scale2D is the two-level nest
//
//	for (i = 0; i < 10; i++) for (j = 0; j < 20; j++) B[i][j] = A[i][j] * 2.0f;
//
// over global [10 x [20 x float]] arrays.
func Scale2D(t *testing.T) *Kernel {
	t.Helper()
	f := newFixture(t)
	matrix := program.ArrayOf(program.ArrayOf(program.Float, 20), 10)
	A := f.name("A", f.Global("A", matrix))
	B := f.name("B", f.Global("B", matrix))
	fn := f.Function("scale")
	entry, outer, inner, latch, exit := f.block(fn, "entry"), f.block(fn, "outer"), f.block(fn, "inner"), f.block(fn, "latch"), f.block(fn, "exit")
	zero := f.ConstInt(program.I64, 0)

	f.Br(entry, outer)
	i := f.name("i", f.Phi(outer, program.I64, program.Incoming{Value: zero, Block: entry}))
	f.SetLoc(i, "scale.c", 8)
	f.Br(outer, inner)

	j := f.name("j", f.Phi(inner, program.I64, program.Incoming{Value: zero, Block: outer}))
	f.SetLoc(j, "scale.c", 9)
	ga := f.name("A.gep", f.GEP(inner, matrix, A, zero, i, j))
	la := f.name("A.load", f.Load(inner, program.Float, ga))
	prod := f.name("prod", f.Binary(inner, program.OpFMul, la, f.ConstFloat(program.Float, 2)))
	f.SetLoc(prod, "scale.c", 10)
	gb := f.name("B.gep", f.GEP(inner, matrix, B, zero, i, j))
	f.name("B.store", f.Store(inner, prod, gb))
	f.counted(inner, j, 20, inner, latch, "j")

	f.counted(latch, i, 10, outer, exit, "i")
	f.Ret(exit)

	f.k.Kernels[1] = cycle.Kernel{Blocks: []program.BlockID{outer, inner, latch}, Children: []cycle.ID{2}}
	f.k.Kernels[2] = cycle.Kernel{Blocks: []program.BlockID{inner}, Parents: []cycle.ID{1}}
	return f.done()
}

// GEMV is the matrix-vector product
//
//	for (i = 0; i < 10; i++) { s = 0; for (j = 0; j < 20; j++) s += A[i][j] * x[j]; y[i] = s; }
//
// with the accumulator kept in a phi.
func GEMV(t *testing.T) *Kernel {
	t.Helper()
	f := newFixture(t)
	matrix := program.ArrayOf(program.ArrayOf(program.Float, 20), 10)
	A := f.name("A", f.Global("A", matrix))
	fn := f.Function("gemv", program.Ptr, program.Ptr)
	x, y := f.name("x", f.Arg(fn, 0)), f.name("y", f.Arg(fn, 1))
	entry, outer, inner, latch, exit := f.block(fn, "entry"), f.block(fn, "outer"), f.block(fn, "inner"), f.block(fn, "latch"), f.block(fn, "exit")
	zero := f.ConstInt(program.I64, 0)

	f.Br(entry, outer)
	i := f.name("i", f.Phi(outer, program.I64, program.Incoming{Value: zero, Block: entry}))
	f.SetLoc(i, "gemv.c", 4)
	f.Br(outer, inner)

	j := f.name("j", f.Phi(inner, program.I64, program.Incoming{Value: zero, Block: outer}))
	f.SetLoc(j, "gemv.c", 6)
	acc := f.name("acc", f.Phi(inner, program.Float, program.Incoming{Value: f.ConstFloat(program.Float, 0), Block: outer}))
	ga := f.name("A.gep", f.GEP(inner, matrix, A, zero, i, j))
	la := f.name("A.load", f.Load(inner, program.Float, ga))
	gx := f.name("x.gep", f.GEP(inner, program.Float, x, j))
	lx := f.name("x.load", f.Load(inner, program.Float, gx))
	prod := f.name("prod", f.Binary(inner, program.OpFMul, la, lx))
	next := f.name("acc.next", f.Binary(inner, program.OpFAdd, acc, prod))
	f.SetLoc(next, "gemv.c", 7)
	f.AddIncoming(acc, next, inner)
	f.counted(inner, j, 20, inner, latch, "j")

	gy := f.name("y.gep", f.GEP(latch, program.Float, y, i))
	f.name("y.store", f.Store(latch, next, gy))
	f.counted(latch, i, 10, outer, exit, "i")
	f.Ret(exit)

	f.k.Kernels[1] = cycle.Kernel{Blocks: []program.BlockID{outer, inner, latch}, Children: []cycle.ID{2}}
	f.k.Kernels[2] = cycle.Kernel{Blocks: []program.BlockID{inner}, Parents: []cycle.ID{1}}
	return f.done()
}

// SumUnoptimized is
//
//	for (int i = 0; i < 10; i++) *out += a[i];
//
// as an unoptimizing compiler emits it: every variable lives in a stack slot
// and is reloaded on each use.
func SumUnoptimized(t *testing.T) *Kernel {
	t.Helper()
	f := newFixture(t)
	fn := f.Function("sum", program.Ptr, program.Ptr)
	a, out := f.name("a", f.Arg(fn, 0)), f.name("out", f.Arg(fn, 1))
	entry, header, body, exit := f.block(fn, "entry"), f.block(fn, "header"), f.block(fn, "body"), f.block(fn, "exit")

	aSlot := f.name("a.slot", f.Alloca(entry, program.Ptr))
	f.Store(entry, a, aSlot)
	outSlot := f.name("out.slot", f.Alloca(entry, program.Ptr))
	f.Store(entry, out, outSlot)
	iSlot := f.name("i.slot", f.Alloca(entry, program.I32))
	f.name("i.init", f.Store(entry, f.ConstInt(program.I32, 0), iSlot))
	f.Br(entry, header)

	iv := f.name("i.cond.load", f.Load(header, program.I32, iSlot))
	f.SetLoc(iv, "sum.c", 3)
	cond := f.name("i.cmp", f.Cmp(header, program.PredSLT, iv, f.ConstInt(program.I32, 10)))
	f.name("i.br", f.CondBr(header, cond, body, exit))

	pa := f.name("a.ptr", f.Load(body, program.Ptr, aSlot))
	iIdx := f.name("i.idx.load", f.Load(body, program.I32, iSlot))
	ext := f.name("i.ext", f.Cast(body, program.OpSExt, program.I64, iIdx))
	ga := f.name("a.gep", f.GEP(body, program.Float, pa, ext))
	la := f.name("a.load", f.Load(body, program.Float, ga))
	po := f.name("out.ptr", f.Load(body, program.Ptr, outSlot))
	acc := f.name("acc", f.Load(body, program.Float, po))
	sum := f.name("sum", f.Binary(body, program.OpFAdd, acc, la))
	f.SetLoc(sum, "sum.c", 4)
	po2 := f.name("out.ptr.store", f.Load(body, program.Ptr, outSlot))
	f.name("out.store", f.Store(body, sum, po2))
	iInc := f.name("i.inc.load", f.Load(body, program.I32, iSlot))
	inc := f.name("i.next", f.Binary(body, program.OpAdd, iInc, f.ConstInt(program.I32, 1)))
	f.name("i.store", f.Store(body, inc, iSlot))
	f.Br(body, header)
	f.Ret(exit)

	f.k.Kernels[1] = cycle.Kernel{Blocks: []program.BlockID{header, body}}
	return f.done()
}

// Stencil is the three-point stencil
//
//	for (i = 1; i < 9; i++) out[i] = a[i-1] + a[i] + a[i+1];
func Stencil(t *testing.T) *Kernel {
	t.Helper()
	f := newFixture(t)
	fn := f.Function("stencil", program.Ptr, program.Ptr)
	a, out := f.name("a", f.Arg(fn, 0)), f.name("out", f.Arg(fn, 1))
	entry, loop, exit := f.block(fn, "entry"), f.block(fn, "loop"), f.block(fn, "exit")

	f.Br(entry, loop)
	i := f.name("i", f.Phi(loop, program.I64, program.Incoming{Value: f.ConstInt(program.I64, 1), Block: entry}))
	f.SetLoc(i, "stencil.c", 2)
	left := f.name("i.left", f.Binary(loop, program.OpAdd, i, f.ConstInt(program.I64, -1)))
	right := f.name("i.right", f.Binary(loop, program.OpAdd, i, f.ConstInt(program.I64, 1)))
	l0 := f.name("a.left.load", f.Load(loop, program.Float, f.name("a.left.gep", f.GEP(loop, program.Float, a, left))))
	l1 := f.name("a.mid.load", f.Load(loop, program.Float, f.name("a.mid.gep", f.GEP(loop, program.Float, a, i))))
	l2 := f.name("a.right.load", f.Load(loop, program.Float, f.name("a.right.gep", f.GEP(loop, program.Float, a, right))))
	s0 := f.name("s0", f.Binary(loop, program.OpFAdd, l0, l1))
	s1 := f.name("s1", f.Binary(loop, program.OpFAdd, s0, l2))
	gout := f.name("out.gep", f.GEP(loop, program.Float, out, i))
	f.name("out.store", f.Store(loop, s1, gout))
	f.counted(loop, i, 9, loop, exit, "i")
	f.Ret(exit)

	f.k.Kernels[1] = cycle.Kernel{Blocks: []program.BlockID{loop}}
	return f.done()
}

// MallocWrapper allocates its buffer through a wrapper function and then
// fills it:
//
//	float *alloc(long n) { return malloc(n * 4); }
//	a = alloc(100); for (i = 0; i < 100; i++) a[i] = a[i] + 1.0f;
func MallocWrapper(t *testing.T) *Kernel {
	t.Helper()
	f := newFixture(t)
	malloc := f.Declare("malloc")

	alloc := f.Function("alloc", program.I64)
	aEntry := f.block(alloc, "alloc.entry")
	bytes := f.name("bytes", f.Binary(aEntry, program.OpMul, f.Arg(alloc, 0), f.ConstInt(program.I64, 4)))
	buf := f.name("malloc", f.Call(aEntry, program.Ptr, malloc, bytes))
	f.Ret(aEntry, buf)

	fn := f.Function("main")
	entry, loop, exit := f.block(fn, "entry"), f.block(fn, "loop"), f.block(fn, "exit")
	a := f.name("a", f.Call(entry, program.Ptr, alloc, f.ConstInt(program.I64, 100)))
	f.Br(entry, loop)
	i := f.name("i", f.Phi(loop, program.I64, program.Incoming{Value: f.ConstInt(program.I64, 0), Block: entry}))
	g := f.name("a.gep", f.GEP(loop, program.Float, a, i))
	v := f.name("a.load", f.Load(loop, program.Float, g))
	w := f.name("inc", f.Binary(loop, program.OpFAdd, v, f.ConstFloat(program.Float, 1)))
	f.name("a.store", f.Store(loop, w, g))
	f.counted(loop, i, 100, loop, exit, "i")
	f.Ret(exit)

	f.k.Kernels[1] = cycle.Kernel{Blocks: []program.BlockID{loop}}
	return f.done()
}

// GEMM is the matrix product
//
//	for (i..16) for (j..16) { s = 0; for (k..16) s += A[i][k] * B[k][j]; C[i][j] = s; }
//
// over global [16 x [16 x float]] arrays.
func GEMM(t *testing.T) *Kernel {
	t.Helper()
	f := newFixture(t)
	matrix := program.ArrayOf(program.ArrayOf(program.Float, 16), 16)
	A := f.name("A", f.Global("A", matrix))
	B := f.name("B", f.Global("B", matrix))
	C := f.name("C", f.Global("C", matrix))
	fn := f.Function("gemm")
	entry, outer, middle, inner := f.block(fn, "entry"), f.block(fn, "outer"), f.block(fn, "middle"), f.block(fn, "inner")
	latchJ, latchI, exit := f.block(fn, "latch.j"), f.block(fn, "latch.i"), f.block(fn, "exit")
	zero := f.ConstInt(program.I64, 0)

	f.Br(entry, outer)
	i := f.name("i", f.Phi(outer, program.I64, program.Incoming{Value: zero, Block: entry}))
	f.SetLoc(i, "gemm.c", 3)
	f.Br(outer, middle)

	j := f.name("j", f.Phi(middle, program.I64, program.Incoming{Value: zero, Block: outer}))
	f.SetLoc(j, "gemm.c", 4)
	f.Br(middle, inner)

	k := f.name("k", f.Phi(inner, program.I64, program.Incoming{Value: zero, Block: middle}))
	f.SetLoc(k, "gemm.c", 6)
	acc := f.name("acc", f.Phi(inner, program.Float, program.Incoming{Value: f.ConstFloat(program.Float, 0), Block: middle}))
	la := f.name("A.load", f.Load(inner, program.Float, f.name("A.gep", f.GEP(inner, matrix, A, zero, i, k))))
	lb := f.name("B.load", f.Load(inner, program.Float, f.name("B.gep", f.GEP(inner, matrix, B, zero, k, j))))
	prod := f.name("prod", f.Binary(inner, program.OpFMul, la, lb))
	next := f.name("acc.next", f.Binary(inner, program.OpFAdd, acc, prod))
	f.SetLoc(next, "gemm.c", 7)
	f.AddIncoming(acc, next, inner)
	f.counted(inner, k, 16, inner, latchJ, "k")

	gc := f.name("C.gep", f.GEP(latchJ, matrix, C, zero, i, j))
	f.name("C.store", f.Store(latchJ, next, gc))
	f.counted(latchJ, j, 16, middle, latchI, "j")

	f.counted(latchI, i, 16, outer, exit, "i")
	f.Ret(exit)

	f.k.Kernels[1] = cycle.Kernel{Blocks: []program.BlockID{outer, middle, inner, latchJ, latchI}, Children: []cycle.ID{2}}
	f.k.Kernels[2] = cycle.Kernel{Blocks: []program.BlockID{middle, inner, latchJ}, Parents: []cycle.ID{1}, Children: []cycle.ID{3}}
	f.k.Kernels[3] = cycle.Kernel{Blocks: []program.BlockID{inner}, Parents: []cycle.ID{2}}
	return f.done()
}

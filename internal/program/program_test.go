package program

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	testCases := []struct {
		src  string
		size int64
	}{
		{src: "i32", size: 4},
		{src: "i1", size: 1},
		{src: "double", size: 8},
		{src: "ptr", size: 8},
		{src: "float*", size: 8},
		{src: "[10 x i32]", size: 40},
		{src: "[4 x [8 x float]]", size: 128},
		{src: "<4 x float>", size: 16},
		{src: "{ptr, ptr}", size: 16},
		{src: "{i32, [2 x double]}", size: 20},
	}
	for _, tc := range testCases {
		t.Run(tc.src, func(t *testing.T) {
			typ, err := ParseType(tc.src)
			require.NoError(t, err)
			assert.Equal(t, tc.size, typ.Size())
			assert.Equal(t, tc.src, typ.String())
		})
	}

	for _, bad := range []string{"", "[x i32]", "i", "{i32", "[2 y i32]", "i32 junk"} {
		_, err := ParseType(bad)
		assert.Error(t, err, bad)
	}
}

func TestType_IsAllPointerStruct(t *testing.T) {
	assert.True(t, StructOf(Ptr, PointerTo(Float)).IsAllPointerStruct())
	assert.False(t, StructOf(Ptr, I32).IsAllPointerStruct())
	assert.False(t, StructOf().IsAllPointerStruct())
	assert.False(t, Ptr.IsAllPointerStruct())
}

func TestOpAndPredicateNames(t *testing.T) {
	for op, name := range opNames {
		parsed, err := ParseOp(name)
		require.NoError(t, err)
		assert.Equal(t, op, parsed)
	}
	gep, err := ParseOp("gep")
	require.NoError(t, err)
	assert.Equal(t, OpGEP, gep)

	assert.True(t, OpFAdd.IsBinary())
	assert.True(t, OpSExt.IsCast())
	assert.True(t, OpSwitch.IsTerminator())
	assert.False(t, OpPhi.IsTerminator())

	assert.Equal(t, RelLT, PredSLT.Relation())
	assert.Equal(t, RelGE, PredSLT.Relation().Inverse())
	assert.Equal(t, RelGT, RelLT.Swapped())
	p, err := ParsePredicate("sle")
	require.NoError(t, err)
	assert.Equal(t, PredSLE, p)
}

func TestBuilder_LinksUsersAndBlocks(t *testing.T) {
	b := NewBuilder()
	fn := b.Function("main")
	entry := b.Block(fn)
	loop := b.Block(fn)
	exit := b.Block(fn)

	zero := b.ConstInt(I32, 0)
	one := b.ConstInt(I32, 1)
	ten := b.ConstInt(I32, 10)
	b.Br(entry, loop)
	phi := b.Phi(loop, I32, Incoming{Value: zero, Block: entry})
	inc := b.Binary(loop, OpAdd, phi, one)
	b.AddIncoming(phi, inc, loop)
	cmp := b.Cmp(loop, PredSLT, inc, ten)
	br := b.CondBr(loop, cmp, loop, exit)
	b.Ret(exit)

	idx, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, []ValueID{inc}, idx.Value(phi).Users)
	assert.ElementsMatch(t, []ValueID{phi, cmp}, idx.Value(inc).Users)
	assert.Equal(t, br, idx.Terminator(loop).ID)
	assert.Equal(t, []BlockID{loop, exit}, idx.Block(loop).Successors)
	assert.Equal(t, []BlockID{entry, loop}, idx.Block(loop).Predecessors)
	assert.Equal(t, cmp, idx.Value(br).Condition())

	// Without a trace every static edge is live.
	assert.False(t, idx.Profiled())
	assert.True(t, idx.IsLive(loop, exit))
	assert.Equal(t, []int{0, 1}, idx.LiveIncoming(idx.Value(phi)))

	cb, ok := idx.ControlBlockOf(loop)
	require.True(t, ok)
	assert.Equal(t, loop, cb)
}

func TestBuilder_ProfiledLiveness(t *testing.T) {
	b := NewBuilder()
	fn := b.Function("main")
	a := b.Block(fn)
	c := b.Block(fn)
	d := b.Block(fn)
	cond := b.ConstInt(I1, 1)
	b.CondBr(a, cond, c, d)
	b.Ret(c)
	b.Ret(d)
	b.LiveEdge(a, c, 3)

	idx, err := b.Build()
	require.NoError(t, err)
	assert.True(t, idx.Profiled())
	assert.Equal(t, []BlockID{c}, idx.LiveSuccessors(a))
	assert.False(t, idx.IsLive(a, d))
}

func TestBuilder_RejectsUnknownOperand(t *testing.T) {
	b := NewBuilder()
	fn := b.Function("main")
	bb := b.Block(fn)
	b.Inst(bb, OpAdd, I32, 999, 998)
	_, err := b.Build()
	assert.ErrorContains(t, err, "unknown operand")
}

func TestWalk(t *testing.T) {
	b := NewBuilder()
	fn := b.Function("f", I32)
	bb := b.Block(fn)
	x := b.Arg(fn, 0)
	y := b.Binary(bb, OpMul, x, x)
	z := b.Binary(bb, OpAdd, y, x)
	w := b.Cast(bb, OpSExt, I64, z)
	b.Ret(bb, w)
	idx, err := b.Build()
	require.NoError(t, err)

	back := idx.Reachable([]ValueID{w}, Backward, func(v *Value) bool { return v.IsInstruction() })
	assert.Equal(t, []ValueID{y, z, w}, back.Sorted())
	assert.True(t, idx.Reaches(x, w, Forward, func(v *Value) bool { return true }))
	assert.False(t, idx.Reaches(w, x, Forward, func(v *Value) bool { return true }))
	assert.Equal(t, z, idx.StripCasts(w))
}

const programJSON = `{
  "Globals": [{"ID": 1, "Name": "A", "ElemType": "[100 x float]"}],
  "Constants": [{"ID": 2, "Type": "i64", "Int": 0}],
  "Functions": [
    {"ID": 1, "Name": "malloc", "Declaration": true},
    {"ID": 2, "Name": "main", "Args": [{"ID": 3, "Type": "i32"}],
     "Blocks": [
       {"ID": 10, "Instructions": [
         {"ID": 11, "Op": "getelementptr", "Type": "ptr", "ElemType": "[100 x float]", "Operands": [1, 2, 2], "File": "a.c", "Line": 4},
         {"ID": 12, "Op": "load", "Type": "float", "Operands": [11]},
         {"ID": 13, "Op": "ret", "Type": "void"}
       ]}
     ]}
  ]
}`

func TestLoadProgram(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, LoadProgram(strings.NewReader(programJSON), b))
	require.NoError(t, LoadProfile(strings.NewReader(`{"Significant": [12], "Footprints": {"1": 400}, "Blocks": {"10": 1}}`), b))
	require.NoError(t, LoadBlockInfo(strings.NewReader(`{"10": {"Function": "main", "File": "a.c", "Lines": [7, 5]}}`), b))
	idx, err := b.Build()
	require.NoError(t, err)

	gep := idx.Value(11)
	require.NotNil(t, gep)
	assert.Equal(t, OpGEP, gep.Op)
	assert.Equal(t, int64(400), gep.ElemType.Size())
	assert.Equal(t, Location{File: "a.c", Line: 4}, gep.Loc)
	assert.Equal(t, Location{File: "a.c", Line: 5}, idx.Value(12).Loc)
	assert.True(t, idx.Significant(12))
	assert.False(t, idx.Significant(11))
	n, ok := idx.Footprint(1)
	assert.True(t, ok)
	assert.Equal(t, int64(400), n)
	assert.Equal(t, uint64(1), idx.BlockCount(10))
	assert.NotNil(t, idx.FunctionByName("malloc"))
	assert.Equal(t, 3, idx.InstructionCount())
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package program

import (
	"fmt"
	"slices"
)

// Builder assembles an Index. Convenience constructors allocate ids from a
// private counter; AddValue and friends accept caller-chosen ids for loaders
// that replay an external graph.
type Builder struct {
	idx     *Index
	nextVal ValueID
	nextBB  BlockID
	nextFn  FuncID
	err     error
}

// Incoming is one edge of a phi.
type Incoming struct {
	Value ValueID
	Block BlockID
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		idx: &Index{
			values:      make(map[ValueID]*Value),
			blocks:      make(map[BlockID]*BasicBlock),
			controls:    make(map[BlockID]*ControlBlock),
			toControl:   make(map[BlockID]BlockID),
			functions:   make(map[FuncID]*Function),
			byName:      make(map[string]FuncID),
			callers:     make(map[FuncID][]ValueID),
			live:        make(map[Edge]uint64),
			blockCount:  make(map[BlockID]uint64),
			significant: make(ValueSet),
			footprint:   make(map[ValueID]int64),
		},
		nextVal: 1,
		nextBB:  1,
		nextFn:  1,
	}
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

// AddValue registers a value with a caller-chosen id.
func (b *Builder) AddValue(v *Value) {
	if !v.ID.IsValid() {
		b.fail("value with invalid id")
		return
	}
	if _, dup := b.idx.values[v.ID]; dup {
		b.fail("duplicate value id %d", v.ID)
		return
	}
	b.idx.values[v.ID] = v
	if v.ID >= b.nextVal {
		b.nextVal = v.ID + 1
	}
	if v.IsInstruction() {
		bb := b.idx.blocks[v.Block]
		if bb == nil {
			b.fail("instruction %d placed in unknown block %d", v.ID, v.Block)
			return
		}
		v.Func = bb.Func
		bb.Instructions = append(bb.Instructions, v.ID)
	}
}

// AddBlock registers a basic block with a caller-chosen id.
func (b *Builder) AddBlock(id BlockID, fn FuncID) {
	if _, dup := b.idx.blocks[id]; dup {
		b.fail("duplicate block id %d", id)
		return
	}
	f := b.idx.functions[fn]
	if f == nil {
		b.fail("block %d placed in unknown function %d", id, fn)
		return
	}
	b.idx.blocks[id] = &BasicBlock{ID: id, Func: fn}
	f.Blocks = append(f.Blocks, id)
	if id >= b.nextBB {
		b.nextBB = id + 1
	}
}

// AddFunction registers a function with a caller-chosen id.
func (b *Builder) AddFunction(id FuncID, name string, declaration bool) {
	if _, dup := b.idx.functions[id]; dup {
		b.fail("duplicate function id %d", id)
		return
	}
	b.idx.functions[id] = &Function{ID: id, Name: name, Declaration: declaration}
	if name != "" {
		b.idx.byName[name] = id
	}
	if id >= b.nextFn {
		b.nextFn = id + 1
	}
}

func (b *Builder) newValue(v *Value) ValueID {
	v.ID = b.nextVal
	b.AddValue(v)
	return v.ID
}

// Function defines a function with one argument per parameter type.
func (b *Builder) Function(name string, params ...*Type) FuncID {
	id := b.nextFn
	b.AddFunction(id, name, false)
	f := b.idx.functions[id]
	for i, t := range params {
		arg := b.newValue(&Value{Kind: KindArgument, Type: t, Func: id, ArgIndex: i})
		f.Args = append(f.Args, arg)
	}
	return id
}

// Declare declares an external function such as an allocator.
func (b *Builder) Declare(name string) FuncID {
	if id, ok := b.idx.byName[name]; ok {
		return id
	}
	id := b.nextFn
	b.AddFunction(id, name, true)
	return id
}

// Arg returns the i-th argument of fn.
func (b *Builder) Arg(fn FuncID, i int) ValueID {
	f := b.idx.functions[fn]
	if f == nil || i >= len(f.Args) {
		b.fail("function %d has no argument %d", fn, i)
		return NoValue
	}
	return f.Args[i]
}

// Block appends a new basic block to fn.
func (b *Builder) Block(fn FuncID) BlockID {
	id := b.nextBB
	b.AddBlock(id, fn)
	return id
}

// Global defines a global variable holding a value of type elem.
func (b *Builder) Global(name string, elem *Type) ValueID {
	return b.newValue(&Value{Kind: KindGlobal, Type: Ptr, Name: name, ElemType: elem})
}

// GlobalInit defines a global variable with a constant initializer.
func (b *Builder) GlobalInit(name string, elem *Type, init ValueID) ValueID {
	id := b.Global(name, elem)
	b.Set(id, func(v *Value) { v.Elements = []ValueID{init} })
	return id
}

// ConstInt defines an integer constant.
func (b *Builder) ConstInt(t *Type, v int64) ValueID {
	return b.newValue(&Value{Kind: KindConstant, Type: t, Int: v})
}

// ConstFloat defines a floating point constant.
func (b *Builder) ConstFloat(t *Type, v float64) ValueID {
	return b.newValue(&Value{Kind: KindConstant, Type: t, Float: v})
}

// ConstAggregate defines a vector or array constant from element constants.
func (b *Builder) ConstAggregate(t *Type, elems ...ValueID) ValueID {
	return b.newValue(&Value{Kind: KindConstant, Type: t, Elements: elems})
}

// Inst appends a generic instruction to bb.
func (b *Builder) Inst(bb BlockID, op Op, t *Type, operands ...ValueID) ValueID {
	return b.newValue(&Value{Kind: KindInstruction, Op: op, Type: t, Block: bb, Operands: operands})
}

// Alloca allocates a stack slot of type elem.
func (b *Builder) Alloca(bb BlockID, elem *Type) ValueID {
	id := b.Inst(bb, OpAlloca, Ptr)
	b.Set(id, func(v *Value) { v.ElemType = elem })
	return id
}

// Load reads a t from ptr.
func (b *Builder) Load(bb BlockID, t *Type, ptr ValueID) ValueID {
	return b.Inst(bb, OpLoad, t, ptr)
}

// Store writes val to ptr.
func (b *Builder) Store(bb BlockID, val, ptr ValueID) ValueID {
	return b.Inst(bb, OpStore, Void, val, ptr)
}

// GEP computes an address into an object of type src.
func (b *Builder) GEP(bb BlockID, src *Type, ptr ValueID, indices ...ValueID) ValueID {
	id := b.Inst(bb, OpGEP, Ptr, append([]ValueID{ptr}, indices...)...)
	b.Set(id, func(v *Value) { v.ElemType = src })
	return id
}

// Binary appends a binary operator typed after its left operand.
func (b *Builder) Binary(bb BlockID, op Op, lhs, rhs ValueID) ValueID {
	var t *Type
	if l := b.idx.values[lhs]; l != nil {
		t = l.Type
	}
	return b.Inst(bb, op, t, lhs, rhs)
}

// Cast converts v to t.
func (b *Builder) Cast(bb BlockID, op Op, t *Type, v ValueID) ValueID {
	return b.Inst(bb, op, t, v)
}

// Cmp appends an icmp or fcmp depending on the operand type.
func (b *Builder) Cmp(bb BlockID, pred Predicate, lhs, rhs ValueID) ValueID {
	op := OpICmp
	if l := b.idx.values[lhs]; l != nil && l.Type.IsFloating() {
		op = OpFCmp
	}
	id := b.Inst(bb, op, I1, lhs, rhs)
	b.Set(id, func(v *Value) { v.Predicate = pred })
	return id
}

// Phi appends a merge value; more edges may be added with AddIncoming.
func (b *Builder) Phi(bb BlockID, t *Type, incoming ...Incoming) ValueID {
	id := b.Inst(bb, OpPhi, t)
	for _, in := range incoming {
		b.AddIncoming(id, in.Value, in.Block)
	}
	return id
}

// AddIncoming adds an edge to a phi.
func (b *Builder) AddIncoming(phi, val ValueID, from BlockID) {
	b.Set(phi, func(v *Value) {
		v.Operands = append(v.Operands, val)
		v.Incoming = append(v.Incoming, from)
	})
}

// Select appends a select.
func (b *Builder) Select(bb BlockID, cond, t, f ValueID) ValueID {
	var typ *Type
	if v := b.idx.values[t]; v != nil {
		typ = v.Type
	}
	return b.Inst(bb, OpSelect, typ, cond, t, f)
}

// Call appends a call to a defined or declared function.
func (b *Builder) Call(bb BlockID, t *Type, callee FuncID, args ...ValueID) ValueID {
	id := b.Inst(bb, OpCall, t, args...)
	b.Set(id, func(v *Value) { v.Callee = callee })
	return id
}

// CallNamed appends a call to a function known only by name (intrinsics).
func (b *Builder) CallNamed(bb BlockID, t *Type, name string, args ...ValueID) ValueID {
	id := b.Inst(bb, OpCall, t, args...)
	b.Set(id, func(v *Value) { v.CalleeName = name })
	return id
}

// Br appends an unconditional branch.
func (b *Builder) Br(bb, dest BlockID) ValueID {
	id := b.Inst(bb, OpBr, Void)
	b.Set(id, func(v *Value) { v.Successors = []BlockID{dest} })
	return id
}

// CondBr appends a conditional branch.
func (b *Builder) CondBr(bb BlockID, cond ValueID, ifTrue, ifFalse BlockID) ValueID {
	id := b.Inst(bb, OpBr, Void, cond)
	b.Set(id, func(v *Value) { v.Successors = []BlockID{ifTrue, ifFalse} })
	return id
}

// Switch appends a switch; cases pair a constant with its destination.
func (b *Builder) Switch(bb BlockID, cond ValueID, def BlockID, cases ...Incoming) ValueID {
	id := b.Inst(bb, OpSwitch, Void, cond)
	b.Set(id, func(v *Value) {
		v.Successors = []BlockID{def}
		for _, c := range cases {
			v.Operands = append(v.Operands, c.Value)
			v.Successors = append(v.Successors, c.Block)
		}
	})
	return id
}

// Ret appends a return.
func (b *Builder) Ret(bb BlockID, vals ...ValueID) ValueID {
	return b.Inst(bb, OpRet, Void, vals...)
}

// Set mutates a value before Build.
func (b *Builder) Set(id ValueID, fn func(v *Value)) {
	v := b.idx.values[id]
	if v == nil {
		b.fail("unknown value %d", id)
		return
	}
	fn(v)
}

// SetLoc attaches a source location.
func (b *Builder) SetLoc(id ValueID, file string, line int) {
	b.Set(id, func(v *Value) { v.Loc = Location{File: file, Line: line} })
}

// Group places basic blocks into one control block.
func (b *Builder) Group(control BlockID, blocks ...BlockID) {
	cb := b.idx.controls[control]
	if cb == nil {
		cb = &ControlBlock{ID: control}
		b.idx.controls[control] = cb
	}
	for _, bb := range blocks {
		if _, taken := b.idx.toControl[bb]; taken {
			b.fail("block %d already grouped", bb)
			continue
		}
		cb.Blocks = append(cb.Blocks, bb)
		b.idx.toControl[bb] = control
	}
}

// LiveEdge records a traced edge.
func (b *Builder) LiveEdge(from, to BlockID, count uint64) {
	b.idx.live[Edge{From: from, To: to}] += count
}

// BlockCount records how often bb executed.
func (b *Builder) BlockCount(bb BlockID, count uint64) {
	b.idx.blockCount[bb] += count
}

// MarkSignificant flags memory instructions as significant.
func (b *Builder) MarkSignificant(ids ...ValueID) {
	for _, id := range ids {
		b.idx.significant.Add(id)
	}
}

// SetFootprint records the profiled byte footprint of an allocation.
func (b *Builder) SetFootprint(id ValueID, bytes int64) {
	b.idx.footprint[id] = bytes
}

// Build links users, block successors and call sites and returns the
// finished Index. The builder must not be used afterwards.
func (b *Builder) Build() (*Index, error) {
	if b.err != nil {
		return nil, b.err
	}
	idx := b.idx

	for id := range idx.values {
		idx.order = append(idx.order, id)
	}
	slices.Sort(idx.order)

	for _, id := range idx.order {
		v := idx.values[id]
		for _, op := range v.Operands {
			u := idx.values[op]
			if u == nil {
				return nil, fmt.Errorf("value %d uses unknown operand %d", id, op)
			}
			if !slices.Contains(u.Users, id) {
				u.Users = append(u.Users, id)
			}
		}
		for _, e := range v.Elements {
			if idx.values[e] == nil {
				return nil, fmt.Errorf("constant %d has unknown element %d", id, e)
			}
		}
		if v.Is(OpCall) || v.Is(OpInvoke) {
			if v.Callee.IsValid() {
				idx.callers[v.Callee] = append(idx.callers[v.Callee], id)
			} else if fn, ok := idx.byName[v.CalleeName]; ok {
				v.Callee = fn
				idx.callers[fn] = append(idx.callers[fn], id)
			}
		}
	}

	for _, bb := range idx.blocks {
		if term := idx.Terminator(bb.ID); term != nil {
			for _, s := range term.Successors {
				if idx.blocks[s] == nil {
					return nil, fmt.Errorf("block %d branches to unknown block %d", bb.ID, s)
				}
				if !slices.Contains(bb.Successors, s) {
					bb.Successors = append(bb.Successors, s)
				}
			}
		}
	}
	for _, bb := range idx.blocks {
		for _, s := range bb.Successors {
			succ := idx.blocks[s]
			if !slices.Contains(succ.Predecessors, bb.ID) {
				succ.Predecessors = append(succ.Predecessors, bb.ID)
			}
		}
		if _, ok := idx.toControl[bb.ID]; !ok {
			idx.controls[bb.ID] = &ControlBlock{ID: bb.ID, Blocks: []BlockID{bb.ID}}
			idx.toControl[bb.ID] = bb.ID
		}
	}

	for _, bb := range idx.blocks {
		slices.Sort(bb.Predecessors)
	}

	b.idx = nil
	return idx, nil
}

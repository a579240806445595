// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package program

import "slices"

// BasicBlock is an ordered list of instructions ending in a terminator.
type BasicBlock struct {
	ID           BlockID
	Func         FuncID
	Instructions []ValueID
	Successors   []BlockID
	Predecessors []BlockID
}

// ControlBlock groups basic blocks that always execute together.
type ControlBlock struct {
	ID     BlockID
	Blocks []BlockID
}

// Function is a defined or declared function.
type Function struct {
	ID          FuncID
	Name        string
	Args        []ValueID
	Blocks      []BlockID
	Declaration bool
}

// Index is the immutable program graph plus the profile facts attached to it.
type Index struct {
	values    map[ValueID]*Value
	order     []ValueID
	blocks    map[BlockID]*BasicBlock
	controls  map[BlockID]*ControlBlock
	toControl map[BlockID]BlockID
	functions map[FuncID]*Function
	byName    map[string]FuncID
	callers   map[FuncID][]ValueID

	// live holds traced edge counts; an index without any profile treats
	// every static edge as live.
	live       map[Edge]uint64
	blockCount map[BlockID]uint64

	// significant is the profiler's set of interesting loads and stores;
	// empty means every memory instruction is significant.
	significant ValueSet
	footprint   map[ValueID]int64
}

// Value returns the value with the given id, or nil.
func (idx *Index) Value(id ValueID) *Value { return idx.values[id] }

// Values returns every value id in ascending order.
func (idx *Index) Values() []ValueID { return idx.order }

// Block returns the basic block with the given id, or nil.
func (idx *Index) Block(id BlockID) *BasicBlock { return idx.blocks[id] }

// Blocks returns every basic block id in ascending order.
func (idx *Index) Blocks() []BlockID {
	out := make([]BlockID, 0, len(idx.blocks))
	for id := range idx.blocks {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// ControlBlock returns the control block with the given id, or nil.
func (idx *Index) ControlBlock(id BlockID) *ControlBlock { return idx.controls[id] }

// ControlBlockOf returns the control block that owns basic block bb.
func (idx *Index) ControlBlockOf(bb BlockID) (BlockID, bool) {
	c, ok := idx.toControl[bb]
	return c, ok
}

// Function returns the function with the given id, or nil.
func (idx *Index) Function(id FuncID) *Function { return idx.functions[id] }

// Functions returns every function id in ascending order.
func (idx *Index) Functions() []FuncID {
	out := make([]FuncID, 0, len(idx.functions))
	for id := range idx.functions {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// FunctionByName looks a function up by symbol name.
func (idx *Index) FunctionByName(name string) *Function {
	if id, ok := idx.byName[name]; ok {
		return idx.functions[id]
	}
	return nil
}

// Callers returns the call sites of fn.
func (idx *Index) Callers(fn FuncID) []ValueID { return idx.callers[fn] }

// CalleeName returns the name of the function a call invokes.
func (idx *Index) CalleeName(call *Value) string {
	if call.CalleeName != "" {
		return call.CalleeName
	}
	if fn := idx.functions[call.Callee]; fn != nil {
		return fn.Name
	}
	return ""
}

// Terminator returns the last instruction of bb, or nil when the block is
// empty or does not end in a terminator.
func (idx *Index) Terminator(bb BlockID) *Value {
	b := idx.blocks[bb]
	if b == nil || len(b.Instructions) == 0 {
		return nil
	}
	last := idx.values[b.Instructions[len(b.Instructions)-1]]
	if last == nil || !last.Op.IsTerminator() {
		return nil
	}
	return last
}

// Profiled reports whether edge liveness came from a trace.
func (idx *Index) Profiled() bool { return len(idx.live) > 0 }

// IsLive reports whether the edge from -> to was taken while tracing.
func (idx *Index) IsLive(from, to BlockID) bool {
	if !idx.Profiled() {
		b := idx.blocks[from]
		return b != nil && slices.Contains(b.Successors, to)
	}
	return idx.live[Edge{From: from, To: to}] > 0
}

// LiveSuccessors returns the distinct successors of bb reached while tracing.
func (idx *Index) LiveSuccessors(bb BlockID) []BlockID {
	b := idx.blocks[bb]
	if b == nil {
		return nil
	}
	var out []BlockID
	for _, s := range b.Successors {
		if idx.IsLive(bb, s) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// LiveIncoming returns the operand positions of a phi whose incoming edge was
// taken while tracing.
func (idx *Index) LiveIncoming(phi *Value) []int {
	if !phi.Is(OpPhi) {
		return nil
	}
	var out []int
	for i, from := range phi.Incoming {
		if idx.IsLive(from, phi.Block) {
			out = append(out, i)
		}
	}
	return out
}

// BlockCount returns how many times bb executed while tracing.
func (idx *Index) BlockCount(bb BlockID) uint64 { return idx.blockCount[bb] }

// Significant reports whether the profiler judged memory instruction id
// significant.
func (idx *Index) Significant(id ValueID) bool {
	if len(idx.significant) == 0 {
		v := idx.values[id]
		return v != nil && v.Op.IsMemory()
	}
	return idx.significant.Has(id)
}

// Footprint returns the profiled byte footprint of an allocation.
func (idx *Index) Footprint(id ValueID) (int64, bool) {
	n, ok := idx.footprint[id]
	return n, ok
}

// InstructionCount returns the number of instructions in the program.
func (idx *Index) InstructionCount() int {
	n := 0
	for _, b := range idx.blocks {
		n += len(b.Instructions)
	}
	return n
}

// ConstInt returns the integer payload of an integer constant.
func (idx *Index) ConstInt(id ValueID) (int64, bool) {
	v := idx.values[id]
	if !v.IsConstant() || !v.Type.IsInteger() {
		return 0, false
	}
	return v.Int, true
}

// StripCasts follows cast instructions back to the value being converted.
func (idx *Index) StripCasts(id ValueID) ValueID {
	for {
		v := idx.values[id]
		if v == nil || !v.IsInstruction() || !v.Op.IsCast() || len(v.Operands) == 0 {
			return id
		}
		id = v.Operands[0]
	}
}

// InBlocks reports whether id is an instruction placed in one of blocks.
func (idx *Index) InBlocks(id ValueID, blocks BlockSet) bool {
	v := idx.values[id]
	return v.IsInstruction() && blocks.Has(v.Block)
}

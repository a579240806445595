// Package reduction finds the accumulators of a task: Function-colored
// operators whose result flows back into their own input on every iteration
// of a cycle.
package reduction

import (
	"context"
	"slices"
	"strings"

	"github.com/benroywillis/Cyclebite-sub001/internal/category"
	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/dimension"
	"github.com/benroywillis/Cyclebite-sub001/internal/indexvar"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// Form is the shape an accumulation takes in the instruction graph.
type Form int

const (
	// FormMerge is an operator forming a two-node cycle with a merge value.
	FormMerge Form = iota
	// FormFusedMultiplyAdd is a fused multiply-add whose addend is a merge
	// value fed by its own result.
	FormFusedMultiplyAdd
	// FormMemory is the unoptimized form: the accumulator is loaded from and
	// stored back to the same address every iteration.
	FormMemory
)

// String returns the string representation of the form.
func (f Form) String() string {
	switch f {
	case FormMerge:
		return "merge"
	case FormFusedMultiplyAdd:
		return "fmuladd"
	case FormMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// ID is the handle of a reduction within its task.
type ID int

// NoReduction is the zero handle.
const NoReduction ID = 0

// Variable is one accepted reduction.
type Variable struct {
	ID   ID
	Form Form
	// Node is the operator that updates the accumulator.
	Node program.ValueID
	Op   program.Op
	// Accumulator is the merge value or the load the operator reads its
	// previous result from.
	Accumulator program.ValueID
	// Address is where the result is stored; Store is the storing
	// instruction.
	Address   program.ValueID
	Store     program.ValueID
	Cycle     cycle.ID
	Dimension dimension.ID
}

// Set holds the reductions of one task.
type Set struct {
	vars   []*Variable
	byNode map[program.ValueID]ID
}

// Get returns the reduction with the given handle, or nil.
func (s *Set) Get(id ID) *Variable {
	if id <= 0 || int(id) > len(s.vars) {
		return nil
	}
	return s.vars[id-1]
}

// All returns every reduction in discovery order.
func (s *Set) All() []*Variable { return s.vars }

// Len returns the number of reductions.
func (s *Set) Len() int { return len(s.vars) }

// ByNode returns the reduction whose operator is id.
func (s *Set) ByNode(id program.ValueID) (*Variable, bool) {
	r, ok := s.byNode[id]
	if !ok {
		return nil, false
	}
	return s.vars[r-1], true
}

// Input bundles the results of the earlier stages a search needs.
type Input struct {
	Index       *program.Index
	Task        *cycle.Task
	Cycles      *cycle.Forest
	Categories  *category.Set
	Dimensions  *dimension.Set
	Forest      *indexvar.Forest
	Collections []*indexvar.Collection
}

// Find walks back from every store of a Function-colored value and returns
// the reductions it meets.
func Find(ctx context.Context, in Input) *Set {
	logger := ctxlog.FromContext(ctx)
	f := &finder{Input: in}
	set := &Set{byNode: make(map[program.ValueID]ID)}

	for _, bb := range in.Task.Blocks.Sorted() {
		for _, id := range in.Index.Block(bb).Instructions {
			st := in.Index.Value(id)
			if !st.Is(program.OpStore) || !in.Categories.Function.Has(st.StoredValue()) {
				continue
			}
			for _, r := range f.candidates(st) {
				if _, known := set.byNode[r.Node]; known {
					continue
				}
				c, ok := in.Cycles.InnermostContaining(in.Task.Cycles, in.Index.Value(r.Node).Block)
				if !ok {
					logger.Debug("Reduction candidate outside every cycle, skipping.", "node", r.Node)
					continue
				}
				r.Cycle = c
				if d := f.offsetBy(st, c); d != nil {
					logger.Debug("Candidate's address moves with the cycle, not a reduction.",
						"node", r.Node, "cycle", c, "dimension", d.ID)
					continue
				}
				if f.advances(st.PointerOperand()) {
					logger.Debug("Candidate's address is a pointer advanced every iteration, not a reduction.",
						"node", r.Node, "cycle", c)
					continue
				}
				if gov := in.Dimensions.Governing(c); len(gov) > 0 {
					r.Dimension = gov[0].ID
				}
				r.ID = ID(len(set.vars) + 1)
				set.vars = append(set.vars, r)
				set.byNode[r.Node] = r.ID
			}
		}
	}
	logger.Debug("Find: reductions found.", "task", in.Task.ID, "count", len(set.vars))
	return set
}

type finder struct {
	Input
}

// candidates returns the reduction operators reachable backward from the
// value st stores, staying inside the Function-colored subgraph.
func (f *finder) candidates(st *program.Value) []*Variable {
	var out []*Variable
	f.Index.Walk([]program.ValueID{st.StoredValue()}, program.Backward, func(v *program.Value) bool {
		if !f.Categories.Function.Has(v.ID) {
			return false
		}
		if r := f.merge(v); r != nil {
			r.Address, r.Store = st.PointerOperand(), st.ID
			out = append(out, r)
		} else if v.ID == st.StoredValue() {
			if r := f.memory(v, st); r != nil {
				out = append(out, r)
			}
		}
		return true
	})
	return out
}

// merge recognizes an operator that feeds a merge value it also reads.
func (f *finder) merge(v *program.Value) *Variable {
	switch {
	case isFusedMultiplyAdd(f.Index, v):
		if len(v.Operands) == 3 && f.feedsBack(v.Operands[2], v.ID) {
			return &Variable{Form: FormFusedMultiplyAdd, Node: v.ID, Op: v.Op, Accumulator: v.Operands[2]}
		}
	case v.Op.IsBinary():
		for _, op := range v.Operands {
			if f.feedsBack(op, v.ID) {
				return &Variable{Form: FormMerge, Node: v.ID, Op: v.Op, Accumulator: op}
			}
		}
	}
	return nil
}

// feedsBack reports whether phi is a merge value in the task with node among
// its incoming values.
func (f *finder) feedsBack(phi, node program.ValueID) bool {
	p := f.Index.Value(phi)
	if !p.Is(program.OpPhi) || !f.Task.Contains(p.Block) {
		return false
	}
	return slices.Contains(p.Operands, node)
}

// memory recognizes the unoptimized form: the stored operator reads a load
// of the very address it is stored to.
func (f *finder) memory(v, st *program.Value) *Variable {
	operands := v.Operands
	switch {
	case isFusedMultiplyAdd(f.Index, v):
		if len(operands) != 3 {
			return nil
		}
		operands = operands[2:]
	case !v.Op.IsBinary():
		return nil
	}
	for _, op := range operands {
		l := f.Index.Value(op)
		if !l.Is(program.OpLoad) || !f.Task.Contains(l.Block) {
			continue
		}
		if sameAddress(f.Index, l.PointerOperand(), st.PointerOperand(), 0) {
			return &Variable{
				Form:        FormMemory,
				Node:        v.ID,
				Op:          v.Op,
				Accumulator: l.ID,
				Address:     st.PointerOperand(),
				Store:       st.ID,
			}
		}
	}
	return nil
}

// offsetBy returns an induction variable of cycle c that offsets the address
// st writes to, or nil. Such a store writes a different element every
// iteration, which is an element-wise pattern rather than an accumulation.
func (f *finder) offsetBy(st *program.Value, c cycle.ID) *dimension.Dimension {
	gov := f.Dimensions.Governing(c)
	if len(gov) == 0 {
		return nil
	}
	for _, col := range f.Collections {
		if !slices.Contains(col.Stores, st.ID) {
			continue
		}
		for _, d := range gov {
			if col.HasDimension(f.Forest, d.ID) {
				return d
			}
		}
		return nil
	}

	// The store has no collection; look for the dimensions directly.
	var found *dimension.Dimension
	f.Index.Walk([]program.ValueID{st.PointerOperand()}, program.Backward, func(v *program.Value) bool {
		if found != nil || !v.IsInstruction() || !f.Task.Contains(v.Block) {
			return false
		}
		node := v.ID
		if v.Is(program.OpLoad) {
			node = v.PointerOperand()
		}
		for _, d := range gov {
			if d.Node == node {
				found = d
				return false
			}
		}
		return true
	})
	return found
}

// advances reports whether addr is, or is computed from, a merge value of
// the task that is fed an address computation on itself (p = phi(a, p + k)).
func (f *finder) advances(addr program.ValueID) bool {
	v := f.Index.Value(f.Index.StripCasts(addr))
	if v != nil && v.Is(program.OpGEP) {
		v = f.Index.Value(f.Index.StripCasts(v.PointerOperand()))
	}
	if v == nil || !v.Is(program.OpPhi) || !f.Task.Contains(v.Block) {
		return false
	}
	for _, in := range v.Operands {
		next := f.Index.Value(f.Index.StripCasts(in))
		if next != nil && next.Is(program.OpGEP) && f.Index.StripCasts(next.PointerOperand()) == v.ID {
			return true
		}
	}
	return false
}

// sameAddress reports whether a and b compute the same address: the same
// value, loads of the same address, or address computations with the same
// pointer and indices.
func sameAddress(idx *program.Index, a, b program.ValueID, depth int) bool {
	a, b = idx.StripCasts(a), idx.StripCasts(b)
	if a == b {
		return true
	}
	if depth > 8 {
		return false
	}
	va, vb := idx.Value(a), idx.Value(b)
	if va == nil || vb == nil || !va.IsInstruction() || va.Op != vb.Op {
		return false
	}
	switch va.Op {
	case program.OpLoad:
		return sameAddress(idx, va.PointerOperand(), vb.PointerOperand(), depth+1)
	case program.OpGEP:
		ia, ib := va.Indices(), vb.Indices()
		if len(ia) != len(ib) || !sameAddress(idx, va.PointerOperand(), vb.PointerOperand(), depth+1) {
			return false
		}
		for i := range ia {
			if ia[i] == ib[i] {
				continue
			}
			na, oka := idx.ConstInt(ia[i])
			nb, okb := idx.ConstInt(ib[i])
			if !oka || !okb || na != nb {
				return false
			}
		}
		return true
	}
	return false
}

func isFusedMultiplyAdd(idx *program.Index, v *program.Value) bool {
	if !v.Is(program.OpCall) {
		return false
	}
	name := idx.CalleeName(v)
	return strings.HasPrefix(name, "llvm.fmuladd") || strings.HasPrefix(name, "llvm.fma.")
}

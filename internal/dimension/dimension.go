// Package dimension infers the iteration spaces of a task: one induction
// variable per resolvable cycle exit, and a counter for every other
// self-updating integer merge value.
package dimension

import (
	"context"
	"slices"

	"github.com/benroywillis/Cyclebite-sub001/internal/category"
	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// Kind discriminates the dimension variants.
type Kind int

const (
	// KindCounter traverses an integer space without deciding an exit.
	KindCounter Kind = iota
	// KindInductionVariable drives a cycle exit.
	KindInductionVariable
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	if k == KindInductionVariable {
		return "induction variable"
	}
	return "counter"
}

// ID is the handle of a dimension within its task.
type ID int

// NoDimension is the zero handle.
const NoDimension ID = 0

// Dimension is a counter or an induction variable.
type Dimension struct {
	ID   ID
	Kind Kind
	// Node is the merge value in optimized code, or the stack slot the
	// variable lives in when it is reloaded on every use.
	Node   program.ValueID
	Update program.ValueID
	Cycle  cycle.ID
	// Exit is the terminator an induction variable decides.
	Exit  program.ValueID
	Space PolySpace
	// Divisor is set when the update is a right shift by a constant.
	Divisor int64
}

// Set holds the dimensions of one task.
type Set struct {
	dims   []*Dimension
	byNode map[program.ValueID]ID
}

func newSet() *Set { return &Set{byNode: make(map[program.ValueID]ID)} }

func (s *Set) add(d *Dimension) {
	d.ID = ID(len(s.dims) + 1)
	s.dims = append(s.dims, d)
	s.byNode[d.Node] = d.ID
}

// Get returns the dimension with the given handle, or nil.
func (s *Set) Get(id ID) *Dimension {
	if id <= 0 || int(id) > len(s.dims) {
		return nil
	}
	return s.dims[id-1]
}

// All returns every dimension in discovery order.
func (s *Set) All() []*Dimension { return s.dims }

// ByNode returns the dimension defined by a merge value or stack slot.
func (s *Set) ByNode(id program.ValueID) (*Dimension, bool) {
	d, ok := s.byNode[id]
	if !ok {
		return nil, false
	}
	return s.dims[d-1], true
}

// Governing returns the induction variables of cycle c.
func (s *Set) Governing(c cycle.ID) []*Dimension {
	var out []*Dimension
	for _, d := range s.dims {
		if d.Kind == KindInductionVariable && d.Cycle == c {
			out = append(out, d)
		}
	}
	return out
}

// Find builds the dimensions of task.
func Find(ctx context.Context, idx *program.Index, task *cycle.Task, forest *cycle.Forest, cats *category.Set) (*Set, error) {
	logger := ctxlog.FromContext(ctx)
	f := &finder{idx: idx, task: task, forest: forest, cats: cats}
	set := newSet()

	for _, cid := range task.Cycles {
		c := forest.Cycle(cid)
		for _, exit := range c.Exits {
			d, err := f.inductionVariable(c, exit)
			if err != nil {
				return nil, err
			}
			if d == nil {
				logger.Debug("No induction variable for exit.", "cycle", cid, "exit", exit)
				continue
			}
			if _, dup := set.byNode[d.Node]; dup {
				continue
			}
			set.add(d)
			logger.Debug("Induction variable found.", "cycle", cid, "node", d.Node, "space", d.Space.String())
		}
	}

	for _, bb := range task.Blocks.Sorted() {
		for _, id := range idx.Block(bb).Instructions {
			v := idx.Value(id)
			if !v.Is(program.OpPhi) || !v.Type.IsInteger() {
				continue
			}
			if _, claimed := set.byNode[id]; claimed {
				continue
			}
			if d := f.counter(v); d != nil {
				set.add(d)
				logger.Debug("Counter found.", "cycle", d.Cycle, "node", d.Node, "space", d.Space.String())
			}
		}
	}
	return set, nil
}

type finder struct {
	idx    *program.Index
	task   *cycle.Task
	forest *cycle.Forest
	cats   *category.Set
}

func (f *finder) inCycle(c *cycle.Cycle, v *program.Value) bool {
	return v.IsInstruction() && c.Contains(v.Block)
}

func (f *finder) inductionVariable(c *cycle.Cycle, exit program.ValueID) (*Dimension, error) {
	term := f.idx.Value(exit)
	cond := f.idx.Value(term.Condition())
	if cond == nil {
		return nil, nil
	}
	node := f.definingValue(c, cond)
	if !node.IsValid() {
		return nil, nil
	}
	update, err := f.update(c, node, cond)
	if err != nil {
		return nil, err
	}
	stride, divisor, err := f.stride(c, update)
	if err != nil {
		return nil, err
	}
	init := f.init(c, node)
	b := f.bound(c, term, cond)
	return &Dimension{
		Kind:    KindInductionVariable,
		Node:    node,
		Update:  update,
		Cycle:   c.ID,
		Exit:    exit,
		Space:   combine(init, stride, b),
		Divisor: divisor,
	}, nil
}

// definingValue walks back from the exit condition over State instructions
// of the cycle and returns the merge value or stack slot it depends on.
// Merge values owned by a child cycle lose to the cycle's own.
func (f *finder) definingValue(c *cycle.Cycle, cond *program.Value) program.ValueID {
	var candidates []program.ValueID
	f.idx.Walk([]program.ValueID{cond.ID}, program.Backward, func(v *program.Value) bool {
		if !f.inCycle(c, v) || !f.cats.State.Has(v.ID) {
			return false
		}
		switch {
		case v.Is(program.OpPhi):
			candidates = append(candidates, v.ID)
			return false
		case v.Is(program.OpLoad):
			if p := v.PointerOperand(); f.cats.StatePointers.Has(p) && !slices.Contains(candidates, p) {
				candidates = append(candidates, p)
			}
			return false
		}
		return true
	})
	if len(candidates) == 0 {
		return program.NoValue
	}
	slices.Sort(candidates)
	for _, id := range candidates {
		if !f.ownedByChild(c, f.idx.Value(id)) {
			return id
		}
	}
	return candidates[0]
}

func (f *finder) ownedByChild(c *cycle.Cycle, v *program.Value) bool {
	if !v.IsInstruction() {
		return false
	}
	for _, child := range c.Children {
		if cc := f.forest.Cycle(child); cc != nil && cc.Contains(v.Block) {
			return true
		}
	}
	return false
}

// update finds the binary operator that advances node. With more than one
// candidate, only the one feeding the exit condition through State
// instructions survives.
func (f *finder) update(c *cycle.Cycle, node program.ValueID, cond *program.Value) (program.ValueID, error) {
	var binops []program.ValueID
	f.idx.Walk([]program.ValueID{node}, program.Forward, func(v *program.Value) bool {
		if v.ID == node {
			return true
		}
		if !f.inCycle(c, v) {
			return false
		}
		switch {
		case v.Op.IsBinary():
			binops = append(binops, v.ID)
			return true
		case v.Is(program.OpPhi), v.Op.IsCast():
			return true
		case v.Is(program.OpLoad):
			return v.PointerOperand() == node
		}
		return false
	})
	switch len(binops) {
	case 0:
		return program.NoValue, nil
	case 1:
		return binops[0], nil
	}

	cone := f.stateCone(c, cond.ID)
	var kept []program.ValueID
	for _, id := range binops {
		if cone.Has(id) {
			kept = append(kept, id)
		}
	}
	if len(kept) != 1 {
		return program.NoValue, fault.Taskf("dimension.update", fault.ErrUnsupported,
			"cycle %d: %d candidate updates of %d feed the exit", c.ID, len(kept), node)
	}
	return kept[0], nil
}

// stateCone returns the State instructions of c the value from depends on. A
// load of a state pointer also depends on the stores that write it.
func (f *finder) stateCone(c *cycle.Cycle, from program.ValueID) program.ValueSet {
	cone := make(program.ValueSet)
	queue := []program.ValueID{from}
	for len(queue) > 0 {
		v := f.idx.Value(queue[0])
		queue = queue[1:]
		if !f.inCycle(c, v) || !f.cats.State.Has(v.ID) || !cone.Add(v.ID) {
			continue
		}
		queue = append(queue, v.Operands...)
		if p := v.PointerOperand(); v.Is(program.OpLoad) && f.cats.StatePointers.Has(p) {
			for _, u := range f.idx.Value(p).Users {
				if st := f.idx.Value(u); st.Is(program.OpStore) && st.PointerOperand() == p {
					queue = append(queue, u)
				}
			}
		}
	}
	return cone
}

// stride reads the constant step of update. Right shifts divide by a power
// of two, which leaves the stride itself undetermined.
func (f *finder) stride(c *cycle.Cycle, update program.ValueID) (int64, int64, error) {
	v := f.idx.Value(update)
	if v == nil {
		return Undetermined, 0, nil
	}
	constant := func() (int64, bool) {
		for _, op := range v.Operands {
			if n, ok := f.idx.ConstInt(op); ok {
				return n, true
			}
		}
		return 0, false
	}
	switch v.Op {
	case program.OpAdd:
		if n, ok := constant(); ok {
			return n, 0, nil
		}
		return Undetermined, 0, nil
	case program.OpLShr, program.OpAShr:
		if n, ok := f.idx.ConstInt(v.Operands[1]); ok && n >= 0 && n < 63 {
			return Undetermined, int64(1) << n, nil
		}
		return Undetermined, 0, nil
	}
	return Undetermined, 0, fault.Taskf("dimension.stride", fault.ErrUnsupported,
		"cycle %d: dimension updated by %s", c.ID, v.Op)
}

// init returns the constant the dimension starts from: the constant stored
// into its stack slot, or the constant a merge value receives from outside
// the cycle.
func (f *finder) init(c *cycle.Cycle, node program.ValueID) int64 {
	v := f.idx.Value(node)
	if v.Is(program.OpPhi) {
		return f.phiInit(c, v, make(program.ValueSet))
	}
	found, inside := Undetermined, Undetermined
	for _, u := range v.Users {
		st := f.idx.Value(u)
		if !st.Is(program.OpStore) || st.PointerOperand() != node {
			continue
		}
		n, ok := f.idx.ConstInt(st.StoredValue())
		if !ok {
			continue
		}
		if c.Contains(st.Block) {
			if inside == Undetermined {
				inside = n
			}
			continue
		}
		if found == Undetermined {
			found = n
		}
	}
	if found != Undetermined {
		return found
	}
	return inside
}

// phiInit follows incoming edges from outside the cycle, through selects
// and other merge values, until it reaches a constant.
func (f *finder) phiInit(c *cycle.Cycle, phi *program.Value, seen program.ValueSet) int64 {
	if !seen.Add(phi.ID) {
		return Undetermined
	}
	for i, op := range phi.Operands {
		if phi.Is(program.OpPhi) && c.Contains(phi.Incoming[i]) {
			continue
		}
		if phi.Is(program.OpSelect) && i == 0 {
			continue
		}
		if n, ok := f.idx.ConstInt(op); ok {
			return n
		}
		if in := f.idx.Value(op); in.Is(program.OpPhi) || in.Is(program.OpSelect) {
			if n := f.phiInit(c, in, seen); n != Undetermined {
				return n
			}
		}
	}
	return Undetermined
}

// bound reads the constant operand of the comparison deciding the exit and
// normalises the relation to "continue while".
func (f *finder) bound(c *cycle.Cycle, term, cond *program.Value) bound {
	if cond.Is(program.OpSelect) {
		cond = f.idx.Value(cond.Condition())
	}
	if !cond.Is(program.OpICmp) || len(cond.Operands) != 2 {
		return noBound
	}
	rel := cond.Predicate.Relation()
	value, ok := f.idx.ConstInt(cond.Operands[1])
	if !ok {
		if value, ok = f.idx.ConstInt(cond.Operands[0]); !ok {
			return noBound
		}
		rel = rel.Swapped()
	}
	if !term.Is(program.OpBr) || len(term.Successors) != 2 {
		return noBound
	}
	if !c.Contains(term.Successors[0]) {
		rel = rel.Inverse()
	}
	return bound{value: value, rel: rel}
}

// counter recognises phi = phi + constant patterns outside any exit.
func (f *finder) counter(phi *program.Value) *Dimension {
	cid, ok := f.forest.InnermostContaining(f.task.Cycles, phi.Block)
	if !ok {
		return nil
	}
	c := f.forest.Cycle(cid)
	for i, op := range phi.Operands {
		if !c.Contains(phi.Incoming[i]) {
			continue
		}
		upd := f.idx.Value(op)
		if !upd.IsInstruction() || !upd.Op.IsBinary() || !slices.Contains(upd.Operands, phi.ID) {
			continue
		}
		stride, divisor, err := f.stride(c, upd.ID)
		if err != nil {
			return nil
		}
		return &Dimension{
			Kind:    KindCounter,
			Node:    phi.ID,
			Update:  upd.ID,
			Cycle:   cid,
			Space:   combine(f.init(c, phi.ID), stride, noBound),
			Divisor: divisor,
		}
	}
	return nil
}

// Package category colors the instructions of a task by role. Function
// instructions compute the values the task stores, State instructions decide
// when its cycles exit, and Memory instructions compute addresses.
package category

import (
	"context"

	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// Category is the role assigned to an instruction.
type Category int

const (
	None Category = iota
	Function
	State
	Memory
)

// String returns the string representation of the category.
func (c Category) String() string {
	switch c {
	case Function:
		return "function"
	case State:
		return "state"
	case Memory:
		return "memory"
	default:
		return "none"
	}
}

// Set is the coloring of one task. After Categorize returns, the three
// category sets are pairwise disjoint.
type Set struct {
	Function program.ValueSet
	State    program.ValueSet
	Memory   program.ValueSet
	// StatePointers are the addresses loaded while deciding an exit, i.e.
	// the stack slots of unoptimized loop counters.
	StatePointers program.ValueSet
}

// Of returns the category of id.
func (s *Set) Of(id program.ValueID) Category {
	switch {
	case s.State.Has(id):
		return State
	case s.Function.Has(id):
		return Function
	case s.Memory.Has(id):
		return Memory
	default:
		return None
	}
}

// Categorize colors every instruction inside the task's blocks.
func Categorize(ctx context.Context, idx *program.Index, task *cycle.Task, forest *cycle.Forest) (*Set, error) {
	logger := ctxlog.FromContext(ctx)
	c := &colorer{idx: idx, task: task}

	function, err := c.findFunction()
	if err != nil {
		return nil, err
	}
	state, pointers, err := c.findState(forest)
	if err != nil {
		return nil, err
	}
	memory := c.findMemory()

	for id := range state {
		delete(function, id)
		delete(memory, id)
	}
	for id := range function {
		delete(memory, id)
	}

	logger.Debug("Categorize: coloring complete.",
		"function", len(function), "state", len(state), "memory", len(memory), "state_pointers", len(pointers))
	return &Set{Function: function, State: state, Memory: memory, StatePointers: pointers}, nil
}

type colorer struct {
	idx  *program.Index
	task *cycle.Task
}

func (c *colorer) inTask(v *program.Value) bool {
	return v.IsInstruction() && c.task.Contains(v.Block)
}

// instructions returns the task's instructions in block order.
func (c *colorer) instructions() []*program.Value {
	var out []*program.Value
	for _, bb := range c.task.Blocks.Sorted() {
		for _, id := range c.idx.Block(bb).Instructions {
			out = append(out, c.idx.Value(id))
		}
	}
	return out
}

// findFunction colors Red everything a stored value is computed from, up to
// the loads, merge values and calls that feed it, and Blue everything those
// feeders reach before the next memory access. Function is Red and Blue.
func (c *colorer) findFunction() (program.ValueSet, error) {
	red := make(program.ValueSet)
	blue := make(program.ValueSet)
	var feeders []program.ValueID

	for _, st := range c.instructions() {
		if !st.Is(program.OpStore) {
			continue
		}
		for _, op := range st.Operands {
			if c.idx.Value(op).Is(program.OpStore) {
				return nil, fault.Taskf("category.findFunction", fault.ErrStructural, "store %d uses store %d as an operand", st.ID, op)
			}
		}
		c.idx.Walk([]program.ValueID{st.StoredValue()}, program.Backward, func(v *program.Value) bool {
			if !c.inTask(v) {
				return false
			}
			switch v.Op {
			case program.OpLoad:
				feeders = append(feeders, v.ID)
				return false
			case program.OpPhi:
				return false
			case program.OpCall, program.OpInvoke:
				red.Add(v.ID)
				blue.Add(v.ID)
				feeders = append(feeders, v.ID)
				return true
			}
			red.Add(v.ID)
			return true
		})
	}

	var seeds []program.ValueID
	for _, id := range feeders {
		seeds = append(seeds, c.idx.Value(id).Users...)
	}
	c.idx.Walk(seeds, program.Forward, func(v *program.Value) bool {
		if !c.inTask(v) {
			return false
		}
		switch v.Op {
		case program.OpStore, program.OpLoad, program.OpGEP:
			return false
		}
		blue.Add(v.ID)
		return true
	})

	function := make(program.ValueSet)
	for id := range red {
		if blue.Has(id) {
			function.Add(id)
		}
	}
	return function, nil
}

// findState colors everything the cycle exits depend on. Loads reached on
// the way mark their address as a state pointer; the read-modify-write
// chains that update a state pointer are State too.
func (c *colorer) findState(forest *cycle.Forest) (program.ValueSet, program.ValueSet, error) {
	state := make(program.ValueSet)
	pointers := make(program.ValueSet)

	for _, cid := range c.task.Cycles {
		for _, exit := range forest.Cycle(cid).Exits {
			term := c.idx.Value(exit)
			switch term.Op {
			case program.OpBr, program.OpSwitch, program.OpInvoke:
			default:
				return nil, nil, fault.Taskf("category.findState", fault.ErrUnsupported,
					"cycle %d exits through %s", cid, term.Op)
			}
			c.idx.Walk([]program.ValueID{exit}, program.Backward, func(v *program.Value) bool {
				if !c.inTask(v) {
					return false
				}
				state.Add(v.ID)
				if v.Is(program.OpLoad) {
					pointers.Add(v.PointerOperand())
					return false
				}
				return true
			})
		}
	}

	for _, p := range pointers.Sorted() {
		c.updates(p, state)
	}
	return state, pointers, nil
}

// updates adds to state every task instruction that lies on a path from
// pointer p to a store writing back through p.
func (c *colorer) updates(p program.ValueID, state program.ValueSet) {
	ptr := c.idx.Value(p)
	if ptr == nil {
		return
	}
	var stores []program.ValueID
	for _, u := range ptr.Users {
		if v := c.idx.Value(u); c.inTask(v) && v.Is(program.OpStore) && v.PointerOperand() == p {
			stores = append(stores, u)
		}
	}
	if len(stores) == 0 {
		return
	}
	forward := c.idx.Reachable(ptr.Users, program.Forward, c.inTask)
	backward := c.idx.Reachable(stores, program.Backward, c.inTask)
	for id := range forward {
		if backward.Has(id) {
			state.Add(id)
		}
	}
}

// findMemory colors every address operand of a load or store and
// everything that address is computed from.
func (c *colorer) findMemory() program.ValueSet {
	var seeds []program.ValueID
	for _, v := range c.instructions() {
		if v.Op.IsMemory() {
			seeds = append(seeds, v.PointerOperand())
		}
	}
	return c.idx.Reachable(seeds, program.Backward, c.inTask)
}

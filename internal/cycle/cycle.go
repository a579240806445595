package cycle

import (
	"context"
	"slices"

	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// ID is the stable handle of a cycle. Task ids share the space: a task is
// named after its parent-most cycle.
type ID int64

// Kernel is one entry of a kernel descriptor.
type Kernel struct {
	Blocks   []program.BlockID
	Parents  []ID
	Children []ID
}

// Cycle is one recognised loop nest level.
type Cycle struct {
	ID            ID
	Blocks        program.BlockSet
	ControlBlocks []program.BlockID
	Exits         []program.ValueID
	Parents       []ID
	Children      []ID
	// Err records an unsupported exit shape. The cycle stays in the forest so
	// task grouping is unaffected, but its task cannot be analysed.
	Err error
}

// Contains reports whether basic block bb belongs to the cycle.
func (c *Cycle) Contains(bb program.BlockID) bool { return c.Blocks.Has(bb) }

// Entry returns the source location of the first instruction of the cycle's
// entry block, i.e. the block reached from outside the cycle.
func (c *Cycle) Entry(idx *program.Index) (program.Location, bool) {
	var best program.Location
	found := false
	for _, bb := range c.Blocks.Sorted() {
		blk := idx.Block(bb)
		entry := false
		for _, p := range blk.Predecessors {
			if !c.Blocks.Has(p) {
				entry = true
				break
			}
		}
		if !entry {
			continue
		}
		for _, id := range blk.Instructions {
			loc := idx.Value(id).Loc
			if loc.Line <= 0 {
				continue
			}
			if !found || loc.Line < best.Line {
				best, found = loc, true
			}
		}
	}
	return best, found
}

// Forest owns every cycle of a run.
type Forest struct {
	cycles map[ID]*Cycle
	order  []ID
}

// Cycle returns the cycle with the given handle, or nil.
func (f *Forest) Cycle(id ID) *Cycle { return f.cycles[id] }

// IDs returns every cycle handle in ascending order.
func (f *Forest) IDs() []ID { return f.order }

// Len returns the number of cycles.
func (f *Forest) Len() int { return len(f.order) }

// InnermostContaining returns the child-most cycle among ids that contains bb.
func (f *Forest) InnermostContaining(ids []ID, bb program.BlockID) (ID, bool) {
	var best ID
	bestSize := -1
	for _, id := range ids {
		c := f.cycles[id]
		if c == nil || !c.Contains(bb) {
			continue
		}
		if bestSize < 0 || len(c.Blocks) < bestSize {
			best, bestSize = id, len(c.Blocks)
		}
	}
	return best, bestSize >= 0
}

// Build creates one cycle per kernel and wires the parent/child hints. Hints
// naming kernels that are not in the descriptor are dropped.
func Build(ctx context.Context, idx *program.Index, kernels map[ID]Kernel) (*Forest, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting cycle construction.", "kernels", len(kernels))

	f := &Forest{cycles: make(map[ID]*Cycle, len(kernels))}
	for id := range kernels {
		f.order = append(f.order, id)
	}
	slices.Sort(f.order)

	for _, id := range f.order {
		c, err := newCycle(idx, id, kernels[id])
		if err != nil {
			return nil, err
		}
		if c.Err != nil {
			logger.Warn("Cycle has an unsupported exit shape.", "cycle", id, "error", c.Err)
		}
		f.cycles[id] = c
	}

	for _, id := range f.order {
		k := kernels[id]
		for _, child := range k.Children {
			f.link(id, child)
		}
		for _, parent := range k.Parents {
			f.link(parent, id)
		}
	}
	for _, c := range f.cycles {
		slices.Sort(c.Parents)
		slices.Sort(c.Children)
	}

	logger.Debug("Build: cycle construction complete.", "cycles", len(f.order))
	return f, nil
}

func (f *Forest) link(parent, child ID) {
	p, c := f.cycles[parent], f.cycles[child]
	if p == nil || c == nil || parent == child {
		return
	}
	if !slices.Contains(p.Children, child) {
		p.Children = append(p.Children, child)
	}
	if !slices.Contains(c.Parents, parent) {
		c.Parents = append(c.Parents, parent)
	}
}

func newCycle(idx *program.Index, id ID, k Kernel) (*Cycle, error) {
	c := &Cycle{ID: id, Blocks: make(program.BlockSet, len(k.Blocks))}
	controls := make(map[program.BlockID]struct{})
	for _, bb := range k.Blocks {
		if idx.Block(bb) == nil {
			return nil, fault.Runf("cycle.Build", fault.ErrDescriptor, "kernel %d names unknown block %d", id, bb)
		}
		c.Blocks[bb] = struct{}{}
		if cb, ok := idx.ControlBlockOf(bb); ok {
			if _, seen := controls[cb]; !seen {
				controls[cb] = struct{}{}
				c.ControlBlocks = append(c.ControlBlocks, cb)
			}
		}
	}
	slices.Sort(c.ControlBlocks)

	terminators := 0
	for _, bb := range c.Blocks.Sorted() {
		term := idx.Terminator(bb)
		if term == nil {
			continue
		}
		terminators++

		if term.Is(program.OpRet) && c.Err == nil {
			c.Err = checkReturn(idx, c, term)
		}

		live := idx.LiveSuccessors(bb)
		if len(live) < 2 {
			continue
		}
		leaves := false
		for _, s := range live {
			if !c.Blocks.Has(s) {
				leaves = true
				break
			}
		}
		if !leaves {
			continue
		}
		c.Exits = append(c.Exits, term.ID)
		if cond := idx.Value(term.Condition()); cond.Is(program.OpSelect) && c.Err == nil {
			c.Err = fault.Taskf("cycle.Build", fault.ErrUnsupported, "cycle %d exits on select %d", id, cond.ID)
		}
	}
	if terminators == 0 {
		return nil, fault.Runf("cycle.Build", fault.ErrDescriptor, "kernel %d has no terminator in any of its %d blocks", id, len(k.Blocks))
	}
	return c, nil
}

// checkReturn rejects a cycle that carries a function return whose
// destination is ambiguous: the function is entered from more than one call
// site inside the cycle, so the return edge has several live destinations.
func checkReturn(idx *program.Index, c *Cycle, ret *program.Value) error {
	sites := 0
	for _, call := range idx.Callers(ret.Func) {
		if c.Blocks.Has(idx.Value(call).Block) {
			sites++
		}
	}
	if sites > 1 {
		return fault.Taskf("cycle.Build", fault.ErrUnsupported, "cycle %d returns from function %d to %d call sites", c.ID, ret.Func, sites)
	}
	return nil
}

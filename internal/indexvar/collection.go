package indexvar

import (
	"context"
	"slices"

	"github.com/benroywillis/Cyclebite-sub001/internal/basepointer"
	"github.com/benroywillis/Cyclebite-sub001/internal/category"
	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/dimension"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// CollectionID is the handle of a collection within its task.
type CollectionID int

// Collection is a base pointer viewed through an ordered list of index
// variables. It is read by exactly one load, or written by one or more
// stores.
type Collection struct {
	ID          CollectionID
	BasePointer basepointer.ID
	// IndexVariables are ordered parent to child.
	IndexVariables []ID
	Address        program.ValueID
	Loads          []program.ValueID
	Stores         []program.ValueID
}

// IsOutput reports whether the collection is written.
func (c *Collection) IsOutput() bool { return len(c.Stores) > 0 }

// Dimensions returns the dimensions the collection's index variables are
// bound to, outer to inner. Unbound variables are skipped.
func (c *Collection) Dimensions(f *Forest) []dimension.ID {
	var out []dimension.ID
	for _, id := range c.IndexVariables {
		if d := f.Get(id).Dimension; d != dimension.NoDimension && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

// HasDimension reports whether one of the collection's index variables is
// bound to d.
func (c *Collection) HasDimension(f *Forest, d dimension.ID) bool {
	return slices.Contains(c.Dimensions(f), d)
}

// Overlaps reports whether c and other may touch different elements of the
// same memory in one iteration of dimension d: they share a base pointer and
// each has a distinct index variable on d with a different affine offset.
func (c *Collection) Overlaps(f *Forest, other *Collection, d dimension.ID) bool {
	if c.BasePointer != other.BasePointer {
		return false
	}
	for _, a := range c.IndexVariables {
		ia := f.Get(a)
		if ia.Dimension != d {
			continue
		}
		for _, b := range other.IndexVariables {
			ib := f.Get(b)
			if ib.Dimension != d || a == b {
				continue
			}
			if ia.Coefficient != ib.Coefficient || ia.Offset != ib.Offset {
				return true
			}
		}
	}
	return false
}

// Collections builds one collection per start-point load and one per
// stored-to address.
func Collections(ctx context.Context, idx *program.Index, task *cycle.Task, cats *category.Set, f *Forest, bps *basepointer.Set) ([]*Collection, error) {
	logger := ctxlog.FromContext(ctx)
	var out []*Collection
	byAddress := make(map[program.ValueID]*Collection)

	for _, sp := range startPoints(idx, task, cats) {
		if sp.store {
			if c, ok := byAddress[sp.address]; ok {
				c.Stores = append(c.Stores, sp.access)
				continue
			}
		}
		bases := bps.Resolve(sp.address)
		switch len(bases) {
		case 0:
			logger.Debug("Access has no base pointer, skipping.", "access", sp.access)
			continue
		case 1:
		default:
			return nil, fault.Taskf("indexvar.Collections", fault.ErrStructural,
				"address %d resolves to %d base pointers", sp.address, len(bases))
		}
		c := &Collection{
			ID:             CollectionID(len(out) + 1),
			BasePointer:    bases[0],
			IndexVariables: spine(idx, f, sp.address),
			Address:        sp.address,
		}
		if sp.store {
			c.Stores = []program.ValueID{sp.access}
			byAddress[sp.address] = c
		} else {
			c.Loads = []program.ValueID{sp.access}
		}
		out = append(out, c)
	}
	logger.Debug("Collections: built.", "count", len(out))
	return out, nil
}

// spine returns the index variables of the address computations an address
// is derived from through pointer operands, parent to child.
func spine(idx *program.Index, f *Forest, address program.ValueID) []ID {
	var geps []program.ValueID
	cur := idx.Value(address)
	seen := make(program.ValueSet)
	for cur != nil && seen.Add(cur.ID) {
		switch {
		case cur.Is(program.OpGEP):
			geps = append(geps, cur.ID)
			cur = idx.Value(cur.PointerOperand())
		case cur.Is(program.OpLoad):
			cur = idx.Value(cur.PointerOperand())
		case cur.IsInstruction() && cur.Op.IsCast():
			cur = idx.Value(cur.Operands[0])
		default:
			cur = nil
		}
	}
	var out []ID
	for i := len(geps) - 1; i >= 0; i-- {
		out = append(out, f.OfGEP(geps[i])...)
	}
	return out
}

// Package indexvar decomposes the address computations of a task into a
// forest of index variables and pairs them with base pointers to form
// collections, the N-dimensional views a task reads and writes.
package indexvar

import (
	"cmp"
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

// ID is the handle of an index variable within its task.
type ID int

// NoIndexVariable is the zero handle.
const NoIndexVariable ID = 0

// IndexVariable is one affine offset of an address computation:
// Coefficient*Leaf + Offset along index position Position of Node.
type IndexVariable struct {
	ID ID
	// Node is the address computation the variable offsets.
	Node program.ValueID
	// Leaf is the value that varies. It is Node itself when the address
	// computation has only constant indices.
	Leaf         program.ValueID
	Position     int
	Coefficient  int64
	Offset       int64
	Dimension    dimension.ID
	Parent       ID
	Children     []ID
	BasePointers []basepointer.ID
	// Loaded is set on a variable with children whose address is only ever
	// dereferenced, never used to compute another address.
	Loaded bool
}

// Forest holds the index variables of one task.
type Forest struct {
	ivs   []*IndexVariable
	byGEP map[program.ValueID][]ID
}

// NewForest assembles a forest from index variables whose handles are
// 1..len(ivs) in order and whose links are already set.
func NewForest(ivs ...*IndexVariable) (*Forest, error) {
	f := &Forest{ivs: ivs, byGEP: make(map[program.ValueID][]ID)}
	for i, iv := range ivs {
		if iv.ID != ID(i+1) {
			return nil, fault.Taskf("indexvar.NewForest", fault.ErrStructural, "index variable %d at position %d", iv.ID, i+1)
		}
		f.byGEP[iv.Node] = append(f.byGEP[iv.Node], iv.ID)
	}
	for _, iv := range ivs {
		if iv.Parent != NoIndexVariable && (f.Get(iv.Parent) == nil || f.Descends(iv.Parent, iv.ID)) {
			return nil, fault.Taskf("indexvar.NewForest", fault.ErrStructural, "index variable %d has a bad parent %d", iv.ID, iv.Parent)
		}
	}
	return f, nil
}

// Get returns the index variable with the given handle, or nil.
func (f *Forest) Get(id ID) *IndexVariable {
	if id <= 0 || int(id) > len(f.ivs) {
		return nil
	}
	return f.ivs[id-1]
}

// All returns every index variable in creation order.
func (f *Forest) All() []*IndexVariable { return f.ivs }

// OfGEP returns the index variables of one address computation, outer to
// inner.
func (f *Forest) OfGEP(gep program.ValueID) []ID { return f.byGEP[gep] }

// Descends reports whether a is a transitive child of b.
func (f *Forest) Descends(a, b ID) bool {
	seen := make(map[ID]bool)
	for cur := f.Get(a); cur != nil && cur.Parent != NoIndexVariable; cur = f.Get(cur.Parent) {
		if cur.Parent == b {
			return true
		}
		if seen[cur.ID] {
			return false
		}
		seen[cur.ID] = true
	}
	return false
}

// link makes parent the parent of child.
func (f *Forest) link(parent, child ID) error {
	p, c := f.Get(parent), f.Get(child)
	if c.Parent == parent {
		return nil
	}
	if c.Parent != NoIndexVariable {
		return fault.Taskf("indexvar.link", fault.ErrStructural,
			"index variable of %d has parents in %d and %d", c.Node, f.Get(c.Parent).Node, p.Node)
	}
	if parent == child || f.Descends(parent, child) {
		return fault.Taskf("indexvar.link", fault.ErrStructural,
			"linking %d under %d closes a cycle", c.Node, p.Node)
	}
	c.Parent = parent
	p.Children = append(p.Children, child)
	return nil
}

// start is an address feeding the task's computation.
type start struct {
	address program.ValueID
	access  program.ValueID
	store   bool
}

// startPoints returns the addresses of loads that feed only Function
// instructions and of stores whose value is a Function instruction.
func startPoints(idx *program.Index, task *cycle.Task, cats *category.Set) []start {
	var out []start
	for _, bb := range task.Blocks.Sorted() {
		for _, id := range idx.Block(bb).Instructions {
			v := idx.Value(id)
			switch {
			case v.Is(program.OpLoad):
				if len(v.Users) == 0 {
					continue
				}
				feeds := true
				for _, u := range v.Users {
					if !cats.Function.Has(u) {
						feeds = false
						break
					}
				}
				if feeds {
					out = append(out, start{address: v.PointerOperand(), access: id})
				}
			case v.Is(program.OpStore):
				if cats.Function.Has(v.StoredValue()) {
					out = append(out, start{address: v.PointerOperand(), access: id, store: true})
				}
			}
		}
	}
	return out
}

// Build creates the index variables of every address computation that
// feeds a start point.
func Build(ctx context.Context, idx *program.Index, task *cycle.Task, cats *category.Set, dims *dimension.Set, bps *basepointer.Set) (*Forest, error) {
	logger := ctxlog.FromContext(ctx)
	b := &builder{
		idx:  idx,
		task: task,
		dims: dims,
		bps:  bps,
		f:    &Forest{byGEP: make(map[program.ValueID][]ID)},
	}

	for _, sp := range startPoints(idx, task, cats) {
		geps := b.geps(sp.address)
		for _, g := range geps {
			b.variables(g)
		}
		for _, g := range geps {
			if err := b.linkGEP(g); err != nil {
				return nil, err
			}
		}
	}
	for _, iv := range b.f.ivs {
		b.markLoaded(iv)
	}
	logger.Debug("Build: index variables created.", "count", len(b.f.ivs), "geps", len(b.f.byGEP))
	return b.f, nil
}

type builder struct {
	idx  *program.Index
	task *cycle.Task
	dims *dimension.Set
	bps  *basepointer.Set
	f    *Forest
}

func (b *builder) inTask(v *program.Value) bool {
	return v.IsInstruction() && b.task.Contains(v.Block)
}

// geps walks back from an address through loads, arithmetic and casts and
// returns the address computations found, child-most first.
func (b *builder) geps(address program.ValueID) []program.ValueID {
	var out []program.ValueID
	b.idx.Walk([]program.ValueID{address}, program.Backward, func(v *program.Value) bool {
		if !b.inTask(v) {
			return false
		}
		switch {
		case v.Is(program.OpGEP):
			out = append(out, v.ID)
			return true
		case v.Is(program.OpLoad), v.Op.IsBinary(), v.Op.IsCast():
			return true
		}
		return false
	})
	return out
}

// term is one variable contribution found inside an index expression.
type term struct {
	leaf   program.ValueID
	pos    int
	coeff  int64
	offset int64
	dim    dimension.ID
}

// variables creates (once) the index variables of gep, outer to inner.
func (b *builder) variables(gep program.ValueID) []ID {
	if ids, ok := b.f.byGEP[gep]; ok {
		return ids
	}
	v := b.idx.Value(gep)
	var terms []term
	var constant int64
	for pos, index := range v.Indices() {
		if n, ok := b.idx.ConstInt(index); ok {
			constant = n
			continue
		}
		terms = append(terms, b.decompose(index, pos, 1, 0, make(program.ValueSet))...)
	}
	slices.SortStableFunc(terms, func(x, y term) int {
		if c := cmp.Compare(x.pos, y.pos); c != 0 {
			return c
		}
		return cmp.Compare(y.coeff, x.coeff)
	})
	if len(terms) == 0 {
		terms = []term{{leaf: gep, coeff: 1, offset: constant}}
	}

	bases := b.bps.Resolve(gep)
	ids := make([]ID, 0, len(terms))
	for _, t := range terms {
		iv := &IndexVariable{
			ID:           ID(len(b.f.ivs) + 1),
			Node:         gep,
			Leaf:         t.leaf,
			Position:     t.pos,
			Coefficient:  t.coeff,
			Offset:       t.offset,
			Dimension:    t.dim,
			BasePointers: bases,
		}
		b.f.ivs = append(b.f.ivs, iv)
		if len(ids) > 0 {
			prev := b.f.Get(ids[len(ids)-1])
			iv.Parent = prev.ID
			prev.Children = append(prev.Children, iv.ID)
		}
		ids = append(ids, iv.ID)
	}
	b.f.byGEP[gep] = ids
	return ids
}

// decompose splits an index expression into its variable terms.
// Coefficients multiply and offsets accumulate on the way down.
func (b *builder) decompose(id program.ValueID, pos int, coeff, offset int64, seen program.ValueSet) []term {
	v := b.idx.Value(id)
	if !b.inTask(v) || !seen.Add(id) {
		return nil
	}
	switch {
	case v.Is(program.OpPhi):
		t := term{leaf: id, pos: pos, coeff: coeff, offset: offset}
		if d, ok := b.dims.ByNode(id); ok {
			t.dim = d.ID
		} else if !v.Type.IsInteger() {
			return nil
		}
		return []term{t}
	case v.Is(program.OpLoad):
		t := term{leaf: id, pos: pos, coeff: coeff, offset: offset}
		if d, ok := b.dims.ByNode(v.PointerOperand()); ok {
			t.dim = d.ID
		}
		return []term{t}
	case v.Op.IsCast():
		return b.decompose(v.Operands[0], pos, coeff, offset, seen)
	case v.Op.IsBinary():
		c, other, ok := b.constantOperand(v)
		if !ok {
			var out []term
			for _, op := range v.Operands {
				out = append(out, b.decompose(op, pos, coeff, offset, seen)...)
			}
			return out
		}
		switch v.Op {
		case program.OpAdd:
			return b.decompose(other, pos, coeff, offset+coeff*c, seen)
		case program.OpSub:
			if other == v.Operands[0] {
				return b.decompose(other, pos, coeff, offset-coeff*c, seen)
			}
			return b.decompose(other, pos, -coeff, offset+coeff*c, seen)
		case program.OpMul:
			return b.decompose(other, pos, coeff*c, offset, seen)
		case program.OpShl:
			if c >= 0 && c < 63 {
				return b.decompose(other, pos, coeff<<c, offset, seen)
			}
		}
		return b.decompose(other, pos, coeff, offset, seen)
	}
	return nil
}

// constantOperand splits a binary operator into its integer constant operand
// and the other one.
func (b *builder) constantOperand(v *program.Value) (int64, program.ValueID, bool) {
	if len(v.Operands) != 2 {
		return 0, program.NoValue, false
	}
	if n, ok := b.idx.ConstInt(v.Operands[1]); ok {
		return n, v.Operands[0], true
	}
	if n, ok := b.idx.ConstInt(v.Operands[0]); ok {
		return n, v.Operands[1], true
	}
	return 0, program.NoValue, false
}

// linkGEP links the outermost variable of gep under the innermost variable
// of the address computation its pointer operand was derived from. A
// pointer merged from two different address computations has two parents,
// which is rejected.
func (b *builder) linkGEP(gep program.ValueID) error {
	inner := b.variables(gep)
	for _, parent := range b.parentGEPs(gep) {
		outer := b.variables(parent)
		if err := b.f.link(outer[len(outer)-1], inner[0]); err != nil {
			return err
		}
	}
	return nil
}

// parentGEPs follows the pointer operand of gep through loads, casts and
// merges to the previous address computations.
func (b *builder) parentGEPs(gep program.ValueID) []program.ValueID {
	var out []program.ValueID
	b.idx.Walk([]program.ValueID{b.idx.Value(gep).PointerOperand()}, program.Backward, func(v *program.Value) bool {
		if !b.inTask(v) {
			return false
		}
		switch {
		case v.Is(program.OpGEP):
			out = append(out, v.ID)
			return false
		case v.Is(program.OpLoad), v.Op.IsCast(), v.Is(program.OpPhi), v.Is(program.OpSelect):
			return true
		}
		return false
	})
	slices.Sort(out)
	return out
}

// markLoaded sets Loaded on variables with children whose address
// computation is only dereferenced.
func (b *builder) markLoaded(iv *IndexVariable) {
	if len(iv.Children) == 0 {
		return
	}
	gep := b.idx.Value(iv.Node)
	if len(gep.Users) == 0 {
		return
	}
	for _, u := range gep.Users {
		load := b.idx.Value(u)
		if !load.Is(program.OpLoad) {
			return
		}
		for _, lu := range load.Users {
			use := b.idx.Value(lu)
			if use.Is(program.OpGEP) || use.PointerOperand() == load.ID {
				return
			}
		}
	}
	iv.Loaded = true
}

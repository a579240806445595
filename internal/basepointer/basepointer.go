// Package basepointer attributes every memory access of a task to the
// object that owns it: a large enough stack or global allocation, a pointer
// argument, or a dynamic allocation.
package basepointer

import (
	"context"
	"slices"

	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// Config tunes the search.
type Config struct {
	// MinSize is the smallest allocation, in bytes, that owns memory on its
	// own. Smaller ones are treated as containers holding a pointer.
	MinSize      int64
	Allocators   []string
	MaxCallDepth int
}

// DefaultConfig returns the settings used when no configuration file is
// given.
func DefaultConfig() Config {
	return Config{
		MinSize:      32,
		Allocators:   []string{"malloc", "calloc", "realloc", "_Znwm", "_Znam"},
		MaxCallDepth: 8,
	}
}

// IsAllocator reports whether name is a dynamic allocation function.
func (c Config) IsAllocator(name string) bool { return slices.Contains(c.Allocators, name) }

// Kind says what owns the memory.
type Kind int

const (
	KindAlloca Kind = iota
	KindArgument
	KindGlobal
	KindAllocator
	KindSubPointer
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindAlloca:
		return "alloca"
	case KindArgument:
		return "argument"
	case KindGlobal:
		return "global"
	case KindAllocator:
		return "allocator"
	case KindSubPointer:
		return "subpointer"
	default:
		return "unknown"
	}
}

// ID is the handle of a base pointer within its task.
type ID int

// BasePointer is one owning memory object.
type BasePointer struct {
	ID   ID
	Node program.ValueID
	Kind Kind
	// Size is the byte footprint, zero when unknown.
	Size int64
	// SubPointers are the pointers stored inside a struct of pointers;
	// each is a base pointer of its own.
	SubPointers []ID
	Parent      ID
}

// Set holds the base pointers of one task.
type Set struct {
	bps    []*BasePointer
	byNode map[program.ValueID]ID
	t      *tracer
}

// Get returns the base pointer with the given handle, or nil.
func (s *Set) Get(id ID) *BasePointer {
	if id <= 0 || int(id) > len(s.bps) {
		return nil
	}
	return s.bps[id-1]
}

// All returns every base pointer in discovery order.
func (s *Set) All() []*BasePointer { return s.bps }

// ByNode returns the base pointer rooted at id.
func (s *Set) ByNode(id program.ValueID) (*BasePointer, bool) {
	bp, ok := s.byNode[id]
	if !ok {
		return nil, false
	}
	return s.bps[bp-1], true
}

// Resolve returns the base pointers nearest to addr along its address
// computation.
func (s *Set) Resolve(addr program.ValueID) []ID {
	nodes := s.t.sources(addr, func(v *program.Value) bool {
		_, ok := s.byNode[v.ID]
		return ok
	})
	out := make([]ID, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, s.byNode[n])
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (s *Set) add(bp *BasePointer) ID {
	if id, ok := s.byNode[bp.Node]; ok {
		return id
	}
	bp.ID = ID(len(s.bps) + 1)
	s.bps = append(s.bps, bp)
	s.byNode[bp.Node] = bp.ID
	return bp.ID
}

// Find resolves the significant loads and stores of task to their base
// pointers.
func Find(ctx context.Context, idx *program.Index, task *cycle.Task, cfg Config, args *CallArgs) (*Set, error) {
	logger := ctxlog.FromContext(ctx)
	t := &tracer{idx: idx, cfg: cfg, args: args}
	set := &Set{byNode: make(map[program.ValueID]ID), t: t}

	for _, bb := range task.Blocks.Sorted() {
		for _, id := range idx.Block(bb).Instructions {
			v := idx.Value(id)
			if !v.Op.IsMemory() || !idx.Significant(id) {
				continue
			}
			for _, node := range t.sources(v.PointerOperand(), t.isCandidate) {
				if _, known := set.byNode[node]; known {
					continue
				}
				t.register(set, idx.Value(node))
			}
		}
	}

	if len(set.bps) == 0 {
		return nil, fault.Taskf("basepointer.Find", fault.ErrNoBasePointer, "task %d", task.ID)
	}
	for _, bp := range set.bps {
		logger.Debug("Base pointer found.", "node", bp.Node, "kind", bp.Kind.String(), "size", bp.Size, "subpointers", len(bp.SubPointers))
	}
	return set, nil
}

type tracer struct {
	idx  *program.Index
	cfg  Config
	args *CallArgs
}

// size returns the byte footprint of a candidate, preferring the static
// size and falling back to the profiled footprint.
func (t *tracer) size(v *program.Value) (int64, bool) {
	switch {
	case v.Kind == program.KindGlobal, v.Is(program.OpAlloca):
		if n := v.ElemType.Size(); n > 0 {
			return n, true
		}
	case v.Is(program.OpCall), v.Is(program.OpInvoke):
		if n, ok := t.args.Size(v.ID); ok {
			return n, true
		}
	}
	return t.idx.Footprint(v.ID)
}

func (t *tracer) isAllocatorCall(v *program.Value) bool {
	return (v.Is(program.OpCall) || v.Is(program.OpInvoke)) && t.cfg.IsAllocator(t.idx.CalleeName(v))
}

// isCandidate reports whether v owns memory. Small allocations are not
// candidates; they are containers holding another pointer.
func (t *tracer) isCandidate(v *program.Value) bool {
	switch {
	case v.Kind == program.KindArgument:
		return v.Type.IsPointer()
	case v.Kind == program.KindGlobal, v.Is(program.OpAlloca):
		if v.ElemType.IsAllPointerStruct() {
			return true
		}
		n, ok := t.size(v)
		return ok && n >= t.cfg.MinSize
	case t.isAllocatorCall(v):
		n, ok := t.size(v)
		return !ok || n >= t.cfg.MinSize
	}
	return false
}

// sources walks back from addr and returns every value stop accepted. Small
// allocations are looked through by following the stores into them; calls to
// defined functions are looked through by following their returns.
func (t *tracer) sources(addr program.ValueID, stop func(*program.Value) bool) []program.ValueID {
	var out []program.ValueID
	seen := make(program.ValueSet)
	var walk func(id program.ValueID, depth int)
	walk = func(id program.ValueID, depth int) {
		v := t.idx.Value(id)
		if v == nil || !seen.Add(id) {
			return
		}
		if stop(v) {
			out = append(out, id)
			return
		}
		switch {
		case v.Kind == program.KindGlobal, v.Is(program.OpAlloca):
			for _, u := range v.Users {
				if st := t.idx.Value(u); st.Is(program.OpStore) && st.PointerOperand() == id {
					walk(st.StoredValue(), depth)
				}
			}
		case v.Op.IsCast(), v.Is(program.OpLoad), v.Is(program.OpGEP):
			if v.Is(program.OpGEP) || v.Is(program.OpLoad) {
				walk(v.PointerOperand(), depth)
			} else {
				walk(v.Operands[0], depth)
			}
		case v.Is(program.OpPhi):
			for _, op := range v.Operands {
				walk(op, depth)
			}
		case v.Is(program.OpSelect):
			walk(v.Operands[1], depth)
			walk(v.Operands[2], depth)
		case v.Op.IsBinary():
			for _, op := range v.Operands {
				if !t.idx.Value(op).IsConstant() {
					walk(op, depth)
				}
			}
		case v.Is(program.OpCall), v.Is(program.OpInvoke):
			callee := t.idx.Function(v.Callee)
			if t.isAllocatorCall(v) || callee == nil || callee.Declaration || depth >= t.cfg.MaxCallDepth {
				return
			}
			for _, bb := range callee.Blocks {
				if ret := t.idx.Terminator(bb); ret.Is(program.OpRet) && len(ret.Operands) > 0 {
					walk(ret.Operands[0], depth+1)
				}
			}
		}
	}
	walk(addr, 0)
	return out
}

// register adds candidate v to the set. A struct of pointers is decomposed:
// each pointer loaded out of it and then indexed becomes a sub-pointer.
func (t *tracer) register(set *Set, v *program.Value) {
	bp := &BasePointer{Node: v.ID}
	switch {
	case v.Kind == program.KindArgument:
		bp.Kind = KindArgument
	case v.Kind == program.KindGlobal:
		bp.Kind = KindGlobal
	case v.Is(program.OpAlloca):
		bp.Kind = KindAlloca
	default:
		bp.Kind = KindAllocator
	}
	if n, ok := t.size(v); ok {
		bp.Size = n
	}
	parent := set.add(bp)

	if !v.ElemType.IsAllPointerStruct() {
		return
	}
	for _, sub := range t.subPointers(v) {
		id := set.add(&BasePointer{Node: sub, Kind: KindSubPointer, Parent: parent})
		if !slices.Contains(bp.SubPointers, id) {
			bp.SubPointers = append(bp.SubPointers, id)
		}
	}
}

// subPointers walks forward from a struct of pointers through the address
// computations and loads that select its fields, and returns the pointer
// operand of each first computation that indexes something else.
func (t *tracer) subPointers(v *program.Value) []program.ValueID {
	var out []program.ValueID
	t.idx.Walk(v.Users, program.Forward, func(u *program.Value) bool {
		switch {
		case u.Is(program.OpGEP):
			if u.ElemType.IsAllPointerStruct() {
				return true
			}
			if p := u.PointerOperand(); p != v.ID && !slices.Contains(out, p) {
				out = append(out, p)
			}
		case u.Is(program.OpLoad), u.Op.IsCast():
			return true
		}
		return false
	})
	slices.Sort(out)
	return out
}

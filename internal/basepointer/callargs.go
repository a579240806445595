package basepointer

import (
	"context"
	"slices"

	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// CallArgs records, for every allocator call in the program, the largest
// byte count it was found to request. Sizes are propagated from constant
// actual arguments through locals, arithmetic and nested calls, starting at
// every function nobody calls.
//
// A CallArgs is built once before any task is analysed and is read-only
// afterwards.
type CallArgs struct {
	sizes map[program.ValueID]int64
}

// NewCallArgs evaluates the whole program.
func NewCallArgs(ctx context.Context, idx *program.Index, cfg Config) *CallArgs {
	e := &evaluator{
		idx:   idx,
		cfg:   cfg,
		sizes: make(map[program.ValueID]int64),
	}
	for _, fid := range idx.Functions() {
		fn := idx.Function(fid)
		if fn.Declaration || len(idx.Callers(fid)) > 0 {
			continue
		}
		e.eval(fn, nil, 0)
	}
	ctxlog.FromContext(ctx).Debug("NewCallArgs: allocator sizes resolved.", "calls", len(e.sizes))
	return &CallArgs{sizes: e.sizes}
}

// Size returns the largest size call was found to allocate.
func (a *CallArgs) Size(call program.ValueID) (int64, bool) {
	if a == nil {
		return 0, false
	}
	n, ok := a.sizes[call]
	return n, ok
}

// Len returns the number of allocator calls with a resolved size.
func (a *CallArgs) Len() int {
	if a == nil {
		return 0
	}
	return len(a.sizes)
}

type evaluator struct {
	idx   *program.Index
	cfg   Config
	sizes map[program.ValueID]int64
	stack []program.FuncID
}

// frame is the constant state of one function activation.
type frame struct {
	formals map[program.ValueID]int64
	values  map[program.ValueID]int64
	slots   map[program.ValueID]int64
}

func (fr *frame) value(idx *program.Index, id program.ValueID) (int64, bool) {
	if n, ok := idx.ConstInt(id); ok {
		return n, true
	}
	if n, ok := fr.formals[id]; ok {
		return n, true
	}
	n, ok := fr.values[id]
	return n, ok
}

func (e *evaluator) eval(fn *program.Function, formals map[program.ValueID]int64, depth int) {
	if depth > e.cfg.MaxCallDepth || slices.Contains(e.stack, fn.ID) {
		return
	}
	e.stack = append(e.stack, fn.ID)
	defer func() { e.stack = e.stack[:len(e.stack)-1] }()

	fr := &frame{
		formals: formals,
		values:  make(map[program.ValueID]int64),
		slots:   make(map[program.ValueID]int64),
	}
	for _, bb := range fn.Blocks {
		for _, id := range e.idx.Block(bb).Instructions {
			e.step(fr, e.idx.Value(id), depth)
		}
	}
}

func (e *evaluator) step(fr *frame, v *program.Value, depth int) {
	switch {
	case v.Is(program.OpStore):
		ptr := v.PointerOperand()
		if !e.idx.Value(ptr).Is(program.OpAlloca) {
			return
		}
		if n, ok := fr.value(e.idx, v.StoredValue()); ok {
			fr.slots[ptr] = n
		} else {
			delete(fr.slots, ptr)
		}
	case v.Is(program.OpLoad):
		if n, ok := fr.slots[v.PointerOperand()]; ok {
			fr.values[v.ID] = n
		}
	case v.Op.IsCast():
		if n, ok := fr.value(e.idx, v.Operands[0]); ok {
			fr.values[v.ID] = n
		}
	case v.Op.IsBinary():
		l, lok := fr.value(e.idx, v.Operands[0])
		r, rok := fr.value(e.idx, v.Operands[1])
		if lok && rok {
			if n, ok := fold(v.Op, l, r); ok {
				fr.values[v.ID] = n
			}
		}
	case v.Is(program.OpCall), v.Is(program.OpInvoke):
		e.call(fr, v, depth)
	}
}

func (e *evaluator) call(fr *frame, v *program.Value, depth int) {
	name := e.idx.CalleeName(v)
	if e.cfg.IsAllocator(name) {
		if n, ok := e.allocSize(fr, name, v); ok && n > e.sizes[v.ID] {
			e.sizes[v.ID] = n
		}
		return
	}
	callee := e.idx.Function(v.Callee)
	if callee == nil || callee.Declaration {
		return
	}
	formals := make(map[program.ValueID]int64)
	for i, arg := range v.Operands {
		if i >= len(callee.Args) {
			break
		}
		if n, ok := fr.value(e.idx, arg); ok {
			formals[callee.Args[i]] = n
		}
	}
	e.eval(callee, formals, depth+1)
}

// allocSize reads the requested byte count of an allocator call.
func (e *evaluator) allocSize(fr *frame, name string, v *program.Value) (int64, bool) {
	arg := func(i int) (int64, bool) {
		if i >= len(v.Operands) {
			return 0, false
		}
		return fr.value(e.idx, v.Operands[i])
	}
	switch name {
	case "calloc":
		n, ok := arg(0)
		m, ok2 := arg(1)
		return n * m, ok && ok2
	case "realloc":
		return arg(1)
	}
	return arg(0)
}

func fold(op program.Op, l, r int64) (int64, bool) {
	switch op {
	case program.OpAdd:
		return l + r, true
	case program.OpSub:
		return l - r, true
	case program.OpMul:
		return l * r, true
	case program.OpSDiv, program.OpUDiv:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case program.OpSRem, program.OpURem:
		if r == 0 {
			return 0, false
		}
		return l % r, true
	case program.OpShl:
		return l << uint64(r&63), true
	case program.OpLShr:
		return int64(uint64(l) >> uint64(r&63)), true
	case program.OpAShr:
		return l >> uint64(r&63), true
	case program.OpAnd:
		return l & r, true
	case program.OpOr:
		return l | r, true
	case program.OpXor:
		return l ^ r, true
	}
	return 0, false
}

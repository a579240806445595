package symbol

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/benroywillis/Cyclebite-sub001/internal/basepointer"
	"github.com/benroywillis/Cyclebite-sub001/internal/category"
	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/dimension"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/indexvar"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
	"github.com/benroywillis/Cyclebite-sub001/internal/reduction"
)

// Input bundles the results of the earlier stages.
type Input struct {
	Index        *program.Index
	Task         *cycle.Task
	Categories   *category.Set
	Dimensions   *dimension.Set
	BasePointers *basepointer.Set
	Config       basepointer.Config
	Forest       *indexvar.Forest
	Collections  []*indexvar.Collection
	Reductions   *reduction.Set
}

// Table holds every symbol of a task and the expression it computes.
type Table struct {
	symbols []Symbol
	byValue map[program.ValueID]Symbol
	// Root is the expression whose result the task stores.
	Root Composite
}

// Get returns the symbol with the given handle, or nil.
func (t *Table) Get(id ID) Symbol {
	if id <= 0 || int(id) > len(t.symbols) {
		return nil
	}
	return t.symbols[id-1]
}

// All returns every symbol in creation order.
func (t *Table) All() []Symbol { return t.symbols }

// ByValue returns the symbol synthesized for an instruction graph value.
func (t *Table) ByValue(id program.ValueID) (Symbol, bool) {
	s, ok := t.byValue[id]
	return s, ok
}

// Collections returns the collection symbols in creation order.
func (t *Table) Collections() []*Collection {
	var out []*Collection
	for _, s := range t.symbols {
		if c, ok := s.(*Collection); ok {
			out = append(out, c)
		}
	}
	return out
}

// Build synthesizes the expression of in.Task. Every store of a
// Function-colored value roots one expression; a task must have exactly one.
func Build(ctx context.Context, in Input) (*Table, error) {
	logger := ctxlog.FromContext(ctx)
	b := &builder{
		Input:    in,
		logger:   logger,
		t:        &Table{byValue: make(map[program.ValueID]Symbol)},
		loads:    make(map[program.ValueID]*indexvar.Collection),
		stores:   make(map[program.ValueID]*indexvar.Collection),
		colSyms:  make(map[indexvar.CollectionID]*Collection),
		visiting: make(program.ValueSet),
	}
	for _, c := range in.Collections {
		for _, id := range c.Loads {
			b.loads[id] = c
		}
		for _, id := range c.Stores {
			b.stores[id] = c
		}
	}

	var roots []Composite
	for _, bb := range in.Task.Blocks.Sorted() {
		for _, id := range in.Index.Block(bb).Instructions {
			st := in.Index.Value(id)
			if !st.Is(program.OpStore) || !in.Categories.Function.Has(st.StoredValue()) {
				continue
			}
			s, err := b.build(st.StoredValue())
			if err != nil {
				return nil, err
			}
			root, ok := s.(Composite)
			if !ok {
				return nil, fault.Taskf("symbol.Build", fault.ErrUnsupported,
					"store %d writes a %s, not an expression", id, s.Kind())
			}
			if !slices.Contains(roots, root) {
				roots = append(roots, root)
			}
		}
	}
	switch len(roots) {
	case 0:
		return nil, fault.Taskf("symbol.Build", fault.ErrNotFound, "task %d stores no computed value", in.Task.ID)
	case 1:
		b.t.Root = roots[0]
	default:
		return nil, fault.Taskf("symbol.Build", fault.ErrUnsupported,
			"task %d computes %d expressions", in.Task.ID, len(roots))
	}
	logger.Debug("Build: expression synthesized.", "task", in.Task.ID, "symbols", len(b.t.symbols))
	return b.t, nil
}

type builder struct {
	Input
	logger   *slog.Logger
	t        *Table
	loads    map[program.ValueID]*indexvar.Collection
	stores   map[program.ValueID]*indexvar.Collection
	colSyms  map[indexvar.CollectionID]*Collection
	visiting program.ValueSet
}

type identified interface {
	Symbol
	setID(ID)
}

func (h *header) setID(id ID) { h.id = id }

func (b *builder) add(s identified) {
	s.setID(ID(len(b.t.symbols) + 1))
	b.t.symbols = append(b.t.symbols, s)
}

// build returns the symbol of value id, creating it on first use.
func (b *builder) build(id program.ValueID) (Symbol, error) {
	if s, ok := b.t.byValue[id]; ok {
		return s, nil
	}
	if !b.visiting.Add(id) {
		return nil, fault.Taskf("symbol.build", fault.ErrUnsupported, "value %d depends on itself", id)
	}
	defer delete(b.visiting, id)

	v := b.Index.Value(id)
	var (
		s   Symbol
		err error
	)
	switch {
	case v == nil:
		err = fault.Taskf("symbol.build", fault.ErrStructural, "unknown value %d", id)
	case v.IsConstant():
		s, err = b.constant(id)
	case !v.IsInstruction() || !b.Task.Contains(v.Block):
		s = b.parameter(v, valueLabel(v))
	case v.Is(program.OpLoad):
		s, err = b.load(v)
	case v.Is(program.OpPhi):
		s, err = b.phi(v)
	case v.Op.IsBinary(), v.Op.IsUnary():
		s, err = b.operator(v)
	case v.Is(program.OpCall):
		s, err = b.call(v)
	case v.Op.IsCast(), v.Op.IsCmp(), v.Is(program.OpSelect),
		v.Is(program.OpExtractElement), v.Is(program.OpInsertElement), v.Is(program.OpShuffleVector),
		v.Is(program.OpExtractValue), v.Is(program.OpInsertValue):
		e := &Expression{Node: id, Ops: []program.Op{v.Op}}
		if e.Operands, err = b.operands(v.Operands, program.NoValue); err == nil {
			b.finish(v, e)
			s = e
		}
	default:
		err = fault.Taskf("symbol.build", fault.ErrUnsupported, "cannot express %s", v.Op)
	}
	if err != nil {
		return nil, err
	}
	b.t.byValue[id] = s
	return s, nil
}

func (b *builder) operands(ids []program.ValueID, skip program.ValueID) ([]Symbol, error) {
	out := make([]Symbol, 0, len(ids))
	for _, op := range ids {
		if op == skip {
			continue
		}
		s, err := b.build(op)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// finish registers e and attaches the collection a store of v writes to.
func (b *builder) finish(v *program.Value, e Composite) {
	b.add(e.(identified))
	for _, u := range v.Users {
		if c, ok := b.stores[u]; ok {
			e.Base().Output = b.collection(c)
			return
		}
	}
}

func (b *builder) constant(id program.ValueID) (Symbol, error) {
	c, err := decodeConstant(b.Index, id)
	if err != nil {
		return nil, fault.Task("symbol.constant", fmt.Errorf("%w: %w", fault.ErrUnsupported, err))
	}
	b.add(c)
	return c, nil
}

func (b *builder) parameter(v *program.Value, label string) *TaskParameter {
	p := &TaskParameter{Node: v.ID, Label: label}
	b.add(p)
	return p
}

func (b *builder) collection(c *indexvar.Collection) *Collection {
	if s, ok := b.colSyms[c.ID]; ok {
		return s
	}
	s := &Collection{Source: c, Label: collectionLabel(b.Index, b.BasePointers, b.Forest, c)}
	b.add(s)
	b.colSyms[c.ID] = s
	return s
}

// load resolves a load to its collection. A load of a global too small to
// be a base pointer reads its initializer.
func (b *builder) load(v *program.Value) (Symbol, error) {
	if c, ok := b.loads[v.ID]; ok {
		return b.collection(c), nil
	}
	addr := b.Index.Value(b.Index.StripCasts(v.PointerOperand()))
	if addr != nil && addr.Kind == program.KindGlobal && addr.ElemType.Size() < b.Config.MinSize {
		if init := addr.Initializer(); init != program.NoValue {
			return b.constant(init)
		}
	}
	b.logger.Debug("Load outside every collection becomes a parameter.", "load", v.ID)
	return b.parameter(v, valueLabel(v)), nil
}

// phi follows the single live incoming edge of a merge value. Induction
// variables are parameters of each iteration.
func (b *builder) phi(v *program.Value) (Symbol, error) {
	if d, ok := b.Dimensions.ByNode(v.ID); ok {
		return b.parameter(v, dimensionLabel(d.ID)), nil
	}
	live := b.Index.LiveIncoming(v)
	if len(live) != 1 {
		return nil, fault.Taskf("symbol.phi", fault.ErrPredication,
			"merge value %d has %d live incoming edges", v.ID, len(live))
	}
	return b.build(v.Operands[live[0]])
}

func (b *builder) operator(v *program.Value) (Symbol, error) {
	if r, ok := b.Reductions.ByNode(v.ID); ok {
		return b.reduction(v, r, []program.Op{v.Op})
	}
	e := &OperatorExpression{Expression: Expression{Node: v.ID, Ops: []program.Op{v.Op}}}
	var err error
	if e.Operands, err = b.operands(v.Operands, program.NoValue); err != nil {
		return nil, err
	}
	b.finish(v, e)
	return e, nil
}

func (b *builder) call(v *program.Value) (Symbol, error) {
	if r, ok := b.Reductions.ByNode(v.ID); ok {
		return b.reduction(v, r, []program.Op{program.OpFMul, program.OpFAdd})
	}
	e := &FunctionExpression{Expression: Expression{Node: v.ID, Ops: []program.Op{v.Op}}, Callee: b.Index.CalleeName(v)}
	var err error
	if e.Operands, err = b.operands(v.Operands, program.NoValue); err != nil {
		return nil, err
	}
	b.finish(v, e)
	return e, nil
}

func (b *builder) reduction(v *program.Value, r *reduction.Variable, ops []program.Op) (Symbol, error) {
	e := &Reduction{Expression: Expression{Node: v.ID, Ops: ops}, Variable: r}
	var err error
	if e.Operands, err = b.operands(v.Operands, r.Accumulator); err != nil {
		return nil, err
	}
	b.finish(v, e)
	if e.Output == nil {
		if c, ok := b.stores[r.Store]; ok {
			e.Output = b.collection(c)
		}
	}
	return e, nil
}

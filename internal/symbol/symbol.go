// Package symbol synthesizes the arithmetic a task performs as a tree of
// symbols. Leaves are collections, constants and task parameters; inner
// nodes are expressions over the Function-colored instructions.
package symbol

import (
	"github.com/benroywillis/Cyclebite-sub001/internal/indexvar"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
	"github.com/benroywillis/Cyclebite-sub001/internal/reduction"
	"github.com/zclconf/go-cty/cty"
)

// ID is the handle of a symbol within its task.
type ID int

// Kind discriminates the concrete symbol types.
type Kind int

const (
	KindCollection Kind = iota
	KindConstant
	KindTaskParameter
	KindExpression
	KindOperator
	KindFunction
	KindReduction
)

var kindNames = [...]string{
	KindCollection:    "collection",
	KindConstant:      "constant",
	KindTaskParameter: "task parameter",
	KindExpression:    "expression",
	KindOperator:      "operator expression",
	KindFunction:      "function expression",
	KindReduction:     "reduction",
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Symbol is one node of a task's expression tree. The set of
// implementations is closed: *Collection, *Constant, *TaskParameter,
// *Expression, *OperatorExpression, *FunctionExpression and *Reduction.
type Symbol interface {
	ID() ID
	Kind() Kind
	String() string
	isSymbol()
}

// Leaf is a symbol without operands.
type Leaf interface {
	Symbol
	isLeaf()
}

// Composite is a symbol built from operands.
type Composite interface {
	Symbol
	Base() *Expression
}

type header struct {
	id ID
}

func (h *header) ID() ID   { return h.id }
func (*header) isSymbol() {}

// Collection is a memory view read or written by the task.
type Collection struct {
	header
	Source *indexvar.Collection
	// Label renders the view as base[index]...
	Label string
}

func (*Collection) Kind() Kind       { return KindCollection }
func (*Collection) isLeaf()          {}
func (c *Collection) String() string { return c.Label }

// Constant is a literal operand decoded into a dense little-endian buffer.
type Constant struct {
	header
	Node program.ValueID
	Type *program.Type
	// Elem is the scalar type of every element in Data.
	Elem  *program.Type
	Data  []byte
	Value cty.Value
}

func (*Constant) Kind() Kind { return KindConstant }
func (*Constant) isLeaf()    {}

// Len returns the number of scalar elements in Data.
func (c *Constant) Len() int {
	if n := c.Elem.Size(); n > 0 {
		return len(c.Data) / int(n)
	}
	return 0
}

// TaskParameter is a value defined outside the task, or an induction
// variable, that the task reads as an opaque input.
type TaskParameter struct {
	header
	Node  program.ValueID
	Label string
}

func (*TaskParameter) Kind() Kind       { return KindTaskParameter }
func (*TaskParameter) isLeaf()          {}
func (p *TaskParameter) String() string { return p.Label }

// Expression applies Ops, in order, to Operands. Output is the collection
// the result is stored to, if any.
type Expression struct {
	header
	Node     program.ValueID
	Operands []Symbol
	Ops      []program.Op
	Output   *Collection
}

func (*Expression) Kind() Kind          { return KindExpression }
func (e *Expression) Base() *Expression { return e }

// OperatorExpression is an arithmetic or logic operator.
type OperatorExpression struct {
	Expression
}

func (*OperatorExpression) Kind() Kind { return KindOperator }

// FunctionExpression is a call.
type FunctionExpression struct {
	Expression
	Callee string
}

func (*FunctionExpression) Kind() Kind { return KindFunction }

// Reduction is the operator of a reduction variable. Its operands exclude
// the accumulator.
type Reduction struct {
	Expression
	Variable *reduction.Variable
}

func (*Reduction) Kind() Kind { return KindReduction }

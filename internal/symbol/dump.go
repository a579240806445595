package symbol

import (
	"fmt"
	"strings"

	"github.com/benroywillis/Cyclebite-sub001/internal/basepointer"
	"github.com/benroywillis/Cyclebite-sub001/internal/dimension"
	"github.com/benroywillis/Cyclebite-sub001/internal/indexvar"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

var operatorSigns = map[program.Op]string{
	program.OpAdd: "+", program.OpFAdd: "+",
	program.OpSub: "-", program.OpFSub: "-",
	program.OpMul: "*", program.OpFMul: "*",
	program.OpUDiv: "/", program.OpSDiv: "/", program.OpFDiv: "/",
	program.OpURem: "%", program.OpSRem: "%", program.OpFRem: "%",
	program.OpShl: "<<", program.OpLShr: ">>", program.OpAShr: ">>",
	program.OpAnd: "&", program.OpOr: "|", program.OpXor: "^",
	program.OpFNeg: "-",
}

func sign(op program.Op) string {
	if s, ok := operatorSigns[op]; ok {
		return s
	}
	return op.String()
}

// Dump renders the task's expression as one line: the output collection,
// if any, assigned the root expression.
func Dump(t *Table) string {
	if t == nil || t.Root == nil {
		return ""
	}
	if out := t.Root.Base().Output; out != nil {
		return out.String() + " = " + t.Root.String()
	}
	return t.Root.String()
}

func (e *Expression) String() string {
	return e.Ops[0].String() + "(" + join(e.Operands, ", ") + ")"
}

func (e *OperatorExpression) String() string {
	switch len(e.Operands) {
	case 1:
		return sign(e.Ops[0]) + e.Operands[0].String()
	case 2:
		return "(" + e.Operands[0].String() + " " + sign(e.Ops[0]) + " " + e.Operands[1].String() + ")"
	}
	return e.Expression.String()
}

func (e *FunctionExpression) String() string {
	return e.Callee + "(" + join(e.Operands, ", ") + ")"
}

// String renders a reduction as reduce<op> over its operands; a fused
// multiply-add reduces the product of its two factors.
func (e *Reduction) String() string {
	acc := sign(e.Ops[len(e.Ops)-1])
	if len(e.Ops) == 2 {
		return "reduce" + acc + "(" + join(e.Operands, " "+sign(e.Ops[0])+" ") + ")"
	}
	if len(e.Operands) == 1 {
		s := e.Operands[0].String()
		if _, ok := e.Operands[0].(Composite); ok && strings.HasPrefix(s, "(") {
			return "reduce" + acc + s
		}
		return "reduce" + acc + "(" + s + ")"
	}
	return "reduce" + acc + "(" + join(e.Operands, ", ") + ")"
}

func join(syms []Symbol, sep string) string {
	parts := make([]string, len(syms))
	for i, s := range syms {
		parts[i] = s.String()
	}
	return strings.Join(parts, sep)
}

// dimensionLabel names dimensions i, j, k... in discovery order.
func dimensionLabel(d dimension.ID) string {
	const names = "ijklmn"
	if d >= 1 && int(d) <= len(names) {
		return names[d-1 : d]
	}
	return fmt.Sprintf("d%d", d)
}

func valueLabel(v *program.Value) string {
	if v.Name != "" {
		return v.Name
	}
	if v.Kind == program.KindArgument {
		return fmt.Sprintf("arg%d", v.ArgIndex)
	}
	return fmt.Sprintf("%%%d", v.ID)
}

// collectionLabel renders a collection as base[index]... with one
// subscript per index variable.
func collectionLabel(idx *program.Index, bps *basepointer.Set, f *indexvar.Forest, c *indexvar.Collection) string {
	var sb strings.Builder
	if bp := bps.Get(c.BasePointer); bp != nil {
		sb.WriteString(valueLabel(idx.Value(bp.Node)))
	} else {
		fmt.Fprintf(&sb, "bp%d", c.BasePointer)
	}
	for _, id := range c.IndexVariables {
		iv := f.Get(id)
		sb.WriteString("[" + affine(idx, iv) + "]")
	}
	return sb.String()
}

func affine(idx *program.Index, iv *indexvar.IndexVariable) string {
	if iv.Leaf == iv.Node {
		return fmt.Sprint(iv.Offset)
	}
	x := valueLabel(idx.Value(iv.Leaf))
	if iv.Dimension != dimension.NoDimension {
		x = dimensionLabel(iv.Dimension)
	}
	switch iv.Coefficient {
	case 1:
	case -1:
		x = "-" + x
	default:
		x = fmt.Sprintf("%d*%s", iv.Coefficient, x)
	}
	switch {
	case iv.Offset > 0:
		return fmt.Sprintf("%s+%d", x, iv.Offset)
	case iv.Offset < 0:
		return fmt.Sprintf("%s%d", x, iv.Offset)
	}
	return x
}

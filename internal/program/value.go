// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package program

import "fmt"

// Kind classifies a Value.
type Kind int

const (
	KindInstruction Kind = iota
	KindArgument
	KindGlobal
	KindConstant
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindInstruction:
		return "instruction"
	case KindArgument:
		return "argument"
	case KindGlobal:
		return "global"
	case KindConstant:
		return "constant"
	default:
		return "unknown"
	}
}

// Location is the source position an instruction was compiled from.
type Location struct {
	File string
	Line int
}

// Value is one node of the dataflow graph.
//
// Operand layout follows LLVM: a store is (value, pointer), a load is
// (pointer), a getelementptr is (pointer, indices...), a conditional branch
// is (condition) with Successors (true, false), a switch is (condition,
// case values...) with Successors (default, cases...), a phi keeps Incoming
// parallel to Operands, and a call lists only its arguments; the callee is
// named by Callee/CalleeName.
type Value struct {
	ID       ValueID
	Kind     Kind
	Op       Op
	Type     *Type
	Name     string
	Operands []ValueID
	Users    []ValueID
	Block    BlockID
	Func     FuncID

	Predicate  Predicate
	Callee     FuncID
	CalleeName string
	// ElemType is the source element type of a getelementptr, the allocated
	// type of an alloca and the value type of a global.
	ElemType   *Type
	Successors []BlockID
	Incoming   []BlockID

	// Constant payload.
	Int      int64
	Float    float64
	Elements []ValueID

	// ArgIndex is the position of a function argument.
	ArgIndex int
	Loc      Location
}

// String renders the value for log lines.
func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind {
	case KindInstruction:
		return fmt.Sprintf("%%%d = %s", v.ID, v.Op)
	case KindArgument:
		return fmt.Sprintf("arg%d(%%%d)", v.ArgIndex, v.ID)
	case KindGlobal:
		return fmt.Sprintf("@%s(%%%d)", v.Name, v.ID)
	default:
		return fmt.Sprintf("const(%%%d)", v.ID)
	}
}

// IsInstruction reports whether v is an instruction.
func (v *Value) IsInstruction() bool { return v != nil && v.Kind == KindInstruction }

// IsConstant reports whether v is a constant.
func (v *Value) IsConstant() bool { return v != nil && v.Kind == KindConstant }

// Is reports whether v is an instruction with the given opcode.
func (v *Value) Is(op Op) bool { return v.IsInstruction() && v.Op == op }

// PointerOperand returns the address a load, store or getelementptr uses.
func (v *Value) PointerOperand() ValueID {
	if !v.IsInstruction() {
		return NoValue
	}
	switch v.Op {
	case OpLoad, OpGEP:
		if len(v.Operands) > 0 {
			return v.Operands[0]
		}
	case OpStore:
		if len(v.Operands) > 1 {
			return v.Operands[1]
		}
	}
	return NoValue
}

// StoredValue returns the value operand of a store.
func (v *Value) StoredValue() ValueID {
	if v.Is(OpStore) && len(v.Operands) > 0 {
		return v.Operands[0]
	}
	return NoValue
}

// Condition returns the condition operand of a conditional branch, switch,
// or select.
func (v *Value) Condition() ValueID {
	if !v.IsInstruction() {
		return NoValue
	}
	switch v.Op {
	case OpBr:
		if len(v.Operands) == 1 && len(v.Successors) == 2 {
			return v.Operands[0]
		}
	case OpSwitch, OpSelect:
		if len(v.Operands) > 0 {
			return v.Operands[0]
		}
	}
	return NoValue
}

// Initializer returns the constant a global is initialized with.
func (v *Value) Initializer() ValueID {
	if v != nil && v.Kind == KindGlobal && len(v.Elements) == 1 {
		return v.Elements[0]
	}
	return NoValue
}

// Indices returns the index operands of a getelementptr.
func (v *Value) Indices() []ValueID {
	if v.Is(OpGEP) && len(v.Operands) > 1 {
		return v.Operands[1:]
	}
	return nil
}

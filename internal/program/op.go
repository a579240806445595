// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package program

import "fmt"

// Op is the opcode of an instruction.
type Op int

const (
	OpUnknown Op = iota

	// Terminators.
	OpRet
	OpBr
	OpSwitch
	OpIndirectBr
	OpInvoke
	OpResume
	OpUnreachable

	// Unary.
	OpFNeg

	// Binary operators.
	OpAdd
	OpFAdd
	OpSub
	OpFSub
	OpMul
	OpFMul
	OpUDiv
	OpSDiv
	OpFDiv
	OpURem
	OpSRem
	OpFRem
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor

	// Memory.
	OpAlloca
	OpLoad
	OpStore
	OpGEP

	// Casts.
	OpTrunc
	OpZExt
	OpSExt
	OpFPToUI
	OpFPToSI
	OpUIToFP
	OpSIToFP
	OpFPTrunc
	OpFPExt
	OpPtrToInt
	OpIntToPtr
	OpBitCast
	OpAddrSpaceCast

	// Everything else.
	OpICmp
	OpFCmp
	OpPhi
	OpCall
	OpSelect
	OpExtractElement
	OpInsertElement
	OpShuffleVector
	OpExtractValue
	OpInsertValue
)

var opNames = map[Op]string{
	OpUnknown:        "unknown",
	OpRet:            "ret",
	OpBr:             "br",
	OpSwitch:         "switch",
	OpIndirectBr:     "indirectbr",
	OpInvoke:         "invoke",
	OpResume:         "resume",
	OpUnreachable:    "unreachable",
	OpFNeg:           "fneg",
	OpAdd:            "add",
	OpFAdd:           "fadd",
	OpSub:            "sub",
	OpFSub:           "fsub",
	OpMul:            "mul",
	OpFMul:           "fmul",
	OpUDiv:           "udiv",
	OpSDiv:           "sdiv",
	OpFDiv:           "fdiv",
	OpURem:           "urem",
	OpSRem:           "srem",
	OpFRem:           "frem",
	OpShl:            "shl",
	OpLShr:           "lshr",
	OpAShr:           "ashr",
	OpAnd:            "and",
	OpOr:             "or",
	OpXor:            "xor",
	OpAlloca:         "alloca",
	OpLoad:           "load",
	OpStore:          "store",
	OpGEP:            "getelementptr",
	OpTrunc:          "trunc",
	OpZExt:           "zext",
	OpSExt:           "sext",
	OpFPToUI:         "fptoui",
	OpFPToSI:         "fptosi",
	OpUIToFP:         "uitofp",
	OpSIToFP:         "sitofp",
	OpFPTrunc:        "fptrunc",
	OpFPExt:          "fpext",
	OpPtrToInt:       "ptrtoint",
	OpIntToPtr:       "inttoptr",
	OpBitCast:        "bitcast",
	OpAddrSpaceCast:  "addrspacecast",
	OpICmp:           "icmp",
	OpFCmp:           "fcmp",
	OpPhi:            "phi",
	OpCall:           "call",
	OpSelect:         "select",
	OpExtractElement: "extractelement",
	OpInsertElement:  "insertelement",
	OpShuffleVector:  "shufflevector",
	OpExtractValue:   "extractvalue",
	OpInsertValue:    "insertvalue",
}

var opsByName = func() map[string]Op {
	m := make(map[string]Op, len(opNames))
	for op, name := range opNames {
		m[name] = op
	}
	m["gep"] = OpGEP
	return m
}()

// String returns the LLVM mnemonic of the opcode.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// ParseOp parses an LLVM mnemonic.
func ParseOp(name string) (Op, error) {
	if op, ok := opsByName[name]; ok {
		return op, nil
	}
	return OpUnknown, fmt.Errorf("unknown opcode %q", name)
}

// IsTerminator reports whether op ends a basic block.
func (op Op) IsTerminator() bool { return op >= OpRet && op <= OpUnreachable }

// IsBinary reports whether op is a two-operand arithmetic or logic operator.
func (op Op) IsBinary() bool { return op >= OpAdd && op <= OpXor }

// IsUnary reports whether op is a one-operand arithmetic operator.
func (op Op) IsUnary() bool { return op == OpFNeg }

// IsCast reports whether op converts a value between types.
func (op Op) IsCast() bool { return op >= OpTrunc && op <= OpAddrSpaceCast }

// IsCmp reports whether op is a comparison.
func (op Op) IsCmp() bool { return op == OpICmp || op == OpFCmp }

// IsMemory reports whether op reads or writes memory.
func (op Op) IsMemory() bool { return op == OpLoad || op == OpStore }

// IsCommutative reports whether the operands of op may be swapped.
func (op Op) IsCommutative() bool {
	switch op {
	case OpAdd, OpFAdd, OpMul, OpFMul, OpAnd, OpOr, OpXor:
		return true
	}
	return false
}

// Predicate is the condition code of a comparison.
type Predicate int

const (
	PredNone Predicate = iota
	PredEQ
	PredNE
	PredUGT
	PredUGE
	PredULT
	PredULE
	PredSGT
	PredSGE
	PredSLT
	PredSLE
	PredOEQ
	PredONE
	PredOGT
	PredOGE
	PredOLT
	PredOLE
	PredUEQ
	PredUNE
	PredFUGT
	PredFUGE
	PredFULT
	PredFULE
)

var predicateNames = map[Predicate]string{
	PredNone: "",
	PredEQ:   "eq",
	PredNE:   "ne",
	PredUGT:  "ugt",
	PredUGE:  "uge",
	PredULT:  "ult",
	PredULE:  "ule",
	PredSGT:  "sgt",
	PredSGE:  "sge",
	PredSLT:  "slt",
	PredSLE:  "sle",
	PredOEQ:  "oeq",
	PredONE:  "one",
	PredOGT:  "ogt",
	PredOGE:  "oge",
	PredOLT:  "olt",
	PredOLE:  "ole",
	PredUEQ:  "ueq",
	PredUNE:  "une",
	PredFUGT: "fugt",
	PredFUGE: "fuge",
	PredFULT: "fult",
	PredFULE: "fule",
}

// String returns the LLVM spelling of the predicate.
func (p Predicate) String() string { return predicateNames[p] }

// ParsePredicate parses an LLVM predicate spelling.
func ParsePredicate(name string) (Predicate, error) {
	for p, n := range predicateNames {
		if n == name {
			return p, nil
		}
	}
	return PredNone, fmt.Errorf("unknown predicate %q", name)
}

// Relation is the ordering a predicate tests, independent of signedness.
type Relation int

const (
	RelNone Relation = iota
	RelEQ
	RelNE
	RelLT
	RelLE
	RelGT
	RelGE
)

// Relation folds signed, unsigned and floating spellings together.
func (p Predicate) Relation() Relation {
	switch p {
	case PredEQ, PredOEQ, PredUEQ:
		return RelEQ
	case PredNE, PredONE, PredUNE:
		return RelNE
	case PredULT, PredSLT, PredOLT, PredFULT:
		return RelLT
	case PredULE, PredSLE, PredOLE, PredFULE:
		return RelLE
	case PredUGT, PredSGT, PredOGT, PredFUGT:
		return RelGT
	case PredUGE, PredSGE, PredOGE, PredFUGE:
		return RelGE
	}
	return RelNone
}

// Inverse returns the relation that holds exactly when r does not.
func (r Relation) Inverse() Relation {
	switch r {
	case RelEQ:
		return RelNE
	case RelNE:
		return RelEQ
	case RelLT:
		return RelGE
	case RelLE:
		return RelGT
	case RelGT:
		return RelLE
	case RelGE:
		return RelLT
	}
	return RelNone
}

// Swapped returns the relation with its operands exchanged.
func (r Relation) Swapped() Relation {
	switch r {
	case RelLT:
		return RelGT
	case RelLE:
		return RelGE
	case RelGT:
		return RelLT
	case RelGE:
		return RelLE
	}
	return r
}

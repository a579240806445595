// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package program

import "slices"

// ValueID identifies a value (instruction, argument, global or constant).
type ValueID int64

// BlockID identifies a basic block or a control block.
type BlockID int64

// FuncID identifies a function.
type FuncID int64

// Invalid ID constants (zero is sentinel).
const (
	NoValue ValueID = 0
	NoBlock BlockID = 0
	NoFunc  FuncID  = 0
)

// IsValid returns true if the ID is valid (non-zero).
func (id ValueID) IsValid() bool { return id != NoValue }
func (id BlockID) IsValid() bool { return id != NoBlock }
func (id FuncID) IsValid() bool  { return id != NoFunc }

// Edge is a control-flow edge between two basic blocks.
type Edge struct {
	From BlockID
	To   BlockID
}

// ValueSet is an unordered set of values.
type ValueSet map[ValueID]struct{}

// Add inserts id into the set and reports whether it was new.
func (s ValueSet) Add(id ValueID) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Has reports whether id is in the set.
func (s ValueSet) Has(id ValueID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending id order.
func (s ValueSet) Sorted() []ValueID {
	out := make([]ValueID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// BlockSet is an unordered set of basic blocks.
type BlockSet map[BlockID]struct{}

// Has reports whether id is in the set.
func (s BlockSet) Has(id BlockID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending id order.
func (s BlockSet) Sorted() []BlockID {
	out := make([]BlockID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

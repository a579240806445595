// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package program

// Direction selects which edges a walk follows.
type Direction int

const (
	// Backward follows operand edges (towards definitions).
	Backward Direction = iota
	// Forward follows user edges (towards uses).
	Forward
)

// Walk performs a breadth-first traversal from seeds. visit is called once
// per reached value; the walk expands a value's neighbours only when visit
// returns true. Seeds are visited like every other value.
func (idx *Index) Walk(seeds []ValueID, dir Direction, visit func(v *Value) bool) {
	seen := make(ValueSet, len(seeds))
	queue := make([]ValueID, 0, len(seeds))
	for _, s := range seeds {
		if seen.Add(s) {
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		v := idx.values[id]
		if v == nil || !visit(v) {
			continue
		}
		next := v.Operands
		if dir == Forward {
			next = v.Users
		}
		for _, n := range next {
			if seen.Add(n) {
				queue = append(queue, n)
			}
		}
	}
}

// Reachable returns every value reached from seeds along dir while keep
// holds. Seeds are included only if keep accepts them.
func (idx *Index) Reachable(seeds []ValueID, dir Direction, keep func(v *Value) bool) ValueSet {
	out := make(ValueSet)
	idx.Walk(seeds, dir, func(v *Value) bool {
		if !keep(v) {
			return false
		}
		out.Add(v.ID)
		return true
	})
	return out
}

// Reaches reports whether to can be reached from from along dir while keep
// holds for every intermediate value.
func (idx *Index) Reaches(from, to ValueID, dir Direction, keep func(v *Value) bool) bool {
	found := false
	idx.Walk([]ValueID{from}, dir, func(v *Value) bool {
		if found {
			return false
		}
		if v.ID == to {
			found = true
			return false
		}
		return v.ID == from || keep(v)
	})
	return found
}

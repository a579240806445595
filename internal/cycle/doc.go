// Package cycle turns kernel descriptors into the loop-nest forest and groups
// connected loop nests into tasks.
//
// A Cycle is a set of basic blocks plus its exits: the terminators with more
// than one live successor, at least one of which leaves the set. Cycles are
// linked by parent/child handles rather than pointers, and are immutable once
// Build returns.
//
// A Task is a connected component of the cycle forest (parent/child edges
// taken as undirected). It is identified by its single parent-most cycle and
// is the unit every later stage analyses independently.
package cycle

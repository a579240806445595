// Package grammar drives the structural recognition of a whole program.
//
// Prepare builds everything that is shared between tasks: the cycle forest,
// the task partition and the allocator-size cache. Process then analyses one
// task end to end (categories, dimensions, base pointers, index variables,
// collections, reductions, the task expression and its parallel labels) and
// is the only place where a task-fatal error or a panic is turned into a
// failed Result. Run fans Process out over a bounded pool of workers and
// returns the results in task order.
package grammar

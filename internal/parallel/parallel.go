// Package parallel decides which cycles of a task may run in parallel or be
// vectorized, labels the task with the template its shape matches, and
// hands the labels to a pragma injector.
package parallel

import (
	"context"
	"slices"

	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/dimension"
	"github.com/benroywillis/Cyclebite-sub001/internal/indexvar"
	"github.com/benroywillis/Cyclebite-sub001/internal/reduction"
)

// Input bundles the results of the earlier stages.
type Input struct {
	Task        *cycle.Task
	Cycles      *cycle.Forest
	Dimensions  *dimension.Set
	Forest      *indexvar.Forest
	Collections []*indexvar.Collection
	Reductions  *reduction.Set
}

// Labels is the classification of one task.
type Labels struct {
	Task     cycle.ID   `json:"task"`
	Parallel []cycle.ID `json:"parallel"`
	Vector   []cycle.ID `json:"vector"`
	Template Template   `json:"template"`
}

// IsParallel reports whether c was classified parallel.
func (l *Labels) IsParallel(c cycle.ID) bool { return slices.Contains(l.Parallel, c) }

// IsVector reports whether c was classified vectorizable.
func (l *Labels) IsVector(c cycle.ID) bool { return slices.Contains(l.Vector, c) }

// Classify labels every cycle of the task.
//
// A cycle is sequential when an input collection and an output collection
// touch different elements of the same memory along one of its induction
// variables, or when it governs a reduction whose output is itself indexed
// by the reduction's dimension. Every other cycle is parallel. A cycle that
// updates a parallel reduction is also vectorizable.
func Classify(ctx context.Context, in Input) *Labels {
	logger := ctxlog.FromContext(ctx)
	l := &Labels{Task: in.Task.ID, Template: templateOf(in)}

	var inputs, outputs []*indexvar.Collection
	for _, c := range in.Collections {
		if c.IsOutput() {
			outputs = append(outputs, c)
		} else {
			inputs = append(inputs, c)
		}
	}

	for _, cid := range in.Task.Cycles {
		gov := in.Dimensions.Governing(cid)
		safe, vector := true, false
	overlap:
		for _, d := range gov {
			for _, o := range outputs {
				for _, i := range inputs {
					if i.Overlaps(in.Forest, o, d.ID) {
						logger.Debug("Cycle carries a dependence through memory.",
							"cycle", cid, "dimension", d.ID, "input", i.ID, "output", o.ID)
						safe = false
						break overlap
					}
				}
			}
		}
		for _, r := range in.Reductions.All() {
			if !slices.ContainsFunc(gov, func(d *dimension.Dimension) bool { return d.ID == r.Dimension }) {
				continue
			}
			if !parallelReduction(in, r) {
				logger.Debug("Cycle governs a sequential reduction.", "cycle", cid, "reduction", r.ID)
				safe = false
				continue
			}
			if r.Cycle == cid {
				vector = true
			}
		}
		if safe {
			l.Parallel = append(l.Parallel, cid)
			if vector {
				l.Vector = append(l.Vector, cid)
			}
		}
	}
	logger.Debug("Classify: task labeled.", "task", l.Task, "parallel", l.Parallel, "vector", l.Vector, "template", l.Template)
	return l
}

// parallelReduction reports whether none of the index variables of the
// collection r stores to share r's dimension.
func parallelReduction(in Input, r *reduction.Variable) bool {
	for _, c := range in.Collections {
		if slices.Contains(c.Stores, r.Store) {
			return !c.HasDimension(in.Forest, r.Dimension)
		}
	}
	return true
}

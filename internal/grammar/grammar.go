package grammar

import (
	"context"
	"fmt"

	"github.com/benroywillis/Cyclebite-sub001/internal/basepointer"
	"github.com/benroywillis/Cyclebite-sub001/internal/category"
	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/dimension"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/indexvar"
	"github.com/benroywillis/Cyclebite-sub001/internal/parallel"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
	"github.com/benroywillis/Cyclebite-sub001/internal/reduction"
	"github.com/benroywillis/Cyclebite-sub001/internal/symbol"
)

// Program is the read-only state every task analysis shares.
type Program struct {
	Index    *program.Index
	Cycles   *cycle.Forest
	Tasks    []*cycle.Task
	Config   basepointer.Config
	CallArgs *basepointer.CallArgs
}

// Prepare builds the cycle forest and the task partition of a program and
// evaluates allocator sizes once for the whole run. Every error it returns
// is run-fatal.
func Prepare(ctx context.Context, idx *program.Index, kernels map[cycle.ID]cycle.Kernel, communication map[cycle.ID][]cycle.ID, cfg basepointer.Config) (*Program, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Prepare: starting.", "kernels", len(kernels), "values", len(idx.Values()))

	if len(kernels) == 0 {
		return nil, fault.Runf("grammar.Prepare", fault.ErrDescriptor, "descriptor names no kernels")
	}
	cycles, err := cycle.Build(ctx, idx, kernels)
	if err != nil {
		return nil, err
	}
	tasks, err := cycle.GroupTasks(ctx, idx, cycles, communication)
	if err != nil {
		return nil, err
	}
	p := &Program{
		Index:    idx,
		Cycles:   cycles,
		Tasks:    tasks,
		Config:   cfg,
		CallArgs: basepointer.NewCallArgs(ctx, idx, cfg),
	}
	logger.Debug("Prepare: complete.", "cycles", cycles.Len(), "tasks", len(tasks), "allocations", p.CallArgs.Len())
	return p, nil
}

// Result is the outcome of analysing one task. Err is set when the task was
// abandoned; the analysis products of a failed task are nil.
type Result struct {
	Task       cycle.ID
	Labels     *parallel.Labels
	Pragmas    []parallel.Pragma
	Expression string
	Symbols    *symbol.Table
	Categories *category.Set
	Err        error
}

// Failed reports whether the task was abandoned.
func (r *Result) Failed() bool { return r.Err != nil }

// Process analyses one task. Task-fatal errors and panics raised by any stage
// are caught here and reported in Result.Err. A run-fatal error lands there
// too; Run checks fault.IsRunFatal and aborts.
func Process(ctx context.Context, p *Program, task *cycle.Task) (res *Result) {
	ctx, logger := ctxlog.With(ctx, "task", task.ID)
	res = &Result{Task: task.ID}

	defer func() {
		if r := recover(); r != nil {
			err := fault.Task("grammar.Process", fmt.Errorf("panic: %w", fault.From(r)))
			logger.Error("Task analysis panicked.", "error", err)
			res = &Result{Task: task.ID, Err: fault.WithTask(err, int64(task.ID))}
		}
	}()

	if err := analyse(ctx, p, task, res); err != nil {
		err = fault.WithTask(err, int64(task.ID))
		if fault.IsRunFatal(err) {
			logger.Error("Task analysis hit a run-fatal error.", "error", err)
		} else {
			logger.Warn("Task skipped.", "error", err)
		}
		return &Result{Task: task.ID, Err: err}
	}
	logger.Debug("Task analysed.", "template", res.Labels.Template, "expression", res.Expression)
	return res
}

func analyse(ctx context.Context, p *Program, task *cycle.Task, res *Result) error {
	if err := task.Err(p.Cycles); err != nil {
		return err
	}
	cats, err := category.Categorize(ctx, p.Index, task, p.Cycles)
	if err != nil {
		return err
	}
	dims, err := dimension.Find(ctx, p.Index, task, p.Cycles, cats)
	if err != nil {
		return err
	}
	bps, err := basepointer.Find(ctx, p.Index, task, p.Config, p.CallArgs)
	if err != nil {
		return err
	}
	forest, err := indexvar.Build(ctx, p.Index, task, cats, dims, bps)
	if err != nil {
		return err
	}
	cols, err := indexvar.Collections(ctx, p.Index, task, cats, forest, bps)
	if err != nil {
		return err
	}
	reds := reduction.Find(ctx, reduction.Input{
		Index:       p.Index,
		Task:        task,
		Cycles:      p.Cycles,
		Categories:  cats,
		Dimensions:  dims,
		Forest:      forest,
		Collections: cols,
	})
	table, err := symbol.Build(ctx, symbol.Input{
		Index:        p.Index,
		Task:         task,
		Categories:   cats,
		Dimensions:   dims,
		BasePointers: bps,
		Config:       p.Config,
		Forest:       forest,
		Collections:  cols,
		Reductions:   reds,
	})
	if err != nil {
		return err
	}
	labels := parallel.Classify(ctx, parallel.Input{
		Task:        task,
		Cycles:      p.Cycles,
		Dimensions:  dims,
		Forest:      forest,
		Collections: cols,
		Reductions:  reds,
	})
	// Pragmas are only computed here; Run hands them to the injector in task
	// order once every worker is done.
	pragmas, err := parallel.Export(ctx, p.Index, p.Cycles, labels, nil)
	if err != nil {
		return err
	}

	res.Labels = labels
	res.Pragmas = pragmas
	res.Expression = symbol.Dump(table)
	res.Symbols = table
	res.Categories = cats
	return nil
}

package grammar

import (
	"context"
	"fmt"
	"runtime"

	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/parallel"
	"golang.org/x/sync/errgroup"
)

// Options tune a Run.
type Options struct {
	// Workers bounds the number of tasks analysed at once. Zero or less
	// means one worker per CPU.
	Workers int
	// Injector receives every pragma after all tasks are analysed, in task
	// order. It may be nil.
	Injector parallel.Injector
	// OnResult is called from the worker goroutines as each task finishes.
	// It must be safe for concurrent use.
	OnResult func(*Result)
}

// Run analyses every task of p and returns one Result per task, ordered like
// p.Tasks. Failed tasks do not stop the run; a run-fatal error cancels the
// remaining tasks and is returned.
func Run(ctx context.Context, p *Program, opts Options) ([]*Result, error) {
	logger := ctxlog.FromContext(ctx)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger.Info("Starting analysis.", "tasks", len(p.Tasks), "workers", workers)

	results := make([]*Result, len(p.Tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, task := range p.Tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := Process(gctx, p, task)
			results[i] = r
			if opts.OnResult != nil {
				opts.OnResult(r)
			}
			if fault.IsRunFatal(r.Err) {
				return r.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	if opts.Injector != nil {
		for _, r := range results {
			for _, pr := range r.Pragmas {
				if err := opts.Injector.Inject(ctx, pr); err != nil {
					return results, fmt.Errorf("task %d: injecting %s: %w", r.Task, pr, err)
				}
			}
		}
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	logger.Info("Analysis finished.", "tasks", len(results), "failed", failed)
	return results, nil
}

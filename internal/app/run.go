package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/descriptor"
	"github.com/benroywillis/Cyclebite-sub001/internal/grammar"
	"github.com/benroywillis/Cyclebite-sub001/internal/parallel"
	"github.com/benroywillis/Cyclebite-sub001/internal/publish"
)

// Run loads the inputs, analyses every task and writes the outputs.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.cfg.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx, a.cfg.HealthcheckPort)
		defer a.closeHealthCheckServer(ctx)
	}

	idx, d, err := a.load(ctx)
	if err != nil {
		return err
	}
	p, err := grammar.Prepare(ctx, idx, d.Kernels, d.Communication, a.model.BasePointer())
	if err != nil {
		return fmt.Errorf("failed to build tasks: %w", err)
	}
	a.progress.tasks.Store(int64(len(p.Tasks)))

	sink, err := a.openSinks(ctx)
	if err != nil {
		return err
	}
	defer sink.Close()

	inj, closeInjector, err := a.pragmaInjector()
	if err != nil {
		return err
	}
	defer closeInjector()

	results, err := grammar.Run(ctx, p, grammar.Options{
		Workers:  a.model.Analysis.Workers,
		Injector: inj,
		OnResult: a.progress.record,
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	a.logger.Info("🏁 Writing results.", "tasks", len(results), "failed", a.progress.failed.Load())

	for _, r := range results {
		if err := sink.Publish(ctx, publish.NewReport(r)); err != nil {
			return err
		}
	}
	if err := a.writeExpressions(results); err != nil {
		return err
	}
	return a.writeStatistics(grammar.Summarize(p, results))
}

// openSinks opens every configured report sink.
func (a *App) openSinks(ctx context.Context) (publish.Sink, error) {
	var sinks []publish.Sink
	if path := a.model.Output.Report; path != "" {
		s, err := publish.CreateJSONLines(path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if a.model.Publish != nil {
		s, err := publish.DialSocketIO(ctx, a.model.Publish)
		if err != nil {
			publish.Multi(sinks...).Close()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return publish.Multi(sinks...), nil
}

// pragmaInjector writes one `file:line: kind` line per pragma to the
// configured pragma file. Without one, pragmas only appear in reports.
func (a *App) pragmaInjector() (parallel.Injector, func(), error) {
	path := a.model.Output.Pragmas
	if path == "" {
		return nil, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pragma file: %w", err)
	}
	w := bufio.NewWriter(f)
	inj := parallel.InjectorFunc(func(_ context.Context, p parallel.Pragma) error {
		_, err := fmt.Fprintf(w, "%s:%d: %s\n", p.File, p.Line, p.Kind)
		return err
	})
	closeFn := func() {
		if err := w.Flush(); err != nil {
			a.logger.Error("Failed to flush pragma file.", "error", err)
		}
		f.Close()
	}
	return inj, closeFn, nil
}

func (a *App) writeExpressions(results []*grammar.Result) error {
	path := a.model.Output.Expressions
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create expression file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, r := range results {
		if r.Failed() {
			fmt.Fprintf(w, "task %d: skipped: %v\n", r.Task, r.Err)
			continue
		}
		fmt.Fprintf(w, "task %d: %s\n", r.Task, r.Expression)
	}
	return w.Flush()
}

func (a *App) writeStatistics(s grammar.Statistics) error {
	var w io.Writer = a.outW
	if path := a.model.Output.Statistics; path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create statistics file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return descriptor.WriteStatistics(w, s)
}

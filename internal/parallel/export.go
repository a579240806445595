package parallel

import (
	"context"
	"fmt"

	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// PragmaKind is the annotation placed above a cycle.
type PragmaKind int

const (
	PragmaParallel PragmaKind = iota
	PragmaVector
)

// String returns the string representation of the pragma kind.
func (k PragmaKind) String() string {
	if k == PragmaVector {
		return "vector"
	}
	return "parallel"
}

// MarshalText renders the kind in JSON reports.
func (k PragmaKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Pragma asks for an annotation on the source line preceding a cycle's
// entry.
type Pragma struct {
	Task  cycle.ID   `json:"task"`
	Cycle cycle.ID   `json:"cycle"`
	Kind  PragmaKind `json:"kind"`
	File  string     `json:"file"`
	Line  int        `json:"line"`
}

func (p Pragma) String() string {
	return fmt.Sprintf("%s:%d: %s (task %d, cycle %d)", p.File, p.Line, p.Kind, p.Task, p.Cycle)
}

// Injector places pragmas into source files.
type Injector interface {
	Inject(ctx context.Context, p Pragma) error
}

// InjectorFunc adapts a function to the Injector interface.
type InjectorFunc func(ctx context.Context, p Pragma) error

// Inject calls f.
func (f InjectorFunc) Inject(ctx context.Context, p Pragma) error { return f(ctx, p) }

// Export hands one pragma per parallel and per vectorizable cycle to inj
// and returns them. Cycles without source locations are skipped. inj may be
// nil.
func Export(ctx context.Context, idx *program.Index, cycles *cycle.Forest, l *Labels, inj Injector) ([]Pragma, error) {
	logger := ctxlog.FromContext(ctx)
	var out []Pragma
	emit := func(cid cycle.ID, kind PragmaKind) error {
		loc, ok := cycles.Cycle(cid).Entry(idx)
		if !ok {
			logger.Debug("Cycle has no source location, no pragma.", "cycle", cid, "kind", kind)
			return nil
		}
		p := Pragma{Task: l.Task, Cycle: cid, Kind: kind, File: loc.File, Line: loc.Line - 1}
		out = append(out, p)
		if inj == nil {
			return nil
		}
		if err := inj.Inject(ctx, p); err != nil {
			return fmt.Errorf("injecting %s: %w", p, err)
		}
		return nil
	}
	for _, cid := range l.Parallel {
		if err := emit(cid, PragmaParallel); err != nil {
			return nil, err
		}
	}
	for _, cid := range l.Vector {
		if err := emit(cid, PragmaVector); err != nil {
			return nil, err
		}
	}
	logger.Debug("Export: pragmas handed over.", "task", l.Task, "template", l.Template, "count", len(out))
	return out, nil
}

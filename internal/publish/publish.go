// Package publish delivers per-task reports to their consumers: a JSON-lines
// file for tooling and, optionally, a socket.io endpoint for live dashboards.
package publish

import (
	"context"
	"errors"

	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/grammar"
	"github.com/benroywillis/Cyclebite-sub001/internal/parallel"
)

// Report is the published form of one task result.
type Report struct {
	Task       cycle.ID          `json:"task"`
	Template   string            `json:"template,omitempty"`
	Parallel   []cycle.ID        `json:"parallel,omitempty"`
	Vector     []cycle.ID        `json:"vector,omitempty"`
	Expression string            `json:"expression,omitempty"`
	Pragmas    []parallel.Pragma `json:"pragmas,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// NewReport converts a task result into its report.
func NewReport(r *grammar.Result) Report {
	rep := Report{Task: r.Task}
	if r.Err != nil {
		rep.Error = r.Err.Error()
		return rep
	}
	rep.Template = r.Labels.Template.String()
	rep.Parallel = r.Labels.Parallel
	rep.Vector = r.Labels.Vector
	rep.Expression = r.Expression
	rep.Pragmas = r.Pragmas
	return rep
}

// Sink receives reports. Implementations must be safe for concurrent use.
type Sink interface {
	Publish(ctx context.Context, r Report) error
	Close() error
}

type multi []Sink

// Multi fans every report out to all sinks.
func Multi(sinks ...Sink) Sink { return multi(sinks) }

func (m multi) Publish(ctx context.Context, r Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package fault

import (
	"errors"
	"fmt"
)

// Const is the type for constant error values.
type Const string

// Error implements error for Const returning the string value of the const.
func (e Const) Error() string { return string(e) }

const (
	// ErrStructural reports a contradiction in the graph shape, e.g. a store
	// feeding a store or an index variable with two parents.
	ErrStructural = Const("structural contradiction")
	// ErrUnsupported reports a recognised but unsupported pattern.
	ErrUnsupported = Const("unsupported pattern")
	// ErrPredication reports a merge value with more than one live edge
	// reaching the expression builder.
	ErrPredication = Const("predicated merge value")
	// ErrNoBasePointer reports a task whose memory could not be attributed.
	ErrNoBasePointer = Const("no base pointer found")
	// ErrDescriptor reports malformed or unresolvable kernel descriptors.
	ErrDescriptor = Const("invalid descriptor")
	// ErrNotFound reports a lookup of an id the program index does not know.
	ErrNotFound = Const("not found")
)

// Severity says how far an error propagates.
type Severity int

const (
	// SeverityTask abandons the current task only.
	SeverityTask Severity = iota
	// SeverityRun aborts the whole run.
	SeverityRun
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityTask:
		return "task"
	case SeverityRun:
		return "run"
	default:
		return "unknown"
	}
}

// Error carries the severity and the operation that failed.
type Error struct {
	Severity Severity
	Op       string
	Task     int64
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Task != 0 {
		return fmt.Sprintf("%s (task %d): %v", e.Op, e.Task, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Task wraps err as a task-fatal error raised by op.
func Task(op string, err error) error {
	return &Error{Severity: SeverityTask, Op: op, Err: err}
}

// Taskf is Task with a formatted message wrapped around kind.
func Taskf(op string, kind error, format string, args ...any) error {
	return Task(op, fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)))
}

// Run wraps err as a run-fatal error raised by op.
func Run(op string, err error) error {
	return &Error{Severity: SeverityRun, Op: op, Err: err}
}

// Runf is Run with a formatted message wrapped around kind.
func Runf(op string, kind error, format string, args ...any) error {
	return Run(op, fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)))
}

// WithTask returns a copy of err tagged with the task id. Errors that are not
// a *Error are promoted to task-fatal.
func WithTask(err error, task int64) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		tagged := *fe
		tagged.Task = task
		return &tagged
	}
	return &Error{Severity: SeverityTask, Op: "analysis", Task: task, Err: err}
}

// IsRunFatal reports whether err must abort the whole run.
func IsRunFatal(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Severity == SeverityRun
	}
	return false
}

// From converts a recovered panic value into an error.
func From(value any) error {
	switch err := value.(type) {
	case nil:
		return nil
	case error:
		return err
	default:
		return fmt.Errorf("%v", value)
	}
}

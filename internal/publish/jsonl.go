package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// JSONLines writes one JSON object per report.
type JSONLines struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

// NewJSONLines writes to w. Closing the sink does not close w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

// CreateJSONLines creates (or truncates) the file at path.
func CreateJSONLines(path string) (*JSONLines, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return &JSONLines{enc: json.NewEncoder(f), closer: f}, nil
}

// Publish appends r as one line.
func (j *JSONLines) Publish(_ context.Context, r Report) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(r); err != nil {
		return fmt.Errorf("failed to write report for task %d: %w", r.Task, err)
	}
	return nil
}

// Close closes the underlying file, if the sink owns one.
func (j *JSONLines) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}

package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benroywillis/Cyclebite-sub001/internal/config"
	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/grammar"
	"github.com/benroywillis/Cyclebite-sub001/internal/parallel"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analysed() *grammar.Result {
	return &grammar.Result{
		Task:       1,
		Labels:     &parallel.Labels{Task: 1, Parallel: []cycle.ID{1}, Template: parallel.TemplateZIP},
		Pragmas:    []parallel.Pragma{{Task: 1, Cycle: 1, Kind: parallel.PragmaParallel, File: "add.c", Line: 4}},
		Expression: "arg2[i] = (arg0[i] + arg1[i])",
	}
}

func TestNewReport(t *testing.T) {
	got := NewReport(analysed())
	want := Report{
		Task:       1,
		Template:   "ZIP",
		Parallel:   []cycle.ID{1},
		Expression: "arg2[i] = (arg0[i] + arg1[i])",
		Pragmas:    []parallel.Pragma{{Task: 1, Cycle: 1, Kind: parallel.PragmaParallel, File: "add.c", Line: 4}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NewReport() mismatch (-want +got):\n%s", diff)
	}

	failed := NewReport(&grammar.Result{Task: 3, Err: fault.Taskf("symbol.Build", fault.ErrPredication, "phi 9")})
	assert.Equal(t, cycle.ID(3), failed.Task)
	assert.Contains(t, failed.Error, "predicated merge value")
	assert.Empty(t, failed.Template)
}

func TestJSONLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLines(&buf)
	ctx := context.Background()
	require.NoError(t, sink.Publish(ctx, NewReport(analysed())))
	require.NoError(t, sink.Publish(ctx, Report{Task: 2, Error: "boom"}))
	require.NoError(t, sink.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "ZIP", first["template"])
	assert.Equal(t, []any{1.0}, first["parallel"])
	assert.NotContains(t, first, "error")
	pragma := first["pragmas"].([]any)[0].(map[string]any)
	assert.Equal(t, "parallel", pragma["kind"])
	assert.Equal(t, "add.c", pragma["file"])

	assert.JSONEq(t, `{"task": 2, "error": "boom"}`, lines[1])
}

func TestCreateJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.jsonl")
	sink, err := CreateJSONLines(path)
	require.NoError(t, err)
	require.NoError(t, sink.Publish(context.Background(), Report{Task: 5}))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"task": 5}`, string(data))

	_, err = CreateJSONLines(filepath.Join(t.TempDir(), "missing", "report.jsonl"))
	assert.ErrorContains(t, err, "failed to create report file")
}

type recordingSink struct {
	got    []Report
	err    error
	closed bool
}

func (r *recordingSink) Publish(_ context.Context, rep Report) error {
	r.got = append(r.got, rep)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recordingSink{}, &recordingSink{err: boom}
	sink := Multi(a, b)

	err := sink.Publish(context.Background(), Report{Task: 1})
	require.ErrorIs(t, err, boom)
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)

	require.ErrorIs(t, sink.Close(), boom)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestReportData(t *testing.T) {
	data, err := reportData(NewReport(analysed()))
	require.NoError(t, err)
	assert.Equal(t, 1.0, data["task"])
	assert.Equal(t, "arg2[i] = (arg0[i] + arg1[i])", data["expression"])
}

func TestDialSocketIO_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := DialSocketIO(ctx, &config.Publish{URL: "localhost:3000", Namespace: "/"})
	assert.ErrorContains(t, err, "must be absolute")

	// Nothing listens on a port we just released.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = DialSocketIO(ctx, &config.Publish{URL: "http://" + addr + "/socket.io/", Namespace: "/", Event: "report"})
	assert.Error(t, err)
}

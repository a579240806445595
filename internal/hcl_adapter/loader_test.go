package hcl_adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/benroywillis/Cyclebite-sub001/internal/config"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHCL(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	path := writeHCL(t, dir, "cyclebite.hcl", `
		analysis {
			min_base_pointer_size = 4 * KiB
			allocators            = ["malloc", "my_alloc"]
			workers               = 3
		}
		output {
			statistics = "stats.json"
			report     = "report.jsonl"
		}
		publish {
			url = "http://localhost:3000/socket.io/"
		}
	`)

	model, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	want := &config.Model{
		Analysis: config.Analysis{
			MinBasePointerSize: 4096,
			Allocators:         []string{"malloc", "my_alloc"},
			MaxCallDepth:       8,
			Workers:            3,
		},
		Output: config.Output{Statistics: "stats.json", Report: "report.jsonl"},
		Publish: &config.Publish{
			URL:       "http://localhost:3000/socket.io/",
			Namespace: "/",
			Event:     "report",
		},
	}
	if diff := cmp.Diff(want, model); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_NoPathsIsDefault(t *testing.T) {
	model, err := NewLoader().Load(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(config.Default(), model); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, model.Publish)
}

func TestLoader_DirectoryLaterFilesWin(t *testing.T) {
	dir := t.TempDir()
	writeHCL(t, dir, "a.hcl", `analysis { workers = 2 }`)
	writeHCL(t, dir, "b.hcl", `analysis { workers = 5 }`)
	writeHCL(t, dir, "notes.txt", `not hcl`)

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 5, model.Analysis.Workers)
	assert.Equal(t, int64(32), model.Analysis.MinBasePointerSize)
}

func TestLoader_Errors(t *testing.T) {
	for _, tc := range []struct {
		name, body, msg string
	}{
		{"syntax", `analysis {`, "failed to parse"},
		{"unknown block", `cache { size = 1 }`, "failed to decode"},
		{"stray attribute", `workers = 1`, "unexpected top-level"},
		{"wrong type", `analysis { workers = "many" }`, "workers"},
		{"fraction", `analysis { max_call_depth = 1.5 }`, "max_call_depth"},
		{"negative workers", `analysis { workers = -1 }`, "must not be negative"},
		{"zero size", `analysis { min_base_pointer_size = 0 }`, "must be positive"},
		{"no allocators", `analysis { allocators = [] }`, "at least one"},
		{"relative url", `publish { url = "localhost" }`, "must be absolute"},
		{"missing url", `publish { namespace = "/x" }`, "failed to decode"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeHCL(t, t.TempDir(), "c.hcl", tc.body)
			_, err := NewLoader().Load(context.Background(), path)
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestLoader_MissingPath(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "absent.hcl"))
	assert.ErrorContains(t, err, "error accessing path")
}

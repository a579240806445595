package descriptor

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/grammar"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Kernel(t *testing.T) {
	d, err := Load(strings.NewReader(`{
		"Kernels": {
			"1": {"Blocks": [3, 4, 5], "Children": [2]},
			"2": {"Blocks": [4], "Parents": [1]}
		}
	}`))
	require.NoError(t, err)

	want := map[cycle.ID]cycle.Kernel{
		1: {Blocks: []program.BlockID{3, 4, 5}, Children: []cycle.ID{2}},
		2: {Blocks: []program.BlockID{4}, Parents: []cycle.ID{1}},
	}
	if diff := cmp.Diff(want, d.Kernels); diff != "" {
		t.Errorf("Kernels mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, d.Communication)
	assert.Empty(t, d.Significant)
}

func TestLoad_Instance(t *testing.T) {
	d, err := Load(strings.NewReader(`{
		"Kernels": {"1": {"Blocks": [2]}, "7": {"Blocks": [9]}},
		"Communication": {"1": [7]},
		"Instruction Tuples": [[40, 41], 12, [41]]
	}`))
	require.NoError(t, err)

	assert.Equal(t, map[cycle.ID][]cycle.ID{1: {7}}, d.Communication)
	assert.Equal(t, []program.ValueID{12, 40, 41}, d.Significant)
	assert.Len(t, d.Kernels, 2)
}

func TestLoad_Errors(t *testing.T) {
	for _, tc := range []struct {
		name, input, msg string
	}{
		{"syntax", `{"Kernels": `, "decoding"},
		{"empty", `{"Kernels": {}}`, "no kernels"},
		{"bad key", `{"Kernels": {"k1": {"Blocks": [1]}}}`, `"k1" is not an id`},
		{"no blocks", `{"Kernels": {"3": {"Blocks": []}}}`, "kernel 3 has no blocks"},
		{"bad communication", `{"Kernels": {"1": {"Blocks": [1]}}, "Communication": {"x": [1]}}`, "communication key"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.input))
			require.ErrorIs(t, err, fault.ErrDescriptor)
			assert.True(t, fault.IsRunFatal(err))
			assert.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestWriteStatistics(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStatistics(&buf, grammar.Statistics{
		StaticInstCount:   19,
		DynamicInstCount:  163,
		KernelInstCount:   16,
		LabeledInstCount:  11,
		FunctionHistogram: map[string]uint64{"fadd": 1, "load": 2},
	}))

	var got map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	stats := got["Statistics"]
	require.NotNil(t, stats)
	assert.EqualValues(t, 19, stats["StaticInstCount"])
	assert.EqualValues(t, 163, stats["DynamicInstCount"])
	assert.EqualValues(t, 16, stats["KernelInstCount"])
	assert.EqualValues(t, 11, stats["LabeledInstCount"])
	assert.Equal(t, map[string]any{"fadd": 1.0, "load": 2.0}, stats["FunctionHistogram"])
}

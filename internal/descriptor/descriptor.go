// Package descriptor reads the kernel and instance descriptors a profiler
// emits and writes the run statistics.
package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/benroywillis/Cyclebite-sub001/internal/cycle"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/grammar"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// Descriptor is a decoded kernel or instance descriptor. A kernel
// descriptor leaves Communication and Significant empty.
type Descriptor struct {
	Kernels       map[cycle.ID]cycle.Kernel
	Communication map[cycle.ID][]cycle.ID
	// Significant lists the memory instructions named by the instance's
	// instruction tuples.
	Significant []program.ValueID
}

type fileKernel struct {
	Blocks   []program.BlockID `json:"Blocks"`
	Parents  []cycle.ID        `json:"Parents"`
	Children []cycle.ID        `json:"Children"`
}

type fileDescriptor struct {
	Kernels       map[string]fileKernel `json:"Kernels"`
	Communication map[string][]cycle.ID `json:"Communication"`
	Tuples        []tuple               `json:"Instruction Tuples"`
}

// tuple accepts a bare value id or an array of them.
type tuple []program.ValueID

func (t *tuple) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var ids []program.ValueID
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		*t = ids
		return nil
	}
	var id program.ValueID
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*t = tuple{id}
	return nil
}

// Load decodes a kernel or instance descriptor. Malformed input is a
// run-fatal descriptor error.
func Load(r io.Reader) (*Descriptor, error) {
	var f fileDescriptor
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fault.Runf("descriptor.Load", fault.ErrDescriptor, "decoding: %v", err)
	}
	if len(f.Kernels) == 0 {
		return nil, fault.Runf("descriptor.Load", fault.ErrDescriptor, "no kernels")
	}

	d := &Descriptor{
		Kernels:       make(map[cycle.ID]cycle.Kernel, len(f.Kernels)),
		Communication: make(map[cycle.ID][]cycle.ID, len(f.Communication)),
	}
	for key, k := range f.Kernels {
		id, err := parseID(key)
		if err != nil {
			return nil, fault.Runf("descriptor.Load", fault.ErrDescriptor, "kernel key: %v", err)
		}
		if len(k.Blocks) == 0 {
			return nil, fault.Runf("descriptor.Load", fault.ErrDescriptor, "kernel %d has no blocks", id)
		}
		d.Kernels[id] = cycle.Kernel{Blocks: k.Blocks, Parents: k.Parents, Children: k.Children}
	}
	for key, consumers := range f.Communication {
		id, err := parseID(key)
		if err != nil {
			return nil, fault.Runf("descriptor.Load", fault.ErrDescriptor, "communication key: %v", err)
		}
		d.Communication[id] = consumers
	}

	seen := make(program.ValueSet)
	for _, t := range f.Tuples {
		for _, id := range t {
			if seen.Add(id) {
				d.Significant = append(d.Significant, id)
			}
		}
	}
	slices.Sort(d.Significant)
	return d, nil
}

func parseID(key string) (cycle.ID, error) {
	n, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not an id", key)
	}
	return cycle.ID(n), nil
}

// WriteStatistics writes s wrapped in a "Statistics" object.
func WriteStatistics(w io.Writer, s grammar.Statistics) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Statistics grammar.Statistics `json:"Statistics"`
	}{s}); err != nil {
		return fmt.Errorf("failed to write statistics: %w", err)
	}
	return nil
}

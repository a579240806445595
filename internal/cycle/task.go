package cycle

import (
	"cmp"
	"context"
	"slices"

	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// Task is a connected loop nest. Its ID is the ID of its parent-most cycle.
type Task struct {
	ID          ID
	Cycles      []ID
	Blocks      program.BlockSet
	SourceFiles []string
	// Producers and Consumers are task ids taken from the instance
	// descriptor's communication map.
	Producers []ID
	Consumers []ID
}

// Contains reports whether basic block bb belongs to any cycle of the task.
func (t *Task) Contains(bb program.BlockID) bool { return t.Blocks.Has(bb) }

// Err returns the first failure recorded on one of the task's cycles.
func (t *Task) Err(f *Forest) error {
	for _, id := range t.Cycles {
		if c := f.Cycle(id); c != nil && c.Err != nil {
			return c.Err
		}
	}
	return nil
}

// GroupTasks partitions the forest into tasks. communication maps a task id
// to the task ids it produces data for; entries naming unknown tasks are
// ignored.
func GroupTasks(ctx context.Context, idx *program.Index, f *Forest, communication map[ID][]ID) ([]*Task, error) {
	logger := ctxlog.FromContext(ctx)

	component := make(map[ID]int, f.Len())
	var groups [][]ID
	for _, id := range f.order {
		if _, seen := component[id]; seen {
			continue
		}
		n := len(groups)
		var members []ID
		queue := []ID{id}
		component[id] = n
		for len(queue) > 0 {
			c := f.cycles[queue[0]]
			queue = queue[1:]
			members = append(members, c.ID)
			for _, next := range append(slices.Clone(c.Parents), c.Children...) {
				if _, seen := component[next]; !seen {
					component[next] = n
					queue = append(queue, next)
				}
			}
		}
		slices.Sort(members)
		groups = append(groups, members)
	}

	tasks := make([]*Task, 0, len(groups))
	byID := make(map[ID]*Task, len(groups))
	for _, members := range groups {
		var roots []ID
		for _, id := range members {
			if len(f.cycles[id].Parents) == 0 {
				roots = append(roots, id)
			}
		}
		if len(roots) != 1 {
			return nil, fault.Runf("cycle.GroupTasks", fault.ErrStructural,
				"loop nest %v has %d parent-most cycles, want 1", members, len(roots))
		}
		t := &Task{ID: roots[0], Cycles: members, Blocks: make(program.BlockSet)}
		files := make(map[string]struct{})
		for _, id := range members {
			for bb := range f.cycles[id].Blocks {
				t.Blocks[bb] = struct{}{}
				for _, inst := range idx.Block(bb).Instructions {
					if file := idx.Value(inst).Loc.File; file != "" {
						files[file] = struct{}{}
					}
				}
			}
		}
		for file := range files {
			t.SourceFiles = append(t.SourceFiles, file)
		}
		slices.Sort(t.SourceFiles)
		tasks = append(tasks, t)
		byID[t.ID] = t
	}
	slices.SortFunc(tasks, func(a, b *Task) int { return cmp.Compare(a.ID, b.ID) })

	for _, producer := range sortedKeys(communication) {
		p := byID[producer]
		if p == nil {
			continue
		}
		for _, consumer := range communication[producer] {
			c := byID[consumer]
			if c == nil || c == p {
				continue
			}
			if !slices.Contains(p.Consumers, consumer) {
				p.Consumers = append(p.Consumers, consumer)
			}
			if !slices.Contains(c.Producers, producer) {
				c.Producers = append(c.Producers, producer)
			}
		}
	}
	for _, t := range tasks {
		slices.Sort(t.Producers)
		slices.Sort(t.Consumers)
	}

	logger.Debug("GroupTasks: tasks formed.", "tasks", len(tasks), "cycles", f.Len())
	return tasks, nil
}

func sortedKeys(m map[ID][]ID) []ID {
	keys := make([]ID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

package grammar

import (
	"github.com/benroywillis/Cyclebite-sub001/internal/category"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// Statistics summarises how much of a program the run could explain.
type Statistics struct {
	// StaticInstCount is the number of instructions in the program.
	StaticInstCount uint64 `json:"StaticInstCount"`
	// DynamicInstCount weighs every instruction by the profiled execution
	// count of its block.
	DynamicInstCount uint64 `json:"DynamicInstCount"`
	// KernelInstCount is the number of instructions inside any task.
	KernelInstCount uint64 `json:"KernelInstCount"`
	// LabeledInstCount is the number of instructions an analysed task
	// assigned a category to.
	LabeledInstCount uint64 `json:"LabeledInstCount"`
	// FunctionHistogram counts Function-colored instructions per opcode.
	FunctionHistogram map[string]uint64 `json:"FunctionHistogram"`
}

// Summarize computes the statistics of a finished run.
func Summarize(p *Program, results []*Result) Statistics {
	idx := p.Index
	s := Statistics{FunctionHistogram: make(map[string]uint64)}
	for _, bb := range idx.Blocks() {
		n := uint64(len(idx.Block(bb).Instructions))
		s.StaticInstCount += n
		s.DynamicInstCount += n * idx.BlockCount(bb)
	}

	analysed := make(map[int]*Result, len(results))
	for i, r := range results {
		if r != nil && !r.Failed() {
			analysed[i] = r
		}
	}
	for i, task := range p.Tasks {
		r := analysed[i]
		for _, bb := range task.Blocks.Sorted() {
			for _, id := range idx.Block(bb).Instructions {
				s.KernelInstCount++
				if r == nil {
					continue
				}
				switch r.Categories.Of(id) {
				case category.None:
				case category.Function:
					s.LabeledInstCount++
					s.FunctionHistogram[opName(idx, idx.Value(id))]++
				default:
					s.LabeledInstCount++
				}
			}
		}
	}
	return s
}

func opName(idx *program.Index, v *program.Value) string {
	if v.Is(program.OpCall) {
		if name := idx.CalleeName(v); name != "" {
			return "call " + name
		}
	}
	return v.Op.String()
}

package parallel

import (
	"fmt"
	"slices"

	"github.com/benroywillis/Cyclebite-sub001/internal/basepointer"
	"github.com/benroywillis/Cyclebite-sub001/internal/dimension"
	"github.com/benroywillis/Cyclebite-sub001/internal/indexvar"
)

// Template is the well-known kernel shape a task matches.
type Template int

const (
	TemplateUnknown Template = iota
	TemplateInit
	TemplateMap
	TemplateForeach
	TemplateStencil
	TemplateZIP
	TemplateGEMV
	TemplateGEMM
	TemplateCGEMM
)

var templateNames = [...]string{
	TemplateUnknown: "Unknown",
	TemplateInit:    "Init",
	TemplateMap:     "Map",
	TemplateForeach: "Foreach",
	TemplateStencil: "Stencil",
	TemplateZIP:     "ZIP",
	TemplateGEMV:    "GEMV",
	TemplateGEMM:    "GEMM",
	TemplateCGEMM:   "CGEMM",
}

// String returns the string representation of the template.
func (t Template) String() string {
	if t < 0 || int(t) >= len(templateNames) {
		return templateNames[TemplateUnknown]
	}
	return templateNames[t]
}

// MarshalText renders the template name in JSON reports.
func (t Template) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText parses a template name.
func (t *Template) UnmarshalText(b []byte) error {
	for i, n := range templateNames {
		if n == string(b) {
			*t = Template(i)
			return nil
		}
	}
	return fmt.Errorf("unknown template %q", b)
}

// operand is every collection of the task over one base pointer.
type operand struct {
	base  basepointer.ID
	views []*indexvar.Collection
	rank  int
}

// shape summarizes what the template table is keyed on.
type shape struct {
	inputs     []operand
	outputs    []operand
	reductions int
	// reductionRank is the number of distinct reduction dimensions.
	reductionRank int
	aliased       bool
	stencil       bool
}

func group(f *indexvar.Forest, cols []*indexvar.Collection) []operand {
	var out []operand
	for _, c := range cols {
		i := slices.IndexFunc(out, func(o operand) bool { return o.base == c.BasePointer })
		if i < 0 {
			out = append(out, operand{base: c.BasePointer})
			i = len(out) - 1
		}
		out[i].views = append(out[i].views, c)
		out[i].rank = max(out[i].rank, len(c.Dimensions(f)))
	}
	return out
}

func shapeOf(in Input) shape {
	accumulators := make(map[indexvar.CollectionID]bool)
	var dims []dimension.ID
	for _, r := range in.Reductions.All() {
		for _, c := range in.Collections {
			if slices.Contains(c.Loads, r.Accumulator) {
				accumulators[c.ID] = true
			}
		}
		if r.Dimension != dimension.NoDimension && !slices.Contains(dims, r.Dimension) {
			dims = append(dims, r.Dimension)
		}
	}

	var ins, outs []*indexvar.Collection
	for _, c := range in.Collections {
		switch {
		case c.IsOutput():
			outs = append(outs, c)
		case !accumulators[c.ID]:
			ins = append(ins, c)
		}
	}
	s := shape{
		inputs:        group(in.Forest, ins),
		outputs:       group(in.Forest, outs),
		reductions:    in.Reductions.Len(),
		reductionRank: len(dims),
	}
	for _, o := range s.outputs {
		if slices.ContainsFunc(s.inputs, func(i operand) bool { return i.base == o.base }) {
			s.aliased = true
		}
	}
	for _, i := range s.inputs {
		for _, a := range i.views {
			for _, b := range i.views {
				for _, d := range a.Dimensions(in.Forest) {
					if a != b && a.Overlaps(in.Forest, b, d) {
						s.stencil = true
					}
				}
			}
		}
	}
	return s
}

func ranks(ops []operand) []int {
	out := make([]int, len(ops))
	for i, o := range ops {
		out[i] = o.rank
	}
	slices.Sort(out)
	return out
}

// templateOf looks the task's shape up in the template table:
//
//	Init     no inputs, no reduction
//	Stencil  one input read at several offsets along a dimension
//	Foreach  one input, written in place
//	Map      one input, output of the same rank
//	ZIP      several inputs of the output's rank
//	GEMV     one reduction dimension over a matrix and a vector into a vector
//	GEMM     one reduction dimension over two matrices into a matrix
//	CGEMM    GEMM over split real and imaginary parts: two reductions,
//	         four input matrices, two output matrices
func templateOf(in Input) Template {
	s := shapeOf(in)
	if len(s.outputs) == 0 {
		return TemplateUnknown
	}
	in1, out1 := ranks(s.inputs), ranks(s.outputs)
	outRank := out1[len(out1)-1]

	if s.reductions == 0 {
		switch {
		case len(s.inputs) == 0:
			return TemplateInit
		case s.stencil:
			return TemplateStencil
		case len(s.inputs) == 1 && s.aliased:
			return TemplateForeach
		case len(s.inputs) == 1 && in1[0] == outRank:
			return TemplateMap
		case len(s.inputs) > 1 && !s.aliased && in1[0] == outRank && in1[len(in1)-1] == outRank:
			return TemplateZIP
		}
		return TemplateUnknown
	}

	if s.reductionRank != 1 || s.aliased {
		return TemplateUnknown
	}
	switch {
	case s.reductions == 1 && len(s.outputs) == 1 && slices.Equal(in1, []int{1, 2}) && outRank == 1:
		return TemplateGEMV
	case s.reductions == 1 && len(s.outputs) == 1 && slices.Equal(in1, []int{2, 2}) && outRank == 2:
		return TemplateGEMM
	case s.reductions == 2 && len(s.outputs) == 2 && slices.Equal(in1, []int{2, 2, 2, 2}) && slices.Equal(out1, []int{2, 2}):
		return TemplateCGEMM
	}
	return TemplateUnknown
}

package dimension

import (
	"fmt"
	"math"
	"strconv"

	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// Undetermined marks a PolySpace endpoint or stride that could not be
// resolved statically. Consumers treat it as an open end.
const Undetermined int64 = math.MinInt64

// Pattern describes how a dimension walks its space.
type Pattern int

const (
	Sequential Pattern = iota
	Random
)

// String returns the string representation of the pattern.
func (p Pattern) String() string {
	if p == Random {
		return "random"
	}
	return "sequential"
}

// PolySpace is the iteration space of a dimension.
type PolySpace struct {
	Min     int64
	Max     int64
	Stride  int64
	Pattern Pattern
}

func (p PolySpace) String() string {
	return fmt.Sprintf("[%s, %s] stride %s %s", endpoint(p.Min), endpoint(p.Max), endpoint(p.Stride), p.Pattern)
}

func endpoint(v int64) string {
	if v == Undetermined {
		return "?"
	}
	return strconv.FormatInt(v, 10)
}

// bound is the comparison that keeps a cycle running, normalised so the
// dimension is on the left: "continue while dim <rel> value".
type bound struct {
	value int64
	rel   program.Relation
}

var noBound = bound{value: Undetermined, rel: program.RelNone}

// last returns the last value the dimension takes before the bound stops it.
func (b bound) last(init, stride int64) int64 {
	if b.value == Undetermined {
		return Undetermined
	}
	switch b.rel {
	case program.RelLT:
		return b.value - 1
	case program.RelLE, program.RelGE:
		return b.value
	case program.RelGT:
		return b.value + 1
	case program.RelNE:
		switch {
		case stride != Undetermined && stride != 0:
			return b.value - stride
		case init != Undetermined && init < b.value:
			return b.value - 1
		case init != Undetermined && init > b.value:
			return b.value + 1
		}
	}
	return Undetermined
}

// upper reports whether the bound caps the space from above.
func (b bound) upper(stride int64) bool {
	switch b.rel {
	case program.RelLT, program.RelLE:
		return true
	case program.RelNE:
		return stride == Undetermined || stride >= 0
	}
	return false
}

// combine builds the space from the resolved pieces.
func combine(init, stride int64, b bound) PolySpace {
	space := PolySpace{Min: Undetermined, Max: Undetermined, Stride: stride, Pattern: Sequential}
	end := b.last(init, stride)
	switch {
	case init != Undetermined && end != Undetermined:
		space.Min, space.Max = min(init, end), max(init, end)
	case init != Undetermined:
		if stride == Undetermined {
			space.Pattern = Random
		}
		if stride == Undetermined || stride >= 0 {
			space.Min = init
		} else {
			space.Max = init
		}
	case end != Undetermined:
		if stride == Undetermined {
			space.Pattern = Random
		}
		if b.upper(stride) {
			space.Max = end
		} else {
			space.Min = end
		}
	}
	return space
}

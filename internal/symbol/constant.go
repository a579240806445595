package symbol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/benroywillis/Cyclebite-sub001/internal/program"
	"github.com/zclconf/go-cty/cty"
)

// decodeConstant unpacks constant id, recursing through vectors and
// aggregate arrays, into a dense buffer of its scalar element type.
func decodeConstant(idx *program.Index, id program.ValueID) (*Constant, error) {
	v := idx.Value(id)
	if !v.IsConstant() {
		return nil, fmt.Errorf("value %d is not a constant", id)
	}
	c := &Constant{Node: id, Type: v.Type}
	val, err := c.decode(idx, v)
	if err != nil {
		return nil, err
	}
	c.Value = val
	return c, nil
}

func (c *Constant) decode(idx *program.Index, v *program.Value) (cty.Value, error) {
	t := v.Type
	switch {
	case t.IsInteger(), t.IsFloating():
		if err := c.scalar(t); err != nil {
			return cty.NilVal, err
		}
	}
	switch t.Kind {
	case program.TypeInt:
		n := t.Size()
		if n > 8 {
			return cty.NilVal, fmt.Errorf("constant %d: integers wider than 64 bits are not supported", v.ID)
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v.Int))
		c.Data = append(c.Data, buf[:n]...)
		return cty.NumberIntVal(v.Int), nil
	case program.TypeFloat:
		c.Data = binary.LittleEndian.AppendUint32(c.Data, math.Float32bits(float32(v.Float)))
		return cty.NumberFloatVal(float64(float32(v.Float))), nil
	case program.TypeDouble:
		c.Data = binary.LittleEndian.AppendUint64(c.Data, math.Float64bits(v.Float))
		return cty.NumberFloatVal(v.Float), nil
	case program.TypeArray, program.TypeVector:
		if int64(len(v.Elements)) != t.Len {
			return cty.NilVal, fmt.Errorf("constant %d of type %s has %d elements", v.ID, t, len(v.Elements))
		}
		if len(v.Elements) == 0 {
			return cty.ListValEmpty(cty.Number), nil
		}
		vals := make([]cty.Value, 0, len(v.Elements))
		for _, e := range v.Elements {
			ev := idx.Value(e)
			if !ev.IsConstant() {
				return cty.NilVal, fmt.Errorf("constant %d has non-constant element %d", v.ID, e)
			}
			val, err := c.decode(idx, ev)
			if err != nil {
				return cty.NilVal, err
			}
			vals = append(vals, val)
		}
		return cty.ListVal(vals), nil
	}
	return cty.NilVal, fmt.Errorf("cannot decode constant %d of type %s", v.ID, t)
}

// scalar fixes the element type of the buffer on first use.
func (c *Constant) scalar(t *program.Type) error {
	if c.Elem == nil {
		c.Elem = t
		return nil
	}
	if c.Elem.Kind != t.Kind || c.Elem.Bits != t.Bits {
		return fmt.Errorf("mixed element types %s and %s in one constant", c.Elem, t)
	}
	return nil
}

// Int returns element i of an integer constant.
func (c *Constant) Int(i int) (int64, bool) {
	if c.Elem == nil || !c.Elem.IsInteger() || i < 0 || i >= c.Len() {
		return 0, false
	}
	n := int(c.Elem.Size())
	var buf [8]byte
	copy(buf[:], c.Data[i*n:(i+1)*n])
	u := binary.LittleEndian.Uint64(buf[:])
	// sign-extend from the element width
	shift := 64 - 8*uint(n)
	return int64(u<<shift) >> shift, true
}

// Float returns element i of a float or double constant.
func (c *Constant) Float(i int) (float64, bool) {
	if c.Elem == nil || i < 0 || i >= c.Len() {
		return 0, false
	}
	switch c.Elem.Kind {
	case program.TypeFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(c.Data[i*4:]))), true
	case program.TypeDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(c.Data[i*8:])), true
	}
	return 0, false
}

func (c *Constant) String() string {
	if c.Value.IsNull() || !c.Value.IsKnown() {
		return "?"
	}
	return renderValue(c.Value)
}

func renderValue(v cty.Value) string {
	if v.Type() == cty.Number {
		return v.AsBigFloat().Text('g', -1)
	}
	out := "{"
	i := 0
	for it := v.ElementIterator(); it.Next(); i++ {
		_, e := it.Element()
		if i > 0 {
			out += ", "
		}
		out += renderValue(e)
	}
	return out + "}"
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package program

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeKind classifies a Type.
type TypeKind int

const (
	TypeVoid TypeKind = iota
	TypeInt
	TypeFloat
	TypeDouble
	TypePointer
	TypeArray
	TypeVector
	TypeStruct
	TypeLabel
)

// Type is the static type of a value. Aggregates are laid out without
// padding; the footprint thresholds the analysis compares against are coarse
// enough that alignment never changes a decision.
type Type struct {
	Kind   TypeKind
	Bits   int     // integer width
	Elem   *Type   // pointee, array or vector element
	Len    int64   // array or vector length
	Fields []*Type // struct members
}

// Common types.
var (
	Void   = &Type{Kind: TypeVoid}
	I1     = Int(1)
	I8     = Int(8)
	I32    = Int(32)
	I64    = Int(64)
	Float  = &Type{Kind: TypeFloat}
	Double = &Type{Kind: TypeDouble}
	Ptr    = &Type{Kind: TypePointer}
	Label  = &Type{Kind: TypeLabel}
)

// Int returns an integer type of the given width.
func Int(bits int) *Type { return &Type{Kind: TypeInt, Bits: bits} }

// PointerTo returns a typed pointer.
func PointerTo(elem *Type) *Type { return &Type{Kind: TypePointer, Elem: elem} }

// ArrayOf returns an array type.
func ArrayOf(elem *Type, n int64) *Type { return &Type{Kind: TypeArray, Elem: elem, Len: n} }

// VectorOf returns a vector type.
func VectorOf(elem *Type, n int64) *Type { return &Type{Kind: TypeVector, Elem: elem, Len: n} }

// StructOf returns a literal struct type.
func StructOf(fields ...*Type) *Type { return &Type{Kind: TypeStruct, Fields: fields} }

// Size returns the byte footprint of the type.
func (t *Type) Size() int64 {
	if t == nil {
		return 0
	}
	switch t.Kind {
	case TypeInt:
		if t.Bits <= 8 {
			return 1
		}
		return int64((t.Bits + 7) / 8)
	case TypeFloat:
		return 4
	case TypeDouble, TypePointer:
		return 8
	case TypeArray, TypeVector:
		return t.Len * t.Elem.Size()
	case TypeStruct:
		var n int64
		for _, f := range t.Fields {
			n += f.Size()
		}
		return n
	}
	return 0
}

// IsPointer reports whether t is a pointer type.
func (t *Type) IsPointer() bool { return t != nil && t.Kind == TypePointer }

// IsInteger reports whether t is an integer type.
func (t *Type) IsInteger() bool { return t != nil && t.Kind == TypeInt }

// IsFloating reports whether t is a float or double type.
func (t *Type) IsFloating() bool {
	return t != nil && (t.Kind == TypeFloat || t.Kind == TypeDouble)
}

// IsAllPointerStruct reports whether t is a struct whose every member is a
// pointer, the shape of a container of arrays.
func (t *Type) IsAllPointerStruct() bool {
	if t == nil || t.Kind != TypeStruct || len(t.Fields) == 0 {
		return false
	}
	for _, f := range t.Fields {
		if !f.IsPointer() {
			return false
		}
	}
	return true
}

// String renders the type in LLVM-like syntax; ParseType reads it back.
func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "i" + strconv.Itoa(t.Bits)
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypePointer:
		if t.Elem == nil {
			return "ptr"
		}
		return t.Elem.String() + "*"
	case TypeArray:
		return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
	case TypeVector:
		return fmt.Sprintf("<%d x %s>", t.Len, t.Elem)
	case TypeStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case TypeLabel:
		return "label"
	}
	return "?"
}

// ParseType parses the syntax produced by Type.String.
func ParseType(s string) (*Type, error) {
	p := &typeParser{src: s}
	t, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("trailing input in type %q at offset %d", s, p.pos)
	}
	return t, nil
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != c {
		return fmt.Errorf("expected %q in type %q at offset %d", c, p.src, p.pos)
	}
	p.pos++
	return nil
}

func (p *typeParser) word() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ' ' || c == ',' || c == ']' || c == '>' || c == '}' || c == '*' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) parse() (*Type, error) {
	t, err := p.parseBase()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == '*' {
			p.pos++
			t = PointerTo(t)
			continue
		}
		return t, nil
	}
}

func (p *typeParser) parseBase() (*Type, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("unexpected end of type %q", p.src)
	}
	switch p.src[p.pos] {
	case '[', '<':
		closer := byte(']')
		kind := TypeArray
		if p.src[p.pos] == '<' {
			closer, kind = '>', TypeVector
		}
		p.pos++
		n, err := strconv.ParseInt(p.word(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad length in type %q: %w", p.src, err)
		}
		if w := p.word(); w != "x" {
			return nil, fmt.Errorf("expected 'x' in type %q, got %q", p.src, w)
		}
		elem, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect(closer); err != nil {
			return nil, err
		}
		return &Type{Kind: kind, Elem: elem, Len: n}, nil
	case '{':
		p.pos++
		var fields []*Type
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == '}' {
			p.pos++
			return StructOf(), nil
		}
		for {
			f, err := p.parse()
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
			p.skipSpace()
			if p.pos < len(p.src) && p.src[p.pos] == ',' {
				p.pos++
				continue
			}
			if err := p.expect('}'); err != nil {
				return nil, err
			}
			return StructOf(fields...), nil
		}
	}

	w := p.word()
	switch w {
	case "void":
		return Void, nil
	case "float":
		return Float, nil
	case "double":
		return Double, nil
	case "ptr":
		return Ptr, nil
	case "label":
		return Label, nil
	}
	if strings.HasPrefix(w, "i") {
		if bits, err := strconv.Atoi(w[1:]); err == nil && bits > 0 {
			return Int(bits), nil
		}
	}
	return nil, fmt.Errorf("unknown type %q in %q", w, p.src)
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package program

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// The file formats below are the hand-off from the external graph builder
// and profiler. They mirror Value field for field.

type fileProgram struct {
	Functions     []fileFunction `json:"Functions"`
	Globals       []fileValue    `json:"Globals"`
	Constants     []fileValue    `json:"Constants"`
	ControlBlocks []struct {
		ID     BlockID   `json:"ID"`
		Blocks []BlockID `json:"Blocks"`
	} `json:"ControlBlocks"`
}

type fileFunction struct {
	ID          FuncID      `json:"ID"`
	Name        string      `json:"Name"`
	Declaration bool        `json:"Declaration"`
	Args        []fileValue `json:"Args"`
	Blocks      []struct {
		ID           BlockID     `json:"ID"`
		Instructions []fileValue `json:"Instructions"`
	} `json:"Blocks"`
}

type fileValue struct {
	ID         ValueID   `json:"ID"`
	Name       string    `json:"Name,omitempty"`
	Op         string    `json:"Op,omitempty"`
	Type       string    `json:"Type,omitempty"`
	ElemType   string    `json:"ElemType,omitempty"`
	Operands   []ValueID `json:"Operands,omitempty"`
	Predicate  string    `json:"Predicate,omitempty"`
	Callee     string    `json:"Callee,omitempty"`
	Successors []BlockID `json:"Successors,omitempty"`
	Incoming   []BlockID `json:"Incoming,omitempty"`
	Int        int64     `json:"Int,omitempty"`
	Float      float64   `json:"Float,omitempty"`
	Elements   []ValueID `json:"Elements,omitempty"`
	File       string    `json:"File,omitempty"`
	Line       int       `json:"Line,omitempty"`
}

func (fv *fileValue) decode(kind Kind) (*Value, error) {
	v := &Value{
		ID:         fv.ID,
		Kind:       kind,
		Name:       fv.Name,
		Operands:   fv.Operands,
		CalleeName: fv.Callee,
		Successors: fv.Successors,
		Incoming:   fv.Incoming,
		Int:        fv.Int,
		Float:      fv.Float,
		Elements:   fv.Elements,
		Loc:        Location{File: fv.File, Line: fv.Line},
	}
	var err error
	if fv.Type != "" {
		if v.Type, err = ParseType(fv.Type); err != nil {
			return nil, fmt.Errorf("value %d: %w", fv.ID, err)
		}
	}
	if fv.ElemType != "" {
		if v.ElemType, err = ParseType(fv.ElemType); err != nil {
			return nil, fmt.Errorf("value %d: %w", fv.ID, err)
		}
	}
	if kind == KindInstruction {
		if v.Op, err = ParseOp(fv.Op); err != nil {
			return nil, fmt.Errorf("value %d: %w", fv.ID, err)
		}
	}
	if fv.Predicate != "" {
		if v.Predicate, err = ParsePredicate(fv.Predicate); err != nil {
			return nil, fmt.Errorf("value %d: %w", fv.ID, err)
		}
	}
	return v, nil
}

// LoadProgram decodes a program file into b.
func LoadProgram(r io.Reader, b *Builder) error {
	var f fileProgram
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return fmt.Errorf("failed to decode program file: %w", err)
	}

	for _, g := range f.Globals {
		v, err := g.decode(KindGlobal)
		if err != nil {
			return err
		}
		if v.Type == nil {
			v.Type = Ptr
		}
		b.AddValue(v)
	}
	for _, c := range f.Constants {
		v, err := c.decode(KindConstant)
		if err != nil {
			return err
		}
		b.AddValue(v)
	}
	for _, fn := range f.Functions {
		b.AddFunction(fn.ID, fn.Name, fn.Declaration)
		for i, a := range fn.Args {
			v, err := a.decode(KindArgument)
			if err != nil {
				return err
			}
			v.Func, v.ArgIndex = fn.ID, i
			b.AddValue(v)
			b.idx.functions[fn.ID].Args = append(b.idx.functions[fn.ID].Args, v.ID)
		}
		for _, blk := range fn.Blocks {
			b.AddBlock(blk.ID, fn.ID)
			for _, inst := range blk.Instructions {
				v, err := inst.decode(KindInstruction)
				if err != nil {
					return err
				}
				v.Block = blk.ID
				b.AddValue(v)
			}
		}
	}
	for _, cb := range f.ControlBlocks {
		b.Group(cb.ID, cb.Blocks...)
	}
	return b.err
}

type fileProfile struct {
	Edges []struct {
		From  BlockID `json:"From"`
		To    BlockID `json:"To"`
		Count uint64  `json:"Count"`
	} `json:"Edges"`
	Blocks      map[string]uint64 `json:"Blocks"`
	Significant []ValueID         `json:"Significant"`
	Footprints  map[string]int64  `json:"Footprints"`
}

// LoadProfile decodes the profiler's output into b.
func LoadProfile(r io.Reader, b *Builder) error {
	var f fileProfile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return fmt.Errorf("failed to decode profile file: %w", err)
	}
	for _, e := range f.Edges {
		b.LiveEdge(e.From, e.To, e.Count)
	}
	for key, n := range f.Blocks {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("profile block key %q: %w", key, err)
		}
		b.BlockCount(BlockID(id), n)
	}
	b.MarkSignificant(f.Significant...)
	for key, n := range f.Footprints {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("profile footprint key %q: %w", key, err)
		}
		b.SetFootprint(ValueID(id), n)
	}
	return nil
}

type fileBlockInfo map[string]struct {
	Function string `json:"Function"`
	File     string `json:"File"`
	Lines    []int  `json:"Lines"`
}

// LoadBlockInfo fills in source locations for instructions the program file
// left without one, using the per-block source information of the tracer.
func LoadBlockInfo(r io.Reader, b *Builder) error {
	var f fileBlockInfo
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return fmt.Errorf("failed to decode block info file: %w", err)
	}
	for key, info := range f {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("block info key %q: %w", key, err)
		}
		bb := b.idx.blocks[BlockID(id)]
		if bb == nil || len(info.Lines) == 0 {
			continue
		}
		line := info.Lines[0]
		for _, l := range info.Lines {
			line = min(line, l)
		}
		for _, inst := range bb.Instructions {
			v := b.idx.values[inst]
			if v.Loc.File == "" {
				v.Loc = Location{File: info.File, Line: line}
			}
		}
	}
	return nil
}

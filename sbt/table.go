// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package sbt implements the layout and generation of
// shader binding tables.
//
// A table has three regions, laid out consecutively in
// the fixed order RayGen, Miss, HitGroup. Each entry of a
// region is a shader group handle followed by the entry's
// inline data, zero-padded to the region's stride.
package sbt

import (
	"fmt"

	"github.com/pkg/errors"
)

// Category identifies a region of the table.
type Category int

// Categories, in layout order.
const (
	RayGen Category = iota
	Miss
	HitGroup

	ncat
)

func (c Category) String() string {
	switch c {
	case RayGen:
		return "raygen"
	case Miss:
		return "miss"
	case HitGroup:
		return "hitgroup"
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// ParseCategory parses a category name as returned by
// Category.String.
func ParseCategory(s string) (Category, error) {
	for c := range ncat {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, errors.Errorf("sbt: unknown category %q", s)
}

// Caller errors.
var (
	ErrHandleSize    = errors.New("sbt: handle size must be greater than zero")
	ErrAlign         = errors.New("sbt: alignment must be a power of two")
	ErrEmptyCategory = errors.New("sbt: required category has no entries")
	ErrGroupRange    = errors.New("sbt: group index out of range")
	ErrShortBuffer   = errors.New("sbt: destination buffer too small")
	ErrNoLayout      = errors.New("sbt: layout not computed")
)

// Entry is a table entry.
type Entry struct {
	Group  int
	Inline []byte
}

// Table holds the entries of a shader binding table.
// The zero value is an empty table that requires only
// the RayGen category.
type Table struct {
	ents   [ncat][]Entry
	req    [ncat]bool
	layout *Layout
}

// AddEntry appends an entry to category cat.
// group is the index of a shader group in the pipeline.
// inline is copied.
// It invalidates the computed layout.
func (t *Table) AddEntry(cat Category, group int, inline []byte) {
	if cat < 0 || cat >= ncat {
		panic("sbt.Table.AddEntry: invalid category")
	}
	t.ents[cat] = append(t.ents[cat], Entry{
		Group:  group,
		Inline: append([]byte(nil), inline...),
	})
	t.layout = nil
}

// AddRayGen calls t.AddEntry(RayGen, group, inline).
func (t *Table) AddRayGen(group int, inline []byte) { t.AddEntry(RayGen, group, inline) }

// AddMiss calls t.AddEntry(Miss, group, inline).
func (t *Table) AddMiss(group int, inline []byte) { t.AddEntry(Miss, group, inline) }

// AddHitGroup calls t.AddEntry(HitGroup, group, inline).
func (t *Table) AddHitGroup(group int, inline []byte) { t.AddEntry(HitGroup, group, inline) }

// Require marks categories that must not be empty when
// the layout is computed. RayGen is always required.
// It invalidates the computed layout.
func (t *Table) Require(cats ...Category) {
	for _, c := range cats {
		if c < 0 || c >= ncat {
			panic("sbt.Table.Require: invalid category")
		}
		t.req[c] = true
	}
	t.layout = nil
}

func (t *Table) required(c Category) bool { return c == RayGen || t.req[c] }

// Entries returns the entries of category cat.
// The returned slice must not be modified.
func (t *Table) Entries(cat Category) []Entry { return t.ents[cat] }

// Len returns the number of entries in category cat.
func (t *Table) Len(cat Category) int { return len(t.ents[cat]) }

// Validate checks that every group index is less than
// groupCount and that required categories are not empty.
func (t *Table) Validate(groupCount int) error {
	for c := range ncat {
		if len(t.ents[c]) == 0 && t.required(c) {
			return errors.Wrapf(ErrEmptyCategory, "%v", c)
		}
		for i, e := range t.ents[c] {
			if e.Group < 0 || e.Group >= groupCount {
				return errors.Wrapf(ErrGroupRange, "%v entry %d: group %d (count %d)", c, i, e.Group, groupCount)
			}
		}
	}
	return nil
}

// Region describes the placement of a category in
// the table.
type Region struct {
	Offset int64
	Stride int64
	Size   int64
	Count  int
}

// Layout describes the placement of every category.
type Layout struct {
	HandleSize int64
	Regions    [ncat]Region
	// Total size in bytes.
	Size int64
}

// Region returns the region of category cat.
func (l *Layout) Region(cat Category) Region { return l.Regions[cat] }

// EntryAlign is the stride alignment used by
// ComputeLayout.
const EntryAlign = 16

// ComputeLayout computes the table layout for the given
// handle size.
// Every stride is the handle size plus the largest inline
// data of the category, rounded up to EntryAlign. Regions
// are tightly packed.
// The result is stored in t and used by Generate. Calling
// it again without changing t produces the same layout.
func (t *Table) ComputeLayout(handleSize int64) (Layout, error) {
	return t.ComputeLayoutAligned(handleSize, EntryAlign, 1)
}

// ComputeLayoutAligned is like ComputeLayout, but uses
// entryAlign as the stride alignment and aligns the start
// of every region to regionAlign.
// Both alignments must be powers of two. entryAlign is
// raised to EntryAlign if smaller.
func (t *Table) ComputeLayoutAligned(handleSize, entryAlign, regionAlign int64) (Layout, error) {
	if handleSize <= 0 {
		return Layout{}, ErrHandleSize
	}
	if !pow2(entryAlign) || !pow2(regionAlign) {
		return Layout{}, ErrAlign
	}
	entryAlign = max(entryAlign, EntryAlign)
	l := Layout{HandleSize: handleSize}
	var off int64
	for c := range ncat {
		ents := t.ents[c]
		if len(ents) == 0 && t.required(c) {
			return Layout{}, errors.Wrapf(ErrEmptyCategory, "%v", c)
		}
		var inl int64
		for _, e := range ents {
			inl = max(inl, int64(len(e.Inline)))
		}
		off = roundUp(off, regionAlign)
		stride := roundUp(handleSize+inl, entryAlign)
		l.Regions[c] = Region{
			Offset: off,
			Stride: stride,
			Size:   stride * int64(len(ents)),
			Count:  len(ents),
		}
		off += l.Regions[c].Size
	}
	l.Size = off
	t.layout = &l
	return l, nil
}

// Layout returns the most recently computed layout, or
// nil if it was invalidated.
func (t *Table) Layout() *Layout { return t.layout }

// Generate writes the table into dst using the layout
// computed by the last call to ComputeLayout (or
// ComputeLayoutAligned).
// handles holds the handles of every shader group,
// HandleSize bytes each, in group order.
// Bytes of dst[:Size] not covered by an entry's handle or
// inline data are set to zero.
func (t *Table) Generate(handles, dst []byte) error {
	l := t.layout
	if l == nil {
		return ErrNoLayout
	}
	if int64(len(dst)) < l.Size {
		return ErrShortBuffer
	}
	hs := l.HandleSize
	ngrp := int64(len(handles)) / hs
	for c := range ncat {
		for i, e := range t.ents[c] {
			if e.Group < 0 || int64(e.Group) >= ngrp {
				return errors.Wrapf(ErrGroupRange, "%v entry %d: group %d (count %d)", c, i, e.Group, ngrp)
			}
		}
	}
	clear(dst[:l.Size])
	for c := range ncat {
		r := l.Regions[c]
		off := r.Offset
		for _, e := range t.ents[c] {
			h := int64(e.Group) * hs
			copy(dst[off:], handles[h:h+hs])
			copy(dst[off+hs:], e.Inline)
			off += r.Stride
		}
	}
	return nil
}

func pow2(n int64) bool { return n > 0 && n&(n-1) == 0 }

func roundUp(n, align int64) int64 { return (n + align - 1) &^ (align - 1) }

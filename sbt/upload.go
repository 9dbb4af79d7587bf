// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package sbt

import (
	"github.com/pkg/errors"

	"github.com/gviegas/rtframe/ctxt"
	"github.com/gviegas/rtframe/driver"
)

// Buffer is a generated table stored in GPU-accessible
// memory.
type Buffer struct {
	buf    driver.Buffer
	base   int64
	layout Layout
}

// Upload validates t against pl, computes its layout
// using the device's alignment requirements and writes
// the table into a new CPU-visible buffer.
func Upload(c *ctxt.Context, pl driver.RTPipeline, t *Table) (*Buffer, error) {
	if err := t.Validate(pl.GroupCount()); err != nil {
		return nil, err
	}
	rtl := c.RTLimits()
	l, err := t.ComputeLayoutAligned(rtl.HandleSize, max(rtl.HandleAlign, 1), max(rtl.BaseAlign, 1))
	if err != nil {
		return nil, err
	}
	handles, err := pl.GroupHandles()
	if err != nil {
		return nil, errors.Wrap(err, "sbt: group handles")
	}
	// The device address of the first region must be
	// aligned too.
	align := max(rtl.BaseAlign, 1)
	buf, err := c.Alloc(l.Size+align, driver.UShaderTable, ctxt.Visible)
	if err != nil {
		return nil, errors.Wrap(err, "sbt: upload")
	}
	base := roundUp(int64(buf.Address()), align) - int64(buf.Address())
	err = c.Map(buf, func(p []byte) error {
		return t.Generate(handles, p[base:])
	})
	if err != nil {
		buf.Destroy()
		return nil, errors.Wrap(err, "sbt: generate")
	}
	return &Buffer{buf: buf, base: base, layout: l}, nil
}

// Layout returns the table's layout.
func (b *Buffer) Layout() Layout { return b.layout }

// Buffer returns the underlying driver.Buffer.
func (b *Buffer) Buffer() driver.Buffer { return b.buf }

// Region returns the region of category cat as consumed
// by driver.CmdBuffer.TraceRays.
// Empty regions have a nil Buf.
func (b *Buffer) Region(cat Category) driver.ShaderRegion {
	r := b.layout.Regions[cat]
	if r.Count == 0 {
		return driver.ShaderRegion{}
	}
	return driver.ShaderRegion{
		Buf:    b.buf,
		Off:    b.base + r.Offset,
		Stride: r.Stride,
		Size:   r.Size,
	}
}

// Trace returns the parameters of a two-dimensional
// dispatch of width by height rays.
func (b *Buffer) Trace(width, height int) driver.TraceParam {
	rg := b.Region(RayGen)
	// Only the first ray generation entry is dispatched.
	rg.Size = rg.Stride
	return driver.TraceParam{
		RayGen:   rg,
		Miss:     b.Region(Miss),
		HitGroup: b.Region(HitGroup),
		Width:    width,
		Height:   height,
		Depth:    1,
	}
}

// Destroy destroys the buffer.
func (b *Buffer) Destroy() {
	if b.buf != nil {
		b.buf.Destroy()
	}
	*b = Buffer{}
}

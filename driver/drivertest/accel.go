// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"encoding/binary"
	"errors"

	"github.com/gviegas/rtframe/driver"
)

// Fake memory requirements and handle values.
const (
	accelBase       = 256
	accelPerAABB    = 64
	accelPerInst    = 128
	scratchBase     = 128
	scratchPerPrim  = 32
	handleBase      = 0xa0000000
	handleIDStride  = 0x100
	handleSeedBytes = 8
)

// AccelSizes computes fake memory requirements.
func (g *GPU) AccelSizes(geom *driver.AccelGeometry) (driver.AccelSizes, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("AccelSizes"); err != nil {
		return driver.AccelSizes{}, err
	}
	if geom.Count <= 0 {
		return driver.AccelSizes{}, errors.New("drivertest: empty geometry")
	}
	per := int64(accelPerAABB)
	if geom.Type == driver.TopLevel {
		per = accelPerInst
	}
	return driver.AccelSizes{
		Storage:      accelBase + per*int64(geom.Count),
		BuildScratch: scratchBase + scratchPerPrim*int64(geom.Count),
	}, nil
}

// AccelStruct implements driver.AccelStruct.
type AccelStruct struct {
	g         *GPU
	id        int
	typ       driver.AccelType
	size      int64
	handle    uint64
	input     []byte
	count     int
	builds    int
	destroyed bool
}

// NewAccelStruct creates a new acceleration structure.
func (g *GPU) NewAccelStruct(typ driver.AccelType, size int64) (driver.AccelStruct, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("NewAccelStruct"); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, errors.New("drivertest: invalid acceleration structure size")
	}
	id := g.id()
	return &AccelStruct{
		g:      g,
		id:     id,
		typ:    typ,
		size:   size,
		handle: handleBase + uint64(id)*handleIDStride,
	}, nil
}

func (as *AccelStruct) Type() driver.AccelType { return as.typ }

func (as *AccelStruct) Handle() uint64 { return as.handle }

// Size returns the storage size.
func (as *AccelStruct) Size() int64 { return as.size }

// Built returns a copy of the input consumed by the most
// recently submitted build, and its primitive count.
// Input is captured at submission, so later writes to the
// source buffer are not reflected.
func (as *AccelStruct) Built() ([]byte, int) {
	as.g.mu.Lock()
	defer as.g.mu.Unlock()
	return append([]byte(nil), as.input...), as.count
}

// Builds returns how many builds into the structure
// completed.
func (as *AccelStruct) Builds() int {
	as.g.mu.Lock()
	defer as.g.mu.Unlock()
	return as.builds
}

// Destroyed returns whether Destroy was called.
func (as *AccelStruct) Destroyed() bool { return as.destroyed }

func (as *AccelStruct) Destroy() { as.destroyed = true }

// DescWrite is a recorded descriptor update.
type DescWrite struct {
	Copy  int
	Nr    int
	Accel driver.AccelStruct
	View  driver.ImageView
	Buf   driver.Buffer
	Off   int64
	Size  int64
}

// RTPipeline implements driver.RTPipeline.
type RTPipeline struct {
	g         *GPU
	id        int
	state     driver.RTState
	writes    []DescWrite
	users     map[int]*Batch
	destroyed bool
}

// NewRTPipeline creates a new ray tracing pipeline.
// Group handles are derived from the pipeline and group
// identifiers, so they differ between groups and between
// pipelines.
func (g *GPU) NewRTPipeline(state *driver.RTState) (driver.RTPipeline, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("NewRTPipeline"); err != nil {
		return nil, err
	}
	if len(state.Groups) == 0 {
		return nil, errors.New("drivertest: no shader groups")
	}
	if state.MaxRecursion > g.rtl.MaxRecursion {
		return nil, errors.New("drivertest: recursion depth exceeds limit")
	}
	for _, grp := range state.Groups {
		for _, i := range [...]int{grp.General, grp.ClosestHit, grp.AnyHit, grp.Intersection} {
			if i != driver.NoShader && (i < 0 || i >= len(state.Stages)) {
				return nil, errors.New("drivertest: shader index out of range")
			}
		}
	}
	st := *state
	st.Stages = append([]driver.RTStage(nil), state.Stages...)
	st.Groups = append([]driver.ShaderGroup(nil), state.Groups...)
	st.Desc = append([]driver.Descriptor(nil), state.Desc...)
	if st.DescCopies < 1 {
		st.DescCopies = 1
	}
	return &RTPipeline{
		g:     g,
		id:    g.id(),
		state: st,
		users: make(map[int]*Batch),
	}, nil
}

func (p *RTPipeline) GroupCount() int { return len(p.state.Groups) }

// GroupHandles returns HandleSize bytes per group.
// The first eight bytes of each handle hold the pipeline
// identifier in the upper half and the group index plus
// one in the lower half. The remaining bytes are 0xcc.
func (p *RTPipeline) GroupHandles() ([]byte, error) {
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("GroupHandles"); err != nil {
		return nil, err
	}
	return p.handles(), nil
}

// handles generates the group handles.
func (p *RTPipeline) handles() []byte {
	hs := int(p.g.rtl.HandleSize)
	b := make([]byte, hs*len(p.state.Groups))
	for i := range p.state.Groups {
		h := b[i*hs : (i+1)*hs]
		for j := range h {
			h[j] = 0xcc
		}
		if hs >= handleSeedBytes {
			binary.LittleEndian.PutUint64(h, uint64(p.id)<<32|uint64(i+1))
		}
	}
	return b
}

// GroupHandle returns the handle of group i, as it
// appears in GroupHandles.
func (p *RTPipeline) GroupHandle(i int) []byte {
	b := p.handles()
	hs := int(p.g.rtl.HandleSize)
	return b[i*hs : (i+1)*hs]
}

func (p *RTPipeline) DescCopies() int { return p.state.DescCopies }

// State returns the state the pipeline was created with.
func (p *RTPipeline) State() driver.RTState { return p.state }

// Writes returns the descriptor updates made so far.
func (p *RTPipeline) Writes() []DescWrite {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	return append([]DescWrite(nil), p.writes...)
}

// inUse marks descriptor copy cpy as used by b.
// g.mu must be held.
func (p *RTPipeline) inUse(cpy int, b *Batch) {
	if cpy < 0 || cpy >= p.state.DescCopies {
		p.g.violate("pipeline %d: descriptor copy %d out of range", p.id, cpy)
		return
	}
	p.users[cpy] = b
}

func (p *RTPipeline) write(w DescWrite) {
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "DescWrite")
	if w.Copy < 0 || w.Copy >= p.state.DescCopies {
		g.violate("pipeline %d: descriptor copy %d out of range", p.id, w.Copy)
	} else if b := p.users[w.Copy]; b != nil && !b.done {
		g.violate("pipeline %d: descriptor copy %d updated while batch %d is pending", p.id, w.Copy, b.ID)
	}
	if w.Nr < 0 || w.Nr >= len(p.state.Desc) {
		g.violate("pipeline %d: descriptor %d out of range", p.id, w.Nr)
	}
	p.writes = append(p.writes, w)
}

func (p *RTPipeline) SetAccel(cpy, nr int, as driver.AccelStruct) {
	p.write(DescWrite{Copy: cpy, Nr: nr, Accel: as})
}

func (p *RTPipeline) SetImage(cpy, nr int, iv driver.ImageView) {
	p.write(DescWrite{Copy: cpy, Nr: nr, View: iv})
}

func (p *RTPipeline) SetConstant(cpy, nr int, buf driver.Buffer, off, size int64) {
	p.write(DescWrite{Copy: cpy, Nr: nr, Buf: buf, Off: off, Size: size})
}

// Destroyed returns whether Destroy was called.
func (p *RTPipeline) Destroyed() bool { return p.destroyed }

func (p *RTPipeline) Destroy() { p.destroyed = true }

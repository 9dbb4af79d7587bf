// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"github.com/gviegas/rtframe/driver"
)

// Op identifies a recorded command.
type Op int

// Recorded commands.
const (
	OpBarrier Op = iota
	OpTransition
	OpCopyBuffer
	OpCopyImage
	OpSetRTPipeline
	OpTraceRays
	OpBuildAccel
)

func (op Op) String() string {
	switch op {
	case OpBarrier:
		return "Barrier"
	case OpTransition:
		return "Transition"
	case OpCopyBuffer:
		return "CopyBuffer"
	case OpCopyImage:
		return "CopyImage"
	case OpSetRTPipeline:
		return "SetRTPipeline"
	case OpTraceRays:
		return "TraceRays"
	case OpBuildAccel:
		return "BuildAccel"
	}
	return "Op(?)"
}

// Cmd is a recorded command.
// Only the fields relevant to Op are set.
type Cmd struct {
	Op         Op
	Barrier    driver.Barrier
	Transition driver.Transition
	BufferCopy driver.BufferCopy
	ImageCopy  driver.ImageCopy
	Pipeline   driver.RTPipeline
	DescCopy   int
	Trace      driver.TraceParam
	Build      driver.AccelBuild
}

// CmdPool implements driver.CmdPool.
type CmdPool struct {
	g  *GPU
	id int
	cb CmdBuffer
}

// NewCmdPool creates a new command pool.
func (g *GPU) NewCmdPool() (driver.CmdPool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("NewCmdPool"); err != nil {
		return nil, err
	}
	p := &CmdPool{g: g, id: g.id()}
	p.cb.g = g
	p.cb.pool = p
	return p, nil
}

// CmdBuffer returns the pool's command buffer.
func (p *CmdPool) CmdBuffer() driver.CmdBuffer { return &p.cb }

// Reset discards recorded commands.
func (p *CmdPool) Reset() error {
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("PoolReset"); err != nil {
		return err
	}
	if g.busy(&p.cb) {
		g.violate("pool %d reset while its command buffer is pending", p.id)
	}
	p.cb.cmds = nil
	p.cb.recording = false
	return nil
}

// Destroy destroys the pool.
func (p *CmdPool) Destroy() {
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy(&p.cb) {
		g.violate("pool %d destroyed while its command buffer is pending", p.id)
	}
}

// CmdBuffer implements driver.CmdBuffer.
type CmdBuffer struct {
	g         *GPU
	pool      *CmdPool
	cmds      []Cmd
	recording bool
}

// Cmds returns the recorded commands.
func (cb *CmdBuffer) Cmds() []Cmd { return append([]Cmd(nil), cb.cmds...) }

// Begin starts recording.
func (cb *CmdBuffer) Begin() error {
	g := cb.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("Begin"); err != nil {
		return err
	}
	if g.busy(cb) {
		g.violate("pool %d: command buffer recorded while pending", cb.pool.id)
	}
	cb.cmds = cb.cmds[:0]
	cb.recording = true
	return nil
}

// End ends recording.
func (cb *CmdBuffer) End() error {
	g := cb.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("End"); err != nil {
		return err
	}
	cb.recording = false
	return nil
}

func (cb *CmdBuffer) record(c Cmd) {
	if !cb.recording {
		cb.g.mu.Lock()
		cb.g.violate("pool %d: %v recorded outside Begin/End", cb.pool.id, c.Op)
		cb.g.mu.Unlock()
	}
	cb.cmds = append(cb.cmds, c)
}

func (cb *CmdBuffer) Barrier(b []driver.Barrier) {
	for i := range b {
		cb.record(Cmd{Op: OpBarrier, Barrier: b[i]})
	}
}

func (cb *CmdBuffer) Transition(t []driver.Transition) {
	for i := range t {
		cb.record(Cmd{Op: OpTransition, Transition: t[i]})
	}
}

func (cb *CmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	cb.record(Cmd{Op: OpCopyBuffer, BufferCopy: *param})
}

func (cb *CmdBuffer) CopyImage(param *driver.ImageCopy) {
	cb.record(Cmd{Op: OpCopyImage, ImageCopy: *param})
}

func (cb *CmdBuffer) SetRTPipeline(pl driver.RTPipeline, descCopy int) {
	cb.record(Cmd{Op: OpSetRTPipeline, Pipeline: pl, DescCopy: descCopy})
}

func (cb *CmdBuffer) TraceRays(param *driver.TraceParam) {
	cb.record(Cmd{Op: OpTraceRays, Trace: *param})
}

func (cb *CmdBuffer) BuildAccel(param *driver.AccelBuild) {
	cb.record(Cmd{Op: OpBuildAccel, Build: *param})
}

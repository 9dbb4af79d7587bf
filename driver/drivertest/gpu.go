// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package drivertest provides an in-memory implementation
// of the driver interfaces for use in tests.
//
// The fake GPU executes nothing. Submitted batches are
// queued and complete lazily, in submission order, at
// points chosen by a seeded random source. Waiting on a
// fence forces completion of every batch up to the one
// that signals it. Misuse that a real device would not
// report (resetting a pool whose command buffer is still
// pending, waiting on a semaphore that nothing signals,
// rewriting a descriptor copy in use) is recorded and can
// be inspected with Violations.
package drivertest

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gviegas/rtframe/driver"
)

// ErrDeadlock is returned when an unbounded wait is done
// on a fence that no pending batch will ever signal.
var ErrDeadlock = errors.New("drivertest: wait would never return")

// Config configures a GPU.
// Zero fields take default values.
type Config struct {
	// Seed of the random source that decides when
	// batches complete.
	Seed int64
	// CompleteProb is the probability that a pending
	// batch completes at each completion point.
	// Default is 0.5. A negative value disables lazy
	// completion, so only fence waits and WaitIdle
	// complete batches.
	CompleteProb float64

	Limits   driver.Limits
	RTLimits driver.RTLimits

	// Number of images in new swapchains.
	Images int
}

// GPU implements driver.GPU, driver.Tracer and
// driver.Presenter.
type GPU struct {
	mu   sync.Mutex
	drv  *Driver
	rnd  *rand.Rand
	prob float64
	lim  driver.Limits
	rtl  driver.RTLimits
	nimg int

	nextID   int
	nextAddr uint64
	pending  []*Batch
	done     []*Batch
	calls    []string
	viols    []string
	fail     map[string]error
	stuck    map[*Fence]bool
	swapchns []*Swapchain
	bufs     []*Buffer
}

// New creates a new GPU.
func New(cfg Config) *GPU {
	g := &GPU{
		rnd:      rand.New(rand.NewSource(cfg.Seed)),
		prob:     cfg.CompleteProb,
		lim:      cfg.Limits,
		rtl:      cfg.RTLimits,
		nimg:     cfg.Images,
		nextAddr: 0x10000,
		fail:     make(map[string]error),
		stuck:    make(map[*Fence]bool),
	}
	if g.prob == 0 {
		g.prob = 0.5
	}
	if g.lim.DeviceName == "" {
		g.lim.DeviceName = "drivertest"
	}
	if g.lim.MaxImage2D == 0 {
		g.lim.MaxImage2D = 16384
	}
	if g.lim.MinConstantAlign == 0 {
		g.lim.MinConstantAlign = 256
	}
	if g.lim.MaxConstantRange == 0 {
		g.lim.MaxConstantRange = 65536
	}
	if g.rtl == (driver.RTLimits{}) {
		g.rtl = driver.RTLimits{
			HandleSize:   32,
			HandleAlign:  32,
			BaseAlign:    64,
			ScratchAlign: 128,
			MaxRecursion: 31,
			MaxDispatch:  1 << 30,
		}
	}
	if g.nimg == 0 {
		g.nimg = 3
	}
	g.drv = &Driver{gpu: g}
	return g
}

// Driver implements driver.Driver for a GPU.
type Driver struct {
	gpu    *GPU
	closed bool
}

// Open returns the GPU.
func (d *Driver) Open() (driver.GPU, error) {
	d.closed = false
	return d.gpu, nil
}

// Name returns "drivertest".
func (d *Driver) Name() string { return "drivertest" }

// Close marks the driver closed.
func (d *Driver) Close() { d.closed = true }

// Closed returns whether Close was called after the
// last call to Open.
func (d *Driver) Closed() bool { return d.closed }

// Driver returns the GPU's driver.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Limits returns the configured limits.
func (g *GPU) Limits() driver.Limits { return g.lim }

// RTLimits returns the configured ray tracing limits.
func (g *GPU) RTLimits() driver.RTLimits { return g.rtl }

// Calls returns the names of the device calls made so far,
// in order.
func (g *GPU) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// CallCount returns how many times the named call was made.
func (g *GPU) CallCount(name string) (n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.calls {
		if c == name {
			n++
		}
	}
	return
}

// ResetCalls clears the call log.
func (g *GPU) ResetCalls() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = nil
}

// Violations returns the misuse detected so far.
func (g *GPU) Violations() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.viols...)
}

// FailNext causes the next call named op to fail with
// a *driver.OpError wrapping err.
func (g *GPU) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[op] = err
}

// Stick prevents the batch that signals f from ever
// completing, so that bounded waits on f time out.
func (g *GPU) Stick(f driver.Fence) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stuck[f.(*Fence)] = true
}

// Pending returns the number of batches not yet complete.
func (g *GPU) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Batches returns every submitted batch, complete or not,
// in submission order.
func (g *GPU) Batches() []*Batch {
	g.mu.Lock()
	defer g.mu.Unlock()
	all := append([]*Batch(nil), g.done...)
	return append(all, g.pending...)
}

// Buffers returns the buffers created so far.
func (g *GPU) Buffers() []*Buffer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Buffer(nil), g.bufs...)
}

// Swapchains returns the swapchains created so far.
func (g *GPU) Swapchains() []*Swapchain {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Swapchain(nil), g.swapchns...)
}

// call logs a call and returns the injected error, if any.
// g.mu must be held.
func (g *GPU) call(name string) error {
	g.calls = append(g.calls, name)
	if err, ok := g.fail[name]; ok {
		delete(g.fail, name)
		return &driver.OpError{Op: name, Code: -1, Err: err}
	}
	return nil
}

// violate records misuse.
// g.mu must be held.
func (g *GPU) violate(format string, args ...any) {
	g.viols = append(g.viols, fmt.Sprintf(format, args...))
}

func (g *GPU) id() int {
	g.nextID++
	return g.nextID
}

// advance completes a random number of the oldest pending
// batches.
// g.mu must be held.
func (g *GPU) advance() {
	if g.prob < 0 {
		return
	}
	for len(g.pending) > 0 && g.rnd.Float64() < g.prob {
		if !g.completeFirst() {
			return
		}
	}
}

// completeUntil completes pending batches in order until b
// is complete. It returns false if a stuck batch prevents
// that.
// g.mu must be held.
func (g *GPU) completeUntil(b *Batch) bool {
	for !b.done {
		if !g.completeFirst() {
			return false
		}
	}
	return true
}

// completeFirst completes the oldest pending batch.
// g.mu must be held.
func (g *GPU) completeFirst() bool {
	b := g.pending[0]
	if b.Fence != nil && g.stuck[b.Fence] {
		return false
	}
	g.pending = g.pending[1:]
	g.done = append(g.done, b)
	b.done = true
	for _, x := range b.Signal {
		sem := x.(*Semaphore)
		if sem.consumed > 0 {
			sem.consumed--
		} else {
			sem.signaled = true
		}
	}
	if b.Fence != nil {
		b.Fence.signaled = true
		b.Fence.batch = nil
	}
	b.execute()
	return true
}

// WaitIdle completes every pending batch.
func (g *GPU) WaitIdle() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("WaitIdle"); err != nil {
		return err
	}
	for len(g.pending) > 0 {
		if !g.completeFirst() {
			return &driver.OpError{Op: "WaitIdle", Code: -1, Err: driver.ErrFatal}
		}
	}
	return nil
}

// idle returns whether no batch is pending.
// g.mu must be held.
func (g *GPU) idle() bool { return len(g.pending) == 0 }

// busy returns whether cb is referenced by a pending batch.
// g.mu must be held.
func (g *GPU) busy(cb *CmdBuffer) bool {
	for _, b := range g.pending {
		for _, x := range b.Work {
			if x == cb {
				return true
			}
		}
	}
	return false
}

// Batch is a submitted unit of work.
type Batch struct {
	ID       int
	Work     []*CmdBuffer
	Cmds     [][]Cmd
	Wait     []driver.Semaphore
	WaitSync []driver.Sync
	Signal   []driver.Semaphore
	Fence    *Fence
	done     bool
}

// Done returns whether the batch completed.
func (b *Batch) Done() bool { return b.done }

// execute applies the side effects of recorded commands
// that tests can observe.
func (b *Batch) execute() {
	for _, cmds := range b.Cmds {
		for _, c := range cmds {
			switch c.Op {
			case OpCopyBuffer:
				p := c.BufferCopy
				from := p.From.(*Buffer).data[p.FromOff : p.FromOff+p.Size]
				copy(p.To.(*Buffer).data[p.ToOff:], from)
			case OpBuildAccel:
				p := c.Build
				as := p.Dst.(*AccelStruct)
				as.builds++
			}
		}
	}
}

// Submit queues a batch.
func (g *GPU) Submit(s *driver.Submission) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("Submit"); err != nil {
		return err
	}
	if len(s.Wait) != len(s.WaitSync) {
		panic("drivertest: mismatched wait semaphores and stages")
	}
	b := &Batch{
		ID:       g.id(),
		Wait:     append([]driver.Semaphore(nil), s.Wait...),
		WaitSync: append([]driver.Sync(nil), s.WaitSync...),
		Signal:   append([]driver.Semaphore(nil), s.Signal...),
	}
	for _, x := range s.Work {
		cb := x.(*CmdBuffer)
		if cb.recording {
			g.violate("batch %d: command buffer submitted while recording", b.ID)
		}
		if g.busy(cb) {
			g.violate("batch %d: command buffer submitted while pending", b.ID)
		}
		b.Work = append(b.Work, cb)
		b.Cmds = append(b.Cmds, append([]Cmd(nil), cb.cmds...))
		for _, c := range cb.cmds {
			if c.Op == OpSetRTPipeline {
				c.Pipeline.(*RTPipeline).inUse(c.DescCopy, b)
			}
			if c.Op == OpBuildAccel {
				g.snapshotBuild(&c)
			}
		}
	}
	for _, x := range s.Wait {
		sem := x.(*Semaphore)
		switch {
		case sem.signaled:
			sem.signaled = false
		case g.willSignal(sem):
			sem.consumed++
		default:
			g.violate("batch %d: waits on semaphore %d that nothing signals", b.ID, sem.id)
		}
	}
	if s.Fence != nil {
		f := s.Fence.(*Fence)
		if f.signaled || f.batch != nil {
			g.violate("batch %d: fence %d submitted while not reset", b.ID, f.id)
		}
		f.batch = b
		b.Fence = f
	}
	g.pending = append(g.pending, b)
	g.advance()
	return nil
}

// snapshotBuild copies the input of a build command at
// submission time.
// g.mu must be held.
func (g *GPU) snapshotBuild(c *Cmd) {
	as := c.Build.Dst.(*AccelStruct)
	geom := c.Build.Geometry
	stride := driver.AABBSize
	if geom.Type == driver.TopLevel {
		stride = driver.InstanceSize
	}
	data := geom.Data.(*Buffer).data
	end := geom.Off + int64(geom.Count*stride)
	as.input = append([]byte(nil), data[geom.Off:end]...)
	as.count = geom.Count
}

// willSignal returns whether a pending batch will signal
// sem.
// g.mu must be held.
func (g *GPU) willSignal(sem *Semaphore) bool {
	for _, b := range g.pending {
		for _, s := range b.Signal {
			if s == sem {
				return true
			}
		}
	}
	return false
}

// Fence implements driver.Fence.
type Fence struct {
	g        *GPU
	id       int
	signaled bool
	batch    *Batch
}

// NewFence creates a new fence.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("NewFence"); err != nil {
		return nil, err
	}
	return &Fence{g: g, id: g.id(), signaled: signaled}, nil
}

// Wait waits for the fence.
func (f *Fence) Wait(timeout time.Duration) error {
	g := f.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("FenceWait"); err != nil {
		return err
	}
	if f.signaled {
		return nil
	}
	if f.batch == nil || !g.completeUntil(f.batch) {
		if timeout == driver.Infinite {
			return &driver.OpError{Op: "FenceWait", Code: -1, Err: ErrDeadlock}
		}
		return &driver.OpError{Op: "FenceWait", Code: -1, Err: driver.ErrTimeout}
	}
	return nil
}

// Reset unsignals the fence.
func (f *Fence) Reset() error {
	g := f.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("FenceReset"); err != nil {
		return err
	}
	if f.batch != nil {
		g.violate("fence %d reset while pending", f.id)
	}
	f.signaled = false
	return nil
}

// Signaled returns whether the fence is signaled.
// It is a completion point.
func (f *Fence) Signaled() (bool, error) {
	g := f.g
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advance()
	return f.signaled, nil
}

// Destroy destroys the fence.
func (f *Fence) Destroy() {
	g := f.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if f.batch != nil {
		g.violate("fence %d destroyed while pending", f.id)
	}
}

// Semaphore implements driver.Semaphore.
type Semaphore struct {
	g        *GPU
	id       int
	signaled bool
	// Number of pending signals that were already
	// waited on.
	consumed int
}

// NewSemaphore creates a new semaphore.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("NewSemaphore"); err != nil {
		return nil, err
	}
	return &Semaphore{g: g, id: g.id()}, nil
}

// Destroy destroys the semaphore.
func (s *Semaphore) Destroy() {}

// ShaderCode implements driver.ShaderCode.
type ShaderCode struct {
	Data []byte
}

// NewShaderCode creates a new shader code.
func (g *GPU) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("NewShaderCode"); err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)&3 != 0 {
		return nil, errors.New("drivertest: invalid shader code size")
	}
	return &ShaderCode{Data: append([]byte(nil), data...)}, nil
}

// Destroy destroys the shader code.
func (c *ShaderCode) Destroy() {}

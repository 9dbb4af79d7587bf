// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package frame

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/gviegas/rtframe/ctxt"
	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/sbt"
)

// slot is a frame slot of the ring.
type slot struct {
	state State
	avail driver.Semaphore
	pool  driver.CmdPool
	fence driver.Fence
	cons  ctxt.Span
	out   driver.Image
	view  driver.ImageView
	// Whether the acceleration structure descriptor of
	// this slot's copy must be rewritten.
	stale bool
}

// Params are the resources used by a Scheduler.
type Params struct {
	// Swapchain to present to. It is owned by the
	// Scheduler once New succeeds.
	Swapchain driver.Swapchain
	// Pipeline must declare Descriptors() and have a
	// descriptor copy per swapchain image.
	Pipeline driver.RTPipeline
	Table    *sbt.Buffer
	Accel    driver.AccelStruct
	Camera   Camera
}

// Scheduler draws frames.
// It must be used from a single goroutine.
type Scheduler struct {
	c        *ctxt.Context
	cfg      Config
	sc       driver.Swapchain
	pl       driver.RTPipeline
	tab      *sbt.Buffer
	as       driver.AccelStruct
	cam      Camera
	slots    []slot
	rendered driver.Semaphore
	arena    *ctxt.Arena
	width    int
	height   int
	count    uint64
	// Index of the image acquired by the last frame.
	last    int
	resized bool
	swizzle bool
	stats   Stats
}

// New creates a new Scheduler with one frame slot per
// swapchain image.
func New(c *ctxt.Context, p Params, cfg Config) (_ *Scheduler, err error) {
	n := len(p.Swapchain.Images())
	if n < 1 {
		return nil, errors.New("frame: swapchain has no images")
	}
	if p.Pipeline.DescCopies() < n {
		return nil, errors.Wrapf(ErrDescCopies, "%d for %d slots", p.Pipeline.DescCopies(), n)
	}
	s := &Scheduler{
		c:     c,
		cfg:   cfg,
		sc:    p.Swapchain,
		pl:    p.Pipeline,
		tab:   p.Table,
		as:    p.Accel,
		cam:   p.Camera,
		slots: make([]slot, n),
	}
	defer func() {
		if err != nil {
			s.sc = nil
			s.destroy()
		}
	}()

	gpu := c.GPU()
	if s.rendered, err = gpu.NewSemaphore(); err != nil {
		return nil, errors.Wrap(err, "frame: new semaphore")
	}
	if s.arena, err = c.NewArena(n, ConstantSize, driver.UShaderConst); err != nil {
		return nil, errors.Wrap(err, "frame: constants")
	}
	for i := range s.slots {
		if err = s.initSlot(i); err != nil {
			return nil, errors.Wrapf(err, "frame: slot %d", i)
		}
	}
	sp := s.sc.Params()
	s.width, s.height = sp.Width, sp.Height
	s.swizzle = Swizzled(s.sc.Format())
	if err = s.newOutputs(); err != nil {
		return nil, err
	}
	s.cam.SetAspect(float32(s.width) / float32(s.height))
	logger.Infof("%d frame slots, %v ring, %dx%d", n, cfg.Mode, s.width, s.height)
	return s, nil
}

func (s *Scheduler) initSlot(i int) (err error) {
	gpu := s.c.GPU()
	sl := &s.slots[i]
	if sl.avail, err = gpu.NewSemaphore(); err != nil {
		return
	}
	if sl.pool, err = gpu.NewCmdPool(); err != nil {
		return
	}
	// Created signaled so the first wait returns.
	if sl.fence, err = gpu.NewFence(true); err != nil {
		return
	}
	if sl.cons, err = s.arena.Alloc(ConstantSize); err != nil {
		return
	}
	s.pl.SetAccel(i, BindAccel, s.as)
	s.pl.SetConstant(i, BindConstants, s.arena.Buffer(), sl.cons.Off, ConstantSize)
	return
}

// newOutputs replaces the output images with images of
// the current extent.
// No slot can be pending execution.
func (s *Scheduler) newOutputs() error {
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.view != nil {
			sl.view.Destroy()
			sl.out.Destroy()
			sl.view, sl.out = nil, nil
		}
		img, view, err := s.c.AllocImage(OutputFormat, s.width, s.height, driver.UShaderWrite|driver.UCopySrc)
		if err != nil {
			return errors.Wrap(err, "frame: output image")
		}
		sl.out, sl.view = img, view
		s.pl.SetImage(i, BindOutput, view)
	}
	return nil
}

// Slots returns the number of frame slots.
func (s *Scheduler) Slots() int { return len(s.slots) }

// SlotState returns the state of slot i as last
// observed by s.
func (s *Scheduler) SlotState(i int) State { return s.slots[i].state }

// Extent returns the current frame size.
func (s *Scheduler) Extent() (width, height int) { return s.width, s.height }

// Stats returns the Scheduler's counters.
func (s *Scheduler) Stats() Stats { return s.stats }

// Mode returns the ring mode.
func (s *Scheduler) Mode() RingMode { return s.cfg.Mode }

// Swizzle returns whether frames are written in BGRA
// order for the current swapchain format.
func (s *Scheduler) Swizzle() bool { return s.swizzle }

// Resize records that the window was resized.
// The swapchain is recreated by the next DrawFrame.
func (s *Scheduler) Resize(width, height int) {
	if width == s.width && height == s.height {
		return
	}
	logger.Debugf("resize to %dx%d pending", width, height)
	s.resized = true
}

// SetAccel sets the acceleration structure to trace
// against.
// Descriptor copies are updated as their slots are
// reused, so the previous structure must stay alive
// until every slot has drawn a new frame.
func (s *Scheduler) SetAccel(as driver.AccelStruct) {
	s.as = as
	for i := range s.slots {
		s.slots[i].stale = true
	}
}

// DrawFrame draws and presents a frame.
// An out of date swapchain is recreated and acquisition
// is retried once. Any other failure aborts the frame.
func (s *Scheduler) DrawFrame() error {
	cur := s.last
	if s.cfg.Mode == RingCounter {
		cur = int(s.count % uint64(len(s.slots)))
	}
	if err := s.wait(cur); err != nil {
		return err
	}

	avail := s.slots[cur].avail
	idx, err := s.acquire(avail)
	if err != nil {
		return err
	}
	i := cur
	if s.cfg.Mode == RingImageIndex {
		if idx >= len(s.slots) {
			return errors.Wrapf(ErrRingMismatch, "image %d, %d slots", idx, len(s.slots))
		}
		i = idx
		if i != cur {
			if err = s.wait(i); err != nil {
				return err
			}
		}
	}

	sl := &s.slots[i]
	if err = sl.pool.Reset(); err != nil {
		return errors.Wrap(err, "frame: reset pool")
	}
	sl.state = Recording
	if sl.stale {
		s.pl.SetAccel(i, BindAccel, s.as)
		sl.stale = false
	}
	s.writeConstants(s.arena.Bytes(sl.cons)[:ConstantSize])

	cb := sl.pool.CmdBuffer()
	if err = s.record(cb, i, s.sc.Images()[idx]); err != nil {
		sl.state = Idle
		return err
	}
	if err = sl.fence.Reset(); err != nil {
		sl.state = Idle
		return errors.Wrap(err, "frame: reset fence")
	}
	err = s.c.GPU().Submit(&driver.Submission{
		Work:     []driver.CmdBuffer{cb},
		Wait:     []driver.Semaphore{avail},
		WaitSync: []driver.Sync{driver.SColorOutput},
		Signal:   []driver.Semaphore{s.rendered},
		Fence:    sl.fence,
	})
	if err != nil {
		return errors.Wrap(err, "frame: submit")
	}
	sl.state = Submitted
	s.count++
	s.last = idx
	s.stats.Frames++

	if err = s.sc.Present(idx, s.rendered); err != nil {
		if !IsTransient(err) {
			return errors.Wrap(err, "frame: present")
		}
		s.resized = true
	}
	return nil
}

// wait blocks until slot i is idle.
func (s *Scheduler) wait(i int) error {
	sl := &s.slots[i]
	if err := sl.fence.Wait(s.cfg.timeout()); err != nil {
		return errors.Wrapf(err, "frame: wait slot %d", i)
	}
	sl.state = Idle
	return nil
}

// acquire acquires the next swapchain image, recreating
// the swapchain when needed.
func (s *Scheduler) acquire(sem driver.Semaphore) (int, error) {
	for try := 0; ; try++ {
		if s.resized {
			if err := s.recreate(); err != nil {
				return -1, err
			}
		}
		idx, err := s.sc.Next(sem)
		switch {
		case err == nil:
			return idx, nil
		case !IsTransient(err):
			return -1, errors.Wrap(err, "frame: acquire")
		case try > 0:
			return -1, errors.Wrapf(ErrOutOfDate, "%v", err)
		}
		logger.Info("swapchain out of date")
		s.resized = true
	}
}

// recreate waits for the GPU to become idle and then
// recreates the swapchain and the output images.
func (s *Scheduler) recreate() error {
	if err := s.c.GPU().WaitIdle(); err != nil {
		return errors.Wrap(err, "frame: wait idle")
	}
	for i := range s.slots {
		s.slots[i].state = Idle
	}
	if err := s.sc.Recreate(); err != nil {
		return errors.Wrap(err, "frame: recreate swapchain")
	}
	sp := s.sc.Params()
	s.width, s.height = sp.Width, sp.Height
	s.swizzle = Swizzled(s.sc.Format())
	if err := s.newOutputs(); err != nil {
		return err
	}
	s.cam.SetAspect(float32(s.width) / float32(s.height))
	s.resized = false
	s.stats.Recreations++
	logger.Noticef("swapchain recreated: %dx%d, %d images", s.width, s.height, len(s.sc.Images()))
	return nil
}

// writeConstants writes the per-frame constants into p.
func (s *Scheduler) writeConstants(p []byte) {
	s.cam.Constants(p)
	var sw float32
	if s.swizzle {
		sw = 1
	}
	binary.LittleEndian.PutUint32(p[SwizzleOffset:], math.Float32bits(sw))
}

// record records the commands of a frame drawn into the
// output image of slot i and copied into dst.
func (s *Scheduler) record(cb driver.CmdBuffer, i int, dst driver.Image) error {
	if err := cb.Begin(); err != nil {
		return errors.Wrap(err, "frame: begin")
	}
	out := s.slots[i].out
	cb.Transition([]driver.Transition{{
		Barrier: driver.Barrier{
			SyncBefore:   driver.SNone,
			SyncAfter:    driver.SRayTracing,
			AccessBefore: driver.ANone,
			AccessAfter:  driver.AShaderWrite,
		},
		LayoutBefore: driver.LUndefined,
		LayoutAfter:  driver.LCommon,
		Img:          out,
	}})
	cb.SetRTPipeline(s.pl, i)
	tp := s.tab.Trace(s.width, s.height)
	cb.TraceRays(&tp)
	cb.Transition([]driver.Transition{
		{
			Barrier: driver.Barrier{
				SyncBefore:   driver.SRayTracing,
				SyncAfter:    driver.SCopy,
				AccessBefore: driver.AShaderWrite,
				AccessAfter:  driver.ACopyRead,
			},
			LayoutBefore: driver.LCommon,
			LayoutAfter:  driver.LCopySrc,
			Img:          out,
		},
		{
			// Chained with the wait on the
			// acquisition semaphore.
			Barrier: driver.Barrier{
				SyncBefore:   driver.SColorOutput,
				SyncAfter:    driver.SCopy,
				AccessBefore: driver.ANone,
				AccessAfter:  driver.ACopyWrite,
			},
			LayoutBefore: driver.LUndefined,
			LayoutAfter:  driver.LCopyDst,
			Img:          dst,
		},
	})
	ds := dst.Size()
	cb.CopyImage(&driver.ImageCopy{
		From: out,
		To:   dst,
		Size: driver.Dim3D{
			Width:  min(s.width, ds.Width),
			Height: min(s.height, ds.Height),
			Depth:  1,
		},
	})
	cb.Transition([]driver.Transition{{
		Barrier: driver.Barrier{
			SyncBefore:   driver.SCopy,
			SyncAfter:    driver.SNone,
			AccessBefore: driver.ACopyWrite,
			AccessAfter:  driver.ANone,
		},
		LayoutBefore: driver.LCopyDst,
		LayoutAfter:  driver.LPresent,
		Img:          dst,
	}})
	if err := cb.End(); err != nil {
		return errors.Wrap(err, "frame: end")
	}
	return nil
}

// Destroy waits for the GPU to become idle and destroys
// the Scheduler and its swapchain.
// The pipeline, table and acceleration structure are
// not destroyed.
func (s *Scheduler) Destroy() {
	if s.c == nil {
		return
	}
	if err := s.c.GPU().WaitIdle(); err != nil {
		logger.Warningf("wait idle on destroy: %v", err)
	}
	s.destroy()
}

func (s *Scheduler) destroy() {
	for i := len(s.slots) - 1; i >= 0; i-- {
		sl := &s.slots[i]
		if sl.view != nil {
			sl.view.Destroy()
		}
		if sl.out != nil {
			sl.out.Destroy()
		}
		if sl.fence != nil {
			sl.fence.Destroy()
		}
		if sl.pool != nil {
			sl.pool.Destroy()
		}
		if sl.avail != nil {
			sl.avail.Destroy()
		}
	}
	if s.rendered != nil {
		s.rendered.Destroy()
	}
	if s.arena != nil {
		s.arena.Destroy()
	}
	if s.sc != nil {
		s.sc.Destroy()
	}
	*s = Scheduler{}
}

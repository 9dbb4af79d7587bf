// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package ctxt provides the context object that owns the
// GPU used for ray tracing.
// Every component receives a *Context explicitly; no
// device state is kept in package variables.
package ctxt

import (
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/log"
)

var errNoDriver = errors.New("ctxt: driver not found")

// ErrNotVisible means that a buffer that is not
// CPU-visible was mapped.
var ErrNotVisible = errors.New("ctxt: buffer is not CPU-visible")

var logger = log.New("ctxt")

// Locality is the type of memory locality for
// allocations.
type Locality int

// Memory localities.
const (
	// GPU-local memory.
	Local Locality = iota
	// CPU-visible memory, persistently mapped.
	Visible
)

// Context owns a driver.GPU and the values queried from
// it at creation.
type Context struct {
	drv   driver.Driver
	gpu   driver.GPU
	tr    driver.Tracer
	pr    driver.Presenter
	lim   driver.Limits
	rtlim driver.RTLimits
}

// New creates a new Context using any registered driver
// whose name contains the name string. It is case
// insensitive.
// If name is the empty string, then all registered
// drivers are considered.
func New(name string) (*Context, error) {
	drivers := driver.Drivers()
	err := errNoDriver
	name = strings.ToLower(name)
	for i := range drivers {
		if !strings.Contains(strings.ToLower(drivers[i].Name()), name) {
			continue
		}
		var gpu driver.GPU
		if gpu, err = drivers[i].Open(); err != nil {
			logger.Warningf("driver '%s' failed to open: %v", drivers[i].Name(), err)
			continue
		}
		var c *Context
		if c, err = NewFromGPU(gpu); err != nil {
			drivers[i].Close()
			continue
		}
		return c, nil
	}
	return nil, err
}

// NewFromGPU creates a new Context that owns gpu.
// gpu must implement driver.Tracer. Presentation is
// optional.
func NewFromGPU(gpu driver.GPU) (*Context, error) {
	tr, ok := gpu.(driver.Tracer)
	if !ok {
		return nil, driver.ErrCannotTrace
	}
	c := &Context{
		drv:   gpu.Driver(),
		gpu:   gpu,
		tr:    tr,
		lim:   gpu.Limits(),
		rtlim: tr.RTLimits(),
	}
	c.pr, _ = gpu.(driver.Presenter)
	logger.Noticef("using %s (%s)", c.lim.DeviceName, c.drv.Name())
	return c, nil
}

// Driver returns the driver.Driver.
func (c *Context) Driver() driver.Driver { return c.drv }

// GPU returns the driver.GPU.
func (c *Context) GPU() driver.GPU { return c.gpu }

// Tracer returns the GPU's driver.Tracer.
func (c *Context) Tracer() driver.Tracer { return c.tr }

// Presenter returns the GPU's driver.Presenter, or nil
// if presentation is not supported.
func (c *Context) Presenter() driver.Presenter { return c.pr }

// Limits returns GPU().Limits().
// This value is retrieved only once.
func (c *Context) Limits() driver.Limits { return c.lim }

// RTLimits returns Tracer().RTLimits().
// This value is retrieved only once.
func (c *Context) RTLimits() driver.RTLimits { return c.rtlim }

// Alloc creates a new buffer.
func (c *Context) Alloc(size int64, usg driver.Usage, loc Locality) (driver.Buffer, error) {
	buf, err := c.gpu.NewBuffer(size, loc == Visible, usg)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "ctxt: alloc")
	}
	return buf, nil
}

// AllocImage creates a new 2D image and a view of it.
func (c *Context) AllocImage(pf driver.PixelFmt, width, height int, usg driver.Usage) (driver.Image, driver.ImageView, error) {
	img, err := c.gpu.NewImage(pf, driver.Dim3D{Width: width, Height: height, Depth: 1}, usg)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, "ctxt: alloc image")
	}
	view, err := img.NewView()
	if err != nil {
		img.Destroy()
		return nil, nil, pkgerrors.Wrap(err, "ctxt: alloc image view")
	}
	return img, view, nil
}

// Map calls fn with the CPU-visible memory of buf and
// returns the error fn returns.
// The slice must not be retained after fn returns.
func (c *Context) Map(buf driver.Buffer, fn func(p []byte) error) error {
	if !buf.Visible() {
		return ErrNotVisible
	}
	return fn(buf.Bytes())
}

// OneShot records commands with rec, submits them and
// waits for their completion.
// The command pool and fence are created for this call
// only.
func (c *Context) OneShot(rec func(cb driver.CmdBuffer) error) error {
	pool, err := c.gpu.NewCmdPool()
	if err != nil {
		return pkgerrors.Wrap(err, "ctxt: one-shot pool")
	}
	defer pool.Destroy()
	fence, err := c.gpu.NewFence(false)
	if err != nil {
		return pkgerrors.Wrap(err, "ctxt: one-shot fence")
	}
	defer fence.Destroy()

	cb := pool.CmdBuffer()
	if err = cb.Begin(); err != nil {
		return pkgerrors.Wrap(err, "ctxt: one-shot begin")
	}
	if err = rec(cb); err != nil {
		cb.End()
		return err
	}
	if err = cb.End(); err != nil {
		return pkgerrors.Wrap(err, "ctxt: one-shot end")
	}
	err = c.gpu.Submit(&driver.Submission{
		Work:  []driver.CmdBuffer{cb},
		Fence: fence,
	})
	if err != nil {
		return pkgerrors.Wrap(err, "ctxt: one-shot submit")
	}
	if err = fence.Wait(driver.Infinite); err != nil {
		return pkgerrors.Wrap(err, "ctxt: one-shot wait")
	}
	return nil
}

// Close waits for the GPU to become idle and closes the
// driver.
// Every resource created from the Context must have been
// destroyed.
func (c *Context) Close() {
	if c.gpu == nil {
		return
	}
	if err := c.gpu.WaitIdle(); err != nil {
		logger.Warningf("wait idle on close: %v", err)
	}
	c.drv.Close()
	*c = Context{}
}

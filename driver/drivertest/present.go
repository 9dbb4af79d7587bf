// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"errors"

	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/wsi"
)

// Swapchain implements driver.Swapchain.
// Images are acquired in round-robin order, skipping
// those not yet presented, unless an explicit order is
// set with Script.
type Swapchain struct {
	g         *GPU
	win       wsi.Window
	nimg      int
	format    driver.PixelFmt
	imgs      []driver.Image
	params    driver.SurfaceParams
	next      int
	script    []int
	acquired  map[int]bool
	presented []int
	outOfDate int
	broken    bool
	recreated int
	destroyed bool
}

// NewSwapchain creates a new swapchain.
// The number of images is the GPU's configured count,
// regardless of imageCount.
func (g *GPU) NewSwapchain(win wsi.Window, imageCount int) (driver.Swapchain, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("NewSwapchain"); err != nil {
		return nil, err
	}
	if win == nil {
		return nil, driver.ErrWindow
	}
	if imageCount < 1 {
		return nil, errors.New("drivertest: invalid image count")
	}
	s := &Swapchain{
		g:        g,
		win:      win,
		nimg:     g.nimg,
		format:   driver.BGRA8Unorm,
		acquired: make(map[int]bool),
	}
	s.init()
	g.swapchns = append(g.swapchns, s)
	return s, nil
}

// init creates the images using the window's size.
func (s *Swapchain) init() {
	s.params = driver.SurfaceParams{
		Format:     s.format,
		ColorSpace: driver.SRGBNonlinear,
		MinImages:  2,
		MaxImages:  8,
		Width:      s.win.Width(),
		Height:     s.win.Height(),
	}
	size := driver.Dim3D{Width: s.params.Width, Height: s.params.Height, Depth: 1}
	s.imgs = make([]driver.Image, s.nimg)
	for i := range s.imgs {
		s.imgs[i] = &Image{
			g:    s.g,
			id:   s.g.id(),
			pf:   s.params.Format,
			size: size,
			usg:  driver.UCopyDst,
		}
	}
	s.next = 0
	clear(s.acquired)
}

// SetImageCount sets the number of images that the next
// call to Recreate will create.
func (s *Swapchain) SetImageCount(n int) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.nimg = n
}

// SetFormat sets the pixel format that the next call to
// Recreate will use. New swapchains use BGRA8Unorm.
func (s *Swapchain) SetFormat(pf driver.PixelFmt) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.format = pf
}

// Script sets the order in which image indices are
// returned by Next. Once exhausted, round-robin order
// resumes.
func (s *Swapchain) Script(indices ...int) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.script = append(s.script[:0], indices...)
}

// InjectOutOfDate causes the next n calls to Next to
// fail with driver.ErrSwapchain.
// A call to Recreate does not clear the count.
func (s *Swapchain) InjectOutOfDate(n int) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.outOfDate = n
}

// Presented returns the indices of presented images,
// in order.
func (s *Swapchain) Presented() []int {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return append([]int(nil), s.presented...)
}

// Recreated returns how many times Recreate succeeded.
func (s *Swapchain) Recreated() int {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return s.recreated
}

// Destroyed returns whether Destroy was called.
func (s *Swapchain) Destroyed() bool { return s.destroyed }

func (s *Swapchain) Images() []driver.Image { return s.imgs }

// Next acquires the next image.
// sem is signaled immediately.
func (s *Swapchain) Next(sem driver.Semaphore) (int, error) {
	g := s.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("Next"); err != nil {
		return -1, err
	}
	if s.outOfDate > 0 {
		s.outOfDate--
		s.broken = true
	}
	if s.broken {
		return -1, &driver.OpError{Op: "Next", Code: -1, Err: driver.ErrSwapchain}
	}
	smp := sem.(*Semaphore)
	if smp.signaled || g.willSignal(smp) {
		g.violate("swapchain: acquire with semaphore %d already signaled", smp.id)
	}
	idx := -1
	if len(s.script) > 0 {
		idx = s.script[0]
		s.script = s.script[1:]
		if s.acquired[idx] {
			g.violate("swapchain: image %d acquired twice", idx)
		}
	} else {
		for range s.imgs {
			i := s.next
			s.next = (s.next + 1) % len(s.imgs)
			if !s.acquired[i] {
				idx = i
				break
			}
		}
		if idx < 0 {
			g.violate("swapchain: every image is acquired")
			return -1, &driver.OpError{Op: "Next", Code: -1, Err: driver.ErrTimeout}
		}
	}
	s.acquired[idx] = true
	smp.signaled = true
	return idx, nil
}

// Present presents the image identified by index.
func (s *Swapchain) Present(index int, wait driver.Semaphore) error {
	g := s.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("Present"); err != nil {
		return err
	}
	if !s.acquired[index] {
		g.violate("swapchain: image %d presented without being acquired", index)
	}
	smp := wait.(*Semaphore)
	switch {
	case smp.signaled:
		smp.signaled = false
	case g.willSignal(smp):
		smp.consumed++
	default:
		g.violate("swapchain: present waits on semaphore %d that nothing signals", smp.id)
	}
	delete(s.acquired, index)
	s.presented = append(s.presented, index)
	return nil
}

// Recreate recreates the swapchain.
// It records a violation if the GPU is not idle.
func (s *Swapchain) Recreate() error {
	g := s.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("Recreate"); err != nil {
		return err
	}
	if !g.idle() {
		g.violate("swapchain: recreated while %d batches are pending", len(g.pending))
	}
	if s.win.Width() <= 0 || s.win.Height() <= 0 {
		return &driver.OpError{Op: "Recreate", Code: -1, Err: driver.ErrWindow}
	}
	s.init()
	s.broken = false
	s.recreated++
	return nil
}

func (s *Swapchain) Format() driver.PixelFmt { return s.params.Format }

func (s *Swapchain) Params() driver.SurfaceParams { return s.params }

func (s *Swapchain) Destroy() { s.destroyed = true }

// Window implements wsi.Window.
// Its input is scripted with Push.
type Window struct {
	W, H   int
	title  string
	mapped bool
	closed bool
	queue  []wsi.Events
	last   wsi.Events
	polls  int
}

// NewWindow creates a new Window.
func NewWindow(width, height int) *Window {
	return &Window{W: width, H: height}
}

// Push appends an event snapshot to be returned by Poll.
// Width and Height of e, when set, resize the window.
func (w *Window) Push(e wsi.Events) { w.queue = append(w.queue, e) }

// Polls returns how many times Poll was called.
func (w *Window) Polls() int { return w.polls }

// Poll returns the next scripted snapshot, or an empty
// one carrying the current state.
func (w *Window) Poll() wsi.Events {
	w.polls++
	var e wsi.Events
	if len(w.queue) > 0 {
		e = w.queue[0]
		w.queue = w.queue[1:]
	} else {
		e.CursorX, e.CursorY = w.last.CursorX, w.last.CursorY
		e.Buttons = w.last.Buttons
	}
	if e.Width != 0 || e.Height != 0 {
		e.Resized = e.Resized || e.Width != w.W || e.Height != w.H
		w.W, w.H = e.Width, e.Height
	}
	e.Width, e.Height = w.W, w.H
	e.Closed = e.Closed || w.closed
	w.closed = e.Closed
	w.last = e
	return e
}

func (w *Window) Map() error   { w.mapped = true; return nil }
func (w *Window) Unmap() error { w.mapped = false; return nil }

func (w *Window) Resize(width, height int) error {
	w.W, w.H = width, height
	return nil
}

func (w *Window) SetTitle(title string) error {
	w.title = title
	return nil
}

func (w *Window) Close()        { w.closed = true }
func (w *Window) Width() int    { return w.W }
func (w *Window) Height() int   { return w.H }
func (w *Window) Title() string { return w.title }

// VulkanSurface always fails.
func (w *Window) VulkanSurface(any) (uintptr, error) {
	return 0, wsi.ErrMissing
}

// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"errors"

	"github.com/gviegas/rtframe/driver"
)

// Buffer implements driver.Buffer.
// Non-visible buffers are backed by memory too, so that
// copies into them can be inspected with Data.
type Buffer struct {
	g         *GPU
	data      []byte
	vis       bool
	usg       driver.Usage
	addr      uint64
	destroyed bool
}

// NewBuffer creates a new buffer.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("NewBuffer"); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, errors.New("drivertest: invalid buffer size")
	}
	b := &Buffer{
		g:    g,
		data: make([]byte, size),
		vis:  visible,
		usg:  usg,
		addr: g.nextAddr,
	}
	// Keep addresses 256-byte aligned and far apart.
	g.nextAddr += uint64(size+0xffff) &^ 0xffff
	g.bufs = append(g.bufs, b)
	return b, nil
}

func (b *Buffer) Visible() bool { return b.vis }

func (b *Buffer) Bytes() []byte {
	if !b.vis {
		return nil
	}
	return b.data
}

func (b *Buffer) Cap() int64 { return int64(len(b.data)) }

func (b *Buffer) Address() uint64 { return b.addr }

// Data returns the buffer's memory regardless of
// visibility.
func (b *Buffer) Data() []byte { return b.data }

// Usage returns the usage the buffer was created with.
func (b *Buffer) Usage() driver.Usage { return b.usg }

// Destroyed returns whether Destroy was called.
func (b *Buffer) Destroyed() bool { return b.destroyed }

func (b *Buffer) Destroy() { b.destroyed = true }

// Image implements driver.Image.
type Image struct {
	g         *GPU
	id        int
	pf        driver.PixelFmt
	size      driver.Dim3D
	usg       driver.Usage
	views     int
	destroyed bool
}

// NewImage creates a new image.
func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, usg driver.Usage) (driver.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("NewImage"); err != nil {
		return nil, err
	}
	if size.Width <= 0 || size.Height <= 0 || size.Width > g.lim.MaxImage2D || size.Height > g.lim.MaxImage2D {
		return nil, errors.New("drivertest: invalid image size")
	}
	size.Depth = 1
	return &Image{g: g, id: g.id(), pf: pf, size: size, usg: usg}, nil
}

func (im *Image) NewView() (driver.ImageView, error) {
	im.views++
	return &ImageView{Img: im}, nil
}

func (im *Image) Size() driver.Dim3D { return im.size }

func (im *Image) Format() driver.PixelFmt { return im.pf }

// Destroyed returns whether Destroy was called.
func (im *Image) Destroyed() bool { return im.destroyed }

func (im *Image) Destroy() {
	if im.views > 0 {
		im.g.mu.Lock()
		im.g.violate("image %d destroyed with %d live views", im.id, im.views)
		im.g.mu.Unlock()
	}
	im.destroyed = true
}

// ImageView implements driver.ImageView.
type ImageView struct {
	Img       *Image
	destroyed bool
}

func (v *ImageView) Destroy() {
	if !v.destroyed && v.Img != nil {
		v.Img.views--
	}
	v.destroyed = true
}

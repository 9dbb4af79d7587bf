// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"

	"github.com/gviegas/rtframe/wsi"
)

// ErrCannotPresent means that the driver and/or device do not
// support presentation.
var ErrCannotPresent = errors.New("driver: presentation not supported")

// ErrWindow represents an error related to a specific window.
// This error usually indicates that a window misconfiguration
// is preventing correct operation.
var ErrWindow = errors.New("driver: window-related error")

// ErrSwapchain represents an error related to a specific
// swapchain.
// This error indicates that changes to the window or
// compositor made the swapchain unusable (out of date or
// suboptimal). It is recovered by calling Recreate.
var ErrSwapchain = errors.New("driver: swapchain-related error")

// Presenter is the interface that a GPU may implement
// to enable presentation on a display.
type Presenter interface {
	// NewSwapchain creates a new swapchain.
	// Only one swapchain can be associated with a specific
	// wsi.Window at a time.
	NewSwapchain(win wsi.Window, imageCount int) (Swapchain, error)
}

// ColorSpace is the type of a presentation color space.
type ColorSpace int

// Color spaces.
const (
	SRGBNonlinear ColorSpace = iota
	ExtendedSRGBLinear
)

// SurfaceParams describes the negotiated presentation
// parameters of a swapchain.
type SurfaceParams struct {
	Format     PixelFmt
	ColorSpace ColorSpace
	MinImages  int
	// MaxImages is zero if there is no limit.
	MaxImages int
	Width     int
	Height    int
}

// Swapchain is the interface that defines a n-buffered
// swapchain for presentation.
// To present, one calls Next to obtain the index of an
// image to target, transitions the image from LUndefined
// to a valid layout, records commands as needed,
// transitions the image to LPresent, submits these
// commands and then calls Present.
type Swapchain interface {
	Destroyer

	// Images returns the list of images that comprises
	// the swapchain.
	// This value remains unchanged as long as the
	// swapchain's Destroy or Recreate methods are
	// not called.
	Images() []Image

	// Next acquires the next writable image and returns
	// its index. sem is signaled when the image is ready
	// to be written.
	// It returns ErrSwapchain if the swapchain is out of
	// date, in which case sem is not signaled.
	Next(sem Semaphore) (int, error)

	// Present presents the image identified by index
	// once wait is signaled.
	Present(index int, wait Semaphore) error

	// Recreate recreates the swapchain using the
	// window's current size.
	// The caller must ensure that the GPU is idle.
	Recreate() error

	// Format returns the images' PixelFmt.
	Format() PixelFmt

	// Params returns the negotiated surface parameters.
	Params() SurfaceParams
}

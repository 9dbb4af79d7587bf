// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package frame implements the frame scheduler.
//
// A Scheduler owns a ring of frame slots, each with its
// own command pool, fence, acquisition semaphore, output
// image and constant range. DrawFrame traces one frame
// into the slot's output image, copies it to an acquired
// swapchain image and presents it. A slot is only touched
// again after its fence is observed signaled.
package frame

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/log"
)

var logger = log.New("frame")

// Errors reported by the Scheduler.
var (
	// ErrOutOfDate means that acquisition failed again
	// after the swapchain was recreated.
	ErrOutOfDate = errors.New("frame: swapchain out of date after recreation")
	// ErrRingMismatch means that, with RingImageIndex,
	// the swapchain returned an image index that has no
	// frame slot.
	ErrRingMismatch = errors.New("frame: image index outside of the frame ring")
	// ErrDescCopies means that the pipeline has fewer
	// descriptor copies than frame slots.
	ErrDescCopies = errors.New("frame: not enough descriptor copies")
)

// IsTransient returns whether err is recovered by
// recreating the swapchain.
func IsTransient(err error) bool {
	return errors.Is(err, driver.ErrSwapchain)
}

// IsFatal returns whether err must terminate the frame
// loop.
func IsFatal(err error) bool {
	return err != nil && !IsTransient(err)
}

// State is the state of a frame slot.
type State int

// Slot states.
const (
	// The slot's fence is signaled.
	Idle State = iota
	Recording
	// The slot's fence is reset and its commands are
	// pending execution.
	Submitted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Submitted:
		return "submitted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// RingMode selects how a frame picks its slot.
type RingMode int

const (
	// RingCounter uses a frame counter modulo the
	// number of slots.
	RingCounter RingMode = iota
	// RingImageIndex uses the index of the acquired
	// swapchain image as the slot index.
	// The acquisition semaphore is taken from the slot
	// of the previous frame, and the slot of the acquired
	// image is waited on before it is reused.
	RingImageIndex
)

func (m RingMode) String() string {
	if m == RingImageIndex {
		return "image-index"
	}
	return "counter"
}

// ParseRingMode parses "counter" or "image-index".
func ParseRingMode(s string) (RingMode, error) {
	switch strings.ToLower(s) {
	case "", "counter":
		return RingCounter, nil
	case "image-index", "imageindex", "image":
		return RingImageIndex, nil
	}
	return RingCounter, fmt.Errorf("frame: unknown ring mode %q", s)
}

// Config configures a Scheduler.
type Config struct {
	Mode RingMode
	// FenceTimeout bounds the wait on a slot's fence.
	// Zero means no bound.
	FenceTimeout time.Duration
}

func (c *Config) timeout() time.Duration {
	if c.FenceTimeout <= 0 {
		return driver.Infinite
	}
	return c.FenceTimeout
}

// ConstantSize is the size in bytes of the per-frame
// constants.
const ConstantSize = 64

// SwizzleOffset is the byte offset in the per-frame
// constants of a float32 that is set to 1 when the ray
// generation shader must store texels with red and blue
// exchanged, and to 0 otherwise. It is written after
// Camera.Constants.
const SwizzleOffset = 28

// Camera provides the per-frame constants.
type Camera interface {
	// SetAspect sets the aspect ratio (width / height).
	SetAspect(aspect float32)
	// Constants writes ConstantSize bytes into p.
	Constants(p []byte)
}

// Descriptor bindings used by the ray tracing pipeline.
const (
	BindAccel = iota
	BindOutput
	BindConstants
)

// Descriptors returns the descriptors that a pipeline
// used with a Scheduler must declare.
func Descriptors() []driver.Descriptor {
	return []driver.Descriptor{
		{Type: driver.DAccel, Stages: driver.SRayGen | driver.SClosestHit, Nr: BindAccel},
		{Type: driver.DImage, Stages: driver.SRayGen, Nr: BindOutput},
		{Type: driver.DConstant, Stages: driver.SRayGen | driver.SMiss | driver.SClosestHit | driver.SIntersection, Nr: BindConstants},
	}
}

// OutputFormat is the pixel format of output images.
const OutputFormat = driver.RGBA8Unorm

// Swizzled returns whether output images must be written
// in BGRA order so that copying them to images of format
// pf preserves colors. Image copies do not convert
// between formats.
func Swizzled(pf driver.PixelFmt) bool {
	switch pf {
	case driver.BGRA8Unorm, driver.BGRA8SRGB:
		return true
	}
	return false
}

// Stats are the Scheduler's counters.
type Stats struct {
	Frames      uint64
	Recreations int
}

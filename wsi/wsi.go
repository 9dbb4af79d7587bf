// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package wsi provides window system integration (WSI)
// for GPU drivers.
// Input is not delivered through callbacks. Instead, each
// call to Poll returns a snapshot of the events that
// occurred since the previous call.
package wsi

import (
	"errors"
)

// Window is an onscreen window that a Presenter can
// create a swapchain for.
type Window interface {
	// Map shows the window.
	Map() error

	// Unmap hides the window.
	Unmap() error

	// Resize requests a new window size.
	// The framebuffer size is reported by Poll.
	Resize(width, height int) error

	SetTitle(title string) error

	// Close destroys the window.
	// Calling Close more than once has no effect.
	Close()

	// Width and Height return the framebuffer size in
	// pixels.
	Width() int
	Height() int

	Title() string

	// Poll processes pending window system events and
	// returns a snapshot of the window's input state.
	// It must be called from the main thread.
	Poll() Events

	// VulkanSurface creates a Vulkan surface for the
	// window. instance must be a typed VkInstance
	// pointer. The surface handle is returned as an
	// integer.
	VulkanSurface(instance any) (uintptr, error)
}

// ErrMissing means that no window system is available.
var ErrMissing = errors.New("wsi: no window system available")

// MaxWindows is the maximum number of open windows.
const MaxWindows = 16

// open holds the windows created by NewWindow and not
// closed yet, in creation order.
var open []Window

// NewWindow creates a new window whose framebuffer has
// the given size, if the window system honors it.
func NewWindow(width, height int, title string) (Window, error) {
	if len(open) == MaxWindows {
		return nil, errors.New("wsi: too many windows")
	}
	win, err := newWindow(width, height, title)
	if err != nil {
		return nil, err
	}
	open = append(open, win)
	return win, nil
}

// Windows returns the open windows in creation order.
func Windows() []Window { return append([]Window(nil), open...) }

// forget is called by Window.Close implementations.
func forget(win Window) {
	for i, w := range open {
		if w == win {
			open = append(open[:i], open[i+1:]...)
			return
		}
	}
}

// Key is the type of keyboard keys.
// Only the keys that the render loop reacts to are
// distinguished.
type Key int

// Keyboard keys.
const (
	KeyUnknown Key = iota
	KeyEsc
	KeySpace
	KeyR
	KeyW
	KeyA
	KeyS
	KeyD
	KeyQ
	KeyE
)

// Modifier is the type of modifier flags.
type Modifier int

// Modifier flags.
const (
	ModCapsLock Modifier = 1 << iota
	ModShift
	ModCtrl
	ModAlt
)

// Button is the type of pointer buttons.
type Button int

// Pointer buttons.
const (
	BtnUnknown Button = iota
	BtnLeft
	BtnRight
	BtnMiddle

	btnN
)

// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wsi

import (
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"

	"github.com/gviegas/rtframe/log"
)

var logger = log.New("wsi")

func init() {
	// GLFW must be called from the main thread.
	runtime.LockOSThread()
}

// glfwWindow implements Window using GLFW.
type glfwWindow struct {
	win   *glfw.Window
	title string
	q     eventQueue
}

var glfwInit bool

// initGLFW initializes GLFW on first use.
func initGLFW() error {
	if glfwInit {
		return nil
	}
	if err := glfw.Init(); err != nil {
		return errors.Wrap(ErrMissing, err.Error())
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.Wrap(ErrMissing, "Vulkan loader not found")
	}
	glfwInit = true
	return nil
}

// Terminate closes any window still open and releases
// window system resources.
func Terminate() {
	for _, w := range Windows() {
		w.Close()
	}
	if glfwInit {
		glfw.Terminate()
		glfwInit = false
	}
}

func newWindow(width, height int, title string) (Window, error) {
	if err := initGLFW(); err != nil {
		return nil, err
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "wsi: create window")
	}
	w := &glfwWindow{win: win, title: title}
	fw, fh := win.GetFramebufferSize()
	w.q.cur.Width = fw
	w.q.cur.Height = fh
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.q.resize(width, height)
	})
	win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		w.q.cursor(x, y)
	})
	win.SetMouseButtonCallback(func(_ *glfw.Window, btn glfw.MouseButton, act glfw.Action, mods glfw.ModifierKey) {
		w.q.button(buttonFrom(btn), act != glfw.Release, modFrom(mods))
	})
	win.SetScrollCallback(func(_ *glfw.Window, _, dy float64) {
		w.q.scroll(dy)
	})
	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, act glfw.Action, mods glfw.ModifierKey) {
		w.q.key(keyFrom(key), act == glfw.Press, modFrom(mods))
	})
	win.SetCloseCallback(func(_ *glfw.Window) {
		w.q.close()
	})
	logger.Infof("window '%s' created (%dx%d)", title, fw, fh)
	return w, nil
}

func (w *glfwWindow) Map() error   { w.win.Show(); return nil }
func (w *glfwWindow) Unmap() error { w.win.Hide(); return nil }

func (w *glfwWindow) Resize(width, height int) error {
	w.win.SetSize(width, height)
	return nil
}

func (w *glfwWindow) SetTitle(title string) error {
	w.win.SetTitle(title)
	w.title = title
	return nil
}

func (w *glfwWindow) Close() {
	if w.win == nil {
		return
	}
	w.win.Destroy()
	w.win = nil
	forget(w)
}

func (w *glfwWindow) Width() int {
	width, _ := w.win.GetFramebufferSize()
	return width
}

func (w *glfwWindow) Height() int {
	_, height := w.win.GetFramebufferSize()
	return height
}

func (w *glfwWindow) Title() string { return w.title }

func (w *glfwWindow) VulkanSurface(instance any) (uintptr, error) {
	return w.win.CreateWindowSurface(instance, unsafe.Pointer(nil))
}

func (w *glfwWindow) Poll() Events {
	glfw.PollEvents()
	return w.q.take()
}

func buttonFrom(btn glfw.MouseButton) Button {
	switch btn {
	case glfw.MouseButtonLeft:
		return BtnLeft
	case glfw.MouseButtonRight:
		return BtnRight
	case glfw.MouseButtonMiddle:
		return BtnMiddle
	}
	return BtnUnknown
}

func modFrom(mods glfw.ModifierKey) (m Modifier) {
	if mods&glfw.ModCapsLock != 0 {
		m |= ModCapsLock
	}
	if mods&glfw.ModShift != 0 {
		m |= ModShift
	}
	if mods&glfw.ModControl != 0 {
		m |= ModCtrl
	}
	if mods&glfw.ModAlt != 0 {
		m |= ModAlt
	}
	return
}

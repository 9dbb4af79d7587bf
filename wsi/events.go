// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wsi

// Events is a snapshot of the input state of a window.
// Level fields (cursor position, button state, size)
// reflect the state at the time of the snapshot. Edge
// fields (Resized, Scroll, Pressed, Closed) accumulate
// everything that happened since the previous snapshot.
type Events struct {
	// Framebuffer size. Resized is set if it changed.
	Width, Height int
	Resized       bool

	// Pointer position in framebuffer coordinates.
	CursorX, CursorY float64

	// Buttons currently held down, indexed by Button.
	Buttons [btnN]bool

	// Vertical scroll offset accumulated since the
	// previous snapshot.
	Scroll float64

	// Keys pressed since the previous snapshot, in
	// order.
	Pressed []Key

	// Modifiers currently held down.
	Mods Modifier

	// Closed is set once the user requests the window
	// to close. It remains set.
	Closed bool
}

// Held returns whether btn is held down.
func (e *Events) Held(btn Button) bool {
	if btn <= BtnUnknown || btn >= btnN {
		return false
	}
	return e.Buttons[btn]
}

// KeyPressed returns whether key was pressed since the
// previous snapshot.
func (e *Events) KeyPressed(key Key) bool {
	for _, k := range e.Pressed {
		if k == key {
			return true
		}
	}
	return false
}

// eventQueue accumulates window system notifications
// between snapshots.
// Notifications arrive on the polling thread while the
// window system is being polled, so no locking is needed.
type eventQueue struct {
	cur Events
}

func (q *eventQueue) resize(width, height int) {
	if width == q.cur.Width && height == q.cur.Height {
		return
	}
	q.cur.Width = width
	q.cur.Height = height
	q.cur.Resized = true
}

func (q *eventQueue) cursor(x, y float64) {
	q.cur.CursorX = x
	q.cur.CursorY = y
}

func (q *eventQueue) button(btn Button, pressed bool, mods Modifier) {
	if btn > BtnUnknown && btn < btnN {
		q.cur.Buttons[btn] = pressed
	}
	q.cur.Mods = mods
}

func (q *eventQueue) scroll(dy float64) { q.cur.Scroll += dy }

func (q *eventQueue) key(key Key, pressed bool, mods Modifier) {
	if pressed && key != KeyUnknown {
		q.cur.Pressed = append(q.cur.Pressed, key)
	}
	q.cur.Mods = mods
}

func (q *eventQueue) close() { q.cur.Closed = true }

// take returns the current snapshot and clears the edge
// fields.
func (q *eventQueue) take() Events {
	ev := q.cur
	q.cur.Resized = false
	q.cur.Scroll = 0
	q.cur.Pressed = nil
	return ev
}

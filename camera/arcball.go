// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package camera

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gviegas/rtframe/wsi"
)

// Arcball maps pointer motion to rotations.
// Positions are in normalized [0, 1] window coordinates,
// with Y pointing down.
type Arcball struct {
	Center mgl32.Vec2
	Radius float32
}

// DefaultArcball returns an Arcball centered in the
// window.
func DefaultArcball() Arcball {
	return Arcball{Center: mgl32.Vec2{0.5, 0.5}, Radius: 0.45}
}

// sphere projects a window position onto the unit
// sphere. Positions outside of the ball are projected on
// its edge.
func (a Arcball) sphere(p mgl32.Vec2) mgl32.Vec3 {
	x := (p[0] - a.Center[0]) / a.Radius
	y := (1 - p[1] - a.Center[1]) / a.Radius
	n := x*x + y*y
	if n > 1 {
		l := math32.Sqrt(n)
		return mgl32.Vec3{x / l, y / l, 0}
	}
	return mgl32.Vec3{x, y, math32.Sqrt(1 - n)}
}

// Rotate returns the rotation that drags from to to.
// The angle is twice the angle between their projections
// on the sphere.
func (a Arcball) Rotate(from, to mgl32.Vec2) mgl32.Mat4 {
	if from.ApproxEqual(to) {
		return mgl32.Ident4()
	}
	q := mgl32.QuatBetweenVectors(a.sphere(from), a.sphere(to)).Normalize()
	return q.Mul(q).Mat4()
}

// Orbit drives a Camera from polled window events.
// Dragging with the left button rotates the camera about
// its look-at point and scrolling zooms.
type Orbit struct {
	Cam  *Camera
	Ball Arcball
	// Fraction of the eye distance that one scroll
	// unit moves.
	ZoomStep float32

	dragging bool
	last     mgl32.Vec2
}

// NewOrbit creates a new Orbit that drives cam.
func NewOrbit(cam *Camera) *Orbit {
	return &Orbit{Cam: cam, Ball: DefaultArcball(), ZoomStep: 0.1}
}

// Update applies e to the camera.
// It returns whether the camera changed.
func (o *Orbit) Update(e *wsi.Events) bool {
	changed := false
	if e.Scroll != 0 {
		o.Cam.Translate(float32(e.Scroll) * o.ZoomStep)
		changed = true
	}
	if e.Width <= 0 || e.Height <= 0 {
		o.dragging = false
		return changed
	}
	p := mgl32.Vec2{float32(e.CursorX) / float32(e.Width), float32(e.CursorY) / float32(e.Height)}
	if !e.Held(wsi.BtnLeft) {
		o.dragging = false
		return changed
	}
	if o.dragging && !p.ApproxEqual(o.last) {
		o.Cam.Rotate(o.Ball.Rotate(o.last, p))
		changed = true
	}
	o.dragging = true
	o.last = p
	return changed
}

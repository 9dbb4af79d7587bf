// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package camera

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/gviegas/rtframe/wsi"
)

const eps = 1e-4

func vecEq(t *testing.T, want, got mgl32.Vec3, msg ...any) {
	t.Helper()
	assert.InDelta(t, 0, want.Sub(got).Len(), eps, "want %v, got %v %v", want, got, msg)
}

func newCam() *Camera {
	return New(90, 2, mgl32.Vec3{0, 0, -3}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
}

func TestBasis(t *testing.T) {
	c := newCam()
	vecEq(t, mgl32.Vec3{0, 0, 3}, c.W())
	// tan(45°) = 1, so |V| = |W| and |U| = |W| * aspect.
	assert.InDelta(t, 3, c.V().Len(), eps)
	assert.InDelta(t, 6, c.U().Len(), eps)
	vecEq(t, mgl32.Vec3{0, 3, 0}, c.V())
	assert.InDelta(t, 0, c.U().Dot(c.V()), eps)
	assert.InDelta(t, 0, c.U().Dot(c.W()), eps)

	c.SetAspect(1)
	assert.InDelta(t, 3, c.U().Len(), eps)
	assert.Equal(t, float32(1), c.Aspect())
	c.SetAspect(0)
	assert.Equal(t, float32(1), c.Aspect())
}

func TestTranslate(t *testing.T) {
	c := newCam()
	c.Translate(0.5)
	vecEq(t, mgl32.Vec3{0, 0, -1.5}, c.Eye())
	vecEq(t, mgl32.Vec3{}, c.LookAt())
	c.Translate(-1)
	vecEq(t, mgl32.Vec3{0, 0, -3}, c.Eye())
	c.Translate(1)
	vecEq(t, mgl32.Vec3{0, 0, -3}, c.Eye())
}

func TestFit(t *testing.T) {
	c := newCam()
	c.SetAspect(1)
	lo, hi := mgl32.Vec3{1, -1, -1}, mgl32.Vec3{3, 1, 1}
	c.Fit(lo, hi)
	// The bounding sphere has radius √3 and the half
	// field of view is 45°.
	d := float32(math.Sqrt(3) / math.Sin(math.Pi/4))
	vecEq(t, mgl32.Vec3{2, 0, 0}, c.LookAt())
	vecEq(t, mgl32.Vec3{2, 0, -d}, c.Eye())
	assert.InDelta(t, d, c.W().Len(), eps)

	// Narrow views are limited by the horizontal field
	// of view.
	c.SetAspect(0.5)
	c.Fit(lo, hi)
	d = float32(math.Sqrt(3) / math.Sin(math.Atan(0.5)))
	vecEq(t, mgl32.Vec3{2, 0, -d}, c.Eye())

	c = newCam()
	c.Fit(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{1, 1, 1})
	vecEq(t, mgl32.Vec3{1, 1, 1}, c.LookAt())
	vecEq(t, mgl32.Vec3{1, 1, -2}, c.Eye())
}

func TestRotate(t *testing.T) {
	c := newCam()
	// Half a turn about the camera's Y axis puts the eye
	// behind the look-at point.
	c.Rotate(mgl32.HomogRotate3DY(math.Pi))
	vecEq(t, mgl32.Vec3{0, 0, 3}, c.Eye())
	vecEq(t, mgl32.Vec3{}, c.LookAt())
	vecEq(t, mgl32.Vec3{0, 1, 0}, c.Up())
	assert.InDelta(t, 3, c.W().Len(), eps)

	c = newCam()
	c.Rotate(mgl32.Ident4())
	vecEq(t, mgl32.Vec3{0, 0, -3}, c.Eye())
}

func TestConstants(t *testing.T) {
	c := newCam()
	var p [ConstSize]byte
	c.Constants(p[:])
	f := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	assert.Equal(t, []float32{0, 0, -3, 1}, []float32{f(0), f(1), f(2), f(3)})
	assert.Zero(t, f(7))
	assert.Equal(t, c.V()[1], f(9))
	assert.Equal(t, c.W()[2], f(14))
	assert.Panics(t, func() { c.Constants(p[:ConstSize-1]) })
}

func TestArcball(t *testing.T) {
	a := DefaultArcball()
	// The center projects on the pole.
	vecEq(t, mgl32.Vec3{0, 0, 1}, a.sphere(mgl32.Vec2{0.5, 0.5}))
	// Far positions land on the edge.
	s := a.sphere(mgl32.Vec2{10, 0.5})
	vecEq(t, mgl32.Vec3{1, 0, 0}, s)

	p := mgl32.Vec2{0.3, 0.6}
	assert.True(t, a.Rotate(p, p).ApproxEqualThreshold(mgl32.Ident4(), eps))

	// Dragging right rotates about +Y.
	r := a.Rotate(mgl32.Vec2{0.5, 0.5}, mgl32.Vec2{0.6, 0.5})
	v := mgl32.TransformNormal(mgl32.Vec3{0, 0, 1}, r)
	assert.Greater(t, v[0], float32(0))
	assert.InDelta(t, 0, v[1], eps)
}

func TestOrbit(t *testing.T) {
	c := newCam()
	o := NewOrbit(c)
	e := wsi.Events{Width: 100, Height: 100, CursorX: 50, CursorY: 50}
	assert.False(t, o.Update(&e))

	e.Buttons[wsi.BtnLeft] = true
	assert.False(t, o.Update(&e))
	e.CursorX = 60
	assert.True(t, o.Update(&e))
	assert.NotEqual(t, float32(-3), c.Eye()[2])
	assert.InDelta(t, 3, c.Eye().Len(), eps)

	e.Buttons[wsi.BtnLeft] = false
	e.CursorX = 90
	eye := c.Eye()
	assert.False(t, o.Update(&e))
	assert.Equal(t, eye, c.Eye())

	e.Scroll = 1
	assert.True(t, o.Update(&e))
	assert.InDelta(t, 2.7, c.Eye().Len(), eps)
}

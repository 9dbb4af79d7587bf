// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package camera implements a pinhole camera described by
// an eye position and a U/V/W basis, as consumed by the
// ray generation shader.
package camera

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ConstSize is the size in bytes of the constants written
// by Camera.Constants.
const ConstSize = 64

// Camera is a pinhole camera.
// W points from the eye to the look-at point. U and V span
// the image plane, scaled so that eye + W ± U ± V are the
// corners of the view.
type Camera struct {
	vfov   float32
	aspect float32
	eye    mgl32.Vec3
	lookAt mgl32.Vec3
	up     mgl32.Vec3
	u      mgl32.Vec3
	v      mgl32.Vec3
	w      mgl32.Vec3
}

// New creates a new Camera.
// vfov is the vertical field of view in degrees.
func New(vfov, aspect float32, eye, lookAt, up mgl32.Vec3) *Camera {
	c := &Camera{
		vfov:   mgl32.DegToRad(vfov),
		aspect: aspect,
		eye:    eye,
		lookAt: lookAt,
		up:     up,
	}
	c.basis()
	return c
}

// basis computes U, V and W.
func (c *Camera) basis() {
	c.w = c.lookAt.Sub(c.eye)
	c.u = c.w.Cross(c.up).Normalize()
	c.v = c.u.Cross(c.w).Normalize()
	n := c.w.Len() * math32.Tan(c.vfov*0.5)
	c.v = c.v.Mul(n)
	c.u = c.u.Mul(n * c.aspect)
}

// SetAspect sets the aspect ratio (width / height).
func (c *Camera) SetAspect(aspect float32) {
	if aspect <= 0 || math32.IsNaN(aspect) || math32.IsInf(aspect, 0) {
		return
	}
	c.aspect = aspect
	c.basis()
}

// Aspect returns the aspect ratio.
func (c *Camera) Aspect() float32 { return c.aspect }

// Fit moves the camera to look at the center of the box
// [lo, hi] along the current viewing direction, from
// the distance at which the box's bounding sphere fits in
// the view. A box with no extent keeps the distance.
func (c *Camera) Fit(lo, hi mgl32.Vec3) {
	center := lo.Add(hi).Mul(0.5)
	dist := c.w.Len()
	if r := hi.Sub(lo).Len() * 0.5; r > 0 {
		half := c.vfov * 0.5
		if c.aspect < 1 {
			half = math32.Atan(math32.Tan(half) * c.aspect)
		}
		dist = r / math32.Sin(half)
	}
	c.eye = center.Sub(c.w.Normalize().Mul(dist))
	c.lookAt = center
	c.basis()
}

// Translate moves the eye towards the look-at point by
// scale times their distance. Negative values move it
// away.
// The eye never reaches the look-at point.
func (c *Camera) Translate(scale float32) {
	if scale >= 1 {
		return
	}
	c.eye = c.eye.Add(c.lookAt.Sub(c.eye).Mul(scale))
	c.basis()
}

// Rotate rotates the eye, look-at point and up vector
// about the look-at point.
// rot is expressed in the camera's frame (X right, Y up,
// Z towards the eye).
func (c *Camera) Rotate(rot mgl32.Mat4) {
	nu := c.u.Normalize()
	nv := c.v.Normalize()
	nw := c.w.Mul(-1).Normalize()
	frame := mgl32.Mat4FromCols(nu.Vec4(0), nv.Vec4(0), nw.Vec4(0), c.lookAt.Vec4(1))
	xform := frame.Mul4(rot).Mul4(frame.Inv())
	c.eye = mgl32.TransformCoordinate(c.eye, xform)
	c.lookAt = mgl32.TransformCoordinate(c.lookAt, xform)
	c.up = mgl32.TransformNormal(c.up, xform)
	c.basis()
}

// Eye returns the eye position.
func (c *Camera) Eye() mgl32.Vec3 { return c.eye }

// LookAt returns the look-at point.
func (c *Camera) LookAt() mgl32.Vec3 { return c.lookAt }

// Up returns the up vector.
func (c *Camera) Up() mgl32.Vec3 { return c.up }

// U returns the horizontal basis vector.
func (c *Camera) U() mgl32.Vec3 { return c.u }

// V returns the vertical basis vector.
func (c *Camera) V() mgl32.Vec3 { return c.v }

// W returns the view direction basis vector.
func (c *Camera) W() mgl32.Vec3 { return c.w }

// Constants writes eye, U, V and W into p, each as four
// little-endian float32 values with the last one being
// one for the eye and zero otherwise.
// len(p) must be at least ConstSize.
func (c *Camera) Constants(p []byte) {
	_ = p[ConstSize-1]
	for i, x := range [4]mgl32.Vec4{c.eye.Vec4(1), c.u.Vec4(0), c.v.Vec4(0), c.w.Vec4(0)} {
		for j := range x {
			binary.LittleEndian.PutUint32(p[i*16+j*4:], math.Float32bits(x[j]))
		}
	}
}

// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package scene describes the sphere scene that is
// traced.
//
// Every sphere is an instance of a single bottom level
// structure holding the unit box, transformed by the
// sphere's center and radius. Instance i selects hit
// group entry i of the shader binding table, whose inline
// data holds the sphere's color.
package scene

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gviegas/rtframe/accel"
	"github.com/gviegas/rtframe/sbt"
)

// Caller errors.
var (
	ErrEmpty  = errors.New("scene: no spheres")
	ErrRadius = errors.New("scene: radius must be greater than zero")
)

// HitInlineSize is the size in bytes of the inline data
// of hit group entries.
const HitInlineSize = 16

// Sphere is a sphere of the scene.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
	Color  mgl32.Vec3
}

// Scene defines a scene of spheres.
type Scene struct {
	Spheres []Sphere
}

// New creates a scene with the given spheres.
func New(spheres ...Sphere) *Scene {
	return &Scene{Spheres: append([]Sphere(nil), spheres...)}
}

// Default returns a scene with a single white unit
// sphere at the origin.
func Default() *Scene {
	return New(Sphere{Radius: 1, Color: mgl32.Vec3{1, 1, 1}})
}

// Validate checks that the scene can be built.
func (s *Scene) Validate() error {
	if len(s.Spheres) == 0 {
		return ErrEmpty
	}
	if len(s.Spheres) > accel.MaxField+1 {
		return fmt.Errorf("%w: %d spheres", accel.ErrFieldRange, len(s.Spheres))
	}
	for i, sp := range s.Spheres {
		if !(sp.Radius > 0) || math32.IsInf(sp.Radius, 0) {
			return fmt.Errorf("%w: sphere %d", ErrRadius, i)
		}
	}
	return nil
}

// UnitBox is the box bounding the unit sphere.
func UnitBox() accel.AABB {
	return accel.AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}
}

// Primitives returns the primitives of the bottom level
// structure shared by every sphere.
func (s *Scene) Primitives() []accel.AABB {
	return []accel.AABB{UnitBox()}
}

// Instances returns one instance per sphere referring to
// the bottom level structure identified by blas.
func (s *Scene) Instances(blas uint64) []accel.Instance {
	insts := make([]accel.Instance, len(s.Spheres))
	for i, sp := range s.Spheres {
		m := mgl32.Translate3D(sp.Center[0], sp.Center[1], sp.Center[2]).
			Mul4(mgl32.Scale3D(sp.Radius, sp.Radius, sp.Radius))
		insts[i] = accel.Instance{
			Transform:   accel.Transform(m),
			CustomIndex: uint32(i),
			Mask:        0xff,
			SBTOffset:   uint32(i),
			BLAS:        blas,
		}
	}
	return insts
}

// Groups identifies the shader groups of a pipeline.
type Groups struct {
	RayGen int
	Miss   int
	Hit    int
}

// Table returns a shader binding table with one hit group
// entry per sphere.
func (s *Scene) Table(g Groups) *sbt.Table {
	var t sbt.Table
	t.Require(sbt.Miss, sbt.HitGroup)
	t.AddRayGen(g.RayGen, nil)
	t.AddMiss(g.Miss, nil)
	var p [HitInlineSize]byte
	for _, sp := range s.Spheres {
		for i := range 3 {
			binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(sp.Color[i]))
		}
		binary.LittleEndian.PutUint32(p[12:], math.Float32bits(sp.Radius))
		t.AddHitGroup(g.Hit, p[:])
	}
	return &t
}

// Bounds returns the box bounding every sphere.
func (s *Scene) Bounds() accel.AABB {
	if len(s.Spheres) == 0 {
		return accel.AABB{}
	}
	inf := math32.Inf(1)
	b := accel.AABB{Min: mgl32.Vec3{inf, inf, inf}, Max: mgl32.Vec3{-inf, -inf, -inf}}
	for _, sp := range s.Spheres {
		for i := range 3 {
			b.Min[i] = math32.Min(b.Min[i], sp.Center[i]-sp.Radius)
			b.Max[i] = math32.Max(b.Max[i], sp.Center[i]+sp.Radius)
		}
	}
	return b
}

// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scene

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gviegas/rtframe/sbt"
)

func TestDefault(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("Default().Validate:\nhave %v\nwant nil", err)
	}
	if n := len(s.Spheres); n != 1 {
		t.Fatalf("Default().Spheres: len\nhave %d\nwant 1", n)
	}
	if b := s.Bounds(); b != UnitBox() {
		t.Fatalf("Default().Bounds:\nhave %v\nwant %v", b, UnitBox())
	}
}

func TestValidate(t *testing.T) {
	var s Scene
	if err := s.Validate(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Scene.Validate:\nhave %v\nwant %v", err, ErrEmpty)
	}
	for _, r := range [...]float32{0, -1, float32(math.NaN()), float32(math.Inf(1))} {
		s := New(Sphere{Radius: 1}, Sphere{Radius: r})
		if err := s.Validate(); !errors.Is(err, ErrRadius) {
			t.Fatalf("Scene.Validate: radius %v\nhave %v\nwant %v", r, err, ErrRadius)
		}
	}
}

func TestInstances(t *testing.T) {
	s := New(
		Sphere{Center: mgl32.Vec3{1, 2, 3}, Radius: 2},
		Sphere{Center: mgl32.Vec3{-4, 0, 0}, Radius: 0.5},
	)
	insts := s.Instances(0xabc)
	if len(insts) != 2 {
		t.Fatalf("Scene.Instances: len\nhave %d\nwant 2", len(insts))
	}
	want := [12]float32{
		2, 0, 0, 1,
		0, 2, 0, 2,
		0, 0, 2, 3,
	}
	if insts[0].Transform != want {
		t.Fatalf("Scene.Instances: Transform\nhave %v\nwant %v", insts[0].Transform, want)
	}
	for i, in := range insts {
		if in.BLAS != 0xabc || in.CustomIndex != uint32(i) || in.SBTOffset != uint32(i) || in.Mask != 0xff {
			t.Fatalf("Scene.Instances: [%d]\nhave %+v", i, in)
		}
	}
	if p := s.Primitives(); len(p) != 1 || p[0] != UnitBox() {
		t.Fatalf("Scene.Primitives:\nhave %v", p)
	}
	b := s.Bounds()
	if b.Min != (mgl32.Vec3{-4.5, -0.5, -0.5}) || b.Max != (mgl32.Vec3{3, 4, 5}) {
		t.Fatalf("Scene.Bounds:\nhave %v", b)
	}
	if !b.Valid() {
		t.Fatal("Scene.Bounds: invalid AABB")
	}
}

func TestTable(t *testing.T) {
	s := New(
		Sphere{Radius: 1, Color: mgl32.Vec3{1, 0.5, 0}},
		Sphere{Radius: 3, Color: mgl32.Vec3{0, 0, 1}},
	)
	tab := s.Table(Groups{RayGen: 0, Miss: 1, Hit: 2})
	if err := tab.Validate(3); err != nil {
		t.Fatalf("Scene.Table: Validate:\nhave %v\nwant nil", err)
	}
	if n := tab.Len(sbt.HitGroup); n != 2 {
		t.Fatalf("Scene.Table: hit groups\nhave %d\nwant 2", n)
	}
	e := tab.Entries(sbt.HitGroup)[1]
	if e.Group != 2 || len(e.Inline) != HitInlineSize {
		t.Fatalf("Scene.Table: entry\nhave %+v", e)
	}
	f := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(e.Inline[i*4:])) }
	if f(2) != 1 || f(3) != 3 {
		t.Fatalf("Scene.Table: inline\nhave %v %v\nwant 1 3", f(2), f(3))
	}
	l, err := tab.ComputeLayout(32)
	if err != nil {
		t.Fatal(err)
	}
	if r := l.Region(sbt.HitGroup); r.Stride != 48 || r.Count != 2 {
		t.Fatalf("Scene.Table: hit group region\nhave %+v", r)
	}

	// Miss and hit group are required.
	if err := new(Scene).Table(Groups{}).Validate(1); !errors.Is(err, sbt.ErrEmptyCategory) {
		t.Fatalf("Scene.Table: empty scene\nhave %v\nwant %v", err, sbt.ErrEmptyCategory)
	}
}

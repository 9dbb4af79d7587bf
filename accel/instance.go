// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package accel

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gviegas/rtframe/driver"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max mgl32.Vec3
}

// Valid returns whether b.Min is not greater than b.Max
// in any axis.
func (b AABB) Valid() bool {
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2]
}

// encode writes b into p.
// len(p) must be at least driver.AABBSize.
func (b AABB) encode(p []byte) {
	for i := range 3 {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(b.Min[i]))
		binary.LittleEndian.PutUint32(p[12+4*i:], math.Float32bits(b.Max[i]))
	}
}

// decodeAABB reads an AABB from p.
func decodeAABB(p []byte) (b AABB) {
	for i := range 3 {
		b.Min[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[4*i:]))
		b.Max[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[12+4*i:]))
	}
	return
}

// InstanceFlag is the type of instance flags.
type InstanceFlag uint8

// Instance flags.
const (
	FlagCullDisable InstanceFlag = 1 << iota
	FlagFrontCCW
	FlagForceOpaque
	FlagForceNoOpaque
)

// MaxField is the largest value of the 24-bit instance
// fields.
const MaxField = 1<<24 - 1

// ErrFieldRange means that a 24-bit instance field holds
// a larger value.
var ErrFieldRange = errors.New("accel: instance field out of range")

// Instance is an instance of a bottom level structure.
type Instance struct {
	// Row-major 3x4 transform.
	Transform   [12]float32
	CustomIndex uint32
	Mask        uint8
	SBTOffset   uint32
	Flags       InstanceFlag
	// Handle of the instanced bottom level structure.
	BLAS uint64
}

// Identity returns the identity transform.
func Identity() [12]float32 {
	return [12]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
}

// Transform returns the first three rows of m in
// row-major order.
func Transform(m mgl32.Mat4) (t [12]float32) {
	for r := range 3 {
		for c := range 4 {
			t[r*4+c] = m.At(r, c)
		}
	}
	return
}

// Encode writes the instance record into p.
// len(p) must be at least driver.InstanceSize.
//
// The record is the transform (12 floats), then the
// custom index in the low 24 bits and the mask in the
// high 8 bits of a 32-bit word, then the SBT offset and
// flags packed the same way, then the structure handle.
// Every field is little-endian.
func (in *Instance) Encode(p []byte) error {
	if in.CustomIndex > MaxField || in.SBTOffset > MaxField {
		return ErrFieldRange
	}
	_ = p[driver.InstanceSize-1]
	for i, x := range in.Transform {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(x))
	}
	binary.LittleEndian.PutUint32(p[48:], in.CustomIndex|uint32(in.Mask)<<24)
	binary.LittleEndian.PutUint32(p[52:], in.SBTOffset|uint32(in.Flags)<<24)
	binary.LittleEndian.PutUint64(p[56:], in.BLAS)
	return nil
}

// DecodeInstance reads an instance record from p.
func DecodeInstance(p []byte) (in Instance) {
	_ = p[driver.InstanceSize-1]
	for i := range in.Transform {
		in.Transform[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[4*i:]))
	}
	x := binary.LittleEndian.Uint32(p[48:])
	in.CustomIndex, in.Mask = x&MaxField, uint8(x>>24)
	x = binary.LittleEndian.Uint32(p[52:])
	in.SBTOffset, in.Flags = x&MaxField, InstanceFlag(x>>24)
	in.BLAS = binary.LittleEndian.Uint64(p[56:])
	return
}

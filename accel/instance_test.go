// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package accel

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/rtframe/driver"
)

func TestInstanceEncode(t *testing.T) {
	in := Instance{
		Transform:   Identity(),
		CustomIndex: 0xabcdef,
		Mask:        0xff,
		SBTOffset:   0x000102,
		Flags:       FlagCullDisable | FlagForceOpaque,
		BLAS:        0x1122334455667788,
	}
	in.Transform[3] = 2.5
	var p [driver.InstanceSize]byte
	require.NoError(t, in.Encode(p[:]))

	le := binary.LittleEndian
	assert.Equal(t, math.Float32bits(1), le.Uint32(p[0:]))
	assert.Equal(t, math.Float32bits(2.5), le.Uint32(p[12:]))
	assert.Equal(t, math.Float32bits(1), le.Uint32(p[20:]))
	assert.Equal(t, math.Float32bits(1), le.Uint32(p[40:]))
	assert.Equal(t, []byte{0xef, 0xcd, 0xab, 0xff}, p[48:52])
	assert.Equal(t, []byte{0x02, 0x01, 0x00, 0x05}, p[52:56])
	assert.Equal(t, uint64(0x1122334455667788), le.Uint64(p[56:]))

	assert.Equal(t, in, DecodeInstance(p[:]))

	in.CustomIndex = MaxField + 1
	assert.ErrorIs(t, in.Encode(p[:]), ErrFieldRange)
	in.CustomIndex = 0
	in.SBTOffset = MaxField + 1
	assert.ErrorIs(t, in.Encode(p[:]), ErrFieldRange)
}

func TestTransform(t *testing.T) {
	assert.Equal(t, Identity(), Transform(mgl32.Ident4()))
	m := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.Scale3D(4, 5, 6))
	tf := Transform(m)
	assert.Equal(t, [12]float32{
		4, 0, 0, 1,
		0, 5, 0, 2,
		0, 0, 6, 3,
	}, tf)
}

func TestAABB(t *testing.T) {
	b := AABB{Min: mgl32.Vec3{-1, -2, -3}, Max: mgl32.Vec3{1, 2, 3}}
	assert.True(t, b.Valid())
	var p [driver.AABBSize]byte
	b.encode(p[:])
	assert.Equal(t, math.Float32bits(-1), binary.LittleEndian.Uint32(p[0:]))
	assert.Equal(t, math.Float32bits(3), binary.LittleEndian.Uint32(p[20:]))
	assert.Equal(t, b, decodeAABB(p[:]))

	b.Min[1] = 2.5
	assert.False(t, b.Valid())
}

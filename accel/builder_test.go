// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package accel

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/rtframe/ctxt"
	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/driver/drivertest"
)

func newBuilder(t *testing.T) (*Builder, *drivertest.GPU) {
	t.Helper()
	gpu := drivertest.New(drivertest.Config{Seed: 3})
	c, err := ctxt.NewFromGPU(gpu)
	require.NoError(t, err)
	return NewBuilder(c), gpu
}

func unitBoxes(n int) []AABB {
	prims := make([]AABB, n)
	for i := range prims {
		x := float32(i) * 3
		prims[i] = AABB{Min: mgl32.Vec3{x - 1, -1, -1}, Max: mgl32.Vec3{x + 1, 1, 1}}
	}
	return prims
}

func TestBuildBottomLevel(t *testing.T) {
	b, gpu := newBuilder(t)
	prims := unitBoxes(3)
	s, err := b.BuildBottomLevel(prims)
	require.NoError(t, err)
	assert.Equal(t, driver.BottomLevel, s.Type())
	assert.Equal(t, 3, s.Count())
	assert.NotZero(t, s.Handle())

	as := s.AccelStruct().(*drivertest.AccelStruct)
	in, n := as.Built()
	require.Equal(t, 3, n)
	require.Len(t, in, 3*driver.AABBSize)
	for i := range prims {
		assert.Equal(t, prims[i], decodeAABB(in[i*driver.AABBSize:]))
	}
	assert.Equal(t, 1, as.Builds())
	sz, _ := gpu.AccelSizes(&driver.AccelGeometry{Type: driver.BottomLevel, Count: 3})
	assert.Equal(t, sz.Storage, as.Size())

	// The build is complete when BuildBottomLevel
	// returns, and temporary buffers are released.
	assert.Zero(t, gpu.Pending())
	assert.Empty(t, gpu.Violations())
	lk, ok := b.Lookup(s.Handle())
	assert.True(t, ok)
	assert.Same(t, s, lk)

	s.Destroy()
	assert.True(t, as.Destroyed())
	_, ok = b.Lookup(as.Handle())
	assert.False(t, ok)
}

func TestBuildScratchAlign(t *testing.T) {
	b, gpu := newBuilder(t)
	_, err := b.BuildBottomLevel(unitBoxes(1))
	require.NoError(t, err)
	var found bool
	for _, bat := range gpu.Batches() {
		for _, cmds := range bat.Cmds {
			for _, c := range cmds {
				if c.Op != drivertest.OpBuildAccel {
					continue
				}
				found = true
				addr := int64(c.Build.Scratch.Address()) + c.Build.ScratchOff
				assert.Zero(t, addr%gpu.RTLimits().ScratchAlign)
				assert.True(t, c.Build.Scratch.(*drivertest.Buffer).Destroyed())
			}
		}
	}
	assert.True(t, found)
}

func TestBuildBottomLevelErrors(t *testing.T) {
	b, gpu := newBuilder(t)
	gpu.ResetCalls()
	_, err := b.BuildBottomLevel(nil)
	assert.ErrorIs(t, err, ErrNoPrimitives)
	bad := unitBoxes(2)
	bad[1].Min[0] = 100
	_, err = b.BuildBottomLevel(bad)
	assert.ErrorIs(t, err, ErrInvalidAABB)
	// Caller errors issue no device calls.
	assert.Empty(t, gpu.Calls())

	for _, op := range [...]string{"NewBuffer", "AccelSizes", "NewAccelStruct", "Submit", "FenceWait"} {
		gpu.FailNext(op, driver.ErrNoDeviceMemory)
		_, err = b.BuildBottomLevel(unitBoxes(1))
		assert.ErrorIs(t, err, driver.ErrNoDeviceMemory, op)
		assert.ErrorContains(t, err, "accel: bottom level", op)
		var oe *driver.OpError
		if assert.ErrorAs(t, err, &oe) {
			assert.Equal(t, op, oe.Op)
		}
	}
	assert.Empty(t, b.live)
}

func TestBuildTopLevel(t *testing.T) {
	b, gpu := newBuilder(t)
	blas, err := b.BuildBottomLevel(unitBoxes(2))
	require.NoError(t, err)
	insts := []Instance{
		{Transform: Identity(), CustomIndex: 1, Mask: 0xff, BLAS: blas.Handle()},
		{Transform: Transform(mgl32.Translate3D(0, 5, 0)), CustomIndex: 2, Mask: 0x0f, SBTOffset: 1, BLAS: blas.Handle()},
	}
	tlas, err := b.BuildTopLevel(insts)
	require.NoError(t, err)
	assert.Equal(t, driver.TopLevel, tlas.Type())
	assert.Equal(t, []uint64{blas.Handle(), blas.Handle()}, tlas.Refs())

	in, n := tlas.AccelStruct().(*drivertest.AccelStruct).Built()
	require.Equal(t, 2, n)
	for i := range insts {
		got := DecodeInstance(in[i*driver.InstanceSize:])
		assert.Equal(t, insts[i], got)
		assert.Equal(t, blas.Handle(), got.BLAS)
	}
	assert.Empty(t, gpu.Violations())
	// Top level structures are not instanceable.
	_, ok := b.Lookup(tlas.Handle())
	assert.False(t, ok)
}

func TestBuildTopLevelErrors(t *testing.T) {
	b, gpu := newBuilder(t)
	blas, err := b.BuildBottomLevel(unitBoxes(1))
	require.NoError(t, err)
	gpu.ResetCalls()

	_, err = b.BuildTopLevel(nil)
	assert.ErrorIs(t, err, ErrNoInstances)
	_, err = b.BuildTopLevel([]Instance{{Transform: Identity(), BLAS: 0xdead}})
	assert.ErrorIs(t, err, ErrBadReference)
	_, err = b.BuildTopLevel([]Instance{{Transform: Identity(), BLAS: blas.Handle(), CustomIndex: 1 << 24}})
	assert.ErrorIs(t, err, ErrFieldRange)
	assert.Empty(t, gpu.Calls())

	h := blas.Handle()
	blas.Destroy()
	_, err = b.BuildTopLevel([]Instance{{Transform: Identity(), BLAS: h}})
	assert.ErrorIs(t, err, ErrBadReference)
}

func TestBuildFillError(t *testing.T) {
	b, gpu := newBuilder(t)
	errFill := errors.New("encode failed")
	gpu.ResetCalls()
	s, err := b.build(driver.TopLevel, 2, driver.InstanceSize, func([]byte) error { return errFill })
	assert.Nil(t, s)
	assert.ErrorIs(t, err, errFill)
	assert.ErrorContains(t, err, "input")
	assert.Zero(t, gpu.CallCount("AccelSizes"))
	assert.Zero(t, gpu.CallCount("NewAccelStruct"))
	bufs := gpu.Buffers()
	require.Len(t, bufs, 1)
	assert.True(t, bufs[0].Destroyed())
}

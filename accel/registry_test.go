// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package accel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/rtframe/driver/drivertest"
)

func TestRegistry(t *testing.T) {
	b, gpu := newBuilder(t)
	r := NewRegistry(b)

	_, err := r.Handle("spheres")
	assert.ErrorIs(t, err, ErrUnknownName)
	assert.Zero(t, r.Version("spheres"))

	s1, err := r.BuildBottomLevel("spheres", unitBoxes(2))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Version("spheres"))
	h1, err := r.Handle("spheres")
	require.NoError(t, err)
	assert.Equal(t, s1.Handle(), h1)

	_, err = r.BuildTopLevel("scene", []Instance{{Transform: Identity(), Mask: 0xff, BLAS: h1}})
	require.NoError(t, err)
	stale, err := r.Stale("scene")
	require.NoError(t, err)
	assert.False(t, stale)
	_, err = r.Stale("nope")
	assert.ErrorIs(t, err, ErrUnknownName)

	// Rebuilding the bottom level makes the top level
	// stale, but keeps the old structure alive.
	s2, err := r.BuildBottomLevel("spheres", unitBoxes(3))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Version("spheres"))
	assert.NotEqual(t, h1, s2.Handle())
	assert.Equal(t, []string{"scene"}, r.StaleTopLevel())
	old := s1.AccelStruct().(*drivertest.AccelStruct)
	assert.Zero(t, r.Prune())
	assert.False(t, old.Destroyed())

	// Rebuilding the dependent clears the staleness and
	// allows the old structures to be released.
	h2, _ := r.Handle("spheres")
	tlas, err := r.BuildTopLevel("scene", []Instance{{Transform: Identity(), Mask: 0xff, BLAS: h2}})
	require.NoError(t, err)
	assert.Empty(t, r.StaleTopLevel())
	assert.Equal(t, 2, r.Prune())
	assert.True(t, old.Destroyed())

	lk, ok := r.Lookup("scene")
	assert.True(t, ok)
	assert.Same(t, tlas, lk)

	r.Destroy()
	assert.True(t, s2.Handle() == 0)
	assert.Empty(t, gpu.Violations())
}

func TestRegistryRetiredReference(t *testing.T) {
	b, _ := newBuilder(t)
	r := NewRegistry(b)
	s1, err := r.BuildBottomLevel("a", unitBoxes(1))
	require.NoError(t, err)
	_, err = r.BuildBottomLevel("a", unitBoxes(1))
	require.NoError(t, err)
	// Built against the retired structure.
	_, err = r.BuildTopLevel("t", []Instance{{Transform: Identity(), BLAS: s1.Handle()}})
	require.NoError(t, err)
	stale, err := r.Stale("t")
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Zero(t, r.Prune())
}

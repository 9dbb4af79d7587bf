// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package sbt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/rtframe/ctxt"
	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/driver/drivertest"
)

func newPipeline(t *testing.T, gpu *drivertest.GPU, ngrp int) driver.RTPipeline {
	t.Helper()
	code, err := gpu.NewShaderCode(make([]byte, 4))
	require.NoError(t, err)
	st := &driver.RTState{
		Stages: []driver.RTStage{{Stage: driver.SRayGen, Func: driver.ShaderFunc{Code: code, Name: "main"}}},
	}
	for range ngrp {
		st.Groups = append(st.Groups, driver.ShaderGroup{
			Type:         driver.GGeneral,
			General:      0,
			ClosestHit:   driver.NoShader,
			AnyHit:       driver.NoShader,
			Intersection: driver.NoShader,
		})
	}
	pl, err := gpu.NewRTPipeline(st)
	require.NoError(t, err)
	return pl
}

// truncatedHandles returns only part of the group handle
// table of the wrapped pipeline.
type truncatedHandles struct {
	driver.RTPipeline
}

func (p truncatedHandles) GroupHandles() ([]byte, error) {
	h, err := p.RTPipeline.GroupHandles()
	return h[:len(h)/2], err
}

func TestUpload(t *testing.T) {
	gpu := drivertest.New(drivertest.Config{})
	c, err := ctxt.NewFromGPU(gpu)
	require.NoError(t, err)
	pl := newPipeline(t, gpu, 3)

	var tab Table
	tab.AddRayGen(0, nil)
	tab.AddMiss(1, nil)
	tab.AddHitGroup(2, []byte{1, 2, 3, 4})
	b, err := Upload(c, pl, &tab)
	require.NoError(t, err)
	defer b.Destroy()

	rtl := gpu.RTLimits()
	l := b.Layout()
	for c := range ncat {
		r := l.Region(c)
		assert.Zero(t, r.Stride%rtl.HandleAlign)
		reg := b.Region(c)
		assert.Zero(t, (int64(reg.Buf.Address())+reg.Off)%rtl.BaseAlign, "%v region address", c)
	}
	hg := b.Region(HitGroup)
	p := hg.Buf.Bytes()[hg.Off:]
	ptl := pl.(*drivertest.RTPipeline)
	assert.Equal(t, ptl.GroupHandle(2), p[:rtl.HandleSize])
	assert.Equal(t, []byte{1, 2, 3, 4}, p[rtl.HandleSize:rtl.HandleSize+4])

	tp := b.Trace(640, 480)
	assert.Equal(t, tp.RayGen.Stride, tp.RayGen.Size)
	assert.Equal(t, 640, tp.Width)
	assert.Equal(t, 480, tp.Height)
	assert.Equal(t, 1, tp.Depth)
	assert.Equal(t, b.Region(Miss), tp.Miss)
	assert.Equal(t, driver.UShaderTable, b.Buffer().(*drivertest.Buffer).Usage())
}

func TestUploadEmptyHitGroup(t *testing.T) {
	gpu := drivertest.New(drivertest.Config{})
	c, err := ctxt.NewFromGPU(gpu)
	require.NoError(t, err)
	pl := newPipeline(t, gpu, 2)

	var tab Table
	tab.AddRayGen(0, nil)
	tab.AddMiss(1, nil)
	b, err := Upload(c, pl, &tab)
	require.NoError(t, err)
	assert.Nil(t, b.Trace(8, 8).HitGroup.Buf)

	tab.Require(HitGroup)
	_, err = Upload(c, pl, &tab)
	assert.ErrorIs(t, err, ErrEmptyCategory)
}

func TestUploadErrors(t *testing.T) {
	gpu := drivertest.New(drivertest.Config{})
	c, err := ctxt.NewFromGPU(gpu)
	require.NoError(t, err)
	pl := newPipeline(t, gpu, 2)

	var tab Table
	tab.AddRayGen(0, nil)
	tab.AddHitGroup(2, nil)
	gpu.ResetCalls()
	_, err = Upload(c, pl, &tab)
	assert.ErrorIs(t, err, ErrGroupRange)
	// Rejected before any device call.
	assert.Empty(t, gpu.Calls())

	tab = Table{}
	tab.AddRayGen(1, nil)
	gpu.FailNext("GroupHandles", driver.ErrFatal)
	_, err = Upload(c, pl, &tab)
	assert.ErrorIs(t, err, driver.ErrFatal)
	assert.ErrorContains(t, err, "sbt: group handles")
}

func TestUploadShortHandles(t *testing.T) {
	gpu := drivertest.New(drivertest.Config{})
	c, err := ctxt.NewFromGPU(gpu)
	require.NoError(t, err)
	pl := newPipeline(t, gpu, 3)

	var tab Table
	tab.AddRayGen(0, nil)
	tab.AddMiss(1, nil)
	tab.AddHitGroup(2, []byte{1, 2, 3, 4})
	b, err := Upload(c, truncatedHandles{pl}, &tab)
	assert.Nil(t, b)
	assert.ErrorIs(t, err, ErrGroupRange)
	assert.ErrorContains(t, err, "sbt: generate")
	var n int
	for _, buf := range gpu.Buffers() {
		if buf.Usage() == driver.UShaderTable {
			assert.True(t, buf.Destroyed())
			n++
		}
	}
	assert.Equal(t, 1, n)
}

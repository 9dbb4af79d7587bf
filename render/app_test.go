// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/rtframe/config"
	"github.com/gviegas/rtframe/ctxt"
	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/driver/drivertest"
	"github.com/gviegas/rtframe/frame"
	"github.com/gviegas/rtframe/sbt"
	"github.com/gviegas/rtframe/shaders"
	"github.com/gviegas/rtframe/wsi"
)

func testCode() *shaders.Code {
	var c shaders.Code
	for i := range c {
		c[i] = make([]byte, 24)
	}
	return &c
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Spheres = []config.Sphere{
		{Center: [3]float32{-1, 0, 0}, Radius: 0.5, Color: [3]float32{1, 0, 0}},
		{Center: [3]float32{1, 0, 0}, Radius: 0.75, Color: [3]float32{0, 0, 1}},
	}
	return cfg
}

func newApp(t *testing.T, gcfg drivertest.Config, cfg *config.Config) (*App, *drivertest.GPU, *drivertest.Window) {
	t.Helper()
	gpu := drivertest.New(gcfg)
	c, err := ctxt.NewFromGPU(gpu)
	require.NoError(t, err)
	win := drivertest.NewWindow(800, 600)
	a, err := New(c, win, cfg, testCode())
	require.NoError(t, err)
	t.Cleanup(a.Destroy)
	return a, gpu, win
}

func TestNew(t *testing.T) {
	a, gpu, _ := newApp(t, drivertest.Config{}, testConfig())

	assert.Equal(t, 3, a.Scheduler().Slots())
	assert.InDelta(t, 800.0/600.0, a.Camera().Aspect(), 1e-6)

	l := a.Table().Layout()
	assert.Equal(t, 1, l.Region(sbt.RayGen).Count)
	assert.Equal(t, 1, l.Region(sbt.Miss).Count)
	assert.Equal(t, 2, l.Region(sbt.HitGroup).Count)

	blas, ok := a.Registry().Lookup(SphereBLAS)
	require.True(t, ok)
	assert.Equal(t, driver.BottomLevel, blas.Type())
	tlas, ok := a.Registry().Lookup(SceneTLAS)
	require.True(t, ok)
	assert.Equal(t, 2, tlas.Count())
	assert.Equal(t, []uint64{blas.Handle(), blas.Handle()}, tlas.Refs())

	sc := gpu.Swapchains()
	require.Len(t, sc, 1)
	assert.False(t, sc[0].Destroyed())
	assert.Empty(t, gpu.Violations())
}

func TestNewErrors(t *testing.T) {
	gpu := drivertest.New(drivertest.Config{})
	c, err := ctxt.NewFromGPU(gpu)
	require.NoError(t, err)
	win := drivertest.NewWindow(800, 600)

	_, err = New(c, nil, testConfig(), testCode())
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Spheres = nil
	_, err = New(c, win, cfg, testCode())
	assert.Error(t, err)

	gpu.FailNext("NewRTPipeline", driver.ErrNoDeviceMemory)
	_, err = New(c, win, testConfig(), testCode())
	assert.ErrorIs(t, err, driver.ErrNoDeviceMemory)
	assert.ErrorContains(t, err, "render: pipeline")
	sc := gpu.Swapchains()
	require.Len(t, sc, 1)
	assert.True(t, sc[0].Destroyed())
}

func TestRun(t *testing.T) {
	for _, mode := range []string{"counter", "image-index"} {
		cfg := testConfig()
		cfg.Frame.Ring = mode
		a, gpu, win := newApp(t, drivertest.Config{Seed: 7, CompleteProb: 0.3}, cfg)

		require.NoError(t, a.Run(20), mode)
		assert.EqualValues(t, 20, a.Frames(), mode)
		assert.Equal(t, 20, win.Polls(), mode)
		assert.Len(t, gpu.Swapchains()[0].Presented(), 20, mode)
		assert.Empty(t, gpu.Violations(), mode)
	}
}

func TestStepClose(t *testing.T) {
	a, _, win := newApp(t, drivertest.Config{}, testConfig())
	win.Push(wsi.Events{})
	win.Push(wsi.Events{Pressed: []wsi.Key{wsi.KeyEsc}})
	require.NoError(t, a.Run(0))
	assert.EqualValues(t, 1, a.Frames())

	a, _, win = newApp(t, drivertest.Config{}, testConfig())
	win.Close()
	ok, err := a.Step()
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Zero(t, a.Frames())
}

func TestStepResize(t *testing.T) {
	a, gpu, win := newApp(t, drivertest.Config{}, testConfig())
	ok, err := a.Step()
	require.True(t, ok)
	require.NoError(t, err)

	win.Push(wsi.Events{Width: 1000, Height: 500})
	ok, err = a.Step()
	require.True(t, ok)
	require.NoError(t, err)
	w, h := a.Scheduler().Extent()
	assert.Equal(t, 1000, w)
	assert.Equal(t, 500, h)
	assert.InDelta(t, 2, a.Camera().Aspect(), 1e-6)
	assert.Equal(t, 1, a.Scheduler().Stats().Recreations)
	assert.Equal(t, 1, gpu.Swapchains()[0].Recreated())

	// A minimized window draws nothing.
	win.Resize(0, 0)
	ok, err = a.Step()
	require.True(t, ok)
	require.NoError(t, err)
	assert.EqualValues(t, 2, a.Frames())
	assert.Empty(t, gpu.Violations())
}

func TestStepOrbit(t *testing.T) {
	a, _, win := newApp(t, drivertest.Config{}, testConfig())
	eye := a.Camera().Eye()
	win.Push(wsi.Events{Scroll: 1})
	_, err := a.Step()
	require.NoError(t, err)
	assert.NotEqual(t, eye, a.Camera().Eye())
	assert.InDelta(t, 2.7, a.Camera().Eye().Len(), 1e-4)

	var e wsi.Events
	e.CursorX, e.CursorY = 400, 300
	e.Buttons[wsi.BtnLeft] = true
	win.Push(e)
	e.CursorX = 480
	win.Push(e)
	eye = a.Camera().Eye()
	for range 2 {
		_, err = a.Step()
		require.NoError(t, err)
	}
	assert.NotEqual(t, eye, a.Camera().Eye())
	assert.InDelta(t, 0, a.Camera().LookAt().Len(), 1e-4)
}

func TestRebuild(t *testing.T) {
	a, gpu, win := newApp(t, drivertest.Config{CompleteProb: -1}, testConfig())
	require.NoError(t, a.Run(3))
	old, _ := a.Registry().Lookup(SceneTLAS)
	oldAS := old.AccelStruct().(*drivertest.AccelStruct)

	win.Push(wsi.Events{Pressed: []wsi.Key{wsi.KeyR}})
	ok, err := a.Step()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Registry().Version(SphereBLAS))
	assert.Empty(t, a.Registry().StaleTopLevel())
	assert.True(t, oldAS.Destroyed())

	tlas, _ := a.Registry().Lookup(SceneTLAS)
	require.NoError(t, a.Run(6))
	pl := a.pl.(*drivertest.RTPipeline)
	rewritten := make(map[int]bool)
	for _, w := range pl.Writes() {
		if w.Nr == frame.BindAccel && w.Accel == tlas.AccelStruct() {
			rewritten[w.Copy] = true
		}
	}
	assert.Len(t, rewritten, 3)
	assert.Empty(t, gpu.Violations())
}

func TestStats(t *testing.T) {
	var s Stats
	assert.Zero(t, s.Mean())
	s.reset(time.Second)
	s.add(2 * time.Millisecond)
	s.add(4 * time.Millisecond)
	assert.Equal(t, 3*time.Millisecond, s.Mean())
	assert.Equal(t, 4*time.Millisecond, s.Max)
	assert.False(t, s.due(time.Second+time.Millisecond, ReportInterval))
	assert.True(t, s.due(2*time.Second, ReportInterval))
	s.reset(2 * time.Second)
	assert.Zero(t, s.Frames)
}

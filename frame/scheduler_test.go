// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package frame

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/rtframe/ctxt"
	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/driver/drivertest"
	"github.com/gviegas/rtframe/sbt"
)

type testCamera struct {
	aspect float32
	n      byte
}

func (c *testCamera) SetAspect(aspect float32) { c.aspect = aspect }

func (c *testCamera) Constants(p []byte) {
	c.n++
	for i := range p {
		p[i] = c.n
	}
}

type fixture struct {
	gpu *drivertest.GPU
	c   *ctxt.Context
	win *drivertest.Window
	sc  *drivertest.Swapchain
	pl  *drivertest.RTPipeline
	tab *sbt.Buffer
	as  driver.AccelStruct
	cam *testCamera
	s   *Scheduler
}

func general(i int) driver.ShaderGroup {
	return driver.ShaderGroup{
		Type:         driver.GGeneral,
		General:      i,
		ClosestHit:   driver.NoShader,
		AnyHit:       driver.NoShader,
		Intersection: driver.NoShader,
	}
}

func newPipeline(t *testing.T, gpu *drivertest.GPU, copies int) *drivertest.RTPipeline {
	t.Helper()
	code, err := gpu.NewShaderCode(make([]byte, 8))
	require.NoError(t, err)
	pl, err := gpu.NewRTPipeline(&driver.RTState{
		Stages: []driver.RTStage{
			{Stage: driver.SRayGen, Func: driver.ShaderFunc{Code: code, Name: "main"}},
			{Stage: driver.SMiss, Func: driver.ShaderFunc{Code: code, Name: "main"}},
		},
		Groups:       []driver.ShaderGroup{general(0), general(1)},
		Desc:         Descriptors(),
		DescCopies:   copies,
		MaxRecursion: 1,
	})
	require.NoError(t, err)
	return pl.(*drivertest.RTPipeline)
}

// newFixture creates a Scheduler drawing into a 640x480
// window with a three image swapchain.
func newFixture(t *testing.T, gcfg drivertest.Config, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		gpu: drivertest.New(gcfg),
		win: drivertest.NewWindow(640, 480),
		cam: &testCamera{},
	}
	var err error
	f.c, err = ctxt.NewFromGPU(f.gpu)
	require.NoError(t, err)
	sc, err := f.gpu.NewSwapchain(f.win, 3)
	require.NoError(t, err)
	f.sc = sc.(*drivertest.Swapchain)
	f.pl = newPipeline(t, f.gpu, 8)

	var tab sbt.Table
	tab.AddRayGen(0, nil)
	tab.AddMiss(1, nil)
	f.tab, err = sbt.Upload(f.c, f.pl, &tab)
	require.NoError(t, err)
	f.as, err = f.gpu.NewAccelStruct(driver.TopLevel, 256)
	require.NoError(t, err)

	f.s, err = New(f.c, Params{
		Swapchain: f.sc,
		Pipeline:  f.pl,
		Table:     f.tab,
		Accel:     f.as,
		Camera:    f.cam,
	}, cfg)
	require.NoError(t, err)
	return f
}

// descCopies returns the descriptor copy bound by each
// batch, in submission order.
func (f *fixture) descCopies() (copies []int) {
	for _, b := range f.gpu.Batches() {
		for _, cmds := range b.Cmds {
			for _, c := range cmds {
				if c.Op == drivertest.OpSetRTPipeline {
					copies = append(copies, c.DescCopy)
				}
			}
		}
	}
	return
}

func TestNew(t *testing.T) {
	f := newFixture(t, drivertest.Config{}, Config{})
	assert.Equal(t, 3, f.s.Slots())
	assert.Equal(t, RingCounter, f.s.Mode())
	w, h := f.s.Extent()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
	assert.InDelta(t, 640.0/480.0, f.cam.aspect, 1e-6)
	for i := range f.s.Slots() {
		assert.Equal(t, Idle, f.s.SlotState(i))
	}

	// Every copy gets the three bindings.
	nr := make(map[[2]int]bool)
	for _, w := range f.pl.Writes() {
		nr[[2]int{w.Copy, w.Nr}] = true
		if w.Nr == BindConstants {
			assert.EqualValues(t, ConstantSize, w.Size)
			assert.Zero(t, w.Off%f.gpu.Limits().MinConstantAlign)
		}
	}
	assert.Len(t, nr, 9)
	assert.Empty(t, f.gpu.Violations())
}

func TestNewErrors(t *testing.T) {
	gpu := drivertest.New(drivertest.Config{})
	c, err := ctxt.NewFromGPU(gpu)
	require.NoError(t, err)
	sc, err := gpu.NewSwapchain(drivertest.NewWindow(64, 64), 3)
	require.NoError(t, err)
	p := Params{Swapchain: sc, Pipeline: newPipeline(t, gpu, 2), Camera: &testCamera{}}

	_, err = New(c, p, Config{})
	assert.ErrorIs(t, err, ErrDescCopies)

	p.Pipeline = newPipeline(t, gpu, 3)
	gpu.FailNext("NewFence", driver.ErrNoDeviceMemory)
	_, err = New(c, p, Config{})
	assert.ErrorIs(t, err, driver.ErrNoDeviceMemory)
	assert.ErrorContains(t, err, "frame: slot 0")
	assert.False(t, sc.(*drivertest.Swapchain).Destroyed())
	assert.Empty(t, gpu.Violations())
}

func TestDrawFrame(t *testing.T) {
	f := newFixture(t, drivertest.Config{CompleteProb: -1}, Config{})
	require.NoError(t, f.s.DrawFrame())
	assert.Equal(t, Submitted, f.s.SlotState(0))
	assert.Equal(t, uint64(1), f.s.Stats().Frames)
	assert.Equal(t, []int{0}, f.sc.Presented())
	assert.Equal(t, byte(1), f.cam.n)

	bs := f.gpu.Batches()
	require.Len(t, bs, 1)
	b := bs[0]
	assert.Equal(t, []driver.Sync{driver.SColorOutput}, b.WaitSync)
	assert.Len(t, b.Wait, 1)
	assert.Len(t, b.Signal, 1)
	assert.NotNil(t, b.Fence)
	assert.False(t, b.Done())

	require.Len(t, b.Cmds, 1)
	cmds := b.Cmds[0]
	var ops []drivertest.Op
	for _, c := range cmds {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []drivertest.Op{
		drivertest.OpTransition,
		drivertest.OpSetRTPipeline,
		drivertest.OpTraceRays,
		drivertest.OpTransition,
		drivertest.OpTransition,
		drivertest.OpCopyImage,
		drivertest.OpTransition,
	}, ops)

	out := cmds[0].Transition
	assert.Equal(t, driver.LUndefined, out.LayoutBefore)
	assert.Equal(t, driver.LCommon, out.LayoutAfter)
	tr := cmds[2].Trace
	assert.Equal(t, 640, tr.Width)
	assert.Equal(t, 480, tr.Height)
	assert.Equal(t, 1, tr.Depth)
	assert.Same(t, f.tab.Buffer(), tr.RayGen.Buf)
	assert.Equal(t, tr.RayGen.Stride, tr.RayGen.Size)
	assert.Nil(t, tr.HitGroup.Buf)

	assert.Equal(t, driver.LCopySrc, cmds[3].Transition.LayoutAfter)
	assert.Same(t, out.Img, cmds[3].Transition.Img)
	swp := f.sc.Images()[0]
	assert.Same(t, swp, cmds[4].Transition.Img)
	assert.Equal(t, driver.LCopyDst, cmds[4].Transition.LayoutAfter)
	cp := cmds[5].ImageCopy
	assert.Same(t, out.Img, cp.From)
	assert.Same(t, swp, cp.To)
	assert.Equal(t, driver.Dim3D{Width: 640, Height: 480, Depth: 1}, cp.Size)
	assert.Equal(t, driver.LPresent, cmds[6].Transition.LayoutAfter)

	assert.Empty(t, f.gpu.Violations())
}

func TestRingNoResetWhilePending(t *testing.T) {
	for _, mode := range [...]RingMode{RingCounter, RingImageIndex} {
		for seed := range int64(16) {
			f := newFixture(t, drivertest.Config{Seed: seed, CompleteProb: 0.3}, Config{Mode: mode})
			for n := range 40 {
				require.NoError(t, f.s.DrawFrame(), "mode %v seed %d frame %d", mode, seed, n)
			}
			assert.Empty(t, f.gpu.Violations(), "mode %v seed %d", mode, seed)
			f.s.Destroy()
			assert.Empty(t, f.gpu.Violations(), "mode %v seed %d", mode, seed)
		}
	}
}

func TestRingModes(t *testing.T) {
	f := newFixture(t, drivertest.Config{CompleteProb: -1}, Config{Mode: RingCounter})
	f.sc.Script(2, 2, 0)
	for range 3 {
		require.NoError(t, f.s.DrawFrame())
	}
	assert.Equal(t, []int{0, 1, 2}, f.descCopies())
	assert.Equal(t, []int{2, 2, 0}, f.sc.Presented())
	assert.Empty(t, f.gpu.Violations())

	f = newFixture(t, drivertest.Config{CompleteProb: -1}, Config{Mode: RingImageIndex})
	f.sc.Script(2, 2, 0)
	for range 3 {
		require.NoError(t, f.s.DrawFrame())
	}
	assert.Equal(t, []int{2, 2, 0}, f.descCopies())
	assert.Equal(t, []int{2, 2, 0}, f.sc.Presented())
	// The semaphore used to acquire comes from the slot
	// of the previous frame.
	bs := f.gpu.Batches()
	require.Len(t, bs, 3)
	assert.Same(t, bs[1].Wait[0], bs[2].Wait[0])
	assert.NotSame(t, bs[0].Wait[0], bs[1].Wait[0])
	assert.Empty(t, f.gpu.Violations())
}

func TestRingMismatch(t *testing.T) {
	for _, mode := range [...]RingMode{RingCounter, RingImageIndex} {
		f := newFixture(t, drivertest.Config{CompleteProb: -1}, Config{Mode: mode})
		f.sc.SetImageCount(4)
		f.sc.InjectOutOfDate(1)
		var err error
		for range 5 {
			if err = f.s.DrawFrame(); err != nil {
				break
			}
		}
		assert.Len(t, f.sc.Images(), 4)
		if mode == RingImageIndex {
			assert.ErrorIs(t, err, ErrRingMismatch)
			assert.True(t, IsFatal(err))
		} else {
			assert.NoError(t, err)
			assert.Empty(t, f.gpu.Violations())
		}
	}
}

func TestOutOfDate(t *testing.T) {
	f := newFixture(t, drivertest.Config{CompleteProb: -1}, Config{})
	require.NoError(t, f.s.DrawFrame())
	require.NoError(t, f.s.DrawFrame())
	old := f.s.slots[0].out.(*drivertest.Image)

	f.win.Resize(800, 400)
	f.sc.InjectOutOfDate(1)
	f.gpu.ResetCalls()
	require.NoError(t, f.s.DrawFrame())

	assert.Equal(t, 1, f.sc.Recreated())
	assert.Equal(t, 1, f.s.Stats().Recreations)
	assert.InDelta(t, 2.0, f.cam.aspect, 1e-6)
	w, h := f.s.Extent()
	assert.Equal(t, 800, w)
	assert.Equal(t, 400, h)
	assert.True(t, old.Destroyed())
	for i := range f.s.slots {
		assert.Equal(t, driver.Dim3D{Width: 800, Height: 400, Depth: 1}, f.s.slots[i].out.Size())
	}

	calls := f.gpu.Calls()
	first := func(name string) int {
		for i, c := range calls {
			if c == name {
				return i
			}
		}
		return -1
	}
	assert.Less(t, first("Next"), first("WaitIdle"))
	assert.Less(t, first("WaitIdle"), first("Recreate"))
	assert.Equal(t, 2, f.gpu.CallCount("Next"))

	// The ring carries on from where it was.
	assert.Equal(t, []int{0, 1, 2}, f.descCopies())
	bs := f.gpu.Batches()
	tr := bs[len(bs)-1].Cmds[0][2].Trace
	assert.Equal(t, 800, tr.Width)
	assert.Equal(t, 400, tr.Height)
	for range 6 {
		require.NoError(t, f.s.DrawFrame())
	}
	assert.Equal(t, uint64(9), f.s.Stats().Frames)
	assert.Empty(t, f.gpu.Violations())
}

func TestOutOfDateTwice(t *testing.T) {
	f := newFixture(t, drivertest.Config{CompleteProb: -1}, Config{})
	f.sc.InjectOutOfDate(2)
	err := f.s.DrawFrame()
	assert.ErrorIs(t, err, ErrOutOfDate)
	assert.False(t, IsTransient(err))
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, f.sc.Recreated())
	assert.Zero(t, f.s.Stats().Frames)
}

func TestResize(t *testing.T) {
	f := newFixture(t, drivertest.Config{}, Config{})
	f.s.Resize(640, 480)
	require.NoError(t, f.s.DrawFrame())
	assert.Zero(t, f.sc.Recreated())

	f.win.Resize(320, 240)
	f.gpu.ResetCalls()
	f.s.Resize(320, 240)
	assert.Empty(t, f.gpu.Calls())
	require.NoError(t, f.s.DrawFrame())
	assert.Equal(t, 1, f.sc.Recreated())
	assert.Equal(t, 1, f.gpu.CallCount("Next"))
	assert.InDelta(t, 4.0/3.0, f.cam.aspect, 1e-6)
	assert.Empty(t, f.gpu.Violations())
}

func TestPresentOutOfDate(t *testing.T) {
	f := newFixture(t, drivertest.Config{}, Config{})
	f.gpu.FailNext("Present", driver.ErrSwapchain)
	require.NoError(t, f.s.DrawFrame())
	assert.Zero(t, f.sc.Recreated())
	require.NoError(t, f.s.DrawFrame())
	assert.Equal(t, 1, f.sc.Recreated())
}

func TestFenceTimeout(t *testing.T) {
	f := newFixture(t, drivertest.Config{CompleteProb: -1}, Config{FenceTimeout: time.Millisecond})
	require.NoError(t, f.s.DrawFrame())
	f.gpu.Stick(f.gpu.Batches()[0].Fence)
	require.NoError(t, f.s.DrawFrame())
	require.NoError(t, f.s.DrawFrame())

	err := f.s.DrawFrame()
	assert.ErrorIs(t, err, driver.ErrTimeout)
	assert.ErrorContains(t, err, "frame: wait slot 0")
	assert.True(t, IsFatal(err))
	assert.Equal(t, Submitted, f.s.SlotState(0))
	assert.Equal(t, uint64(3), f.s.Stats().Frames)
}

func TestSetAccel(t *testing.T) {
	f := newFixture(t, drivertest.Config{CompleteProb: -1}, Config{})
	require.NoError(t, f.s.DrawFrame())
	as, err := f.gpu.NewAccelStruct(driver.TopLevel, 256)
	require.NoError(t, err)
	n := len(f.pl.Writes())
	f.s.SetAccel(as)
	assert.Len(t, f.pl.Writes(), n)

	for range 3 {
		require.NoError(t, f.s.DrawFrame())
	}
	var copies []int
	for _, w := range f.pl.Writes()[n:] {
		assert.Equal(t, BindAccel, w.Nr)
		assert.Same(t, as, w.Accel)
		copies = append(copies, w.Copy)
	}
	assert.Equal(t, []int{1, 2, 0}, copies)
	assert.Empty(t, f.gpu.Violations())
}

func TestDestroy(t *testing.T) {
	f := newFixture(t, drivertest.Config{CompleteProb: -1}, Config{})
	for range 4 {
		require.NoError(t, f.s.DrawFrame())
	}
	out := f.s.slots[1].out.(*drivertest.Image)
	f.s.Destroy()
	assert.Zero(t, f.gpu.Pending())
	assert.True(t, f.sc.Destroyed())
	assert.True(t, out.Destroyed())
	assert.Empty(t, f.gpu.Violations())
	f.s.Destroy()
}

func TestParseRingMode(t *testing.T) {
	for s, want := range map[string]RingMode{
		"":            RingCounter,
		"counter":     RingCounter,
		"image-index": RingImageIndex,
		"Image-Index": RingImageIndex,
	} {
		m, err := ParseRingMode(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, m, s)
	}
	_, err := ParseRingMode("lifo")
	assert.Error(t, err)
	assert.Equal(t, "image-index", RingImageIndex.String())
	assert.Equal(t, "submitted", Submitted.String())
}

// lastConstants returns the constants written by the
// most recent frame.
func (f *fixture) lastConstants(t *testing.T) []byte {
	t.Helper()
	for i := range f.s.slots {
		p := f.s.arena.Bytes(f.s.slots[i].cons)[:ConstantSize]
		if p[0] == f.cam.n {
			return p
		}
	}
	t.Fatal("no slot holds the last constants")
	return nil
}

func TestSwizzle(t *testing.T) {
	assert.True(t, Swizzled(driver.BGRA8Unorm))
	assert.True(t, Swizzled(driver.BGRA8SRGB))
	assert.False(t, Swizzled(driver.RGBA8Unorm))
	assert.False(t, Swizzled(driver.RGBA8SRGB))

	f := newFixture(t, drivertest.Config{}, Config{})
	require.Equal(t, driver.BGRA8Unorm, f.sc.Format())
	assert.True(t, f.s.Swizzle())
	require.NoError(t, f.s.DrawFrame())
	p := f.lastConstants(t)
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(p[SwizzleOffset:])))
	assert.Equal(t, f.cam.n, p[SwizzleOffset-1])
	assert.Equal(t, f.cam.n, p[SwizzleOffset+4])

	f.sc.SetFormat(driver.RGBA8Unorm)
	f.win.Resize(320, 240)
	f.s.Resize(320, 240)
	require.NoError(t, f.s.DrawFrame())
	require.Equal(t, 1, f.sc.Recreated())
	assert.Equal(t, OutputFormat, f.sc.Format())
	assert.False(t, f.s.Swizzle())
	p = f.lastConstants(t)
	assert.Zero(t, binary.LittleEndian.Uint32(p[SwizzleOffset:]))
	assert.Empty(t, f.gpu.Violations())
}

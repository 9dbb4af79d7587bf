// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package render assembles the ray tracing pipeline and
// runs the render loop.
package render

import (
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/gviegas/rtframe/accel"
	"github.com/gviegas/rtframe/camera"
	"github.com/gviegas/rtframe/config"
	"github.com/gviegas/rtframe/ctxt"
	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/frame"
	"github.com/gviegas/rtframe/log"
	"github.com/gviegas/rtframe/sbt"
	"github.com/gviegas/rtframe/scene"
	"github.com/gviegas/rtframe/shaders"
	"github.com/gviegas/rtframe/wsi"
)

var logger = log.New("render")

// Names under which the structures are registered.
const (
	SphereBLAS = "sphere"
	SceneTLAS  = "scene"
)

// Shader groups of the pipeline.
const (
	groupRayGen = iota
	groupMiss
	groupHit
)

var (
	stages = [shaders.StageN]driver.Stage{
		shaders.RayGen:       driver.SRayGen,
		shaders.Miss:         driver.SMiss,
		shaders.ClosestHit:   driver.SClosestHit,
		shaders.Intersection: driver.SIntersection,
	}
	groups = scene.Groups{RayGen: groupRayGen, Miss: groupMiss, Hit: groupHit}
)

// ReportInterval is the interval between frame
// statistics reports.
const ReportInterval = time.Second

// App is an onscreen ray tracer.
type App struct {
	c     *ctxt.Context
	win   wsi.Window
	scn   *scene.Scene
	sc    driver.Swapchain
	code  [shaders.StageN]driver.ShaderCode
	pl    driver.RTPipeline
	reg   *accel.Registry
	tab   *sbt.Buffer
	cam   *camera.Camera
	orbit *camera.Orbit
	sched *frame.Scheduler
	stats Stats
	drawn uint64
}

// New creates a new App that draws the configured scene
// into win.
// c must support presentation.
func New(c *ctxt.Context, win wsi.Window, cfg *config.Config, code *shaders.Code) (_ *App, err error) {
	if win == nil {
		return nil, errors.New("render: nil wsi.Window in call to New")
	}
	pres := c.Presenter()
	if pres == nil {
		return nil, driver.ErrCannotPresent
	}
	scn := cfg.Scene()
	if err = scn.Validate(); err != nil {
		return nil, err
	}

	a := &App{c: c, win: win, scn: scn}
	defer func() {
		if err != nil {
			a.destroy()
		}
	}()

	if a.sc, err = pres.NewSwapchain(win, cfg.ImageCount()); err != nil {
		return nil, pkgerrors.Wrap(err, "render: swapchain")
	}
	if err = a.newPipeline(code, len(a.sc.Images())); err != nil {
		return nil, err
	}

	a.reg = accel.NewRegistry(accel.NewBuilder(c))
	tlas, err := a.buildScene()
	if err != nil {
		return nil, err
	}
	if a.tab, err = sbt.Upload(c, a.pl, scn.Table(groups)); err != nil {
		return nil, err
	}

	p := a.sc.Params()
	a.cam = cfg.NewCamera(float32(p.Width) / float32(max(p.Height, 1)))
	a.orbit = camera.NewOrbit(a.cam)

	a.sched, err = frame.New(c, frame.Params{
		Swapchain: a.sc,
		Pipeline:  a.pl,
		Table:     a.tab,
		Accel:     tlas.AccelStruct(),
		Camera:    a.cam,
	}, cfg.FrameConfig())
	if err != nil {
		return nil, err
	}
	// The scheduler owns the swapchain from now on.
	a.sc = nil
	a.stats.reset(clock())
	logger.Noticef("%d spheres, %d frame slots, %s ring", len(scn.Spheres), a.sched.Slots(), a.sched.Mode())
	return a, nil
}

// newPipeline creates the ray tracing pipeline with one
// descriptor copy per frame slot.
func (a *App) newPipeline(code *shaders.Code, copies int) (err error) {
	gpu := a.c.GPU()
	rst := &driver.RTState{
		Groups: []driver.ShaderGroup{
			groupRayGen: {
				Type:         driver.GGeneral,
				General:      int(shaders.RayGen),
				ClosestHit:   driver.NoShader,
				AnyHit:       driver.NoShader,
				Intersection: driver.NoShader,
			},
			groupMiss: {
				Type:         driver.GGeneral,
				General:      int(shaders.Miss),
				ClosestHit:   driver.NoShader,
				AnyHit:       driver.NoShader,
				Intersection: driver.NoShader,
			},
			groupHit: {
				Type:         driver.GProcedural,
				General:      driver.NoShader,
				ClosestHit:   int(shaders.ClosestHit),
				AnyHit:       driver.NoShader,
				Intersection: int(shaders.Intersection),
			},
		},
		Desc:         frame.Descriptors(),
		DescCopies:   copies,
		MaxRecursion: 1,
	}
	for i := range a.code {
		if a.code[i], err = gpu.NewShaderCode(code[i]); err != nil {
			return pkgerrors.Wrapf(err, "render: %s shader", shaders.Stage(i))
		}
		rst.Stages = append(rst.Stages, driver.RTStage{
			Stage: stages[i],
			Func:  driver.ShaderFunc{Code: a.code[i], Name: "main"},
		})
	}
	if a.pl, err = a.c.Tracer().NewRTPipeline(rst); err != nil {
		return pkgerrors.Wrap(err, "render: pipeline")
	}
	return nil
}

// buildScene builds the sphere BLAS and the scene TLAS.
func (a *App) buildScene() (*accel.Structure, error) {
	blas, err := a.reg.BuildBottomLevel(SphereBLAS, a.scn.Primitives())
	if err != nil {
		return nil, err
	}
	return a.reg.BuildTopLevel(SceneTLAS, a.scn.Instances(blas.Handle()))
}

// Rebuild rebuilds the acceleration structures and makes
// the scheduler use the new top level structure.
// Retired structures are destroyed once no frame can be
// using them.
func (a *App) Rebuild() error {
	if err := a.c.GPU().WaitIdle(); err != nil {
		return pkgerrors.Wrap(err, "render: rebuild")
	}
	blas, err := a.reg.BuildBottomLevel(SphereBLAS, a.scn.Primitives())
	if err != nil {
		return err
	}
	for _, name := range a.reg.StaleTopLevel() {
		tlas, err := a.reg.BuildTopLevel(name, a.scn.Instances(blas.Handle()))
		if err != nil {
			return err
		}
		a.sched.SetAccel(tlas.AccelStruct())
	}
	n := a.reg.Prune()
	logger.Infof("rebuilt scene, %d structures retired", n)
	return nil
}

// Camera returns the camera.
func (a *App) Camera() *camera.Camera { return a.cam }

// Scheduler returns the frame scheduler.
func (a *App) Scheduler() *frame.Scheduler { return a.sched }

// Registry returns the structure registry.
func (a *App) Registry() *accel.Registry { return a.reg }

// Table returns the shader binding table.
func (a *App) Table() *sbt.Buffer { return a.tab }

// Frames returns the number of frames drawn.
func (a *App) Frames() uint64 { return a.drawn }

// Step runs one iteration of the render loop: poll
// events, apply them and draw a frame.
// It returns false when the loop must stop, either
// because the window was closed or because of a fatal
// error.
func (a *App) Step() (bool, error) {
	e := a.win.Poll()
	if e.Closed || e.KeyPressed(wsi.KeyEsc) {
		return false, nil
	}
	if e.Resized {
		a.sched.Resize(e.Width, e.Height)
	}
	if e.KeyPressed(wsi.KeyR) {
		if err := a.Rebuild(); err != nil {
			return false, err
		}
	}
	a.orbit.Update(&e)
	if e.Width <= 0 || e.Height <= 0 {
		// Minimized.
		return true, nil
	}

	t := clock()
	err := a.sched.DrawFrame()
	now := clock()
	if err != nil {
		if frame.IsFatal(err) {
			return false, err
		}
		logger.Warningf("frame dropped: %v", err)
		return true, nil
	}
	a.drawn++
	a.stats.add(now - t)
	if a.stats.due(now, ReportInterval) {
		a.report(now)
	}
	return true, nil
}

func (a *App) report(now time.Duration) {
	logger.Infof("%d frames, mean %v, max %v, %d recreations",
		a.stats.Frames, a.stats.Mean(), a.stats.Max, a.sched.Stats().Recreations)
	a.stats.reset(now)
}

// Run runs the render loop until Step returns false or
// maxFrames frames are drawn. Zero means no limit.
func (a *App) Run(maxFrames uint64) error {
	for maxFrames == 0 || a.drawn < maxFrames {
		ok, err := a.Step()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	logger.Noticef("stopped after %d frames", a.drawn)
	return nil
}

// Destroy waits for the GPU to become idle and destroys
// a.
// The context and the window are not destroyed.
func (a *App) Destroy() {
	if a.c == nil {
		return
	}
	a.destroy()
}

func (a *App) destroy() {
	if a.sched != nil {
		a.sched.Destroy()
	} else if err := a.c.GPU().WaitIdle(); err != nil {
		logger.Warningf("wait idle on destroy: %v", err)
	}
	if a.tab != nil {
		a.tab.Destroy()
	}
	if a.reg != nil {
		a.reg.Destroy()
	}
	if a.pl != nil {
		a.pl.Destroy()
	}
	for _, c := range a.code {
		if c != nil {
			c.Destroy()
		}
	}
	if a.sc != nil {
		a.sc.Destroy()
	}
	*a = App{}
}
